// Package models defines the core domain models for plan-driven task execution.
package models

// TaskStatus represents the lifecycle state of a single task.
type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusRunning   TaskStatus = "running"
	TaskStatusSucceeded TaskStatus = "succeeded"
	TaskStatusFailed    TaskStatus = "failed"
	TaskStatusRetrying  TaskStatus = "retrying"
	TaskStatusSkipped   TaskStatus = "skipped"
)

// Terminal reports whether a task in this status will never run again.
func (s TaskStatus) Terminal() bool {
	return s == TaskStatusSucceeded || s == TaskStatusFailed || s == TaskStatusSkipped
}

// Priority orders tasks when more than one is ready at the same time.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

var priorityRank = map[Priority]int{
	PriorityCritical: 0,
	PriorityHigh:     1,
	PriorityMedium:   2,
	PriorityLow:      3,
}

// Rank returns the numeric order of a priority, lower runs first.
// Unknown priorities sort last, after low.
func (p Priority) Rank() int {
	rank, ok := priorityRank[p]
	if !ok {
		return len(priorityRank)
	}

	return rank
}

// TaskRequirement names a capability a task needs from its handler:
// a skill, an external service integration, or reference documentation.
type TaskRequirement struct {
	Type     string         `json:"type"     validate:"required,oneof=skill mcp docs"`
	Name     string         `json:"name"     validate:"required"`
	Config   map[string]any `json:"config,omitempty"`
	Optional bool           `json:"optional,omitempty"`
}

// Task is a single executable unit of work inside a plan. The planner creates
// tasks; only the execution engine mutates Status, and never after the task
// reaches a terminal state.
type Task struct {
	ID           string            `json:"id"           validate:"required"`
	Name         string            `json:"name"         validate:"required"`
	Description  string            `json:"description"`
	Type         string            `json:"type"         validate:"required"`
	Requirements []TaskRequirement `json:"requirements,omitempty"`
	Dependencies []string          `json:"dependencies,omitempty"`
	Priority     Priority          `json:"priority"`
	// EstimatedDuration is the planner's estimate in seconds. Zero means
	// unknown and is replaced by the configured default during optimization.
	EstimatedDuration int            `json:"estimated_duration"`
	Status            TaskStatus     `json:"status"`
	OutputPath        string         `json:"output_path,omitempty"`
	Metadata          map[string]any `json:"metadata,omitempty"`
}

// Clone returns a deep copy of the task.
func (t *Task) Clone() *Task {
	if t == nil {
		return nil
	}

	clone := *t

	if t.Requirements != nil {
		clone.Requirements = make([]TaskRequirement, len(t.Requirements))
		for i, req := range t.Requirements {
			clone.Requirements[i] = req

			if req.Config != nil {
				clone.Requirements[i].Config = make(map[string]any, len(req.Config))
				for k, v := range req.Config {
					clone.Requirements[i].Config[k] = v
				}
			}
		}
	}

	clone.Dependencies = append([]string(nil), t.Dependencies...)

	if t.Metadata != nil {
		clone.Metadata = make(map[string]any, len(t.Metadata))
		for k, v := range t.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}
