package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// PlanStatus represents the lifecycle state of an execution plan.
type PlanStatus string

const (
	PlanStatusPlanned   PlanStatus = "planned"
	PlanStatusExecuting PlanStatus = "executing"
	PlanStatusCompleted PlanStatus = "completed"
	// PlanStatusPartiallyCompleted means execution finished but at least one
	// task failed or was skipped, or a critical failure aborted the plan.
	PlanStatusPartiallyCompleted PlanStatus = "partially_completed"
	// PlanStatusFailed is only set when the plan is rejected before any task
	// runs (malformed task list or dependency cycle).
	PlanStatusFailed PlanStatus = "failed"
)

// TaskGroup is a set of task IDs with no dependency edges among its members.
// All tasks in a group may run concurrently.
type TaskGroup []string

// ExecutionPlan is the optimizer's output: tasks partitioned into ordered
// groups. A plan is never mutated after optimization; re-planning produces a
// new plan.
type ExecutionPlan struct {
	ID          string     `json:"id"`
	ProjectName string     `json:"project_name" validate:"required"`
	Description string     `json:"description"`
	Tasks       []*Task    `json:"tasks"        validate:"required,min=1,dive"`
	// Groups are emitted in dependency order: every task's group index is
	// strictly greater than the group index of each of its dependencies.
	Groups []TaskGroup `json:"groups"`
	// EstimatedDuration sums, over groups, the longest task estimate within
	// the group (seconds).
	EstimatedDuration int            `json:"estimated_duration"`
	Status            PlanStatus     `json:"status"`
	Metadata          map[string]any `json:"metadata,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// Validate checks the plan's struct constraints, including every task and
// requirement.
func (p *ExecutionPlan) Validate() error {
	return validate.Struct(p)
}

// Clone returns a deep copy of the plan. The engine mutates plan and task
// statuses in place during a run, so callers that need a stable view take a
// snapshot instead of sharing the live plan.
func (p *ExecutionPlan) Clone() *ExecutionPlan {
	if p == nil {
		return nil
	}

	clone := *p

	if p.Tasks != nil {
		clone.Tasks = make([]*Task, len(p.Tasks))
		for i, task := range p.Tasks {
			clone.Tasks[i] = task.Clone()
		}
	}

	if p.Groups != nil {
		clone.Groups = make([]TaskGroup, len(p.Groups))
		for i, group := range p.Groups {
			clone.Groups[i] = append(TaskGroup(nil), group...)
		}
	}

	if p.Metadata != nil {
		clone.Metadata = make(map[string]any, len(p.Metadata))
		for k, v := range p.Metadata {
			clone.Metadata[k] = v
		}
	}

	return &clone
}

// TaskByID returns the task with the given ID, or nil.
func (p *ExecutionPlan) TaskByID(id string) *Task {
	for _, task := range p.Tasks {
		if task.ID == id {
			return task
		}
	}

	return nil
}

// GroupIndex returns the index of the group containing the given task ID,
// or -1 when the task is not assigned to any group.
func (p *ExecutionPlan) GroupIndex(taskID string) int {
	for i, group := range p.Groups {
		for _, id := range group {
			if id == taskID {
				return i
			}
		}
	}

	return -1
}
