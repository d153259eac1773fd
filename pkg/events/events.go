// Package events defines event types and structures for plan execution
// lifecycle notifications.
package events

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const Topic = "planforge.events" // Topic for plan and task lifecycle events

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Plan run lifecycle events.
	RunStartedEvent   EventType = "run.started"
	RunCompletedEvent EventType = "run.completed"
	RunFailedEvent    EventType = "run.failed"
	RunAbortedEvent   EventType = "run.aborted"
	RunResumedEvent   EventType = "run.resumed"

	// Task lifecycle events.
	TaskStartedEvent  EventType = "task.started"
	TaskFinishedEvent EventType = "task.finished"
	TaskFailedEvent   EventType = "task.failed"
	TaskRetriedEvent  EventType = "task.retried"
	TaskSkippedEvent  EventType = "task.skipped"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	PlanID    string         `json:"plan_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type RunStarted struct {
	BaseEvent

	ProjectName string `json:"project_name"`
	TaskCount   int    `json:"task_count"`
	GroupCount  int    `json:"group_count"`
	Resumed     bool   `json:"resumed"`
}

func (r RunStarted) GetType() EventType {
	return RunStartedEvent
}

type RunCompleted struct {
	BaseEvent

	Status         string        `json:"status"`
	Duration       time.Duration `json:"duration"`
	TasksSucceeded int           `json:"tasks_succeeded"`
	TasksFailed    int           `json:"tasks_failed"`
	TasksSkipped   int           `json:"tasks_skipped"`
}

func (r RunCompleted) GetType() EventType {
	return RunCompletedEvent
}

type RunFailed struct {
	BaseEvent

	Error    string        `json:"error"`
	Duration time.Duration `json:"duration"`
}

func (r RunFailed) GetType() EventType {
	return RunFailedEvent
}

// RunAborted is published when a critical task failure stops the plan before
// all groups have run.
type RunAborted struct {
	BaseEvent

	FailedTaskID   string `json:"failed_task_id"`
	GroupsExecuted int    `json:"groups_executed"`
	GroupsTotal    int    `json:"groups_total"`
}

func (r RunAborted) GetType() EventType {
	return RunAbortedEvent
}

type RunResumed struct {
	BaseEvent

	TasksRestored int `json:"tasks_restored"`
	TasksPending  int `json:"tasks_pending"`
}

func (r RunResumed) GetType() EventType {
	return RunResumedEvent
}

type TaskStarted struct {
	BaseEvent

	TaskID  string `json:"task_id"`
	Group   int    `json:"group"`
	Attempt int    `json:"attempt"`
}

func (t TaskStarted) GetType() EventType {
	return TaskStartedEvent
}

type TaskFinished struct {
	BaseEvent

	TaskID   string        `json:"task_id"`
	Output   any           `json:"output,omitempty"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
}

func (t TaskFinished) GetType() EventType {
	return TaskFinishedEvent
}

type TaskFailed struct {
	BaseEvent

	TaskID   string        `json:"task_id"`
	Error    string        `json:"error"`
	Critical bool          `json:"critical"`
	Duration time.Duration `json:"duration"`
	Attempts int           `json:"attempts"`
}

func (t TaskFailed) GetType() EventType {
	return TaskFailedEvent
}

type TaskRetried struct {
	BaseEvent

	TaskID  string        `json:"task_id"`
	Error   string        `json:"error"`
	Attempt int           `json:"attempt"`
	Delay   time.Duration `json:"delay"`
}

func (t TaskRetried) GetType() EventType {
	return TaskRetriedEvent
}

type TaskSkipped struct {
	BaseEvent

	TaskID string `json:"task_id"`
	Reason string `json:"reason"`
}

func (t TaskSkipped) GetType() EventType {
	return TaskSkippedEvent
}

func NewBaseEvent(eventType EventType, planID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		PlanID:    planID,
		Metadata:  make(map[string]any),
	}
}
