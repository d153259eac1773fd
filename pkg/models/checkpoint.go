package models

import "time"

// CheckpointRecord is one persisted per-task outcome.
type CheckpointRecord struct {
	TaskID    string     `json:"task_id"`
	Result    TaskResult `json:"result"`
	Timestamp time.Time  `json:"timestamp"`
}

// Checkpoint is the durable record of a plan's completed tasks. It is appended
// after every task reaches a terminal state and read once at run start so an
// interrupted run can resume without re-executing finished tasks.
type Checkpoint struct {
	PlanID  string             `json:"plan_id"`
	Records []CheckpointRecord `json:"records"`
}

// ResultByTask returns the recorded results keyed by task ID. Later records
// overwrite earlier ones for the same task.
func (c *Checkpoint) ResultByTask() map[string]TaskResult {
	results := make(map[string]TaskResult, len(c.Records))
	for _, record := range c.Records {
		results[record.TaskID] = record.Result
	}

	return results
}
