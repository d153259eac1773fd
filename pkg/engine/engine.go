// Package engine executes optimized plans: groups strictly in order, bounded
// concurrency inside a group, retries with exponential backoff, checkpointing
// after every terminal task state.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/planforge/planforge/pkg/checkpoint"
	"github.com/planforge/planforge/pkg/config"
	"github.com/planforge/planforge/pkg/eventbus"
	"github.com/planforge/planforge/pkg/events"
	"github.com/planforge/planforge/pkg/execution"
	"github.com/planforge/planforge/pkg/graph"
	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/protocol"
	"github.com/planforge/planforge/pkg/registry"
	"github.com/planforge/planforge/pkg/template"
)

// Engine runs execution plans. Handler errors never cross the task boundary:
// every failure becomes a TaskResult and a state transition.
type Engine struct {
	cfg      config.Config
	registry *registry.Registry
	store    checkpoint.Store
	bus      eventbus.EventPublisher
	logger   *slog.Logger
}

// RunResult is the plan-level outcome of one run.
type RunResult struct {
	PlanID     string                       `json:"plan_id"`
	Status     models.PlanStatus            `json:"status"`
	Results    map[string]models.TaskResult `json:"results"`
	Duration   time.Duration                `json:"duration"`
	Restored   int                          `json:"restored"`
	ReportPath string                       `json:"report_path,omitempty"`
}

func NewEngine(cfg config.Config, reg *registry.Registry, store checkpoint.Store, bus eventbus.EventPublisher, logger *slog.Logger) *Engine {
	return &Engine{
		cfg:      cfg,
		registry: reg,
		store:    store,
		bus:      bus,
		logger:   logger.With("module", "engine"),
	}
}

// Run executes the plan's groups in order. Graph validation errors propagate
// synchronously before any task runs; after that the run always finishes with
// a plan-level outcome and the per-task result list.
func (e *Engine) Run(ctx context.Context, plan *models.ExecutionPlan, execCtx *execution.Context) (*RunResult, error) {
	startedAt := time.Now()
	logger := e.logger.With("plan_id", plan.ID)

	g, err := graph.New(plan.Tasks)
	if err != nil {
		return nil, e.reject(ctx, plan, startedAt, err)
	}

	if _, err := g.Order(); err != nil {
		return nil, e.reject(ctx, plan, startedAt, err)
	}

	restored, err := e.restore(ctx, plan, execCtx)
	if err != nil {
		return nil, err
	}

	plan.Status = models.PlanStatusExecuting

	e.publish(ctx, plan.ID, events.RunStarted{
		BaseEvent:   events.NewBaseEvent(events.RunStartedEvent, plan.ID),
		ProjectName: plan.ProjectName,
		TaskCount:   len(plan.Tasks),
		GroupCount:  len(plan.Groups),
		Resumed:     restored > 0,
	})

	logger.InfoContext(ctx, "Starting plan execution",
		"tasks", len(plan.Tasks), "groups", len(plan.Groups), "restored", restored)

	sem := semaphore.NewWeighted(int64(e.cfg.MaxParallelTasks))

	var aborted atomic.Bool

	var abortedBy atomic.Value

	for i, group := range plan.Groups {
		if aborted.Load() {
			e.skipGroup(ctx, plan, group, execCtx, "plan aborted by critical failure")

			continue
		}

		logger.InfoContext(ctx, "Executing group", "group", i, "tasks", len(group))

		var wg sync.WaitGroup

		for _, taskID := range group {
			task := plan.TaskByID(taskID)
			if task == nil {
				continue
			}

			if _, done := execCtx.Result(taskID); done {
				continue
			}

			wg.Add(1)

			go func(task *models.Task, group int) {
				defer wg.Done()

				if err := sem.Acquire(ctx, 1); err != nil {
					e.recordSkip(ctx, task, execCtx, "run cancelled before task started")

					return
				}
				defer sem.Release(1)

				if aborted.Load() {
					e.recordSkip(ctx, task, execCtx, "plan aborted by critical failure")

					return
				}

				if reason, blocked := e.blockedBy(g, task, execCtx); blocked {
					e.recordSkip(ctx, task, execCtx, reason)

					return
				}

				critical := e.runTask(ctx, task, group, execCtx)
				if critical && !e.cfg.ContinueOnError {
					aborted.Store(true)
					abortedBy.CompareAndSwap(nil, task.ID)
				}
			}(task, i)
		}

		wg.Wait()
	}

	result := &RunResult{
		PlanID:   plan.ID,
		Results:  execCtx.Results(),
		Duration: time.Since(startedAt),
		Restored: restored,
	}
	result.Status = planStatus(result.Results)
	plan.Status = result.Status

	if aborted.Load() {
		failedTask, _ := abortedBy.Load().(string)
		e.publish(ctx, plan.ID, events.RunAborted{
			BaseEvent:      events.NewBaseEvent(events.RunAbortedEvent, plan.ID),
			FailedTaskID:   failedTask,
			GroupsExecuted: executedGroups(plan, result.Results),
			GroupsTotal:    len(plan.Groups),
		})
	}

	succeeded, failed, skipped := tally(result.Results)

	e.publish(ctx, plan.ID, events.RunCompleted{
		BaseEvent:      events.NewBaseEvent(events.RunCompletedEvent, plan.ID),
		Status:         string(result.Status),
		Duration:       result.Duration,
		TasksSucceeded: succeeded,
		TasksFailed:    failed,
		TasksSkipped:   skipped,
	})

	reportPath, err := e.writeReport(plan, execCtx, result, startedAt)
	if err != nil {
		logger.ErrorContext(ctx, "Failed to write execution report", "error", err)
	} else {
		result.ReportPath = reportPath
	}

	logger.InfoContext(ctx, "Plan execution finished",
		"status", result.Status, "succeeded", succeeded, "failed", failed,
		"skipped", skipped, "duration", result.Duration)

	return result, nil
}

// reject marks the plan failed before any task runs.
func (e *Engine) reject(ctx context.Context, plan *models.ExecutionPlan, startedAt time.Time, err error) error {
	plan.Status = models.PlanStatusFailed

	wrapped := fmt.Errorf("plan rejected: %w", err)

	e.publish(ctx, plan.ID, events.RunFailed{
		BaseEvent: events.NewBaseEvent(events.RunFailedEvent, plan.ID),
		Error:     wrapped.Error(),
		Duration:  time.Since(startedAt),
	})

	return wrapped
}

// restore loads checkpoint records and replays them into the plan and the
// execution context. Restored tasks never invoke their handlers again.
func (e *Engine) restore(ctx context.Context, plan *models.ExecutionPlan, execCtx *execution.Context) (int, error) {
	cp, err := e.store.Load(ctx, plan.ID)
	if err != nil {
		return 0, fmt.Errorf("failed to load checkpoint: %w", err)
	}

	restored := 0

	for taskID, result := range cp.ResultByTask() {
		task := plan.TaskByID(taskID)
		if task == nil {
			continue
		}

		execCtx.SetResult(result)
		task.Status = statusFor(result)
		restored++
	}

	if restored > 0 {
		e.publish(ctx, plan.ID, events.RunResumed{
			BaseEvent:     events.NewBaseEvent(events.RunResumedEvent, plan.ID),
			TasksRestored: restored,
			TasksPending:  len(plan.Tasks) - restored,
		})
	}

	return restored, nil
}

// runTask drives one task through its attempts and records the terminal
// result. It reports whether the task failed critically.
func (e *Engine) runTask(ctx context.Context, task *models.Task, group int, execCtx *execution.Context) bool {
	logger := e.logger.With("plan_id", execCtx.PlanID(), "task_id", task.ID, "task_type", task.Type)
	startedAt := time.Now()

	// Failures before the handler ever runs still count as one attempt.
	config, err := handlerConfig(task, execCtx)
	if err != nil {
		e.recordFailure(ctx, task, execCtx, startedAt, 1, err)

		return false
	}

	handler, err := e.registry.CreateHandler(task.Type, config)
	if err != nil {
		e.recordFailure(ctx, task, execCtx, startedAt, 1, err)

		return false
	}

	task.Status = models.TaskStatusRunning

	e.publish(ctx, execCtx.PlanID(), events.TaskStarted{
		BaseEvent: events.NewBaseEvent(events.TaskStartedEvent, execCtx.PlanID()),
		TaskID:    task.ID,
		Group:     group,
		Attempt:   1,
	})

	maxAttempts := e.cfg.MaxRetries + 1

	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		output, err := e.invoke(ctx, handler, task, execCtx, logger)
		if err == nil {
			e.recordSuccess(ctx, task, execCtx, startedAt, attempt, output)

			return false
		}

		lastErr = err

		if !protocol.IsRetryable(err) || attempt == maxAttempts {
			e.recordFailure(ctx, task, execCtx, startedAt, attempt, err)

			return protocol.IsCritical(err)
		}

		task.Status = models.TaskStatusRetrying
		delay := e.backoff(attempt)

		logger.WarnContext(ctx, "Task failed, retrying",
			"attempt", attempt, "delay", delay, "error", err)

		e.publish(ctx, execCtx.PlanID(), events.TaskRetried{
			BaseEvent: events.NewBaseEvent(events.TaskRetriedEvent, execCtx.PlanID()),
			TaskID:    task.ID,
			Error:     err.Error(),
			Attempt:   attempt,
			Delay:     delay,
		})

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			e.recordFailure(ctx, task, execCtx, startedAt, attempt, ctx.Err())

			return false
		}

		task.Status = models.TaskStatusRunning
	}

	// Unreachable: the loop always returns on the last attempt.
	e.recordFailure(ctx, task, execCtx, startedAt, maxAttempts, lastErr)

	return protocol.IsCritical(lastErr)
}

// invoke runs one handler attempt under the per-task timeout. A deadline hit
// is reported as a transient failure so the retry policy applies.
func (e *Engine) invoke(ctx context.Context, handler protocol.Handler, task *models.Task, execCtx *execution.Context, logger *slog.Logger) (any, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, e.cfg.PerTaskTimeout())
	defer cancel()

	output, err := handler.Execute(attemptCtx, task, execCtx, logger)
	if err != nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return nil, protocol.NewRetryablef("task timed out after %s: %w", e.cfg.PerTaskTimeout(), err)
	}

	return output, err
}

// backoff returns the delay before the next attempt, doubling per attempt and
// capped at the configured ceiling.
func (e *Engine) backoff(attempt int) time.Duration {
	delay := e.cfg.RetryBaseDelay() << (attempt - 1)
	if ceiling := e.cfg.RetryDelayCeiling(); delay > ceiling {
		delay = ceiling
	}

	return delay
}

// blockedBy reports whether any dependency of the task is missing a
// successful result.
func (e *Engine) blockedBy(g *graph.Graph, task *models.Task, execCtx *execution.Context) (string, bool) {
	for _, dep := range g.Dependencies(task.ID) {
		result, ok := execCtx.Result(dep)
		if !ok {
			return fmt.Sprintf("dependency %s has no result", dep), true
		}

		if !result.Success {
			if result.Skipped {
				return fmt.Sprintf("dependency %s was skipped", dep), true
			}

			return fmt.Sprintf("dependency %s failed", dep), true
		}
	}

	return "", false
}

func (e *Engine) skipGroup(ctx context.Context, plan *models.ExecutionPlan, group models.TaskGroup, execCtx *execution.Context, reason string) {
	for _, taskID := range group {
		task := plan.TaskByID(taskID)
		if task == nil {
			continue
		}

		if _, done := execCtx.Result(taskID); done {
			continue
		}

		e.recordSkip(ctx, task, execCtx, reason)
	}
}

func (e *Engine) recordSuccess(ctx context.Context, task *models.Task, execCtx *execution.Context, startedAt time.Time, attempts int, output any) {
	task.Status = models.TaskStatusSucceeded

	result := models.TaskResult{
		TaskID:    task.ID,
		Success:   true,
		Output:    output,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Attempts:  attempts,
	}

	e.record(ctx, execCtx, result)

	e.publish(ctx, execCtx.PlanID(), events.TaskFinished{
		BaseEvent: events.NewBaseEvent(events.TaskFinishedEvent, execCtx.PlanID()),
		TaskID:    task.ID,
		Output:    output,
		Duration:  result.Duration,
		Attempts:  attempts,
	})
}

func (e *Engine) recordFailure(ctx context.Context, task *models.Task, execCtx *execution.Context, startedAt time.Time, attempts int, err error) {
	task.Status = models.TaskStatusFailed

	result := models.TaskResult{
		TaskID:    task.ID,
		Error:     err.Error(),
		StartedAt: startedAt,
		Duration:  time.Since(startedAt),
		Attempts:  attempts,
	}

	e.record(ctx, execCtx, result)

	e.publish(ctx, execCtx.PlanID(), events.TaskFailed{
		BaseEvent: events.NewBaseEvent(events.TaskFailedEvent, execCtx.PlanID()),
		TaskID:    task.ID,
		Error:     err.Error(),
		Critical:  protocol.IsCritical(err),
		Duration:  result.Duration,
		Attempts:  attempts,
	})

	e.logger.ErrorContext(ctx, "Task failed",
		"plan_id", execCtx.PlanID(), "task_id", task.ID,
		"attempts", attempts, "error", err)
}

func (e *Engine) recordSkip(ctx context.Context, task *models.Task, execCtx *execution.Context, reason string) {
	task.Status = models.TaskStatusSkipped

	result := models.TaskResult{
		TaskID:  task.ID,
		Skipped: true,
		Error:   reason,
	}

	e.record(ctx, execCtx, result)

	e.publish(ctx, execCtx.PlanID(), events.TaskSkipped{
		BaseEvent: events.NewBaseEvent(events.TaskSkippedEvent, execCtx.PlanID()),
		TaskID:    task.ID,
		Reason:    reason,
	})
}

// record stores the terminal result in the shared context and appends it to
// the checkpoint before the run moves on.
func (e *Engine) record(ctx context.Context, execCtx *execution.Context, result models.TaskResult) {
	execCtx.SetResult(result)

	if err := e.store.Save(ctx, execCtx.PlanID(), result.TaskID, result); err != nil {
		e.logger.ErrorContext(ctx, "Failed to checkpoint task result",
			"plan_id", execCtx.PlanID(), "task_id", result.TaskID, "error", err)
	}
}

func (e *Engine) publish(ctx context.Context, planID string, event eventbus.Event) {
	if e.bus == nil {
		return
	}

	if err := e.bus.Publish(ctx, planID, event); err != nil {
		e.logger.ErrorContext(ctx, "Failed to publish event",
			"plan_id", planID, "event_type", event.GetType(), "error", err)
	}
}

// handlerConfig merges task metadata with requirement configs and renders
// templated string values against the shared run state.
func handlerConfig(task *models.Task, execCtx *execution.Context) (map[string]any, error) {
	cfg := make(map[string]any, len(task.Metadata))
	for k, v := range task.Metadata {
		cfg[k] = v
	}

	for _, req := range task.Requirements {
		for k, v := range req.Config {
			cfg[k] = v
		}
	}

	for k, v := range cfg {
		raw, ok := v.(string)
		if !ok || !template.NeedsTemplating(raw) {
			continue
		}

		rendered, err := template.RenderWithContext(raw, execCtx)
		if err != nil {
			return nil, fmt.Errorf("failed to render config key %q for task %s: %w", k, task.ID, err)
		}

		cfg[k] = rendered
	}

	return cfg, nil
}

func statusFor(result models.TaskResult) models.TaskStatus {
	switch {
	case result.Skipped:
		return models.TaskStatusSkipped
	case result.Success:
		return models.TaskStatusSucceeded
	default:
		return models.TaskStatusFailed
	}
}

func planStatus(results map[string]models.TaskResult) models.PlanStatus {
	for _, result := range results {
		if !result.Success {
			return models.PlanStatusPartiallyCompleted
		}
	}

	return models.PlanStatusCompleted
}

func tally(results map[string]models.TaskResult) (succeeded, failed, skipped int) {
	for _, result := range results {
		switch {
		case result.Success:
			succeeded++
		case result.Skipped:
			skipped++
		default:
			failed++
		}
	}

	return succeeded, failed, skipped
}

func executedGroups(plan *models.ExecutionPlan, results map[string]models.TaskResult) int {
	executed := 0

	for _, group := range plan.Groups {
		ran := false

		for _, taskID := range group {
			result, ok := results[taskID]
			if ok && !result.Skipped {
				ran = true

				break
			}
		}

		if ran {
			executed++
		}
	}

	return executed
}
