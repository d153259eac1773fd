package web

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planforge/planforge/pkg/checkpoint"
	"github.com/planforge/planforge/pkg/config"
	"github.com/planforge/planforge/pkg/engine"
	"github.com/planforge/planforge/pkg/eventbus"
	"github.com/planforge/planforge/pkg/execution"
	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/planner"
	"github.com/planforge/planforge/pkg/registry"
)

// Run tracks one plan execution started through the API.
type Run struct {
	ID        string
	CreatedAt time.Time

	mu        sync.RWMutex
	plan      *models.ExecutionPlan
	status    models.PlanStatus
	result    *engine.RunResult
	err       string
	completed time.Time
}

// Plan returns a snapshot of the run's plan. The engine mutates the live plan
// while the run executes, so handlers only ever see the copy taken when the
// run started and the one taken after execution finished.
func (r *Run) Plan() *models.ExecutionPlan {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.plan
}

func (r *Run) Status() models.PlanStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.status
}

func (r *Run) Result() *engine.RunResult {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.result
}

func (r *Run) Err() string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.err
}

func (r *Run) Completed() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.completed
}

func (r *Run) finish(plan *models.ExecutionPlan, result *engine.RunResult, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// The engine is done writing, so this snapshot carries the final statuses.
	r.plan = plan.Clone()
	r.completed = time.Now().UTC()

	if err != nil {
		r.status = models.PlanStatusFailed
		r.err = err.Error()

		return
	}

	r.status = result.Status
	r.result = result
}

// RunManager plans and executes runs started through the API and keeps them
// queryable in memory.
type RunManager struct {
	cfg      config.Config
	registry *registry.Registry
	store    checkpoint.Store
	bus      eventbus.EventPublisher
	logger   *slog.Logger

	mu   sync.RWMutex
	runs map[string]*Run
}

func NewRunManager(cfg config.Config, reg *registry.Registry, store checkpoint.Store, bus eventbus.EventPublisher, logger *slog.Logger) *RunManager {
	return &RunManager{
		cfg:      cfg,
		registry: reg,
		store:    store,
		bus:      bus,
		logger:   logger.With("module", "run_manager"),
		runs:     make(map[string]*Run),
	}
}

// StartRun plans the request synchronously and executes the plan in the
// background. Planning errors are returned to the caller; execution outcomes
// are reported through the run's status.
func (m *RunManager) StartRun(ctx context.Context, req CreateRunRequest) (*Run, error) {
	cfg := m.overridden(req)

	p := planner.NewPlanner(nil, cfg, m.logger)

	var (
		plan *models.ExecutionPlan
		err  error
	)

	if len(req.Tasks) > 0 {
		name := req.ProjectName
		if name == "" {
			name = "project"
		}

		plan, err = p.PlanTasks(ctx, name, req.Tasks)
	} else {
		plan, err = p.CreatePlan(ctx, req.Request)
	}

	if err != nil {
		return nil, err
	}

	execCtx, err := execution.NewContext(plan, cfg.WorkDirectory, cfg.OutputDirectory)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare run directories: %w", err)
	}

	run := &Run{
		ID:        "run-" + uuid.New().String()[:8],
		plan:      plan.Clone(),
		CreatedAt: time.Now().UTC(),
		status:    models.PlanStatusExecuting,
	}

	m.mu.Lock()
	m.runs[run.ID] = run
	m.mu.Unlock()

	eng := engine.NewEngine(cfg, m.registry, m.store, m.bus, m.logger)

	// The run outlives the HTTP request that started it.
	go func() {
		result, runErr := eng.Run(context.Background(), plan, execCtx)
		run.finish(plan, result, runErr)

		if runErr != nil {
			m.logger.Error("Run failed", "run_id", run.ID, "plan_id", plan.ID, "error", runErr)
		}
	}()

	return run, nil
}

// GetRun returns a tracked run by ID.
func (m *RunManager) GetRun(id string) (*Run, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	run, ok := m.runs[id]

	return run, ok
}

// ListRuns returns all tracked runs, newest first.
func (m *RunManager) ListRuns() []*Run {
	m.mu.RLock()
	defer m.mu.RUnlock()

	runs := make([]*Run, 0, len(m.runs))
	for _, run := range m.runs {
		runs = append(runs, run)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	return runs
}

// GetPlan returns the plan snapshot for any tracked run.
func (m *RunManager) GetPlan(planID string) (*models.ExecutionPlan, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, run := range m.runs {
		if plan := run.Plan(); plan.ID == planID {
			return plan, true
		}
	}

	return nil, false
}

// HealthCheck verifies the checkpoint store is reachable.
func (m *RunManager) HealthCheck(ctx context.Context) error {
	return m.store.HealthCheck(ctx)
}

func (m *RunManager) overridden(req CreateRunRequest) config.Config {
	cfg := m.cfg

	if req.MaxParallelTasks > 0 {
		cfg.MaxParallelTasks = req.MaxParallelTasks
	}

	if req.MaxRetries != nil {
		cfg.MaxRetries = *req.MaxRetries
	}

	if req.ContinueOnError != nil {
		cfg.ContinueOnError = *req.ContinueOnError
	}

	return cfg
}
