package engine

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/pkg/checkpoint/file"
	"github.com/planforge/planforge/pkg/config"
	"github.com/planforge/planforge/pkg/eventbus"
	"github.com/planforge/planforge/pkg/events"
	"github.com/planforge/planforge/pkg/execution"
	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/protocol"
	"github.com/planforge/planforge/pkg/registry"
)

type handlerFunc func(ctx context.Context, task *models.Task, view protocol.ContextView) (any, error)

type funcHandler struct {
	fn handlerFunc
}

func (h *funcHandler) Execute(ctx context.Context, task *models.Task, view protocol.ContextView, _ *slog.Logger) (any, error) {
	return h.fn(ctx, task, view)
}

type funcFactory struct {
	id string
	fn handlerFunc
}

func (f *funcFactory) ID() string             { return f.id }
func (f *funcFactory) Name() string           { return f.id }
func (f *funcFactory) Description() string    { return "test handler" }
func (f *funcFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func (f *funcFactory) Create(_ map[string]any) (protocol.Handler, error) {
	return &funcHandler{fn: f.fn}, nil
}

type capturingBus struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (b *capturingBus) Publish(_ context.Context, _ string, event eventbus.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)

	return nil
}

func (b *capturingBus) types() []events.EventType {
	b.mu.Lock()
	defer b.mu.Unlock()

	types := make([]events.EventType, 0, len(b.events))
	for _, event := range b.events {
		types = append(types, event.GetType())
	}

	return types
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.MaxRetries = 2
	cfg.RetryBaseDelaySeconds = 0.01
	cfg.RetryDelayCeilingSeconds = 0.05
	cfg.PerTaskTimeoutSeconds = 5

	return cfg
}

type harness struct {
	engine  *Engine
	store   *file.Store
	bus     *capturingBus
	execCtx *execution.Context
	plan    *models.ExecutionPlan
}

func newHarness(t *testing.T, cfg config.Config, plan *models.ExecutionPlan, factories ...protocol.HandlerFactory) *harness {
	t.Helper()

	reg := registry.NewRegistry(testLogger())
	for _, factory := range factories {
		reg.RegisterHandler(factory)
	}

	store := file.NewStore(t.TempDir())
	bus := &capturingBus{}

	execCtx, err := execution.NewContext(plan, t.TempDir(), t.TempDir())
	require.NoError(t, err)

	return &harness{
		engine:  NewEngine(cfg, reg, store, bus, testLogger()),
		store:   store,
		bus:     bus,
		execCtx: execCtx,
		plan:    plan,
	}
}

func planTask(id, taskType string, deps ...string) *models.Task {
	return &models.Task{
		ID:           id,
		Name:         "Task " + id,
		Type:         taskType,
		Dependencies: deps,
		Priority:     models.PriorityMedium,
		Status:       models.TaskStatusPending,
	}
}

func newPlan(tasks []*models.Task, groups ...models.TaskGroup) *models.ExecutionPlan {
	return &models.ExecutionPlan{
		ID:          "plan-test0001",
		ProjectName: "test-project",
		Tasks:       tasks,
		Groups:      groups,
		Status:      models.PlanStatusPlanned,
		CreatedAt:   time.Now().UTC(),
	}
}

func succeedFactory(id string) *funcFactory {
	return &funcFactory{id: id, fn: func(_ context.Context, task *models.Task, _ protocol.ContextView) (any, error) {
		return task.ID + " done", nil
	}}
}

func TestRunAllTasksSucceed(t *testing.T) {
	tasks := []*models.Task{
		planTask("a", "work"),
		planTask("b", "work", "a"),
		planTask("c", "work", "a"),
		planTask("d", "work", "b", "c"),
	}
	plan := newPlan(tasks, models.TaskGroup{"a"}, models.TaskGroup{"b", "c"}, models.TaskGroup{"d"})

	h := newHarness(t, testConfig(), plan, succeedFactory("work"))

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, result.Status)
	assert.Equal(t, models.PlanStatusCompleted, plan.Status)
	require.Len(t, result.Results, 4)

	for _, task := range tasks {
		taskResult := result.Results[task.ID]
		assert.True(t, taskResult.Success, task.ID)
		assert.Equal(t, 1, taskResult.Attempts, task.ID)
		assert.Equal(t, models.TaskStatusSucceeded, task.Status, task.ID)
	}

	assert.FileExists(t, result.ReportPath)
}

func TestRunRejectsCyclicPlan(t *testing.T) {
	tasks := []*models.Task{
		planTask("a", "work", "b"),
		planTask("b", "work", "a"),
	}
	plan := newPlan(tasks, models.TaskGroup{"a", "b"})

	h := newHarness(t, testConfig(), plan, succeedFactory("work"))

	_, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.Error(t, err)
	assert.Equal(t, models.PlanStatusFailed, plan.Status)
	assert.Contains(t, h.bus.types(), events.RunFailedEvent)
}

func TestRetryExhaustion(t *testing.T) {
	var invocations atomic.Int32

	flaky := &funcFactory{id: "flaky", fn: func(_ context.Context, _ *models.Task, _ protocol.ContextView) (any, error) {
		invocations.Add(1)

		return nil, protocol.NewRetryable(errors.New("transient"))
	}}

	plan := newPlan([]*models.Task{planTask("a", "flaky")}, models.TaskGroup{"a"})

	cfg := testConfig()
	cfg.MaxRetries = 2

	h := newHarness(t, cfg, plan, flaky)

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, int32(3), invocations.Load())
	assert.Equal(t, models.PlanStatusPartiallyCompleted, result.Status)

	taskResult := result.Results["a"]
	assert.False(t, taskResult.Success)
	assert.Equal(t, 3, taskResult.Attempts)
	assert.Equal(t, models.TaskStatusFailed, plan.TaskByID("a").Status)
}

func TestRetryThenSuccess(t *testing.T) {
	var invocations atomic.Int32

	eventual := &funcFactory{id: "eventual", fn: func(_ context.Context, _ *models.Task, _ protocol.ContextView) (any, error) {
		if invocations.Add(1) < 3 {
			return nil, protocol.NewRetryable(errors.New("not yet"))
		}

		return "ok", nil
	}}

	plan := newPlan([]*models.Task{planTask("a", "eventual")}, models.TaskGroup{"a"})

	h := newHarness(t, testConfig(), plan, eventual)

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, result.Status)
	assert.Equal(t, 3, result.Results["a"].Attempts)
	assert.Contains(t, h.bus.types(), events.TaskRetriedEvent)
}

func TestCriticalFailureAbortsLaterGroups(t *testing.T) {
	var siblingsStarted sync.WaitGroup

	siblingsStarted.Add(3)

	var completed sync.Map

	critical := &funcFactory{id: "critical", fn: func(_ context.Context, _ *models.Task, _ protocol.ContextView) (any, error) {
		// Wait until every sibling is past its abort check so they all run
		// to completion.
		siblingsStarted.Wait()

		return nil, protocol.NewCritical(errors.New("unrecoverable"))
	}}

	sibling := &funcFactory{id: "sibling", fn: func(_ context.Context, task *models.Task, _ protocol.ContextView) (any, error) {
		siblingsStarted.Done()
		time.Sleep(20 * time.Millisecond)
		completed.Store(task.ID, true)

		return task.ID + " done", nil
	}}

	tasks := []*models.Task{
		planTask("x", "critical"),
		planTask("y", "sibling"),
		planTask("z", "sibling"),
		planTask("w", "sibling"),
		planTask("v", "sibling"),
	}
	plan := newPlan(tasks,
		models.TaskGroup{"x", "y", "z", "w"},
		models.TaskGroup{"v"},
	)

	cfg := testConfig()
	cfg.MaxParallelTasks = 4
	cfg.MaxRetries = 0

	h := newHarness(t, cfg, plan, critical, sibling)

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusPartiallyCompleted, result.Status)

	for _, id := range []string{"y", "z", "w"} {
		ran, _ := completed.Load(id)
		assert.Equal(t, true, ran, id)
		assert.True(t, result.Results[id].Success, id)
	}

	vResult := result.Results["v"]
	assert.True(t, vResult.Skipped)
	assert.Equal(t, models.TaskStatusSkipped, plan.TaskByID("v").Status)
	assert.Contains(t, h.bus.types(), events.RunAbortedEvent)
}

func TestNonCriticalFailureSkipsDependentsOnly(t *testing.T) {
	failing := &funcFactory{id: "failing", fn: func(_ context.Context, _ *models.Task, _ protocol.ContextView) (any, error) {
		return nil, protocol.NewNonCritical(errors.New("isolated failure"))
	}}

	tasks := []*models.Task{
		planTask("a", "failing"),
		planTask("b", "work", "a"),
		planTask("c", "work"),
		planTask("d", "work", "b"),
	}
	plan := newPlan(tasks,
		models.TaskGroup{"a", "c"},
		models.TaskGroup{"b"},
		models.TaskGroup{"d"},
	)

	cfg := testConfig()
	cfg.MaxRetries = 0

	h := newHarness(t, cfg, plan, failing, succeedFactory("work"))

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusPartiallyCompleted, result.Status)
	assert.False(t, result.Results["a"].Success)
	assert.False(t, result.Results["a"].Skipped)
	assert.True(t, result.Results["c"].Success)

	assert.True(t, result.Results["b"].Skipped)
	assert.Contains(t, result.Results["b"].Error, "dependency a failed")

	// Transitive dependent is skipped through its skipped parent.
	assert.True(t, result.Results["d"].Skipped)
	assert.Contains(t, result.Results["d"].Error, "dependency b was skipped")
}

func TestContinueOnErrorKeepsSchedulingGroups(t *testing.T) {
	critical := &funcFactory{id: "critical", fn: func(_ context.Context, _ *models.Task, _ protocol.ContextView) (any, error) {
		return nil, protocol.NewCritical(errors.New("unrecoverable"))
	}}

	tasks := []*models.Task{
		planTask("a", "critical"),
		planTask("b", "work"),
	}
	plan := newPlan(tasks, models.TaskGroup{"a"}, models.TaskGroup{"b"})

	cfg := testConfig()
	cfg.MaxRetries = 0
	cfg.ContinueOnError = true

	h := newHarness(t, cfg, plan, critical, succeedFactory("work"))

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusPartiallyCompleted, result.Status)
	assert.True(t, result.Results["b"].Success)
	assert.NotContains(t, h.bus.types(), events.RunAbortedEvent)
}

func TestUnregisteredTaskTypeFailsTask(t *testing.T) {
	plan := newPlan([]*models.Task{planTask("a", "unknown")}, models.TaskGroup{"a"})

	h := newHarness(t, testConfig(), plan)

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusPartiallyCompleted, result.Status)
	assert.Contains(t, result.Results["a"].Error, "not registered")
	assert.Equal(t, 1, result.Results["a"].Attempts)
}

func TestTimeoutIsRetryable(t *testing.T) {
	var invocations atomic.Int32

	stuck := &funcFactory{id: "stuck", fn: func(ctx context.Context, _ *models.Task, _ protocol.ContextView) (any, error) {
		invocations.Add(1)
		<-ctx.Done()

		return nil, ctx.Err()
	}}

	plan := newPlan([]*models.Task{planTask("a", "stuck")}, models.TaskGroup{"a"})

	cfg := testConfig()
	cfg.MaxRetries = 1
	cfg.PerTaskTimeoutSeconds = 0.05

	h := newHarness(t, cfg, plan, stuck)

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, int32(2), invocations.Load())
	assert.Contains(t, result.Results["a"].Error, "timed out")
}

func TestConcurrencyBound(t *testing.T) {
	var running, peak atomic.Int32

	tracked := &funcFactory{id: "tracked", fn: func(_ context.Context, _ *models.Task, _ protocol.ContextView) (any, error) {
		now := running.Add(1)

		for {
			current := peak.Load()
			if now <= current || peak.CompareAndSwap(current, now) {
				break
			}
		}

		time.Sleep(20 * time.Millisecond)
		running.Add(-1)

		return "ok", nil
	}}

	tasks := []*models.Task{
		planTask("a", "tracked"),
		planTask("b", "tracked"),
		planTask("c", "tracked"),
		planTask("d", "tracked"),
	}
	plan := newPlan(tasks, models.TaskGroup{"a", "b", "c", "d"})

	cfg := testConfig()
	cfg.MaxParallelTasks = 2

	h := newHarness(t, cfg, plan, tracked)

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusCompleted, result.Status)
	assert.LessOrEqual(t, peak.Load(), int32(2))
}

func TestResumeSkipsCheckpointedTasks(t *testing.T) {
	var invocationsA atomic.Int32

	handlerA := &funcFactory{id: "first", fn: func(_ context.Context, _ *models.Task, _ protocol.ContextView) (any, error) {
		invocationsA.Add(1)

		return "fresh", nil
	}}

	downstream := &funcFactory{id: "second", fn: func(_ context.Context, _ *models.Task, view protocol.ContextView) (any, error) {
		result, ok := view.Result("a")
		if !ok {
			return nil, errors.New("upstream result missing")
		}

		return result.Output, nil
	}}

	tasks := []*models.Task{
		planTask("a", "first"),
		planTask("b", "second", "a"),
	}
	plan := newPlan(tasks, models.TaskGroup{"a"}, models.TaskGroup{"b"})

	h := newHarness(t, testConfig(), plan, handlerA, downstream)

	require.NoError(t, h.store.Save(context.Background(), plan.ID, "a", models.TaskResult{
		TaskID:   "a",
		Success:  true,
		Output:   "restored",
		Attempts: 1,
	}))

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, int32(0), invocationsA.Load())
	assert.Equal(t, 1, result.Restored)
	assert.Equal(t, models.PlanStatusCompleted, result.Status)
	assert.Equal(t, "restored", result.Results["b"].Output)
	assert.Contains(t, h.bus.types(), events.RunResumedEvent)
}

func TestResumeHonorsRecordedFailure(t *testing.T) {
	tasks := []*models.Task{
		planTask("a", "work"),
		planTask("b", "work", "a"),
	}
	plan := newPlan(tasks, models.TaskGroup{"a"}, models.TaskGroup{"b"})

	h := newHarness(t, testConfig(), plan, succeedFactory("work"))

	require.NoError(t, h.store.Save(context.Background(), plan.ID, "a", models.TaskResult{
		TaskID:   "a",
		Error:    "failed last run",
		Attempts: 3,
	}))

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusPartiallyCompleted, result.Status)
	assert.True(t, result.Results["b"].Skipped)
	assert.Equal(t, models.TaskStatusFailed, plan.TaskByID("a").Status)
}

func TestRunPublishesLifecycleEvents(t *testing.T) {
	plan := newPlan([]*models.Task{planTask("a", "work")}, models.TaskGroup{"a"})

	h := newHarness(t, testConfig(), plan, succeedFactory("work"))

	_, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	types := h.bus.types()
	assert.Contains(t, types, events.RunStartedEvent)
	assert.Contains(t, types, events.TaskStartedEvent)
	assert.Contains(t, types, events.TaskFinishedEvent)
	assert.Contains(t, types, events.RunCompletedEvent)
}

func TestCheckpointWrittenPerTerminalState(t *testing.T) {
	failing := &funcFactory{id: "failing", fn: func(_ context.Context, _ *models.Task, _ protocol.ContextView) (any, error) {
		return nil, protocol.NewNonCritical(errors.New("isolated failure"))
	}}

	tasks := []*models.Task{
		planTask("a", "failing"),
		planTask("b", "work", "a"),
		planTask("c", "work"),
	}
	plan := newPlan(tasks, models.TaskGroup{"a", "c"}, models.TaskGroup{"b"})

	cfg := testConfig()
	cfg.MaxRetries = 0

	h := newHarness(t, cfg, plan, failing, succeedFactory("work"))

	_, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	cp, err := h.store.Load(context.Background(), plan.ID)
	require.NoError(t, err)

	byTask := cp.ResultByTask()
	require.Len(t, byTask, 3)
	assert.False(t, byTask["a"].Success)
	assert.True(t, byTask["c"].Success)
	assert.True(t, byTask["b"].Skipped)
}

type configRecordingFactory struct {
	id string

	mu      sync.Mutex
	configs []map[string]any
}

func (f *configRecordingFactory) ID() string             { return f.id }
func (f *configRecordingFactory) Name() string           { return f.id }
func (f *configRecordingFactory) Description() string    { return "records its config" }
func (f *configRecordingFactory) Schema() map[string]any { return map[string]any{"type": "object"} }

func (f *configRecordingFactory) Create(config map[string]any) (protocol.Handler, error) {
	f.mu.Lock()
	f.configs = append(f.configs, config)
	f.mu.Unlock()

	return &funcHandler{fn: func(_ context.Context, task *models.Task, _ protocol.ContextView) (any, error) {
		return task.ID + " done", nil
	}}, nil
}

func TestTemplatedConfigRendersRunState(t *testing.T) {
	recorder := &configRecordingFactory{id: "templated"}

	upstream := &funcFactory{id: "work", fn: func(_ context.Context, _ *models.Task, view protocol.ContextView) (any, error) {
		view.SetVariable("scaffold_root", "/srv/test-project/src")

		return map[string]any{"files": 2.0}, nil
	}}

	tasks := []*models.Task{
		planTask("a", "work"),
		planTask("b", "templated", "a"),
	}
	tasks[1].Metadata = map[string]any{
		"target":   "{{ .vars.scaffold_root }}",
		"upstream": "{{ .results.a.success }}",
		"plain":    "untouched",
	}
	plan := newPlan(tasks, models.TaskGroup{"a"}, models.TaskGroup{"b"})

	h := newHarness(t, testConfig(), plan, upstream, recorder)

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)
	assert.Equal(t, models.PlanStatusCompleted, result.Status)

	require.Len(t, recorder.configs, 1)
	cfg := recorder.configs[0]
	assert.Equal(t, "/srv/test-project/src", cfg["target"])
	assert.Equal(t, true, cfg["upstream"])
	assert.Equal(t, "untouched", cfg["plain"])
}

func TestTemplatedConfigRenderFailureFailsTask(t *testing.T) {
	recorder := &configRecordingFactory{id: "templated"}

	tasks := []*models.Task{planTask("a", "templated")}
	tasks[0].Metadata = map[string]any{"target": "{{ .broken"}
	plan := newPlan(tasks, models.TaskGroup{"a"})

	h := newHarness(t, testConfig(), plan, recorder)

	result, err := h.engine.Run(context.Background(), plan, h.execCtx)
	require.NoError(t, err)

	assert.Equal(t, models.PlanStatusPartiallyCompleted, result.Status)
	assert.Empty(t, recorder.configs)

	taskResult := result.Results["a"]
	assert.False(t, taskResult.Success)
	assert.Contains(t, taskResult.Error, "failed to render config")
	assert.Equal(t, 1, taskResult.Attempts)
}
