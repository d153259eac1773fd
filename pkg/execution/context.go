// Package execution holds the shared, mutable state of one plan run.
package execution

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/planforge/planforge/pkg/models"
)

// Context is the run-scoped container shared by reference across every task in
// a run. Each map has its own lock so concurrent tasks touching unrelated
// state do not serialize; critical sections cover single map operations, never
// handler execution.
type Context struct {
	planID    string
	workDir   string
	outputDir string

	varsMu    sync.RWMutex
	variables map[string]any

	cacheMu sync.RWMutex
	cache   map[string]any

	resultsMu sync.RWMutex
	results   map[string]models.TaskResult
}

// NewContext creates the execution context for a plan and ensures its work and
// output directories exist. Directories are namespaced by project name; task
// handlers further namespace their files by task ID.
func NewContext(plan *models.ExecutionPlan, workRoot, outputRoot string) (*Context, error) {
	workDir := filepath.Join(workRoot, plan.ProjectName)
	outputDir := filepath.Join(outputRoot, plan.ProjectName)

	for _, dir := range []string{workDir, outputDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create run directory %s: %w", dir, err)
		}
	}

	return &Context{
		planID:    plan.ID,
		workDir:   workDir,
		outputDir: outputDir,
		variables: map[string]any{
			"project_name": plan.ProjectName,
			"description":  plan.Description,
		},
		cache:   make(map[string]any),
		results: make(map[string]models.TaskResult),
	}, nil
}

func (c *Context) PlanID() string    { return c.planID }
func (c *Context) WorkDir() string   { return c.workDir }
func (c *Context) OutputDir() string { return c.outputDir }

// Variable returns the value stored under key.
func (c *Context) Variable(key string) (any, bool) {
	c.varsMu.RLock()
	defer c.varsMu.RUnlock()

	value, ok := c.variables[key]

	return value, ok
}

// SetVariable stores a value under key.
func (c *Context) SetVariable(key string, value any) {
	c.varsMu.Lock()
	defer c.varsMu.Unlock()

	c.variables[key] = value
}

// Variables returns a snapshot copy of all variables.
func (c *Context) Variables() map[string]any {
	c.varsMu.RLock()
	defer c.varsMu.RUnlock()

	snapshot := make(map[string]any, len(c.variables))
	for k, v := range c.variables {
		snapshot[k] = v
	}

	return snapshot
}

// CachedDoc returns cached reference material for a topic.
func (c *Context) CachedDoc(topic string) (any, bool) {
	c.cacheMu.RLock()
	defer c.cacheMu.RUnlock()

	doc, ok := c.cache[topic]

	return doc, ok
}

// CacheDoc stores reference material under a topic key.
func (c *Context) CacheDoc(topic string, doc any) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()

	c.cache[topic] = doc
}

// Result returns the recorded result for a task.
func (c *Context) Result(taskID string) (models.TaskResult, bool) {
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()

	result, ok := c.results[taskID]

	return result, ok
}

// SetResult records a task result. Called by the execution engine only.
func (c *Context) SetResult(result models.TaskResult) {
	c.resultsMu.Lock()
	defer c.resultsMu.Unlock()

	c.results[result.TaskID] = result
}

// Results returns a snapshot copy of all recorded task results.
func (c *Context) Results() map[string]models.TaskResult {
	c.resultsMu.RLock()
	defer c.resultsMu.RUnlock()

	snapshot := make(map[string]models.TaskResult, len(c.results))
	for k, v := range c.results {
		snapshot[k] = v
	}

	return snapshot
}
