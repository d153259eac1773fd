// Package protocol defines the contracts between the execution engine and
// pluggable task handlers.
package protocol

import (
	"context"
	"log/slog"

	"github.com/planforge/planforge/pkg/models"
)

// ContextView is the slice of the execution context a handler may touch:
// read access to run state plus mutation hooks for variables and the
// documentation cache. Task results are written by the engine only.
type ContextView interface {
	PlanID() string
	WorkDir() string
	OutputDir() string

	Variable(key string) (any, bool)
	SetVariable(key string, value any)

	CachedDoc(topic string) (any, bool)
	CacheDoc(topic string, doc any)

	Result(taskID string) (models.TaskResult, bool)
}

// Handler executes one task. Implementations classify their failures with the
// error constructors in this package; an unclassified error is treated as
// non-critical.
type Handler interface {
	Execute(ctx context.Context, task *models.Task, view ContextView, logger *slog.Logger) (any, error)
}

// HandlerFactory creates handler instances for one task type tag and provides
// metadata about it.
type HandlerFactory interface {
	// Create creates a handler with the given configuration.
	Create(config map[string]any) (Handler, error)

	// ID returns the task type tag this factory serves.
	ID() string

	// Name returns the human-readable name for this handler type.
	Name() string

	// Description returns a description of what this handler does.
	Description() string

	// Schema returns the JSON schema for configuring this handler.
	Schema() map[string]any
}
