// Package checkpoint provides durable storage for per-task run outcomes so an
// interrupted run can resume without re-executing completed tasks.
package checkpoint

import (
	"context"

	"github.com/planforge/planforge/pkg/models"
)

// Store persists per-task outcomes keyed by plan ID. Save is append-only and
// idempotent: saving the same (planID, taskID) twice overwrites with the
// latest result without error. Load returns an empty checkpoint when no
// records exist for the plan.
type Store interface {
	Save(ctx context.Context, planID, taskID string, result models.TaskResult) error
	Load(ctx context.Context, planID string) (*models.Checkpoint, error)
	Clear(ctx context.Context, planID string) error
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
