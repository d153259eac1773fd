// Package web provides HTTP request and response types for the plan API.
package web

import (
	"time"

	"github.com/planforge/planforge/pkg/models"
)

// CreateRunRequest starts a new plan run, either from a natural-language
// build request or from an explicit task list.
type CreateRunRequest struct {
	Request     string         `json:"request,omitempty"      validate:"required_without=Tasks,omitempty,min=3"`
	ProjectName string         `json:"project_name,omitempty"`
	Tasks       []*models.Task `json:"tasks,omitempty"        validate:"omitempty,min=1,dive"`

	// Optional per-run overrides of the server's execution configuration.
	MaxParallelTasks int   `json:"max_parallel_tasks,omitempty" validate:"omitempty,gte=1"`
	MaxRetries       *int  `json:"max_retries,omitempty"        validate:"omitempty,gte=0"`
	ContinueOnError  *bool `json:"continue_on_error,omitempty"`
}

// RunResponse is the API view of one run.
type RunResponse struct {
	ID          string                       `json:"id"`
	PlanID      string                       `json:"plan_id"`
	ProjectName string                       `json:"project_name"`
	Status      models.PlanStatus            `json:"status"`
	Results     map[string]models.TaskResult `json:"results,omitempty"`
	Error       string                       `json:"error,omitempty"`
	Duration    string                       `json:"duration,omitempty"`
	CreatedAt   time.Time                    `json:"created_at"`
	CompletedAt *time.Time                   `json:"completed_at,omitempty"`
}

// TransformRunResponse converts a tracked run to its API representation.
func TransformRunResponse(run *Run) RunResponse {
	plan := run.Plan()

	response := RunResponse{
		ID:          run.ID,
		PlanID:      plan.ID,
		ProjectName: plan.ProjectName,
		Status:      run.Status(),
		Error:       run.Err(),
		CreatedAt:   run.CreatedAt,
	}

	if result := run.Result(); result != nil {
		response.Results = result.Results
		response.Duration = result.Duration.String()
	}

	if completed := run.Completed(); !completed.IsZero() {
		response.CompletedAt = &completed
	}

	return response
}
