package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/planforge/planforge/pkg/execution"
	"github.com/planforge/planforge/pkg/models"
)

// Report is the JSON execution summary written to the output directory at the
// end of every run.
type Report struct {
	PlanID      string              `json:"plan_id"`
	ProjectName string              `json:"project_name"`
	Status      models.PlanStatus   `json:"status"`
	StartedAt   time.Time           `json:"started_at"`
	CompletedAt time.Time           `json:"completed_at"`
	Duration    string              `json:"duration"`
	Tasks       []models.TaskResult `json:"tasks"`
	Summary     ReportSummary       `json:"summary"`
}

type ReportSummary struct {
	Total     int `json:"total"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
	Restored  int `json:"restored"`
}

func (e *Engine) writeReport(plan *models.ExecutionPlan, execCtx *execution.Context, result *RunResult, startedAt time.Time) (string, error) {
	succeeded, failed, skipped := tally(result.Results)

	report := Report{
		PlanID:      plan.ID,
		ProjectName: plan.ProjectName,
		Status:      result.Status,
		StartedAt:   startedAt.UTC(),
		CompletedAt: startedAt.Add(result.Duration).UTC(),
		Duration:    result.Duration.String(),
		Summary: ReportSummary{
			Total:     len(plan.Tasks),
			Succeeded: succeeded,
			Failed:    failed,
			Skipped:   skipped,
			Restored:  result.Restored,
		},
	}

	// Results in plan declaration order so reports diff cleanly across runs.
	for _, task := range plan.Tasks {
		if taskResult, ok := result.Results[task.ID]; ok {
			report.Tasks = append(report.Tasks, taskResult)
		}
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode execution report: %w", err)
	}

	path := filepath.Join(execCtx.OutputDir(), fmt.Sprintf("execution-report-%s.json", plan.ID))

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write execution report: %w", err)
	}

	return path, nil
}
