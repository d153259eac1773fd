package planner

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/planforge/planforge/pkg/config"
	"github.com/planforge/planforge/pkg/graph"
	"github.com/planforge/planforge/pkg/models"
)

// Planner converts a build request into an optimized ExecutionPlan: analysis,
// task generation, graph validation, dependency resolution, and parallel
// optimization.
type Planner struct {
	analyzer Analyzer
	cfg      config.Config
	logger   *slog.Logger
}

// NewPlanner creates a Planner. A nil analyzer falls back to the built-in
// keyword analyzer.
func NewPlanner(analyzer Analyzer, cfg config.Config, logger *slog.Logger) *Planner {
	if analyzer == nil {
		analyzer = NewKeywordAnalyzer()
	}

	return &Planner{
		analyzer: analyzer,
		cfg:      cfg,
		logger:   logger.With("module", "planner"),
	}
}

// CreatePlan analyzes the request, generates a task list, and plans it.
func (p *Planner) CreatePlan(ctx context.Context, request string) (*models.ExecutionPlan, error) {
	analysis := p.analyzer.Analyze(request)

	p.logger.InfoContext(ctx, "Analyzed build request",
		"project_type", analysis.ProjectType,
		"technologies", analysis.Technologies,
		"features", analysis.Features,
	)

	tasks := p.generateTasks(analysis)

	plan, err := p.PlanTasks(ctx, projectName(request), tasks)
	if err != nil {
		return nil, err
	}

	plan.Description = request
	plan.Metadata["analysis"] = analysis

	return plan, nil
}

// PlanTasks validates an externally supplied task list, resolves its
// dependency order, and partitions it into concurrent groups.
func (p *Planner) PlanTasks(ctx context.Context, name string, tasks []*models.Task) (*models.ExecutionPlan, error) {
	g, err := graph.New(tasks)
	if err != nil {
		return nil, err
	}

	order, err := g.Order()
	if err != nil {
		return nil, err
	}

	groups := Optimize(g, order, p.cfg.MaxParallelTasks)

	for _, task := range tasks {
		task.Status = models.TaskStatusPending
	}

	plan := &models.ExecutionPlan{
		ID:                "plan-" + uuid.New().String()[:8],
		ProjectName:       name,
		Tasks:             tasks,
		Groups:            groups,
		EstimatedDuration: EstimateDuration(g, groups, p.cfg.DefaultEstimateSeconds),
		Status:            models.PlanStatusPlanned,
		Metadata:          map[string]any{},
		CreatedAt:         time.Now().UTC(),
	}

	if err := plan.Validate(); err != nil {
		return nil, &graph.InvalidRequestError{Message: err.Error()}
	}

	p.logger.InfoContext(ctx, "Created execution plan",
		"plan_id", plan.ID,
		"tasks", len(tasks),
		"groups", len(groups),
		"estimated_duration_s", plan.EstimatedDuration,
	)

	return plan, nil
}

// generateTasks builds the task list for an analysis: setup first, then
// documentation retrieval, core development, integration, optional testing,
// and a final validation task depending on everything before it.
func (p *Planner) generateTasks(analysis Analysis) []*models.Task {
	counter := 0
	nextID := func() string {
		counter++

		return fmt.Sprintf("task_%d", counter)
	}

	tasks := []*models.Task{{
		ID:          nextID(),
		Name:        "Project Setup",
		Description: "Initialize project structure and configuration",
		Type:        "scaffold",
		Requirements: []models.TaskRequirement{
			{Type: "skill", Name: "skill-creator"},
		},
		Priority:          models.PriorityCritical,
		EstimatedDuration: 120,
	}}
	setup := tasks[0]

	if len(analysis.DocTopics) > 0 {
		tasks = append(tasks, &models.Task{
			ID:          nextID(),
			Name:        "Fetch Documentation",
			Description: "Retrieve reference documentation for the detected stack",
			Type:        "docfetch",
			Requirements: []models.TaskRequirement{
				{Type: "docs", Name: "docfetch", Config: map[string]any{"topics": analysis.DocTopics}},
			},
			Dependencies:      []string{setup.ID},
			Priority:          models.PriorityHigh,
			EstimatedDuration: 60,
		})
	}

	var develop *models.Task

	switch analysis.ProjectType {
	case "web_application":
		requirements := make([]models.TaskRequirement, 0, len(analysis.Services)+1)
		for _, skill := range analysis.Skills {
			if skill == "artifacts-builder" {
				requirements = append(requirements, models.TaskRequirement{Type: "skill", Name: skill})
			}
		}

		for _, service := range analysis.Services {
			requirements = append(requirements, models.TaskRequirement{Type: "mcp", Name: service})
		}

		develop = &models.Task{
			ID:                nextID(),
			Name:              "Develop Application",
			Description:       "Build the main application components",
			Type:              "codegen",
			Requirements:      requirements,
			Dependencies:      []string{setup.ID},
			Priority:          models.PriorityCritical,
			EstimatedDuration: 1800,
		}
		tasks = append(tasks, develop)
	case "document_generation":
		skill := "docx"

		for _, s := range analysis.Skills {
			switch s {
			case "docx", "pdf", "pptx", "xlsx":
				skill = s
			}
		}

		develop = &models.Task{
			ID:          nextID(),
			Name:        "Generate Documents",
			Description: "Create document outputs",
			Type:        "docgen",
			Requirements: []models.TaskRequirement{
				{Type: "skill", Name: skill},
			},
			Dependencies:      []string{setup.ID},
			Priority:          models.PriorityCritical,
			EstimatedDuration: 600,
		}
		tasks = append(tasks, develop)
	}

	if len(analysis.Services) > 1 {
		requirements := make([]models.TaskRequirement, 0, len(analysis.Services))
		for _, service := range analysis.Services {
			requirements = append(requirements, models.TaskRequirement{Type: "mcp", Name: service})
		}

		deps := []string{setup.ID}
		if develop != nil {
			deps = []string{develop.ID}
		}

		tasks = append(tasks, &models.Task{
			ID:                nextID(),
			Name:              "Integrate External Services",
			Description:       "Connect and configure external service integrations",
			Type:              "integration",
			Requirements:      requirements,
			Dependencies:      deps,
			Priority:          models.PriorityHigh,
			EstimatedDuration: 900,
		})
	}

	if includeTests, _ := analysis.Constraints["include_tests"].(bool); includeTests && develop != nil {
		tasks = append(tasks, &models.Task{
			ID:                nextID(),
			Name:              "Generate Tests",
			Description:       "Create automated tests for the generated code",
			Type:              "testing",
			Dependencies:      []string{develop.ID},
			Priority:          models.PriorityMedium,
			EstimatedDuration: 600,
		})
	}

	deps := make([]string, 0, len(tasks))
	for _, task := range tasks {
		deps = append(deps, task.ID)
	}

	tasks = append(tasks, &models.Task{
		ID:          nextID(),
		Name:        "Validation and Documentation",
		Description: "Validate outputs and generate project documentation",
		Type:        "validation",
		Requirements: []models.TaskRequirement{
			{Type: "skill", Name: "docx", Config: map[string]any{"doc_type": "README"}},
		},
		Dependencies:      deps,
		Priority:          models.PriorityMedium,
		EstimatedDuration: 300,
	})

	return tasks
}

// projectName derives a short slug from the first words of the request.
func projectName(request string) string {
	words := strings.Fields(strings.ToLower(request))
	if len(words) > 3 {
		words = words[:3]
	}

	kept := make([]string, 0, len(words))

	for _, word := range words {
		cleaned := strings.Map(func(r rune) rune {
			if r >= 'a' && r <= 'z' || r >= '0' && r <= '9' {
				return r
			}

			return -1
		}, word)
		if cleaned != "" {
			kept = append(kept, cleaned)
		}
	}

	if len(kept) == 0 {
		return "project"
	}

	return strings.Join(kept, "-")
}
