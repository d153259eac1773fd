package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/planforge/planforge/pkg/models"
	"github.com/xeipuuv/gojsonschema"
)

// taskListSchema validates externally supplied task-list files before they
// reach the graph builder, so schema problems surface with field-level
// messages instead of unmarshal errors.
var taskListSchema = map[string]any{
	"type":     "object",
	"required": []any{"name", "tasks"},
	"properties": map[string]any{
		"name": map[string]any{"type": "string", "minLength": 1},
		"tasks": map[string]any{
			"type":     "array",
			"minItems": 1,
			"items": map[string]any{
				"type":     "object",
				"required": []any{"id", "name", "type"},
				"properties": map[string]any{
					"id":   map[string]any{"type": "string", "minLength": 1},
					"name": map[string]any{"type": "string", "minLength": 1},
					"type": map[string]any{"type": "string", "minLength": 1},
					"dependencies": map[string]any{
						"type":  "array",
						"items": map[string]any{"type": "string"},
					},
					"priority": map[string]any{
						"type": "string",
						"enum": []any{"critical", "high", "medium", "low"},
					},
					"estimated_duration": map[string]any{
						"type":    "integer",
						"minimum": 0,
					},
				},
			},
		},
	},
}

// TaskList is the on-disk form of an externally authored task list.
type TaskList struct {
	Name  string         `json:"name"`
	Tasks []*models.Task `json:"tasks"`
}

// LoadTaskList reads and validates a JSON task-list file.
func LoadTaskList(path string) (*TaskList, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read task list %s: %w", path, err)
	}

	var document map[string]any
	if err := json.Unmarshal(data, &document); err != nil {
		return nil, fmt.Errorf("failed to parse task list %s: %w", path, err)
	}

	if err := validateTaskList(document); err != nil {
		return nil, err
	}

	var list TaskList
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, fmt.Errorf("failed to decode task list %s: %w", path, err)
	}

	for _, task := range list.Tasks {
		if task.Priority == "" {
			task.Priority = models.PriorityMedium
		}
	}

	return &list, nil
}

func validateTaskList(document map[string]any) error {
	schemaLoader := gojsonschema.NewGoLoader(taskListSchema)
	documentLoader := gojsonschema.NewGoLoader(document)

	result, err := gojsonschema.Validate(schemaLoader, documentLoader)
	if err != nil {
		return err
	}

	if !result.Valid() {
		var problems []string
		for _, desc := range result.Errors() {
			problems = append(problems, desc.String())
		}

		return fmt.Errorf("invalid task list: %s", strings.Join(problems, "; "))
	}

	return nil
}

// SavePlan writes a plan as JSON into the given directory, named by plan ID.
func SavePlan(plan *models.ExecutionPlan, dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create plan directory %s: %w", dir, err)
	}

	data, err := json.MarshalIndent(plan, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode plan %s: %w", plan.ID, err)
	}

	path := filepath.Join(dir, plan.ID+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write plan file %s: %w", path, err)
	}

	return path, nil
}

// LoadPlan reads a previously saved plan file.
func LoadPlan(path string) (*models.ExecutionPlan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read plan file %s: %w", path, err)
	}

	var plan models.ExecutionPlan
	if err := json.Unmarshal(data, &plan); err != nil {
		return nil, fmt.Errorf("failed to decode plan file %s: %w", path, err)
	}

	return &plan, nil
}
