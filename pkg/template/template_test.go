package template

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/pkg/execution"
	"github.com/planforge/planforge/pkg/models"
)

func TestRenderSimpleExpression(t *testing.T) {
	data := map[string]any{
		"name":  "notes-app",
		"count": 3,
		"ready": true,
	}

	result, err := Render("{{ .name }}", data)
	require.NoError(t, err)
	assert.Equal(t, "notes-app", result)

	result, err = Render("{{ .ready }}", data)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	// Numeric output always comes back as float64.
	result, err = Render("{{ .count }}", data)
	require.NoError(t, err)
	assert.Equal(t, 3.0, result)
}

func TestRenderJSONOutput(t *testing.T) {
	data := map[string]any{
		"project": map[string]any{
			"name": "notes-app",
		},
		"topics": []any{"http", "storage"},
	}

	result, err := Render(`{
		"project_name": "{{ .project.name }}",
		"topic_count": {{ len .topics }}
	}`, data)
	require.NoError(t, err)

	resultMap, ok := result.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "notes-app", resultMap["project_name"])
	assert.Equal(t, 2.0, resultMap["topic_count"])
}

func TestRenderParseError(t *testing.T) {
	_, err := Render("{{ .broken", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse template")
}

func TestRenderWithContext(t *testing.T) {
	plan := &models.ExecutionPlan{
		ID:          "plan-tmpl1234",
		ProjectName: "notes-app",
	}

	execCtx, err := execution.NewContext(plan, t.TempDir(), t.TempDir())
	require.NoError(t, err)

	execCtx.SetVariable("scaffold_root", "/tmp/notes-app/src")
	execCtx.SetResult(models.TaskResult{
		TaskID:  "scaffold",
		Success: true,
		Output:  map[string]any{"files": 4.0},
	})

	result, err := RenderWithContext("{{ .vars.scaffold_root }}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/notes-app/src", result)

	result, err = RenderWithContext("{{ .results.scaffold.success }}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	result, err = RenderWithContext("{{ .plan.id }}", execCtx)
	require.NoError(t, err)
	assert.Equal(t, "plan-tmpl1234", result)
}

func TestNeedsTemplating(t *testing.T) {
	assert.True(t, NeedsTemplating("{{ .vars.scaffold_root }}"))
	assert.False(t, NeedsTemplating("plain string"))
}
