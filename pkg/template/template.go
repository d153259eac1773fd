// Package template renders dynamic handler configuration against the shared
// state of a run.
package template

import (
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/template"
	"time"

	"github.com/planforge/planforge/pkg/execution"
)

// RenderWithContext renders a template string against a run's execution
// context. Templates can reach shared variables, prior task results, cached
// docs, environment variables, and the run's directories.
func RenderWithContext(input string, execCtx *execution.Context) (any, error) {
	data := map[string]any{
		"vars":    execCtx.Variables(),
		"results": resultData(execCtx),
		"env":     getEnvVars(),
		"plan": map[string]any{
			"id":         execCtx.PlanID(),
			"work_dir":   execCtx.WorkDir(),
			"output_dir": execCtx.OutputDir(),
		},
	}

	return Render(input, data)
}

// NeedsTemplating reports whether a string contains template actions.
func NeedsTemplating(input string) bool {
	return strings.Contains(input, "{{")
}

func Render(templateStr string, data any) (any, error) {
	tmpl, err := template.
		New("transform").
		Funcs(template.FuncMap{
			"now": func() string {
				return time.Now().UTC().Format(time.RFC3339)
			},
			"rand": func(max int) int {
				if max <= 0 {
					return 0
				}
				num := make([]byte, 1)
				_, err := rand.Read(num)
				if err != nil {
					return 0
				}

				return int(num[0]) % max
			},
		}).Parse(templateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template '%s': %w", templateStr, err)
	}

	var buf strings.Builder

	err = tmpl.Execute(&buf, data)
	if err != nil {
		return nil, fmt.Errorf("failed to execute template '%s': %w", templateStr, err)
	}

	result := strings.TrimSpace(buf.String())

	// Parse structured output back into data when it looks like JSON.
	if (strings.HasPrefix(result, "{") && strings.HasSuffix(result, "}")) ||
		(strings.HasPrefix(result, "[") && strings.HasSuffix(result, "]")) {
		var jsonResult any

		err := json.Unmarshal([]byte(result), &jsonResult)
		if err == nil {
			return jsonResult, nil
		}

		return jsonResult, fmt.Errorf("failed to parse json '%s': %w", templateStr, err)
	}

	if num, err := strconv.ParseFloat(result, 64); err == nil {
		return num, nil
	}

	if b, err := strconv.ParseBool(result); err == nil {
		return b, nil
	}

	return result, nil
}

// resultData flattens recorded task results into template-friendly maps keyed
// by task ID.
func resultData(execCtx *execution.Context) map[string]any {
	results := execCtx.Results()
	data := make(map[string]any, len(results))

	for taskID, result := range results {
		data[taskID] = map[string]any{
			"success": result.Success,
			"skipped": result.Skipped,
			"output":  result.Output,
			"error":   result.Error,
		}
	}

	return data
}

func getEnvVars() map[string]any {
	envMap := make(map[string]any)

	for _, env := range os.Environ() {
		parts := strings.SplitN(env, "=", 2)
		if len(parts) == 2 {
			envMap[parts[0]] = parts[1]
		}
	}

	return envMap
}
