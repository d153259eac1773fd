// Package scaffold implements the built-in handler for project setup tasks.
package scaffold

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/protocol"
)

var defaultDirectories = []string{"src", "docs", "tests"}

type ScaffoldHandler struct {
	Directories []string
	Files       map[string]string
}

func NewScaffoldHandler(config map[string]any) *ScaffoldHandler {
	directories := make([]string, 0)

	if configured, ok := config["directories"].([]any); ok {
		for _, dir := range configured {
			if name, ok := dir.(string); ok {
				directories = append(directories, name)
			}
		}
	}

	if len(directories) == 0 {
		directories = defaultDirectories
	}

	files := make(map[string]string)

	if configured, ok := config["files"].(map[string]any); ok {
		for name, content := range configured {
			if text, ok := content.(string); ok {
				files[name] = text
			}
		}
	}

	return &ScaffoldHandler{
		Directories: directories,
		Files:       files,
	}
}

// Execute creates the project layout under the run's work directory. Scaffold
// failures are critical: nothing downstream can work without the layout.
func (h *ScaffoldHandler) Execute(ctx context.Context, task *models.Task, view protocol.ContextView, logger *slog.Logger) (any, error) {
	logger = logger.With("handler", "scaffold")
	logger.InfoContext(ctx, "Scaffolding project", "directories", len(h.Directories), "files", len(h.Files))

	root := view.WorkDir()
	created := make([]string, 0, len(h.Directories)+len(h.Files))

	for _, dir := range h.Directories {
		path := filepath.Join(root, dir)
		if err := os.MkdirAll(path, 0o755); err != nil {
			return nil, protocol.NewCriticalf("failed to create directory %s: %w", path, err)
		}

		created = append(created, path)
	}

	files := h.Files
	if len(files) == 0 {
		projectName, _ := view.Variable("project_name")
		description, _ := view.Variable("description")
		files = map[string]string{
			"README.md": fmt.Sprintf("# %v\n\n%v\n", projectName, description),
		}
	}

	for name, content := range files {
		path := filepath.Join(root, name)

		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, protocol.NewCriticalf("failed to create directory for %s: %w", path, err)
		}

		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			return nil, protocol.NewCriticalf("failed to write file %s: %w", path, err)
		}

		created = append(created, path)
	}

	view.SetVariable("scaffold_root", root)
	task.OutputPath = root

	logger.InfoContext(ctx, "Scaffold complete", "created", len(created))

	return map[string]any{
		"root":    root,
		"created": created,
	}, nil
}
