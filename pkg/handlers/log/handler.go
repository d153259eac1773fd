// Package log implements a handler that emits a structured log line, useful
// for validation steps and plan debugging.
package log

import (
	"context"
	"log/slog"

	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/protocol"
)

func NewLogHandlerFactory() *LogHandlerFactory {
	return &LogHandlerFactory{}
}

type LogHandlerFactory struct{}

func (f *LogHandlerFactory) ID() string {
	return "log"
}

func (f *LogHandlerFactory) Name() string {
	return "Log"
}

func (f *LogHandlerFactory) Description() string {
	return "Emits a structured log line with the task's message and the run's recorded results"
}

func (f *LogHandlerFactory) Create(config map[string]any) (protocol.Handler, error) {
	if config == nil {
		config = map[string]any{}
	}

	return NewLogHandler(config), nil
}

func (f *LogHandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"message": map[string]any{"type": "string"},
			"level":   map[string]any{"type": "string", "enum": []string{"debug", "info", "warn", "error"}},
		},
	}
}

type LogHandler struct {
	Message string
	Level   string
}

func NewLogHandler(config map[string]any) *LogHandler {
	message, _ := config["message"].(string)

	level, _ := config["level"].(string)
	if level == "" {
		level = "info"
	}

	return &LogHandler{Message: message, Level: level}
}

func (h *LogHandler) Execute(ctx context.Context, task *models.Task, view protocol.ContextView, logger *slog.Logger) (any, error) {
	logger = logger.With("handler", "log")

	message := h.Message
	if message == "" {
		message = task.Description
	}

	attrs := []any{"task_name", task.Name, "plan_id", view.PlanID()}

	switch h.Level {
	case "debug":
		logger.DebugContext(ctx, message, attrs...)
	case "warn":
		logger.WarnContext(ctx, message, attrs...)
	case "error":
		logger.ErrorContext(ctx, message, attrs...)
	default:
		logger.InfoContext(ctx, message, attrs...)
	}

	return map[string]any{
		"message": message,
		"level":   h.Level,
	}, nil
}
