package scaffold

import "github.com/planforge/planforge/pkg/protocol"

func NewScaffoldHandlerFactory() *ScaffoldHandlerFactory {
	return &ScaffoldHandlerFactory{}
}

type ScaffoldHandlerFactory struct{}

func (f *ScaffoldHandlerFactory) ID() string {
	return "scaffold"
}

func (f *ScaffoldHandlerFactory) Name() string {
	return "Project Scaffold"
}

func (f *ScaffoldHandlerFactory) Description() string {
	return "Creates the project directory structure and seed files under the run's work directory"
}

func (f *ScaffoldHandlerFactory) Create(config map[string]any) (protocol.Handler, error) {
	return NewScaffoldHandler(config), nil
}

func (f *ScaffoldHandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"directories": map[string]any{
				"type":        "array",
				"items":       map[string]any{"type": "string"},
				"description": "Directories to create relative to the work directory",
			},
			"files": map[string]any{
				"type":        "object",
				"description": "Files to write relative to the work directory, name to content",
			},
		},
	}
}
