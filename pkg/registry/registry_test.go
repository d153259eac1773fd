package registry

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/protocol"
)

type stubHandler struct {
	output string
}

func (h *stubHandler) Execute(_ context.Context, _ *models.Task, _ protocol.ContextView, _ *slog.Logger) (any, error) {
	return h.output, nil
}

type stubFactory struct {
	id string
}

func (f *stubFactory) ID() string          { return f.id }
func (f *stubFactory) Name() string        { return "Stub " + f.id }
func (f *stubFactory) Description() string { return "stub handler for tests" }

func (f *stubFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}

func (f *stubFactory) Create(config map[string]any) (protocol.Handler, error) {
	output, _ := config["output"].(string)

	return &stubHandler{output: output}, nil
}

func testRegistry() *Registry {
	return NewRegistry(slog.New(slog.NewTextHandler(os.Stdout, nil)))
}

func TestRegistryCreateHandler(t *testing.T) {
	registry := testRegistry()
	registry.RegisterHandler(&stubFactory{id: "scaffold"})

	handler, err := registry.CreateHandler("scaffold", map[string]any{"output": "done"})
	require.NoError(t, err)

	result, err := handler.Execute(context.Background(), &models.Task{ID: "task_1"}, nil, slog.Default())
	require.NoError(t, err)
	assert.Equal(t, "done", result)
}

func TestRegistryUnknownType(t *testing.T) {
	registry := testRegistry()

	_, err := registry.CreateHandler("nonexistent", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "task type 'nonexistent' not registered")
}

func TestRegistryIsHandlerRegistered(t *testing.T) {
	registry := testRegistry()
	registry.RegisterHandler(&stubFactory{id: "docfetch"})

	assert.True(t, registry.IsHandlerRegistered("docfetch"))
	assert.False(t, registry.IsHandlerRegistered("scaffold"))
}

func TestRegistryFactoriesSorted(t *testing.T) {
	registry := testRegistry()
	registry.RegisterHandler(&stubFactory{id: "scaffold"})
	registry.RegisterHandler(&stubFactory{id: "docfetch"})
	registry.RegisterHandler(&stubFactory{id: "log"})

	factories := registry.Factories()
	require.Len(t, factories, 3)
	assert.Equal(t, "docfetch", factories[0].ID())
	assert.Equal(t, "log", factories[1].ID())
	assert.Equal(t, "scaffold", factories[2].ID())
}

func TestRegistryReRegisterReplaces(t *testing.T) {
	registry := testRegistry()
	registry.RegisterHandler(&stubFactory{id: "scaffold"})
	registry.RegisterHandler(&stubFactory{id: "scaffold"})

	assert.Len(t, registry.Factories(), 1)
}

func TestLoadHandlerPluginsMissingDir(t *testing.T) {
	registry := testRegistry()

	factories, err := registry.LoadHandlerPlugins(t.TempDir())
	require.NoError(t, err)
	assert.Empty(t, factories)
}
