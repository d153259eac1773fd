package docfetch

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/planforge/planforge/pkg/execution"
	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/protocol"
)

func testView(t *testing.T) *execution.Context {
	t.Helper()

	plan := &models.ExecutionPlan{
		ID:          "plan-docs0001",
		ProjectName: "demo",
		Tasks:       []*models.Task{{ID: "task_1", Name: "Fetch Docs", Type: "docfetch"}},
	}

	execCtx, err := execution.NewContext(plan, t.TempDir(), t.TempDir())
	require.NoError(t, err)

	return execCtx
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}

func TestNewDocFetchHandlerRequiresBaseURL(t *testing.T) {
	_, err := NewDocFetchHandler(map[string]any{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "base_url")
}

func TestDocFetchHandlerExecute(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("docs for " + r.URL.Path))
	}))
	defer server.Close()

	handler, err := NewDocFetchHandler(map[string]any{
		"base_url": server.URL,
		"topics":   []any{"react", "stripe"},
	})
	require.NoError(t, err)

	view := testView(t)
	task := &models.Task{ID: "task_1", Name: "Fetch Docs", Type: "docfetch"}

	output, err := handler.Execute(context.Background(), task, view, testLogger())
	require.NoError(t, err)

	result, ok := output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []string{"react", "stripe"}, result["fetched"])

	doc, ok := view.CachedDoc("react")
	require.True(t, ok)
	assert.Equal(t, "docs for /react", doc)
}

func TestDocFetchHandlerSkipsCachedTopics(t *testing.T) {
	var requests atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		requests.Add(1)
		_, _ = w.Write([]byte("docs"))
	}))
	defer server.Close()

	handler, err := NewDocFetchHandler(map[string]any{
		"base_url": server.URL,
		"topics":   []any{"react"},
	})
	require.NoError(t, err)

	view := testView(t)
	view.CacheDoc("react", "already here")

	task := &models.Task{ID: "task_1", Name: "Fetch Docs", Type: "docfetch"}

	output, err := handler.Execute(context.Background(), task, view, testLogger())
	require.NoError(t, err)

	result, ok := output.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 1, result["already_cached"])
	assert.Equal(t, int32(0), requests.Load())
}

func TestDocFetchHandlerTopicsFromRequirements(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("docs"))
	}))
	defer server.Close()

	handler, err := NewDocFetchHandler(map[string]any{"base_url": server.URL})
	require.NoError(t, err)

	view := testView(t)
	task := &models.Task{
		ID:   "task_1",
		Name: "Fetch Docs",
		Type: "docfetch",
		Requirements: []models.TaskRequirement{
			{Type: "docs", Name: "fastapi"},
			{Type: "skill", Name: "coding"},
		},
	}

	_, err = handler.Execute(context.Background(), task, view, testLogger())
	require.NoError(t, err)

	_, ok := view.CachedDoc("fastapi")
	assert.True(t, ok)

	_, ok = view.CachedDoc("coding")
	assert.False(t, ok)
}

func TestDocFetchHandlerServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	handler, err := NewDocFetchHandler(map[string]any{
		"base_url": server.URL,
		"topics":   []any{"react"},
	})
	require.NoError(t, err)

	view := testView(t)
	task := &models.Task{ID: "task_1", Name: "Fetch Docs", Type: "docfetch"}

	_, err = handler.Execute(context.Background(), task, view, testLogger())
	require.Error(t, err)
	assert.True(t, protocol.IsRetryable(err))
}

func TestDocFetchHandlerNotFoundIsNonCritical(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	handler, err := NewDocFetchHandler(map[string]any{
		"base_url": server.URL,
		"topics":   []any{"missing"},
	})
	require.NoError(t, err)

	view := testView(t)
	task := &models.Task{ID: "task_1", Name: "Fetch Docs", Type: "docfetch"}

	_, err = handler.Execute(context.Background(), task, view, testLogger())
	require.Error(t, err)
	assert.False(t, protocol.IsRetryable(err))
	assert.False(t, protocol.IsCritical(err))
}
