// Package docfetch implements a handler that retrieves reference documentation
// over HTTP and stores it in the run's documentation cache.
package docfetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/protocol"
)

const defaultTimeout = 30 * time.Second

// maxDocBytes bounds a single document so a misbehaving source cannot fill
// the cache.
const maxDocBytes = 4 << 20

func NewDocFetchHandlerFactory() *DocFetchHandlerFactory {
	return &DocFetchHandlerFactory{}
}

type DocFetchHandlerFactory struct{}

func (f *DocFetchHandlerFactory) ID() string {
	return "docfetch"
}

func (f *DocFetchHandlerFactory) Name() string {
	return "Documentation Fetch"
}

func (f *DocFetchHandlerFactory) Description() string {
	return "Fetches reference documentation for the task's topics into the run's documentation cache"
}

func (f *DocFetchHandlerFactory) Create(config map[string]any) (protocol.Handler, error) {
	return NewDocFetchHandler(config)
}

func (f *DocFetchHandlerFactory) Schema() map[string]any {
	return map[string]any{
		"type":     "object",
		"required": []string{"base_url"},
		"properties": map[string]any{
			"base_url": map[string]any{
				"type":        "string",
				"description": "Documentation source; topic is appended as a path segment",
			},
			"topics": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
		},
	}
}

type DocFetchHandler struct {
	BaseURL string
	Topics  []string

	client *http.Client
}

func NewDocFetchHandler(config map[string]any) (*DocFetchHandler, error) {
	baseURL, _ := config["base_url"].(string)
	if baseURL == "" {
		return nil, fmt.Errorf("docfetch handler requires a base_url")
	}

	topics := make([]string, 0)

	if configured, ok := config["topics"].([]any); ok {
		for _, topic := range configured {
			if name, ok := topic.(string); ok {
				topics = append(topics, name)
			}
		}
	}

	return &DocFetchHandler{
		BaseURL: baseURL,
		Topics:  topics,
		client:  &http.Client{Timeout: defaultTimeout},
	}, nil
}

// Execute fetches each topic and caches the document body. Topics already in
// the cache are not fetched again. Network and server errors are transient;
// a missing topic is an isolated failure.
func (h *DocFetchHandler) Execute(ctx context.Context, task *models.Task, view protocol.ContextView, logger *slog.Logger) (any, error) {
	logger = logger.With("handler", "docfetch")

	topics := h.Topics
	if len(topics) == 0 {
		topics = topicsFromRequirements(task)
	}

	fetched := make([]string, 0, len(topics))
	cached := 0

	for _, topic := range topics {
		if _, ok := view.CachedDoc(topic); ok {
			cached++

			continue
		}

		doc, err := h.fetch(ctx, topic)
		if err != nil {
			return nil, err
		}

		view.CacheDoc(topic, doc)
		fetched = append(fetched, topic)

		logger.InfoContext(ctx, "Cached documentation", "topic", topic, "bytes", len(doc))
	}

	return map[string]any{
		"fetched":        fetched,
		"already_cached": cached,
	}, nil
}

func (h *DocFetchHandler) fetch(ctx context.Context, topic string) (string, error) {
	endpoint, err := url.JoinPath(h.BaseURL, topic)
	if err != nil {
		return "", protocol.NewNonCritical(fmt.Errorf("invalid documentation url for topic %s: %w", topic, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", protocol.NewNonCritical(fmt.Errorf("failed to create request for topic %s: %w", topic, err))
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return "", protocol.NewRetryablef("failed to fetch documentation for topic %s: %w", topic, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusInternalServerError {
		return "", protocol.NewRetryablef("documentation source returned status %d for topic %s", resp.StatusCode, topic)
	}

	if resp.StatusCode != http.StatusOK {
		return "", protocol.NewNonCritical(fmt.Errorf("documentation source returned status %d for topic %s", resp.StatusCode, topic))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocBytes))
	if err != nil {
		return "", protocol.NewRetryablef("failed to read documentation for topic %s: %w", topic, err)
	}

	return string(body), nil
}

func topicsFromRequirements(task *models.Task) []string {
	topics := make([]string, 0)

	for _, req := range task.Requirements {
		if req.Type == "docs" {
			topics = append(topics, req.Name)
		}
	}

	return topics
}
