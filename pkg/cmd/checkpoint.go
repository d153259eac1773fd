package cmd

import (
	"context"
	"strings"

	"github.com/planforge/planforge/pkg/checkpoint"
	"github.com/planforge/planforge/pkg/checkpoint/file"
	"github.com/planforge/planforge/pkg/checkpoint/postgres"
	"github.com/planforge/planforge/pkg/checkpoint/redis"
)

var supportedCheckpointProviders = []string{"file", "redis", "postgres"}

// NewCheckpointStore creates a checkpoint store from a URL. Anything that is
// not an explicit redis:// or postgres:// URL is treated as a file root.
func NewCheckpointStore(ctx context.Context, storeURL string) (checkpoint.Store, error) {
	switch parseCheckpointProvider(storeURL) {
	case "redis":
		return redis.NewStore(ctx, storeURL)
	case "postgres":
		return postgres.NewStore(ctx, storeURL)
	default:
		return file.NewStore(storeURL), nil
	}
}

func parseCheckpointProvider(storeURL string) string {
	parts := strings.Split(storeURL, "://")

	provider := parts[0]
	for _, supported := range supportedCheckpointProviders {
		if provider == supported {
			return provider
		}
	}

	return "file"
}
