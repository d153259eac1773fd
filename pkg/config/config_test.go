package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.MaxParallelTasks)
	assert.Equal(t, 3, cfg.MaxRetries)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "defaults pass",
			mutate:  func(*Config) {},
			wantErr: false,
		},
		{
			name:    "zero parallelism rejected",
			mutate:  func(c *Config) { c.MaxParallelTasks = 0 },
			wantErr: true,
		},
		{
			name:    "negative retries rejected",
			mutate:  func(c *Config) { c.MaxRetries = -1 },
			wantErr: true,
		},
		{
			name:    "zero base delay rejected",
			mutate:  func(c *Config) { c.RetryBaseDelaySeconds = 0 },
			wantErr: true,
		},
		{
			name:    "ceiling below base rejected",
			mutate:  func(c *Config) { c.RetryDelayCeilingSeconds = 0.5 },
			wantErr: true,
		},
		{
			name:    "zero timeout rejected",
			mutate:  func(c *Config) { c.PerTaskTimeoutSeconds = 0 },
			wantErr: true,
		},
		{
			name:    "empty work directory rejected",
			mutate:  func(c *Config) { c.WorkDirectory = "" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "planforge.yaml")
	content := []byte("max_parallel_tasks: 8\nretry_base_delay_seconds: 2.5\ncontinue_on_error: true\n")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8, cfg.MaxParallelTasks)
	assert.InDelta(t, 2.5, cfg.RetryBaseDelaySeconds, 0.001)
	assert.True(t, cfg.ContinueOnError)

	// Fields absent from the file keep their defaults.
	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, "./workspace", cfg.WorkDirectory)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestDurationHelpers(t *testing.T) {
	cfg := Default()
	cfg.RetryBaseDelaySeconds = 1.5
	cfg.RetryDelayCeilingSeconds = 30
	cfg.PerTaskTimeoutSeconds = 0.25

	assert.Equal(t, 1500*time.Millisecond, cfg.RetryBaseDelay())
	assert.Equal(t, 30*time.Second, cfg.RetryDelayCeiling())
	assert.Equal(t, 250*time.Millisecond, cfg.PerTaskTimeout())
}
