// Package config provides execution configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config carries every knob the planner and execution engine consume. It is
// built once at startup and passed into constructors; nothing reads it from
// package-level state.
type Config struct {
	MaxParallelTasks         int     `yaml:"max_parallel_tasks"          validate:"gte=1"`
	MaxRetries               int     `yaml:"max_retries"                 validate:"gte=0"`
	RetryBaseDelaySeconds    float64 `yaml:"retry_base_delay_seconds"    validate:"gt=0"`
	RetryDelayCeilingSeconds float64 `yaml:"retry_delay_ceiling_seconds" validate:"gt=0"`
	ContinueOnError          bool    `yaml:"continue_on_error"`
	PerTaskTimeoutSeconds    float64 `yaml:"per_task_timeout_seconds"    validate:"gt=0"`
	// DefaultEstimateSeconds replaces a zero task estimate during plan
	// optimization.
	DefaultEstimateSeconds int    `yaml:"default_estimate_seconds" validate:"gte=0"`
	WorkDirectory          string `yaml:"work_directory"           validate:"required"`
	OutputDirectory        string `yaml:"output_directory"         validate:"required"`
}

// Default returns the configuration used when no file or flags override it.
func Default() Config {
	return Config{
		MaxParallelTasks:         5,
		MaxRetries:               3,
		RetryBaseDelaySeconds:    1,
		RetryDelayCeilingSeconds: 60,
		ContinueOnError:          false,
		PerTaskTimeoutSeconds:    300,
		DefaultEstimateSeconds:   300,
		WorkDirectory:            "./workspace",
		OutputDirectory:          "./output",
	}
}

// Load reads a YAML configuration file over the defaults. Missing file fields
// keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse YAML config: %w", err)
	}

	return cfg, nil
}

// Validate checks invariants like MaxParallelTasks >= 1 and positive delays.
func (c Config) Validate() error {
	v := validator.New(validator.WithRequiredStructEnabled())

	if err := v.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.RetryDelayCeilingSeconds < c.RetryBaseDelaySeconds {
		return fmt.Errorf("invalid configuration: retry delay ceiling %.2fs is below base delay %.2fs",
			c.RetryDelayCeilingSeconds, c.RetryBaseDelaySeconds)
	}

	return nil
}

// RetryBaseDelay returns the base backoff delay as a duration.
func (c Config) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelaySeconds * float64(time.Second))
}

// RetryDelayCeiling returns the backoff cap as a duration.
func (c Config) RetryDelayCeiling() time.Duration {
	return time.Duration(c.RetryDelayCeilingSeconds * float64(time.Second))
}

// PerTaskTimeout returns the per-attempt handler timeout as a duration.
func (c Config) PerTaskTimeout() time.Duration {
	return time.Duration(c.PerTaskTimeoutSeconds * float64(time.Second))
}
