package main

import (
	cli "github.com/urfave/cli/v3"

	"github.com/planforge/planforge/pkg/config"
)

func configFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to a YAML configuration file",
			Sources: cli.EnvVars("PLANFORGE_CONFIG"),
		},
		&cli.IntFlag{
			Name:    "max-parallel",
			Usage:   "Maximum tasks running concurrently",
			Sources: cli.EnvVars("PLANFORGE_MAX_PARALLEL"),
		},
		&cli.IntFlag{
			Name:    "max-retries",
			Usage:   "Retries for transient task failures",
			Value:   -1,
			Sources: cli.EnvVars("PLANFORGE_MAX_RETRIES"),
		},
		&cli.BoolFlag{
			Name:    "continue-on-error",
			Usage:   "Keep scheduling groups after a critical task failure",
			Sources: cli.EnvVars("PLANFORGE_CONTINUE_ON_ERROR"),
		},
		&cli.StringFlag{
			Name:    "work-dir",
			Usage:   "Root directory for task working files",
			Sources: cli.EnvVars("PLANFORGE_WORK_DIR"),
		},
		&cli.StringFlag{
			Name:    "output-dir",
			Usage:   "Root directory for plans, reports, and deliverables",
			Sources: cli.EnvVars("PLANFORGE_OUTPUT_DIR"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

// buildConfig layers flag overrides on top of the optional config file and
// the defaults.
func buildConfig(command *cli.Command) (config.Config, error) {
	cfg := config.Default()

	if path := command.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}

		cfg = loaded
	}

	if v := command.Int("max-parallel"); v > 0 {
		cfg.MaxParallelTasks = v
	}

	if v := command.Int("max-retries"); v >= 0 {
		cfg.MaxRetries = v
	}

	if command.Bool("continue-on-error") {
		cfg.ContinueOnError = true
	}

	if v := command.String("work-dir"); v != "" {
		cfg.WorkDirectory = v
	}

	if v := command.String("output-dir"); v != "" {
		cfg.OutputDirectory = v
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	return cfg, nil
}
