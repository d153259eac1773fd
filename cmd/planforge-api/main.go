package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	pkgcmd "github.com/planforge/planforge/pkg/cmd"
	"github.com/planforge/planforge/pkg/config"
	"github.com/planforge/planforge/pkg/log"
	"github.com/planforge/planforge/pkg/web"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("api")

	cmd := &cli.Command{
		Name:                  "planforge-api",
		Usage:                 "Create and monitor plan runs over HTTP",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to a YAML configuration file",
				Sources: cli.EnvVars("PLANFORGE_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "checkpoint-url",
				Usage:   "Checkpoint store URL (file://<dir>, redis://, or postgres://)",
				Value:   "file://./data",
				Sources: cli.EnvVars("PLANFORGE_CHECKPOINT_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma-separated Kafka broker list",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing task handler plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
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
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger.InfoContext(ctx, "Initializing PlanForge API")

			cfg, err := buildConfig(command)
			if err != nil {
				return err
			}

			registry := pkgcmd.NewRegistry(logger, command.String("plugins-path"))

			eventBus := pkgcmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			store, err := pkgcmd.NewCheckpointStore(ctx, command.String("checkpoint-url"))
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close checkpoint store", "error", err)
				}
			}()

			manager := web.NewRunManager(cfg, registry, store, eventBus, logger)

			api := NewAPI(logger, manager, registry)

			err = api.Start(command.Int("port"))
			if err != nil {
				logger.ErrorContext(ctx, "Failed to start API server", "error", err)
			}

			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		panic(err)
	}
}

func buildConfig(command *cli.Command) (config.Config, error) {
	cfg := config.Default()

	if path := command.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return cfg, err
		}

		cfg = loaded
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
