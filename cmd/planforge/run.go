package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/planforge/planforge/pkg/checkpoint"
	pkgcmd "github.com/planforge/planforge/pkg/cmd"
	"github.com/planforge/planforge/pkg/config"
	"github.com/planforge/planforge/pkg/engine"
	"github.com/planforge/planforge/pkg/execution"
	"github.com/planforge/planforge/pkg/log"
	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/planner"
	"github.com/planforge/planforge/pkg/tracer"
)

func RunCommand() *cli.Command {
	flags := append(configFlags(),
		&cli.StringFlag{
			Name:    "tasks",
			Usage:   "Execute a JSON task list file instead of a build request",
			Sources: cli.EnvVars("PLANFORGE_TASKS"),
		},
		&cli.StringFlag{
			Name:    "resume",
			Usage:   "Resume a previously saved plan JSON file from its checkpoint",
			Sources: cli.EnvVars("PLANFORGE_RESUME"),
		},
		&cli.BoolFlag{
			Name:  "retry-failed",
			Usage: "With --resume, re-execute tasks whose checkpointed result failed",
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
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export OpenTelemetry traces for planning and execution",
			Sources: cli.EnvVars("PLANFORGE_TRACING"),
		},
	)

	return &cli.Command{
		Name:      "run",
		Aliases:   []string{"r"},
		Usage:     "Plan a build request and execute it",
		ArgsUsage: "[request]",
		Flags:     flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("run")

			cfg, err := buildConfig(command)
			if err != nil {
				return err
			}

			reg := pkgcmd.NewRegistry(logger, command.String("plugins-path"))

			bus := pkgcmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			defer func() {
				if err := bus.Close(); err != nil {
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

			plan, err := resolvePlan(ctx, command, cfg, logger)
			if err != nil {
				return err
			}

			if command.Bool("retry-failed") {
				if command.String("resume") == "" {
					return errors.New("--retry-failed requires --resume")
				}

				if err := dropFailedRecords(ctx, store, plan.ID); err != nil {
					return err
				}
			}

			var span trace.Span

			if command.Bool("tracing") {
				tr, err := tracer.NewTracer(ctx, "planforge")
				if err != nil {
					return fmt.Errorf("failed to initialize tracing: %w", err)
				}

				ctx, span = tracer.StartSpan(ctx, tr, "plan.run",
					attribute.String(tracer.PlanIDKey, plan.ID),
					attribute.String(tracer.ProjectNameKey, plan.ProjectName),
				)
				defer span.End()
			}

			execCtx, err := execution.NewContext(plan, cfg.WorkDirectory, cfg.OutputDirectory)
			if err != nil {
				return err
			}

			result, err := engine.NewEngine(cfg, reg, store, bus, logger).Run(ctx, plan, execCtx)
			if err != nil {
				if span != nil {
					tracer.SetError(span, err)
				}

				return err
			}

			printSummary(result)

			if result.Status != models.PlanStatusCompleted {
				return fmt.Errorf("plan %s finished with status %s", result.PlanID, result.Status)
			}

			return nil
		},
	}
}

// resolvePlan picks the plan source: a saved plan file to resume, an external
// task list, or a fresh build request.
func resolvePlan(ctx context.Context, command *cli.Command, cfg config.Config, logger *slog.Logger) (*models.ExecutionPlan, error) {
	if path := command.String("resume"); path != "" {
		plan, err := planner.LoadPlan(path)
		if err != nil {
			return nil, err
		}

		logger.InfoContext(ctx, "Resuming saved plan", "plan_id", plan.ID, "path", path)

		return plan, nil
	}

	plan, err := createPlan(ctx, planner.NewPlanner(nil, cfg, logger), command)
	if err != nil {
		return nil, err
	}

	// Persisted up front so an interrupted run can be resumed.
	path, err := planner.SavePlan(plan, cfg.OutputDirectory)
	if err != nil {
		return nil, err
	}

	logger.InfoContext(ctx, "Saved plan", "plan_id", plan.ID, "path", path)

	return plan, nil
}

// dropFailedRecords rewrites a plan's checkpoint keeping only successful
// outcomes. Failed tasks run again on resume, and so do skipped tasks: a skip
// is a consequence of a failed dependency, so keeping the skip record would
// pin the task as skipped even after its dependency succeeds.
func dropFailedRecords(ctx context.Context, store checkpoint.Store, planID string) error {
	cp, err := store.Load(ctx, planID)
	if err != nil {
		return err
	}

	if len(cp.Records) == 0 {
		return nil
	}

	if err := store.Clear(ctx, planID); err != nil {
		return err
	}

	for _, record := range cp.Records {
		if !record.Result.Success {
			continue
		}

		if err := store.Save(ctx, planID, record.TaskID, record.Result); err != nil {
			return err
		}
	}

	return nil
}

func printSummary(result *engine.RunResult) {
	succeeded, failed, skipped := 0, 0, 0

	for _, r := range result.Results {
		switch {
		case r.Skipped:
			skipped++
		case r.Success:
			succeeded++
		default:
			failed++
		}
	}

	fmt.Fprintf(os.Stdout, "Plan %s: %s\n", result.PlanID, result.Status)
	fmt.Fprintf(os.Stdout, "  succeeded: %d  failed: %d  skipped: %d  restored: %d\n",
		succeeded, failed, skipped, result.Restored)
	fmt.Fprintf(os.Stdout, "  duration: %s\n", result.Duration.Round(time.Millisecond))

	if result.ReportPath != "" {
		fmt.Fprintf(os.Stdout, "  report: %s\n", result.ReportPath)
	}
}
