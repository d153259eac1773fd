package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/planforge/planforge/pkg/log"
	"github.com/planforge/planforge/pkg/models"
	"github.com/planforge/planforge/pkg/planner"
)

func PlanCommand() *cli.Command {
	flags := append(configFlags(),
		&cli.StringFlag{
			Name:    "tasks",
			Usage:   "Plan a JSON task list file instead of a build request",
			Sources: cli.EnvVars("PLANFORGE_TASKS"),
		},
		&cli.BoolFlag{
			Name:  "save",
			Usage: "Save the plan JSON to the output directory",
		},
	)

	return &cli.Command{
		Name:      "plan",
		Aliases:   []string{"p"},
		Usage:     "Turn a build request into an optimized execution plan",
		ArgsUsage: "[request]",
		Flags:     flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))
			logger := log.WithModule("plan")

			cfg, err := buildConfig(command)
			if err != nil {
				return err
			}

			p := planner.NewPlanner(nil, cfg, logger)

			plan, err := createPlan(ctx, p, command)
			if err != nil {
				return err
			}

			if command.Bool("save") {
				path, err := planner.SavePlan(plan, cfg.OutputDirectory)
				if err != nil {
					return err
				}

				logger.InfoContext(ctx, "Saved plan", "path", path)
			}

			encoded, err := json.MarshalIndent(plan, "", "  ")
			if err != nil {
				return err
			}

			fmt.Fprintln(os.Stdout, string(encoded))

			return nil
		},
	}
}

func createPlan(ctx context.Context, p *planner.Planner, command *cli.Command) (*models.ExecutionPlan, error) {
	if path := command.String("tasks"); path != "" {
		list, err := planner.LoadTaskList(path)
		if err != nil {
			return nil, err
		}

		return p.PlanTasks(ctx, list.Name, list.Tasks)
	}

	request := command.Args().First()
	if request == "" {
		return nil, errors.New("a build request argument or --tasks file is required")
	}

	return p.CreatePlan(ctx, request)
}
