// Package main provides the planforge CLI: plan a build request, execute the
// plan, and inspect registered handlers.
package main

import (
	"context"
	"log/slog"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "planforge",
		Usage:                 "Plan and execute build requests as task graphs",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			PlanCommand(),
			RunCommand(),
			HandlersCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("Command failed", "error", err)
		os.Exit(1)
	}
}
