package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	cli "github.com/urfave/cli/v3"

	pkgcmd "github.com/planforge/planforge/pkg/cmd"
	"github.com/planforge/planforge/pkg/log"
)

func HandlersCommand() *cli.Command {
	return &cli.Command{
		Name:    "handlers",
		Aliases: []string{"h"},
		Usage:   "List registered task handlers",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "plugins-path",
				Usage:   "Path to the directory containing task handler plugins",
				Sources: cli.EnvVars("PLUGINS_PATH"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "error",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			reg := pkgcmd.NewRegistry(log.WithModule("handlers"), command.String("plugins-path"))

			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION")

			for _, factory := range reg.Factories() {
				fmt.Fprintf(w, "%s\t%s\t%s\n", factory.ID(), factory.Name(), factory.Description())
			}

			return w.Flush()
		},
	}
}
