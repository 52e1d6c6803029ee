package main

import (
	"context"
	"fmt"
	"time"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/modelflow/pkg/models"
)

func NewSessionsCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "resumable",
			Usage: "Only list sessions that can be resumed",
		},
	}

	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"ls"},
		Usage:   "List stored sessions",
		Flags:   append(flags, storageFlags()...),
		Commands: []*cli.Command{
			NewSweepCommand(),
		},
		Action: func(ctx context.Context, command *cli.Command) error {
			runtime, cleanup, err := newRuntime(ctx, command, nil)
			if err != nil {
				return err
			}
			defer cleanup(ctx)

			var summaries []models.SessionSummary
			if command.Bool("resumable") {
				summaries, err = runtime.manager.ListResumable(ctx)
			} else {
				summaries, err = runtime.manager.List(ctx)
			}

			if err != nil {
				return fmt.Errorf("failed to list sessions: %w", err)
			}

			if len(summaries) == 0 {
				fmt.Println("No sessions found.")

				return nil
			}

			for _, summary := range summaries {
				fmt.Printf("%s  %-10s %-22s %s  %s\n",
					summary.ID,
					summary.Status,
					summary.CurrentState,
					summary.UpdatedAt.Format(time.RFC3339),
					summary.DatasetPath,
				)
			}

			fmt.Printf("\nTotal sessions: %d\n", len(summaries))

			return nil
		},
	}
}

func NewSweepCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.DurationFlag{
			Name:  "retention",
			Usage: "Delete finished sessions older than this",
			Value: 30 * 24 * time.Hour,
		},
	}

	return &cli.Command{
		Name:  "sweep",
		Usage: "Delete finished sessions past the retention window",
		Flags: append(flags, storageFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			runtime, cleanup, err := newRuntime(ctx, command, nil)
			if err != nil {
				return err
			}
			defer cleanup(ctx)

			return runtime.manager.Sweep(ctx, command.Duration("retention"))
		},
	}
}
