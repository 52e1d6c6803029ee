package main

import (
	"context"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/modelflow/pkg/hitl"
	"github.com/dukex/modelflow/pkg/models"
)

func NewRunCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "dataset",
			Aliases:  []string{"d"},
			Usage:    "Path to the dataset to run the workflow against",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "target-column",
			Usage: "Column to predict (auto-detected if not provided)",
		},
		&cli.StringFlag{
			Name:  "task-type",
			Usage: "Task type (classification, regression, forecasting)",
		},
		&cli.DurationFlag{
			Name:  "max-training-time",
			Usage: "Upper bound for the training stage",
		},
		&cli.FloatFlag{
			Name:  "auto-approve-threshold",
			Usage: "Tighten checkpoint auto-approval to this confidence (0 keeps the defaults)",
		},
		&cli.BoolFlag{
			Name:  "skip-hitl",
			Usage: "Approve every checkpoint automatically",
		},
		&cli.BoolFlag{
			Name:  "detach",
			Usage: "Pause at checkpoints instead of prompting on the terminal",
		},
	}

	return &cli.Command{
		Name:    "run",
		Aliases: []string{"r"},
		Usage:   "Run the workflow end to end for a dataset",
		Flags:   append(flags, storageFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			var handler hitl.Handler
			if !command.Bool("detach") && !command.Bool("skip-hitl") {
				handler = promptHandler(os.Stdin, os.Stdout)
			}

			runtime, cleanup, err := newRuntime(ctx, command, handler)
			if err != nil {
				return err
			}
			defer cleanup(ctx)

			opts := models.SessionOptions{
				TargetColumn:         command.String("target-column"),
				TaskType:             command.String("task-type"),
				MaxTrainingTime:      command.Duration("max-training-time"),
				AutoApproveThreshold: command.Float("auto-approve-threshold"),
				SkipHITL:             command.Bool("skip-hitl"),
			}

			session, err := runtime.manager.Start(ctx, command.String("dataset"), opts)
			if session != nil {
				printSession(session)
			}

			return err
		},
	}
}
