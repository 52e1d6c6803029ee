package main

import (
	"context"
	"errors"
	"os"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/modelflow/pkg/hitl"
)

func NewResumeCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.BoolFlag{
			Name:  "detach",
			Usage: "Pause at checkpoints instead of prompting on the terminal",
		},
	}

	return &cli.Command{
		Name:      "resume",
		Usage:     "Resume a paused or interrupted session",
		ArgsUsage: "<session-id>",
		Flags:     append(flags, storageFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().First()
			if id == "" {
				return errors.New("a session id is required")
			}

			var handler hitl.Handler
			if !command.Bool("detach") {
				handler = promptHandler(os.Stdin, os.Stdout)
			}

			runtime, cleanup, err := newRuntime(ctx, command, handler)
			if err != nil {
				return err
			}
			defer cleanup(ctx)

			session, err := runtime.manager.Resume(ctx, id)
			if session != nil {
				printSession(session)
			}

			return err
		},
	}
}
