package main

import (
	"context"
	"errors"
	"fmt"

	cli "github.com/urfave/cli/v3"
)

func NewAnswerCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:     "option",
			Aliases:  []string{"o"},
			Usage:    "Option id to answer the pending checkpoint with",
			Required: true,
		},
		&cli.StringFlag{
			Name:  "comment",
			Usage: "Free-text comment recorded with the decision",
		},
		&cli.BoolFlag{
			Name:  "resume",
			Usage: "Continue the session after recording the decision",
		},
	}

	return &cli.Command{
		Name:      "answer",
		Usage:     "Answer the checkpoint a paused session is waiting at",
		ArgsUsage: "<session-id>",
		Flags:     append(flags, storageFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			id := command.Args().First()
			if id == "" {
				return errors.New("a session id is required")
			}

			runtime, cleanup, err := newRuntime(ctx, command, nil)
			if err != nil {
				return err
			}
			defer cleanup(ctx)

			session, err := runtime.manager.Answer(ctx, id, command.String("option"), command.String("comment"))
			if err != nil {
				return err
			}

			fmt.Printf("Recorded %q for %s at %s\n", command.String("option"), session.ID, session.Context.CurrentState)

			if !command.Bool("resume") {
				return nil
			}

			session, err = runtime.manager.Resume(ctx, id)
			if session != nil {
				printSession(session)
			}

			return err
		},
	}
}
