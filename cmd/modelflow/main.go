package main

import (
	"context"
	"fmt"
	"os"

	cli "github.com/urfave/cli/v3"
)

func main() {
	cmd := &cli.Command{
		Name:                  "modelflow",
		Usage:                 "Run and manage adaptive model-building sessions",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			NewRunCommand(),
			NewResumeCommand(),
			NewAnswerCommand(),
			NewSessionsCommand(),
			NewDiscoverCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
