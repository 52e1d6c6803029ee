package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/modelflow/pkg/confidence"
	"github.com/dukex/modelflow/pkg/dataset"
	"github.com/dukex/modelflow/pkg/discovery"
	"github.com/dukex/modelflow/pkg/log"
)

func NewDiscoverCommand() *cli.Command {
	flags := []cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "warn",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}

	return &cli.Command{
		Name:      "discover",
		Usage:     "Run rule discovery against a dataset and report the findings",
		ArgsUsage: "<dataset-path>",
		Flags:     flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errors.New("a dataset path is required")
			}

			log.Setup(command.String("log-level"))

			table, err := dataset.Load(path)
			if err != nil {
				return fmt.Errorf("failed to load dataset: %w", err)
			}

			engine := discovery.NewEngine(log.WithModule("discovery"))

			result, err := engine.Discover(ctx, table, nil)
			if err != nil {
				return err
			}

			fmt.Printf("Dataset: %s (%d rows)\n", path, table.RowCount())
			fmt.Printf("Stages run: %d", result.StagesRun)

			if result.ConvergedEarly {
				fmt.Print(" (converged early)")
			}

			fmt.Printf("\nRules: %d total, %d auto-fixable, %d need a decision\n\n",
				len(result.Rules), len(result.AutoFixable), len(result.NeedsDecision))

			for _, rule := range result.Rules {
				marker := "auto"
				if rule.RequiresHITL {
					marker = "review"
				}

				fmt.Printf("  [%s] %s (%s)\n", marker, rule.Description, strings.Join(rule.Columns, ", "))
				fmt.Printf("         confidence %.3f (%s), affects %d rows\n",
					rule.Confidence.Overall, confidence.LevelFor(rule.Confidence.Overall), rule.AffectedRows)
			}

			for _, exception := range result.Exceptions {
				fmt.Printf("  demoted %s: exception rate %.1f%% at stage %d\n",
					exception.RuleID, exception.Rate*100, exception.Stage)
			}

			return nil
		},
	}
}
