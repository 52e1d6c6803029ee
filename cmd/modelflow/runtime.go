package main

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	cli "github.com/urfave/cli/v3"

	"github.com/dukex/modelflow/pkg/cmd"
	"github.com/dukex/modelflow/pkg/collaborators/local"
	"github.com/dukex/modelflow/pkg/eventbus"
	"github.com/dukex/modelflow/pkg/hitl"
	"github.com/dukex/modelflow/pkg/log"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/orchestrator"
	"github.com/dukex/modelflow/pkg/persistence"
)

// storageFlags are shared by every command that touches the session store.
func storageFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Session store URL (file path, redis:// or postgres://)",
			Value:   "./.modelflow",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (gochannel, kafka)",
			Value:   "gochannel",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

type runtime struct {
	logger  *slog.Logger
	store   persistence.Persistence
	bus     eventbus.EventBus
	manager *orchestrator.Manager
}

// newRuntime wires the store, event bus and session manager for one command
// invocation. The returned cleanup closes both backends.
func newRuntime(ctx context.Context, command *cli.Command, handler hitl.Handler) (*runtime, func(context.Context), error) {
	log.Setup(command.String("log-level"))

	logger := log.WithModule("modelflow")

	store, err := cmd.NewPersistence(ctx, logger, command.String("database-url"))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open session store: %w", err)
	}

	bus, err := cmd.NewEventBus(command.String("event-bus"), "modelflow", logger)
	if err != nil {
		_ = store.Close(ctx)

		return nil, nil, fmt.Errorf("failed to create event bus: %w", err)
	}

	orch := orchestrator.New(orchestrator.Config{
		Store:         store,
		Bus:           bus,
		Collaborators: local.NewCollaborators(logger),
		Handler:       handler,
		Logger:        logger,
	})

	runtime := &runtime{
		logger:  logger,
		store:   store,
		bus:     bus,
		manager: orchestrator.NewManager(orch, logger),
	}

	cleanup := func(ctx context.Context) {
		if err := bus.Close(); err != nil {
			logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
		}

		if err := store.Close(ctx); err != nil {
			logger.ErrorContext(ctx, "Failed to close session store", "error", err)
		}
	}

	return runtime, cleanup, nil
}

// printSession renders the outcome of a run for the terminal.
func printSession(session *models.Session) {
	fmt.Printf("\nSession: %s\n", session.ID)
	fmt.Printf("Status:  %s\n", session.Status)
	fmt.Printf("State:   %s\n", session.Context.CurrentState)

	if len(session.Context.Artifacts) > 0 {
		fmt.Println("Artifacts:")

		names := make([]string, 0, len(session.Context.Artifacts))
		for name := range session.Context.Artifacts {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			fmt.Printf("  %s: %s\n", name, session.Context.Artifacts[name])
		}
	}

	if session.Context.Evaluation != nil {
		fmt.Println("Metrics:")

		names := make([]string, 0, len(session.Context.Evaluation.Metrics))
		for name := range session.Context.Evaluation.Metrics {
			names = append(names, name)
		}

		sort.Strings(names)

		for _, name := range names {
			fmt.Printf("  %s: %.4f\n", name, session.Context.Evaluation.Metrics[name])
		}
	}

	if len(session.Context.Errors) > 0 {
		last := session.Context.Errors[len(session.Context.Errors)-1]
		fmt.Printf("Last error at %s: %s\n", last.State, last.Message)
	}

	if session.Status == models.SessionStatusPaused {
		fmt.Printf("\nSession is waiting for a decision at %s.\n", session.Context.CurrentState)
		fmt.Printf("Answer it with: modelflow answer %s --option <id>\n", session.ID)
	}
}
