// Package main provides the Modelflow API server implementation.
package main

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"

	"github.com/dukex/modelflow/pkg/collaborators/local"
	"github.com/dukex/modelflow/pkg/eventbus"
	"github.com/dukex/modelflow/pkg/hitl"
	"github.com/dukex/modelflow/pkg/orchestrator"
	"github.com/dukex/modelflow/pkg/persistence"
	"github.com/dukex/modelflow/pkg/web"
)

type API struct {
	logger   *slog.Logger
	store    persistence.Persistence
	eventBus eventbus.EventBus
	manager  *orchestrator.Manager
	validate *validator.Validate
}

func NewAPI(
	logger *slog.Logger,
	store persistence.Persistence,
	eventBus eventbus.EventBus,
) *API {
	orch := orchestrator.New(orchestrator.Config{
		Store:         store,
		Bus:           eventBus,
		Collaborators: local.NewCollaborators(logger),
		Logger:        logger,
	})

	return &API{
		logger:   logger,
		store:    store,
		eventBus: eventBus,
		manager:  orchestrator.NewManager(orch, logger),
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}
}

func (a *API) App() *fiber.App {
	policy := hitl.NewPolicy(hitl.DefaultConfig(), a.logger)
	handlers := web.NewAPIHandlers(a.manager, a.store, policy, a.validate)

	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("Modelflow API")
	})

	s := app.Group("/sessions")
	s.Get("/", handlers.GetSessions)
	s.Post("/", handlers.StartSession)
	s.Get("/resumable", handlers.GetResumableSessions)
	s.Get("/:id", handlers.GetSession)
	s.Post("/:id/resume", handlers.ResumeSession)
	s.Get("/:id/checkpoints", handlers.GetCheckpoints)
	s.Get("/:id/decisions", handlers.GetDecisions)
	s.Post("/:id/decisions", handlers.AnswerCheckpoint)

	app.Get("/health", handlers.HealthCheck)

	return app
}

func (a *API) StartRetentionSweeper(schedule string, retention time.Duration) error {
	return a.manager.StartRetentionSweeper(schedule, retention)
}

func (a *API) StopRetentionSweeper() {
	a.manager.StopRetentionSweeper()
}

func (a *API) Start(port int) error {
	app := a.App()

	return app.Listen(":" + strconv.Itoa(port))
}
