// Package web provides the HTTP handlers for the session API: starting,
// inspecting, answering and resuming workflow sessions.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/dukex/modelflow/pkg/hitl"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/orchestrator"
	"github.com/dukex/modelflow/pkg/persistence"
)

type APIHandlers struct {
	manager   *orchestrator.Manager
	store     persistence.Persistence
	policy    *hitl.Policy
	validator *validator.Validate
}

func NewAPIHandlers(
	manager *orchestrator.Manager,
	store persistence.Persistence,
	policy *hitl.Policy,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		manager:   manager,
		store:     store,
		policy:    policy,
		validator: validator,
	}
}

func (h *APIHandlers) GetSessions(c fiber.Ctx) error {
	summaries, err := h.manager.List(c.Context())
	if err != nil {
		return handleManagerError(c, err)
	}

	if status := c.Query("status"); status != "" {
		filtered := make([]models.SessionSummary, 0, len(summaries))

		for _, summary := range summaries {
			if summary.Status == models.SessionStatus(status) {
				filtered = append(filtered, summary)
			}
		}

		summaries = filtered
	}

	return c.JSON(fiber.Map{
		"sessions":    summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) GetResumableSessions(c fiber.Ctx) error {
	summaries, err := h.manager.ListResumable(c.Context())
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.JSON(fiber.Map{
		"sessions":    summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) StartSession(c fiber.Ctx) error {
	var req StartSessionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	opts, err := req.Options()
	if err != nil {
		return badRequest(c, "Invalid max_training_time: "+err.Error())
	}

	summary, err := h.manager.StartDetached(c.Context(), req.DatasetPath, opts)
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(summary)
}

func (h *APIHandlers) GetSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	session, err := h.manager.Get(c.Context(), id)
	if err != nil {
		return handleManagerError(c, err)
	}

	if session == nil {
		return notFound(c, "session not found")
	}

	return c.JSON(h.sessionResponse(session))
}

func (h *APIHandlers) ResumeSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	summary, err := h.manager.ResumeDetached(c.Context(), id)
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(summary)
}

func (h *APIHandlers) AnswerCheckpoint(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	var req AnswerCheckpointRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	session, err := h.manager.Answer(c.Context(), id, req.OptionID, req.Comment)
	if err != nil {
		return handleManagerError(c, err)
	}

	if req.Resume {
		summary, err := h.manager.ResumeDetached(c.Context(), id)
		if err != nil {
			return handleManagerError(c, err)
		}

		return c.Status(fiber.StatusAccepted).JSON(summary)
	}

	return c.JSON(h.sessionResponse(session))
}

func (h *APIHandlers) GetCheckpoints(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	session, err := h.manager.Get(c.Context(), id)
	if err != nil {
		return handleManagerError(c, err)
	}

	if session == nil {
		return notFound(c, "session not found")
	}

	checkpoints, err := h.store.Checkpoints(c.Context(), id)
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.JSON(fiber.Map{
		"checkpoints": checkpoints,
		"total_count": len(checkpoints),
	})
}

func (h *APIHandlers) GetDecisions(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	session, err := h.manager.Get(c.Context(), id)
	if err != nil {
		return handleManagerError(c, err)
	}

	if session == nil {
		return notFound(c, "session not found")
	}

	decisions, err := h.store.Decisions(c.Context(), id)
	if err != nil {
		return handleManagerError(c, err)
	}

	return c.JSON(fiber.Map{
		"decisions":   decisions,
		"total_count": len(decisions),
	})
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	storeErr := h.store.HealthCheck(c.Context())

	status := "healthy"
	message := "Modelflow API is healthy"
	httpStatus := http.StatusOK
	storeCheck := "ok"

	if storeErr != nil {
		status = "unhealthy"
		message = "Modelflow API is unhealthy"
		httpStatus = http.StatusInternalServerError
		storeCheck = storeErr.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"store": storeCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

// sessionResponse projects the session, rendering the pending checkpoint for
// a paused session so the caller can answer it without extra round trips.
func (h *APIHandlers) sessionResponse(session *models.Session) SessionResponse {
	response := SessionResponse{Session: session}

	if session.Status != models.SessionStatusPaused {
		return response
	}

	state := session.Context.CurrentState

	// An already-answered checkpoint is no longer pending. Decisions the
	// orchestrator has acted on belong to an earlier visit of this state.
	if decision, ok := session.Context.DecisionFor(state); ok && !decision.Automatic && !decision.Applied {
		return response
	}

	definition, ok := hitl.DefinitionFor(state)
	if !ok {
		return response
	}

	request := h.policy.BuildRequest(state, session.Context)

	options := make([]OptionResponse, len(definition.Options))
	for i, option := range definition.Options {
		options[i] = OptionResponse{ID: option.ID, Label: option.Label}
	}

	response.PendingCheckpoint = &PendingCheckpoint{
		State:   state,
		Title:   request.Title,
		Summary: request.Summary,
		Options: options,
	}

	return response
}
