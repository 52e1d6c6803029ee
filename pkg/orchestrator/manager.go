package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/robfig/cron/v3"

	"github.com/dukex/modelflow/pkg/events"
	"github.com/dukex/modelflow/pkg/hitl"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/persistence"
)

// ErrDatasetPathRequired rejects a session start without a dataset.
var ErrDatasetPathRequired = errors.New("dataset path is required")

// ErrSessionNotAwaitingDecision rejects a checkpoint answer for a session
// that is not paused at a checkpoint.
var ErrSessionNotAwaitingDecision = errors.New("session is not awaiting a decision")

// ErrUnknownOption rejects a checkpoint answer whose option id is not offered
// at the checkpoint the session is paused at.
var ErrUnknownOption = errors.New("unknown checkpoint option")

// Manager owns the session lifecycle around the orchestrator: starting,
// resuming, listing and retention of finished sessions.
type Manager struct {
	orchestrator *Orchestrator
	validate     *validator.Validate
	cron         *cron.Cron
	logger       *slog.Logger
}

// NewManager builds a manager around an orchestrator.
func NewManager(orchestrator *Orchestrator, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	return &Manager{
		orchestrator: orchestrator,
		validate:     validator.New(validator.WithRequiredStructEnabled()),
		logger:       logger,
	}
}

// Start creates a session and runs it until terminal or paused. The session
// is returned in both cases; the error reflects a stage failure.
func (m *Manager) Start(ctx context.Context, datasetPath string, opts models.SessionOptions) (*models.Session, error) {
	session, err := m.begin(ctx, datasetPath, opts)
	if err != nil {
		return nil, err
	}

	return session, m.orchestrator.Run(ctx, session)
}

// StartDetached creates and persists the session like Start, then runs the
// advance loop on a background goroutine. For callers that cannot block on
// the run, such as HTTP handlers. The returned summary is snapshotted before
// the run starts; the background run owns the session afterwards.
func (m *Manager) StartDetached(ctx context.Context, datasetPath string, opts models.SessionOptions) (models.SessionSummary, error) {
	session, err := m.begin(ctx, datasetPath, opts)
	if err != nil {
		return models.SessionSummary{}, err
	}

	summary := session.Summary()
	m.runDetached(ctx, session)

	return summary, nil
}

func (m *Manager) begin(ctx context.Context, datasetPath string, opts models.SessionOptions) (*models.Session, error) {
	if datasetPath == "" {
		return nil, ErrDatasetPathRequired
	}

	if err := m.validate.Struct(opts); err != nil {
		return nil, fmt.Errorf("invalid session options: %w", err)
	}

	session := models.NewSession(datasetPath, opts)

	if err := m.orchestrator.persist(ctx, session); err != nil {
		return nil, err
	}

	m.orchestrator.publish(ctx, session.ID, events.SessionStarted{
		BaseEvent:   events.NewBaseEvent(events.SessionStartedEvent, session.ID),
		DatasetPath: datasetPath,
		Options:     opts,
	})

	m.logger.Info("session started", "session_id", session.ID, "dataset", datasetPath)

	return session, nil
}

// Resume loads a paused or interrupted session and re-enters the advance
// loop. The machine is fully determined by the session context, so a freshly
// loaded session continues exactly where it stopped.
func (m *Manager) Resume(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.reopen(ctx, id)
	if err != nil {
		return nil, err
	}

	return session, m.orchestrator.Run(ctx, session)
}

// ResumeDetached reopens the session like Resume, then runs the advance loop
// on a background goroutine. The returned summary is snapshotted before the
// run starts.
func (m *Manager) ResumeDetached(ctx context.Context, id string) (models.SessionSummary, error) {
	session, err := m.reopen(ctx, id)
	if err != nil {
		return models.SessionSummary{}, err
	}

	summary := session.Summary()
	m.runDetached(ctx, session)

	return summary, nil
}

func (m *Manager) reopen(ctx context.Context, id string) (*models.Session, error) {
	session, err := m.orchestrator.store.SessionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if session == nil {
		return nil, persistence.NewStoreError("resume", id, persistence.ErrSessionNotFound)
	}

	if !session.CanResume() {
		return nil, persistence.NewStoreError("resume", id, persistence.ErrSessionNotResumable)
	}

	session.Status = models.SessionStatusActive

	if err := m.orchestrator.persist(ctx, session); err != nil {
		return nil, err
	}

	m.orchestrator.publish(ctx, session.ID, events.SessionResumed{
		BaseEvent: events.NewBaseEvent(events.SessionResumedEvent, session.ID),
		State:     session.Context.CurrentState,
	})

	m.logger.Info("session resumed", "session_id", session.ID, "state", session.Context.CurrentState)

	return session, nil
}

// runDetached drives the session on its own goroutine, detached from the
// caller's cancellation.
func (m *Manager) runDetached(ctx context.Context, session *models.Session) {
	runCtx := context.WithoutCancel(ctx)

	go func() {
		if err := m.orchestrator.Run(runCtx, session); err != nil {
			m.logger.Error("detached session run failed", "session_id", session.ID, "error", err)
		}
	}()
}

// Answer records a human decision for the checkpoint a paused session is
// waiting at. The session stays paused; Resume or ResumeDetached applies the
// decision and moves on.
func (m *Manager) Answer(ctx context.Context, id, optionID, comment string) (*models.Session, error) {
	session, err := m.orchestrator.store.SessionByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if session == nil {
		return nil, persistence.NewStoreError("answer", id, persistence.ErrSessionNotFound)
	}

	if session.Status != models.SessionStatusPaused {
		return nil, persistence.NewStoreError("answer", id, ErrSessionNotAwaitingDecision)
	}

	state := session.Context.CurrentState

	definition, ok := hitl.DefinitionFor(state)
	if !ok {
		return nil, persistence.NewStoreError("answer", id, ErrSessionNotAwaitingDecision)
	}

	if !offersOption(definition, optionID) {
		return nil, fmt.Errorf("%w: %q at %s", ErrUnknownOption, optionID, state)
	}

	request := m.orchestrator.policy.BuildRequest(state, session.Context)

	decision := models.HitlDecision{
		CheckpointID: request.ID,
		State:        state,
		OptionID:     optionID,
		Comment:      comment,
		Confidence:   m.orchestrator.confidenceFor(session, state),
		DecidedAt:    time.Now().UTC(),
		Latency:      time.Since(session.UpdatedAt),
	}

	m.orchestrator.recordDecision(ctx, session, decision)

	if err := m.orchestrator.persist(ctx, session); err != nil {
		return nil, err
	}

	m.logger.Info("checkpoint answered",
		"session_id", session.ID, "state", state, "option", optionID)

	return session, nil
}

func offersOption(definition hitl.Definition, optionID string) bool {
	for _, option := range definition.Options {
		if option.ID == optionID {
			return true
		}
	}

	return false
}

// Get returns a session by id, (nil, nil) when absent.
func (m *Manager) Get(ctx context.Context, id string) (*models.Session, error) {
	return m.orchestrator.store.SessionByID(ctx, id)
}

// List returns summaries of every stored session.
func (m *Manager) List(ctx context.Context) ([]models.SessionSummary, error) {
	return m.orchestrator.store.Sessions(ctx)
}

// ListResumable returns summaries of the sessions Resume would accept.
func (m *Manager) ListResumable(ctx context.Context) ([]models.SessionSummary, error) {
	return m.orchestrator.store.ResumableSessions(ctx)
}

// StartRetentionSweeper schedules deletion of terminal sessions older than
// retention. The schedule is a cron expression.
func (m *Manager) StartRetentionSweeper(schedule string, retention time.Duration) error {
	if m.cron != nil {
		return errors.New("retention sweeper already running")
	}

	c := cron.New()

	_, err := c.AddFunc(schedule, func() {
		if err := m.Sweep(context.Background(), retention); err != nil {
			m.logger.Error("retention sweep failed", "error", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	c.Start()
	m.cron = c

	m.logger.Info("retention sweeper started", "schedule", schedule, "retention", retention)

	return nil
}

// StopRetentionSweeper stops the sweeper and waits for a running sweep.
func (m *Manager) StopRetentionSweeper() {
	if m.cron == nil {
		return
	}

	<-m.cron.Stop().Done()
	m.cron = nil
}

// Sweep deletes terminal sessions whose last update is older than retention.
func (m *Manager) Sweep(ctx context.Context, retention time.Duration) error {
	summaries, err := m.orchestrator.store.Sessions(ctx)
	if err != nil {
		return err
	}

	cutoff := time.Now().UTC().Add(-retention)
	swept := 0

	for _, summary := range summaries {
		if !terminalStatus(summary.Status) || summary.UpdatedAt.After(cutoff) {
			continue
		}

		if err := m.orchestrator.store.DeleteSession(ctx, summary.ID); err != nil {
			m.logger.Warn("failed to delete expired session", "session_id", summary.ID, "error", err)

			continue
		}

		swept++
	}

	if swept > 0 {
		m.logger.Info("retention sweep complete", "deleted", swept)
	}

	return nil
}

func terminalStatus(status models.SessionStatus) bool {
	switch status {
	case models.SessionStatusCompleted, models.SessionStatusFailed, models.SessionStatusCancelled:
		return true
	default:
		return false
	}
}
