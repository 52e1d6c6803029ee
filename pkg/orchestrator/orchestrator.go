// Package orchestrator drives a session through the workflow state machine:
// one collaborator call or checkpoint per state, a persisted transition after
// every stage, and pause/resume at any checkpoint.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/modelflow/pkg/dataset"
	"github.com/dukex/modelflow/pkg/discovery"
	"github.com/dukex/modelflow/pkg/eventbus"
	"github.com/dukex/modelflow/pkg/events"
	"github.com/dukex/modelflow/pkg/hitl"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/otelhelper"
	"github.com/dukex/modelflow/pkg/persistence"
	"github.com/dukex/modelflow/pkg/protocol"
)

const saveAttempts = 3

// confidenceMetadataKey stashes the discovery confidence between the
// preprocessing stage and its review.
const confidenceMetadataKey = "preprocessing_confidence"

// Config wires an orchestrator.
type Config struct {
	Store         persistence.Persistence
	Bus           eventbus.EventPublisher
	Collaborators protocol.Collaborators
	Policy        *hitl.Policy
	Handler       hitl.Handler
	Logger        *slog.Logger
}

// Orchestrator executes sessions. It is safe to share across sessions; each
// session must only ever be advanced by one goroutine at a time.
type Orchestrator struct {
	store         persistence.Persistence
	bus           eventbus.EventPublisher
	collaborators protocol.Collaborators
	policy        *hitl.Policy
	handler       hitl.Handler
	engine        *discovery.Engine
	tracer        trace.Tracer
	logger        *slog.Logger
}

// New builds an orchestrator. Bus and Handler may be nil: a nil bus drops
// events, a nil handler pauses the session at every triggered checkpoint.
func New(config Config) *Orchestrator {
	logger := config.Logger
	if logger == nil {
		logger = slog.Default()
	}

	policy := config.Policy
	if policy == nil {
		policy = hitl.NewPolicy(hitl.DefaultConfig(), logger)
	}

	return &Orchestrator{
		store:         config.Store,
		bus:           config.Bus,
		collaborators: config.Collaborators,
		policy:        policy,
		handler:       config.Handler,
		engine:        discovery.NewEngine(logger),
		tracer:        otel.Tracer("modelflow.orchestrator"),
		logger:        logger,
	}
}

// Run advances the session until it is terminal or paused.
func (o *Orchestrator) Run(ctx context.Context, session *models.Session) error {
	for {
		if session.IsTerminal() || session.Context.CurrentState.IsTerminal() {
			return nil
		}

		if session.Status == models.SessionStatusPaused {
			return nil
		}

		if err := o.Advance(ctx, session); err != nil {
			return err
		}
	}
}

// Advance executes exactly the action bound to the session's current state,
// records the resulting transition and persists the session. A checkpoint
// without a handler leaves the session paused with its state unchanged and
// returns nil.
func (o *Orchestrator) Advance(ctx context.Context, session *models.Session) error {
	if session.IsTerminal() || session.Context.CurrentState.IsTerminal() {
		return nil
	}

	if err := ctx.Err(); err != nil {
		return o.cancel(ctx, session, "context cancelled")
	}

	state := session.Context.CurrentState

	spanCtx, span := otelhelper.StartSpan(ctx, o.tracer, "session.advance",
		attribute.String(otelhelper.SessionIDKey, session.ID),
		attribute.String(otelhelper.StateKey, string(state)),
	)
	defer span.End()

	started := time.Now()

	o.publish(spanCtx, session.ID, events.PhaseStarted{
		BaseEvent: events.NewBaseEvent(events.PhaseStartedEvent, session.ID),
		State:     state,
	})

	if state.IsReview() {
		return o.review(spanCtx, span, session, state)
	}

	if err := o.execute(spanCtx, session, state); err != nil {
		otelhelper.SetError(span, err)

		return o.fail(spanCtx, session, state, err)
	}

	o.complete(spanCtx, session, state, time.Since(started))

	return o.persist(spanCtx, session)
}

// execute runs the non-review action bound to state.
func (o *Orchestrator) execute(ctx context.Context, session *models.Session, state models.State) error {
	sessionContext := session.Context

	switch state {
	case models.StateNotStarted:
		return nil
	case models.StateInitializing:
		return o.initialize(sessionContext)
	case models.StateAnalysis:
		return o.analyze(ctx, session)
	case models.StateRecommendation:
		return o.recommend(ctx, session)
	case models.StatePreprocessing:
		return o.preprocess(ctx, session)
	case models.StateTraining:
		return o.train(ctx, session)
	case models.StateEvaluation:
		return o.evaluate(ctx, session)
	case models.StateDeployment:
		return o.deploy(ctx, session)
	default:
		return fmt.Errorf("no action bound to state %q", state)
	}
}

func (o *Orchestrator) initialize(sessionContext *models.SessionContext) error {
	table, err := dataset.Load(sessionContext.DatasetPath)
	if err != nil {
		return fmt.Errorf("dataset is not readable: %w", err)
	}

	if table.RowCount() == 0 {
		return fmt.Errorf("dataset %s: %w", sessionContext.DatasetPath, dataset.ErrEmptyDataset)
	}

	return nil
}

func (o *Orchestrator) analyze(ctx context.Context, session *models.Session) error {
	result, err := o.callAnalyzer(ctx, session)
	if err != nil {
		return err
	}

	if o.collaborators.Memory != nil {
		if insights, ok := o.collaborators.Memory.Insights(ctx, session.Context.DatasetPath); ok {
			result.Insights = append(result.Insights, insights...)
		}
	}

	session.Context.Analysis = result

	return nil
}

func (o *Orchestrator) callAnalyzer(ctx context.Context, session *models.Session) (*models.AnalysisResult, error) {
	var result *models.AnalysisResult

	err := o.callCollaborator(ctx, session, models.StateAnalysis, "analyzer", func() error {
		var err error
		result, err = o.collaborators.Analyzer.Analyze(ctx, session.Context.DatasetPath, session.Context.Options)

		return err
	})

	return result, err
}

func (o *Orchestrator) recommend(ctx context.Context, session *models.Session) error {
	return o.callCollaborator(ctx, session, models.StateRecommendation, "recommender", func() error {
		result, err := o.collaborators.Recommender.Recommend(ctx, session.Context.Analysis, session.Context.Options)
		if err != nil {
			return err
		}

		session.Context.Recommendation = result

		return nil
	})
}

// preprocess discovers rules over the dataset, reuses any earlier review
// decision by rule signature, then applies the eligible rules.
func (o *Orchestrator) preprocess(ctx context.Context, session *models.Session) error {
	return o.callCollaborator(ctx, session, models.StatePreprocessing, "preprocessor", func() error {
		table, err := dataset.Load(session.Context.DatasetPath)
		if err != nil {
			return fmt.Errorf("failed to load dataset: %w", err)
		}

		lookup := func(string) (models.HitlDecision, bool) {
			return session.Context.DecisionFor(models.StatePreprocessingReview)
		}

		discovered, err := o.engine.Discover(ctx, table, lookup)
		if err != nil {
			return err
		}

		result, err := o.collaborators.Preprocessor.Preprocess(ctx, session.Context.DatasetPath, discovered.Rules)
		if err != nil {
			return err
		}

		for _, rule := range discovered.PendingDecisions {
			result.PendingRuleIDs = append(result.PendingRuleIDs, rule.ID)
		}

		session.Context.Preprocessing = result
		session.Context.Artifacts["cleaned_dataset"] = result.OutputPath
		session.Metadata[confidenceMetadataKey] = discovered.OverallConfidence()

		return nil
	})
}

func (o *Orchestrator) train(ctx context.Context, session *models.Session) error {
	return o.callCollaborator(ctx, session, models.StateTraining, "trainer", func() error {
		result, err := o.collaborators.Trainer.Train(ctx,
			o.trainingDataset(session), session.Context.Recommendation, session.Context.Options)
		if err != nil {
			return err
		}

		session.Context.Training = result

		return nil
	})
}

func (o *Orchestrator) evaluate(ctx context.Context, session *models.Session) error {
	return o.callCollaborator(ctx, session, models.StateEvaluation, "evaluator", func() error {
		result, err := o.collaborators.Evaluator.Evaluate(ctx, o.trainingDataset(session), session.Context.Training)
		if err != nil {
			return err
		}

		session.Context.Evaluation = result

		return nil
	})
}

func (o *Orchestrator) deploy(ctx context.Context, session *models.Session) error {
	return o.callCollaborator(ctx, session, models.StateDeployment, "deployer", func() error {
		optionID := "save"
		if decision, ok := session.Context.DecisionFor(models.StateDeploymentReview); ok {
			optionID = decision.OptionID
		}

		result, err := o.collaborators.Deployer.Deploy(ctx, session.Context.Training, optionID)
		if err != nil {
			return err
		}

		session.Context.Deployment = result
		session.Context.Artifacts["model"] = result.ModelPath

		return nil
	})
}

// workflowOrder is the happy-path stage sequence, used to report coarse
// progress to subscribers.
var workflowOrder = []models.State{
	models.StateNotStarted,
	models.StateInitializing,
	models.StateAnalysis,
	models.StateAnalysisReview,
	models.StateRecommendation,
	models.StateRecommendationReview,
	models.StatePreprocessing,
	models.StatePreprocessingReview,
	models.StateTraining,
	models.StateTrainingReview,
	models.StateEvaluation,
	models.StateDeploymentReview,
	models.StateDeployment,
	models.StateCompleted,
}

func progressFor(state models.State) float64 {
	for i, step := range workflowOrder {
		if step == state {
			return float64(i) / float64(len(workflowOrder)-1)
		}
	}

	return 0
}

// trainingDataset prefers the cleaned copy when preprocessing produced one.
func (o *Orchestrator) trainingDataset(session *models.Session) string {
	if session.Context.Preprocessing != nil && session.Context.Preprocessing.OutputPath != "" {
		return session.Context.Preprocessing.OutputPath
	}

	return session.Context.DatasetPath
}

// callCollaborator wraps one collaborator call with started/completed events.
func (o *Orchestrator) callCollaborator(ctx context.Context, session *models.Session, state models.State, name string, call func() error) error {
	o.publish(ctx, session.ID, events.CollaboratorStarted{
		BaseEvent:    events.NewBaseEvent(events.CollaboratorStartedEvent, session.ID),
		State:        state,
		Collaborator: name,
	})

	started := time.Now()
	err := call()

	completed := events.CollaboratorCompleted{
		BaseEvent:    events.NewBaseEvent(events.CollaboratorCompletedEvent, session.ID),
		State:        state,
		Collaborator: name,
		Duration:     time.Since(started),
	}
	if err != nil {
		completed.Error = err.Error()
	}

	o.publish(ctx, session.ID, completed)

	return err
}

// complete records the transition out of a finished non-review stage, takes a
// checkpoint snapshot and emits the progress events.
func (o *Orchestrator) complete(ctx context.Context, session *models.Session, state models.State, duration time.Duration) {
	checkpoint := models.NewCheckpoint(state, fmt.Sprintf("after %s", state), *session.Context)
	session.Checkpoints = append(session.Checkpoints, checkpoint)

	if err := o.store.SaveCheckpoint(ctx, session.ID, checkpoint); err != nil &&
		!errors.Is(err, persistence.ErrCheckpointExists) {
		o.logger.Warn("failed to save checkpoint snapshot",
			"session_id", session.ID, "checkpoint_id", checkpoint.ID, "error", err)
	}

	next := state.Next()
	session.RecordTransition(next, "stage completed")

	o.publish(ctx, session.ID, events.StateChanged{
		BaseEvent: events.NewBaseEvent(events.StateChangedEvent, session.ID),
		From:      state,
		To:        next,
	})
	o.publish(ctx, session.ID, events.PhaseCompleted{
		BaseEvent: events.NewBaseEvent(events.PhaseCompletedEvent, session.ID),
		State:     state,
		Duration:  duration,
	})
	o.publish(ctx, session.ID, events.ProgressUpdated{
		BaseEvent: events.NewBaseEvent(events.ProgressUpdatedEvent, session.ID),
		State:     next,
		Message:   fmt.Sprintf("%s complete", state),
		Percent:   progressFor(next),
	})

	if next == models.StateCompleted {
		session.Status = models.SessionStatusCompleted

		completed := events.SessionCompleted{
			BaseEvent: events.NewBaseEvent(events.SessionCompletedEvent, session.ID),
			Duration:  time.Since(session.CreatedAt),
			Artifacts: session.Context.Artifacts,
		}
		if session.Context.Evaluation != nil {
			completed.Metrics = session.Context.Evaluation.Metrics
		}

		o.publish(ctx, session.ID, completed)
	}
}

// fail is the stage failure boundary: the error is recorded as recoverable,
// the session marked failed and persisted, and the error returned.
func (o *Orchestrator) fail(ctx context.Context, session *models.Session, state models.State, stageErr error) error {
	session.Context.RecordError(state, fmt.Sprintf("stage %s failed", state), stageErr.Error(), true)
	session.Status = models.SessionStatusFailed
	session.UpdatedAt = time.Now().UTC()

	o.publish(ctx, session.ID, events.SessionFailed{
		BaseEvent: events.NewBaseEvent(events.SessionFailedEvent, session.ID),
		State:     state,
		Error:     fmt.Sprintf("stage %s failed", state),
		Detail:    stageErr.Error(),
		CanResume: true,
	})

	if err := o.persist(ctx, session); err != nil {
		o.logger.Error("failed to persist failed session", "session_id", session.ID, "error", err)
	}

	return fmt.Errorf("stage %s failed: %w", state, stageErr)
}

// cancel short-circuits the session to cancelled. The store write happens
// before control returns to the caller.
func (o *Orchestrator) cancel(ctx context.Context, session *models.Session, reason string) error {
	state := session.Context.CurrentState
	session.RecordTransition(models.StateCancelled, reason)
	session.Status = models.SessionStatusCancelled

	o.publish(ctx, session.ID, events.SessionCancelled{
		BaseEvent: events.NewBaseEvent(events.SessionCancelledEvent, session.ID),
		State:     state,
		Reason:    reason,
	})

	return o.persist(context.WithoutCancel(ctx), session)
}

// persist saves the session, retrying transient store failures.
func (o *Orchestrator) persist(ctx context.Context, session *models.Session) error {
	session.UpdatedAt = time.Now().UTC()

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), saveAttempts-1), ctx)

	err := backoff.Retry(func() error {
		return o.store.SaveSession(ctx, session)
	}, policy)
	if err != nil {
		return fmt.Errorf("failed to persist session %s: %w", session.ID, err)
	}

	return nil
}

// publish sends one event, dropping it when no bus is configured. Event
// delivery is best-effort; a bus failure never fails the session.
func (o *Orchestrator) publish(ctx context.Context, sessionID string, event eventbus.Event) {
	if o.bus == nil {
		return
	}

	if err := o.bus.Publish(ctx, sessionID, event); err != nil {
		o.logger.Warn("failed to publish event",
			"session_id", sessionID, "event_type", event.GetType(), "error", err)
	}
}
