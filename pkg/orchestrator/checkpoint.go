package orchestrator

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/dukex/modelflow/pkg/events"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/otelhelper"
)

// review executes a checkpoint state. Outcomes: auto-approve and move on,
// pause waiting for an out-of-process answer, or apply the handler's decision.
func (o *Orchestrator) review(ctx context.Context, span trace.Span, session *models.Session, state models.State) error {
	// An answer recorded while the session was paused settles the checkpoint
	// on re-entry.
	if decision, ok := session.Context.DecisionFor(state); ok && !decision.Automatic && !decision.Applied {
		session.Context.MarkDecisionApplied(state)

		return o.settle(ctx, session, state, decision)
	}

	confidence := o.confidenceFor(session, state)
	request := o.policy.BuildRequest(state, session.Context)

	if !o.policy.ShouldTriggerHITL(state, confidence, session.Context.Options) {
		decision := models.HitlDecision{
			CheckpointID: request.ID,
			State:        state,
			OptionID:     "approve",
			Automatic:    true,
			Applied:      true,
			Confidence:   confidence,
			DecidedAt:    time.Now().UTC(),
		}

		o.recordDecision(ctx, session, decision)

		return o.settle(ctx, session, state, decision)
	}

	optionIDs := make([]string, len(request.Options))
	for i, option := range request.Options {
		optionIDs[i] = option.ID
	}

	o.publish(ctx, session.ID, events.HITLRequested{
		BaseEvent:    events.NewBaseEvent(events.HITLRequestedEvent, session.ID),
		CheckpointID: request.ID,
		State:        state,
		Summary:      request.Summary,
		Options:      optionIDs,
		Confidence:   confidence,
	})

	if o.handler == nil {
		return o.pause(ctx, session, state)
	}

	decision, err := o.handler.Handle(ctx, request)
	if err != nil {
		otelhelper.SetError(span, err)

		return o.fail(ctx, session, state, err)
	}

	decision.CheckpointID = request.ID
	decision.State = state
	decision.Confidence = confidence
	decision.Applied = true
	decision.Latency = time.Since(request.RequestedAt)

	if decision.DecidedAt.IsZero() {
		decision.DecidedAt = time.Now().UTC()
	}

	o.recordDecision(ctx, session, decision)

	return o.settle(ctx, session, state, decision)
}

// settle acts on a checkpoint decision. Cancel and retry divert the state
// machine, skip discards the reviewed stage's output. Everything else
// approves and continues.
func (o *Orchestrator) settle(ctx context.Context, session *models.Session, state models.State, decision models.HitlDecision) error {
	switch decision.OptionID {
	case "cancel":
		return o.cancel(ctx, session, "cancelled at "+string(state))
	case "retry":
		return o.retryStage(ctx, session, state)
	case "skip":
		o.discardStageOutput(session, state)
	default:
		if state == models.StatePreprocessingReview {
			if err := o.applyPendingRules(ctx, session); err != nil {
				return o.fail(ctx, session, state, err)
			}
		}
	}

	o.complete(ctx, session, state, decision.Latency)

	return o.persist(ctx, session)
}

// applyPendingRules re-runs preprocessing once the review decision is on
// record, so rules that were held back for approval reach the cleaned copy.
func (o *Orchestrator) applyPendingRules(ctx context.Context, session *models.Session) error {
	preprocessing := session.Context.Preprocessing
	if preprocessing == nil || len(preprocessing.PendingRuleIDs) == 0 {
		return nil
	}

	o.logger.Info("applying approved preprocessing rules",
		"session_id", session.ID, "pending", len(preprocessing.PendingRuleIDs))

	return o.preprocess(ctx, session)
}

// retryStage sends the state machine back to the stage the review inspects.
func (o *Orchestrator) retryStage(ctx context.Context, session *models.Session, state models.State) error {
	stage, ok := state.ReviewedStage()
	if !ok {
		return o.fail(ctx, session, state, fmt.Errorf("no stage to retry from %s", state))
	}

	session.RecordTransition(stage, "retry requested")

	o.publish(ctx, session.ID, events.StateChanged{
		BaseEvent: events.NewBaseEvent(events.StateChangedEvent, session.ID),
		From:      state,
		To:        stage,
	})

	o.logger.Info("retrying stage", "session_id", session.ID, "stage", stage)

	return o.persist(ctx, session)
}

// discardStageOutput throws away what the reviewed stage produced. Only
// preprocessing has a discardable product; the earlier reviews gate advisory
// results the later stages still need as input.
func (o *Orchestrator) discardStageOutput(session *models.Session, state models.State) {
	if state != models.StatePreprocessingReview || session.Context.Preprocessing == nil {
		return
	}

	o.logger.Info("discarding preprocessing output",
		"session_id", session.ID, "output", session.Context.Preprocessing.OutputPath)

	session.Context.Preprocessing = nil
	delete(session.Context.Artifacts, "cleaned_dataset")
}

// pause leaves the session waiting for an out-of-process answer. The current
// state is deliberately left untouched so resume re-enters the same
// checkpoint.
func (o *Orchestrator) pause(ctx context.Context, session *models.Session, state models.State) error {
	session.Status = models.SessionStatusPaused

	o.publish(ctx, session.ID, events.SessionPaused{
		BaseEvent: events.NewBaseEvent(events.SessionPausedEvent, session.ID),
		State:     state,
		Reason:    "awaiting checkpoint answer",
	})

	o.logger.Info("session paused at checkpoint", "session_id", session.ID, "state", state)

	return o.persist(ctx, session)
}

// recordDecision appends the decision to the context and the durable log, and
// announces it.
func (o *Orchestrator) recordDecision(ctx context.Context, session *models.Session, decision models.HitlDecision) {
	session.Context.RecordDecision(decision)

	if err := o.store.AppendDecision(ctx, session.ID, decision); err != nil {
		o.logger.Warn("failed to append decision to log",
			"session_id", session.ID, "state", decision.State, "error", err)
	}

	o.publish(ctx, session.ID, events.HITLResponded{
		BaseEvent:    events.NewBaseEvent(events.HITLRespondedEvent, session.ID),
		CheckpointID: decision.CheckpointID,
		State:        decision.State,
		OptionID:     decision.OptionID,
		Automatic:    decision.Automatic,
		Latency:      decision.Latency,
	})
}

// confidenceFor derives the checkpoint confidence from the stage that just
// ran. Stages without a natural score fall back to zero, forcing an explicit
// decision unless HITL is skipped.
func (o *Orchestrator) confidenceFor(session *models.Session, state models.State) float64 {
	sessionContext := session.Context

	switch state {
	case models.StateAnalysisReview:
		if sessionContext.Analysis != nil {
			return sessionContext.Analysis.Readiness
		}
	case models.StateRecommendationReview:
		if sessionContext.Recommendation != nil {
			confidence := 1.0 - 0.1*float64(len(sessionContext.Recommendation.Warnings))
			if confidence < 0 {
				confidence = 0
			}

			return confidence
		}
	case models.StatePreprocessingReview:
		if value, ok := session.Metadata[confidenceMetadataKey].(float64); ok {
			return value
		}
	}

	return 0
}
