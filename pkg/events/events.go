// Package events defines event types and structures for session lifecycle notifications.
package events

import (
	"time"

	"github.com/dukex/modelflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Topic carries every session event. Consumers must treat the stream as
// ordered per session; ordering is guaranteed by single-producer-per-session
// discipline.
const Topic = "modelflow.sessions"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Session lifecycle events.
	SessionStartedEvent   EventType = "session.started"
	SessionCompletedEvent EventType = "session.completed"
	SessionFailedEvent    EventType = "session.failed"
	SessionCancelledEvent EventType = "session.cancelled"
	SessionPausedEvent    EventType = "session.paused"
	SessionResumedEvent   EventType = "session.resumed"

	// Stage progress events.
	StateChangedEvent    EventType = "session.state.changed"
	PhaseStartedEvent    EventType = "session.phase.started"
	PhaseCompletedEvent  EventType = "session.phase.completed"
	ProgressUpdatedEvent EventType = "session.progress"

	// Checkpoint events.
	HITLRequestedEvent EventType = "session.hitl.requested"
	HITLRespondedEvent EventType = "session.hitl.responded"

	// Collaborator call events.
	CollaboratorStartedEvent   EventType = "session.collaborator.started"
	CollaboratorCompletedEvent EventType = "session.collaborator.completed"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	SessionID string         `json:"session_id"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

type SessionStarted struct {
	BaseEvent

	DatasetPath string                `json:"dataset_path"`
	Options     models.SessionOptions `json:"options"`
	Resumed     bool                  `json:"resumed"`
}

func (e SessionStarted) GetType() EventType {
	return SessionStartedEvent
}

type SessionCompleted struct {
	BaseEvent

	Duration  time.Duration      `json:"duration"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
	Artifacts map[string]string  `json:"artifacts,omitempty"`
}

func (e SessionCompleted) GetType() EventType {
	return SessionCompletedEvent
}

type SessionFailed struct {
	BaseEvent

	State     models.State `json:"state"`
	Error     string       `json:"error"`
	Detail    string       `json:"detail,omitempty"`
	CanResume bool         `json:"can_resume"`
}

func (e SessionFailed) GetType() EventType {
	return SessionFailedEvent
}

type SessionCancelled struct {
	BaseEvent

	State  models.State `json:"state"`
	Reason string       `json:"reason,omitempty"`
}

func (e SessionCancelled) GetType() EventType {
	return SessionCancelledEvent
}

type SessionPaused struct {
	BaseEvent

	State  models.State `json:"state"`
	Reason string       `json:"reason"`
}

func (e SessionPaused) GetType() EventType {
	return SessionPausedEvent
}

type SessionResumed struct {
	BaseEvent

	State models.State `json:"state"`
}

func (e SessionResumed) GetType() EventType {
	return SessionResumedEvent
}

type StateChanged struct {
	BaseEvent

	From models.State `json:"from"`
	To   models.State `json:"to"`
}

func (e StateChanged) GetType() EventType {
	return StateChangedEvent
}

type PhaseStarted struct {
	BaseEvent

	State models.State `json:"state"`
}

func (e PhaseStarted) GetType() EventType {
	return PhaseStartedEvent
}

type PhaseCompleted struct {
	BaseEvent

	State    models.State  `json:"state"`
	Duration time.Duration `json:"duration"`
	Summary  string        `json:"summary,omitempty"`
}

func (e PhaseCompleted) GetType() EventType {
	return PhaseCompletedEvent
}

type ProgressUpdated struct {
	BaseEvent

	State   models.State `json:"state"`
	Message string       `json:"message"`
	Percent float64      `json:"percent"`
}

func (e ProgressUpdated) GetType() EventType {
	return ProgressUpdatedEvent
}

type HITLRequested struct {
	BaseEvent

	CheckpointID string       `json:"checkpoint_id"`
	State        models.State `json:"state"`
	Summary      string       `json:"summary"`
	Options      []string     `json:"options"`
	Confidence   float64      `json:"confidence"`
}

func (e HITLRequested) GetType() EventType {
	return HITLRequestedEvent
}

type HITLResponded struct {
	BaseEvent

	CheckpointID string        `json:"checkpoint_id"`
	State        models.State  `json:"state"`
	OptionID     string        `json:"option_id"`
	Automatic    bool          `json:"automatic"`
	Latency      time.Duration `json:"latency"`
}

func (e HITLResponded) GetType() EventType {
	return HITLRespondedEvent
}

type CollaboratorStarted struct {
	BaseEvent

	State        models.State `json:"state"`
	Collaborator string       `json:"collaborator"`
}

func (e CollaboratorStarted) GetType() EventType {
	return CollaboratorStartedEvent
}

type CollaboratorCompleted struct {
	BaseEvent

	State        models.State  `json:"state"`
	Collaborator string        `json:"collaborator"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

func (e CollaboratorCompleted) GetType() EventType {
	return CollaboratorCompletedEvent
}

func NewBaseEvent(eventType EventType, sessionID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		SessionID: sessionID,
		Metadata:  make(map[string]any),
	}
}
