package models

import (
	"time"

	"github.com/google/uuid"
)

// SchemaVersion is written into every persisted session record. Loaders must
// reject records carrying a higher version instead of silently truncating them.
const SchemaVersion = 1

// SessionStatus represents the lifecycle state of a session.
type SessionStatus string

const (
	SessionStatusActive    SessionStatus = "active"
	SessionStatusPaused    SessionStatus = "paused"
	SessionStatusCompleted SessionStatus = "completed"
	SessionStatusFailed    SessionStatus = "failed"
	SessionStatusCancelled SessionStatus = "cancelled"
)

// Session is one durable, resumable execution of the end-to-end workflow for
// one dataset.
type Session struct {
	ID            string            `json:"id"`
	SchemaVersion int               `json:"schema_version"`
	Status        SessionStatus     `json:"status"`
	Context       *SessionContext   `json:"context"`
	StateHistory  []StateTransition `json:"state_history"`
	Checkpoints   []Checkpoint      `json:"checkpoints"`
	Metadata      map[string]any    `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
}

// NewSession creates an active session for the given dataset and options.
func NewSession(datasetPath string, opts SessionOptions) *Session {
	now := time.Now().UTC()

	return &Session{
		ID:            "sess-" + uuid.New().String()[:8],
		SchemaVersion: SchemaVersion,
		Status:        SessionStatusActive,
		Context: &SessionContext{
			DatasetPath:  datasetPath,
			Options:      opts,
			CurrentState: StateNotStarted,
			Artifacts:    make(map[string]string),
		},
		StateHistory: make([]StateTransition, 0),
		Checkpoints:  make([]Checkpoint, 0),
		Metadata:     make(map[string]any),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// CanResume reports whether the session may re-enter the advance loop.
func (s *Session) CanResume() bool {
	if s.Status == SessionStatusPaused {
		return true
	}

	return s.Status == SessionStatusActive && !s.Context.CurrentState.IsTerminal()
}

// IsTerminal reports whether the session reached a final status.
func (s *Session) IsTerminal() bool {
	switch s.Status {
	case SessionStatusCompleted, SessionStatusFailed, SessionStatusCancelled:
		return true
	default:
		return false
	}
}

// RecordTransition appends a state transition and moves the context forward.
func (s *Session) RecordTransition(to State, reason string) {
	from := s.Context.CurrentState
	s.StateHistory = append(s.StateHistory, StateTransition{
		From:       from,
		To:         to,
		OccurredAt: time.Now().UTC(),
		Reason:     reason,
	})
	s.Context.CurrentState = to
	s.UpdatedAt = time.Now().UTC()
}

// Checkpoint is a write-once snapshot of the session context taken after a
// stage completes, used for inspection and recovery.
type Checkpoint struct {
	ID      string         `json:"id"`
	State   State          `json:"state"`
	Label   string         `json:"label"`
	TakenAt time.Time      `json:"taken_at"`
	Context SessionContext `json:"context"`
}

// NewCheckpoint snapshots the given context at the given state.
func NewCheckpoint(state State, label string, ctx SessionContext) Checkpoint {
	return Checkpoint{
		ID:      "ckpt-" + uuid.New().String()[:8],
		State:   state,
		Label:   label,
		TakenAt: time.Now().UTC(),
		Context: ctx,
	}
}

// HitlDecision records one human (or automatic) answer at a checkpoint.
// Decisions are append-only, one per checkpoint visited.
type HitlDecision struct {
	CheckpointID string `json:"checkpoint_id"`
	State        State  `json:"state"`
	OptionID     string `json:"option_id"`
	Automatic    bool   `json:"automatic"`
	// Applied is set once the orchestrator has acted on the decision; an
	// unapplied decision is one recorded out-of-band, waiting for resume.
	Applied    bool          `json:"applied,omitempty"`
	Confidence float64       `json:"confidence"`
	Comment    string        `json:"comment,omitempty"`
	DecidedAt  time.Time     `json:"decided_at"`
	Latency    time.Duration `json:"latency"`
}

// SessionSummary is the listing projection of a session record.
type SessionSummary struct {
	ID           string        `json:"id"`
	Status       SessionStatus `json:"status"`
	CurrentState State         `json:"current_state"`
	DatasetPath  string        `json:"dataset_path"`
	CreatedAt    time.Time     `json:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Summary projects the session into its listing form.
func (s *Session) Summary() SessionSummary {
	return SessionSummary{
		ID:           s.ID,
		Status:       s.Status,
		CurrentState: s.Context.CurrentState,
		DatasetPath:  s.Context.DatasetPath,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
	}
}
