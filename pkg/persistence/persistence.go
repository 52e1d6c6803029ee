// Package persistence provides the data storage abstraction layer for sessions,
// checkpoint snapshots and decision logs.
package persistence

import (
	"context"

	"github.com/dukex/modelflow/pkg/models"
)

// Persistence is the storage contract of the orchestration core. Every save is
// a full overwrite of one session's record; concurrent writers to the same
// session id are not supported and must be prevented by the caller.
type Persistence interface {
	// SaveSession atomically overwrites the session record keyed by its id.
	SaveSession(ctx context.Context, session *models.Session) error
	// SessionByID returns (nil, nil) when the session does not exist.
	SessionByID(ctx context.Context, id string) (*models.Session, error)
	Sessions(ctx context.Context) ([]models.SessionSummary, error)
	// ResumableSessions lists sessions that are paused, or active with a
	// non-terminal current state.
	ResumableSessions(ctx context.Context) ([]models.SessionSummary, error)
	DeleteSession(ctx context.Context, id string) error

	// SaveCheckpoint writes one snapshot under the session. Snapshots are
	// write-once; saving an existing checkpoint id is an error.
	SaveCheckpoint(ctx context.Context, sessionID string, checkpoint models.Checkpoint) error
	Checkpoints(ctx context.Context, sessionID string) ([]models.Checkpoint, error)

	// AppendDecision appends to the session's append-only decision log.
	AppendDecision(ctx context.Context, sessionID string, decision models.HitlDecision) error
	Decisions(ctx context.Context, sessionID string) ([]models.HitlDecision, error)

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}
