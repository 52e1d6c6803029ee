package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/persistence"
)

// SaveSession upserts the full session record. The JSONB document is the
// source of truth; the scalar columns exist for listing and filtering.
func (p *Persistence) SaveSession(ctx context.Context, session *models.Session) error {
	if session.SchemaVersion == 0 {
		session.SchemaVersion = models.SchemaVersion
	}

	record, err := json.Marshal(session)
	if err != nil {
		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	query := `
		INSERT INTO sessions (id, schema_version, status, current_state, dataset_path, record, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			schema_version = EXCLUDED.schema_version,
			status = EXCLUDED.status,
			current_state = EXCLUDED.current_state,
			dataset_path = EXCLUDED.dataset_path,
			record = EXCLUDED.record,
			updated_at = EXCLUDED.updated_at
	`

	_, err = p.db.ExecContext(ctx, query,
		session.ID,
		session.SchemaVersion,
		string(session.Status),
		string(session.Context.CurrentState),
		session.Context.DatasetPath,
		record,
		session.CreatedAt,
		session.UpdatedAt,
	)
	if err != nil {
		return persistence.NewStoreError("SaveSession", session.ID, err)
	}

	return nil
}

// SessionByID returns (nil, nil) when the session does not exist.
func (p *Persistence) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	var (
		schemaVersion int
		record        []byte
	)

	query := "SELECT schema_version, record FROM sessions WHERE id = $1"

	err := p.db.QueryRowContext(ctx, query, id).Scan(&schemaVersion, &record)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, persistence.NewStoreError("SessionByID", id, err)
	}

	if schemaVersion > models.SchemaVersion {
		return nil, persistence.NewStoreError("SessionByID", id, persistence.ErrSchemaVersionTooNew)
	}

	var session models.Session

	if err = json.Unmarshal(record, &session); err != nil {
		return nil, persistence.NewStoreError("SessionByID", id, err)
	}

	return &session, nil
}

// Sessions lists all session records, newest first.
func (p *Persistence) Sessions(ctx context.Context) ([]models.SessionSummary, error) {
	query := `
		SELECT id, status, current_state, dataset_path, created_at, updated_at
		FROM sessions
		ORDER BY created_at DESC
	`

	return p.querySummaries(ctx, query)
}

// ResumableSessions lists sessions that may re-enter the advance loop.
func (p *Persistence) ResumableSessions(ctx context.Context) ([]models.SessionSummary, error) {
	query := `
		SELECT id, status, current_state, dataset_path, created_at, updated_at
		FROM sessions
		WHERE status = 'paused'
		   OR (status = 'active' AND current_state NOT IN ('completed', 'cancelled', 'failed'))
		ORDER BY created_at DESC
	`

	return p.querySummaries(ctx, query)
}

func (p *Persistence) querySummaries(ctx context.Context, query string, args ...any) ([]models.SessionSummary, error) {
	rows, err := p.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	summaries := make([]models.SessionSummary, 0)

	for rows.Next() {
		var summary models.SessionSummary

		err = rows.Scan(
			&summary.ID,
			&summary.Status,
			&summary.CurrentState,
			&summary.DatasetPath,
			&summary.CreatedAt,
			&summary.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session row: %w", err)
		}

		summaries = append(summaries, summary)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate session rows: %w", err)
	}

	return summaries, nil
}

// DeleteSession removes the session record, its checkpoints and its decisions.
func (p *Persistence) DeleteSession(ctx context.Context, id string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return persistence.NewStoreError("DeleteSession", id, err)
	}

	statements := []string{
		"DELETE FROM session_decisions WHERE session_id = $1",
		"DELETE FROM session_checkpoints WHERE session_id = $1",
		"DELETE FROM sessions WHERE id = $1",
	}

	for _, statement := range statements {
		if _, err = tx.ExecContext(ctx, statement, id); err != nil {
			_ = tx.Rollback()

			return persistence.NewStoreError("DeleteSession", id, err)
		}
	}

	if err = tx.Commit(); err != nil {
		return persistence.NewStoreError("DeleteSession", id, err)
	}

	return nil
}

// SaveCheckpoint inserts one write-once snapshot row.
func (p *Persistence) SaveCheckpoint(ctx context.Context, sessionID string, checkpoint models.Checkpoint) error {
	snapshot, err := json.Marshal(checkpoint)
	if err != nil {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, err)
	}

	query := `
		INSERT INTO session_checkpoints (id, session_id, state, taken_at, snapshot)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO NOTHING
	`

	result, err := p.db.ExecContext(ctx, query,
		checkpoint.ID, sessionID, string(checkpoint.State), checkpoint.TakenAt, snapshot)
	if err != nil {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, err)
	}

	if affected == 0 {
		return persistence.NewStoreError("SaveCheckpoint", sessionID, persistence.ErrCheckpointExists)
	}

	return nil
}

// Checkpoints lists the session's snapshots ordered by the time they were taken.
func (p *Persistence) Checkpoints(ctx context.Context, sessionID string) ([]models.Checkpoint, error) {
	query := "SELECT snapshot FROM session_checkpoints WHERE session_id = $1 ORDER BY taken_at ASC"

	rows, err := p.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, persistence.NewStoreError("Checkpoints", sessionID, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	checkpoints := make([]models.Checkpoint, 0)

	for rows.Next() {
		var snapshot []byte

		if err = rows.Scan(&snapshot); err != nil {
			return nil, persistence.NewStoreError("Checkpoints", sessionID, err)
		}

		var checkpoint models.Checkpoint

		if err = json.Unmarshal(snapshot, &checkpoint); err != nil {
			return nil, persistence.NewStoreError("Checkpoints", sessionID, err)
		}

		checkpoints = append(checkpoints, checkpoint)
	}

	if err = rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Checkpoints", sessionID, err)
	}

	return checkpoints, nil
}

// AppendDecision appends one row to the session's decision log.
func (p *Persistence) AppendDecision(ctx context.Context, sessionID string, decision models.HitlDecision) error {
	data, err := json.Marshal(decision)
	if err != nil {
		return persistence.NewStoreError("AppendDecision", sessionID, err)
	}

	query := "INSERT INTO session_decisions (session_id, decision) VALUES ($1, $2)"

	if _, err = p.db.ExecContext(ctx, query, sessionID, data); err != nil {
		return persistence.NewStoreError("AppendDecision", sessionID, err)
	}

	return nil
}

// Decisions reads the decision log in insertion order.
func (p *Persistence) Decisions(ctx context.Context, sessionID string) ([]models.HitlDecision, error) {
	query := "SELECT decision FROM session_decisions WHERE session_id = $1 ORDER BY seq ASC"

	rows, err := p.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, persistence.NewStoreError("Decisions", sessionID, err)
	}
	defer func() {
		_ = rows.Close()
	}()

	decisions := make([]models.HitlDecision, 0)

	for rows.Next() {
		var data []byte

		if err = rows.Scan(&data); err != nil {
			return nil, persistence.NewStoreError("Decisions", sessionID, err)
		}

		var decision models.HitlDecision

		if err = json.Unmarshal(data, &decision); err != nil {
			return nil, persistence.NewStoreError("Decisions", sessionID, err)
		}

		decisions = append(decisions, decision)
	}

	if err = rows.Err(); err != nil {
		return nil, persistence.NewStoreError("Decisions", sessionID, err)
	}

	return decisions, nil
}
