// Package postgresql provides the PostgreSQL persistence implementation for sessions.
package postgresql

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/dukex/modelflow/pkg/persistence/sqlbase"
	// PostgreSQL driver.
	_ "github.com/lib/pq"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{db: database, logger: logger}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func migrations() map[int]string {
	return map[int]string{
		1: `
			CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				schema_version INTEGER NOT NULL,
				status TEXT NOT NULL,
				current_state TEXT NOT NULL,
				dataset_path TEXT NOT NULL,
				record JSONB NOT NULL,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL,
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL
			);

			CREATE TABLE IF NOT EXISTS session_checkpoints (
				id TEXT PRIMARY KEY,
				session_id TEXT NOT NULL,
				state TEXT NOT NULL,
				taken_at TIMESTAMP WITH TIME ZONE NOT NULL,
				snapshot JSONB NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_session_checkpoints_session
				ON session_checkpoints(session_id);

			CREATE TABLE IF NOT EXISTS session_decisions (
				seq BIGSERIAL PRIMARY KEY,
				session_id TEXT NOT NULL,
				decision JSONB NOT NULL
			);

			CREATE INDEX IF NOT EXISTS idx_session_decisions_session
				ON session_decisions(session_id);
		`,
	}
}
