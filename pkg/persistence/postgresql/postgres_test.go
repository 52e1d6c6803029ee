package postgresql_test

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/persistence"
	"github.com/dukex/modelflow/pkg/persistence/postgresql"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	for _, table := range []string{"session_decisions", "session_checkpoints", "sessions", "schema_migrations"} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("modelflow_test"),
			postgres.WithUsername("modelflow"),
			postgres.WithPassword("modelflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	_, ctx, databaseURL := setupTestDB(t)

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	var exists bool

	err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = 'sessions')`).Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists, "sessions table should exist")

	var version int

	err = db.QueryRowContext(ctx, "SELECT version FROM schema_migrations WHERE version = 1").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
}

func TestPersistence_SessionLifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	session := models.NewSession("/data/churn.csv", models.SessionOptions{
		TargetColumn:         "churned",
		AutoApproveThreshold: 0.95,
	})
	session.RecordTransition(models.StateInitializing, "start")

	require.NoError(t, p.SaveSession(ctx, session))

	loaded, err := p.SessionByID(ctx, session.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, session.Context.Options, loaded.Context.Options)
	assert.Equal(t, models.StateInitializing, loaded.Context.CurrentState)

	// Overwrite with a newer state and verify the record follows.
	session.RecordTransition(models.StateAnalysis, "")
	session.Status = models.SessionStatusPaused
	require.NoError(t, p.SaveSession(ctx, session))

	loaded, err = p.SessionByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaused, loaded.Status)
	assert.Equal(t, models.StateAnalysis, loaded.Context.CurrentState)

	resumable, err := p.ResumableSessions(ctx)
	require.NoError(t, err)
	require.Len(t, resumable, 1)
	assert.Equal(t, session.ID, resumable[0].ID)

	require.NoError(t, p.DeleteSession(ctx, session.ID))

	loaded, err = p.SessionByID(ctx, session.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestPersistence_CheckpointsAndDecisions(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	session := models.NewSession("/data/churn.csv", models.SessionOptions{})
	require.NoError(t, p.SaveSession(ctx, session))

	checkpoint := models.NewCheckpoint(models.StateAnalysis, "after analysis", *session.Context)
	require.NoError(t, p.SaveCheckpoint(ctx, session.ID, checkpoint))

	err := p.SaveCheckpoint(ctx, session.ID, checkpoint)
	require.Error(t, err)
	assert.True(t, persistence.IsCheckpointExists(err))

	checkpoints, err := p.Checkpoints(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, checkpoints, 1)
	assert.Equal(t, checkpoint.ID, checkpoints[0].ID)

	require.NoError(t, p.AppendDecision(ctx, session.ID, models.HitlDecision{
		CheckpointID: checkpoint.ID,
		State:        models.StateAnalysisReview,
		OptionID:     "approve",
		DecidedAt:    time.Now().UTC(),
	}))
	require.NoError(t, p.AppendDecision(ctx, session.ID, models.HitlDecision{
		CheckpointID: checkpoint.ID,
		State:        models.StatePreprocessingReview,
		OptionID:     "modify",
		DecidedAt:    time.Now().UTC(),
	}))

	decisions, err := p.Decisions(ctx, session.ID)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "approve", decisions[0].OptionID)
	assert.Equal(t, "modify", decisions[1].OptionID)
}
