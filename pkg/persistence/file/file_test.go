package file

import (
	"encoding/json"
	"os"
	"path"
	"testing"
	"time"

	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession() *models.Session {
	session := models.NewSession("/data/churn.csv", models.SessionOptions{
		TargetColumn:         "churned",
		TaskType:             "classification",
		AutoApproveThreshold: 0.95,
	})
	session.Context.Analysis = &models.AnalysisResult{
		RowCount:          1000,
		ColumnCount:       12,
		RecommendedTarget: "churned",
		Readiness:         0.8,
	}
	session.Context.Artifacts["report"] = "/tmp/report.html"
	session.RecordTransition(models.StateInitializing, "start")

	return session
}

func TestPersistence_SaveAndLoadRoundTrip(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	session := newTestSession()

	require.NoError(t, fp.SaveSession(t.Context(), session))

	loaded, err := fp.SessionByID(t.Context(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, loaded)

	// Every field relevant for resumption must round-trip exactly.
	assert.Equal(t, session.ID, loaded.ID)
	assert.Equal(t, session.Status, loaded.Status)
	assert.Equal(t, session.Context.DatasetPath, loaded.Context.DatasetPath)
	assert.Equal(t, session.Context.Options, loaded.Context.Options)
	assert.Equal(t, session.Context.CurrentState, loaded.Context.CurrentState)
	assert.Equal(t, session.Context.Analysis, loaded.Context.Analysis)
	assert.Equal(t, session.Context.Artifacts, loaded.Context.Artifacts)
	require.Len(t, loaded.StateHistory, 1)
	assert.Equal(t, models.StateNotStarted, loaded.StateHistory[0].From)
	assert.Equal(t, models.SchemaVersion, loaded.SchemaVersion)
}

func TestPersistence_SessionByID_NotFound(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	loaded, err := fp.SessionByID(t.Context(), "sess-missing1")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestPersistence_RejectsNewerSchema(t *testing.T) {
	root := t.TempDir()
	fp := NewPersistence(root)
	session := newTestSession()

	require.NoError(t, fp.SaveSession(t.Context(), session))

	// Rewrite the record claiming a future schema version.
	raw, err := os.ReadFile(path.Join(root, "sessions", session.ID+".json"))
	require.NoError(t, err)

	var record map[string]any

	require.NoError(t, json.Unmarshal(raw, &record))
	record["schema_version"] = models.SchemaVersion + 1
	raw, err = json.Marshal(record)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path.Join(root, "sessions", session.ID+".json"), raw, 0600))

	_, err = fp.SessionByID(t.Context(), session.ID)
	require.Error(t, err)
	assert.True(t, persistence.IsSchemaVersionTooNew(err))
}

func TestPersistence_SessionsAndResumable(t *testing.T) {
	fp := NewPersistence(t.TempDir())

	active := newTestSession()
	require.NoError(t, fp.SaveSession(t.Context(), active))

	paused := newTestSession()
	paused.Status = models.SessionStatusPaused
	paused.Context.CurrentState = models.StatePreprocessingReview
	require.NoError(t, fp.SaveSession(t.Context(), paused))

	done := newTestSession()
	done.Status = models.SessionStatusCompleted
	done.Context.CurrentState = models.StateCompleted
	require.NoError(t, fp.SaveSession(t.Context(), done))

	all, err := fp.Sessions(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 3)

	resumable, err := fp.ResumableSessions(t.Context())
	require.NoError(t, err)
	require.Len(t, resumable, 2)

	for _, summary := range resumable {
		assert.NotEqual(t, done.ID, summary.ID)
	}
}

func TestPersistence_DeleteSession(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	session := newTestSession()

	require.NoError(t, fp.SaveSession(t.Context(), session))
	require.NoError(t, fp.SaveCheckpoint(t.Context(), session.ID, models.NewCheckpoint(models.StateAnalysis, "after analysis", *session.Context)))

	require.NoError(t, fp.DeleteSession(t.Context(), session.ID))

	loaded, err := fp.SessionByID(t.Context(), session.ID)
	require.NoError(t, err)
	assert.Nil(t, loaded)

	checkpoints, err := fp.Checkpoints(t.Context(), session.ID)
	require.NoError(t, err)
	assert.Empty(t, checkpoints)

	// Deleting again is not an error.
	assert.NoError(t, fp.DeleteSession(t.Context(), session.ID))
}

func TestPersistence_CheckpointsWriteOnce(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	session := newTestSession()
	checkpoint := models.NewCheckpoint(models.StateAnalysis, "after analysis", *session.Context)

	require.NoError(t, fp.SaveCheckpoint(t.Context(), session.ID, checkpoint))

	err := fp.SaveCheckpoint(t.Context(), session.ID, checkpoint)
	require.Error(t, err)
	assert.True(t, persistence.IsCheckpointExists(err))

	listed, err := fp.Checkpoints(t.Context(), session.ID)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, checkpoint.ID, listed[0].ID)
	assert.Equal(t, models.StateAnalysis, listed[0].State)
}

func TestPersistence_DecisionLogAppendOnly(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	sessionID := "sess-dec12345"

	first := models.HitlDecision{
		CheckpointID: "ckpt-1",
		State:        models.StateAnalysisReview,
		OptionID:     "approve",
		Automatic:    true,
		Confidence:   0.99,
		DecidedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
	second := models.HitlDecision{
		CheckpointID: "ckpt-2",
		State:        models.StatePreprocessingReview,
		OptionID:     "modify",
		Comment:      "drop outlier rule",
		DecidedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}

	require.NoError(t, fp.AppendDecision(t.Context(), sessionID, first))
	require.NoError(t, fp.AppendDecision(t.Context(), sessionID, second))

	decisions, err := fp.Decisions(t.Context(), sessionID)
	require.NoError(t, err)
	require.Len(t, decisions, 2)
	assert.Equal(t, "approve", decisions[0].OptionID)
	assert.Equal(t, "modify", decisions[1].OptionID)
	assert.True(t, decisions[0].Automatic)
}

func TestPersistence_HealthCheck(t *testing.T) {
	fp := NewPersistence(t.TempDir())
	assert.NoError(t, fp.HealthCheck(t.Context()))

	missing := NewPersistence("/nonexistent/modelflow-test")
	assert.Error(t, missing.HealthCheck(t.Context()))
}
