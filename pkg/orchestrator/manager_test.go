package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/modelflow/pkg/hitl"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/persistence"
	"github.com/dukex/modelflow/pkg/persistence/file"
)

func newTestManager(t *testing.T, root string) (*Manager, *file.Persistence) {
	t.Helper()

	orchestrator, store := newTestOrchestrator(t, root, nil, nil)

	return NewManager(orchestrator, nil), store
}

func TestStart_RejectsInvalidInput(t *testing.T) {
	manager, _ := newTestManager(t, t.TempDir())

	_, err := manager.Start(t.Context(), "", models.SessionOptions{})
	require.ErrorIs(t, err, ErrDatasetPathRequired)

	_, err = manager.Start(t.Context(), "data.csv", models.SessionOptions{TaskType: "clustering"})
	require.ErrorContains(t, err, "invalid session options")

	_, err = manager.Start(t.Context(), "data.csv", models.SessionOptions{AutoApproveThreshold: 1.5})
	require.ErrorContains(t, err, "invalid session options")
}

func TestResume_UnknownSession(t *testing.T) {
	manager, _ := newTestManager(t, t.TempDir())

	_, err := manager.Resume(t.Context(), "sess-missing")
	require.ErrorIs(t, err, persistence.ErrSessionNotFound)
}

func TestResume_TerminalSessionIsNotResumable(t *testing.T) {
	manager, store := newTestManager(t, t.TempDir())

	session := models.NewSession("data.csv", models.SessionOptions{})
	session.Status = models.SessionStatusCompleted
	session.Context.CurrentState = models.StateCompleted
	require.NoError(t, store.SaveSession(t.Context(), session))

	_, err := manager.Resume(t.Context(), session.ID)
	require.ErrorIs(t, err, persistence.ErrSessionNotResumable)
}

func TestListResumable(t *testing.T) {
	manager, store := newTestManager(t, t.TempDir())

	paused := models.NewSession("a.csv", models.SessionOptions{})
	paused.Status = models.SessionStatusPaused
	require.NoError(t, store.SaveSession(t.Context(), paused))

	done := models.NewSession("b.csv", models.SessionOptions{})
	done.Status = models.SessionStatusCompleted
	done.Context.CurrentState = models.StateCompleted
	require.NoError(t, store.SaveSession(t.Context(), done))

	resumable, err := manager.ListResumable(t.Context())
	require.NoError(t, err)
	require.Len(t, resumable, 1)
	assert.Equal(t, paused.ID, resumable[0].ID)

	all, err := manager.List(t.Context())
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestAnswer_ValidatesSessionAndOption(t *testing.T) {
	manager, store := newTestManager(t, t.TempDir())

	_, err := manager.Answer(t.Context(), "sess-missing", "approve", "")
	require.ErrorIs(t, err, persistence.ErrSessionNotFound)

	active := models.NewSession("data.csv", models.SessionOptions{})
	require.NoError(t, store.SaveSession(t.Context(), active))

	_, err = manager.Answer(t.Context(), active.ID, "approve", "")
	require.ErrorIs(t, err, ErrSessionNotAwaitingDecision)

	paused := models.NewSession("data.csv", models.SessionOptions{})
	paused.Status = models.SessionStatusPaused
	paused.Context.CurrentState = models.StatePreprocessingReview
	require.NoError(t, store.SaveSession(t.Context(), paused))

	_, err = manager.Answer(t.Context(), paused.ID, "deploy", "")
	require.ErrorIs(t, err, ErrUnknownOption)
}

func TestAnswer_RecordsDecisionAndResumeAppliesIt(t *testing.T) {
	policy := hitl.NewPolicy(hitl.Config{
		DefaultThreshold: 0.90,
		Thresholds: map[models.State]float64{
			models.StateAnalysisReview:       0.5,
			models.StateRecommendationReview: 0.5,
		},
	}, nil)

	orchestrator, store := newTestOrchestrator(t, t.TempDir(), policy, nil)
	manager := NewManager(orchestrator, nil)

	paused, err := manager.Start(t.Context(), messyCSV(t), models.SessionOptions{})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusPaused, paused.Status)
	require.Equal(t, models.StatePreprocessingReview, paused.Context.CurrentState)

	answered, err := manager.Answer(t.Context(), paused.ID, "approve", "looks right")
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusPaused, answered.Status)

	logged, err := store.Decisions(t.Context(), paused.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logged)

	last := logged[len(logged)-1]
	assert.Equal(t, "approve", last.OptionID)
	assert.Equal(t, "looks right", last.Comment)
	assert.False(t, last.Automatic)
	assert.False(t, last.Applied)
	assert.NotEmpty(t, last.CheckpointID)

	// Training and deployment reviews still need a handler; approve them.
	manager.orchestrator.handler = approveEverything()

	resumed, err := manager.Resume(t.Context(), paused.ID)
	require.NoError(t, err)
	assert.Equal(t, models.SessionStatusCompleted, resumed.Status)
	assert.Equal(t, models.StateCompleted, resumed.Context.CurrentState)
}

func TestSweep_DeletesOnlyExpiredTerminalSessions(t *testing.T) {
	manager, store := newTestManager(t, t.TempDir())

	expired := models.NewSession("old.csv", models.SessionOptions{})
	expired.Status = models.SessionStatusCompleted
	expired.Context.CurrentState = models.StateCompleted
	expired.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.SaveSession(t.Context(), expired))

	recent := models.NewSession("new.csv", models.SessionOptions{})
	recent.Status = models.SessionStatusCancelled
	recent.Context.CurrentState = models.StateCancelled
	require.NoError(t, store.SaveSession(t.Context(), recent))

	active := models.NewSession("live.csv", models.SessionOptions{})
	active.UpdatedAt = time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, store.SaveSession(t.Context(), active))

	require.NoError(t, manager.Sweep(t.Context(), 24*time.Hour))

	remaining, err := manager.List(t.Context())
	require.NoError(t, err)
	require.Len(t, remaining, 2)

	ids := []string{remaining[0].ID, remaining[1].ID}
	assert.NotContains(t, ids, expired.ID)
	assert.Contains(t, ids, recent.ID)
	assert.Contains(t, ids, active.ID)
}

func TestRetentionSweeperLifecycle(t *testing.T) {
	manager, _ := newTestManager(t, t.TempDir())

	require.NoError(t, manager.StartRetentionSweeper("@hourly", 24*time.Hour))
	require.Error(t, manager.StartRetentionSweeper("@hourly", 24*time.Hour))

	manager.StopRetentionSweeper()
	require.NoError(t, manager.StartRetentionSweeper("@daily", 24*time.Hour))
	manager.StopRetentionSweeper()
}
