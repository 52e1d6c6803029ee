package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/dukex/modelflow/pkg/collaborators/local"
	"github.com/dukex/modelflow/pkg/dataset"
	"github.com/dukex/modelflow/pkg/events"
	"github.com/dukex/modelflow/pkg/hitl"
	"github.com/dukex/modelflow/pkg/mocks"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/persistence/file"
)

func writeCSV(t *testing.T, name, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	return path
}

// cleanCSV has no quality issues at all.
func cleanCSV(t *testing.T) string {
	var b strings.Builder

	b.WriteString("id,churned\n")

	for i := 1; i <= 20; i++ {
		churned := "yes"
		if i%2 == 0 {
			churned = "no"
		}

		fmt.Fprintf(&b, "%d,%s\n", i, churned)
	}

	return writeCSV(t, "clean.csv", b.String())
}

// messyCSV carries stray text in a numeric column, which surfaces as a
// low-confidence type-conversion rule needing a human decision.
func messyCSV(t *testing.T) string {
	var b strings.Builder

	b.WriteString("id,amount,churned\n")

	for i := 1; i <= 50; i++ {
		amount := fmt.Sprintf("%d", 100+i)
		if i%10 == 0 {
			amount = "abc"
		}

		churned := "yes"
		if i%2 == 0 {
			churned = "no"
		}

		fmt.Fprintf(&b, "%d,%s,%s\n", i, amount, churned)
	}

	return writeCSV(t, "messy.csv", b.String())
}

func newTestOrchestrator(t *testing.T, root string, policy *hitl.Policy, handler hitl.Handler) (*Orchestrator, *file.Persistence) {
	t.Helper()

	store := file.NewPersistence(root)

	orchestrator := New(Config{
		Store:         store,
		Collaborators: local.NewCollaborators(nil),
		Policy:        policy,
		Handler:       handler,
	})

	return orchestrator, store
}

func approveEverything() hitl.Handler {
	return hitl.HandlerFunc(func(_ context.Context, request hitl.Request) (models.HitlDecision, error) {
		optionID := "approve"
		if request.State == models.StateDeploymentReview {
			optionID = "deploy"
		}

		return models.HitlDecision{OptionID: optionID}, nil
	})
}

func TestRun_SkipHITLCompletesEndToEnd(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t, t.TempDir(), nil, nil)

	session := models.NewSession(cleanCSV(t), models.SessionOptions{SkipHITL: true})
	require.NoError(t, orchestrator.Run(t.Context(), session))

	assert.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, models.StateCompleted, session.Context.CurrentState)

	assert.NotNil(t, session.Context.Analysis)
	assert.NotNil(t, session.Context.Recommendation)
	assert.NotNil(t, session.Context.Preprocessing)
	assert.NotNil(t, session.Context.Training)
	assert.NotNil(t, session.Context.Evaluation)
	assert.NotNil(t, session.Context.Deployment)

	assert.Contains(t, session.Context.Artifacts, "cleaned_dataset")
	assert.Contains(t, session.Context.Artifacts, "model")
	assert.NotEmpty(t, session.Checkpoints)

	// Every review was auto-approved, none asked a human.
	require.Len(t, session.Context.Decisions, 5)
	for _, decision := range session.Context.Decisions {
		assert.True(t, decision.Automatic)
		assert.Equal(t, "approve", decision.OptionID)
	}
}

func TestRun_PausesAtCheckpointWithoutHandler(t *testing.T) {
	policy := hitl.NewPolicy(hitl.Config{
		DefaultThreshold: 0.90,
		Thresholds: map[models.State]float64{
			models.StateAnalysisReview:       0.5,
			models.StateRecommendationReview: 0.5,
		},
	}, nil)

	orchestrator, _ := newTestOrchestrator(t, t.TempDir(), policy, nil)

	session := models.NewSession(messyCSV(t), models.SessionOptions{})
	require.NoError(t, orchestrator.Run(t.Context(), session))

	assert.Equal(t, models.SessionStatusPaused, session.Status)
	assert.Equal(t, models.StatePreprocessingReview, session.Context.CurrentState)
	assert.True(t, session.CanResume())
}

func TestResume_ProceedsFromPausedCheckpoint(t *testing.T) {
	root := t.TempDir()
	policy := hitl.NewPolicy(hitl.Config{
		DefaultThreshold: 0.90,
		Thresholds: map[models.State]float64{
			models.StateAnalysisReview:       0.5,
			models.StateRecommendationReview: 0.5,
		},
	}, nil)

	orchestrator, _ := newTestOrchestrator(t, root, policy, nil)
	manager := NewManager(orchestrator, nil)

	session, err := manager.Start(t.Context(), messyCSV(t), models.SessionOptions{})
	require.NoError(t, err)
	require.Equal(t, models.SessionStatusPaused, session.Status)
	require.Equal(t, models.StatePreprocessingReview, session.Context.CurrentState)

	// A fresh manager over the same store, now with a handler.
	resumedOrchestrator, _ := newTestOrchestrator(t, root, policy, approveEverything())
	resumedManager := NewManager(resumedOrchestrator, nil)

	resumed, err := resumedManager.Resume(t.Context(), session.ID)
	require.NoError(t, err)

	assert.Equal(t, models.SessionStatusCompleted, resumed.Status)
	assert.Equal(t, models.StateCompleted, resumed.Context.CurrentState)

	visited := make([]models.State, 0, len(resumed.StateHistory))
	for _, transition := range resumed.StateHistory {
		visited = append(visited, transition.To)
	}

	assert.Contains(t, visited, models.StateTraining)
}

func TestRun_CancelDecisionTerminatesSession(t *testing.T) {
	cancelAtTraining := hitl.HandlerFunc(func(_ context.Context, request hitl.Request) (models.HitlDecision, error) {
		if request.State == models.StateTrainingReview {
			return models.HitlDecision{OptionID: "cancel"}, nil
		}

		return models.HitlDecision{OptionID: "approve"}, nil
	})

	orchestrator, _ := newTestOrchestrator(t, t.TempDir(), nil, cancelAtTraining)

	session := models.NewSession(cleanCSV(t), models.SessionOptions{})
	require.NoError(t, orchestrator.Run(t.Context(), session))

	assert.Equal(t, models.SessionStatusCancelled, session.Status)
	assert.Equal(t, models.StateCancelled, session.Context.CurrentState)
	assert.False(t, session.CanResume())

	last := session.StateHistory[len(session.StateHistory)-1]
	assert.Equal(t, models.StateTrainingReview, last.From)
	assert.Equal(t, models.StateCancelled, last.To)
}

type failingAnalyzer struct{}

func (failingAnalyzer) Analyze(context.Context, string, models.SessionOptions) (*models.AnalysisResult, error) {
	return nil, errors.New("profiler crashed")
}

func TestAdvance_StageFailureIsRecoverable(t *testing.T) {
	store := file.NewPersistence(t.TempDir())
	collaborators := local.NewCollaborators(nil)
	collaborators.Analyzer = failingAnalyzer{}

	orchestrator := New(Config{Store: store, Collaborators: collaborators})

	session := models.NewSession(cleanCSV(t), models.SessionOptions{SkipHITL: true})
	err := orchestrator.Run(t.Context(), session)

	require.ErrorContains(t, err, "profiler crashed")
	assert.Equal(t, models.SessionStatusFailed, session.Status)
	assert.Equal(t, models.StateAnalysis, session.Context.CurrentState)

	require.Len(t, session.Context.Errors, 1)
	assert.True(t, session.Context.Errors[0].Recoverable)
	assert.Equal(t, models.StateAnalysis, session.Context.Errors[0].State)

	// The failed session was persisted before control returned.
	stored, err := store.SessionByID(t.Context(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.SessionStatusFailed, stored.Status)
}

func TestAdvance_TerminalSessionIsNoOp(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t, t.TempDir(), nil, nil)

	session := models.NewSession(cleanCSV(t), models.SessionOptions{})
	session.Status = models.SessionStatusCompleted
	session.Context.CurrentState = models.StateCompleted

	require.NoError(t, orchestrator.Advance(t.Context(), session))
	assert.Empty(t, session.StateHistory)
}

func TestAdvance_CancelledContextCancelsSession(t *testing.T) {
	orchestrator, store := newTestOrchestrator(t, t.TempDir(), nil, nil)

	session := models.NewSession(cleanCSV(t), models.SessionOptions{SkipHITL: true})
	require.NoError(t, store.SaveSession(t.Context(), session))

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.NoError(t, orchestrator.Advance(ctx, session))
	assert.Equal(t, models.SessionStatusCancelled, session.Status)
	assert.Equal(t, models.StateCancelled, session.Context.CurrentState)

	stored, err := store.SessionByID(t.Context(), session.ID)
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, models.SessionStatusCancelled, stored.Status)
}

// sparseCSV is missing 20 of its 50 amount values, which surfaces as a
// missing-value rule that waits for approval before rows are dropped.
func sparseCSV(t *testing.T) string {
	var b strings.Builder

	b.WriteString("id,amount,churned\n")

	for i := 1; i <= 50; i++ {
		amount := fmt.Sprintf("%d", 100+i)
		if i%5 < 2 {
			amount = ""
		}

		churned := "yes"
		if i%2 == 0 {
			churned = "no"
		}

		fmt.Fprintf(&b, "%d,%s,%s\n", i, amount, churned)
	}

	return writeCSV(t, "sparse.csv", b.String())
}

// paddedCSV mixes auto-fixable whitespace padding with stray text in a
// numeric column, so cleanup is applied before the review triggers.
func paddedCSV(t *testing.T) string {
	var b strings.Builder

	b.WriteString("id,city,amount,churned\n")

	for i := 1; i <= 50; i++ {
		amount := fmt.Sprintf("%d", 100+i)
		if i%10 == 0 {
			amount = "abc"
		}

		churned := "yes"
		if i%2 == 0 {
			churned = "no"
		}

		fmt.Fprintf(&b, "%d,new  york,%s,%s\n", i, amount, churned)
	}

	return writeCSV(t, "padded.csv", b.String())
}

// decideAt answers optionID at the given review state, deploys at deployment
// review and approves everything else.
func decideAt(state models.State, optionID string) hitl.Handler {
	return hitl.HandlerFunc(func(_ context.Context, request hitl.Request) (models.HitlDecision, error) {
		switch request.State {
		case state:
			return models.HitlDecision{OptionID: optionID}, nil
		case models.StateDeploymentReview:
			return models.HitlDecision{OptionID: "deploy"}, nil
		default:
			return models.HitlDecision{OptionID: "approve"}, nil
		}
	})
}

func reviewPolicy() *hitl.Policy {
	return hitl.NewPolicy(hitl.Config{
		DefaultThreshold: 0.5,
		Thresholds: map[models.State]float64{
			models.StatePreprocessingReview: 0.95,
		},
	}, nil)
}

func TestRun_ApprovalAppliesHeldBackRules(t *testing.T) {
	orchestrator, _ := newTestOrchestrator(t, t.TempDir(), reviewPolicy(), approveEverything())

	session := models.NewSession(sparseCSV(t), models.SessionOptions{})
	require.NoError(t, orchestrator.Run(t.Context(), session))

	require.Equal(t, models.SessionStatusCompleted, session.Status)

	preprocessing := session.Context.Preprocessing
	require.NotNil(t, preprocessing)
	assert.NotEmpty(t, preprocessing.AppliedRules)
	assert.Empty(t, preprocessing.PendingRuleIDs)
	assert.Equal(t, 50, preprocessing.RowsBefore)
	assert.Equal(t, 30, preprocessing.RowsAfter)

	cleaned, err := dataset.Load(preprocessing.OutputPath)
	require.NoError(t, err)
	assert.Equal(t, 30, cleaned.RowCount())

	decision, ok := session.Context.DecisionFor(models.StatePreprocessingReview)
	require.True(t, ok)
	assert.False(t, decision.Automatic)
	assert.True(t, decision.Applied)
}

func TestRun_SkipDecisionDiscardsPreprocessingOutput(t *testing.T) {
	handler := decideAt(models.StatePreprocessingReview, "skip")
	orchestrator, _ := newTestOrchestrator(t, t.TempDir(), reviewPolicy(), handler)

	session := models.NewSession(paddedCSV(t), models.SessionOptions{})
	require.NoError(t, orchestrator.Run(t.Context(), session))

	require.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Nil(t, session.Context.Preprocessing)

	_, ok := session.Context.Artifacts["cleaned_dataset"]
	assert.False(t, ok)
	assert.Equal(t, session.Context.DatasetPath, orchestrator.trainingDataset(session))
}

func TestRun_RetryDecisionRerunsTraining(t *testing.T) {
	retries := 0
	handler := hitl.HandlerFunc(func(_ context.Context, request hitl.Request) (models.HitlDecision, error) {
		switch request.State {
		case models.StateTrainingReview:
			if retries == 0 {
				retries++

				return models.HitlDecision{OptionID: "retry"}, nil
			}

			return models.HitlDecision{OptionID: "approve"}, nil
		case models.StateDeploymentReview:
			return models.HitlDecision{OptionID: "deploy"}, nil
		default:
			return models.HitlDecision{OptionID: "approve"}, nil
		}
	})

	orchestrator, _ := newTestOrchestrator(t, t.TempDir(), nil, handler)

	session := models.NewSession(cleanCSV(t), models.SessionOptions{})
	require.NoError(t, orchestrator.Run(t.Context(), session))

	require.Equal(t, models.SessionStatusCompleted, session.Status)
	assert.Equal(t, 1, retries)

	trainingRuns := 0
	for _, transition := range session.StateHistory {
		if transition.To == models.StateTraining {
			trainingRuns++
		}
	}

	assert.Equal(t, 2, trainingRuns)
}

func TestRun_DecisionsCarryCheckpointIDs(t *testing.T) {
	orchestrator, store := newTestOrchestrator(t, t.TempDir(), nil, nil)

	session := models.NewSession(cleanCSV(t), models.SessionOptions{SkipHITL: true})
	require.NoError(t, store.SaveSession(t.Context(), session))
	require.NoError(t, orchestrator.Run(t.Context(), session))

	require.Equal(t, models.SessionStatusCompleted, session.Status)

	logged, err := store.Decisions(t.Context(), session.ID)
	require.NoError(t, err)
	require.NotEmpty(t, logged)

	for _, decision := range logged {
		assert.NotEmpty(t, decision.CheckpointID)
		assert.True(t, decision.Automatic)
	}
}

func TestRun_PublishesProgressUpdates(t *testing.T) {
	bus := new(mocks.MockEventBus)
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	store := file.NewPersistence(t.TempDir())
	orchestrator := New(Config{
		Store:         store,
		Bus:           bus,
		Collaborators: local.NewCollaborators(nil),
	})

	session := models.NewSession(cleanCSV(t), models.SessionOptions{SkipHITL: true})
	require.NoError(t, orchestrator.Run(t.Context(), session))

	var progress []events.ProgressUpdated

	for _, call := range bus.Calls {
		if event, ok := call.Arguments.Get(2).(events.ProgressUpdated); ok {
			progress = append(progress, event)
		}
	}

	require.NotEmpty(t, progress)

	last := progress[len(progress)-1]
	assert.Equal(t, models.StateCompleted, last.State)
	assert.Equal(t, 1.0, last.Percent)
}
