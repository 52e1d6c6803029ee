package hitl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/modelflow/pkg/models"
)

func TestShouldTriggerHITL_SkipFlagWinsEverywhere(t *testing.T) {
	policy := NewPolicy(DefaultConfig(), nil)
	opts := models.SessionOptions{SkipHITL: true}

	assert.False(t, policy.ShouldTriggerHITL(models.StatePreprocessingReview, 0.1, opts))
	assert.False(t, policy.ShouldTriggerHITL(models.StateTrainingReview, 0.1, opts))
	assert.False(t, policy.ShouldTriggerHITL(models.StateDeploymentReview, 1.0, opts))
}

func TestShouldTriggerHITL_NonReviewStatesNeverTrigger(t *testing.T) {
	policy := NewPolicy(DefaultConfig(), nil)

	assert.False(t, policy.ShouldTriggerHITL(models.StateAnalysis, 0.0, models.SessionOptions{}))
	assert.False(t, policy.ShouldTriggerHITL(models.StateTraining, 0.0, models.SessionOptions{}))
	assert.False(t, policy.ShouldTriggerHITL(models.StateCompleted, 0.0, models.SessionOptions{}))
}

func TestShouldTriggerHITL_AlwaysExplicitIgnoresConfidence(t *testing.T) {
	policy := NewPolicy(DefaultConfig(), nil)

	assert.True(t, policy.ShouldTriggerHITL(models.StateTrainingReview, 1.0, models.SessionOptions{}))
	assert.True(t, policy.ShouldTriggerHITL(models.StateDeploymentReview, 1.0, models.SessionOptions{}))
}

func TestShouldTriggerHITL_ThresholdComparison(t *testing.T) {
	policy := NewPolicy(DefaultConfig(), nil)
	opts := models.SessionOptions{}

	assert.False(t, policy.ShouldTriggerHITL(models.StatePreprocessingReview, 0.95, opts))
	assert.False(t, policy.ShouldTriggerHITL(models.StatePreprocessingReview, 0.90, opts))
	assert.True(t, policy.ShouldTriggerHITL(models.StatePreprocessingReview, 0.85, opts))
}

func TestShouldTriggerHITL_SessionThresholdOnlyLoosens(t *testing.T) {
	policy := NewPolicy(DefaultConfig(), nil)

	// A lower session threshold loosens the bar.
	loose := models.SessionOptions{AutoApproveThreshold: 0.8}
	assert.False(t, policy.ShouldTriggerHITL(models.StatePreprocessingReview, 0.85, loose))

	// A higher session threshold cannot push a checkpoint above its config.
	strict := models.SessionOptions{AutoApproveThreshold: 0.97}
	assert.False(t, policy.ShouldTriggerHITL(models.StatePreprocessingReview, 0.95, strict))
}

func TestShouldTriggerHITL_InjectedThresholds(t *testing.T) {
	config := Config{
		DefaultThreshold: 0.90,
		Thresholds:       map[models.State]float64{models.StatePreprocessingReview: 0.99},
	}
	policy := NewPolicy(config, nil)

	assert.True(t, policy.ShouldTriggerHITL(models.StatePreprocessingReview, 0.95, models.SessionOptions{}))
	assert.False(t, policy.ShouldTriggerHITL(models.StateAnalysisReview, 0.95, models.SessionOptions{}))
}

func TestBuildRequest_AnalysisSummary(t *testing.T) {
	policy := NewPolicy(DefaultConfig(), nil)
	sessionContext := &models.SessionContext{
		Analysis: &models.AnalysisResult{
			RowCount:          1000,
			ColumnCount:       12,
			RecommendedTarget: "churned",
			QualityIssues:     []string{"3 columns with missing values"},
			Insights:          []string{"similar dataset trained best with gradient boosting"},
		},
	}

	request := policy.BuildRequest(models.StateAnalysisReview, sessionContext)

	assert.Equal(t, models.StateAnalysisReview, request.State)
	assert.NotEmpty(t, request.ID)
	assert.Contains(t, request.Summary, "1000 rows")
	assert.Contains(t, request.Summary, `"churned"`)
	assert.Contains(t, request.Summary, "missing values")
	assert.Contains(t, request.Summary, "gradient boosting")

	ids := optionIDs(request.Options)
	assert.Equal(t, []string{"approve", "modify", "skip", "cancel"}, ids)
}

func TestBuildRequest_DeploymentOptions(t *testing.T) {
	policy := NewPolicy(DefaultConfig(), nil)
	sessionContext := &models.SessionContext{
		Training:   &models.TrainingResult{BestTrainer: "random_forest", MetricName: "f1", MetricValue: 0.91},
		Evaluation: &models.EvaluationResult{Summary: "holds up on the held-out split"},
	}

	request := policy.BuildRequest(models.StateDeploymentReview, sessionContext)

	assert.Contains(t, request.Summary, "random_forest")
	assert.Contains(t, request.Summary, "held-out")
	assert.Equal(t, []string{"deploy", "export", "save", "cancel"}, optionIDs(request.Options))
}

func TestBuildRequest_MissingResultsStillRender(t *testing.T) {
	policy := NewPolicy(DefaultConfig(), nil)

	for _, state := range []models.State{
		models.StateAnalysisReview,
		models.StateRecommendationReview,
		models.StatePreprocessingReview,
		models.StateTrainingReview,
		models.StateDeploymentReview,
	} {
		request := policy.BuildRequest(state, &models.SessionContext{})
		require.NotEmpty(t, request.Summary, "state %s", state)
		require.NotEmpty(t, request.Options, "state %s", state)
	}
}

func optionIDs(options []Option) []string {
	ids := make([]string, len(options))
	for i, option := range options {
		ids[i] = option.ID
	}

	return ids
}
