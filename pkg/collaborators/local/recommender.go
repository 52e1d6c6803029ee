package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/modelflow/pkg/models"
)

// ErrNoAnalysis indicates the recommender ran before the analyzer.
var ErrNoAnalysis = errors.New("no analysis result to recommend from")

const defaultTrainingBudget = 10 * time.Minute

var trainersByTask = map[string][]string{
	"classification": {"gradient_boosting", "random_forest", "logistic_regression"},
	"regression":     {"gradient_boosting", "random_forest", "linear_regression"},
	"forecasting":    {"gradient_boosting", "seasonal_naive"},
}

var metricByTask = map[string]string{
	"classification": "f1",
	"regression":     "rmse",
	"forecasting":    "smape",
}

// Recommender picks task type, trainers and metric with simple heuristics
// over the analysis profile.
type Recommender struct {
	logger *slog.Logger
}

// NewRecommender builds a heuristic recommender.
func NewRecommender(logger *slog.Logger) *Recommender {
	if logger == nil {
		logger = slog.Default()
	}

	return &Recommender{logger: logger}
}

func (r *Recommender) Recommend(ctx context.Context, analysis *models.AnalysisResult, opts models.SessionOptions) (*models.RecommendationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if analysis == nil {
		return nil, ErrNoAnalysis
	}

	taskType := opts.TaskType
	if taskType == "" {
		taskType = inferTaskType(analysis)
	}

	trainers, ok := trainersByTask[taskType]
	if !ok {
		return nil, fmt.Errorf("no trainers available for task type %q", taskType)
	}

	budget := opts.MaxTrainingTime
	if budget <= 0 {
		budget = defaultTrainingBudget
	}

	result := &models.RecommendationResult{
		TaskType:           taskType,
		PrimaryMetric:      metricByTask[taskType],
		Trainers:           append([]string(nil), trainers...),
		TrainingTimeBudget: budget,
	}

	if analysis.RowCount < 100 {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("dataset has only %d rows; expect high variance in metrics", analysis.RowCount))
	}

	if analysis.Readiness < 0.5 {
		result.Warnings = append(result.Warnings, "more than half of the columns show quality issues")
	}

	r.logger.Info("recommendation built",
		"task_type", taskType, "metric", result.PrimaryMetric, "trainers", len(result.Trainers))

	return result, nil
}

// inferTaskType guesses from the recommended target's profile: a numeric
// high-cardinality target reads as regression, anything else as
// classification.
func inferTaskType(analysis *models.AnalysisResult) string {
	for _, column := range analysis.Columns {
		if column.Name != analysis.RecommendedTarget {
			continue
		}

		if column.InferredType == "numeric" && column.Cardinality > 20 {
			return "regression"
		}
	}

	return "classification"
}
