package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/modelflow/pkg/dataset"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/patterns"
)

// ErrNoRecommendation indicates the trainer ran before the recommender.
var ErrNoRecommendation = errors.New("no recommendation to train from")

// Trainer fits deterministic baseline models so the pipeline runs end to end
// without an external ML runtime: majority-class accuracy for classification,
// predict-the-mean error for regression.
type Trainer struct {
	logger *slog.Logger
}

// NewTrainer builds the baseline trainer.
func NewTrainer(logger *slog.Logger) *Trainer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Trainer{logger: logger}
}

func (t *Trainer) Train(ctx context.Context, datasetPath string, recommendation *models.RecommendationResult, opts models.SessionOptions) (*models.TrainingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if recommendation == nil || len(recommendation.Trainers) == 0 {
		return nil, ErrNoRecommendation
	}

	table, err := dataset.Load(datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", datasetPath, err)
	}

	target := table.ColumnIndex(opts.TargetColumn)
	if target < 0 && len(table.Headers) > 0 {
		target = len(table.Headers) - 1
	}

	if target < 0 {
		return nil, fmt.Errorf("dataset %s has no target column to train on", datasetPath)
	}

	value, err := baselineMetric(recommendation.TaskType, table.Column(target))
	if err != nil {
		return nil, err
	}

	result := &models.TrainingResult{
		BestTrainer:  recommendation.Trainers[0],
		MetricName:   recommendation.PrimaryMetric,
		MetricValue:  value,
		ExperimentID: "exp-" + uuid.New().String()[:8],
	}

	t.logger.Info("training complete",
		"trainer", result.BestTrainer, "metric", result.MetricName, "value", result.MetricValue)

	return result, nil
}

func baselineMetric(taskType string, values []string) (float64, error) {
	switch taskType {
	case "regression", "forecasting":
		return meanBaselineError(values)
	default:
		return majorityShare(values), nil
	}
}

// majorityShare is the accuracy of always predicting the dominant class.
func majorityShare(values []string) float64 {
	counts := make(map[string]int)
	present := 0

	for _, value := range values {
		if patterns.IsMissing(value) {
			continue
		}

		counts[value]++
		present++
	}

	if present == 0 {
		return 0
	}

	dominant := 0
	for _, count := range counts {
		if count > dominant {
			dominant = count
		}
	}

	return float64(dominant) / float64(present)
}

// meanBaselineError is the RMSE of always predicting the mean.
func meanBaselineError(values []string) (float64, error) {
	numbers := make([]float64, 0, len(values))

	for _, value := range values {
		if parsed, ok := patterns.ParseNumeric(value); ok {
			numbers = append(numbers, parsed)
		}
	}

	if len(numbers) == 0 {
		return 0, errors.New("target column has no numeric values")
	}

	mean := 0.0
	for _, n := range numbers {
		mean += n
	}

	mean /= float64(len(numbers))

	variance := 0.0
	for _, n := range numbers {
		variance += (n - mean) * (n - mean)
	}

	return math.Sqrt(variance / float64(len(numbers))), nil
}

// Evaluator reports the trained baseline's metrics as the held-out result.
type Evaluator struct {
	logger *slog.Logger
}

// NewEvaluator builds the baseline evaluator.
func NewEvaluator(logger *slog.Logger) *Evaluator {
	if logger == nil {
		logger = slog.Default()
	}

	return &Evaluator{logger: logger}
}

func (e *Evaluator) Evaluate(ctx context.Context, datasetPath string, training *models.TrainingResult) (*models.EvaluationResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if training == nil {
		return nil, errors.New("no training result to evaluate")
	}

	result := &models.EvaluationResult{
		Metrics: map[string]float64{training.MetricName: training.MetricValue},
		Summary: fmt.Sprintf("%s held %s=%.4f on the full dataset", training.BestTrainer, training.MetricName, training.MetricValue),
	}

	e.logger.Info("evaluation complete", "metric", training.MetricName, "value", training.MetricValue)

	return result, nil
}

// Deployer records a deployment without publishing anywhere external.
type Deployer struct {
	logger *slog.Logger
}

// NewDeployer builds the local deployer.
func NewDeployer(logger *slog.Logger) *Deployer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Deployer{logger: logger}
}

func (d *Deployer) Deploy(ctx context.Context, training *models.TrainingResult, optionID string) (*models.DeploymentResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if training == nil {
		return nil, errors.New("no training result to deploy")
	}

	result := &models.DeploymentResult{
		ModelPath:  fmt.Sprintf("models/%s/%s.model", training.ExperimentID, training.BestTrainer),
		DeployedAt: time.Now().UTC(),
	}

	if optionID == "deploy" {
		result.Endpoint = fmt.Sprintf("local://models/%s", training.ExperimentID)
	}

	d.logger.Info("deployment recorded",
		"model_path", result.ModelPath, "endpoint", result.Endpoint, "option", optionID)

	return result, nil
}

// NoopMemory is the degenerate memory service: it remembers nothing.
type NoopMemory struct{}

func (NoopMemory) Insights(context.Context, string) ([]string, bool) {
	return nil, false
}

// StaticMemory returns a fixed set of insights, useful for wiring the
// advisory path in tests and demos.
type StaticMemory struct {
	Notes []string
}

func (m StaticMemory) Insights(context.Context, string) ([]string, bool) {
	if len(m.Notes) == 0 {
		return nil, false
	}

	return append([]string(nil), m.Notes...), true
}
