package protocol

import (
	"context"

	"github.com/dukex/modelflow/pkg/models"
)

// TrainingRunner fits the recommended trainers and reports the best one.
type TrainingRunner interface {
	Train(ctx context.Context, datasetPath string, recommendation *models.RecommendationResult, opts models.SessionOptions) (*models.TrainingResult, error)
}

// Evaluator measures a trained model on held-out data.
type Evaluator interface {
	Evaluate(ctx context.Context, datasetPath string, training *models.TrainingResult) (*models.EvaluationResult, error)
}

// Deployer publishes a trained model according to the reviewer's choice.
type Deployer interface {
	Deploy(ctx context.Context, training *models.TrainingResult, optionID string) (*models.DeploymentResult, error)
}
