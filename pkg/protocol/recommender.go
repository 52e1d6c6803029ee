package protocol

import (
	"context"

	"github.com/dukex/modelflow/pkg/models"
)

// Recommender picks the task type, trainers and metric from an analysis.
type Recommender interface {
	Recommend(ctx context.Context, analysis *models.AnalysisResult, opts models.SessionOptions) (*models.RecommendationResult, error)
}
