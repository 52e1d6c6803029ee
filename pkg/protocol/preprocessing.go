package protocol

import (
	"context"

	"github.com/dukex/modelflow/pkg/models"
)

// PreprocessingExecutor applies approved preprocessing rules to a dataset and
// writes the cleaned copy.
type PreprocessingExecutor interface {
	Preprocess(ctx context.Context, datasetPath string, rules []*models.PreprocessingRule) (*models.PreprocessingResult, error)
}
