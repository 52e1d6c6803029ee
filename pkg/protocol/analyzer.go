// Package protocol defines the contracts between the orchestrator and its
// stage collaborators.
package protocol

import (
	"context"

	"github.com/dukex/modelflow/pkg/models"
)

// Analyzer profiles a dataset before any other stage runs.
type Analyzer interface {
	Analyze(ctx context.Context, datasetPath string, opts models.SessionOptions) (*models.AnalysisResult, error)
}
