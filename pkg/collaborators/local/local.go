package local

import (
	"log/slog"

	"github.com/dukex/modelflow/pkg/protocol"
)

// NewCollaborators wires the full local collaborator set.
func NewCollaborators(logger *slog.Logger) protocol.Collaborators {
	return protocol.Collaborators{
		Analyzer:     NewAnalyzer(logger),
		Recommender:  NewRecommender(logger),
		Preprocessor: NewPreprocessor(logger),
		Trainer:      NewTrainer(logger),
		Evaluator:    NewEvaluator(logger),
		Deployer:     NewDeployer(logger),
		Memory:       NoopMemory{},
	}
}
