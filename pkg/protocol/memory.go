package protocol

import "context"

// MemoryService surfaces insights remembered from earlier sessions over
// similar datasets. It is advisory only: a missing or failing memory service
// degrades to no insights, never to a session failure.
type MemoryService interface {
	Insights(ctx context.Context, datasetPath string) ([]string, bool)
}

// Collaborators bundles every stage collaborator the orchestrator needs.
// Memory may be nil.
type Collaborators struct {
	Analyzer     Analyzer
	Recommender  Recommender
	Preprocessor PreprocessingExecutor
	Trainer      TrainingRunner
	Evaluator    Evaluator
	Deployer     Deployer
	Memory       MemoryService
}
