package models

import "time"

// ColumnInfo describes one dataset column as seen by the analyzer.
type ColumnInfo struct {
	Name         string  `json:"name"`
	InferredType string  `json:"inferred_type"`
	MissingRatio float64 `json:"missing_ratio"`
	Cardinality  int     `json:"cardinality"`
}

// AnalysisResult is the analyzer collaborator's output.
type AnalysisResult struct {
	RowCount          int          `json:"row_count"`
	ColumnCount       int          `json:"column_count"`
	Columns           []ColumnInfo `json:"columns"`
	RecommendedTarget string       `json:"recommended_target,omitempty"`
	QualityIssues     []string     `json:"quality_issues,omitempty"`
	Readiness         float64      `json:"readiness"`
	Insights          []string     `json:"insights,omitempty"`
}

// RecommendationResult is the recommender collaborator's output.
type RecommendationResult struct {
	TaskType           string        `json:"task_type"`
	PrimaryMetric      string        `json:"primary_metric"`
	Trainers           []string      `json:"trainers"`
	TrainingTimeBudget time.Duration `json:"training_time_budget"`
	Warnings           []string      `json:"warnings,omitempty"`
}

// PreprocessingResult summarizes one preprocessing run over the dataset.
type PreprocessingResult struct {
	RowsBefore   int      `json:"rows_before"`
	RowsAfter    int      `json:"rows_after"`
	OutputPath   string   `json:"output_path"`
	AppliedRules []string `json:"applied_rules,omitempty"`
	Steps        []string `json:"steps,omitempty"`
	// PendingRuleIDs are discovered rules held back until the review
	// checkpoint approves them.
	PendingRuleIDs []string `json:"pending_rule_ids,omitempty"`
}

// TrainingResult is the training runner's output.
type TrainingResult struct {
	BestTrainer  string  `json:"best_trainer"`
	MetricName   string  `json:"metric_name"`
	MetricValue  float64 `json:"metric_value"`
	ExperimentID string  `json:"experiment_id"`
}

// EvaluationResult summarizes the trained model's held-out performance.
type EvaluationResult struct {
	Metrics map[string]float64 `json:"metrics"`
	Summary string             `json:"summary,omitempty"`
}

// DeploymentResult records where the trained model ended up.
type DeploymentResult struct {
	ModelPath  string    `json:"model_path"`
	Endpoint   string    `json:"endpoint,omitempty"`
	DeployedAt time.Time `json:"deployed_at"`
}
