package models

// PatternType classifies a detected data-quality observation.
type PatternType string

const (
	PatternMissingValue          PatternType = "missing_value"
	PatternTypeInconsistency     PatternType = "type_inconsistency"
	PatternFormatVariation       PatternType = "format_variation"
	PatternOutlier               PatternType = "outlier"
	PatternCategoryVariation     PatternType = "category_variation"
	PatternEncodingIssue         PatternType = "encoding_issue"
	PatternWhitespaceIssue       PatternType = "whitespace_issue"
	PatternBusinessRuleViolation PatternType = "business_rule_violation"
)

// Severity grades how strongly a pattern affects downstream training.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// DetectedPattern is one data-quality observation over one or more columns.
type DetectedPattern struct {
	Type               PatternType `json:"type"`
	Columns            []string    `json:"columns"`
	Severity           Severity    `json:"severity"`
	Occurrences        int         `json:"occurrences"`
	TotalRows          int         `json:"total_rows"`
	AffectedPercentage float64     `json:"affected_percentage"`
	Confidence         float64     `json:"confidence"`
	Examples           []string    `json:"examples,omitempty"`
	SuggestedFix       string      `json:"suggested_fix,omitempty"`
}
