package models

import (
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
)

// RuleCategory classifies a preprocessing rule. The auto-resolvable categories
// may be applied without a human decision; every other category requires one.
type RuleCategory string

const (
	// Auto-resolvable categories.
	RuleDateFormatStandardization    RuleCategory = "date_format_standardization"
	RuleEncodingNormalization        RuleCategory = "encoding_normalization"
	RuleWhitespaceNormalization      RuleCategory = "whitespace_normalization"
	RuleNumericFormatStandardization RuleCategory = "numeric_format_standardization"

	// HITL-required categories.
	RuleMissingValueStrategy  RuleCategory = "missing_value_strategy"
	RuleOutlierHandling       RuleCategory = "outlier_handling"
	RuleCategoryMapping       RuleCategory = "category_mapping"
	RuleTypeConversion        RuleCategory = "type_conversion"
	RuleBusinessLogicDecision RuleCategory = "business_logic_decision"
)

var autoResolvableCategories = map[RuleCategory]bool{
	RuleDateFormatStandardization:    true,
	RuleEncodingNormalization:        true,
	RuleWhitespaceNormalization:      true,
	RuleNumericFormatStandardization: true,
}

// AutoResolvable reports whether rules of this category may be applied without
// an explicit human decision.
func (c RuleCategory) AutoResolvable() bool {
	return autoResolvableCategories[c]
}

// PreprocessingRule is a candidate transformation derived from one or more
// detected patterns.
type PreprocessingRule struct {
	ID             string          `json:"id"`
	Category       RuleCategory    `json:"category"`
	Columns        []string        `json:"columns"`
	PatternType    PatternType     `json:"pattern_type"`
	Description    string          `json:"description"`
	RequiresHITL   bool            `json:"requires_hitl"`
	Priority       int             `json:"priority"       validate:"gte=1,lte=10"`
	Parameters     map[string]any  `json:"parameters,omitempty"`
	Approved       bool            `json:"approved"`
	AffectedRows   int             `json:"affected_rows"`
	DiscoveryStage int             `json:"discovery_stage"`
	Active         bool            `json:"active"`
	Confidence     ConfidenceScore `json:"confidence"`
}

// NewPreprocessingRule builds a rule for the given category and pattern.
// RequiresHITL is fixed by category.
func NewPreprocessingRule(category RuleCategory, pattern DetectedPattern, description string, priority int) *PreprocessingRule {
	return &PreprocessingRule{
		ID:           "rule-" + uuid.New().String()[:8],
		Category:     category,
		Columns:      append([]string(nil), pattern.Columns...),
		PatternType:  pattern.Type,
		Description:  description,
		RequiresHITL: !category.AutoResolvable(),
		Priority:     priority,
		Parameters:   make(map[string]any),
		AffectedRows: pattern.Occurrences,
		Active:       true,
	}
}

// Signature is the canonical identity of a rule across sampling stages. Two
// rules are equivalent iff their signatures match.
func (r *PreprocessingRule) Signature() string {
	columns := append([]string(nil), r.Columns...)
	sort.Strings(columns)

	return fmt.Sprintf("%s|%s|%s|%s", r.Category, strings.Join(columns, ","), r.PatternType, r.Description)
}

// ConfidenceLevel buckets an overall confidence score.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// ConfidenceScore captures the observed behavior of a rule. All fields are
// plain inputs; pkg/confidence recomputes Overall and Level from them exactly.
type ConfidenceScore struct {
	Consistency    float64 `json:"consistency"`
	Coverage       float64 `json:"coverage"`
	Stability      float64 `json:"stability"`
	Overall        float64 `json:"overall"`
	ExceptionCount int     `json:"exception_count"`
	AttemptCount   int     `json:"attempt_count"`
}

// ExceptionRate returns failures over attempts while validating the rule
// against later, larger samples. Zero attempts yields zero.
func (c ConfidenceScore) ExceptionRate() float64 {
	if c.AttemptCount == 0 {
		return 0
	}

	return float64(c.ExceptionCount) / float64(c.AttemptCount)
}
