package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/dukex/modelflow/pkg/confidence"
	"github.com/dukex/modelflow/pkg/dataset"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/patterns"
)

// StageFractions are the progressive sampling stages, as fractions of the
// dataset's rows. The final stage always covers the whole dataset.
var StageFractions = []float64{0.001, 0.005, 0.015, 0.025, 1.0}

// DefaultExceptionTolerance is the exception rate above which a rule's
// consistency is recomputed and the rule considered for demotion.
const DefaultExceptionTolerance = 0.05

// DecisionLookup resolves a prior human decision by rule signature. Rules
// whose signature already has a decision are not asked again.
type DecisionLookup func(signature string) (models.HitlDecision, bool)

// RuleException records a rule that was deactivated because it misbehaved on
// a larger sample.
type RuleException struct {
	RuleID    string              `json:"rule_id"`
	Signature string              `json:"signature"`
	Category  models.RuleCategory `json:"category"`
	Rate      float64             `json:"rate"`
	Stage     int                 `json:"stage"`
}

// Result is the outcome of a full discovery run.
type Result struct {
	Rules            []*models.PreprocessingRule `json:"rules"`
	AutoFixable      []*models.PreprocessingRule `json:"auto_fixable"`
	NeedsDecision    []*models.PreprocessingRule `json:"needs_decision"`
	PendingDecisions []*models.PreprocessingRule `json:"pending_decisions"`
	Exceptions       []RuleException             `json:"exceptions,omitempty"`
	Patterns         []models.DetectedPattern    `json:"patterns,omitempty"`
	StagesRun        int                         `json:"stages_run"`
	ConvergedEarly   bool                        `json:"converged_early"`
	SampledRows      int                         `json:"sampled_rows"`
}

// OverallConfidence is the lowest overall score among the active rules. A run
// without active rules is fully confident.
func (r *Result) OverallConfidence() float64 {
	overall := 1.0

	for _, rule := range r.Rules {
		if rule.Confidence.Overall < overall {
			overall = rule.Confidence.Overall
		}
	}

	return overall
}

// Engine discovers preprocessing rules by detecting patterns over
// progressively larger samples and scoring each rule's behavior between
// stages.
type Engine struct {
	logger    *slog.Logger
	tolerance float64
}

// NewEngine builds an engine with the default exception tolerance.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{logger: logger, tolerance: DefaultExceptionTolerance}
}

// Discover runs every sampling stage over the table, stopping early when two
// consecutive stages over strictly growing samples produce identical, fully
// stable rule sets. Prior human decisions supplied through lookup are reused
// by signature; lookup may be nil.
func (e *Engine) Discover(ctx context.Context, table *dataset.Table, lookup DecisionLookup) (*Result, error) {
	if table.RowCount() == 0 {
		return nil, fmt.Errorf("cannot discover rules for %s: %w", table.Path, dataset.ErrEmptyDataset)
	}

	sampler := dataset.NewSampler(table)
	result := &Result{}
	demoted := map[string]bool{}

	var (
		previous     map[string]*models.PreprocessingRule
		previousSigs []string
		previousSize int
	)

	for stageIdx, fraction := range StageFractions {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		stage := stageIdx + 1
		sample := sampler.At(fraction)

		columns := make([][]string, len(table.Headers))
		for i := range table.Headers {
			columns[i] = sample.Column(i)
		}

		detected := patterns.DetectAll(table.Headers, columns)
		current := make(map[string]*models.PreprocessingRule, len(detected))

		for _, pattern := range detected {
			rule := synthesize(pattern, stage)
			signature := rule.Signature()

			if prev, ok := previous[signature]; ok {
				rule.ID = prev.ID
				rule.DiscoveryStage = prev.DiscoveryStage
			}

			e.score(rule, pattern, previous[signature], sample)

			if demoted[signature] {
				rule.Active = false
			} else if rate := rule.Confidence.ExceptionRate(); rate > e.tolerance &&
				rule.Confidence.Overall < confidence.MediumThreshold {
				rule.Active = false
				demoted[signature] = true
				result.Exceptions = append(result.Exceptions, RuleException{
					RuleID:    rule.ID,
					Signature: signature,
					Category:  rule.Category,
					Rate:      rate,
					Stage:     stage,
				})

				e.logger.Warn("deactivating rule after exceptions",
					"rule_id", rule.ID, "category", rule.Category, "rate", rate, "stage", stage)
			}

			if err := ValidateParameters(rule.Category, rule.Parameters); err != nil {
				rule.Active = false

				e.logger.Warn("deactivating rule with malformed parameters",
					"rule_id", rule.ID, "category", rule.Category, "error", err)
			}

			current[signature] = rule
		}

		signatures := sortedKeys(current)

		result.Patterns = detected
		result.StagesRun = stage
		result.SampledRows = sample.Size()

		e.logger.Debug("discovery stage complete",
			"stage", stage, "fraction", fraction, "rows", sample.Size(), "rules", len(current))

		// Convergence needs two stages over strictly growing samples: on
		// small datasets the minimum-row clamp makes consecutive early
		// samples identical, which says nothing about stability.
		if stageIdx > 0 && stageIdx < len(StageFractions)-1 &&
			sample.Size() > previousSize && len(current) > 0 &&
			equalStrings(signatures, previousSigs) && allStable(current) {
			result.ConvergedEarly = true
			previous = current

			e.logger.Info("discovery converged early", "stage", stage, "rules", len(current))

			break
		}

		previous = current
		previousSigs = signatures
		previousSize = sample.Size()
	}

	e.finalize(result, previous, lookup)

	return result, nil
}

// score fills the rule's confidence from its behavior on the sample.
func (e *Engine) score(rule *models.PreprocessingRule, pattern models.DetectedPattern, prev *models.PreprocessingRule, sample *dataset.Sample) {
	score := models.ConfidenceScore{
		Coverage:     pattern.AffectedPercentage,
		Stability:    confidence.Stability(prev, rule),
		AttemptCount: sample.Size(),
	}

	if applier, ok := ApplierFor(rule.Category); ok {
		index := sample.Table.ColumnIndex(rule.Columns[0])
		for _, value := range sample.Column(index) {
			if _, err := applier(rule, value); err != nil {
				score.ExceptionCount++
			}
		}

		score.Consistency = 1.0 - float64(score.ExceptionCount)/float64(score.AttemptCount)
	} else {
		score.Consistency = pattern.Confidence
	}

	rule.Confidence = confidence.Compute(score)
}

// finalize partitions the last stage's rules and applies prior decisions.
func (e *Engine) finalize(result *Result, rules map[string]*models.PreprocessingRule, lookup DecisionLookup) {
	for _, signature := range sortedKeys(rules) {
		rule := rules[signature]
		if !rule.Active {
			continue
		}

		if rule.RequiresHITL && lookup != nil {
			if decision, ok := lookup(signature); ok {
				switch decision.OptionID {
				case "approve", "modify":
					rule.Approved = true
				case "skip":
					rule.Active = false
				}

				if rule.Active {
					result.Rules = append(result.Rules, rule)
					result.NeedsDecision = append(result.NeedsDecision, rule)
				}

				continue
			}
		}

		result.Rules = append(result.Rules, rule)

		if rule.RequiresHITL {
			result.NeedsDecision = append(result.NeedsDecision, rule)
			result.PendingDecisions = append(result.PendingDecisions, rule)
		} else {
			result.AutoFixable = append(result.AutoFixable, rule)
		}
	}

	byPriority(result.Rules)
	byPriority(result.AutoFixable)
	byPriority(result.NeedsDecision)
	byPriority(result.PendingDecisions)
}

// synthesize turns one detected pattern into a candidate rule.
func synthesize(pattern models.DetectedPattern, stage int) *models.PreprocessingRule {
	category := categoryFor(pattern)
	rule := models.NewPreprocessingRule(category, pattern, pattern.SuggestedFix, priorityFor(pattern.Severity))
	rule.DiscoveryStage = stage
	rule.Parameters = parametersFor(category, pattern)

	return rule
}

func categoryFor(pattern models.DetectedPattern) models.RuleCategory {
	switch pattern.Type {
	case models.PatternMissingValue:
		return models.RuleMissingValueStrategy
	case models.PatternTypeInconsistency:
		return models.RuleTypeConversion
	case models.PatternFormatVariation:
		if pattern.SuggestedFix == patterns.FixNumericFormat {
			return models.RuleNumericFormatStandardization
		}

		return models.RuleDateFormatStandardization
	case models.PatternOutlier:
		return models.RuleOutlierHandling
	case models.PatternCategoryVariation:
		return models.RuleCategoryMapping
	case models.PatternEncodingIssue:
		return models.RuleEncodingNormalization
	case models.PatternWhitespaceIssue:
		return models.RuleWhitespaceNormalization
	default:
		return models.RuleBusinessLogicDecision
	}
}

func parametersFor(category models.RuleCategory, pattern models.DetectedPattern) map[string]any {
	switch category {
	case models.RuleWhitespaceNormalization:
		return map[string]any{"mode": "trim_and_collapse"}
	case models.RuleEncodingNormalization:
		return map[string]any{"strategy": "replace_known_mojibake"}
	case models.RuleDateFormatStandardization:
		layouts := append([]string(nil), pattern.Examples...)
		sort.Strings(layouts)

		return map[string]any{"target_layout": canonicalDateLayout, "source_layouts": layouts}
	case models.RuleNumericFormatStandardization:
		return map[string]any{"decimal_separator": "."}
	case models.RuleMissingValueStrategy:
		return map[string]any{"strategies": []string{"drop_rows", "impute_mean", "impute_mode", "fill_constant"}}
	case models.RuleOutlierHandling:
		return map[string]any{"method": "zscore", "threshold": 3.0}
	case models.RuleCategoryMapping:
		return map[string]any{"normalization": "casefold_trim"}
	case models.RuleTypeConversion:
		return map[string]any{"target_type": "numeric"}
	default:
		return map[string]any{"constraint": "non_negative"}
	}
}

func priorityFor(severity models.Severity) int {
	switch severity {
	case models.SeverityCritical:
		return 9
	case models.SeverityHigh:
		return 7
	case models.SeverityMedium:
		return 5
	default:
		return 3
	}
}

func allStable(rules map[string]*models.PreprocessingRule) bool {
	for _, rule := range rules {
		if rule.Confidence.Stability < 1.0 {
			return false
		}
	}

	return true
}

func byPriority(rules []*models.PreprocessingRule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority > rules[j].Priority
		}

		return rules[i].Signature() < rules[j].Signature()
	})
}

func sortedKeys(rules map[string]*models.PreprocessingRule) []string {
	keys := make([]string, 0, len(rules))
	for key := range rules {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}

	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
