package patterns

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dukex/modelflow/pkg/models"
)

// Suggested-fix identifiers used by rule discovery to pick a rule category for
// format-variation patterns.
const (
	FixDateFormat    = "standardize date formats"
	FixNumericFormat = "standardize numeric formats"
)

const maxExamples = 5

// Non-negative column name fragments for the business-rule detector.
var nonNegativeHints = []string{"age", "price", "quantity", "qty", "count", "amount", "salary", "duration"}

// DetectColumn runs every detector over one column and returns the patterns
// found. Values are the sampled values of the column; their length is the
// sample's row count.
func DetectColumn(column string, values []string) []models.DetectedPattern {
	detectors := []func(string, []string) *models.DetectedPattern{
		detectMissing,
		detectTypeInconsistency,
		detectDateFormatVariation,
		detectNumericFormatVariation,
		detectOutliers,
		detectCategoryVariation,
		detectEncodingIssues,
		detectWhitespaceIssues,
		detectBusinessRuleViolations,
	}

	found := make([]models.DetectedPattern, 0)

	for _, detect := range detectors {
		if pattern := detect(column, values); pattern != nil {
			found = append(found, *pattern)
		}
	}

	return found
}

// DetectAll runs the column detectors over every column of the sample.
// Columns are visited in header order so the result is deterministic.
func DetectAll(headers []string, columns [][]string) []models.DetectedPattern {
	found := make([]models.DetectedPattern, 0)

	for i, header := range headers {
		found = append(found, DetectColumn(header, columns[i])...)
	}

	return found
}

func severityFor(affected float64) models.Severity {
	switch {
	case affected >= 0.5:
		return models.SeverityCritical
	case affected >= 0.2:
		return models.SeverityHigh
	case affected >= 0.05:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func newPattern(patternType models.PatternType, column string, occurrences, total int, confidence float64, examples []string, fix string) *models.DetectedPattern {
	affected := 0.0
	if total > 0 {
		affected = float64(occurrences) / float64(total)
	}

	return &models.DetectedPattern{
		Type:               patternType,
		Columns:            []string{column},
		Severity:           severityFor(affected),
		Occurrences:        occurrences,
		TotalRows:          total,
		AffectedPercentage: affected,
		Confidence:         confidence,
		Examples:           examples,
		SuggestedFix:       fix,
	}
}

func detectMissing(column string, values []string) *models.DetectedPattern {
	missing := 0

	for _, value := range values {
		if IsMissing(value) {
			missing++
		}
	}

	if missing == 0 {
		return nil
	}

	return newPattern(models.PatternMissingValue, column, missing, len(values), 1.0, nil,
		fmt.Sprintf("choose a missing-value strategy for %q", column))
}

func detectTypeInconsistency(column string, values []string) *models.DetectedPattern {
	numeric, text := 0, 0
	examples := make([]string, 0, maxExamples)

	for _, value := range values {
		if IsMissing(value) {
			continue
		}

		if _, ok := ParseNumeric(value); ok {
			numeric++
		} else {
			text++

			if len(examples) < maxExamples {
				examples = append(examples, value)
			}
		}
	}

	present := numeric + text
	if present == 0 || text == 0 {
		return nil
	}

	// Only flag columns that are dominantly numeric with stray text.
	if float64(numeric)/float64(present) < 0.6 {
		return nil
	}

	return newPattern(models.PatternTypeInconsistency, column, text, len(values), 0.9, examples,
		fmt.Sprintf("convert %q to a numeric type", column))
}

func detectDateFormatVariation(column string, values []string) *models.DetectedPattern {
	layouts := make(map[string]int)
	dated := 0
	present := 0

	for _, value := range values {
		if IsMissing(value) {
			continue
		}

		present++

		if layout, ok := DateLayout(value); ok {
			layouts[layout]++
			dated++
		}
	}

	if present == 0 || len(layouts) < 2 {
		return nil
	}

	if float64(dated)/float64(present) < 0.6 {
		return nil
	}

	examples := make([]string, 0, len(layouts))
	for layout := range layouts {
		examples = append(examples, layout)
	}

	sort.Strings(examples)

	return newPattern(models.PatternFormatVariation, column, dated, len(values), 0.85, examples, FixDateFormat)
}

func detectNumericFormatVariation(column string, values []string) *models.DetectedPattern {
	plain, formatted := 0, 0
	examples := make([]string, 0, maxExamples)

	for _, value := range values {
		if IsMissing(value) {
			continue
		}

		if IsPlainNumeric(value) {
			plain++

			continue
		}

		if _, ok := ParseNumeric(value); ok {
			formatted++

			if len(examples) < maxExamples {
				examples = append(examples, value)
			}
		}
	}

	if formatted == 0 || plain == 0 {
		return nil
	}

	return newPattern(models.PatternFormatVariation, column, formatted, len(values), 0.85, examples, FixNumericFormat)
}

func detectOutliers(column string, values []string) *models.DetectedPattern {
	numbers := make([]float64, 0, len(values))

	for _, value := range values {
		if IsMissing(value) {
			continue
		}

		if parsed, ok := ParseNumeric(value); ok {
			numbers = append(numbers, parsed)
		}
	}

	// Too small a sample to call anything an outlier.
	if len(numbers) < 8 {
		return nil
	}

	mean := 0.0
	for _, n := range numbers {
		mean += n
	}

	mean /= float64(len(numbers))

	variance := 0.0
	for _, n := range numbers {
		variance += (n - mean) * (n - mean)
	}

	stddev := math.Sqrt(variance / float64(len(numbers)))
	if stddev == 0 {
		return nil
	}

	outliers := 0
	examples := make([]string, 0, maxExamples)

	for _, n := range numbers {
		if math.Abs(n-mean)/stddev > 3 {
			outliers++

			if len(examples) < maxExamples {
				examples = append(examples, fmt.Sprintf("%g", n))
			}
		}
	}

	if outliers == 0 {
		return nil
	}

	return newPattern(models.PatternOutlier, column, outliers, len(values), 0.8, examples,
		fmt.Sprintf("review outlier handling for %q", column))
}

func detectCategoryVariation(column string, values []string) *models.DetectedPattern {
	variants := make(map[string]map[string]int)
	present := 0

	for _, value := range values {
		if IsMissing(value) {
			continue
		}

		present++

		key := strings.ToLower(strings.Join(strings.Fields(value), " "))
		if variants[key] == nil {
			variants[key] = make(map[string]int)
		}

		variants[key][value]++
	}

	// High-cardinality columns are not categorical.
	if present == 0 || len(variants) > 20 {
		return nil
	}

	conflicting := 0
	examples := make([]string, 0, maxExamples)

	for _, forms := range variants {
		if len(forms) < 2 {
			continue
		}

		// The dominant spelling is not itself a defect; every other form is.
		dominant := 0
		group := 0

		for _, count := range forms {
			group += count

			if count > dominant {
				dominant = count
			}
		}

		conflicting += group - dominant

		for form := range forms {
			if len(examples) < maxExamples {
				examples = append(examples, form)
			}
		}
	}

	if conflicting == 0 {
		return nil
	}

	sort.Strings(examples)

	return newPattern(models.PatternCategoryVariation, column, conflicting, len(values), 0.75, examples,
		fmt.Sprintf("map category spellings in %q to canonical values", column))
}

func detectEncodingIssues(column string, values []string) *models.DetectedPattern {
	broken := 0
	examples := make([]string, 0, maxExamples)

	for _, value := range values {
		if HasEncodingIssue(value) {
			broken++

			if len(examples) < maxExamples {
				examples = append(examples, value)
			}
		}
	}

	if broken == 0 {
		return nil
	}

	return newPattern(models.PatternEncodingIssue, column, broken, len(values), 0.95, examples,
		fmt.Sprintf("normalize text encoding in %q", column))
}

func detectWhitespaceIssues(column string, values []string) *models.DetectedPattern {
	dirty := 0
	examples := make([]string, 0, maxExamples)

	for _, value := range values {
		if HasWhitespaceIssue(value) {
			dirty++

			if len(examples) < maxExamples {
				examples = append(examples, value)
			}
		}
	}

	if dirty == 0 {
		return nil
	}

	return newPattern(models.PatternWhitespaceIssue, column, dirty, len(values), 0.98, examples,
		fmt.Sprintf("trim and collapse whitespace in %q", column))
}

func detectBusinessRuleViolations(column string, values []string) *models.DetectedPattern {
	lowered := strings.ToLower(column)
	hinted := false

	for _, hint := range nonNegativeHints {
		if strings.Contains(lowered, hint) {
			hinted = true

			break
		}
	}

	if !hinted {
		return nil
	}

	violations := 0
	examples := make([]string, 0, maxExamples)

	for _, value := range values {
		if IsMissing(value) {
			continue
		}

		if parsed, ok := ParseNumeric(value); ok && parsed < 0 {
			violations++

			if len(examples) < maxExamples {
				examples = append(examples, value)
			}
		}
	}

	if violations == 0 {
		return nil
	}

	return newPattern(models.PatternBusinessRuleViolation, column, violations, len(values), 0.85, examples,
		fmt.Sprintf("decide how to treat negative values in %q", column))
}
