// Package discovery implements the progressive sampling rule-discovery engine.
package discovery

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/patterns"
)

// Applier transforms one raw value under a rule. Appliers exist only for the
// auto-resolvable categories; HITL categories are never applied automatically.
type Applier func(rule *models.PreprocessingRule, value string) (string, error)

// canonicalDateLayout is the layout every date value is rewritten to.
const canonicalDateLayout = "2006-01-02"

var mojibakeReplacements = strings.NewReplacer(
	"Ã©", "é",
	"Ã¨", "è",
	"Ã¼", "ü",
	"Ã¶", "ö",
	"â€™", "'",
	"â€œ", `"`,
	"â€", `"`,
	"Â ", " ",
)

var appliers = map[models.RuleCategory]Applier{
	models.RuleWhitespaceNormalization:      applyWhitespace,
	models.RuleEncodingNormalization:        applyEncoding,
	models.RuleDateFormatStandardization:    applyDateFormat,
	models.RuleNumericFormatStandardization: applyNumericFormat,
}

// ApplierFor returns the applier for the category, if one exists.
func ApplierFor(category models.RuleCategory) (Applier, bool) {
	applier, ok := appliers[category]

	return applier, ok
}

func applyWhitespace(_ *models.PreprocessingRule, value string) (string, error) {
	return strings.Join(strings.Fields(value), " "), nil
}

func applyEncoding(_ *models.PreprocessingRule, value string) (string, error) {
	if strings.ContainsRune(value, '�') {
		return "", fmt.Errorf("value %q contains an unrecoverable replacement character", value)
	}

	return mojibakeReplacements.Replace(value), nil
}

func applyDateFormat(_ *models.PreprocessingRule, value string) (string, error) {
	if patterns.IsMissing(value) {
		return value, nil
	}

	layout, ok := patterns.DateLayout(value)
	if !ok {
		return "", fmt.Errorf("value %q matches no known date layout", value)
	}

	parsed, err := time.Parse(layout, strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("value %q failed to parse as %s: %w", value, layout, err)
	}

	return parsed.Format(canonicalDateLayout), nil
}

func applyNumericFormat(_ *models.PreprocessingRule, value string) (string, error) {
	if patterns.IsMissing(value) {
		return value, nil
	}

	parsed, ok := patterns.ParseNumeric(value)
	if !ok {
		return "", fmt.Errorf("value %q is not numeric", value)
	}

	return strconv.FormatFloat(parsed, 'f', -1, 64), nil
}
