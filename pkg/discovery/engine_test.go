package discovery

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukex/modelflow/pkg/dataset"
	"github.com/dukex/modelflow/pkg/models"
)

func newTable(path string, headers []string, rows [][]string) *dataset.Table {
	return &dataset.Table{Path: path, Headers: headers, Rows: rows}
}

func singleColumnTable(path, header string, values []string) *dataset.Table {
	rows := make([][]string, len(values))
	for i, value := range values {
		rows[i] = []string{value}
	}

	return newTable(path, []string{header}, rows)
}

func TestDiscover_CleanDatasetRunsEveryStageAndFindsNothing(t *testing.T) {
	values := make([]string, 50)
	for i := range values {
		values[i] = strconv.Itoa(i + 1)
	}

	engine := NewEngine(nil)

	result, err := engine.Discover(t.Context(), singleColumnTable("mem://clean.csv", "id", values), nil)
	require.NoError(t, err)

	assert.Equal(t, len(StageFractions), result.StagesRun)
	assert.False(t, result.ConvergedEarly)
	assert.Empty(t, result.Rules)
	assert.Empty(t, result.AutoFixable)
	assert.Empty(t, result.NeedsDecision)
	assert.Empty(t, result.PendingDecisions)
	assert.Equal(t, 50, result.SampledRows)
	assert.Equal(t, 1.0, result.OverallConfidence())
}

func TestDiscover_StableRuleSetConvergesEarly(t *testing.T) {
	values := make([]string, 2000)
	for i := range values {
		values[i] = "new  york"
	}

	engine := NewEngine(nil)

	result, err := engine.Discover(t.Context(), singleColumnTable("mem://ws.csv", "city", values), nil)
	require.NoError(t, err)

	assert.True(t, result.ConvergedEarly)
	assert.Equal(t, 2, result.StagesRun)

	require.Len(t, result.AutoFixable, 1)
	rule := result.AutoFixable[0]
	assert.Equal(t, models.RuleWhitespaceNormalization, rule.Category)
	assert.True(t, rule.Active)
	assert.False(t, rule.RequiresHITL)
	assert.Equal(t, 1.0, rule.Confidence.Stability)
	assert.Equal(t, 1.0, rule.Confidence.Overall)
}

func TestDiscover_TinyDatasetSamplesEveryRowBeforeConverging(t *testing.T) {
	values := make([]string, 30)
	for i := range values {
		values[i] = "new  york"
	}

	engine := NewEngine(nil)

	result, err := engine.Discover(t.Context(), singleColumnTable("mem://tiny.csv", "city", values), nil)
	require.NoError(t, err)

	// The early fractions all clamp to one row; identical one-row samples
	// must not count as convergence.
	assert.False(t, result.ConvergedEarly)
	assert.Equal(t, len(StageFractions), result.StagesRun)
	assert.Equal(t, 30, result.SampledRows)

	require.Len(t, result.AutoFixable, 1)
	assert.Equal(t, 30, result.AutoFixable[0].Confidence.AttemptCount)
}

func TestDiscover_ExceptionRateDemotesRule(t *testing.T) {
	values := make([]string, 40)
	for i := range values {
		values[i] = "S�o Paulo"
	}

	engine := NewEngine(nil)

	result, err := engine.Discover(t.Context(), singleColumnTable("mem://enc.csv", "city", values), nil)
	require.NoError(t, err)

	assert.Empty(t, result.Rules)
	assert.Empty(t, result.AutoFixable)

	require.Len(t, result.Exceptions, 1)
	exception := result.Exceptions[0]
	assert.Equal(t, models.RuleEncodingNormalization, exception.Category)
	assert.Equal(t, 1.0, exception.Rate)
	assert.Equal(t, 1, exception.Stage)
}

func TestDiscover_ReusesPriorDecisionBySignature(t *testing.T) {
	values := make([]string, 30)
	for i := range values {
		if i%3 == 0 {
			values[i] = "NA"
		} else {
			values[i] = "widget"
		}
	}

	table := singleColumnTable("mem://missing.csv", "product", values)
	engine := NewEngine(nil)

	first, err := engine.Discover(t.Context(), table, nil)
	require.NoError(t, err)
	require.Len(t, first.PendingDecisions, 1)

	pending := first.PendingDecisions[0]
	assert.Equal(t, models.RuleMissingValueStrategy, pending.Category)
	assert.True(t, pending.RequiresHITL)
	assert.False(t, pending.Approved)

	lookup := func(signature string) (models.HitlDecision, bool) {
		if signature == pending.Signature() {
			return models.HitlDecision{OptionID: "approve"}, true
		}

		return models.HitlDecision{}, false
	}

	second, err := engine.Discover(t.Context(), table, lookup)
	require.NoError(t, err)

	assert.Empty(t, second.PendingDecisions)
	require.Len(t, second.NeedsDecision, 1)
	assert.True(t, second.NeedsDecision[0].Approved)
}

func TestDiscover_SkipDecisionDeactivatesRule(t *testing.T) {
	values := make([]string, 30)
	for i := range values {
		if i%3 == 0 {
			values[i] = "NA"
		} else {
			values[i] = "widget"
		}
	}

	table := singleColumnTable("mem://missing.csv", "product", values)
	engine := NewEngine(nil)

	first, err := engine.Discover(t.Context(), table, nil)
	require.NoError(t, err)
	require.Len(t, first.PendingDecisions, 1)

	signature := first.PendingDecisions[0].Signature()
	lookup := func(sig string) (models.HitlDecision, bool) {
		if sig == signature {
			return models.HitlDecision{OptionID: "skip"}, true
		}

		return models.HitlDecision{}, false
	}

	second, err := engine.Discover(t.Context(), table, lookup)
	require.NoError(t, err)

	assert.Empty(t, second.Rules)
	assert.Empty(t, second.NeedsDecision)
	assert.Empty(t, second.PendingDecisions)
}

func TestDiscover_FormatVariationsMapToDistinctCategories(t *testing.T) {
	rows := [][]string{
		{"2024-01-05", "1000"},
		{"2024-02-11", "1500"},
		{"2024-03-09", "1200"},
		{"2024-04-21", "1100"},
		{"2024-05-02", "1300"},
		{"2024-06-17", "1400"},
		{"2024-07-23", "1000"},
		{"03/04/2024", "1,250"},
		{"15/05/2024", "1,100"},
		{"21/06/2024", "1,900"},
		{"09/07/2024", "1,350"},
		{"18/08/2024", "1,600"},
	}

	engine := NewEngine(nil)

	result, err := engine.Discover(t.Context(), newTable("mem://formats.csv", []string{"signup", "amount"}, rows), nil)
	require.NoError(t, err)

	categories := make(map[models.RuleCategory]*models.PreprocessingRule)
	for _, rule := range result.AutoFixable {
		categories[rule.Category] = rule
	}

	dateRule := categories[models.RuleDateFormatStandardization]
	require.NotNil(t, dateRule)
	assert.Equal(t, []string{"signup"}, dateRule.Columns)
	assert.Equal(t, "2006-01-02", dateRule.Parameters["target_layout"])

	numericRule := categories[models.RuleNumericFormatStandardization]
	require.NotNil(t, numericRule)
	assert.Equal(t, []string{"amount"}, numericRule.Columns)
}

func TestDiscover_EmptyDatasetFails(t *testing.T) {
	engine := NewEngine(nil)

	_, err := engine.Discover(t.Context(), newTable("mem://empty.csv", []string{"a"}, nil), nil)
	require.ErrorIs(t, err, dataset.ErrEmptyDataset)
}

func TestValidateParameters(t *testing.T) {
	err := ValidateParameters(models.RuleWhitespaceNormalization, map[string]any{"mode": "trim_and_collapse"})
	assert.NoError(t, err)

	err = ValidateParameters(models.RuleWhitespaceNormalization, map[string]any{})
	assert.Error(t, err)

	err = ValidateParameters(models.RuleOutlierHandling, map[string]any{"method": "zscore", "threshold": "high"})
	assert.Error(t, err)
}

func TestApplierFor(t *testing.T) {
	applier, ok := ApplierFor(models.RuleDateFormatStandardization)
	require.True(t, ok)

	value, err := applier(nil, "03/04/2024")
	require.NoError(t, err)
	assert.Equal(t, "2024-04-03", value)

	_, ok = ApplierFor(models.RuleMissingValueStrategy)
	assert.False(t, ok)
}

func TestAppliers(t *testing.T) {
	trim, _ := ApplierFor(models.RuleWhitespaceNormalization)
	value, err := trim(nil, "  new   york ")
	require.NoError(t, err)
	assert.Equal(t, "new york", value)

	encode, _ := ApplierFor(models.RuleEncodingNormalization)
	value, err = encode(nil, "MÃ¼nchen")
	require.NoError(t, err)
	assert.Equal(t, "München", value)

	_, err = encode(nil, "S�o Paulo")
	assert.Error(t, err)

	numeric, _ := ApplierFor(models.RuleNumericFormatStandardization)
	value, err = numeric(nil, "$1,250.50")
	require.NoError(t, err)
	assert.Equal(t, "1250.5", value)

	_, err = numeric(nil, "not a number")
	assert.Error(t, err)
}
