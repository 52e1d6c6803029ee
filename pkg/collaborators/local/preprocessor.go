package local

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/dukex/modelflow/pkg/dataset"
	"github.com/dukex/modelflow/pkg/discovery"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/patterns"
)

// Preprocessor applies discovered rules to a CSV dataset and writes the
// cleaned copy next to the original.
type Preprocessor struct {
	logger *slog.Logger
}

// NewPreprocessor builds a rule-applying preprocessor.
func NewPreprocessor(logger *slog.Logger) *Preprocessor {
	if logger == nil {
		logger = slog.Default()
	}

	return &Preprocessor{logger: logger}
}

func (p *Preprocessor) Preprocess(ctx context.Context, datasetPath string, rules []*models.PreprocessingRule) (*models.PreprocessingResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := dataset.Load(datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", datasetPath, err)
	}

	result := &models.PreprocessingResult{
		RowsBefore: table.RowCount(),
		OutputPath: cleanedPath(datasetPath),
	}

	for _, rule := range ordered(rules) {
		if !eligible(rule) {
			continue
		}

		var step string

		if applier, ok := discovery.ApplierFor(rule.Category); ok {
			step = p.applyCellwise(table, rule, applier)
		} else if rule.Category == models.RuleMissingValueStrategy {
			step = p.dropMissingRows(table, rule)
		} else {
			p.logger.Warn("no executor for rule category, skipping",
				"rule_id", rule.ID, "category", rule.Category)

			continue
		}

		result.AppliedRules = append(result.AppliedRules, rule.ID)
		result.Steps = append(result.Steps, step)
	}

	result.RowsAfter = table.RowCount()

	if err := table.Save(result.OutputPath); err != nil {
		return nil, fmt.Errorf("failed to write cleaned dataset: %w", err)
	}

	p.logger.Info("preprocessing complete",
		"path", datasetPath, "output", result.OutputPath,
		"rules", len(result.AppliedRules), "rows_before", result.RowsBefore, "rows_after", result.RowsAfter)

	return result, nil
}

// eligible rules are active and, for HITL categories, explicitly approved.
func eligible(rule *models.PreprocessingRule) bool {
	if rule == nil || !rule.Active {
		return false
	}

	if rule.RequiresHITL && !rule.Approved {
		return false
	}

	return true
}

// ordered sorts a copy by priority, highest first, for a deterministic
// application order.
func ordered(rules []*models.PreprocessingRule) []*models.PreprocessingRule {
	sorted := append([]*models.PreprocessingRule(nil), rules...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})

	return sorted
}

// applyCellwise rewrites every transformable cell of the rule's columns,
// leaving cells the applier rejects untouched.
func (p *Preprocessor) applyCellwise(table *dataset.Table, rule *models.PreprocessingRule, applier discovery.Applier) string {
	changed := 0

	for _, column := range rule.Columns {
		index := table.ColumnIndex(column)
		if index < 0 {
			continue
		}

		for _, row := range table.Rows {
			value, err := applier(rule, row[index])
			if err != nil || value == row[index] {
				continue
			}

			row[index] = value
			changed++
		}
	}

	return fmt.Sprintf("%s: rewrote %d cells in %s", rule.Category, changed, strings.Join(rule.Columns, ", "))
}

// dropMissingRows removes the rows where the rule's columns are missing.
func (p *Preprocessor) dropMissingRows(table *dataset.Table, rule *models.PreprocessingRule) string {
	indices := make([]int, 0, len(rule.Columns))

	for _, column := range rule.Columns {
		if index := table.ColumnIndex(column); index >= 0 {
			indices = append(indices, index)
		}
	}

	kept := table.Rows[:0]
	dropped := 0

	for _, row := range table.Rows {
		missing := false

		for _, index := range indices {
			if patterns.IsMissing(row[index]) {
				missing = true

				break
			}
		}

		if missing {
			dropped++

			continue
		}

		kept = append(kept, row)
	}

	table.Rows = kept

	return fmt.Sprintf("%s: dropped %d rows missing %s", rule.Category, dropped, strings.Join(rule.Columns, ", "))
}

func cleanedPath(datasetPath string) string {
	if strings.HasSuffix(datasetPath, ".csv") {
		return strings.TrimSuffix(datasetPath, ".csv") + ".cleaned.csv"
	}

	return datasetPath + ".cleaned"
}
