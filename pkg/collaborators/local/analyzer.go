// Package local provides reference collaborators that run fully in-process,
// used by the CLI and the test suite.
package local

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/modelflow/pkg/dataset"
	"github.com/dukex/modelflow/pkg/models"
	"github.com/dukex/modelflow/pkg/patterns"
)

var targetNameHints = []string{"target", "label", "class", "outcome", "churn", "churned"}

// Analyzer profiles a CSV dataset column by column.
type Analyzer struct {
	logger *slog.Logger
}

// NewAnalyzer builds a CSV analyzer.
func NewAnalyzer(logger *slog.Logger) *Analyzer {
	if logger == nil {
		logger = slog.Default()
	}

	return &Analyzer{logger: logger}
}

func (a *Analyzer) Analyze(ctx context.Context, datasetPath string, opts models.SessionOptions) (*models.AnalysisResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	table, err := dataset.Load(datasetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset %s: %w", datasetPath, err)
	}

	result := &models.AnalysisResult{
		RowCount:    table.RowCount(),
		ColumnCount: len(table.Headers),
		Columns:     make([]models.ColumnInfo, 0, len(table.Headers)),
	}

	issueColumns := 0

	for i, header := range table.Headers {
		values := table.Column(i)
		info := profileColumn(header, values)
		result.Columns = append(result.Columns, info)

		detected := patterns.DetectColumn(header, values)
		if len(detected) > 0 {
			issueColumns++
		}

		for _, pattern := range detected {
			result.QualityIssues = append(result.QualityIssues,
				fmt.Sprintf("%s in %q affects %.1f%% of rows", pattern.Type, header, pattern.AffectedPercentage*100))
		}
	}

	result.RecommendedTarget = recommendTarget(table, opts)

	if result.ColumnCount > 0 {
		result.Readiness = 1.0 - float64(issueColumns)/float64(result.ColumnCount)
	}

	a.logger.Info("dataset analyzed",
		"path", datasetPath, "rows", result.RowCount, "columns", result.ColumnCount,
		"issues", len(result.QualityIssues))

	return result, nil
}

func profileColumn(name string, values []string) models.ColumnInfo {
	missing := 0
	numeric := 0
	dated := 0
	distinct := make(map[string]bool)

	for _, value := range values {
		if patterns.IsMissing(value) {
			missing++

			continue
		}

		distinct[strings.ToLower(strings.TrimSpace(value))] = true

		if _, ok := patterns.ParseNumeric(value); ok {
			numeric++
		} else if _, ok := patterns.DateLayout(value); ok {
			dated++
		}
	}

	present := len(values) - missing
	inferred := "text"

	switch {
	case present == 0:
		inferred = "empty"
	case float64(numeric)/float64(present) >= 0.9:
		inferred = "numeric"
	case float64(dated)/float64(present) >= 0.9:
		inferred = "date"
	case len(distinct) <= 20:
		inferred = "categorical"
	}

	info := models.ColumnInfo{Name: name, InferredType: inferred, Cardinality: len(distinct)}
	if len(values) > 0 {
		info.MissingRatio = float64(missing) / float64(len(values))
	}

	return info
}

func recommendTarget(table *dataset.Table, opts models.SessionOptions) string {
	if opts.TargetColumn != "" {
		if table.ColumnIndex(opts.TargetColumn) >= 0 {
			return opts.TargetColumn
		}

		return ""
	}

	for _, hint := range targetNameHints {
		for _, header := range table.Headers {
			if strings.EqualFold(header, hint) {
				return header
			}
		}
	}

	if len(table.Headers) > 0 {
		return table.Headers[len(table.Headers)-1]
	}

	return ""
}
