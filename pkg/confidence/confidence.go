// Package confidence turns observed rule behavior into calibrated scores.
// Every function is pure and order-independent: the same inputs always produce
// the same outputs, so stored scores can be recomputed and asserted exactly.
package confidence

import (
	"reflect"
	"sort"

	"github.com/dukex/modelflow/pkg/models"
)

// Component weights of the overall score.
const (
	ConsistencyWeight = 0.5
	CoverageWeight    = 0.3
	StabilityWeight   = 0.2
)

// Level thresholds over the overall score.
const (
	HighThreshold   = 0.98
	MediumThreshold = 0.90
)

// Overall combines the three components into a single clamped [0,1] score.
func Overall(consistency, coverage, stability float64) float64 {
	return clamp(ConsistencyWeight*consistency + CoverageWeight*coverage + StabilityWeight*stability)
}

// LevelFor buckets an overall score into a discrete confidence level.
func LevelFor(overall float64) models.ConfidenceLevel {
	switch {
	case overall >= HighThreshold:
		return models.ConfidenceHigh
	case overall >= MediumThreshold:
		return models.ConfidenceMedium
	default:
		return models.ConfidenceLow
	}
}

// Compute fills Overall from the component fields, leaving the exception
// counters untouched.
func Compute(score models.ConfidenceScore) models.ConfidenceScore {
	score.Consistency = clamp(score.Consistency)
	score.Coverage = clamp(score.Coverage)
	score.Stability = clamp(score.Stability)
	score.Overall = Overall(score.Consistency, score.Coverage, score.Stability)

	return score
}

// Stability compares a rule between two consecutive sampling stages. A rule
// whose signature changed contributes nothing; an unchanged signature scores
// 1.0 when every parameter is identical, otherwise the score is discounted
// linearly by the fraction of parameters that changed across the union of
// parameter keys of both stages.
func Stability(previous, current *models.PreprocessingRule) float64 {
	if previous == nil || current == nil {
		return 0
	}

	if previous.Signature() != current.Signature() {
		return 0
	}

	keys := parameterKeys(previous.Parameters, current.Parameters)
	if len(keys) == 0 {
		return 1.0
	}

	changed := 0

	for _, key := range keys {
		prev, prevOK := previous.Parameters[key]
		cur, curOK := current.Parameters[key]

		if prevOK != curOK || !reflect.DeepEqual(prev, cur) {
			changed++
		}
	}

	return clamp(1.0 - float64(changed)/float64(len(keys)))
}

// parameterKeys returns the sorted union of keys so the result never depends
// on map traversal order.
func parameterKeys(a, b map[string]any) []string {
	seen := make(map[string]bool, len(a)+len(b))

	for key := range a {
		seen[key] = true
	}

	for key := range b {
		seen[key] = true
	}

	keys := make([]string, 0, len(seen))
	for key := range seen {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	return keys
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}

	if v > 1 {
		return 1
	}

	return v
}
