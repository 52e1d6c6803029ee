// Package hitl decides when a workflow checkpoint needs a human and renders
// the request the human answers.
package hitl

import (
	"log/slog"

	"github.com/dukex/modelflow/pkg/confidence"
	"github.com/dukex/modelflow/pkg/models"
)

// Option is one answer a reviewer can pick at a checkpoint.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Definition fixes the behavior of one review state.
type Definition struct {
	State          models.State
	Title          string
	AlwaysExplicit bool
	Options        []Option
}

var standardOptions = []Option{
	{ID: "approve", Label: "Approve and continue"},
	{ID: "modify", Label: "Modify before continuing"},
	{ID: "skip", Label: "Skip this stage's changes"},
	{ID: "cancel", Label: "Cancel the session"},
}

var trainingOptions = []Option{
	{ID: "approve", Label: "Approve and continue"},
	{ID: "modify", Label: "Modify training settings"},
	{ID: "retry", Label: "Retry training"},
	{ID: "cancel", Label: "Cancel the session"},
}

var deploymentOptions = []Option{
	{ID: "deploy", Label: "Deploy the model"},
	{ID: "export", Label: "Export the model without deploying"},
	{ID: "save", Label: "Save and stop here"},
	{ID: "cancel", Label: "Cancel the session"},
}

// definitions covers every review state. Training and deployment reviews are
// always explicit: irreversible or high-stakes transitions never auto-approve.
var definitions = map[models.State]Definition{
	models.StateAnalysisReview: {
		State:   models.StateAnalysisReview,
		Title:   "Dataset analysis review",
		Options: standardOptions,
	},
	models.StateRecommendationReview: {
		State:   models.StateRecommendationReview,
		Title:   "Model recommendation review",
		Options: standardOptions,
	},
	models.StatePreprocessingReview: {
		State:   models.StatePreprocessingReview,
		Title:   "Preprocessing review",
		Options: standardOptions,
	},
	models.StateTrainingReview: {
		State:          models.StateTrainingReview,
		Title:          "Training review",
		AlwaysExplicit: true,
		Options:        trainingOptions,
	},
	models.StateDeploymentReview: {
		State:          models.StateDeploymentReview,
		Title:          "Deployment review",
		AlwaysExplicit: true,
		Options:        deploymentOptions,
	},
}

// DefinitionFor returns the checkpoint definition bound to a review state.
func DefinitionFor(state models.State) (Definition, bool) {
	definition, ok := definitions[state]

	return definition, ok
}

// Config centralizes the auto-approval thresholds so tests and deployments
// can inject different values without touching the state machine.
type Config struct {
	DefaultThreshold float64
	Thresholds       map[models.State]float64
}

// DefaultConfig auto-approves at the Medium confidence bound.
func DefaultConfig() Config {
	return Config{DefaultThreshold: confidence.MediumThreshold}
}

// Policy decides whether a review state needs an explicit human decision.
type Policy struct {
	config Config
	logger *slog.Logger
}

// NewPolicy builds a policy over the given threshold configuration.
func NewPolicy(config Config, logger *slog.Logger) *Policy {
	if logger == nil {
		logger = slog.Default()
	}

	return &Policy{config: config, logger: logger}
}

// ShouldTriggerHITL reports whether the checkpoint at state requires a human
// decision. The global skip flag wins over everything; outside review states
// there is nothing to ask; always-explicit checkpoints never auto-approve;
// everything else auto-approves at or above the effective threshold.
func (p *Policy) ShouldTriggerHITL(state models.State, conf float64, opts models.SessionOptions) bool {
	if opts.SkipHITL {
		return false
	}

	if !state.IsReview() {
		return false
	}

	definition, ok := definitions[state]
	if !ok {
		return true
	}

	if definition.AlwaysExplicit {
		return true
	}

	threshold := p.threshold(state, opts)
	trigger := conf < threshold

	p.logger.Debug("checkpoint policy evaluated",
		"state", state, "confidence", conf, "threshold", threshold, "trigger", trigger)

	return trigger
}

// threshold is the effective auto-approval bar: the lower of the checkpoint's
// configured threshold and the session's own, so callers can only loosen the
// bar, never push a checkpoint above its configuration.
func (p *Policy) threshold(state models.State, opts models.SessionOptions) float64 {
	threshold, ok := p.config.Thresholds[state]
	if !ok {
		threshold = p.config.DefaultThreshold
	}

	if opts.AutoApproveThreshold > 0 && opts.AutoApproveThreshold < threshold {
		threshold = opts.AutoApproveThreshold
	}

	return threshold
}
