package models

import "time"

// SessionOptions carries the caller-supplied knobs for one session.
type SessionOptions struct {
	TargetColumn         string        `json:"target_column,omitempty"`
	TaskType             string        `json:"task_type,omitempty"        validate:"omitempty,oneof=classification regression forecasting"`
	MaxTrainingTime      time.Duration `json:"max_training_time,omitempty"`
	AutoApproveThreshold float64       `json:"auto_approve_threshold"     validate:"gte=0,lte=1"`
	SkipHITL             bool          `json:"skip_hitl"`
}

// SessionContext is the working memory of one session. It is owned exclusively
// by its session and never shared; the state machine is fully determined by it,
// so a freshly loaded context resumes identically to an in-memory one.
type SessionContext struct {
	DatasetPath  string         `json:"dataset_path" validate:"required"`
	Options      SessionOptions `json:"options"`
	CurrentState State          `json:"current_state"`

	Analysis       *AnalysisResult       `json:"analysis,omitempty"`
	Recommendation *RecommendationResult `json:"recommendation,omitempty"`
	Preprocessing  *PreprocessingResult  `json:"preprocessing,omitempty"`
	Training       *TrainingResult       `json:"training,omitempty"`
	Evaluation     *EvaluationResult     `json:"evaluation,omitempty"`
	Deployment     *DeploymentResult     `json:"deployment,omitempty"`

	Decisions []HitlDecision    `json:"decisions,omitempty"`
	Errors    []SessionError    `json:"errors,omitempty"`
	Artifacts map[string]string `json:"artifacts,omitempty"`
}

// SessionError records a failure caught at a stage boundary.
type SessionError struct {
	State       State     `json:"state"`
	Message     string    `json:"message"`
	Detail      string    `json:"detail,omitempty"`
	Recoverable bool      `json:"recoverable"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// RecordError appends a stage failure to the context.
func (c *SessionContext) RecordError(state State, message, detail string, recoverable bool) {
	c.Errors = append(c.Errors, SessionError{
		State:       state,
		Message:     message,
		Detail:      detail,
		Recoverable: recoverable,
		OccurredAt:  time.Now().UTC(),
	})
}

// RecordDecision appends a checkpoint decision to the context.
func (c *SessionContext) RecordDecision(decision HitlDecision) {
	c.Decisions = append(c.Decisions, decision)
}

// MarkDecisionApplied flags the latest decision for state as acted on, so
// re-entering the checkpoint does not replay it.
func (c *SessionContext) MarkDecisionApplied(state State) {
	for i := len(c.Decisions) - 1; i >= 0; i-- {
		if c.Decisions[i].State == state {
			c.Decisions[i].Applied = true

			return
		}
	}
}

// DecisionFor returns the recorded decision for the given checkpoint state, if any.
func (c *SessionContext) DecisionFor(state State) (HitlDecision, bool) {
	for i := len(c.Decisions) - 1; i >= 0; i-- {
		if c.Decisions[i].State == state {
			return c.Decisions[i], true
		}
	}

	return HitlDecision{}, false
}
