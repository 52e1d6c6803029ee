// Package models defines the core domain models for AutoML session orchestration.
package models

import "time"

// State identifies one stage of the session workflow.
type State string

const (
	StateNotStarted           State = "not_started"
	StateInitializing         State = "initializing"
	StateAnalysis             State = "analysis"
	StateAnalysisReview       State = "analysis_review"
	StateRecommendation       State = "recommendation"
	StateRecommendationReview State = "recommendation_review"
	StatePreprocessing        State = "preprocessing"
	StatePreprocessingReview  State = "preprocessing_review"
	StateTraining             State = "training"
	StateTrainingReview       State = "training_review"
	StateEvaluation           State = "evaluation"
	StateDeploymentReview     State = "deployment_review"
	StateDeployment           State = "deployment"
	StateCompleted            State = "completed"
	StateCancelled            State = "cancelled"
	StateFailed               State = "failed"
	StatePaused               State = "paused"
)

// transitions is the single source of truth for stage ordering. Ordering is a
// design artifact of this table, not of any numeric encoding.
var transitions = map[State]State{
	StateNotStarted:           StateInitializing,
	StateInitializing:         StateAnalysis,
	StateAnalysis:             StateAnalysisReview,
	StateAnalysisReview:       StateRecommendation,
	StateRecommendation:       StateRecommendationReview,
	StateRecommendationReview: StatePreprocessing,
	StatePreprocessing:        StatePreprocessingReview,
	StatePreprocessingReview:  StateTraining,
	StateTraining:             StateTrainingReview,
	StateTrainingReview:       StateEvaluation,
	StateEvaluation:           StateDeploymentReview,
	StateDeploymentReview:     StateDeployment,
	StateDeployment:           StateCompleted,
}

var reviewStates = map[State]bool{
	StateAnalysisReview:       true,
	StateRecommendationReview: true,
	StatePreprocessingReview:  true,
	StateTrainingReview:       true,
	StateDeploymentReview:     true,
}

var terminalStates = map[State]bool{
	StateCompleted: true,
	StateCancelled: true,
	StateFailed:    true,
}

var reviewedStages = map[State]State{
	StateAnalysisReview:       StateAnalysis,
	StateRecommendationReview: StateRecommendation,
	StatePreprocessingReview:  StatePreprocessing,
	StateTrainingReview:       StateTraining,
	StateDeploymentReview:     StateEvaluation,
}

// Next returns the state that follows s. Terminal states return themselves.
func (s State) Next() State {
	if next, ok := transitions[s]; ok {
		return next
	}

	return s
}

// IsTerminal reports whether the session can make no further progress from s.
func (s State) IsTerminal() bool {
	return terminalStates[s]
}

// IsReview reports whether s is a human-approval checkpoint stage.
func (s State) IsReview() bool {
	return reviewStates[s]
}

// ReviewedStage returns the stage whose output the review checkpoint s
// inspects, so a retry decision knows where to go back to.
func (s State) ReviewedStage() (State, bool) {
	stage, ok := reviewedStages[s]

	return stage, ok
}

// IsValid reports whether s is one of the defined workflow states.
func (s State) IsValid() bool {
	if s == StatePaused || terminalStates[s] {
		return true
	}

	_, ok := transitions[s]

	return ok
}

// StateTransition records one move of the state machine.
type StateTransition struct {
	From       State     `json:"from"`
	To         State     `json:"to"`
	OccurredAt time.Time `json:"occurred_at"`
	Reason     string    `json:"reason,omitempty"`
}
