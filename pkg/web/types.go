// Package web provides HTTP request and response types for the session API.
package web

import (
	"time"

	"github.com/dukex/modelflow/pkg/models"
)

// StartSessionRequest represents the request body for starting a new session.
type StartSessionRequest struct {
	DatasetPath          string  `json:"dataset_path"                     validate:"required"`
	TargetColumn         string  `json:"target_column,omitempty"`
	TaskType             string  `json:"task_type,omitempty"              validate:"omitempty,oneof=classification regression forecasting"`
	MaxTrainingTime      string  `json:"max_training_time,omitempty"`
	AutoApproveThreshold float64 `json:"auto_approve_threshold,omitempty" validate:"gte=0,lte=1"`
	SkipHITL             bool    `json:"skip_hitl,omitempty"`
}

// Options converts the request body into session options. The training time
// has already been validated as a duration string.
func (r StartSessionRequest) Options() (models.SessionOptions, error) {
	opts := models.SessionOptions{
		TargetColumn:         r.TargetColumn,
		TaskType:             r.TaskType,
		AutoApproveThreshold: r.AutoApproveThreshold,
		SkipHITL:             r.SkipHITL,
	}

	if r.MaxTrainingTime != "" {
		duration, err := time.ParseDuration(r.MaxTrainingTime)
		if err != nil {
			return opts, err
		}

		opts.MaxTrainingTime = duration
	}

	return opts, nil
}

// AnswerCheckpointRequest represents the request body for answering the
// checkpoint a paused session is waiting at.
type AnswerCheckpointRequest struct {
	OptionID string `json:"option_id"         validate:"required"`
	Comment  string `json:"comment,omitempty"`
	// Resume continues the session in the background once the decision is
	// recorded.
	Resume bool `json:"resume,omitempty"`
}

// SessionResponse is the detail projection of a session, with the pending
// checkpoint rendered when the session is paused.
type SessionResponse struct {
	*models.Session

	PendingCheckpoint *PendingCheckpoint `json:"pending_checkpoint,omitempty"`
}

// PendingCheckpoint describes the decision a paused session is waiting for.
type PendingCheckpoint struct {
	State   models.State     `json:"state"`
	Title   string           `json:"title"`
	Summary string           `json:"summary"`
	Options []OptionResponse `json:"options"`
}

// OptionResponse is one answer a reviewer can pick at a checkpoint.
type OptionResponse struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}
