package hitl

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/modelflow/pkg/models"
)

// Request is one rendered checkpoint question, ready to show a human.
type Request struct {
	ID          string       `json:"id"`
	State       models.State `json:"state"`
	Title       string       `json:"title"`
	Summary     string       `json:"summary"`
	Options     []Option     `json:"options"`
	RequestedAt time.Time    `json:"requested_at"`
}

// Handler answers checkpoint requests. Implementations may block until a
// human responds; the orchestrator suspends only the owning session while
// waiting.
type Handler interface {
	Handle(ctx context.Context, request Request) (models.HitlDecision, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, request Request) (models.HitlDecision, error)

func (f HandlerFunc) Handle(ctx context.Context, request Request) (models.HitlDecision, error) {
	return f(ctx, request)
}

// BuildRequest renders the stage-specific summary and option set for the
// checkpoint at state. Unknown states yield a generic request so a session is
// never stuck for lack of wording.
func (p *Policy) BuildRequest(state models.State, sessionContext *models.SessionContext) Request {
	definition, ok := definitions[state]
	if !ok {
		definition = Definition{State: state, Title: string(state), Options: standardOptions}
	}

	return Request{
		ID:          "hitl-" + uuid.New().String()[:8],
		State:       state,
		Title:       definition.Title,
		Summary:     summarize(state, sessionContext),
		Options:     append([]Option(nil), definition.Options...),
		RequestedAt: time.Now().UTC(),
	}
}

func summarize(state models.State, sessionContext *models.SessionContext) string {
	switch state {
	case models.StateAnalysisReview:
		return summarizeAnalysis(sessionContext.Analysis)
	case models.StateRecommendationReview:
		return summarizeRecommendation(sessionContext.Recommendation)
	case models.StatePreprocessingReview:
		return summarizePreprocessing(sessionContext.Preprocessing)
	case models.StateTrainingReview:
		return summarizeTraining(sessionContext.Training)
	case models.StateDeploymentReview:
		return summarizeDeployment(sessionContext)
	default:
		return fmt.Sprintf("Review the %s stage before continuing.", state)
	}
}

func summarizeAnalysis(analysis *models.AnalysisResult) string {
	if analysis == nil {
		return "No analysis result is available yet."
	}

	summary := fmt.Sprintf("Analyzed %d rows across %d columns.", analysis.RowCount, analysis.ColumnCount)

	if analysis.RecommendedTarget != "" {
		summary += fmt.Sprintf(" Recommended target column: %q.", analysis.RecommendedTarget)
	}

	if len(analysis.QualityIssues) > 0 {
		summary += fmt.Sprintf(" Found %d quality issues: %s.",
			len(analysis.QualityIssues), strings.Join(analysis.QualityIssues, "; "))
	}

	if len(analysis.Insights) > 0 {
		summary += " Insights from prior sessions: " + strings.Join(analysis.Insights, "; ") + "."
	}

	return summary
}

func summarizeRecommendation(recommendation *models.RecommendationResult) string {
	if recommendation == nil {
		return "No recommendation is available yet."
	}

	return fmt.Sprintf("Recommended a %s task optimizing %s with trainers: %s.",
		recommendation.TaskType, recommendation.PrimaryMetric, strings.Join(recommendation.Trainers, ", "))
}

func summarizePreprocessing(preprocessing *models.PreprocessingResult) string {
	if preprocessing == nil {
		return "No preprocessing result is available yet."
	}

	summary := fmt.Sprintf("Preprocessing kept %d of %d rows.", preprocessing.RowsAfter, preprocessing.RowsBefore)

	if len(preprocessing.Steps) > 0 {
		summary += " Steps: " + strings.Join(preprocessing.Steps, "; ") + "."
	}

	return summary
}

func summarizeTraining(training *models.TrainingResult) string {
	if training == nil {
		return "No training result is available yet."
	}

	return fmt.Sprintf("Best trainer %s scored %s=%.4f.",
		training.BestTrainer, training.MetricName, training.MetricValue)
}

func summarizeDeployment(sessionContext *models.SessionContext) string {
	training := sessionContext.Training
	if training == nil {
		return "No trained model is available to deploy."
	}

	summary := fmt.Sprintf("Ready to deploy model from trainer %s (%s=%.4f).",
		training.BestTrainer, training.MetricName, training.MetricValue)

	if sessionContext.Evaluation != nil && sessionContext.Evaluation.Summary != "" {
		summary += " Evaluation: " + sessionContext.Evaluation.Summary
	}

	return summary
}
