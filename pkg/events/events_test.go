package events

import (
	"encoding/json"
	"testing"

	"github.com/dukex/modelflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBaseEvent(t *testing.T) {
	base := NewBaseEvent(SessionStartedEvent, "sess-abc12345")

	assert.NotEmpty(t, base.ID)
	assert.Equal(t, SessionStartedEvent, base.Type)
	assert.Equal(t, "sess-abc12345", base.SessionID)
	assert.False(t, base.Timestamp.IsZero())
}

func TestSessionFailed_JSONSerialization(t *testing.T) {
	original := SessionFailed{
		BaseEvent: NewBaseEvent(SessionFailedEvent, "sess-abc12345"),
		State:     models.StateTraining,
		Error:     "training runner unavailable",
		CanResume: true,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"session_id":"sess-abc12345"`)
	assert.Contains(t, string(jsonData), `"can_resume":true`)

	var deserialized SessionFailed

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.State, deserialized.State)
	assert.Equal(t, original.Error, deserialized.Error)
	assert.True(t, deserialized.CanResume)
	assert.Equal(t, SessionFailedEvent, deserialized.GetType())
}

func TestHITLRequested_JSONSerialization(t *testing.T) {
	original := HITLRequested{
		BaseEvent:    NewBaseEvent(HITLRequestedEvent, "sess-abc12345"),
		CheckpointID: "ckpt-11112222",
		State:        models.StatePreprocessingReview,
		Summary:      "12 rules discovered, 3 need a decision",
		Options:      []string{"approve", "modify", "skip", "cancel"},
		Confidence:   0.87,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)

	var deserialized HITLRequested

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)

	assert.Equal(t, original.CheckpointID, deserialized.CheckpointID)
	assert.Equal(t, original.Options, deserialized.Options)
	assert.InDelta(t, original.Confidence, deserialized.Confidence, 1e-9)
}

func TestEventTypes_AreDistinct(t *testing.T) {
	types := []EventType{
		SessionStarted{}.GetType(),
		SessionCompleted{}.GetType(),
		SessionFailed{}.GetType(),
		SessionCancelled{}.GetType(),
		SessionPaused{}.GetType(),
		SessionResumed{}.GetType(),
		StateChanged{}.GetType(),
		PhaseStarted{}.GetType(),
		PhaseCompleted{}.GetType(),
		ProgressUpdated{}.GetType(),
		HITLRequested{}.GetType(),
		HITLResponded{}.GetType(),
		CollaboratorStarted{}.GetType(),
		CollaboratorCompleted{}.GetType(),
	}

	seen := make(map[EventType]bool)
	for _, eventType := range types {
		assert.False(t, seen[eventType], "duplicate event type %s", eventType)
		seen[eventType] = true
	}
}
