package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/models"
)

func TestNewBaseEvent(t *testing.T) {
	event := NewBaseEvent(ExecutionStartedEvent, "wf-123")

	assert.NotEmpty(t, event.ID)
	assert.Equal(t, ExecutionStartedEvent, event.Type)
	assert.Equal(t, "wf-123", event.WorkflowID)
	assert.WithinDuration(t, time.Now().UTC(), event.Timestamp, time.Second)
	assert.NotNil(t, event.Metadata)
}

func TestEventTypes(t *testing.T) {
	tests := []struct {
		event    interface{ GetType() EventType }
		expected EventType
	}{
		{ExecutionCreated{}, ExecutionCreatedEvent},
		{ExecutionStarted{}, ExecutionStartedEvent},
		{ExecutionCompleted{}, ExecutionCompletedEvent},
		{ExecutionFailed{}, ExecutionFailedEvent},
		{ExecutionCancelled{}, ExecutionCancelledEvent},
		{ExecutionPaused{}, ExecutionPausedEvent},
		{ExecutionResumed{}, ExecutionResumedEvent},
		{NodeStarted{}, NodeStartedEvent},
		{NodeFinished{}, NodeFinishedEvent},
		{NodeFailed{}, NodeFailedEvent},
		{NodeSuspended{}, NodeSuspendedEvent},
		{CancelRequested{}, CancelRequestedEvent},
		{PauseRequested{}, PauseRequestedEvent},
		{ResumeRequested{}, ResumeRequestedEvent},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.event.GetType())
	}
}

func TestExecutionCreated_JSONSerialization(t *testing.T) {
	original := &ExecutionCreated{
		BaseEvent:    NewBaseEvent(ExecutionCreatedEvent, "wf-123"),
		ExecutionID:  "exec-456",
		DeploymentID: "dep-789",
		TriggerKind:  models.TriggerKindWebhook,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"type":"execution.created"`)
	assert.Contains(t, string(jsonData), `"deployment_id":"dep-789"`)
	assert.Contains(t, string(jsonData), `"trigger_kind":"webhook"`)

	var deserialized ExecutionCreated

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)
	assert.Equal(t, original.ExecutionID, deserialized.ExecutionID)
	assert.Equal(t, original.DeploymentID, deserialized.DeploymentID)
	assert.Equal(t, original.TriggerKind, deserialized.TriggerKind)
}

func TestExecutionFailed_JSONSerialization(t *testing.T) {
	original := &ExecutionFailed{
		BaseEvent:   NewBaseEvent(ExecutionFailedEvent, "wf-123"),
		ExecutionID: "exec-456",
		Error: ExecutionError{
			NodeID:  "fetch",
			Message: "node fetch: connection refused",
		},
		DurationMs: 1200,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), `"node_id":"fetch"`)

	var deserialized ExecutionFailed

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)
	assert.Equal(t, original.Error, deserialized.Error)
	assert.Equal(t, original.DurationMs, deserialized.DurationMs)
}

func TestNodeSuspended_JSONSerialization(t *testing.T) {
	resumeAt := time.Now().UTC().Add(5 * time.Minute).Truncate(time.Millisecond)
	original := &NodeSuspended{
		BaseEvent:   NewBaseEvent(NodeSuspendedEvent, "wf-123"),
		ExecutionID: "exec-456",
		NodeID:      "delay-1",
		ResumeAt:    resumeAt,
	}

	jsonData, err := json.Marshal(original)
	require.NoError(t, err)

	var deserialized NodeSuspended

	err = json.Unmarshal(jsonData, &deserialized)
	require.NoError(t, err)
	assert.True(t, deserialized.ResumeAt.Equal(resumeAt))
	assert.Equal(t, "delay-1", deserialized.NodeID)
}
