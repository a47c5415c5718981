// Package events defines the event types published across the strand services.
package events

import (
	"time"

	"github.com/google/uuid"

	"github.com/strandhq/strand/pkg/models"
)

type EventType string

// Kafka topics.
const ExecutionTopic = "strand.executions" // Execution dispatch and lifecycle
const NodeTopic = "strand.nodes"           // Per-node lifecycle within executions
const ControlTopic = "strand.control"      // Operator control requests, broadcast to workers

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	// Execution lifecycle events.
	ExecutionCreatedEvent   EventType = "execution.created"
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	ExecutionPausedEvent    EventType = "execution.paused"
	ExecutionResumedEvent   EventType = "execution.resumed"

	// Node lifecycle events.
	NodeStartedEvent   EventType = "node.started"
	NodeFinishedEvent  EventType = "node.finished"
	NodeFailedEvent    EventType = "node.failed"
	NodeSuspendedEvent EventType = "node.suspended"

	// Control requests.
	CancelRequestedEvent EventType = "control.cancel"
	PauseRequestedEvent  EventType = "control.pause"
	ResumeRequestedEvent EventType = "control.resume"
)

type BaseEvent struct {
	ID         string         `json:"id"`
	Type       EventType      `json:"type"`
	Timestamp  time.Time      `json:"timestamp"`
	WorkflowID string         `json:"workflow_id"`
	WorkerID   string         `json:"worker_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, workflowID string) BaseEvent {
	return BaseEvent{
		ID:         uuid.New().String(),
		Type:       eventType,
		Timestamp:  time.Now().UTC(),
		WorkflowID: workflowID,
		Metadata:   make(map[string]any),
	}
}

// ExecutionCreated announces a new execution ready to be picked up by a
// worker. The payload carries only identifiers; workers load the execution
// and its deployment from persistence.
type ExecutionCreated struct {
	BaseEvent

	ExecutionID  string             `json:"execution_id"`
	DeploymentID string             `json:"deployment_id"`
	TriggerKind  models.TriggerKind `json:"trigger_kind"`
}

func (e ExecutionCreated) GetType() EventType {
	return ExecutionCreatedEvent
}

type ExecutionStarted struct {
	BaseEvent

	ExecutionID  string `json:"execution_id"`
	DeploymentID string `json:"deployment_id"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

type ExecutionCompleted struct {
	BaseEvent

	ExecutionID   string `json:"execution_id"`
	DurationMs    int64  `json:"duration_ms"`
	NodesExecuted int    `json:"nodes_executed"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

// ExecutionError identifies the node whose failure decided the execution.
type ExecutionError struct {
	NodeID  string `json:"node_id"`
	Message string `json:"message"`
}

type ExecutionFailed struct {
	BaseEvent

	ExecutionID string         `json:"execution_id"`
	Error       ExecutionError `json:"error"`
	DurationMs  int64          `json:"duration_ms"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

type ExecutionCancelled struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

type ExecutionPaused struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionPaused) GetType() EventType {
	return ExecutionPausedEvent
}

type ExecutionResumed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
}

func (e ExecutionResumed) GetType() EventType {
	return ExecutionResumedEvent
}

// Node lifecycle events

type NodeStarted struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	NodeType    string `json:"node_type"`
}

func (e NodeStarted) GetType() EventType {
	return NodeStartedEvent
}

type NodeFinished struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	DurationMs  int64  `json:"duration_ms"`
}

func (e NodeFinished) GetType() EventType {
	return NodeFinishedEvent
}

type NodeFailed struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	NodeID      string `json:"node_id"`
	Error       string `json:"error"`
	Upstream    bool   `json:"upstream"` // Failed by propagation, never invoked
}

func (e NodeFailed) GetType() EventType {
	return NodeFailedEvent
}

type NodeSuspended struct {
	BaseEvent

	ExecutionID string    `json:"execution_id"`
	NodeID      string    `json:"node_id"`
	ResumeAt    time.Time `json:"resume_at"`
}

func (e NodeSuspended) GetType() EventType {
	return NodeSuspendedEvent
}

// Control requests

type CancelRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	Reason      string `json:"reason,omitempty"`
	RequestedBy string `json:"requested_by,omitempty"`
}

func (e CancelRequested) GetType() EventType {
	return CancelRequestedEvent
}

type PauseRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	RequestedBy string `json:"requested_by,omitempty"`
}

func (e PauseRequested) GetType() EventType {
	return PauseRequestedEvent
}

type ResumeRequested struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	RequestedBy string `json:"requested_by,omitempty"`
}

func (e ResumeRequested) GetType() EventType {
	return ResumeRequestedEvent
}
