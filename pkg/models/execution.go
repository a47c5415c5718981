package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ExecutionStatus defines the aggregate states of a workflow execution.
type ExecutionStatus string

const (
	ExecutionStatusIdle      ExecutionStatus = "idle"      // Created, not yet handed to a worker
	ExecutionStatusSubmitted ExecutionStatus = "submitted" // Published to the bus, awaiting a worker
	ExecutionStatusExecuting ExecutionStatus = "executing"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusError     ExecutionStatus = "error"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
	ExecutionStatusPaused    ExecutionStatus = "paused"
)

// IsTerminal reports whether no further scheduling will happen for this status.
func (s ExecutionStatus) IsTerminal() bool {
	switch s {
	case ExecutionStatusCompleted, ExecutionStatusError, ExecutionStatusCancelled:
		return true
	default:
		return false
	}
}

// NodeStatus defines the states of a single node within an execution.
type NodeStatus string

const (
	NodeStatusIdle      NodeStatus = "idle"
	NodeStatusExecuting NodeStatus = "executing"
	NodeStatusCompleted NodeStatus = "completed"
	NodeStatusError     NodeStatus = "error"
)

// IsTerminal reports whether the node reached a final state.
func (s NodeStatus) IsTerminal() bool {
	return s == NodeStatusCompleted || s == NodeStatusError
}

// TriggerKind identifies which ingestion path created an execution.
type TriggerKind string

const (
	TriggerKindManual   TriggerKind = "manual"
	TriggerKindWebhook  TriggerKind = "webhook"
	TriggerKindEmail    TriggerKind = "email"
	TriggerKindQueue    TriggerKind = "queue"
	TriggerKindSchedule TriggerKind = "schedule"
)

// WebhookRequest captures the inbound HTTP request that fired an execution.
type WebhookRequest struct {
	Method     string            `json:"method"`
	Path       string            `json:"path"`
	Headers    map[string]string `json:"headers,omitempty"`
	Query      map[string]string `json:"query,omitempty"`
	Body       json.RawMessage   `json:"body,omitempty"`
	ReceivedAt time.Time         `json:"received_at"`
}

// EmailMessage captures an inbound email that fired an execution. Large
// attachments are written to the object store; Attachments carries their
// references.
type EmailMessage struct {
	MessageID   string            `json:"message_id"`
	From        string            `json:"from"`
	To          []string          `json:"to"`
	Subject     string            `json:"subject"`
	TextBody    string            `json:"text_body,omitempty"`
	HTMLBody    string            `json:"html_body,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Attachments []ObjectRef       `json:"attachments,omitempty"`
	ReceivedAt  time.Time         `json:"received_at"`
}

// QueueMessage captures a message consumed from an external queue.
type QueueMessage struct {
	Queue      string          `json:"queue"`
	Payload    json.RawMessage `json:"payload"`
	ReceivedAt time.Time       `json:"received_at"`
}

// ScheduleFiring captures one firing of a cron schedule.
type ScheduleFiring struct {
	ScheduleID     string    `json:"schedule_id"`
	CronExpression string    `json:"cron_expression"`
	ScheduledFor   time.Time `json:"scheduled_for"`
	FiredAt        time.Time `json:"fired_at"`
}

// Execution is one run of a deployment. Exactly one trigger payload field is
// populated, matching TriggerKind. Once a worker picks the execution up, all
// mutation goes through the scheduler.
type Execution struct {
	ID           string          `json:"id"            validate:"required"`
	WorkflowID   string          `json:"workflow_id"   validate:"required"`
	DeploymentID string          `json:"deployment_id" validate:"required"`
	Status       ExecutionStatus `json:"status"        validate:"required"`
	TriggerKind  TriggerKind     `json:"trigger_kind"  validate:"required"`

	TriggerData map[string]any  `json:"trigger_data,omitempty"`
	Webhook     *WebhookRequest `json:"webhook,omitempty"`
	Email       *EmailMessage   `json:"email,omitempty"`
	Queue       *QueueMessage   `json:"queue,omitempty"`
	Schedule    *ScheduleFiring `json:"schedule,omitempty"`

	NodeExecutions map[string]*NodeExecution `json:"node_executions"`
	ErrorMessage   string                    `json:"error_message,omitempty"`
	CreatedAt      time.Time                 `json:"created_at"`
	StartedAt      *time.Time                `json:"started_at,omitempty"`
	FinishedAt     *time.Time                `json:"finished_at,omitempty"`
}

// ErrTriggerPayloadMismatch is returned when an execution does not carry
// exactly the payload its trigger kind requires.
var ErrTriggerPayloadMismatch = errors.New("trigger payload does not match trigger kind")

// NewExecution creates an idle execution for the given deployment and trigger
// kind. The matching payload field must be set by the caller before the
// execution is persisted; see ValidatePayload.
func NewExecution(id string, deployment *Deployment, kind TriggerKind) *Execution {
	return &Execution{
		ID:             id,
		WorkflowID:     deployment.WorkflowID,
		DeploymentID:   deployment.ID,
		Status:         ExecutionStatusIdle,
		TriggerKind:    kind,
		NodeExecutions: make(map[string]*NodeExecution),
		CreatedAt:      time.Now().UTC(),
	}
}

// ValidatePayload checks the exactly-one-payload invariant against TriggerKind.
func (e *Execution) ValidatePayload() error {
	populated := 0

	if e.TriggerData != nil {
		populated++
	}

	if e.Webhook != nil {
		populated++
	}

	if e.Email != nil {
		populated++
	}

	if e.Queue != nil {
		populated++
	}

	if e.Schedule != nil {
		populated++
	}

	if populated != 1 {
		return fmt.Errorf("%w: %d payloads populated", ErrTriggerPayloadMismatch, populated)
	}

	match := false

	switch e.TriggerKind {
	case TriggerKindManual:
		match = e.TriggerData != nil
	case TriggerKindWebhook:
		match = e.Webhook != nil
	case TriggerKindEmail:
		match = e.Email != nil
	case TriggerKindQueue:
		match = e.Queue != nil
	case TriggerKindSchedule:
		match = e.Schedule != nil
	}

	if !match {
		return fmt.Errorf("%w: kind %q", ErrTriggerPayloadMismatch, e.TriggerKind)
	}

	return nil
}

// NodeExecution tracks one node's run within an execution. WaitUntil is set
// while a durable node is parked on a long sleep; Progress is advisory and
// never decreases.
type NodeExecution struct {
	NodeID     string         `json:"node_id"`
	Status     NodeStatus     `json:"status"`
	Outputs    map[string]any `json:"outputs,omitempty"`
	Error      string         `json:"error,omitempty"`
	Progress   float64        `json:"progress"`
	WaitUntil  *time.Time     `json:"wait_until,omitempty"`
	StartedAt  *time.Time     `json:"started_at,omitempty"`
	FinishedAt *time.Time     `json:"finished_at,omitempty"`
}

// NewNodeExecution creates an idle node execution record.
func NewNodeExecution(nodeID string) *NodeExecution {
	return &NodeExecution{
		NodeID: nodeID,
		Status: NodeStatusIdle,
	}
}

// MarkExecuting transitions the node into the executing state. The start
// timestamp is kept from the first attempt so replays do not rewrite it.
func (n *NodeExecution) MarkExecuting() {
	n.Status = NodeStatusExecuting
	n.WaitUntil = nil

	if n.StartedAt == nil {
		now := time.Now().UTC()
		n.StartedAt = &now
	}
}

// MarkCompleted records the node's declared outputs and finishes it.
func (n *NodeExecution) MarkCompleted(outputs map[string]any) {
	now := time.Now().UTC()

	n.Status = NodeStatusCompleted
	n.Outputs = outputs
	n.Error = ""
	n.Progress = 1
	n.WaitUntil = nil
	n.FinishedAt = &now
}

// MarkError finishes the node with a failure message and no outputs.
func (n *NodeExecution) MarkError(message string) {
	now := time.Now().UTC()

	n.Status = NodeStatusError
	n.Outputs = nil
	n.Error = message
	n.WaitUntil = nil
	n.FinishedAt = &now
}

// MarkParked records that the node is suspended until the given wake time.
func (n *NodeExecution) MarkParked(wakeAt time.Time) {
	n.Status = NodeStatusIdle
	n.WaitUntil = &wakeAt
}

// SetProgress clamps the value to [0,1] and keeps progress monotone.
func (n *NodeExecution) SetProgress(value float64) {
	if value < 0 {
		value = 0
	}

	if value > 1 {
		value = 1
	}

	if value > n.Progress {
		n.Progress = value
	}
}
