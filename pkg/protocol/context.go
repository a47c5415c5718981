package protocol

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/strandhq/strand/pkg/models"
)

// ErrTriggerContextMissing is returned by the typed trigger accessors when
// the execution was not started by the requested trigger kind.
var ErrTriggerContextMissing = errors.New("required trigger context is not available")

// ExecutionContext carries everything a node invocation may touch. The
// scheduler builds a fresh context per invocation; contexts are never shared
// between nodes and must not outlive Execute.
type ExecutionContext struct {
	ExecutionID string
	WorkflowID  string
	NodeID      string

	// Inputs holds the resolved input values: upstream edge values take
	// precedence over operator-set statics, which take precedence over
	// declared defaults.
	Inputs map[string]any

	// Variables are the workflow-level variables from the deployment snapshot.
	Variables map[string]any

	// Env and Secrets are read-only host bindings. Nodes must not assume any
	// key is present.
	Env     map[string]string
	Secrets map[string]string

	// Integrations resolves integration IDs to valid access tokens.
	Integrations TokenSource

	// Objects reads and writes blobs by reference.
	Objects ObjectStore

	// Steps is the durable step runner. Nil for non-durable node types.
	Steps StepRunner

	// Progress receives advisory completion fractions. May be nil.
	Progress func(float64)

	Logger *slog.Logger

	TriggerKind models.TriggerKind
	Trigger     map[string]any
	Webhook     *models.WebhookRequest
	Email       *models.EmailMessage
	Queue       *models.QueueMessage
	Schedule    *models.ScheduleFiring
}

// ReportProgress reports a completion fraction in [0,1]. Values are advisory:
// they clamp, never regress, and never affect scheduling.
func (c *ExecutionContext) ReportProgress(value float64) {
	if c.Progress != nil {
		c.Progress(value)
	}
}

// TriggerData returns the manual trigger payload.
func (c *ExecutionContext) TriggerData() (map[string]any, error) {
	if c.TriggerKind != models.TriggerKindManual || c.Trigger == nil {
		return nil, c.missingTrigger(models.TriggerKindManual)
	}

	return c.Trigger, nil
}

// WebhookRequest returns the inbound HTTP request that started the execution.
func (c *ExecutionContext) WebhookRequest() (*models.WebhookRequest, error) {
	if c.Webhook == nil {
		return nil, c.missingTrigger(models.TriggerKindWebhook)
	}

	return c.Webhook, nil
}

// EmailMessage returns the inbound email that started the execution.
func (c *ExecutionContext) EmailMessage() (*models.EmailMessage, error) {
	if c.Email == nil {
		return nil, c.missingTrigger(models.TriggerKindEmail)
	}

	return c.Email, nil
}

// QueueMessage returns the queue message that started the execution.
func (c *ExecutionContext) QueueMessage() (*models.QueueMessage, error) {
	if c.Queue == nil {
		return nil, c.missingTrigger(models.TriggerKindQueue)
	}

	return c.Queue, nil
}

// ScheduledFiring returns the schedule firing that started the execution.
func (c *ExecutionContext) ScheduledFiring() (*models.ScheduleFiring, error) {
	if c.Schedule == nil {
		return nil, c.missingTrigger(models.TriggerKindSchedule)
	}

	return c.Schedule, nil
}

func (c *ExecutionContext) missingTrigger(wanted models.TriggerKind) error {
	return fmt.Errorf("%w: execution was triggered by %q, node requires %q",
		ErrTriggerContextMissing, c.TriggerKind, wanted)
}
