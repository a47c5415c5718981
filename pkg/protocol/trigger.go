package protocol

import (
	"context"
	"log/slog"

	"github.com/strandhq/strand/pkg/models"
)

// FiredTrigger describes one trigger firing: which deployment and trigger
// node it belongs to, plus exactly one typed payload matching Kind.
type FiredTrigger struct {
	DeploymentID string
	NodeID       string
	Kind         models.TriggerKind

	TriggerData map[string]any
	Webhook     *models.WebhookRequest
	Email       *models.EmailMessage
	Queue       *models.QueueMessage
	Schedule    *models.ScheduleFiring
}

// Apply attaches the firing's payload to an execution.
func (f FiredTrigger) Apply(execution *models.Execution) {
	execution.TriggerKind = f.Kind
	execution.TriggerData = f.TriggerData
	execution.Webhook = f.Webhook
	execution.Email = f.Email
	execution.Queue = f.Queue
	execution.Schedule = f.Schedule
}

// TriggerCallback is invoked by a running trigger for every firing. The
// activator's callback creates the execution and publishes it to the bus.
type TriggerCallback func(ctx context.Context, fired FiredTrigger) error

// Trigger is a long-running ingestion adapter (queue consumer, cron poller,
// webhook listener, email intake) that turns external stimuli into firings.
type Trigger interface {
	Start(ctx context.Context, callback TriggerCallback) error
	Stop(ctx context.Context) error
	Validate() error
}

// TriggerFactory creates trigger instances from configuration.
type TriggerFactory interface {
	Create(config map[string]any, logger *slog.Logger) (Trigger, error)
	ID() string
}
