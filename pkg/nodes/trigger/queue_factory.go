package trigger

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// QueueDescriptor returns the static description of the queue trigger node.
// The provider, queue and connection inputs configure ingestion; the
// activator starts a consumer from them when the deployment goes live.
func QueueDescriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        models.NodeTypeTriggerQueue,
		Name:        "Queue Trigger",
		Description: "Starts the workflow from a message on an external queue",
		Category:    models.CategoryTypeTrigger,
		Inputs: []models.ParameterSpec{
			{Name: "provider", Kind: models.ValueKindString, Default: "redis", Description: "Queue provider: redis or kafka"},
			{Name: "queue", Kind: models.ValueKindString, Required: true, Description: "Queue or topic to consume"},
			{Name: "connection", Kind: models.ValueKindJSON, Description: "Provider connection settings"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "queue", Kind: models.ValueKindString, Description: "Queue or topic the message arrived on"},
			{Name: "payload", Kind: models.ValueKindJSON, Description: "Message payload; JSON payloads arrive decoded"},
			{Name: "received_at", Kind: models.ValueKindString, Description: "When the message was consumed, RFC 3339"},
		},
	}
}

// QueueFactory creates queue trigger nodes.
type QueueFactory struct{}

func NewQueueFactory() protocol.NodeFactory {
	return &QueueFactory{}
}

func (f *QueueFactory) Create(_ context.Context, id string, _ map[string]any) (protocol.Node, error) {
	return NewQueueNode(id), nil
}

func (f *QueueFactory) ID() string {
	return models.NodeTypeTriggerQueue
}

func (f *QueueFactory) Name() string {
	return "Queue Trigger"
}

func (f *QueueFactory) Description() string {
	return "Starts the workflow from a queue message"
}

func (f *QueueFactory) Descriptor() models.NodeDescriptor {
	return QueueDescriptor()
}
