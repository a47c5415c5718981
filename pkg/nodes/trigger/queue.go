package trigger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// QueueNode exposes the queue message that started the execution.
type QueueNode struct {
	id string
}

func NewQueueNode(id string) *QueueNode {
	return &QueueNode{id: id}
}

func (n *QueueNode) Descriptor() models.NodeDescriptor {
	return QueueDescriptor()
}

func (n *QueueNode) Execute(_ context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	message, err := ectx.QueueMessage()
	if err != nil {
		return nil, err
	}

	var payload any
	if len(message.Payload) > 0 {
		if err := json.Unmarshal(message.Payload, &payload); err != nil {
			payload = string(message.Payload)
		}
	}

	return map[string]any{
		"queue":       message.Queue,
		"payload":     payload,
		"received_at": message.ReceivedAt.UTC().Format(time.RFC3339),
	}, nil
}
