package trigger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// WebhookNode exposes the inbound HTTP request that started the execution.
type WebhookNode struct {
	id string
}

func NewWebhookNode(id string) *WebhookNode {
	return &WebhookNode{id: id}
}

func (n *WebhookNode) Descriptor() models.NodeDescriptor {
	return WebhookDescriptor()
}

func (n *WebhookNode) Execute(_ context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	request, err := ectx.WebhookRequest()
	if err != nil {
		return nil, err
	}

	var body any
	if len(request.Body) > 0 {
		if err := json.Unmarshal(request.Body, &body); err != nil {
			body = string(request.Body)
		}
	}

	return map[string]any{
		"method":      request.Method,
		"path":        request.Path,
		"headers":     stringMap(request.Headers),
		"query":       stringMap(request.Query),
		"body":        body,
		"received_at": request.ReceivedAt.UTC().Format(time.RFC3339),
	}, nil
}

func stringMap(values map[string]string) map[string]any {
	out := make(map[string]any, len(values))
	for key, val := range values {
		out[key] = val
	}

	return out
}
