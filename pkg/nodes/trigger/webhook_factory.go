package trigger

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// WebhookDescriptor returns the static description of the webhook trigger
// node. The path and method inputs configure ingestion; the activator
// registers a webhook route from them when the deployment goes live.
func WebhookDescriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        models.NodeTypeTriggerWebhook,
		Name:        "Webhook Trigger",
		Description: "Starts the workflow from an inbound HTTP request",
		Category:    models.CategoryTypeTrigger,
		Inputs: []models.ParameterSpec{
			{Name: "path", Kind: models.ValueKindString, Required: true, Description: "Webhook path, such as /hooks/orders"},
			{Name: "method", Kind: models.ValueKindString, Default: "POST", Description: "HTTP method accepted by the webhook"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "method", Kind: models.ValueKindString, Description: "Request method"},
			{Name: "path", Kind: models.ValueKindString, Description: "Request path"},
			{Name: "headers", Kind: models.ValueKindJSON, Description: "Request headers, first value per name"},
			{Name: "query", Kind: models.ValueKindJSON, Description: "Query parameters, first value per name"},
			{Name: "body", Kind: models.ValueKindJSON, Description: "Request body; JSON bodies arrive decoded"},
			{Name: "received_at", Kind: models.ValueKindString, Description: "When the request was received, RFC 3339"},
		},
	}
}

// WebhookFactory creates webhook trigger nodes.
type WebhookFactory struct{}

func NewWebhookFactory() protocol.NodeFactory {
	return &WebhookFactory{}
}

func (f *WebhookFactory) Create(_ context.Context, id string, _ map[string]any) (protocol.Node, error) {
	return NewWebhookNode(id), nil
}

func (f *WebhookFactory) ID() string {
	return models.NodeTypeTriggerWebhook
}

func (f *WebhookFactory) Name() string {
	return "Webhook Trigger"
}

func (f *WebhookFactory) Description() string {
	return "Starts the workflow from an inbound HTTP request"
}

func (f *WebhookFactory) Descriptor() models.NodeDescriptor {
	return WebhookDescriptor()
}
