package trigger

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// EmailDescriptor returns the static description of the email trigger node.
// The address input configures ingestion; the activator claims it on the
// shared intake when the deployment goes live.
func EmailDescriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        models.NodeTypeTriggerEmail,
		Name:        "Email Trigger",
		Description: "Starts the workflow from an inbound email",
		Category:    models.CategoryTypeTrigger,
		Inputs: []models.ParameterSpec{
			{Name: "address", Kind: models.ValueKindString, Required: true, Description: "Recipient address that routes messages to this workflow"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "message_id", Kind: models.ValueKindString, Description: "Message-Id header without angle brackets"},
			{Name: "from", Kind: models.ValueKindString, Description: "Sender address"},
			{Name: "to", Kind: models.ValueKindJSON, Description: "Recipient addresses"},
			{Name: "subject", Kind: models.ValueKindString, Description: "Decoded subject"},
			{Name: "text_body", Kind: models.ValueKindString, Description: "Plain text body"},
			{Name: "html_body", Kind: models.ValueKindString, Description: "HTML body"},
			{Name: "headers", Kind: models.ValueKindJSON, Description: "Message headers, first value per name"},
			{Name: "attachments", Kind: models.ValueKindJSON, Description: "Object store references to stored attachments"},
			{Name: "received_at", Kind: models.ValueKindString, Description: "When the message was received, RFC 3339"},
		},
	}
}

// EmailFactory creates email trigger nodes.
type EmailFactory struct{}

func NewEmailFactory() protocol.NodeFactory {
	return &EmailFactory{}
}

func (f *EmailFactory) Create(_ context.Context, id string, _ map[string]any) (protocol.Node, error) {
	return NewEmailNode(id), nil
}

func (f *EmailFactory) ID() string {
	return models.NodeTypeTriggerEmail
}

func (f *EmailFactory) Name() string {
	return "Email Trigger"
}

func (f *EmailFactory) Description() string {
	return "Starts the workflow from an inbound email"
}

func (f *EmailFactory) Descriptor() models.NodeDescriptor {
	return EmailDescriptor()
}
