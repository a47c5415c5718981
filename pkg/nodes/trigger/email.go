package trigger

import (
	"context"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// EmailNode exposes the inbound email that started the execution.
type EmailNode struct {
	id string
}

func NewEmailNode(id string) *EmailNode {
	return &EmailNode{id: id}
}

func (n *EmailNode) Descriptor() models.NodeDescriptor {
	return EmailDescriptor()
}

func (n *EmailNode) Execute(_ context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	message, err := ectx.EmailMessage()
	if err != nil {
		return nil, err
	}

	recipients := make([]any, len(message.To))
	for i, to := range message.To {
		recipients[i] = to
	}

	attachments := make([]any, len(message.Attachments))
	for i, ref := range message.Attachments {
		attachments[i] = ref.AsValue()
	}

	return map[string]any{
		"message_id":  message.MessageID,
		"from":        message.From,
		"to":          recipients,
		"subject":     message.Subject,
		"text_body":   message.TextBody,
		"html_body":   message.HTMLBody,
		"headers":     stringMap(message.Headers),
		"attachments": attachments,
		"received_at": message.ReceivedAt.UTC().Format(time.RFC3339),
	}, nil
}
