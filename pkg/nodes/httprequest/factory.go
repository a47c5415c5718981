package httprequest

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// NodeType identifies HTTP request nodes in workflow graphs.
const NodeType = "httprequest"

// Descriptor returns the static description of the HTTP request node type.
func Descriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        NodeType,
		Name:        "HTTP Request",
		Description: "Performs an HTTP request with configurable method, headers, body, timeout and retries",
		Category:    models.CategoryTypeAction,
		Inputs: []models.ParameterSpec{
			{Name: "url", Kind: models.ValueKindString, Required: true, Description: "Request URL; supports templates"},
			{Name: "method", Kind: models.ValueKindString, Default: "GET", Description: "HTTP method"},
			{Name: "headers", Kind: models.ValueKindJSON, Description: "Request headers; values support templates"},
			{Name: "body", Kind: models.ValueKindJSON, Description: "Request body; strings support templates, objects are sent as JSON"},
			{Name: "timeout", Kind: models.ValueKindNumber, Default: float64(defaultTimeoutSeconds), Description: "Request timeout in seconds"},
			{Name: "integration_id", Kind: models.ValueKindString, Description: "Integration whose access token authorizes the request"},
			{Name: "retries", Kind: models.ValueKindJSON, Description: "Retry settings: attempts and delay in milliseconds"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "status_code", Kind: models.ValueKindNumber, Description: "HTTP response status code"},
			{Name: "headers", Kind: models.ValueKindJSON, Description: "Response headers"},
			{Name: "body", Kind: models.ValueKindString, Description: "Raw response body"},
			{Name: "json", Kind: models.ValueKindJSON, Description: "Response body decoded as JSON when possible"},
		},
	}
}

// Factory creates HTTP request nodes.
type Factory struct{}

func NewFactory() protocol.NodeFactory {
	return &Factory{}
}

func (f *Factory) Create(_ context.Context, id string, config map[string]any) (protocol.Node, error) {
	return NewNode(id, config)
}

func (f *Factory) ID() string {
	return NodeType
}

func (f *Factory) Name() string {
	return "HTTP Request"
}

func (f *Factory) Description() string {
	return "Performs an HTTP request against an external service"
}

func (f *Factory) Descriptor() models.NodeDescriptor {
	return Descriptor()
}
