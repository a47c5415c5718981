package render

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// NodeType identifies render nodes in workflow graphs.
const NodeType = "render"

// Descriptor returns the static description of the render node type.
func Descriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        NodeType,
		Name:        "Render",
		Description: "Submits a job to a render service, polls durably until it finishes, and stores the artifact",
		Category:    models.CategoryTypeAction,
		Durable:     true,
		Inputs: []models.ParameterSpec{
			{Name: "service_url", Kind: models.ValueKindString, Required: true, Description: "Base URL of the render service"},
			{Name: "job", Kind: models.ValueKindJSON, Required: true, Description: "Job payload posted to the service"},
			{Name: "integration_id", Kind: models.ValueKindString, Description: "Integration whose access token authorizes the service"},
			{Name: "poll_interval", Kind: models.ValueKindString, Default: "15s", Description: "Time between status polls"},
			{Name: "max_polls", Kind: models.ValueKindNumber, Default: float64(defaultMaxPolls), Description: "Polls before the job is abandoned"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "artifact", Kind: models.ValueKindObject, Description: "Object store reference to the rendered artifact"},
			{Name: "job_id", Kind: models.ValueKindString, Description: "Render service job identifier"},
			{Name: "polls", Kind: models.ValueKindNumber, Description: "Status polls issued before completion"},
		},
	}
}

// Factory creates render nodes.
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
	return "Render"
}

func (f *Factory) Description() string {
	return "Runs a job on an external render service and stores the result"
}

func (f *Factory) Descriptor() models.NodeDescriptor {
	return Descriptor()
}
