package predict

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// NodeType identifies predict nodes in workflow graphs.
const NodeType = "predict"

// Descriptor returns the static description of the predict node type.
func Descriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        NodeType,
		Name:        "Predict",
		Description: "Runs a model on an inference service, polling durably until the prediction finishes",
		Category:    models.CategoryTypeAction,
		Durable:     true,
		Inputs: []models.ParameterSpec{
			{Name: "service_url", Kind: models.ValueKindString, Required: true, Description: "Base URL of the inference service"},
			{Name: "model", Kind: models.ValueKindString, Required: true, Description: "Model identifier to run"},
			{Name: "input", Kind: models.ValueKindJSON, Required: true, Description: "Prediction input payload"},
			{Name: "integration_id", Kind: models.ValueKindString, Required: true, Description: "Integration whose access token authorizes the service"},
			{Name: "poll_interval", Kind: models.ValueKindString, Default: "5s", Description: "Time between status polls"},
			{Name: "max_polls", Kind: models.ValueKindNumber, Default: float64(defaultMaxPolls), Description: "Polls before the prediction is abandoned"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "output", Kind: models.ValueKindJSON, Description: "The prediction output"},
			{Name: "prediction_id", Kind: models.ValueKindString, Description: "Inference service prediction identifier"},
			{Name: "polls", Kind: models.ValueKindNumber, Description: "Status polls issued before completion"},
		},
	}
}

// Factory creates predict nodes.
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
	return "Predict"
}

func (f *Factory) Description() string {
	return "Runs a model prediction on an external inference service"
}

func (f *Factory) Descriptor() models.NodeDescriptor {
	return Descriptor()
}
