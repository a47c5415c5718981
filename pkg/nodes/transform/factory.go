package transform

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// NodeType identifies transform nodes in workflow graphs.
const NodeType = "transform"

// Descriptor returns the static description of the transform node type.
func Descriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        NodeType,
		Name:        "Transform",
		Description: "Transforms data using Go templates with access to inputs, variables and trigger context",
		Category:    models.CategoryTypeAction,
		Inputs: []models.ParameterSpec{
			{Name: "expression", Kind: models.ValueKindString, Required: true, Description: "Go template expression; JSON-shaped output decodes to structured data"},
			{Name: "data", Kind: models.ValueKindJSON, Description: "Arbitrary upstream value made available as an input binding"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "result", Kind: models.ValueKindJSON, Description: "The rendered expression result"},
		},
	}
}

// Factory creates transform nodes.
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
	return "Transform"
}

func (f *Factory) Description() string {
	return "Transforms data using Go template expressions"
}

func (f *Factory) Descriptor() models.NodeDescriptor {
	return Descriptor()
}
