package delay

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// NodeType identifies delay nodes in workflow graphs.
const NodeType = "delay"

// Descriptor returns the static description of the delay node type.
func Descriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        NodeType,
		Name:        "Delay",
		Description: "Pauses the branch for a duration without holding a worker slot while dormant",
		Category:    models.CategoryTypeAction,
		Durable:     true,
		Inputs: []models.ParameterSpec{
			{Name: "duration", Kind: models.ValueKindString, Required: true, Description: "Seconds or a Go duration string such as 90s or 2h"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "duration_ms", Kind: models.ValueKindNumber, Description: "The waited duration in milliseconds"},
		},
	}
}

// Factory creates delay nodes.
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
	return "Delay"
}

func (f *Factory) Description() string {
	return "Pauses the branch for a configured duration"
}

func (f *Factory) Descriptor() models.NodeDescriptor {
	return Descriptor()
}
