package log

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// NodeType identifies log nodes in workflow graphs.
const NodeType = "log"

// Descriptor returns the static description of the log node type.
func Descriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        NodeType,
		Name:        "Log",
		Description: "Writes a rendered message to the execution log",
		Category:    models.CategoryTypeAction,
		Inputs: []models.ParameterSpec{
			{Name: "message", Kind: models.ValueKindString, Required: true, Description: "Message to log; supports templates"},
			{Name: "level", Kind: models.ValueKindString, Default: "info", Description: "Log level: debug, info, warn or error"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "message", Kind: models.ValueKindString, Description: "The rendered message"},
			{Name: "level", Kind: models.ValueKindString, Description: "The level the message was logged at"},
		},
	}
}

// Factory creates log nodes.
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
	return "Log"
}

func (f *Factory) Description() string {
	return "Writes a message to the execution log"
}

func (f *Factory) Descriptor() models.NodeDescriptor {
	return Descriptor()
}
