package merge

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// NodeType identifies merge nodes in workflow graphs.
const NodeType = "merge"

// Descriptor returns the static description of the merge node type.
func Descriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        NodeType,
		Name:        "Merge",
		Description: "Joins multiple branches, combining their values into one output",
		Category:    models.CategoryTypeAction,
		Inputs: []models.ParameterSpec{
			{Name: "a", Kind: models.ValueKindJSON, Description: "First branch value"},
			{Name: "b", Kind: models.ValueKindJSON, Description: "Second branch value"},
			{Name: "c", Kind: models.ValueKindJSON, Description: "Third branch value"},
			{Name: "d", Kind: models.ValueKindJSON, Description: "Fourth branch value"},
			{Name: "strategy", Kind: models.ValueKindString, Default: StrategyCombine, Description: "combine keys values by branch name; shallow flattens object values"},
		},
		Outputs: []models.ParameterSpec{
			{Name: "merged", Kind: models.ValueKindJSON, Description: "The combined value"},
			{Name: "sources", Kind: models.ValueKindJSON, Description: "Branch names that contributed values"},
		},
	}
}

// Factory creates merge nodes.
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
	return "Merge"
}

func (f *Factory) Description() string {
	return "Joins multiple execution branches into one value"
}

func (f *Factory) Descriptor() models.NodeDescriptor {
	return Descriptor()
}
