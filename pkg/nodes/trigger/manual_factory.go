package trigger

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// ManualDescriptor returns the static description of the manual trigger node.
func ManualDescriptor() models.NodeDescriptor {
	return models.NodeDescriptor{
		Type:        models.NodeTypeTriggerManual,
		Name:        "Manual Trigger",
		Description: "Starts the workflow from an operator call and exposes its payload",
		Category:    models.CategoryTypeTrigger,
		Outputs: []models.ParameterSpec{
			{Name: "data", Kind: models.ValueKindJSON, Description: "Payload supplied when the execution was created"},
		},
	}
}

// ManualFactory creates manual trigger nodes.
type ManualFactory struct{}

func NewManualFactory() protocol.NodeFactory {
	return &ManualFactory{}
}

func (f *ManualFactory) Create(_ context.Context, id string, _ map[string]any) (protocol.Node, error) {
	return NewManualNode(id), nil
}

func (f *ManualFactory) ID() string {
	return models.NodeTypeTriggerManual
}

func (f *ManualFactory) Name() string {
	return "Manual Trigger"
}

func (f *ManualFactory) Description() string {
	return "Starts the workflow from an operator call"
}

func (f *ManualFactory) Descriptor() models.NodeDescriptor {
	return ManualDescriptor()
}
