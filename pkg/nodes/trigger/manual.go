// Package trigger provides the trigger node types that root workflow graphs.
// Each kind materializes its execution's trigger payload as node outputs so
// downstream nodes consume trigger data over ordinary edges. The static
// inputs declared by these nodes configure ingestion: the activator reads
// them when it registers triggers for a deployment.
package trigger

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

// ManualNode exposes the payload of an operator-started execution.
type ManualNode struct {
	id string
}

func NewManualNode(id string) *ManualNode {
	return &ManualNode{id: id}
}

func (n *ManualNode) Descriptor() models.NodeDescriptor {
	return ManualDescriptor()
}

func (n *ManualNode) Execute(_ context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	data, err := ectx.TriggerData()
	if err != nil {
		return nil, err
	}

	return map[string]any{"data": data}, nil
}
