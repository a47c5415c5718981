// Package protocol defines the interfaces and contracts for pluggable nodes
// and the collaborators the engine hands them.
package protocol

import (
	"context"

	"github.com/strandhq/strand/pkg/models"
)

// Node is a single executable unit in a workflow graph. Execute receives the
// per-invocation execution context and returns the node's outputs keyed by
// declared output name. Returning an error marks the node (and transitively
// its dependents) failed; the scheduler never retries on its own.
//
// Nodes whose descriptor is marked Durable run with ectx.Steps populated and
// may be re-invoked after suspension or a crash: all side effects must go
// through step boundaries so replay can skip them.
type Node interface {
	// Descriptor returns the static description of this node type
	Descriptor() models.NodeDescriptor

	// Execute runs the node against the given execution context
	Execute(ctx context.Context, ectx *ExecutionContext) (map[string]any, error)
}

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create creates a new node instance with the given configuration
	Create(ctx context.Context, id string, config map[string]any) (Node, error)

	// ID returns the unique identifier for this node type
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Descriptor returns the declared ports and durability of this node type
	Descriptor() models.NodeDescriptor
}
