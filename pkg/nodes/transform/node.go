// Package transform provides the data transformation node. An expression is
// rendered as a Go template against the execution context and the result
// becomes the node's output.
package transform

import (
	"context"
	"errors"
	"fmt"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
	"github.com/strandhq/strand/pkg/template"
)

// Node evaluates one template expression per invocation.
type Node struct {
	id string
}

// NewNode validates that a statically configured expression parses. The
// expression may also arrive over an edge, so absence is not an error here.
func NewNode(id string, config map[string]any) (*Node, error) {
	if expression, ok := config["expression"].(string); ok && expression != "" {
		if _, err := template.Parse(expression); err != nil {
			return nil, err
		}
	}

	return &Node{id: id}, nil
}

func (n *Node) Descriptor() models.NodeDescriptor {
	return Descriptor()
}

// Execute renders the expression. Output coercion follows the template
// package: JSON shapes decode to objects and arrays, then numbers and
// booleans, otherwise the rendered string.
func (n *Node) Execute(_ context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	expression, _ := ectx.Inputs["expression"].(string)
	if expression == "" {
		return nil, errors.New("missing required input 'expression'")
	}

	result, err := template.RenderWithContext(expression, ectx)
	if err != nil {
		return nil, fmt.Errorf("transformation failed: %w", err)
	}

	return map[string]any{"result": result}, nil
}
