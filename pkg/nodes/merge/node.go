// Package merge provides the join node for fan-in points in a graph. The
// scheduler already waits for every connected upstream branch, so the node
// itself only combines the values that arrived.
package merge

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

const (
	// StrategyCombine keys each branch's value by its input name.
	StrategyCombine = "combine"

	// StrategyShallow flattens object-shaped branch values into one object,
	// later branches overwriting earlier keys.
	StrategyShallow = "shallow"
)

// branchPorts are the connectable fan-in inputs, in merge precedence order.
var branchPorts = []string{"a", "b", "c", "d"}

// Node combines the values of its connected branches.
type Node struct {
	id string
}

func NewNode(id string, config map[string]any) (*Node, error) {
	if strategy, ok := config["strategy"].(string); ok && strategy != "" {
		if strategy != StrategyCombine && strategy != StrategyShallow {
			return nil, fmt.Errorf("invalid merge strategy: %s", strategy)
		}
	}

	return &Node{id: id}, nil
}

func (n *Node) Descriptor() models.NodeDescriptor {
	return Descriptor()
}

func (n *Node) Execute(_ context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	strategy := StrategyCombine
	if configured, ok := ectx.Inputs["strategy"].(string); ok && configured != "" {
		strategy = configured
	}

	present := make([]string, 0, len(branchPorts))

	for _, port := range branchPorts {
		if _, ok := ectx.Inputs[port]; ok {
			present = append(present, port)
		}
	}

	if len(present) == 0 {
		return nil, errors.New("merge node received no branch inputs")
	}

	var merged any

	switch strategy {
	case StrategyCombine:
		combined := make(map[string]any, len(present))
		for _, port := range present {
			combined[port] = ectx.Inputs[port]
		}

		merged = combined
	case StrategyShallow:
		flattened := make(map[string]any)

		for _, port := range present {
			object, ok := ectx.Inputs[port].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("shallow merge requires object values, input %q is not an object", port)
			}

			keys := make([]string, 0, len(object))
			for key := range object {
				keys = append(keys, key)
			}

			sort.Strings(keys)

			for _, key := range keys {
				flattened[key] = object[key]
			}
		}

		merged = flattened
	default:
		return nil, fmt.Errorf("invalid merge strategy: %s", strategy)
	}

	sources := make([]any, len(present))
	for i, port := range present {
		sources[i] = port
	}

	return map[string]any{
		"merged":  merged,
		"sources": sources,
	}, nil
}
