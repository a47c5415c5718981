// Package delay provides the durable pause node. Short delays block their
// worker slot; long delays park the node and release the slot until the wake
// time, surviving process restarts in between.
package delay

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/nodes/internal/value"
	"github.com/strandhq/strand/pkg/protocol"
)

const maxDuration = 30 * 24 * time.Hour

// Node sleeps for the configured duration through the durable step runner.
type Node struct {
	id string
}

func NewNode(id string, config map[string]any) (*Node, error) {
	if raw, ok := config["duration"]; ok {
		if _, err := parseDuration(raw); err != nil {
			return nil, err
		}
	}

	return &Node{id: id}, nil
}

func (n *Node) Descriptor() models.NodeDescriptor {
	return Descriptor()
}

func (n *Node) Execute(ctx context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	raw, ok := ectx.Inputs["duration"]
	if !ok {
		return nil, errors.New("missing required input 'duration'")
	}

	duration, err := parseDuration(raw)
	if err != nil {
		return nil, err
	}

	if ectx.Steps == nil {
		return nil, errors.New("delay node requires a durable step runner")
	}

	if err := ectx.Steps.Sleep(ctx, duration); err != nil {
		return nil, err
	}

	return map[string]any{
		"duration_ms": duration.Milliseconds(),
	}, nil
}

func parseDuration(raw any) (time.Duration, error) {
	duration, ok := value.Duration(raw)
	if !ok {
		return 0, fmt.Errorf("invalid duration %v: use seconds or a Go duration string", raw)
	}

	if duration <= 0 {
		return 0, errors.New("duration must be positive")
	}

	if duration > maxDuration {
		return 0, fmt.Errorf("duration exceeds the %s maximum", maxDuration)
	}

	return duration, nil
}
