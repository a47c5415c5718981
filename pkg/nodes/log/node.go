// Package log provides the logging node. The message is rendered as a
// template and written to the execution's structured logger, which makes it
// the cheapest debugging probe available inside a graph.
package log

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
	"github.com/strandhq/strand/pkg/template"
)

var validLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// Node writes one log line per invocation.
type Node struct {
	id string
}

func NewNode(id string, config map[string]any) (*Node, error) {
	if level, ok := config["level"].(string); ok && level != "" {
		if _, valid := validLevels[strings.ToLower(level)]; !valid {
			return nil, fmt.Errorf("invalid log level: %s", level)
		}
	}

	return &Node{id: id}, nil
}

func (n *Node) Descriptor() models.NodeDescriptor {
	return Descriptor()
}

func (n *Node) Execute(ctx context.Context, ectx *protocol.ExecutionContext) (map[string]any, error) {
	message, _ := ectx.Inputs["message"].(string)
	if message == "" {
		return nil, errors.New("missing required input 'message'")
	}

	level := "info"
	if configured, ok := ectx.Inputs["level"].(string); ok && configured != "" {
		level = strings.ToLower(configured)
	}

	slogLevel, ok := validLevels[level]
	if !ok {
		return nil, fmt.Errorf("invalid log level: %s", level)
	}

	rendered, err := template.RenderWithContext(message, ectx)
	if err != nil {
		return nil, fmt.Errorf("failed to render log message template: %w", err)
	}

	text := fmt.Sprintf("%v", rendered)

	logger := ectx.Logger
	if logger == nil {
		logger = slog.Default()
	}

	logger.Log(ctx, slogLevel, text, "node_type", NodeType)

	return map[string]any{
		"message": text,
		"level":   level,
	}, nil
}
