package webhook

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/strandhq/strand/pkg/protocol"
)

var ErrConfigNil = errors.New("config cannot be nil")

// Factory creates webhook triggers bound to one shared server manager.
type Factory struct {
	manager *ServerManager
}

func NewFactory(manager *ServerManager) *Factory {
	return &Factory{manager: manager}
}

func (f *Factory) ID() string {
	return "webhook"
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Trigger, error) {
	if config == nil {
		return nil, ErrConfigNil
	}

	trigger, err := NewTrigger(f.manager, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create webhook trigger: %w", err)
	}

	return trigger, nil
}
