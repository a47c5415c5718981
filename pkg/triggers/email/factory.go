package email

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/strandhq/strand/pkg/protocol"
)

var ErrConfigNil = errors.New("config cannot be nil")

// Factory creates email triggers bound to one shared intake.
type Factory struct {
	intake *Intake
}

func NewFactory(intake *Intake) *Factory {
	return &Factory{intake: intake}
}

func (f *Factory) ID() string {
	return "email"
}

func (f *Factory) Create(config map[string]any, logger *slog.Logger) (protocol.Trigger, error) {
	if config == nil {
		return nil, ErrConfigNil
	}

	trigger, err := NewTrigger(f.intake, config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create email trigger: %w", err)
	}

	return trigger, nil
}
