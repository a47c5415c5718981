package email

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/strandhq/strand/pkg/protocol"
)

// Trigger claims one recipient address on the shared intake.
type Trigger struct {
	DeploymentID string
	NodeID       string
	Address      string

	intake *Intake
	logger *slog.Logger
}

func NewTrigger(intake *Intake, config map[string]any, logger *slog.Logger) (*Trigger, error) {
	deploymentID, _ := config["deployment_id"].(string)
	nodeID, _ := config["node_id"].(string)
	address, _ := config["address"].(string)

	trigger := &Trigger{
		DeploymentID: deploymentID,
		NodeID:       nodeID,
		Address:      strings.ToLower(strings.TrimSpace(address)),
		intake:       intake,
		logger: logger.With(
			"module", "email_trigger",
			"address", address,
			"node_id", nodeID,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.DeploymentID == "" || t.NodeID == "" {
		return errors.New("email trigger requires deployment_id and node_id")
	}

	if t.Address == "" {
		return errors.New("email trigger address is required")
	}

	if _, err := mail.ParseAddress(t.Address); err != nil {
		return fmt.Errorf("invalid email trigger address %q: %w", t.Address, err)
	}

	if t.intake == nil {
		return errors.New("email trigger requires an intake")
	}

	return nil
}

// Start claims the address and makes sure the shared intake is running. It
// does not block; the intake lives until its context is cancelled.
func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	err := t.intake.register(t.Address, &registration{
		deploymentID: t.DeploymentID,
		nodeID:       t.NodeID,
		callback:     callback,
	})
	if err != nil {
		return err
	}

	if err := t.intake.Start(ctx); err != nil {
		t.intake.unregister(t.Address)

		return err
	}

	t.logger.Info("EmailTrigger started")

	return nil
}

func (t *Trigger) Stop(_ context.Context) error {
	t.intake.unregister(t.Address)
	t.logger.Info("EmailTrigger stopped")

	return nil
}
