package webhook

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/strandhq/strand/pkg/protocol"
)

// Trigger exposes one deployment trigger node as a path on the shared
// webhook server.
type Trigger struct {
	DeploymentID string
	NodeID       string
	Path         string
	Method       string

	manager  *ServerManager
	logger   *slog.Logger
	callback protocol.TriggerCallback
}

func NewTrigger(manager *ServerManager, config map[string]any, logger *slog.Logger) (*Trigger, error) {
	deploymentID, _ := config["deployment_id"].(string)
	nodeID, _ := config["node_id"].(string)

	path, _ := config["path"].(string)

	method, _ := config["method"].(string)
	if method == "" {
		method = http.MethodPost
	}

	trigger := &Trigger{
		DeploymentID: deploymentID,
		NodeID:       nodeID,
		Path:         path,
		Method:       strings.ToUpper(method),
		manager:      manager,
		logger: logger.With(
			"module", "webhook_trigger",
			"path", path,
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
		return errors.New("webhook trigger requires deployment_id and node_id")
	}

	if t.Path == "" {
		return errors.New("webhook trigger path is required")
	}

	if !strings.HasPrefix(t.Path, "/") {
		return errors.New("webhook trigger path must start with '/'")
	}

	if t.manager == nil {
		return errors.New("webhook trigger requires a server manager")
	}

	return nil
}

// Start registers the path and makes sure the shared server is running.
// It does not block; the server lives until its context is cancelled.
func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	t.callback = callback

	err := t.manager.register(t.Path, &registration{
		deploymentID: t.DeploymentID,
		nodeID:       t.NodeID,
		method:       t.Method,
		callback:     callback,
	})
	if err != nil {
		return err
	}

	if err := t.manager.Start(ctx); err != nil {
		t.manager.unregister(t.Path)

		return err
	}

	t.logger.Info("WebhookTrigger started")

	return nil
}

func (t *Trigger) Stop(_ context.Context) error {
	t.manager.unregister(t.Path)
	t.logger.Info("WebhookTrigger stopped")

	return nil
}
