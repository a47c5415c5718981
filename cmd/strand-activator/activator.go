package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/strandhq/strand/pkg/eventbus"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/protocol"
	"github.com/strandhq/strand/pkg/registry"
	"github.com/strandhq/strand/pkg/services"
	"github.com/strandhq/strand/pkg/triggers/schedule"
)

const (
	resyncInterval = 30 * time.Second
	stopTimeout    = 5 * time.Second
	maxRestarts    = 5
)

// Activator keeps the running trigger set in sync with the current
// deployments and creates an execution for every firing.
type Activator struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	registry    *registry.Registry
	executions  *services.Execution
	poller      *schedule.Poller

	mu        sync.Mutex
	running   map[string]protocol.Trigger
	scheduled map[string]bool

	restartCount int
}

// NewActivator creates a new Activator instance.
func NewActivator(
	id string,
	persistence persistence.Persistence,
	publisher eventbus.EventPublisher,
	registry *registry.Registry,
	poller *schedule.Poller,
	logger *slog.Logger,
) *Activator {
	return &Activator{
		id:          id,
		logger:      logger.With("module", "activator"),
		persistence: persistence,
		registry:    registry,
		executions:  services.NewExecution(persistence, publisher, logger),
		poller:      poller,
		running:     make(map[string]protocol.Trigger),
		scheduled:   make(map[string]bool),
	}
}

// Start begins the activator service.
func (a *Activator) Start(ctx context.Context) {
	aCtx, cancel := context.WithCancel(ctx)

	a.logger.Info("Starting activator")

	a.handleSignals(aCtx, cancel)
	a.run(aCtx)
}

// handleSignals sets up signal handling for graceful shutdown and restart.
func (a *Activator) handleSignals(ctx context.Context, cancel context.CancelFunc) {
	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-signals
		a.logger.Info("Received signal", "signal", sig)

		switch sig {
		case syscall.SIGHUP:
			a.logger.Info("Reloading trigger registrations...")
			a.restart(ctx, cancel)
		case syscall.SIGINT, syscall.SIGTERM:
			a.logger.Info("Shutting down gracefully...")
			a.stop(cancel)
			os.Exit(0)
		default:
			a.logger.Warn("Unhandled signal received", "signal", sig)
		}
	}()
}

// restart tears the trigger set down and brings the service back up with
// linear backoff.
func (a *Activator) restart(ctx context.Context, cancel context.CancelFunc) {
	a.restartCount++
	newCtx := context.WithoutCancel(ctx)

	a.stop(cancel)

	if a.restartCount > maxRestarts {
		a.logger.Error("Restart limit reached, exiting...")
		os.Exit(1)
	}

	backoff := time.Duration(a.restartCount) * time.Second
	a.logger.Info("Restarting activator...", "backoff", backoff)
	time.Sleep(backoff)

	a.Start(newCtx)
}

// run starts the schedule poller, keeps the trigger set synced, and blocks
// until the context ends.
func (a *Activator) run(ctx context.Context) {
	if err := a.poller.Start(ctx, a.fire); err != nil {
		a.logger.ErrorContext(ctx, "Failed to start schedule poller", "error", err)

		return
	}

	a.resync(ctx)

	ticker := time.NewTicker(resyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			a.logger.Info("Activator context cancelled, stopping...")

			return
		case <-ticker.C:
			a.resync(ctx)
		}
	}
}

// fire creates an execution for one trigger firing and announces it on the
// bus through the execution service.
func (a *Activator) fire(ctx context.Context, fired protocol.FiredTrigger) error {
	execution, err := a.executions.CreateFromTrigger(ctx, fired)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to create execution from trigger firing",
			"deployment_id", fired.DeploymentID,
			"node_id", fired.NodeID,
			"trigger_kind", fired.Kind,
			"error", err)

		return err
	}

	a.logger.InfoContext(ctx, "Execution created from trigger firing",
		"execution_id", execution.ID,
		"deployment_id", fired.DeploymentID,
		"trigger_kind", fired.Kind)

	return nil
}

// resync walks the published workflows' current deployments and reconciles
// the running trigger set against them: new trigger nodes start, superseded
// ones stop, schedule rows are upserted or removed.
func (a *Activator) resync(ctx context.Context) {
	workflows, err := a.persistence.WorkflowRepository().List(ctx)
	if err != nil {
		a.logger.ErrorContext(ctx, "Failed to list workflows", "error", err)

		return
	}

	desired := make(map[string]triggerSpec)
	scheduled := make(map[string]bool)

	for _, workflow := range workflows {
		if workflow.Status != models.WorkflowStatusPublished {
			continue
		}

		deployment, err := a.persistence.DeploymentRepository().CurrentByWorkflow(ctx, workflow.ID)
		if err != nil {
			if !persistence.IsDeploymentNotFound(err) {
				a.logger.ErrorContext(ctx, "Failed to load current deployment",
					"workflow_id", workflow.ID, "error", err)
			}

			continue
		}

		a.collectDeployment(ctx, deployment, desired, scheduled)
	}

	a.applyDesired(ctx, desired)
	a.cleanupSchedules(ctx, scheduled)
}

type triggerSpec struct {
	factoryID string
	config    map[string]any
}

// collectDeployment gathers the trigger work one deployment snapshot asks
// for: long-running triggers into desired, schedule rows upserted directly.
func (a *Activator) collectDeployment(
	ctx context.Context,
	deployment *models.Deployment,
	desired map[string]triggerSpec,
	scheduled map[string]bool,
) {
	if deployment.Snapshot == nil {
		return
	}

	for _, node := range deployment.Snapshot.Nodes {
		if !node.Enabled {
			continue
		}

		switch node.Type {
		case models.NodeTypeTriggerWebhook, models.NodeTypeTriggerQueue, models.NodeTypeTriggerEmail:
			desired[triggerKey(deployment.ID, node.ID)] = triggerSpec{
				factoryID: factoryIDFor(node.Type),
				config:    triggerConfig(deployment.ID, node),
			}
		case models.NodeTypeTriggerSchedule:
			cron, _ := node.Inputs["cron"].(string)

			if _, err := schedule.Register(ctx, a.persistence.ScheduleRepository(), deployment.ID, node.ID, cron); err != nil {
				a.logger.ErrorContext(ctx, "Failed to register schedule",
					"deployment_id", deployment.ID, "node_id", node.ID, "error", err)

				continue
			}

			scheduled[deployment.ID] = true
		}
	}
}

// applyDesired starts missing triggers and stops ones no current deployment
// asks for anymore.
func (a *Activator) applyDesired(ctx context.Context, desired map[string]triggerSpec) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for key, trigger := range a.running {
		if _, keep := desired[key]; keep {
			continue
		}

		a.stopTrigger(ctx, key, trigger)
	}

	for key, spec := range desired {
		if _, exists := a.running[key]; exists {
			continue
		}

		trigger, err := a.registry.CreateTrigger(spec.factoryID, spec.config)
		if err != nil {
			a.logger.ErrorContext(ctx, "Failed to create trigger",
				"trigger_key", key, "factory", spec.factoryID, "error", err)

			continue
		}

		if err := trigger.Start(ctx, a.fire); err != nil {
			a.logger.ErrorContext(ctx, "Failed to start trigger",
				"trigger_key", key, "factory", spec.factoryID, "error", err)

			continue
		}

		a.running[key] = trigger
		a.logger.InfoContext(ctx, "Trigger started", "trigger_key", key, "factory", spec.factoryID)
	}
}

// cleanupSchedules removes schedule rows of deployments that are no longer
// current.
func (a *Activator) cleanupSchedules(ctx context.Context, scheduled map[string]bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	for deploymentID := range a.scheduled {
		if scheduled[deploymentID] {
			continue
		}

		if err := schedule.Deregister(ctx, a.persistence.ScheduleRepository(), deploymentID); err != nil {
			a.logger.ErrorContext(ctx, "Failed to deregister schedules",
				"deployment_id", deploymentID, "error", err)
		}
	}

	a.scheduled = scheduled
}

func (a *Activator) stopTrigger(ctx context.Context, key string, trigger protocol.Trigger) {
	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
	defer cancel()

	if err := trigger.Stop(stopCtx); err != nil {
		a.logger.ErrorContext(ctx, "Failed to stop trigger", "trigger_key", key, "error", err)
	}

	delete(a.running, key)
	a.logger.InfoContext(ctx, "Trigger stopped", "trigger_key", key)
}

// stop gracefully shuts down the poller and every running trigger.
func (a *Activator) stop(cancel context.CancelFunc) {
	a.logger.Info("Stopping activator")

	stopCtx, cancelStop := context.WithTimeout(context.Background(), stopTimeout)
	defer cancelStop()

	if err := a.poller.Stop(stopCtx); err != nil {
		a.logger.Error("Failed to stop schedule poller", "error", err)
	}

	a.mu.Lock()
	for key, trigger := range a.running {
		if err := trigger.Stop(stopCtx); err != nil {
			a.logger.Error("Failed to stop trigger", "trigger_key", key, "error", err)
		}
	}

	a.running = make(map[string]protocol.Trigger)
	a.mu.Unlock()

	if cancel != nil {
		cancel()
	}
}

func triggerKey(deploymentID, nodeID string) string {
	return deploymentID + ":" + nodeID
}

func factoryIDFor(nodeType string) string {
	switch nodeType {
	case models.NodeTypeTriggerWebhook:
		return "webhook"
	case models.NodeTypeTriggerQueue:
		return "queue"
	case models.NodeTypeTriggerEmail:
		return "email"
	default:
		return ""
	}
}

// triggerConfig merges the node's static inputs with the identifiers the
// trigger needs to attribute firings.
func triggerConfig(deploymentID string, node *models.WorkflowNode) map[string]any {
	config := make(map[string]any, len(node.Inputs)+2)

	for key, value := range node.Inputs {
		config[key] = value
	}

	config["deployment_id"] = deploymentID
	config["node_id"] = node.ID

	return config
}
