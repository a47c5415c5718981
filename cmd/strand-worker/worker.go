package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/strandhq/strand/pkg/engine"
	"github.com/strandhq/strand/pkg/eventbus"
	"github.com/strandhq/strand/pkg/events"
	"github.com/strandhq/strand/pkg/integrations"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/objectstore"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/registry"
)

const (
	envPrefix    = "STRAND_ENV_"
	secretPrefix = "STRAND_SECRET_"
)

// WorkerManager consumes execution dispatch and control events and drives
// them through the scheduler.
type WorkerManager struct {
	id          string
	logger      *slog.Logger
	persistence persistence.Persistence
	scheduler   *engine.Scheduler
	dispatchBus eventbus.EventBus
	controlBus  eventbus.EventBus
}

func NewWorkerManager(
	id string,
	persistence persistence.Persistence,
	dispatchBus eventbus.EventBus,
	controlBus eventbus.EventBus,
	registry *registry.Registry,
	tokens *integrations.Manager,
	objects *objectstore.Store,
	logger *slog.Logger,
) *WorkerManager {
	scheduler := engine.NewScheduler(
		engine.Config{
			WorkerID: id,
			Env:      envWithPrefix(envPrefix),
			Secrets:  envWithPrefix(secretPrefix),
		},
		persistence,
		dispatchBus,
		registry,
		tokens,
		objects,
		logger,
	)

	return &WorkerManager{
		id:          id,
		logger:      logger.With("module", "strand-worker", "worker_id", id),
		persistence: persistence,
		scheduler:   scheduler,
		dispatchBus: dispatchBus,
		controlBus:  controlBus,
	}
}

func (w *WorkerManager) Start(ctx context.Context) error {
	w.logger.InfoContext(ctx, "Starting worker manager")

	// Resume requests ride the dispatch bus so exactly one worker picks the
	// paused execution back up; cancel and pause must reach the owner, so
	// they ride the broadcast control bus.
	if err := w.dispatchBus.Handle(events.ExecutionCreatedEvent, w.handleExecutionCreated); err != nil {
		return err
	}

	if err := w.dispatchBus.Handle(events.ResumeRequestedEvent, w.handleResumeRequested); err != nil {
		return err
	}

	if err := w.controlBus.Handle(events.CancelRequestedEvent, w.handleCancelRequested); err != nil {
		return err
	}

	if err := w.controlBus.Handle(events.PauseRequestedEvent, w.handlePauseRequested); err != nil {
		return err
	}

	if err := w.dispatchBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to dispatch bus", "error", err)

		return err
	}

	if err := w.controlBus.Subscribe(ctx); err != nil {
		w.logger.ErrorContext(ctx, "Failed to subscribe to control bus", "error", err)

		return err
	}

	w.logger.InfoContext(ctx, "Worker started successfully")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	<-sigChan
	w.logger.InfoContext(ctx, "Shutting down worker...")

	return nil
}

func (w *WorkerManager) handleExecutionCreated(ctx context.Context, event any) error {
	createdEvent, ok := event.(*events.ExecutionCreated)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ExecutionCreated")

		return nil
	}

	logger := w.logger.With(
		"execution_id", createdEvent.ExecutionID,
		"deployment_id", createdEvent.DeploymentID,
		"event_id", createdEvent.ID,
	)
	logger.InfoContext(ctx, "Processing execution created event")

	return w.runExecution(ctx, logger, createdEvent.ExecutionID)
}

// handleResumeRequested flips a paused execution back to submitted and runs
// it. Run skips paused executions, so the flip happens here, on the worker
// that won the message.
func (w *WorkerManager) handleResumeRequested(ctx context.Context, event any) error {
	resumeEvent, ok := event.(*events.ResumeRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for ResumeRequested")

		return nil
	}

	logger := w.logger.With("execution_id", resumeEvent.ExecutionID, "event_id", resumeEvent.ID)
	logger.InfoContext(ctx, "Processing resume request")

	execution, err := w.persistence.ExecutionRepository().GetByID(ctx, resumeEvent.ExecutionID)
	if err != nil {
		if persistence.IsExecutionNotFound(err) {
			logger.WarnContext(ctx, "Resume requested for unknown execution")

			return nil
		}

		return err
	}

	if execution.Status != models.ExecutionStatusPaused {
		logger.InfoContext(ctx, "Execution is not paused, ignoring resume", "status", execution.Status)

		return nil
	}

	execution.Status = models.ExecutionStatusSubmitted
	if err := w.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
		return err
	}

	return w.runExecution(ctx, logger, resumeEvent.ExecutionID)
}

func (w *WorkerManager) handleCancelRequested(ctx context.Context, event any) error {
	cancelEvent, ok := event.(*events.CancelRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for CancelRequested")

		return nil
	}

	if !w.scheduler.Running(cancelEvent.ExecutionID) {
		// Another worker owns this execution, or it already finished
		return nil
	}

	w.logger.InfoContext(ctx, "Cancelling execution",
		"execution_id", cancelEvent.ExecutionID, "reason", cancelEvent.Reason)

	if err := w.scheduler.Cancel(cancelEvent.ExecutionID, cancelEvent.Reason); err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			return nil
		}

		return err
	}

	return nil
}

func (w *WorkerManager) handlePauseRequested(ctx context.Context, event any) error {
	pauseEvent, ok := event.(*events.PauseRequested)
	if !ok {
		w.logger.ErrorContext(ctx, "Invalid event type for PauseRequested")

		return nil
	}

	if !w.scheduler.Running(pauseEvent.ExecutionID) {
		return nil
	}

	w.logger.InfoContext(ctx, "Pausing execution", "execution_id", pauseEvent.ExecutionID)

	if err := w.scheduler.Pause(pauseEvent.ExecutionID); err != nil {
		if errors.Is(err, engine.ErrNotRunning) {
			return nil
		}

		return err
	}

	return nil
}

func (w *WorkerManager) runExecution(ctx context.Context, logger *slog.Logger, executionID string) error {
	status, err := w.scheduler.Run(ctx, executionID)
	if err != nil {
		if errors.Is(err, engine.ErrAlreadyRunning) {
			// Redelivered while the first delivery is still being worked
			logger.WarnContext(ctx, "Execution already running on this worker")

			return nil
		}

		logger.ErrorContext(ctx, "Failed to run execution", "error", err)

		return err
	}

	logger.InfoContext(ctx, "Execution run finished", "status", status)

	return nil
}

// envWithPrefix collects prefixed process environment variables into the map
// nodes see through their execution context.
func envWithPrefix(prefix string) map[string]string {
	values := make(map[string]string)

	for _, entry := range os.Environ() {
		name, value, found := strings.Cut(entry, "=")
		if !found || !strings.HasPrefix(name, prefix) {
			continue
		}

		values[strings.TrimPrefix(name, prefix)] = value
	}

	return values
}
