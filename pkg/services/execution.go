package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/strandhq/strand/pkg/eventbus"
	"github.com/strandhq/strand/pkg/events"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/protocol"
)

// Execution creates executions and relays operator control requests. Both
// the API (manual runs) and the activator (trigger firings) go through
// CreateFromTrigger, so every execution is persisted and announced the same
// way regardless of how it started.
type Execution struct {
	persistence persistence.Persistence
	publisher   eventbus.EventPublisher
	logger      *slog.Logger
}

// NewExecution creates a new execution service.
func NewExecution(persistence persistence.Persistence, publisher eventbus.EventPublisher, logger *slog.Logger) *Execution {
	return &Execution{
		persistence: persistence,
		publisher:   publisher,
		logger:      logger.With("module", "execution-service"),
	}
}

// Start creates a manual execution against the workflow's current
// deployment.
func (s *Execution) Start(ctx context.Context, workflowID string, data map[string]any) (*models.Execution, error) {
	deployment, err := s.persistence.DeploymentRepository().CurrentByWorkflow(ctx, workflowID)
	if err != nil {
		if persistence.IsDeploymentNotFound(err) {
			return nil, NewConflictError("Start", "NOT_DEPLOYED",
				fmt.Sprintf("workflow %s has no deployment; publish it first", workflowID), ErrNotDeployed)
		}

		return nil, fmt.Errorf("failed to resolve deployment: %w", err)
	}

	if data == nil {
		data = map[string]any{}
	}

	return s.CreateFromTrigger(ctx, protocol.FiredTrigger{
		DeploymentID: deployment.ID,
		Kind:         models.TriggerKindManual,
		TriggerData:  data,
	})
}

// CreateFromTrigger persists a new execution carrying the firing's payload
// and announces it on the bus. The execution is stored idle first, then
// marked submitted once the announcement went out, so a crash between the
// two leaves a resubmittable idle row instead of a lost run.
func (s *Execution) CreateFromTrigger(ctx context.Context, fired protocol.FiredTrigger) (*models.Execution, error) {
	deployment, err := s.persistence.DeploymentRepository().GetByID(ctx, fired.DeploymentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load deployment %s: %w", fired.DeploymentID, err)
	}

	execution := models.NewExecution(uuid.New().String(), deployment, fired.Kind)
	fired.Apply(execution)

	if err := execution.ValidatePayload(); err != nil {
		return nil, fmt.Errorf("invalid trigger payload: %w", err)
	}

	if err := s.persistence.ExecutionRepository().Create(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to create execution: %w", err)
	}

	event := events.ExecutionCreated{
		BaseEvent:    events.NewBaseEvent(events.ExecutionCreatedEvent, execution.WorkflowID),
		ExecutionID:  execution.ID,
		DeploymentID: execution.DeploymentID,
		TriggerKind:  execution.TriggerKind,
	}

	if err := s.publisher.Publish(ctx, execution.ID, event); err != nil {
		return nil, fmt.Errorf("failed to announce execution %s: %w", execution.ID, err)
	}

	execution.Status = models.ExecutionStatusSubmitted

	if err := s.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
		return nil, fmt.Errorf("failed to mark execution submitted: %w", err)
	}

	s.logger.InfoContext(ctx, "Execution created",
		"execution_id", execution.ID,
		"deployment_id", execution.DeploymentID,
		"trigger_kind", execution.TriggerKind)

	return execution, nil
}

// Get returns an execution with its per-node state.
func (s *Execution) Get(ctx context.Context, executionID string) (*models.Execution, error) {
	return s.persistence.ExecutionRepository().GetByID(ctx, executionID)
}

// ListByWorkflow returns a workflow's executions.
func (s *Execution) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	return s.persistence.ExecutionRepository().ListByWorkflow(ctx, workflowID)
}

// Cancel requests cancellation of a running execution. Executions no worker
// has picked up yet are cancelled directly; for the rest the owning
// scheduler applies the transition at the next suspension point.
func (s *Execution) Cancel(ctx context.Context, executionID, reason string) (*models.Execution, error) {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status.IsTerminal() {
		return nil, NewConflictError("Cancel", "EXECUTION_FINISHED",
			fmt.Sprintf("execution %s is already %s", executionID, execution.Status), ErrExecutionFinished)
	}

	if execution.Status == models.ExecutionStatusIdle || execution.Status == models.ExecutionStatusSubmitted {
		now := time.Now().UTC()
		execution.Status = models.ExecutionStatusCancelled
		execution.FinishedAt = &now

		if err := s.persistence.ExecutionRepository().Update(ctx, execution); err != nil {
			return nil, fmt.Errorf("failed to cancel execution: %w", err)
		}
	}

	event := events.CancelRequested{
		BaseEvent:   events.NewBaseEvent(events.CancelRequestedEvent, execution.WorkflowID),
		ExecutionID: executionID,
		Reason:      reason,
	}

	if err := s.publisher.Publish(ctx, executionID, event); err != nil {
		return nil, fmt.Errorf("failed to publish cancel request: %w", err)
	}

	return execution, nil
}

// Pause requests a pause: the scheduler stops dispatching new nodes,
// in-flight nodes finish, and the execution lands in paused.
func (s *Execution) Pause(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusExecuting {
		return nil, NewConflictError("Pause", "EXECUTION_NOT_RUNNING",
			fmt.Sprintf("execution %s is %s", executionID, execution.Status), ErrExecutionNotRunning)
	}

	event := events.PauseRequested{
		BaseEvent:   events.NewBaseEvent(events.PauseRequestedEvent, execution.WorkflowID),
		ExecutionID: executionID,
	}

	if err := s.publisher.Publish(ctx, executionID, event); err != nil {
		return nil, fmt.Errorf("failed to publish pause request: %w", err)
	}

	return execution, nil
}

// Resume asks a worker to pick a paused execution back up. Completed nodes
// stay done; the scheduler's recovery path re-dispatches the rest.
func (s *Execution) Resume(ctx context.Context, executionID string) (*models.Execution, error) {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return nil, err
	}

	if execution.Status != models.ExecutionStatusPaused {
		return nil, NewConflictError("Resume", "EXECUTION_NOT_PAUSED",
			fmt.Sprintf("execution %s is %s", executionID, execution.Status), ErrExecutionNotPaused)
	}

	event := events.ResumeRequested{
		BaseEvent:   events.NewBaseEvent(events.ResumeRequestedEvent, execution.WorkflowID),
		ExecutionID: executionID,
	}

	if err := s.publisher.Publish(ctx, executionID, event); err != nil {
		return nil, fmt.Errorf("failed to publish resume request: %w", err)
	}

	return execution, nil
}
