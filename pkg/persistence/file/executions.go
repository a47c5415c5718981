package file

import (
	"context"
	"os"
	"sort"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

const executionsDir = "executions"

// ExecutionRepository stores execution state, including per-node progress.
type ExecutionRepository struct {
	base *Persistence
}

// Create writes a new execution document.
func (er *ExecutionRepository) Create(_ context.Context, execution *models.Execution) error {
	er.base.mu.Lock()
	defer er.base.mu.Unlock()

	filePath := er.base.recordPath(executionsDir, execution.ID)

	if _, err := os.Stat(filePath); err == nil {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionExists)
	}

	if err := er.base.writeRecord(filePath, execution); err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

// GetByID retrieves an execution by its ID.
func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	var execution models.Execution

	found, err := er.base.readRecord(er.base.recordPath(executionsDir, id), &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

// Update overwrites an existing execution document.
func (er *ExecutionRepository) Update(_ context.Context, execution *models.Execution) error {
	er.base.mu.Lock()
	defer er.base.mu.Unlock()

	filePath := er.base.recordPath(executionsDir, execution.ID)

	if _, err := os.Stat(filePath); os.IsNotExist(err) {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	if err := er.base.writeRecord(filePath, execution); err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	return nil
}

// ListByWorkflow returns a workflow's executions ordered by creation time.
func (er *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	ids, err := er.base.recordIDs(executionsDir)
	if err != nil {
		return nil, err
	}

	var executions []*models.Execution

	for _, id := range ids {
		execution, err := er.GetByID(ctx, id)
		if err != nil {
			if persistence.IsExecutionNotFound(err) {
				continue
			}

			return nil, err
		}

		if execution.WorkflowID == workflowID {
			executions = append(executions, execution)
		}
	}

	sort.Slice(executions, func(i, j int) bool {
		return executions[i].CreatedAt.Before(executions[j].CreatedAt)
	})

	return executions, nil
}

// Delete removes an execution by its ID. The step log is kept; callers that
// want it gone use StepRepository.DeleteSteps.
func (er *ExecutionRepository) Delete(_ context.Context, id string) error {
	er.base.mu.Lock()
	defer er.base.mu.Unlock()

	err := os.Remove(er.base.recordPath(executionsDir, id))
	if err != nil {
		if os.IsNotExist(err) {
			return persistence.NewExecutionError("Delete", id, persistence.ErrExecutionNotFound)
		}

		return persistence.NewExecutionError("Delete", id, err)
	}

	return nil
}
