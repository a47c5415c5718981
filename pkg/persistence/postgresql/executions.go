package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

// ExecutionRepository handles execution database operations. The trigger
// payload and per-node state travel as JSONB documents; which payload field
// the document maps onto is decided by trigger_kind.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

const executionColumns = `
			id
		  , workflow_id
		  , deployment_id
		  , status
		  , trigger_kind
		  , trigger_payload
		  , node_executions
		  , error_message
		  , created_at
		  , started_at
		  , finished_at
`

// Create inserts a new execution.
func (r *ExecutionRepository) Create(ctx context.Context, execution *models.Execution) error {
	payloadJSON, nodesJSON, err := executionDocuments(execution)
	if err != nil {
		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	query := `
		INSERT INTO executions (
			id, workflow_id, deployment_id, status, trigger_kind,
			trigger_payload, node_executions, error_message,
			created_at, started_at, finished_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err = r.db.ExecContext(ctx, query,
		execution.ID, execution.WorkflowID, execution.DeploymentID,
		execution.Status, execution.TriggerKind, payloadJSON, nodesJSON,
		nullString(execution.ErrorMessage), execution.CreatedAt,
		execution.StartedAt, execution.FinishedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionExists)
		}

		return persistence.NewExecutionError("Create", execution.ID, err)
	}

	return nil
}

// GetByID retrieves an execution by its ID.
func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	query := `
		SELECT` + executionColumns + `
		FROM executions
		WHERE id = $1
	`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	return execution, nil
}

// Update overwrites an existing execution row.
func (r *ExecutionRepository) Update(ctx context.Context, execution *models.Execution) error {
	payloadJSON, nodesJSON, err := executionDocuments(execution)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	query := `
		UPDATE executions SET
			status = $2
		  , trigger_payload = $3
		  , node_executions = $4
		  , error_message = $5
		  , started_at = $6
		  , finished_at = $7
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		execution.ID, execution.Status, payloadJSON, nodesJSON,
		nullString(execution.ErrorMessage), execution.StartedAt, execution.FinishedAt)
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Update", execution.ID, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	return nil
}

// ListByWorkflow returns a workflow's executions ordered by creation time.
func (r *ExecutionRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error) {
	query := `
		SELECT` + executionColumns + `
		FROM executions
		WHERE workflow_id = $1
		ORDER BY created_at
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query executions of %s: %w", workflowID, err)
	}

	defer func() {
		if err := rows.Close(); err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var executions []*models.Execution

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan execution: %w", err)
		}

		executions = append(executions, execution)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating executions: %w", err)
	}

	return executions, nil
}

// Delete removes an execution row. Step logs are removed separately through
// StepRepository.DeleteSteps.
func (r *ExecutionRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM executions WHERE id = $1", id)
	if err != nil {
		return persistence.NewExecutionError("Delete", id, err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewExecutionError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewExecutionError("Delete", id, persistence.ErrExecutionNotFound)
	}

	return nil
}

// executionDocuments marshals the trigger payload and node state documents.
func executionDocuments(execution *models.Execution) (any, any, error) {
	var payload any

	switch execution.TriggerKind {
	case models.TriggerKindManual:
		payload = execution.TriggerData
	case models.TriggerKindWebhook:
		payload = execution.Webhook
	case models.TriggerKindEmail:
		payload = execution.Email
	case models.TriggerKindQueue:
		payload = execution.Queue
	case models.TriggerKindSchedule:
		payload = execution.Schedule
	default:
		return nil, nil, fmt.Errorf("unknown trigger kind %q", execution.TriggerKind)
	}

	payloadJSON, err := marshalJSONB(payload)
	if err != nil {
		return nil, nil, err
	}

	nodes := execution.NodeExecutions
	if nodes == nil {
		nodes = map[string]*models.NodeExecution{}
	}

	nodesJSON, err := marshalJSONB(nodes)
	if err != nil {
		return nil, nil, err
	}

	return payloadJSON, nodesJSON, nil
}

func scanExecution(row interface{ Scan(...any) error }) (*models.Execution, error) {
	var (
		execution    models.Execution
		payloadJSON  []byte
		nodesJSON    []byte
		errorMessage sql.NullString
		startedAt    sql.NullTime
		finishedAt   sql.NullTime
	)

	err := row.Scan(
		&execution.ID, &execution.WorkflowID, &execution.DeploymentID,
		&execution.Status, &execution.TriggerKind, &payloadJSON, &nodesJSON,
		&errorMessage, &execution.CreatedAt, &startedAt, &finishedAt)
	if err != nil {
		return nil, err
	}

	switch execution.TriggerKind {
	case models.TriggerKindManual:
		err = unmarshalJSONB(payloadJSON, &execution.TriggerData)
	case models.TriggerKindWebhook:
		err = unmarshalJSONB(payloadJSON, &execution.Webhook)
	case models.TriggerKindEmail:
		err = unmarshalJSONB(payloadJSON, &execution.Email)
	case models.TriggerKindQueue:
		err = unmarshalJSONB(payloadJSON, &execution.Queue)
	case models.TriggerKindSchedule:
		err = unmarshalJSONB(payloadJSON, &execution.Schedule)
	}

	if err != nil {
		return nil, err
	}

	execution.NodeExecutions = map[string]*models.NodeExecution{}
	if err := unmarshalJSONB(nodesJSON, &execution.NodeExecutions); err != nil {
		return nil, err
	}

	execution.ErrorMessage = errorMessage.String
	execution.StartedAt = timePtr(startedAt)
	execution.FinishedAt = timePtr(finishedAt)
	execution.CreatedAt = execution.CreatedAt.UTC()

	return &execution, nil
}
