package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

// DeploymentRepository handles deployment snapshot database operations.
type DeploymentRepository struct {
	db *sql.DB
}

// Create inserts a new deployment. Deployments are immutable; conflicts on
// the ID or the (workflow, version) pair are rejected.
func (r *DeploymentRepository) Create(ctx context.Context, deployment *models.Deployment) error {
	snapshotJSON, err := marshalJSONB(deployment.Snapshot)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO deployments (id, workflow_id, version, snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = r.db.ExecContext(ctx, query,
		deployment.ID, deployment.WorkflowID, deployment.Version, snapshotJSON, deployment.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return persistence.ErrDeploymentExists
		}

		return fmt.Errorf("failed to insert deployment %s: %w", deployment.ID, err)
	}

	return nil
}

// GetByID retrieves a deployment by its ID.
func (r *DeploymentRepository) GetByID(ctx context.Context, id string) (*models.Deployment, error) {
	query := `
		SELECT id, workflow_id, version, snapshot, created_at
		FROM deployments
		WHERE id = $1
	`

	deployment, err := scanDeployment(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDeploymentNotFound
		}

		return nil, fmt.Errorf("failed to scan deployment %s: %w", id, err)
	}

	return deployment, nil
}

// CurrentByWorkflow returns the highest-version deployment of a workflow.
func (r *DeploymentRepository) CurrentByWorkflow(ctx context.Context, workflowID string) (*models.Deployment, error) {
	query := `
		SELECT id, workflow_id, version, snapshot, created_at
		FROM deployments
		WHERE workflow_id = $1
		ORDER BY version DESC
		LIMIT 1
	`

	deployment, err := scanDeployment(r.db.QueryRowContext(ctx, query, workflowID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.ErrDeploymentNotFound
		}

		return nil, fmt.Errorf("failed to scan current deployment of %s: %w", workflowID, err)
	}

	return deployment, nil
}

// ListByWorkflow returns a workflow's deployments ordered by version.
func (r *DeploymentRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Deployment, error) {
	query := `
		SELECT id, workflow_id, version, snapshot, created_at
		FROM deployments
		WHERE workflow_id = $1
		ORDER BY version
	`

	rows, err := r.db.QueryContext(ctx, query, workflowID)
	if err != nil {
		return nil, fmt.Errorf("failed to query deployments of %s: %w", workflowID, err)
	}

	defer func() { _ = rows.Close() }()

	var deployments []*models.Deployment

	for rows.Next() {
		deployment, err := scanDeployment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan deployment: %w", err)
		}

		deployments = append(deployments, deployment)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating deployments: %w", err)
	}

	return deployments, nil
}

func scanDeployment(row interface{ Scan(...any) error }) (*models.Deployment, error) {
	var (
		deployment   models.Deployment
		snapshotJSON []byte
	)

	err := row.Scan(&deployment.ID, &deployment.WorkflowID, &deployment.Version,
		&snapshotJSON, &deployment.CreatedAt)
	if err != nil {
		return nil, err
	}

	if err := unmarshalJSONB(snapshotJSON, &deployment.Snapshot); err != nil {
		return nil, err
	}

	return &deployment, nil
}
