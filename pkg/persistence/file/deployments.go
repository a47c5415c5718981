package file

import (
	"context"
	"errors"
	"os"
	"sort"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

const deploymentsDir = "deployments"

// DeploymentRepository stores immutable deployment snapshots.
type DeploymentRepository struct {
	base *Persistence
}

// Create writes a new deployment. Deployments are immutable, so an existing
// document with the same ID is a conflict.
func (dr *DeploymentRepository) Create(_ context.Context, deployment *models.Deployment) error {
	dr.base.mu.Lock()
	defer dr.base.mu.Unlock()

	filePath := dr.base.recordPath(deploymentsDir, deployment.ID)

	if _, err := os.Stat(filePath); err == nil {
		return persistence.ErrDeploymentExists
	}

	return dr.base.writeRecord(filePath, deployment)
}

// GetByID retrieves a deployment by its ID.
func (dr *DeploymentRepository) GetByID(_ context.Context, id string) (*models.Deployment, error) {
	var deployment models.Deployment

	found, err := dr.base.readRecord(dr.base.recordPath(deploymentsDir, id), &deployment)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, persistence.ErrDeploymentNotFound
	}

	return &deployment, nil
}

// CurrentByWorkflow returns the highest-version deployment of a workflow.
func (dr *DeploymentRepository) CurrentByWorkflow(ctx context.Context, workflowID string) (*models.Deployment, error) {
	deployments, err := dr.ListByWorkflow(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if len(deployments) == 0 {
		return nil, persistence.ErrDeploymentNotFound
	}

	return deployments[len(deployments)-1], nil
}

// ListByWorkflow returns a workflow's deployments ordered by version.
func (dr *DeploymentRepository) ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Deployment, error) {
	ids, err := dr.base.recordIDs(deploymentsDir)
	if err != nil {
		return nil, err
	}

	var deployments []*models.Deployment

	for _, id := range ids {
		deployment, err := dr.GetByID(ctx, id)
		if err != nil {
			if errors.Is(err, persistence.ErrDeploymentNotFound) {
				continue
			}

			return nil, err
		}

		if deployment.WorkflowID == workflowID {
			deployments = append(deployments, deployment)
		}
	}

	sort.Slice(deployments, func(i, j int) bool {
		return deployments[i].Version < deployments[j].Version
	})

	return deployments, nil
}
