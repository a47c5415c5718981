// Package persistence provides the storage abstraction for workflows,
// deployments, executions, step logs, integrations and schedules.
package persistence

import (
	"context"
	"time"

	"github.com/strandhq/strand/pkg/models"
)

// Persistence exposes one repository per aggregate. Implementations decide
// the storage engine; file and PostgreSQL implementations ship in
// subpackages.
type Persistence interface {
	WorkflowRepository() WorkflowRepository
	DeploymentRepository() DeploymentRepository
	ExecutionRepository() ExecutionRepository
	StepRepository() StepRepository
	IntegrationRepository() IntegrationRepository
	ScheduleRepository() ScheduleRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

type WorkflowRepository interface {
	List(ctx context.Context) ([]*models.Workflow, error)
	GetByID(ctx context.Context, id string) (*models.Workflow, error)
	Save(ctx context.Context, workflow *models.Workflow) error
	Delete(ctx context.Context, id string) error
}

type DeploymentRepository interface {
	Create(ctx context.Context, deployment *models.Deployment) error
	GetByID(ctx context.Context, id string) (*models.Deployment, error)

	// CurrentByWorkflow returns the highest-version deployment of a workflow.
	CurrentByWorkflow(ctx context.Context, workflowID string) (*models.Deployment, error)
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Deployment, error)
}

type ExecutionRepository interface {
	Create(ctx context.Context, execution *models.Execution) error
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	Update(ctx context.Context, execution *models.Execution) error
	ListByWorkflow(ctx context.Context, workflowID string) ([]*models.Execution, error)
	Delete(ctx context.Context, id string) error
}

// StepRepository persists the durable step log. AppendStep must reject a
// record whose sequence number already exists for (execution, node): two
// workers replaying the same node must not both record the same step.
type StepRepository interface {
	ListSteps(ctx context.Context, executionID, nodeID string) ([]*models.StepRecord, error)
	AppendStep(ctx context.Context, record *models.StepRecord) error
	DeleteSteps(ctx context.Context, executionID string) error
}

type IntegrationRepository interface {
	GetByID(ctx context.Context, id string) (*models.Integration, error)
	ListByOwner(ctx context.Context, ownerID string) ([]*models.Integration, error)
	Save(ctx context.Context, integration *models.Integration) error
	Delete(ctx context.Context, id string) error
}

type ScheduleRepository interface {
	GetByID(ctx context.Context, id string) (*models.Schedule, error)
	Save(ctx context.Context, schedule *models.Schedule) error

	// Due returns active schedules with NextDueAt at or before now.
	Due(ctx context.Context, now time.Time, limit int) ([]*models.Schedule, error)
	DeleteByDeployment(ctx context.Context, deploymentID string) error
}
