package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strandhq/strand/pkg/engine"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/triggers/schedule"
)

// Publishing turns editable workflows into immutable deployment snapshots.
// Every publish runs full graph validation, bumps the version and swaps the
// workflow's cron schedules over to the new deployment.
type Publishing struct {
	persistence persistence.Persistence
	validator   *engine.Validator
}

// NewPublishing creates a new publishing service. descriptors resolves node
// types during graph validation; the registry satisfies it.
func NewPublishing(persistence persistence.Persistence, descriptors engine.DescriptorSource) *Publishing {
	return &Publishing{
		persistence: persistence,
		validator:   engine.NewValidator(descriptors),
	}
}

// Publish validates the workflow graph, snapshots it into a new deployment
// and marks the workflow published. Returns the created deployment.
func (p *Publishing) Publish(ctx context.Context, workflowID string) (*models.Deployment, error) {
	workflow, err := p.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusUnpublished {
		return nil, NewConflictError("Publish", "WORKFLOW_RETIRED",
			fmt.Sprintf("workflow %s is unpublished and read-only", workflowID), ErrWorkflowRetired)
	}

	if err := p.validateForPublishing(workflow); err != nil {
		return nil, err
	}

	// Parse schedule inputs before touching storage so a bad cron
	// expression cannot leave a half-published workflow behind.
	schedules, err := scheduleSpecs(workflow)
	if err != nil {
		return nil, err
	}

	snapshot, err := cloneWorkflow(workflow)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot workflow %s: %w", workflowID, err)
	}

	version := 1

	previous, err := p.persistence.DeploymentRepository().CurrentByWorkflow(ctx, workflowID)

	switch {
	case err == nil:
		version = previous.Version + 1
	case persistence.IsDeploymentNotFound(err):
		previous = nil
	default:
		return nil, fmt.Errorf("failed to resolve current deployment: %w", err)
	}

	deployment := &models.Deployment{
		ID:         uuid.New().String(),
		WorkflowID: workflowID,
		Version:    version,
		Snapshot:   snapshot,
		CreatedAt:  time.Now().UTC(),
	}

	if err := p.persistence.DeploymentRepository().Create(ctx, deployment); err != nil {
		return nil, fmt.Errorf("failed to create deployment: %w", err)
	}

	if err := p.syncSchedules(ctx, deployment, previous, schedules); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	workflow.Status = models.WorkflowStatusPublished
	workflow.PublishedAt = &now
	workflow.UpdatedAt = now

	if err := p.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to mark workflow published: %w", err)
	}

	return deployment, nil
}

// Unpublish retires a published workflow: its schedules stop, no new
// executions start, existing deployments stay readable for old executions.
func (p *Publishing) Unpublish(ctx context.Context, workflowID string) (*models.Workflow, error) {
	workflow, err := p.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status != models.WorkflowStatusPublished {
		return nil, NewConflictError("Unpublish", "WORKFLOW_NOT_LIVE",
			fmt.Sprintf("workflow %s is not published", workflowID), ErrWorkflowNotLive)
	}

	current, err := p.persistence.DeploymentRepository().CurrentByWorkflow(ctx, workflowID)
	if err != nil && !persistence.IsDeploymentNotFound(err) {
		return nil, fmt.Errorf("failed to resolve current deployment: %w", err)
	}

	if current != nil {
		if err := schedule.Deregister(ctx, p.persistence.ScheduleRepository(), current.ID); err != nil {
			return nil, err
		}
	}

	workflow.Status = models.WorkflowStatusUnpublished
	workflow.UpdatedAt = time.Now().UTC()

	if err := p.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return nil, fmt.Errorf("failed to mark workflow unpublished: %w", err)
	}

	return workflow, nil
}

// CurrentDeployment returns the newest deployment of a workflow.
func (p *Publishing) CurrentDeployment(ctx context.Context, workflowID string) (*models.Deployment, error) {
	return p.persistence.DeploymentRepository().CurrentByWorkflow(ctx, workflowID)
}

// GetDeployment returns a deployment by ID.
func (p *Publishing) GetDeployment(ctx context.Context, deploymentID string) (*models.Deployment, error) {
	return p.persistence.DeploymentRepository().GetByID(ctx, deploymentID)
}

// ListDeployments returns a workflow's deployments ordered by version.
func (p *Publishing) ListDeployments(ctx context.Context, workflowID string) ([]*models.Deployment, error) {
	return p.persistence.DeploymentRepository().ListByWorkflow(ctx, workflowID)
}

func (p *Publishing) validateForPublishing(workflow *models.Workflow) error {
	enabled := 0

	for _, node := range workflow.Nodes {
		if node.Enabled {
			enabled++
		}
	}

	if enabled == 0 {
		return NewValidationError("Publish", "NODES_REQUIRED",
			"workflow must have at least one enabled node", ErrNodesRequired)
	}

	if err := p.validator.Validate(workflow); err != nil {
		var verr *engine.ValidationError
		if errors.As(err, &verr) {
			return NewValidationError("Publish", "INVALID_GRAPH", verr.Error(), ErrInvalidGraph)
		}

		return fmt.Errorf("graph validation failed: %w", err)
	}

	return nil
}

type scheduleSpec struct {
	nodeID string
	cron   string
}

// scheduleSpecs collects the cron expressions of enabled schedule trigger
// nodes, parsing each so malformed expressions fail publish with a 400.
func scheduleSpecs(workflow *models.Workflow) ([]scheduleSpec, error) {
	var specs []scheduleSpec

	for _, node := range workflow.Nodes {
		if node.Type != models.NodeTypeTriggerSchedule || !node.Enabled {
			continue
		}

		cron, _ := node.Inputs["cron"].(string)
		if cron == "" {
			return nil, NewValidationError("Publish", "INVALID_CRON",
				fmt.Sprintf("node %s has no cron expression", node.ID), ErrInvalidCron)
		}

		if err := models.ValidateCron(cron); err != nil {
			return nil, NewValidationError("Publish", "INVALID_CRON",
				fmt.Sprintf("node %s: %v", node.ID, err), ErrInvalidCron)
		}

		specs = append(specs, scheduleSpec{nodeID: node.ID, cron: cron})
	}

	return specs, nil
}

// syncSchedules moves the workflow's cron registrations from the previous
// deployment to the new one.
func (p *Publishing) syncSchedules(ctx context.Context, deployment, previous *models.Deployment, specs []scheduleSpec) error {
	repo := p.persistence.ScheduleRepository()

	if previous != nil {
		if err := schedule.Deregister(ctx, repo, previous.ID); err != nil {
			return err
		}
	}

	for _, spec := range specs {
		if _, err := schedule.Register(ctx, repo, deployment.ID, spec.nodeID, spec.cron); err != nil {
			return fmt.Errorf("failed to register schedule: %w", err)
		}
	}

	return nil
}

// cloneWorkflow deep-copies a workflow through JSON so later edits to the
// editable graph never reach a deployment snapshot.
func cloneWorkflow(workflow *models.Workflow) (*models.Workflow, error) {
	raw, err := json.Marshal(workflow)
	if err != nil {
		return nil, err
	}

	var snapshot models.Workflow
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, err
	}

	return &snapshot, nil
}
