// Package testutil provides in-memory test doubles and model builders shared
// across package test suites.
package testutil

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

// MemoryPersistence is a mutex-guarded in-memory persistence implementation.
// Values are cloned on every read and write so tests cannot alias stored
// state.
type MemoryPersistence struct {
	mu           sync.Mutex
	workflows    map[string]*models.Workflow
	deployments  map[string]*models.Deployment
	executions   map[string]*models.Execution
	steps        map[string][]*models.StepRecord
	integrations map[string]*models.Integration
	schedules    map[string]*models.Schedule
}

func NewMemoryPersistence() *MemoryPersistence {
	return &MemoryPersistence{
		workflows:    make(map[string]*models.Workflow),
		deployments:  make(map[string]*models.Deployment),
		executions:   make(map[string]*models.Execution),
		steps:        make(map[string][]*models.StepRecord),
		integrations: make(map[string]*models.Integration),
		schedules:    make(map[string]*models.Schedule),
	}
}

func (p *MemoryPersistence) WorkflowRepository() persistence.WorkflowRepository {
	return &memoryWorkflows{p}
}

func (p *MemoryPersistence) DeploymentRepository() persistence.DeploymentRepository {
	return &memoryDeployments{p}
}

func (p *MemoryPersistence) ExecutionRepository() persistence.ExecutionRepository {
	return &memoryExecutions{p}
}

func (p *MemoryPersistence) StepRepository() persistence.StepRepository {
	return &memorySteps{p}
}

func (p *MemoryPersistence) IntegrationRepository() persistence.IntegrationRepository {
	return &memoryIntegrations{p}
}

func (p *MemoryPersistence) ScheduleRepository() persistence.ScheduleRepository {
	return &memorySchedules{p}
}

func (p *MemoryPersistence) HealthCheck(_ context.Context) error {
	return nil
}

func (p *MemoryPersistence) Close(_ context.Context) error {
	return nil
}

func clone[T any](v *T) *T {
	data, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("testutil: clone marshal: %v", err))
	}

	out := new(T)
	if err := json.Unmarshal(data, out); err != nil {
		panic(fmt.Sprintf("testutil: clone unmarshal: %v", err))
	}

	return out
}

type memoryWorkflows struct{ p *MemoryPersistence }

func (r *memoryWorkflows) List(_ context.Context) ([]*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	out := make([]*models.Workflow, 0, len(r.p.workflows))
	for _, w := range r.p.workflows {
		out = append(out, clone(w))
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *memoryWorkflows) GetByID(_ context.Context, id string) (*models.Workflow, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	w, ok := r.p.workflows[id]
	if !ok {
		return nil, persistence.NewWorkflowError("GetByID", id, persistence.ErrWorkflowNotFound)
	}

	return clone(w), nil
}

func (r *memoryWorkflows) Save(_ context.Context, workflow *models.Workflow) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.workflows[workflow.ID] = clone(workflow)

	return nil
}

func (r *memoryWorkflows) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.workflows[id]; !ok {
		return persistence.NewWorkflowError("Delete", id, persistence.ErrWorkflowNotFound)
	}

	delete(r.p.workflows, id)

	return nil
}

type memoryDeployments struct{ p *MemoryPersistence }

func (r *memoryDeployments) Create(_ context.Context, deployment *models.Deployment) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.deployments[deployment.ID]; ok {
		return persistence.ErrDeploymentExists
	}

	r.p.deployments[deployment.ID] = clone(deployment)

	return nil
}

func (r *memoryDeployments) GetByID(_ context.Context, id string) (*models.Deployment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	d, ok := r.p.deployments[id]
	if !ok {
		return nil, persistence.ErrDeploymentNotFound
	}

	return clone(d), nil
}

func (r *memoryDeployments) CurrentByWorkflow(_ context.Context, workflowID string) (*models.Deployment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var current *models.Deployment

	for _, d := range r.p.deployments {
		if d.WorkflowID != workflowID {
			continue
		}

		if current == nil || d.Version > current.Version {
			current = d
		}
	}

	if current == nil {
		return nil, persistence.ErrDeploymentNotFound
	}

	return clone(current), nil
}

func (r *memoryDeployments) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Deployment, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var out []*models.Deployment

	for _, d := range r.p.deployments {
		if d.WorkflowID == workflowID {
			out = append(out, clone(d))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })

	return out, nil
}

type memoryExecutions struct{ p *MemoryPersistence }

func (r *memoryExecutions) Create(_ context.Context, execution *models.Execution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.executions[execution.ID]; ok {
		return persistence.NewExecutionError("Create", execution.ID, persistence.ErrExecutionExists)
	}

	r.p.executions[execution.ID] = clone(execution)

	return nil
}

func (r *memoryExecutions) GetByID(_ context.Context, id string) (*models.Execution, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	e, ok := r.p.executions[id]
	if !ok {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return clone(e), nil
}

func (r *memoryExecutions) Update(_ context.Context, execution *models.Execution) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.executions[execution.ID]; !ok {
		return persistence.NewExecutionError("Update", execution.ID, persistence.ErrExecutionNotFound)
	}

	r.p.executions[execution.ID] = clone(execution)

	return nil
}

func (r *memoryExecutions) ListByWorkflow(_ context.Context, workflowID string) ([]*models.Execution, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var out []*models.Execution

	for _, e := range r.p.executions {
		if e.WorkflowID == workflowID {
			out = append(out, clone(e))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })

	return out, nil
}

func (r *memoryExecutions) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.executions[id]; !ok {
		return persistence.NewExecutionError("Delete", id, persistence.ErrExecutionNotFound)
	}

	delete(r.p.executions, id)

	return nil
}

type memorySteps struct{ p *MemoryPersistence }

func stepKey(executionID, nodeID string) string {
	return executionID + "/" + nodeID
}

func (r *memorySteps) ListSteps(_ context.Context, executionID, nodeID string) ([]*models.StepRecord, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	records := r.p.steps[stepKey(executionID, nodeID)]

	out := make([]*models.StepRecord, 0, len(records))
	for _, record := range records {
		out = append(out, clone(record))
	}

	return out, nil
}

func (r *memorySteps) AppendStep(_ context.Context, record *models.StepRecord) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	key := stepKey(record.ExecutionID, record.NodeID)

	if record.Seq != len(r.p.steps[key]) {
		return persistence.NewStepError("AppendStep", record.ExecutionID, record.NodeID, record.Seq,
			persistence.ErrStepConflict)
	}

	r.p.steps[key] = append(r.p.steps[key], clone(record))

	return nil
}

func (r *memorySteps) DeleteSteps(_ context.Context, executionID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for key := range r.p.steps {
		if record := r.p.steps[key]; len(record) > 0 && record[0].ExecutionID == executionID {
			delete(r.p.steps, key)
		}
	}

	return nil
}

type memoryIntegrations struct{ p *MemoryPersistence }

func (r *memoryIntegrations) GetByID(_ context.Context, id string) (*models.Integration, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	integration, ok := r.p.integrations[id]
	if !ok {
		return nil, persistence.ErrIntegrationNotFound
	}

	return clone(integration), nil
}

func (r *memoryIntegrations) ListByOwner(_ context.Context, ownerID string) ([]*models.Integration, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var out []*models.Integration

	for _, integration := range r.p.integrations {
		if integration.OwnerID == ownerID {
			out = append(out, clone(integration))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })

	return out, nil
}

func (r *memoryIntegrations) Save(_ context.Context, integration *models.Integration) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.integrations[integration.ID] = clone(integration)

	return nil
}

func (r *memoryIntegrations) Delete(_ context.Context, id string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	if _, ok := r.p.integrations[id]; !ok {
		return persistence.ErrIntegrationNotFound
	}

	delete(r.p.integrations, id)

	return nil
}

type memorySchedules struct{ p *MemoryPersistence }

func (r *memorySchedules) GetByID(_ context.Context, id string) (*models.Schedule, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	schedule, ok := r.p.schedules[id]
	if !ok {
		return nil, persistence.ErrScheduleNotFound
	}

	return clone(schedule), nil
}

func (r *memorySchedules) Save(_ context.Context, schedule *models.Schedule) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	r.p.schedules[schedule.ID] = clone(schedule)

	return nil
}

func (r *memorySchedules) Due(_ context.Context, now time.Time, limit int) ([]*models.Schedule, error) {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	var out []*models.Schedule

	for _, schedule := range r.p.schedules {
		if schedule.IsDue(now) {
			out = append(out, clone(schedule))
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].NextDueAt.Before(out[j].NextDueAt) })

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

func (r *memorySchedules) DeleteByDeployment(_ context.Context, deploymentID string) error {
	r.p.mu.Lock()
	defer r.p.mu.Unlock()

	for id, schedule := range r.p.schedules {
		if schedule.DeploymentID == deploymentID {
			delete(r.p.schedules, id)
		}
	}

	return nil
}
