package testutil

import (
	"time"

	"github.com/strandhq/strand/pkg/models"
)

// Node builds an enabled workflow node.
func Node(id, nodeType string, inputs map[string]any) *models.WorkflowNode {
	return &models.WorkflowNode{
		ID:      id,
		Type:    nodeType,
		Name:    id,
		Inputs:  inputs,
		Enabled: true,
	}
}

// EdgeBetween builds an edge from one node's output port to another node's
// input port.
func EdgeBetween(id, sourceNode, sourcePort, targetNode, targetPort string) *models.Edge {
	return &models.Edge{
		ID:         id,
		SourcePort: models.MakePortID(sourceNode, sourcePort),
		TargetPort: models.MakePortID(targetNode, targetPort),
	}
}

// Workflow builds a published workflow around the given graph.
func Workflow(id string, nodes []*models.WorkflowNode, edges []*models.Edge) *models.Workflow {
	now := time.Now().UTC()

	return &models.Workflow{
		ID:        id,
		Name:      "workflow " + id,
		Status:    models.WorkflowStatusPublished,
		Nodes:     nodes,
		Edges:     edges,
		Owner:     "test-owner",
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Deployment snapshots the workflow as version 1.
func Deployment(id string, workflow *models.Workflow) *models.Deployment {
	return &models.Deployment{
		ID:         id,
		WorkflowID: workflow.ID,
		Version:    1,
		Snapshot:   workflow,
		CreatedAt:  time.Now().UTC(),
	}
}

// ManualExecution builds an idle execution with a manual trigger payload.
func ManualExecution(id string, deployment *models.Deployment, data map[string]any) *models.Execution {
	execution := models.NewExecution(id, deployment, models.TriggerKindManual)
	if data == nil {
		data = map[string]any{}
	}

	execution.TriggerData = data

	return execution
}
