package models

import "time"

// Deployment is an immutable, validated snapshot of a workflow graph.
// Executions reference a deployment so edits to the workflow never change
// runs already in flight.
type Deployment struct {
	ID         string    `json:"id"          validate:"required"`
	WorkflowID string    `json:"workflow_id" validate:"required"`
	Version    int       `json:"version"     validate:"required,min=1"`
	Snapshot   *Workflow `json:"snapshot"    validate:"required"`
	CreatedAt  time.Time `json:"created_at"`
}
