package models

import "time"

// WorkflowStatus represents the lifecycle state of a workflow.
type WorkflowStatus string

const (
	WorkflowStatusDraft       WorkflowStatus = "draft"       // Editable, not executable
	WorkflowStatusPublished   WorkflowStatus = "published"   // Has a current deployment
	WorkflowStatusUnpublished WorkflowStatus = "unpublished" // Historical, not executable
)

// Workflow is the editable graph definition. Executions never run against a
// Workflow directly but against an immutable Deployment snapshot of it.
type Workflow struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"        validate:"required,min=3"`
	Description string          `json:"description"`
	Status      WorkflowStatus  `json:"status"      validate:"required"`
	Nodes       []*WorkflowNode `json:"nodes"`
	Edges       []*Edge         `json:"edges"`
	Variables   map[string]any  `json:"variables,omitempty"`
	Metadata    map[string]any  `json:"metadata,omitempty"`
	Owner       string          `json:"owner"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	PublishedAt *time.Time      `json:"published_at,omitempty"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

// WorkflowNode is a node instance placed in a workflow graph. Inputs holds
// static values and operator overrides keyed by parameter name; values for
// connected inputs arrive over edges at execution time and take precedence.
type WorkflowNode struct {
	ID        string         `json:"id"       validate:"required"`
	Type      string         `json:"type"     validate:"required"`
	Name      string         `json:"name"     validate:"required,min=1"`
	Inputs    map[string]any `json:"inputs"`
	Enabled   bool           `json:"enabled"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
}

// Edge connects a source output port to a target input port. Port references
// use the "{node_id}:{port_name}" form (see MakePortID).
type Edge struct {
	ID         string `json:"id"`
	SourcePort string `json:"source_port" validate:"required"`
	TargetPort string `json:"target_port" validate:"required"`
}

// NodeByID returns the node with the given ID, or nil.
func (w *Workflow) NodeByID(id string) *WorkflowNode {
	for _, node := range w.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// IncomingEdges returns the edges whose target port belongs to the given node.
func (w *Workflow) IncomingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if targetNode, _, ok := ParsePortID(edge.TargetPort); ok && targetNode == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}

// OutgoingEdges returns the edges whose source port belongs to the given node.
func (w *Workflow) OutgoingEdges(nodeID string) []*Edge {
	var edges []*Edge

	for _, edge := range w.Edges {
		if sourceNode, _, ok := ParsePortID(edge.SourcePort); ok && sourceNode == nodeID {
			edges = append(edges, edge)
		}
	}

	return edges
}
