package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/strandhq/strand/pkg/engine"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
)

// CreateNodeRequest describes a node to add to a workflow graph.
type CreateNodeRequest struct {
	Type      string
	Name      string
	Inputs    map[string]any
	PositionX int
	PositionY int
	Enabled   bool
}

// UpdateNodeRequest describes changes to an existing node. The node type is
// immutable; replace the node to change it.
type UpdateNodeRequest struct {
	Name      string
	Inputs    map[string]any
	PositionX int
	PositionY int
	Enabled   bool
}

// ConnectRequest describes an edge between two ports, both in the
// "{node_id}:{port_name}" form.
type ConnectRequest struct {
	SourcePort string
	TargetPort string
}

// Node edits workflow graphs: nodes and the edges between them. Edits apply
// to the editable workflow only; deployments keep their snapshots.
type Node struct {
	persistence persistence.Persistence
	descriptors engine.DescriptorSource
}

// NewNode creates a new node service. descriptors is used to reject unknown
// node types at edit time; the registry satisfies it.
func NewNode(persistence persistence.Persistence, descriptors engine.DescriptorSource) *Node {
	return &Node{
		persistence: persistence,
		descriptors: descriptors,
	}
}

// CreateNode adds a node to the workflow graph.
func (n *Node) CreateNode(ctx context.Context, workflowID string, req *CreateNodeRequest) (*models.WorkflowNode, error) {
	workflow, err := n.editableWorkflow(ctx, "CreateNode", workflowID)
	if err != nil {
		return nil, err
	}

	if _, err := n.descriptors.NodeDescriptor(req.Type); err != nil {
		return nil, NewValidationError("CreateNode", "UNKNOWN_NODE_TYPE",
			fmt.Sprintf("unknown node type %q", req.Type), ErrInvalidRequest)
	}

	node := &models.WorkflowNode{
		ID:        uuid.New().String(),
		Type:      req.Type,
		Name:      req.Name,
		Inputs:    req.Inputs,
		PositionX: req.PositionX,
		PositionY: req.PositionY,
		Enabled:   req.Enabled,
	}

	if node.Inputs == nil {
		node.Inputs = make(map[string]any)
	}

	workflow.Nodes = append(workflow.Nodes, node)

	if err := n.save(ctx, workflow); err != nil {
		return nil, err
	}

	return node, nil
}

// GetNode retrieves a node from the workflow graph.
func (n *Node) GetNode(ctx context.Context, workflowID, nodeID string) (*models.WorkflowNode, error) {
	workflow, err := n.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return nil, NewValidationError("GetNode", "NODE_NOT_FOUND",
			fmt.Sprintf("node %s not found in workflow %s", nodeID, workflowID), ErrNodeNotFound)
	}

	return node, nil
}

// UpdateNode updates a node's name, inputs, position and enabled flag.
func (n *Node) UpdateNode(ctx context.Context, workflowID, nodeID string, req *UpdateNodeRequest) (*models.WorkflowNode, error) {
	workflow, err := n.editableWorkflow(ctx, "UpdateNode", workflowID)
	if err != nil {
		return nil, err
	}

	node := workflow.NodeByID(nodeID)
	if node == nil {
		return nil, NewValidationError("UpdateNode", "NODE_NOT_FOUND",
			fmt.Sprintf("node %s not found in workflow %s", nodeID, workflowID), ErrNodeNotFound)
	}

	node.Name = req.Name
	node.Inputs = req.Inputs
	node.PositionX = req.PositionX
	node.PositionY = req.PositionY
	node.Enabled = req.Enabled

	if node.Inputs == nil {
		node.Inputs = make(map[string]any)
	}

	if err := n.save(ctx, workflow); err != nil {
		return nil, err
	}

	return node, nil
}

// DeleteNode removes a node and every edge touching it.
func (n *Node) DeleteNode(ctx context.Context, workflowID, nodeID string) error {
	workflow, err := n.editableWorkflow(ctx, "DeleteNode", workflowID)
	if err != nil {
		return err
	}

	if workflow.NodeByID(nodeID) == nil {
		return NewValidationError("DeleteNode", "NODE_NOT_FOUND",
			fmt.Sprintf("node %s not found in workflow %s", nodeID, workflowID), ErrNodeNotFound)
	}

	nodes := workflow.Nodes[:0]

	for _, node := range workflow.Nodes {
		if node.ID != nodeID {
			nodes = append(nodes, node)
		}
	}

	workflow.Nodes = nodes

	edges := workflow.Edges[:0]

	for _, edge := range workflow.Edges {
		sourceNode, _, _ := models.ParsePortID(edge.SourcePort)
		targetNode, _, _ := models.ParsePortID(edge.TargetPort)

		if sourceNode != nodeID && targetNode != nodeID {
			edges = append(edges, edge)
		}
	}

	workflow.Edges = edges

	return n.save(ctx, workflow)
}

// Connect adds an edge between two ports. Port existence and kind
// compatibility are enforced at publish time; here only structural rules
// apply so editors can wire incomplete graphs.
func (n *Node) Connect(ctx context.Context, workflowID string, req *ConnectRequest) (*models.Edge, error) {
	workflow, err := n.editableWorkflow(ctx, "Connect", workflowID)
	if err != nil {
		return nil, err
	}

	sourceNode, _, ok := models.ParsePortID(req.SourcePort)
	if !ok {
		return nil, NewValidationError("Connect", "INVALID_PORT",
			fmt.Sprintf("source %q is not a port reference", req.SourcePort), ErrInvalidRequest)
	}

	targetNode, _, ok := models.ParsePortID(req.TargetPort)
	if !ok {
		return nil, NewValidationError("Connect", "INVALID_PORT",
			fmt.Sprintf("target %q is not a port reference", req.TargetPort), ErrInvalidRequest)
	}

	if workflow.NodeByID(sourceNode) == nil {
		return nil, NewValidationError("Connect", "NODE_NOT_FOUND",
			fmt.Sprintf("node %s not found in workflow %s", sourceNode, workflowID), ErrNodeNotFound)
	}

	if workflow.NodeByID(targetNode) == nil {
		return nil, NewValidationError("Connect", "NODE_NOT_FOUND",
			fmt.Sprintf("node %s not found in workflow %s", targetNode, workflowID), ErrNodeNotFound)
	}

	for _, edge := range workflow.Edges {
		if edge.TargetPort == req.TargetPort {
			return nil, NewValidationError("Connect", "TARGET_OCCUPIED",
				fmt.Sprintf("input %s already has an edge", req.TargetPort), ErrInvalidRequest)
		}
	}

	edge := &models.Edge{
		ID:         uuid.New().String(),
		SourcePort: req.SourcePort,
		TargetPort: req.TargetPort,
	}

	workflow.Edges = append(workflow.Edges, edge)

	if err := n.save(ctx, workflow); err != nil {
		return nil, err
	}

	return edge, nil
}

// Disconnect removes an edge by ID.
func (n *Node) Disconnect(ctx context.Context, workflowID, edgeID string) error {
	workflow, err := n.editableWorkflow(ctx, "Disconnect", workflowID)
	if err != nil {
		return err
	}

	edges := workflow.Edges[:0]
	found := false

	for _, edge := range workflow.Edges {
		if edge.ID == edgeID {
			found = true

			continue
		}

		edges = append(edges, edge)
	}

	if !found {
		return NewValidationError("Disconnect", "EDGE_NOT_FOUND",
			fmt.Sprintf("edge %s not found in workflow %s", edgeID, workflowID), ErrEdgeNotFound)
	}

	workflow.Edges = edges

	return n.save(ctx, workflow)
}

func (n *Node) editableWorkflow(ctx context.Context, op, workflowID string) (*models.Workflow, error) {
	workflow, err := n.persistence.WorkflowRepository().GetByID(ctx, workflowID)
	if err != nil {
		return nil, err
	}

	if workflow.Status == models.WorkflowStatusUnpublished {
		return nil, NewConflictError(op, "WORKFLOW_RETIRED",
			fmt.Sprintf("workflow %s is unpublished and read-only", workflowID), ErrWorkflowRetired)
	}

	return workflow, nil
}

func (n *Node) save(ctx context.Context, workflow *models.Workflow) error {
	workflow.UpdatedAt = time.Now().UTC()

	if err := n.persistence.WorkflowRepository().Save(ctx, workflow); err != nil {
		return fmt.Errorf("failed to save workflow %s: %w", workflow.ID, err)
	}

	return nil
}
