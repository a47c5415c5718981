// Package web provides HTTP request and response types for the workflow API.
package web

// CreateWorkflowRequest represents the request body for creating a new workflow.
type CreateWorkflowRequest struct {
	Name        string         `json:"name"               validate:"required,min=3"`
	Description string         `json:"description"`
	Variables   map[string]any `json:"variables,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
	Owner       string         `json:"owner"              validate:"required"`
}

// UpdateWorkflowRequest represents the request body for updating an existing
// workflow. All fields are optional to support partial updates.
type UpdateWorkflowRequest struct {
	Name        *string        `json:"name,omitempty"        validate:"omitempty,min=3"`
	Description *string        `json:"description,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	Metadata    map[string]any `json:"metadata,omitempty"`
}

// CreateNodeRequest represents the request body for adding a node to a
// workflow graph. Inputs carries the node's static configuration, literal
// values and "{{ ... }}" templates keyed by input port name.
type CreateNodeRequest struct {
	Type      string         `json:"type"       validate:"required"`
	Name      string         `json:"name"       validate:"required,min=1"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
	Enabled   bool           `json:"enabled"`
}

// UpdateNodeRequest represents the request body for updating an existing
// node. The node type is immutable; replace the node to change it.
type UpdateNodeRequest struct {
	Name      string         `json:"name"       validate:"required,min=1"`
	Inputs    map[string]any `json:"inputs,omitempty"`
	PositionX int            `json:"position_x"`
	PositionY int            `json:"position_y"`
	Enabled   bool           `json:"enabled"`
}

// ConnectRequest represents the request body for wiring an edge between two
// ports, both in the "{node_id}:{port_name}" form.
type ConnectRequest struct {
	SourcePort string `json:"source_port" validate:"required"`
	TargetPort string `json:"target_port" validate:"required"`
}

// StartExecutionRequest represents the request body for starting a manual
// execution. Data becomes the trigger:manual node's payload.
type StartExecutionRequest struct {
	Data map[string]any `json:"data,omitempty"`
}

// CancelExecutionRequest represents the request body for cancelling an
// execution.
type CancelExecutionRequest struct {
	Reason string `json:"reason,omitempty"`
}
