package persistence

import (
	"errors"
	"fmt"
)

var (
	ErrWorkflowNotFound    = errors.New("workflow not found")
	ErrDeploymentNotFound  = errors.New("deployment not found")
	ErrExecutionNotFound   = errors.New("execution not found")
	ErrIntegrationNotFound = errors.New("integration not found")
	ErrScheduleNotFound    = errors.New("schedule not found")

	// ErrStepConflict signals that a step record with the same sequence
	// number already exists for the (execution, node) pair.
	ErrStepConflict = errors.New("step sequence already recorded")

	ErrWorkflowExists   = errors.New("workflow already exists")
	ErrDeploymentExists = errors.New("deployment version already exists")
	ErrExecutionExists  = errors.New("execution already exists")
)

// WorkflowError wraps storage failures on workflow operations with the
// operation name and workflow ID for context.
type WorkflowError struct {
	Op         string
	WorkflowID string
	Err        error
}

func (e *WorkflowError) Error() string {
	return fmt.Sprintf("workflow %s: %s: %s", e.WorkflowID, e.Op, e.Err)
}

func (e *WorkflowError) Unwrap() error {
	return e.Err
}

func NewWorkflowError(op, workflowID string, err error) *WorkflowError {
	return &WorkflowError{Op: op, WorkflowID: workflowID, Err: err}
}

// ExecutionError wraps storage failures on execution operations.
type ExecutionError struct {
	Op          string
	ExecutionID string
	Err         error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution %s: %s: %s", e.ExecutionID, e.Op, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

func NewExecutionError(op, executionID string, err error) *ExecutionError {
	return &ExecutionError{Op: op, ExecutionID: executionID, Err: err}
}

// StepError wraps storage failures on step log operations.
type StepError struct {
	Op          string
	ExecutionID string
	NodeID      string
	Seq         int
	Err         error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s/%s[%d]: %s: %s", e.ExecutionID, e.NodeID, e.Seq, e.Op, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

func NewStepError(op, executionID, nodeID string, seq int, err error) *StepError {
	return &StepError{Op: op, ExecutionID: executionID, NodeID: nodeID, Seq: seq, Err: err}
}

func IsWorkflowNotFound(err error) bool {
	return errors.Is(err, ErrWorkflowNotFound)
}

func IsDeploymentNotFound(err error) bool {
	return errors.Is(err, ErrDeploymentNotFound)
}

func IsExecutionNotFound(err error) bool {
	return errors.Is(err, ErrExecutionNotFound)
}

func IsIntegrationNotFound(err error) bool {
	return errors.Is(err, ErrIntegrationNotFound)
}

func IsScheduleNotFound(err error) bool {
	return errors.Is(err, ErrScheduleNotFound)
}

func IsStepConflict(err error) bool {
	return errors.Is(err, ErrStepConflict)
}
