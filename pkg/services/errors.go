// Package services implements the business operations behind the REST API:
// workflow CRUD, graph editing, publishing and execution control.
package services

import (
	"errors"
	"fmt"
)

// Validation errors (400 Bad Request).
var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrInvalidSortField = errors.New("invalid sort field")
	ErrInvalidSortOrder = errors.New("invalid sort order")
	ErrInvalidStatus    = errors.New("invalid workflow status")

	ErrNodesRequired = errors.New("workflow must have at least one enabled node")
	ErrInvalidGraph  = errors.New("workflow graph is not executable")
	ErrInvalidCron   = errors.New("invalid cron expression")

	ErrNodeNotFound = errors.New("node not found in workflow")
	ErrEdgeNotFound = errors.New("edge not found in workflow")
)

// Conflict errors (409 Conflict).
var (
	ErrWorkflowRetired   = errors.New("workflow is unpublished and read-only")
	ErrWorkflowPublished = errors.New("workflow is published; unpublish it first")
	ErrWorkflowNotLive   = errors.New("workflow is not published")
	ErrNotDeployed       = errors.New("workflow has no deployment")

	ErrExecutionFinished   = errors.New("execution already finished")
	ErrExecutionNotRunning = errors.New("execution is not running")
	ErrExecutionNotPaused  = errors.New("execution is not paused")
)

// ServiceError wraps service-level errors with operation context.
type ServiceError struct {
	Op      string // Operation name
	Code    string // Error code for API responses
	Message string // Human-readable message
	Err     error  // Underlying sentinel
}

func (e *ServiceError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}

	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *ServiceError) Unwrap() error {
	return e.Err
}

func (e *ServiceError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// IsValidationError reports whether an error should map to HTTP 400.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrInvalidSortField) ||
		errors.Is(err, ErrInvalidSortOrder) ||
		errors.Is(err, ErrInvalidStatus) ||
		errors.Is(err, ErrNodesRequired) ||
		errors.Is(err, ErrInvalidGraph) ||
		errors.Is(err, ErrInvalidCron) ||
		errors.Is(err, ErrNodeNotFound) ||
		errors.Is(err, ErrEdgeNotFound)
}

// IsConflictError reports whether an error should map to HTTP 409.
func IsConflictError(err error) bool {
	return errors.Is(err, ErrWorkflowRetired) ||
		errors.Is(err, ErrWorkflowPublished) ||
		errors.Is(err, ErrWorkflowNotLive) ||
		errors.Is(err, ErrNotDeployed) ||
		errors.Is(err, ErrExecutionFinished) ||
		errors.Is(err, ErrExecutionNotRunning) ||
		errors.Is(err, ErrExecutionNotPaused)
}

// NewValidationError creates a validation error with context.
func NewValidationError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// NewConflictError creates a conflict error with context.
func NewConflictError(op, code, message string, err error) *ServiceError {
	return &ServiceError{
		Op:      op,
		Code:    code,
		Message: message,
		Err:     err,
	}
}
