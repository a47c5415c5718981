package engine

import (
	"errors"
	"fmt"
	"strings"
)

// Graph validation issues. Each issue wrapped into a ValidationError matches
// one of these sentinels so callers can test for a class of problem with
// errors.Is.
var (
	ErrEmptyWorkflow        = errors.New("workflow has no nodes")
	ErrDuplicateNodeID      = errors.New("duplicate node id")
	ErrUnknownNodeType      = errors.New("unknown node type")
	ErrDanglingEdge         = errors.New("edge references a missing node or port")
	ErrDisabledNodeEdge     = errors.New("edge references a disabled node")
	ErrKindMismatch         = errors.New("edge connects incompatible value kinds")
	ErrDuplicateTargetInput = errors.New("multiple edges target the same input")
	ErrRequiredInputMissing = errors.New("required input is not satisfiable")
	ErrTriggerPlacement     = errors.New("invalid trigger node placement")
	ErrInputSchemaViolation = errors.New("node inputs do not match the declared schema")
	ErrGraphCycle           = errors.New("workflow graph contains a cycle")
)

// Scheduler errors.
var (
	ErrAlreadyRunning  = errors.New("execution is already running on this worker")
	ErrNotRunning      = errors.New("execution is not running on this worker")
	ErrMissingSnapshot = errors.New("deployment has no workflow snapshot")
)

// ValidationError collects every issue found in one validation pass so the
// operator can fix the whole graph at once instead of replaying the publish
// per problem.
type ValidationError struct {
	WorkflowID string
	Issues     []error
}

func (e *ValidationError) Error() string {
	messages := make([]string, 0, len(e.Issues))
	for _, issue := range e.Issues {
		messages = append(messages, issue.Error())
	}

	return fmt.Sprintf("workflow %s is not executable: %s", e.WorkflowID, strings.Join(messages, "; "))
}

// Unwrap exposes the individual issues to errors.Is and errors.As.
func (e *ValidationError) Unwrap() []error {
	return e.Issues
}

// IsValidationError reports whether the error chain contains a graph
// validation failure.
func IsValidationError(err error) bool {
	var validation *ValidationError

	return errors.As(err, &validation)
}
