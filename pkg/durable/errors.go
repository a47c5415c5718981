// Package durable provides the checkpointed step primitive that lets node
// code survive crashes, suspensions and replays without re-issuing completed
// side effects.
package durable

import (
	"errors"
	"fmt"
	"time"
)

// ErrResultTooLarge is returned when a step result exceeds the configured
// size limit. Large payloads belong in the object store; keep step results
// to handles and metadata.
var ErrResultTooLarge = errors.New("step result exceeds size limit")

// SuspendError tells the scheduler to park the node and re-invoke it at
// ResumeAt. It flows out of Sleep through the node's Execute return; node
// code must not swallow it.
type SuspendError struct {
	ResumeAt time.Time
}

func (e *SuspendError) Error() string {
	return fmt.Sprintf("execution suspended until %s", e.ResumeAt.Format(time.RFC3339))
}

// IsSuspend extracts a suspension signal from an error chain.
func IsSuspend(err error) (*SuspendError, bool) {
	var suspend *SuspendError
	if errors.As(err, &suspend) {
		return suspend, true
	}

	return nil, false
}

// ReplayMismatchError reports that replayed code issued a different step than
// the one recorded at the same position. This means the node's control flow
// is nondeterministic; the invocation fails rather than returning a cached
// result for the wrong step.
type ReplayMismatchError struct {
	ExecutionID string
	NodeID      string
	Seq         int
	IssuedKey   string
	RecordedKey string
}

func (e *ReplayMismatchError) Error() string {
	return fmt.Sprintf("replay mismatch in node %s at step %d: code issued %q, log recorded %q",
		e.NodeID, e.Seq, e.IssuedKey, e.RecordedKey)
}

// IsReplayMismatch reports whether the error chain contains a replay mismatch.
func IsReplayMismatch(err error) bool {
	var mismatch *ReplayMismatchError

	return errors.As(err, &mismatch)
}
