package protocol

import (
	"context"
	"time"
)

// StepRunner is the durable execution primitive handed to durable nodes.
//
// Do runs work exactly once per (execution, node, key): on first execution
// the returned value is marshaled and recorded before Do returns, and on
// replay the recorded value is decoded into result without invoking work. A
// failed work call records nothing, so the node's own error handling decides
// whether the step runs again. Keys must be issued in a deterministic order;
// the runner fails the invocation when a replayed key diverges from the
// recorded sequence.
//
// Sleep suspends the node for at least d. Short sleeps park in-process; long
// sleeps release the worker slot and resume the node by replay after the wake
// time. Both forms observe ctx cancellation.
type StepRunner interface {
	Do(ctx context.Context, key string, work func(context.Context) (any, error), result any) error
	Sleep(ctx context.Context, d time.Duration) error
}
