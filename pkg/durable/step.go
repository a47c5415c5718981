package durable

import (
	"context"

	"github.com/strandhq/strand/pkg/protocol"
)

// Step runs work as a typed durable step. On replay the recorded value is
// decoded into T without invoking work.
//
// This is a package-level generic function because Go does not allow generic
// methods on non-generic receiver types.
func Step[T any](ctx context.Context, runner protocol.StepRunner, key string, work func(context.Context) (T, error)) (T, error) {
	var result T

	err := runner.Do(ctx, key, func(ctx context.Context) (any, error) {
		return work(ctx)
	}, &result)

	return result, err
}

// Run executes a keyed step whose result is not needed.
func Run(ctx context.Context, runner protocol.StepRunner, key string, work func(context.Context) error) error {
	return runner.Do(ctx, key, func(ctx context.Context) (any, error) {
		return nil, work(ctx)
	}, nil)
}
