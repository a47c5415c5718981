package durable

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/strandhq/strand/pkg/models"
)

const (
	// DefaultMaxResultSize bounds marshaled step results.
	DefaultMaxResultSize = 64 * 1024

	// DefaultParkThreshold separates in-process sleeps from suspensions that
	// release the worker slot.
	DefaultParkThreshold = 30 * time.Second

	sleepKey = "sleep"
)

// StepLog persists step records for one execution. Append must be atomic per
// (execution, node): two writers racing on the same sequence number must not
// both succeed.
type StepLog interface {
	ListSteps(ctx context.Context, executionID, nodeID string) ([]*models.StepRecord, error)
	AppendStep(ctx context.Context, record *models.StepRecord) error
}

// Runner executes durable steps for a single node invocation. It walks the
// persisted step log positionally: while records remain, issued steps are
// checked against them and answered from the log; past the end, work actually
// runs and each result is persisted before Do returns.
//
// A Runner is created fresh for every invocation and must not be reused.
type Runner struct {
	log         stepLogWriter
	executionID string
	nodeID      string
	records     []*models.StepRecord
	logger      *slog.Logger

	maxResultSize int
	parkThreshold time.Duration

	mu   sync.Mutex
	next int
}

type stepLogWriter interface {
	AppendStep(ctx context.Context, record *models.StepRecord) error
}

// Option configures a Runner.
type Option func(*Runner)

// WithMaxResultSize overrides the marshaled result size limit.
func WithMaxResultSize(limit int) Option {
	return func(r *Runner) {
		r.maxResultSize = limit
	}
}

// WithParkThreshold overrides the duration at which Sleep suspends instead of
// blocking in-process.
func WithParkThreshold(threshold time.Duration) Option {
	return func(r *Runner) {
		r.parkThreshold = threshold
	}
}

// WithLogger attaches a logger for replay diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger
	}
}

// NewRunner loads the step log for (executionID, nodeID) and returns a
// runner positioned for replay.
func NewRunner(ctx context.Context, log StepLog, executionID, nodeID string, opts ...Option) (*Runner, error) {
	records, err := log.ListSteps(ctx, executionID, nodeID)
	if err != nil {
		return nil, fmt.Errorf("load step log for node %s: %w", nodeID, err)
	}

	runner := &Runner{
		log:           log,
		executionID:   executionID,
		nodeID:        nodeID,
		records:       records,
		logger:        slog.Default(),
		maxResultSize: DefaultMaxResultSize,
		parkThreshold: DefaultParkThreshold,
	}

	for _, opt := range opts {
		opt(runner)
	}

	return runner, nil
}

// Do runs work under the given step key, or answers from the log on replay.
//
// On first execution the returned value is marshaled, size-checked and
// appended to the log before Do returns; a failed work call records nothing.
// In both paths the value reaches result (a pointer, may be nil) via JSON,
// so first run and replay observe identical decoded shapes.
func (r *Runner) Do(ctx context.Context, key string, work func(context.Context) (any, error), result any) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.peek(); ok {
		if record.Kind != models.StepKindStep || record.Key != key {
			return r.mismatch(key, record)
		}

		r.next++

		r.logger.Debug("replayed step from log",
			"node_id", r.nodeID, "step", key, "seq", record.Seq)

		return decodeResult(record.Result, result)
	}

	value, err := work(ctx)
	if err != nil {
		// Not recorded: the step runs again on the next attempt
		return fmt.Errorf("step %q: %w", key, err)
	}

	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("step %q: marshal result: %w", key, err)
	}

	if len(payload) > r.maxResultSize {
		return fmt.Errorf("step %q: %w (%d bytes)", key, ErrResultTooLarge, len(payload))
	}

	record := &models.StepRecord{
		ExecutionID: r.executionID,
		NodeID:      r.nodeID,
		Seq:         r.next,
		Key:         key,
		Kind:        models.StepKindStep,
		Result:      payload,
		CompletedAt: time.Now().UTC(),
	}

	if err := r.log.AppendStep(ctx, record); err != nil {
		return fmt.Errorf("step %q: persist record: %w", key, err)
	}

	r.records = append(r.records, record)
	r.next++

	return decodeResult(payload, result)
}

// Sleep suspends the invocation for at least d. Durations below the park
// threshold block in place; longer ones record the wake time and return a
// SuspendError so the scheduler can free the worker and re-invoke the node
// after ResumeAt. Replay skips sleeps whose wake time has passed.
func (r *Runner) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if record, ok := r.peek(); ok {
		if record.Kind != models.StepKindSleep {
			return r.mismatch(sleepKey, record)
		}

		if record.WakeAt != nil && time.Now().UTC().Before(*record.WakeAt) {
			// Re-invoked early (worker restart): park again, record stays
			return &SuspendError{ResumeAt: *record.WakeAt}
		}

		r.next++

		return nil
	}

	wakeAt := time.Now().UTC().Add(d)

	if d < r.parkThreshold {
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	record := &models.StepRecord{
		ExecutionID: r.executionID,
		NodeID:      r.nodeID,
		Seq:         r.next,
		Key:         sleepKey,
		Kind:        models.StepKindSleep,
		WakeAt:      &wakeAt,
		CompletedAt: time.Now().UTC(),
	}

	if err := r.log.AppendStep(ctx, record); err != nil {
		return fmt.Errorf("sleep: persist record: %w", err)
	}

	r.records = append(r.records, record)

	if d >= r.parkThreshold {
		return &SuspendError{ResumeAt: wakeAt}
	}

	r.next++

	return nil
}

// Replaying reports whether the runner is still answering from the log.
// Nodes can use this to skip log noise during replay; it must never change
// which steps are issued.
func (r *Runner) Replaying() bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.next < len(r.records)
}

func (r *Runner) peek() (*models.StepRecord, bool) {
	if r.next < len(r.records) {
		return r.records[r.next], true
	}

	return nil, false
}

func (r *Runner) mismatch(issuedKey string, record *models.StepRecord) error {
	return &ReplayMismatchError{
		ExecutionID: r.executionID,
		NodeID:      r.nodeID,
		Seq:         record.Seq,
		IssuedKey:   issuedKey,
		RecordedKey: record.Key,
	}
}

func decodeResult(payload json.RawMessage, result any) error {
	if result == nil || len(payload) == 0 {
		return nil
	}

	if err := json.Unmarshal(payload, result); err != nil {
		return fmt.Errorf("decode step result: %w", err)
	}

	return nil
}
