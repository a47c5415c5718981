// Package engine runs executions against deployment snapshots: it resolves
// node inputs from upstream outputs, dispatches ready nodes onto a bounded
// worker pool, propagates failures to dependents, parks durable nodes across
// long sleeps, and aggregates the final execution status.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/strandhq/strand/pkg/durable"
	"github.com/strandhq/strand/pkg/eventbus"
	"github.com/strandhq/strand/pkg/events"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/otelhelper"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/protocol"
)

const (
	defaultWorkers = 4

	upstreamFailurePrefix = "upstream failure in node "
)

// NodeSource creates node instances and serves their descriptors. The
// registry satisfies this.
type NodeSource interface {
	DescriptorSource
	CreateNode(ctx context.Context, nodeType, id string, config map[string]any) (protocol.Node, error)
}

// Config carries the host bindings for a scheduler.
type Config struct {
	WorkerID string

	// Workers bounds how many nodes run concurrently per execution.
	Workers int

	// ParkThreshold is the sleep duration at which durable nodes suspend
	// instead of blocking a worker slot.
	ParkThreshold time.Duration

	Env     map[string]string
	Secrets map[string]string
}

// Scheduler owns every Execution and NodeExecution state transition. One
// scheduler serves many executions; each Run call drives one execution to a
// terminal or paused state.
type Scheduler struct {
	config       Config
	persistence  persistence.Persistence
	eventBus     eventbus.EventPublisher
	nodes        NodeSource
	integrations protocol.TokenSource
	objects      protocol.ObjectStore
	logger       *slog.Logger
	tracer       trace.Tracer

	mu   sync.Mutex
	runs map[string]*runContext
}

func NewScheduler(
	config Config,
	store persistence.Persistence,
	bus eventbus.EventPublisher,
	nodes NodeSource,
	integrations protocol.TokenSource,
	objects protocol.ObjectStore,
	logger *slog.Logger,
) *Scheduler {
	if config.Workers <= 0 {
		config.Workers = defaultWorkers
	}

	if config.ParkThreshold <= 0 {
		config.ParkThreshold = durable.DefaultParkThreshold
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Scheduler{
		config:       config,
		persistence:  store,
		eventBus:     bus,
		nodes:        nodes,
		integrations: integrations,
		objects:      objects,
		logger:       logger.With("module", "engine"),
		tracer:       otel.Tracer("strand.engine"),
		runs:         make(map[string]*runContext),
	}
}

type stopReason int

const (
	stopNone stopReason = iota
	stopPause
	stopCancel
	stopAbort
)

type nodeState struct {
	node       *models.WorkflowNode
	descriptor models.NodeDescriptor

	// waiting counts incoming edges whose source has not completed yet.
	waiting int

	// downstreamEdges lists the target node of every outgoing edge;
	// dependents is the deduplicated set, used for failure propagation.
	downstreamEdges []string
	dependents      []string
}

type nodeResult struct {
	nodeID  string
	outputs map[string]any
	err     error

	// infra marks storage failures that abort the whole run instead of
	// failing one node.
	infra error
}

type runContext struct {
	execution  *models.Execution
	deployment *models.Deployment
	workflow   *models.Workflow
	states     map[string]*nodeState
	order      []string

	ready   chan string
	results chan nodeResult
	wake    chan string
	control chan struct{}

	runCtx    context.Context
	cancelRun context.CancelFunc

	// persistCtx survives run cancellation so final state always lands.
	persistCtx context.Context

	executions persistence.ExecutionRepository
	execMu     sync.Mutex

	flagMu       sync.Mutex
	reason       stopReason
	cancelReason string
	abortErr     error

	// Coordinator-goroutine state, no locking.
	pending      int
	inFlight     int
	failedNodeID string
	failedError  string
}

// saveExecution serializes every mutation and write of the shared execution
// record.
func (rc *runContext) saveExecution(mutate func(*models.Execution)) error {
	rc.execMu.Lock()
	defer rc.execMu.Unlock()

	mutate(rc.execution)

	return rc.executions.Update(rc.persistCtx, rc.execution)
}

func (rc *runContext) nodeExecution(nodeID string) models.NodeExecution {
	rc.execMu.Lock()
	defer rc.execMu.Unlock()

	return *rc.execution.NodeExecutions[nodeID]
}

func (rc *runContext) resolvedInputs(nodeID string) map[string]any {
	rc.execMu.Lock()
	defer rc.execMu.Unlock()

	state := rc.states[nodeID]

	return resolveInputs(rc.workflow, state.node, state.descriptor, rc.execution.NodeExecutions)
}

func (rc *runContext) stop(reason stopReason) {
	rc.flagMu.Lock()

	if reason > rc.reason {
		rc.reason = reason
	}

	rc.flagMu.Unlock()

	select {
	case rc.control <- struct{}{}:
	default:
	}
}

func (rc *runContext) stopping() stopReason {
	rc.flagMu.Lock()
	defer rc.flagMu.Unlock()

	return rc.reason
}

func (rc *runContext) fail(err error) {
	rc.flagMu.Lock()

	if rc.abortErr == nil {
		rc.abortErr = err
	}

	rc.flagMu.Unlock()
	rc.stop(stopAbort)
}

func (rc *runContext) abortError() error {
	rc.flagMu.Lock()
	defer rc.flagMu.Unlock()

	if rc.abortErr != nil {
		return rc.abortErr
	}

	return errors.New("run aborted")
}

func (rc *runContext) requestCancel(reason string) {
	rc.flagMu.Lock()

	if rc.cancelReason == "" {
		rc.cancelReason = reason
	}

	rc.flagMu.Unlock()
	rc.stop(stopCancel)
	rc.cancelRun()
}

func (rc *runContext) cancelText() string {
	rc.flagMu.Lock()
	defer rc.flagMu.Unlock()

	return rc.cancelReason
}

// firstFailure returns the node whose failure decided the execution: the
// first root cause recorded this run, otherwise the first persisted error
// node that is not an upstream propagation.
func (rc *runContext) firstFailure() (string, string) {
	if rc.failedNodeID != "" {
		return rc.failedNodeID, rc.failedError
	}

	rc.execMu.Lock()
	defer rc.execMu.Unlock()

	var fallbackID, fallbackMessage string

	for _, id := range rc.order {
		ne := rc.execution.NodeExecutions[id]
		if ne.Status != models.NodeStatusError {
			continue
		}

		if !strings.HasPrefix(ne.Error, upstreamFailurePrefix) {
			return id, ne.Error
		}

		if fallbackID == "" {
			fallbackID, fallbackMessage = id, ne.Error
		}
	}

	return fallbackID, fallbackMessage
}

// Run drives one execution until it completes, fails, is cancelled, pauses,
// or this worker aborts on an infrastructure error. Re-running an execution
// with recorded node state resumes it: completed nodes stay done, recorded
// failures re-propagate, parked nodes honor their wake time, and nodes that
// were mid-flight are re-invoked under step log replay.
func (s *Scheduler) Run(ctx context.Context, executionID string) (models.ExecutionStatus, error) {
	execution, err := s.persistence.ExecutionRepository().GetByID(ctx, executionID)
	if err != nil {
		return "", fmt.Errorf("load execution %s: %w", executionID, err)
	}

	if execution.Status.IsTerminal() || execution.Status == models.ExecutionStatusPaused {
		// Redelivered, raced, or awaiting an explicit resume
		s.logger.Info("execution not runnable, skipping",
			"execution_id", executionID, "status", execution.Status)

		return execution.Status, nil
	}

	deployment, err := s.persistence.DeploymentRepository().GetByID(ctx, execution.DeploymentID)
	if err != nil {
		return "", fmt.Errorf("load deployment %s: %w", execution.DeploymentID, err)
	}

	if deployment.Snapshot == nil {
		return "", fmt.Errorf("%w: %s", ErrMissingSnapshot, deployment.ID)
	}

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "execution.run",
		attribute.String(otelhelper.ExecutionIDKey, execution.ID),
		attribute.String(otelhelper.WorkflowIDKey, execution.WorkflowID),
		attribute.String(otelhelper.DeploymentIDKey, execution.DeploymentID),
	)
	defer span.End()

	rc, err := s.newRun(ctx, execution, deployment)
	if err != nil {
		return "", err
	}
	defer s.endRun(rc)

	status, err := s.runGraph(rc)
	if err != nil {
		otelhelper.SetError(span, err, attribute.String(otelhelper.ExecutionIDKey, execution.ID))

		return status, err
	}

	span.SetAttributes(attribute.String(otelhelper.ExecutionStatusKey, string(status)))

	return status, nil
}

func (s *Scheduler) newRun(ctx context.Context, execution *models.Execution, deployment *models.Deployment) (*runContext, error) {
	runCtx, cancel := context.WithCancel(ctx)

	rc := &runContext{
		execution:  execution,
		deployment: deployment,
		workflow:   deployment.Snapshot,
		states:     make(map[string]*nodeState),
		runCtx:     runCtx,
		cancelRun:  cancel,
		persistCtx: context.WithoutCancel(ctx),
		executions: s.persistence.ExecutionRepository(),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[execution.ID]; exists {
		cancel()

		return nil, fmt.Errorf("%w: %s", ErrAlreadyRunning, execution.ID)
	}

	s.runs[execution.ID] = rc

	return rc, nil
}

func (s *Scheduler) endRun(rc *runContext) {
	rc.cancelRun()

	s.mu.Lock()
	delete(s.runs, rc.execution.ID)
	s.mu.Unlock()
}

// Cancel interrupts an execution running on this worker. In-flight durable
// nodes observe the cancellation at their next step or sleep boundary.
func (s *Scheduler) Cancel(executionID, reason string) error {
	rc := s.lookup(executionID)
	if rc == nil {
		return fmt.Errorf("%w: %s", ErrNotRunning, executionID)
	}

	rc.requestCancel(reason)

	return nil
}

// Pause stops dispatching new nodes; in-flight nodes finish, then the run
// returns with status paused. Resuming is a fresh Run against the persisted
// state.
func (s *Scheduler) Pause(executionID string) error {
	rc := s.lookup(executionID)
	if rc == nil {
		return fmt.Errorf("%w: %s", ErrNotRunning, executionID)
	}

	rc.stop(stopPause)

	return nil
}

// Running reports whether this worker currently owns the execution.
func (s *Scheduler) Running(executionID string) bool {
	return s.lookup(executionID) != nil
}

func (s *Scheduler) lookup(executionID string) *runContext {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.runs[executionID]
}

func (s *Scheduler) runGraph(rc *runContext) (models.ExecutionStatus, error) {
	if err := s.buildStates(rc); err != nil {
		// The snapshot references node types this worker cannot resolve;
		// redelivery will not fix it, so the execution fails now
		if saveErr := rc.saveExecution(func(e *models.Execution) {
			now := time.Now().UTC()
			e.Status = models.ExecutionStatusError
			e.ErrorMessage = err.Error()
			e.FinishedAt = &now
		}); saveErr != nil {
			return "", saveErr
		}

		s.publish(rc, events.ExecutionFailed{
			BaseEvent:   s.baseEvent(rc, events.ExecutionFailedEvent),
			ExecutionID: rc.execution.ID,
			Error:       events.ExecutionError{Message: err.Error()},
		})

		return models.ExecutionStatusError, nil
	}

	var resumed bool

	if err := rc.saveExecution(func(e *models.Execution) {
		resumed = e.StartedAt != nil
		e.Status = models.ExecutionStatusExecuting

		if e.StartedAt == nil {
			now := time.Now().UTC()
			e.StartedAt = &now
		}
	}); err != nil {
		return "", err
	}

	if resumed {
		s.publish(rc, events.ExecutionResumed{
			BaseEvent:   s.baseEvent(rc, events.ExecutionResumedEvent),
			ExecutionID: rc.execution.ID,
		})
	} else {
		s.publish(rc, events.ExecutionStarted{
			BaseEvent:    s.baseEvent(rc, events.ExecutionStartedEvent),
			ExecutionID:  rc.execution.ID,
			DeploymentID: rc.deployment.ID,
		})
	}

	s.logger.Info("execution started",
		"execution_id", rc.execution.ID,
		"workflow_id", rc.execution.WorkflowID,
		"resumed", resumed,
		"nodes", len(rc.order))

	size := len(rc.order)
	rc.ready = make(chan string, size)
	rc.results = make(chan nodeResult, size)
	rc.wake = make(chan string, size)
	rc.control = make(chan struct{}, 1)

	group, groupCtx := errgroup.WithContext(rc.runCtx)
	for range s.config.Workers {
		group.Go(func() error {
			return s.workerLoop(groupCtx, rc)
		})
	}

	s.seedInitial(rc)
	s.coordinate(rc)

	if rc.stopping() == stopAbort {
		rc.cancelRun()
	}

	close(rc.ready)

	if err := group.Wait(); err != nil {
		rc.fail(err)
	}

	return s.finish(rc)
}

// buildStates indexes the enabled nodes, seeds missing NodeExecution records,
// and derives readiness counters from the persisted state so resumed
// executions pick up where they stopped.
func (s *Scheduler) buildStates(rc *runContext) error {
	if rc.execution.NodeExecutions == nil {
		rc.execution.NodeExecutions = make(map[string]*models.NodeExecution)
	}

	for _, node := range rc.workflow.Nodes {
		if !node.Enabled {
			continue
		}

		descriptor, err := s.nodes.NodeDescriptor(node.Type)
		if err != nil {
			return fmt.Errorf("node %s: %w", node.ID, err)
		}

		rc.states[node.ID] = &nodeState{node: node, descriptor: descriptor}
		rc.order = append(rc.order, node.ID)

		if _, ok := rc.execution.NodeExecutions[node.ID]; !ok {
			rc.execution.NodeExecutions[node.ID] = models.NewNodeExecution(node.ID)
		}
	}

	for _, edge := range rc.workflow.Edges {
		sourceID, _, ok := models.ParsePortID(edge.SourcePort)
		if !ok {
			continue
		}

		targetID, _, ok := models.ParsePortID(edge.TargetPort)
		if !ok {
			continue
		}

		source, target := rc.states[sourceID], rc.states[targetID]
		if source == nil || target == nil {
			continue
		}

		source.downstreamEdges = append(source.downstreamEdges, targetID)

		if !slices.Contains(source.dependents, targetID) {
			source.dependents = append(source.dependents, targetID)
		}

		if rc.execution.NodeExecutions[sourceID].Status != models.NodeStatusCompleted {
			target.waiting++
		}
	}

	for _, id := range rc.order {
		if !rc.execution.NodeExecutions[id].Status.IsTerminal() {
			rc.pending++
		}
	}

	return nil
}

// seedInitial re-propagates persisted failures, restarts park timers, and
// dispatches every node whose upstream edges are already satisfied.
func (s *Scheduler) seedInitial(rc *runContext) {
	for _, id := range rc.order {
		if ne := rc.nodeExecution(id); ne.Status == models.NodeStatusError {
			s.skipDependents(rc, id)
		}
	}

	for _, id := range rc.order {
		ne := rc.nodeExecution(id)
		if ne.Status.IsTerminal() {
			continue
		}

		if ne.WaitUntil != nil && ne.WaitUntil.After(time.Now().UTC()) {
			s.scheduleWake(rc, id, *ne.WaitUntil)

			continue
		}

		if rc.states[id].waiting == 0 {
			s.dispatch(rc, id)
		}
	}
}

// coordinate is the single goroutine that owns graph bookkeeping. It exits
// when every node is terminal, when a stop was requested and in-flight work
// drained, or immediately on an infrastructure abort.
func (s *Scheduler) coordinate(rc *runContext) {
	done := rc.runCtx.Done()

	for {
		if rc.pending == 0 {
			return
		}

		switch reason := rc.stopping(); {
		case reason == stopAbort:
			return
		case reason != stopNone && rc.inFlight == 0:
			return
		}

		select {
		case res := <-rc.results:
			s.handleResult(rc, res)
		case id := <-rc.wake:
			s.dispatch(rc, id)
		case <-rc.control:
		case <-done:
			done = nil

			if rc.stopping() == stopNone {
				// The host context died under us; leave the execution
				// executing so redelivery resumes it
				rc.fail(rc.runCtx.Err())
			}
		}
	}
}

func (s *Scheduler) dispatch(rc *runContext, nodeID string) {
	if rc.stopping() != stopNone {
		return
	}

	if rc.nodeExecution(nodeID).Status.IsTerminal() {
		return
	}

	rc.inFlight++
	rc.ready <- nodeID
}

func (s *Scheduler) scheduleWake(rc *runContext, nodeID string, at time.Time) {
	go func() {
		timer := time.NewTimer(time.Until(at))
		defer timer.Stop()

		select {
		case <-timer.C:
			select {
			case rc.wake <- nodeID:
			case <-rc.runCtx.Done():
			}
		case <-rc.runCtx.Done():
		}
	}()
}

func (s *Scheduler) handleResult(rc *runContext, res nodeResult) {
	rc.inFlight--

	if res.infra != nil {
		rc.fail(res.infra)
		rc.cancelRun()

		return
	}

	state := rc.states[res.nodeID]

	if suspend, ok := durable.IsSuspend(res.err); ok {
		if err := rc.saveExecution(func(e *models.Execution) {
			e.NodeExecutions[res.nodeID].MarkParked(suspend.ResumeAt)
		}); err != nil {
			rc.fail(err)
			rc.cancelRun()

			return
		}

		s.publish(rc, events.NodeSuspended{
			BaseEvent:   s.baseEvent(rc, events.NodeSuspendedEvent),
			ExecutionID: rc.execution.ID,
			NodeID:      res.nodeID,
			ResumeAt:    suspend.ResumeAt,
		})
		s.logger.Info("node parked",
			"execution_id", rc.execution.ID,
			"node_id", res.nodeID,
			"resume_at", suspend.ResumeAt)
		s.scheduleWake(rc, res.nodeID, suspend.ResumeAt)

		return
	}

	if res.err != nil && errors.Is(res.err, context.Canceled) && rc.stopping() == stopCancel {
		// Interrupted, not failed: back to idle so the record shows no
		// phantom in-flight node on a cancelled execution
		if err := rc.saveExecution(func(e *models.Execution) {
			ne := e.NodeExecutions[res.nodeID]
			ne.Status = models.NodeStatusIdle
			ne.WaitUntil = nil
		}); err != nil {
			rc.fail(err)
		}

		return
	}

	if res.err != nil {
		message := res.err.Error()

		if err := rc.saveExecution(func(e *models.Execution) {
			e.NodeExecutions[res.nodeID].MarkError(message)
		}); err != nil {
			rc.fail(err)
			rc.cancelRun()

			return
		}

		rc.pending--

		if rc.failedNodeID == "" {
			rc.failedNodeID, rc.failedError = res.nodeID, message
		}

		s.publish(rc, events.NodeFailed{
			BaseEvent:   s.baseEvent(rc, events.NodeFailedEvent),
			ExecutionID: rc.execution.ID,
			NodeID:      res.nodeID,
			Error:       message,
		})
		s.logger.Warn("node failed",
			"execution_id", rc.execution.ID,
			"node_id", res.nodeID,
			"error", message)
		s.skipDependents(rc, res.nodeID)

		return
	}

	outputs := filterOutputs(state.descriptor, res.outputs)

	var durationMs int64

	if err := rc.saveExecution(func(e *models.Execution) {
		ne := e.NodeExecutions[res.nodeID]
		ne.MarkCompleted(outputs)

		if ne.StartedAt != nil {
			durationMs = ne.FinishedAt.Sub(*ne.StartedAt).Milliseconds()
		}
	}); err != nil {
		rc.fail(err)
		rc.cancelRun()

		return
	}

	rc.pending--

	s.publish(rc, events.NodeFinished{
		BaseEvent:   s.baseEvent(rc, events.NodeFinishedEvent),
		ExecutionID: rc.execution.ID,
		NodeID:      res.nodeID,
		DurationMs:  durationMs,
	})
	s.logger.Info("node finished",
		"execution_id", rc.execution.ID,
		"node_id", res.nodeID,
		"duration_ms", durationMs)

	for _, targetID := range state.downstreamEdges {
		target := rc.states[targetID]
		target.waiting--

		if target.waiting == 0 {
			s.dispatch(rc, targetID)
		}
	}
}

// skipDependents marks every transitive dependent of a failed node as error
// without invoking it. Independent branches keep running.
func (s *Scheduler) skipDependents(rc *runContext, rootID string) {
	message := upstreamFailurePrefix + rootID
	queue := slices.Clone(rc.states[rootID].dependents)

	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]

		if rc.nodeExecution(id).Status.IsTerminal() {
			continue
		}

		if err := rc.saveExecution(func(e *models.Execution) {
			e.NodeExecutions[id].MarkError(message)
		}); err != nil {
			rc.fail(err)
			rc.cancelRun()

			return
		}

		rc.pending--

		s.publish(rc, events.NodeFailed{
			BaseEvent:   s.baseEvent(rc, events.NodeFailedEvent),
			ExecutionID: rc.execution.ID,
			NodeID:      id,
			Error:       message,
			Upstream:    true,
		})

		queue = append(queue, rc.states[id].dependents...)
	}
}

func (s *Scheduler) workerLoop(ctx context.Context, rc *runContext) error {
	for nodeID := range rc.ready {
		res, err := s.executeNode(ctx, rc, nodeID)
		if err != nil {
			res.infra = err
		}

		rc.results <- res

		if err != nil {
			return err
		}
	}

	return nil
}

// executeNode runs a single node invocation on a worker goroutine. The
// returned error is infrastructure-level only; node failures travel inside
// the result.
func (s *Scheduler) executeNode(ctx context.Context, rc *runContext, nodeID string) (nodeResult, error) {
	res := nodeResult{nodeID: nodeID}

	if err := ctx.Err(); err != nil {
		res.err = err

		return res, nil
	}

	state := rc.states[nodeID]
	logger := s.logger.With(
		"execution_id", rc.execution.ID,
		"node_id", nodeID,
		"node_type", state.node.Type)

	ctx, span := otelhelper.StartSpan(ctx, s.tracer, "node.execute",
		attribute.String(otelhelper.ExecutionIDKey, rc.execution.ID),
		attribute.String(otelhelper.NodeIDKey, nodeID),
		attribute.String(otelhelper.NodeTypeKey, state.node.Type),
	)
	defer span.End()

	instance, err := s.nodes.CreateNode(ctx, state.node.Type, nodeID, state.node.Inputs)
	if err != nil {
		res.err = fmt.Errorf("create node: %w", err)

		return res, nil
	}

	var runner *durable.Runner

	if state.descriptor.Durable {
		runner, err = durable.NewRunner(ctx, s.persistence.StepRepository(), rc.execution.ID, nodeID,
			durable.WithParkThreshold(s.config.ParkThreshold),
			durable.WithLogger(logger))
		if err != nil {
			if errors.Is(err, context.Canceled) {
				res.err = err

				return res, nil
			}

			return res, err
		}
	}

	if err := rc.saveExecution(func(e *models.Execution) {
		e.NodeExecutions[nodeID].MarkExecuting()
	}); err != nil {
		return res, err
	}

	s.publish(rc, events.NodeStarted{
		BaseEvent:   s.baseEvent(rc, events.NodeStartedEvent),
		ExecutionID: rc.execution.ID,
		NodeID:      nodeID,
		NodeType:    state.node.Type,
	})
	logger.Info("node started")

	progress := func(value float64) {
		if err := rc.saveExecution(func(e *models.Execution) {
			e.NodeExecutions[nodeID].SetProgress(value)
		}); err != nil {
			logger.Debug("progress not persisted", "error", err)
		}
	}

	ectx := s.buildContext(rc, nodeID, rc.resolvedInputs(nodeID), runner, progress)

	res.outputs, res.err = invokeNode(ctx, instance, ectx)

	if res.err != nil {
		if _, parked := durable.IsSuspend(res.err); !parked && !errors.Is(res.err, context.Canceled) {
			otelhelper.SetError(span, res.err, attribute.String(otelhelper.NodeIDKey, nodeID))
		}
	}

	return res, nil
}

func invokeNode(ctx context.Context, node protocol.Node, ectx *protocol.ExecutionContext) (outputs map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("node panicked: %v", r)
		}
	}()

	return node.Execute(ctx, ectx)
}

func (s *Scheduler) finish(rc *runContext) (models.ExecutionStatus, error) {
	switch rc.stopping() {
	case stopAbort:
		// Execution stays 'executing'; a redelivery or restart resumes it
		return "", rc.abortError()

	case stopCancel:
		if err := rc.saveExecution(func(e *models.Execution) {
			now := time.Now().UTC()
			e.Status = models.ExecutionStatusCancelled
			e.FinishedAt = &now
		}); err != nil {
			return "", err
		}

		s.publish(rc, events.ExecutionCancelled{
			BaseEvent:   s.baseEvent(rc, events.ExecutionCancelledEvent),
			ExecutionID: rc.execution.ID,
			Reason:      rc.cancelText(),
		})
		s.logger.Info("execution cancelled", "execution_id", rc.execution.ID)

		return models.ExecutionStatusCancelled, nil

	case stopPause:
		if err := rc.saveExecution(func(e *models.Execution) {
			e.Status = models.ExecutionStatusPaused
		}); err != nil {
			return "", err
		}

		s.publish(rc, events.ExecutionPaused{
			BaseEvent:   s.baseEvent(rc, events.ExecutionPausedEvent),
			ExecutionID: rc.execution.ID,
		})
		s.logger.Info("execution paused", "execution_id", rc.execution.ID)

		return models.ExecutionStatusPaused, nil
	}

	if failedID, failedMessage := rc.firstFailure(); failedID != "" {
		if err := rc.saveExecution(func(e *models.Execution) {
			now := time.Now().UTC()
			e.Status = models.ExecutionStatusError
			e.ErrorMessage = fmt.Sprintf("node %s: %s", failedID, failedMessage)
			e.FinishedAt = &now
		}); err != nil {
			return "", err
		}

		s.publish(rc, events.ExecutionFailed{
			BaseEvent:   s.baseEvent(rc, events.ExecutionFailedEvent),
			ExecutionID: rc.execution.ID,
			Error:       events.ExecutionError{NodeID: failedID, Message: failedMessage},
			DurationMs:  rc.durationMs(),
		})
		s.logger.Warn("execution failed",
			"execution_id", rc.execution.ID,
			"node_id", failedID,
			"error", failedMessage)

		return models.ExecutionStatusError, nil
	}

	if err := rc.saveExecution(func(e *models.Execution) {
		now := time.Now().UTC()
		e.Status = models.ExecutionStatusCompleted
		e.FinishedAt = &now
	}); err != nil {
		return "", err
	}

	s.publish(rc, events.ExecutionCompleted{
		BaseEvent:     s.baseEvent(rc, events.ExecutionCompletedEvent),
		ExecutionID:   rc.execution.ID,
		DurationMs:    rc.durationMs(),
		NodesExecuted: rc.completedCount(),
	})
	s.logger.Info("execution completed",
		"execution_id", rc.execution.ID,
		"duration_ms", rc.durationMs())

	return models.ExecutionStatusCompleted, nil
}

func (rc *runContext) durationMs() int64 {
	rc.execMu.Lock()
	defer rc.execMu.Unlock()

	if rc.execution.StartedAt == nil {
		return 0
	}

	end := time.Now().UTC()
	if rc.execution.FinishedAt != nil {
		end = *rc.execution.FinishedAt
	}

	return end.Sub(*rc.execution.StartedAt).Milliseconds()
}

func (rc *runContext) completedCount() int {
	rc.execMu.Lock()
	defer rc.execMu.Unlock()

	count := 0

	for _, ne := range rc.execution.NodeExecutions {
		if ne.Status == models.NodeStatusCompleted {
			count++
		}
	}

	return count
}

func (s *Scheduler) baseEvent(rc *runContext, eventType events.EventType) events.BaseEvent {
	base := events.NewBaseEvent(eventType, rc.execution.WorkflowID)
	base.WorkerID = s.config.WorkerID

	return base
}

func (s *Scheduler) publish(rc *runContext, event eventbus.Event) {
	if s.eventBus == nil {
		return
	}

	if err := s.eventBus.Publish(rc.persistCtx, rc.execution.ID, event); err != nil {
		s.logger.Warn("event publish failed",
			"event_type", event.GetType(),
			"execution_id", rc.execution.ID,
			"error", err)
	}
}
