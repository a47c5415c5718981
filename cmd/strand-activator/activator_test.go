package main

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/eventbus"
	"github.com/strandhq/strand/pkg/events"
	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/persistence"
	"github.com/strandhq/strand/pkg/protocol"
	"github.com/strandhq/strand/pkg/registry"
	"github.com/strandhq/strand/pkg/testutil"
	"github.com/strandhq/strand/pkg/triggers/schedule"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *recordingPublisher) Publish(_ context.Context, _ string, event eventbus.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events = append(p.events, event)

	return nil
}

func (p *recordingPublisher) published() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()

	return append([]eventbus.Event(nil), p.events...)
}

type fakeTrigger struct {
	config map[string]any

	mu      sync.Mutex
	started bool
	stopped bool
}

func (t *fakeTrigger) Start(_ context.Context, _ protocol.TriggerCallback) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.started = true

	return nil
}

func (t *fakeTrigger) Stop(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.stopped = true

	return nil
}

func (t *fakeTrigger) Validate() error { return nil }

func (t *fakeTrigger) state() (started, stopped bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.started, t.stopped
}

// fakeTriggerFactory stands in for a real ingestion adapter so resync tests
// do not bind ports or connect to brokers.
type fakeTriggerFactory struct {
	id string

	mu      sync.Mutex
	created []*fakeTrigger
}

func (f *fakeTriggerFactory) ID() string { return f.id }

func (f *fakeTriggerFactory) Create(config map[string]any, _ *slog.Logger) (protocol.Trigger, error) {
	trigger := &fakeTrigger{config: config}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.created = append(f.created, trigger)

	return trigger, nil
}

func (f *fakeTriggerFactory) triggers() []*fakeTrigger {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]*fakeTrigger(nil), f.created...)
}

type activatorFixture struct {
	activator *Activator
	store     *testutil.MemoryPersistence
	publisher *recordingPublisher
	webhooks  *fakeTriggerFactory
	queues    *fakeTriggerFactory
	emails    *fakeTriggerFactory
}

func newActivatorFixture(t *testing.T) *activatorFixture {
	t.Helper()

	store := testutil.NewMemoryPersistence()
	publisher := &recordingPublisher{}
	logger := testLogger()

	reg := registry.NewRegistry(logger)
	webhooks := &fakeTriggerFactory{id: "webhook"}
	queues := &fakeTriggerFactory{id: "queue"}
	emails := &fakeTriggerFactory{id: "email"}
	reg.RegisterTrigger(webhooks)
	reg.RegisterTrigger(queues)
	reg.RegisterTrigger(emails)

	poller := schedule.NewPoller(store.ScheduleRepository(), logger)

	activator := NewActivator("activator-test", store, publisher, reg, poller, logger)

	return &activatorFixture{
		activator: activator,
		store:     store,
		publisher: publisher,
		webhooks:  webhooks,
		queues:    queues,
		emails:    emails,
	}
}

func (f *activatorFixture) seed(t *testing.T, workflow *models.Workflow, deployment *models.Deployment) {
	t.Helper()

	ctx := context.Background()
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, workflow))
	require.NoError(t, f.store.DeploymentRepository().Create(ctx, deployment))
}

func TestResync_StartsTriggersForCurrentDeployments(t *testing.T) {
	t.Parallel()

	f := newActivatorFixture(t)

	disabledEmail := testutil.Node("mail", models.NodeTypeTriggerEmail, map[string]any{"address": "in@strand.dev"})
	disabledEmail.Enabled = false

	workflow := testutil.Workflow("wf-1", []*models.WorkflowNode{
		testutil.Node("hook", models.NodeTypeTriggerWebhook, map[string]any{"path": "/hooks/orders"}),
		testutil.Node("jobs", models.NodeTypeTriggerQueue, map[string]any{"queue": "render-jobs"}),
		testutil.Node("start", models.NodeTypeTriggerManual, nil),
		disabledEmail,
		testutil.Node("note", "log", map[string]any{"message": "hi"}),
	}, nil)
	f.seed(t, workflow, testutil.Deployment("dep-1", workflow))

	f.activator.resync(context.Background())

	webhooks := f.webhooks.triggers()
	require.Len(t, webhooks, 1)
	assert.Equal(t, "dep-1", webhooks[0].config["deployment_id"])
	assert.Equal(t, "hook", webhooks[0].config["node_id"])
	assert.Equal(t, "/hooks/orders", webhooks[0].config["path"])

	started, _ := webhooks[0].state()
	assert.True(t, started)

	require.Len(t, f.queues.triggers(), 1)

	// The manual trigger is API-only and the email node is disabled
	assert.Empty(t, f.emails.triggers())
	assert.Len(t, f.activator.running, 2)
}

func TestResync_IsIdempotent(t *testing.T) {
	t.Parallel()

	f := newActivatorFixture(t)

	workflow := testutil.Workflow("wf-1", []*models.WorkflowNode{
		testutil.Node("hook", models.NodeTypeTriggerWebhook, map[string]any{"path": "/hooks/a"}),
	}, nil)
	f.seed(t, workflow, testutil.Deployment("dep-1", workflow))

	ctx := context.Background()
	f.activator.resync(ctx)
	f.activator.resync(ctx)

	assert.Len(t, f.webhooks.triggers(), 1, "an already running trigger is not recreated")
}

func TestResync_StopsSupersededTriggers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newActivatorFixture(t)

	workflow := testutil.Workflow("wf-1", []*models.WorkflowNode{
		testutil.Node("hook", models.NodeTypeTriggerWebhook, map[string]any{"path": "/hooks/v1"}),
	}, nil)
	f.seed(t, workflow, testutil.Deployment("dep-1", workflow))

	f.activator.resync(ctx)
	require.Len(t, f.webhooks.triggers(), 1)

	// A new deployment version replaces the webhook with a queue consumer
	replacement := testutil.Workflow("wf-1", []*models.WorkflowNode{
		testutil.Node("jobs", models.NodeTypeTriggerQueue, map[string]any{"queue": "render-jobs"}),
	}, nil)
	deployment := testutil.Deployment("dep-2", replacement)
	deployment.Version = 2
	require.NoError(t, f.store.DeploymentRepository().Create(ctx, deployment))

	f.activator.resync(ctx)

	_, stopped := f.webhooks.triggers()[0].state()
	assert.True(t, stopped, "superseded webhook trigger stops")
	require.Len(t, f.queues.triggers(), 1)
	assert.Len(t, f.activator.running, 1)
}

func TestResync_IgnoresUnpublishedWorkflows(t *testing.T) {
	t.Parallel()

	f := newActivatorFixture(t)

	workflow := testutil.Workflow("wf-1", []*models.WorkflowNode{
		testutil.Node("hook", models.NodeTypeTriggerWebhook, map[string]any{"path": "/hooks/a"}),
	}, nil)
	workflow.Status = models.WorkflowStatusDraft
	f.seed(t, workflow, testutil.Deployment("dep-1", workflow))

	f.activator.resync(context.Background())

	assert.Empty(t, f.webhooks.triggers())
	assert.Empty(t, f.activator.running)
}

func TestResync_RegistersAndCleansUpSchedules(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newActivatorFixture(t)

	workflow := testutil.Workflow("wf-1", []*models.WorkflowNode{
		testutil.Node("tick", models.NodeTypeTriggerSchedule, map[string]any{"cron": "*/5 * * * *"}),
	}, nil)
	f.seed(t, workflow, testutil.Deployment("dep-1", workflow))

	f.activator.resync(ctx)

	stored, err := f.store.ScheduleRepository().GetByID(ctx, schedule.ScheduleID("dep-1", "tick"))
	require.NoError(t, err)
	assert.True(t, stored.Active)
	assert.Equal(t, "*/5 * * * *", stored.CronExpression)

	// Unpublishing removes the workflow from the desired set; the schedule
	// row goes with it
	workflow.Status = models.WorkflowStatusUnpublished
	require.NoError(t, f.store.WorkflowRepository().Save(ctx, workflow))

	f.activator.resync(ctx)

	_, err = f.store.ScheduleRepository().GetByID(ctx, schedule.ScheduleID("dep-1", "tick"))
	assert.True(t, persistence.IsScheduleNotFound(err))
}

func TestFire_CreatesExecutionAndAnnouncesIt(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	f := newActivatorFixture(t)

	workflow := testutil.Workflow("wf-1", []*models.WorkflowNode{
		testutil.Node("hook", models.NodeTypeTriggerWebhook, map[string]any{"path": "/hooks/orders"}),
	}, nil)
	f.seed(t, workflow, testutil.Deployment("dep-1", workflow))

	fired := protocol.FiredTrigger{
		DeploymentID: "dep-1",
		NodeID:       "hook",
		Kind:         models.TriggerKindWebhook,
		Webhook: &models.WebhookRequest{
			Method:     "POST",
			Path:       "/hooks/orders",
			ReceivedAt: time.Now().UTC(),
		},
	}

	require.NoError(t, f.activator.fire(ctx, fired))

	published := f.publisher.published()
	require.Len(t, published, 1)

	created, ok := published[0].(events.ExecutionCreated)
	require.True(t, ok)
	assert.Equal(t, "dep-1", created.DeploymentID)
	assert.Equal(t, models.TriggerKindWebhook, created.TriggerKind)

	execution, err := f.store.ExecutionRepository().GetByID(ctx, created.ExecutionID)
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusSubmitted, execution.Status)
	assert.Equal(t, models.TriggerKindWebhook, execution.TriggerKind)
	require.NotNil(t, execution.Webhook)
	assert.Equal(t, "/hooks/orders", execution.Webhook.Path)
}

func TestFire_UnknownDeploymentFails(t *testing.T) {
	t.Parallel()

	f := newActivatorFixture(t)

	err := f.activator.fire(context.Background(), protocol.FiredTrigger{
		DeploymentID: "missing",
		NodeID:       "hook",
		Kind:         models.TriggerKindWebhook,
		Webhook:      &models.WebhookRequest{Method: "POST", Path: "/x", ReceivedAt: time.Now().UTC()},
	})

	require.Error(t, err)
	assert.Empty(t, f.publisher.published())
}
