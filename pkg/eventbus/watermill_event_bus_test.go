package eventbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/strandhq/strand/pkg/channels/gochannel"
	"github.com/strandhq/strand/pkg/eventbus"
	"github.com/strandhq/strand/pkg/events"
)

func newTestBus(t *testing.T) eventbus.EventBus {
	t.Helper()

	pub, sub, err := gochannel.CreateChannel(watermill.NopLogger{})
	require.NoError(t, err)

	bus := eventbus.NewWatermillEventBus(pub, sub)
	t.Cleanup(func() {
		_ = bus.Close()
	})

	return bus
}

func TestWatermillEventBus_PublishAndHandle(t *testing.T) {
	bus := newTestBus(t)
	received := make(chan *events.ExecutionCreated, 1)

	err := bus.Handle(events.ExecutionCreatedEvent, func(_ context.Context, event any) error {
		created, ok := event.(*events.ExecutionCreated)
		require.True(t, ok)
		received <- created

		return nil
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	created := events.ExecutionCreated{
		BaseEvent:    events.NewBaseEvent(events.ExecutionCreatedEvent, "workflow-1"),
		ExecutionID:  "execution-1",
		DeploymentID: "deployment-1",
		TriggerKind:  "manual",
	}
	require.NoError(t, bus.Publish(ctx, "execution-1", created))

	select {
	case got := <-received:
		assert.Equal(t, "execution-1", got.ExecutionID)
		assert.Equal(t, "deployment-1", got.DeploymentID)
		assert.Equal(t, "workflow-1", got.WorkflowID)
	case <-time.After(2 * time.Second):
		t.Fatal("event was not delivered")
	}
}

func TestWatermillEventBus_RoutesTopicsIndependently(t *testing.T) {
	bus := newTestBus(t)

	executionEvents := make(chan string, 2)
	controlEvents := make(chan string, 2)

	require.NoError(t, bus.Handle(events.ExecutionStartedEvent, func(_ context.Context, event any) error {
		executionEvents <- event.(*events.ExecutionStarted).ExecutionID

		return nil
	}))
	require.NoError(t, bus.Handle(events.CancelRequestedEvent, func(_ context.Context, event any) error {
		controlEvents <- event.(*events.CancelRequested).ExecutionID

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "execution-1", events.ExecutionStarted{
		BaseEvent:   events.NewBaseEvent(events.ExecutionStartedEvent, "workflow-1"),
		ExecutionID: "execution-1",
	}))
	require.NoError(t, bus.Publish(ctx, "execution-2", events.CancelRequested{
		BaseEvent:   events.NewBaseEvent(events.CancelRequestedEvent, "workflow-1"),
		ExecutionID: "execution-2",
	}))

	select {
	case got := <-executionEvents:
		assert.Equal(t, "execution-1", got)
	case <-time.After(2 * time.Second):
		t.Fatal("execution event was not delivered")
	}

	select {
	case got := <-controlEvents:
		assert.Equal(t, "execution-2", got)
	case <-time.After(2 * time.Second):
		t.Fatal("control event was not delivered")
	}
}

func TestWatermillEventBus_UnhandledTypesAreAcked(t *testing.T) {
	bus := newTestBus(t)
	received := make(chan struct{}, 1)

	// Only node.finished has a handler; node.started on the same topic is dropped
	require.NoError(t, bus.Handle(events.NodeFinishedEvent, func(_ context.Context, _ any) error {
		received <- struct{}{}

		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, bus.Subscribe(ctx))

	require.NoError(t, bus.Publish(ctx, "execution-1", events.NodeStarted{
		BaseEvent:   events.NewBaseEvent(events.NodeStartedEvent, "workflow-1"),
		ExecutionID: "execution-1",
		NodeID:      "node-1",
	}))
	require.NoError(t, bus.Publish(ctx, "execution-1", events.NodeFinished{
		BaseEvent:   events.NewBaseEvent(events.NodeFinishedEvent, "workflow-1"),
		ExecutionID: "execution-1",
		NodeID:      "node-1",
	}))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("handled event did not arrive after unhandled one")
	}
}
