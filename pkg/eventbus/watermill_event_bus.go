package eventbus

import (
	"context"
	"strings"
	"sync"

	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"

	"github.com/strandhq/strand/pkg/events"
)

// WatermillEventBus routes strand events over a watermill publisher and
// subscriber pair. Events are JSON payloads; the concrete type travels in
// message metadata so consumers can decode without sniffing.
type WatermillEventBus struct {
	publisher  message.Publisher
	subscriber message.Subscriber

	mu            sync.RWMutex
	subscriptions map[events.EventType]EventHandler
}

func NewWatermillEventBus(pub message.Publisher, sub message.Subscriber) EventBus {
	return &WatermillEventBus{
		publisher:     pub,
		subscriber:    sub,
		subscriptions: make(map[events.EventType]EventHandler),
	}
}

func (eb *WatermillEventBus) GenerateID() string {
	return watermill.NewULID()
}

// Close shuts down the underlying subscriber and publisher.
func (eb *WatermillEventBus) Close() error {
	if err := eb.subscriber.Close(); err != nil {
		return err
	}

	return eb.publisher.Close()
}

// topicFor maps an event type onto its topic. Node and control events travel
// on their own topics so workers can subscribe selectively.
func topicFor(eventType events.EventType) string {
	switch {
	case strings.HasPrefix(string(eventType), "node."):
		return events.NodeTopic
	case strings.HasPrefix(string(eventType), "control."):
		return events.ControlTopic
	default:
		return events.ExecutionTopic
	}
}

func (eb *WatermillEventBus) Publish(ctx context.Context, key string, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := message.NewMessage("msg-"+eb.GenerateID(), payload)
	msg.SetContext(ctx)
	msg.Metadata.Set(events.EventMetadataKey, key)
	msg.Metadata.Set(events.EventTypeMetadataKey, string(event.GetType()))

	return eb.publisher.Publish(topicFor(event.GetType()), msg)
}

func (eb *WatermillEventBus) Handle(eventType events.EventType, handler EventHandler) error {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.subscriptions[eventType] = handler

	return nil
}

// Subscribe starts consuming every topic that has at least one registered
// handler. Handlers must be registered before Subscribe is called.
func (eb *WatermillEventBus) Subscribe(ctx context.Context) error {
	topics := eb.subscribedTopics()

	for _, topic := range topics {
		messages, err := eb.subscriber.Subscribe(ctx, topic)
		if err != nil {
			return err
		}

		go eb.consume(ctx, messages)
	}

	return nil
}

func (eb *WatermillEventBus) subscribedTopics() []string {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	seen := make(map[string]bool)

	var topics []string

	for eventType := range eb.subscriptions {
		topic := topicFor(eventType)
		if !seen[topic] {
			seen[topic] = true

			topics = append(topics, topic)
		}
	}

	return topics
}

func (eb *WatermillEventBus) consume(ctx context.Context, messages <-chan *message.Message) {
	for msg := range messages {
		eventType := events.EventType(msg.Metadata.Get(events.EventTypeMetadataKey))

		eb.mu.RLock()
		handler, exists := eb.subscriptions[eventType]
		eb.mu.RUnlock()

		if !exists {
			msg.Ack()

			continue
		}

		event := decode(eventType)
		if event == nil {
			msg.Nack()

			continue
		}

		if err := json.Unmarshal(msg.Payload, event); err != nil {
			msg.Nack()

			continue
		}

		if err := handler(ctx, event); err != nil {
			msg.Nack()

			continue
		}

		msg.Ack()
	}
}

// decode returns a zero value of the concrete event struct for a type.
func decode(eventType events.EventType) any {
	switch eventType {
	case events.ExecutionCreatedEvent:
		return &events.ExecutionCreated{}
	case events.ExecutionStartedEvent:
		return &events.ExecutionStarted{}
	case events.ExecutionCompletedEvent:
		return &events.ExecutionCompleted{}
	case events.ExecutionFailedEvent:
		return &events.ExecutionFailed{}
	case events.ExecutionCancelledEvent:
		return &events.ExecutionCancelled{}
	case events.ExecutionPausedEvent:
		return &events.ExecutionPaused{}
	case events.ExecutionResumedEvent:
		return &events.ExecutionResumed{}
	case events.NodeStartedEvent:
		return &events.NodeStarted{}
	case events.NodeFinishedEvent:
		return &events.NodeFinished{}
	case events.NodeFailedEvent:
		return &events.NodeFailed{}
	case events.NodeSuspendedEvent:
		return &events.NodeSuspended{}
	case events.CancelRequestedEvent:
		return &events.CancelRequested{}
	case events.PauseRequestedEvent:
		return &events.PauseRequested{}
	case events.ResumeRequestedEvent:
		return &events.ResumeRequested{}
	default:
		return nil
	}
}
