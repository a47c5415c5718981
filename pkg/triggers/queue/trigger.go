// Package queue consumes external queues and fires one execution per
// message. Redis lists are the default provider; Kafka topics are available
// for installations already running the broker.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/strandhq/strand/pkg/models"
	"github.com/strandhq/strand/pkg/protocol"
)

type Provider int

const (
	RedisProvider Provider = iota
	KafkaProvider
)

var providerName = map[Provider]string{
	RedisProvider: "redis",
	KafkaProvider: "kafka",
}

func getProviderByName(name string) (Provider, error) {
	for p, n := range providerName {
		if n == name {
			return p, nil
		}
	}

	return 0, fmt.Errorf("unsupported queue provider: %s", name)
}

// deliverFunc receives one raw message from a provider consumer.
type deliverFunc func(ctx context.Context, payload []byte)

type consumer interface {
	start(ctx context.Context, deliver deliverFunc) error
	stop(ctx context.Context) error
}

type Trigger struct {
	DeploymentID string
	NodeID       string
	Provider     Provider
	Queue        string
	Connection   map[string]string

	consumer consumer
	callback protocol.TriggerCallback
	logger   *slog.Logger
}

func NewTrigger(config map[string]any, logger *slog.Logger) (*Trigger, error) {
	deploymentID, _ := config["deployment_id"].(string)
	nodeID, _ := config["node_id"].(string)
	queue, _ := config["queue"].(string)

	provider, _ := config["provider"].(string)
	if provider == "" {
		provider = providerName[RedisProvider]
	}

	providerEnum, err := getProviderByName(provider)
	if err != nil {
		return nil, err
	}

	connection := make(map[string]string)

	if connectionConfig, ok := config["connection"].(map[string]any); ok {
		for k, v := range connectionConfig {
			if str, ok := v.(string); ok {
				connection[k] = str
			}
		}
	}

	trigger := &Trigger{
		DeploymentID: deploymentID,
		NodeID:       nodeID,
		Provider:     providerEnum,
		Queue:        queue,
		Connection:   connection,
		logger: logger.With(
			"module", "queue_trigger",
			"provider", provider,
			"queue", queue,
		),
	}

	if err := trigger.Validate(); err != nil {
		return nil, err
	}

	return trigger, nil
}

func (t *Trigger) Validate() error {
	if t.DeploymentID == "" || t.NodeID == "" {
		return errors.New("queue trigger requires deployment_id and node_id")
	}

	if t.Queue == "" {
		return errors.New("queue trigger queue name is required")
	}

	return nil
}

func (t *Trigger) Start(ctx context.Context, callback protocol.TriggerCallback) error {
	t.logger.InfoContext(ctx, "Starting QueueTrigger")
	t.callback = callback

	switch t.Provider {
	case KafkaProvider:
		t.consumer = newKafkaConsumer(t.Queue, t.Connection, t.logger)
	case RedisProvider:
		t.consumer = newRedisConsumer(t.Queue, t.Connection, t.logger)
	}

	if err := t.consumer.start(ctx, t.deliver); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}

	return nil
}

func (t *Trigger) Stop(ctx context.Context) error {
	t.logger.InfoContext(ctx, "Stopping QueueTrigger")

	if t.consumer == nil {
		return nil
	}

	return t.consumer.stop(ctx)
}

// deliver is invoked by the provider consumer once per received message.
// Callback errors are logged and the message is not requeued; the sender
// owns retry semantics.
func (t *Trigger) deliver(ctx context.Context, payload []byte) {
	message := &models.QueueMessage{
		Queue:      t.Queue,
		Payload:    normalizePayload(payload),
		ReceivedAt: time.Now().UTC(),
	}

	fired := protocol.FiredTrigger{
		DeploymentID: t.DeploymentID,
		NodeID:       t.NodeID,
		Kind:         models.TriggerKindQueue,
		Queue:        message,
	}

	if err := t.callback(ctx, fired); err != nil {
		t.logger.ErrorContext(ctx, "Queue firing rejected", "error", err)
	}
}

// normalizePayload keeps JSON messages verbatim and wraps anything else as
// a JSON string so the stored payload always round-trips.
func normalizePayload(payload []byte) json.RawMessage {
	if len(payload) == 0 {
		return nil
	}

	if json.Valid(payload) {
		return payload
	}

	wrapped, err := json.Marshal(string(payload))
	if err != nil {
		return nil
	}

	return wrapped
}
