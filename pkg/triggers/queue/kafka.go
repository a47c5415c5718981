package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
)

const (
	kafkaSessionTimeout    = 10 * time.Second
	kafkaHeartbeatInterval = 3 * time.Second
	kafkaRetryInterval     = 5 * time.Second
)

type kafkaConsumer struct {
	topic   string
	group   string
	brokers []string
	logger  *slog.Logger

	consumer sarama.ConsumerGroup
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func newKafkaConsumer(topic string, connection map[string]string, logger *slog.Logger) *kafkaConsumer {
	group := connection["consumer_group"]
	if group == "" {
		group = "strand-triggers"
	}

	brokersStr := connection["brokers"]
	if brokersStr == "" {
		brokersStr = os.Getenv("KAFKA_BROKERS")
		if brokersStr == "" {
			brokersStr = "localhost:9092"
		}
	}

	brokers := strings.Split(brokersStr, ",")
	for i, broker := range brokers {
		brokers[i] = strings.TrimSpace(broker)
	}

	return &kafkaConsumer{
		topic:   topic,
		group:   group,
		brokers: brokers,
		logger:  logger.With("consumer_group", group, "brokers", brokers),
	}
}

func (c *kafkaConsumer) start(ctx context.Context, deliver deliverFunc) error {
	config := sarama.NewConfig()
	config.Version = sarama.V2_6_0_0
	config.Consumer.Group.Session.Timeout = kafkaSessionTimeout
	config.Consumer.Group.Heartbeat.Interval = kafkaHeartbeatInterval
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumerGroup(c.brokers, c.group, config)
	if err != nil {
		return fmt.Errorf("failed to create Kafka consumer group: %w", err)
	}

	c.consumer = consumer

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	c.wg.Add(2)

	go c.consume(runCtx, deliver)
	go c.monitorErrors(runCtx)

	return nil
}

func (c *kafkaConsumer) consume(ctx context.Context, deliver deliverFunc) {
	defer c.wg.Done()

	handler := &groupHandler{deliver: deliver}

	for {
		if ctx.Err() != nil {
			return
		}

		// Consume returns on every rebalance; the loop rejoins the group.
		err := c.consumer.Consume(ctx, []string{c.topic}, handler)
		if err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return
			}

			c.logger.ErrorContext(ctx, "Kafka consumer error", "error", err)

			select {
			case <-ctx.Done():
				return
			case <-time.After(kafkaRetryInterval):
			}
		}
	}
}

func (c *kafkaConsumer) monitorErrors(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case err, ok := <-c.consumer.Errors():
			if !ok {
				return
			}

			c.logger.ErrorContext(ctx, "Kafka consumer group error", "error", err)
		case <-ctx.Done():
			return
		}
	}
}

func (c *kafkaConsumer) stop(_ context.Context) error {
	if c.cancel != nil {
		c.cancel()
	}

	var err error

	if c.consumer != nil {
		err = c.consumer.Close()
	}

	c.wg.Wait()

	return err
}

type groupHandler struct {
	deliver deliverFunc
}

func (h *groupHandler) Setup(sarama.ConsumerGroupSession) error   { return nil }
func (h *groupHandler) Cleanup(sarama.ConsumerGroupSession) error { return nil }

func (h *groupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		h.deliver(session.Context(), message.Value)
		session.MarkMessage(message, "")
	}

	return nil
}
