package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	redisPopTimeout  = 1 * time.Second
	redisPingTimeout = 5 * time.Second
)

type redisConsumer struct {
	queue  string
	client redis.UniversalClient
	logger *slog.Logger
	stopCh chan struct{}
	wg     sync.WaitGroup

	addr     string
	password string
	db       int
}

func newRedisConsumer(queue string, connection map[string]string, logger *slog.Logger) *redisConsumer {
	addr := connection["addr"]
	if addr == "" {
		addr = "localhost:6379"
	}

	db := 0
	if dbStr := connection["db"]; dbStr != "" {
		if parsed, err := strconv.Atoi(dbStr); err == nil {
			db = parsed
		}
	}

	return &redisConsumer{
		queue:    queue,
		logger:   logger,
		stopCh:   make(chan struct{}),
		addr:     addr,
		password: connection["password"],
		db:       db,
	}
}

func (c *redisConsumer) start(ctx context.Context, deliver deliverFunc) error {
	c.client = redis.NewClient(&redis.Options{
		Addr:     c.addr,
		Password: c.password,
		DB:       c.db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()

	if err := c.client.Ping(pingCtx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	c.logger.InfoContext(ctx, "Connected to Redis", "addr", c.addr, "db", c.db)
	c.wg.Add(1)

	go c.consume(ctx, deliver)

	return nil
}

func (c *redisConsumer) consume(ctx context.Context, deliver deliverFunc) {
	defer c.wg.Done()

	for {
		select {
		case <-c.stopCh:
			c.logger.InfoContext(ctx, "Queue consumer stopped")

			return
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Context cancelled, stopping queue consumer")

			return
		default:
			if err := c.poll(ctx, deliver); err != nil {
				c.logger.ErrorContext(ctx, "Error consuming queue message", "error", err)
				time.Sleep(1 * time.Second)
			}
		}
	}
}

func (c *redisConsumer) poll(ctx context.Context, deliver deliverFunc) error {
	result, err := c.client.BLPop(ctx, redisPopTimeout, c.queue).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil
		}

		return fmt.Errorf("failed to pop message from queue: %w", err)
	}

	// BLPop returns [key, value].
	if len(result) < 2 {
		return nil
	}

	deliver(ctx, []byte(result[1]))

	return nil
}

func (c *redisConsumer) stop(ctx context.Context) error {
	close(c.stopCh)
	c.wg.Wait()

	if c.client == nil {
		return nil
	}

	if err := c.client.Close(); err != nil {
		c.logger.ErrorContext(ctx, "Error closing Redis client", "error", err)

		return err
	}

	return nil
}
