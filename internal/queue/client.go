package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/arvault/arvault/internal/config"
	"github.com/arvault/arvault/internal/queue/handlers"
	"github.com/hibiken/asynq"
)

func redisConnOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     config.RedisAddr(),
		Password: os.Getenv(config.ENV_KEY_REDIS_PASSWORD),
	}
}

// NewExpirePendingUploadsTask builds the sweep task. A zero olderThan uses
// the default window.
func NewExpirePendingUploadsTask(olderThan time.Duration) (*asynq.Task, error) {
	payload, err := json.Marshal(handlers.ExpirePendingUploadsPayload{
		OlderThanSeconds: int64(olderThan / time.Second),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal task payload: %w", err)
	}
	return asynq.NewTask(config.TASK_TYPE_EXPIRE_PENDING_UPLOADS, payload,
		asynq.Queue("low"),
		asynq.MaxRetry(3),
		asynq.Timeout(5*time.Minute),
	), nil
}

// Client wraps asynq.Client for enqueuing tasks
type Client struct {
	client *asynq.Client
	logger *slog.Logger
}

func NewClient(opt asynq.RedisConnOpt, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		client: asynq.NewClient(opt),
		logger: logger,
	}
}

// NewClientFromEnv connects to the Redis instance the workers consume from.
func NewClientFromEnv(logger *slog.Logger) *Client {
	return NewClient(redisConnOpt(), logger)
}

// Close closes the client connection
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueExpirePendingUploads requests an immediate sweep, outside the
// scheduler's cadence.
func (c *Client) EnqueueExpirePendingUploads(ctx context.Context, olderThan time.Duration) error {
	task, err := NewExpirePendingUploadsTask(olderThan)
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, task)
	if err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.InfoContext(ctx, "enqueued task",
		slog.String("id", info.ID), slog.String("queue", info.Queue), slog.String("type", info.Type))
	return nil
}
