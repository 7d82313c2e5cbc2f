// Package queue wraps the asynq task-queue substrate. Delivery is
// at-least-once: a task may run more than once, so correctness under replay
// is owned by the idempotency guard and the conditional writes in the
// pipeline, never by the queue itself.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
)

// TaskProcessMessage is the single task type the relay enqueues.
const TaskProcessMessage = "relay:process_message"

// queueName isolates relay tasks from anything else on the same Redis.
const queueName = "relay"

// Client enqueues messages for background processing.
type Client struct {
	client      *asynq.Client
	maxAttempts int
	retention   time.Duration
}

// NewClient connects to the queue's Redis. maxAttempts is the total number
// of executions a task gets before it is terminal (first run included).
func NewClient(redisURL string, maxAttempts int) (*Client, error) {
	opt, err := asynq.ParseRedisURI(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse queue redis url: %w", err)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Client{
		client:      asynq.NewClient(opt),
		maxAttempts: maxAttempts,
		retention:   24 * time.Hour,
	}, nil
}

// Enqueue hands one message to the queue. An error here means the substrate
// is unreachable; the dispatcher falls back to inline processing.
func (c *Client) Enqueue(ctx context.Context, msg bus.InboundMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal task payload: %w", err)
	}

	task := asynq.NewTask(TaskProcessMessage, payload)
	_, err = c.client.EnqueueContext(ctx, task,
		asynq.Queue(queueName),
		asynq.MaxRetry(c.maxAttempts-1),
		asynq.Retention(c.retention),
	)
	if err != nil {
		return fmt.Errorf("enqueue %s: %w", msg.MessageID, err)
	}
	return nil
}

// Ping reports queue-substrate reachability (health checks).
func (c *Client) Ping() error {
	return c.client.Ping()
}

// Close releases the underlying Redis connections.
func (c *Client) Close() error {
	return c.client.Close()
}

// Backoff returns the delay before attempt n+1: base×2^n, capped.
// n is the number of retries already consumed (0 for the first retry).
func Backoff(base, cap time.Duration, n int) time.Duration {
	if base <= 0 {
		base = 5 * time.Second
	}
	d := base
	for i := 0; i < n; i++ {
		d *= 2
		if cap > 0 && d >= cap {
			return cap
		}
	}
	if cap > 0 && d > cap {
		return cap
	}
	return d
}
