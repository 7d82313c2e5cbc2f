package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
	"github.com/nextlevelbuilder/wapipe/internal/pipeline"
)

// DeadLetterRecorder journals a terminally failed message for operators.
// Implementations must tolerate being called concurrently.
type DeadLetterRecorder interface {
	RecordFailure(ctx context.Context, msg bus.InboundMessage, reason string, attempts int) error
}

// WorkerConfig tunes the queue consumer.
type WorkerConfig struct {
	RedisURL    string
	Concurrency int
	RetryBase   time.Duration
	RetryCap    time.Duration
}

// Worker consumes relay tasks and runs them through the processor. Failure
// classification happens here: transient errors requeue with exponential
// backoff, terminal errors (or exhausted attempts) are logged, journaled,
// and never retried. No reply is fabricated for the user on terminal
// failure.
type Worker struct {
	srv  *asynq.Server
	mux  *asynq.ServeMux
	proc *pipeline.Processor
	dead DeadLetterRecorder // nil = log only
	log  *slog.Logger
}

// NewWorker builds the consumer. dead may be nil.
func NewWorker(cfg WorkerConfig, proc *pipeline.Processor, dead DeadLetterRecorder, log *slog.Logger) (*Worker, error) {
	opt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse queue redis url: %w", err)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 10
	}
	if log == nil {
		log = slog.Default()
	}

	w := &Worker{proc: proc, dead: dead, log: log}

	w.srv = asynq.NewServer(opt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{queueName: 1},
		RetryDelayFunc: func(n int, _ error, _ *asynq.Task) time.Duration {
			return Backoff(cfg.RetryBase, cfg.RetryCap, n)
		},
		ErrorHandler: asynq.ErrorHandlerFunc(w.handleError),
	})

	w.mux = asynq.NewServeMux()
	w.mux.HandleFunc(TaskProcessMessage, w.handleProcessMessage)

	return w, nil
}

// Run blocks until Shutdown is called.
func (w *Worker) Run() error {
	return w.srv.Run(w.mux)
}

// Shutdown stops consuming and waits for in-flight tasks.
func (w *Worker) Shutdown() {
	w.srv.Shutdown()
}

func (w *Worker) handleProcessMessage(ctx context.Context, task *asynq.Task) error {
	var msg bus.InboundMessage
	if err := json.Unmarshal(task.Payload(), &msg); err != nil {
		// A payload this process cannot decode will not decode next time
		// either.
		return fmt.Errorf("unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	retried, _ := asynq.GetRetryCount(ctx)
	w.log.Info("worker.task_started", "message_id", msg.MessageID, "attempt", retried+1)

	err := w.proc.Process(ctx, msg)
	if err == nil {
		w.log.Info("worker.task_completed", "message_id", msg.MessageID)
		return nil
	}

	if !pipeline.IsTransient(err) {
		return fmt.Errorf("process %s: %v: %w", msg.MessageID, err, asynq.SkipRetry)
	}
	return fmt.Errorf("process %s: %w", msg.MessageID, err)
}

// handleError runs after every failed attempt. Terminal failures (skipped
// retries and exhausted attempts) are surfaced for alerting and journaled.
func (w *Worker) handleError(ctx context.Context, task *asynq.Task, err error) {
	retried, _ := asynq.GetRetryCount(ctx)
	maxRetry, _ := asynq.GetMaxRetry(ctx)

	terminal := errors.Is(err, asynq.SkipRetry) || retried >= maxRetry
	if !terminal {
		w.log.Warn("worker.task_retrying", "attempt", retried+1, "max_attempts", maxRetry+1, "error", err)
		return
	}

	var msg bus.InboundMessage
	if uerr := json.Unmarshal(task.Payload(), &msg); uerr != nil {
		w.log.Error("worker.terminal_failure_unparseable", "error", err)
		return
	}

	w.log.Error("worker.terminal_failure",
		"message_id", msg.MessageID,
		"sender_id", msg.SenderID,
		"attempts", retried+1,
		"error", err,
	)

	if w.dead != nil {
		recCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if derr := w.dead.RecordFailure(recCtx, msg, err.Error(), retried+1); derr != nil {
			w.log.Error("worker.dead_letter_failed", "message_id", msg.MessageID, "error", derr)
		}
	}
}
