package pipeline

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
)

// Enqueuer hands a message to the at-least-once task queue. Implementations
// must be safe for concurrent use.
type Enqueuer interface {
	Enqueue(ctx context.Context, msg bus.InboundMessage) error
}

// Dispatcher decides between queued and inline execution. The primary mode
// enqueues and returns immediately so the webhook path answers fast; when
// the queue substrate is down it degrades to synchronous processing rather
// than dropping the message.
type Dispatcher struct {
	queue Enqueuer // nil = inline-only (tests, minimal deployments)
	proc  *Processor
	log   *slog.Logger
}

// NewDispatcher wires the dispatcher. queue may be nil.
func NewDispatcher(queue Enqueuer, proc *Processor, log *slog.Logger) *Dispatcher {
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{queue: queue, proc: proc, log: log}
}

// Dispatch routes one message. queued reports which mode ran; err is only
// non-nil for inline execution, since queued processing reports its own
// failures through the worker.
func (d *Dispatcher) Dispatch(ctx context.Context, msg bus.InboundMessage) (queued bool, err error) {
	if d.queue != nil {
		if err := d.queue.Enqueue(ctx, msg); err == nil {
			d.log.Info("dispatch.enqueued", "message_id", msg.MessageID)
			return true, nil
		} else {
			d.log.Warn("dispatch.enqueue_failed_falling_back", "message_id", msg.MessageID, "error", err)
		}
	}

	if err := d.proc.Process(ctx, msg); err != nil {
		d.log.Error("dispatch.inline_processing_failed", "message_id", msg.MessageID, "error", err)
		return false, err
	}
	return false, nil
}
