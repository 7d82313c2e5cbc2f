package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
	"github.com/nextlevelbuilder/wapipe/internal/channels"
	"github.com/nextlevelbuilder/wapipe/internal/providers"
	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// cannedUnsupportedReply answers message kinds the pipeline cannot forward
// to the AI backend (media, stickers, reactions).
const cannedUnsupportedReply = "Sorry, I can only handle text messages right now. Please send your question as text."

// ProcessorOptions tunes the use case. Zero values get defaults.
type ProcessorOptions struct {
	AITimeout     time.Duration // hard ceiling per AI call (default 60s)
	RateWaitMode  bool          // wait for budget instead of failing fast
	RateWaitLimit time.Duration // bounded wait ceiling (default 3s)
}

// Processor is the message-processing use case: resolve thread → invoke AI →
// deliver reply. One call handles exactly one inbound message; all state
// lives in the shared store, so any worker process can run any message.
type Processor struct {
	threads *store.ThreadStore
	limiter *store.Limiter
	channel channels.Provider
	ai      providers.AIProvider
	opts    ProcessorOptions
	log     *slog.Logger
}

// NewProcessor wires the use case. All dependencies are required.
func NewProcessor(threads *store.ThreadStore, limiter *store.Limiter, channel channels.Provider, ai providers.AIProvider, opts ProcessorOptions, log *slog.Logger) *Processor {
	if opts.AITimeout <= 0 {
		opts.AITimeout = 60 * time.Second
	}
	if opts.RateWaitLimit <= 0 {
		opts.RateWaitLimit = 3 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Processor{
		threads: threads,
		limiter: limiter,
		channel: channel,
		ai:      ai,
		opts:    opts,
		log:     log,
	}
}

// Process runs the pipeline for one message. Errors are typed for retry
// classification at the dispatcher boundary; a nil return means the reply
// was delivered (or deliberately skipped for a duplicate-safe reason).
func (p *Processor) Process(ctx context.Context, msg bus.InboundMessage) error {
	log := p.log.With("message_id", msg.MessageID, "sender_id", msg.SenderID)

	// Unsupported bodies never reach the AI backend.
	if msg.Kind != bus.KindText || msg.Body == "" {
		log.Info("process.unsupported_body", "kind", msg.Kind)
		return p.deliver(ctx, msg.SenderID, cannedUnsupportedReply)
	}

	// Best-effort read receipt; failures are irrelevant to the pipeline.
	if acker, ok := p.channel.(channels.ReadAcker); ok {
		if err := acker.MarkRead(ctx, msg.MessageID); err != nil {
			log.Debug("process.mark_read_failed", "error", err)
		}
	}

	threadID, err := p.resolveThread(ctx, msg.SenderID)
	if err != nil {
		return err
	}

	if err := p.acquire(ctx, store.ScopeAI); err != nil {
		return err
	}

	reply, err := p.invokeAI(ctx, threadID, msg.Body)
	if err != nil {
		return err
	}
	log.Info("process.ai_responded", "thread_id", threadID, "reply_len", len(reply))

	return p.deliver(ctx, msg.SenderID, reply)
}

// resolveThread returns the user's live thread, creating one when absent or
// expired. Creation uses the same conditional-write discipline as the
// idempotency guard: under concurrent replays only one AI-side thread
// survives per user, and losers adopt the winner's.
func (p *Processor) resolveThread(ctx context.Context, userID string) (string, error) {
	threadID, ok, err := p.threads.Get(ctx, userID)
	if err != nil {
		// Degraded mode: proceed with a fresh thread rather than dropping
		// the message. Context continuity suffers; delivery does not.
		p.log.Warn("process.thread_lookup_degraded", "sender_id", userID, "error", err)
		ok = false
	}
	if ok {
		if _, err := p.threads.Refresh(ctx, userID); err != nil {
			p.log.Warn("process.thread_refresh_failed", "sender_id", userID, "error", err)
		}
		return threadID, nil
	}

	created, err := p.ai.CreateThread(ctx)
	if err != nil {
		return "", p.wrapAIError(err)
	}

	won, current, err := p.threads.PutNX(ctx, userID, created)
	if err != nil {
		p.log.Warn("process.thread_claim_degraded", "sender_id", userID, "error", err)
		return created, nil
	}
	if !won {
		p.log.Info("process.thread_race_lost", "sender_id", userID, "adopted", current)
		return current, nil
	}
	return created, nil
}

// invokeAI calls the backend under the hard timeout.
func (p *Processor) invokeAI(ctx context.Context, threadID, body string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, p.opts.AITimeout)
	defer cancel()

	reply, err := p.ai.Respond(callCtx, threadID, body)
	if err != nil {
		return "", p.wrapAIError(err)
	}
	return reply, nil
}

// deliver acquires the channel budget and sends the reply.
func (p *Processor) deliver(ctx context.Context, recipientID, body string) error {
	if err := p.acquire(ctx, store.ScopeChannel); err != nil {
		return err
	}
	if err := p.channel.Send(ctx, recipientID, body); err != nil {
		return &ProviderError{Provider: p.channel.Name(), Err: err}
	}
	return nil
}

// acquire consumes one unit of the scope's budget, waiting within the
// bounded ceiling when wait mode is on.
func (p *Processor) acquire(ctx context.Context, scope string) error {
	if p.opts.RateWaitMode {
		granted, err := p.limiter.Acquire(ctx, scope, p.opts.RateWaitLimit)
		if err != nil {
			// A context cut short during the bounded wait (worker shutdown,
			// task deadline) leaves the message unprocessed, not failed; it
			// must requeue, so it reports as rate limited, not terminal.
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return &RateLimitedError{Scope: scope, RetryAfter: p.opts.RateWaitLimit}
			}
			return err
		}
		if !granted {
			return &RateLimitedError{Scope: scope, RetryAfter: p.opts.RateWaitLimit}
		}
		return nil
	}

	granted, retryAfter, err := p.limiter.TryAcquire(ctx, scope)
	if err != nil {
		return err
	}
	if !granted {
		return &RateLimitedError{Scope: scope, RetryAfter: retryAfter}
	}
	return nil
}

func (p *Processor) wrapAIError(err error) error {
	return &ProviderError{
		Provider: p.ai.Name(),
		Timeout:  errors.Is(err, context.DeadlineExceeded),
		Err:      err,
	}
}
