package pipeline

import (
	"context"
	"log/slog"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
	"github.com/nextlevelbuilder/wapipe/internal/channels"
	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// Outcome classifies what ingestion did with one message.
type Outcome string

const (
	OutcomeAccepted  Outcome = "accepted"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeRejected  Outcome = "rejected"
)

// Result is the per-message ingestion verdict. Err is only set for inline
// fallback processing failures; queued messages report through the worker.
type Result struct {
	MessageID string
	Outcome   Outcome
	Queued    bool
	Err       error
}

// Ingestor is the pipeline entry point: verify → parse → claim → dispatch.
// The idempotency claim happens before any downstream work, so a redelivered
// event produces zero side effects beyond the claim check itself.
type Ingestor struct {
	channel    channels.Provider
	guard      *store.Guard
	dispatcher *Dispatcher
	log        *slog.Logger
}

// NewIngestor wires the ingestion path.
func NewIngestor(channel channels.Provider, guard *store.Guard, dispatcher *Dispatcher, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{channel: channel, guard: guard, dispatcher: dispatcher, log: log}
}

// Ingest handles one raw webhook delivery. A *ValidationError return means
// the whole event was rejected with no side effects; otherwise one Result
// per parsed message.
func (i *Ingestor) Ingest(ctx context.Context, ev channels.RawEvent) ([]Result, error) {
	if !i.channel.VerifyIncoming(ev) {
		i.log.Warn("ingest.signature_rejected", "channel", i.channel.Name())
		return nil, &ValidationError{Reason: "signature verification failed"}
	}

	msgs, statuses, err := i.channel.ParseIncoming(ev)
	if err != nil {
		return nil, &ValidationError{Reason: err.Error()}
	}

	// Status updates are logged and acknowledged; they never enter the
	// pipeline.
	for _, s := range statuses {
		if s.Status == "failed" {
			i.log.Error("ingest.delivery_failed", "message_id", s.MessageID, "recipient_id", s.RecipientID, "error", s.Error)
		} else {
			i.log.Info("ingest.delivery_status", "message_id", s.MessageID, "status", s.Status)
		}
	}

	results := make([]Result, 0, len(msgs))
	for _, msg := range msgs {
		results = append(results, i.ingestOne(ctx, msg))
	}
	return results, nil
}

func (i *Ingestor) ingestOne(ctx context.Context, msg bus.InboundMessage) Result {
	claimed, err := i.guard.Claim(ctx, msg.MessageID)
	if err != nil {
		// Store outage: favor delivery over dedup. The worst case is a
		// duplicate reply during the outage; a dropped message is worse.
		i.log.Warn("ingest.claim_degraded", "message_id", msg.MessageID, "error", err)
		claimed = true
	}
	if !claimed {
		i.log.Info("ingest.duplicate_message", "message_id", msg.MessageID)
		return Result{MessageID: msg.MessageID, Outcome: OutcomeDuplicate}
	}

	queued, err := i.dispatcher.Dispatch(ctx, msg)
	return Result{
		MessageID: msg.MessageID,
		Outcome:   OutcomeAccepted,
		Queued:    queued,
		Err:       err,
	}
}
