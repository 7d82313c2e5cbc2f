// Package channels provides the messaging-channel capability layer. A
// Provider hides one platform's wire protocol (WhatsApp Cloud API webhooks,
// Telegram Bot API updates) behind verify/parse/send; the pipeline never
// sees raw payloads.
package channels

import (
	"context"
	"net/http"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
)

// RawEvent is one unparsed webhook delivery: the body bytes exactly as
// received (signature verification needs them untouched) plus the headers.
type RawEvent struct {
	Body   []byte
	Header http.Header
}

// Provider is the capability interface every channel implements.
type Provider interface {
	// Name returns the channel identifier ("whatsapp", "telegram").
	Name() string

	// VerifyIncoming checks the event's authenticity (signature or shared
	// secret). Events that fail verification are rejected with no side
	// effects.
	VerifyIncoming(ev RawEvent) bool

	// ParseIncoming extracts messages and delivery-status updates from one
	// raw event. A single event may batch several of either.
	ParseIncoming(ev RawEvent) ([]bus.InboundMessage, []bus.DeliveryStatus, error)

	// Send delivers a reply to a recipient.
	Send(ctx context.Context, recipientID, body string) error
}

// ReadAcker is implemented by providers that can mark an inbound message as
// read (shows the typing/seen state to the user). Best-effort; the pipeline
// ignores failures.
type ReadAcker interface {
	MarkRead(ctx context.Context, messageID string) error
}
