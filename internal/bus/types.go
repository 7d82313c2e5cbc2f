// Package bus defines the canonical message types exchanged between the
// webhook ingestion path, the task queue, and the processing pipeline.
package bus

import "time"

// Message kinds. Anything other than KindText short-circuits to a canned
// reply without reaching the AI backend.
const (
	KindText        = "text"
	KindUnsupported = "unsupported"
)

// InboundMessage is one user message normalized from a raw provider event.
// Immutable once constructed; it is the payload serialized onto the task
// queue, so every worker process must be able to rebuild it from JSON alone.
type InboundMessage struct {
	MessageID  string    `json:"message_id"` // provider-unique id, dedup key
	SenderID   string    `json:"sender_id"`  // stable user identifier (wa_id, chat id)
	SenderName string    `json:"sender_name,omitempty"`
	Body       string    `json:"body"`
	Kind       string    `json:"kind"`
	Channel    string    `json:"channel"` // originating channel name ("whatsapp", "telegram")
	ReceivedAt time.Time `json:"received_at"`
}

// OutboundMessage is a reply to be delivered to a channel recipient.
type OutboundMessage struct {
	RecipientID string `json:"recipient_id"`
	Body        string `json:"body"`
	Channel     string `json:"channel"`
}

// DeliveryStatus is a channel-side status update (sent/delivered/read/failed)
// for a previously sent message. Status events never enter the pipeline;
// ingestion logs them and acknowledges.
type DeliveryStatus struct {
	MessageID   string `json:"message_id"`
	RecipientID string `json:"recipient_id"`
	Status      string `json:"status"`
	Error       string `json:"error,omitempty"`
}
