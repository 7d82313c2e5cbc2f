// Package whatsapp implements channels.Provider on the WhatsApp Cloud API.
// Inbound events arrive as Graph webhook deliveries signed with the app
// secret; outbound messages go through the /{phone_number_id}/messages
// endpoint.
package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
	"github.com/nextlevelbuilder/wapipe/internal/channels"
	"github.com/nextlevelbuilder/wapipe/internal/config"
)

const signatureHeader = "X-Hub-Signature-256"

// Provider implements channels.Provider for the WhatsApp Cloud API.
type Provider struct {
	cfg    config.WhatsAppConfig
	client *resty.Client
}

// New creates a WhatsApp Cloud API provider from config.
func New(cfg config.WhatsAppConfig) (*Provider, error) {
	if cfg.AccessToken == "" {
		return nil, fmt.Errorf("whatsapp access token is required")
	}
	if cfg.PhoneNumberID == "" {
		return nil, fmt.Errorf("whatsapp phone_number_id is required")
	}

	base := cfg.APIBase
	if base == "" {
		base = "https://graph.facebook.com"
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(base, "/")).
		SetAuthToken(cfg.AccessToken).
		SetTimeout(15 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(500 * time.Millisecond)

	return &Provider{cfg: cfg, client: client}, nil
}

func (p *Provider) Name() string { return "whatsapp" }

// VerifyIncoming checks the X-Hub-Signature-256 HMAC over the raw body.
// With no app secret configured, verification is skipped (dev mode).
func (p *Provider) VerifyIncoming(ev channels.RawEvent) bool {
	if p.cfg.AppSecret == "" {
		return true
	}

	sig := ev.Header.Get(signatureHeader)
	sig = strings.TrimPrefix(sig, "sha256=")
	if sig == "" {
		return false
	}
	want, err := hex.DecodeString(sig)
	if err != nil {
		return false
	}

	mac := hmac.New(sha256.New, []byte(p.cfg.AppSecret))
	mac.Write(ev.Body)
	return hmac.Equal(mac.Sum(nil), want)
}

// Webhook payload shapes (the subset the pipeline needs).
type webhookPayload struct {
	Object string `json:"object"`
	Entry  []struct {
		Changes []struct {
			Value struct {
				Contacts []struct {
					WaID    string `json:"wa_id"`
					Profile struct {
						Name string `json:"name"`
					} `json:"profile"`
				} `json:"contacts"`
				Messages []struct {
					From      string `json:"from"`
					ID        string `json:"id"`
					Timestamp string `json:"timestamp"`
					Type      string `json:"type"`
					Text      struct {
						Body string `json:"body"`
					} `json:"text"`
				} `json:"messages"`
				Statuses []struct {
					ID          string `json:"id"`
					Status      string `json:"status"`
					RecipientID string `json:"recipient_id"`
					Errors      []struct {
						Title string `json:"title"`
					} `json:"errors"`
				} `json:"statuses"`
			} `json:"value"`
		} `json:"changes"`
	} `json:"entry"`
}

// ParseIncoming normalizes one webhook delivery into messages and statuses.
// Non-text message types (media, reactions, stickers) become KindUnsupported
// so the pipeline can answer with a canned reply instead of calling the AI.
func (p *Provider) ParseIncoming(ev channels.RawEvent) ([]bus.InboundMessage, []bus.DeliveryStatus, error) {
	var payload webhookPayload
	if err := json.Unmarshal(ev.Body, &payload); err != nil {
		return nil, nil, fmt.Errorf("parse whatsapp webhook: %w", err)
	}
	if payload.Object == "" || len(payload.Entry) == 0 {
		return nil, nil, fmt.Errorf("not a whatsapp webhook event")
	}

	var msgs []bus.InboundMessage
	var statuses []bus.DeliveryStatus

	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			val := change.Value

			senderName := ""
			if len(val.Contacts) > 0 {
				senderName = val.Contacts[0].Profile.Name
			}

			for _, m := range val.Messages {
				kind := bus.KindText
				body := m.Text.Body
				if m.Type != "text" {
					kind = bus.KindUnsupported
					body = ""
				}

				receivedAt := time.Now().UTC()
				if secs, err := strconv.ParseInt(m.Timestamp, 10, 64); err == nil {
					receivedAt = time.Unix(secs, 0).UTC()
				}

				msgs = append(msgs, bus.InboundMessage{
					MessageID:  m.ID,
					SenderID:   m.From,
					SenderName: senderName,
					Body:       body,
					Kind:       kind,
					Channel:    p.Name(),
					ReceivedAt: receivedAt,
				})
			}

			for _, s := range val.Statuses {
				ds := bus.DeliveryStatus{
					MessageID:   s.ID,
					RecipientID: s.RecipientID,
					Status:      s.Status,
				}
				if len(s.Errors) > 0 {
					ds.Error = s.Errors[0].Title
				}
				statuses = append(statuses, ds)
			}
		}
	}

	return msgs, statuses, nil
}

type sendResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
	Error *struct {
		Message string `json:"message"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// Send delivers a text message. Reply text is normalized for WhatsApp
// formatting first (assistant citation markers stripped, markdown bold
// converted).
func (p *Provider) Send(ctx context.Context, recipientID, body string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"recipient_type":    "individual",
		"to":                recipientID,
		"type":              "text",
		"text":              map[string]any{"preview_url": false, "body": NormalizeReply(body)},
	}

	var out sendResponse
	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(payload).
		SetResult(&out).
		SetError(&out).
		Post(p.messagesPath())
	if err != nil {
		return fmt.Errorf("whatsapp send to %s: %w", recipientID, err)
	}
	if resp.IsError() {
		msg := resp.Status()
		if out.Error != nil {
			msg = out.Error.Message
		}
		return fmt.Errorf("whatsapp send to %s: %s", recipientID, msg)
	}
	return nil
}

// MarkRead flags an inbound message as read so the sender sees the blue
// ticks while the pipeline works. Implements channels.ReadAcker.
func (p *Provider) MarkRead(ctx context.Context, messageID string) error {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"status":            "read",
		"message_id":        messageID,
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetBody(payload).
		Post(p.messagesPath())
	if err != nil {
		return fmt.Errorf("whatsapp mark read %s: %w", messageID, err)
	}
	if resp.IsError() {
		return fmt.Errorf("whatsapp mark read %s: %s", messageID, resp.Status())
	}
	return nil
}

func (p *Provider) messagesPath() string {
	return fmt.Sprintf("/%s/%s/messages", p.cfg.APIVersion, p.cfg.PhoneNumberID)
}
