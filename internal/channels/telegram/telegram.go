// Package telegram implements channels.Provider on the Telegram Bot API in
// webhook mode. Telegram authenticates webhook deliveries with a shared
// secret header instead of a payload signature.
package telegram

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
	"github.com/nextlevelbuilder/wapipe/internal/channels"
	"github.com/nextlevelbuilder/wapipe/internal/config"
)

const secretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// Provider implements channels.Provider for Telegram.
type Provider struct {
	bot *telego.Bot
	cfg config.TelegramConfig
}

// New creates a Telegram provider from config.
func New(cfg config.TelegramConfig) (*Provider, error) {
	if cfg.Token == "" {
		return nil, fmt.Errorf("telegram token is required")
	}

	bot, err := telego.NewBot(cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}

	return &Provider{bot: bot, cfg: cfg}, nil
}

func (p *Provider) Name() string { return "telegram" }

// VerifyIncoming compares the webhook secret token header. With no secret
// configured, verification is skipped (dev mode).
func (p *Provider) VerifyIncoming(ev channels.RawEvent) bool {
	if p.cfg.SecretToken == "" {
		return true
	}
	got := ev.Header.Get(secretTokenHeader)
	return subtle.ConstantTimeCompare([]byte(got), []byte(p.cfg.SecretToken)) == 1
}

// ParseIncoming decodes one webhook Update. Telegram delivers one update per
// request, and message ids are only unique per chat, so the dedup key
// combines both.
func (p *Provider) ParseIncoming(ev channels.RawEvent) ([]bus.InboundMessage, []bus.DeliveryStatus, error) {
	var update telego.Update
	if err := json.Unmarshal(ev.Body, &update); err != nil {
		return nil, nil, fmt.Errorf("parse telegram update: %w", err)
	}

	m := update.Message
	if m == nil {
		// Edited messages, callbacks etc. are out of scope; acknowledge.
		return nil, nil, nil
	}

	chatID := strconv.FormatInt(m.Chat.ID, 10)
	kind := bus.KindText
	if m.Text == "" {
		kind = bus.KindUnsupported
	}

	senderName := ""
	if m.From != nil {
		senderName = m.From.FirstName
	}

	msg := bus.InboundMessage{
		MessageID:  fmt.Sprintf("tg:%s:%d", chatID, m.MessageID),
		SenderID:   chatID,
		SenderName: senderName,
		Body:       m.Text,
		Kind:       kind,
		Channel:    p.Name(),
		ReceivedAt: time.Unix(m.Date, 0).UTC(),
	}
	return []bus.InboundMessage{msg}, nil, nil
}

// Send delivers a text message to a chat.
func (p *Provider) Send(ctx context.Context, recipientID, body string) error {
	chatID, err := strconv.ParseInt(recipientID, 10, 64)
	if err != nil {
		return fmt.Errorf("telegram recipient %q: %w", recipientID, err)
	}

	if _, err := p.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), body)); err != nil {
		return fmt.Errorf("telegram send to %s: %w", recipientID, err)
	}
	return nil
}
