package whatsapp

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
	"github.com/nextlevelbuilder/wapipe/internal/channels"
	"github.com/nextlevelbuilder/wapipe/internal/config"
)

const sampleTextEvent = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "id": "102290129340398",
    "changes": [{
      "value": {
        "messaging_product": "whatsapp",
        "metadata": {"display_phone_number": "15550783881", "phone_number_id": "106540352242922"},
        "contacts": [{"profile": {"name": "Ada"}, "wa_id": "16505551234"}],
        "messages": [{
          "from": "16505551234",
          "id": "wamid.HBgLMTY1MDUwNzY1MjAVAgASGBQzQTdCRjE=",
          "timestamp": "1700000000",
          "text": {"body": "hello there"},
          "type": "text"
        }]
      },
      "field": "messages"
    }]
  }]
}`

const sampleStatusEvent = `{
  "object": "whatsapp_business_account",
  "entry": [{
    "changes": [{
      "value": {
        "statuses": [{
          "id": "wamid.OUT1",
          "status": "failed",
          "recipient_id": "16505551234",
          "errors": [{"title": "Message undeliverable"}]
        }]
      }
    }]
  }]
}`

func testProvider(t *testing.T, cfg config.WhatsAppConfig) *Provider {
	t.Helper()
	if cfg.AccessToken == "" {
		cfg.AccessToken = "test-token"
	}
	if cfg.PhoneNumberID == "" {
		cfg.PhoneNumberID = "106540352242922"
	}
	if cfg.APIVersion == "" {
		cfg.APIVersion = "v18.0"
	}
	p, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func TestParseIncomingText(t *testing.T) {
	p := testProvider(t, config.WhatsAppConfig{})

	msgs, statuses, err := p.ParseIncoming(channels.RawEvent{Body: []byte(sampleTextEvent)})
	if err != nil {
		t.Fatalf("ParseIncoming: %v", err)
	}
	if len(statuses) != 0 {
		t.Fatalf("statuses = %d, want 0", len(statuses))
	}
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}

	m := msgs[0]
	if m.MessageID != "wamid.HBgLMTY1MDUwNzY1MjAVAgASGBQzQTdCRjE=" {
		t.Errorf("MessageID = %q", m.MessageID)
	}
	if m.SenderID != "16505551234" || m.SenderName != "Ada" {
		t.Errorf("sender = (%q, %q)", m.SenderID, m.SenderName)
	}
	if m.Kind != bus.KindText || m.Body != "hello there" {
		t.Errorf("body = (%q, %q)", m.Kind, m.Body)
	}
	if m.Channel != "whatsapp" {
		t.Errorf("Channel = %q", m.Channel)
	}
	if m.ReceivedAt.Unix() != 1700000000 {
		t.Errorf("ReceivedAt = %v, want unix 1700000000", m.ReceivedAt)
	}
}

func TestParseIncomingNonText(t *testing.T) {
	event := `{
	  "object": "whatsapp_business_account",
	  "entry": [{"changes": [{"value": {"messages": [
	    {"from": "1650", "id": "wamid.IMG1", "timestamp": "1700000000", "type": "image"}
	  ]}}]}]
	}`
	p := testProvider(t, config.WhatsAppConfig{})

	msgs, _, err := p.ParseIncoming(channels.RawEvent{Body: []byte(event)})
	if err != nil || len(msgs) != 1 {
		t.Fatalf("ParseIncoming = (%d msgs, %v)", len(msgs), err)
	}
	if msgs[0].Kind != bus.KindUnsupported || msgs[0].Body != "" {
		t.Errorf("non-text message = (%q, %q), want (unsupported, empty)", msgs[0].Kind, msgs[0].Body)
	}
}

func TestParseIncomingStatuses(t *testing.T) {
	p := testProvider(t, config.WhatsAppConfig{})

	msgs, statuses, err := p.ParseIncoming(channels.RawEvent{Body: []byte(sampleStatusEvent)})
	if err != nil || len(msgs) != 0 || len(statuses) != 1 {
		t.Fatalf("ParseIncoming = (%d msgs, %d statuses, %v)", len(msgs), len(statuses), err)
	}
	s := statuses[0]
	if s.Status != "failed" || s.Error != "Message undeliverable" {
		t.Errorf("status = %+v", s)
	}
}

func TestParseIncomingRejectsForeignPayload(t *testing.T) {
	p := testProvider(t, config.WhatsAppConfig{})
	if _, _, err := p.ParseIncoming(channels.RawEvent{Body: []byte(`{"update_id": 5}`)}); err == nil {
		t.Fatal("expected an error for a non-whatsapp payload")
	}
	if _, _, err := p.ParseIncoming(channels.RawEvent{Body: []byte(`not json`)}); err == nil {
		t.Fatal("expected an error for malformed json")
	}
}

func TestVerifyIncoming(t *testing.T) {
	const secret = "app-secret"
	body := []byte(sampleTextEvent)

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	goodSig := "sha256=" + hex.EncodeToString(mac.Sum(nil))

	p := testProvider(t, config.WhatsAppConfig{AppSecret: secret})

	tests := []struct {
		name string
		sig  string
		want bool
	}{
		{"valid", goodSig, true},
		{"tampered", "sha256=" + hex.EncodeToString(make([]byte, 32)), false},
		{"missing", "", false},
		{"garbage", "sha256=zzzz", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.sig != "" {
				h.Set("X-Hub-Signature-256", tt.sig)
			}
			got := p.VerifyIncoming(channels.RawEvent{Body: body, Header: h})
			if got != tt.want {
				t.Errorf("VerifyIncoming = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestVerifyIncomingNoSecret(t *testing.T) {
	p := testProvider(t, config.WhatsAppConfig{})
	if !p.VerifyIncoming(channels.RawEvent{Body: []byte("{}"), Header: http.Header{}}) {
		t.Fatal("verification should pass when no app secret is configured")
	}
}

func TestSend(t *testing.T) {
	var gotPath string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"messages": [{"id": "wamid.OUT1"}]}`))
	}))
	defer srv.Close()

	p := testProvider(t, config.WhatsAppConfig{APIBase: srv.URL})

	if err := p.Send(context.Background(), "16505551234", "reply with **bold**"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if gotPath != "/v18.0/106540352242922/messages" {
		t.Errorf("path = %q", gotPath)
	}
	if gotBody["to"] != "16505551234" {
		t.Errorf("to = %v", gotBody["to"])
	}
	text, _ := gotBody["text"].(map[string]any)
	if text["body"] != "reply with *bold*" {
		t.Errorf("body = %v, want normalized bold", text["body"])
	}
}

func TestSendAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "Invalid recipient", "code": 131026}}`))
	}))
	defer srv.Close()

	p := testProvider(t, config.WhatsAppConfig{APIBase: srv.URL})

	err := p.Send(context.Background(), "bad", "hi")
	if err == nil {
		t.Fatal("expected an error from a 400 response")
	}
}

func TestNormalizeReply(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"plain", "hello", "hello"},
		{"citation stripped", "See the docs【4:0†source】 for more.", "See the docs for more."},
		{"bold converted", "this is **important** stuff", "this is *important* stuff"},
		{"both", "**Note**【1†a】: done", "*Note*: done"},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeReply(tt.in); got != tt.want {
				t.Errorf("NormalizeReply(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
