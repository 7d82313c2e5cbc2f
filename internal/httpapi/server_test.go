package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/bus"
	"github.com/nextlevelbuilder/wapipe/internal/channels"
	"github.com/nextlevelbuilder/wapipe/internal/config"
	"github.com/nextlevelbuilder/wapipe/internal/pipeline"
	"github.com/nextlevelbuilder/wapipe/internal/providers"
	"github.com/nextlevelbuilder/wapipe/internal/store"
	"github.com/nextlevelbuilder/wapipe/internal/store/memory"
)

type stubChannel struct {
	verifyOK bool
	msgs     []bus.InboundMessage
	sent     []string
	sendErr  error
}

func (c *stubChannel) Name() string                          { return "stub" }
func (c *stubChannel) VerifyIncoming(channels.RawEvent) bool { return c.verifyOK }

func (c *stubChannel) ParseIncoming(channels.RawEvent) ([]bus.InboundMessage, []bus.DeliveryStatus, error) {
	return c.msgs, nil, nil
}

func (c *stubChannel) Send(_ context.Context, recipientID, body string) error {
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, recipientID+": "+body)
	return nil
}

type stubAI struct{}

func (stubAI) Name() string                                 { return "stub-ai" }
func (stubAI) CreateThread(context.Context) (string, error) { return "thread_1", nil }
func (stubAI) Respond(context.Context, string, string) (string, error) {
	return "stub reply", nil
}

var _ providers.AIProvider = stubAI{}

type stubPinger struct{ err error }

func (p stubPinger) Ping() error { return p.err }

func newTestServer(t *testing.T, ch *stubChannel, queue interface{ Ping() error }) *Server {
	t.Helper()

	cfg := config.Default()
	cfg.Server.VerifyToken = "verify-me"
	cfg.Server.AuthToken = "operator-token"

	kv := memory.New()
	threads := store.NewThreadStore(kv, time.Hour)
	limiter := store.NewLimiter(kv, time.Minute, nil)
	proc := pipeline.NewProcessor(threads, limiter, ch, stubAI{}, pipeline.ProcessorOptions{}, nil)
	guard := store.NewGuard(kv, time.Hour)
	dispatcher := pipeline.NewDispatcher(nil, proc, nil)
	ingestor := pipeline.NewIngestor(ch, guard, dispatcher, nil)

	return NewServer(cfg, ingestor, ch, kv, queue)
}

func TestWebhookVerify(t *testing.T) {
	srv := newTestServer(t, &stubChannel{}, nil)
	mux := srv.BuildMux()

	tests := []struct {
		name     string
		query    string
		wantCode int
		wantBody string
	}{
		{"valid", "hub.mode=subscribe&hub.verify_token=verify-me&hub.challenge=12345", http.StatusOK, "12345"},
		{"wrong token", "hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", http.StatusForbidden, ""},
		{"wrong mode", "hub.mode=unsubscribe&hub.verify_token=verify-me&hub.challenge=12345", http.StatusForbidden, ""},
		{"missing params", "hub.challenge=12345", http.StatusBadRequest, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/webhook?"+tt.query, nil)
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != tt.wantCode {
				t.Fatalf("code = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantBody != "" && rec.Body.String() != tt.wantBody {
				t.Fatalf("body = %q, want challenge echo %q", rec.Body.String(), tt.wantBody)
			}
		})
	}
}

func TestWebhookEvent(t *testing.T) {
	ch := &stubChannel{
		verifyOK: true,
		msgs: []bus.InboundMessage{{
			MessageID: "m1", SenderID: "u1", Body: "hi", Kind: bus.KindText, Channel: "stub",
		}},
	}
	srv := newTestServer(t, ch, nil)
	mux := srv.BuildMux()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{"event": true}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if len(ch.sent) != 1 {
		t.Fatalf("sent = %d, want 1 (inline processing)", len(ch.sent))
	}
}

func TestWebhookEventBadSignature(t *testing.T) {
	srv := newTestServer(t, &stubChannel{verifyOK: false}, nil)
	mux := srv.BuildMux()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", rec.Code)
	}
}

func TestWebhookEventEmptyBody(t *testing.T) {
	srv := newTestServer(t, &stubChannel{verifyOK: true}, nil)
	mux := srv.BuildMux()

	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(""))
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestWebhookFloodGuard(t *testing.T) {
	ch := &stubChannel{verifyOK: true}
	srv := newTestServer(t, ch, nil)
	srv.cfg.Server.WebhookRPM = 2
	srv.flood = channels.NewFloodGuard(time.Minute, 2)
	mux := srv.BuildMux()

	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		last = rec.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("third request code = %d, want 429", last)
	}
}

func TestSendMessage(t *testing.T) {
	ch := &stubChannel{}
	srv := newTestServer(t, ch, nil)
	mux := srv.BuildMux()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"to": "u9", "body": "manual hello"}`))
	req.Header.Set("Authorization", "Bearer operator-token")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d: %s", rec.Code, rec.Body.String())
	}
	var resp map[string]string
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["send_id"] == "" {
		t.Fatal("response should carry a send_id")
	}
	if len(ch.sent) != 1 || ch.sent[0] != "u9: manual hello" {
		t.Fatalf("sent = %v", ch.sent)
	}
}

func TestSendMessageAuth(t *testing.T) {
	tests := []struct {
		name   string
		header string
	}{
		{"no header", ""},
		{"wrong token", "Bearer nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := &stubChannel{}
			srv := newTestServer(t, ch, nil)
			mux := srv.BuildMux()

			req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"to": "u9", "body": "x"}`))
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			mux.ServeHTTP(rec, req)

			if rec.Code != http.StatusUnauthorized {
				t.Fatalf("code = %d, want 401", rec.Code)
			}
			if len(ch.sent) != 0 {
				t.Fatal("unauthorized request must not send")
			}
		})
	}
}

func TestSendMessageDisabledWithoutToken(t *testing.T) {
	ch := &stubChannel{}
	srv := newTestServer(t, ch, nil)
	srv.cfg.Server.AuthToken = ""
	mux := srv.BuildMux()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"to": "u9", "body": "x"}`))
	req.Header.Set("Authorization", "Bearer ")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401 when no token is configured", rec.Code)
	}
}

func TestSendMessageMissingFields(t *testing.T) {
	srv := newTestServer(t, &stubChannel{}, nil)
	mux := srv.BuildMux()

	req := httptest.NewRequest(http.MethodPost, "/v1/messages", strings.NewReader(`{"to": "u9"}`))
	req.Header.Set("Authorization", "Bearer operator-token")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("code = %d, want 400", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubChannel{}, stubPinger{})
	mux := srv.BuildMux()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}
	var out healthStatus
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Status != "ok" || out.Store != "ok" || out.Queue != "ok" {
		t.Fatalf("health = %+v", out)
	}
}

func TestHealthDegradedQueue(t *testing.T) {
	srv := newTestServer(t, &stubChannel{}, stubPinger{err: errors.New("redis down")})
	mux := srv.BuildMux()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("code = %d, want 503", rec.Code)
	}
	var out healthStatus
	json.Unmarshal(rec.Body.Bytes(), &out)
	if out.Status != "degraded" {
		t.Fatalf("status = %q, want degraded", out.Status)
	}
}
