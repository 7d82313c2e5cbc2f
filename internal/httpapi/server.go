// Package httpapi is the thin process-facing HTTP surface: webhook
// ingestion, a manual-send endpoint, and health checks. It holds no
// pipeline logic beyond translating HTTP into Ingest calls.
package httpapi

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/nextlevelbuilder/wapipe/internal/channels"
	"github.com/nextlevelbuilder/wapipe/internal/config"
	"github.com/nextlevelbuilder/wapipe/internal/pipeline"
	"github.com/nextlevelbuilder/wapipe/internal/store"
)

// Server hosts the webhook listener.
type Server struct {
	cfg      *config.Config
	ingestor *pipeline.Ingestor
	channel  channels.Provider
	kv       store.KV
	queue    interface{ Ping() error } // nil when running inline-only
	flood    *channels.FloodGuard

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer wires the HTTP surface. queue may be nil.
func NewServer(cfg *config.Config, ingestor *pipeline.Ingestor, channel channels.Provider, kv store.KV, queue interface{ Ping() error }) *Server {
	return &Server{
		cfg:      cfg,
		ingestor: ingestor,
		channel:  channel,
		kv:       kv,
		queue:    queue,
		flood:    channels.NewFloodGuard(time.Minute, cfg.Server.WebhookRPM),
	}
}

// BuildMux creates and caches the mux with all routes registered.
func (s *Server) BuildMux() *http.ServeMux {
	if s.mux != nil {
		return s.mux
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /webhook", s.handleWebhookVerify)
	mux.HandleFunc("POST /webhook", s.handleWebhookEvent)
	mux.HandleFunc("POST /v1/messages", s.handleSendMessage)
	mux.HandleFunc("GET /health", s.handleHealth)

	s.mux = mux
	return mux
}

// Start begins serving. Blocks until the listener fails or Shutdown runs.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.BuildMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	slog.Info("http.listening", "addr", addr, "channel", s.channel.Name())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
