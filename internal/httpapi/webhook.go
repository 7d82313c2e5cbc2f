package httpapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/nextlevelbuilder/wapipe/internal/channels"
	"github.com/nextlevelbuilder/wapipe/internal/pipeline"
)

// handleWebhookVerify answers the channel's subscription handshake
// (hub.challenge echo, required by the WhatsApp Cloud API).
func (s *Server) handleWebhookVerify(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("hub.mode")
	token := q.Get("hub.verify_token")
	challenge := q.Get("hub.challenge")

	if mode == "" || token == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "missing parameters"})
		return
	}
	if mode != "subscribe" || token != s.cfg.Server.VerifyToken {
		slog.Warn("webhook.verification_failed")
		writeJSON(w, http.StatusForbidden, map[string]string{"status": "error", "message": "verification failed"})
		return
	}

	slog.Info("webhook.verified")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(challenge))
}

// handleWebhookEvent ingests one webhook delivery. The response is always
// fast and almost always 200: the channel retries non-2xx responses, and a
// failed message is the pipeline's problem to retry, not the channel's.
func (s *Server) handleWebhookEvent(w http.ResponseWriter, r *http.Request) {
	if !s.flood.Allow(sourceKey(r)) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"status": "error", "message": "rate limited"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"status": "error", "message": "body too large"})
		return
	}
	if len(body) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "empty request body"})
		return
	}

	results, err := s.ingestor.Ingest(r.Context(), channels.RawEvent{Body: body, Header: r.Header})
	if err != nil {
		var ve *pipeline.ValidationError
		if errors.As(err, &ve) {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": ve.Reason})
			return
		}
		// Unexpected ingestion error: acknowledge anyway to stop channel
		// redelivery; the claim has already been recorded.
		slog.Error("webhook.ingest_error", "error", err)
	}

	accepted, duplicates := 0, 0
	for _, res := range results {
		switch res.Outcome {
		case pipeline.OutcomeAccepted:
			accepted++
		case pipeline.OutcomeDuplicate:
			duplicates++
		}
	}
	if len(results) > 0 {
		slog.Info("webhook.event_ingested", "accepted", accepted, "duplicates", duplicates)
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// sourceKey picks the flood-guard key: the peer IP. Per-sender keys would
// need the body parsed first, which defeats the point of a pre-parse guard.
func sourceKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
