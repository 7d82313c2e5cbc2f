package httpapi

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

type sendRequest struct {
	To   string `json:"to"`
	Body string `json:"body"`
}

// handleSendMessage is the operator-facing manual send endpoint. It goes
// straight to the channel provider: no thread, no AI, no dedup.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	if !s.authorized(r) {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"status": "error", "message": "unauthorized"})
		return
	}

	var req sendRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, s.cfg.Server.MaxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "invalid JSON"})
		return
	}
	if req.To == "" || req.Body == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"status": "error", "message": "to and body are required"})
		return
	}

	id := uuid.NewString()
	if err := s.channel.Send(r.Context(), req.To, req.Body); err != nil {
		slog.Error("messages.manual_send_failed", "send_id", id, "recipient", req.To, "error", err)
		writeJSON(w, http.StatusBadGateway, map[string]string{"status": "error", "message": "send failed"})
		return
	}

	slog.Info("messages.manual_send", "send_id", id, "recipient", req.To)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "send_id": id})
}

// authorized checks the bearer token. With no token configured the endpoint
// is disabled entirely rather than left open.
func (s *Server) authorized(r *http.Request) bool {
	token := s.cfg.Server.AuthToken
	if token == "" {
		return false
	}
	got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
	return subtle.ConstantTimeCompare([]byte(got), []byte(token)) == 1
}
