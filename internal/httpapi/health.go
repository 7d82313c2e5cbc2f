package httpapi

import (
	"context"
	"net/http"
	"time"
)

type healthStatus struct {
	Status string `json:"status"`
	Store  string `json:"store"`
	Queue  string `json:"queue,omitempty"`
}

// handleHealth reports store and queue reachability. Degraded dependencies
// flip the status to 503 so orchestrators can rotate the instance.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	out := healthStatus{Status: "ok", Store: "ok"}
	code := http.StatusOK

	if err := s.kv.Ping(ctx); err != nil {
		out.Status = "degraded"
		out.Store = err.Error()
		code = http.StatusServiceUnavailable
	}

	if s.queue != nil {
		out.Queue = "ok"
		if err := s.queue.Ping(); err != nil {
			out.Status = "degraded"
			out.Queue = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, out)
}
