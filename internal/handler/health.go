package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// Pinger reports whether the database answers.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ClientCounter reports the number of live WebSocket clients.
type ClientCounter interface {
	Count() int
}

// HealthHandler serves the liveness probe.
type HealthHandler struct {
	db      Pinger
	clients ClientCounter
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler that pings db and reports the
// live client count.
func NewHealthHandler(db Pinger, clients ClientCounter, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{db: db, clients: clients, logger: logger}
}

type healthResponse struct {
	Status  string `json:"status"`
	Clients int    `json:"clients"`
}

// HandleHealth answers 200 when the database responds and 503 otherwise.
//
// HTTP: GET /healthz
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok", Clients: h.clients.Count()}
	if err := h.db.Ping(ctx); err != nil {
		h.logger.Warn("health check failed", slog.String("error", err.Error()))
		resp.Status = "database unavailable"
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
