package http

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether the database is reachable. *sql.DB satisfies it.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// HealthHandler serves liveness and service information.
type HealthHandler struct {
	// DB is optional; when set, /health fails with 503 if it cannot be pinged.
	DB      Pinger
	Version string
}

// Root handles GET /.
func (h *HealthHandler) Root(w http.ResponseWriter, r *http.Request) {
	version := h.Version
	if version == "" {
		version = "N/A"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "Smart Stamp Verification Server",
		"status":  "running",
		"version": version,
	})
}

// Health handles GET /health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	if h.DB != nil {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := h.DB.PingContext(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}
