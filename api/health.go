package api

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatd/ragcore/internal/log"
)

// Pinger verifies a storage backend is reachable.
// *columnstore.Store satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler handles the liveness and readiness probes.
type HealthHandler struct {
	pool   *pgxpool.Pool
	column Pinger
	logger log.Logger
}

// NewHealthHandler creates a health handler. Readiness pings the pool
// and, when configured, the columnar backend.
func NewHealthHandler(pool *pgxpool.Pool, column Pinger, logger log.Logger) *HealthHandler {
	return &HealthHandler{pool: pool, column: column, logger: logger}
}

// RegisterRoutes registers health routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.liveness)
	mux.HandleFunc("GET /ready", h.readiness)
}

func (h *HealthHandler) liveness(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *HealthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	if h.column != nil {
		if err := h.column.Ping(r.Context()); err != nil {
			h.logger.Error("readiness check failed", "backend", "columnstore", "error", err)
			http.Error(w, "columnar store not ready", http.StatusServiceUnavailable)
			return
		}
	}
	if h.pool == nil {
		http.Error(w, "database pool not configured", http.StatusServiceUnavailable)
		return
	}
	if err := h.pool.Ping(r.Context()); err != nil {
		h.logger.Error("readiness check failed", "backend", "rowstore", "error", err)
		http.Error(w, "database not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}
