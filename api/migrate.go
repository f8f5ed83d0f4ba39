package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/chatd/ragcore/internal/log"
	"github.com/chatd/ragcore/internal/migrator"
)

// MigrationRunner runs a backend migration. *migrator.Migrator
// satisfies it.
type MigrationRunner interface {
	Run(ctx context.Context, opts migrator.Options) (migrator.Stats, error)
}

// MigrateHandler handles the migration endpoint.
type MigrateHandler struct {
	migrator  MigrationRunner
	dimension int
	logger    log.Logger
}

// NewMigrateHandler creates a migrate handler.
func NewMigrateHandler(runner MigrationRunner, dimension int, logger log.Logger) *MigrateHandler {
	return &MigrateHandler{migrator: runner, dimension: dimension, logger: logger}
}

// RegisterRoutes registers migration routes on the given mux.
func (h *MigrateHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/migrate", h.migrate)
}

// MigrateRequest is the migration request body.
type MigrateRequest struct {
	DryRun      bool     `json:"dry_run,omitempty"`
	BatchSize   int      `json:"batch_size,omitempty"`
	DocumentIDs []string `json:"document_ids,omitempty"`
	SkipSynced  bool     `json:"skip_synced,omitempty"`
}

func (h *MigrateHandler) migrate(w http.ResponseWriter, r *http.Request) {
	if h.migrator == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "migration target not configured")
		return
	}

	var req MigrateRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
			return
		}
	}

	stats, err := h.migrator.Run(r.Context(), migrator.Options{
		DryRun:      req.DryRun,
		BatchSize:   req.BatchSize,
		Dimension:   h.dimension,
		DocumentIDs: req.DocumentIDs,
		SkipSynced:  req.SkipSynced,
	})
	if err != nil {
		h.logger.Error("migration failed", "error", err)
		writeError(w, http.StatusInternalServerError, "migration_failed", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
