package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/chatd/ragcore/internal/indexer"
	"github.com/chatd/ragcore/internal/log"
	"github.com/chatd/ragcore/internal/vectorstore/rowstore"
)

// DocumentStore loads documents and tracks their indexed state.
// *rowstore.Documents satisfies it.
type DocumentStore interface {
	Get(ctx context.Context, id string) (rowstore.Document, error)
	MarkIndexed(ctx context.Context, id string, indexed bool) error
}

// DocumentIndexer runs the indexing pipeline. *indexer.Indexer
// satisfies it.
type DocumentIndexer interface {
	Index(ctx context.Context, doc indexer.Document) (indexer.Run, error)
}

// DocumentHandler handles the document indexing endpoint.
type DocumentHandler struct {
	store   DocumentStore
	indexer DocumentIndexer
	logger  log.Logger
}

// NewDocumentHandler creates a document handler.
func NewDocumentHandler(store DocumentStore, docIndexer DocumentIndexer, logger log.Logger) *DocumentHandler {
	return &DocumentHandler{store: store, indexer: docIndexer, logger: logger}
}

// RegisterRoutes registers document routes on the given mux.
func (h *DocumentHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/documents/{id}/index", h.index)
}

// index runs the indexing pipeline for one document and marks it
// indexed on success.
func (h *DocumentHandler) index(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "document id is required")
		return
	}

	doc, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, rowstore.ErrDocumentNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "document does not exist")
			return
		}
		h.logger.Error("loading document failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "failed to load document")
		return
	}

	run, err := h.indexer.Index(r.Context(), indexer.Document{
		ID:         doc.ID,
		OwnerID:    doc.OwnerID,
		Name:       doc.Name,
		SourceType: doc.SourceType,
		Content:    doc.Content,
	})
	if err != nil {
		h.logger.Error("indexing failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "indexing_failed", err.Error())
		return
	}

	if err := h.store.MarkIndexed(r.Context(), id, true); err != nil {
		h.logger.Error("marking document indexed failed", "document_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error", "indexing succeeded but status update failed")
		return
	}

	writeJSON(w, http.StatusOK, run)
}
