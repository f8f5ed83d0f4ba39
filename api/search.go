package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/chatd/ragcore/internal/log"
	"github.com/chatd/ragcore/internal/retriever"
)

// Searcher runs a retrieval. *retriever.Retriever satisfies it.
type Searcher interface {
	Retrieve(ctx context.Context, ownerID, query string, opts ...retriever.SearchOption) (retriever.Result, error)
}

// SearchHandler handles the retrieval endpoint.
type SearchHandler struct {
	retriever Searcher
	logger    log.Logger
}

// NewSearchHandler creates a search handler.
func NewSearchHandler(searcher Searcher, logger log.Logger) *SearchHandler {
	return &SearchHandler{retriever: searcher, logger: logger}
}

// RegisterRoutes registers search routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/search", h.search)
}

// SearchRequest is the retrieval request body.
type SearchRequest struct {
	OwnerID       string   `json:"owner_id"`
	Query         string   `json:"query"`
	TopK          int      `json:"top_k,omitempty"`
	MinSimilarity *float64 `json:"min_similarity,omitempty"`
	DocumentIDs   []string `json:"document_ids,omitempty"`
}

// SearchChunk is one scored chunk in the response.
type SearchChunk struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Preview    string  `json:"preview"`
	Similarity float64 `json:"similarity"`
}

// SearchDocument is one fallback document in the response.
type SearchDocument struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Content string `json:"content"`
}

// SearchResponse is the retrieval response body.
type SearchResponse struct {
	Outcome   retriever.Outcome `json:"outcome"`
	Chunks    []SearchChunk     `json:"chunks,omitempty"`
	Documents []SearchDocument  `json:"documents,omitempty"`
	EventID   string            `json:"event_id"`
}

func (h *SearchHandler) search(w http.ResponseWriter, r *http.Request) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "malformed JSON body")
		return
	}
	if req.OwnerID == "" || req.Query == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "owner_id and query are required")
		return
	}

	var opts []retriever.SearchOption
	if req.TopK > 0 {
		opts = append(opts, retriever.WithTopK(req.TopK))
	}
	if req.MinSimilarity != nil {
		opts = append(opts, retriever.WithMinSimilarity(*req.MinSimilarity))
	}
	if len(req.DocumentIDs) > 0 {
		opts = append(opts, retriever.WithDocumentIDs(req.DocumentIDs))
	}

	result, err := h.retriever.Retrieve(r.Context(), req.OwnerID, req.Query, opts...)
	if err != nil {
		if errors.Is(err, retriever.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		h.logger.Error("retrieval failed", "owner_id", req.OwnerID, "error", err)
		writeError(w, http.StatusBadGateway, "retrieval_failed", err.Error())
		return
	}

	resp := SearchResponse{Outcome: result.Outcome, EventID: result.Event.ID}
	for _, c := range result.Chunks {
		resp.Chunks = append(resp.Chunks, SearchChunk{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			ChunkIndex: c.ChunkIndex,
			Preview:    c.TextPreview,
			Similarity: c.Similarity,
		})
	}
	for _, d := range result.Documents {
		resp.Documents = append(resp.Documents, SearchDocument{
			ID:      d.ID,
			Name:    d.Name,
			Content: d.Content,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}
