package api

import (
	"net/http"

	"github.com/chatd/ragcore/internal/reference"
	"github.com/chatd/ragcore/internal/retriever"
)

// Reporter provides the retrieval events and their aggregation,
// optionally scoped by filters. *reference.Log satisfies it.
type Reporter interface {
	Report(filters ...reference.Filter) reference.Report
	Events(filters ...reference.Filter) []retriever.Event
}

// ReportHandler handles the reference report endpoint.
type ReportHandler struct {
	reporter Reporter
}

// NewReportHandler creates a report handler.
func NewReportHandler(reporter Reporter) *ReportHandler {
	return &ReportHandler{reporter: reporter}
}

// RegisterRoutes registers report routes on the given mux.
func (h *ReportHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/report", h.report)
}

// ReportResponse is the report body: the aggregate plus recent events.
type ReportResponse struct {
	Report reference.Report  `json:"report"`
	Events []retriever.Event `json:"events"`
}

// report serves the aggregate. The owner_id and document_id query
// parameters scope it to one owner or one source document.
func (h *ReportHandler) report(w http.ResponseWriter, r *http.Request) {
	if h.reporter == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", "event recording not configured")
		return
	}

	var filters []reference.Filter
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		filters = append(filters, reference.ByOwner(owner))
	}
	if doc := r.URL.Query().Get("document_id"); doc != "" {
		filters = append(filters, reference.ByDocument(doc))
	}

	writeJSON(w, http.StatusOK, ReportResponse{
		Report: h.reporter.Report(filters...),
		Events: h.reporter.Events(filters...),
	})
}
