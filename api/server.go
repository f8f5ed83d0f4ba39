// Package api exposes the indexing and retrieval pipeline over HTTP.
//
// Endpoints:
//
//	GET  /health                    → liveness probe
//	GET  /ready                     → readiness probe (pings the storage backends)
//	POST /api/documents/{id}/index  → run the indexing pipeline for a document
//	POST /api/search                → retrieval with fallback chain
//	POST /api/migrate               → copy records to the columnar backend
//	GET  /api/report                → reference classification report
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: logging and panic recovery
//   - health.go: liveness and readiness probes
//   - documents.go: document indexing endpoint
//   - search.go: retrieval endpoint
//   - migrate.go: migration endpoint
//   - report.go: reference report endpoint
//   - response.go: JSON response helpers
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatd/ragcore/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to stop slow-header clients
	// from pinning connections.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response.
	WriteTimeout = 60 * time.Second

	// IdleTimeout caps keep-alive waits between requests.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for the pipeline API.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger

	health    *HealthHandler
	documents *DocumentHandler
	search    *SearchHandler
	migrate   *MigrateHandler
	report    *ReportHandler
}

// Deps carries the handler dependencies.
type Deps struct {
	Pool      *pgxpool.Pool
	Column    Pinger
	Documents DocumentStore
	Indexer   DocumentIndexer
	Retriever Searcher
	Migrator  MigrationRunner
	Reporter  Reporter
	Dimension int
}

// NewServer creates a server with all routes registered.
func NewServer(deps Deps, logger log.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    logger,
		health:    NewHealthHandler(deps.Pool, deps.Column, logger),
		documents: NewDocumentHandler(deps.Documents, deps.Indexer, logger),
		search:    NewSearchHandler(deps.Retriever, logger),
		migrate:   NewMigrateHandler(deps.Migrator, deps.Dimension, logger),
		report:    NewReportHandler(deps.Reporter),
	}

	s.health.RegisterRoutes(mux)
	s.documents.RegisterRoutes(mux)
	s.search.RegisterRoutes(mux)
	s.migrate.RegisterRoutes(mux)
	s.report.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		loggingMiddleware(s.logger))
}

// Run starts the server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
