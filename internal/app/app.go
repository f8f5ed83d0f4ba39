// Package app wires the pipeline together: configuration, logging,
// database pool, embedding client, stores, and the services built on
// them. Commands call Setup once and work with the returned App.
package app

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"
	"google.golang.org/genai"

	"github.com/chatd/ragcore/db"
	"github.com/chatd/ragcore/internal/config"
	"github.com/chatd/ragcore/internal/embedder"
	"github.com/chatd/ragcore/internal/indexer"
	"github.com/chatd/ragcore/internal/log"
	"github.com/chatd/ragcore/internal/migrator"
	"github.com/chatd/ragcore/internal/reference"
	"github.com/chatd/ragcore/internal/retriever"
	"github.com/chatd/ragcore/internal/vectorstore/columnstore"
	"github.com/chatd/ragcore/internal/vectorstore/rowstore"
)

// eventLogCapacity bounds the in-memory retrieval event buffer.
const eventLogCapacity = 1000

// App holds the wired services.
type App struct {
	Config    *config.Config
	Logger    log.Logger
	Pool      *pgxpool.Pool
	Store     *rowstore.Store
	Documents *rowstore.Documents
	Column    *columnstore.Store
	Embedder  *embedder.Embedder
	Indexer   *indexer.Indexer
	Retriever *retriever.Retriever
	Migrator  *migrator.Migrator
	Events    *reference.Log
}

// Setup loads configuration and builds every service. On failure it
// tears down whatever was already initialized.
func Setup(ctx context.Context) (_ *App, retErr error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	a := &App{
		Config: cfg,
		Logger: log.New(log.Config{Level: log.ParseLevel(cfg.LogLevel), JSON: cfg.LogJSON}),
		Events: reference.NewLog(eventLogCapacity),
	}

	defer func() {
		if retErr != nil {
			a.Close()
		}
	}()

	connURL := cfg.PostgresURL()
	if err := db.Migrate(connURL); err != nil {
		return nil, fmt.Errorf("migrating database: %w", err)
	}

	pool, err := pgxpool.New(ctx, connURL)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	a.Pool = pool
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	a.Store, err = rowstore.New(pool, cfg.EmbedderDimension, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating row store: %w", err)
	}
	a.Documents = rowstore.NewDocuments(pool)

	a.Column, err = columnstore.Open(cfg.SQLitePath, cfg.EmbedderDimension, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("opening columnar store: %w", err)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("creating genai client: %w", err)
	}

	a.Embedder, err = embedder.New(client, embedder.Config{
		Model:       cfg.EmbedderModel,
		Dimension:   cfg.EmbedderDimension,
		Concurrency: cfg.EmbedConcurrency,
		MaxRetries:  cfg.EmbedMaxRetries,
		RatePerSec:  cfg.EmbedRatePerSec,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating embedder: %w", err)
	}

	a.Indexer, err = indexer.New(a.Embedder, a.Store, indexer.Config{
		ChunkSize:         cfg.ChunkSize,
		ChunkOverlap:      cfg.ChunkOverlap,
		GarbageAlnumRatio: cfg.GarbageAlnumRatio,
		DropGarbageChunks: cfg.DropGarbageChunks,
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating indexer: %w", err)
	}

	a.Retriever, err = retriever.New(a.Embedder, a.Store, documentSource{a.Documents}, a.Events, retriever.Config{
		TopK:          cfg.TopK,
		MinSimilarity: cfg.MinSimilarity,
		EmbedTimeout:  cfg.EmbedTimeout(),
		SearchTimeout: cfg.SearchTimeout(),
	}, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating retriever: %w", err)
	}

	a.Migrator, err = migrator.New(a.Store, a.Column, a.Logger)
	if err != nil {
		return nil, fmt.Errorf("creating migrator: %w", err)
	}

	return a, nil
}

// Close releases the pool and the columnar store.
func (a *App) Close() {
	if a.Column != nil {
		if err := a.Column.Close(); err != nil {
			a.Logger.Warn("closing columnar store", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}

// documentSource adapts rowstore.Documents to the retriever's fallback
// interface.
type documentSource struct {
	docs *rowstore.Documents
}

func (s documentSource) ListByOwner(ctx context.Context, ownerID string, documentIDs []string, limit int) ([]retriever.Document, error) {
	docs, err := s.docs.ListByOwner(ctx, ownerID, documentIDs, limit)
	if err != nil {
		return nil, err
	}
	out := make([]retriever.Document, len(docs))
	for i, d := range docs {
		out[i] = retriever.Document{ID: d.ID, Name: d.Name, Content: d.Content}
	}
	return out, nil
}
