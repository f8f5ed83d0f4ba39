// Package indexer runs the enable-indexing pipeline for a document:
// chunk the text, embed the chunks, and persist the vector records.
// Each run is isolated to its document; a failed run never touches
// other documents' records.
package indexer

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatd/ragcore/internal/chunker"
	"github.com/chatd/ragcore/internal/embedder"
	"github.com/chatd/ragcore/internal/vectorstore"
)

// ChunkEmbedder embeds a batch of chunk texts. *embedder.Embedder
// satisfies it.
type ChunkEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) (embedder.BatchResult, error)
}

// RecordStore is the slice of the vector store the indexer needs.
type RecordStore interface {
	WriteBatch(ctx context.Context, records []vectorstore.VectorRecord) (vectorstore.WriteReport, error)
	DeleteByDocument(ctx context.Context, documentID string) (int, error)
}

// Document is the input to an indexing run.
type Document struct {
	ID         string
	OwnerID    string
	Name       string
	SourceType string
	Content    string
}

// Config carries the chunking and filtering parameters.
type Config struct {
	ChunkSize    int
	ChunkOverlap int

	// GarbageAlnumRatio drops chunks whose alphanumeric ratio falls
	// below it when DropGarbageChunks is set. Page furniture like rule
	// lines and table borders embeds poorly and pollutes search.
	GarbageAlnumRatio float64
	DropGarbageChunks bool
}

// Run summarizes one indexing run.
type Run struct {
	RunID        string        `json:"run_id"`
	DocumentID   string        `json:"document_id"`
	Chunks       int           `json:"chunks"`
	Dropped      int           `json:"dropped"`
	Embedded     int           `json:"embedded"`
	EmbedFailed  int           `json:"embed_failed"`
	Written      int           `json:"written"`
	WriteFailed  int           `json:"write_failed"`
	StaleDeleted int           `json:"stale_deleted"`
	Quality      float64       `json:"quality"`
	Duration     time.Duration `json:"duration"`
	StartedAt    time.Time     `json:"started_at"`
}

// Indexer chunks, embeds, and persists documents.
type Indexer struct {
	embedder ChunkEmbedder
	store    RecordStore
	cfg      Config
	logger   *slog.Logger
}

// New creates an Indexer.
func New(chunkEmbedder ChunkEmbedder, store RecordStore, cfg Config, logger *slog.Logger) (*Indexer, error) {
	if chunkEmbedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Indexer{embedder: chunkEmbedder, store: store, cfg: cfg, logger: logger}, nil
}

// Index runs the full pipeline for one document. Previously indexed
// records for the document are deleted first so a shortened text does
// not leave stale trailing chunks behind. Chunks that fail to embed
// are reported in the Run; the rest still persist.
func (x *Indexer) Index(ctx context.Context, doc Document) (Run, error) {
	start := time.Now()
	run := Run{
		RunID:      uuid.NewString(),
		DocumentID: doc.ID,
		StartedAt:  start.UTC(),
	}

	if doc.ID == "" {
		return run, fmt.Errorf("document id is required")
	}
	if doc.OwnerID == "" {
		return run, fmt.Errorf("owner id is required")
	}

	chunks, err := chunker.Split(doc.Content, x.cfg.ChunkSize, x.cfg.ChunkOverlap)
	if err != nil {
		return run, fmt.Errorf("chunking document %s: %w", doc.ID, err)
	}
	run.Quality = chunker.DocumentQuality(chunks, x.cfg.ChunkSize)

	kept := chunks
	if x.cfg.DropGarbageChunks {
		kept = make([]chunker.Chunk, 0, len(chunks))
		for _, c := range chunks {
			if chunker.IsGarbage(c, x.cfg.GarbageAlnumRatio) {
				run.Dropped++
				continue
			}
			kept = append(kept, c)
		}
	}
	run.Chunks = len(kept)

	x.logger.Info("indexing document",
		"run_id", run.RunID, "document_id", doc.ID,
		"chunks", run.Chunks, "dropped", run.Dropped, "quality", run.Quality)

	if len(kept) == 0 {
		run.Duration = time.Since(start)
		return run, nil
	}

	texts := make([]string, len(kept))
	for i, c := range kept {
		texts[i] = c.Text
	}
	embedded, err := x.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return run, fmt.Errorf("embedding document %s: %w", doc.ID, err)
	}
	run.EmbedFailed = embedded.FailedCount()

	records := make([]vectorstore.VectorRecord, 0, len(kept))
	now := time.Now().UTC()
	for i, c := range kept {
		if embedded.Vectors[i] == nil {
			continue
		}
		records = append(records, vectorstore.VectorRecord{
			ChunkID:     fmt.Sprintf("%s_chunk_%d", doc.ID, c.Index),
			DocumentID:  doc.ID,
			OwnerID:     doc.OwnerID,
			ChunkIndex:  c.Index,
			Text:        c.Text,
			TextPreview: vectorstore.Preview(c.Text),
			Embedding:   embedded.Vectors[i],
			Metadata: vectorstore.Metadata{
				StartOffset: c.StartOffset,
				EndOffset:   c.EndOffset,
				TokenCount:  c.TokenCount,
				SourceName:  doc.Name,
				SourceType:  doc.SourceType,
			},
			CreatedAt: now,
		})
	}
	run.Embedded = len(records)

	deleted, err := x.store.DeleteByDocument(ctx, doc.ID)
	if err != nil {
		return run, fmt.Errorf("clearing stale chunks for document %s: %w", doc.ID, err)
	}
	run.StaleDeleted = deleted

	report, err := x.store.WriteBatch(ctx, records)
	run.Written = report.Written
	run.WriteFailed = report.FailedCount()
	if err != nil {
		return run, fmt.Errorf("persisting document %s: %w", doc.ID, err)
	}

	run.Duration = time.Since(start)
	x.logger.Info("indexing completed",
		"run_id", run.RunID, "document_id", doc.ID,
		"written", run.Written, "embed_failed", run.EmbedFailed,
		"write_failed", run.WriteFailed, "duration", run.Duration)
	return run, nil
}
