// Package retriever answers search queries against the indexed corpus.
//
// A retrieval walks a fixed fallback chain: embed the query, search for
// matching chunks, and if no chunk clears the similarity threshold fall
// back to whole documents. Every retrieval, successful or not, emits an
// Event so downstream reporting can classify how the answer was
// grounded.
package retriever

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/chatd/ragcore/internal/vectorstore"
)

// Outcome is the terminal state of a retrieval.
type Outcome string

const (
	// OutcomeChunkMatch means chunk search returned scored evidence.
	OutcomeChunkMatch Outcome = "chunk_match"

	// OutcomeDocumentFallback means no chunk cleared the threshold but
	// whole documents were returned instead.
	OutcomeDocumentFallback Outcome = "document_fallback"

	// OutcomeNoEvidence means neither chunks nor documents were found.
	OutcomeNoEvidence Outcome = "no_evidence"

	// OutcomeFailed means a step errored before evidence was decided.
	OutcomeFailed Outcome = "failed"
)

var (
	// ErrEmptyQuery indicates a query with no text.
	ErrEmptyQuery = errors.New("empty query")

	// ErrEmbedStep wraps failures while embedding the query.
	ErrEmbedStep = errors.New("query embedding failed")

	// ErrSearchStep wraps failures while searching chunks.
	ErrSearchStep = errors.New("chunk search failed")

	// ErrFallbackStep wraps failures while loading fallback documents.
	ErrFallbackStep = errors.New("document fallback failed")
)

// QueryEmbedder embeds query text. *embedder.Embedder satisfies it.
type QueryEmbedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// ChunkSearcher is the slice of the vector store the retriever needs.
type ChunkSearcher interface {
	QueryByOwnerAndVector(ctx context.Context, ownerID string, queryVector []float32, topK int, minSimilarity float64, documentIDs []string) ([]vectorstore.ScoredRecord, error)
}

// Document is a whole-document fallback result.
type Document struct {
	ID      string
	Name    string
	Content string
}

// DocumentSource loads an owner's documents for the fallback step.
type DocumentSource interface {
	ListByOwner(ctx context.Context, ownerID string, documentIDs []string, limit int) ([]Document, error)
}

// Recorder receives one Event per retrieval. Implementations must not
// block; the retriever calls Record on its own goroutine's hot path.
type Recorder interface {
	Record(event Event)
}

// Reference is one piece of evidence recorded on an Event: a scored
// chunk, or a whole document used as fallback (ChunkIndex -1,
// Fallback true, no similarity).
type Reference struct {
	DocumentID string  `json:"document_id"`
	ChunkIndex int     `json:"chunk_index"`
	Similarity float64 `json:"similarity"`
	Fallback   bool    `json:"fallback,omitempty"`
}

// Event describes one completed retrieval. References carries the
// evidence in returned order, so References[0] of a chunk match is the
// top match; MinSimilarity is the floor that was applied.
type Event struct {
	ID            string        `json:"id"`
	OwnerID       string        `json:"owner_id"`
	Query         string        `json:"query"`
	Outcome       Outcome       `json:"outcome"`
	ChunkCount    int           `json:"chunk_count"`
	DocumentCount int           `json:"document_count"`
	TopSimilarity float64       `json:"top_similarity"`
	MinSimilarity float64       `json:"min_similarity"`
	References    []Reference   `json:"references,omitempty"`
	Duration      time.Duration `json:"duration"`
	At            time.Time     `json:"at"`
	Error         string        `json:"error,omitempty"`
}

// Result is the evidence a retrieval produced.
type Result struct {
	Outcome   Outcome
	Chunks    []vectorstore.ScoredRecord
	Documents []Document
	Event     Event
}

// Config carries the retrieval defaults, overridable per call.
type Config struct {
	TopK          int
	MinSimilarity float64
	FallbackLimit int
	EmbedTimeout  time.Duration
	SearchTimeout time.Duration
}

// Retriever runs the retrieval chain.
type Retriever struct {
	embedder QueryEmbedder
	chunks   ChunkSearcher
	docs     DocumentSource
	recorder Recorder
	cfg      Config
	logger   *slog.Logger
}

// New creates a Retriever. docs and recorder may be nil: without docs
// the fallback step is skipped, without recorder no events are kept.
func New(embedder QueryEmbedder, chunks ChunkSearcher, docs DocumentSource, recorder Recorder, cfg Config, logger *slog.Logger) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if chunks == nil {
		return nil, fmt.Errorf("chunk searcher is required")
	}
	if cfg.TopK <= 0 {
		cfg.TopK = 5
	}
	if cfg.FallbackLimit <= 0 {
		cfg.FallbackLimit = 3
	}
	if cfg.EmbedTimeout <= 0 {
		cfg.EmbedTimeout = 10 * time.Second
	}
	if cfg.SearchTimeout <= 0 {
		cfg.SearchTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		embedder: embedder,
		chunks:   chunks,
		docs:     docs,
		recorder: recorder,
		cfg:      cfg,
		logger:   logger,
	}, nil
}

// SearchOption overrides a retrieval default for one call.
type SearchOption func(*searchConfig)

type searchConfig struct {
	topK          int
	minSimilarity float64
	documentIDs   []string
}

// WithTopK overrides the number of chunks requested.
func WithTopK(k int) SearchOption {
	return func(c *searchConfig) {
		if k > 0 {
			c.topK = k
		}
	}
}

// WithMinSimilarity overrides the similarity threshold.
func WithMinSimilarity(threshold float64) SearchOption {
	return func(c *searchConfig) { c.minSimilarity = threshold }
}

// WithDocumentIDs restricts the retrieval to specific documents.
func WithDocumentIDs(ids []string) SearchOption {
	return func(c *searchConfig) { c.documentIDs = ids }
}

// Retrieve runs the chain for one query. The returned error is non-nil
// only for OutcomeFailed; empty evidence is a valid result, not an
// error.
func (r *Retriever) Retrieve(ctx context.Context, ownerID, query string, opts ...SearchOption) (Result, error) {
	start := time.Now()
	event := Event{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Query:   query,
		At:      start.UTC(),
	}

	cfg := searchConfig{topK: r.cfg.TopK, minSimilarity: r.cfg.MinSimilarity}
	for _, opt := range opts {
		opt(&cfg)
	}
	event.MinSimilarity = cfg.minSimilarity

	if query == "" {
		return r.fail(event, start, ErrEmptyQuery)
	}
	if ownerID == "" {
		return r.fail(event, start, fmt.Errorf("owner id is required"))
	}

	vec, err := r.embedQuery(ctx, query)
	if err != nil {
		return r.fail(event, start, fmt.Errorf("%w: %w", ErrEmbedStep, err))
	}

	chunks, err := r.searchChunks(ctx, ownerID, vec, cfg)
	if err != nil {
		return r.fail(event, start, fmt.Errorf("%w: %w", ErrSearchStep, err))
	}
	if len(chunks) > 0 {
		event.Outcome = OutcomeChunkMatch
		event.ChunkCount = len(chunks)
		event.TopSimilarity = chunks[0].Similarity
		for _, c := range chunks {
			event.References = append(event.References, Reference{
				DocumentID: c.DocumentID,
				ChunkIndex: c.ChunkIndex,
				Similarity: c.Similarity,
			})
		}
		return r.finish(Result{Outcome: OutcomeChunkMatch, Chunks: chunks}, event, start), nil
	}

	if r.docs != nil {
		docs, err := r.fallbackDocuments(ctx, ownerID, cfg.documentIDs)
		if err != nil {
			return r.fail(event, start, fmt.Errorf("%w: %w", ErrFallbackStep, err))
		}
		if len(docs) > 0 {
			event.Outcome = OutcomeDocumentFallback
			event.DocumentCount = len(docs)
			for _, d := range docs {
				event.References = append(event.References, Reference{
					DocumentID: d.ID,
					ChunkIndex: -1,
					Fallback:   true,
				})
			}
			return r.finish(Result{Outcome: OutcomeDocumentFallback, Documents: docs}, event, start), nil
		}
	}

	event.Outcome = OutcomeNoEvidence
	return r.finish(Result{Outcome: OutcomeNoEvidence}, event, start), nil
}

func (r *Retriever) embedQuery(ctx context.Context, query string) ([]float32, error) {
	embedCtx, cancel := context.WithTimeout(ctx, r.cfg.EmbedTimeout)
	defer cancel()

	vec, err := r.embedder.EmbedOne(embedCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("embedding timeout: %w", err)
		}
		return nil, err
	}
	return vec, nil
}

func (r *Retriever) searchChunks(ctx context.Context, ownerID string, vec []float32, cfg searchConfig) ([]vectorstore.ScoredRecord, error) {
	searchCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	chunks, err := r.chunks.QueryByOwnerAndVector(searchCtx, ownerID, vec, cfg.topK, cfg.minSimilarity, cfg.documentIDs)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("search timeout: %w", err)
		}
		return nil, err
	}
	return chunks, nil
}

func (r *Retriever) fallbackDocuments(ctx context.Context, ownerID string, documentIDs []string) ([]Document, error) {
	fallbackCtx, cancel := context.WithTimeout(ctx, r.cfg.SearchTimeout)
	defer cancel()

	docs, err := r.docs.ListByOwner(fallbackCtx, ownerID, documentIDs, r.cfg.FallbackLimit)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("fallback timeout: %w", err)
		}
		return nil, err
	}
	return docs, nil
}

func (r *Retriever) finish(result Result, event Event, start time.Time) Result {
	event.Duration = time.Since(start)
	result.Event = event
	r.record(event)

	r.logger.Debug("retrieval completed",
		"event_id", event.ID, "outcome", event.Outcome,
		"chunks", event.ChunkCount, "documents", event.DocumentCount,
		"duration", event.Duration)
	return result
}

func (r *Retriever) fail(event Event, start time.Time, err error) (Result, error) {
	event.Outcome = OutcomeFailed
	event.Duration = time.Since(start)
	event.Error = err.Error()
	r.record(event)

	r.logger.Warn("retrieval failed", "event_id", event.ID, "error", err)
	return Result{Outcome: OutcomeFailed, Event: event}, err
}

func (r *Retriever) record(event Event) {
	if r.recorder != nil {
		r.recorder.Record(event)
	}
}
