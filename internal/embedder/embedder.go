// Package embedder turns chunk text into embedding vectors using the
// Gemini embedding models, with bounded concurrency, rate limiting,
// and retries on transient upstream failures.
package embedder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/chatd/ragcore/internal/vectorstore"
)

// retryBaseDelay is doubled on each retry attempt.
const retryBaseDelay = 500 * time.Millisecond

// ErrEmptyInput indicates text with no content to embed.
var ErrEmptyInput = errors.New("empty input text")

// contentEmbedder is the slice of the genai API the embedder needs.
// *genai.Models satisfies it; tests substitute a mock.
type contentEmbedder interface {
	EmbedContent(ctx context.Context, model string, contents []*genai.Content, config *genai.EmbedContentConfig) (*genai.EmbedContentResponse, error)
}

// Embedder generates embeddings for chunk text.
//
// Embedder is safe for concurrent use by multiple goroutines.
type Embedder struct {
	client      contentEmbedder
	model       string
	dimension   int
	concurrency int
	maxRetries  int
	retryDelay  time.Duration
	limiter     *rate.Limiter
	logger      *slog.Logger
}

// Config controls embedding generation.
type Config struct {
	Model       string
	Dimension   int
	Concurrency int
	MaxRetries  int
	// RatePerSec caps outbound requests; zero disables the limiter.
	RatePerSec float64
}

// New creates an Embedder on an existing genai client.
func New(client *genai.Client, cfg Config, logger *slog.Logger) (*Embedder, error) {
	if client == nil {
		return nil, fmt.Errorf("client is required")
	}
	return newWith(client.Models, cfg, logger)
}

func newWith(client contentEmbedder, cfg Config, logger *slog.Logger) (*Embedder, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("model is required")
	}
	if cfg.Dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", cfg.Dimension)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RatePerSec > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.Concurrency)
	}

	return &Embedder{
		client:      client,
		model:       cfg.Model,
		dimension:   cfg.Dimension,
		concurrency: cfg.Concurrency,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  retryBaseDelay,
		limiter:     limiter,
		logger:      logger,
	}, nil
}

// Dimension returns the configured output dimensionality.
func (e *Embedder) Dimension() int {
	return e.dimension
}

// EmbedOne embeds a single text, typically a search query.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, ErrEmptyInput
	}
	vec, err := e.embedWithRetry(ctx, text)
	if err != nil {
		return nil, err.Err
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently, at most Concurrency requests
// in flight. Per-item failures are collected in the result, never
// collapsed into a single error: one poisoned chunk must not discard
// its siblings. The error return fires only when the context dies.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) (BatchResult, error) {
	result := BatchResult{Vectors: make([][]float32, len(texts))}
	if len(texts) == 0 {
		return result, nil
	}

	failures := make([]*Failure, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.concurrency)
	for i, text := range texts {
		g.Go(func() error {
			if text == "" {
				failures[i] = &Failure{Index: i, Kind: FailureInvalidInput, Err: ErrEmptyInput}
				return nil
			}
			vec, failure := e.embedWithRetry(gctx, text)
			if failure != nil {
				failure.Index = i
				failures[i] = failure
				// Abort the whole batch on context death; keep going on
				// per-item failures.
				if gctx.Err() != nil {
					return gctx.Err()
				}
				return nil
			}
			result.Vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return result, fmt.Errorf("embedding batch aborted: %w", err)
	}

	for _, f := range failures {
		if f != nil {
			result.Failures = append(result.Failures, *f)
		}
	}
	if len(result.Failures) > 0 {
		e.logger.Warn("embedding batch completed with failures",
			"total", len(texts), "failed", len(result.Failures))
	}
	return result, nil
}

// embedWithRetry embeds one text, retrying rate-limit and upstream
// failures with exponential backoff. Invalid input never retries.
func (e *Embedder) embedWithRetry(ctx context.Context, text string) ([]float32, *Failure) {
	delay := e.retryDelay
	var failure *Failure

	for attempt := 0; attempt <= e.maxRetries; attempt++ {
		if attempt > 0 {
			e.logger.Debug("retrying embedding request", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, &Failure{Kind: FailureUpstream, Err: ctx.Err()}
			case <-time.After(delay):
			}
			delay *= 2
		}

		vec, err := e.embed(ctx, text)
		if err == nil {
			return vec, nil
		}

		kind := classify(err)
		failure = &Failure{Kind: kind, Err: err}
		if kind == FailureInvalidInput || ctx.Err() != nil {
			break
		}
	}
	return nil, failure
}

func (e *Embedder) embed(ctx context.Context, text string) ([]float32, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	dim := int32(e.dimension)
	resp, err := e.client.EmbedContent(ctx, e.model,
		[]*genai.Content{genai.NewContentFromText(text, genai.RoleUser)},
		&genai.EmbedContentConfig{OutputDimensionality: &dim})
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(resp.Embeddings) == 0 || len(resp.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("empty embedding response")
	}

	vec := resp.Embeddings[0].Values
	if len(vec) != e.dimension {
		return nil, fmt.Errorf("%w: model returned %d dimensions, want %d",
			vectorstore.ErrDimensionMismatch, len(vec), e.dimension)
	}
	return vec, nil
}
