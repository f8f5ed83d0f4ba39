// Package migrator copies vector records from one store backend to
// another, document by document. It backs the blue-green move from the
// row store to the columnar store: the source keeps serving while the
// target fills. Writes go through the target's idempotent upsert, so an
// interrupted run is resumed by simply running again; re-copying an
// already-synced document converges instead of duplicating.
package migrator

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/chatd/ragcore/internal/vectorstore"
)

// Source is the read side of a migration. Both production backends and
// the in-memory store satisfy it.
type Source interface {
	DocumentIDs(ctx context.Context) ([]string, error)
	QueryByDocument(ctx context.Context, documentID string) ([]vectorstore.VectorRecord, error)
}

// Target is the write side of a migration.
type Target interface {
	WriteBatch(ctx context.Context, records []vectorstore.VectorRecord) (vectorstore.WriteReport, error)
	Count(ctx context.Context, documentID string) (int, error)
}

// Options controls a migration run.
type Options struct {
	// DryRun walks the source and validates every record without
	// writing anything to the target.
	DryRun bool

	// BatchSize caps records per write call; defaults to
	// vectorstore.MaxWriteBatchSize.
	BatchSize int

	// Dimension is the expected embedding length; records that fail
	// validation are skipped and counted, never migrated.
	Dimension int

	// DocumentIDs restricts the run to specific documents. Empty means
	// every document in the source.
	DocumentIDs []string

	// SkipSynced skips documents whose target record count already
	// equals the source's valid count. Counts cannot see in-place
	// record changes, so this trades divergence detection for speed;
	// leave it off unless the source is known to be frozen. The
	// default re-writes every record through the idempotent upsert.
	SkipSynced bool
}

// DocumentStats is the per-document outcome of a run.
type DocumentStats struct {
	DocumentID string `json:"document_id"`
	Read       int    `json:"read"`
	Written    int    `json:"written"`
	Invalid    int    `json:"invalid"`
	Failed     int    `json:"failed"`
	Resumed    bool   `json:"resumed,omitempty"`
}

// Stats summarizes a migration run.
type Stats struct {
	Documents     int             `json:"documents"`
	DocumentsDone int             `json:"documents_done"`
	Resumed       int             `json:"resumed"`
	Read          int             `json:"read"`
	Written       int             `json:"written"`
	Invalid       int             `json:"invalid"`
	Failed        int             `json:"failed"`
	DryRun        bool            `json:"dry_run"`
	Duration      time.Duration   `json:"duration"`
	RecordsPerSec float64         `json:"records_per_sec"`
	PerDocument   []DocumentStats `json:"per_document"`
}

// Migrator copies records between two stores.
type Migrator struct {
	source Source
	target Target
	logger *slog.Logger
}

// New creates a Migrator.
func New(source Source, target Target, logger *slog.Logger) (*Migrator, error) {
	if source == nil {
		return nil, fmt.Errorf("source is required")
	}
	if target == nil {
		return nil, fmt.Errorf("target is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Migrator{source: source, target: target, logger: logger}, nil
}

// Run migrates every document from source to target. Every record is
// re-written through the target's idempotent upsert, so an interrupted
// run is resumable by running again and records changed in the source
// since a previous run converge on the new values. Invalid records are
// skipped and counted; they never abort the run.
func (m *Migrator) Run(ctx context.Context, opts Options) (Stats, error) {
	start := time.Now()
	stats := Stats{DryRun: opts.DryRun}

	if opts.Dimension <= 0 {
		return stats, fmt.Errorf("dimension must be positive, got %d", opts.Dimension)
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = vectorstore.MaxWriteBatchSize
	}

	documentIDs := opts.DocumentIDs
	if len(documentIDs) == 0 {
		var err error
		documentIDs, err = m.source.DocumentIDs(ctx)
		if err != nil {
			return stats, fmt.Errorf("listing source documents: %w", err)
		}
	}
	stats.Documents = len(documentIDs)

	m.logger.Info("migration starting",
		"documents", stats.Documents, "dry_run", opts.DryRun, "batch_size", batchSize)

	for _, docID := range documentIDs {
		if err := ctx.Err(); err != nil {
			m.finish(&stats, start)
			return stats, fmt.Errorf("migration interrupted: %w", err)
		}

		docStats, err := m.migrateDocument(ctx, docID, batchSize, opts)
		stats.PerDocument = append(stats.PerDocument, docStats)
		stats.Read += docStats.Read
		stats.Written += docStats.Written
		stats.Invalid += docStats.Invalid
		stats.Failed += docStats.Failed
		if docStats.Resumed {
			stats.Resumed++
		}
		if err != nil {
			m.finish(&stats, start)
			return stats, fmt.Errorf("migrating document %s: %w", docID, err)
		}
		stats.DocumentsDone++
	}

	m.finish(&stats, start)
	m.logger.Info("migration completed",
		"documents", stats.DocumentsDone, "written", stats.Written,
		"invalid", stats.Invalid, "failed", stats.Failed,
		"resumed", stats.Resumed, "records_per_sec", stats.RecordsPerSec)
	return stats, nil
}

func (m *Migrator) migrateDocument(ctx context.Context, docID string, batchSize int, opts Options) (DocumentStats, error) {
	docStats := DocumentStats{DocumentID: docID}

	records, err := m.source.QueryByDocument(ctx, docID)
	if err != nil {
		return docStats, fmt.Errorf("reading source: %w", err)
	}
	docStats.Read = len(records)

	valid := make([]vectorstore.VectorRecord, 0, len(records))
	for _, r := range records {
		if err := r.Validate(opts.Dimension); err != nil {
			docStats.Invalid++
			m.logger.Warn("skipping invalid record",
				"document_id", docID, "chunk_id", r.ChunkID, "error", err)
			continue
		}
		valid = append(valid, r)
	}

	if opts.DryRun {
		m.logger.Debug("dry run, skipping write",
			"document_id", docID, "would_write", len(valid))
		return docStats, nil
	}

	if opts.SkipSynced {
		existing, err := m.target.Count(ctx, docID)
		if err != nil {
			return docStats, fmt.Errorf("counting target: %w", err)
		}
		if existing == len(valid) && len(valid) > 0 {
			docStats.Resumed = true
			m.logger.Debug("document count already matches target", "document_id", docID, "records", existing)
			return docStats, nil
		}
	}

	for _, batch := range vectorstore.SubBatches(valid, batchSize) {
		report, err := m.target.WriteBatch(ctx, batch)
		docStats.Written += report.Written
		docStats.Failed += report.FailedCount()
		if err != nil {
			return docStats, fmt.Errorf("writing target: %w", err)
		}
	}
	return docStats, nil
}

func (m *Migrator) finish(stats *Stats, start time.Time) {
	stats.Duration = time.Since(start)
	if secs := stats.Duration.Seconds(); secs > 0 {
		stats.RecordsPerSec = float64(stats.Written) / secs
	}
}
