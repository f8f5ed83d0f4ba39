// Package columnstore implements vectorstore.Store on SQLite. It is
// the analytical backend: the migrator copies records here from the
// row store, and offline reporting queries run against it without
// touching the serving database.
//
// Embeddings are stored as JSON float arrays and similarity is scored
// in Go after the SQL filter, so the schema needs no vector extension.
package columnstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/chatd/ragcore/internal/vectorstore"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Store is a SQLite-backed vector store.
type Store struct {
	db        *sql.DB
	dimension int
	logger    *slog.Logger
}

// Open opens (or creates) the SQLite database at path, applies the
// embedded migrations, and returns a ready Store.
func Open(path string, dimension int, logger *slog.Logger) (*Store, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite database: %w", err)
	}

	if err := migrateSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db, dimension: dimension, logger: logger}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is still reachable. SQLite opens lazily,
// so this is the first point a bad path or locked file surfaces.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func migrateSchema(db *sql.DB) error {
	driver, err := sqlite.WithInstance(db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("creating migrate driver: %w", err)
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("creating source driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("creating migrate instance: %w", err)
	}
	// Don't close m: the sqlite driver shares the caller's connection.

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

const upsertSQL = `INSERT INTO chunk_vectors
	(chunk_id, document_id, owner_id, chunk_index, chunk_text, text_preview, embedding, metadata, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (chunk_id) DO UPDATE SET
		document_id = excluded.document_id,
		owner_id = excluded.owner_id,
		chunk_index = excluded.chunk_index,
		chunk_text = excluded.chunk_text,
		text_preview = excluded.text_preview,
		embedding = excluded.embedding,
		metadata = excluded.metadata,
		created_at = excluded.created_at`

// WriteBatch upserts records, one transaction per sub-batch. A record
// that fails to encode or write is reported and skipped; the rest of
// its sub-batch still commits.
func (s *Store) WriteBatch(ctx context.Context, records []vectorstore.VectorRecord) (vectorstore.WriteReport, error) {
	var report vectorstore.WriteReport

	for _, sub := range vectorstore.SubBatches(records, vectorstore.MaxWriteBatchSize) {
		subReport, err := s.writeSubBatch(ctx, sub)
		report.Merge(subReport)
		if err != nil {
			return report, err
		}
	}

	if report.FailedCount() > 0 {
		s.logger.Warn("batch write completed with failures",
			"written", report.Written, "failed", report.FailedCount())
	}
	return report, nil
}

func (s *Store) writeSubBatch(ctx context.Context, records []vectorstore.VectorRecord) (vectorstore.WriteReport, error) {
	var report vectorstore.WriteReport

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return report, fmt.Errorf("beginning write transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return report, fmt.Errorf("preparing upsert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if err := r.Validate(s.dimension); err != nil {
			report.Failed = append(report.Failed, vectorstore.FailedWrite{ChunkID: r.ChunkID, Err: err})
			continue
		}
		embedding, err := json.Marshal(r.Embedding)
		if err != nil {
			report.Failed = append(report.Failed, vectorstore.FailedWrite{ChunkID: r.ChunkID, Err: err})
			continue
		}
		metadata, err := r.MetadataJSON()
		if err != nil {
			report.Failed = append(report.Failed, vectorstore.FailedWrite{ChunkID: r.ChunkID, Err: err})
			continue
		}
		if _, err := stmt.ExecContext(ctx,
			r.ChunkID, r.DocumentID, r.OwnerID, r.ChunkIndex,
			r.Text, r.TextPreview, string(embedding), metadata,
			r.CreatedAtISO()); err != nil {
			if ctx.Err() != nil {
				return report, fmt.Errorf("batch write aborted: %w", ctx.Err())
			}
			report.Failed = append(report.Failed, vectorstore.FailedWrite{
				ChunkID: r.ChunkID,
				Err:     fmt.Errorf("upserting chunk %s: %w", r.ChunkID, err),
			})
			continue
		}
		report.Written++
	}

	if err := tx.Commit(); err != nil {
		// The whole sub-batch is lost, not just the failed rows.
		report.Failed = nil
		for _, r := range records {
			report.Failed = append(report.Failed, vectorstore.FailedWrite{
				ChunkID: r.ChunkID,
				Err:     fmt.Errorf("committing sub-batch: %w", err),
			})
		}
		report.Written = 0
		return report, nil
	}
	return report, nil
}

const recordCols = `chunk_id, document_id, owner_id, chunk_index,
	chunk_text, text_preview, embedding, metadata, created_at`

// QueryByDocument returns the document's records ordered by chunk index.
func (s *Store) QueryByDocument(ctx context.Context, documentID string) ([]vectorstore.VectorRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordCols+`
		 FROM chunk_vectors
		 WHERE document_id = ?
		 ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", documentID, err)
	}
	defer rows.Close()

	var records []vectorstore.VectorRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// QueryByOwnerAndVector filters by owner and document scope in SQL,
// then scores each candidate in Go with cosine similarity. SQLite has
// no vector index, so this is a full scan over the owner's records;
// acceptable for an analytical backend.
func (s *Store) QueryByOwnerAndVector(ctx context.Context, ownerID string, queryVector []float32, topK int, minSimilarity float64, documentIDs []string) ([]vectorstore.ScoredRecord, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, want %d",
			vectorstore.ErrDimensionMismatch, len(queryVector), s.dimension)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", vectorstore.ErrInvalidTopK, topK)
	}

	query := `SELECT ` + recordCols + ` FROM chunk_vectors WHERE owner_id = ?`
	args := []any{ownerID}
	if len(documentIDs) > 0 {
		query += ` AND document_id IN (?` + repeatPlaceholder(len(documentIDs)-1) + `)`
		for _, id := range documentIDs {
			args = append(args, id)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var results []vectorstore.ScoredRecord
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		sim, err := vectorstore.CosineSimilarity(r.Embedding, queryVector)
		if err != nil {
			return nil, fmt.Errorf("score chunk %s: %w", r.ChunkID, err)
		}
		if sim < minSimilarity {
			continue
		}
		results = append(results, vectorstore.ScoredRecord{VectorRecord: r, Similarity: sim})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}

	vectorstore.SortScored(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DocumentIDs returns the distinct document IDs present in the store,
// sorted.
func (s *Store) DocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT document_id FROM chunk_vectors ORDER BY document_id`)
	if err != nil {
		return nil, fmt.Errorf("listing document ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating document ids: %w", err)
	}
	return ids, nil
}

// Count returns the record count for documentID, or the total count
// when documentID is empty.
func (s *Store) Count(ctx context.Context, documentID string) (int, error) {
	var (
		count int
		err   error
	)
	if documentID == "" {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM chunk_vectors`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx,
			`SELECT count(*) FROM chunk_vectors WHERE document_id = ?`,
			documentID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting chunk vectors: %w", err)
	}
	return count, nil
}

func repeatPlaceholder(n int) string {
	out := make([]byte, 0, n*3)
	for range n {
		out = append(out, ", ?"...)
	}
	return string(out)
}

func scanRecord(rows *sql.Rows) (vectorstore.VectorRecord, error) {
	var (
		r         vectorstore.VectorRecord
		embedding string
		metadata  string
		createdAt string
	)
	if err := rows.Scan(&r.ChunkID, &r.DocumentID, &r.OwnerID, &r.ChunkIndex,
		&r.Text, &r.TextPreview, &embedding, &metadata, &createdAt); err != nil {
		return r, fmt.Errorf("scanning chunk vector: %w", err)
	}

	if err := json.Unmarshal([]byte(embedding), &r.Embedding); err != nil {
		return r, fmt.Errorf("decoding embedding for chunk %s: %w", r.ChunkID, err)
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &r.Metadata); err != nil {
			return r, fmt.Errorf("decoding metadata for chunk %s: %w", r.ChunkID, err)
		}
	}
	if createdAt != "" {
		ts, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return r, fmt.Errorf("parsing created_at for chunk %s: %w", r.ChunkID, err)
		}
		r.CreatedAt = ts
	}
	return r, nil
}
