// Package rowstore implements vectorstore.Store on PostgreSQL with the
// pgvector extension. It is the primary backend: the indexing pipeline
// writes here and the retriever queries here.
package rowstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/chatd/ragcore/internal/vectorstore"
)

// querier is the common interface satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// recordCols is the standard SELECT column list for scanRecords.
const recordCols = `chunk_id, document_id, owner_id, chunk_index,
	chunk_text, text_preview, embedding, metadata, created_at`

// upsertSQL writes one chunk idempotently. Re-indexing a document
// produces the same chunk IDs, so conflicts overwrite in place.
const upsertSQL = `INSERT INTO chunk_vectors
	(chunk_id, document_id, owner_id, chunk_index, chunk_text, text_preview, embedding, metadata, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (chunk_id) DO UPDATE SET
		document_id = EXCLUDED.document_id,
		owner_id = EXCLUDED.owner_id,
		chunk_index = EXCLUDED.chunk_index,
		chunk_text = EXCLUDED.chunk_text,
		text_preview = EXCLUDED.text_preview,
		embedding = EXCLUDED.embedding,
		metadata = EXCLUDED.metadata,
		created_at = EXCLUDED.created_at`

// Store is a PostgreSQL-backed vector store.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db        querier
	dimension int
	logger    *slog.Logger
}

// New creates a Store. The schema must already exist (see db migrations).
func New(pool *pgxpool.Pool, dimension int, logger *slog.Logger) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be positive, got %d", dimension)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: pool, dimension: dimension, logger: logger}, nil
}

// WriteBatch upserts records in sub-batches of at most
// vectorstore.MaxWriteBatchSize, each sent as one pgx batch round trip.
// A failed record is reported, not fatal; later records still write.
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

	// Validate up front so the batch only carries writable rows.
	writable := make([]vectorstore.VectorRecord, 0, len(records))
	for _, r := range records {
		if err := r.Validate(s.dimension); err != nil {
			report.Failed = append(report.Failed, vectorstore.FailedWrite{ChunkID: r.ChunkID, Err: err})
			continue
		}
		writable = append(writable, r)
	}
	if len(writable) == 0 {
		return report, nil
	}

	batch := &pgx.Batch{}
	for _, r := range writable {
		metadata, err := r.MetadataJSON()
		if err != nil {
			report.Failed = append(report.Failed, vectorstore.FailedWrite{ChunkID: r.ChunkID, Err: err})
			continue
		}
		batch.Queue(upsertSQL,
			r.ChunkID, r.DocumentID, r.OwnerID, r.ChunkIndex,
			r.Text, r.TextPreview, pgvector.NewVector(r.Embedding),
			metadata, r.CreatedAt.UTC())
	}

	results := s.db.SendBatch(ctx, batch)
	defer results.Close()

	for _, r := range writable {
		if _, err := results.Exec(); err != nil {
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
	return report, nil
}

// QueryByDocument returns the document's records ordered by chunk index.
func (s *Store) QueryByDocument(ctx context.Context, documentID string) ([]vectorstore.VectorRecord, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+recordCols+`
		 FROM chunk_vectors
		 WHERE document_id = $1
		 ORDER BY chunk_index`,
		documentID)
	if err != nil {
		return nil, fmt.Errorf("querying document %s: %w", documentID, err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// QueryByOwnerAndVector runs a pgvector nearest-neighbor search scoped
// to one owner. Similarity is 1 - cosine distance; ordering and the
// chunk-index tiebreak happen in SQL so the index can drive the scan.
func (s *Store) QueryByOwnerAndVector(ctx context.Context, ownerID string, queryVector []float32, topK int, minSimilarity float64, documentIDs []string) ([]vectorstore.ScoredRecord, error) {
	if len(queryVector) != s.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, want %d",
			vectorstore.ErrDimensionMismatch, len(queryVector), s.dimension)
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", vectorstore.ErrInvalidTopK, topK)
	}

	vec := pgvector.NewVector(queryVector)
	query := `SELECT ` + recordCols + `, 1 - (embedding <=> $1) AS similarity
		 FROM chunk_vectors
		 WHERE owner_id = $2
		   AND 1 - (embedding <=> $1) >= $3`
	args := []any{vec, ownerID, minSimilarity}

	if len(documentIDs) > 0 {
		query += ` AND document_id = ANY($4)`
		args = append(args, documentIDs)
	}
	query += fmt.Sprintf(` ORDER BY embedding <=> $1, chunk_index LIMIT %d`, topK)

	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("vector search for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var results []vectorstore.ScoredRecord
	for rows.Next() {
		var sr vectorstore.ScoredRecord
		if err := scanInto(rows, &sr.VectorRecord, &sr.Similarity); err != nil {
			return nil, err
		}
		results = append(results, sr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search results: %w", err)
	}
	return results, nil
}

// Count returns the record count for documentID, or the total count
// when documentID is empty.
func (s *Store) Count(ctx context.Context, documentID string) (int, error) {
	var (
		count int
		err   error
	)
	if documentID == "" {
		err = s.db.QueryRow(ctx, `SELECT count(*) FROM chunk_vectors`).Scan(&count)
	} else {
		err = s.db.QueryRow(ctx,
			`SELECT count(*) FROM chunk_vectors WHERE document_id = $1`,
			documentID).Scan(&count)
	}
	if err != nil {
		return 0, fmt.Errorf("counting chunk vectors: %w", err)
	}
	return count, nil
}

// DocumentIDs returns the distinct document IDs present in the store,
// sorted. The migrator walks the source store document by document.
func (s *Store) DocumentIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx,
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

// DeleteByDocument removes every record for the document. The indexer
// calls it before re-indexing so stale chunks from a longer previous
// version of the text do not survive.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM chunk_vectors WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for document %s: %w", documentID, err)
	}
	return int(tag.RowsAffected()), nil
}

func scanRecords(rows pgx.Rows) ([]vectorstore.VectorRecord, error) {
	var records []vectorstore.VectorRecord
	for rows.Next() {
		var r vectorstore.VectorRecord
		if err := scanInto(rows, &r, nil); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return records, nil
}

// scanInto scans one row into r; similarity is scanned too when the
// query selected it.
func scanInto(rows pgx.Rows, r *vectorstore.VectorRecord, similarity *float64) error {
	var (
		embedding pgvector.Vector
		metadata  []byte
	)
	dest := []any{
		&r.ChunkID, &r.DocumentID, &r.OwnerID, &r.ChunkIndex,
		&r.Text, &r.TextPreview, &embedding, &metadata, &r.CreatedAt,
	}
	if similarity != nil {
		dest = append(dest, similarity)
	}
	if err := rows.Scan(dest...); err != nil {
		return fmt.Errorf("scanning chunk vector: %w", err)
	}

	r.Embedding = embedding.Slice()
	if len(metadata) > 0 {
		if err := json.Unmarshal(metadata, &r.Metadata); err != nil {
			return fmt.Errorf("decoding metadata for chunk %s: %w", r.ChunkID, err)
		}
	}
	return nil
}
