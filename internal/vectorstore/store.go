package vectorstore

import (
	"context"
	"sort"
)

// Store is the persistence contract implemented by every backend.
//
// Implementations must be safe for concurrent use.
type Store interface {
	// WriteBatch persists records, splitting internally into sub-batches
	// of at most MaxWriteBatchSize. Writes are idempotent by ChunkID:
	// re-writing an existing chunk overwrites, never duplicates.
	//
	// Sub-batches execute sequentially and are independent transactions;
	// a failed sub-batch never rolls back earlier ones (at-least-once).
	// The report identifies exactly which records failed so callers can
	// retry only that subset. The error return is reserved for total
	// failures where nothing was attempted.
	WriteBatch(ctx context.Context, records []VectorRecord) (WriteReport, error)

	// QueryByDocument returns every record for the document, ordered by
	// ChunkIndex.
	QueryByDocument(ctx context.Context, documentID string) ([]VectorRecord, error)

	// QueryByOwnerAndVector returns up to topK records owned by ownerID
	// with cosine similarity >= minSimilarity against queryVector, sorted
	// by descending similarity with ties broken by lower ChunkIndex.
	// documentIDs, when non-empty, restricts the scope. A non-positive
	// topK is rejected with ErrInvalidTopK.
	QueryByOwnerAndVector(ctx context.Context, ownerID string, queryVector []float32, topK int, minSimilarity float64, documentIDs []string) ([]ScoredRecord, error)

	// Count returns the number of records for documentID, or the total
	// record count when documentID is empty.
	Count(ctx context.Context, documentID string) (int, error)
}

// FailedWrite identifies one record that could not be persisted.
type FailedWrite struct {
	ChunkID string
	Err     error
}

// WriteReport is the per-record outcome of a WriteBatch call.
// Failures are counts plus identifiers, never a collapsed boolean: a
// partially failed batch must stay distinguishable from a clean one.
type WriteReport struct {
	Written int
	Failed  []FailedWrite
}

// FailedCount returns the number of records that failed.
func (r WriteReport) FailedCount() int {
	return len(r.Failed)
}

// Merge folds another report into this one.
func (r *WriteReport) Merge(other WriteReport) {
	r.Written += other.Written
	r.Failed = append(r.Failed, other.Failed...)
}

// SubBatches splits records into consecutive slices of at most size
// elements. The slices alias the input.
func SubBatches(records []VectorRecord, size int) [][]VectorRecord {
	if size <= 0 {
		size = MaxWriteBatchSize
	}
	var batches [][]VectorRecord
	for start := 0; start < len(records); start += size {
		end := start + size
		if end > len(records) {
			end = len(records)
		}
		batches = append(batches, records[start:end])
	}
	return batches
}

// SortScored orders results by descending similarity, breaking ties by
// lower ChunkIndex. Backends that rank in Go (memstore, columnstore) use
// it so all backends agree on ordering.
func SortScored(results []ScoredRecord) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Similarity != results[j].Similarity {
			return results[i].Similarity > results[j].Similarity
		}
		return results[i].ChunkIndex < results[j].ChunkIndex
	})
}
