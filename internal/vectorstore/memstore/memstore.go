// Package memstore provides an in-memory vectorstore.Store using
// brute-force cosine similarity. It exists for tests and local
// development; it shares the exact query semantics of the production
// backends so pipeline tests exercise real filtering and ranking.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/chatd/ragcore/internal/vectorstore"
)

// Store holds records keyed by chunk ID.
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]vectorstore.VectorRecord

	// FailChunkIDs marks chunk IDs whose writes are reported as failed,
	// for exercising partial-failure paths in tests.
	FailChunkIDs map[string]error
}

// New returns an empty store that validates records against dimension.
func New(dimension int) *Store {
	return &Store{
		dimension: dimension,
		records:   make(map[string]vectorstore.VectorRecord),
	}
}

// WriteBatch upserts records by chunk ID. Invalid records and records
// listed in FailChunkIDs are reported in WriteReport.Failed.
func (s *Store) WriteBatch(ctx context.Context, records []vectorstore.VectorRecord) (vectorstore.WriteReport, error) {
	var report vectorstore.WriteReport
	if err := ctx.Err(); err != nil {
		return report, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, batch := range vectorstore.SubBatches(records, vectorstore.MaxWriteBatchSize) {
		for _, r := range batch {
			if err := r.Validate(s.dimension); err != nil {
				report.Failed = append(report.Failed, vectorstore.FailedWrite{ChunkID: r.ChunkID, Err: err})
				continue
			}
			if err, ok := s.FailChunkIDs[r.ChunkID]; ok {
				report.Failed = append(report.Failed, vectorstore.FailedWrite{ChunkID: r.ChunkID, Err: err})
				continue
			}
			s.records[r.ChunkID] = r
			report.Written++
		}
	}
	return report, nil
}

// QueryByDocument returns the document's records ordered by ChunkIndex.
func (s *Store) QueryByDocument(ctx context.Context, documentID string) ([]vectorstore.VectorRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []vectorstore.VectorRecord
	for _, r := range s.records {
		if r.DocumentID == documentID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ChunkIndex < out[j].ChunkIndex })
	return out, nil
}

// QueryByOwnerAndVector scores every record owned by ownerID against
// queryVector and returns up to topK above minSimilarity.
func (s *Store) QueryByOwnerAndVector(ctx context.Context, ownerID string, queryVector []float32, topK int, minSimilarity float64, documentIDs []string) ([]vectorstore.ScoredRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if topK <= 0 {
		return nil, fmt.Errorf("%w: got %d", vectorstore.ErrInvalidTopK, topK)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []vectorstore.ScoredRecord
	for _, r := range s.records {
		if r.OwnerID != ownerID {
			continue
		}
		if len(documentIDs) > 0 && !slices.Contains(documentIDs, r.DocumentID) {
			continue
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

	vectorstore.SortScored(results)
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// DeleteByDocument removes every record for the document and returns
// how many were removed.
func (s *Store) DeleteByDocument(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := 0
	for id, r := range s.records {
		if r.DocumentID == documentID {
			delete(s.records, id)
			n++
		}
	}
	return n, nil
}

// DocumentIDs returns the distinct document IDs present in the store,
// sorted.
func (s *Store) DocumentIDs(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	seen := make(map[string]struct{})
	var ids []string
	for _, r := range s.records {
		if _, ok := seen[r.DocumentID]; ok {
			continue
		}
		seen[r.DocumentID] = struct{}{}
		ids = append(ids, r.DocumentID)
	}
	sort.Strings(ids)
	return ids, nil
}

// Count returns the record count for documentID, or the total when
// documentID is empty.
func (s *Store) Count(ctx context.Context, documentID string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if documentID == "" {
		return len(s.records), nil
	}
	n := 0
	for _, r := range s.records {
		if r.DocumentID == documentID {
			n++
		}
	}
	return n, nil
}
