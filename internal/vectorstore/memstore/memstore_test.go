package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/chatd/ragcore/internal/vectorstore"
)

func record(chunkID, docID, ownerID string, index int, embedding []float32) vectorstore.VectorRecord {
	return vectorstore.VectorRecord{
		ChunkID:    chunkID,
		DocumentID: docID,
		OwnerID:    ownerID,
		ChunkIndex: index,
		Text:       "text for " + chunkID,
		Embedding:  embedding,
	}
}

func TestWriteBatchUpsert(t *testing.T) {
	ctx := context.Background()
	s := New(3)

	report, err := s.WriteBatch(ctx, []vectorstore.VectorRecord{
		record("c1", "d1", "u1", 0, []float32{1, 0, 0}),
		record("c2", "d1", "u1", 1, []float32{0, 1, 0}),
	})
	if err != nil {
		t.Fatalf("WriteBatch() = %v", err)
	}
	if report.Written != 2 || report.FailedCount() != 0 {
		t.Fatalf("report = %d written, %d failed", report.Written, report.FailedCount())
	}

	// Rewriting the same chunk must overwrite, not duplicate.
	updated := record("c1", "d1", "u1", 0, []float32{0, 0, 1})
	if _, err := s.WriteBatch(ctx, []vectorstore.VectorRecord{updated}); err != nil {
		t.Fatalf("WriteBatch() = %v", err)
	}

	n, err := s.Count(ctx, "d1")
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if n != 2 {
		t.Errorf("Count() = %d, want 2", n)
	}

	got, err := s.QueryByDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("QueryByDocument() = %v", err)
	}
	if got[0].Embedding[2] != 1 {
		t.Error("rewrite did not overwrite the embedding")
	}
}

func TestWriteBatchReportsInvalidRecords(t *testing.T) {
	s := New(3)

	report, err := s.WriteBatch(context.Background(), []vectorstore.VectorRecord{
		record("c1", "d1", "u1", 0, []float32{1, 0, 0}),
		record("", "d1", "u1", 1, []float32{0, 1, 0}),
		record("c3", "d1", "u1", 2, []float32{1, 2}),
	})
	if err != nil {
		t.Fatalf("WriteBatch() = %v", err)
	}

	if report.Written != 1 {
		t.Errorf("Written = %d, want 1", report.Written)
	}
	if report.FailedCount() != 2 {
		t.Fatalf("FailedCount() = %d, want 2", report.FailedCount())
	}
	if !errors.Is(report.Failed[0].Err, vectorstore.ErrMissingField) {
		t.Errorf("first failure = %v, want ErrMissingField", report.Failed[0].Err)
	}
	if !errors.Is(report.Failed[1].Err, vectorstore.ErrDimensionMismatch) {
		t.Errorf("second failure = %v, want ErrDimensionMismatch", report.Failed[1].Err)
	}
}

func TestQueryByDocumentOrder(t *testing.T) {
	ctx := context.Background()
	s := New(2)

	_, err := s.WriteBatch(ctx, []vectorstore.VectorRecord{
		record("c2", "d1", "u1", 2, []float32{1, 0}),
		record("c0", "d1", "u1", 0, []float32{1, 0}),
		record("c1", "d1", "u1", 1, []float32{1, 0}),
		record("other", "d2", "u1", 0, []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("WriteBatch() = %v", err)
	}

	got, err := s.QueryByDocument(ctx, "d1")
	if err != nil {
		t.Fatalf("QueryByDocument() = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("got %d records, want 3", len(got))
	}
	for i, r := range got {
		if r.ChunkIndex != i {
			t.Errorf("position %d has ChunkIndex %d", i, r.ChunkIndex)
		}
	}
}

func TestQueryByOwnerAndVector(t *testing.T) {
	ctx := context.Background()
	s := New(2)

	_, err := s.WriteBatch(ctx, []vectorstore.VectorRecord{
		record("near", "d1", "u1", 0, []float32{1, 0}),
		record("mid", "d1", "u1", 1, []float32{1, 1}),
		record("far", "d1", "u1", 2, []float32{-1, 0}),
		record("foreign", "d9", "u2", 0, []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("WriteBatch() = %v", err)
	}

	got, err := s.QueryByOwnerAndVector(ctx, "u1", []float32{1, 0}, 10, 0.3, nil)
	if err != nil {
		t.Fatalf("QueryByOwnerAndVector() = %v", err)
	}

	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ChunkID != "near" || got[1].ChunkID != "mid" {
		t.Errorf("order = %s, %s", got[0].ChunkID, got[1].ChunkID)
	}
	for _, r := range got {
		if r.OwnerID != "u1" {
			t.Errorf("result %s owned by %s leaked across owners", r.ChunkID, r.OwnerID)
		}
		if r.Similarity < 0.3 {
			t.Errorf("result %s below threshold: %.3f", r.ChunkID, r.Similarity)
		}
	}
}

func TestQueryByOwnerAndVectorDocumentFilter(t *testing.T) {
	ctx := context.Background()
	s := New(2)

	_, err := s.WriteBatch(ctx, []vectorstore.VectorRecord{
		record("a", "d1", "u1", 0, []float32{1, 0}),
		record("b", "d2", "u1", 0, []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("WriteBatch() = %v", err)
	}

	got, err := s.QueryByOwnerAndVector(ctx, "u1", []float32{1, 0}, 10, 0, []string{"d2"})
	if err != nil {
		t.Fatalf("QueryByOwnerAndVector() = %v", err)
	}
	if len(got) != 1 || got[0].ChunkID != "b" {
		t.Fatalf("document filter returned %d results", len(got))
	}
}

func TestQueryByOwnerAndVectorTopK(t *testing.T) {
	ctx := context.Background()
	s := New(2)

	_, err := s.WriteBatch(ctx, []vectorstore.VectorRecord{
		record("a", "d1", "u1", 0, []float32{1, 0}),
		record("b", "d1", "u1", 1, []float32{1, 0.1}),
		record("c", "d1", "u1", 2, []float32{1, 0.2}),
	})
	if err != nil {
		t.Fatalf("WriteBatch() = %v", err)
	}

	got, err := s.QueryByOwnerAndVector(ctx, "u1", []float32{1, 0}, 2, 0, nil)
	if err != nil {
		t.Fatalf("QueryByOwnerAndVector() = %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d results, want 2", len(got))
	}
	if got[0].ChunkID != "a" {
		t.Errorf("best match = %s, want a", got[0].ChunkID)
	}
}

func TestQueryByOwnerAndVectorRejectsNonPositiveTopK(t *testing.T) {
	s := New(2)

	for _, topK := range []int{0, -1} {
		_, err := s.QueryByOwnerAndVector(context.Background(), "u1", []float32{1, 0}, topK, 0, nil)
		if !errors.Is(err, vectorstore.ErrInvalidTopK) {
			t.Errorf("topK=%d: err = %v, want ErrInvalidTopK", topK, err)
		}
	}
}

func TestCountTotal(t *testing.T) {
	ctx := context.Background()
	s := New(2)

	_, err := s.WriteBatch(ctx, []vectorstore.VectorRecord{
		record("a", "d1", "u1", 0, []float32{1, 0}),
		record("b", "d2", "u1", 0, []float32{1, 0}),
	})
	if err != nil {
		t.Fatalf("WriteBatch() = %v", err)
	}

	n, err := s.Count(ctx, "")
	if err != nil {
		t.Fatalf("Count() = %v", err)
	}
	if n != 2 {
		t.Errorf("total Count() = %d, want 2", n)
	}
}

func TestWriteBatchHonorsContext(t *testing.T) {
	s := New(2)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.WriteBatch(ctx, []vectorstore.VectorRecord{record("a", "d1", "u1", 0, []float32{1, 0})})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}
