package retriever

import (
	"context"
	"errors"
	"testing"

	"github.com/chatd/ragcore/internal/vectorstore"
)

type mockEmbedder struct {
	vec []float32
	err error
}

func (m *mockEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.vec, nil
}

type mockSearcher struct {
	results []vectorstore.ScoredRecord
	err     error

	gotOwner       string
	gotTopK        int
	gotMinSim      float64
	gotDocumentIDs []string
}

func (m *mockSearcher) QueryByOwnerAndVector(ctx context.Context, ownerID string, queryVector []float32, topK int, minSimilarity float64, documentIDs []string) ([]vectorstore.ScoredRecord, error) {
	m.gotOwner = ownerID
	m.gotTopK = topK
	m.gotMinSim = minSimilarity
	m.gotDocumentIDs = documentIDs
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

type mockDocs struct {
	docs []Document
	err  error
}

func (m *mockDocs) ListByOwner(ctx context.Context, ownerID string, documentIDs []string, limit int) ([]Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.docs, nil
}

type captureRecorder struct {
	events []Event
}

func (c *captureRecorder) Record(event Event) {
	c.events = append(c.events, event)
}

func scored(chunkID, documentID string, index int, similarity float64) vectorstore.ScoredRecord {
	return vectorstore.ScoredRecord{
		VectorRecord: vectorstore.VectorRecord{
			ChunkID:    chunkID,
			DocumentID: documentID,
			OwnerID:    "u1",
			ChunkIndex: index,
		},
		Similarity: similarity,
	}
}

func newTestRetriever(t *testing.T, e QueryEmbedder, s ChunkSearcher, d DocumentSource, rec Recorder) *Retriever {
	t.Helper()
	r, err := New(e, s, d, rec, Config{TopK: 5, MinSimilarity: 0.3}, nil)
	if err != nil {
		t.Fatalf("New() = %v", err)
	}
	return r
}

func TestRetrieveChunkMatch(t *testing.T) {
	searcher := &mockSearcher{results: []vectorstore.ScoredRecord{
		scored("c1", "d1", 0, 0.9),
		scored("c2", "d2", 3, 0.7),
	}}
	rec := &captureRecorder{}
	r := newTestRetriever(t, &mockEmbedder{vec: []float32{1, 0}}, searcher, &mockDocs{}, rec)

	result, err := r.Retrieve(context.Background(), "u1", "what is the policy?")
	if err != nil {
		t.Fatalf("Retrieve() = %v", err)
	}

	if result.Outcome != OutcomeChunkMatch {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if len(result.Chunks) != 2 {
		t.Errorf("chunks = %d", len(result.Chunks))
	}
	if searcher.gotOwner != "u1" || searcher.gotTopK != 5 || searcher.gotMinSim != 0.3 {
		t.Errorf("search args = %q, %d, %.2f", searcher.gotOwner, searcher.gotTopK, searcher.gotMinSim)
	}

	if len(rec.events) != 1 {
		t.Fatalf("events = %d", len(rec.events))
	}
	event := rec.events[0]
	if event.Outcome != OutcomeChunkMatch || event.ChunkCount != 2 {
		t.Errorf("event = %+v", event)
	}
	if event.TopSimilarity != 0.9 {
		t.Errorf("top similarity = %.2f", event.TopSimilarity)
	}
	if event.MinSimilarity != 0.3 {
		t.Errorf("min similarity = %.2f, want the applied floor", event.MinSimilarity)
	}
	if len(event.References) != 2 {
		t.Fatalf("references = %d, want 2", len(event.References))
	}
	top := event.References[0]
	if top.DocumentID != "d1" || top.ChunkIndex != 0 || top.Similarity != 0.9 || top.Fallback {
		t.Errorf("top reference = %+v", top)
	}
	if event.References[1].DocumentID != "d2" || event.References[1].ChunkIndex != 3 {
		t.Errorf("second reference = %+v", event.References[1])
	}
	if event.ID == "" {
		t.Error("event has no id")
	}
}

func TestRetrieveDocumentFallback(t *testing.T) {
	docs := &mockDocs{docs: []Document{{ID: "d1", Name: "handbook", Content: "full text"}}}
	rec := &captureRecorder{}
	r := newTestRetriever(t, &mockEmbedder{vec: []float32{1, 0}}, &mockSearcher{}, docs, rec)

	result, err := r.Retrieve(context.Background(), "u1", "query")
	if err != nil {
		t.Fatalf("Retrieve() = %v", err)
	}

	if result.Outcome != OutcomeDocumentFallback {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if len(result.Documents) != 1 || result.Documents[0].ID != "d1" {
		t.Errorf("documents = %+v", result.Documents)
	}
	event := rec.events[0]
	if event.DocumentCount != 1 {
		t.Errorf("event = %+v", event)
	}
	if len(event.References) != 1 {
		t.Fatalf("references = %d, want 1", len(event.References))
	}
	ref := event.References[0]
	if ref.DocumentID != "d1" || ref.ChunkIndex != -1 || !ref.Fallback {
		t.Errorf("fallback reference = %+v", ref)
	}
}

func TestRetrieveNoEvidence(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRetriever(t, &mockEmbedder{vec: []float32{1, 0}}, &mockSearcher{}, &mockDocs{}, rec)

	result, err := r.Retrieve(context.Background(), "u1", "query")
	if err != nil {
		t.Fatalf("Retrieve() = %v", err)
	}
	if result.Outcome != OutcomeNoEvidence {
		t.Fatalf("outcome = %s", result.Outcome)
	}
	if rec.events[0].Outcome != OutcomeNoEvidence {
		t.Errorf("event outcome = %s", rec.events[0].Outcome)
	}
}

func TestRetrieveNoEvidenceWithoutDocumentSource(t *testing.T) {
	r := newTestRetriever(t, &mockEmbedder{vec: []float32{1, 0}}, &mockSearcher{}, nil, nil)

	result, err := r.Retrieve(context.Background(), "u1", "query")
	if err != nil {
		t.Fatalf("Retrieve() = %v", err)
	}
	if result.Outcome != OutcomeNoEvidence {
		t.Fatalf("outcome = %s", result.Outcome)
	}
}

func TestRetrieveEmbedFailure(t *testing.T) {
	rec := &captureRecorder{}
	r := newTestRetriever(t, &mockEmbedder{err: errors.New("quota")}, &mockSearcher{}, nil, rec)

	result, err := r.Retrieve(context.Background(), "u1", "query")
	if !errors.Is(err, ErrEmbedStep) {
		t.Fatalf("err = %v, want ErrEmbedStep", err)
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s", result.Outcome)
	}
	if rec.events[0].Outcome != OutcomeFailed || rec.events[0].Error == "" {
		t.Errorf("event = %+v", rec.events[0])
	}
}

func TestRetrieveSearchFailure(t *testing.T) {
	r := newTestRetriever(t, &mockEmbedder{vec: []float32{1, 0}}, &mockSearcher{err: errors.New("db down")}, nil, nil)

	_, err := r.Retrieve(context.Background(), "u1", "query")
	if !errors.Is(err, ErrSearchStep) {
		t.Fatalf("err = %v, want ErrSearchStep", err)
	}
}

func TestRetrieveFallbackFailure(t *testing.T) {
	docs := &mockDocs{err: errors.New("db down")}
	r := newTestRetriever(t, &mockEmbedder{vec: []float32{1, 0}}, &mockSearcher{}, docs, nil)

	_, err := r.Retrieve(context.Background(), "u1", "query")
	if !errors.Is(err, ErrFallbackStep) {
		t.Fatalf("err = %v, want ErrFallbackStep", err)
	}
}

func TestRetrieveEmptyQuery(t *testing.T) {
	r := newTestRetriever(t, &mockEmbedder{vec: []float32{1, 0}}, &mockSearcher{}, nil, nil)

	_, err := r.Retrieve(context.Background(), "u1", "")
	if !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("err = %v, want ErrEmptyQuery", err)
	}
}

func TestRetrieveMissingOwner(t *testing.T) {
	r := newTestRetriever(t, &mockEmbedder{vec: []float32{1, 0}}, &mockSearcher{}, nil, nil)

	result, err := r.Retrieve(context.Background(), "", "query")
	if err == nil {
		t.Fatal("expected error for missing owner")
	}
	if result.Outcome != OutcomeFailed {
		t.Errorf("outcome = %s", result.Outcome)
	}
}

func TestRetrieveOptions(t *testing.T) {
	searcher := &mockSearcher{}
	r := newTestRetriever(t, &mockEmbedder{vec: []float32{1, 0}}, searcher, nil, nil)

	_, err := r.Retrieve(context.Background(), "u1", "query",
		WithTopK(20),
		WithMinSimilarity(0.6),
		WithDocumentIDs([]string{"d1", "d2"}))
	if err != nil {
		t.Fatalf("Retrieve() = %v", err)
	}

	if searcher.gotTopK != 20 || searcher.gotMinSim != 0.6 {
		t.Errorf("options not applied: topK=%d minSim=%.2f", searcher.gotTopK, searcher.gotMinSim)
	}
	if len(searcher.gotDocumentIDs) != 2 {
		t.Errorf("document filter = %v", searcher.gotDocumentIDs)
	}
}
