package reference

import (
	"fmt"
	"testing"

	"github.com/chatd/ragcore/internal/retriever"
)

// chunkEvent builds a chunk-match event whose references carry the
// given similarities against a 0.3 floor, best first.
func chunkEvent(ownerID, documentID string, similarities ...float64) retriever.Event {
	e := retriever.Event{
		OwnerID:       ownerID,
		Outcome:       retriever.OutcomeChunkMatch,
		ChunkCount:    len(similarities),
		MinSimilarity: 0.3,
	}
	for i, s := range similarities {
		e.References = append(e.References, retriever.Reference{
			DocumentID: documentID,
			ChunkIndex: i,
			Similarity: s,
		})
	}
	if len(similarities) > 0 {
		e.TopSimilarity = similarities[0]
	}
	return e
}

func fallbackEvent(ownerID string, documentIDs ...string) retriever.Event {
	e := retriever.Event{
		OwnerID:       ownerID,
		Outcome:       retriever.OutcomeDocumentFallback,
		DocumentCount: len(documentIDs),
	}
	for _, id := range documentIDs {
		e.References = append(e.References, retriever.Reference{
			DocumentID: id,
			ChunkIndex: -1,
			Fallback:   true,
		})
	}
	return e
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		event retriever.Event
		want  Kind
	}{
		{"chunk match", chunkEvent("u1", "d1", 0.9, 0.7), ChunkSuccess},
		{"chunk match below floor", chunkEvent("u1", "d1", 0.1), NoReference},
		{"chunk match without references", retriever.Event{Outcome: retriever.OutcomeChunkMatch, ChunkCount: 3}, NoReference},
		{"chunk match with malformed index", retriever.Event{
			Outcome:    retriever.OutcomeChunkMatch,
			References: []retriever.Reference{{DocumentID: "d1", ChunkIndex: -1, Similarity: 0.9}},
		}, NoReference},
		{"document fallback", fallbackEvent("u1", "d1"), DocumentFallback},
		{"fallback without references", retriever.Event{Outcome: retriever.OutcomeDocumentFallback, DocumentCount: 1}, NoReference},
		{"no evidence", retriever.Event{Outcome: retriever.OutcomeNoEvidence}, NoReference},
		{"failed", retriever.Event{Outcome: retriever.OutcomeFailed, Error: "boom"}, NoReference},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.event); got != tt.want {
				t.Errorf("Classify() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAggregate(t *testing.T) {
	events := []retriever.Event{
		chunkEvent("u1", "d1", 0.9, 0.7),
		chunkEvent("u1", "d2", 0.8),
		fallbackEvent("u1", "d3"),
		{Outcome: retriever.OutcomeNoEvidence},
		{Outcome: retriever.OutcomeFailed, Error: "quota"},
	}

	report := Aggregate(events)

	if report.Total != 5 {
		t.Errorf("total = %d", report.Total)
	}
	if report.ChunkSuccess != 2 || report.DocumentFallback != 1 || report.NoReference != 2 {
		t.Errorf("report = %+v", report)
	}
	if report.Failed != 1 {
		t.Errorf("failed = %d", report.Failed)
	}
	if report.ChunkHitRate != 0.4 {
		t.Errorf("chunk hit rate = %.2f, want 0.4", report.ChunkHitRate)
	}
	if report.FallbackRate != 0.2 {
		t.Errorf("fallback rate = %.2f, want 0.2", report.FallbackRate)
	}
	if want := (0.9 + 0.7 + 0.8) / 3; report.AvgSimilarity != want {
		t.Errorf("avg similarity = %.3f, want %.3f", report.AvgSimilarity, want)
	}
}

func TestAggregateRanksTopSources(t *testing.T) {
	events := []retriever.Event{
		chunkEvent("u1", "d2", 0.9),
		chunkEvent("u1", "d1", 0.8),
		chunkEvent("u1", "d2", 0.7),
		fallbackEvent("u1", "d3"),
	}

	report := Aggregate(events)

	if len(report.TopSources) != 2 {
		t.Fatalf("top sources = %+v, want 2 entries", report.TopSources)
	}
	if report.TopSources[0].DocumentID != "d2" || report.TopSources[0].TopMatches != 2 {
		t.Errorf("top source = %+v, want d2 with 2", report.TopSources[0])
	}
	if report.TopSources[1].DocumentID != "d1" || report.TopSources[1].TopMatches != 1 {
		t.Errorf("second source = %+v, want d1 with 1", report.TopSources[1])
	}
}

func TestAggregateAvgSkipsRejectedReferences(t *testing.T) {
	// One accepted reference, one below the floor: only the accepted
	// one contributes to the average.
	event := chunkEvent("u1", "d1", 0.8)
	event.References = append(event.References, retriever.Reference{
		DocumentID: "d1", ChunkIndex: 1, Similarity: 0.1,
	})

	report := Aggregate([]retriever.Event{event})
	if report.AvgSimilarity != 0.8 {
		t.Errorf("avg similarity = %.3f, want 0.8", report.AvgSimilarity)
	}
}

func TestAggregateByOwner(t *testing.T) {
	events := []retriever.Event{
		chunkEvent("u1", "d1", 0.9),
		chunkEvent("u2", "d1", 0.9),
		fallbackEvent("u2", "d2"),
	}

	report := Aggregate(events, ByOwner("u2"))

	if report.Total != 2 || report.ChunkSuccess != 1 || report.DocumentFallback != 1 {
		t.Errorf("scoped report = %+v", report)
	}
}

func TestAggregateByDocument(t *testing.T) {
	events := []retriever.Event{
		chunkEvent("u1", "d1", 0.9),
		chunkEvent("u1", "d2", 0.8),
		fallbackEvent("u1", "d2"),
	}

	report := Aggregate(events, ByDocument("d2"))

	if report.Total != 2 || report.ChunkSuccess != 1 || report.DocumentFallback != 1 {
		t.Errorf("scoped report = %+v", report)
	}
}

func TestAggregateEmpty(t *testing.T) {
	report := Aggregate(nil)
	if report.Total != 0 || report.ChunkHitRate != 0 || report.AvgSimilarity != 0 {
		t.Errorf("report = %+v", report)
	}
	if len(report.TopSources) != 0 {
		t.Errorf("top sources = %+v", report.TopSources)
	}
}

func TestLogRecordAndReport(t *testing.T) {
	log := NewLog(10)

	log.Record(chunkEvent("u1", "d1", 0.9))
	log.Record(retriever.Event{Outcome: retriever.OutcomeNoEvidence})

	events := log.Events()
	if len(events) != 2 {
		t.Fatalf("events = %d", len(events))
	}

	report := log.Report()
	if report.Total != 2 || report.ChunkSuccess != 1 {
		t.Errorf("report = %+v", report)
	}
	if len(log.Events(ByOwner("u1"))) != 1 {
		t.Errorf("owner filter leaked events")
	}
}

func TestLogEvictsOldest(t *testing.T) {
	log := NewLog(3)

	for i := range 5 {
		log.Record(retriever.Event{ID: fmt.Sprintf("e%d", i)})
	}

	events := log.Events()
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].ID != "e2" || events[2].ID != "e4" {
		t.Errorf("kept = %s..%s, want e2..e4", events[0].ID, events[2].ID)
	}
}
