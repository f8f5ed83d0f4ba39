// Package reference classifies how retrievals were grounded and
// aggregates those classifications into a usage report: counts and
// rates per outcome, the average similarity of accepted matches, and a
// ranking of which source documents most often supplied the top match.
package reference

import (
	"sort"
	"sync"

	"github.com/chatd/ragcore/internal/retriever"
)

// Kind is the reference classification of one retrieval.
type Kind string

const (
	// ChunkSuccess means the answer was grounded in scored chunks.
	ChunkSuccess Kind = "chunk_success"

	// DocumentFallback means whole documents stood in for chunks.
	DocumentFallback Kind = "document_fallback"

	// NoReference means the retrieval produced no usable evidence.
	NoReference Kind = "no_reference"
)

// Classify maps a retrieval event to its reference kind by inspecting
// the recorded references, not just the outcome tag: a chunk match
// must carry at least one chunk reference with a valid index whose
// similarity cleared the event's floor, and a fallback must carry at
// least one document reference. Failed retrievals count as
// NoReference: the caller got no evidence either way, and the report
// should reflect what users experienced.
func Classify(event retriever.Event) Kind {
	switch event.Outcome {
	case retriever.OutcomeChunkMatch:
		if topChunkRef(event) != nil {
			return ChunkSuccess
		}
		return NoReference
	case retriever.OutcomeDocumentFallback:
		for _, ref := range event.References {
			if ref.Fallback && ref.DocumentID != "" {
				return DocumentFallback
			}
		}
		return NoReference
	default:
		return NoReference
	}
}

// topChunkRef returns the first well-formed chunk reference, which is
// the top match since references are recorded in ranked order. A
// reference is well formed when it points at a chunk (index >= 0, not
// a fallback document) and its similarity cleared the event's floor.
func topChunkRef(event retriever.Event) *retriever.Reference {
	for i, ref := range event.References {
		if !ref.Fallback && ref.ChunkIndex >= 0 && ref.Similarity >= event.MinSimilarity {
			return &event.References[i]
		}
	}
	return nil
}

// SourceCount is one entry of the top-source ranking.
type SourceCount struct {
	DocumentID string `json:"document_id"`
	TopMatches int    `json:"top_matches"`
}

// Report aggregates classifications over a set of retrieval events.
type Report struct {
	Total            int     `json:"total"`
	ChunkSuccess     int     `json:"chunk_success"`
	DocumentFallback int     `json:"document_fallback"`
	NoReference      int     `json:"no_reference"`
	Failed           int     `json:"failed"`
	ChunkHitRate     float64 `json:"chunk_hit_rate"`
	FallbackRate     float64 `json:"fallback_rate"`

	// AvgSimilarity is the mean similarity over every accepted chunk
	// reference of ChunkSuccess events.
	AvgSimilarity float64 `json:"avg_similarity"`

	// TopSources ranks documents by how often they supplied the top
	// match, descending, ties broken by document ID.
	TopSources []SourceCount `json:"top_sources,omitempty"`
}

// Filter restricts which events an aggregation sees.
type Filter func(retriever.Event) bool

// ByOwner keeps events for one owner.
func ByOwner(ownerID string) Filter {
	return func(e retriever.Event) bool { return e.OwnerID == ownerID }
}

// ByDocument keeps events that referenced the document, as a chunk
// match or as a fallback.
func ByDocument(documentID string) Filter {
	return func(e retriever.Event) bool {
		for _, ref := range e.References {
			if ref.DocumentID == documentID {
				return true
			}
		}
		return false
	}
}

// FilterEvents returns the events passing every filter.
func FilterEvents(events []retriever.Event, filters ...Filter) []retriever.Event {
	if len(filters) == 0 {
		return events
	}
	var out []retriever.Event
	for _, e := range events {
		keep := true
		for _, f := range filters {
			if !f(e) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, e)
		}
	}
	return out
}

// Aggregate builds a Report from the events passing every filter.
// Failed retrievals are counted both under NoReference and separately
// under Failed.
func Aggregate(events []retriever.Event, filters ...Filter) Report {
	events = FilterEvents(events, filters...)

	var report Report
	report.Total = len(events)

	var simSum float64
	var simCount int
	topMatches := make(map[string]int)

	for _, event := range events {
		switch Classify(event) {
		case ChunkSuccess:
			report.ChunkSuccess++
			for _, ref := range event.References {
				if !ref.Fallback && ref.ChunkIndex >= 0 && ref.Similarity >= event.MinSimilarity {
					simSum += ref.Similarity
					simCount++
				}
			}
			topMatches[topChunkRef(event).DocumentID]++
		case DocumentFallback:
			report.DocumentFallback++
		case NoReference:
			report.NoReference++
		}
		if event.Outcome == retriever.OutcomeFailed {
			report.Failed++
		}
	}

	if report.Total > 0 {
		report.ChunkHitRate = float64(report.ChunkSuccess) / float64(report.Total)
		report.FallbackRate = float64(report.DocumentFallback) / float64(report.Total)
	}
	if simCount > 0 {
		report.AvgSimilarity = simSum / float64(simCount)
	}

	for docID, n := range topMatches {
		report.TopSources = append(report.TopSources, SourceCount{DocumentID: docID, TopMatches: n})
	}
	sort.Slice(report.TopSources, func(i, j int) bool {
		if report.TopSources[i].TopMatches != report.TopSources[j].TopMatches {
			return report.TopSources[i].TopMatches > report.TopSources[j].TopMatches
		}
		return report.TopSources[i].DocumentID < report.TopSources[j].DocumentID
	})
	return report
}

// Log is an in-memory retrieval event recorder with a bounded buffer.
// It satisfies retriever.Recorder.
type Log struct {
	mu     sync.Mutex
	events []retriever.Event
	cap    int
}

// NewLog creates a Log keeping at most capacity events; older events
// are dropped first. Non-positive capacity defaults to 1000.
func NewLog(capacity int) *Log {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Log{cap: capacity}
}

// Record appends one event, evicting the oldest past capacity.
func (l *Log) Record(event retriever.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, event)
	if len(l.events) > l.cap {
		l.events = l.events[len(l.events)-l.cap:]
	}
}

// Events returns a snapshot of the recorded events passing every
// filter.
func (l *Log) Events(filters ...Filter) []retriever.Event {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]retriever.Event, len(l.events))
	copy(out, l.events)
	return FilterEvents(out, filters...)
}

// Report aggregates the recorded events passing every filter.
func (l *Log) Report(filters ...Filter) Report {
	return Aggregate(l.Events(), filters...)
}
