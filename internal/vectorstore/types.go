// Package vectorstore defines the vector record schema shared by all
// persistence backends and the Store interface the rest of the pipeline
// depends on.
//
// Two production backends implement Store: rowstore (PostgreSQL +
// pgvector, the primary write target of the indexing path) and
// columnstore (SQLite, analytical, populated only by the migrator).
// Records are immutable once written; re-indexing a document writes new
// records that supersede the old ones by document scope.
package vectorstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const (
	// PreviewLength is the number of runes kept in TextPreview.
	PreviewLength = 500

	// MaxWriteBatchSize is the largest sub-batch a backend submits in one
	// write call. Both backends cap their writes at this size; WriteBatch
	// callers may pass any number of records.
	MaxWriteBatchSize = 500
)

var (
	// ErrMissingField indicates a record lacks a required identifier or
	// its embedding.
	ErrMissingField = errors.New("vector record missing required field")

	// ErrDimensionMismatch indicates an embedding of the wrong length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrInvalidTopK indicates a similarity query with a non-positive
	// result limit. Every backend rejects it the same way so callers
	// never depend on one backend's interpretation of topK = 0.
	ErrInvalidTopK = errors.New("topK must be positive")
)

// Metadata carries the chunk position details persisted alongside each
// record. All fields are JSON primitives: the serialized form must be
// storable by any backend without native timestamp or blob types.
type Metadata struct {
	StartOffset int    `json:"start_offset"`
	EndOffset   int    `json:"end_offset"`
	TokenCount  int    `json:"token_count"`
	SourceName  string `json:"source_name,omitempty"`
	SourceType  string `json:"source_type,omitempty"`
}

// VectorRecord is one embedded chunk as persisted by a Store.
type VectorRecord struct {
	ChunkID     string
	DocumentID  string
	OwnerID     string
	ChunkIndex  int
	Text        string
	TextPreview string
	Embedding   []float32
	Metadata    Metadata
	CreatedAt   time.Time
}

// ScoredRecord is a record returned from a similarity query.
type ScoredRecord struct {
	VectorRecord
	Similarity float64
}

// Preview returns the first PreviewLength runes of text.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLength {
		return text
	}
	return string(runes[:PreviewLength])
}

// Validate checks the record's required fields and embedding length.
// It returns ErrMissingField or ErrDimensionMismatch; both backends and
// the migrator call it before accepting a record.
func (r VectorRecord) Validate(dimension int) error {
	if r.ChunkID == "" {
		return fmt.Errorf("%w: chunk_id", ErrMissingField)
	}
	if r.OwnerID == "" {
		return fmt.Errorf("%w: owner_id (chunk %s)", ErrMissingField, r.ChunkID)
	}
	if len(r.Embedding) == 0 {
		return fmt.Errorf("%w: embedding (chunk %s)", ErrMissingField, r.ChunkID)
	}
	if len(r.Embedding) != dimension {
		return fmt.Errorf("%w: chunk %s has %d dimensions, want %d",
			ErrDimensionMismatch, r.ChunkID, len(r.Embedding), dimension)
	}
	return nil
}

// MetadataJSON serializes the record metadata to a JSON string.
// CreatedAtISO returns the creation time as an ISO-8601 string. Backends
// persist only these normalized forms, never native driver types, so a
// record read from one backend can always be written to the other.
func (r VectorRecord) MetadataJSON() (string, error) {
	data, err := json.Marshal(r.Metadata)
	if err != nil {
		return "", fmt.Errorf("marshal metadata for chunk %s: %w", r.ChunkID, err)
	}
	return string(data), nil
}

// CreatedAtISO returns CreatedAt in RFC 3339 (UTC).
func (r VectorRecord) CreatedAtISO() string {
	return r.CreatedAt.UTC().Format(time.RFC3339)
}
