package vectorstore

import (
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"
	"time"
)

func TestValidate(t *testing.T) {
	valid := VectorRecord{
		ChunkID:   "doc-1_chunk_0",
		OwnerID:   "owner-1",
		Embedding: make([]float32, 768),
	}

	tests := []struct {
		name    string
		mutate  func(*VectorRecord)
		wantErr error
	}{
		{"valid", func(*VectorRecord) {}, nil},
		{"missing chunk id", func(r *VectorRecord) { r.ChunkID = "" }, ErrMissingField},
		{"missing owner id", func(r *VectorRecord) { r.OwnerID = "" }, ErrMissingField},
		{"missing embedding", func(r *VectorRecord) { r.Embedding = nil }, ErrMissingField},
		{"wrong dimension", func(r *VectorRecord) { r.Embedding = make([]float32, 10) }, ErrDimensionMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := valid
			tt.mutate(&r)
			err := r.Validate(768)
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestPreview(t *testing.T) {
	short := "short text"
	if got := Preview(short); got != short {
		t.Errorf("Preview(short) = %q", got)
	}

	long := strings.Repeat("x", PreviewLength+100)
	if got := Preview(long); len([]rune(got)) != PreviewLength {
		t.Errorf("Preview(long) length = %d, want %d", len([]rune(got)), PreviewLength)
	}

	// Rune-based truncation must not split multibyte characters.
	wide := strings.Repeat("語", PreviewLength+1)
	got := Preview(wide)
	if len([]rune(got)) != PreviewLength {
		t.Errorf("Preview(wide) rune length = %d", len([]rune(got)))
	}
}

func TestMetadataJSONIsPrimitive(t *testing.T) {
	r := VectorRecord{
		ChunkID: "c1",
		Metadata: Metadata{
			StartOffset: 0,
			EndOffset:   400,
			TokenCount:  100,
			SourceName:  "handbook.pdf",
			SourceType:  "pdf",
		},
		CreatedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC),
	}

	s, err := r.MetadataJSON()
	if err != nil {
		t.Fatalf("MetadataJSON() = %v", err)
	}

	var decoded map[string]any
	if err := json.Unmarshal([]byte(s), &decoded); err != nil {
		t.Fatalf("metadata is not valid JSON: %v", err)
	}
	for k, v := range decoded {
		switch v.(type) {
		case string, float64, bool:
		default:
			t.Errorf("metadata field %q has non-primitive type %T", k, v)
		}
	}

	if got := r.CreatedAtISO(); got != "2026-03-14T09:26:53Z" {
		t.Errorf("CreatedAtISO() = %q", got)
	}
}

func TestSubBatches(t *testing.T) {
	records := make([]VectorRecord, 501)
	batches := SubBatches(records, 500)
	if len(batches) != 2 {
		t.Fatalf("got %d batches, want 2", len(batches))
	}
	if len(batches[0]) != 500 || len(batches[1]) != 1 {
		t.Errorf("batch sizes = %d, %d; want 500, 1", len(batches[0]), len(batches[1]))
	}

	if got := SubBatches(nil, 500); len(got) != 0 {
		t.Errorf("SubBatches(nil) = %d batches", len(got))
	}
}

func TestWriteReportMerge(t *testing.T) {
	var r WriteReport
	r.Merge(WriteReport{Written: 500})
	r.Merge(WriteReport{Written: 0, Failed: []FailedWrite{{ChunkID: "c9", Err: errors.New("boom")}}})

	if r.Written != 500 || r.FailedCount() != 1 {
		t.Errorf("report = %d written, %d failed", r.Written, r.FailedCount())
	}
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"zero vector", []float32{0, 0}, []float32{1, 1}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CosineSimilarity(tt.a, tt.b)
			if err != nil {
				t.Fatalf("CosineSimilarity() = %v", err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("similarity = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCosineSimilarityDimensionMismatch(t *testing.T) {
	_, err := CosineSimilarity([]float32{1, 2}, []float32{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("err = %v, want ErrDimensionMismatch", err)
	}
}

func TestSortScored(t *testing.T) {
	results := []ScoredRecord{
		{VectorRecord: VectorRecord{ChunkIndex: 4}, Similarity: 0.5},
		{VectorRecord: VectorRecord{ChunkIndex: 1}, Similarity: 0.9},
		{VectorRecord: VectorRecord{ChunkIndex: 2}, Similarity: 0.5},
		{VectorRecord: VectorRecord{ChunkIndex: 3}, Similarity: 0.6},
	}

	SortScored(results)

	wantOrder := []int{1, 3, 2, 4}
	for i, want := range wantOrder {
		if results[i].ChunkIndex != want {
			t.Errorf("position %d: chunk index %d, want %d", i, results[i].ChunkIndex, want)
		}
	}
}
