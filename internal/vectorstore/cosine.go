package vectorstore

import (
	"fmt"
	"math"
)

// CosineSimilarity computes the cosine similarity of two vectors,
// in [-1, 1]. Vectors of different lengths are an error, not a silent 0:
// a dimension mismatch means a corrupt record or misconfigured model.
// A zero-magnitude vector yields 0.
func CosineSimilarity(a, b []float32) (float64, error) {
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		av, bv := float64(a[i]), float64(b[i])
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0, nil
	}
	return dot / denom, nil
}
