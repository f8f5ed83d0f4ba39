package chunker

import "unicode"

// LengthScore rates a chunk's length against the target size on a 0-100
// scale. Chunks at or above the target score 100.
func LengthScore(c Chunk, targetSize int) float64 {
	if targetSize <= 0 {
		return 0
	}
	score := 100 * float64(c.EndOffset-c.StartOffset) / float64(targetSize)
	if score > 100 {
		return 100
	}
	return score
}

// BoundaryClean reports whether the chunk ends on a sentence boundary:
// its last non-whitespace rune is '.', '!' or '?'. Chunks cut mid-sentence
// degrade retrieval quality and lower the document score.
func BoundaryClean(c Chunk) bool {
	runes := []rune(c.Text)
	for i := len(runes) - 1; i >= 0; i-- {
		if unicode.IsSpace(runes[i]) {
			continue
		}
		r := runes[i]
		return r == '.' || r == '!' || r == '?'
	}
	return false
}

// DocumentQuality computes the 0-100 quality score for a chunked document:
// 0.4 * average length score + 0.6 * percentage of boundary-clean chunks.
// An empty chunk list scores 0.
func DocumentQuality(chunks []Chunk, targetSize int) float64 {
	if len(chunks) == 0 {
		return 0
	}

	var lengthTotal float64
	clean := 0
	for _, c := range chunks {
		lengthTotal += LengthScore(c, targetSize)
		if BoundaryClean(c) {
			clean++
		}
	}

	avgLength := lengthTotal / float64(len(chunks))
	boundaryScore := 100 * float64(clean) / float64(len(chunks))

	return 0.4*avgLength + 0.6*boundaryScore
}

// IsGarbage reports whether a chunk's alphanumeric rune ratio falls below
// minAlnumRatio. It catches headers, footers, page furniture and OCR noise.
//
// The check is advisory: indexing callers decide whether flagged chunks are
// dropped or kept, and the threshold is configuration, not a constant.
func IsGarbage(c Chunk, minAlnumRatio float64) bool {
	runes := []rune(c.Text)
	if len(runes) == 0 {
		return true
	}

	alnum := 0
	for _, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			alnum++
		}
	}

	return float64(alnum)/float64(len(runes)) < minAlnumRatio
}
