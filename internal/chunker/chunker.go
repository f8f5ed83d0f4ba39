// Package chunker splits extracted document text into overlapping,
// fixed-size chunks suitable for embedding.
//
// Splitting is pure and deterministic: the same text and window
// configuration always produce byte-identical chunk boundaries, so
// re-indexing a document is reproducible. Offsets are rune offsets into
// the input text; the half-open ranges [StartOffset, EndOffset) of
// consecutive chunks overlap by the configured window and together cover
// the whole input with no gaps.
package chunker

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidWindow indicates targetSize/overlap cannot form a valid
	// sliding window. This is a configuration error: it is checked once
	// at startup, never per document.
	ErrInvalidWindow = errors.New("invalid chunk window")
)

// Chunk is a contiguous substring of a document's extracted text.
type Chunk struct {
	// Index is the 0-based, contiguous position of the chunk within its
	// document.
	Index int

	// Text is the chunk content.
	Text string

	// StartOffset and EndOffset delimit the chunk within the source text
	// as a half-open rune range [StartOffset, EndOffset).
	StartOffset int
	EndOffset   int

	// TokenCount estimates the chunk's token count as ceil(len/4).
	// This is a stable, model-independent approximation, not a real
	// tokenizer; it exists for reporting and budget math only.
	TokenCount int
}

// Split cuts text into chunks of at most targetSize runes, each starting
// overlap runes before the previous chunk's end. The final chunk absorbs
// any remainder and may be shorter than targetSize.
//
// Empty text yields an empty slice, not an error. An invalid window
// (targetSize <= 0, overlap < 0, or overlap >= targetSize) returns
// ErrInvalidWindow.
func Split(text string, targetSize, overlap int) ([]Chunk, error) {
	if targetSize <= 0 {
		return nil, fmt.Errorf("%w: target size must be positive, got %d", ErrInvalidWindow, targetSize)
	}
	if overlap < 0 || overlap >= targetSize {
		return nil, fmt.Errorf("%w: overlap must satisfy 0 <= overlap < target size, got overlap=%d size=%d",
			ErrInvalidWindow, overlap, targetSize)
	}

	runes := []rune(text)
	n := len(runes)
	if n == 0 {
		return []Chunk{}, nil
	}

	step := targetSize - overlap
	chunks := make([]Chunk, 0, (n+step-1)/step)

	for start := 0; start < n; start += step {
		end := start + targetSize
		if end > n {
			end = n
		}

		body := string(runes[start:end])
		chunks = append(chunks, Chunk{
			Index:       len(chunks),
			Text:        body,
			StartOffset: start,
			EndOffset:   end,
			TokenCount:  estimateTokens(end - start),
		})

		if end == n {
			break
		}
	}

	return chunks, nil
}

// estimateTokens approximates the token count of a chunk of length runes.
// Four characters per token is the conventional rule of thumb for
// latin-script prose.
func estimateTokens(length int) int {
	return (length + 3) / 4
}
