package embedder

import (
	"errors"
	"fmt"
	"net/http"

	"google.golang.org/genai"
)

// FailureKind categorizes why one text could not be embedded. The
// indexer uses it to decide what to do with the failed chunk: rate
// limits and upstream errors are retryable later, invalid input is not.
type FailureKind string

const (
	FailureRateLimited  FailureKind = "rate_limited"
	FailureInvalidInput FailureKind = "invalid_input"
	FailureUpstream     FailureKind = "upstream_error"
)

// Failure is one text that could not be embedded.
type Failure struct {
	Index int
	Kind  FailureKind
	Err   error
}

func (f Failure) Error() string {
	return fmt.Sprintf("embedding item %d (%s): %v", f.Index, f.Kind, f.Err)
}

func (f Failure) Unwrap() error {
	return f.Err
}

// BatchResult holds the outcome of an EmbedBatch call. Vectors is
// index-aligned with the input; failed positions are nil and listed
// in Failures.
type BatchResult struct {
	Vectors  [][]float32
	Failures []Failure
}

// FailedCount returns the number of texts that could not be embedded.
func (r BatchResult) FailedCount() int {
	return len(r.Failures)
}

// classify maps an upstream error to a failure kind via the genai API
// error status code.
func classify(err error) FailureKind {
	if errors.Is(err, ErrEmptyInput) {
		return FailureInvalidInput
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case http.StatusTooManyRequests:
			return FailureRateLimited
		case http.StatusBadRequest, http.StatusUnprocessableEntity:
			return FailureInvalidInput
		}
	}
	return FailureUpstream
}
