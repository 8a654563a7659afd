package transcription

import (
	"context"
	"fmt"
)

// Result is the outcome of one transcription backend invocation.
type Result struct {
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"` // in [0,1]
	TimestampMS int64   `json:"timestamp_ms"`
}

// ErrorKind classifies a backend failure.
type ErrorKind string

const (
	// ErrorCredentials means the backend rejected our credentials; the
	// fallback policy substitutes a local result for this kind.
	ErrorCredentials ErrorKind = "credentials"
	// ErrorTransient covers rate limits, timeouts and 5xx responses.
	ErrorTransient ErrorKind = "transient"
	// ErrorOther is any other classified failure.
	ErrorOther ErrorKind = "other"
)

// BackendError wraps a backend failure with its classification.
type BackendError struct {
	Kind ErrorKind
	Err  error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("transcription backend (%s): %v", e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Backend converts captured audio into text. Implementations classify
// failures by returning *BackendError.
type Backend interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (*Result, error)
}
