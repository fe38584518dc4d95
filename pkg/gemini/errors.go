package gemini

import (
	"errors"
	"fmt"
)

// FallbackReply is returned by Generate when the reply carries no text.
const FallbackReply = "No response generated."

var (
	// ErrEmptyRequest indicates neither a prompt nor file content was supplied.
	ErrEmptyRequest = errors.New("prompt or file content required")

	// ErrMissingCredential indicates no API key is configured.
	ErrMissingCredential = errors.New("missing upstream API key")
)

// UpstreamError is returned when the API answers with a non-2xx status.
// Body holds the raw response for logging; it is never shown to callers.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("gemini: upstream returned http %d", e.StatusCode)
}
