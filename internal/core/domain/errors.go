package domain

import (
	"errors"
	"fmt"
	"strings"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates an entity already exists.
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates malformed or invalid input.
	ErrInvalidInput = errors.New("invalid input")

	// ErrIngestInProgress indicates an ingestion session is already
	// active for the document. Duplicate task deliveries coalesce
	// onto the in-flight session instead of starting a second one.
	ErrIngestInProgress = errors.New("ingestion already in progress")

	// ErrDocumentDeleted indicates the document was soft-deleted.
	ErrDocumentDeleted = errors.New("document deleted")

	// ErrTransient marks a provider failure worth retrying with
	// backoff (timeouts, rate limits). Wrap with
	// fmt.Errorf("%w: %w", domain.ErrTransient, err).
	ErrTransient = errors.New("transient provider error")

	// ErrUnsupportedFormat indicates a provider cannot process the
	// blob's format. Non-retryable; the chain falls through to the
	// next provider immediately.
	ErrUnsupportedFormat = errors.New("unsupported document format")

	// ErrRerankUnavailable indicates the rerank call failed. It is
	// recovered internally by falling back to the pre-rerank
	// similarity order and is never surfaced to the caller.
	ErrRerankUnavailable = errors.New("rerank unavailable")

	// ErrInvalidProviderConfig indicates a misconfigured provider.
	// Fatal at process startup, never a per-request error.
	ErrInvalidProviderConfig = errors.New("invalid provider configuration")

	// ErrCanceled indicates an ingestion task was canceled by
	// operator action. The document ends up failed, never stuck in
	// processing.
	ErrCanceled = errors.New("ingestion canceled")
)

// IsTransient reports whether err should be retried with backoff.
// Context cancellation is never transient.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}

// DimensionMismatchError reports a vector that does not fit its slot.
// It is a fatal configuration error: the provider is announcing a
// different width than the slot was provisioned for.
type DimensionMismatchError struct {
	Provider string
	Want     int
	Got      int
}

// Error implements the error interface.
func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("embedding dimension mismatch for provider %q: slot expects %d, got %d",
		e.Provider, e.Want, e.Got)
}

// ExtractionError is the terminal failure after every provider in the
// chain has been exhausted. It carries the full attempt history.
type ExtractionError struct {
	Attempts []AttemptRecord
}

// Error implements the error interface.
func (e *ExtractionError) Error() string {
	if len(e.Attempts) == 0 {
		return "extraction failed: no providers configured"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %s", a.Provider, a.Error))
	}
	return "extraction failed after all providers: " + strings.Join(parts, "; ")
}
