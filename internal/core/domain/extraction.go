package domain

import "time"

// NormalizedExtraction is the common shape every extraction provider is
// normalised into, regardless of its native response format.
type NormalizedExtraction struct {
	// Provider identifies which provider produced this extraction.
	Provider string

	// Pages holds per-page text in page order.
	Pages []Page

	// Tables holds detected tables.
	Tables []Table

	// Figures holds detected figures.
	Figures []Figure

	// FullText is the concatenated document text.
	FullText string
}

// Page is one page of extracted text.
type Page struct {
	// Number is the 1-based page number.
	Number int

	// Text is the page content.
	Text string
}

// Table is a detected table.
type Table struct {
	// Page is the 1-based page the table appears on.
	Page int

	// Caption is the table caption, if detected.
	Caption string

	// Rows holds cell text row by row.
	Rows [][]string
}

// Figure is a detected figure or image region.
type Figure struct {
	// Page is the 1-based page the figure appears on.
	Page int

	// Caption is the figure caption, if detected.
	Caption string

	// ImageRef is an opaque reference to the cropped image bytes.
	ImageRef string
}

// SessionStatus is the outcome of an extraction session.
type SessionStatus string

// Session outcomes. An in-flight session is marked Active instead.
const (
	SessionSuccess SessionStatus = "success"
	SessionFailed  SessionStatus = "failed"
)

// AttemptRecord is one provider attempt within an extraction session.
type AttemptRecord struct {
	// Provider is the provider that was attempted.
	Provider string

	// Error is the failure message, empty on success.
	Error string

	// Duration is how long the attempt took.
	Duration time.Duration
}

// ExtractionSession records one pass of the provider chain for a
// document. At most one session per document may be active at a time;
// the store enforces this with an atomic claim.
type ExtractionSession struct {
	// ID is the unique session identifier.
	ID string

	// DocumentID is the owning document.
	DocumentID string

	// ProviderUsed is the provider that eventually succeeded, empty
	// if all providers failed.
	ProviderUsed string

	// Status is the session outcome.
	Status SessionStatus

	// Active is true while the session is in flight.
	Active bool

	// Attempts is the full attempt history across providers.
	Attempts []AttemptRecord

	// StartedAt is when the session was claimed.
	StartedAt time.Time

	// CompletedAt is when the session finished.
	CompletedAt *time.Time
}
