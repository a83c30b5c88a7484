package domain

import "time"

// ProcessingStatus tracks a document through the ingestion state machine.
type ProcessingStatus string

// Valid processing statuses.
const (
	StatusPending    ProcessingStatus = "pending"
	StatusProcessing ProcessingStatus = "processing"
	StatusCompleted  ProcessingStatus = "completed"
	StatusFailed     ProcessingStatus = "failed"
)

// Valid returns true if the status is one of the known values.
func (s ProcessingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	}
	return false
}

// CanTransitionTo reports whether the state machine permits moving from
// s to next. Failed is terminal unless the document is explicitly
// re-submitted, which moves it back to pending.
func (s ProcessingStatus) CanTransitionTo(next ProcessingStatus) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusCompleted || next == StatusFailed
	case StatusFailed:
		return next == StatusPending
	}
	return false
}

// Terminal returns true if no further transition happens without an
// explicit re-submission.
func (s ProcessingStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document represents a registered document in a container.
// Created on upload registration; mutated only by the ingestion
// orchestrator; soft-deleted, never removed physically.
type Document struct {
	// ID is the unique identifier for the document.
	ID string

	// ContainerID scopes the document to a tenant container.
	ContainerID string

	// BlobRef is an opaque reference into the external byte store.
	BlobRef string

	// Status is the current ingestion state.
	Status ProcessingStatus

	// Error holds the terminal ingestion error, if any.
	Error string

	// Generation is the current chunk generation. Re-ingestion
	// increments it and supersedes earlier generations.
	Generation int

	// Deleted marks a soft-deleted document.
	Deleted bool

	// StartedAt is when the latest ingestion attempt began.
	StartedAt *time.Time

	// CompletedAt is when the latest ingestion attempt finished.
	CompletedAt *time.Time

	// CreatedAt is when the document was registered.
	CreatedAt time.Time

	// UpdatedAt is when the document was last modified. Used as the
	// first tie-break when final retrieval scores are equal.
	UpdatedAt time.Time
}

// StatusReport is the answer to a status query, reflecting the latest
// ingestion attempt.
type StatusReport struct {
	DocumentID       string
	Status           ProcessingStatus
	ProgressEstimate float64
	Error            string
	StartedAt        *time.Time
	CompletedAt      *time.Time
}
