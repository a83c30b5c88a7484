package driven

import (
	"context"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

// DocumentStore persists documents, extraction sessions and chunks in
// the durable store. Status transitions for a single document are
// serialised through ClaimProcessing, which is the only way to open a
// processing session.
type DocumentStore interface {
	// CreateDocument registers a document in pending state.
	CreateDocument(ctx context.Context, doc *domain.Document) error

	// GetDocument retrieves a document by ID. Soft-deleted documents
	// are returned with Deleted set.
	GetDocument(ctx context.Context, id string) (*domain.Document, error)

	// ListDocuments returns non-deleted documents in a container.
	ListDocuments(ctx context.Context, containerID string) ([]domain.Document, error)

	// SoftDeleteDocument marks a document deleted without removing
	// rows.
	SoftDeleteDocument(ctx context.Context, id string) error

	// ClaimProcessing atomically transitions the document from
	// pending to processing and opens an extraction session for the
	// next chunk generation. It returns domain.ErrIngestInProgress
	// when a session is already active, so duplicate at-least-once
	// deliveries coalesce instead of racing.
	ClaimProcessing(ctx context.Context, documentID string) (*domain.ExtractionSession, int, error)

	// CompleteProcessing records the successful session, promotes
	// the generation to active, supersedes chunks of earlier
	// generations and stamps the document completed.
	CompleteProcessing(ctx context.Context, documentID string, session *domain.ExtractionSession, generation int) error

	// FailProcessing records the failed session and stamps the
	// document failed with the given cause. Chunks written for the
	// unpromoted generation stay unqueryable as active.
	FailProcessing(ctx context.Context, documentID string, session *domain.ExtractionSession, cause string) error

	// Resubmit moves a failed document back to pending for a fresh
	// generation.
	Resubmit(ctx context.Context, documentID string) error

	// GetActiveSession returns the in-flight session for a document,
	// or domain.ErrNotFound when none is active.
	GetActiveSession(ctx context.Context, documentID string) (*domain.ExtractionSession, error)

	// SaveChunks stores chunks for an in-flight generation.
	SaveChunks(ctx context.Context, chunks []domain.Chunk) error

	// GetChunk retrieves a single chunk by ID.
	GetChunk(ctx context.Context, id string) (*domain.Chunk, error)

	// GetActiveChunks returns the chunks of the document's promoted
	// generation in ordinal order.
	GetActiveChunks(ctx context.Context, documentID string) ([]domain.Chunk, error)
}
