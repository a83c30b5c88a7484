package driving

import (
	"context"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

// IngestionService drives the document ingestion pipeline.
type IngestionService interface {
	// Submit registers the document if needed and enqueues an
	// ingestion task. Safe to call repeatedly for the same document.
	Submit(ctx context.Context, task domain.IngestionTask) error

	// Resubmit moves a failed document back to pending and enqueues
	// a fresh ingestion task, creating a new chunk generation.
	Resubmit(ctx context.Context, documentID string) error

	// Status answers the status query for a document, reflecting the
	// latest ingestion attempt.
	Status(ctx context.Context, documentID string) (*domain.StatusReport, error)
}
