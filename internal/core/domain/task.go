package domain

// IngestionTask is the task-queue message that triggers ingestion of a
// document. Delivery is at-least-once; the orchestrator must treat
// duplicates as idempotent.
type IngestionTask struct {
	// DocumentID is the document to ingest.
	DocumentID string

	// BlobRef is the opaque blob reference to extract from.
	BlobRef string

	// ContainerID scopes the document.
	ContainerID string

	// RequestedBy identifies the requesting principal, for audit.
	RequestedBy string
}
