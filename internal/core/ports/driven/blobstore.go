package driven

import "context"

// BlobStore fetches raw document bytes by opaque reference. The store
// itself (S3, local disk, ...) is an external collaborator; the core
// only reads.
type BlobStore interface {
	// Fetch retrieves the blob for the given reference.
	Fetch(ctx context.Context, ref string) (Blob, error)
}
