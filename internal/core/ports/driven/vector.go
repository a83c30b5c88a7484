package driven

import (
	"context"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

// SearchScope restricts a sub-search to containers and optionally to
// one modality.
type SearchScope struct {
	// ContainerIDs limits results to these containers.
	ContainerIDs []string

	// Modality limits results to one modality when set.
	Modality *domain.Modality
}

// VectorHit is a similarity search result.
type VectorHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Similarity is the cosine similarity score (0-1).
	Similarity float64
}

// VectorSlotStore persists embeddings into fixed-width storage slots
// keyed by (provider, dimension) and serves nearest-neighbour search
// over one slot. Slot writes are append-mostly and safe for concurrent
// writers across distinct chunks.
type VectorSlotStore interface {
	// UpsertEmbeddings writes embeddings into their slots. Each
	// embedding must satisfy the slot-integrity invariant; a vector
	// of the wrong width for a configured slot is rejected, never
	// coerced.
	UpsertEmbeddings(ctx context.Context, embeddings []domain.Embedding) error

	// SearchNearest finds the k nearest neighbours of the query
	// vector within one slot, restricted to active chunks in scope.
	SearchNearest(ctx context.Context, slot domain.SlotKey, query []float32, scope SearchScope, k int) ([]VectorHit, error)
}
