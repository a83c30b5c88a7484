package domain

import "fmt"

// SlotKey identifies a vector storage slot. Each (provider, dimension)
// pair maps to its own fixed-width storage region; vectors are never
// mixed across slots or stored in a shared variable-length field.
type SlotKey struct {
	// Provider is the embedding provider name.
	Provider string

	// Dimension is the provider's fixed vector width.
	Dimension int
}

// String renders the slot key as "provider/dimension".
func (k SlotKey) String() string {
	return fmt.Sprintf("%s/%d", k.Provider, k.Dimension)
}

// Embedding is a vector representation of one chunk in one slot.
// A chunk may have at most one embedding per provider.
type Embedding struct {
	// ChunkID is the owning chunk.
	ChunkID string

	// Provider is the embedding provider that produced the vector.
	Provider string

	// Dimension is the slot width the vector must match.
	Dimension int

	// Vector is the embedding. Invariant: len(Vector) == Dimension.
	Vector []float32
}

// Slot returns the storage slot this embedding belongs to.
func (e Embedding) Slot() SlotKey {
	return SlotKey{Provider: e.Provider, Dimension: e.Dimension}
}

// Validate checks the slot-integrity invariant. A mismatch indicates
// provider misconfiguration and is fatal, never retried.
func (e Embedding) Validate() error {
	if len(e.Vector) != e.Dimension {
		return &DimensionMismatchError{
			Provider: e.Provider,
			Want:     e.Dimension,
			Got:      len(e.Vector),
		}
	}
	return nil
}
