package memory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure VectorStore implements the interface.
var _ driven.VectorSlotStore = (*VectorStore)(nil)

// VectorStore is an in-memory implementation of driven.VectorSlotStore.
// It shares the document store for active-generation and scope checks.
type VectorStore struct {
	mu    sync.RWMutex
	docs  *DocumentStore
	slots map[domain.SlotKey]map[string][]float32
}

// NewVectorStore creates an in-memory vector slot store.
func NewVectorStore(docs *DocumentStore) *VectorStore {
	return &VectorStore{
		docs:  docs,
		slots: make(map[domain.SlotKey]map[string][]float32),
	}
}

// UpsertEmbeddings writes embeddings into their slots. A vector of the
// wrong width for its slot is rejected, never coerced.
func (s *VectorStore) UpsertEmbeddings(_ context.Context, embeddings []domain.Embedding) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, emb := range embeddings {
		if err := emb.Validate(); err != nil {
			return err
		}
		slot := emb.Slot()
		vectors, ok := s.slots[slot]
		if !ok {
			vectors = make(map[string][]float32)
			s.slots[slot] = vectors
		}
		copied := make([]float32, len(emb.Vector))
		copy(copied, emb.Vector)
		vectors[emb.ChunkID] = copied
	}
	return nil
}

// SearchNearest finds the k nearest neighbours of the query vector
// within one slot, restricted to active chunks in scope.
func (s *VectorStore) SearchNearest(_ context.Context, slot domain.SlotKey, query []float32, scope driven.SearchScope, k int) ([]driven.VectorHit, error) {
	if len(query) != slot.Dimension {
		return nil, &domain.DimensionMismatchError{
			Provider: slot.Provider,
			Want:     slot.Dimension,
			Got:      len(query),
		}
	}
	if k <= 0 {
		return nil, fmt.Errorf("k must be positive: %w", domain.ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	s.docs.mu.RLock()
	defer s.docs.mu.RUnlock()

	vectors := s.slots[slot]
	var hits []driven.VectorHit
	s.docs.forEachActiveChunk(scope, func(chunk domain.Chunk, _ domain.Document) {
		vector, ok := vectors[chunk.ID]
		if !ok {
			return
		}
		hits = append(hits, driven.VectorHit{
			ChunkID:    chunk.ID,
			Similarity: cosineSimilarity(query, vector),
		})
	})

	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Similarity != hits[j].Similarity {
			return hits[i].Similarity > hits[j].Similarity
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

// cosineSimilarity computes cosine similarity between two vectors of
// equal length, mapped to [0, 1].
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	cos := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return (cos + 1) / 2
}
