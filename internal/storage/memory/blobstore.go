package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure BlobStore implements the interface.
var _ driven.BlobStore = (*BlobStore)(nil)

// BlobStore is an in-memory implementation of driven.BlobStore.
type BlobStore struct {
	mu    sync.RWMutex
	blobs map[string]driven.Blob
}

// NewBlobStore creates an in-memory blob store.
func NewBlobStore() *BlobStore {
	return &BlobStore{blobs: make(map[string]driven.Blob)}
}

// Put stores a blob under its reference.
func (s *BlobStore) Put(ref string, blob driven.Blob) {
	s.mu.Lock()
	defer s.mu.Unlock()
	blob.Ref = ref
	s.blobs[ref] = blob
}

// Fetch retrieves the blob for the given reference.
func (s *BlobStore) Fetch(_ context.Context, ref string) (driven.Blob, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	blob, ok := s.blobs[ref]
	if !ok {
		return driven.Blob{}, fmt.Errorf("blob %s: %w", ref, domain.ErrNotFound)
	}
	return blob, nil
}
