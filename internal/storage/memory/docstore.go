// Package memory provides in-memory implementations of the storage
// ports. Used for tests and the local single-process mode; the
// postgres package is the production implementation.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure DocumentStore implements the interface.
var _ driven.DocumentStore = (*DocumentStore)(nil)

// DocumentStore is an in-memory implementation of driven.DocumentStore.
type DocumentStore struct {
	mu        sync.RWMutex
	documents map[string]domain.Document
	sessions  map[string][]domain.ExtractionSession
	chunks    map[string][]domain.Chunk
	now       func() time.Time
}

// NewDocumentStore creates a new in-memory document store.
func NewDocumentStore() *DocumentStore {
	return &DocumentStore{
		documents: make(map[string]domain.Document),
		sessions:  make(map[string][]domain.ExtractionSession),
		chunks:    make(map[string][]domain.Chunk),
		now:       time.Now,
	}
}

// CreateDocument registers a document in pending state.
func (s *DocumentStore) CreateDocument(_ context.Context, doc *domain.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.documents[doc.ID]; ok {
		return fmt.Errorf("document %s: %w", doc.ID, domain.ErrAlreadyExists)
	}

	stored := *doc
	stored.Status = domain.StatusPending
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = s.now()
	}
	stored.UpdatedAt = stored.CreatedAt
	s.documents[doc.ID] = stored
	*doc = stored
	return nil
}

// GetDocument retrieves a document by ID, soft-deleted included.
func (s *DocumentStore) GetDocument(_ context.Context, id string) (*domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[id]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	return &doc, nil
}

// ListDocuments returns non-deleted documents in a container.
func (s *DocumentStore) ListDocuments(_ context.Context, containerID string) ([]domain.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []domain.Document
	for id := range s.documents {
		doc := s.documents[id]
		if doc.ContainerID == containerID && !doc.Deleted {
			result = append(result, doc)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

// SoftDeleteDocument marks a document deleted without removing rows.
func (s *DocumentStore) SoftDeleteDocument(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[id]
	if !ok {
		return fmt.Errorf("document %s: %w", id, domain.ErrNotFound)
	}
	doc.Deleted = true
	doc.UpdatedAt = s.now()
	s.documents[id] = doc
	return nil
}

// ClaimProcessing atomically moves the document from pending to
// processing and opens a session for the next generation.
func (s *DocumentStore) ClaimProcessing(_ context.Context, documentID string) (*domain.ExtractionSession, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return nil, 0, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if doc.Deleted {
		return nil, 0, fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentDeleted)
	}
	if doc.Status == domain.StatusProcessing {
		return nil, 0, fmt.Errorf("document %s: %w", documentID, domain.ErrIngestInProgress)
	}
	if !doc.Status.CanTransitionTo(domain.StatusProcessing) {
		return nil, 0, fmt.Errorf("document %s in state %q: %w", documentID, doc.Status, domain.ErrInvalidInput)
	}

	now := s.now()
	doc.Status = domain.StatusProcessing
	doc.StartedAt = &now
	doc.CompletedAt = nil
	doc.UpdatedAt = now
	s.documents[documentID] = doc

	session := domain.ExtractionSession{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Active:     true,
		StartedAt:  now,
	}
	s.sessions[documentID] = append(s.sessions[documentID], session)

	return &session, doc.Generation + 1, nil
}

// CompleteProcessing records the session, promotes the generation and
// supersedes earlier chunks.
func (s *DocumentStore) CompleteProcessing(_ context.Context, documentID string, session *domain.ExtractionSession, generation int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if doc.Status != domain.StatusProcessing {
		return fmt.Errorf("document %s in state %q: %w", documentID, doc.Status, domain.ErrInvalidInput)
	}

	now := s.now()
	session.Active = false
	session.Status = domain.SessionSuccess
	session.CompletedAt = &now
	s.storeSession(documentID, session)

	doc.Status = domain.StatusCompleted
	doc.Generation = generation
	doc.Error = ""
	doc.CompletedAt = &now
	doc.UpdatedAt = now
	s.documents[documentID] = doc

	chunks := s.chunks[documentID]
	for i := range chunks {
		if chunks[i].Generation < generation {
			chunks[i].Superseded = true
		}
	}
	return nil
}

// FailProcessing records the failed session and stamps the document
// failed. Chunks written for the unpromoted generation stay inactive.
func (s *DocumentStore) FailProcessing(_ context.Context, documentID string, session *domain.ExtractionSession, cause string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if doc.Status != domain.StatusProcessing {
		return fmt.Errorf("document %s in state %q: %w", documentID, doc.Status, domain.ErrInvalidInput)
	}

	now := s.now()
	session.Active = false
	session.Status = domain.SessionFailed
	session.CompletedAt = &now
	s.storeSession(documentID, session)

	doc.Status = domain.StatusFailed
	doc.Error = cause
	doc.CompletedAt = &now
	doc.UpdatedAt = now
	s.documents[documentID] = doc
	return nil
}

// Resubmit moves a failed document back to pending for a fresh
// generation.
func (s *DocumentStore) Resubmit(_ context.Context, documentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}
	if doc.Deleted {
		return fmt.Errorf("document %s: %w", documentID, domain.ErrDocumentDeleted)
	}
	if !doc.Status.CanTransitionTo(domain.StatusPending) {
		return fmt.Errorf("document %s in state %q: %w", documentID, doc.Status, domain.ErrInvalidInput)
	}

	doc.Status = domain.StatusPending
	doc.Error = ""
	doc.UpdatedAt = s.now()
	s.documents[documentID] = doc
	return nil
}

// GetActiveSession returns the in-flight session for a document.
func (s *DocumentStore) GetActiveSession(_ context.Context, documentID string) (*domain.ExtractionSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, session := range s.sessions[documentID] {
		if session.Active {
			found := session
			return &found, nil
		}
	}
	return nil, fmt.Errorf("no active session for document %s: %w", documentID, domain.ErrNotFound)
}

// SaveChunks stores chunks for an in-flight generation.
func (s *DocumentStore) SaveChunks(_ context.Context, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, chunk := range chunks {
		s.chunks[chunk.DocumentID] = append(s.chunks[chunk.DocumentID], chunk)
	}
	return nil
}

// GetChunk retrieves a specific chunk by ID.
func (s *DocumentStore) GetChunk(_ context.Context, id string) (*domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, chunks := range s.chunks {
		for _, chunk := range chunks {
			if chunk.ID == id {
				found := chunk
				return &found, nil
			}
		}
	}
	return nil, fmt.Errorf("chunk %s: %w", id, domain.ErrNotFound)
}

// GetActiveChunks returns the chunks of the document's promoted
// generation in ordinal order.
func (s *DocumentStore) GetActiveChunks(_ context.Context, documentID string) ([]domain.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.documents[documentID]
	if !ok {
		return nil, fmt.Errorf("document %s: %w", documentID, domain.ErrNotFound)
	}

	var active []domain.Chunk
	for _, chunk := range s.chunks[documentID] {
		if chunk.Generation == doc.Generation && !chunk.Superseded {
			active = append(active, chunk)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].OrdinalIndex < active[j].OrdinalIndex
	})
	return active, nil
}

// activeChunk resolves a chunk only if it belongs to the promoted
// generation of a live, completed document. Callers hold s.mu.
func (s *DocumentStore) activeChunk(chunkID string) (domain.Chunk, domain.Document, bool) {
	for docID, chunks := range s.chunks {
		for _, chunk := range chunks {
			if chunk.ID != chunkID {
				continue
			}
			doc, ok := s.documents[docID]
			if !ok || doc.Deleted || doc.Status != domain.StatusCompleted {
				return domain.Chunk{}, domain.Document{}, false
			}
			if chunk.Generation != doc.Generation || chunk.Superseded {
				return domain.Chunk{}, domain.Document{}, false
			}
			return chunk, doc, true
		}
	}
	return domain.Chunk{}, domain.Document{}, false
}

// forEachActiveChunk walks every active chunk in scope. Callers hold
// s.mu.
func (s *DocumentStore) forEachActiveChunk(scope driven.SearchScope, fn func(domain.Chunk, domain.Document)) {
	for docID, chunks := range s.chunks {
		doc, ok := s.documents[docID]
		if !ok || doc.Deleted || doc.Status != domain.StatusCompleted {
			continue
		}
		if !scopeHasContainer(scope, doc.ContainerID) {
			continue
		}
		for _, chunk := range chunks {
			if chunk.Generation != doc.Generation || chunk.Superseded {
				continue
			}
			if scope.Modality != nil && chunk.Modality != *scope.Modality {
				continue
			}
			fn(chunk, doc)
		}
	}
}

func scopeHasContainer(scope driven.SearchScope, containerID string) bool {
	if len(scope.ContainerIDs) == 0 {
		return true
	}
	for _, id := range scope.ContainerIDs {
		if id == containerID {
			return true
		}
	}
	return false
}

// storeSession replaces the stored copy of a session. Callers hold
// s.mu.
func (s *DocumentStore) storeSession(documentID string, session *domain.ExtractionSession) {
	list := s.sessions[documentID]
	for i := range list {
		if list[i].ID == session.ID {
			list[i] = *session
			return
		}
	}
	s.sessions[documentID] = append(list, *session)
}
