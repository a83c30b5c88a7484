package memory

import (
	"context"
	"sync"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure ConversationStore implements the interface.
var _ driven.ConversationStore = (*ConversationStore)(nil)

// ConversationStore is an in-memory implementation of
// driven.ConversationStore.
type ConversationStore struct {
	mu       sync.RWMutex
	sessions map[string][]domain.ConversationTurn
}

// NewConversationStore creates an in-memory conversation store.
func NewConversationStore() *ConversationStore {
	return &ConversationStore{
		sessions: make(map[string][]domain.ConversationTurn),
	}
}

// AppendTurn durably persists one turn.
func (s *ConversationStore) AppendTurn(_ context.Context, turn *domain.ConversationTurn) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[turn.SessionID] = append(s.sessions[turn.SessionID], *turn)
	return nil
}

// GetSession returns all turns of a session in append order. An
// unknown session yields an empty slice.
func (s *ConversationStore) GetSession(_ context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	turns := s.sessions[sessionID]
	out := make([]domain.ConversationTurn, len(turns))
	copy(out, turns)
	return out, nil
}
