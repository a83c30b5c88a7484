package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/core/ports/driving"
	"github.com/quarrydocs/quarry/internal/logger"
)

// DefaultTurnTTL bounds how long a cached session projection lives.
const DefaultTurnTTL = 30 * time.Minute

var _ driving.ConversationService = (*Conversations)(nil)

// ConversationsOption configures the conversation service.
type ConversationsOption func(*Conversations)

// WithTurnTTL overrides the cache TTL for session projections.
func WithTurnTTL(ttl time.Duration) ConversationsOption {
	return func(c *Conversations) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// Conversations persists chat turns. The durable store is the system
// of record; the cache is a best-effort projection whose failures are
// logged and absorbed, never surfaced to the caller.
type Conversations struct {
	store driven.ConversationStore
	cache driven.TurnCache
	ttl   time.Duration

	// now is swappable for tests.
	now func() time.Time
}

// NewConversations creates a conversation service. cache may be nil
// for a pure durable setup.
func NewConversations(store driven.ConversationStore, cache driven.TurnCache, opts ...ConversationsOption) *Conversations {
	c := &Conversations{
		store: store,
		cache: cache,
		ttl:   DefaultTurnTTL,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AppendTurn durably saves the turn and refreshes the cached session
// projection. A nil return means the turn is durable regardless of
// what the cache did. The document selection recorded on the
// session's first turn is carried forward onto turns that arrive
// without one.
func (c *Conversations) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error {
	if turn == nil || turn.SessionID == "" {
		return fmt.Errorf("%w: session ID is required", domain.ErrInvalidInput)
	}
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = c.now()
	}

	history, err := c.store.GetSession(ctx, turn.SessionID)
	if err != nil {
		return fmt.Errorf("load session %s: %w", turn.SessionID, err)
	}
	carrySelection(turn, history)

	if err := c.store.AppendTurn(ctx, turn); err != nil {
		return fmt.Errorf("append turn: %w", err)
	}

	// Best-effort projection refresh. A failed cache write only
	// costs the next read a durable round trip.
	if c.cache != nil {
		turns := append(history, *turn)
		if err := c.cache.SetSession(ctx, turn.SessionID, turns, c.ttl); err != nil {
			logger.Warn("Refreshing cached session %s: %v", turn.SessionID, err)
		}
	}
	return nil
}

// LoadSession returns the turns of a session in append order. A warm
// cache answers without touching the durable store; a miss or a cache
// error reads the durable record and repopulates the projection.
// AppendTurn rewrites the projection on every durable write and the
// TTL bounds its age, so a hit is at most one expiry stale.
func (c *Conversations) LoadSession(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("%w: session ID is required", domain.ErrInvalidInput)
	}

	if c.cache != nil {
		cached, hit, err := c.cache.GetSession(ctx, sessionID)
		if err != nil {
			logger.Warn("Reading cached session %s: %v", sessionID, err)
		} else if hit {
			return cached, nil
		}
	}

	turns, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	if c.cache != nil && len(turns) > 0 {
		if err := c.cache.SetSession(ctx, sessionID, turns, c.ttl); err != nil {
			logger.Warn("Repopulating cached session %s: %v", sessionID, err)
		}
	}
	return turns, nil
}

// SelectedDocuments returns the document selection active for the
// session, taken from the earliest turn that recorded one.
func (c *Conversations) SelectedDocuments(ctx context.Context, sessionID string) ([]string, error) {
	turns, err := c.LoadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return selectionFrom(turns), nil
}

// carrySelection copies the session's document selection onto a turn
// that arrived without one.
func carrySelection(turn *domain.ConversationTurn, history []domain.ConversationTurn) {
	if turn.Retrieval != nil && len(turn.Retrieval.SelectedDocumentIDs) > 0 {
		return
	}
	selection := selectionFrom(history)
	if len(selection) == 0 {
		return
	}
	if turn.Retrieval == nil {
		turn.Retrieval = &domain.TurnRetrieval{}
	}
	turn.Retrieval.SelectedDocumentIDs = selection
}

// selectionFrom finds the earliest recorded document selection.
func selectionFrom(turns []domain.ConversationTurn) []string {
	for _, t := range turns {
		if t.Retrieval != nil && len(t.Retrieval.SelectedDocumentIDs) > 0 {
			return t.Retrieval.SelectedDocumentIDs
		}
	}
	return nil
}
