package driven

import (
	"context"
	"time"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

// ConversationStore is the durable system of record for conversation
// turns. A turn is saved only when a write here succeeds; the cache is
// a best-effort projection on top.
type ConversationStore interface {
	// AppendTurn durably persists one turn.
	AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error

	// GetSession returns all turns of a session in append order.
	// An unknown session yields an empty slice, not an error.
	GetSession(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)
}

// TurnCache is the TTL-bound ephemeral projection of session turns.
// Entries may be stale or absent at any time; losing one is a latency
// cost, never a correctness problem.
type TurnCache interface {
	// GetSession returns the cached turns and true on a hit.
	GetSession(ctx context.Context, sessionID string) ([]domain.ConversationTurn, bool, error)

	// SetSession replaces the cached projection with the given TTL.
	SetSession(ctx context.Context, sessionID string, turns []domain.ConversationTurn, ttl time.Duration) error

	// Invalidate drops the cached projection.
	Invalidate(ctx context.Context, sessionID string) error

	// Close releases resources.
	Close() error
}
