package driving

import (
	"context"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

// ConversationService persists chat turns with their retrieval
// provenance. The durable store is authoritative: when AppendTurn
// returns nil the turn is durably saved regardless of cache state.
type ConversationService interface {
	// AppendTurn saves one turn durably and refreshes the cache
	// best-effort.
	AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error

	// LoadSession returns the turns of a session, preferring the
	// cache and falling back to the durable store.
	LoadSession(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error)
}
