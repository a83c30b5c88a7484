package domain

import "time"

// Role is the author of a conversation turn.
type Role string

// Turn roles.
const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// TurnEvidence records one retrieval result a turn was grounded on.
type TurnEvidence struct {
	// ChunkID is the referenced chunk.
	ChunkID string

	// Score is the final relevance score.
	Score float64

	// Signal is the strongest signal that surfaced the chunk.
	Signal Signal
}

// TurnRetrieval is the retrieval provenance attached to a turn.
type TurnRetrieval struct {
	// Evidence holds per-result scores and signal provenance.
	Evidence []TurnEvidence

	// SelectedDocumentIDs is the document selection active for the
	// session. Set on the first turn and carried forward so later
	// turns reuse it without re-deriving.
	SelectedDocumentIDs []string

	// RerankFallback is true when the reranker was unavailable for
	// this turn.
	RerankFallback bool
}

// ConversationTurn is one persisted chat turn. The durable record is
// the source of truth; a cache entry is a TTL-bound projection that
// must be treated as possibly stale or absent.
type ConversationTurn struct {
	// ID is the unique turn identifier.
	ID string

	// SessionID groups turns into a conversation.
	SessionID string

	// Role is the turn author.
	Role Role

	// Content is the turn text.
	Content string

	// ReferencedChunkIDs lists chunks cited by the turn.
	ReferencedChunkIDs []string

	// Retrieval is the retrieval provenance, nil for turns that did
	// not run a search.
	Retrieval *TurnRetrieval

	// CreatedAt is when the turn was appended.
	CreatedAt time.Time
}
