package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// conversationStore implements driven.ConversationStore. Turns are
// append-only; the seq column gives a total order per session.
type conversationStore struct {
	store *Store
}

var _ driven.ConversationStore = (*conversationStore)(nil)

// AppendTurn durably persists one turn.
func (s *conversationStore) AppendTurn(ctx context.Context, turn *domain.ConversationTurn) error {
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.store.now().UTC()
	}

	chunkIDs, err := json.Marshal(turn.ReferencedChunkIDs)
	if err != nil {
		return fmt.Errorf("marshaling chunk refs: %w", err)
	}
	var retrieval []byte
	if turn.Retrieval != nil {
		retrieval, err = json.Marshal(turn.Retrieval)
		if err != nil {
			return fmt.Errorf("marshaling retrieval: %w", err)
		}
	}

	_, err = s.store.db.ExecContext(ctx, `
		INSERT INTO conversation_turns (id, session_id, role, content, referenced_chunk_ids, retrieval, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, turn.ID, turn.SessionID, string(turn.Role), turn.Content, chunkIDs, retrieval, turn.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending turn: %w", err)
	}
	return nil
}

// GetSession returns all turns of a session in append order. An
// unknown session yields an empty slice.
func (s *conversationStore) GetSession(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	rows, err := s.store.db.QueryContext(ctx, `
		SELECT id, session_id, role, content, referenced_chunk_ids, retrieval, created_at
		FROM conversation_turns WHERE session_id = $1 ORDER BY seq
	`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("loading session: %w", err)
	}
	defer rows.Close()

	turns := []domain.ConversationTurn{}
	for rows.Next() {
		var turn domain.ConversationTurn
		var role string
		var chunkIDs, retrieval []byte
		if err := rows.Scan(&turn.ID, &turn.SessionID, &role, &turn.Content,
			&chunkIDs, &retrieval, &turn.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning turn: %w", err)
		}
		turn.Role = domain.Role(role)
		if len(chunkIDs) > 0 {
			if err := json.Unmarshal(chunkIDs, &turn.ReferencedChunkIDs); err != nil {
				return nil, fmt.Errorf("unmarshaling chunk refs: %w", err)
			}
		}
		if len(retrieval) > 0 {
			turn.Retrieval = &domain.TurnRetrieval{}
			if err := json.Unmarshal(retrieval, turn.Retrieval); err != nil {
				return nil, fmt.Errorf("unmarshaling retrieval: %w", err)
			}
		}
		turns = append(turns, turn)
	}
	return turns, rows.Err()
}
