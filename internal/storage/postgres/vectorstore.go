package postgres

import (
	"context"
	"fmt"

	"github.com/pgvector/pgvector-go"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// vectorStore implements driven.VectorSlotStore over the per-slot
// fixed-width tables.
type vectorStore struct {
	store *Store
}

var _ driven.VectorSlotStore = (*vectorStore)(nil)

// UpsertEmbeddings writes embeddings into their slots. Wrong-width
// vectors are rejected before touching the database; the vector(N)
// column type is the backstop.
func (s *vectorStore) UpsertEmbeddings(ctx context.Context, embeddings []domain.Embedding) error {
	if len(embeddings) == 0 {
		return nil
	}

	tx, err := s.store.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning upsert: %w", err)
	}
	defer tx.Rollback()

	for _, emb := range embeddings {
		if err := emb.Validate(); err != nil {
			return err
		}
		table, ok := s.store.slots[emb.Slot()]
		if !ok {
			return fmt.Errorf("%w: no slot provisioned for %s",
				domain.ErrInvalidProviderConfig, emb.Slot())
		}

		query := fmt.Sprintf(`
			INSERT INTO %s (chunk_id, embedding) VALUES ($1, $2)
			ON CONFLICT (chunk_id) DO UPDATE SET embedding = EXCLUDED.embedding
		`, table)
		if _, err := tx.ExecContext(ctx, query, emb.ChunkID, pgvector.NewVector(emb.Vector)); err != nil {
			return fmt.Errorf("upserting embedding for chunk %s: %w", emb.ChunkID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing upsert: %w", err)
	}
	return nil
}

// SearchNearest finds the k nearest neighbours of the query vector
// within one slot, restricted to active chunks in scope. Cosine
// distance from pgvector is mapped onto a 0-1 similarity.
func (s *vectorStore) SearchNearest(ctx context.Context, slot domain.SlotKey, query []float32, scope driven.SearchScope, k int) ([]driven.VectorHit, error) {
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
	table, ok := s.store.slots[slot]
	if !ok {
		return nil, fmt.Errorf("%w: no slot provisioned for %s",
			domain.ErrInvalidProviderConfig, slot)
	}

	args := []any{pgvector.NewVector(query)}
	where, args, argIndex := scopeClauses(scope, args, 2)

	sqlQuery := fmt.Sprintf(`
		SELECT c.id, 1 - (e.embedding <=> $1) / 2 AS similarity%s
		JOIN %s e ON e.chunk_id = c.id%s%s
		ORDER BY e.embedding <=> $1
		LIMIT $%d`, activeChunkFrom, table, activeChunkWhere, where, argIndex)
	args = append(args, k)

	rows, err := s.store.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("searching slot %s: %w", slot, err)
	}
	defer rows.Close()

	var hits []driven.VectorHit
	for rows.Next() {
		var hit driven.VectorHit
		if err := rows.Scan(&hit.ChunkID, &hit.Similarity); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
