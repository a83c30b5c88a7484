package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// textSearcher implements driven.TextSearcher with pg_trgm for the
// lexical signal and language-configured tsvector for full text.
type textSearcher struct {
	store *Store
}

var _ driven.TextSearcher = (*textSearcher)(nil)

// SearchLexical performs trigram similarity search over active chunks.
func (s *textSearcher) SearchLexical(ctx context.Context, query string, scope driven.SearchScope, limit int) ([]driven.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %w", domain.ErrInvalidInput)
	}

	args := []any{query}
	where, args, argIndex := scopeClauses(scope, args, 2)

	sqlQuery := fmt.Sprintf(`
		SELECT c.id, similarity(c.content, $1) AS score%s%s
		  AND similarity(c.content, $1) > 0%s
		ORDER BY score DESC, c.id
		LIMIT $%d`, activeChunkFrom, activeChunkWhere, where, argIndex)
	args = append(args, limit)

	return s.queryHits(ctx, sqlQuery, args)
}

// SearchFullText performs language-aware full-text search using the
// given text-search configuration.
func (s *textSearcher) SearchFullText(ctx context.Context, query, config string, scope driven.SearchScope, limit int) ([]driven.SearchHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be positive: %w", domain.ErrInvalidInput)
	}
	// The config is interpolated into to_tsvector, so it must come
	// from the fixed allowlist, never from user input.
	if !fullTextConfigs[config] {
		return nil, fmt.Errorf("unknown text search config %q: %w", config, domain.ErrInvalidInput)
	}

	args := []any{query}
	where, args, argIndex := scopeClauses(scope, args, 2)

	sqlQuery := fmt.Sprintf(`
		SELECT c.id,
		       ts_rank(to_tsvector('%[1]s', c.content), plainto_tsquery('%[1]s', $1)) AS score%[2]s%[3]s
		  AND to_tsvector('%[1]s', c.content) @@ plainto_tsquery('%[1]s', $1)%[4]s
		ORDER BY score DESC, c.id
		LIMIT $%[5]d`, config, activeChunkFrom, activeChunkWhere, where, argIndex)
	args = append(args, limit)

	return s.queryHits(ctx, sqlQuery, args)
}

func (s *textSearcher) queryHits(ctx context.Context, sqlQuery string, args []any) ([]driven.SearchHit, error) {
	rows, err := s.store.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("text search: %w", err)
	}
	defer rows.Close()

	var hits []driven.SearchHit
	for rows.Next() {
		var hit driven.SearchHit
		if err := rows.Scan(&hit.ChunkID, &hit.Score); err != nil {
			return nil, fmt.Errorf("scanning hit: %w", err)
		}
		hits = append(hits, hit)
	}
	return hits, rows.Err()
}
