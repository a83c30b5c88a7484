package driven

import "context"

// SearchHit is a text search result.
type SearchHit struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// Score is the normalised relevance score (0-1).
	Score float64
}

// TextSearcher serves the lexical and full-text retrieval signals over
// active chunks. Both searches are scoped and limited like the vector
// search so the three signals fan out symmetrically.
type TextSearcher interface {
	// SearchLexical performs keyword similarity search (trigram
	// matching in the Postgres implementation).
	SearchLexical(ctx context.Context, query string, scope SearchScope, limit int) ([]SearchHit, error)

	// SearchFullText performs language-aware full-text search using
	// the given text-search configuration (e.g. "english",
	// "russian", "simple").
	SearchFullText(ctx context.Context, query, config string, scope SearchScope, limit int) ([]SearchHit, error)
}
