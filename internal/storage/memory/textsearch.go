package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

// Ensure TextSearcher implements the interface.
var _ driven.TextSearcher = (*TextSearcher)(nil)

// TextSearcher is an in-memory implementation of driven.TextSearcher.
// Lexical search approximates trigram similarity; full-text search is
// token overlap. Both are deliberately simple stand-ins for the
// Postgres pg_trgm and tsvector implementations.
type TextSearcher struct {
	docs *DocumentStore
}

// NewTextSearcher creates an in-memory text searcher.
func NewTextSearcher(docs *DocumentStore) *TextSearcher {
	return &TextSearcher{docs: docs}
}

// SearchLexical performs trigram similarity search over active chunks.
func (s *TextSearcher) SearchLexical(_ context.Context, query string, scope driven.SearchScope, limit int) ([]driven.SearchHit, error) {
	queryGrams := trigrams(query)
	if len(queryGrams) == 0 {
		return nil, nil
	}

	s.docs.mu.RLock()
	defer s.docs.mu.RUnlock()

	var hits []driven.SearchHit
	s.docs.forEachActiveChunk(scope, func(chunk domain.Chunk, _ domain.Document) {
		score := trigramSimilarity(queryGrams, trigrams(chunk.Content))
		if score > 0 {
			hits = append(hits, driven.SearchHit{ChunkID: chunk.ID, Score: score})
		}
	})

	return topHits(hits, limit), nil
}

// SearchFullText performs token-overlap search over active chunks. The
// config parameter selects stemming in the Postgres implementation and
// is ignored here.
func (s *TextSearcher) SearchFullText(_ context.Context, query, _ string, scope driven.SearchScope, limit int) ([]driven.SearchHit, error) {
	queryTokens := tokens(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}

	s.docs.mu.RLock()
	defer s.docs.mu.RUnlock()

	var hits []driven.SearchHit
	s.docs.forEachActiveChunk(scope, func(chunk domain.Chunk, _ domain.Document) {
		contentTokens := make(map[string]bool)
		for _, tok := range tokens(chunk.Content) {
			contentTokens[tok] = true
		}
		matched := 0
		for _, tok := range queryTokens {
			if contentTokens[tok] {
				matched++
			}
		}
		if matched > 0 {
			hits = append(hits, driven.SearchHit{
				ChunkID: chunk.ID,
				Score:   float64(matched) / float64(len(queryTokens)),
			})
		}
	})

	return topHits(hits, limit), nil
}

// topHits sorts hits by descending score with a stable ID tie-break
// and truncates to limit.
func topHits(hits []driven.SearchHit, limit int) []driven.SearchHit {
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].ChunkID < hits[j].ChunkID
	})
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits
}

// tokens lowercases and splits text on non-letter non-digit runes.
func tokens(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !isWordRune(r)
	})
}

func isWordRune(r rune) bool {
	return r == '_' ||
		(r >= '0' && r <= '9') ||
		(r >= 'a' && r <= 'z') ||
		(r >= 'A' && r <= 'Z') ||
		r > 127
}

// trigrams returns the set of letter trigrams in text, padded the way
// pg_trgm pads words.
func trigrams(text string) map[string]bool {
	grams := make(map[string]bool)
	for _, word := range tokens(text) {
		padded := "  " + word + " "
		runes := []rune(padded)
		for i := 0; i+3 <= len(runes); i++ {
			grams[string(runes[i:i+3])] = true
		}
	}
	return grams
}

// trigramSimilarity is the Jaccard similarity of two trigram sets.
func trigramSimilarity(a, b map[string]bool) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	shared := 0
	for gram := range a {
		if b[gram] {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	return float64(shared) / float64(union)
}
