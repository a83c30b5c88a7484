package domain

import "time"

// Signal identifies one of the three retrieval sub-searches.
type Signal string

// Retrieval signals.
const (
	SignalSemantic Signal = "semantic"
	SignalLexical  Signal = "lexical"
	SignalFullText Signal = "fulltext"
)

// RetrievalQuery configures a hybrid search.
type RetrievalQuery struct {
	// Text is the query text.
	Text string

	// ContainerScope restricts the search to these containers.
	ContainerScope []string

	// ModalityFilter restricts results to one modality when set.
	ModalityFilter *Modality

	// MaxResults caps the final ranked list.
	MaxResults int
}

// RankedCandidate is a single fused retrieval result. Per-signal score
// provenance is retained for explainability and reranking; signals are
// never silently collapsed into one number.
type RankedCandidate struct {
	// ChunkID is the matched chunk.
	ChunkID string

	// DocumentID is the chunk's owning document.
	DocumentID string

	// Score is the fused relevance score (max across signals before
	// reranking, model score after).
	Score float64

	// Signals maps each signal that returned this chunk to its
	// normalised score.
	Signals map[Signal]float64

	// Content is the chunk text, hydrated for rerank and context
	// assembly.
	Content string

	// PageRange is the chunk's page span, when known.
	PageRange *PageRange

	// SectionHeading is the chunk's section, when known.
	SectionHeading *string

	// DocumentUpdatedAt is the owning document's last modification,
	// used as the first tie-break on equal scores.
	DocumentUpdatedAt time.Time

	// OrdinalIndex is the chunk ordinal, the second tie-break.
	OrdinalIndex int
}

// BestSignal returns the signal with the highest score for the
// candidate, for display purposes.
func (c RankedCandidate) BestSignal() Signal {
	var best Signal
	bestScore := -1.0
	for sig, score := range c.Signals {
		if score > bestScore || (score == bestScore && sig < best) {
			best, bestScore = sig, score
		}
	}
	return best
}

// RetrievalResult is the outcome of a hybrid search plus reranking.
// A query with every signal failing yields an empty, Degraded result
// rather than an error: "no relevant context" is a normal outcome.
type RetrievalResult struct {
	// Candidates is the final ranked list.
	Candidates []RankedCandidate

	// Language is the detected query language.
	Language QueryLanguage

	// FailedSignals lists signals that produced no usable results.
	FailedSignals []Signal

	// Degraded is true when all signals failed.
	Degraded bool

	// RerankFallback is true when the reranker was unavailable and
	// the pre-rerank similarity order was returned instead.
	RerankFallback bool
}
