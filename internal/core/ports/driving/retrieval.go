package driving

import (
	"context"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

// RetrievalService answers hybrid search queries with ranked,
// explainable context. A query never fails outright because of signal
// or reranker trouble; callers must handle an empty, degraded result
// as a normal outcome.
type RetrievalService interface {
	// Search fans the query out to the retrieval signals, fuses the
	// candidates and reranks them.
	Search(ctx context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error)
}
