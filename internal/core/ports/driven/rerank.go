package driven

import "context"

// RerankDocument is one candidate handed to a rerank endpoint.
type RerankDocument struct {
	// ID is the candidate chunk ID.
	ID string

	// Text is the chunk content to score against the query.
	Text string
}

// RerankScore is a relevance judgement for one input document.
type RerankScore struct {
	// Index is the document's position in the request.
	Index int

	// Score is the normalised relevance score (0-1).
	Score float64
}

// RerankService scores candidates against a query using a dedicated
// reranking endpoint (e.g. Cohere rerank). It is optional: when nil or
// failing, the reranker degrades to LLM scoring and finally to the
// pre-rerank similarity order.
type RerankService interface {
	// Rerank scores the documents against the query and returns the
	// top n scores in descending order.
	Rerank(ctx context.Context, query string, docs []RerankDocument, topN int) ([]RerankScore, error)

	// ModelName returns the name of the rerank model being used.
	ModelName() string

	// Close releases resources.
	Close() error
}
