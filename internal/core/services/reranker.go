package services

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/logger"
	"github.com/quarrydocs/quarry/internal/tokenizer"
)

// Default rerank parameters.
const (
	// DefaultTokenBudget bounds the total candidate text handed to
	// the scoring model. Lowest-ranked candidates are cut first.
	DefaultTokenBudget = 6000

	// llmScoreMaxTokens is the completion budget for one LLM score.
	llmScoreMaxTokens = 8
)

// llmScorePrompt asks the generation model for a single relevance
// number, the fallback when no dedicated rerank endpoint is set.
const llmScorePrompt = `Rate how relevant the passage is to the query on a scale from 0.0 to 1.0.
Respond with ONLY the number.

Query: %s

Passage:
%s

Score:`

// RerankerOption configures the reranker.
type RerankerOption func(*Reranker)

// WithTokenBudget overrides the candidate token budget.
func WithTokenBudget(budget int) RerankerOption {
	return func(r *Reranker) {
		r.tokenBudget = budget
	}
}

// WithTemperature sets the scoring temperature for LLM fallback. Only
// call this when the configured model's capability descriptor says it
// accepts the parameter; otherwise it is omitted from requests.
func WithTemperature(temp float64) RerankerOption {
	return func(r *Reranker) {
		r.temperature = &temp
	}
}

// Reranker reorders fused candidates by model-judged relevance. It
// prefers a dedicated rerank endpoint, falls back to scoring with the
// generation model, and finally keeps the pre-rerank similarity order
// flagged as a fallback. Rerank trouble never fails a query.
type Reranker struct {
	service driven.RerankService
	llm     driven.LLMService
	counter tokenizer.Counter

	tokenBudget int
	temperature *float64
}

// NewReranker creates a reranker. Both service and llm may be nil; a
// nil counter falls back to the character heuristic.
func NewReranker(service driven.RerankService, llm driven.LLMService, counter tokenizer.Counter, opts ...RerankerOption) *Reranker {
	r := &Reranker{
		service:     service,
		llm:         llm,
		counter:     counter,
		tokenBudget: DefaultTokenBudget,
	}
	if r.counter == nil {
		r.counter = tokenizer.Heuristic{}
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Rerank reorders candidates and truncates to topK. The second return
// is true when the model order could not be obtained and the
// pre-rerank similarity order was kept.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []domain.RankedCandidate, topK int) ([]domain.RankedCandidate, bool) {
	if len(candidates) == 0 {
		return candidates, false
	}
	if topK <= 0 || topK > len(candidates) {
		topK = len(candidates)
	}

	if r.service != nil {
		reranked, err := r.rerankWithService(ctx, query, candidates, topK)
		if err == nil {
			return r.applyBudget(reranked), false
		}
		logger.Warn("Rerank endpoint failed, trying LLM scoring: %v", err)
	}

	if r.llm != nil {
		reranked, err := r.rerankWithLLM(ctx, query, candidates, topK)
		if err == nil {
			return r.applyBudget(reranked), false
		}
		logger.Warn("LLM rerank failed, keeping similarity order: %v", err)
	}

	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return r.applyBudget(candidates), true
}

// applyBudget drops the lowest-ranked survivors until the remaining
// content fits the token budget. The budget shapes the final context,
// so it runs after reranking: a chunk the model ranks highly is never
// cut in favour of one it ranks lower. At least one candidate
// survives.
func (r *Reranker) applyBudget(candidates []domain.RankedCandidate) []domain.RankedCandidate {
	if r.tokenBudget <= 0 {
		return candidates
	}
	total := 0
	for i, cand := range candidates {
		total += r.counter.Count(cand.Content)
		if total > r.tokenBudget && i > 0 {
			logger.Debug("Token budget %d truncates candidates to %d of %d",
				r.tokenBudget, i, len(candidates))
			return candidates[:i]
		}
	}
	return candidates
}

// rerankWithService scores via the dedicated endpoint.
func (r *Reranker) rerankWithService(ctx context.Context, query string, candidates []domain.RankedCandidate, topK int) ([]domain.RankedCandidate, error) {
	docs := make([]driven.RerankDocument, len(candidates))
	for i, cand := range candidates {
		docs[i] = driven.RerankDocument{ID: cand.ChunkID, Text: cand.Content}
	}

	scores, err := r.service.Rerank(ctx, query, docs, topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrRerankUnavailable, err)
	}
	if len(scores) == 0 {
		return nil, fmt.Errorf("%w: endpoint returned no scores", domain.ErrRerankUnavailable)
	}

	reranked := make([]domain.RankedCandidate, 0, len(scores))
	for _, score := range scores {
		if score.Index < 0 || score.Index >= len(candidates) {
			return nil, fmt.Errorf("%w: score index %d out of range", domain.ErrRerankUnavailable, score.Index)
		}
		cand := candidates[score.Index]
		cand.Score = score.Score
		reranked = append(reranked, cand)
	}
	sortCandidates(reranked)
	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked, nil
}

// rerankWithLLM scores each candidate with the generation model.
func (r *Reranker) rerankWithLLM(ctx context.Context, query string, candidates []domain.RankedCandidate, topK int) ([]domain.RankedCandidate, error) {
	reranked := make([]domain.RankedCandidate, 0, len(candidates))
	for _, cand := range candidates {
		prompt := fmt.Sprintf(llmScorePrompt, query, cand.Content)
		raw, err := r.llm.Generate(ctx, prompt, driven.GenerateOptions{
			MaxTokens:   llmScoreMaxTokens,
			Temperature: r.temperature,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrRerankUnavailable, err)
		}
		score, err := parseScore(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", domain.ErrRerankUnavailable, err)
		}
		cand.Score = score
		reranked = append(reranked, cand)
	}
	sortCandidates(reranked)
	if len(reranked) > topK {
		reranked = reranked[:topK]
	}
	return reranked, nil
}

// parseScore extracts a 0-1 score from a model completion.
func parseScore(raw string) (float64, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	if len(fields) == 0 {
		return 0, fmt.Errorf("empty score completion")
	}
	score, err := strconv.ParseFloat(strings.TrimSuffix(fields[0], "."), 64)
	if err != nil {
		return 0, fmt.Errorf("unparseable score %q", raw)
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}
	return score, nil
}
