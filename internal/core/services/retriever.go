package services

import (
	"context"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/core/ports/driving"
	"github.com/quarrydocs/quarry/internal/logger"
)

// Ensure Retriever implements the interface.
var _ driving.RetrievalService = (*Retriever)(nil)

// Default retrieval parameters.
const (
	DefaultMaxResults = 10

	// defaultSignalLimit is how many hits each signal contributes
	// before fusion.
	defaultSignalLimit = 30

	// defaultScoreFloor drops weak hits per signal. A signal whose
	// every hit falls below it relaxes its own floor once to
	// relaxedScoreFloor rather than going silent; the other signals
	// keep the strict floor.
	defaultScoreFloor = 0.30
	relaxedScoreFloor = 0.15
)

// RetrieverOption configures the retriever.
type RetrieverOption func(*Retriever)

// WithSignalLimit overrides the per-signal hit limit.
func WithSignalLimit(limit int) RetrieverOption {
	return func(r *Retriever) {
		r.signalLimit = limit
	}
}

// WithScoreFloor overrides the score floor and its relaxed fallback.
func WithScoreFloor(floor, relaxed float64) RetrieverOption {
	return func(r *Retriever) {
		r.scoreFloor = floor
		r.relaxedFloor = relaxed
	}
}

// Retriever answers hybrid search queries. Three signals run in
// parallel; their candidates are fused with per-signal provenance and
// handed to the reranker. Signal failure degrades the result, it never
// fails the query.
type Retriever struct {
	docStore driven.DocumentStore
	vectors  driven.VectorSlotStore
	texts    driven.TextSearcher
	embedder driven.EmbeddingService
	reranker *Reranker

	signalLimit  int
	scoreFloor   float64
	relaxedFloor float64
}

// NewRetriever creates a retrieval service. The reranker is optional;
// when nil, results keep the similarity order and are flagged as
// rerank fallback.
func NewRetriever(
	docStore driven.DocumentStore,
	vectors driven.VectorSlotStore,
	texts driven.TextSearcher,
	embedder driven.EmbeddingService,
	reranker *Reranker,
	opts ...RetrieverOption,
) *Retriever {
	r := &Retriever{
		docStore:     docStore,
		vectors:      vectors,
		texts:        texts,
		embedder:     embedder,
		reranker:     reranker,
		signalLimit:  defaultSignalLimit,
		scoreFloor:   defaultScoreFloor,
		relaxedFloor: relaxedScoreFloor,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// signalHits is one signal's contribution before fusion.
type signalHits struct {
	signal domain.Signal
	hits   []driven.SearchHit
	err    error
}

// Search fans the query out to the retrieval signals, fuses the
// candidates and reranks them.
func (r *Retriever) Search(ctx context.Context, query domain.RetrievalQuery) (*domain.RetrievalResult, error) {
	logger.Section("Hybrid Search")

	text := strings.TrimSpace(query.Text)
	language := domain.DetectLanguage(text)
	result := &domain.RetrievalResult{Language: language}
	if text == "" {
		logger.Debug("Empty query, returning no results")
		return result, nil
	}
	maxResults := query.MaxResults
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	logger.Debug("Query: %q, language: %s", text, language)

	scope := driven.SearchScope{
		ContainerIDs: query.ContainerScope,
		Modality:     query.ModalityFilter,
	}

	signals := r.fanOut(ctx, text, language, scope)

	candidates := make(map[string]*domain.RankedCandidate)
	for _, sig := range signals {
		if sig.err != nil {
			logger.Warn("Signal %s failed: %v", sig.signal, sig.err)
			result.FailedSignals = append(result.FailedSignals, sig.signal)
			continue
		}
		fuse(candidates, sig.signal, r.floorHits(sig.signal, sig.hits))
	}
	sort.Slice(result.FailedSignals, func(i, j int) bool {
		return result.FailedSignals[i] < result.FailedSignals[j]
	})

	if len(result.FailedSignals) == 3 {
		logger.Warn("All retrieval signals failed, returning degraded empty result")
		result.Degraded = true
		return result, nil
	}

	ranked := make([]domain.RankedCandidate, 0, len(candidates))
	for _, cand := range candidates {
		ranked = append(ranked, *cand)
	}
	if len(ranked) == 0 {
		logger.Debug("No candidates above floor")
		return result, nil
	}

	ranked = r.hydrate(ctx, ranked)
	sortCandidates(ranked)

	if r.reranker != nil {
		reranked, fallback := r.reranker.Rerank(ctx, text, ranked, maxResults)
		ranked = reranked
		result.RerankFallback = fallback
	} else {
		result.RerankFallback = true
	}

	if len(ranked) > maxResults {
		ranked = ranked[:maxResults]
	}
	result.Candidates = ranked

	logger.Info("Search returned %d candidates (failed signals: %d, rerank fallback: %t)",
		len(ranked), len(result.FailedSignals), result.RerankFallback)
	return result, nil
}

// fanOut runs the three signals concurrently. Individual signal errors
// are collected, never propagated; the errgroup only carries context
// cancellation.
func (r *Retriever) fanOut(ctx context.Context, text string, language domain.QueryLanguage, scope driven.SearchScope) []signalHits {
	var mu sync.Mutex
	results := make([]signalHits, 0, 3)
	record := func(sh signalHits) {
		mu.Lock()
		defer mu.Unlock()
		results = append(results, sh)
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		hits, err := r.semanticSearch(gctx, text, scope)
		record(signalHits{signal: domain.SignalSemantic, hits: hits, err: err})
		return nil
	})
	g.Go(func() error {
		hits, err := r.texts.SearchLexical(gctx, text, scope, r.signalLimit)
		record(signalHits{signal: domain.SignalLexical, hits: hits, err: err})
		return nil
	})
	g.Go(func() error {
		hits, err := r.texts.SearchFullText(gctx, text, language.FullTextConfig(), scope, r.signalLimit)
		record(signalHits{signal: domain.SignalFullText, hits: normalizeScores(hits), err: err})
		return nil
	})

	_ = g.Wait()
	return results
}

// semanticSearch embeds the query and searches the embedder's slot.
func (r *Retriever) semanticSearch(ctx context.Context, text string, scope driven.SearchScope) ([]driven.SearchHit, error) {
	vector, err := r.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	slot := domain.SlotKey{Provider: r.embedder.ProviderName(), Dimension: r.embedder.Dimensions()}
	vectorHits, err := r.vectors.SearchNearest(ctx, slot, vector, scope, r.signalLimit)
	if err != nil {
		return nil, err
	}
	hits := make([]driven.SearchHit, len(vectorHits))
	for i, hit := range vectorHits {
		hits[i] = driven.SearchHit{ChunkID: hit.ChunkID, Score: hit.Similarity}
	}
	return hits, nil
}

// fuse merges one signal's hits into the candidate set, keeping
// per-signal provenance. The fused score is the maximum across
// signals, which is independent of signal arrival order.
func fuse(candidates map[string]*domain.RankedCandidate, signal domain.Signal, hits []driven.SearchHit) {
	for _, hit := range hits {
		cand, ok := candidates[hit.ChunkID]
		if !ok {
			cand = &domain.RankedCandidate{
				ChunkID: hit.ChunkID,
				Signals: make(map[domain.Signal]float64),
			}
			candidates[hit.ChunkID] = cand
		}
		cand.Signals[signal] = hit.Score
		if hit.Score > cand.Score {
			cand.Score = hit.Score
		}
	}
}

// floorHits filters one signal's hits against the similarity floor.
// When the filter would empty a signal that did return hits, that
// signal's floor relaxes one step and the filter runs again. Other
// signals are unaffected: a sparse signal surfaces its best hit
// without loosening the rest of the fusion.
func (r *Retriever) floorHits(signal domain.Signal, hits []driven.SearchHit) []driven.SearchHit {
	pass := func(floor float64) []driven.SearchHit {
		var out []driven.SearchHit
		for _, hit := range hits {
			if hit.Score >= floor {
				out = append(out, hit)
			}
		}
		return out
	}

	kept := pass(r.scoreFloor)
	if len(kept) == 0 && len(hits) > 0 {
		logger.Debug("Signal %s has nothing above floor %.2f, relaxing to %.2f",
			signal, r.scoreFloor, r.relaxedFloor)
		kept = pass(r.relaxedFloor)
	}
	return kept
}

// hydrate fills in chunk content and document metadata. Chunks that
// disappeared since the search (re-ingestion races) are dropped.
func (r *Retriever) hydrate(ctx context.Context, candidates []domain.RankedCandidate) []domain.RankedCandidate {
	docs := make(map[string]*domain.Document)
	kept := make([]domain.RankedCandidate, 0, len(candidates))
	for i := range candidates {
		cand := candidates[i]
		chunk, err := r.docStore.GetChunk(ctx, cand.ChunkID)
		if err != nil {
			logger.Debug("Dropping vanished chunk %s: %v", cand.ChunkID, err)
			continue
		}
		doc, ok := docs[chunk.DocumentID]
		if !ok {
			doc, err = r.docStore.GetDocument(ctx, chunk.DocumentID)
			if err != nil {
				logger.Debug("Dropping chunk %s of vanished document %s", cand.ChunkID, chunk.DocumentID)
				continue
			}
			docs[chunk.DocumentID] = doc
		}

		cand.DocumentID = chunk.DocumentID
		cand.Content = chunk.Content
		pageRange := chunk.PageRange
		cand.PageRange = &pageRange
		cand.SectionHeading = chunk.SectionHeading
		cand.OrdinalIndex = chunk.OrdinalIndex
		cand.DocumentUpdatedAt = doc.UpdatedAt
		kept = append(kept, cand)
	}
	return kept
}

// sortCandidates orders by score descending, breaking ties by document
// recency and then chunk ordinal.
func sortCandidates(candidates []domain.RankedCandidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.DocumentUpdatedAt.Equal(b.DocumentUpdatedAt) {
			return a.DocumentUpdatedAt.After(b.DocumentUpdatedAt)
		}
		return a.OrdinalIndex < b.OrdinalIndex
	})
}

// normalizeScores maps a signal's scores onto 0-1 by dividing by the
// maximum. Full-text rank is unbounded; fusion needs comparable
// scales.
func normalizeScores(hits []driven.SearchHit) []driven.SearchHit {
	var max float64
	for _, hit := range hits {
		if hit.Score > max {
			max = hit.Score
		}
	}
	if max <= 1 {
		return hits
	}
	out := make([]driven.SearchHit, len(hits))
	for i, hit := range hits {
		out[i] = driven.SearchHit{ChunkID: hit.ChunkID, Score: hit.Score / max}
	}
	return out
}
