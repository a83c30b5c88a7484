package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/storage/memory"
)

// stubVectors implements driven.VectorSlotStore with canned hits.
type stubVectors struct {
	hits []driven.VectorHit
	err  error
}

func (s *stubVectors) UpsertEmbeddings(_ context.Context, _ []domain.Embedding) error {
	return nil
}

func (s *stubVectors) SearchNearest(_ context.Context, _ domain.SlotKey, _ []float32, _ driven.SearchScope, k int) ([]driven.VectorHit, error) {
	if s.err != nil {
		return nil, s.err
	}
	if k < len(s.hits) {
		return s.hits[:k], nil
	}
	return s.hits, nil
}

// stubTexts implements driven.TextSearcher with canned hits per
// signal.
type stubTexts struct {
	lexical     []driven.SearchHit
	lexicalErr  error
	fulltext    []driven.SearchHit
	fulltextErr error

	lastConfig string
}

func (s *stubTexts) SearchLexical(_ context.Context, _ string, _ driven.SearchScope, _ int) ([]driven.SearchHit, error) {
	if s.lexicalErr != nil {
		return nil, s.lexicalErr
	}
	return s.lexical, nil
}

func (s *stubTexts) SearchFullText(_ context.Context, _ string, config string, _ driven.SearchScope, _ int) ([]driven.SearchHit, error) {
	s.lastConfig = config
	if s.fulltextErr != nil {
		return nil, s.fulltextErr
	}
	return s.fulltext, nil
}

// retrievalDoc seeds the store with a completed document holding the
// given chunk IDs.
func retrievalDoc(t *testing.T, store *memory.DocumentStore, docID string, updatedAt time.Time, chunkIDs ...string) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateDocument(ctx, &domain.Document{
		ID:          docID,
		ContainerID: "container-1",
		BlobRef:     "blob-" + docID,
		CreatedAt:   updatedAt,
	}))
	session, generation, err := store.ClaimProcessing(ctx, docID)
	require.NoError(t, err)

	chunks := make([]domain.Chunk, len(chunkIDs))
	for i, id := range chunkIDs {
		chunks[i] = domain.Chunk{
			ID:           id,
			DocumentID:   docID,
			Generation:   generation,
			Modality:     domain.ModalityText,
			Content:      "content of " + id,
			OrdinalIndex: i,
		}
	}
	require.NoError(t, store.SaveChunks(ctx, chunks))
	require.NoError(t, store.CompleteProcessing(ctx, docID, session, generation))
}

type retrieverFixture struct {
	docs    *memory.DocumentStore
	vectors *stubVectors
	texts   *stubTexts
}

func newRetrieverFixture(t *testing.T) *retrieverFixture {
	t.Helper()
	f := &retrieverFixture{
		docs:    memory.NewDocumentStore(),
		vectors: &stubVectors{},
		texts:   &stubTexts{},
	}
	retrievalDoc(t, f.docs, "doc-1", time.Now(), "chunk-a", "chunk-b")
	retrievalDoc(t, f.docs, "doc-2", time.Now(), "chunk-c")
	return f
}

func (f *retrieverFixture) retriever(opts ...RetrieverOption) *Retriever {
	embedder := &stubEmbedder{name: "openai", dims: 3}
	return NewRetriever(f.docs, f.vectors, f.texts, embedder, nil, opts...)
}

func TestRetriever_FusesSignalsWithProvenance(t *testing.T) {
	f := newRetrieverFixture(t)
	f.vectors.hits = []driven.VectorHit{
		{ChunkID: "chunk-a", Similarity: 0.9},
		{ChunkID: "chunk-b", Similarity: 0.6},
	}
	f.texts.lexical = []driven.SearchHit{
		{ChunkID: "chunk-a", Score: 0.5},
		{ChunkID: "chunk-c", Score: 0.7},
	}
	f.texts.fulltext = []driven.SearchHit{
		{ChunkID: "chunk-a", Score: 0.8},
	}

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "sensor calibration"})

	require.NoError(t, err)
	assert.Empty(t, result.FailedSignals)
	assert.False(t, result.Degraded)
	require.Len(t, result.Candidates, 3)

	top := result.Candidates[0]
	assert.Equal(t, "chunk-a", top.ChunkID)
	assert.Equal(t, 0.9, top.Score)
	assert.Equal(t, map[domain.Signal]float64{
		domain.SignalSemantic: 0.9,
		domain.SignalLexical:  0.5,
		domain.SignalFullText: 0.8,
	}, top.Signals)
	assert.Equal(t, domain.SignalSemantic, top.BestSignal())
	assert.Equal(t, "content of chunk-a", top.Content)
	assert.Equal(t, "doc-1", top.DocumentID)
}

func TestRetriever_FusionOrderIndependent(t *testing.T) {
	// The same hits fused from maps must rank identically however
	// the signals happened to finish.
	f := newRetrieverFixture(t)
	f.vectors.hits = []driven.VectorHit{{ChunkID: "chunk-b", Similarity: 0.8}}
	f.texts.lexical = []driven.SearchHit{{ChunkID: "chunk-a", Score: 0.8}}

	var first []string
	for run := 0; run < 5; run++ {
		result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "query"})
		require.NoError(t, err)
		ids := make([]string, len(result.Candidates))
		for i, c := range result.Candidates {
			ids[i] = c.ChunkID
		}
		if first == nil {
			first = ids
			continue
		}
		assert.Equal(t, first, ids)
	}
}

func TestRetriever_SingleSignalFailure_Degrades(t *testing.T) {
	f := newRetrieverFixture(t)
	f.vectors.err = errors.New("pgvector down")
	f.texts.lexical = []driven.SearchHit{{ChunkID: "chunk-a", Score: 0.8}}
	f.texts.fulltext = []driven.SearchHit{{ChunkID: "chunk-a", Score: 0.6}}

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	assert.Equal(t, []domain.Signal{domain.SignalSemantic}, result.FailedSignals)
	assert.False(t, result.Degraded)
	require.Len(t, result.Candidates, 1)
	assert.NotContains(t, result.Candidates[0].Signals, domain.SignalSemantic)
}

func TestRetriever_AllSignalsFail_EmptyDegradedResult(t *testing.T) {
	f := newRetrieverFixture(t)
	f.vectors.err = errors.New("down")
	f.texts.lexicalErr = errors.New("down")
	f.texts.fulltextErr = errors.New("down")

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	assert.True(t, result.Degraded)
	assert.Empty(t, result.Candidates)
	assert.Len(t, result.FailedSignals, 3)
}

func TestRetriever_EmbeddingFailure_FailsOnlySemanticSignal(t *testing.T) {
	f := newRetrieverFixture(t)
	f.texts.lexical = []driven.SearchHit{{ChunkID: "chunk-a", Score: 0.8}}

	embedder := &stubEmbedder{name: "openai", dims: 3,
		failures: []error{errors.New("embed down")}}
	retriever := NewRetriever(f.docs, f.vectors, f.texts, embedder, nil)

	result, err := retriever.Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	assert.Equal(t, []domain.Signal{domain.SignalSemantic}, result.FailedSignals)
	require.Len(t, result.Candidates, 1)
}

func TestRetriever_ScoreFloorRelaxesOnce(t *testing.T) {
	f := newRetrieverFixture(t)
	f.texts.lexical = []driven.SearchHit{
		{ChunkID: "chunk-a", Score: 0.20},
		{ChunkID: "chunk-b", Score: 0.10},
	}

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	// Nothing on the lexical signal clears 0.30; its floor relaxes
	// to 0.15, which admits only chunk-a.
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "chunk-a", result.Candidates[0].ChunkID)
}

func TestRetriever_FloorNotRelaxedWhenSomethingClears(t *testing.T) {
	f := newRetrieverFixture(t)
	f.texts.lexical = []driven.SearchHit{
		{ChunkID: "chunk-a", Score: 0.50},
		{ChunkID: "chunk-b", Score: 0.20},
	}

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	// chunk-a clears the lexical floor, so the signal keeps the
	// strict floor and chunk-b stays out.
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "chunk-a", result.Candidates[0].ChunkID)
}

func TestRetriever_FloorRelaxesPerSignal(t *testing.T) {
	f := newRetrieverFixture(t)
	retrievalDoc(t, f.docs, "doc-3", time.Now(), "chunk-d")
	f.vectors.hits = []driven.VectorHit{
		{ChunkID: "chunk-a", Similarity: 0.90},
	}
	f.texts.lexical = []driven.SearchHit{
		{ChunkID: "chunk-b", Score: 0.50},
		{ChunkID: "chunk-c", Score: 0.20},
	}
	f.texts.fulltext = []driven.SearchHit{
		{ChunkID: "chunk-d", Score: 0.20},
	}

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	ids := make([]string, len(result.Candidates))
	for i, cand := range result.Candidates {
		ids[i] = cand.ChunkID
	}

	// Full-text returned nothing above the floor, so its own floor
	// relaxes and chunk-d survives. Lexical had a passing hit and
	// keeps the strict floor, so its 0.20 hit does not.
	assert.Contains(t, ids, "chunk-d")
	assert.NotContains(t, ids, "chunk-c")
	assert.Contains(t, ids, "chunk-a")
	assert.Contains(t, ids, "chunk-b")

	for _, cand := range result.Candidates {
		if cand.ChunkID == "chunk-d" {
			assert.InDelta(t, 0.20, cand.Signals[domain.SignalFullText], 1e-9)
		}
	}
}

func TestRetriever_TieBreakByRecencyThenOrdinal(t *testing.T) {
	docs := memory.NewDocumentStore()
	older := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	newer := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	retrievalDoc(t, docs, "doc-old", older, "chunk-old-0", "chunk-old-1")
	retrievalDoc(t, docs, "doc-new", newer, "chunk-new-0")

	texts := &stubTexts{lexical: []driven.SearchHit{
		{ChunkID: "chunk-old-1", Score: 0.8},
		{ChunkID: "chunk-old-0", Score: 0.8},
		{ChunkID: "chunk-new-0", Score: 0.8},
	}}
	retriever := NewRetriever(docs, &stubVectors{}, texts,
		&stubEmbedder{name: "openai", dims: 3}, nil)

	result, err := retriever.Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	require.Len(t, result.Candidates, 3)
	assert.Equal(t, "chunk-new-0", result.Candidates[0].ChunkID)
	assert.Equal(t, "chunk-old-0", result.Candidates[1].ChunkID)
	assert.Equal(t, "chunk-old-1", result.Candidates[2].ChunkID)
}

func TestRetriever_VanishedChunkDropped(t *testing.T) {
	f := newRetrieverFixture(t)
	f.texts.lexical = []driven.SearchHit{
		{ChunkID: "chunk-a", Score: 0.9},
		{ChunkID: "chunk-gone", Score: 0.8},
	}

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "chunk-a", result.Candidates[0].ChunkID)
}

func TestRetriever_EmptyQuery(t *testing.T) {
	f := newRetrieverFixture(t)

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "   "})

	require.NoError(t, err)
	assert.Empty(t, result.Candidates)
	assert.False(t, result.Degraded)
}

func TestRetriever_MaxResultsCap(t *testing.T) {
	f := newRetrieverFixture(t)
	f.texts.lexical = []driven.SearchHit{
		{ChunkID: "chunk-a", Score: 0.9},
		{ChunkID: "chunk-b", Score: 0.8},
		{ChunkID: "chunk-c", Score: 0.7},
	}

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{
		Text:       "query",
		MaxResults: 2,
	})

	require.NoError(t, err)
	assert.Len(t, result.Candidates, 2)
}

func TestRetriever_LanguageSelectsFullTextConfig(t *testing.T) {
	tests := []struct {
		name     string
		query    string
		language domain.QueryLanguage
		config   string
	}{
		{"english", "flow sensor calibration", domain.LanguageEnglish, "english"},
		{"russian", "калибровка датчика", domain.LanguageRussian, "russian"},
		{"mixed", "калибровка sensor", domain.LanguageMixed, "simple"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newRetrieverFixture(t)

			result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: tt.query})

			require.NoError(t, err)
			assert.Equal(t, tt.language, result.Language)
			assert.Equal(t, tt.config, f.texts.lastConfig)
		})
	}
}

func TestRetriever_FullTextScoresNormalized(t *testing.T) {
	f := newRetrieverFixture(t)
	// Unbounded rank scores from the full-text signal.
	f.texts.fulltext = []driven.SearchHit{
		{ChunkID: "chunk-a", Score: 8.0},
		{ChunkID: "chunk-b", Score: 4.0},
	}

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, 1.0, result.Candidates[0].Score)
	assert.Equal(t, 0.5, result.Candidates[1].Score)
}

func TestRetriever_NoReranker_FlagsFallback(t *testing.T) {
	f := newRetrieverFixture(t)
	f.texts.lexical = []driven.SearchHit{{ChunkID: "chunk-a", Score: 0.9}}

	result, err := f.retriever().Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	assert.True(t, result.RerankFallback)
}

func TestRetriever_RerankerReorders(t *testing.T) {
	f := newRetrieverFixture(t)
	f.texts.lexical = []driven.SearchHit{
		{ChunkID: "chunk-a", Score: 0.9},
		{ChunkID: "chunk-b", Score: 0.8},
	}
	rerankSvc := &stubRerankService{scores: []driven.RerankScore{
		{Index: 1, Score: 0.99},
		{Index: 0, Score: 0.10},
	}}
	embedder := &stubEmbedder{name: "openai", dims: 3}
	retriever := NewRetriever(f.docs, f.vectors, f.texts, embedder,
		NewReranker(rerankSvc, nil, nil))

	result, err := retriever.Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	assert.False(t, result.RerankFallback)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "chunk-b", result.Candidates[0].ChunkID)
	// Provenance survives reranking.
	assert.Contains(t, result.Candidates[0].Signals, domain.SignalLexical)
}

func TestRetriever_RerankerFailure_FlagsAndKeepsOrder(t *testing.T) {
	f := newRetrieverFixture(t)
	f.texts.lexical = []driven.SearchHit{
		{ChunkID: "chunk-a", Score: 0.9},
		{ChunkID: "chunk-b", Score: 0.8},
	}
	rerankSvc := &stubRerankService{err: errors.New("endpoint down")}
	embedder := &stubEmbedder{name: "openai", dims: 3}
	retriever := NewRetriever(f.docs, f.vectors, f.texts, embedder,
		NewReranker(rerankSvc, nil, nil))

	result, err := retriever.Search(context.Background(), domain.RetrievalQuery{Text: "query"})

	require.NoError(t, err)
	assert.True(t, result.RerankFallback)
	require.Len(t, result.Candidates, 2)
	assert.Equal(t, "chunk-a", result.Candidates[0].ChunkID)
	assert.Equal(t, "chunk-b", result.Candidates[1].ChunkID)
}
