package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

func TestSearchLexical(t *testing.T) {
	docs := NewDocumentStore()
	searcher := NewTextSearcher(docs)
	ctx := context.Background()

	completedDoc(t, docs, "doc-1", "tenant-a",
		domain.Chunk{ID: "chunk-1", Modality: domain.ModalityText, Content: "widget calibration procedure", OrdinalIndex: 0},
		domain.Chunk{ID: "chunk-2", Modality: domain.ModalityText, Content: "unrelated maintenance notes", OrdinalIndex: 1},
	)

	hits, err := searcher.SearchLexical(ctx, "widget calibraton", driven.SearchScope{}, 10)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "chunk-1", hits[0].ChunkID)
	assert.Greater(t, hits[0].Score, 0.0)
}

func TestSearchLexical_EmptyQuery(t *testing.T) {
	searcher := NewTextSearcher(NewDocumentStore())

	hits, err := searcher.SearchLexical(context.Background(), "  ", driven.SearchScope{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchFullText(t *testing.T) {
	docs := NewDocumentStore()
	searcher := NewTextSearcher(docs)
	ctx := context.Background()

	completedDoc(t, docs, "doc-1", "tenant-a",
		domain.Chunk{ID: "chunk-1", Modality: domain.ModalityText, Content: "The claimed tolerance is 0.2mm for the widget frame.", OrdinalIndex: 0},
		domain.Chunk{ID: "chunk-2", Modality: domain.ModalityText, Content: "Assembly instructions for the base plate.", OrdinalIndex: 1},
	)

	hits, err := searcher.SearchFullText(ctx, "widget tolerance", "english", driven.SearchScope{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk-1", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
}

func TestSearchFullText_Limit(t *testing.T) {
	docs := NewDocumentStore()
	searcher := NewTextSearcher(docs)
	ctx := context.Background()

	completedDoc(t, docs, "doc-1", "tenant-a",
		domain.Chunk{ID: "chunk-1", Modality: domain.ModalityText, Content: "widget one", OrdinalIndex: 0},
		domain.Chunk{ID: "chunk-2", Modality: domain.ModalityText, Content: "widget two", OrdinalIndex: 1},
		domain.Chunk{ID: "chunk-3", Modality: domain.ModalityText, Content: "widget three", OrdinalIndex: 2},
	)

	hits, err := searcher.SearchFullText(ctx, "widget", "english", driven.SearchScope{}, 2)
	require.NoError(t, err)
	assert.Len(t, hits, 2)
}

func TestSearch_CyrillicContent(t *testing.T) {
	docs := NewDocumentStore()
	searcher := NewTextSearcher(docs)
	ctx := context.Background()

	completedDoc(t, docs, "doc-1", "tenant-a",
		domain.Chunk{ID: "chunk-1", Modality: domain.ModalityText, Content: "Допустимое отклонение составляет 0.2мм", OrdinalIndex: 0},
	)

	hits, err := searcher.SearchFullText(ctx, "отклонение", "russian", driven.SearchScope{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk-1", hits[0].ChunkID)
}
