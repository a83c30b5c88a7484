package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

var testSlot = domain.SlotKey{Provider: "openai", Dimension: 3}

// completedDoc ingests a document with the given chunks so they are
// active for search.
func completedDoc(t *testing.T, store *DocumentStore, docID, container string, chunks ...domain.Chunk) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, store.CreateDocument(ctx, newDoc(docID, container)))
	session, generation, err := store.ClaimProcessing(ctx, docID)
	require.NoError(t, err)
	for i := range chunks {
		chunks[i].DocumentID = docID
		chunks[i].Generation = generation
	}
	require.NoError(t, store.SaveChunks(ctx, chunks))
	require.NoError(t, store.CompleteProcessing(ctx, docID, session, generation))
}

func TestUpsertAndSearchNearest(t *testing.T) {
	docs := NewDocumentStore()
	vectors := NewVectorStore(docs)
	ctx := context.Background()

	completedDoc(t, docs, "doc-1", "tenant-a",
		domain.Chunk{ID: "chunk-1", Modality: domain.ModalityText, OrdinalIndex: 0},
		domain.Chunk{ID: "chunk-2", Modality: domain.ModalityText, OrdinalIndex: 1},
	)

	require.NoError(t, vectors.UpsertEmbeddings(ctx, []domain.Embedding{
		{ChunkID: "chunk-1", Provider: "openai", Dimension: 3, Vector: []float32{1, 0, 0}},
		{ChunkID: "chunk-2", Provider: "openai", Dimension: 3, Vector: []float32{0, 1, 0}},
	}))

	hits, err := vectors.SearchNearest(ctx, testSlot, []float32{1, 0, 0}, driven.SearchScope{}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "chunk-1", hits[0].ChunkID)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Greater(t, hits[0].Similarity, hits[1].Similarity)
}

func TestUpsertEmbeddings_DimensionMismatchIsFatal(t *testing.T) {
	vectors := NewVectorStore(NewDocumentStore())

	err := vectors.UpsertEmbeddings(context.Background(), []domain.Embedding{
		{ChunkID: "chunk-1", Provider: "openai", Dimension: 3, Vector: []float32{1, 0}},
	})
	require.Error(t, err)

	var mismatch *domain.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 3, mismatch.Want)
	assert.Equal(t, 2, mismatch.Got)
	assert.False(t, domain.IsTransient(err))
}

func TestSearchNearest_QueryWidthMismatch(t *testing.T) {
	vectors := NewVectorStore(NewDocumentStore())

	_, err := vectors.SearchNearest(context.Background(), testSlot, []float32{1, 0}, driven.SearchScope{}, 5)
	var mismatch *domain.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func TestSearchNearest_ScopeFilters(t *testing.T) {
	docs := NewDocumentStore()
	vectors := NewVectorStore(docs)
	ctx := context.Background()

	completedDoc(t, docs, "doc-a", "tenant-a",
		domain.Chunk{ID: "chunk-a", Modality: domain.ModalityText, OrdinalIndex: 0})
	completedDoc(t, docs, "doc-b", "tenant-b",
		domain.Chunk{ID: "chunk-b", Modality: domain.ModalityTable, OrdinalIndex: 0})

	require.NoError(t, vectors.UpsertEmbeddings(ctx, []domain.Embedding{
		{ChunkID: "chunk-a", Provider: "openai", Dimension: 3, Vector: []float32{1, 0, 0}},
		{ChunkID: "chunk-b", Provider: "openai", Dimension: 3, Vector: []float32{1, 0, 0}},
	}))

	hits, err := vectors.SearchNearest(ctx, testSlot, []float32{1, 0, 0},
		driven.SearchScope{ContainerIDs: []string{"tenant-a"}}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk-a", hits[0].ChunkID)

	table := domain.ModalityTable
	hits, err = vectors.SearchNearest(ctx, testSlot, []float32{1, 0, 0},
		driven.SearchScope{Modality: &table}, 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "chunk-b", hits[0].ChunkID)
}

func TestSearchNearest_ExcludesUnpromotedChunks(t *testing.T) {
	docs := NewDocumentStore()
	vectors := NewVectorStore(docs)
	ctx := context.Background()

	// Claim but never complete; chunks stay inactive.
	require.NoError(t, docs.CreateDocument(ctx, newDoc("doc-1", "tenant-a")))
	_, generation, err := docs.ClaimProcessing(ctx, "doc-1")
	require.NoError(t, err)
	require.NoError(t, docs.SaveChunks(ctx, []domain.Chunk{
		{ID: "chunk-1", DocumentID: "doc-1", Generation: generation, Modality: domain.ModalityText},
	}))
	require.NoError(t, vectors.UpsertEmbeddings(ctx, []domain.Embedding{
		{ChunkID: "chunk-1", Provider: "openai", Dimension: 3, Vector: []float32{1, 0, 0}},
	}))

	hits, err := vectors.SearchNearest(ctx, testSlot, []float32{1, 0, 0}, driven.SearchScope{}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
