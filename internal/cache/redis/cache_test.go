package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydocs/quarry/internal/core/domain"
)

func newTestCache(t *testing.T) (*TurnCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	cache := NewWithClient(client, "")
	t.Cleanup(func() { _ = cache.Close() })
	return cache, mr
}

func sampleTurns() []domain.ConversationTurn {
	return []domain.ConversationTurn{
		{
			ID:        "turn-1",
			SessionID: "sess-1",
			Role:      domain.RoleUser,
			Content:   "what is the claimed tolerance?",
			CreatedAt: time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC),
		},
		{
			ID:                 "turn-2",
			SessionID:          "sess-1",
			Role:               domain.RoleAssistant,
			Content:            "0.2mm per claim 3.",
			ReferencedChunkIDs: []string{"chunk-9"},
			Retrieval: &domain.TurnRetrieval{
				Evidence:            []domain.TurnEvidence{{ChunkID: "chunk-9", Score: 0.91, Signal: domain.SignalSemantic}},
				SelectedDocumentIDs: []string{"doc-1"},
			},
			CreatedAt: time.Date(2026, 5, 1, 10, 0, 5, 0, time.UTC),
		},
	}
}

func TestSetGetSession(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	turns := sampleTurns()
	require.NoError(t, cache.SetSession(ctx, "sess-1", turns, time.Minute))

	got, hit, err := cache.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, got, 2)
	assert.Equal(t, turns[0].Content, got[0].Content)
	require.NotNil(t, got[1].Retrieval)
	assert.Equal(t, []string{"doc-1"}, got[1].Retrieval.SelectedDocumentIDs)
	assert.Equal(t, domain.SignalSemantic, got[1].Retrieval.Evidence[0].Signal)
}

func TestGetSession_Miss(t *testing.T) {
	cache, _ := newTestCache(t)

	turns, hit, err := cache.GetSession(context.Background(), "unknown")
	require.NoError(t, err)
	assert.False(t, hit)
	assert.Nil(t, turns)
}

func TestGetSession_CorruptEntryIsMiss(t *testing.T) {
	cache, mr := newTestCache(t)

	require.NoError(t, mr.Set(DefaultKeyPrefix+"sess-1", "not json"))

	_, hit, err := cache.GetSession(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestSetSession_TTLExpires(t *testing.T) {
	cache, mr := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetSession(ctx, "sess-1", sampleTurns(), time.Minute))

	mr.FastForward(2 * time.Minute)

	_, hit, err := cache.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestInvalidate(t *testing.T) {
	cache, _ := newTestCache(t)
	ctx := context.Background()

	require.NoError(t, cache.SetSession(ctx, "sess-1", sampleTurns(), time.Minute))
	require.NoError(t, cache.Invalidate(ctx, "sess-1"))

	_, hit, err := cache.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.False(t, hit)
}

func TestGetSession_ServerDown(t *testing.T) {
	cache, mr := newTestCache(t)
	mr.Close()

	_, hit, err := cache.GetSession(context.Background(), "sess-1")
	assert.Error(t, err)
	assert.False(t, hit)
}
