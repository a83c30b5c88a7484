package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
	"github.com/quarrydocs/quarry/internal/storage/memory"
)

// stubTurnCache implements driven.TurnCache with switchable failures.
type stubTurnCache struct {
	mu       sync.Mutex
	sessions map[string][]domain.ConversationTurn
	getErr   error
	setErr   error
	sets     int
}

func newStubTurnCache() *stubTurnCache {
	return &stubTurnCache{sessions: make(map[string][]domain.ConversationTurn)}
}

func (c *stubTurnCache) GetSession(_ context.Context, sessionID string) ([]domain.ConversationTurn, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	turns, ok := c.sessions[sessionID]
	return turns, ok, nil
}

func (c *stubTurnCache) SetSession(_ context.Context, sessionID string, turns []domain.ConversationTurn, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets++
	if c.setErr != nil {
		return c.setErr
	}
	c.sessions[sessionID] = append([]domain.ConversationTurn(nil), turns...)
	return nil
}

func (c *stubTurnCache) Invalidate(_ context.Context, sessionID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, sessionID)
	return nil
}

func (c *stubTurnCache) Close() error { return nil }

var _ driven.TurnCache = (*stubTurnCache)(nil)

// failingConvStore fails every durable operation.
type failingConvStore struct{}

func (failingConvStore) AppendTurn(_ context.Context, _ *domain.ConversationTurn) error {
	return errors.New("store unavailable")
}

func (failingConvStore) GetSession(_ context.Context, _ string) ([]domain.ConversationTurn, error) {
	return nil, errors.New("store unavailable")
}

// countingConvStore counts durable reads.
type countingConvStore struct {
	driven.ConversationStore
	reads int
}

func (s *countingConvStore) GetSession(ctx context.Context, sessionID string) ([]domain.ConversationTurn, error) {
	s.reads++
	return s.ConversationStore.GetSession(ctx, sessionID)
}

func userTurn(sessionID, content string) *domain.ConversationTurn {
	return &domain.ConversationTurn{
		SessionID: sessionID,
		Role:      domain.RoleUser,
		Content:   content,
	}
}

func TestConversations_AppendAndLoad(t *testing.T) {
	store := memory.NewConversationStore()
	cache := newStubTurnCache()
	convs := NewConversations(store, cache)
	ctx := context.Background()

	require.NoError(t, convs.AppendTurn(ctx, userTurn("sess-1", "first question")))
	require.NoError(t, convs.AppendTurn(ctx, &domain.ConversationTurn{
		SessionID: "sess-1",
		Role:      domain.RoleAssistant,
		Content:   "an answer",
	}))

	turns, err := convs.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	assert.Equal(t, "first question", turns[0].Content)
	assert.Equal(t, domain.RoleAssistant, turns[1].Role)
	assert.NotEmpty(t, turns[0].ID)
	assert.False(t, turns[0].CreatedAt.IsZero())
}

func TestConversations_AppendTurn_CacheFailureAbsorbed(t *testing.T) {
	store := memory.NewConversationStore()
	cache := newStubTurnCache()
	cache.setErr = errors.New("redis down")
	convs := NewConversations(store, cache)
	ctx := context.Background()

	require.NoError(t, convs.AppendTurn(ctx, userTurn("sess-1", "hello")))

	// Durable write happened even though the cache refresh failed.
	turns, err := store.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestConversations_AppendTurn_DurableFailurePropagates(t *testing.T) {
	cache := newStubTurnCache()
	convs := NewConversations(failingConvStore{}, cache)

	err := convs.AppendTurn(context.Background(), userTurn("sess-1", "hello"))

	require.Error(t, err)
	assert.Zero(t, cache.sets)
}

func TestConversations_LoadSession_ColdCacheFallsBackAndRepopulates(t *testing.T) {
	store := memory.NewConversationStore()
	cache := newStubTurnCache()
	ctx := context.Background()
	require.NoError(t, store.AppendTurn(ctx, userTurn("sess-1", "seed")))

	convs := NewConversations(store, cache)
	turns, err := convs.LoadSession(ctx, "sess-1")

	require.NoError(t, err)
	require.Len(t, turns, 1)
	cached, hit, err := cache.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, cached, 1)
}

func TestConversations_LoadSession_CacheErrorFallsBack(t *testing.T) {
	store := memory.NewConversationStore()
	cache := newStubTurnCache()
	cache.getErr = errors.New("redis down")
	ctx := context.Background()
	require.NoError(t, store.AppendTurn(ctx, userTurn("sess-1", "seed")))

	convs := NewConversations(store, cache)
	turns, err := convs.LoadSession(ctx, "sess-1")

	require.NoError(t, err)
	assert.Len(t, turns, 1)
}

func TestConversations_LoadSession_CacheHitSkipsDurableRead(t *testing.T) {
	store := &countingConvStore{ConversationStore: memory.NewConversationStore()}
	cache := newStubTurnCache()
	ctx := context.Background()
	require.NoError(t, cache.SetSession(ctx, "sess-1", []domain.ConversationTurn{
		{SessionID: "sess-1", Content: "warm"},
	}, time.Minute))

	convs := NewConversations(store, cache)
	turns, err := convs.LoadSession(ctx, "sess-1")

	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "warm", turns[0].Content)
	assert.Zero(t, store.reads, "a warm projection must answer without a durable round trip")
}

func TestConversations_AppendTurn_RefreshesProjection(t *testing.T) {
	store := memory.NewConversationStore()
	cache := newStubTurnCache()
	convs := NewConversations(store, cache)
	ctx := context.Background()

	require.NoError(t, convs.AppendTurn(ctx, userTurn("sess-1", "one")))
	require.NoError(t, convs.AppendTurn(ctx, userTurn("sess-1", "two")))

	// Every durable append rewrites the projection, so the cached
	// session never lags a successful write.
	cached, hit, err := cache.GetSession(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, hit)
	require.Len(t, cached, 2)
	assert.Equal(t, "two", cached[1].Content)

	turns, err := convs.LoadSession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Len(t, turns, 2)
}

func TestConversations_LoadSession_DurableDownServesWarmCache(t *testing.T) {
	cache := newStubTurnCache()
	ctx := context.Background()
	require.NoError(t, cache.SetSession(ctx, "sess-1", []domain.ConversationTurn{
		{SessionID: "sess-1", Content: "warm"},
	}, time.Minute))

	convs := NewConversations(failingConvStore{}, cache)
	turns, err := convs.LoadSession(ctx, "sess-1")

	require.NoError(t, err)
	require.Len(t, turns, 1)
	assert.Equal(t, "warm", turns[0].Content)
}

func TestConversations_LoadSession_UnknownSessionEmpty(t *testing.T) {
	convs := NewConversations(memory.NewConversationStore(), nil)

	turns, err := convs.LoadSession(context.Background(), "ghost")

	require.NoError(t, err)
	assert.Empty(t, turns)
}

func TestConversations_SelectionCarriedForward(t *testing.T) {
	store := memory.NewConversationStore()
	convs := NewConversations(store, nil)
	ctx := context.Background()

	first := userTurn("sess-1", "compare the two designs")
	first.Retrieval = &domain.TurnRetrieval{
		SelectedDocumentIDs: []string{"doc-1", "doc-2"},
	}
	require.NoError(t, convs.AppendTurn(ctx, first))

	second := userTurn("sess-1", "which one is cheaper?")
	require.NoError(t, convs.AppendTurn(ctx, second))

	require.NotNil(t, second.Retrieval)
	assert.Equal(t, []string{"doc-1", "doc-2"}, second.Retrieval.SelectedDocumentIDs)

	selection, err := convs.SelectedDocuments(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"doc-1", "doc-2"}, selection)
}

func TestConversations_SelectionNotOverwritten(t *testing.T) {
	store := memory.NewConversationStore()
	convs := NewConversations(store, nil)
	ctx := context.Background()

	first := userTurn("sess-1", "question")
	first.Retrieval = &domain.TurnRetrieval{SelectedDocumentIDs: []string{"doc-1"}}
	require.NoError(t, convs.AppendTurn(ctx, first))

	second := userTurn("sess-1", "narrower question")
	second.Retrieval = &domain.TurnRetrieval{SelectedDocumentIDs: []string{"doc-9"}}
	require.NoError(t, convs.AppendTurn(ctx, second))

	assert.Equal(t, []string{"doc-9"}, second.Retrieval.SelectedDocumentIDs)
}

func TestConversations_AppendTurn_Validation(t *testing.T) {
	convs := NewConversations(memory.NewConversationStore(), nil)

	assert.ErrorIs(t, convs.AppendTurn(context.Background(), nil), domain.ErrInvalidInput)
	assert.ErrorIs(t, convs.AppendTurn(context.Background(), &domain.ConversationTurn{}), domain.ErrInvalidInput)

	_, err := convs.LoadSession(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
