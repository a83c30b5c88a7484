package cohere

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quarrydocs/quarry/internal/core/domain"
	"github.com/quarrydocs/quarry/internal/core/ports/driven"
)

func TestNewRerankService_RequiresAPIKey(t *testing.T) {
	_, err := NewRerankService(Config{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrInvalidProviderConfig))
}

func TestRerank(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/rerank", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var req rerankRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "widget tolerances", req.Query)
		assert.Len(t, req.Documents, 3)
		assert.Equal(t, 2, req.TopN)

		_, _ = w.Write([]byte(`{"results": [
			{"index": 2, "relevance_score": 0.97},
			{"index": 0, "relevance_score": 0.41}
		]}`))
	}))
	defer srv.Close()

	svc, err := NewRerankService(Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	docs := []driven.RerankDocument{
		{ID: "a", Text: "widgets are calibrated"},
		{ID: "b", Text: "unrelated"},
		{ID: "c", Text: "tolerance is 0.2mm"},
	}
	scores, err := svc.Rerank(context.Background(), "widget tolerances", docs, 2)
	require.NoError(t, err)

	require.Len(t, scores, 2)
	assert.Equal(t, driven.RerankScore{Index: 2, Score: 0.97}, scores[0])
	assert.Equal(t, driven.RerankScore{Index: 0, Score: 0.41}, scores[1])
}

func TestRerank_EmptyDocs(t *testing.T) {
	svc, err := NewRerankService(Config{APIKey: "key"})
	require.NoError(t, err)

	scores, err := svc.Rerank(context.Background(), "query", nil, 5)
	require.NoError(t, err)
	assert.Nil(t, scores)
}

func TestRerank_ServerErrorIsTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	svc, err := NewRerankService(Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.Rerank(context.Background(), "query", []driven.RerankDocument{{ID: "a", Text: "x"}}, 1)
	require.Error(t, err)
	assert.True(t, domain.IsTransient(err))
}

func TestRerank_IndexOutOfRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"results": [{"index": 5, "relevance_score": 0.9}]}`))
	}))
	defer srv.Close()

	svc, err := NewRerankService(Config{APIKey: "key", BaseURL: srv.URL})
	require.NoError(t, err)

	_, err = svc.Rerank(context.Background(), "query", []driven.RerankDocument{{ID: "a", Text: "x"}}, 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of range")
}
