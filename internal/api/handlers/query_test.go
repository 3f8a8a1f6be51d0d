package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-data/prism/internal/config"
	"github.com/prism-data/prism/internal/nlquery"
	"github.com/prism-data/prism/internal/rerank"
	"github.com/prism-data/prism/internal/search"
	"github.com/prism-data/prism/internal/vectorstore"
)

type stubEmbedder struct{}

func (stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

type passthroughReranker struct{}

func (passthroughReranker) Rerank(ctx context.Context, query string, docs []rerank.Document, topN int) []rerank.Ranked {
	out := make([]rerank.Ranked, len(docs))
	for i, d := range docs {
		out[i] = rerank.Ranked{ID: d.ID, Text: d.Text, Score: rerank.SentinelScore}
	}
	return out
}

type echoStrategy struct{}

func (echoStrategy) Type() string { return "warehouse" }

func (echoStrategy) Execute(ctx context.Context, query string, opts nlquery.Options) (*nlquery.Result, error) {
	return &nlquery.Result{
		GeneratedQuery: "SELECT 1",
		Rows:           []map[string]interface{}{{"answer": query}},
	}, nil
}

func newTestHandler(t *testing.T) *QueryHandler {
	t.Helper()

	store := vectorstore.NewMemoryStore()
	err := store.Upsert(context.Background(), nlquery.KnowledgeCollection("ds1"), []vectorstore.Point{
		{ID: "c1", Content: "revenue grew ten percent", Embedding: []float32{1, 0}},
	})
	require.NoError(t, err)

	router := search.NewRouter(store, stubEmbedder{}, passthroughReranker{},
		search.StaticCatalog{}, config.SearchConfig{TopK: 5}, config.RerankConfig{}, nil)

	registry := nlquery.NewRegistry()
	require.NoError(t, registry.Register("warehouse", echoStrategy{}))

	return NewQueryHandler(router, registry, nil)
}

func TestQueryHandlerSearch(t *testing.T) {
	h := newTestHandler(t)

	t.Run("returns matches for known source", func(t *testing.T) {
		body := `{"query": "how did revenue do", "data_source_id": "ds1"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.Search(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp search.Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.Empty(t, resp.Error)
		require.Len(t, resp.Matches, 1)
		assert.Equal(t, "c1", resp.Matches[0].ID)
	})

	t.Run("missing query is a 400", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(`{}`))
		rec := httptest.NewRecorder()

		h.Search(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("unknown source is still a 200 with error payload", func(t *testing.T) {
		body := `{"query": "anything", "data_source_id": "nope"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/query", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.Search(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var resp search.Response
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
		assert.NotEmpty(t, resp.Error)
		assert.Empty(t, resp.Matches)
	})
}

func TestQueryHandlerNLQuery(t *testing.T) {
	h := newTestHandler(t)

	t.Run("dispatches to registered strategy", func(t *testing.T) {
		body := `{"query": "total orders", "options": {"data_source_type": "warehouse"}}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/nlquery", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.NLQuery(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		var result nlquery.Result
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&result))
		assert.Equal(t, "SELECT 1", result.GeneratedQuery)
		require.Len(t, result.Rows, 1)
	})

	t.Run("unknown type is a 404 listing supported types", func(t *testing.T) {
		body := `{"query": "hi", "options": {"data_source_type": "spreadsheet"}}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/nlquery", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.NLQuery(rec, req)

		require.Equal(t, http.StatusNotFound, rec.Code)
		var payload map[string]interface{}
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&payload))
		assert.Contains(t, payload["supported_types"], "warehouse")
	})

	t.Run("missing type is a 400", func(t *testing.T) {
		body := `{"query": "hi"}`
		req := httptest.NewRequest(http.MethodPost, "/api/v1/nlquery", strings.NewReader(body))
		rec := httptest.NewRecorder()

		h.NLQuery(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
