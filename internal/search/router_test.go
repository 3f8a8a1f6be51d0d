package search

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-data/prism/internal/config"
	"github.com/prism-data/prism/internal/events"
	"github.com/prism-data/prism/internal/rerank"
	"github.com/prism-data/prism/internal/rowindex"
	"github.com/prism-data/prism/internal/vectorstore"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return s.vec, s.err
}

type stubReranker struct {
	called  bool
	topN    int
	ranked  []rerank.Ranked
	degrade bool
}

func (s *stubReranker) Rerank(ctx context.Context, query string, docs []rerank.Document, topN int) []rerank.Ranked {
	s.called = true
	s.topN = topN
	if s.ranked != nil {
		return s.ranked
	}
	out := make([]rerank.Ranked, len(docs))
	for i, d := range docs {
		score := 1.0 - float64(i)*0.1
		if s.degrade {
			score = rerank.SentinelScore
		}
		out[i] = rerank.Ranked{ID: d.ID, Text: d.Text, Score: score}
	}
	return out
}

type captureSink struct {
	events []events.QueryEvent
}

func (c *captureSink) QueryCompleted(_ context.Context, ev events.QueryEvent) {
	c.events = append(c.events, ev)
}

func ordersTable() rowindex.TableRef {
	return rowindex.TableRef{DataSourceID: "ds1", Database: "main", Schema: "public", Table: "orders"}
}

func newTestRouter(store vectorstore.Store, reranker Reranker, sink events.Sink) *Router {
	return NewRouter(store, stubEmbedder{vec: []float32{1, 0}}, reranker,
		StaticCatalog{ordersTable()}, config.SearchConfig{TopK: 5}, config.RerankConfig{}, sink)
}

func seedChunks(t *testing.T, store *vectorstore.MemoryStore) {
	t.Helper()
	require.NoError(t, store.Upsert(context.Background(), "datasource_ds1", []vectorstore.Point{
		{ID: "c1", Content: "amount: 10\ncustomer: acme", Embedding: []float32{1, 0}},
		{ID: "c2", Content: "amount: 15\ncustomer: globex", Embedding: []float32{0.9, 0.1}},
		{ID: "c3", Content: "unrelated notes", Embedding: []float32{0, 1}},
	}))
}

func TestRouterExactAggregation(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedRowCollection(t, store, rowindex.CollectionName(ordersTable()), []float64{5, 10, 15})
	reranker := &stubReranker{}
	sink := &captureSink{}
	r := newTestRouter(store, reranker, sink)

	resp := r.Query(context.Background(), Request{Query: "total amount of orders", DataSourceID: "ds1"})

	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Aggregation)
	assert.InDelta(t, 30.0, resp.Aggregation.Value, 1e-9)
	assert.Equal(t, ConfidenceExact, resp.Confidence)
	assert.False(t, reranker.called, "exact aggregation must skip reranking")
	assert.Zero(t, resp.Timing.RerankMs)

	require.Len(t, sink.events, 1)
	assert.Equal(t, ConfidenceExact, sink.events[0].Path)
}

func TestRouterAggregationFallback(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedChunks(t, store) // chunk collection only, no row-level data
	r := newTestRouter(store, &stubReranker{}, nil)

	resp := r.Query(context.Background(), Request{Query: "total amount of orders", DataSourceID: "ds1"})

	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Aggregation)
	assert.InDelta(t, 25.0, resp.Aggregation.Value, 1e-9)
	assert.Equal(t, ConfidenceApproximate, resp.Confidence)
	assert.Contains(t, resp.Reasoning, "no row-level collection")
}

func TestRouterSemanticPath(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedChunks(t, store)

	t.Run("reranked order wins", func(t *testing.T) {
		reranker := &stubReranker{ranked: []rerank.Ranked{
			{ID: "c2", Text: "amount: 15\ncustomer: globex", Score: 0.95},
			{ID: "c1", Text: "amount: 10\ncustomer: acme", Score: 0.4},
		}}
		r := newTestRouter(store, reranker, nil)

		resp := r.Query(context.Background(), Request{Query: "who is globex", DataSourceID: "ds1"})

		require.Empty(t, resp.Error)
		require.Len(t, resp.Matches, 2)
		assert.Equal(t, "c2", resp.Matches[0].ID)
		assert.Equal(t, 0.95, resp.Matches[0].Score)
		assert.Equal(t, ConfidenceSemantic, resp.Confidence)
		assert.True(t, reranker.called)
	})

	t.Run("rerank degradation keeps retrieval order and scores", func(t *testing.T) {
		reranker := &stubReranker{degrade: true}
		r := newTestRouter(store, reranker, nil)

		resp := r.Query(context.Background(), Request{Query: "tell me about acme", DataSourceID: "ds1"})

		require.Empty(t, resp.Error)
		require.NotEmpty(t, resp.Matches)
		// Sentinel scores are replaced by the retrieval similarity scores.
		for _, m := range resp.Matches {
			assert.NotEqual(t, rerank.SentinelScore, m.Score)
		}
		assert.Equal(t, "c1", resp.Matches[0].ID)
	})
}

func TestRouterRetrieveFailureIsTerminal(t *testing.T) {
	store := vectorstore.NewMemoryStore() // no collections at all
	r := newTestRouter(store, &stubReranker{}, nil)

	resp := r.Query(context.Background(), Request{Query: "tell me about acme", DataSourceID: "missing"})

	assert.NotEmpty(t, resp.Error)
	assert.Empty(t, resp.Matches)
	assert.GreaterOrEqual(t, resp.Timing.TotalMs, int64(0))
	assert.NotEmpty(t, resp.Reasoning)
}

func TestRouterRerankTopN(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedChunks(t, store)

	t.Run("configured cap reaches the reranker", func(t *testing.T) {
		reranker := &stubReranker{}
		r := NewRouter(store, stubEmbedder{vec: []float32{1, 0}}, reranker,
			StaticCatalog{ordersTable()}, config.SearchConfig{TopK: 5},
			config.RerankConfig{TopN: 2}, nil)

		resp := r.Query(context.Background(), Request{Query: "tell me about acme", DataSourceID: "ds1"})

		require.Empty(t, resp.Error)
		require.True(t, reranker.called)
		assert.Equal(t, 2, reranker.topN)
	})

	t.Run("unset cap falls back to retrieval top-k", func(t *testing.T) {
		reranker := &stubReranker{}
		r := NewRouter(store, stubEmbedder{vec: []float32{1, 0}}, reranker,
			StaticCatalog{ordersTable()}, config.SearchConfig{TopK: 5},
			config.RerankConfig{}, nil)

		resp := r.Query(context.Background(), Request{Query: "tell me about acme", DataSourceID: "ds1"})

		require.Empty(t, resp.Error)
		assert.Equal(t, 5, reranker.topN)
	})
}

func TestRouterEmbeddingFailure(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedChunks(t, store)
	r := NewRouter(store, stubEmbedder{err: errors.New("embedding provider down")}, &stubReranker{},
		StaticCatalog{ordersTable()}, config.SearchConfig{}, config.RerankConfig{}, nil)

	resp := r.Query(context.Background(), Request{Query: "tell me about acme", DataSourceID: "ds1"})

	assert.Contains(t, resp.Error, "embedding provider down")
	assert.Contains(t, resp.Reasoning, "embedding")
}

func TestRouterNeverPanics(t *testing.T) {
	store := vectorstore.NewMemoryStore()
	seedChunks(t, store)
	r := NewRouter(store, panicEmbedder{}, &stubReranker{},
		StaticCatalog{ordersTable()}, config.SearchConfig{}, config.RerankConfig{}, nil)

	resp := r.Query(context.Background(), Request{Query: "anything", DataSourceID: "ds1"})

	require.NotNil(t, resp)
	assert.Contains(t, resp.Error, "internal error")
}

type panicEmbedder struct{}

func (panicEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	panic("boom")
}

func TestRouterAggregationCorrectness(t *testing.T) {
	// Full-scan aggregation over row payloads must equal direct summation.
	store := vectorstore.NewMemoryStore()
	amounts := make([]float64, 113)
	var direct float64
	for i := range amounts {
		amounts[i] = float64(i) * 1.5
		direct += amounts[i]
	}
	seedRowCollection(t, store, rowindex.CollectionName(ordersTable()), amounts)
	r := newTestRouter(store, &stubReranker{}, nil)

	resp := r.Query(context.Background(), Request{Query: "sum of amount in orders", DataSourceID: "ds1"})

	require.Empty(t, resp.Error)
	require.NotNil(t, resp.Aggregation)
	assert.InDelta(t, direct, resp.Aggregation.Value, 1e-6)
	assert.EqualValues(t, len(amounts), resp.Aggregation.RowCount)
}
