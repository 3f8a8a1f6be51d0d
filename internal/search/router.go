package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prism-data/prism/internal/config"
	"github.com/prism-data/prism/internal/events"
	"github.com/prism-data/prism/internal/nlquery"
	"github.com/prism-data/prism/internal/rerank"
	"github.com/prism-data/prism/internal/rowindex"
	"github.com/prism-data/prism/internal/vectorstore"
)

// Confidence labels which retrieval path produced the result.
const (
	ConfidenceExact       = "exact"       // full scan over complete row payloads
	ConfidenceApproximate = "approximate" // chunk-based fallback, lower fidelity
	ConfidenceSemantic    = "semantic"    // similarity lookup, reranked
)

// Embedder matches embedding.Service.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// Reranker matches rerank.Client.
type Reranker interface {
	Rerank(ctx context.Context, query string, docs []rerank.Document, topN int) []rerank.Ranked
}

// Catalog reports the tables known for a data source, so the classifier
// can recognize aggregation targets.
type Catalog interface {
	Tables(ctx context.Context, dataSourceID string) ([]rowindex.TableRef, error)
}

// StaticCatalog is a fixed table list, used in tests and for sources whose
// schema is known at startup.
type StaticCatalog []rowindex.TableRef

func (c StaticCatalog) Tables(context.Context, string) ([]rowindex.TableRef, error) {
	return c, nil
}

// Request is one hybrid search invocation.
type Request struct {
	Query        string `json:"query"`
	DataSourceID string `json:"data_source_id"`
	TopK         int    `json:"top_k,omitempty"`
}

// Match is one ranked candidate from the semantic path.
type Match struct {
	ID      string                 `json:"id"`
	Content string                 `json:"content"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Timing is the per-phase wall-clock breakdown. On failure the phases that
// never ran stay zero; partial timing is expected.
type Timing struct {
	ClassifyMs int64 `json:"classify_ms"`
	RetrieveMs int64 `json:"retrieve_ms"`
	RerankMs   int64 `json:"rerank_ms"`
	TotalMs    int64 `json:"total_ms"`
}

// Response is always returned, never a bare error: on failure Error is
// populated, results are nil, and Reasoning names the stage that failed.
type Response struct {
	Matches     []Match            `json:"matches,omitempty"`
	Aggregation *AggregationResult `json:"aggregation,omitempty"`
	Confidence  string             `json:"confidence,omitempty"`
	Reasoning   string             `json:"reasoning,omitempty"`
	Timing      Timing             `json:"timing"`
	Error       string             `json:"error,omitempty"`
}

// Router orchestrates one query through Classify, SelectStrategy,
// Retrieve, Rerank and Assemble. All state is read-only after
// construction, so concurrent queries need no locking.
type Router struct {
	store           vectorstore.Store
	embedder        Embedder
	reranker        Reranker
	catalog         Catalog
	classifier      *Classifier
	sink            events.Sink
	topK            int
	rerankTopN      int
	retrieveTimeout time.Duration
}

func NewRouter(store vectorstore.Store, embedder Embedder, reranker Reranker, catalog Catalog, cfg config.SearchConfig, rerankCfg config.RerankConfig, sink events.Sink) *Router {
	topK := cfg.TopK
	if topK <= 0 {
		topK = 10
	}
	rerankTopN := rerankCfg.TopN
	if rerankTopN <= 0 {
		rerankTopN = topK
	}
	timeout := time.Duration(cfg.RetrieveTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	return &Router{
		store:           store,
		embedder:        embedder,
		reranker:        reranker,
		catalog:         catalog,
		classifier:      NewClassifier(splitKeywords(cfg.AggregationKeywords)),
		sink:            sink,
		topK:            topK,
		rerankTopN:      rerankTopN,
		retrieveTimeout: timeout,
	}
}

// Query runs the full pipeline. It never panics and never returns nil.
func (r *Router) Query(ctx context.Context, req Request) (resp *Response) {
	start := time.Now()
	timing := Timing{}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("query pipeline panicked", "query", req.Query, "panic", rec)
			timing.TotalMs = time.Since(start).Milliseconds()
			resp = &Response{
				Reasoning: "query pipeline failed unexpectedly",
				Timing:    timing,
				Error:     fmt.Sprintf("internal error: %v", rec),
			}
		}
		r.sink.QueryCompleted(ctx, events.QueryEvent{
			Query:        req.Query,
			DataSourceID: req.DataSourceID,
			Path:         resp.Confidence,
			DurationMs:   resp.Timing.TotalMs,
			Error:        resp.Error,
			CompletedAt:  time.Now().UTC(),
		})
	}()

	// Classify
	classifyStart := time.Now()
	tables, err := r.catalog.Tables(ctx, req.DataSourceID)
	if err != nil {
		slog.Warn("table catalog unavailable, treating query as semantic",
			"data_source_id", req.DataSourceID, "error", err)
		tables = nil
	}
	cls := r.classifier.Classify(req.Query, tables)
	timing.ClassifyMs = time.Since(classifyStart).Milliseconds()

	if cls.IsAggregation {
		return r.runAggregation(ctx, req, cls, start, timing)
	}
	return r.runSemantic(ctx, req, start, timing)
}

// runAggregation selects the exact row-level path when the table's row
// collection exists, and otherwise falls back to chunk-based approximation.
func (r *Router) runAggregation(ctx context.Context, req Request, cls Classification, start time.Time, timing Timing) *Response {
	rowCollection := rowindex.CollectionName(*cls.Table)

	exists, err := r.store.CollectionExists(ctx, rowCollection)
	if err != nil {
		slog.Warn("row collection existence check failed, falling back to chunks",
			"collection", rowCollection, "error", err)
		exists = false
	}

	retrieveCtx, cancel := context.WithTimeout(ctx, r.retrieveTimeout)
	defer cancel()

	retrieveStart := time.Now()
	if exists {
		agg, err := aggregateRowCollection(retrieveCtx, r.store, rowCollection, cls.Op, req.Query)
		timing.RetrieveMs = time.Since(retrieveStart).Milliseconds()
		timing.TotalMs = time.Since(start).Milliseconds()
		if err != nil {
			return errorResponse(timing, "full-scan aggregation failed", err)
		}
		return &Response{
			Aggregation: agg,
			Confidence:  ConfidenceExact,
			Reasoning: fmt.Sprintf("computed %s over %d complete rows of %s via full scan",
				agg.Op, agg.RowCount, cls.Table.Table),
			Timing: timing,
		}
	}

	chunkCollection := nlquery.KnowledgeCollection(req.DataSourceID)
	agg, err := aggregateChunkCollection(retrieveCtx, r.store, chunkCollection, cls.Op, req.Query)
	timing.RetrieveMs = time.Since(retrieveStart).Milliseconds()
	timing.TotalMs = time.Since(start).Milliseconds()
	if err != nil {
		return errorResponse(timing, "aggregation failed: no row-level data and chunk fallback found nothing", err)
	}
	return &Response{
		Aggregation: agg,
		Confidence:  ConfidenceApproximate,
		Reasoning: fmt.Sprintf("no row-level collection for %s; approximated %s from chunked text, which may undercount the source data",
			cls.Table.Table, agg.Op),
		Timing: timing,
	}
}

func (r *Router) runSemantic(ctx context.Context, req Request, start time.Time, timing Timing) *Response {
	collection := nlquery.KnowledgeCollection(req.DataSourceID)

	retrieveCtx, cancel := context.WithTimeout(ctx, r.retrieveTimeout)
	defer cancel()

	topK := req.TopK
	if topK <= 0 {
		topK = r.topK
	}

	retrieveStart := time.Now()
	vector, err := r.embedder.EmbedSingle(retrieveCtx, req.Query)
	if err != nil {
		timing.RetrieveMs = time.Since(retrieveStart).Milliseconds()
		timing.TotalMs = time.Since(start).Milliseconds()
		return errorResponse(timing, "query embedding failed", err)
	}

	results, err := r.store.Search(retrieveCtx, collection, vector, vectorstore.SearchOptions{TopK: topK})
	timing.RetrieveMs = time.Since(retrieveStart).Milliseconds()
	if err != nil {
		timing.TotalMs = time.Since(start).Milliseconds()
		if errors.Is(err, vectorstore.ErrCollectionNotFound) {
			return errorResponse(timing, "no indexed content for this data source", err)
		}
		return errorResponse(timing, "retrieval failed", err)
	}

	// Rerank; degraded ordering (sentinel scores) keeps retrieval order.
	rerankStart := time.Now()
	docs := make([]rerank.Document, len(results))
	for i, m := range results {
		docs[i] = rerank.Document{ID: m.ID, Text: m.Content}
	}
	ranked := r.reranker.Rerank(ctx, req.Query, docs, r.rerankTopN)
	timing.RerankMs = time.Since(rerankStart).Milliseconds()

	byID := make(map[string]vectorstore.SearchResult, len(results))
	for _, m := range results {
		byID[m.ID] = m
	}
	matches := make([]Match, 0, len(ranked))
	for _, rk := range ranked {
		orig := byID[rk.ID]
		score := rk.Score
		if score == rerank.SentinelScore {
			score = orig.Score
		}
		matches = append(matches, Match{
			ID:      rk.ID,
			Content: rk.Text,
			Score:   score,
			Payload: orig.Payload,
		})
	}

	timing.TotalMs = time.Since(start).Milliseconds()
	return &Response{
		Matches:    matches,
		Confidence: ConfidenceSemantic,
		Reasoning:  fmt.Sprintf("semantic retrieval over %s, %d candidates reranked", collection, len(matches)),
		Timing:     timing,
	}
}

func errorResponse(timing Timing, stage string, err error) *Response {
	return &Response{
		Reasoning: stage,
		Timing:    timing,
		Error:     err.Error(),
	}
}

func splitKeywords(csv string) []string {
	if csv == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(csv, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
