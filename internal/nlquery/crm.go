package nlquery

import (
	"context"
	"fmt"
	"time"

	"github.com/prism-data/prism/internal/vectorstore"
)

// Embedder matches embedding.Service.
type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// CRMStrategy answers questions against API-backed sources (CRMs and
// similar) where SQL generation is meaningless: it searches the source's
// knowledge collection semantically and returns the matched records.
type CRMStrategy struct {
	store    vectorstore.Store
	embedder Embedder
	topK     int
}

func NewCRMStrategy(store vectorstore.Store, embedder Embedder, topK int) *CRMStrategy {
	if topK <= 0 {
		topK = 10
	}
	return &CRMStrategy{store: store, embedder: embedder, topK: topK}
}

func (s *CRMStrategy) Type() string { return "crm" }

// KnowledgeCollection derives the chunk collection for a data source.
func KnowledgeCollection(dataSourceID string) string {
	return fmt.Sprintf("datasource_%s", dataSourceID)
}

func (s *CRMStrategy) Execute(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()

	if !opts.KnowledgeCollectionsEnabled() {
		return &Result{
			Rows:      nil,
			Reasoning: "knowledge collections disabled for this request; nothing to search",
			Timing:    Timing{TotalMs: time.Since(start).Milliseconds()},
		}, nil
	}
	if opts.DataSourceID == "" {
		return nil, fmt.Errorf("crm strategy requires a data source id")
	}

	vector, err := s.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	collection := KnowledgeCollection(opts.DataSourceID)
	execStart := time.Now()
	matches, err := s.store.Search(ctx, collection, vector, vectorstore.SearchOptions{TopK: s.topK})
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	executionMs := time.Since(execStart).Milliseconds()

	rows := make([]map[string]interface{}, len(matches))
	for i, m := range matches {
		rows[i] = map[string]interface{}{
			"id":      m.ID,
			"content": m.Content,
			"score":   m.Score,
			"payload": m.Payload,
		}
	}

	result := &Result{
		Rows: rows,
		Timing: Timing{
			ExecutionMs: executionMs,
			TotalMs:     time.Since(start).Milliseconds(),
		},
	}
	if opts.IncludeReasoning {
		result.Reasoning = fmt.Sprintf("semantic search over %s returned %d records", collection, len(rows))
	}
	return result, nil
}
