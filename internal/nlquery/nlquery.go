package nlquery

import (
	"context"
	"errors"
)

// ErrStrategyNotFound distinguishes "no strategy registered for this data
// source type" from a query that failed against a supported source.
var ErrStrategyNotFound = errors.New("no query strategy registered for data source type")

// Options tunes one natural-language query execution. Zero values take the
// documented defaults.
type Options struct {
	DataSourceType   string   `json:"data_source_type"`
	DataSourceID     string   `json:"data_source_id,omitempty"`
	Model            string   `json:"model,omitempty"`
	Temperature      float64  `json:"temperature,omitempty"`
	MaxTokens        int      `json:"max_tokens,omitempty"`
	FilterTables     []string `json:"filter_tables,omitempty"`
	IncludeReasoning bool     `json:"include_reasoning,omitempty"`

	// UseKnowledgeCollections defaults to true when unset.
	UseKnowledgeCollections *bool `json:"use_knowledge_collections,omitempty"`
}

// KnowledgeCollectionsEnabled resolves the tri-state option to its default.
func (o Options) KnowledgeCollectionsEnabled() bool {
	if o.UseKnowledgeCollections == nil {
		return true
	}
	return *o.UseKnowledgeCollections
}

// Timing is the per-phase breakdown of one execution. A partially filled
// Timing next to a populated Error is expected on failure.
type Timing struct {
	GenerationMs int64 `json:"generation_ms"`
	ExecutionMs  int64 `json:"execution_ms"`
	TotalMs      int64 `json:"total_ms"`
}

// Result is the outcome of one natural-language query execution. It is
// always returned, with Error populated and Rows nil on failure.
type Result struct {
	GeneratedQuery string                   `json:"generated_query,omitempty"`
	Rows           []map[string]interface{} `json:"rows"`
	Reasoning      string                   `json:"reasoning,omitempty"`
	Timing         Timing                   `json:"timing"`
	Error          string                   `json:"error,omitempty"`
}

// Strategy turns a natural-language question into an executable query and
// result for one data-source type.
type Strategy interface {
	Type() string
	Execute(ctx context.Context, query string, opts Options) (*Result, error)
}
