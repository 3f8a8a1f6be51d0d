package nlquery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/prism-data/prism/internal/llm"
)

// SQLBackend is the slice of the warehouse client this strategy needs.
type SQLBackend interface {
	Execute(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error)
	SchemaSummary(ctx context.Context, tables []string) (string, error)
}

// WarehouseStrategy answers questions against relational sources by
// generating a single SELECT with the LLM gateway and executing it.
type WarehouseStrategy struct {
	gateway      llm.Gateway
	backend      SQLBackend
	defaultModel string
}

func NewWarehouseStrategy(gw llm.Gateway, backend SQLBackend, defaultModel string) *WarehouseStrategy {
	if defaultModel == "" {
		defaultModel = "gpt-4o-mini"
	}
	return &WarehouseStrategy{gateway: gw, backend: backend, defaultModel: defaultModel}
}

func (s *WarehouseStrategy) Type() string { return "warehouse" }

func (s *WarehouseStrategy) Execute(ctx context.Context, query string, opts Options) (*Result, error) {
	start := time.Now()

	schema, err := s.backend.SchemaSummary(ctx, opts.FilterTables)
	if err != nil {
		return nil, fmt.Errorf("describe schema: %w", err)
	}

	model := opts.Model
	if model == "" {
		model = s.defaultModel
	}

	genStart := time.Now()
	resp, err := s.gateway.Chat(ctx, llm.ChatRequest{
		Model: model,
		Messages: []llm.Message{
			{
				Role: "system",
				Content: `You translate questions into PostgreSQL. Respond with ONLY one SELECT
statement, no explanation, no markdown. Never write data. Use only the
tables and columns provided.`,
			},
			{
				Role:    "user",
				Content: fmt.Sprintf("Schema:\n%s\nQuestion: %s", schema, query),
			},
		},
		Temperature: opts.Temperature,
		MaxTokens:   opts.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("generate sql: %w", err)
	}
	generationMs := time.Since(genStart).Milliseconds()

	sql := stripCodeFences(resp.Content)
	if sql == "" {
		return nil, fmt.Errorf("model returned empty query")
	}

	execStart := time.Now()
	rows, err := s.backend.Execute(ctx, sql)
	if err != nil {
		// Surface the generated query so the caller can see what failed.
		return &Result{
			GeneratedQuery: sql,
			Rows:           nil,
			Reasoning:      "generated SQL failed to execute",
			Timing: Timing{
				GenerationMs: generationMs,
				TotalMs:      time.Since(start).Milliseconds(),
			},
			Error: err.Error(),
		}, nil
	}
	executionMs := time.Since(execStart).Milliseconds()

	result := &Result{
		GeneratedQuery: sql,
		Rows:           rows,
		Timing: Timing{
			GenerationMs: generationMs,
			ExecutionMs:  executionMs,
			TotalMs:      time.Since(start).Milliseconds(),
		},
	}
	if opts.IncludeReasoning {
		result.Reasoning = fmt.Sprintf("generated SQL with %s and executed it against the warehouse (%d rows)",
			model, len(rows))
	}
	return result, nil
}

func stripCodeFences(content string) string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```sql")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	return strings.TrimSpace(content)
}
