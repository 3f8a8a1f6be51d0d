package nlquery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-data/prism/internal/llm"
)

type fakeGateway struct {
	content string
	err     error
	lastReq llm.ChatRequest
}

func (f *fakeGateway) Chat(ctx context.Context, req llm.ChatRequest) (*llm.ChatResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.ChatResponse{Content: f.content, Model: req.Model}, nil
}

func (f *fakeGateway) Embed(ctx context.Context, req llm.EmbeddingRequest) (*llm.EmbeddingResponse, error) {
	return &llm.EmbeddingResponse{Embeddings: make([][]float32, len(req.Input))}, nil
}

func (f *fakeGateway) Provider(name string) (llm.Provider, error) { return nil, errors.New("none") }
func (f *fakeGateway) ListModels() []llm.ModelInfo                { return nil }

type fakeBackend struct {
	schema   string
	rows     []map[string]interface{}
	execErr  error
	executed string
}

func (f *fakeBackend) Execute(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	f.executed = sql
	return f.rows, f.execErr
}

func (f *fakeBackend) SchemaSummary(ctx context.Context, tables []string) (string, error) {
	return f.schema, nil
}

func TestWarehouseStrategy(t *testing.T) {
	ctx := context.Background()

	t.Run("generates and executes SQL", func(t *testing.T) {
		gw := &fakeGateway{content: "```sql\nSELECT SUM(amount) AS total FROM orders\n```"}
		backend := &fakeBackend{
			schema: "orders(id integer, amount numeric)",
			rows:   []map[string]interface{}{{"total": 420.0}},
		}
		s := NewWarehouseStrategy(gw, backend, "gpt-4o-mini")

		res, err := s.Execute(ctx, "what is the total order amount", Options{IncludeReasoning: true})

		require.NoError(t, err)
		assert.Equal(t, "SELECT SUM(amount) AS total FROM orders", res.GeneratedQuery)
		assert.Equal(t, backend.executed, res.GeneratedQuery)
		require.Len(t, res.Rows, 1)
		assert.Equal(t, 420.0, res.Rows[0]["total"])
		assert.NotEmpty(t, res.Reasoning)
		assert.Empty(t, res.Error)
	})

	t.Run("schema reaches the prompt", func(t *testing.T) {
		gw := &fakeGateway{content: "SELECT 1"}
		backend := &fakeBackend{schema: "deals(id integer, stage text)"}
		s := NewWarehouseStrategy(gw, backend, "")

		_, err := s.Execute(ctx, "count deals", Options{})

		require.NoError(t, err)
		require.Len(t, gw.lastReq.Messages, 2)
		assert.Contains(t, gw.lastReq.Messages[1].Content, "deals(id integer, stage text)")
	})

	t.Run("execution failure keeps the generated query and partial timing", func(t *testing.T) {
		gw := &fakeGateway{content: "SELECT * FROM nope"}
		backend := &fakeBackend{execErr: errors.New(`relation "nope" does not exist`)}
		s := NewWarehouseStrategy(gw, backend, "")

		res, err := s.Execute(ctx, "anything", Options{})

		require.NoError(t, err)
		assert.Equal(t, "SELECT * FROM nope", res.GeneratedQuery)
		assert.Nil(t, res.Rows)
		assert.Contains(t, res.Error, "does not exist")
		assert.Zero(t, res.Timing.ExecutionMs)
	})

	t.Run("generation failure is an error", func(t *testing.T) {
		gw := &fakeGateway{err: errors.New("provider unavailable")}
		s := NewWarehouseStrategy(gw, &fakeBackend{}, "")

		_, err := s.Execute(ctx, "anything", Options{})

		assert.Error(t, err)
	})
}

func TestStripCodeFences(t *testing.T) {
	assert.Equal(t, "SELECT 1", stripCodeFences("```sql\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", stripCodeFences("```\nSELECT 1\n```"))
	assert.Equal(t, "SELECT 1", stripCodeFences("  SELECT 1  "))
	assert.Equal(t, "", stripCodeFences("```sql\n```"))
}
