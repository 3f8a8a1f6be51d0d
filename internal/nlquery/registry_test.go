package nlquery

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeStrategy struct {
	typeKey string
	result  *Result
	err     error
	panics  bool
}

func (f *fakeStrategy) Type() string { return f.typeKey }

func (f *fakeStrategy) Execute(ctx context.Context, query string, opts Options) (*Result, error) {
	if f.panics {
		panic("strategy exploded")
	}
	return f.result, f.err
}

func TestRegistryRegister(t *testing.T) {
	r := NewRegistry()

	t.Run("registers and normalizes the key", func(t *testing.T) {
		require.NoError(t, r.Register("Warehouse", &fakeStrategy{typeKey: "warehouse"}))
		assert.Contains(t, r.Types(), "warehouse")
	})

	t.Run("rejects duplicates", func(t *testing.T) {
		err := r.Register("warehouse", &fakeStrategy{typeKey: "warehouse"})
		assert.Error(t, err)
	})

	t.Run("rejects empty key", func(t *testing.T) {
		assert.Error(t, r.Register("  ", &fakeStrategy{}))
	})
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()

	t.Run("unregistered type is a not-found condition", func(t *testing.T) {
		r := NewRegistry()

		res, err := r.Dispatch(ctx, "hubspot", "how many deals", Options{})

		assert.Nil(t, res)
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrStrategyNotFound))
	})

	t.Run("case-insensitive lookup", func(t *testing.T) {
		r := NewRegistry()
		want := &Result{Reasoning: "ok"}
		require.NoError(t, r.Register("warehouse", &fakeStrategy{result: want}))

		res, err := r.Dispatch(ctx, "WAREHOUSE", "q", Options{})

		require.NoError(t, err)
		assert.Same(t, want, res)
	})

	t.Run("strategy error becomes an error result, not an error return", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register("warehouse", &fakeStrategy{err: errors.New("backend down")}))

		res, err := r.Dispatch(ctx, "warehouse", "q", Options{})

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Empty(t, res.GeneratedQuery)
		assert.Nil(t, res.Rows)
		assert.Equal(t, "backend down", res.Error)
		assert.Equal(t, Timing{}, res.Timing)
		assert.NotEmpty(t, res.Reasoning)
	})

	t.Run("strategy panic is contained", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register("warehouse", &fakeStrategy{panics: true}))

		res, err := r.Dispatch(ctx, "warehouse", "q", Options{})

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.Contains(t, res.Error, "panicked")
	})

	t.Run("nil result from strategy is converted", func(t *testing.T) {
		r := NewRegistry()
		require.NoError(t, r.Register("warehouse", &fakeStrategy{}))

		res, err := r.Dispatch(ctx, "warehouse", "q", Options{})

		require.NoError(t, err)
		require.NotNil(t, res)
		assert.NotEmpty(t, res.Error)
	})
}

func TestOptionsDefaults(t *testing.T) {
	t.Run("knowledge collections default on", func(t *testing.T) {
		assert.True(t, Options{}.KnowledgeCollectionsEnabled())
	})

	t.Run("explicit false wins", func(t *testing.T) {
		off := false
		assert.False(t, Options{UseKnowledgeCollections: &off}.KnowledgeCollectionsEnabled())
	})
}
