package datasource

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-data/prism/internal/models"
	"github.com/prism-data/prism/internal/nlquery"
	"github.com/prism-data/prism/internal/vectorstore"
)

type unitEmbedder struct{}

func (unitEmbedder) EmbedSingle(ctx context.Context, text string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func TestFileConnector(t *testing.T) {
	ctx := context.Background()
	dsID := uuid.New()
	collection := nlquery.KnowledgeCollection(dsID.String())

	seed := func(t *testing.T) *vectorstore.MemoryStore {
		store := vectorstore.NewMemoryStore()
		err := store.Upsert(ctx, collection, []vectorstore.Point{
			{ID: "c1", Content: "quarterly revenue report", Embedding: []float32{1, 0},
				Payload: map[string]interface{}{"chunk_index": 0}},
			{ID: "c2", Content: "hiring plan", Embedding: []float32{0, 1}},
		})
		require.NoError(t, err)
		return store
	}

	t.Run("search requires connect", func(t *testing.T) {
		conn := NewFileConnector(seed(t), unitEmbedder{}, dsID)
		_, err := conn.Search(ctx, "revenue", 5)
		require.Error(t, err)
		assert.ErrorIs(t, err, errNotConnected)
	})

	t.Run("search returns scored chunks", func(t *testing.T) {
		conn := NewFileConnector(seed(t), unitEmbedder{}, dsID)
		require.NoError(t, conn.Connect(ctx))
		assert.True(t, conn.IsConnected())
		assert.Equal(t, models.DataSourceTypeFile, conn.Type())

		items, err := conn.Search(ctx, "revenue", 5)
		require.NoError(t, err)
		require.Len(t, items, 2)
		assert.Equal(t, "c1", items[0].ID)
		assert.Greater(t, items[0].Score, items[1].Score)
	})

	t.Run("get item by id", func(t *testing.T) {
		conn := NewFileConnector(seed(t), unitEmbedder{}, dsID)
		require.NoError(t, conn.Connect(ctx))

		item, err := conn.GetItem(ctx, "c1")
		require.NoError(t, err)
		assert.Equal(t, "quarterly revenue report", item.Content)
		assert.Equal(t, 0, item.Payload["chunk_index"])

		_, err = conn.GetItem(ctx, "missing")
		require.Error(t, err)
		assert.ErrorIs(t, err, vectorstore.ErrPointNotFound)
	})

	t.Run("disconnect stops lookups", func(t *testing.T) {
		conn := NewFileConnector(seed(t), unitEmbedder{}, dsID)
		require.NoError(t, conn.Connect(ctx))
		require.NoError(t, conn.Disconnect(ctx))
		assert.False(t, conn.IsConnected())

		_, err := conn.Search(ctx, "revenue", 5)
		require.Error(t, err)
	})
}
