package rowindex

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-data/prism/internal/vectorstore"
)

type stubEmbedder struct {
	calls int
	fail  map[int]bool // call number → fail
}

func (s *stubEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	s.calls++
	if s.fail[s.calls] {
		return nil, errors.New("embedding provider unavailable")
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{float32(len(texts[i])), 1, 0}
	}
	return out, nil
}

func sampleRows(n int) []Row {
	rows := make([]Row, n)
	for i := 0; i < n; i++ {
		rows[i] = Row{
			ID: fmt.Sprintf("r%03d", i),
			Columns: map[string]interface{}{
				"id":     fmt.Sprintf("r%03d", i),
				"amount": float64(i * 10),
				"region": "emea",
			},
		}
	}
	return rows
}

func TestCollectionName(t *testing.T) {
	ref := TableRef{DataSourceID: "DS-42", Database: "analytics", Schema: "public", Table: "Orders"}

	assert.Equal(t, "row_data_ds_42_analytics_public_orders", CollectionName(ref))
}

func TestPointID(t *testing.T) {
	ref := TableRef{DataSourceID: "ds1", Database: "db", Schema: "s", Table: "t"}

	assert.Equal(t, "ds1:db:s:t:row:abc", PointID(ref, "abc"))
}

func TestIndexTable(t *testing.T) {
	ctx := context.Background()
	ref := TableRef{DataSourceID: "ds1", Database: "db", Schema: "public", Table: "orders"}

	t.Run("indexes all rows in batches", func(t *testing.T) {
		store := vectorstore.NewMemoryStore()
		ix := NewIndexer(store, &stubEmbedder{})

		report, err := ix.IndexTable(ctx, ref, sampleRows(25), 10)

		require.NoError(t, err)
		assert.Equal(t, 25, report.TotalRows)
		assert.Equal(t, 25, report.IndexedRows)
		assert.Equal(t, 0, report.FailedBatches)

		n, err := store.Count(ctx, report.Collection)
		require.NoError(t, err)
		assert.EqualValues(t, 25, n)
	})

	t.Run("payload carries the complete column set", func(t *testing.T) {
		store := vectorstore.NewMemoryStore()
		ix := NewIndexer(store, &stubEmbedder{})

		_, err := ix.IndexTable(ctx, ref, sampleRows(3), 10)
		require.NoError(t, err)

		var points []vectorstore.Point
		err = store.Scroll(ctx, CollectionName(ref), 100, func(batch []vectorstore.Point) error {
			points = append(points, batch...)
			return nil
		})
		require.NoError(t, err)
		require.Len(t, points, 3)

		for _, p := range points {
			cols, ok := p.Payload["columns"].(map[string]interface{})
			require.True(t, ok)
			assert.Contains(t, cols, "id")
			assert.Contains(t, cols, "amount")
			assert.Contains(t, cols, "region")
			assert.Equal(t, "row_indexer", p.Payload["source"])
			assert.Equal(t, "orders", p.Payload["table"])
			assert.NotEmpty(t, p.Payload["ingested_at"])
		}
	})

	t.Run("indexing twice does not duplicate rows", func(t *testing.T) {
		store := vectorstore.NewMemoryStore()
		ix := NewIndexer(store, &stubEmbedder{})
		rows := sampleRows(12)

		_, err := ix.IndexTable(ctx, ref, rows, 5)
		require.NoError(t, err)
		_, err = ix.IndexTable(ctx, ref, rows, 5)
		require.NoError(t, err)

		n, err := store.Count(ctx, CollectionName(ref))
		require.NoError(t, err)
		assert.EqualValues(t, 12, n)
	})

	t.Run("batch failure does not abort committed batches", func(t *testing.T) {
		store := vectorstore.NewMemoryStore()
		ix := NewIndexer(store, &stubEmbedder{fail: map[int]bool{2: true}})

		report, err := ix.IndexTable(ctx, ref, sampleRows(30), 10)

		require.NoError(t, err)
		assert.Equal(t, 20, report.IndexedRows)
		assert.Equal(t, 1, report.FailedBatches)
		require.Len(t, report.Warnings, 1)
		assert.Contains(t, report.Warnings[0], "batch 10-20")

		n, err := store.Count(ctx, CollectionName(ref))
		require.NoError(t, err)
		assert.EqualValues(t, 20, n)
	})
}

func TestRenderRow(t *testing.T) {
	row := Row{ID: "1", Columns: map[string]interface{}{
		"name":   "Ada",
		"amount": 42,
		"empty":  "",
		"null":   nil,
	}}

	rendered := RenderRow(row)

	assert.Equal(t, "amount: 42\nname: Ada", rendered)
}
