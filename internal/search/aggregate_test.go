package search

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-data/prism/internal/vectorstore"
)

func seedRowCollection(t *testing.T, store *vectorstore.MemoryStore, collection string, amounts []float64) {
	t.Helper()
	points := make([]vectorstore.Point, len(amounts))
	for i, amount := range amounts {
		points[i] = vectorstore.Point{
			ID:        fmt.Sprintf("r%03d", i),
			Content:   fmt.Sprintf("amount: %v\nregion: west", amount),
			Embedding: []float32{1, 0},
			Payload: map[string]interface{}{
				"columns": map[string]interface{}{
					"id":     fmt.Sprintf("r%03d", i),
					"amount": amount,
					"region": "west",
				},
			},
		}
	}
	require.NoError(t, store.Upsert(context.Background(), collection, points))
}

func TestAggregateRowCollection(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	seedRowCollection(t, store, "row_data_ds1_main_public_orders", []float64{10, 20, 30, 40})

	t.Run("sum matches direct computation", func(t *testing.T) {
		agg, err := aggregateRowCollection(ctx, store, "row_data_ds1_main_public_orders", OpSum, "total amount of orders")

		require.NoError(t, err)
		assert.InDelta(t, 100.0, agg.Value, 1e-9)
		assert.Equal(t, "amount", agg.Column)
		assert.EqualValues(t, 4, agg.RowCount)
	})

	t.Run("average", func(t *testing.T) {
		agg, err := aggregateRowCollection(ctx, store, "row_data_ds1_main_public_orders", OpAvg, "average amount")

		require.NoError(t, err)
		assert.InDelta(t, 25.0, agg.Value, 1e-9)
	})

	t.Run("min and max", func(t *testing.T) {
		minAgg, err := aggregateRowCollection(ctx, store, "row_data_ds1_main_public_orders", OpMin, "lowest amount")
		require.NoError(t, err)
		assert.InDelta(t, 10.0, minAgg.Value, 1e-9)

		maxAgg, err := aggregateRowCollection(ctx, store, "row_data_ds1_main_public_orders", OpMax, "highest amount")
		require.NoError(t, err)
		assert.InDelta(t, 40.0, maxAgg.Value, 1e-9)
	})

	t.Run("count needs no column", func(t *testing.T) {
		agg, err := aggregateRowCollection(ctx, store, "row_data_ds1_main_public_orders", OpCount, "how many orders")

		require.NoError(t, err)
		assert.InDelta(t, 4.0, agg.Value, 1e-9)
	})

	t.Run("unknown column fails", func(t *testing.T) {
		_, err := aggregateRowCollection(ctx, store, "row_data_ds1_main_public_orders", OpSum, "sum of discounts")

		assert.Error(t, err)
	})

	t.Run("null cell in first row does not break the sum", func(t *testing.T) {
		// NULL cells are dropped from stored payloads, so the first row by
		// scan order may lack the aggregated column entirely.
		s := vectorstore.NewMemoryStore()
		require.NoError(t, s.Upsert(ctx, "coll", []vectorstore.Point{
			{ID: "a", Payload: map[string]interface{}{"columns": map[string]interface{}{"id": "a"}}},
			{ID: "b", Payload: map[string]interface{}{"columns": map[string]interface{}{"id": "b", "amount": 10.0}}},
			{ID: "c", Payload: map[string]interface{}{"columns": map[string]interface{}{"id": "c", "amount": 5.0}}},
		}))

		agg, err := aggregateRowCollection(ctx, s, "coll", OpSum, "sum of amount")

		require.NoError(t, err)
		assert.InDelta(t, 15.0, agg.Value, 1e-9)
		assert.Equal(t, "amount", agg.Column)
		assert.EqualValues(t, 2, agg.RowCount)
	})

	t.Run("count over a column skips rows where it is null", func(t *testing.T) {
		s := vectorstore.NewMemoryStore()
		require.NoError(t, s.Upsert(ctx, "coll", []vectorstore.Point{
			{ID: "a", Payload: map[string]interface{}{"columns": map[string]interface{}{"id": "a"}}},
			{ID: "b", Payload: map[string]interface{}{"columns": map[string]interface{}{"id": "b", "amount": 10.0}}},
			{ID: "c", Payload: map[string]interface{}{"columns": map[string]interface{}{"id": "c", "amount": 5.0}}},
		}))

		agg, err := aggregateRowCollection(ctx, s, "coll", OpCount, "count of amount")

		require.NoError(t, err)
		assert.InDelta(t, 2.0, agg.Value, 1e-9)
	})

	t.Run("string-typed numerics are coerced", func(t *testing.T) {
		s := vectorstore.NewMemoryStore()
		require.NoError(t, s.Upsert(ctx, "coll", []vectorstore.Point{
			{ID: "a", Payload: map[string]interface{}{"columns": map[string]interface{}{"price": "19.5"}}},
			{ID: "b", Payload: map[string]interface{}{"columns": map[string]interface{}{"price": "0.5"}}},
		}))

		agg, err := aggregateRowCollection(ctx, s, "coll", OpSum, "sum of price")

		require.NoError(t, err)
		assert.InDelta(t, 20.0, agg.Value, 1e-9)
	})
}

func TestAggregateChunkCollection(t *testing.T) {
	ctx := context.Background()
	store := vectorstore.NewMemoryStore()
	require.NoError(t, store.Upsert(ctx, "datasource_ds1", []vectorstore.Point{
		{ID: "c1", Content: "amount: 10\nregion: west\namount: 20"},
		{ID: "c2", Content: "amount: 30\nnotes: pending"},
	}))

	t.Run("sums values parsed from chunk text", func(t *testing.T) {
		agg, err := aggregateChunkCollection(ctx, store, "datasource_ds1", OpSum, "total amount")

		require.NoError(t, err)
		assert.InDelta(t, 60.0, agg.Value, 1e-9)
		assert.Equal(t, "amount", agg.Column)
	})

	t.Run("missing column fails", func(t *testing.T) {
		_, err := aggregateChunkCollection(ctx, store, "datasource_ds1", OpSum, "total revenue")

		assert.Error(t, err)
	})
}
