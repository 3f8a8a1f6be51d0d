package search

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/prism-data/prism/internal/rowindex"
)

func TestClassify(t *testing.T) {
	tables := []rowindex.TableRef{
		{DataSourceID: "ds1", Database: "main", Schema: "public", Table: "orders"},
		{DataSourceID: "ds1", Database: "main", Schema: "public", Table: "customers"},
	}
	c := NewClassifier(nil)

	t.Run("sum over a known table", func(t *testing.T) {
		cls := c.Classify("what is the total amount in orders", tables)

		require.True(t, cls.IsAggregation)
		assert.Equal(t, OpSum, cls.Op)
		assert.Equal(t, "orders", cls.Table.Table)
	})

	t.Run("count phrasing", func(t *testing.T) {
		cls := c.Classify("How many customers do we have?", tables)

		require.True(t, cls.IsAggregation)
		assert.Equal(t, OpCount, cls.Op)
		assert.Equal(t, "customers", cls.Table.Table)
	})

	t.Run("average", func(t *testing.T) {
		cls := c.Classify("average order value", tables)

		require.True(t, cls.IsAggregation)
		assert.Equal(t, OpAvg, cls.Op)
		assert.Equal(t, "orders", cls.Table.Table)
	})

	t.Run("aggregation wording without a known table stays semantic", func(t *testing.T) {
		cls := c.Classify("what is the total revenue of competitors", tables)

		assert.False(t, cls.IsAggregation)
	})

	t.Run("plain lookup stays semantic", func(t *testing.T) {
		cls := c.Classify("tell me about the acme account in orders", tables)

		assert.False(t, cls.IsAggregation)
	})

	t.Run("extra configured keywords trigger aggregation", func(t *testing.T) {
		custom := NewClassifier([]string{"aggregate"})

		cls := custom.Classify("aggregate the orders please", tables)

		assert.True(t, cls.IsAggregation)
	})

	t.Run("no tables means never aggregation", func(t *testing.T) {
		cls := c.Classify("how many orders", nil)

		assert.False(t, cls.IsAggregation)
	})
}
