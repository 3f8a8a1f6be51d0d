package search

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/prism-data/prism/internal/vectorstore"
)

// AggregationResult is the numeric outcome of an aggregation query.
type AggregationResult struct {
	Op       AggregateOp `json:"op"`
	Column   string      `json:"column,omitempty"`
	Value    float64     `json:"value"`
	RowCount int64       `json:"row_count"`
}

type accumulator struct {
	op    AggregateOp
	sum   float64
	count int64
	min   float64
	max   float64
}

func (a *accumulator) add(v float64) {
	if a.count == 0 {
		a.min, a.max = v, v
	} else {
		if v < a.min {
			a.min = v
		}
		if v > a.max {
			a.max = v
		}
	}
	a.sum += v
	a.count++
}

func (a *accumulator) result(column string) *AggregationResult {
	res := &AggregationResult{Op: a.op, Column: column, RowCount: a.count}
	switch a.op {
	case OpSum:
		res.Value = a.sum
	case OpCount:
		res.Value = float64(a.count)
	case OpAvg:
		if a.count > 0 {
			res.Value = a.sum / float64(a.count)
		}
	case OpMin:
		res.Value = a.min
	case OpMax:
		res.Value = a.max
	}
	return res
}

// aggregateRowCollection computes the aggregate by scanning every stored
// row payload in the collection. Because each point carries the complete
// column set, the result is exact.
func aggregateRowCollection(ctx context.Context, store vectorstore.Store, collection string, op AggregateOp, query string) (*AggregationResult, error) {
	acc := &accumulator{op: op}
	column := ""
	var totalRows int64

	err := store.Scroll(ctx, collection, 200, func(points []vectorstore.Point) error {
		for _, p := range points {
			cols, ok := p.Payload["columns"].(map[string]interface{})
			if !ok {
				continue
			}
			totalRows++
			// Stored payloads drop NULL cells, so the target column can be
			// absent from any given row. Bind it from the first row that
			// carries a match and skip rows where it is missing, the way
			// SQL aggregates ignore NULLs.
			if column == "" {
				column = pickColumn(query, cols, op)
			}
			if column == "" {
				continue
			}
			v, present := cols[column]
			if !present {
				continue
			}
			if op == OpCount {
				acc.count++
				continue
			}
			if f, ok := numeric(v); ok {
				acc.add(f)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if column == "" {
		if op != OpCount {
			return nil, fmt.Errorf("no numeric column in %s matches the query", collection)
		}
		acc.count = totalRows
	}
	return acc.result(column), nil
}

// aggregateChunkCollection approximates the aggregate from chunked text
// renderings. Chunking may have sampled or split records, so the caller
// must flag this path as low-confidence.
func aggregateChunkCollection(ctx context.Context, store vectorstore.Store, collection string, op AggregateOp, query string) (*AggregationResult, error) {
	lowerQuery := strings.ToLower(query)
	acc := &accumulator{op: op}
	column := ""

	err := store.Scroll(ctx, collection, 200, func(points []vectorstore.Point) error {
		for _, p := range points {
			scanner := bufio.NewScanner(strings.NewReader(p.Content))
			for scanner.Scan() {
				key, value, found := strings.Cut(scanner.Text(), ":")
				if !found {
					continue
				}
				key = strings.ToLower(strings.TrimSpace(key))
				if key == "" || !containsWord(lowerQuery, key) {
					continue
				}
				if column == "" {
					column = key
				}
				if key != column {
					continue
				}
				if v, ok := numeric(strings.TrimSpace(value)); ok {
					acc.add(v)
				} else if op == OpCount {
					acc.count++
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if acc.count == 0 && op != OpCount {
		return nil, fmt.Errorf("no values for the requested column found in %s", collection)
	}
	return acc.result(column), nil
}

// pickColumn chooses the payload column the query refers to: a column whose
// name appears in the query, numeric for value aggregates. Count works
// without a column.
func pickColumn(query string, cols map[string]interface{}, op AggregateOp) string {
	lower := strings.ToLower(query)
	for name, v := range cols {
		if !containsWord(lower, strings.ToLower(name)) {
			continue
		}
		if op == OpCount {
			return name
		}
		if _, ok := numeric(v); ok {
			return name
		}
	}
	return ""
}

func numeric(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		return f, err == nil
	default:
		return 0, false
	}
}
