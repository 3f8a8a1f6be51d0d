package vectorstore

import (
	"context"
	"errors"
)

// ErrCollectionNotFound reports a search or scan against a collection that
// holds no points. Callers use it to pick a fallback path rather than treat
// the miss as an execution failure.
var ErrCollectionNotFound = errors.New("collection not found")

// ErrPointNotFound reports a lookup by ID that matched nothing.
var ErrPointNotFound = errors.New("point not found")

// Point is one stored entry: an embedded text plus the full payload it was
// derived from. The ID is caller-assigned and upserts are idempotent on
// (collection, id).
type Point struct {
	ID        string
	Content   string
	Embedding []float32
	Payload   map[string]interface{}
}

type SearchResult struct {
	ID      string                 `json:"id"`
	Content string                 `json:"content"`
	Score   float64                `json:"score"`
	Payload map[string]interface{} `json:"payload"`
}

type SearchOptions struct {
	TopK     int
	MinScore float64
}

// ScrollFunc receives one batch of points during a full scan. Returning an
// error stops the scan.
type ScrollFunc func(points []Point) error

// Store is a collection-oriented vector/document store. Collection names
// are deterministic and derivable from the data they hold, so existence
// checks need no side lookup table.
type Store interface {
	Upsert(ctx context.Context, collection string, points []Point) error
	CollectionExists(ctx context.Context, collection string) (bool, error)
	Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error)
	Get(ctx context.Context, collection, id string) (*Point, error)
	// Scroll reads every point in the collection in batches, for full-scan
	// aggregation over complete row payloads.
	Scroll(ctx context.Context, collection string, batchSize int, fn ScrollFunc) error
	Count(ctx context.Context, collection string) (int64, error)
	// DeleteByPrefix removes every point whose ID starts with prefix.
	// Deleting nothing is not an error; ingestion uses it to clear a
	// document's previous chunks before writing new ones.
	DeleteByPrefix(ctx context.Context, collection, prefix string) error
	DeleteCollection(ctx context.Context, collection string) error
}
