package rowindex

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/prism-data/prism/internal/vectorstore"
)

// Embedder turns row renderings into vectors. Satisfied by
// embedding.Service.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// TableRef addresses one table within a connected data source.
type TableRef struct {
	DataSourceID string
	Database     string
	Schema       string
	Table        string
}

// Row is one complete source row. ID is the natural row identifier the
// upsert is keyed by; Columns carries every original column value.
type Row struct {
	ID      string
	Columns map[string]interface{}
}

// Report summarizes one IndexTable run. Failed batches do not undo batches
// committed before them.
type Report struct {
	Collection    string        `json:"collection"`
	TotalRows     int           `json:"total_rows"`
	IndexedRows   int           `json:"indexed_rows"`
	FailedBatches int           `json:"failed_batches"`
	Warnings      []string      `json:"warnings,omitempty"`
	Duration      time.Duration `json:"duration"`
}

type Indexer struct {
	store    vectorstore.Store
	embedder Embedder
}

func NewIndexer(store vectorstore.Store, embedder Embedder) *Indexer {
	return &Indexer{store: store, embedder: embedder}
}

var collectionSanitizer = regexp.MustCompile(`[^a-z0-9_]+`)

// CollectionName derives the row-level collection for a table. The name is
// a pure function of the ref, so existence can be tested without a lookup
// table.
func CollectionName(ref TableRef) string {
	parts := []string{ref.DataSourceID, ref.Database, ref.Schema, ref.Table}
	for i, p := range parts {
		parts[i] = collectionSanitizer.ReplaceAllString(strings.ToLower(p), "_")
	}
	return fmt.Sprintf("row_data_%s_%s_%s_%s", parts[0], parts[1], parts[2], parts[3])
}

// PointID builds the stable composite key for one row.
func PointID(ref TableRef, rowID string) string {
	return fmt.Sprintf("%s:%s:%s:%s:row:%s",
		ref.DataSourceID, ref.Database, ref.Schema, ref.Table, rowID)
}

// IndexTable embeds and upserts every row into the table's row-level
// collection, batchSize rows at a time. A failing batch is logged and
// counted but does not abort the run or roll back committed batches.
func (ix *Indexer) IndexTable(ctx context.Context, ref TableRef, rows []Row, batchSize int) (*Report, error) {
	start := time.Now()
	if batchSize <= 0 {
		batchSize = 50
	}

	collection := CollectionName(ref)
	report := &Report{
		Collection: collection,
		TotalRows:  len(rows),
	}

	for batchStart := 0; batchStart < len(rows); batchStart += batchSize {
		batchEnd := batchStart + batchSize
		if batchEnd > len(rows) {
			batchEnd = len(rows)
		}
		batch := rows[batchStart:batchEnd]

		if err := ix.indexBatch(ctx, ref, collection, batch); err != nil {
			report.FailedBatches++
			warning := fmt.Sprintf("batch %d-%d failed: %v", batchStart, batchEnd, err)
			report.Warnings = append(report.Warnings, warning)
			slog.Error("row batch indexing failed",
				"collection", collection,
				"batch_start", batchStart,
				"batch_end", batchEnd,
				"error", err,
			)
			continue
		}

		report.IndexedRows += len(batch)
	}

	report.Duration = time.Since(start)
	slog.Info("table indexed",
		"collection", collection,
		"rows", report.IndexedRows,
		"failed_batches", report.FailedBatches,
		"duration", report.Duration,
	)
	return report, nil
}

func (ix *Indexer) indexBatch(ctx context.Context, ref TableRef, collection string, batch []Row) error {
	texts := make([]string, len(batch))
	for i, row := range batch {
		texts[i] = RenderRow(row)
	}

	embeddings, err := ix.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed rows: %w", err)
	}
	if len(embeddings) != len(batch) {
		return fmt.Errorf("embedder returned %d vectors for %d rows", len(embeddings), len(batch))
	}

	ingestedAt := time.Now().UTC().Format(time.RFC3339)
	points := make([]vectorstore.Point, len(batch))
	for i, row := range batch {
		points[i] = vectorstore.Point{
			ID:        PointID(ref, row.ID),
			Content:   texts[i],
			Embedding: embeddings[i],
			Payload: map[string]interface{}{
				"columns":        row.Columns,
				"source":         "row_indexer",
				"data_source_id": ref.DataSourceID,
				"database":       ref.Database,
				"schema":         ref.Schema,
				"table":          ref.Table,
				"row_id":         row.ID,
				"ingested_at":    ingestedAt,
			},
		}
	}

	if err := ix.store.Upsert(ctx, collection, points); err != nil {
		return fmt.Errorf("upsert batch: %w", err)
	}
	return nil
}

// RenderRow formats a row as "column: value" lines for embedding. Columns
// are sorted so the rendering is stable across runs.
func RenderRow(row Row) string {
	keys := make([]string, 0, len(row.Columns))
	for k := range row.Columns {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		v := row.Columns[k]
		if v == nil || v == "" {
			continue
		}
		fmt.Fprintf(&sb, "%s: %v\n", k, v)
	}
	return strings.TrimRight(sb.String(), "\n")
}
