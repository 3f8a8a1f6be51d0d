package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/prism-data/prism/internal/models"
	"github.com/prism-data/prism/internal/rowindex"
)

// TableIngestor parses tabular input into rows and hands them to the row
// indexer, recording progress and final metrics against the data source.
type TableIngestor struct {
	indexer   *rowindex.Indexer
	repo      ProgressRecorder
	batchSize int
}

func NewTableIngestor(indexer *rowindex.Indexer, repo ProgressRecorder, batchSize int) *TableIngestor {
	return &TableIngestor{indexer: indexer, repo: repo, batchSize: batchSize}
}

type TableRequest struct {
	DataSourceID uuid.UUID
	Database     string
	Schema       string
	Table        string
	// IDColumn names the column holding the natural row key. Empty means
	// the row number is the key.
	IDColumn string
	CSV      io.Reader
}

// Ingest reads the CSV, indexes every row and stores the run report as
// source metrics. Partial batch failures are warnings, not run failures.
func (ing *TableIngestor) Ingest(ctx context.Context, req TableRequest) (*models.SourceMetrics, error) {
	start := time.Now()

	if err := ing.repo.UpdateStatus(ctx, req.DataSourceID, models.DataSourceStatusProcessing); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	ing.progressTable(ctx, req.DataSourceID, models.PhaseExtracting, 0, 0, nil)

	rows, err := ParseCSV(req.CSV, req.IDColumn)
	if err != nil {
		return nil, ing.failTable(ctx, req.DataSourceID, fmt.Errorf("parse csv: %w", err))
	}
	if len(rows) == 0 {
		return nil, ing.failTable(ctx, req.DataSourceID, fmt.Errorf("no data rows in input"))
	}

	ing.progressTable(ctx, req.DataSourceID, models.PhaseIndexing, 0, len(rows), nil)

	ref := rowindex.TableRef{
		DataSourceID: req.DataSourceID.String(),
		Database:     req.Database,
		Schema:       req.Schema,
		Table:        req.Table,
	}
	report, err := ing.indexer.IndexTable(ctx, ref, rows, ing.batchSize)
	if err != nil {
		return nil, ing.failTable(ctx, req.DataSourceID, fmt.Errorf("index table: %w", err))
	}

	metrics := models.SourceMetrics{
		TotalRows:     report.TotalRows,
		IndexedRows:   report.IndexedRows,
		FailedBatches: report.FailedBatches,
		Warnings:      report.Warnings,
		DurationMs:    time.Since(start).Milliseconds(),
	}
	if err := ing.repo.RecordMetrics(ctx, req.DataSourceID, metrics); err != nil {
		return nil, fmt.Errorf("record metrics: %w", err)
	}
	ing.progressTable(ctx, req.DataSourceID, models.PhaseComplete, report.IndexedRows, report.TotalRows, report.Warnings)

	slog.Info("table ingested",
		"data_source_id", req.DataSourceID,
		"collection", report.Collection,
		"rows", report.IndexedRows,
		"failed_batches", report.FailedBatches,
		"duration_ms", metrics.DurationMs,
	)
	return &metrics, nil
}

// ParseCSV reads a header row plus data rows. Empty cells are dropped
// from the column map so renderings skip them.
func ParseCSV(r io.Reader, idColumn string) ([]rowindex.Row, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	idIdx := -1
	for i, col := range header {
		if idColumn != "" && col == idColumn {
			idIdx = i
		}
	}
	if idColumn != "" && idIdx < 0 {
		return nil, fmt.Errorf("id column %q not in header", idColumn)
	}

	var rows []rowindex.Row
	for line := 1; ; line++ {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}

		columns := make(map[string]interface{}, len(header))
		for i, col := range header {
			if i >= len(record) || record[i] == "" {
				continue
			}
			columns[col] = record[i]
		}

		id := strconv.Itoa(line)
		if idIdx >= 0 && idIdx < len(record) && record[idIdx] != "" {
			id = record[idIdx]
		}
		rows = append(rows, rowindex.Row{ID: id, Columns: columns})
	}
	return rows, nil
}

func (ing *TableIngestor) progressTable(ctx context.Context, id uuid.UUID, phase models.ProcessingPhase, processed, total int, warnings []string) {
	err := ing.repo.RecordProgress(ctx, models.ProcessingProgress{
		DataSourceID: id,
		Phase:        phase,
		Processed:    processed,
		Total:        total,
		Warnings:     warnings,
	})
	if err != nil {
		slog.Warn("progress update failed", "data_source_id", id, "phase", phase, "error", err)
	}
}

func (ing *TableIngestor) failTable(ctx context.Context, id uuid.UUID, cause error) error {
	if err := ing.repo.MarkError(ctx, id, cause.Error()); err != nil {
		slog.Error("mark error failed", "data_source_id", id, "error", err)
	}
	ing.progressTable(ctx, id, models.PhaseFailed, 0, 0, nil)
	return cause
}
