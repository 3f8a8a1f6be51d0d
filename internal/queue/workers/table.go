package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/prism-data/prism/internal/ingest"
	"github.com/prism-data/prism/internal/queue"
	"github.com/prism-data/prism/internal/storage"
)

type TableWorker struct {
	store    storage.Storage
	bucket   string
	ingestor *ingest.TableIngestor
}

func NewTableWorker(store storage.Storage, bucket string, ingestor *ingest.TableIngestor) *TableWorker {
	return &TableWorker{store: store, bucket: bucket, ingestor: ingestor}
}

func (w *TableWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.IngestTablePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	dsID, err := uuid.Parse(payload.DataSourceID)
	if err != nil {
		return fmt.Errorf("parse data source ID: %w", err)
	}

	slog.Info("processing table ingestion",
		"data_source_id", dsID,
		"table", fmt.Sprintf("%s.%s.%s", payload.Database, payload.Schema, payload.Table))

	reader, err := w.store.Download(ctx, w.bucket, payload.StoragePath)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	defer reader.Close()

	_, err = w.ingestor.Ingest(ctx, ingest.TableRequest{
		DataSourceID: dsID,
		Database:     payload.Database,
		Schema:       payload.Schema,
		Table:        payload.Table,
		IDColumn:     payload.IDColumn,
		CSV:          reader,
	})
	if err != nil {
		return fmt.Errorf("ingest table: %w", err)
	}
	return nil
}
