package workers

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/prism-data/prism/internal/ingest"
	"github.com/prism-data/prism/internal/queue"
	"github.com/prism-data/prism/internal/storage"
)

type DocumentWorker struct {
	store    storage.Storage
	bucket   string
	ingestor *ingest.DocumentIngestor
}

func NewDocumentWorker(store storage.Storage, bucket string, ingestor *ingest.DocumentIngestor) *DocumentWorker {
	return &DocumentWorker{store: store, bucket: bucket, ingestor: ingestor}
}

func (w *DocumentWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload queue.IngestDocumentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}

	dsID, err := uuid.Parse(payload.DataSourceID)
	if err != nil {
		return fmt.Errorf("parse data source ID: %w", err)
	}

	slog.Info("processing document ingestion",
		"data_source_id", dsID, "file", payload.FileName)

	reader, err := w.store.Download(ctx, w.bucket, payload.StoragePath)
	if err != nil {
		return fmt.Errorf("download file: %w", err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	_, err = w.ingestor.Ingest(ctx, ingest.DocumentRequest{
		DataSourceID: dsID,
		FileName:     payload.FileName,
		FileType:     payload.FileType,
		Data:         data,
	})
	if err != nil {
		return fmt.Errorf("ingest document: %w", err)
	}
	return nil
}
