package ingest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/prism-data/prism/internal/models"
	"github.com/prism-data/prism/internal/nlquery"
	"github.com/prism-data/prism/internal/vectorstore"
	"github.com/prism-data/prism/pkg/chunker"
	"github.com/prism-data/prism/pkg/textextract"
	"github.com/prism-data/prism/pkg/tokenizer"
)

// Embedder batches chunk texts into vectors. Satisfied by
// embedding.Service.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ProgressRecorder receives phase and status updates during a run.
// Satisfied by datasource.Repo.
type ProgressRecorder interface {
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.DataSourceStatus) error
	RecordProgress(ctx context.Context, progress models.ProcessingProgress) error
	RecordMetrics(ctx context.Context, id uuid.UUID, metrics models.SourceMetrics) error
	MarkError(ctx context.Context, id uuid.UUID, msg string) error
}

// DocumentIngestor turns a raw file into embedded chunks in the source's
// knowledge collection.
type DocumentIngestor struct {
	store    vectorstore.Store
	embedder Embedder
	repo     ProgressRecorder
	chunker  chunker.Chunker
	opts     chunker.Options
}

func NewDocumentIngestor(store vectorstore.Store, embedder Embedder, repo ProgressRecorder, opts chunker.Options) *DocumentIngestor {
	return &DocumentIngestor{
		store:    store,
		embedder: embedder,
		repo:     repo,
		chunker:  chunker.New(),
		opts:     opts,
	}
}

type DocumentRequest struct {
	DataSourceID uuid.UUID
	FileName     string
	FileType     string
	Data         []byte
}

// Ingest runs extract, chunk, embed, upsert. Progress is written after
// each phase; a failure marks the source errored and returns.
func (ing *DocumentIngestor) Ingest(ctx context.Context, req DocumentRequest) (*models.SourceMetrics, error) {
	start := time.Now()

	if err := ing.repo.UpdateStatus(ctx, req.DataSourceID, models.DataSourceStatusProcessing); err != nil {
		return nil, fmt.Errorf("mark processing: %w", err)
	}

	ing.progress(ctx, req.DataSourceID, models.PhaseExtracting, 0, 0, nil)

	reader := bytes.NewReader(req.Data)
	extracted, err := textextract.Extract(reader, int64(len(req.Data)), req.FileType)
	if err != nil {
		return nil, ing.fail(ctx, req.DataSourceID, fmt.Errorf("extract text: %w", err))
	}

	ing.progress(ctx, req.DataSourceID, models.PhaseChunking, 0, 0, nil)

	chunks := ing.chunker.Chunk(extracted.Content, ing.opts)
	if len(chunks) == 0 {
		return nil, ing.fail(ctx, req.DataSourceID, fmt.Errorf("no text extracted from %s", req.FileName))
	}

	ing.progress(ctx, req.DataSourceID, models.PhaseEmbedding, 0, len(chunks), nil)

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}
	embeddings, err := ing.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, ing.fail(ctx, req.DataSourceID, fmt.Errorf("embed chunks: %w", err))
	}
	if len(embeddings) != len(chunks) {
		return nil, ing.fail(ctx, req.DataSourceID,
			fmt.Errorf("embedder returned %d vectors for %d chunks", len(embeddings), len(chunks)))
	}

	ing.progress(ctx, req.DataSourceID, models.PhaseIndexing, 0, len(chunks), nil)

	collection := nlquery.KnowledgeCollection(req.DataSourceID.String())
	docPrefix := fmt.Sprintf("%s:doc:%s:", req.DataSourceID, documentKey(req.FileName))
	points := make([]vectorstore.Point, len(chunks))
	for i, c := range chunks {
		points[i] = vectorstore.Point{
			ID:        fmt.Sprintf("%schunk:%d", docPrefix, c.Index),
			Content:   c.Content,
			Embedding: embeddings[i],
			Payload: map[string]interface{}{
				"source":         "document_ingestor",
				"data_source_id": req.DataSourceID.String(),
				"file_name":      req.FileName,
				"content_type":   extracted.Metadata["type"],
				"chunk_index":    c.Index,
				"char_start":     c.Start,
				"char_end":       c.End,
				"token_estimate": tokenizer.CountTokens(c.Content),
			},
		}
	}

	// A re-ingested document may chunk differently, so drop its previous
	// points before writing rather than leaving a stale tail behind.
	if err := ing.store.DeleteByPrefix(ctx, collection, docPrefix); err != nil {
		return nil, ing.fail(ctx, req.DataSourceID, fmt.Errorf("clear previous chunks: %w", err))
	}
	if err := ing.store.Upsert(ctx, collection, points); err != nil {
		return nil, ing.fail(ctx, req.DataSourceID, fmt.Errorf("upsert chunks: %w", err))
	}

	metrics := models.SourceMetrics{
		TotalChunks: len(chunks),
		DurationMs:  time.Since(start).Milliseconds(),
	}
	if err := ing.repo.RecordMetrics(ctx, req.DataSourceID, metrics); err != nil {
		return nil, fmt.Errorf("record metrics: %w", err)
	}
	ing.progress(ctx, req.DataSourceID, models.PhaseComplete, len(chunks), len(chunks), nil)

	slog.Info("document ingested",
		"data_source_id", req.DataSourceID,
		"file", req.FileName,
		"chunks", len(chunks),
		"pages", extracted.Pages,
		"duration_ms", metrics.DurationMs,
	)
	return &metrics, nil
}

// documentKey derives a stable ID segment from the file name so chunks
// from different files in the same source never collide, and re-ingesting
// a file lands on the same prefix.
func documentKey(fileName string) string {
	sum := sha256.Sum256([]byte(fileName))
	return hex.EncodeToString(sum[:6])
}

func (ing *DocumentIngestor) progress(ctx context.Context, id uuid.UUID, phase models.ProcessingPhase, processed, total int, warnings []string) {
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

func (ing *DocumentIngestor) fail(ctx context.Context, id uuid.UUID, cause error) error {
	if err := ing.repo.MarkError(ctx, id, cause.Error()); err != nil {
		slog.Error("mark error failed", "data_source_id", id, "error", err)
	}
	ing.progress(ctx, id, models.PhaseFailed, 0, 0, nil)
	return cause
}
