package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

type DataSourceType string

const (
	DataSourceTypeFile      DataSourceType = "file"
	DataSourceTypeWarehouse DataSourceType = "warehouse"
	DataSourceTypeCRM       DataSourceType = "crm"
)

type DataSourceStatus string

const (
	DataSourceStatusPending    DataSourceStatus = "pending"
	DataSourceStatusProcessing DataSourceStatus = "processing"
	DataSourceStatusConnected  DataSourceStatus = "connected"
	DataSourceStatusError      DataSourceStatus = "error"
)

type DataSource struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Type      DataSourceType   `json:"type"`
	Status    DataSourceStatus `json:"status"`
	Config    json.RawMessage  `json:"config,omitempty"`
	Metadata  json.RawMessage  `json:"metadata,omitempty"`
	Metrics   json.RawMessage  `json:"metrics,omitempty"`
	LastSync  *time.Time       `json:"last_sync,omitempty"`
	CreatedAt time.Time        `json:"created_at"`
	UpdatedAt time.Time        `json:"updated_at"`
}

// SourceMetrics is the shape stored in DataSource.Metrics once an
// ingestion run completes.
type SourceMetrics struct {
	TotalRows     int      `json:"total_rows,omitempty"`
	IndexedRows   int      `json:"indexed_rows,omitempty"`
	TotalChunks   int      `json:"total_chunks,omitempty"`
	FailedBatches int      `json:"failed_batches,omitempty"`
	Warnings      []string `json:"warnings,omitempty"`
	DurationMs    int64    `json:"duration_ms,omitempty"`
}

type ProcessingPhase string

const (
	PhaseExtracting ProcessingPhase = "extracting"
	PhaseChunking   ProcessingPhase = "chunking"
	PhaseEmbedding  ProcessingPhase = "embedding"
	PhaseIndexing   ProcessingPhase = "indexing"
	PhaseComplete   ProcessingPhase = "complete"
	PhaseFailed     ProcessingPhase = "failed"
)

// ProcessingProgress tracks a single ingestion run. Complete and Failed
// are terminal phases.
type ProcessingProgress struct {
	DataSourceID uuid.UUID       `json:"data_source_id"`
	Phase        ProcessingPhase `json:"phase"`
	Processed    int             `json:"processed"`
	Total        int             `json:"total"`
	Warnings     []string        `json:"warnings,omitempty"`
	Error        string          `json:"error,omitempty"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (p ProcessingProgress) Terminal() bool {
	return p.Phase == PhaseComplete || p.Phase == PhaseFailed
}
