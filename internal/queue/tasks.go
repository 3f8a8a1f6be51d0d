package queue

const (
	TypeIngestDocument = "ingest:document"
	TypeIngestTable    = "ingest:table"
)

type IngestDocumentPayload struct {
	DataSourceID string `json:"data_source_id"`
	FileName     string `json:"file_name"`
	FileType     string `json:"file_type"`
	StoragePath  string `json:"storage_path"`
}

type IngestTablePayload struct {
	DataSourceID string `json:"data_source_id"`
	Database     string `json:"database"`
	Schema       string `json:"schema"`
	Table        string `json:"table"`
	IDColumn     string `json:"id_column,omitempty"`
	StoragePath  string `json:"storage_path"`
}
