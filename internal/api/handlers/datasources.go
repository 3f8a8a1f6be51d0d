package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/prism-data/prism/internal/datasource"
	"github.com/prism-data/prism/internal/models"
	"github.com/prism-data/prism/internal/queue"
	"github.com/prism-data/prism/internal/storage"
)

type DataSourceHandler struct {
	repo   *datasource.Repo
	store  storage.Storage
	bucket string
	queue  *queue.Client
}

func NewDataSourceHandler(repo *datasource.Repo, store storage.Storage, bucket string, qc *queue.Client) *DataSourceHandler {
	return &DataSourceHandler{repo: repo, store: store, bucket: bucket, queue: qc}
}

type createDataSourceRequest struct {
	Name   string                 `json:"name"`
	Type   models.DataSourceType  `json:"type"`
	Config map[string]interface{} `json:"config,omitempty"`
}

func (h *DataSourceHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createDataSourceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.Name == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "name required"})
		return
	}
	switch req.Type {
	case models.DataSourceTypeFile, models.DataSourceTypeWarehouse, models.DataSourceTypeCRM:
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unsupported type %q", req.Type)})
		return
	}

	ds, err := h.repo.Create(r.Context(), datasource.CreateRequest{
		Name:   req.Name,
		Type:   req.Type,
		Config: req.Config,
	})
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, ds)
}

func (h *DataSourceHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	sources, err := h.repo.List(r.Context(), limit, offset)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data_sources": sources, "count": len(sources)})
}

func (h *DataSourceHandler) Get(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	ds, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, datasource.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "data source not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, ds)
}

func (h *DataSourceHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.repo.Delete(r.Context(), id); err != nil {
		if errors.Is(err, datasource.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "data source not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Ingest accepts a multipart upload and enqueues the matching ingestion
// job. kind=document chunks a file; kind=table indexes CSV rows.
func (h *DataSourceHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	ds, err := h.repo.GetByID(r.Context(), id)
	if err != nil {
		if errors.Is(err, datasource.ErrNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "data source not found"})
			return
		}
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	if err := r.ParseMultipartForm(64 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "file required"})
		return
	}
	defer file.Close()

	path := fmt.Sprintf("%s/%d-%s", ds.ID, time.Now().UnixNano(), filepath.Base(header.Filename))
	if err := h.store.Upload(r.Context(), h.bucket, path, file, header.Header.Get("Content-Type")); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	kind := r.FormValue("kind")
	if kind == "" {
		kind = "document"
	}

	switch kind {
	case "document":
		err = h.queue.EnqueueIngestDocument(queue.IngestDocumentPayload{
			DataSourceID: ds.ID.String(),
			FileName:     header.Filename,
			FileType:     strings.ToLower(filepath.Ext(header.Filename)),
			StoragePath:  path,
		})
	case "table":
		table := r.FormValue("table")
		if table == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "table required for kind=table"})
			return
		}
		err = h.queue.EnqueueIngestTable(queue.IngestTablePayload{
			DataSourceID: ds.ID.String(),
			Database:     formValueOr(r, "database", "default"),
			Schema:       formValueOr(r, "schema", "public"),
			Table:        table,
			IDColumn:     r.FormValue("id_column"),
			StoragePath:  path,
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("unsupported kind %q", kind)})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"status":         "queued",
		"data_source_id": ds.ID.String(),
		"storage_path":   path,
	})
}

func (h *DataSourceHandler) parseID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid data source ID"})
		return uuid.Nil, false
	}
	return id, true
}

func formValueOr(r *http.Request, key, fallback string) string {
	if v := r.FormValue(key); v != "" {
		return v
	}
	return fallback
}
