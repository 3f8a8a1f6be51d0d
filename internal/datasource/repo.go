package datasource

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prism-data/prism/internal/models"
)

var ErrNotFound = errors.New("data source not found")

const dsColumns = `id, name, type, status, config, metadata, metrics, last_sync, created_at, updated_at`

// Repo persists data source records and the ingestion progress written
// against them.
type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

type CreateRequest struct {
	Name   string
	Type   models.DataSourceType
	Config map[string]interface{}
}

func (r *Repo) Create(ctx context.Context, req CreateRequest) (*models.DataSource, error) {
	cfg, err := json.Marshal(req.Config)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	if req.Config == nil {
		cfg = []byte(`{}`)
	}

	row := r.db.QueryRow(ctx,
		`INSERT INTO data_sources (id, name, type, status, config)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING `+dsColumns,
		uuid.New(), req.Name, req.Type, models.DataSourceStatusPending, cfg,
	)
	return scanDataSource(row)
}

func (r *Repo) GetByID(ctx context.Context, id uuid.UUID) (*models.DataSource, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+dsColumns+` FROM data_sources WHERE id = $1`, id)
	ds, err := scanDataSource(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return ds, nil
}

func (r *Repo) List(ctx context.Context, limit, offset int) ([]models.DataSource, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(ctx,
		`SELECT `+dsColumns+` FROM data_sources ORDER BY created_at DESC LIMIT $1 OFFSET $2`,
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list data sources: %w", err)
	}
	defer rows.Close()

	var sources []models.DataSource
	for rows.Next() {
		ds, err := scanDataSource(rows)
		if err != nil {
			return nil, err
		}
		sources = append(sources, *ds)
	}
	return sources, rows.Err()
}

func (r *Repo) UpdateStatus(ctx context.Context, id uuid.UUID, status models.DataSourceStatus) error {
	tag, err := r.db.Exec(ctx,
		`UPDATE data_sources SET status = $2, updated_at = now() WHERE id = $1`,
		id, status)
	if err != nil {
		return fmt.Errorf("update status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordProgress merges the current ingestion progress into the source's
// metadata so pollers can watch a run advance.
func (r *Repo) RecordProgress(ctx context.Context, progress models.ProcessingProgress) error {
	progress.UpdatedAt = time.Now().UTC()
	data, err := json.Marshal(progress)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE data_sources
		 SET metadata = metadata || jsonb_build_object('processing', $2::jsonb), updated_at = now()
		 WHERE id = $1`,
		progress.DataSourceID, data)
	if err != nil {
		return fmt.Errorf("record progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordMetrics stores the final run metrics, stamps last_sync and marks
// the source connected.
func (r *Repo) RecordMetrics(ctx context.Context, id uuid.UUID, metrics models.SourceMetrics) error {
	data, err := json.Marshal(metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	tag, err := r.db.Exec(ctx,
		`UPDATE data_sources
		 SET metrics = $2, status = $3, last_sync = now(), updated_at = now()
		 WHERE id = $1`,
		id, data, models.DataSourceStatusConnected)
	if err != nil {
		return fmt.Errorf("record metrics: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkError flips the source to the error state and records the message
// in metadata.
func (r *Repo) MarkError(ctx context.Context, id uuid.UUID, msg string) error {
	detail, _ := json.Marshal(map[string]string{"error": msg})

	tag, err := r.db.Exec(ctx,
		`UPDATE data_sources
		 SET status = $2, metadata = metadata || $3::jsonb, updated_at = now()
		 WHERE id = $1`,
		id, models.DataSourceStatusError, detail)
	if err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *Repo) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM data_sources WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete data source: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanDataSource(row pgx.Row) (*models.DataSource, error) {
	var ds models.DataSource
	err := row.Scan(&ds.ID, &ds.Name, &ds.Type, &ds.Status, &ds.Config,
		&ds.Metadata, &ds.Metrics, &ds.LastSync, &ds.CreatedAt, &ds.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan data source: %w", err)
	}
	return &ds, nil
}
