package vectorstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PgStore keeps all collections in one vector_points table keyed by
// (collection, id). A collection "exists" once it holds at least one point,
// which matches the deterministic-naming contract: ingestion creates it,
// the query path only reads it.
type PgStore struct {
	db *pgxpool.Pool
}

func NewPgStore(db *pgxpool.Pool) *PgStore {
	return &PgStore{db: db}
}

func (s *PgStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, p := range points {
		payload, err := json.Marshal(p.Payload)
		if err != nil {
			return fmt.Errorf("marshal payload for %s: %w", p.ID, err)
		}

		embedding := pgvector.NewVector(p.Embedding)

		_, err = tx.Exec(ctx,
			`INSERT INTO vector_points (collection, id, content, embedding, payload)
			 VALUES ($1, $2, $3, $4, $5)
			 ON CONFLICT (collection, id) DO UPDATE SET content = $3, embedding = $4, payload = $5`,
			collection, p.ID, p.Content, embedding, payload,
		)
		if err != nil {
			return fmt.Errorf("upsert point %s: %w", p.ID, err)
		}
	}

	return tx.Commit(ctx)
}

func (s *PgStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	var exists bool
	err := s.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM vector_points WHERE collection = $1)`,
		collection,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check collection %s: %w", collection, err)
	}
	return exists, nil
}

func (s *PgStore) Search(ctx context.Context, collection string, vector []float32, opts SearchOptions) ([]SearchResult, error) {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}

	embedding := pgvector.NewVector(vector)

	rows, err := s.db.Query(ctx,
		`SELECT id, content, payload, 1 - (embedding <=> $1) AS score
		 FROM vector_points
		 WHERE collection = $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		embedding, collection, opts.TopK,
	)
	if err != nil {
		return nil, fmt.Errorf("search %s: %w", collection, err)
	}
	defer rows.Close()

	var results []SearchResult
	for rows.Next() {
		var r SearchResult
		var payload []byte
		if err := rows.Scan(&r.ID, &r.Content, &payload, &r.Score); err != nil {
			return nil, fmt.Errorf("scan result: %w", err)
		}
		if err := json.Unmarshal(payload, &r.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for %s: %w", r.ID, err)
		}
		if opts.MinScore > 0 && r.Score < opts.MinScore {
			continue
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

func (s *PgStore) Get(ctx context.Context, collection, id string) (*Point, error) {
	var p Point
	var payload []byte
	err := s.db.QueryRow(ctx,
		`SELECT id, content, payload FROM vector_points WHERE collection = $1 AND id = $2`,
		collection, id,
	).Scan(&p.ID, &p.Content, &payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPointNotFound
		}
		return nil, fmt.Errorf("get point %s: %w", id, err)
	}
	if err := json.Unmarshal(payload, &p.Payload); err != nil {
		return nil, fmt.Errorf("unmarshal payload for %s: %w", p.ID, err)
	}
	return &p, nil
}

func (s *PgStore) Scroll(ctx context.Context, collection string, batchSize int, fn ScrollFunc) error {
	if batchSize <= 0 {
		batchSize = 200
	}

	lastID := ""
	for {
		batch, err := s.scrollPage(ctx, collection, lastID, batchSize)
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}

		if err := fn(batch); err != nil {
			return err
		}
		lastID = batch[len(batch)-1].ID

		if len(batch) < batchSize {
			return nil
		}
	}
}

func (s *PgStore) scrollPage(ctx context.Context, collection, afterID string, limit int) ([]Point, error) {
	rows, err := s.db.Query(ctx,
		`SELECT id, content, payload
		 FROM vector_points
		 WHERE collection = $1 AND id > $2
		 ORDER BY id
		 LIMIT $3`,
		collection, afterID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("scroll %s: %w", collection, err)
	}
	defer rows.Close()

	var points []Point
	for rows.Next() {
		var p Point
		var payload []byte
		if err := rows.Scan(&p.ID, &p.Content, &payload); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		if err := json.Unmarshal(payload, &p.Payload); err != nil {
			return nil, fmt.Errorf("unmarshal payload for %s: %w", p.ID, err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (s *PgStore) Count(ctx context.Context, collection string) (int64, error) {
	var n int64
	err := s.db.QueryRow(ctx,
		`SELECT COUNT(*) FROM vector_points WHERE collection = $1`,
		collection,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return n, nil
}

func (s *PgStore) DeleteByPrefix(ctx context.Context, collection, prefix string) error {
	_, err := s.db.Exec(ctx,
		`DELETE FROM vector_points WHERE collection = $1 AND starts_with(id, $2)`,
		collection, prefix)
	if err != nil {
		return fmt.Errorf("delete points %s:%s*: %w", collection, prefix, err)
	}
	return nil
}

func (s *PgStore) DeleteCollection(ctx context.Context, collection string) error {
	tag, err := s.db.Exec(ctx,
		`DELETE FROM vector_points WHERE collection = $1`, collection)
	if err != nil {
		return fmt.Errorf("delete collection %s: %w", collection, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCollectionNotFound
	}
	return nil
}
