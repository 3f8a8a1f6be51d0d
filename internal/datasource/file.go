package datasource

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/prism-data/prism/internal/models"
	"github.com/prism-data/prism/internal/nlquery"
	"github.com/prism-data/prism/internal/vectorstore"
)

type Embedder interface {
	EmbedSingle(ctx context.Context, text string) ([]float32, error)
}

// FileConnector serves semantic lookups over the chunk collection that
// ingestion built for a file source. Content arrives through ingestion
// jobs, so Sync has nothing to pull.
type FileConnector struct {
	store        vectorstore.Store
	embedder     Embedder
	dataSourceID uuid.UUID
	collection   string
	connected    atomic.Bool
}

func NewFileConnector(store vectorstore.Store, embedder Embedder, dataSourceID uuid.UUID) *FileConnector {
	return &FileConnector{
		store:        store,
		embedder:     embedder,
		dataSourceID: dataSourceID,
		collection:   nlquery.KnowledgeCollection(dataSourceID.String()),
	}
}

func (c *FileConnector) Type() models.DataSourceType { return models.DataSourceTypeFile }

func (c *FileConnector) Connect(ctx context.Context) error {
	if _, err := c.store.CollectionExists(ctx, c.collection); err != nil {
		return wrapOp(c.Type(), "connect", err)
	}
	c.connected.Store(true)
	return nil
}

func (c *FileConnector) Disconnect(ctx context.Context) error {
	c.connected.Store(false)
	return nil
}

func (c *FileConnector) IsConnected() bool { return c.connected.Load() }

func (c *FileConnector) Search(ctx context.Context, query string, limit int) ([]Item, error) {
	if !c.IsConnected() {
		return nil, wrapOp(c.Type(), "search", errNotConnected)
	}

	vector, err := c.embedder.EmbedSingle(ctx, query)
	if err != nil {
		return nil, wrapOp(c.Type(), "search", err)
	}

	results, err := c.store.Search(ctx, c.collection, vector, vectorstore.SearchOptions{TopK: limit})
	if err != nil {
		return nil, wrapOp(c.Type(), "search", err)
	}

	items := make([]Item, 0, len(results))
	for _, r := range results {
		items = append(items, Item{
			ID:      r.ID,
			Content: r.Content,
			Score:   r.Score,
			Payload: r.Payload,
		})
	}
	return items, nil
}

func (c *FileConnector) GetItem(ctx context.Context, id string) (*Item, error) {
	if !c.IsConnected() {
		return nil, wrapOp(c.Type(), "get item", errNotConnected)
	}

	p, err := c.store.Get(ctx, c.collection, id)
	if err != nil {
		return nil, wrapOp(c.Type(), "get item", err)
	}
	return &Item{ID: p.ID, Content: p.Content, Payload: p.Payload}, nil
}

func (c *FileConnector) Sync(ctx context.Context) error {
	return nil
}
