package datasource

import (
	"context"
	"fmt"
	"sync"

	"github.com/prism-data/prism/internal/models"
	"github.com/prism-data/prism/internal/warehouse"
)

// WarehouseConnector exposes the relational catalog as items: Search
// matches table names, GetItem returns a table's column summary. Query
// execution itself goes through the strategy layer, not the connector.
type WarehouseConnector struct {
	client *warehouse.Client

	mu        sync.RWMutex
	connected bool
	tables    []string
}

func NewWarehouseConnector(client *warehouse.Client) *WarehouseConnector {
	return &WarehouseConnector{client: client}
}

func (c *WarehouseConnector) Type() models.DataSourceType { return models.DataSourceTypeWarehouse }

func (c *WarehouseConnector) Connect(ctx context.Context) error {
	if _, err := c.client.Execute(ctx, "SELECT 1"); err != nil {
		return wrapOp(c.Type(), "connect", err)
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	return c.Sync(ctx)
}

func (c *WarehouseConnector) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connected = false
	c.tables = nil
	return nil
}

func (c *WarehouseConnector) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connected
}

// Sync refreshes the cached table list from the catalog.
func (c *WarehouseConnector) Sync(ctx context.Context) error {
	if !c.IsConnected() {
		return wrapOp(c.Type(), "sync", errNotConnected)
	}

	rows, err := c.client.Execute(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' ORDER BY table_name`)
	if err != nil {
		return wrapOp(c.Type(), "sync", err)
	}

	tables := make([]string, 0, len(rows))
	for _, row := range rows {
		if name, ok := row["table_name"].(string); ok {
			tables = append(tables, name)
		}
	}

	c.mu.Lock()
	c.tables = tables
	c.mu.Unlock()
	return nil
}

func (c *WarehouseConnector) Tables() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.tables))
	copy(out, c.tables)
	return out
}

func (c *WarehouseConnector) Search(ctx context.Context, query string, limit int) ([]Item, error) {
	if !c.IsConnected() {
		return nil, wrapOp(c.Type(), "search", errNotConnected)
	}

	rows, err := c.client.Execute(ctx,
		`SELECT table_name FROM information_schema.tables
		 WHERE table_schema = 'public' AND table_name ILIKE '%' || $1 || '%'
		 ORDER BY table_name LIMIT $2`,
		query, limit)
	if err != nil {
		return nil, wrapOp(c.Type(), "search", err)
	}

	items := make([]Item, 0, len(rows))
	for _, row := range rows {
		name, _ := row["table_name"].(string)
		items = append(items, Item{ID: name, Content: name})
	}
	return items, nil
}

// GetItem returns the column summary for one table; the item ID is the
// table name.
func (c *WarehouseConnector) GetItem(ctx context.Context, id string) (*Item, error) {
	if !c.IsConnected() {
		return nil, wrapOp(c.Type(), "get item", errNotConnected)
	}

	summary, err := c.client.SchemaSummary(ctx, []string{id})
	if err != nil {
		return nil, wrapOp(c.Type(), "get item", err)
	}
	if summary == "" {
		return nil, wrapOp(c.Type(), "get item", fmt.Errorf("table %s not found", id))
	}
	return &Item{ID: id, Content: summary}, nil
}
