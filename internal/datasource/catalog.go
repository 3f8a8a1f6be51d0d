package datasource

import (
	"context"

	"github.com/prism-data/prism/internal/rowindex"
)

// WarehouseCatalog exposes the connector's cached table list as
// aggregation targets. All tables live under one logical database and
// schema for naming purposes.
type WarehouseCatalog struct {
	conn     *WarehouseConnector
	database string
	schema   string
}

func NewWarehouseCatalog(conn *WarehouseConnector, database, schema string) *WarehouseCatalog {
	if database == "" {
		database = "default"
	}
	if schema == "" {
		schema = "public"
	}
	return &WarehouseCatalog{conn: conn, database: database, schema: schema}
}

func (c *WarehouseCatalog) Tables(ctx context.Context, dataSourceID string) ([]rowindex.TableRef, error) {
	names := c.conn.Tables()
	refs := make([]rowindex.TableRef, 0, len(names))
	for _, name := range names {
		refs = append(refs, rowindex.TableRef{
			DataSourceID: dataSourceID,
			Database:     c.database,
			Schema:       c.schema,
			Table:        name,
		})
	}
	return refs, nil
}
