package datasource

import (
	"context"
	"fmt"

	"github.com/prism-data/prism/internal/models"
)

// Item is one retrievable unit exposed by a connector: a chunk for file
// sources, a table for warehouse sources.
type Item struct {
	ID      string                 `json:"id"`
	Content string                 `json:"content"`
	Score   float64                `json:"score,omitempty"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}

// Connector is the capability surface every source type implements.
// Implementations are independent structs; shared behavior lives in
// helpers like wrapOp, not in a base type.
type Connector interface {
	Type() models.DataSourceType
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	Search(ctx context.Context, query string, limit int) ([]Item, error)
	GetItem(ctx context.Context, id string) (*Item, error)
	Sync(ctx context.Context) error
}

// wrapOp tags connector errors with the source type and operation so
// callers can log a uniform "<type> connector <op>" prefix.
func wrapOp(sourceType models.DataSourceType, op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s connector %s: %w", sourceType, op, err)
}

var errNotConnected = fmt.Errorf("not connected")
