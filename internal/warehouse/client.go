package warehouse

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/prism-data/prism/internal/config"
)

// Client executes read-only analytical SQL against the warehouse. Query
// generation lives in the strategies; this layer only runs what it is
// given, with a per-call timeout.
type Client struct {
	db      *pgxpool.Pool
	timeout time.Duration
}

func NewClient(db *pgxpool.Pool, cfg config.WarehouseConfig) *Client {
	timeout := time.Duration(cfg.QueryTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{db: db, timeout: timeout}
}

// Execute runs a SELECT and returns rows as column-name keyed maps.
// Anything other than a single SELECT statement is rejected.
func (c *Client) Execute(ctx context.Context, sql string, args ...interface{}) ([]map[string]interface{}, error) {
	if err := validateReadOnly(sql); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	rows, err := c.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("warehouse query: %w", err)
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var out []map[string]interface{}
	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		record := make(map[string]interface{}, len(fields))
		for i, f := range fields {
			record[string(f.Name)] = values[i]
		}
		out = append(out, record)
	}
	return out, rows.Err()
}

// SchemaSummary describes the warehouse tables (optionally filtered) as
// "table(col type, ...)" lines for SQL-generation prompts.
func (c *Client) SchemaSummary(ctx context.Context, tables []string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	query := `SELECT table_name, column_name, data_type
	          FROM information_schema.columns
	          WHERE table_schema = 'public'
	          ORDER BY table_name, ordinal_position`

	rows, err := c.db.Query(ctx, query)
	if err != nil {
		return "", fmt.Errorf("describe schema: %w", err)
	}
	defer rows.Close()

	wanted := make(map[string]bool, len(tables))
	for _, t := range tables {
		wanted[strings.ToLower(t)] = true
	}

	columns := make(map[string][]string)
	var order []string
	for rows.Next() {
		var table, column, dataType string
		if err := rows.Scan(&table, &column, &dataType); err != nil {
			return "", fmt.Errorf("scan column: %w", err)
		}
		if len(wanted) > 0 && !wanted[strings.ToLower(table)] {
			continue
		}
		if _, ok := columns[table]; !ok {
			order = append(order, table)
		}
		columns[table] = append(columns[table], fmt.Sprintf("%s %s", column, dataType))
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for _, table := range order {
		fmt.Fprintf(&sb, "%s(%s)\n", table, strings.Join(columns[table], ", "))
	}
	return sb.String(), nil
}

// validateReadOnly rejects anything that is not a single SELECT (or WITH …
// SELECT) statement.
func validateReadOnly(sql string) error {
	trimmed := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(sql), ";"))
	if trimmed == "" {
		return fmt.Errorf("empty query")
	}
	if strings.Contains(trimmed, ";") {
		return fmt.Errorf("multiple statements are not allowed")
	}
	lower := strings.ToLower(trimmed)
	if !strings.HasPrefix(lower, "select") && !strings.HasPrefix(lower, "with") {
		return fmt.Errorf("only SELECT queries are allowed")
	}
	return nil
}
