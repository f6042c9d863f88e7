package askstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

const (
	defaultQueryTimeout = 30 * time.Second
	defaultMaxRows      = 1000
)

type ExecutorConfig struct {
	QueryTimeout time.Duration
	MaxRows      int
}

// Executor runs already-validated SELECT statements against the operational
// database and returns rows as generic maps. It never rewrites the SQL it is
// given; safety is the caller's concern. Every statement runs under the
// configured timeout and the result is truncated at MaxRows, so a pathological
// query can neither hold the request open nor flood the response.
type Executor struct {
	db           *sql.DB
	queryTimeout time.Duration
	maxRows      int
}

func NewExecutor(db *sql.DB, cfg ExecutorConfig) *Executor {
	timeout := cfg.QueryTimeout
	if timeout <= 0 {
		timeout = defaultQueryTimeout
	}
	maxRows := cfg.MaxRows
	if maxRows <= 0 {
		maxRows = defaultMaxRows
	}
	return &Executor{db: db, queryTimeout: timeout, maxRows: maxRows}
}

func (e *Executor) RunSelect(ctx context.Context, sqlText string) ([]map[string]any, error) {
	ctx, cancel := context.WithTimeout(ctx, e.queryTimeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("read result columns: %w", err)
	}

	results := make([]map[string]any, 0)
	for rows.Next() {
		if len(results) >= e.maxRows {
			break
		}
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			v := values[i]
			if b, ok := v.([]byte); ok {
				v = string(b)
			}
			row[col] = v
		}
		results = append(results, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return results, nil
}
