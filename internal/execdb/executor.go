// Package execdb runs validated SQL against a dataset's database.
package execdb

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"sqlscout/internal/dataset"
	"sqlscout/internal/logging"
	"sqlscout/internal/observability"
)

// Result holds the outcome of one successful query.
type Result struct {
	Columns  []string         `json:"columns"`
	Rows     []map[string]any `json:"rows"`
	RowCount int              `json:"row_count"`
	Elapsed  time.Duration    `json:"-"`
}

// Tenant is one row of the tenant listing.
type Tenant struct {
	ID       int    `json:"client_id"`
	Name     string `json:"client_name"`
	Industry string `json:"industry"`
}

// Options bound executor behavior.
type Options struct {
	MaxRows      int
	QueryTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.MaxRows <= 0 {
		o.MaxRows = 1000
	}
	if o.QueryTimeout <= 0 {
		o.QueryTimeout = 30 * time.Second
	}
	return o
}

// Executor runs read-only queries against one dataset.
type Executor struct {
	db        *sql.DB
	datasetID string
	opts      Options
}

// Open opens the dataset's SQLite database read-only.
func Open(ds *dataset.Dataset, opts Options) (*Executor, error) {
	dsn := fmt.Sprintf("file:%s?mode=ro&_busy_timeout=5000", ds.DBPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", ds.DBPath, err)
	}
	logging.Executor("Opened dataset %s database: %s", ds.ID, ds.DBPath)
	return New(db, ds.ID, opts), nil
}

// New wraps an existing database handle. Used directly by tests.
func New(db *sql.DB, datasetID string, opts Options) *Executor {
	return &Executor{db: db, datasetID: datasetID, opts: opts.withDefaults()}
}

// Query executes sqlText and returns rows as column-keyed maps.
// The row count is capped at MaxRows.
func (e *Executor) Query(ctx context.Context, sqlText string) (*Result, error) {
	start := time.Now()
	logging.Executor("Executing query: %.200s", sqlText)

	ctx, cancel := context.WithTimeout(ctx, e.opts.QueryTimeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		observability.ObserveQuery(e.datasetID, "error", time.Since(start))
		logging.ExecutorError("Query failed: %v", err)
		return nil, friendlyError(err)
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		observability.ObserveQuery(e.datasetID, "error", time.Since(start))
		return nil, fmt.Errorf("failed to read columns: %w", err)
	}

	out := make([]map[string]any, 0)
	for rows.Next() {
		if len(out) >= e.opts.MaxRows {
			logging.Executor("Result truncated at %d rows", e.opts.MaxRows)
			break
		}

		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			observability.ObserveQuery(e.datasetID, "error", time.Since(start))
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		observability.ObserveQuery(e.datasetID, "error", time.Since(start))
		return nil, friendlyError(err)
	}

	elapsed := time.Since(start)
	observability.ObserveQuery(e.datasetID, "ok", elapsed)
	logging.Executor("Query returned %d rows in %v", len(out), elapsed)

	return &Result{
		Columns:  columns,
		Rows:     out,
		RowCount: len(out),
		Elapsed:  elapsed,
	}, nil
}

// TestConnection verifies the database is reachable.
func (e *Executor) TestConnection(ctx context.Context) error {
	var one int
	if err := e.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	return nil
}

// ListTenants returns the tenant roster for datasets that carry a clients table.
func (e *Executor) ListTenants(ctx context.Context) ([]Tenant, error) {
	res, err := e.Query(ctx, "SELECT client_id, client_name, industry FROM clients ORDER BY client_name")
	if err != nil {
		return nil, fmt.Errorf("failed to fetch tenants: %w", err)
	}

	tenants := make([]Tenant, 0, res.RowCount)
	for _, row := range res.Rows {
		t := Tenant{}
		if id, ok := row["client_id"].(int64); ok {
			t.ID = int(id)
		}
		if name, ok := row["client_name"].(string); ok {
			t.Name = name
		}
		if ind, ok := row["industry"].(string); ok {
			t.Industry = ind
		}
		tenants = append(tenants, t)
	}
	return tenants, nil
}

// Close releases the database handle.
func (e *Executor) Close() error {
	return e.db.Close()
}

// friendlyError prefixes common failure classes with a readable hint while
// keeping the driver message intact for downstream error classification.
func friendlyError(err error) error {
	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "no such table"):
		return fmt.Errorf("database table not found: %w", err)
	case strings.Contains(msg, "no such column"):
		return fmt.Errorf("column not found in database: %w", err)
	case strings.Contains(msg, "syntax error"):
		return fmt.Errorf("SQL syntax error: %w", err)
	default:
		return fmt.Errorf("query execution failed: %w", err)
	}
}
