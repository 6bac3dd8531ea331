// Package knowledge supplies the schema and domain guidance that ground SQL
// generation: live schema introspection from the dataset's database plus
// operator-maintained instruction files.
package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"golang.org/x/sync/singleflight"

	"sqlscout/internal/dataset"
	"sqlscout/internal/logging"
)

type schemaEntry struct {
	text      string
	fetchedAt time.Time
}

// SchemaProvider introspects dataset schemas with caching. Concurrent
// requests for the same dataset share one fetch.
type SchemaProvider struct {
	registry *dataset.Registry
	cacheTTL time.Duration

	mu    sync.RWMutex
	cache map[string]schemaEntry
	group singleflight.Group

	// Overridable for tests.
	fetch func(ctx context.Context, dbPath string) (string, error)
}

// NewSchemaProvider creates a provider with the given cache lifetime.
func NewSchemaProvider(registry *dataset.Registry, cacheTTL time.Duration) *SchemaProvider {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &SchemaProvider{
		registry: registry,
		cacheTTL: cacheTTL,
		cache:    make(map[string]schemaEntry),
		fetch:    fetchSchemaFromDB,
	}
}

// Schema returns the schema text for a dataset, from cache when fresh.
func (p *SchemaProvider) Schema(ctx context.Context, datasetID string) (string, error) {
	ds, err := p.registry.Get(datasetID)
	if err != nil {
		return "", err
	}

	p.mu.RLock()
	entry, ok := p.cache[ds.ID]
	p.mu.RUnlock()
	if ok && time.Since(entry.fetchedAt) < p.cacheTTL {
		logging.KnowledgeDebug("Schema cache hit for dataset %s", ds.ID)
		return entry.text, nil
	}

	v, err, _ := p.group.Do(ds.ID, func() (any, error) {
		text, err := p.fetch(ctx, ds.DBPath)
		if err != nil {
			return "", err
		}
		p.mu.Lock()
		p.cache[ds.ID] = schemaEntry{text: text, fetchedAt: time.Now()}
		p.mu.Unlock()
		logging.Knowledge("Schema retrieved for dataset %s: %d characters", ds.ID, len(text))
		return text, nil
	})
	if err != nil {
		return "", fmt.Errorf("schema fetch for %s: %w", ds.ID, err)
	}
	return v.(string), nil
}

// Invalidate drops the cached schema for a dataset.
func (p *SchemaProvider) Invalidate(datasetID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.cache, datasetID)
}

// fetchSchemaFromDB reads CREATE TABLE statements plus data-availability
// guidance from a SQLite database.
func fetchSchemaFromDB(ctx context.Context, dbPath string) (string, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?mode=ro", dbPath))
	if err != nil {
		return "", fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	rows, err := db.QueryContext(ctx, "SELECT name, sql FROM sqlite_master WHERE type='table' ORDER BY name")
	if err != nil {
		return "", fmt.Errorf("failed to read sqlite_master: %w", err)
	}
	defer rows.Close()

	var (
		tables      []string
		schemaParts []string
	)
	for rows.Next() {
		var name, createStmt string
		if err := rows.Scan(&name, &createStmt); err != nil {
			return "", fmt.Errorf("failed to scan sqlite_master row: %w", err)
		}
		tables = append(tables, name)
		schemaParts = append(schemaParts, createStmt+";")
	}
	if err := rows.Err(); err != nil {
		return "", err
	}

	metadata := []string{"\n-- DATA AVAILABILITY & GUIDANCE:"}

	if contains(tables, "dim_time") {
		if lo, hi, ok := yearRange(ctx, db, "SELECT MIN(year), MAX(year) FROM dim_time WHERE is_forecast = 0"); ok {
			metadata = append(metadata, fmt.Sprintf("-- Actual data years: %d to %d", lo, hi))
		}
		if lo, hi, ok := yearRange(ctx, db, "SELECT MIN(year), MAX(year) FROM dim_time WHERE is_forecast = 1"); ok {
			metadata = append(metadata, fmt.Sprintf("-- Forecast years: %d to %d", lo, hi))
		}
	}

	for _, t := range tables {
		if !strings.Contains(t, "fact_") {
			continue
		}
		if lo, hi, ok := yearRange(ctx, db, fmt.Sprintf("SELECT MIN(year), MAX(year) FROM %s", t)); ok {
			metadata = append(metadata, fmt.Sprintf("-- %s data: %d to %d", t, lo, hi))
		}
	}

	metadata = append(metadata,
		"-- IMPORTANT: For 'last N years' queries, use fact table's MAX(year) - N, not current date!",
		"--   Example: year >= (SELECT MAX(year) - 1 FROM fact_market_size WHERE is_forecast = 0)",
	)

	return strings.Join(schemaParts, "\n\n") + "\n" + strings.Join(metadata, "\n"), nil
}

func yearRange(ctx context.Context, db *sql.DB, query string) (int, int, bool) {
	var lo, hi sql.NullInt64
	if err := db.QueryRowContext(ctx, query).Scan(&lo, &hi); err != nil {
		return 0, 0, false
	}
	if !lo.Valid || !hi.Valid {
		return 0, 0, false
	}
	return int(lo.Int64), int(hi.Int64), true
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
