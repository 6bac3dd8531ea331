package knowledge

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlscout/internal/dataset"
)

func registryWithDB(t *testing.T, dbPath string) *dataset.Registry {
	t.Helper()
	r := dataset.NewRegistry()
	ds, err := r.Get("sales")
	require.NoError(t, err)
	ds.DBPath = dbPath
	return r
}

func TestSchemaFetchesFromSQLite(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "sales.db")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE products (product_id INTEGER PRIMARY KEY, product_name TEXT, category TEXT)`)
	require.NoError(t, err)
	_, err = db.Exec(`CREATE TABLE sales (sale_id INTEGER PRIMARY KEY, client_id INTEGER, revenue REAL)`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	p := NewSchemaProvider(registryWithDB(t, dbPath), time.Minute)
	schema, err := p.Schema(context.Background(), "sales")
	require.NoError(t, err)

	assert.Contains(t, schema, "CREATE TABLE products")
	assert.Contains(t, schema, "CREATE TABLE sales")
	assert.Contains(t, schema, "DATA AVAILABILITY & GUIDANCE")
}

func TestSchemaCaching(t *testing.T) {
	var fetches int32
	p := NewSchemaProvider(dataset.NewRegistry(), time.Minute)
	p.fetch = func(ctx context.Context, dbPath string) (string, error) {
		atomic.AddInt32(&fetches, 1)
		return "schema-text", nil
	}

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		s, err := p.Schema(ctx, "sales")
		require.NoError(t, err)
		assert.Equal(t, "schema-text", s)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))

	p.Invalidate("sales")
	_, err := p.Schema(ctx, "sales")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&fetches))
}

func TestSchemaSingleflight(t *testing.T) {
	var fetches int32
	release := make(chan struct{})
	p := NewSchemaProvider(dataset.NewRegistry(), time.Minute)
	p.fetch = func(ctx context.Context, dbPath string) (string, error) {
		atomic.AddInt32(&fetches, 1)
		<-release
		return "schema-text", nil
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s, err := p.Schema(context.Background(), "sales")
			assert.NoError(t, err)
			assert.Equal(t, "schema-text", s)
		}()
	}

	// Let the goroutines pile up behind the in-flight fetch.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&fetches))
}

func TestSchemaUnknownDataset(t *testing.T) {
	p := NewSchemaProvider(dataset.NewRegistry(), time.Minute)
	_, err := p.Schema(context.Background(), "nope")
	assert.Error(t, err)
}

func TestSchemaFetchError(t *testing.T) {
	p := NewSchemaProvider(dataset.NewRegistry(), time.Minute)
	p.fetch = func(ctx context.Context, dbPath string) (string, error) {
		return "", fmt.Errorf("boom")
	}
	_, err := p.Schema(context.Background(), "sales")
	assert.ErrorContains(t, err, "boom")
}
