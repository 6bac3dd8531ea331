package dataset

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistryBuiltins(t *testing.T) {
	r := NewRegistry()

	ds, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, "sales", ds.ID)
	assert.Equal(t, RowLevel, ds.Isolation.Method)
	assert.Equal(t, "client_id", ds.Isolation.FilterField)

	ds, err = r.Get("market_size")
	require.NoError(t, err)
	assert.Equal(t, []string{"fact_market_size", "fact_forecasts"}, ds.FactTables)

	_, err = r.Get("weather")
	assert.ErrorContains(t, err, "not found")
}

func TestRegistryList(t *testing.T) {
	r := NewRegistry()
	list := r.List()
	require.Len(t, list, 2)
	// Ordered by ID, sample queries truncated to 3.
	assert.Equal(t, "market_size", list[0].ID)
	assert.Equal(t, "sales", list[1].ID)
	assert.Len(t, list[0].SampleQueries, 3)
}

func TestLoadRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	data := []byte(`
default: telemetry
datasets:
  - id: telemetry
    name: Device Telemetry
    db_path: data/telemetry.db
    schema_type: transactional
    fact_tables: [events]
    isolation:
      method: hierarchy-join
      filter_field: client_id
      filter_table: devices
      tables_requiring_filter: [events]
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	r, err := LoadRegistry(path)
	require.NoError(t, err)
	assert.Equal(t, "telemetry", r.Default())

	ds, err := r.Get("")
	require.NoError(t, err)
	assert.Equal(t, HierarchyJoin, ds.Isolation.Method)
	assert.Equal(t, "devices", ds.Isolation.FilterTable)

	// Built-ins survive alongside file entries.
	_, err = r.Get("sales")
	assert.NoError(t, err)
}

func TestLoadRegistryRejectsBadIsolation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registry.yaml")
	data := []byte(`
datasets:
  - id: broken
    db_path: data/x.db
    isolation:
      method: hierarchy-join
      filter_field: client_id
`)
	require.NoError(t, os.WriteFile(path, data, 0644))

	_, err := LoadRegistry(path)
	assert.ErrorContains(t, err, "filter_table")
}

func TestSetDefault(t *testing.T) {
	r := NewRegistry()
	require.NoError(t, r.SetDefault("market_size"))
	assert.Equal(t, "market_size", r.Default())
	assert.Error(t, r.SetDefault("nope"))
}
