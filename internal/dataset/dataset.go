// Package dataset describes the analytical databases the agent can query.
package dataset

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// IsolationMethod selects how the tenant filter predicate must appear in SQL.
type IsolationMethod string

const (
	// RowLevel requires `filterField = tenantID` in a WHERE clause.
	RowLevel IsolationMethod = "row-level"
	// HierarchyJoin requires the qualified `filterTable.filterField = tenantID`.
	HierarchyJoin IsolationMethod = "hierarchy-join"
)

// IsolationConfig describes the mandatory tenant filter for a dataset.
type IsolationConfig struct {
	Method                IsolationMethod `yaml:"method"`
	FilterField           string          `yaml:"filter_field"`
	FilterTable           string          `yaml:"filter_table,omitempty"`
	TablesRequiringFilter []string        `yaml:"tables_requiring_filter"`
}

// Dataset holds the metadata the agent needs to query one database.
type Dataset struct {
	ID              string              `yaml:"id"`
	Name            string              `yaml:"name"`
	Description     string              `yaml:"description"`
	DBPath          string              `yaml:"db_path"`
	SchemaType      string              `yaml:"schema_type"` // transactional, dimensional
	FactTables      []string            `yaml:"fact_tables"`
	DimensionTables []string            `yaml:"dimension_tables"`
	KeyDimensions   map[string][]string `yaml:"key_dimensions"`
	Metrics         []string            `yaml:"metrics"`
	TimeField       string              `yaml:"time_field"`
	Isolation       IsolationConfig     `yaml:"isolation"`
	SampleQueries   []string            `yaml:"sample_queries"`
}

// Summary is the shortened form returned by List.
type Summary struct {
	ID            string   `yaml:"id"`
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	SchemaType    string   `yaml:"schema_type"`
	FactTables    []string `yaml:"fact_tables"`
	SampleQueries []string `yaml:"sample_queries"`
}

// Registry maps dataset IDs to their definitions.
type Registry struct {
	mu        sync.RWMutex
	datasets  map[string]*Dataset
	defaultID string
}

// NewRegistry returns a registry pre-populated with the built-in datasets.
func NewRegistry() *Registry {
	r := &Registry{
		datasets:  make(map[string]*Dataset),
		defaultID: "sales",
	}
	for _, ds := range builtins() {
		r.datasets[ds.ID] = ds
	}
	return r
}

// LoadRegistry builds a registry from a YAML file. Datasets in the file are
// added on top of the built-ins and may override them by ID.
func LoadRegistry(path string) (*Registry, error) {
	r := NewRegistry()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset registry: %w", err)
	}

	var file struct {
		Default  string     `yaml:"default"`
		Datasets []*Dataset `yaml:"datasets"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse dataset registry: %w", err)
	}

	for _, ds := range file.Datasets {
		if ds.ID == "" {
			return nil, fmt.Errorf("dataset registry entry missing id")
		}
		if err := validate(ds); err != nil {
			return nil, fmt.Errorf("dataset %q: %w", ds.ID, err)
		}
		r.datasets[ds.ID] = ds
	}
	if file.Default != "" {
		if _, ok := r.datasets[file.Default]; !ok {
			return nil, fmt.Errorf("default dataset %q not defined", file.Default)
		}
		r.defaultID = file.Default
	}
	return r, nil
}

func validate(ds *Dataset) error {
	if ds.DBPath == "" {
		return fmt.Errorf("missing db_path")
	}
	if ds.Isolation.FilterField == "" {
		return fmt.Errorf("missing isolation.filter_field")
	}
	switch ds.Isolation.Method {
	case RowLevel:
	case HierarchyJoin:
		if ds.Isolation.FilterTable == "" {
			return fmt.Errorf("hierarchy-join isolation requires filter_table")
		}
	default:
		return fmt.Errorf("unknown isolation method %q", ds.Isolation.Method)
	}
	return nil
}

// Get returns the dataset for id, or the default dataset when id is empty.
func (r *Registry) Get(id string) (*Dataset, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if id == "" {
		id = r.defaultID
	}
	ds, ok := r.datasets[id]
	if !ok {
		return nil, fmt.Errorf("dataset %q not found (available: %v)", id, r.idsLocked())
	}
	return ds, nil
}

// Default returns the default dataset ID.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultID
}

// SetDefault changes the default dataset.
func (r *Registry) SetDefault(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.datasets[id]; !ok {
		return fmt.Errorf("dataset %q not found", id)
	}
	r.defaultID = id
	return nil
}

// List returns summaries of all datasets, ordered by ID.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Summary, 0, len(r.datasets))
	for _, ds := range r.datasets {
		samples := ds.SampleQueries
		if len(samples) > 3 {
			samples = samples[:3]
		}
		out = append(out, Summary{
			ID:            ds.ID,
			Name:          ds.Name,
			Description:   ds.Description,
			SchemaType:    ds.SchemaType,
			FactTables:    ds.FactTables,
			SampleQueries: samples,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) idsLocked() []string {
	ids := make([]string, 0, len(r.datasets))
	for id := range r.datasets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func builtins() []*Dataset {
	return []*Dataset{
		{
			ID:              "sales",
			Name:            "Sales Transactions",
			Description:     "Transaction-level sales data with products, regions, and clients",
			DBPath:          "data/sales.db",
			SchemaType:      "transactional",
			FactTables:      []string{"sales"},
			DimensionTables: []string{"products", "regions", "clients", "customer_segments"},
			KeyDimensions: map[string][]string{
				"products":          {"product_name", "category", "price", "brand"},
				"regions":           {"region"},
				"clients":           {"client_name", "industry", "region"},
				"customer_segments": {"segment_name", "description"},
			},
			Metrics:   []string{"revenue", "quantity", "profit_margin"},
			TimeField: "date",
			Isolation: IsolationConfig{
				Method:                RowLevel,
				FilterField:           "client_id",
				TablesRequiringFilter: []string{"sales"},
			},
			SampleQueries: []string{
				"Top 5 products by revenue",
				"Sales by region for client Walmart",
				"Revenue trends for Q4 2024",
				"Products in Electronics category",
			},
		},
		{
			ID:          "market_size",
			Name:        "Market Size Analytics",
			Description: "Market size data (value & volume) with forecasts across geographies and segments",
			DBPath:      "data/market_size.db",
			SchemaType:  "dimensional",
			FactTables:  []string{"fact_market_size", "fact_forecasts"},
			DimensionTables: []string{
				"dim_markets", "dim_geography", "dim_time",
				"dim_currency", "dim_segment_types", "dim_segment_values",
			},
			KeyDimensions: map[string][]string{
				"dim_markets":        {"market_name", "naics_code"},
				"dim_geography":      {"country", "region", "country_code"},
				"dim_time":           {"year", "quarter", "year_quarter"},
				"dim_currency":       {"currency_code", "currency_type"},
				"dim_segment_types":  {"segment_name"},
				"dim_segment_values": {"value_name", "description"},
			},
			Metrics:   []string{"market_value_usd_m", "market_volume_units", "forecast_value_usd_m", "cagr"},
			TimeField: "year",
			Isolation: IsolationConfig{
				Method:                RowLevel,
				FilterField:           "client_id",
				TablesRequiringFilter: []string{"fact_market_size", "fact_forecasts"},
			},
			SampleQueries: []string{
				"Top 5 markets by value globally in 2023",
				"Electric vehicles market size trends from 2020 to 2024",
				"Compare EV market value across USA, China, Germany",
				"Forecast for automotive market in 2025",
				"Show market volume by region",
			},
		},
	}
}
