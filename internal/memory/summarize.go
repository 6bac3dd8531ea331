package memory

import (
	"fmt"
	"strings"

	"sqlscout/internal/execdb"
)

// SummarizeResults produces a bounded (~100 char) digest of a result set,
// e.g. "5 rows: Le Creuset, $12.5K, $9.8K" or "120 rows: Widget (top)".
func SummarizeResults(res *execdb.Result) string {
	if res == nil || res.RowCount == 0 {
		return "0 rows"
	}

	if res.RowCount <= 5 {
		var values []string
		for i, row := range res.Rows {
			if i >= 3 {
				break
			}
			if v, ok := firstValue(res.Columns, row); ok {
				values = append(values, formatValue(v))
			}
		}
		summary := fmt.Sprintf("%d rows: %s", res.RowCount, strings.Join(values, ", "))
		if len(summary) > 100 {
			summary = summary[:97] + "..."
		}
		return summary
	}

	if v, ok := firstValue(res.Columns, res.Rows[0]); ok {
		return fmt.Sprintf("%d rows: %s (top)", res.RowCount, formatValue(v))
	}
	return fmt.Sprintf("%d rows", res.RowCount)
}

// firstValue picks the first non-identifier column value in column order.
func firstValue(columns []string, row map[string]any) (any, bool) {
	for _, col := range columns {
		lower := strings.ToLower(col)
		if lower == "id" || lower == "client_id" {
			continue
		}
		if v, ok := row[col]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// formatValue renders large numbers with $K/$M suffixes.
func formatValue(v any) string {
	var f float64
	switch n := v.(type) {
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case float64:
		f = n
	default:
		return fmt.Sprintf("%v", v)
	}

	switch {
	case f > 1000000:
		return fmt.Sprintf("$%.1fM", f/1000000)
	case f > 1000:
		return fmt.Sprintf("$%.1fK", f/1000)
	default:
		return trimFloat(f)
	}
}

func trimFloat(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%g", f)
}
