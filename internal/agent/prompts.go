package agent

import (
	"fmt"
	"strings"

	"sqlscout/internal/dataset"
)

func buildClarifyPrompt(query, schema string) string {
	var b strings.Builder
	b.WriteString("Decide whether the question below can be answered against the schema, or whether it is too ambiguous to attempt.\n\n")
	if schema != "" {
		b.WriteString("DATABASE SCHEMA:\n")
		b.WriteString(schema)
		b.WriteString("\n\n")
	} else {
		b.WriteString("DATABASE SCHEMA: (unavailable)\n\n")
	}
	fmt.Fprintf(&b, "Question: %s\n\n", query)
	b.WriteString(`Respond with JSON only:
{"needs_clarification": true or false, "questions": ["question 1", "question 2"]}

Ask at most 4 short questions, and only when the question is genuinely unanswerable as written, such as a missing metric, a missing subject, or a reference that cannot be resolved. A question that names data and a measure is clear.`)
	return b.String()
}

// tenantPredicate renders the mandatory isolation predicate for prompts.
func tenantPredicate(iso dataset.IsolationConfig, tenantID int) string {
	field := iso.FilterField
	if iso.Method == dataset.HierarchyJoin && iso.FilterTable != "" {
		field = iso.FilterTable + "." + iso.FilterField
	}
	return fmt.Sprintf("%s = %d", field, tenantID)
}

func buildSQLSystemPrompt(schema string, iso dataset.IsolationConfig, tenantID int, guidance string) string {
	predicate := tenantPredicate(iso, tenantID)

	var b strings.Builder
	b.WriteString("You are an expert SQL query generator for SQLite databases.\n")
	b.WriteString("You specialize in retail market research data analysis.\n\n")
	b.WriteString("DATABASE SCHEMA:\n")
	if schema != "" {
		b.WriteString(schema)
	} else {
		b.WriteString("(schema unavailable, use standard column naming)")
	}
	b.WriteString("\n\nCRITICAL RULES:\n")
	fmt.Fprintf(&b, "1. ALWAYS include \"WHERE %s\" in your queries to enforce data isolation\n", predicate)
	b.WriteString("2. Use ONLY the tables and columns defined in the schema above\n")
	b.WriteString("3. Generate valid SQLite syntax\n")
	b.WriteString("4. Return ONLY the SQL query without explanations\n")
	b.WriteString("5. Use proper JOINs when querying across multiple tables\n")
	fmt.Fprintf(&b, "6. Always filter by the provided %s in WHERE clauses\n", iso.FilterField)
	if guidance != "" {
		b.WriteString("\nDOMAIN GUIDANCE:\n")
		b.WriteString(guidance)
		b.WriteString("\n")
	}
	b.WriteString("\nGenerate clean, efficient SQL queries based on the user's natural language input.")
	return b.String()
}

func buildSQLUserPrompt(query, filterField string, tenantID int) string {
	return fmt.Sprintf("Tenant Context: %s = %d\n\nNatural Language Query: %s\n\nGenerate the SQL query:",
		filterField, tenantID, query)
}

func buildExplanationPrompt(query, sqlText string, columns []string, sample []map[string]any, rowCount int) string {
	var b strings.Builder
	b.WriteString("Analyze these query results and provide a clear explanation in 2-4 sentences.\n\n")
	fmt.Fprintf(&b, "User's Question: %s\n\n", query)
	fmt.Fprintf(&b, "Generated SQL: %s\n\n", sqlText)
	fmt.Fprintf(&b, "Results (%d total rows, showing sample):\n", rowCount)
	fmt.Fprintf(&b, "Columns: %s\n\n", strings.Join(columns, ", "))
	b.WriteString("Data Sample:\n")
	b.WriteString(formatSampleRows(columns, sample))
	b.WriteString("\n\nProvide explanation that:\n")
	b.WriteString("1. Directly answers the user's question\n")
	b.WriteString("2. Highlights key findings (top values, trends, patterns)\n")
	b.WriteString("3. Notes interesting comparisons or anomalies\n")
	b.WriteString("4. Uses plain English for business stakeholders\n\n")
	b.WriteString("Write as if explaining to a non-technical business user.")
	return b.String()
}

// formatSampleRows renders at most 10 rows, pipe-separated in column order.
func formatSampleRows(columns []string, rows []map[string]any) string {
	if len(rows) == 0 {
		return "No data"
	}
	if len(rows) > 10 {
		rows = rows[:10]
	}
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, 0, len(columns))
		for _, col := range columns {
			v, ok := row[col]
			if !ok || v == nil {
				cells = append(cells, "N/A")
				continue
			}
			cells = append(cells, fmt.Sprintf("%v", v))
		}
		lines = append(lines, strings.Join(cells, " | "))
	}
	return strings.Join(lines, "\n")
}
