package memory

import (
	"regexp"
	"strconv"
	"strings"
)

// Textual recovery patterns. Deliberately not a SQL parse; extraction only
// feeds follow-up resolution and degrades to empty fields on any miss.
var (
	dimensionKeywords = []string{"product", "region", "category", "client", "customer", "segment"}

	metricsPattern   = regexp.MustCompile(`(?i)(SUM|COUNT|AVG|MAX|MIN)\s*\(\s*\w*\.?(\w+)\s*\)`)
	wherePattern     = regexp.MustCompile(`(?is)WHERE\s+(.+?)(?:GROUP BY|ORDER BY|LIMIT|$)`)
	tenantPattern    = regexp.MustCompile(`(?i)client_id\s*=\s*(\d+)`)
	categoryPattern  = regexp.MustCompile(`(?i)category\s*=\s*['"]([^'"]+)['"]`)
	dateRangePattern = regexp.MustCompile(`(?i)date\s*>=\s*['"]([\d-]+)['"].*?date\s*<=\s*['"]([\d-]+)['"]`)
	groupByPattern   = regexp.MustCompile(`(?i)GROUP BY\s+([\w., ]+)`)
	groupColPattern  = regexp.MustCompile(`(?:\w+\.)?(\w+)`)
	limitPattern     = regexp.MustCompile(`(?i)LIMIT\s+(\d+)`)
)

// ExtractEntities recovers semantic entities from a generated SQL statement.
// Never fails; anything it cannot recognize is left empty.
func ExtractEntities(sql string) KeyEntities {
	entities := KeyEntities{TimePeriod: "all time"}
	if sql == "" {
		return entities
	}
	sqlLower := strings.ToLower(sql)

	for _, kw := range dimensionKeywords {
		if strings.Contains(sqlLower, kw) {
			entities.Dimensions = append(entities.Dimensions, kw)
		}
	}

	for _, m := range metricsPattern.FindAllStringSubmatch(sql, -1) {
		field := strings.ToLower(m[2])
		if field == "" || field == "id" {
			continue
		}
		if !contains(entities.Metrics, field) {
			entities.Metrics = append(entities.Metrics, field)
		}
	}

	if m := wherePattern.FindStringSubmatch(sql); m != nil {
		where := m[1]
		whereLower := strings.ToLower(where)

		if cm := tenantPattern.FindStringSubmatch(where); cm != nil {
			entities.Filters = append(entities.Filters, Filter{Field: "client_id", Value: cm[1]})
		}
		if cm := categoryPattern.FindStringSubmatch(where); cm != nil {
			entities.Filters = append(entities.Filters, Filter{Field: "category", Value: cm[1]})
		}

		if strings.Contains(whereLower, "date >=") {
			if dm := dateRangePattern.FindStringSubmatch(where); dm != nil {
				entities.TimePeriod = classifyDateRange(dm[1], dm[2])
			}
		}

		// Relative date predicates override the range classification
		switch {
		case strings.Contains(where, "'-6 months'") || strings.Contains(where, "'-6 month'"):
			entities.TimePeriod = "last 6 months"
		case strings.Contains(where, "'-1 year'") || strings.Contains(where, "'-12 month'"):
			entities.TimePeriod = "last year"
		case strings.Contains(where, "'-1 month'"):
			entities.TimePeriod = "last month"
		}
	}

	if m := groupByPattern.FindStringSubmatch(sql); m != nil {
		for _, cm := range groupColPattern.FindAllStringSubmatch(m[1], -1) {
			col := cm[1]
			if strings.EqualFold(col, "as") {
				continue
			}
			entities.Grouping = append(entities.Grouping, col)
		}
	}

	if m := limitPattern.FindStringSubmatch(sql); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			entities.Limit = n
		}
	}

	return entities
}

// classifyDateRange buckets an explicit date range into a quarter when the
// bounds line up, otherwise reports the raw range.
func classifyDateRange(start, end string) string {
	if len(start) < 4 {
		return start + " to " + end
	}
	year := start[:4]
	switch {
	case strings.Contains(start, "10-01") && strings.Contains(end, "12-31"):
		return "Q4 " + year
	case strings.Contains(start, "07-01") && strings.Contains(end, "09-30"):
		return "Q3 " + year
	case strings.Contains(start, "04-01") && strings.Contains(end, "06-30"):
		return "Q2 " + year
	case strings.Contains(start, "01-01") && strings.Contains(end, "03-31"):
		return "Q1 " + year
	default:
		return start + " to " + end
	}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
