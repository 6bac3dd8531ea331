// Package security validates generated SQL before it reaches the executor.
//
// The checks are textual pattern matches, not a SQL parse. That keeps the
// validator pure and dependency-free at the cost of known blind spots, so
// every statement is still executed against a read-only connection.
package security

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sqlscout/internal/dataset"
)

// Check names. The orchestrator and CLI key off these.
const (
	CheckTenantFilter = "Tenant Filter"
	CheckSingleTenant = "Single Tenant"
	CheckReadOnly     = "Read-Only"
)

// Check statuses.
const (
	StatusPass = "PASS"
	StatusFail = "FAIL"
)

// Check is the outcome of one validation rule.
type Check struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
}

// Warning flags a suspicious construct that does not fail validation.
type Warning struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Verdict is the full result of validating one statement.
type Verdict struct {
	Passed   bool          `json:"passed"`
	Checks   []Check       `json:"checks"`
	Warnings []Warning     `json:"warnings"`
	Elapsed  time.Duration `json:"-"`
}

// FailedChecks returns the names of all failed checks.
func (v Verdict) FailedChecks() []string {
	var failed []string
	for _, c := range v.Checks {
		if c.Status == StatusFail {
			failed = append(failed, c.Name)
		}
	}
	return failed
}

var destructiveKeywords = []string{
	"DROP", "DELETE", "UPDATE", "INSERT", "ALTER",
	"TRUNCATE", "CREATE", "GRANT", "REVOKE",
}

var destructivePatterns = func() []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(destructiveKeywords))
	for i, kw := range destructiveKeywords {
		out[i] = regexp.MustCompile(`\b` + kw + `\b`)
	}
	return out
}()

// Validate checks a statement for tenant isolation and read-only access.
// Pure: no I/O, no shared state.
func Validate(sql string, tenantID int, cfg dataset.IsolationConfig) Verdict {
	start := time.Now()

	var (
		checks   []Check
		warnings []Warning
	)
	passed := true

	sqlUpper := strings.ToUpper(sql)
	sqlNormalized := strings.Join(strings.Fields(sql), " ")

	// Check 1: Tenant Filter
	if tenantFilterPresent(sqlNormalized, tenantID, cfg) {
		checks = append(checks, Check{
			Name:    CheckTenantFilter,
			Status:  StatusPass,
			Message: fmt.Sprintf("Query correctly filters by %s = %d", predicateField(cfg), tenantID),
		})
	} else {
		passed = false
		checks = append(checks, Check{
			Name:    CheckTenantFilter,
			Status:  StatusFail,
			Message: fmt.Sprintf("Missing WHERE %s = %d filter", predicateField(cfg), tenantID),
		})
	}

	// Check 2: Single Tenant
	checks, passed = appendSingleTenantCheck(checks, passed, sqlNormalized, tenantID, cfg)

	// Check 3: Read-Only, independent of the tenant checks
	if kw := findDestructiveKeyword(sqlUpper); kw != "" {
		passed = false
		checks = append(checks, Check{
			Name:    CheckReadOnly,
			Status:  StatusFail,
			Message: fmt.Sprintf("Destructive keyword detected: %s. Only SELECT queries allowed.", kw),
		})
	} else {
		checks = append(checks, Check{
			Name:    CheckReadOnly,
			Status:  StatusPass,
			Message: "Query is read-only (SELECT only)",
		})
	}

	// Informational warnings
	if n := strings.Count(sqlUpper, "WHERE"); n > 1 {
		warnings = append(warnings, Warning{
			Type:    "MULTIPLE_WHERE",
			Message: fmt.Sprintf("Multiple WHERE clauses detected (%d) - verify JOIN logic includes the tenant filter", n),
		})
	}
	if strings.Count(sqlUpper, "SELECT") > 1 {
		warnings = append(warnings, Warning{
			Type:    "SUBQUERY",
			Message: "Subquery detected - ensure all subqueries filter by the tenant field",
		})
	}
	if strings.Contains(sqlUpper, "UNION") {
		warnings = append(warnings, Warning{
			Type:    "UNION",
			Message: "UNION detected - verify both queries filter by the tenant field",
		})
	}

	return Verdict{
		Passed:   passed,
		Checks:   checks,
		Warnings: warnings,
		Elapsed:  time.Since(start),
	}
}

// predicateField is the field as it must appear in the filter predicate.
func predicateField(cfg dataset.IsolationConfig) string {
	if cfg.Method == dataset.HierarchyJoin && cfg.FilterTable != "" {
		return cfg.FilterTable + "." + cfg.FilterField
	}
	return cfg.FilterField
}

func tenantFilterPresent(sql string, tenantID int, cfg dataset.IsolationConfig) bool {
	field := regexp.QuoteMeta(cfg.FilterField)
	if cfg.Method == dataset.HierarchyJoin && cfg.FilterTable != "" {
		// The predicate must be qualified through the hierarchy table.
		field = regexp.QuoteMeta(cfg.FilterTable) + `\.` + field
	}
	id := strconv.Itoa(tenantID)

	patterns := []string{
		`(?i)\bWHERE\s+.*?\b` + field + `\s*=\s*` + id + `\b`,
		`(?i)\bAND\s+.*?\b` + field + `\s*=\s*` + id + `\b`,
		// Predicate inside a subquery that precedes the outer WHERE
		`(?i)\b` + field + `\s*=\s*` + id + `\b.*?\bWHERE\b`,
	}
	for _, p := range patterns {
		if regexp.MustCompile(p).MatchString(sql) {
			return true
		}
	}
	return false
}

func appendSingleTenantCheck(checks []Check, passed bool, sql string, tenantID int, cfg dataset.IsolationConfig) ([]Check, bool) {
	field := regexp.QuoteMeta(cfg.FilterField)

	inClause := regexp.MustCompile(`(?i)\b` + field + `\s+IN\s*\([^)]+\)`)
	eqPattern := regexp.MustCompile(`(?i)\b` + field + `\s*=\s*(\d+)`)

	var ids []int
	for _, m := range eqPattern.FindAllStringSubmatch(sql, -1) {
		if id, err := strconv.Atoi(m[1]); err == nil {
			ids = append(ids, id)
		}
	}
	distinct := make(map[int]struct{})
	for _, id := range ids {
		distinct[id] = struct{}{}
	}

	switch {
	case inClause.MatchString(sql):
		return append(checks, Check{
			Name:    CheckSingleTenant,
			Status:  StatusFail,
			Message: "Query uses IN clause over the tenant field - data isolation violated",
		}), false
	case len(distinct) > 1:
		return append(checks, Check{
			Name:    CheckSingleTenant,
			Status:  StatusFail,
			Message: fmt.Sprintf("Query references multiple tenant IDs: %v", ids),
		}), false
	case len(ids) > 0 && ids[0] != tenantID:
		return append(checks, Check{
			Name:    CheckSingleTenant,
			Status:  StatusFail,
			Message: fmt.Sprintf("Query filters by %s = %d but expected %d", cfg.FilterField, ids[0], tenantID),
		}), false
	default:
		return append(checks, Check{
			Name:    CheckSingleTenant,
			Status:  StatusPass,
			Message: "Query correctly references only one tenant",
		}), passed
	}
}

func findDestructiveKeyword(sqlUpper string) string {
	for i, p := range destructivePatterns {
		if p.MatchString(sqlUpper) {
			return destructiveKeywords[i]
		}
	}
	return ""
}
