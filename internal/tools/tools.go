// Package tools wraps agent-invokable operations behind a uniform contract:
// every failure, including a panic, comes back as data, never as a thrown
// error across the orchestrator boundary.
package tools

import (
	"context"
	"fmt"
	"time"

	"sqlscout/internal/logging"
)

// Args carries named tool arguments.
type Args map[string]any

// String returns the named argument as a string, or "" when absent.
func (a Args) String(key string) string {
	if v, ok := a[key].(string); ok {
		return v
	}
	return ""
}

// Int returns the named argument as an int, or 0 when absent.
func (a Args) Int(key string) int {
	switch v := a[key].(type) {
	case int:
		return v
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

// Fn is the work a tool performs.
type Fn func(ctx context.Context, args Args) (any, error)

// Tool is one agent-invokable operation.
type Tool struct {
	Name        string
	Description string
	Fn          Fn
}

// Result is the uniform tool outcome.
type Result struct {
	Success bool          `json:"success"`
	Tool    string        `json:"tool"`
	Result  any           `json:"result,omitempty"`
	Error   string        `json:"error,omitempty"`
	Elapsed time.Duration `json:"-"`
}

// Execute runs the tool. Errors and panics become failed Results.
func (t *Tool) Execute(ctx context.Context, args Args) (res Result) {
	start := time.Now()
	res = Result{Tool: t.Name}

	defer func() {
		res.Elapsed = time.Since(start)
		if r := recover(); r != nil {
			res.Success = false
			res.Result = nil
			res.Error = fmt.Sprintf("tool %s panicked: %v", t.Name, r)
			logging.Tools("Tool %s panicked after %v: %v", t.Name, res.Elapsed, r)
		}
	}()

	logging.ToolsDebug("Executing tool %s", t.Name)
	out, err := t.Fn(ctx, args)
	if err != nil {
		res.Error = err.Error()
		logging.Tools("Tool %s failed after %v: %v", t.Name, time.Since(start), err)
		return res
	}

	res.Success = true
	res.Result = out
	logging.ToolsDebug("Tool %s completed in %v", t.Name, time.Since(start))
	return res
}
