package tools

import (
	"context"
	"errors"
	"testing"
)

func TestExecuteSuccess(t *testing.T) {
	tool := &Tool{
		Name: "get_schema",
		Fn: func(ctx context.Context, args Args) (any, error) {
			return "CREATE TABLE sales (...)", nil
		},
	}

	res := tool.Execute(context.Background(), nil)
	if !res.Success {
		t.Fatalf("Success = false, error = %s", res.Error)
	}
	if res.Tool != "get_schema" {
		t.Errorf("Tool = %q", res.Tool)
	}
	if res.Result != "CREATE TABLE sales (...)" {
		t.Errorf("Result = %v", res.Result)
	}
	if res.Elapsed <= 0 {
		t.Error("Elapsed not recorded")
	}
}

func TestExecuteErrorBecomesData(t *testing.T) {
	tool := &Tool{
		Name: "execute_sql",
		Fn: func(ctx context.Context, args Args) (any, error) {
			return nil, errors.New("no such table: foo")
		},
	}

	res := tool.Execute(context.Background(), Args{"sql": "SELECT * FROM foo"})
	if res.Success {
		t.Fatal("Success = true for failing tool")
	}
	if res.Error != "no such table: foo" {
		t.Errorf("Error = %q", res.Error)
	}
	if res.Result != nil {
		t.Errorf("Result = %v, want nil", res.Result)
	}
}

func TestExecuteRecoversPanic(t *testing.T) {
	tool := &Tool{
		Name: "validate_results",
		Fn: func(ctx context.Context, args Args) (any, error) {
			panic("boom")
		},
	}

	res := tool.Execute(context.Background(), nil)
	if res.Success {
		t.Fatal("Success = true after panic")
	}
	if res.Error == "" {
		t.Error("panic not surfaced as error")
	}
}

func TestArgsAccessors(t *testing.T) {
	args := Args{"sql": "SELECT 1", "limit": float64(10), "n": 3}
	if got := args.String("sql"); got != "SELECT 1" {
		t.Errorf("String = %q", got)
	}
	if got := args.String("missing"); got != "" {
		t.Errorf("String(missing) = %q", got)
	}
	if got := args.Int("limit"); got != 10 {
		t.Errorf("Int(limit) = %d", got)
	}
	if got := args.Int("n"); got != 3 {
		t.Errorf("Int(n) = %d", got)
	}
}
