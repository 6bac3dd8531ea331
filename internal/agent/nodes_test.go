package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sqlscout/internal/execdb"
)

func planAgent(t *testing.T) *Agent {
	t.Helper()
	a, _ := newTestAgent(t, &fakeClient{}, &fakeRunner{replies: []queryReply{{res: salesResult()}}}, 10)
	return a
}

func TestPlanDecisionOrder(t *testing.T) {
	a := planAgent(t)

	tests := []struct {
		name  string
		state QueryState
		want  Action
	}{
		{
			name:  "no schema",
			state: QueryState{MaxIterations: 10},
			want:  ActionGetSchema,
		},
		{
			name:  "schema but no sql",
			state: QueryState{MaxIterations: 10, Schema: testSchema},
			want:  ActionGenerateSQL,
		},
		{
			name:  "sql not executed",
			state: QueryState{MaxIterations: 10, Schema: testSchema, SQLQuery: validSQL},
			want:  ActionExecuteSQL,
		},
		{
			name: "executed not validated",
			state: QueryState{
				MaxIterations: 10, Schema: testSchema, SQLQuery: validSQL,
				ExecutionResult: &Execution{Success: true, Result: salesResult()},
			},
			want: ActionValidateResults,
		},
		{
			name: "validated not reflected",
			state: QueryState{
				MaxIterations: 10, Schema: testSchema, SQLQuery: validSQL,
				ExecutionResult:  &Execution{Success: true, Result: salesResult()},
				ValidationResult: &Validation{IsValid: true, HasResults: true},
			},
			want: ActionReflect,
		},
		{
			name: "reflected without explanation",
			state: QueryState{
				MaxIterations: 10, Schema: testSchema, SQLQuery: validSQL,
				ExecutionResult:  &Execution{Success: true, Result: salesResult()},
				ValidationResult: &Validation{IsValid: true, HasResults: true},
				ReflectionResult: &Reflection{IsAcceptable: true},
			},
			want: ActionGenerateExplanation,
		},
		{
			name: "everything set",
			state: QueryState{
				MaxIterations: 10, Schema: testSchema, SQLQuery: validSQL,
				ExecutionResult:  &Execution{Success: true, Result: salesResult()},
				ValidationResult: &Validation{IsValid: true, HasResults: true},
				ReflectionResult: &Reflection{IsAcceptable: true},
				Explanation:      "done",
			},
			want: ActionComplete,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := tt.state
			a.plan(&st)
			assert.Equal(t, tt.want, st.NextAction)
			assert.Equal(t, 1, st.Iteration)
		})
	}
}

func TestPlanBudgetGuard(t *testing.T) {
	a := planAgent(t)

	st := QueryState{MaxIterations: 3, Iteration: 3, Schema: testSchema}
	a.plan(&st)

	assert.Equal(t, ActionComplete, st.NextAction)
	assert.LessOrEqual(t, st.Iteration, st.MaxIterations)
	assert.Contains(t, st.Error, "maximum iterations")
}

func TestPlanBudgetGuardAfterResults(t *testing.T) {
	a := planAgent(t)

	st := QueryState{
		MaxIterations:   3,
		Iteration:       3,
		Schema:          testSchema,
		SQLQuery:        validSQL,
		ExecutionResult: &Execution{Success: true, Result: salesResult()},
	}
	a.plan(&st)

	assert.Equal(t, ActionComplete, st.NextAction)
	assert.Empty(t, st.Error, "a finished pipeline hitting the guard is not a failure")
}

func TestReflectCriticalErrorTriggersRefine(t *testing.T) {
	a := planAgent(t)

	st := QueryState{
		MaxIterations:    3,
		Iteration:        1,
		Schema:           testSchema,
		SQLQuery:         "SELECT * FROM foo WHERE client_id = 1",
		ExecutionResult:  &Execution{Success: false, Error: "no such table: foo"},
		ValidationResult: &Validation{IsValid: true},
	}
	a.reflect(&st)

	require.NotNil(t, st.ReflectionResult)
	assert.True(t, st.ReflectionResult.ShouldRefine)
	assert.False(t, st.ReflectionResult.IsAcceptable)

	assert.Empty(t, st.SQLQuery)
	assert.Nil(t, st.ExecutionResult)
	assert.Nil(t, st.ValidationResult)
	assert.Equal(t, ActionPlan, st.NextAction)
}

func TestReflectBudgetExhaustedProceeds(t *testing.T) {
	a := planAgent(t)

	st := QueryState{
		MaxIterations:    3,
		Iteration:        3,
		Schema:           testSchema,
		SQLQuery:         "SELECT * FROM foo WHERE client_id = 1",
		ExecutionResult:  &Execution{Success: false, Error: "no such table: foo"},
		ValidationResult: &Validation{IsValid: true},
	}
	a.reflect(&st)

	require.NotNil(t, st.ReflectionResult)
	assert.True(t, st.ReflectionResult.ShouldRefine)

	assert.NotEmpty(t, st.SQLQuery, "state must not be reset when the budget is spent")
	assert.NotNil(t, st.ExecutionResult)
	assert.Equal(t, ActionGenerateExplanation, st.NextAction)
	assert.NotEmpty(t, st.Error)
}

func TestReflectNonCriticalErrorProceeds(t *testing.T) {
	a := planAgent(t)

	st := QueryState{
		MaxIterations:   3,
		Iteration:       1,
		ExecutionResult: &Execution{Success: false, Error: "database is locked"},
	}
	a.reflect(&st)

	require.NotNil(t, st.ReflectionResult)
	assert.False(t, st.ReflectionResult.ShouldRefine)
	assert.True(t, st.ReflectionResult.IsAcceptable)
	assert.Equal(t, ActionPlan, st.NextAction)
}

func TestReflectEmptyResultsNotCritical(t *testing.T) {
	a := planAgent(t)

	st := QueryState{
		MaxIterations:    3,
		Iteration:        1,
		ExecutionResult:  &Execution{Success: true, Result: &execdb.Result{RowCount: 0}},
		ValidationResult: &Validation{IsValid: true, HasResults: false},
	}
	a.reflect(&st)

	require.NotNil(t, st.ReflectionResult)
	assert.False(t, st.ReflectionResult.ShouldRefine)
	assert.Contains(t, st.ReflectionResult.Issues, "Query returned no results")
}

func TestValidateResults(t *testing.T) {
	v := validateResults(&Execution{Success: true, Result: salesResult()})
	assert.True(t, v.IsValid)
	assert.True(t, v.HasResults)
	assert.Equal(t, 2, v.RowCount)
	assert.Empty(t, v.Issues)

	v = validateResults(&Execution{Success: false, Error: "no such table: foo"})
	assert.True(t, v.IsValid)
	assert.False(t, v.HasResults)
	require.Len(t, v.Issues, 2)
	assert.Contains(t, v.Issues[1], "no such table")
}

func TestExtractSQL(t *testing.T) {
	tests := []struct {
		name  string
		reply string
		want  string
	}{
		{"bare statement", "SELECT 1", "SELECT 1"},
		{"sql fence", "```sql\nSELECT 1\n```", "SELECT 1"},
		{"upper fence", "```SQL\nSELECT 1\n```", "SELECT 1"},
		{"plain fence", "```\nSELECT 1\n```", "SELECT 1"},
		{"multiline", "```sql\nSELECT a,\n  b\nFROM t\n```", "SELECT a,\n  b\nFROM t"},
		{"padded", "  SELECT 1  ", "SELECT 1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, extractSQL(tt.reply))
		})
	}
}

func TestStripJSONFences(t *testing.T) {
	assert.Equal(t, `{"a": 1}`, stripJSONFences("```json\n{\"a\": 1}\n```"))
	assert.Equal(t, `{"a": 1}`, stripJSONFences(`{"a": 1}`))
}

func TestActionString(t *testing.T) {
	assert.Equal(t, "generate_sql", ActionGenerateSQL.String())
	assert.Equal(t, "complete", ActionComplete.String())
}
