package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"sqlscout/internal/dataset"
	"sqlscout/internal/execdb"
	"sqlscout/internal/llm"
	"sqlscout/internal/logging"
	"sqlscout/internal/observability"
	"sqlscout/internal/security"
	"sqlscout/internal/tools"
)

const maxClarificationQuestions = 4

type clarifyDecision struct {
	NeedsClarification bool     `json:"needs_clarification"`
	Questions          []string `json:"questions"`
}

// clarifyCheck asks the gateway whether the query is answerable. Any
// gateway or parse failure fails open: the query is treated as clear.
func (a *Agent) clarifyCheck(ctx context.Context, st *QueryState) {
	st.NextAction = ActionPlan
	if st.SkipClarifyCheck {
		logging.Agent("Clarified query detected, skipping ambiguity check")
		return
	}

	schema, err := a.schemas.Schema(ctx, st.DatasetID)
	if err != nil {
		logging.AgentDebug("Schema unavailable for ambiguity check: %v", err)
		schema = ""
	}

	out, err := a.client.CompleteWithOptions(ctx, llm.Options{
		System:    "You are a careful data analyst reviewing natural language database questions. Always respond in valid JSON.",
		Prompt:    buildClarifyPrompt(st.ResolvedQuery, schema),
		MaxTokens: 400,
	})
	if err != nil {
		logging.AgentWarn("Ambiguity check failed (%s), proceeding without it", llm.KindOf(err))
		return
	}

	var decision clarifyDecision
	if err := json.Unmarshal([]byte(stripJSONFences(out)), &decision); err != nil {
		logging.AgentWarn("Unparseable ambiguity verdict, proceeding: %v", err)
		return
	}
	if !decision.NeedsClarification || len(decision.Questions) == 0 {
		logging.Agent("Query appears clear, proceeding")
		return
	}

	questions := decision.Questions
	if len(questions) > maxClarificationQuestions {
		questions = questions[:maxClarificationQuestions]
	}
	logging.Agent("Ambiguity detected: %d question(s)", len(questions))
	st.ClarificationNeeded = true
	st.ClarificationQuestions = questions
	st.NextAction = ActionComplete
}

// plan picks the next node from whichever state field is still unset.
// It spends one iteration per decision; the budget guard terminates the
// workflow when the budget runs out mid-pipeline.
func (a *Agent) plan(st *QueryState) {
	st.Iteration++
	logging.AgentDebug("Planning iteration %d/%d", st.Iteration, st.MaxIterations)

	if st.Iteration > st.MaxIterations {
		st.Iteration = st.MaxIterations
		st.NextAction = ActionComplete
		if st.SQLQuery == "" || st.ExecutionResult == nil {
			st.Error = fmt.Sprintf("maximum iterations (%d) reached before a result was produced", st.MaxIterations)
			logging.AgentWarn("Iteration budget exhausted mid-pipeline")
		}
		return
	}

	switch {
	case st.Schema == "":
		st.NextAction = ActionGetSchema
	case st.SQLQuery == "":
		st.NextAction = ActionGenerateSQL
	case st.ExecutionResult == nil:
		st.NextAction = ActionExecuteSQL
	case st.ValidationResult == nil:
		st.NextAction = ActionValidateResults
	case st.ReflectionResult == nil:
		st.NextAction = ActionReflect
	case st.Explanation == "":
		st.NextAction = ActionGenerateExplanation
	default:
		st.NextAction = ActionComplete
	}
	logging.Agent("Planning decision: %s (iteration %d)", st.NextAction, st.Iteration)
}

// executeTools runs the tool selected by plan and folds its outcome back
// into the state. Tool failures are data; the workflow always proceeds.
func (a *Agent) executeTools(ctx context.Context, st *QueryState, rt *runtime) {
	action := st.NextAction
	st.NextAction = ActionPlan

	var tool *tools.Tool
	switch action {
	case ActionGetSchema:
		tool = &tools.Tool{
			Name:        "get_schema",
			Description: "Fetch the dataset schema with data availability guidance",
			Fn: func(ctx context.Context, args tools.Args) (any, error) {
				return a.schemas.Schema(ctx, st.DatasetID)
			},
		}
	case ActionExecuteSQL:
		tool = &tools.Tool{
			Name:        "execute_sql",
			Description: "Run the generated statement against the dataset",
			Fn: func(ctx context.Context, args tools.Args) (any, error) {
				runner, err := rt.Runner()
				if err != nil {
					return nil, err
				}
				return runner.Query(ctx, args.String("sql"))
			},
		}
	case ActionValidateResults:
		tool = &tools.Tool{
			Name:        "validate_results",
			Description: "Sanity-check the execution outcome",
			Fn: func(ctx context.Context, args tools.Args) (any, error) {
				return validateResults(st.ExecutionResult), nil
			},
		}
	default:
		st.Error = fmt.Sprintf("no tool for action %s", action)
		st.NextAction = ActionComplete
		return
	}

	res := tool.Execute(ctx, tools.Args{"sql": st.SQLQuery})
	st.ToolCalls = append(st.ToolCalls, res)

	switch action {
	case ActionGetSchema:
		if res.Success {
			st.Schema, _ = res.Result.(string)
		}
	case ActionExecuteSQL:
		exec := &Execution{Success: res.Success, Error: res.Error}
		if res.Success {
			exec.Result, _ = res.Result.(*execdb.Result)
		}
		st.ExecutionResult = exec
	case ActionValidateResults:
		if v, ok := res.Result.(*Validation); ok {
			st.ValidationResult = v
		}
	}
}

// validateResults checks the execution outcome. Empty results are
// reported as an issue but never invalidate the query.
func validateResults(exec *Execution) *Validation {
	v := &Validation{IsValid: true}
	if exec == nil {
		v.Issues = append(v.Issues, "No execution result")
		return v
	}
	if exec.Result != nil {
		v.RowCount = exec.Result.RowCount
		v.HasResults = exec.Result.RowCount > 0
	}
	if !v.HasResults {
		v.Issues = append(v.Issues, "No results returned")
	}
	if !exec.Success {
		v.Issues = append(v.Issues, fmt.Sprintf("Execution error: %s", exec.Error))
	}
	return v
}

// generateSQL builds the generation prompt, extracts a bare statement
// from the reply and gates it through the security validator. A failed
// verdict or gateway error is terminal.
func (a *Agent) generateSQL(ctx context.Context, st *QueryState, ds *dataset.Dataset) {
	timer := logging.StartTimer(logging.CategoryAgent, "generate_sql")
	defer timer.Stop()

	guidance := ""
	if a.guidance != nil {
		guidance = a.guidance.Text()
	}

	out, err := a.client.CompleteWithOptions(ctx, llm.Options{
		System: buildSQLSystemPrompt(st.Schema, ds.Isolation, st.TenantID, guidance),
		Prompt: buildSQLUserPrompt(st.ResolvedQuery, ds.Isolation.FilterField, st.TenantID),
	})
	if err != nil {
		kind := llm.KindOf(err)
		if kind == "" {
			kind = "error"
		}
		logging.AgentError("SQL generation failed: %v", err)
		st.Error = fmt.Sprintf("SQL generation failed (gateway %s)", kind)
		st.IsComplete = true
		st.NextAction = ActionComplete
		return
	}

	sqlText := extractSQL(out)
	logging.Agent("SQL generated: %s", truncate(sqlText, 100))

	verdict := security.Validate(sqlText, st.TenantID, ds.Isolation)
	st.SecurityVerdict = &verdict
	if !verdict.Passed {
		failed := verdict.FailedChecks()
		for _, name := range failed {
			observability.IncrementValidatorFailure(name)
		}
		logging.SecurityWarn("Security validation failed for session %s: %s",
			st.SessionID, strings.Join(failed, ", "))
		st.Error = fmt.Sprintf("Security validation failed: %s", strings.Join(failed, ", "))
		st.IsComplete = true
		st.NextAction = ActionComplete
		return
	}
	logging.Security("Security validation passed (%d warning(s))", len(verdict.Warnings))

	st.SQLQuery = sqlText
	st.NextAction = ActionPlan
}

// reflect classifies the execution outcome and applies the retry gate.
func (a *Agent) reflect(st *QueryState) {
	refl := &Reflection{IsAcceptable: true, Reasoning: "SQL quality acceptable"}

	if st.ExecutionResult != nil && !st.ExecutionResult.Success {
		errMsg := strings.ToLower(st.ExecutionResult.Error)
		critical := false
		for _, kw := range a.criticalKeywords {
			if strings.Contains(errMsg, kw) {
				critical = true
				break
			}
		}
		if critical {
			refl.IsAcceptable = false
			refl.ShouldRefine = true
			refl.Reasoning = "SQL has critical errors requiring retry"
			refl.Issues = append(refl.Issues, fmt.Sprintf("Critical SQL error: %s", errMsg))
			logging.AgentWarn("Critical error detected: %s", errMsg)
		} else {
			refl.Issues = append(refl.Issues, fmt.Sprintf("Non-critical error: %s", errMsg))
			logging.Agent("Non-critical error, proceeding: %s", errMsg)
		}
	}

	if st.ValidationResult != nil && !st.ValidationResult.HasResults {
		refl.Issues = append(refl.Issues, "Query returned no results")
	}

	st.ReflectionResult = refl

	if refl.ShouldRefine && st.Iteration < st.MaxIterations {
		logging.Agent("Refining SQL (iteration %d/%d)", st.Iteration, st.MaxIterations)
		st.SQLQuery = ""
		st.ExecutionResult = nil
		st.ValidationResult = nil
		st.NextAction = ActionPlan
		return
	}
	if refl.ShouldRefine {
		logging.AgentWarn("Refinement budget exhausted at iteration %d", st.Iteration)
		st.Error = fmt.Sprintf("query could not be repaired within %d iterations", st.MaxIterations)
		st.NextAction = ActionGenerateExplanation
		return
	}
	st.NextAction = ActionPlan
}

// generateExplanation summarizes results for a non-technical reader.
// Failures never abort the workflow; a templated line stands in.
func (a *Agent) generateExplanation(ctx context.Context, st *QueryState) {
	st.NextAction = ActionPlan

	var rows []map[string]any
	var columns []string
	if st.ExecutionResult != nil && st.ExecutionResult.Result != nil {
		rows = st.ExecutionResult.Result.Rows
		columns = st.ExecutionResult.Result.Columns
	}
	if len(rows) == 0 {
		st.Explanation = "The query returned no results. This might indicate that no data matches the specified criteria."
		return
	}

	rowCount := len(rows)
	sample := rows
	if len(sample) > 20 {
		sample = sample[:20]
	}

	out, err := a.client.CompleteWithOptions(ctx, llm.Options{
		System:      "You are a data insights analyst. Transform query results into clear, actionable insights.",
		Prompt:      buildExplanationPrompt(st.UserQuery, st.SQLQuery, columns, sample, rowCount),
		Temperature: llm.Temp(0.7),
		MaxTokens:   300,
	})
	if err != nil {
		logging.AgentWarn("Explanation generation failed, using fallback: %v", err)
		st.Explanation = fmt.Sprintf("Found %d result(s) for your query.", rowCount)
		return
	}
	st.Explanation = strings.TrimSpace(out)
}

// extractSQL strips markdown code fences from a model reply.
func extractSQL(reply string) string {
	sqlText := strings.TrimSpace(reply)
	if !strings.HasPrefix(sqlText, "```") {
		return sqlText
	}
	var kept []string
	for _, line := range strings.Split(sqlText, "\n") {
		switch strings.TrimSpace(line) {
		case "```", "```sql", "```SQL":
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

// stripJSONFences unwraps a fenced JSON object from a model reply.
func stripJSONFences(reply string) string {
	s := strings.TrimSpace(reply)
	if strings.HasPrefix(s, "```") {
		var kept []string
		for _, line := range strings.Split(s, "\n") {
			trimmed := strings.TrimSpace(line)
			if strings.HasPrefix(trimmed, "```") {
				continue
			}
			kept = append(kept, line)
		}
		s = strings.TrimSpace(strings.Join(kept, "\n"))
	}
	return s
}
