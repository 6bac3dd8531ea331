package agent

import (
	"fmt"

	"sqlscout/internal/execdb"
	"sqlscout/internal/followup"
	"sqlscout/internal/security"
	"sqlscout/internal/tools"
)

// Action is the orchestrator's routing decision. The run loop switches
// exhaustively over it; there are no free-text routes.
type Action int

const (
	ActionClarifyCheck Action = iota
	ActionPlan
	ActionGetSchema
	ActionGenerateSQL
	ActionExecuteSQL
	ActionValidateResults
	ActionReflect
	ActionGenerateExplanation
	ActionComplete
)

func (a Action) String() string {
	switch a {
	case ActionClarifyCheck:
		return "clarify_check"
	case ActionPlan:
		return "plan"
	case ActionGetSchema:
		return "get_schema"
	case ActionGenerateSQL:
		return "generate_sql"
	case ActionExecuteSQL:
		return "execute_sql"
	case ActionValidateResults:
		return "validate_results"
	case ActionReflect:
		return "reflect"
	case ActionGenerateExplanation:
		return "generate_explanation"
	case ActionComplete:
		return "complete"
	}
	return fmt.Sprintf("action(%d)", int(a))
}

// Execution captures one execute_sql outcome as data. Executor failures
// land in Error so reflection can inspect them; they are never thrown.
type Execution struct {
	Success bool           `json:"success"`
	Result  *execdb.Result `json:"result,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// Validation is the lightweight result-quality check.
type Validation struct {
	IsValid    bool     `json:"is_valid"`
	HasResults bool     `json:"has_results"`
	RowCount   int      `json:"row_count"`
	Issues     []string `json:"issues"`
}

// Reflection records the post-execution quality decision.
type Reflection struct {
	IsAcceptable bool     `json:"is_acceptable"`
	ShouldRefine bool     `json:"should_refine"`
	Issues       []string `json:"issues"`
	Reasoning    string   `json:"reasoning"`
}

// QueryState is the record threaded through the workflow nodes. Nodes
// mutate it sequentially; there is no fan-out within one request.
type QueryState struct {
	UserQuery     string
	ResolvedQuery string
	SessionID     string
	TenantID      int
	DatasetID     string

	Iteration     int
	MaxIterations int

	Schema           string
	SQLQuery         string
	ExecutionResult  *Execution
	ValidationResult *Validation
	SecurityVerdict  *security.Verdict
	ReflectionResult *Reflection
	Explanation      string

	ClarificationNeeded    bool
	ClarificationQuestions []string
	SkipClarifyCheck       bool

	IsFollowup bool
	Resolution *followup.Resolution

	ToolCalls []tools.Result

	NextAction Action
	IsComplete bool
	Error      string
}

// Request is one natural-language query against a dataset.
type Request struct {
	Query         string
	SessionID     string
	TenantID      int
	DatasetID     string
	MaxIterations int
}

// ResolutionInfo reports how a follow-up utterance was interpreted.
type ResolutionInfo struct {
	InterpretedAs  string  `json:"interpreted_as"`
	Confidence     float64 `json:"confidence"`
	Interpretation string  `json:"interpretation"`
}

// Response is the terminal outcome of one request. Exactly one of the
// three outcomes holds: SQL+results, clarification questions, or Error.
type Response struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`

	SQL         string         `json:"sql,omitempty"`
	Results     *execdb.Result `json:"results,omitempty"`
	Explanation string         `json:"explanation,omitempty"`

	NeedsClarification bool     `json:"needs_clarification"`
	Questions          []string `json:"questions,omitempty"`

	Validation *Validation       `json:"validation,omitempty"`
	Reflection *Reflection       `json:"reflection,omitempty"`
	Security   *security.Verdict `json:"security_validation,omitempty"`

	IsFollowup bool            `json:"is_followup"`
	Resolution *ResolutionInfo `json:"resolution_info,omitempty"`

	Iterations int    `json:"iterations"`
	ToolCalls  int    `json:"tool_calls"`
	Error      string `json:"error,omitempty"`
}
