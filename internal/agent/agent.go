// Package agent runs the query workflow: clarification, planning, SQL
// generation, guarded execution, reflection and explanation, driven by a
// single state record per request.
package agent

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"sqlscout/internal/dataset"
	"sqlscout/internal/execdb"
	"sqlscout/internal/followup"
	"sqlscout/internal/llm"
	"sqlscout/internal/logging"
	"sqlscout/internal/memory"
	"sqlscout/internal/observability"
)

// DefaultMaxIterations bounds planning passes per request. Every planning
// decision consumes one iteration, not just refinement retries: a clean
// clarify-generate-execute-validate-reflect-explain run takes seven passes,
// so a small per-retry style budget would truncate mid-pipeline. Ten covers
// a full pass plus one refinement cycle.
const DefaultMaxIterations = 10

// DefaultCriticalErrorKeywords drive the reflection retry decision.
// Substring match, lowercase, against the executor error message.
var DefaultCriticalErrorKeywords = []string{
	"syntax error", "parse error", "invalid sql",
	"unknown column", "unknown table",
	"no such table", "no such column",
}

// SchemaSource provides schema text for a dataset.
type SchemaSource interface {
	Schema(ctx context.Context, datasetID string) (string, error)
}

// Guidance provides domain instruction text for SQL generation prompts.
type Guidance interface {
	Text() string
}

// Runner executes read-only SQL against one dataset.
type Runner interface {
	Query(ctx context.Context, sqlText string) (*execdb.Result, error)
	Close() error
}

// Params wires an Agent. Client, Registry, Schemas and Store are required.
type Params struct {
	Client   llm.Client
	Registry *dataset.Registry
	Schemas  SchemaSource
	Guidance Guidance
	Store    *memory.Store
	Resolver *followup.Resolver

	MaxIterations         int
	RequestTimeout        time.Duration
	CriticalErrorKeywords []string
	Executor              execdb.Options

	// OpenRunner overrides how executors are opened. Defaults to the
	// dataset's SQLite database.
	OpenRunner func(ds *dataset.Dataset) (Runner, error)
}

// Agent orchestrates one request at a time per Run call. It is safe for
// concurrent Run calls; all per-request state lives in the QueryState.
type Agent struct {
	client   llm.Client
	registry *dataset.Registry
	schemas  SchemaSource
	guidance Guidance
	store    *memory.Store
	resolver *followup.Resolver

	maxIterations    int
	requestTimeout   time.Duration
	criticalKeywords []string
	openRunner       func(ds *dataset.Dataset) (Runner, error)
}

// New builds an Agent from Params, applying defaults.
func New(p Params) (*Agent, error) {
	if p.Client == nil {
		return nil, fmt.Errorf("agent: llm client is required")
	}
	if p.Registry == nil {
		return nil, fmt.Errorf("agent: dataset registry is required")
	}
	if p.Schemas == nil {
		return nil, fmt.Errorf("agent: schema source is required")
	}
	if p.Store == nil {
		return nil, fmt.Errorf("agent: memory store is required")
	}

	a := &Agent{
		client:           p.Client,
		registry:         p.Registry,
		schemas:          p.Schemas,
		guidance:         p.Guidance,
		store:            p.Store,
		resolver:         p.Resolver,
		maxIterations:    p.MaxIterations,
		requestTimeout:   p.RequestTimeout,
		criticalKeywords: p.CriticalErrorKeywords,
		openRunner:       p.OpenRunner,
	}
	if a.resolver == nil {
		a.resolver = followup.NewResolver(p.Client, 0)
	}
	if a.maxIterations <= 0 {
		a.maxIterations = DefaultMaxIterations
	}
	if len(a.criticalKeywords) == 0 {
		a.criticalKeywords = DefaultCriticalErrorKeywords
	}
	if a.openRunner == nil {
		opts := p.Executor
		a.openRunner = func(ds *dataset.Dataset) (Runner, error) {
			return execdb.Open(ds, opts)
		}
	}
	return a, nil
}

// runtime holds per-request resources that outlive a single node.
type runtime struct {
	agent  *Agent
	ds     *dataset.Dataset
	runner Runner
}

// Runner opens the dataset executor on first use.
func (rt *runtime) Runner() (Runner, error) {
	if rt.runner != nil {
		return rt.runner, nil
	}
	r, err := rt.agent.openRunner(rt.ds)
	if err != nil {
		return nil, err
	}
	rt.runner = r
	return r, nil
}

func (rt *runtime) close() {
	if rt.runner != nil {
		if err := rt.runner.Close(); err != nil {
			logging.ExecutorError("Closing executor for %s: %v", rt.ds.ID, err)
		}
		rt.runner = nil
	}
}

// Run handles one request end to end and always returns a Response;
// infrastructure failures are reported inside it, never panicked.
func (a *Agent) Run(ctx context.Context, req Request) Response {
	start := time.Now()
	requestID := uuid.NewString()[:8]
	log := logging.WithRequestID(logging.CategoryAgent, requestID)

	if req.SessionID == "" {
		req.SessionID = uuid.NewString()
	}
	if req.TenantID <= 0 {
		req.TenantID = 1
	}
	if req.DatasetID == "" {
		req.DatasetID = a.registry.Default()
	}
	if req.MaxIterations <= 0 {
		req.MaxIterations = a.maxIterations
	}

	if a.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.requestTimeout)
		defer cancel()
	}

	log.Info("Starting workflow: session=%s dataset=%s query=%q",
		req.SessionID, req.DatasetID, truncate(req.Query, 100))

	ds, err := a.registry.Get(req.DatasetID)
	if err != nil {
		return Response{SessionID: req.SessionID, Error: err.Error()}
	}

	history := a.store.History(req.SessionID)
	isFollowup, confidence := followup.Detect(req.Query, history)

	resolvedQuery := req.Query
	var resolution *followup.Resolution
	if isFollowup {
		log.Info("Follow-up detected (confidence %.2f)", confidence)
		r := a.resolver.Resolve(ctx, req.Query, history)
		resolution = &r
		resolvedQuery = r.ResolvedQuery
		if r.LowConfidence {
			log.Warn("Low resolution confidence %.2f, using anyway", r.Confidence)
		}
	} else {
		log.Debug("New query (not a follow-up)")
	}

	st := &QueryState{
		UserQuery:        req.Query,
		ResolvedQuery:    resolvedQuery,
		SessionID:        req.SessionID,
		TenantID:         req.TenantID,
		DatasetID:        req.DatasetID,
		MaxIterations:    req.MaxIterations,
		IsFollowup:       isFollowup,
		Resolution:       resolution,
		SkipClarifyCheck: strings.Contains(req.Query, "Additional context:"),
		NextAction:       ActionClarifyCheck,
	}

	rt := &runtime{agent: a, ds: ds}
	defer rt.close()

	if err := a.runWorkflow(ctx, st, rt); err != nil {
		log.Error("Workflow aborted: %v", err)
		st.Error = err.Error()
	}

	observability.ObserveAgentIterations(st.Iteration)
	log.Info("Workflow completed in %v, %d iteration(s)", time.Since(start), st.Iteration)

	if st.SQLQuery != "" && !st.ClarificationNeeded && st.Error == "" {
		a.writeHistory(st)
	}

	return a.formatResponse(st)
}

// runWorkflow drives the state machine to a terminal action. The step
// cap is a routing-bug backstop; the planning budget terminates first.
func (a *Agent) runWorkflow(ctx context.Context, st *QueryState, rt *runtime) error {
	const maxSteps = 100
	for steps := 0; steps < maxSteps; steps++ {
		switch st.NextAction {
		case ActionClarifyCheck:
			a.clarifyCheck(ctx, st)
		case ActionPlan:
			a.plan(st)
		case ActionGetSchema, ActionExecuteSQL, ActionValidateResults:
			a.executeTools(ctx, st, rt)
		case ActionGenerateSQL:
			a.generateSQL(ctx, st, rt.ds)
		case ActionReflect:
			a.reflect(st)
		case ActionGenerateExplanation:
			a.generateExplanation(ctx, st)
		case ActionComplete:
			st.IsComplete = true
			return nil
		default:
			return fmt.Errorf("unroutable action %s", st.NextAction)
		}
	}
	return fmt.Errorf("workflow exceeded %d steps without completing", maxSteps)
}

// writeHistory appends the completed query to session memory.
func (a *Agent) writeHistory(st *QueryState) {
	var res *execdb.Result
	if st.ExecutionResult != nil {
		res = st.ExecutionResult.Result
	}
	entry := memory.Entry{
		UserQuery:      st.UserQuery,
		ResolvedQuery:  st.ResolvedQuery,
		SQL:            st.SQLQuery,
		ResultsSummary: memory.SummarizeResults(res),
		KeyEntities:    memory.ExtractEntities(st.SQLQuery),
		IsFollowup:     st.IsFollowup,
	}
	a.store.Append(st.SessionID, entry)
	logging.Session("Appended history entry for session %s (%d dimension(s), %d metric(s))",
		st.SessionID, len(entry.KeyEntities.Dimensions), len(entry.KeyEntities.Metrics))
}

func (a *Agent) formatResponse(st *QueryState) Response {
	if st.ClarificationNeeded {
		return Response{
			SessionID:          st.SessionID,
			NeedsClarification: true,
			Questions:          st.ClarificationQuestions,
			IsFollowup:         st.IsFollowup,
			Iterations:         st.Iteration,
			ToolCalls:          len(st.ToolCalls),
		}
	}

	resp := Response{
		Success:     st.Error == "",
		SessionID:   st.SessionID,
		SQL:         st.SQLQuery,
		Explanation: st.Explanation,
		Validation:  st.ValidationResult,
		Reflection:  st.ReflectionResult,
		Security:    st.SecurityVerdict,
		IsFollowup:  st.IsFollowup,
		Iterations:  st.Iteration,
		ToolCalls:   len(st.ToolCalls),
		Error:       st.Error,
	}
	if st.ExecutionResult != nil {
		resp.Results = st.ExecutionResult.Result
	}
	if st.IsFollowup && st.Resolution != nil {
		resp.Resolution = &ResolutionInfo{
			InterpretedAs:  st.Resolution.ResolvedQuery,
			Confidence:     st.Resolution.Confidence,
			Interpretation: st.Resolution.Interpretation,
		}
	}
	return resp
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
