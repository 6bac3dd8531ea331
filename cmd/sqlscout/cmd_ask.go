package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"sqlscout/internal/agent"
)

var askCmd = &cobra.Command{
	Use:   "ask [question]",
	Short: "Ask a natural language question against a dataset",
	Long: `Runs one question through the full workflow and prints the generated
SQL, the results and a plain-English explanation.

Examples:
  sqlscout ask "Show me top 10 products by revenue"
  sqlscout ask --dataset market_size "Largest categories in 2024"
  sqlscout ask --session s1 "What about Q4?"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func runAsk(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.shutdown()

	ctx, cancel := signalContext()
	defer cancel()

	question := strings.Join(args, " ")
	session := sessionID
	if session == "" {
		session = uuid.NewString()
	}
	logger.Info("Asking", zap.String("question", question), zap.String("session", session))

	resp := a.agent.Run(ctx, agent.Request{
		Query:     question,
		SessionID: session,
		TenantID:  tenantID,
		DatasetID: datasetID,
	})
	renderResponse(resp)
	if !resp.Success && !resp.NeedsClarification {
		return fmt.Errorf("query failed: %s", resp.Error)
	}
	return nil
}

// renderResponse prints one workflow outcome.
func renderResponse(resp agent.Response) {
	if resp.NeedsClarification {
		pterm.Println()
		pterm.Println(pterm.NewStyle(pterm.FgYellow, pterm.Bold).Sprint("I need a bit more detail:"))
		for _, q := range resp.Questions {
			pterm.Println("  • " + q)
		}
		pterm.Println()
		pterm.Println("Re-ask with the missing detail, e.g. append: Additional context: <your answer>")
		return
	}

	if !resp.Success {
		pterm.Error.Println(resp.Error)
		if resp.Security != nil && !resp.Security.Passed {
			renderVerdict(*resp.Security)
		}
		return
	}

	if resp.IsFollowup && resp.Resolution != nil {
		pterm.Println(pterm.NewStyle(pterm.FgLightCyan).Sprint("→ Interpreted as: ") +
			resp.Resolution.InterpretedAs)
	}

	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("SQL"))
	pterm.Println(resp.SQL)

	if resp.Results != nil && resp.Results.RowCount > 0 {
		pterm.Println()
		renderResultTable(resp)
	} else {
		pterm.Println()
		pterm.Info.Println("No rows returned")
	}

	if resp.Explanation != "" {
		pterm.Println()
		pterm.Println(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("Explanation"))
		pterm.Println(resp.Explanation)
	}

	if resp.Security != nil && len(resp.Security.Warnings) > 0 {
		pterm.Println()
		for _, w := range resp.Security.Warnings {
			pterm.Warning.Println(w.Message)
		}
	}

	rowCount := 0
	if resp.Results != nil {
		rowCount = resp.Results.RowCount
	}
	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("%d row(s), %d iteration(s), %d tool call(s)",
		rowCount, resp.Iterations, resp.ToolCalls))
}

const maxRenderRows = 25

// renderResultTable prints the result set as a table, capped for readability.
func renderResultTable(resp agent.Response) {
	res := resp.Results
	data := pterm.TableData{res.Columns}
	for i, row := range res.Rows {
		if i >= maxRenderRows {
			break
		}
		cells := make([]string, 0, len(res.Columns))
		for _, col := range res.Columns {
			v, ok := row[col]
			if !ok || v == nil {
				cells = append(cells, "")
				continue
			}
			cells = append(cells, fmt.Sprintf("%v", v))
		}
		data = append(data, cells)
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	if res.RowCount > maxRenderRows {
		pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("... %d more row(s)", res.RowCount-maxRenderRows))
	}
}
