package main

import (
	"fmt"
	"strings"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"sqlscout/internal/execdb"
	"sqlscout/internal/security"
)

var datasetsCmd = &cobra.Command{
	Use:   "datasets",
	Short: "List the datasets available for querying",
	RunE:  runDatasets,
}

var tenantsCmd = &cobra.Command{
	Use:   "tenants [dataset]",
	Short: "List tenants present in a dataset",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runTenants,
}

var validateCmd = &cobra.Command{
	Use:   "validate [sql]",
	Short: "Run the security validator over a SQL statement",
	Long: `Checks a statement against the tenant isolation rules of a dataset
without executing it.

Example:
  sqlscout validate --tenant 5 "SELECT * FROM sales WHERE client_id = 5"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runValidate,
}

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Manage conversation sessions",
}

var sessionsClearCmd = &cobra.Command{
	Use:   "clear [session-id]",
	Short: "Clear a session's conversation history",
	Args:  cobra.ExactArgs(1),
	RunE:  runSessionsClear,
}

func runDatasets(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.shutdown()

	data := pterm.TableData{{"ID", "Name", "Schema", "Fact tables", "Description"}}
	for _, s := range a.registry.List() {
		data = append(data, []string{
			s.ID, s.Name, s.SchemaType,
			strings.Join(s.FactTables, ", "),
			s.Description,
		})
	}
	if err := pterm.DefaultTable.WithHasHeader().WithData(data).Render(); err != nil {
		return err
	}
	pterm.Println()
	pterm.Println(pterm.NewStyle(pterm.FgGray).Sprintf("default: %s", a.registry.Default()))
	return nil
}

func runTenants(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.shutdown()

	id := a.registry.Default()
	if len(args) == 1 {
		id = args[0]
	}
	ds, err := a.registry.Get(id)
	if err != nil {
		return err
	}

	exec, err := execdb.Open(ds, execdb.Options{
		MaxRows:      a.cfg.Executor.MaxRows,
		QueryTimeout: a.cfg.GetQueryTimeout(),
	})
	if err != nil {
		return fmt.Errorf("opening dataset %s: %w", id, err)
	}
	defer exec.Close()

	ctx, cancel := signalContext()
	defer cancel()

	tenants, err := exec.ListTenants(ctx)
	if err != nil {
		return err
	}

	data := pterm.TableData{{"ID", "Name", "Industry"}}
	for _, t := range tenants {
		data = append(data, []string{fmt.Sprintf("%d", t.ID), t.Name, t.Industry})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func runValidate(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.shutdown()

	id := datasetID
	if id == "" {
		id = a.registry.Default()
	}
	ds, err := a.registry.Get(id)
	if err != nil {
		return err
	}

	sqlText := strings.Join(args, " ")
	verdict := security.Validate(sqlText, tenantID, ds.Isolation)
	renderVerdict(verdict)
	if !verdict.Passed {
		return fmt.Errorf("validation failed: %s", strings.Join(verdict.FailedChecks(), ", "))
	}
	return nil
}

func renderVerdict(v security.Verdict) {
	data := pterm.TableData{{"Check", "Status", "Message"}}
	for _, c := range v.Checks {
		data = append(data, []string{c.Name, c.Status, c.Message})
	}
	_ = pterm.DefaultTable.WithHasHeader().WithData(data).Render()
	for _, w := range v.Warnings {
		pterm.Warning.Println(w.Message)
	}
	if v.Passed {
		pterm.Success.Println("All security checks passed")
	}
}

func runSessionsClear(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.shutdown()

	a.store.Clear(args[0])
	pterm.Success.Printf("Cleared session %s\n", args[0])
	return nil
}
