package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/pterm/pterm"

	"sqlscout/internal/agent"
)

// runInteractive is the default mode: a conversational prompt where each
// line is a question and follow-ups resolve against the session history.
func runInteractive() error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.shutdown()

	session := uuid.NewString()
	activeDataset := a.registry.Default()
	activeTenant := 1

	pterm.DefaultBox.
		WithTitle(pterm.NewStyle(pterm.FgCyan, pterm.Bold).Sprint("sqlscout")).
		Println("Ask questions in plain English.\nCommands: /dataset <id>, /tenant <id>, /clear, /help, /quit")
	pterm.Println()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		pterm.Print(pterm.NewStyle(pterm.FgLightCyan, pterm.Bold).Sprintf("%s> ", activeDataset))
		if !scanner.Scan() {
			break
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			quit, err := handleCommand(a, line, &session, &activeDataset, &activeTenant)
			if err != nil {
				pterm.Error.Println(err)
			}
			if quit {
				break
			}
			continue
		}

		ctx, cancel := signalContext()
		spinner, _ := pterm.DefaultSpinner.Start("Working on it...")
		resp := a.agent.Run(ctx, agent.Request{
			Query:     line,
			SessionID: session,
			TenantID:  activeTenant,
			DatasetID: activeDataset,
		})
		_ = spinner.Stop()
		cancel()

		renderResponse(resp)
		pterm.Println()
	}
	return scanner.Err()
}

// handleCommand processes a /command line. Returns true to quit.
func handleCommand(a *app, line string, session *string, activeDataset *string, activeTenant *int) (bool, error) {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit", "/q":
		return true, nil

	case "/help":
		pterm.Println("/dataset <id>  switch dataset")
		pterm.Println("/tenant <id>   switch tenant")
		pterm.Println("/clear         clear conversation history and start a new session")
		pterm.Println("/datasets      list datasets")
		pterm.Println("/quit          exit")
		return false, nil

	case "/datasets":
		for _, s := range a.registry.List() {
			pterm.Printf("  %s - %s\n", s.ID, s.Name)
		}
		return false, nil

	case "/dataset":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /dataset <id>")
		}
		if _, err := a.registry.Get(fields[1]); err != nil {
			return false, err
		}
		*activeDataset = fields[1]
		pterm.Success.Printf("Switched to dataset %s\n", fields[1])
		return false, nil

	case "/tenant":
		if len(fields) != 2 {
			return false, fmt.Errorf("usage: /tenant <id>")
		}
		var id int
		if _, err := fmt.Sscanf(fields[1], "%d", &id); err != nil || id <= 0 {
			return false, fmt.Errorf("invalid tenant id %q", fields[1])
		}
		*activeTenant = id
		pterm.Success.Printf("Switched to tenant %d\n", id)
		return false, nil

	case "/clear":
		a.store.Clear(*session)
		*session = uuid.NewString()
		pterm.Success.Println("Conversation history cleared")
		return false, nil
	}
	return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
}
