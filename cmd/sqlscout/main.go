package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"sqlscout/internal/agent"
	"sqlscout/internal/config"
	"sqlscout/internal/dataset"
	"sqlscout/internal/execdb"
	"sqlscout/internal/followup"
	"sqlscout/internal/knowledge"
	"sqlscout/internal/llm"
	"sqlscout/internal/logging"
	"sqlscout/internal/memory"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string

	// Query flags
	sessionID string
	tenantID  int
	datasetID string

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "sqlscout",
	Short: "sqlscout - agentic text-to-SQL query engine",
	Long: `sqlscout answers natural language questions against tenant-isolated
analytical databases.

It plans a workflow per question: ambiguity check, SQL generation,
security validation, guarded execution, reflection-driven retry, and a
plain-English explanation of the results. Follow-up questions are
resolved against per-session conversation memory.

Run without arguments to start the interactive prompt.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapConfig := zap.NewProductionConfig()
		if verbose {
			zapConfig.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapConfig.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runInteractive()
	},
}

// app holds the wired engine for one CLI invocation.
type app struct {
	cfg      *config.Config
	registry *dataset.Registry
	store    *memory.Store
	guidance *knowledge.Instructions
	agent    *agent.Agent
	cancel   context.CancelFunc
}

// newApp loads configuration and wires the engine.
func newApp() (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	ws := workspace
	if ws == "" {
		ws, _ = os.Getwd()
	}
	if err := logging.Initialize(ws); err != nil {
		logger.Warn("File logging disabled", zap.Error(err))
	}

	registry := dataset.NewRegistry()
	if cfg.Datasets.RegistryPath != "" {
		registry, err = dataset.LoadRegistry(cfg.Datasets.RegistryPath)
		if err != nil {
			return nil, fmt.Errorf("loading dataset registry: %w", err)
		}
	}
	if cfg.Datasets.Default != "" {
		if err := registry.SetDefault(cfg.Datasets.Default); err != nil {
			return nil, err
		}
	}

	client, err := llm.New(llm.Config{
		Provider: cfg.LLM.Provider,
		APIKey:   cfg.LLM.APIKey,
		Model:    cfg.LLM.Model,
		BaseURL:  cfg.LLM.BaseURL,
		Timeout:  cfg.GetLLMTimeout(),
	})
	if err != nil {
		return nil, err
	}
	traced := llm.NewTracingClient(client, cfg.LLM.Provider)

	guidance, err := knowledge.NewInstructions(cfg.Knowledge.InstructionsDir)
	if err != nil {
		return nil, fmt.Errorf("loading instructions: %w", err)
	}

	store := memory.NewStore(cfg.Memory.HistoryLimit)

	ctx, cancel := context.WithCancel(context.Background())
	if ttl := cfg.GetSessionTTL(); ttl > 0 {
		store.StartJanitor(ctx, ttl)
	}
	if err := guidance.Start(ctx); err != nil {
		logger.Warn("Instruction hot reload disabled", zap.Error(err))
	}

	eng, err := agent.New(agent.Params{
		Client:                traced,
		Registry:              registry,
		Schemas:               knowledge.NewSchemaProvider(registry, cfg.GetSchemaCacheTTL()),
		Guidance:              guidance,
		Store:                 store,
		Resolver:              followup.NewResolver(traced, cfg.Agent.FollowupConfidenceThreshold),
		MaxIterations:         cfg.Agent.MaxIterations,
		RequestTimeout:        cfg.GetRequestTimeout(),
		CriticalErrorKeywords: cfg.Agent.CriticalErrorKeywords,
		Executor: execdb.Options{
			MaxRows:      cfg.Executor.MaxRows,
			QueryTimeout: cfg.GetQueryTimeout(),
		},
	})
	if err != nil {
		cancel()
		return nil, err
	}

	return &app{
		cfg:      cfg,
		registry: registry,
		store:    store,
		guidance: guidance,
		agent:    eng,
		cancel:   cancel,
	}, nil
}

func (a *app) shutdown() {
	a.guidance.Stop()
	a.cancel()
	logging.CloseAll()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", ".sqlscout/config.yaml", "Configuration file path")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")

	askCmd.Flags().StringVar(&sessionID, "session", "", "Session ID for conversation context")
	askCmd.Flags().IntVar(&tenantID, "tenant", 1, "Tenant ID for data isolation")
	askCmd.Flags().StringVar(&datasetID, "dataset", "", "Dataset to query (default from config)")

	validateCmd.Flags().IntVar(&tenantID, "tenant", 1, "Tenant ID for data isolation")
	validateCmd.Flags().StringVar(&datasetID, "dataset", "", "Dataset whose isolation rules apply")

	sessionsCmd.AddCommand(sessionsClearCmd)

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(datasetsCmd)
	rootCmd.AddCommand(tenantsCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// signalContext returns a context cancelled by SIGINT/SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
