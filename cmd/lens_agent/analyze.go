package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nathan/competitor-lens/internal/db"
	"github.com/nathan/competitor-lens/internal/llm"
	"github.com/nathan/competitor-lens/internal/pipeline"
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze <project-id>",
	Short: "Run the analysis pipeline for a project",
	Long: `Creates or reuses an analysis run for the project and executes it to completion:
input validation -> evidence gate -> competitor profiles -> opportunity synthesis -> artifact persistence.

Re-running for unchanged inputs returns the already-completed run instead of spending tokens again.`,
	Args: cobra.ExactArgs(1),
	RunE: runAnalyze,
}

var (
	analyzeConfigPath  string
	analyzeDatabaseURL string
	analyzeAPIKey      string
	analyzeVerbose     bool
)

func init() {
	analyzeCmd.Flags().StringVar(&analyzeConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	analyzeCmd.Flags().StringVar(&analyzeDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	analyzeCmd.Flags().StringVar(&analyzeAPIKey, "api-key", "", "Gemini API Key (optional, defaults to GEMINI_API_KEY env var)")
	analyzeCmd.Flags().BoolVarP(&analyzeVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.AddCommand(analyzeCmd)
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	projectID := args[0]

	cfg, err := resolveConfig(analyzeConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = analyzeDatabaseURL
	}
	if cmd.Flags().Changed("api-key") {
		cfg.APIKey = analyzeAPIKey
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = analyzeVerbose
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable or --api-key flag is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	client, err := llm.NewClient(ctx, modelConfig(cfg), cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}
	defer func() { _ = client.Close() }()

	logger := newLogger(cfg.Verbose)
	coord := pipeline.NewCoordinator(database, database, logger, cfg.StaleThreshold())
	exec := pipeline.NewExecutor(coord, database, database, database, client, logger)

	run, execute, err := coord.CreateOrReuseRun(ctx, projectID)
	if err != nil {
		return err
	}

	if execute {
		if err := exec.Execute(ctx, run); err != nil {
			// Run state carries the failure detail; still print it below.
			logger.Error("run failed", "run_id", run.ID, "error", err)
		}
	}

	if err := printJSON(run); err != nil {
		return err
	}
	if run.Status == pipeline.StatusFailed {
		return fmt.Errorf("run %s failed: [%s] %s", run.ID, run.ErrorCode, run.ErrorMessage)
	}
	return nil
}
