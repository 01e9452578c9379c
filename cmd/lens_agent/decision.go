package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nathan/competitor-lens/internal/db"
	"github.com/nathan/competitor-lens/internal/decision"
)

var decisionCmd = &cobra.Command{
	Use:   "decision <project-id>",
	Short: "Assemble and print the decision model for a project",
	Long: `Assembles the decision model from the newest persisted artifacts: opportunities,
competitor profiles, scorecard, and the evidence summary. Scores are recomputed
during assembly, never echoed from storage.`,
	Args: cobra.ExactArgs(1),
	RunE: runDecision,
}

var (
	decisionConfigPath  string
	decisionDatabaseURL string
	decisionRunID       string
	decisionVerbose     bool
)

func init() {
	decisionCmd.Flags().StringVar(&decisionConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	decisionCmd.Flags().StringVar(&decisionDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	decisionCmd.Flags().StringVar(&decisionRunID, "run-id", "", "Restrict assembly to artifacts produced by this run")
	decisionCmd.Flags().BoolVarP(&decisionVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.AddCommand(decisionCmd)
}

func runDecision(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	projectID := args[0]

	cfg, err := resolveConfig(decisionConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = decisionDatabaseURL
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	assembler := decision.NewAssembler(database, newLogger(decisionVerbose))
	model, err := assembler.Assemble(ctx, projectID, decisionRunID)
	if err != nil {
		return err
	}

	return printJSON(model)
}
