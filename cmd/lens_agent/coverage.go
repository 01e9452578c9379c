package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nathan/competitor-lens/internal/db"
	"github.com/nathan/competitor-lens/internal/evidence"
)

var coverageCmd = &cobra.Command{
	Use:   "coverage <project-id>",
	Short: "Report evidence coverage and readiness for a project",
	Long: `Computes evidence coverage for a project and the readiness verdict the pipeline
would apply, without starting a run. Useful for checking what evidence to collect next.`,
	Args: cobra.ExactArgs(1),
	RunE: runCoverage,
}

var (
	coverageConfigPath  string
	coverageDatabaseURL string
)

func init() {
	coverageCmd.Flags().StringVar(&coverageConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	coverageCmd.Flags().StringVar(&coverageDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	rootCmd.AddCommand(coverageCmd)
}

func runCoverage(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	projectID := args[0]

	cfg, err := resolveConfig(coverageConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = coverageDatabaseURL
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	rows, err := database.ListEvidence(ctx, projectID)
	if err != nil {
		return err
	}

	cov := evidence.ComputeCoverage(rows, time.Now().UTC())
	return printJSON(map[string]any{
		"coverage":  cov,
		"readiness": evidence.EvaluateReadiness(cov),
	})
}
