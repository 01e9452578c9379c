package main

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/nathan/competitor-lens/internal/db"
)

var statusCmd = &cobra.Command{
	Use:   "status <run-id>",
	Short: "Show the current state of an analysis run",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatusCmd,
}

var (
	statusConfigPath  string
	statusDatabaseURL string
)

func init() {
	statusCmd.Flags().StringVar(&statusConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	statusCmd.Flags().StringVar(&statusDatabaseURL, "db-url", "", "PostgreSQL connection URL (optional, defaults to DATABASE_URL env var)")
	rootCmd.AddCommand(statusCmd)
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	runID, err := uuid.Parse(args[0])
	if err != nil {
		return fmt.Errorf("invalid run id %q: %w", args[0], err)
	}

	cfg, err := resolveConfig(statusConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("db-url") {
		cfg.DatabaseURL = statusDatabaseURL
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable or --db-url flag is required")
	}

	database, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	defer database.Close()

	run, err := database.GetRun(ctx, runID)
	if err != nil {
		return err
	}
	if run == nil {
		return fmt.Errorf("no run with id %s", runID)
	}

	return printJSON(run)
}
