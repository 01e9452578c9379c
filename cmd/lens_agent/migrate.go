package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nathan/competitor-lens/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run database migrations",
	RunE:  runMigrate,
}

var (
	migrateConfigPath string
	migrateDir        string
	migrateDirection  string
	migrateSteps      int
)

func init() {
	migrateCmd.Flags().StringVar(&migrateConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	migrateCmd.Flags().StringVar(&migrateDir, "dir", "file://migrations", "migrations source (file://migrations)")
	migrateCmd.Flags().StringVar(&migrateDirection, "direction", "up", "up or down")
	migrateCmd.Flags().IntVar(&migrateSteps, "steps", 0, "number of steps (0 = all)")
	rootCmd.AddCommand(migrateCmd)
}

func runMigrate(_ *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(migrateConfigPath)
	if err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}

	return db.Migrate(migrateDir, cfg.DatabaseURL, migrateDirection, migrateSteps)
}
