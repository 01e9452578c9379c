package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nathan/competitor-lens/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST API server",
	Long:  `Start an HTTP server exposing REST endpoints for starting analysis runs, polling run status, and reading decision models.`,
	RunE:  runServe,
}

var (
	serveConfigPath string
	serveAddr       string
	serveVerbose    bool
)

func init() {
	serveCmd.Flags().StringVar(&serveConfigPath, "config", "", "Path to config.json file (values can be overridden by other flags)")
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Address to listen on")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Print detailed debug information")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := resolveConfig(serveConfigPath)
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") || cfg.ListenAddr == "" {
		cfg.ListenAddr = serveAddr
	}
	if cmd.Flags().Changed("verbose") {
		cfg.Verbose = serveVerbose
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if cfg.APIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY environment variable is required")
	}

	srv, err := server.New(context.Background(), server.Config{
		Addr:           cfg.ListenAddr,
		DatabaseURL:    cfg.DatabaseURL,
		APIKey:         cfg.APIKey,
		StaleThreshold: cfg.StaleThreshold(),
		Models:         modelConfig(cfg),
	}, newLogger(cfg.Verbose))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	return srv.Start()
}
