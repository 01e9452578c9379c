// Package main provides the entry point for the competitor analysis CLI and
// HTTP API server.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "lens_agent",
	Short: "Competitor analysis run orchestrator",
	Long:  "lens_agent executes evidence-gated competitor analysis runs and assembles cited decision models, from the command line or via REST API.",
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
