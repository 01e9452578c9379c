package main

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/nathan/competitor-lens/internal/config"
	"github.com/nathan/competitor-lens/internal/llm"
)

// resolveConfig layers a config file (when given) over environment values.
// Per-command flag overrides are applied by the caller on top of the result.
func resolveConfig(path string) (config.Config, error) {
	cfg := config.FromEnv()
	if path == "" {
		return cfg, nil
	}
	loaded, err := config.LoadConfig(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("failed to load config: %w", err)
	}
	return loaded.MergeWithDefaults(cfg), nil
}

func newLogger(verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// modelConfig applies per-tier model overrides to the Gemini defaults.
func modelConfig(cfg config.Config) *llm.Config {
	models := llm.DefaultGeminiConfig()
	if cfg.ModelLite != "" {
		models = models.WithModel(llm.TierLite, cfg.ModelLite)
	}
	if cfg.ModelStandard != "" {
		models = models.WithModel(llm.TierStandard, cfg.ModelStandard)
	}
	if cfg.ModelAdvanced != "" {
		models = models.WithModel(llm.TierAdvanced, cfg.ModelAdvanced)
	}
	return models
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
