// Package main provides the CLI entry point for the Insight Magician
// backend.
//
// Insight Magician lets users upload SQLite databases, explore their
// schema, build dashboard widgets, and chat with an AI assistant that
// inspects and queries the data through server-side tools.
//
// # Basic Usage
//
// Start the server:
//
//	insight-magician serve --config insight-magician.yaml
//
// Validate a configuration file:
//
//	insight-magician config validate --config insight-magician.yaml
//
// # Environment Variables
//
// Provider credentials are usually supplied via the environment:
//
//   - OPENAI_API_KEY: OpenAI API key for GPT models
//   - ANTHROPIC_API_KEY: Anthropic API key for Claude models
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// defaultConfigName is the config file looked for when --config is not
// given. Starting without it falls back to built-in defaults plus
// environment variables.
const defaultConfigName = "insight-magician.yaml"

// Build information, populated by ldflags:
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD) -X main.date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := buildRootCmd().Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() to facilitate testing.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "insight-magician",
		Short: "Insight Magician - AI-assisted SQLite exploration",
		Long: `Insight Magician serves the backend for an AI-assisted data dashboard.

Users upload SQLite database files, inspect their schema, run read-only
queries for dashboard widgets, and chat with an assistant that answers
questions about the data by calling server-side tools.

Supported LLM providers: OpenAI (GPT), Anthropic (Claude)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
	)

	return rootCmd
}
