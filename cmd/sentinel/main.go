// Package main provides the CLI entry point for Sentinel, an
// AI-agent runtime that bridges an LLM provider to messaging
// platforms through a capability-based security layer.
//
// # Basic Usage
//
// Start the runtime:
//
//	sentinel serve --config sentinel.yaml
//
// Validate a configuration file without starting anything:
//
//	sentinel config validate --config sentinel.yaml
//
// List discovered skills:
//
//	sentinel skills list --config sentinel.yaml
//
// Tail the audit log:
//
//	sentinel audit-log tail --config sentinel.yaml
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd assembles the command tree. Kept separate from main
// so tests can exercise it without calling os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "sentinel",
		Short: "Sentinel - capability-secured AI agent runtime",
		Long: `Sentinel bridges an LLM provider to messaging platforms through a
capability-based security layer: every filesystem read/write, command
execution, network connection, and allowed user is checked against an
explicit process-wide grant before it happens, and every decision is
recorded to an append-only audit log.

Supported connectors: Telegram, Discord, Slack
Supported LLM providers: Anthropic (Claude), OpenAI (GPT)`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildServeCmd(),
		buildConfigCmd(),
		buildSkillsCmd(),
		buildAuditLogCmd(),
	)

	return rootCmd
}
