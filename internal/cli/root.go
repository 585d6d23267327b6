// Package cli provides the command-line interface for vaulttag.
package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/vaulttag/vaulttag/internal/config"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	verbose bool

	// Global config and logger, initialized before any command runs
	cfg       config.Config
	logger    *slog.Logger
	logCloser func() error
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "vaulttag",
	Short: "AI metadata tagging for Markdown vaults",
	Long: `Vaulttag enriches the Markdown documents of an Obsidian-style vault
with machine-generated metadata: a summary, keyword tags, and a resolved
date, written into each document's YAML frontmatter.

Documents are processed concurrently through a local or remote
OpenAI-compatible model endpoint, with atomic writes and an idempotency
marker so a vault is never corrupted and never tagged twice.`,
	Version: Version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		cfg = config.Load()

		level := cfg.LogLevel
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCloser = config.SetupLogger(cfg.LogFile, level)
		slog.SetDefault(logger)

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logCloser != nil {
			logCloser()
		}
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	// Add subcommands
	rootCmd.AddCommand(runCmd)
}
