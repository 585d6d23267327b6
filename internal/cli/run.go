package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/vaulttag/vaulttag/internal/llm"
	"github.com/vaulttag/vaulttag/internal/pipeline"
	"github.com/vaulttag/vaulttag/internal/vault"
)

const timeRounding = 100 * time.Millisecond

var (
	runDryRun           bool
	runForce            bool
	runWorkers          int
	runModelConcurrency int
	runCharThreshold    int
	runNoProgress       bool
)

var runCmd = &cobra.Command{
	Use:   "run <vault>",
	Short: "Tag the Markdown documents of a vault",
	Long: `Run one tagging pass over a vault.

Every Markdown document is read, its date resolved, and — when the body
is long enough — a summary and tags are generated by the model endpoint.
The merged frontmatter is committed atomically; documents already
carrying the idempotency marker are skipped.

In dry-run mode nothing is modified: the full set of planned changes is
written to metadata-dryrun.json in the vault root instead.

Examples:
  vaulttag run ~/vault --dry-run
  vaulttag run ~/vault
  vaulttag run ~/vault --force --workers 8 --model-concurrency 2`,
	Args: cobra.ExactArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "compute changes without modifying any document")
	runCmd.Flags().BoolVarP(&runForce, "force", "f", false, "reprocess already-tagged documents and overwrite protected fields")
	runCmd.Flags().IntVarP(&runWorkers, "workers", "w", 0, "file worker count (default from config)")
	runCmd.Flags().IntVar(&runModelConcurrency, "model-concurrency", 0, "max concurrent model calls (default from config)")
	runCmd.Flags().IntVar(&runCharThreshold, "char-threshold", -1, "minimum body length for model calls (default from config)")
	runCmd.Flags().BoolVar(&runNoProgress, "no-progress", false, "disable the interactive progress bar")
}

func runRun(cmd *cobra.Command, args []string) error {
	vaultRoot := args[0]

	info, err := os.Stat(vaultRoot)
	if err != nil {
		return fmt.Errorf("invalid vault path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("vault path must be a directory: %s", vaultRoot)
	}

	// Flag overrides on top of the env-loaded config
	if runWorkers > 0 {
		cfg.Workers = runWorkers
	}
	if runModelConcurrency > 0 {
		cfg.ModelConcurrency = runModelConcurrency
	}
	if runCharThreshold >= 0 {
		cfg.CharThreshold = runCharThreshold
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	files, err := vault.Scan(vaultRoot, cfg.IgnoreDirs)
	if err != nil {
		return fmt.Errorf("scan vault: %w", err)
	}
	if len(files) == 0 {
		fmt.Printf("No Markdown files found under %s\n", vaultRoot)
		return nil
	}

	gateway, err := llm.NewGateway(cfg, logger)
	if err != nil {
		return fmt.Errorf("init model gateway: %w", err)
	}
	coordinator := pipeline.New(cfg, gateway, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	opts := pipeline.Options{DryRun: runDryRun, Force: runForce}

	var report *pipeline.Report
	if useProgressUI() {
		report, err = runWithProgress(ctx, coordinator, files, opts)
		if err != nil {
			return err
		}
	} else {
		report = coordinator.Run(ctx, files, opts)
	}

	return finishRun(vaultRoot, report)
}

// useProgressUI enables the interactive bar only on real terminals and
// when verbose logging is not drawing over it.
func useProgressUI() bool {
	return !runNoProgress && !verbose && term.IsTerminal(int(os.Stdout.Fd()))
}

// finishRun writes the run artifacts and prints the final summary.
func finishRun(vaultRoot string, report *pipeline.Report) error {
	if report.Mode == "simulate" {
		path, err := pipeline.WriteDryRunReport(vaultRoot, report)
		if err != nil {
			return err
		}
		fmt.Printf("Dry run complete. Planned changes written to %s\n", path)
	}

	if path, err := pipeline.WriteErrorLog(vaultRoot, report); err != nil {
		return err
	} else if path != "" {
		fmt.Printf("Error log saved to %s\n", path)
	}

	fmt.Printf("\nProcessed %d documents in %s:\n",
		len(report.Results), report.FinishedAt.Sub(report.StartedAt).Round(timeRounding))
	fmt.Printf("  written:   %d\n", report.Count(pipeline.StatusWritten))
	fmt.Printf("  simulated: %d\n", report.Count(pipeline.StatusSimulated))
	fmt.Printf("  skipped:   %d\n", report.Count(pipeline.StatusSkipped))
	fmt.Printf("  failed:    %d\n", report.Count(pipeline.StatusFailed))

	if sources := report.DateSources(); len(sources) > 0 {
		fmt.Printf("\nDate sources:\n")
		for _, src := range []string{"AI", "Filename", "FileSystem"} {
			if n := sources[src]; n > 0 {
				fmt.Printf("  %s: %d\n", src, n)
			}
		}
	}

	return nil
}
