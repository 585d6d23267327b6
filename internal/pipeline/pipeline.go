// Package pipeline implements the concurrent vault-processing pass: a
// bounded pool of file workers fed from the scanner's sequence, sharing
// one model gateway, with per-document failure isolation.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/vaulttag/vaulttag/internal/config"
	"github.com/vaulttag/vaulttag/internal/metadata"
	"github.com/vaulttag/vaulttag/internal/vault"
)

// Generator produces metadata for a document body. Implemented by
// llm.Gateway; tests substitute counting fakes.
type Generator interface {
	Generate(ctx context.Context, body string) (*metadata.Generated, error)
}

// Options selects the operating mode of a pass.
type Options struct {
	// DryRun computes changes without touching any document.
	DryRun bool
	// Force overrides the idempotency short-circuit and the merger's
	// overwrite protection.
	Force bool
	// Progress, when set, is called after each document reaches a
	// terminal state. Must be safe for concurrent use.
	Progress func(done, total int)
}

// Coordinator owns the worker pool and aggregates results.
type Coordinator struct {
	cfg config.Config
	gen Generator
	log *slog.Logger
}

// New creates a coordinator. The generator is shared across workers and
// carries its own concurrency limiter.
func New(cfg config.Config, gen Generator, log *slog.Logger) *Coordinator {
	if log == nil {
		log = slog.Default()
	}
	return &Coordinator{cfg: cfg, gen: gen, log: log}
}

// Run processes every file to a terminal state and returns the report.
// One document failing never aborts the others. Cancelling ctx stops the
// model gateway promptly and drains the remaining queue as skipped;
// a commit already underway finishes its rename-or-discard step.
func (c *Coordinator) Run(ctx context.Context, files []string, opts Options) *Report {
	report := &Report{
		RunID:     uuid.New().String()[:8],
		Mode:      modeLabel(opts.DryRun),
		StartedAt: time.Now(),
		Results:   make([]Result, 0, len(files)),
	}

	total := len(files)
	c.log.Info("starting pass",
		"run_id", report.RunID,
		"mode", report.Mode,
		"files", total,
		"workers", c.cfg.Workers,
		"model_concurrency", c.cfg.ModelConcurrency,
		"force", opts.Force)

	var (
		done      atomic.Int32
		resultsMu sync.Mutex
	)

	fileChan := make(chan string, total)
	var wg sync.WaitGroup

	for i := 0; i < c.cfg.Workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for file := range fileChan {
				var res Result
				if ctx.Err() != nil {
					res = Result{
						Path:      file,
						Status:    StatusSkipped,
						Reason:    "run cancelled",
						Timestamp: time.Now(),
					}
				} else {
					c.log.Debug("processing document", "worker", workerID, "file", filepath.Base(file))
					res = c.safeProcess(ctx, file, opts)
				}

				resultsMu.Lock()
				report.Results = append(report.Results, res)
				resultsMu.Unlock()

				if opts.Progress != nil {
					opts.Progress(int(done.Add(1)), total)
				}
			}
		}(i)
	}

	for _, file := range files {
		fileChan <- file
	}
	close(fileChan)
	wg.Wait()

	report.FinishedAt = time.Now()
	c.log.Info("pass complete",
		"run_id", report.RunID,
		"written", report.Count(StatusWritten),
		"simulated", report.Count(StatusSimulated),
		"skipped", report.Count(StatusSkipped),
		"failed", report.Count(StatusFailed))
	return report
}

// safeProcess converts a panic while processing one document into a
// Failed result, so a single pathological document never takes down the
// pool or the report.
func (c *Coordinator) safeProcess(ctx context.Context, path string, opts Options) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			c.log.Error("recovered panic while processing document",
				"file", filepath.Base(path), "panic", r)
			res = failed(Result{Path: path, Timestamp: time.Now()}, fmt.Errorf("internal error: %v", r))
		}
	}()
	return c.process(ctx, path, opts)
}

// process runs one document through marker check, date resolution, model
// generation, merge, and commit (or simulation).
func (c *Coordinator) process(ctx context.Context, path string, opts Options) Result {
	res := Result{Path: path, Timestamp: time.Now()}

	doc, err := vault.Read(path)
	if err != nil {
		return failed(res, err)
	}

	// Marker short-circuit before any resolver or gateway work: on a
	// large previously-tagged vault this is what keeps reruns cheap.
	if doc.MarkerSet() && !opts.Force {
		res.Status = StatusSkipped
		res.Reason = "already tagged"
		return res
	}

	info, err := os.Stat(path)
	if err != nil {
		return failed(res, fmt.Errorf("stat document: %w", err))
	}

	var gen *metadata.Generated
	if len(doc.Body) >= c.cfg.CharThreshold {
		gen, err = c.gen.Generate(ctx, doc.Body)
		if err != nil {
			// Marker stays unset so the next run retries the document.
			return failed(res, err)
		}
	} else {
		c.log.Debug("body below model threshold",
			"file", filepath.Base(path), "chars", len(doc.Body), "threshold", c.cfg.CharThreshold)
	}

	date := metadata.ResolveDate(gen, filepath.Base(path), info.ModTime(), c.cfg.DateConfidenceThreshold)
	res.DateSource = date.Tier.String()

	newMeta := metadata.Merge(metadata.MergeInput{
		Existing:  doc.Frontmatter,
		Generated: gen,
		Date:      date,
		Title:     doc.Title(),
		Body:      doc.Body,
		Force:     opts.Force,
		Complete:  true,
	})

	if opts.DryRun {
		res.Status = StatusSimulated
		res.OldMeta = doc.Frontmatter
		res.NewMeta = newMeta
		return res
	}

	content, err := vault.Serialize(newMeta, doc.Body)
	if err != nil {
		return failed(res, err)
	}
	if err := vault.Commit(path, content); err != nil {
		return failed(res, err)
	}

	res.Status = StatusWritten
	res.NewMeta = newMeta
	return res
}

func failed(res Result, err error) Result {
	res.Status = StatusFailed
	res.Error = err.Error()
	return res
}

func modeLabel(dryRun bool) string {
	if dryRun {
		return "simulate"
	}
	return "commit"
}
