package pipeline

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DryRunFile is the simulation report written into the vault root.
const DryRunFile = "metadata-dryrun.json"

// dryRunEntry is one planned change in the simulation report.
type dryRunEntry struct {
	Path       string         `json:"path"`
	DateSource string         `json:"date_source"`
	OldMeta    map[string]any `json:"old_metadata"`
	NewMeta    map[string]any `json:"new_metadata"`
}

// errorEntry is one failed document in the error log artifact.
type errorEntry struct {
	Path      string    `json:"path"`
	Error     string    `json:"error"`
	Timestamp time.Time `json:"timestamp"`
}

// WriteDryRunReport writes the full set of planned changes to
// metadata-dryrun.json in the vault root and returns the path.
func WriteDryRunReport(vaultRoot string, report *Report) (string, error) {
	entries := make([]dryRunEntry, 0, len(report.Results))
	for _, res := range report.Simulated() {
		entries = append(entries, dryRunEntry{
			Path:       relPath(vaultRoot, res.Path),
			DateSource: res.DateSource,
			OldMeta:    res.OldMeta,
			NewMeta:    res.NewMeta,
		})
	}

	path := filepath.Join(vaultRoot, DryRunFile)
	if err := writeJSON(path, entries); err != nil {
		return "", fmt.Errorf("write dry-run report: %w", err)
	}
	return path, nil
}

// WriteErrorLog persists all failed results as one structured artifact
// named with the run timestamp and ID. Returns "" when nothing failed.
func WriteErrorLog(vaultRoot string, report *Report) (string, error) {
	failures := report.Failed()
	if len(failures) == 0 {
		return "", nil
	}

	entries := make([]errorEntry, 0, len(failures))
	for _, res := range failures {
		entries = append(entries, errorEntry{
			Path:      relPath(vaultRoot, res.Path),
			Error:     res.Error,
			Timestamp: res.Timestamp,
		})
	}

	name := fmt.Sprintf("vaulttag-errors-%s-%s.json",
		report.StartedAt.Format("2006-01-02T15-04-05"), report.RunID)
	path := filepath.Join(vaultRoot, name)
	if err := writeJSON(path, entries); err != nil {
		return "", fmt.Errorf("write error log: %w", err)
	}
	return path, nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0644)
}

func relPath(root, path string) string {
	if rel, err := filepath.Rel(root, path); err == nil {
		return rel
	}
	return path
}
