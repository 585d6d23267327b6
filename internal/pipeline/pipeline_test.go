package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/vaulttag/vaulttag/internal/config"
	"github.com/vaulttag/vaulttag/internal/metadata"
	"github.com/vaulttag/vaulttag/internal/vault"
)

// fakeGenerator is a scriptable Generator that counts calls.
type fakeGenerator struct {
	mu    sync.Mutex
	calls int
	gen   metadata.Generated
	// bodies containing failOn (when non-empty) return an error;
	// bodies containing panicOn panic
	failOn  string
	panicOn string
}

func (f *fakeGenerator) Generate(ctx context.Context, body string) (*metadata.Generated, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	if f.panicOn != "" && strings.Contains(body, f.panicOn) {
		panic("generator blew up")
	}
	if f.failOn != "" && strings.Contains(body, f.failOn) {
		return nil, fmt.Errorf("model call: connection refused")
	}
	gen := f.gen
	return &gen, nil
}

func (f *fakeGenerator) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() config.Config {
	cfg := config.Load()
	cfg.Workers = 4
	cfg.ModelConcurrency = 2
	cfg.CharThreshold = 10
	return cfg
}

func writeNote(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func readNote(t *testing.T, path string) string {
	t.Helper()
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(raw)
}

func TestRun_CommitThenIdempotentSkip(t *testing.T) {
	dir := t.TempDir()
	a := writeNote(t, dir, "a.md", "This is a long enough note body about Go concurrency patterns.")
	b := writeNote(t, dir, "b.md", "---\ncategory: journal\n---\nAnother note body, also long enough for the model.")
	files := []string{a, b}

	gen := &fakeGenerator{gen: metadata.Generated{Summary: "A summary.", Tags: []string{"go"}}}
	c := New(testConfig(), gen, testLogger())

	report := c.Run(context.Background(), files, Options{})
	if got := report.Count(StatusWritten); got != 2 {
		t.Fatalf("written = %d, want 2: %+v", got, report.Results)
	}
	if gen.callCount() != 2 {
		t.Errorf("generator calls = %d, want 2", gen.callCount())
	}

	contentA := readNote(t, a)
	if !strings.Contains(contentA, "autoAiTag: true") {
		t.Errorf("marker missing after commit:\n%s", contentA)
	}
	if !strings.Contains(contentA, "summary: A summary.") {
		t.Errorf("summary missing after commit:\n%s", contentA)
	}
	contentB := readNote(t, b)
	if !strings.Contains(contentB, "category: journal") {
		t.Errorf("foreign key lost on commit:\n%s", contentB)
	}

	// Second pass: everything skips before touching the generator, and
	// the files stay byte-identical.
	report2 := c.Run(context.Background(), files, Options{})
	if got := report2.Count(StatusSkipped); got != 2 {
		t.Fatalf("second pass skipped = %d, want 2: %+v", got, report2.Results)
	}
	if gen.callCount() != 2 {
		t.Errorf("generator called on second pass: %d calls", gen.callCount())
	}
	if readNote(t, a) != contentA || readNote(t, b) != contentB {
		t.Error("second pass modified already-tagged documents")
	}
}

func TestRun_BelowThresholdSkipsModel(t *testing.T) {
	dir := t.TempDir()
	path := writeNote(t, dir, "short.md", "tiny")

	cfg := testConfig()
	cfg.CharThreshold = 1000

	gen := &fakeGenerator{}
	c := New(cfg, gen, testLogger())

	report := c.Run(context.Background(), []string{path}, Options{})
	if got := report.Count(StatusWritten); got != 1 {
		t.Fatalf("written = %d, want 1: %+v", got, report.Results)
	}
	if gen.callCount() != 0 {
		t.Errorf("generator calls = %d, want 0 for below-threshold body", gen.callCount())
	}

	content := readNote(t, path)
	if strings.Contains(content, "summary:") {
		t.Errorf("summary written without a model call:\n%s", content)
	}
	if !strings.Contains(content, "wordCount: 1") {
		t.Errorf("wordCount missing:\n%s", content)
	}
	if !strings.Contains(content, "Date:") {
		t.Errorf("date missing:\n%s", content)
	}
}

func TestRun_DryRunLeavesVaultUntouched(t *testing.T) {
	dir := t.TempDir()
	original := "A long enough note body for the model threshold here."
	path := writeNote(t, dir, "note.md", original)

	gen := &fakeGenerator{gen: metadata.Generated{Summary: "s", Tags: []string{"t"}}}
	c := New(testConfig(), gen, testLogger())

	report := c.Run(context.Background(), []string{path}, Options{DryRun: true})
	if got := report.Count(StatusSimulated); got != 1 {
		t.Fatalf("simulated = %d, want 1: %+v", got, report.Results)
	}
	if readNote(t, path) != original {
		t.Error("dry run mutated the document")
	}

	sim := report.Simulated()[0]
	if sim.NewMeta[vault.KeySummary] != "s" {
		t.Errorf("simulated metadata missing summary: %v", sim.NewMeta)
	}
	if sim.NewMeta[vault.KeyMarker] != true {
		t.Errorf("simulated metadata missing marker: %v", sim.NewMeta)
	}
}

func TestRun_GatewayFailureIsolated(t *testing.T) {
	dir := t.TempDir()
	bad := writeNote(t, dir, "bad.md", "This body will FAIL at the model gateway, long enough.")
	good := writeNote(t, dir, "good.md", "This body succeeds at the model gateway, long enough.")
	badOriginal := readNote(t, bad)

	gen := &fakeGenerator{gen: metadata.Generated{Summary: "s"}, failOn: "FAIL"}
	c := New(testConfig(), gen, testLogger())

	report := c.Run(context.Background(), []string{bad, good}, Options{})
	if got := report.Count(StatusFailed); got != 1 {
		t.Fatalf("failed = %d, want 1: %+v", got, report.Results)
	}
	if got := report.Count(StatusWritten); got != 1 {
		t.Fatalf("written = %d, want 1: %+v", got, report.Results)
	}

	// The failed document is untouched: no marker, retried next run.
	if readNote(t, bad) != badOriginal {
		t.Error("failed document was modified")
	}

	failure := report.Failed()[0]
	if failure.Path != bad {
		t.Errorf("failed path = %q, want %q", failure.Path, bad)
	}
	if failure.Error == "" {
		t.Error("failed result carries no error description")
	}
}

func TestRun_PanicBecomesFailedResult(t *testing.T) {
	dir := t.TempDir()
	bad := writeNote(t, dir, "bad.md", "This body makes the generator BOOM, long enough to process.")
	good := writeNote(t, dir, "good.md", "This body processes normally, long enough for the model.")
	badOriginal := readNote(t, bad)

	gen := &fakeGenerator{gen: metadata.Generated{Summary: "s"}, panicOn: "BOOM"}
	c := New(testConfig(), gen, testLogger())

	report := c.Run(context.Background(), []string{bad, good}, Options{})
	if got := report.Count(StatusFailed); got != 1 {
		t.Fatalf("failed = %d, want 1: %+v", got, report.Results)
	}
	if got := report.Count(StatusWritten); got != 1 {
		t.Fatalf("written = %d, want 1: %+v", got, report.Results)
	}

	failure := report.Failed()[0]
	if failure.Path != bad {
		t.Errorf("failed path = %q, want %q", failure.Path, bad)
	}
	if !strings.Contains(failure.Error, "internal error") {
		t.Errorf("failure error = %q, want recovered panic description", failure.Error)
	}
	if readNote(t, bad) != badOriginal {
		t.Error("document modified despite processing panic")
	}
}

func TestRun_ForceReprocessesTagged(t *testing.T) {
	dir := t.TempDir()
	path := writeNote(t, dir, "done.md",
		"---\nautoAiTag: true\nsummary: human-authored\n---\nLong enough body for the model threshold.")

	gen := &fakeGenerator{gen: metadata.Generated{Summary: "generated"}}
	c := New(testConfig(), gen, testLogger())

	report := c.Run(context.Background(), []string{path}, Options{})
	if got := report.Count(StatusSkipped); got != 1 {
		t.Fatalf("skipped = %d, want 1 without force", got)
	}
	if gen.callCount() != 0 {
		t.Errorf("generator called for a marked document")
	}

	report = c.Run(context.Background(), []string{path}, Options{Force: true})
	if got := report.Count(StatusWritten); got != 1 {
		t.Fatalf("written = %d, want 1 with force: %+v", got, report.Results)
	}
	if gen.callCount() != 1 {
		t.Errorf("generator calls = %d, want 1 with force", gen.callCount())
	}
	if !strings.Contains(readNote(t, path), "summary: generated") {
		t.Error("force did not overwrite the protected summary")
	}
}

func TestRun_UnparseableDocumentFails(t *testing.T) {
	dir := t.TempDir()
	bad := writeNote(t, dir, "broken.md", "---\ntitle: [unclosed\n---\nBody long enough either way.")
	good := writeNote(t, dir, "fine.md", "A perfectly fine note body, long enough for processing.")

	gen := &fakeGenerator{gen: metadata.Generated{Summary: "s"}}
	c := New(testConfig(), gen, testLogger())

	report := c.Run(context.Background(), []string{bad, good}, Options{})
	if got := report.Count(StatusFailed); got != 1 {
		t.Fatalf("failed = %d, want 1: %+v", got, report.Results)
	}
	if got := report.Count(StatusWritten); got != 1 {
		t.Fatalf("written = %d, want 1: %+v", got, report.Results)
	}
}

func TestRun_CancelledContextDrainsAsSkipped(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i := 0; i < 5; i++ {
		files = append(files, writeNote(t, dir, fmt.Sprintf("n%d.md", i), "Long enough note body for processing."))
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gen := &fakeGenerator{}
	c := New(testConfig(), gen, testLogger())

	report := c.Run(ctx, files, Options{})
	if len(report.Results) != len(files) {
		t.Fatalf("results = %d, want %d (every dispatched document reaches a terminal state)", len(report.Results), len(files))
	}
	for _, res := range report.Results {
		if res.Status != StatusSkipped {
			t.Errorf("%s status = %s, want skipped after cancellation", res.Path, res.Status)
		}
	}
	if gen.callCount() != 0 {
		t.Errorf("generator called after cancellation: %d", gen.callCount())
	}
}

func TestRun_ProgressReachesTotal(t *testing.T) {
	dir := t.TempDir()
	var files []string
	for i := 0; i < 7; i++ {
		files = append(files, writeNote(t, dir, fmt.Sprintf("n%d.md", i), "Long enough note body for processing."))
	}

	var mu sync.Mutex
	var last int
	opts := Options{
		DryRun: true,
		Progress: func(done, total int) {
			mu.Lock()
			if done > last {
				last = done
			}
			mu.Unlock()
			if total != len(files) {
				t.Errorf("progress total = %d, want %d", total, len(files))
			}
		},
	}

	c := New(testConfig(), &fakeGenerator{}, testLogger())
	c.Run(context.Background(), files, opts)

	mu.Lock()
	defer mu.Unlock()
	if last != len(files) {
		t.Errorf("final progress = %d, want %d", last, len(files))
	}
}
