package config

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSetupLoggerWithWriters_FanOut(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelInfo)

	logger.Info("pass complete", "written", 3)

	if !strings.Contains(stderr.String(), "pass complete") {
		t.Errorf("stderr output missing message: %q", stderr.String())
	}

	var entry map[string]any
	if err := json.Unmarshal(file.Bytes(), &entry); err != nil {
		t.Fatalf("file output is not JSON: %v\n%s", err, file.String())
	}
	if entry["msg"] != "pass complete" {
		t.Errorf("file entry msg = %v", entry["msg"])
	}
	if entry["written"] != float64(3) {
		t.Errorf("file entry written = %v", entry["written"])
	}
}

func TestSetupLoggerWithWriters_LevelFilter(t *testing.T) {
	var stderr, file bytes.Buffer
	logger := SetupLoggerWithWriters(&stderr, &file, slog.LevelWarn)

	logger.Debug("noise")
	logger.Info("also noise")

	if stderr.Len() != 0 || file.Len() != 0 {
		t.Errorf("below-level records emitted: stderr=%q file=%q", stderr.String(), file.String())
	}
}
