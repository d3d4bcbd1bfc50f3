package logging_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"fpsync/internal/config"
	"fpsync/internal/logging"
)

func TestNewFromConfigWritesStateLog(t *testing.T) {
	cfg := config.Default()
	cfg.Paths.StateDir = t.TempDir()
	cfg.Logging.Format = "json"

	logger, err := logging.NewFromConfig(&cfg)
	if err != nil {
		t.Fatalf("NewFromConfig returned error: %v", err)
	}
	logger.Info("hello", logging.String(logging.FieldRecordID, "smart_plug"))

	content, err := os.ReadFile(filepath.Join(cfg.Paths.StateDir, "fpsync.log"))
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(content), `"record_id":"smart_plug"`) {
		t.Fatalf("expected record_id in log output, got %q", content)
	}
}

func TestConsoleLoggerOmitsSourceForInfo(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "console.log")
	logger, err := logging.New(logging.Options{
		Format: "console",
		Level:  "info",
		Paths:  []string{logPath},
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.NewComponentLogger(logger, "merge").Info("applied candidates", logging.Int("added", 3))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := string(content)
	if strings.Contains(line, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", line)
	}
	if !strings.Contains(line, "merge: applied candidates") || !strings.Contains(line, "added=3") {
		t.Fatalf("unexpected console line %q", line)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestWithContextAddsRunFields(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "ctx.log")
	logger, err := logging.New(logging.Options{Format: "json", Paths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithRunID(context.Background(), "run-1")
	ctx = logging.WithSource(ctx, "web")
	logging.WithContext(ctx, logger).Info("fetched")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(string(data))), &entry); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if entry["run_id"] != "run-1" || entry["source"] != "web" {
		t.Fatalf("missing context fields: %v", entry)
	}
}

func TestWarnWithContextInjectsDefaults(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "warn.log")
	logger, err := logging.New(logging.Options{Format: "json", Paths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.WarnWithContext(logger, "source unavailable", "source_unavailable")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	for _, key := range []string{`"event_type":"source_unavailable"`, `"error_hint"`, `"impact"`} {
		if !strings.Contains(string(data), key) {
			t.Fatalf("expected %s in %s", key, data)
		}
	}
}

func TestConsolePinsRunFieldsAfterMessage(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "pinned.log")
	logger, err := logging.New(logging.Options{Format: "console", Paths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithRunID(context.Background(), "0123456789abcdef")
	ctx = logging.WithRecordID(ctx, "smart_plug")
	component := logging.NewComponentLogger(logger, "merge")
	logging.WithContext(ctx, component).Info("record updated", logging.Int("added", 2), logging.String("note", "two words"))

	content, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	line := strings.TrimSpace(string(content))
	want := `merge: record updated run=01234567 record=smart_plug added=2 note="two words"`
	if !strings.HasSuffix(line, want) {
		t.Fatalf("console line %q does not end with %q", line, want)
	}
	if !strings.Contains(line, " INFO  merge:") {
		t.Fatalf("expected padded level label in %q", line)
	}
}
