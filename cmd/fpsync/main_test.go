package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pelletier/go-toml/v2"

	"fpsync/internal/classify"
	"fpsync/internal/config"
	"fpsync/internal/device"
	"fpsync/internal/engine"
	"fpsync/internal/merge"
	"fpsync/internal/runlog"
	"fpsync/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
}

func setupCLITestEnv(t *testing.T, opts ...testsupport.ConfigOption) *cliTestEnv {
	t.Helper()
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GITHUB_TOKEN", "")

	cfg := testsupport.NewConfig(t, opts...)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "fpsync.toml")
	writeTestConfig(t, configPath, cfg)

	testsupport.WriteRecord(t, cfg.Paths.CorpusDir, testsupport.RecordFixture{
		ID:                 "smoke_detector",
		ManufacturerTokens: []string{"_TZ3000_smoke001"},
		ProductTokens:      []string{"TS0205"},
		Capabilities:       []string{"alarm_smoke"},
	})
	return &cliTestEnv{cfg: cfg, configPath: configPath}
}

func runCLI(t *testing.T, args []string, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}

func TestExtractCommandReportsCandidateAndConfidence(t *testing.T) {
	out, _, err := runCLI(t, []string{"extract",
		"Add support for TS0601 _TZE200_cwbvmsar thermostat",
		"New TS0601 support needed",
	}, "")
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	var got []extractResult
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	want := []extractResult{
		{
			Text:         "Add support for TS0601 _TZE200_cwbvmsar thermostat",
			Manufacturer: "_TZE200_cwbvmsar",
			Product:      "TS0601",
			Confidence:   55,
			Category:     device.CategoryClimate,
		},
		{
			Text:       "New TS0601 support needed",
			Confidence: 0,
			Category:   classify.ClassifyText("New TS0601 support needed"),
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("extract output mismatch (-want +got):\n%s", diff)
	}
}

func TestClassifyTextCommand(t *testing.T) {
	out, _, err := runCLI(t, []string{"classify", "--text", "Radiator thermostat with child lock"}, "")
	if err != nil {
		t.Fatalf("classify --text: %v", err)
	}
	requireContains(t, out, `"category": "climate"`)
}

func TestExtractRequiresInput(t *testing.T) {
	_, _, err := runCLI(t, []string{"extract"}, "")
	if err == nil {
		t.Fatal("expected error without text")
	}
	requireContains(t, err.Error(), "--stdin")
}

func TestExtractReadsStdin(t *testing.T) {
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader("_TZ3000_abcdefgh TS011F plug\n\n"))
	cmd.SetArgs([]string{"extract", "--stdin"})
	if err := cmd.Execute(); err != nil {
		t.Fatalf("extract --stdin: %v", err)
	}
	requireContains(t, stdout.String(), `"product_token": "TS011F"`)
}

func TestClassifyRecordByID(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"classify", "smoke_detector"}, env.configPath)
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	var got []classifyResult
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode output %q: %v", out, err)
	}
	want := []classifyResult{{ID: "smoke_detector", Classified: device.CategorySafety, Agrees: true}}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("classify mismatch (-want +got):\n%s", diff)
	}

	if _, _, err := runCLI(t, []string{"classify", "missing_device"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown record id")
	}
}

func TestDryRunCommandWritesNothing(t *testing.T) {
	env := setupCLITestEnv(t)
	recordPath := filepath.Join(env.cfg.Paths.CorpusDir, "smoke_detector", "driver.json")
	before, err := os.ReadFile(recordPath)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}

	out, _, err := runCLI(t, []string{"dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("dry-run: %v", err)
	}
	var report merge.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if !report.DryRun {
		t.Fatal("expected dry_run flag in report")
	}
	rec, ok := report.Record("smoke_detector")
	if !ok {
		t.Fatalf("record missing from report: %+v", report.Records)
	}
	if rec.CategoryAssigned != device.CategorySafety {
		t.Fatalf("expected safety to be assigned in the report, got %q", rec.CategoryAssigned)
	}

	after, err := os.ReadFile(recordPath)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if !bytes.Equal(before, after) {
		t.Fatal("dry run rewrote the record")
	}
	if _, err := os.Stat(env.cfg.RunLogPath()); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected no run ledger after dry run, stat err=%v", err)
	}
}

func TestRunCommandRecordsLedger(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"run", "--cap", "10"}, env.configPath)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	var report merge.Report
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatalf("decode report %q: %v", out, err)
	}
	if report.Cap != 10 {
		t.Fatalf("expected cap override 10, got %d", report.Cap)
	}
	if report.Totals.CategoriesAssigned != 1 {
		t.Fatalf("expected one category assigned, got %+v", report.Totals)
	}
	if _, err := os.Stat(engine.ReportPath(env.cfg, report.RunID)); err != nil {
		t.Fatalf("report file missing: %v", err)
	}

	out, _, err = runCLI(t, []string{"runs"}, env.configPath)
	if err != nil {
		t.Fatalf("runs: %v", err)
	}
	var runs []runlog.Run
	if err := json.Unmarshal([]byte(out), &runs); err != nil {
		t.Fatalf("decode runs %q: %v", out, err)
	}
	if len(runs) != 1 || runs[0].ID != report.RunID {
		t.Fatalf("unexpected ledger rows: %+v", runs)
	}
	if runs[0].Status != runlog.StatusCompleted {
		t.Fatalf("expected completed status, got %q", runs[0].Status)
	}

	out, _, err = runCLI(t, []string{"runs", "show", report.RunID}, env.configPath)
	if err != nil {
		t.Fatalf("runs show: %v", err)
	}
	requireContains(t, out, report.RunID)

	if _, _, err := runCLI(t, []string{"runs", "show", "nope"}, env.configPath); err == nil {
		t.Fatal("expected error for unknown run id")
	}

	out, _, err = runCLI(t, []string{"runs", "prune", "--older-than", "1h"}, env.configPath)
	if err != nil {
		t.Fatalf("runs prune: %v", err)
	}
	requireContains(t, out, "Removed 0 run(s)")
}

func TestRunCommandFailsWithoutCorpus(t *testing.T) {
	env := setupCLITestEnv(t)
	if err := os.RemoveAll(env.cfg.Paths.CorpusDir); err != nil {
		t.Fatalf("remove corpus: %v", err)
	}

	_, _, err := runCLI(t, []string{"run"}, env.configPath)
	if !errors.Is(err, engine.ErrCorpusMissing) {
		t.Fatalf("expected ErrCorpusMissing, got %v", err)
	}
}

func TestRunCommandRejectsNegativeCap(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"dry-run", "--cap", "-1"}, env.configPath)
	if err == nil {
		t.Fatal("expected error for negative cap")
	}
}

func TestConfigInitAndShow(t *testing.T) {
	env := setupCLITestEnv(t)
	target := filepath.Join(t.TempDir(), "nested", "config.toml")

	out, _, err := runCLI(t, []string{"config", "init", "--path", target}, "")
	if err != nil {
		t.Fatalf("config init: %v", err)
	}
	requireContains(t, out, target)
	if _, err := os.Stat(target); err != nil {
		t.Fatalf("sample config missing: %v", err)
	}
	if _, _, err := runCLI(t, []string{"config", "init", "--path", target}, ""); err == nil {
		t.Fatal("expected refusal to overwrite")
	}

	env.cfg.Issues.Token = "secret-token"
	writeTestConfig(t, env.configPath, env.cfg)
	out, _, err = runCLI(t, []string{"config", "show"}, env.configPath)
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if strings.Contains(out, "secret-token") {
		t.Fatalf("config show leaked the token:\n%s", out)
	}
	requireContains(t, out, redacted)
	requireContains(t, out, env.cfg.Paths.CorpusDir)

	out, _, err = runCLI(t, []string{"config", "validate"}, env.configPath)
	if err != nil {
		t.Fatalf("config validate: %v", err)
	}
	requireContains(t, out, "Configuration valid")
}

func TestCacheCommands(t *testing.T) {
	env := setupCLITestEnv(t)
	if _, _, err := runCLI(t, []string{"cache", "stats"}, env.configPath); err == nil {
		t.Fatal("expected error when cache_dir is unset")
	}

	env = setupCLITestEnv(t, testsupport.WithHistory())
	out, _, err := runCLI(t, []string{"cache", "stats"}, env.configPath)
	if err != nil {
		t.Fatalf("cache stats: %v", err)
	}
	requireContains(t, out, `"blobs": 0`)

	out, _, err = runCLI(t, []string{"cache", "clear"}, env.configPath)
	if err != nil {
		t.Fatalf("cache clear: %v", err)
	}
	requireContains(t, out, "History cache cleared")
}

func TestTestNotifyWithoutSinks(t *testing.T) {
	env := setupCLITestEnv(t)
	out, _, err := runCLI(t, []string{"test-notify"}, env.configPath)
	if err != nil {
		t.Fatalf("test-notify: %v", err)
	}
	requireContains(t, out, "No notification sinks configured")
}

func TestPrintRunSummary(t *testing.T) {
	started := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	report := &merge.Report{
		RunID:      "run-1",
		Cap:        50,
		StartedAt:  started,
		FinishedAt: started.Add(1500 * time.Millisecond),
		Records: []merge.RecordReport{
			{ID: "bulb_rgb", Existing: 4, Added: 2, Changed: true},
			{ID: "plug_meter", Existing: 2},
			{ID: "trv", Existing: 2, Failed: true, Error: "disk full"},
		},
		Sources: []merge.SourceReport{
			{Source: device.SourceHistory, OK: true, Findings: 3, Candidates: 2},
			{Source: device.SourceWeb, Error: "catalog: HTTP 502"},
		},
		Totals: merge.Totals{Records: 3, RecordsChanged: 1, RecordsFailed: 1, Added: 2},
	}

	var buf bytes.Buffer
	printRunSummary(&buf, report, "/state/reports/run-1.json", false)
	out := buf.String()

	requireContains(t, out, "== Run run-1 ==")
	requireContains(t, out, "[OK] 3 findings, 2 candidates")
	requireContains(t, out, "[ERROR] catalog: HTTP 502")
	requireContains(t, out, "bulb_rgb")
	requireContains(t, out, "failed: disk full")
	requireContains(t, out, "Report: /state/reports/run-1.json")
	if strings.Contains(out, "plug_meter") {
		t.Fatalf("unchanged record should be omitted:\n%s", out)
	}
}
