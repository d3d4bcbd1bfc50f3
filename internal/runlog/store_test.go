package runlog_test

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"fpsync/internal/device"
	"fpsync/internal/merge"
	"fpsync/internal/runlog"
	"fpsync/internal/testsupport"
)

func sampleReport(id string, started time.Time) *merge.Report {
	return &merge.Report{
		RunID:      id,
		Cap:        50,
		StartedAt:  started,
		FinishedAt: started.Add(90 * time.Second),
		Sources: []merge.SourceReport{
			{Source: device.SourceHistory, OK: true, Findings: 12, Candidates: 10, DurationMS: 1500},
			{Source: device.SourceWeb, OK: false, Error: "web unavailable", Requests: 4, Truncated: true},
		},
		Totals: merge.Totals{Records: 3, RecordsChanged: 1, Findings: 12, Candidates: 10, Added: 4, Deferred: 2},
	}
}

func TestRecordAndGet(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunLog(t, cfg)
	ctx := context.Background()

	started := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if err := store.Record(ctx, sampleReport("run-1", started), "/tmp/run-1.json"); err != nil {
		t.Fatalf("Record: %v", err)
	}

	run, err := store.Get(ctx, "run-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if run == nil {
		t.Fatal("expected run")
	}
	if run.Status != runlog.StatusPartial {
		t.Fatalf("status = %q, want partial", run.Status)
	}
	if run.Duration() != 90*time.Second || run.TokensAdded != 4 || run.ReportPath != "/tmp/run-1.json" {
		t.Fatalf("unexpected run: %+v", run)
	}
	want := []runlog.SourceResult{
		{Source: device.SourceHistory, OK: true, Findings: 12, Candidates: 10, Duration: 1500 * time.Millisecond},
		{Source: device.SourceWeb, Error: "web unavailable", Requests: 4, Truncated: true},
	}
	if diff := cmp.Diff(want, run.Sources); diff != "" {
		t.Fatalf("sources mismatch (-want +got):\n%s", diff)
	}

	missing, err := store.Get(ctx, "nope")
	if err != nil || missing != nil {
		t.Fatalf("Get missing = %v, %v", missing, err)
	}
}

func TestListNewestFirstAndPrune(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunLog(t, cfg)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		report := sampleReport(id, base.Add(time.Duration(i)*time.Hour))
		report.Sources = report.Sources[:1]
		if err := store.Record(ctx, report, ""); err != nil {
			t.Fatalf("Record %s: %v", id, err)
		}
	}

	runs, err := store.List(ctx, 2)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "c" || runs[1].ID != "b" {
		t.Fatalf("unexpected order: %+v", runs)
	}
	if runs[0].Status != runlog.StatusCompleted {
		t.Fatalf("status = %q, want completed", runs[0].Status)
	}

	removed, err := store.Prune(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}
	all, err := store.List(ctx, 0)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(all) != 1 || all[0].ID != "c" {
		t.Fatalf("remaining runs = %+v", all)
	}
}

func TestRecordRejectsDryRun(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunLog(t, cfg)

	report := sampleReport("dry", time.Now())
	report.DryRun = true
	if err := store.Record(context.Background(), report, ""); err == nil {
		t.Fatal("expected dry run to be rejected")
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenRunLog(t, cfg)
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	db, err := sql.Open("sqlite", cfg.RunLogPath())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := db.Exec("PRAGMA user_version = 999"); err != nil {
		t.Fatalf("update version: %v", err)
	}
	_ = db.Close()

	_, err = runlog.Open(context.Background(), cfg.RunLogPath())
	if !errors.Is(err, runlog.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}
