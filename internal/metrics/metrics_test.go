package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"fpsync/internal/config"
	"fpsync/internal/device"
	"fpsync/internal/merge"
)

func sampleReport() *merge.Report {
	start := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	return &merge.Report{
		RunID:      "run-7",
		StartedAt:  start,
		FinishedAt: start.Add(2 * time.Minute),
		Sources: []merge.SourceReport{
			{Source: device.SourceHistory, OK: true, Findings: 40},
			{Source: device.SourceWeb, OK: false},
		},
		Totals: merge.Totals{Records: 12, RecordsChanged: 3, Added: 9, Deferred: 1},
	}
}

func TestWriteTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "textfile", "fpsync.prom")
	if err := WriteTextfile(path, sampleReport()); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	text := string(data)
	for _, want := range []string{
		"fpsync_tokens_added 9",
		"fpsync_records 12",
		"fpsync_last_run_duration_seconds 120",
		`fpsync_source_ok{source="history"} 1`,
		`fpsync_source_ok{source="web"} 0`,
		`fpsync_source_findings{source="history"} 40`,
	} {
		if !strings.Contains(text, want) {
			t.Errorf("textfile missing %q:\n%s", want, text)
		}
	}
}

func TestPushWritesLineProtocol(t *testing.T) {
	var body, path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		body, path = string(raw), r.URL.Path
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	cfg := config.Metrics{InfluxURL: srv.URL, InfluxToken: "tok", InfluxOrg: "home", InfluxBucket: "fpsync"}
	if err := Push(context.Background(), cfg, sampleReport()); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if path != "/api/v2/write" {
		t.Fatalf("path = %q", path)
	}
	if !strings.HasPrefix(body, "fpsync_run,dry_run=false,sources_ok=false ") || !strings.Contains(body, "tokens_added=9i") {
		t.Fatalf("unexpected line protocol: %q", body)
	}
}

func TestExportSkipsUnconfigured(t *testing.T) {
	if err := Export(context.Background(), config.Metrics{}, sampleReport()); err != nil {
		t.Fatalf("Export: %v", err)
	}
}
