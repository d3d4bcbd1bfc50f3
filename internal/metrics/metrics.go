// Package metrics exports per-run gauges for external monitoring.
//
// A run can be written as a Prometheus textfile (for node_exporter's textfile
// collector) and pushed as a single InfluxDB point. Both exports are optional
// and independent.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/prometheus/client_golang/prometheus"

	"fpsync/internal/config"
	"fpsync/internal/merge"
)

const (
	namespace   = "fpsync"
	measurement = "fpsync_run"
)

// NewRegistry builds a registry holding the gauges for one report.
func NewRegistry(report *merge.Report) *prometheus.Registry {
	reg := prometheus.NewRegistry()

	gauge := func(name, help string, value float64) {
		g := prometheus.NewGauge(prometheus.GaugeOpts{Namespace: namespace, Name: name, Help: help})
		g.Set(value)
		reg.MustRegister(g)
	}
	t := report.Totals
	gauge("last_run_timestamp_seconds", "Unix time the last run finished.", float64(report.FinishedAt.Unix()))
	gauge("last_run_duration_seconds", "Wall-clock duration of the last run.", report.FinishedAt.Sub(report.StartedAt).Seconds())
	gauge("records", "Records loaded in the last run.", float64(t.Records))
	gauge("records_changed", "Records rewritten in the last run.", float64(t.RecordsChanged))
	gauge("records_failed", "Record writes that failed in the last run.", float64(t.RecordsFailed))
	gauge("tokens_added", "Identifier tokens appended in the last run.", float64(t.Added))
	gauge("candidates_deferred", "Candidates held back by the per-record cap.", float64(t.Deferred))
	gauge("candidates_unroutable", "Candidates that matched no record.", float64(t.Unroutable))
	gauge("categories_assigned", "Records that received a category.", float64(t.CategoriesAssigned))

	sourceOK := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_ok",
		Help:      "1 when the collector finished without failures.",
	}, []string{"source"})
	sourceFindings := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "source_findings",
		Help:      "Raw findings gathered per collector.",
	}, []string{"source"})
	for _, src := range report.Sources {
		ok := 0.0
		if src.OK {
			ok = 1
		}
		sourceOK.WithLabelValues(string(src.Source)).Set(ok)
		sourceFindings.WithLabelValues(string(src.Source)).Set(float64(src.Findings))
	}
	reg.MustRegister(sourceOK, sourceFindings)
	return reg
}

// WriteTextfile atomically writes the report gauges to path.
func WriteTextfile(path string, report *merge.Report) error {
	if report == nil {
		return errors.New("report is nil")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create textfile directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, NewRegistry(report)); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Point converts a report to an InfluxDB point tagged with the run outcome.
func Point(report *merge.Report) *write.Point {
	t := report.Totals
	tags := map[string]string{
		"dry_run":    fmt.Sprintf("%t", report.DryRun),
		"sources_ok": fmt.Sprintf("%t", report.SourcesOK()),
	}
	fields := map[string]any{
		"records":             t.Records,
		"records_changed":     t.RecordsChanged,
		"records_failed":      t.RecordsFailed,
		"findings":            t.Findings,
		"candidates":          t.Candidates,
		"tokens_added":        t.Added,
		"deferred":            t.Deferred,
		"unroutable":          t.Unroutable,
		"categories_assigned": t.CategoriesAssigned,
		"duration_seconds":    report.FinishedAt.Sub(report.StartedAt).Seconds(),
	}
	if report.RunID != "" {
		fields["run_id"] = report.RunID
	}
	return write.NewPoint(measurement, tags, fields, report.FinishedAt)
}

// Push writes one point for report using the blocking write API.
func Push(ctx context.Context, cfg config.Metrics, report *merge.Report) error {
	if strings.TrimSpace(cfg.InfluxURL) == "" {
		return nil
	}
	if report == nil {
		return errors.New("report is nil")
	}
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	defer client.Close()

	writer := client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket)
	if err := writer.WritePoint(ctx, Point(report)); err != nil {
		return fmt.Errorf("push influx point: %w", err)
	}
	return nil
}

// Export runs every configured exporter and joins their errors.
func Export(ctx context.Context, cfg config.Metrics, report *merge.Report) error {
	var errs []error
	if path := strings.TrimSpace(cfg.TextfilePath); path != "" {
		errs = append(errs, WriteTextfile(path, report))
	}
	errs = append(errs, Push(ctx, cfg, report))
	return errors.Join(errs...)
}
