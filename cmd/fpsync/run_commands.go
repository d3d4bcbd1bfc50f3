package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fpsync/internal/engine"
	"fpsync/internal/merge"
)

type runFlags struct {
	cap      int
	reverify bool
}

func (f *runFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.cap, "cap", 0, "Override the per-record growth cap for this run")
	cmd.Flags().BoolVar(&f.reverify, "reverify", false, "Re-classify categorized records and report disagreements")
}

func newRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Collect candidates and extend the corpus",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, ctx, flags, false)
		},
	}
	flags.register(cmd)
	return cmd
}

func newDryRunCommand(ctx *commandContext) *cobra.Command {
	var flags runFlags
	cmd := &cobra.Command{
		Use:   "dry-run",
		Short: "Compute the run report without writing anything",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeRun(cmd, ctx, flags, true)
		},
	}
	flags.register(cmd)
	return cmd
}

func executeRun(cmd *cobra.Command, ctx *commandContext, flags runFlags, dryRun bool) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	if flags.cap < 0 {
		return fmt.Errorf("--cap must be positive")
	}
	if flags.cap > 0 {
		cfg.Merge.Cap = flags.cap
	}
	if flags.reverify {
		cfg.Merge.Reverify = true
	}

	logger, err := ctx.logger()
	if err != nil {
		return err
	}
	runner, err := engine.New(cfg, logger)
	if err != nil {
		return err
	}

	var report *merge.Report
	if dryRun {
		report, err = runner.DryRun(cmd.Context())
	} else {
		report, err = runner.Run(cmd.Context())
	}
	if err != nil {
		return err
	}

	if ctx.jsonOutput(cmd) {
		if err := writeJSON(cmd, report); err != nil {
			return err
		}
	} else {
		reportPath := ""
		if !dryRun {
			reportPath = engine.ReportPath(cfg, report.RunID)
		}
		printRunSummary(cmd.OutOrStdout(), report, reportPath, shouldColorize(cmd.OutOrStdout()))
	}

	if report.Totals.RecordsFailed > 0 {
		return fmt.Errorf("%d record write(s) failed", report.Totals.RecordsFailed)
	}
	return nil
}

func printRunSummary(out io.Writer, report *merge.Report, reportPath string, colorize bool) {
	title := "Run " + report.RunID
	if report.DryRun {
		title = "Dry run " + report.RunID + " (nothing written)"
	}
	printSectionHeader(out, title, colorize)

	for _, src := range report.Sources {
		kind := statusOK
		detail := fmt.Sprintf("%d findings, %d candidates", src.Findings, src.Candidates)
		if src.Truncated {
			kind = statusWarn
			detail += ", truncated"
		}
		if !src.OK {
			kind = statusError
			detail = src.Error
		}
		fmt.Fprintln(out, renderStatusLine(string(src.Source), kind, detail, colorize))
	}
	if len(report.LoadProblems) > 0 {
		fmt.Fprintln(out, renderStatusLine("corpus", statusWarn,
			fmt.Sprintf("%d file(s) skipped", len(report.LoadProblems)), colorize))
	}
	fmt.Fprintln(out)

	rows := make([][]string, 0, len(report.Records))
	for _, rec := range report.Records {
		if !rec.Changed && !rec.Failed && rec.Deferred == 0 && rec.CategorySuggested == "" {
			continue
		}
		rows = append(rows, []string{
			rec.ID,
			strconv.Itoa(rec.Existing),
			strconv.Itoa(rec.Added),
			strconv.Itoa(rec.Deferred),
			strconv.Itoa(rec.Duplicates),
			strconv.Itoa(rec.Invalid),
			recordCategoryNote(rec),
			recordStatus(rec),
		})
	}
	if len(rows) == 0 {
		fmt.Fprintln(out, "No record changes.")
	} else {
		fmt.Fprintln(out, renderTable("Records",
			[]string{"Record", "Existing", "Added", "Deferred", "Duplicate", "Invalid", "Category", "Status"},
			rows))
	}

	t := report.Totals
	totals := [][]string{
		{"Records", strconv.Itoa(t.Records)},
		{"Records changed", strconv.Itoa(t.RecordsChanged)},
		{"Records failed", strconv.Itoa(t.RecordsFailed)},
		{"Findings", strconv.Itoa(t.Findings)},
		{"Candidates", strconv.Itoa(t.Candidates)},
		{"Tokens added", strconv.Itoa(t.Added)},
		{"Deferred", strconv.Itoa(t.Deferred)},
		{"Unroutable", strconv.Itoa(t.Unroutable)},
		{"Categories assigned", strconv.Itoa(t.CategoriesAssigned)},
	}
	if t.CategoryMismatches > 0 {
		totals = append(totals, []string{"Category mismatches", strconv.Itoa(t.CategoryMismatches)})
	}
	fmt.Fprintln(out, renderTable("Totals", []string{"Metric", "Value"}, totals))

	elapsed := report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond)
	fmt.Fprintf(out, "Finished in %s (cap %d)\n", elapsed, report.Cap)
	if reportPath != "" {
		fmt.Fprintf(out, "Report: %s\n", reportPath)
	}
}

func recordCategoryNote(rec merge.RecordReport) string {
	switch {
	case rec.CategoryAssigned != "":
		return "assigned " + string(rec.CategoryAssigned)
	case rec.CategorySuggested != "":
		return "suggest " + string(rec.CategorySuggested)
	default:
		return ""
	}
}

func recordStatus(rec merge.RecordReport) string {
	switch {
	case rec.Failed:
		return "failed: " + strings.TrimSpace(rec.Error)
	case rec.Changed:
		return "updated"
	default:
		return "unchanged"
	}
}
