package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fpsync/internal/runlog"
)

func newRunsCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recent runs from the run ledger",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRunLog(cmd, ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, runs)
			}
			if len(runs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No runs recorded.")
				return nil
			}
			rows := make([][]string, 0, len(runs))
			for _, run := range runs {
				rows = append(rows, []string{
					run.ID,
					string(run.Status),
					run.StartedAt.Local().Format("2006-01-02 15:04:05"),
					run.Duration().Round(time.Second).String(),
					strconv.Itoa(run.RecordsChanged),
					strconv.Itoa(run.TokensAdded),
					strconv.Itoa(run.Deferred),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable("",
				[]string{"Run", "Status", "Started", "Duration", "Changed", "Added", "Deferred"},
				rows))
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of runs to show")
	cmd.AddCommand(newRunsShowCommand(ctx))
	cmd.AddCommand(newRunsPruneCommand(ctx))
	return cmd
}

func newRunsShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show one run with its per-source results",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openRunLog(cmd, ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			run, err := store.Get(cmd.Context(), strings.TrimSpace(args[0]))
			if err != nil {
				return err
			}
			if run == nil {
				return fmt.Errorf("run %q not found", args[0])
			}
			if ctx.jsonOutput(cmd) {
				return writeJSON(cmd, run)
			}

			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			printSectionHeader(out, "Run "+run.ID, colorize)
			kind := statusOK
			if run.Status != runlog.StatusCompleted {
				kind = statusWarn
			}
			fmt.Fprintln(out, renderStatusLine("Status", kind, string(run.Status), colorize))
			fmt.Fprintln(out, renderStatusLine("Started", statusInfo, run.StartedAt.Local().Format(time.RFC3339), colorize))
			fmt.Fprintln(out, renderStatusLine("Changed", statusInfo,
				fmt.Sprintf("%d of %d records, %d tokens added", run.RecordsChanged, run.Records, run.TokensAdded), colorize))
			if run.ReportPath != "" {
				fmt.Fprintln(out, renderStatusLine("Report", statusInfo, run.ReportPath, colorize))
			}
			fmt.Fprintln(out)

			rows := make([][]string, 0, len(run.Sources))
			for _, src := range run.Sources {
				rows = append(rows, []string{
					string(src.Source),
					yesNo(src.OK),
					yesNo(src.Truncated),
					strconv.Itoa(src.Requests),
					strconv.Itoa(src.Findings),
					strconv.Itoa(src.Candidates),
					valueOrDash(src.Error),
				})
			}
			fmt.Fprintln(out, renderTable("Sources",
				[]string{"Source", "OK", "Truncated", "Requests", "Findings", "Candidates", "Error"},
				rows))
			return nil
		},
	}
}

func newRunsPruneCommand(ctx *commandContext) *cobra.Command {
	var olderThan time.Duration
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete ledger rows older than a cutoff",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if olderThan <= 0 {
				return errors.New("--older-than must be positive")
			}
			store, err := openRunLog(cmd, ctx)
			if err != nil {
				return err
			}
			defer store.Close()

			removed, err := store.Prune(cmd.Context(), time.Now().Add(-olderThan))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d run(s)\n", removed)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 90*24*time.Hour, "Age of the oldest run to keep")
	return cmd
}

func openRunLog(cmd *cobra.Command, ctx *commandContext) (*runlog.Store, error) {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return nil, err
	}
	return runlog.Open(cmd.Context(), cfg.RunLogPath())
}
