package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"fpsync/internal/device"
	"fpsync/internal/merge"
)

// Store persists run history in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := range busyRetryAttempts {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		delay = min(delay*2, busyRetryMaxBackoff)
	}
	return lastErr
}

// Open creates or connects to the ledger at path.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// StatusFor derives the ledger status of a report.
func StatusFor(report *merge.Report) Status {
	if report.SourcesOK() && report.Totals.RecordsFailed == 0 {
		return StatusCompleted
	}
	return StatusPartial
}

// Record inserts a finished run. Dry runs are rejected.
func (s *Store) Record(ctx context.Context, report *merge.Report, reportPath string) error {
	if report == nil {
		return errors.New("report is nil")
	}
	if report.DryRun {
		return errors.New("dry runs are not recorded")
	}
	if strings.TrimSpace(report.RunID) == "" {
		return errors.New("report has no run id")
	}

	return retryOnBusy(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin run tx: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		t := report.Totals
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO runs (
                run_id, status, started_at, finished_at, merge_cap,
                records, records_changed, records_failed, findings, candidates,
                tokens_added, deferred, unroutable, categories_assigned, report_path
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			report.RunID,
			StatusFor(report),
			report.StartedAt.UTC().Format(time.RFC3339Nano),
			report.FinishedAt.UTC().Format(time.RFC3339Nano),
			report.Cap,
			t.Records, t.RecordsChanged, t.RecordsFailed, t.Findings, t.Candidates,
			t.Added, t.Deferred, t.Unroutable, t.CategoriesAssigned,
			nullableString(reportPath),
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		for _, src := range report.Sources {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO source_results (
                    run_id, source, ok, error_message, truncated,
                    requests, findings, candidates, duration_ms
                ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
				report.RunID,
				string(src.Source),
				boolToInt(src.OK),
				nullableString(src.Error),
				boolToInt(src.Truncated),
				src.Requests, src.Findings, src.Candidates, src.DurationMS,
			); err != nil {
				return fmt.Errorf("insert source result %s: %w", src.Source, err)
			}
		}
		return tx.Commit()
	})
}

const runColumns = `run_id, status, started_at, finished_at, merge_cap,
    records, records_changed, records_failed, findings, candidates,
    tokens_added, deferred, unroutable, categories_assigned, report_path`

// List returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, run_id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	for i := range runs {
		if runs[i].Sources, err = s.sourceResults(ctx, runs[i].ID); err != nil {
			return nil, err
		}
	}
	return runs, nil
}

// Get returns a single run, or nil when it does not exist.
func (s *Store) Get(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if run.Sources, err = s.sourceResults(ctx, run.ID); err != nil {
		return nil, err
	}
	return run, nil
}

// Prune deletes runs that started before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE started_at < ?`,
			cutoff.UTC().Format(time.RFC3339Nano))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return removed, nil
}

func (s *Store) sourceResults(ctx context.Context, runID string) ([]SourceResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT source, ok, error_message, truncated, requests, findings, candidates, duration_ms
         FROM source_results WHERE run_id = ? ORDER BY rowid`, runID)
	if err != nil {
		return nil, fmt.Errorf("list source results: %w", err)
	}
	defer rows.Close()

	var out []SourceResult
	for rows.Next() {
		var (
			res        SourceResult
			source     string
			ok, trunc  int
			errMessage sql.NullString
			durationMS int64
		)
		if err := rows.Scan(&source, &ok, &errMessage, &trunc, &res.Requests, &res.Findings, &res.Candidates, &durationMS); err != nil {
			return nil, fmt.Errorf("scan source result: %w", err)
		}
		res.Source = device.Source(source)
		res.OK = ok != 0
		res.Truncated = trunc != 0
		res.Error = errMessage.String
		res.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate source results: %w", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var (
		run                 Run
		status              string
		startedAt, finished string
		reportPath          sql.NullString
	)
	if err := row.Scan(
		&run.ID, &status, &startedAt, &finished, &run.Cap,
		&run.Records, &run.RecordsChanged, &run.RecordsFailed, &run.Findings, &run.Candidates,
		&run.TokensAdded, &run.Deferred, &run.Unroutable, &run.CategoriesAssigned, &reportPath,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.Status = Status(status)
	run.ReportPath = reportPath.String
	run.StartedAt = parseTime(startedAt)
	run.FinishedAt = parseTime(finished)
	return &run, nil
}

func parseTime(value string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullableString(value string) any {
	if strings.TrimSpace(value) == "" {
		return nil
	}
	return value
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
