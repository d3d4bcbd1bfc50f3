package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"fpsync/internal/config"
	"fpsync/internal/device"
	"fpsync/internal/fileutil"
	"fpsync/internal/historycache"
	"fpsync/internal/logging"
	"fpsync/internal/merge"
	"fpsync/internal/metrics"
	"fpsync/internal/notifications"
	"fpsync/internal/recordstore"
	"fpsync/internal/runlog"
	"fpsync/internal/sources"
	"fpsync/internal/sources/history"
)

var (
	// ErrCorpusMissing means the corpus directory does not exist.
	ErrCorpusMissing = errors.New("corpus directory missing")
	// ErrNoRecords means the corpus holds no loadable records.
	ErrNoRecords = errors.New("corpus has no records")
	// ErrLocked means another run holds the single-run lock.
	ErrLocked = errors.New("another fpsync run is in progress")
)

// Runner executes reconciliation runs for one configuration.
type Runner struct {
	cfg        *config.Config
	logger     *slog.Logger
	notifier   notifications.Service
	httpClient *http.Client
	gitExec    history.Executor
	collectors []sources.Collector
	now        func() time.Time
}

// Option configures a Runner.
type Option func(*Runner)

// WithNotifier overrides the notification service built from config.
func WithNotifier(svc notifications.Service) Option {
	return func(r *Runner) {
		if svc != nil {
			r.notifier = svc
		}
	}
}

// WithHTTPClient sets the client used by the network collectors.
func WithHTTPClient(client *http.Client) Option {
	return func(r *Runner) {
		r.httpClient = client
	}
}

// WithGitExecutor replaces the process runner used by the history miner.
func WithGitExecutor(exec history.Executor) Option {
	return func(r *Runner) {
		r.gitExec = exec
	}
}

// WithCollectors replaces the collectors built from config.
func WithCollectors(collectors ...sources.Collector) Option {
	return func(r *Runner) {
		r.collectors = collectors
	}
}

// New creates a runner.
func New(cfg *config.Config, logger *slog.Logger, opts ...Option) (*Runner, error) {
	if cfg == nil {
		return nil, errors.New("config is required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Runner{
		cfg:    cfg,
		logger: logging.NewComponentLogger(logger, "engine"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.notifier == nil {
		r.notifier = notifications.NewService(cfg)
	}
	return r, nil
}

// Run reconciles the corpus and persists changed records.
func (r *Runner) Run(ctx context.Context) (*merge.Report, error) {
	return r.run(ctx, false)
}

// DryRun performs the same computation as Run without writing records,
// reports, the ledger, metrics or notifications.
func (r *Runner) DryRun(ctx context.Context) (*merge.Report, error) {
	return r.run(ctx, true)
}

// Run builds a runner for cfg and reconciles the corpus once.
func Run(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*merge.Report, error) {
	r, err := New(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	return r.Run(ctx)
}

// DryRun builds a runner for cfg and reports what Run would change.
func DryRun(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts ...Option) (*merge.Report, error) {
	r, err := New(cfg, logger, opts...)
	if err != nil {
		return nil, err
	}
	return r.DryRun(ctx)
}

// ReportPath returns where the JSON report for runID is written.
func ReportPath(cfg *config.Config, runID string) string {
	return filepath.Join(cfg.ReportsDir(), runID+".json")
}

func (r *Runner) run(ctx context.Context, dryRun bool) (*merge.Report, error) {
	started := r.now()
	runID := uuid.NewString()
	ctx = logging.WithRunID(ctx, runID)
	logger := logging.WithContext(ctx, r.logger)

	if err := r.cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}

	if !dryRun {
		lock := flock.New(r.cfg.LockPath())
		ok, err := lock.TryLock()
		if err != nil {
			return nil, fmt.Errorf("acquire lock: %w", err)
		}
		if !ok {
			return nil, fmt.Errorf("%w (lock %s)", ErrLocked, r.cfg.LockPath())
		}
		defer func() {
			if err := lock.Unlock(); err != nil {
				logger.Warn("failed to release run lock", logging.Error(err))
			}
		}()
	}

	store := recordstore.New(r.cfg.Paths.CorpusDir, r.logger)
	records, problems, err := r.loadCorpus(store)
	if err != nil {
		if !dryRun {
			r.notifyFailure(ctx, logger, err)
		}
		return nil, err
	}
	logger.Info("corpus loaded",
		logging.Int("records", len(records)),
		logging.Int("load_problems", len(problems)),
		logging.Bool("dry_run", dryRun))

	collectors, cleanup, err := r.buildCollectors(records)
	if err != nil {
		if !dryRun {
			r.notifyFailure(ctx, logger, err)
		}
		return nil, err
	}
	defer cleanup()

	budget := sources.Budget{
		MaxItems: r.cfg.Run.MaxFindingsPerSource,
		Timeout:  r.cfg.RunBudget(),
	}
	merger := merge.New(store, merge.Options{
		Cap:      r.cfg.Merge.Cap,
		Reverify: r.cfg.Merge.Reverify,
		DryRun:   dryRun,
	}, r.logger)
	report := merger.Run(ctx, records, collectors, budget)
	report.RunID = runID
	report.StartedAt = started
	for _, p := range problems {
		report.LoadProblems = append(report.LoadProblems, p.Error())
	}

	if dryRun {
		return report, nil
	}
	r.publish(ctx, logger, report)
	return report, nil
}

func (r *Runner) loadCorpus(store *recordstore.Store) ([]*device.DeviceRecord, []recordstore.LoadProblem, error) {
	info, err := os.Stat(r.cfg.Paths.CorpusDir)
	if err != nil || !info.IsDir() {
		return nil, nil, fmt.Errorf("%w: %s", ErrCorpusMissing, r.cfg.Paths.CorpusDir)
	}
	records, problems, err := store.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil, fmt.Errorf("%w: %s", ErrCorpusMissing, r.cfg.Paths.CorpusDir)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load corpus: %w", err)
	}
	if len(records) == 0 {
		return nil, problems, fmt.Errorf("%w: %s", ErrNoRecords, r.cfg.Paths.CorpusDir)
	}
	return records, problems, nil
}

// publish writes the report and feeds every sink. Failures only log.
func (r *Runner) publish(ctx context.Context, logger *slog.Logger, report *merge.Report) {
	path := ReportPath(r.cfg, report.RunID)
	if err := writeReport(path, report); err != nil {
		logging.WarnWithContext(logger, "run report not written", "report_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check state_dir permissions"),
			logging.String(logging.FieldImpact, "report only available on stdout"))
		path = ""
	}

	if err := r.recordRun(ctx, report, path); err != nil {
		logging.WarnWithContext(logger, "run not recorded in ledger", "runlog_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "delete runs.db if the schema changed"),
			logging.String(logging.FieldImpact, "fpsync runs will not list this run"))
	}

	if err := metrics.Export(ctx, r.cfg.Metrics, report); err != nil {
		logging.WarnWithContext(logger, "metrics export failed", "metrics_export_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check metrics.textfile_path and influx settings"),
			logging.String(logging.FieldImpact, "dashboards miss this run"))
	}

	if err := r.notifier.NotifyRunCompleted(ctx, report); err != nil {
		logging.WarnWithContext(logger, "run notification failed", "notification_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check ntfy topic and mqtt broker settings"),
			logging.String(logging.FieldImpact, "no run summary delivered"))
	}

	logger.Info("run complete",
		logging.String("report", path),
		logging.Int("tokens_added", report.Totals.Added),
		logging.Int("records_changed", report.Totals.RecordsChanged),
		logging.Int("records_failed", report.Totals.RecordsFailed),
		logging.Bool("sources_ok", report.SourcesOK()),
		logging.Duration("duration", report.FinishedAt.Sub(report.StartedAt)))
}

func (r *Runner) recordRun(ctx context.Context, report *merge.Report, reportPath string) error {
	ledger, err := runlog.Open(ctx, r.cfg.RunLogPath())
	if err != nil {
		return err
	}
	defer ledger.Close()
	return ledger.Record(ctx, report, reportPath)
}

func (r *Runner) notifyFailure(ctx context.Context, logger *slog.Logger, runErr error) {
	if err := r.notifier.NotifyRunFailed(ctx, runErr); err != nil {
		logger.Warn("failure notification not delivered", logging.Error(err))
	}
}

func writeReport(path string, report *merge.Report) error {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create reports directory: %w", err)
	}
	return fileutil.WriteFileAtomic(path, append(data, '\n'), 0o644)
}

// OpenHistoryCache opens the configured history cache. An empty cache_dir
// yields an in-memory cache that lives for one run.
func OpenHistoryCache(cfg *config.Config, logger *slog.Logger) (*historycache.Cache, error) {
	return historycache.Open(cfg.History.CacheDir, logger)
}
