// Package merge folds collector findings into device records.
//
// Findings are extracted into candidates, routed to one record each, ordered
// by source priority then discovery order, and applied up to a per-record
// cap. Token sets only ever grow. Records without a category are classified
// after their tokens are extended. Changed records are persisted one at a
// time; a failed write marks that record and the run carries on.
package merge

import (
	"context"
	"log/slog"
	"sort"
	"time"

	"fpsync/internal/classify"
	"fpsync/internal/device"
	"fpsync/internal/extract"
	"fpsync/internal/logging"
	"fpsync/internal/sources"
)

// DefaultCap is the default number of identifier pairs accepted per record
// per run.
const DefaultCap = 50

// Saver persists one record.
type Saver interface {
	Save(record *device.DeviceRecord) error
}

// Options tunes a merge.
type Options struct {
	Cap      int
	Reverify bool
	DryRun   bool
}

// Engine merges findings into records.
type Engine struct {
	saver  Saver
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// New creates an engine. saver may be nil only for dry runs.
func New(saver Saver, opts Options, logger *slog.Logger) *Engine {
	if opts.Cap <= 0 {
		opts.Cap = DefaultCap
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Engine{
		saver:  saver,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "merge"),
		now:    time.Now,
	}
}

// Run gathers findings from collectors under budget and merges them.
func (e *Engine) Run(ctx context.Context, records []*device.DeviceRecord, collectors []sources.Collector, budget sources.Budget) *Report {
	started := e.now()
	results := sources.Gather(ctx, collectors, budget, e.logger)
	report := e.Merge(ctx, records, results)
	report.StartedAt = started
	return report
}

type candidate struct {
	pair     device.IdentifierPair
	priority int
	seq      int
}

// Merge applies already gathered results to records. Records are updated in
// place when their write succeeds; dry runs leave them untouched.
func (e *Engine) Merge(ctx context.Context, records []*device.DeviceRecord, results []sources.Result) *Report {
	report := &Report{
		DryRun:    e.opts.DryRun,
		Cap:       e.opts.Cap,
		StartedAt: e.now(),
		Records:   make([]RecordReport, 0, len(records)),
	}

	rt := newRouter(records)
	routed := make([][]candidate, len(records))
	invalid := make([]int, len(records))
	seq := 0

	for _, res := range results {
		accepted := 0
		for _, finding := range res.Findings {
			report.Totals.Findings++
			cands := extract.ExtractAll(finding)
			if len(cands) == 0 {
				if idx, ok := rt.byID[finding.RecordID]; ok && finding.Source == device.SourceHistory {
					invalid[idx]++
				} else {
					report.Totals.Invalid++
				}
				continue
			}
			for _, c := range cands {
				accepted++
				report.Totals.Candidates++
				idx := rt.route(c, *c.ExtractedPair, records)
				if idx < 0 {
					report.Totals.Unroutable++
					continue
				}
				routed[idx] = append(routed[idx], candidate{
					pair:     *c.ExtractedPair,
					priority: c.Source.Priority(),
					seq:      seq,
				})
				seq++
			}
		}
		report.Sources = append(report.Sources, sourceReport(res, accepted))
	}

	for i, rec := range records {
		rr := e.mergeRecord(ctx, rec, routed[i])
		rr.Invalid = invalid[i]
		report.Records = append(report.Records, rr)
		report.Totals.addRecord(rr)
	}

	report.FinishedAt = e.now()
	e.logger.Info("merge complete",
		logging.Int("records", report.Totals.Records),
		logging.Int("records_changed", report.Totals.RecordsChanged),
		logging.Int("records_failed", report.Totals.RecordsFailed),
		logging.Int("added", report.Totals.Added),
		logging.Int("deferred", report.Totals.Deferred),
		logging.Int("unroutable", report.Totals.Unroutable),
		logging.Bool("dry_run", e.opts.DryRun))
	return report
}

func (e *Engine) mergeRecord(ctx context.Context, rec *device.DeviceRecord, cands []candidate) RecordReport {
	rr := RecordReport{
		ID:       rec.ID,
		Existing: rec.ManufacturerTokens.Len() + rec.ProductTokens.Len(),
	}
	sort.SliceStable(cands, func(a, b int) bool {
		if cands[a].priority != cands[b].priority {
			return cands[a].priority < cands[b].priority
		}
		return cands[a].seq < cands[b].seq
	})

	logger := logging.WithContext(logging.WithRecordID(ctx, rec.ID), e.logger)
	work := rec.Clone()
	deferred := make(map[device.IdentifierPair]struct{})
	for _, c := range cands {
		if work.Covers(c.pair) {
			rr.Duplicates++
			continue
		}
		if rr.AcceptedPairs >= e.opts.Cap {
			if _, seen := deferred[c.pair]; !seen {
				deferred[c.pair] = struct{}{}
				rr.Deferred++
				logger.Debug("candidate deferred", logging.Pair("pair", c.pair), logging.Int("cap", e.opts.Cap))
			}
			continue
		}
		rr.Added += work.Apply(c.pair)
		rr.AcceptedPairs++
	}

	if work.Category == device.CategoryNone {
		work.Category = classify.Classify(work)
		rr.CategoryAssigned = work.Category
	} else if e.opts.Reverify {
		if suggested := classify.Classify(work); suggested != work.Category {
			rr.CategorySuggested = suggested
		}
	}

	rr.Changed = rr.Added > 0 || rr.CategoryAssigned != device.CategoryNone
	if rr.CategorySuggested != device.CategoryNone {
		logger.Info("category disagrees with classifier",
			logging.String("category", string(work.Category)),
			logging.String("suggested", string(rr.CategorySuggested)))
	}
	if !rr.Changed || e.opts.DryRun {
		return rr
	}
	if e.saver == nil {
		rr.Failed = true
		rr.Error = "no record store configured"
		return rr
	}
	if err := e.saver.Save(work); err != nil {
		rr.Failed = true
		rr.Error = err.Error()
		logging.WarnWithContext(logger, "record write failed", "record_write_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "check corpus permissions and free space"),
			logging.String(logging.FieldImpact, "record keeps its previous contents; candidates are retried next run"))
		return rr
	}
	*rec = *work
	logger.Debug("record updated",
		logging.Int("added", rr.Added),
		logging.Int("deferred", rr.Deferred),
		logging.String("category", string(work.Category)))
	return rr
}
