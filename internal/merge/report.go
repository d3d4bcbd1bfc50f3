package merge

import (
	"time"

	"fpsync/internal/device"
	"fpsync/internal/sources"
)

// RecordReport counts what happened to one record.
type RecordReport struct {
	ID string `json:"id"`
	// Existing is the number of identifier tokens before the run.
	Existing int `json:"existing"`
	// Added is the number of identifier tokens appended.
	Added             int             `json:"added"`
	AcceptedPairs     int             `json:"accepted_pairs"`
	Duplicates        int             `json:"rejected_duplicate"`
	Invalid           int             `json:"rejected_invalid"`
	Deferred          int             `json:"deferred"`
	CategoryAssigned  device.Category `json:"category_assigned,omitempty"`
	CategorySuggested device.Category `json:"category_suggested,omitempty"`
	Changed           bool            `json:"changed"`
	Failed            bool            `json:"failed"`
	Error             string          `json:"error,omitempty"`
}

// SourceReport is the per-collector success flag and counters.
type SourceReport struct {
	Source     device.Source `json:"source"`
	OK         bool          `json:"ok"`
	Error      string        `json:"error,omitempty"`
	Truncated  bool          `json:"truncated"`
	Requests   int           `json:"requests"`
	Findings   int           `json:"findings"`
	Candidates int           `json:"candidates"`
	DurationMS int64         `json:"duration_ms"`
}

// Totals aggregates the whole run.
type Totals struct {
	Records            int `json:"records"`
	RecordsChanged     int `json:"records_changed"`
	RecordsFailed      int `json:"records_failed"`
	Findings           int `json:"findings"`
	Candidates         int `json:"candidates"`
	Added              int `json:"added"`
	AcceptedPairs      int `json:"accepted_pairs"`
	Duplicates         int `json:"rejected_duplicate"`
	Invalid            int `json:"rejected_invalid"`
	Deferred           int `json:"deferred"`
	Unroutable         int `json:"unroutable"`
	CategoriesAssigned int `json:"categories_assigned"`
	CategoryMismatches int `json:"category_mismatches"`
}

// Report is the machine-readable outcome of one run.
type Report struct {
	RunID        string         `json:"run_id,omitempty"`
	DryRun       bool           `json:"dry_run"`
	Cap          int            `json:"cap"`
	StartedAt    time.Time      `json:"started_at"`
	FinishedAt   time.Time      `json:"finished_at"`
	Records      []RecordReport `json:"records"`
	Sources      []SourceReport `json:"sources"`
	Totals       Totals         `json:"totals"`
	LoadProblems []string       `json:"load_problems,omitempty"`
}

// Record returns the report for id.
func (r *Report) Record(id string) (RecordReport, bool) {
	for _, rec := range r.Records {
		if rec.ID == id {
			return rec, true
		}
	}
	return RecordReport{}, false
}

// SourcesOK reports whether every collector finished without failures.
func (r *Report) SourcesOK() bool {
	for _, s := range r.Sources {
		if !s.OK {
			return false
		}
	}
	return true
}

func sourceReport(res sources.Result, candidates int) SourceReport {
	out := SourceReport{
		Source:     res.Source,
		OK:         res.OK(),
		Truncated:  res.Truncated,
		Requests:   res.Requests,
		Findings:   len(res.Findings),
		Candidates: candidates,
		DurationMS: res.Duration.Milliseconds(),
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func (t *Totals) addRecord(rr RecordReport) {
	t.Records++
	t.Added += rr.Added
	t.AcceptedPairs += rr.AcceptedPairs
	t.Duplicates += rr.Duplicates
	t.Invalid += rr.Invalid
	t.Deferred += rr.Deferred
	if rr.Changed && !rr.Failed {
		t.RecordsChanged++
	}
	if rr.Failed {
		t.RecordsFailed++
	}
	if rr.CategoryAssigned != device.CategoryNone {
		t.CategoriesAssigned++
	}
	if rr.CategorySuggested != device.CategoryNone {
		t.CategoryMismatches++
	}
}
