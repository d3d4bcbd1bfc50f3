package runlog

import (
	"time"

	"fpsync/internal/device"
)

// Status summarizes how a run ended.
type Status string

const (
	// StatusCompleted means every collector succeeded and every write landed.
	StatusCompleted Status = "completed"
	// StatusPartial means the run finished but a source or a record write failed.
	StatusPartial Status = "partial"
)

// Run is one ledger row.
type Run struct {
	ID                 string         `json:"run_id"`
	Status             Status         `json:"status"`
	StartedAt          time.Time      `json:"started_at"`
	FinishedAt         time.Time      `json:"finished_at"`
	Cap                int            `json:"cap"`
	Records            int            `json:"records"`
	RecordsChanged     int            `json:"records_changed"`
	RecordsFailed      int            `json:"records_failed"`
	Findings           int            `json:"findings"`
	Candidates         int            `json:"candidates"`
	TokensAdded        int            `json:"tokens_added"`
	Deferred           int            `json:"deferred"`
	Unroutable         int            `json:"unroutable"`
	CategoriesAssigned int            `json:"categories_assigned"`
	ReportPath         string         `json:"report_path,omitempty"`
	Sources            []SourceResult `json:"sources,omitempty"`
}

// Duration returns the wall-clock length of the run.
func (r Run) Duration() time.Duration {
	if r.FinishedAt.Before(r.StartedAt) {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// SourceResult is the per-collector outcome of a run.
type SourceResult struct {
	Source     device.Source `json:"source"`
	OK         bool          `json:"ok"`
	Error      string        `json:"error,omitempty"`
	Truncated  bool          `json:"truncated"`
	Requests   int           `json:"requests"`
	Findings   int           `json:"findings"`
	Candidates int           `json:"candidates"`
	Duration   time.Duration `json:"duration_ns"`
}
