package sources

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"fpsync/internal/device"
	"fpsync/internal/logging"
)

// Budget bounds one collection.
type Budget struct {
	// MaxItems caps the findings returned; 0 means unlimited.
	MaxItems int
	// Timeout bounds the wall-clock time spent; 0 means no extra deadline.
	Timeout time.Duration
}

// Result is what a collector gathered.
type Result struct {
	Source    device.Source
	Findings  []device.SourceFinding
	Err       error
	Truncated bool
	Requests  int
	Duration  time.Duration
}

// OK reports whether the collection finished without failures.
func (r Result) OK() bool {
	return r.Err == nil
}

// Collector gathers raw findings from one external source.
type Collector interface {
	Source() device.Source
	Collect(ctx context.Context, budget Budget) Result
}

// Accumulator appends findings while honouring a MaxItems budget.
type Accumulator struct {
	mu        sync.Mutex
	max       int
	findings  []device.SourceFinding
	truncated bool
}

// NewAccumulator creates an accumulator for budget.
func NewAccumulator(budget Budget) *Accumulator {
	return &Accumulator{max: budget.MaxItems}
}

// Add appends findings and reports false once a finding had to be dropped
// because the budget is exhausted.
func (a *Accumulator) Add(findings ...device.SourceFinding) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, f := range findings {
		if a.max > 0 && len(a.findings) >= a.max {
			a.truncated = true
			return false
		}
		a.findings = append(a.findings, f)
	}
	return true
}

// Full reports whether the budget is exhausted.
func (a *Accumulator) Full() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.max > 0 && len(a.findings) >= a.max
}

// MarkTruncated records that collection stopped early.
func (a *Accumulator) MarkTruncated() {
	a.mu.Lock()
	a.truncated = true
	a.mu.Unlock()
}

// Findings returns the gathered findings and whether collection was cut short.
func (a *Accumulator) Findings() ([]device.SourceFinding, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.findings, a.truncated
}

// Gather runs every collector concurrently under a shared budget and returns
// their results in collector order. A panicking collector yields an error
// result instead of taking the run down.
func Gather(ctx context.Context, collectors []Collector, budget Budget, logger *slog.Logger) []Result {
	if logger == nil {
		logger = logging.NewNop()
	}
	if budget.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget.Timeout)
		defer cancel()
	}

	results := make([]Result, len(collectors))
	var wg sync.WaitGroup
	for i, c := range collectors {
		wg.Add(1)
		go func() {
			defer wg.Done()
			source := c.Source()
			started := time.Now()
			defer func() {
				if r := recover(); r != nil {
					results[i] = Result{
						Source:   source,
						Err:      Wrap(ErrUnavailable, string(source), "collect", fmt.Sprintf("panic: %v", r), nil),
						Duration: time.Since(started),
					}
				}
			}()
			res := c.Collect(logging.WithSource(ctx, string(source)), budget)
			res.Source = source
			if res.Duration == 0 {
				res.Duration = time.Since(started)
			}
			results[i] = res
		}()
	}
	wg.Wait()

	for _, res := range results {
		attrs := []logging.Attr{
			logging.String(logging.FieldSource, string(res.Source)),
			logging.Int("findings", len(res.Findings)),
			logging.Int("requests", res.Requests),
			logging.Bool("truncated", res.Truncated),
			logging.Duration("duration", res.Duration),
		}
		if res.Err != nil {
			logging.WarnWithContext(logger, "collector finished with failures", "collector_failed",
				append(attrs,
					logging.Error(res.Err),
					logging.String(logging.FieldErrorHint, "check network access and source configuration"),
					logging.String(logging.FieldImpact, "findings from this source may be incomplete"))...)
			continue
		}
		logger.Info("collector finished", logging.Args(attrs...)...)
	}
	return results
}
