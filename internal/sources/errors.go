package sources

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrUnavailable = errors.New("source unavailable")
	ErrParse       = errors.New("parse error")
	ErrRateLimited = errors.New("rate limited")
	ErrTimeout     = errors.New("timeout")
)

// Wrap builds an error message that includes the source and operation while
// tagging it with one of the sentinel errors above.
func Wrap(marker error, source, operation, message string, err error) error {
	detail := buildDetail(source, operation, message)
	if marker == nil {
		marker = ErrUnavailable
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Failures accumulates per-item errors for one collection and renders a
// single summary error.
type Failures struct {
	source string
	total  int
	first  []error
}

const keptFailures = 3

// NewFailures creates an accumulator for source.
func NewFailures(source string) *Failures {
	return &Failures{source: source}
}

// Add records err. Nil errors are ignored.
func (f *Failures) Add(err error) {
	if err == nil {
		return
	}
	f.total++
	if len(f.first) < keptFailures {
		f.first = append(f.first, err)
	}
}

// Count returns the number of recorded failures.
func (f *Failures) Count() int {
	return f.total
}

// Err summarizes the failures out of attempted items, or nil.
func (f *Failures) Err(attempted int) error {
	if f.total == 0 {
		return nil
	}
	summary := fmt.Errorf("%w: %s: %d of %d requests failed", ErrUnavailable, f.source, f.total, attempted)
	return errors.Join(append([]error{summary}, f.first...)...)
}

func buildDetail(source, operation, message string) string {
	parts := make([]string, 0, 3)
	if source = strings.TrimSpace(source); source != "" {
		parts = append(parts, source)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "source failure"
	}
	return strings.Join(parts, ": ")
}
