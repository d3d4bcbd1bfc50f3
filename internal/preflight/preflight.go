package preflight

import (
	"context"

	"fpsync/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// RunAll executes all applicable preflight checks for the given config.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{CheckDirectoryAccess("Corpus directory", cfg.Paths.CorpusDir)}

	if cfg.History.Enabled {
		for _, status := range CheckSystemDeps(ctx, cfg) {
			results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: status.Detail})
		}
		results = append(results, CheckGitRepository(ctx, cfg.History.GitBinary, cfg.Paths.CorpusDir))
	}

	if cfg.Issues.Enabled {
		results = append(results, CheckIssuesAPI(ctx, cfg.Issues.BaseURL, cfg.Issues.Token))
	}

	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}
