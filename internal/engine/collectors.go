package engine

import (
	"fmt"
	"time"

	"fpsync/internal/config"
	"fpsync/internal/device"
	"fpsync/internal/historycache"
	"fpsync/internal/logging"
	"fpsync/internal/sources"
	"fpsync/internal/sources/fetch"
	"fpsync/internal/sources/history"
	"fpsync/internal/sources/issues"
	"fpsync/internal/sources/web"
)

// buildCollectors assembles the enabled collectors in priority order. The
// returned cleanup closes the history cache.
func (r *Runner) buildCollectors(records []*device.DeviceRecord) ([]sources.Collector, func(), error) {
	noop := func() {}
	if r.collectors != nil {
		return r.collectors, noop, nil
	}
	cfg := r.cfg

	var catalog *config.SourceCatalog
	if cfg.Web.Enabled || cfg.Issues.Enabled {
		var err error
		catalog, err = config.LoadSourceCatalog(cfg.Paths.SourcesFile)
		if err != nil {
			return nil, noop, fmt.Errorf("load source catalog: %w", err)
		}
	}

	var (
		collectors []sources.Collector
		cache      *historycache.Cache
	)
	cleanup := func() {
		if cache == nil {
			return
		}
		if err := cache.Close(); err != nil {
			r.logger.Warn("history cache close failed", logging.Error(err))
		}
	}

	if cfg.History.Enabled {
		var err error
		cache, err = OpenHistoryCache(cfg, r.logger)
		if err != nil {
			return nil, noop, err
		}
		opts := []history.Option{
			history.WithBinary(cfg.History.GitBinary),
			history.WithMaxRevisions(cfg.History.MaxRevisions),
			history.WithLogger(r.logger),
		}
		if r.gitExec != nil {
			opts = append(opts, history.WithExecutor(r.gitExec))
		}
		miner, err := history.New(cfg.Paths.CorpusDir, cache, opts...)
		if err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("history collector: %w", err)
		}
		collectors = append(collectors, miner)
	}

	if cfg.Issues.Enabled {
		pool := r.pool(cfg.Issues.Concurrency, cfg.IssuesRequestInterval(), cfg.Issues.RequestTimeout, cfg.Web.UserAgent, 0)
		fetcher, err := issues.New(pool, cfg.Issues.BaseURL, catalog.Repositories,
			issues.WithToken(cfg.Issues.Token),
			issues.WithPaging(cfg.Issues.PerPage, cfg.Issues.MaxPages),
			issues.WithPullRequests(cfg.Issues.IncludePulls),
			issues.WithReleases(cfg.Issues.IncludeReleases),
			issues.WithLogger(r.logger))
		if err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("issue tracker collector: %w", err)
		}
		collectors = append(collectors, fetcher)
	}

	if cfg.Web.Enabled {
		pool := r.pool(cfg.Web.Concurrency, cfg.WebRequestInterval(), cfg.Web.RequestTimeout, cfg.Web.UserAgent, cfg.Web.MaxBodyBytes)
		fetcher, err := web.New(pool, catalog, productTokens(records), r.logger)
		if err != nil {
			cleanup()
			return nil, noop, fmt.Errorf("web collector: %w", err)
		}
		collectors = append(collectors, fetcher)
	}

	return collectors, cleanup, nil
}

func (r *Runner) pool(concurrency int, interval time.Duration, timeoutSeconds int, userAgent string, maxBody int64) *fetch.Pool {
	opts := []fetch.Option{
		fetch.WithConcurrency(concurrency),
		fetch.WithInterval(interval),
		fetch.WithRequestTimeout(time.Duration(timeoutSeconds) * time.Second),
		fetch.WithUserAgent(userAgent),
	}
	if maxBody > 0 {
		opts = append(opts, fetch.WithMaxBodyBytes(maxBody))
	}
	if r.httpClient != nil {
		opts = append(opts, fetch.WithHTTPClient(r.httpClient))
	}
	return fetch.New(opts...)
}

func productTokens(records []*device.DeviceRecord) []string {
	var out []string
	for _, rec := range records {
		out = append(out, rec.ProductTokens.Values()...)
	}
	return device.NewTokenSet(out...).Values()
}
