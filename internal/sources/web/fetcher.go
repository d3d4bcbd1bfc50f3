// Package web collects findings from device catalog pages and per-product
// search pages.
package web

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"fpsync/internal/config"
	"fpsync/internal/device"
	"fpsync/internal/logging"
	"fpsync/internal/sources"
	"fpsync/internal/sources/fetch"
)

const sourceName = string(device.SourceWeb)

// Fetcher GETs every catalog page plus one search page per known product
// token and template. Each text segment naming a manufacturer token becomes a
// finding.
type Fetcher struct {
	pool     *fetch.Pool
	catalogs []config.CatalogPage
	searches []config.SearchTemplate
	products []string
	logger   *slog.Logger
}

var _ sources.Collector = (*Fetcher)(nil)

// New creates a fetcher. products are the product tokens substituted into
// search templates; duplicates are ignored.
func New(pool *fetch.Pool, catalog *config.SourceCatalog, products []string, logger *slog.Logger) (*Fetcher, error) {
	if pool == nil {
		return nil, errors.New("fetch pool required")
	}
	if catalog == nil {
		return nil, errors.New("source catalog required")
	}
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Fetcher{
		pool:     pool,
		catalogs: catalog.Catalogs,
		searches: catalog.SearchTemplates,
		products: device.NewTokenSet(products...).Values(),
		logger:   logging.NewComponentLogger(logger, "web"),
	}, nil
}

// Source identifies the collector.
func (f *Fetcher) Source() device.Source {
	return device.SourceWeb
}

// URLs lists every page the fetcher will request, in request order.
func (f *Fetcher) URLs() []string {
	seen := device.NewTokenSet()
	for _, page := range f.catalogs {
		seen.Add(page.URL)
	}
	for _, product := range f.products {
		for _, tmpl := range f.searches {
			seen.Add(tmpl.Expand(product))
		}
	}
	return seen.Values()
}

// Collect fetches pages within budget. Findings keep page order, then
// segment order within each page.
func (f *Fetcher) Collect(ctx context.Context, budget sources.Budget) sources.Result {
	started := time.Now()
	if budget.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget.Timeout)
		defer cancel()
	}

	urls := f.URLs()
	perPage := make([][]device.SourceFinding, len(urls))
	pageErrs := make([]error, len(urls))
	attempted := make([]bool, len(urls))

	abandoned := f.pool.ForEach(ctx, len(urls), func(ctx context.Context, i int) error {
		attempted[i] = true
		resp, err := f.pool.Get(ctx, urls[i], nil)
		if err != nil {
			if fetch.Abandoned(ctx, err) {
				attempted[i] = false
				return nil
			}
			pageErrs[i] = wrapFetchError(urls[i], err)
			return nil
		}
		perPage[i] = pageFindings(urls[i], string(resp.Body))
		return nil
	})

	acc := sources.NewAccumulator(budget)
	failures := sources.NewFailures(sourceName)
	result := sources.Result{Source: device.SourceWeb}
	for i := range urls {
		if !attempted[i] {
			continue
		}
		result.Requests++
		if pageErrs[i] != nil {
			failures.Add(pageErrs[i])
			continue
		}
		acc.Add(perPage[i]...)
	}
	if abandoned != nil || result.Requests < len(urls) {
		acc.MarkTruncated()
	}
	result.Findings, result.Truncated = acc.Findings()
	result.Err = failures.Err(result.Requests)
	result.Duration = time.Since(started)

	f.logger.Debug("web pages fetched",
		logging.Int("pages", len(urls)),
		logging.Int("requested", result.Requests),
		logging.Int("failed", failures.Count()),
		logging.Int("findings", len(result.Findings)))
	return result
}

func pageFindings(url, body string) []device.SourceFinding {
	var findings []device.SourceFinding
	for i, segment := range Segments(body) {
		if len(device.FindManufacturerTokens(segment)) == 0 {
			continue
		}
		findings = append(findings, device.SourceFinding{
			Source:   device.SourceWeb,
			OriginID: fmt.Sprintf("%s#%d", url, i),
			RawText:  segment,
		})
	}
	return findings
}

func wrapFetchError(url string, err error) error {
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) && statusErr.RateLimited() {
		return sources.Wrap(sources.ErrRateLimited, sourceName, "get", url, err)
	}
	if fetch.IsCanceled(err) {
		return sources.Wrap(sources.ErrTimeout, sourceName, "get", url, err)
	}
	return sources.Wrap(sources.ErrUnavailable, sourceName, "get", url, err)
}
