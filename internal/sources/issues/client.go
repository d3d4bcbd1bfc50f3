// Package issues collects findings from issue tracker repositories: open
// issues and pull requests plus releases, via the GitHub REST API.
package issues

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"fpsync/internal/device"
	"fpsync/internal/logging"
	"fpsync/internal/sources"
	"fpsync/internal/sources/fetch"
)

const (
	sourceName      = string(device.SourceIssueTracker)
	apiVersion      = "2022-11-28"
	acceptMediaType = "application/vnd.github+json"
	defaultPerPage  = 100
	defaultMaxPages = 10
)

var nextLinkPattern = regexp.MustCompile(`<([^>]+)>\s*;\s*rel="next"`)

// item is the subset of issue, pull request and release payloads we read.
type item struct {
	Title       string          `json:"title"`
	Name        string          `json:"name"`
	TagName     string          `json:"tag_name"`
	Body        string          `json:"body"`
	HTMLURL     string          `json:"html_url"`
	PullRequest json.RawMessage `json:"pull_request"`
}

func (it item) text() string {
	title := it.Title
	if title == "" {
		title = it.Name
	}
	if title == "" {
		title = it.TagName
	}
	return strings.TrimSpace(title + "\n" + it.Body)
}

type endpointKind string

const (
	kindIssues   endpointKind = "issues"
	kindReleases endpointKind = "releases"
)

type job struct {
	repo string
	kind endpointKind
}

// Fetcher pages through each configured repository.
type Fetcher struct {
	pool            *fetch.Pool
	baseURL         string
	token           string
	repos           []string
	perPage         int
	maxPages        int
	includePulls    bool
	includeReleases bool
	logger          *slog.Logger
}

var _ sources.Collector = (*Fetcher)(nil)

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithToken sets the bearer token.
func WithToken(token string) Option {
	return func(f *Fetcher) {
		f.token = strings.TrimSpace(token)
	}
}

// WithPaging sets the page size and the page cap per endpoint.
func WithPaging(perPage, maxPages int) Option {
	return func(f *Fetcher) {
		if perPage > 0 {
			f.perPage = perPage
		}
		if maxPages > 0 {
			f.maxPages = maxPages
		}
	}
}

// WithPullRequests includes open pull requests alongside issues.
func WithPullRequests(enabled bool) Option {
	return func(f *Fetcher) {
		f.includePulls = enabled
	}
}

// WithReleases includes release notes.
func WithReleases(enabled bool) Option {
	return func(f *Fetcher) {
		f.includeReleases = enabled
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *Fetcher) {
		if logger != nil {
			f.logger = logger
		}
	}
}

// New creates a fetcher for repos ("owner/name") against baseURL.
func New(pool *fetch.Pool, baseURL string, repos []string, opts ...Option) (*Fetcher, error) {
	if pool == nil {
		return nil, errors.New("fetch pool required")
	}
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL == "" {
		return nil, errors.New("issue tracker base url required")
	}
	f := &Fetcher{
		pool:            pool,
		baseURL:         baseURL,
		repos:           repos,
		perPage:         defaultPerPage,
		maxPages:        defaultMaxPages,
		includePulls:    true,
		includeReleases: true,
		logger:          logging.NewNop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.logger = logging.NewComponentLogger(f.logger, "issues")
	return f, nil
}

// Source identifies the collector.
func (f *Fetcher) Source() device.Source {
	return device.SourceIssueTracker
}

type jobResult struct {
	findings  []device.SourceFinding
	requests    int
	parseErrors int
	err         error
	truncated   bool
	attempted   bool
}

// Collect pages through every repository within budget.
func (f *Fetcher) Collect(ctx context.Context, budget sources.Budget) sources.Result {
	started := time.Now()
	if budget.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, budget.Timeout)
		defer cancel()
	}

	jobs := f.jobs()
	results := make([]jobResult, len(jobs))
	abandoned := f.pool.ForEach(ctx, len(jobs), func(ctx context.Context, i int) error {
		results[i] = f.runJob(ctx, jobs[i])
		return nil
	})

	acc := sources.NewAccumulator(budget)
	failures := sources.NewFailures(sourceName)
	result := sources.Result{Source: device.SourceIssueTracker}
	truncated := abandoned != nil
	parseErrors := 0
	for _, jr := range results {
		if !jr.attempted {
			truncated = true
			continue
		}
		result.Requests += jr.requests
		parseErrors += jr.parseErrors
		failures.Add(jr.err)
		if jr.truncated {
			truncated = true
		}
		acc.Add(jr.findings...)
	}
	if truncated {
		acc.MarkTruncated()
	}
	result.Findings, result.Truncated = acc.Findings()
	result.Err = failures.Err(len(jobs))
	result.Duration = time.Since(started)

	f.logger.Debug("issue tracker fetched",
		logging.Int("repositories", len(f.repos)),
		logging.Int("requests", result.Requests),
		logging.Int("parse_errors", parseErrors),
		logging.Int("findings", len(result.Findings)))
	return result
}

func (f *Fetcher) jobs() []job {
	jobs := make([]job, 0, len(f.repos)*2)
	for _, repo := range f.repos {
		jobs = append(jobs, job{repo: repo, kind: kindIssues})
		if f.includeReleases {
			jobs = append(jobs, job{repo: repo, kind: kindReleases})
		}
	}
	return jobs
}

func (f *Fetcher) runJob(ctx context.Context, j job) jobResult {
	res := jobResult{attempted: true}
	next, err := f.firstPage(j)
	if err != nil {
		res.err = sources.Wrap(sources.ErrUnavailable, sourceName, string(j.kind), j.repo, err)
		return res
	}
	for page := 1; next != ""; page++ {
		if page > f.maxPages {
			res.truncated = true
			break
		}
		resp, err := f.pool.Get(ctx, next, f.headers())
		if err != nil {
			if fetch.Abandoned(ctx, err) {
				res.truncated = true
				break
			}
			res.requests++
			res.err = wrapFetchError(j, err)
			break
		}
		res.requests++
		next = NextLink(resp.Header.Get("Link"))
		var items []item
		if err := json.Unmarshal(resp.Body, &items); err != nil {
			res.parseErrors++
			f.logger.Warn("issue tracker page skipped",
				logging.String("repository", j.repo),
				logging.String("endpoint", string(j.kind)),
				logging.Int("page", page),
				logging.Error(sources.Wrap(sources.ErrParse, sourceName, string(j.kind), j.repo, err)))
			continue
		}
		for _, it := range items {
			if len(it.PullRequest) > 0 && string(it.PullRequest) != "null" && !f.includePulls {
				continue
			}
			text := it.text()
			if text == "" {
				continue
			}
			res.findings = append(res.findings, device.SourceFinding{
				Source:   device.SourceIssueTracker,
				OriginID: originID(it, j, page),
				RawText:  text,
			})
		}
	}
	return res
}

func (f *Fetcher) firstPage(j job) (string, error) {
	owner, name, ok := strings.Cut(j.repo, "/")
	if !ok || owner == "" || name == "" {
		return "", fmt.Errorf("repository %q is not owner/name", j.repo)
	}
	endpoint, err := url.Parse(fmt.Sprintf("%s/repos/%s/%s/%s", f.baseURL, url.PathEscape(owner), url.PathEscape(name), j.kind))
	if err != nil {
		return "", fmt.Errorf("parse issue tracker url: %w", err)
	}
	params := url.Values{}
	params.Set("per_page", strconv.Itoa(f.perPage))
	if j.kind == kindIssues {
		params.Set("state", "open")
	}
	endpoint.RawQuery = params.Encode()
	return endpoint.String(), nil
}

func (f *Fetcher) headers() http.Header {
	h := http.Header{}
	h.Set("Accept", acceptMediaType)
	h.Set("X-GitHub-Api-Version", apiVersion)
	if f.token != "" {
		h.Set("Authorization", "Bearer "+f.token)
	}
	return h
}

// NextLink extracts the rel="next" URL from a Link header.
func NextLink(header string) string {
	m := nextLinkPattern.FindStringSubmatch(header)
	if m == nil {
		return ""
	}
	return m[1]
}

func originID(it item, j job, page int) string {
	if it.HTMLURL != "" {
		return it.HTMLURL
	}
	return fmt.Sprintf("%s/%s?page=%d", j.repo, j.kind, page)
}

func wrapFetchError(j job, err error) error {
	var statusErr *fetch.StatusError
	if errors.As(err, &statusErr) && statusErr.RateLimited() {
		return sources.Wrap(sources.ErrRateLimited, sourceName, string(j.kind), j.repo, err)
	}
	if fetch.IsCanceled(err) {
		return sources.Wrap(sources.ErrTimeout, sourceName, string(j.kind), j.repo, err)
	}
	return sources.Wrap(sources.ErrUnavailable, sourceName, string(j.kind), j.repo, err)
}
