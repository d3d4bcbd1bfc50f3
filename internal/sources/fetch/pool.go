// Package fetch is the paced HTTP worker pool shared by the network
// collectors: a bounded errgroup, a token-bucket limiter, and a deadline per
// request.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

const (
	defaultConcurrency    = 4
	defaultRequestTimeout = 20 * time.Second
	defaultMaxBodyBytes   = 4 << 20
)

// Response is a fully read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Latency    time.Duration
	Truncated  bool
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Latency    time.Duration
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s returned %d (latency=%v)", e.URL, e.StatusCode, e.Latency)
}

// RateLimited reports whether the server asked the client to slow down.
func (e *StatusError) RateLimited() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode == http.StatusForbidden
}

// Pool paces and bounds outgoing requests.
type Pool struct {
	client         *http.Client
	limiter        *rate.Limiter
	concurrency    int
	requestTimeout time.Duration
	userAgent      string
	maxBodyBytes   int64
}

// Option configures a Pool.
type Option func(*Pool)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Pool) {
		if client != nil {
			p.client = client
		}
	}
}

// WithConcurrency bounds in-flight requests.
func WithConcurrency(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.concurrency = n
		}
	}
}

// WithInterval spaces requests at least interval apart. Zero disables pacing.
func WithInterval(interval time.Duration) Option {
	return func(p *Pool) {
		if interval <= 0 {
			p.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		p.limiter = rate.NewLimiter(rate.Every(interval), 1)
	}
}

// WithRequestTimeout sets the deadline applied to each request.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(p *Pool) {
		if timeout > 0 {
			p.requestTimeout = timeout
		}
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(p *Pool) {
		p.userAgent = ua
	}
}

// WithMaxBodyBytes caps how much of each body is read.
func WithMaxBodyBytes(n int64) Option {
	return func(p *Pool) {
		if n > 0 {
			p.maxBodyBytes = n
		}
	}
}

// New creates a pool. Without options it allows four concurrent requests,
// no pacing and a 20 second deadline per request.
func New(opts ...Option) *Pool {
	p := &Pool{
		client:         &http.Client{},
		limiter:        rate.NewLimiter(rate.Inf, 1),
		concurrency:    defaultConcurrency,
		requestTimeout: defaultRequestTimeout,
		maxBodyBytes:   defaultMaxBodyBytes,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Concurrency returns the worker bound.
func (p *Pool) Concurrency() int {
	return p.concurrency
}

// Get waits for a limiter token, then fetches url under the per-request
// deadline. Non-2xx responses return the response alongside a *StatusError.
func (p *Pool) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		// Wait refuses early when the next token lands past ctx's deadline.
		if ctx.Err() == nil {
			err = context.DeadlineExceeded
		}
		return nil, fmt.Errorf("wait for rate limiter: %w: %w", ErrNotStarted, err)
	}

	reqCtx, cancel := context.WithTimeout(ctx, p.requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for key, values := range header {
		for _, v := range values {
			req.Header.Add(key, v)
		}
	}
	if p.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", p.userAgent)
	}

	requestStart := time.Now()
	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request (latency=%v): %w", time.Since(requestStart), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, p.maxBodyBytes+1))
	latency := time.Since(requestStart)
	if err != nil {
		return nil, fmt.Errorf("read body (latency=%v): %w", latency, err)
	}
	out := &Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
		Latency:    latency,
	}
	if int64(len(body)) > p.maxBodyBytes {
		out.Body = body[:p.maxBodyBytes]
		out.Truncated = true
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return out, &StatusError{URL: url, StatusCode: resp.StatusCode, Latency: latency}
	}
	return out, nil
}

// ForEach calls fn for indices [0, n) on at most Concurrency goroutines.
// Work stops being scheduled once ctx is done or fn returns ErrStop; fn's
// other errors are the caller's to record. ForEach returns ctx.Err() when
// work was abandoned.
func (p *Pool) ForEach(ctx context.Context, n int, fn func(ctx context.Context, i int) error) error {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := 0; i < n; i++ {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return nil
			}
			if err := fn(gctx, i); errors.Is(err, ErrStop) {
				return ErrStop
			}
			return nil
		})
	}
	err := g.Wait()
	if errors.Is(err, ErrStop) {
		return nil
	}
	return ctx.Err()
}

// ErrStop tells ForEach to stop scheduling further work.
var ErrStop = errors.New("stop")

// ErrNotStarted marks a Get that ran out of time before its request was sent.
// It always comes wrapped together with a context error.
var ErrNotStarted = errors.New("request not started")

// Abandoned reports whether err means the request was dropped because the
// surrounding budget ran out, rather than failed on its own.
func Abandoned(ctx context.Context, err error) bool {
	if errors.Is(err, ErrNotStarted) {
		return true
	}
	return IsCanceled(err) && ctx.Err() != nil
}

// IsCanceled reports whether err came from an expired or canceled context.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
