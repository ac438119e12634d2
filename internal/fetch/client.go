// Package fetch provides the retrying HTTP primitive used by every scraping
// and download component. It owns the browser user-agent spoofing, the
// per-attempt timeout, the bounded in-flight gate, and the short-lived
// response cache. Mirror failover policy lives above it, in internal/mirror.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// userAgent is a realistic desktop browser signature. Several mirrors return
// empty pages or captcha interstitials to obvious bot agents.
const userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Kind tags a request's expected response shape. It participates in the
// cache key only; the body is returned raw either way.
type Kind string

const (
	KindHTML Kind = "html"
	KindJSON Kind = "json"
)

// Options control a single logical fetch (which may span several attempts).
type Options struct {
	Kind Kind

	// Retries overrides the client's configured retry count for this
	// request when positive. Zero keeps the configured default.
	Retries int

	UseCache bool // consult and populate the response cache
}

// Error is the single failure type surfaced to callers once retries exhaust.
type Error struct {
	URL      string
	Attempts int
	Status   int // last HTTP status, 0 for transport errors
	Err      error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s failed after %d attempt(s): status %d", e.URL, e.Attempts, e.Status)
	}
	return fmt.Sprintf("fetch %s failed after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Config holds fetch client configuration.
type Config struct {
	Timeout     time.Duration // per-attempt timeout
	Retries     int           // additional attempts after the first failure
	MaxInFlight int           // simultaneous requests across the process
	BackoffBase time.Duration // first retry delay, doubled each attempt
	Cache       CacheConfig
}

// DefaultConfig returns sensible defaults for scraping flaky mirrors.
func DefaultConfig() Config {
	return Config{
		Timeout:     30 * time.Second,
		Retries:     3,
		MaxInFlight: 3,
		BackoffBase: 500 * time.Millisecond,
		Cache:       DefaultCacheConfig(),
	}
}

// Client is the shared HTTP primitive. Safe for concurrent use.
type Client struct {
	httpClient *http.Client
	cache      *Cache
	gate       chan struct{}
	retries    int
	backoff    time.Duration
	logger     zerolog.Logger
}

// NewClient creates a new fetch client.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Retries <= 0 {
		cfg.Retries = 3
	}
	if cfg.MaxInFlight <= 0 {
		cfg.MaxInFlight = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}

	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cache:      NewCache(cfg.Cache),
		gate:       make(chan struct{}, cfg.MaxInFlight),
		retries:    cfg.Retries,
		backoff:    cfg.BackoffBase,
		logger:     logger.With().Str("component", "fetch").Logger(),
	}
}

// Cache exposes the response cache for scheduled sweeps.
func (c *Client) Cache() *Cache {
	return c.cache
}

// Get fetches url and returns the raw body. Failures (transport error,
// timeout, non-2xx) are retried with exponentially doubling backoff until
// the retry budget is exhausted, then surfaced as a single *Error.
func (c *Client) Get(ctx context.Context, url string, opts Options) ([]byte, error) {
	cacheKey := string(opts.Kind) + ":" + url

	if opts.UseCache {
		if body, ok := c.cache.Get(cacheKey); ok {
			c.logger.Trace().Str("url", url).Msg("cache hit")
			return body, nil
		}
	}

	retries := c.retries
	if opts.Retries > 0 {
		retries = opts.Retries
	}
	attempts := retries + 1
	delay := c.backoff
	var lastErr *Error

	// Explicit bounded loop; the retry policy is a parameter, not a
	// recursion depth.
	for attempt := 1; attempt <= attempts; attempt++ {
		body, status, err := c.doGet(ctx, url)
		if err == nil {
			if opts.UseCache {
				c.cache.Set(cacheKey, body)
			}
			return body, nil
		}

		lastErr = &Error{URL: url, Attempts: attempt, Status: status, Err: err}

		c.logger.Warn().
			Str("url", url).
			Int("attempt", attempt).
			Int("maxAttempts", attempts).
			Int("status", status).
			Err(err).
			Msg("fetch attempt failed")

		if attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return nil, &Error{URL: url, Attempts: attempt, Err: ctx.Err()}
		case <-time.After(delay):
		}
		delay *= 2
	}

	return nil, lastErr
}

// Head issues a HEAD request and returns the response headers. Used for
// existence and content-type checks before committing to a byte stream.
// HEAD results are never cached and never retried.
func (c *Client) Head(ctx context.Context, url string) (http.Header, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, err
	}
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{URL: url, Attempts: 1, Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 400 {
		return nil, &Error{URL: url, Attempts: 1, Status: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	return resp.Header, nil
}

// Stream opens a GET byte stream without buffering the body. The caller owns
// the returned ReadCloser. Content length is -1 when unknown.
func (c *Client) Stream(ctx context.Context, url string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	// Streams bypass the gate and the per-attempt timeout: a large file can
	// legitimately take longer than any scrape, and holding a gate slot for
	// the whole transfer would starve searches.
	streamClient := &http.Client{}
	resp, err := streamClient.Do(req)
	if err != nil {
		return nil, 0, &Error{URL: url, Attempts: 1, Err: err}
	}

	if resp.StatusCode >= 400 {
		resp.Body.Close()
		return nil, 0, &Error{URL: url, Attempts: 1, Status: resp.StatusCode, Err: fmt.Errorf("status %d", resp.StatusCode)}
	}

	return resp.Body, resp.ContentLength, nil
}

// doGet performs one gated attempt.
func (c *Client) doGet(ctx context.Context, url string) ([]byte, int, error) {
	if err := c.acquire(ctx); err != nil {
		return nil, 0, err
	}
	defer c.release()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, resp.StatusCode, fmt.Errorf("status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read body: %w", err)
	}

	return body, resp.StatusCode, nil
}

// acquire takes a gate slot, queueing FIFO behind other waiters.
func (c *Client) acquire(ctx context.Context) error {
	select {
	case c.gate <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) release() {
	<-c.gate
}
