// Package fetch retrieves pages from remote sources with rate limiting,
// retries and a two-tier cache.
package fetch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	stealth "github.com/anatolykoptev/go-stealth"
	"golang.org/x/time/rate"
)

const maxBodyBytes = 16 << 20

// Getter performs one GET request and returns the body and status code.
type Getter func(ctx context.Context, url string, headers map[string]string) ([]byte, int, error)

// StealthGetter sends requests through a browser-fingerprinted client.
// The client has its own timeout and does not observe ctx.
func StealthGetter(bc *stealth.BrowserClient) Getter {
	return func(_ context.Context, url string, headers map[string]string) ([]byte, int, error) {
		data, _, status, err := bc.Do(http.MethodGet, url, headers, nil)
		return data, status, err
	}
}

// HTTPGetter sends requests through a plain http.Client.
func HTTPGetter(client *http.Client) Getter {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	return func(ctx context.Context, url string, headers map[string]string) ([]byte, int, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, 0, fmt.Errorf("build request: %w", err)
		}
		for k, v := range headers {
			// the transport negotiates and decodes compression itself
			if strings.EqualFold(k, "accept-encoding") {
				continue
			}
			req.Header.Set(k, v)
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, 0, err
		}
		defer resp.Body.Close()
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return nil, resp.StatusCode, fmt.Errorf("read body: %w", err)
		}
		return data, resp.StatusCode, nil
	}
}

// Options configures a Fetcher.
type Options struct {
	RPS       float64 // requests per second; 0 = unlimited
	Burst     int
	Retry     RetryConfig
	Cache     *Cache
	Challenge func(body []byte) bool // detects anti-bot interstitials; nil = never
	Referer   string
}

// Fetcher fetches pages. It is safe for concurrent use.
type Fetcher struct {
	get       Getter
	limiter   *rate.Limiter
	retry     RetryConfig
	cache     *Cache
	challenge func([]byte) bool
	referer   string

	requests   atomic.Int64
	challenges atomic.Int64
}

// New builds a Fetcher around get.
func New(get Getter, opts Options) *Fetcher {
	limit := rate.Inf
	if opts.RPS > 0 {
		limit = rate.Limit(opts.RPS)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}
	rc := opts.Retry
	if rc.Multiplier == 0 {
		rc = DefaultRetryConfig
	}
	return &Fetcher{
		get:       get,
		limiter:   rate.NewLimiter(limit, burst),
		retry:     rc,
		cache:     opts.Cache,
		challenge: opts.Challenge,
		referer:   opts.Referer,
	}
}

// Get returns the body of url. Only 200 responses that are not challenge
// pages are returned and cached.
func (f *Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	key := Key("page", url)
	if data, ok := f.cache.Get(ctx, key); ok {
		return data, nil
	}

	data, err := RetryDo(ctx, f.retry, func() ([]byte, error) {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, err
		}
		f.requests.Add(1)
		headers := stealth.ChromeHeaders()
		if f.referer != "" {
			headers["referer"] = f.referer
		}
		body, status, err := f.get(ctx, url, headers)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, &StatusError{StatusCode: status, URL: url}
		}
		if f.challenge != nil && f.challenge(body) {
			f.challenges.Add(1)
			return nil, fmt.Errorf("%s: %w", url, ErrChallenge)
		}
		return body, nil
	})
	if err != nil {
		slog.Debug("fetch: failed", slog.String("url", url), slog.Any("error", err))
		return nil, err
	}
	f.cache.Set(ctx, key, data)
	return data, nil
}

// Stats reports request and challenge counts since creation.
func (f *Fetcher) Stats() (requests, challenges int64) {
	return f.requests.Load(), f.challenges.Load()
}
