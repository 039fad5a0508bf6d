package sources

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/david/campsite-finder/internal/metrics"
	"github.com/david/campsite-finder/internal/models"
)

// maxBodyBytes caps how much of an upstream response is read.
const maxBodyBytes = 16 << 20

// Fetcher performs JSON calls against one upstream with a per-call timeout,
// a request pacer and a concurrency ceiling. It never retries: a 429 is
// surfaced as ErrRateLimited so the caller can stop.
type Fetcher struct {
	source    models.Source
	client    *http.Client
	limiter   *rate.Limiter
	sem       *semaphore.Weighted
	timeout   time.Duration
	userAgent string
	metrics   *metrics.Metrics
}

// NewFetcher builds a fetcher from cfg. timeout overrides cfg when non-zero.
func NewFetcher(src models.Source, cfg FetchConfig, timeout time.Duration, m *metrics.Metrics) *Fetcher {
	if timeout == 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	rps := cfg.RateLimitRPS
	if rps <= 0 {
		rps = 5
	}
	concurrency := cfg.MaxConcurrency
	if concurrency <= 0 {
		concurrency = 10
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: 10 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   int(concurrency),
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &Fetcher{
		source:    src,
		client:    &http.Client{Transport: transport},
		limiter:   rate.NewLimiter(rate.Limit(rps), int(concurrency)),
		sem:       semaphore.NewWeighted(concurrency),
		timeout:   timeout,
		userAgent: cfg.UserAgent,
		metrics:   m,
	}
}

// GetJSON issues a GET and decodes the JSON body into out.
func (f *Fetcher) GetJSON(ctx context.Context, op, url string, out any) error {
	return f.do(ctx, op, http.MethodGet, url, nil, out)
}

// PostJSON issues a POST with body encoded as JSON and decodes the reply into out.
func (f *Fetcher) PostJSON(ctx context.Context, op, url string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("encode %s request: %w", op, err)
	}
	return f.do(ctx, op, http.MethodPost, url, payload, out)
}

func (f *Fetcher) do(ctx context.Context, op, method, url string, payload []byte, out any) error {
	if err := f.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer f.sem.Release(1)

	if err := f.limiter.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(callCtx, method, url, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}

	started := time.Now()
	resp, err := f.client.Do(req)
	if err != nil {
		f.metrics.ObserveUpstream(string(f.source), op, "error", time.Since(started))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &UpstreamError{Source: f.source, Op: op, Err: err}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		f.metrics.ObserveUpstream(string(f.source), op, "rate_limited", time.Since(started))
		return fmt.Errorf("%s %s: %w", f.source, op, ErrRateLimited)
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		f.metrics.ObserveUpstream(string(f.source), op, "error", time.Since(started))
		return &UpstreamError{Source: f.source, Op: op, StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxBodyBytes)).Decode(out); err != nil {
		f.metrics.ObserveUpstream(string(f.source), op, "error", time.Since(started))
		return &UpstreamError{Source: f.source, Op: op, Err: fmt.Errorf("decode body: %w", err)}
	}
	f.metrics.ObserveUpstream(string(f.source), op, "ok", time.Since(started))
	return nil
}
