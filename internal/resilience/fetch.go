package resilience

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Fetcher performs GET requests against a single upstream with retry,
// per-attempt timeout and circuit-breaker protection. Both remote data
// sources used by the cashier (product catalog and exchange rates) go
// through a Fetcher.
type Fetcher struct {
	Client      *http.Client
	Breaker     *Breaker
	Upstream    string
	MaxAttempts int
	BaseBackoff time.Duration
	Jitter      float64
	Timeout     time.Duration
}

// Get fetches the URL and returns the response body. Responses with non-2xx
// status codes count as failures and are retried.
func (f Fetcher) Get(ctx context.Context, url string) ([]byte, error) {
	if f.Client == nil {
		return nil, errors.New("resilience: http client not configured")
	}
	maxAttempts := f.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if f.Breaker != nil && !f.Breaker.Allow() {
			lastErr = ErrOpenCircuit
			observeFetch(f.Upstream, "breaker_open")
			break
		}
		body, err := f.getOnce(ctx, url)
		if err == nil {
			if f.Breaker != nil {
				f.Breaker.Report(true)
			}
			observeFetch(f.Upstream, "success")
			return body, nil
		}
		lastErr = err
		if f.Breaker != nil {
			f.Breaker.Report(false)
		}
		observeFetch(f.Upstream, "failure")
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return nil, err
			}
		}
		if attempt == maxAttempts {
			break
		}
		timer := time.NewTimer(Backoff(f.BaseBackoff, attempt, f.Jitter))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	return nil, lastErr
}

func (f Fetcher) getOnce(ctx context.Context, url string) ([]byte, error) {
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(callCtx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := f.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))
		return nil, fmt.Errorf("%s: unexpected status %s", f.Upstream, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, err
	}
	return body, nil
}
