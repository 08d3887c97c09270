package scraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/williampepple1/eudract-scraper/internal/config"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// ErrUnexpectedStatusCode indicates an HTTP response with a non-2xx status.
var ErrUnexpectedStatusCode = errors.New("unexpected status code")

// Fetcher retrieves one page of the register
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*models.RawDocument, error)
}

// FetchError is returned once every attempt at a URL has failed
type FetchError struct {
	URL        string
	Attempts   int
	LastStatus int
	Err        error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempt(s) (last status %d): %v", e.URL, e.Attempts, e.LastStatus, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// New creates a fetcher based on the configuration
func New(cfg *config.AppConfig) (Fetcher, error) {
	if cfg.Browser.Enabled {
		return NewBrowserFetcher(cfg), nil
	}
	return NewHTTPFetcher(cfg)
}

// response is what a single attempt produced.
type response struct {
	body      []byte
	status    int
	proxyUsed string
}

// attempt performs one request. A nil error with a non-2xx status is a response
// the retry policy decides about.
type attempt func(ctx context.Context, url string) (response, error)

// retrier runs attempts under the configured retry, backoff and politeness policy.
type retrier struct {
	cfg         *config.ScraperConfig
	logger      *slog.Logger
	sleep       func(ctx context.Context, d time.Duration) error
	now         func() time.Time
	lastRequest time.Time
	// onRetry runs before every attempt after the first.
	onRetry func()
}

func newRetrier(cfg *config.ScraperConfig, logger *slog.Logger) *retrier {
	return &retrier{cfg: cfg, logger: logger, sleep: sleepContext, now: time.Now}
}

func (r *retrier) do(ctx context.Context, url string, once attempt) (*models.RawDocument, error) {
	start := r.now()
	var lastErr error
	var lastStatus int
	attempts := 0

	for attempts < r.cfg.MaxAttempts {
		if attempts > 0 {
			wait := r.cfg.RetryDelayFor(attempts)
			r.logger.Warn("retrying request", "url", url, "attempt", attempts+1, "max_attempts", r.cfg.MaxAttempts, "wait", wait, "err", lastErr)
			if err := r.sleep(ctx, wait); err != nil {
				return nil, &FetchError{URL: url, Attempts: attempts, LastStatus: lastStatus, Err: err}
			}
			if r.onRetry != nil {
				r.onRetry()
			}
		}
		if err := r.throttle(ctx); err != nil {
			return nil, &FetchError{URL: url, Attempts: attempts, LastStatus: lastStatus, Err: err}
		}

		attempts++
		res, err := once(ctx, url)
		r.lastRequest = r.now()
		if err != nil {
			if ctx.Err() != nil {
				return nil, &FetchError{URL: url, Attempts: attempts, LastStatus: lastStatus, Err: ctx.Err()}
			}
			lastErr = err
			continue
		}

		lastStatus = res.status
		if res.status >= 200 && res.status < 300 {
			return &models.RawDocument{
				URL:        url,
				Body:       res.body,
				StatusCode: res.status,
				Attempts:   attempts,
				FetchedAt:  r.lastRequest,
				Duration:   r.lastRequest.Sub(start),
				ProxyUsed:  res.proxyUsed,
			}, nil
		}

		lastErr = fmt.Errorf("%w: %d", ErrUnexpectedStatusCode, res.status)
		if !isRetryableStatus(res.status) {
			break
		}
	}

	return nil, &FetchError{URL: url, Attempts: attempts, LastStatus: lastStatus, Err: lastErr}
}

// throttle keeps at least RateLimit between consecutive requests.
func (r *retrier) throttle(ctx context.Context) error {
	if r.cfg.RateLimit <= 0 || r.lastRequest.IsZero() {
		return nil
	}
	wait := r.cfg.RateLimit - r.now().Sub(r.lastRequest)
	if wait <= 0 {
		return nil
	}
	return r.sleep(ctx, wait)
}

// isRetryableStatus determines if we should retry based on HTTP status code.
func isRetryableStatus(statusCode int) bool {
	switch statusCode {
	case http.StatusRequestTimeout, http.StatusTooManyRequests:
		return true
	}
	return statusCode >= 500
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
