package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"

	"github.com/go-resty/resty/v2"

	"github.com/williampepple1/eudract-scraper/internal/config"
	"github.com/williampepple1/eudract-scraper/internal/logging"
	"github.com/williampepple1/eudract-scraper/internal/proxy"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// HTTPFetcher retrieves pages with plain HTTP requests
type HTTPFetcher struct {
	Config *config.AppConfig
	Proxy  *proxy.Manager

	client    *resty.Client
	retry     *retrier
	proxyUsed string
	logger    *slog.Logger
}

// NewHTTPFetcher creates a new HTTP fetcher
func NewHTTPFetcher(cfg *config.AppConfig) (*HTTPFetcher, error) {
	f := &HTTPFetcher{
		Config: cfg,
		Proxy:  proxy.NewManager(&cfg.Proxies),
		logger: logging.New("fetcher"),
	}

	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	proxyUsed, err := f.Proxy.ApplyToTransport(transport)
	if err != nil {
		return nil, fmt.Errorf("error applying proxy: %w", err)
	}
	f.proxyUsed = proxyUsed

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetTransport(transport)
	client.SetCookieJar(jar)
	client.SetHeaders(cfg.Scraper.Headers)
	client.SetTimeout(cfg.Scraper.Timeout)
	f.client = client

	f.retry = newRetrier(&cfg.Scraper, f.logger)
	if f.Proxy.CanRotate() {
		f.retry.onRetry = f.rotateProxy
	}
	return f, nil
}

// Fetch retrieves url, retrying transient failures.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*models.RawDocument, error) {
	return f.retry.do(ctx, url, f.get)
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (response, error) {
	res, err := f.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return response{}, err
	}
	f.logger.Debug("fetched page", "url", url, "status", res.StatusCode(), "duration", res.Time())
	return response{body: res.Body(), status: res.StatusCode(), proxyUsed: f.proxyUsed}, nil
}

func (f *HTTPFetcher) rotateProxy() {
	used, err := f.Proxy.Next()
	if err != nil {
		f.logger.Warn("failed to rotate proxy", "err", err)
		return
	}
	f.proxyUsed = used
}
