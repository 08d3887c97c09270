package scraper

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/williampepple1/eudract-scraper/internal/config"
	"github.com/williampepple1/eudract-scraper/internal/logging"
	"github.com/williampepple1/eudract-scraper/internal/proxy"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

var errBrowserTimeout = errors.New("browser timeout")

// BrowserFetcher renders pages in a headless browser before returning them
type BrowserFetcher struct {
	Config *config.AppConfig
	Proxy  *proxy.Manager

	retry  *retrier
	logger *slog.Logger
}

// NewBrowserFetcher creates a new browser fetcher
func NewBrowserFetcher(cfg *config.AppConfig) *BrowserFetcher {
	f := &BrowserFetcher{
		Config: cfg,
		Proxy:  proxy.NewManager(&cfg.Proxies),
		logger: logging.New("browser"),
	}
	f.retry = newRetrier(&cfg.Scraper, f.logger)
	return f
}

// Fetch renders url, retrying transient failures.
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (*models.RawDocument, error) {
	doc, err := f.retry.do(ctx, url, f.render)
	if doc != nil {
		doc.JSRendered = true
	}
	return doc, err
}

func (f *BrowserFetcher) render(ctx context.Context, url string) (response, error) {
	ctx, cancel := context.WithTimeout(ctx, f.Config.Scraper.Timeout)
	defer cancel()

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.Config.Browser.Headless),
	)
	if ua := f.Config.Scraper.Headers["User-Agent"]; ua != "" {
		opts = append(opts, chromedp.UserAgent(ua))
	}

	// A fresh proxy per attempt gives rotation on retry.
	proxyURL, err := f.Proxy.GetProxyURL()
	if err != nil {
		return response{}, err
	}
	var proxyUsed string
	if proxyURL != nil {
		opts = append(opts, chromedp.ProxyServer(proxyURL.Scheme+"://"+proxyURL.Host))
		proxyUsed = proxyURL.Redacted()
	}

	allocCtx, cancel := chromedp.NewExecAllocator(ctx, opts...)
	defer cancel()

	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	// The status of the top-level document response.
	var status atomic.Int64
	chromedp.ListenTarget(browserCtx, func(ev any) {
		if resp, ok := ev.(*network.EventResponseReceived); ok && resp.Type == network.ResourceTypeDocument {
			status.CompareAndSwap(0, resp.Response.Status)
		}
	})

	headers := network.Headers{}
	for k, v := range f.Config.Scraper.Headers {
		if k != "User-Agent" {
			headers[k] = v
		}
	}

	var html string
	err = chromedp.Run(browserCtx,
		network.Enable(),
		network.SetExtraHTTPHeaders(headers),
		chromedp.Navigate(url),
		chromedp.Sleep(f.Config.Browser.WaitTime),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return response{}, errBrowserTimeout
		}
		return response{}, err
	}

	code := int(status.Load())
	if code == 0 {
		code = 200
	}
	f.logger.Debug("rendered page", "url", url, "status", code)
	return response{body: []byte(html), status: code, proxyUsed: proxyUsed}, nil
}
