// Package listing walks the paginated search results of the register.
package listing

import (
	"bytes"
	"context"
	"fmt"
	"iter"
	"log/slog"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/williampepple1/eudract-scraper/internal/extraction"
	"github.com/williampepple1/eudract-scraper/internal/logging"
	"github.com/williampepple1/eudract-scraper/internal/parser"
	"github.com/williampepple1/eudract-scraper/internal/scraper"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// DateLayout is the date format the search form expects.
const DateLayout = "2006-01-02"

var (
	countPattern = regexp.MustCompile(`(?i)([\d,.]+)\s+result\(s\)\s+found`)
	pagePattern  = regexp.MustCompile(`(?i)page\s+(\d+)\s+of\s+(\d+)`)
)

var (
	idField     = extraction.Labeled{Key: "eudract_number", Label: "EudraCT Number"}
	bannerField = extraction.Selector{Key: "banner", CSS: "div.outcome"}
)

// ListingFetchError reports a search page that could not be retrieved
type ListingFetchError struct {
	Page int
	Err  error
}

func (e *ListingFetchError) Error() string {
	return fmt.Sprintf("failed to fetch listing page %d: %v", e.Page, e.Err)
}

func (e *ListingFetchError) Unwrap() error {
	return e.Err
}

// ListingParseError reports a search page whose layout was not recognised
type ListingParseError struct {
	Page   int
	URL    string
	Reason string
}

func (e *ListingParseError) Error() string {
	return fmt.Sprintf("failed to parse listing page %d (%s): %s", e.Page, e.URL, e.Reason)
}

// Page is one parsed page of search results
type Page struct {
	Number int
	// Total is the reported result count, 0 when not shown.
	Total int
	// Pages is the reported page count, 0 when not shown.
	Pages int
	// Entries counts the trial entries on the page, malformed ones included.
	Entries    int
	References []models.TrialReference
}

// Walker pages through the search results of a date range
type Walker struct {
	Fetcher  scraper.Fetcher
	BaseURL  string
	MaxPages int
	logger   *slog.Logger
}

// NewWalker creates a walker over the register at baseURL.
// maxPages limits how many pages one walk reads, 0 meaning no limit.
func NewWalker(fetcher scraper.Fetcher, baseURL string, maxPages int) *Walker {
	return &Walker{
		Fetcher:  fetcher,
		BaseURL:  strings.TrimRight(baseURL, "/") + "/",
		MaxPages: maxPages,
		logger:   logging.New("listing"),
	}
}

// SearchURL is the listing URL of one page of results for [start, end].
func (w *Walker) SearchURL(start, end time.Time, page int) string {
	return fmt.Sprintf("%sctr-search/search?query=&dateFrom=%s&dateTo=%s&page=%d",
		w.BaseURL, start.Format(DateLayout), end.Format(DateLayout), page)
}

// CardURL is the search URL returning only the card of one trial.
func (w *Walker) CardURL(eudractNumber string) string {
	return w.BaseURL + "ctr-search/search?query=" + eudractNumber
}

// ResultURL is the results page of one trial.
func (w *Walker) ResultURL(eudractNumber string) string {
	return w.BaseURL + "ctr-search/trial/" + eudractNumber + "/results"
}

// Reference builds the reference of a trial known only by its number.
func (w *Walker) Reference(eudractNumber string) models.TrialReference {
	return models.TrialReference{
		EudraCTNumber: eudractNumber,
		CardURL:       w.CardURL(eudractNumber),
		ResultURL:     w.ResultURL(eudractNumber),
	}
}

// FetchPage retrieves and parses one page of results.
func (w *Walker) FetchPage(ctx context.Context, start, end time.Time, page int) (*Page, error) {
	url := w.SearchURL(start, end, page)
	raw, err := w.Fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, &ListingFetchError{Page: page, Err: err}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(raw.Body))
	if err != nil {
		return nil, &ListingParseError{Page: page, URL: url, Reason: err.Error()}
	}

	cards := doc.Find(parser.CardContainer)
	if doc.Find(bannerField.CSS).Length() == 0 && cards.Length() == 0 {
		return nil, &ListingParseError{Page: page, URL: url, Reason: "no result banner or trial entries"}
	}

	result := &Page{Number: page, Entries: cards.Length()}
	banner := bannerField.Extract(doc.Selection)
	if m := countPattern.FindStringSubmatch(banner); len(m) > 1 {
		result.Total, _ = strconv.Atoi(strings.NewReplacer(",", "", ".", "").Replace(m[1]))
	}
	if m := pagePattern.FindStringSubmatch(banner); len(m) > 2 {
		result.Pages, _ = strconv.Atoi(m[2])
	}

	cards.Each(func(i int, card *goquery.Selection) {
		text := idField.Extract(card)
		id := models.EudraCTPattern.FindString(text)
		if id == "" {
			w.logger.Warn("skipping listing entry without a valid EudraCT number", "page", page, "entry", i, "text", text)
			return
		}
		result.References = append(result.References, w.Reference(id))
	})

	return result, nil
}

// Walk yields every trial listed for [start, end], starting at page one.
func (w *Walker) Walk(ctx context.Context, start, end time.Time) iter.Seq2[models.TrialReference, error] {
	return w.WalkFrom(ctx, start, end, 1)
}

// WalkFrom yields every trial listed for [start, end], starting at page first.
// Listing errors are yielded and end the walk when they occur on the first
// page read; later pages are skipped over when the page count allows.
func (w *Walker) WalkFrom(ctx context.Context, start, end time.Time, first int) iter.Seq2[models.TrialReference, error] {
	return func(yield func(models.TrialReference, error) bool) {
		seen := map[string]bool{}
		yielded, total, last := 0, 0, 0

		for page := first; ; page++ {
			if w.MaxPages > 0 && page-first >= w.MaxPages {
				w.logger.Info("reached page limit", "max_pages", w.MaxPages)
				return
			}

			lp, err := w.FetchPage(ctx, start, end, page)
			if err != nil {
				w.logger.Error("listing page failed", "page", page, "err", err)
				if !yield(models.TrialReference{}, err) {
					return
				}
				if ctx.Err() != nil || page == first || last == 0 || page >= last {
					return
				}
				continue
			}

			if lp.Pages > 0 {
				last = lp.Pages
			}
			if lp.Total > 0 {
				total = lp.Total
			}
			w.logger.Debug("listing page read", "page", page, "entries", lp.Entries, "valid", len(lp.References), "total", total, "pages", last)

			if lp.Entries == 0 {
				return
			}
			for _, ref := range lp.References {
				if seen[ref.EudraCTNumber] {
					continue
				}
				seen[ref.EudraCTNumber] = true
				yielded++
				if !yield(ref, nil) {
					return
				}
			}

			if total > 0 && yielded >= total {
				return
			}
			if last > 0 && page >= last {
				return
			}
		}
	}
}
