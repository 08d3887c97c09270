package listing

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/williampepple1/eudract-scraper/internal/config"
	"github.com/williampepple1/eudract-scraper/internal/registertest"
	"github.com/williampepple1/eudract-scraper/internal/scraper"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

var (
	from = time.Date(2022, 12, 1, 0, 0, 0, 0, time.UTC)
	to   = time.Date(2022, 12, 31, 0, 0, 0, 0, time.UTC)
)

const (
	fromS = "2022-12-01"
	toS   = "2022-12-31"
)

func newWalker(t *testing.T, reg *registertest.Register, maxPages int) *Walker {
	t.Helper()
	cfg := config.Default()
	cfg.Scraper.RateLimit = 0
	cfg.Scraper.RetryDelay = time.Millisecond
	cfg.Scraper.MaxBackoff = time.Millisecond
	cfg.Scraper.MaxAttempts = 2
	fetcher, err := scraper.NewHTTPFetcher(cfg)
	require.NoError(t, err)
	return NewWalker(fetcher, reg.BaseURL(), maxPages)
}

func trials(ids ...string) []registertest.Trial {
	out := make([]registertest.Trial, len(ids))
	for i, id := range ids {
		out[i] = registertest.Trial{ID: id, Title: "Trial " + id, Sponsor: "Sponsor"}
	}
	return out
}

type item struct {
	id  string
	err error
}

func collect(w *Walker) []item {
	var out []item
	for ref, err := range w.Walk(context.Background(), from, to) {
		out = append(out, item{id: ref.EudraCTNumber, err: err})
	}
	return out
}

func ids(items []item) []string {
	var out []string
	for _, it := range items {
		if it.err == nil {
			out = append(out, it.id)
		}
	}
	return out
}

func TestSearchURL(t *testing.T) {
	w := NewWalker(nil, "https://www.clinicaltrialsregister.eu", 0)
	require.Equal(t,
		"https://www.clinicaltrialsregister.eu/ctr-search/search?query=&dateFrom=2022-12-01&dateTo=2022-12-31&page=3",
		w.SearchURL(from, to, 3))
	require.Equal(t, models.TrialReference{
		EudraCTNumber: "2022-000001-11",
		CardURL:       "https://www.clinicaltrialsregister.eu/ctr-search/search?query=2022-000001-11",
		ResultURL:     "https://www.clinicaltrialsregister.eu/ctr-search/trial/2022-000001-11/results",
	}, w.Reference("2022-000001-11"))
}

func TestWalk_AllPagesInOrder(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Publish(fromS, toS, 2, trials("2022-000001-11", "2022-000002-22", "2022-000003-33")...)

	got := collect(newWalker(t, reg, 0))
	require.Equal(t, []string{"2022-000001-11", "2022-000002-22", "2022-000003-33"}, ids(got))
	require.Len(t, got, 3)
	require.Equal(t, 1, reg.Count(registertest.SearchPath(fromS, toS, 2)))
	require.Zero(t, reg.Count(registertest.SearchPath(fromS, toS, 3)))
}

func TestWalk_ZeroResults(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Publish(fromS, toS, 10)

	got := collect(newWalker(t, reg, 0))
	require.Empty(t, got)
}

func TestWalk_StopsAtReportedTotal(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	page := registertest.ListingPage(2, 1, 9, trials("2022-000001-11", "2022-000002-22")...)
	reg.Handle(registertest.SearchPath(fromS, toS, 1), page)

	got := collect(newWalker(t, reg, 0))
	require.Equal(t, []string{"2022-000001-11", "2022-000002-22"}, ids(got))
	require.Zero(t, reg.Count(registertest.SearchPath(fromS, toS, 2)))
}

func TestWalk_StopsOnEmptyPage(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	// Banner claims more than is served.
	reg.Handle(registertest.SearchPath(fromS, toS, 1), registertest.ListingPage(50, 1, 5, trials("2022-000001-11")...))
	reg.Handle(registertest.SearchPath(fromS, toS, 2), registertest.ListingPage(50, 2, 5))

	got := collect(newWalker(t, reg, 0))
	require.Equal(t, []string{"2022-000001-11"}, ids(got))
	require.Len(t, got, 1)
	require.Zero(t, reg.Count(registertest.SearchPath(fromS, toS, 3)))
}

func TestWalk_DeduplicatesAcrossPages(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Handle(registertest.SearchPath(fromS, toS, 1), registertest.ListingPage(4, 1, 2, trials("2022-000001-11", "2022-000002-22")...))
	reg.Handle(registertest.SearchPath(fromS, toS, 2), registertest.ListingPage(4, 2, 2, trials("2022-000002-22", "2022-000003-33")...))

	got := collect(newWalker(t, reg, 0))
	require.Equal(t, []string{"2022-000001-11", "2022-000002-22", "2022-000003-33"}, ids(got))
}

func TestWalk_SkipsMalformedIdentifiers(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Handle(registertest.SearchPath(fromS, toS, 1), registertest.ListingPage(2, 1, 1, trials("2022-1-1", "2022-000002-22")...))

	got := collect(newWalker(t, reg, 0))
	require.Equal(t, []string{"2022-000002-22"}, ids(got))
}

func TestWalk_PageOfMalformedEntriesContinues(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Handle(registertest.SearchPath(fromS, toS, 1), registertest.ListingPage(2, 1, 2, trials("2022-1-1")...))
	reg.Handle(registertest.SearchPath(fromS, toS, 2), registertest.ListingPage(2, 2, 2, trials("2022-000002-22")...))

	got := collect(newWalker(t, reg, 0))
	require.Equal(t, []string{"2022-000002-22"}, ids(got))
	require.Equal(t, 1, reg.Count(registertest.SearchPath(fromS, toS, 2)))
}

func TestWalk_FirstPageFetchFailureEndsWalk(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Publish(fromS, toS, 1, trials("2022-000001-11", "2022-000002-22")...)
	reg.Fail(registertest.SearchPath(fromS, toS, 1), http.StatusInternalServerError)

	got := collect(newWalker(t, reg, 0))
	require.Len(t, got, 1)
	var fetchErr *ListingFetchError
	require.True(t, errors.As(got[0].err, &fetchErr))
	require.Equal(t, 1, fetchErr.Page)

	var inner *scraper.FetchError
	require.True(t, errors.As(got[0].err, &inner))
	require.Equal(t, http.StatusInternalServerError, inner.LastStatus)
	require.Zero(t, reg.Count(registertest.SearchPath(fromS, toS, 2)))
}

func TestWalk_LaterPageFailureResumes(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Publish(fromS, toS, 1, trials("2022-000001-11", "2022-000002-22", "2022-000003-33")...)
	reg.Fail(registertest.SearchPath(fromS, toS, 2), http.StatusBadGateway)

	got := collect(newWalker(t, reg, 0))
	require.Len(t, got, 3)
	require.Equal(t, []string{"2022-000001-11", "2022-000003-33"}, ids(got))
	var fetchErr *ListingFetchError
	require.True(t, errors.As(got[1].err, &fetchErr))
	require.Equal(t, 2, fetchErr.Page)
}

func TestWalk_UnrecognisedPage(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Handle(registertest.SearchPath(fromS, toS, 1), "<html><body><p>Service unavailable</p></body></html>")

	got := collect(newWalker(t, reg, 0))
	require.Len(t, got, 1)
	var parseErr *ListingParseError
	require.True(t, errors.As(got[0].err, &parseErr))
	require.Equal(t, 1, parseErr.Page)
}

func TestWalk_MaxPages(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Publish(fromS, toS, 1, trials("2022-000001-11", "2022-000002-22", "2022-000003-33")...)

	got := collect(newWalker(t, reg, 2))
	require.Equal(t, []string{"2022-000001-11", "2022-000002-22"}, ids(got))
	require.Zero(t, reg.Count(registertest.SearchPath(fromS, toS, 3)))
}

func TestWalkFrom_RestartsAtPage(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Publish(fromS, toS, 1, trials("2022-000001-11", "2022-000002-22", "2022-000003-33")...)

	w := newWalker(t, reg, 0)
	var got []string
	for ref, err := range w.WalkFrom(context.Background(), from, to, 2) {
		require.NoError(t, err)
		got = append(got, ref.EudraCTNumber)
	}
	require.Equal(t, []string{"2022-000002-22", "2022-000003-33"}, got)
	require.Zero(t, reg.Count(registertest.SearchPath(fromS, toS, 1)))
}

func TestWalk_ConsumerMayStopEarly(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Publish(fromS, toS, 1, trials("2022-000001-11", "2022-000002-22")...)

	w := newWalker(t, reg, 0)
	for ref, err := range w.Walk(context.Background(), from, to) {
		require.NoError(t, err)
		require.Equal(t, "2022-000001-11", ref.EudraCTNumber)
		break
	}
	require.Zero(t, reg.Count(registertest.SearchPath(fromS, toS, 2)))
}

func TestFetchPage_ReadsBanner(t *testing.T) {
	reg := registertest.New()
	defer reg.Close()
	reg.Handle(registertest.SearchPath(fromS, toS, 4), registertest.ListingPage(1234, 4, 62, trials("2022-000001-11")...))

	page, err := newWalker(t, reg, 0).FetchPage(context.Background(), from, to, 4)
	require.NoError(t, err)
	require.Equal(t, 4, page.Number)
	require.Equal(t, 1234, page.Total)
	require.Equal(t, 62, page.Pages)
	require.Equal(t, 1, page.Entries)
	require.Len(t, page.References, 1)
	require.Equal(t, reg.BaseURL()+"ctr-search/search?query=2022-000001-11", page.References[0].CardURL)
}
