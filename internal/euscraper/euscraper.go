// Package euscraper runs the crawl of one date range end to end: listing,
// card, per member state protocols and results, collected into a RunResult.
package euscraper

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/williampepple1/eudract-scraper/internal/config"
	"github.com/williampepple1/eudract-scraper/internal/listing"
	"github.com/williampepple1/eudract-scraper/internal/logging"
	"github.com/williampepple1/eudract-scraper/internal/parser"
	"github.com/williampepple1/eudract-scraper/internal/scraper"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// Stages a trial can fail at
const (
	StageCard     = "card"
	StageProtocol = "protocol"
	StageResult   = "result"
)

// InvalidDateRangeError reports an end date before the start date
type InvalidDateRangeError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidDateRangeError) Error() string {
	return fmt.Sprintf("invalid date range: end date %s is before start date %s",
		e.End.Format(listing.DateLayout), e.Start.Format(listing.DateLayout))
}

// Scraper coordinates the listing walker, the fetcher and the section parsers
type Scraper struct {
	Fetcher scraper.Fetcher
	Walker  *listing.Walker

	cards     parser.Parser[models.CardRecord]
	protocols parser.Parser[models.ProtocolRecord]
	results   parser.Parser[models.ResultRecord]

	logger *slog.Logger
	now    func() time.Time
}

// New creates a scraper for the register configured in cfg.
func New(cfg *config.AppConfig, fetcher scraper.Fetcher) *Scraper {
	return &Scraper{
		Fetcher:   fetcher,
		Walker:    listing.NewWalker(fetcher, cfg.Scraper.BaseURL, cfg.Scraper.MaxPages),
		cards:     parser.CardParser{},
		protocols: parser.ProtocolParser{},
		results:   parser.ResultParser{},
		logger:    logging.New("euscraper"),
		now:       time.Now,
	}
}

// Run scrapes every trial registered in [start, end].
// Per-trial failures are recorded in the result and never abort the run.
// An error is returned for an invalid range, a listing that fails on its
// first page, or cancellation; the result then holds whatever was collected.
func (s *Scraper) Run(ctx context.Context, start, end time.Time) (*models.RunResult, error) {
	if end.Before(start) {
		return nil, &InvalidDateRangeError{Start: start, End: end}
	}

	result := &models.RunResult{StartDate: start, EndDate: end, StartedAt: s.now()}
	s.logger.Info("starting run", "start_date", start.Format(listing.DateLayout), "end_date", end.Format(listing.DateLayout))

	for ref, err := range s.Walker.Walk(ctx, start, end) {
		if err != nil {
			if ctx.Err() != nil {
				return s.finish(result), ctx.Err()
			}
			if result.Listed == 0 && onFirstPage(err) {
				return s.finish(result), err
			}
			continue
		}

		result.Listed++
		s.process(ctx, ref, result)
		if ctx.Err() != nil {
			return s.finish(result), ctx.Err()
		}
	}

	return s.finish(result), nil
}

// RunReferences scrapes an explicit list of trials, skipping the listing.
func (s *Scraper) RunReferences(ctx context.Context, refs []models.TrialReference) (*models.RunResult, error) {
	now := s.now()
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	result := &models.RunResult{StartDate: today, EndDate: today, StartedAt: now}
	s.logger.Info("starting run over known trials", "trials", len(refs))

	for _, ref := range refs {
		result.Listed++
		s.process(ctx, ref, result)
		if ctx.Err() != nil {
			return s.finish(result), ctx.Err()
		}
	}
	return s.finish(result), nil
}

func (s *Scraper) finish(result *models.RunResult) *models.RunResult {
	result.FinishedAt = s.now()
	s.logger.Info("run complete",
		"listed", result.Listed,
		"processed", result.Processed(),
		"skipped", result.Skipped,
		"protocols", len(result.Protocols),
		"results", len(result.Results),
		"duration", result.FinishedAt.Sub(result.StartedAt),
	)
	return result
}

func (s *Scraper) process(ctx context.Context, ref models.TrialReference, result *models.RunResult) {
	trial, failure := s.scrapeTrial(ctx, ref)
	if failure != nil {
		if ctx.Err() != nil {
			return
		}
		s.logger.Warn("skipping trial",
			"eudract_number", failure.EudraCTNumber,
			"url", failure.URL,
			"stage", failure.Stage,
			"err", failure.Err,
		)
		result.Skip(*failure)
		return
	}
	s.logger.Info("scraped trial",
		"eudract_number", ref.EudraCTNumber,
		"protocols", len(trial.Protocols),
		"has_results", trial.Result != nil,
	)
	result.Commit(trial)
}

// scrapeTrial collects the records of one trial, or the failure that stopped it.
func (s *Scraper) scrapeTrial(ctx context.Context, ref models.TrialReference) (models.Trial, *models.Failure) {
	fail := func(stage, url string, err error) (models.Trial, *models.Failure) {
		return models.Trial{}, &models.Failure{EudraCTNumber: ref.EudraCTNumber, URL: url, Stage: stage, Err: err.Error()}
	}

	page, err := s.page(ctx, ref.CardURL, ref.EudraCTNumber)
	if err != nil {
		return fail(StageCard, ref.CardURL, err)
	}
	card, err := s.cards.Parse(page)
	if err != nil {
		return fail(StageCard, ref.CardURL, err)
	}

	trial := models.Trial{Card: card}
	for _, ms := range card.MemberStates {
		stage := StageProtocol + ":" + ms.Code
		protocol, err := s.protocol(ctx, ref.EudraCTNumber, ms)
		if errors.Is(err, parser.ErrAbsent) {
			s.logger.Info("no protocol for member state", "eudract_number", ref.EudraCTNumber, "member_state", ms.Code, "url", ms.URL)
			continue
		}
		if err != nil {
			return fail(stage, ms.URL, err)
		}
		trial.Protocols = append(trial.Protocols, protocol)
	}

	resultURL := card.ResultsURL
	if resultURL == "" {
		resultURL = ref.ResultURL
	}
	if resultURL != "" {
		rec, err := s.result(ctx, resultURL, ref.EudraCTNumber)
		switch {
		case errors.Is(err, parser.ErrAbsent):
			s.logger.Debug("no results published", "eudract_number", ref.EudraCTNumber)
		case err != nil:
			return fail(StageResult, resultURL, err)
		default:
			trial.Result = &rec
		}
	}

	if strings.HasSuffix(trial.Card.FullTitle, "...") && len(trial.Protocols) > 0 && trial.Protocols[0].FullTitle != "" {
		trial.Card.FullTitle = trial.Protocols[0].FullTitle
	}
	return trial, nil
}

func (s *Scraper) protocol(ctx context.Context, eudractNumber string, ms models.MemberState) (models.ProtocolRecord, error) {
	page, err := s.page(ctx, ms.URL, eudractNumber)
	if err != nil {
		return models.ProtocolRecord{}, err
	}
	page.MemberState = ms.Code
	return s.protocols.Parse(page)
}

func (s *Scraper) result(ctx context.Context, url, eudractNumber string) (models.ResultRecord, error) {
	page, err := s.page(ctx, url, eudractNumber)
	if err != nil {
		return models.ResultRecord{}, err
	}
	return s.results.Parse(page)
}

// page fetches and parses url. A 404 is reported as an absent section.
func (s *Scraper) page(ctx context.Context, url, eudractNumber string) (parser.Page, error) {
	raw, err := s.Fetcher.Fetch(ctx, url)
	if err != nil {
		var fetchErr *scraper.FetchError
		if errors.As(err, &fetchErr) && fetchErr.LastStatus == http.StatusNotFound {
			return parser.Page{}, fmt.Errorf("%s: %w", err, parser.ErrAbsent)
		}
		return parser.Page{}, err
	}
	return parser.NewPage(raw, eudractNumber)
}

func onFirstPage(err error) bool {
	var fetchErr *listing.ListingFetchError
	if errors.As(err, &fetchErr) {
		return fetchErr.Page == 1
	}
	var parseErr *listing.ListingParseError
	if errors.As(err, &parseErr) {
		return parseErr.Page == 1
	}
	return false
}
