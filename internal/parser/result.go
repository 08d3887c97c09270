package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/williampepple1/eudract-scraper/internal/extraction"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// ResultContainer wraps the summary results of a trial.
const ResultContainer = "div#resultContent"

var resultFields = extraction.NewExtractor(
	extraction.Match{Field: extraction.ResultRow("eudract_number", "EudraCT number"), Pattern: models.EudraCTPattern},
	extraction.ResultRow("version", "Results version number"),
	extraction.Date{Field: extraction.ResultRow("publication_date", "This version publication date")},
	extraction.Date{Field: extraction.ResultRow("completion_date", "Primary completion date")},
	extraction.Date{Field: extraction.ResultRow("global_end_of_trial_date", "Global end of trial date")},
	extraction.ResultRow("global_end_of_trial_status", "Global end of trial reached?"),
	primaryEndpoints{},
)

// ResultParser extracts the summary results of a trial, when published
type ResultParser struct{}

func (ResultParser) Parse(page Page) (models.ResultRecord, error) {
	container := page.Doc.Find(ResultContainer).First()
	if container.Length() == 0 {
		return models.ResultRecord{}, fmt.Errorf("results for %s: %w", page.EudraCTNumber, ErrAbsent)
	}

	v := resultFields.Extract(container)
	rec := models.ResultRecord{
		EudraCTNumber:          v["eudract_number"],
		URL:                    page.URL,
		Version:                v["version"],
		PublicationDate:        v["publication_date"],
		CompletionDate:         v["completion_date"],
		GlobalEndOfTrialDate:   v["global_end_of_trial_date"],
		GlobalEndOfTrialStatus: v["global_end_of_trial_status"],
		PrimaryEndpoint:        v["primary_endpoint"],
	}
	if rec.EudraCTNumber == "" {
		rec.EudraCTNumber = page.EudraCTNumber
	}
	return rec, nil
}

// primaryEndpoints joins the titles of every end point table typed "Primary".
type primaryEndpoints struct{}

func (primaryEndpoints) Name() string { return "primary_endpoint" }

func (primaryEndpoints) Extract(sel *goquery.Selection) string {
	kind := extraction.ResultRow("type", "End point type")
	title := extraction.ResultRow("title", "End point title")

	var titles []string
	sel.Find("table.endPoint").Each(func(_ int, table *goquery.Selection) {
		if !strings.EqualFold(kind.Extract(table), "primary") {
			return
		}
		if t := title.Extract(table); t != "" {
			titles = append(titles, t)
		}
	})
	return strings.Join(titles, "; ")
}
