package parser

import (
	"path"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/williampepple1/eudract-scraper/internal/extraction"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// CardContainer encloses one trial card on a search page.
const CardContainer = "table.result"

var cardFields = extraction.NewExtractor(
	extraction.Match{Field: extraction.Labeled{Key: "eudract_number", Label: "EudraCT Number"}, Pattern: models.EudraCTPattern},
	extraction.Labeled{Key: "sponsor_protocol_number", Label: "Sponsor Protocol Number"},
	extraction.Date{Field: extraction.Labeled{Key: "start_date", Label: "Start Date"}},
	extraction.Labeled{Key: "sponsor_name", Label: "Sponsor Name"},
	extraction.Labeled{Key: "full_title", Label: "Full Title"},
	extraction.Labeled{Key: "medical_condition", Label: "Medical condition"},
	extraction.NestedTable{Key: "disease_version", Label: "Disease", Column: "Version"},
	extraction.NestedTable{Key: "soc_term", Label: "Disease", Column: "SOC Term"},
	extraction.NestedTable{Key: "classification_code", Label: "Disease", Column: "Classification Code"},
	extraction.NestedTable{Key: "term", Label: "Disease", Column: "Term"},
	extraction.NestedTable{Key: "level", Label: "Disease", Column: "Level"},
	extraction.Labeled{Key: "population_age", Label: "Population Age"},
	extraction.Labeled{Key: "gender", Label: "Gender"},
)

var statusPattern = regexp.MustCompile(`\(([^)]*)\)`)

// CardParser extracts the headline metadata of a trial
type CardParser struct{}

func (CardParser) Parse(page Page) (models.CardRecord, error) {
	container := selectCard(page.Doc, page.EudraCTNumber)
	if container == nil {
		return models.CardRecord{}, &CardParseError{URL: page.URL, EudraCTNumber: page.EudraCTNumber}
	}

	v := cardFields.Extract(container)
	card := models.CardRecord{
		EudraCTNumber:         v["eudract_number"],
		SponsorProtocolNumber: v["sponsor_protocol_number"],
		StartDate:             v["start_date"],
		SponsorName:           v["sponsor_name"],
		FullTitle:             v["full_title"],
		MedicalCondition:      v["medical_condition"],
		Disease: models.Disease{
			Version:            v["disease_version"],
			SOCTerm:            v["soc_term"],
			ClassificationCode: v["classification_code"],
			Term:               v["term"],
			Level:              v["level"],
		},
		PopulationAge: v["population_age"],
		Gender:        v["gender"],
	}
	if card.EudraCTNumber == "" {
		card.EudraCTNumber = page.EudraCTNumber
	}
	card.TherapeuticArea = card.Disease.SOCTerm
	card.MemberStates = memberStates(container, page.URL)
	card.OverallStatus = OverallStatus(card.MemberStates)
	card.ResultsURL = resultsLink(container, page.URL)

	return card, nil
}

// selectCard picks the card for eudractNumber. The first card is used only
// when no number is given; a page listing other trials yields nil.
func selectCard(doc *goquery.Document, eudractNumber string) *goquery.Selection {
	cards := doc.Find(CardContainer)
	if cards.Length() == 0 {
		return nil
	}
	if eudractNumber == "" {
		return cards.First()
	}
	id := extraction.Labeled{Key: "eudract_number", Label: "EudraCT Number"}
	for i := range cards.Length() {
		card := cards.Eq(i)
		if models.EudraCTPattern.FindString(id.Extract(card)) == eudractNumber {
			return card
		}
	}
	return nil
}

func memberStates(card *goquery.Selection, base string) []models.MemberState {
	cell := extraction.LabeledCell(card, "Trial protocol")
	if cell == nil {
		return nil
	}

	var states []models.MemberState
	seen := map[string]bool{}
	for _, a := range extraction.Anchors(cell) {
		if !strings.Contains(a.Href, "/trial/") {
			continue
		}
		code := strings.ToUpper(path.Base(strings.TrimRight(a.Href, "/")))
		if code == "" || seen[code] {
			continue
		}
		seen[code] = true

		status := ""
		if m := statusPattern.FindStringSubmatch(a.Trailing); len(m) > 1 {
			status = extraction.Clean(m[1])
		}
		states = append(states, models.MemberState{
			Code:   code,
			Status: status,
			URL:    resolve(base, a.Href),
		})
	}
	return states
}

func resultsLink(card *goquery.Selection, base string) string {
	cell := extraction.LabeledCell(card, "Trial results")
	if cell == nil {
		return ""
	}
	for _, a := range extraction.Anchors(cell) {
		if strings.Contains(a.Href, "/results") {
			return resolve(base, a.Href)
		}
	}
	return ""
}

// OverallStatus summarises per-state statuses: Ongoing when any state is
// ongoing, otherwise the most common status (earliest wins a tie).
func OverallStatus(states []models.MemberState) string {
	counts := map[string]int{}
	var order []string
	for _, ms := range states {
		if ms.Status == "" {
			continue
		}
		if strings.EqualFold(ms.Status, "Ongoing") {
			return "Ongoing"
		}
		if counts[ms.Status] == 0 {
			order = append(order, ms.Status)
		}
		counts[ms.Status]++
	}

	best := ""
	for _, s := range order {
		if counts[s] > counts[best] {
			best = s
		}
	}
	return best
}
