package parser

import (
	"errors"
	"testing"
	"time"

	_ "embed"

	"github.com/stretchr/testify/require"

	"github.com/williampepple1/eudract-scraper/pkg/models"
)

var (
	//go:embed testdata/card.html
	cardPage []byte
	//go:embed testdata/card_sparse.html
	cardSparsePage []byte
	//go:embed testdata/not_a_card.html
	notACardPage []byte
	//go:embed testdata/protocol_de.html
	protocolPage []byte
	//go:embed testdata/result.html
	resultPage []byte
	//go:embed testdata/result_none.html
	resultNonePage []byte
)

const base = "https://www.clinicaltrialsregister.eu/ctr-search/"

func page(t *testing.T, body []byte, url, id string) Page {
	t.Helper()
	p, err := NewPage(&models.RawDocument{URL: url, Body: body, FetchedAt: time.Now()}, id)
	require.NoError(t, err)
	return p
}

func TestCardParser(t *testing.T) {
	p := page(t, cardPage, base+"search?query=2022-000001-11", "2022-000001-11")

	card, err := CardParser{}.Parse(p)
	require.NoError(t, err)

	require.Equal(t, "2022-000001-11", card.EudraCTNumber)
	require.Equal(t, "ACME-AST-301", card.SponsorProtocolNumber)
	require.Equal(t, "2022-12-05", card.StartDate)
	require.Equal(t, "Acme Pharma GmbH", card.SponsorName)
	require.Equal(t, "Severe eosinophilic asthma", card.MedicalCondition)
	require.Equal(t, "Adults, Elderly", card.PopulationAge)
	require.Equal(t, "Male, Female", card.Gender)
	require.Equal(t, models.Disease{
		Version:            "20.0",
		SOCTerm:            "Respiratory, thoracic and mediastinal disorders",
		ClassificationCode: "10003553",
		Term:               "Asthma",
		Level:              "PT",
	}, card.Disease)
	require.Equal(t, card.Disease.SOCTerm, card.TherapeuticArea)
	require.Equal(t, []models.MemberState{
		{Code: "DE", Status: "Completed", URL: "https://www.clinicaltrialsregister.eu/ctr-search/trial/2022-000001-11/DE"},
		{Code: "FR", Status: "Ongoing", URL: "https://www.clinicaltrialsregister.eu/ctr-search/trial/2022-000001-11/FR"},
		{Code: "IT", Status: "Completed", URL: "https://www.clinicaltrialsregister.eu/ctr-search/trial/2022-000001-11/IT"},
	}, card.MemberStates)
	require.Equal(t, "Ongoing", card.OverallStatus)
	require.Equal(t, "https://www.clinicaltrialsregister.eu/ctr-search/trial/2022-000001-11/results", card.ResultsURL)
}

func TestCardParser_MissingFieldsAreEmpty(t *testing.T) {
	p := page(t, cardSparsePage, base+"search?query=2021-004321-09", "2021-004321-09")

	card, err := CardParser{}.Parse(p)
	require.NoError(t, err)
	require.Equal(t, "2021-004321-09", card.EudraCTNumber)
	require.Equal(t, "University Hospital", card.SponsorName)
	require.Empty(t, card.FullTitle)
	require.Empty(t, card.StartDate)
	require.Empty(t, card.Disease)
	require.Empty(t, card.MemberStates)
	require.Empty(t, card.OverallStatus)
	require.Empty(t, card.ResultsURL)
}

func TestCardParser_NotACard(t *testing.T) {
	p := page(t, notACardPage, base+"search?query=2022-000001-11", "2022-000001-11")

	_, err := CardParser{}.Parse(p)
	var cardErr *CardParseError
	require.True(t, errors.As(err, &cardErr))
	require.Equal(t, "2022-000001-11", cardErr.EudraCTNumber)
	require.False(t, errors.Is(err, ErrAbsent))
}

func TestCardParser_OtherTrialsCard(t *testing.T) {
	p := page(t, cardPage, base+"search?query=2022-000009-99", "2022-000009-99")

	_, err := CardParser{}.Parse(p)
	var cardErr *CardParseError
	require.True(t, errors.As(err, &cardErr))
	require.Equal(t, "2022-000009-99", cardErr.EudraCTNumber)
}

func TestProtocolParser(t *testing.T) {
	p := page(t, protocolPage, base+"trial/2022-000001-11/DE", "2022-000001-11")
	p.MemberState = "DE"

	rec, err := ProtocolParser{}.Parse(p)
	require.NoError(t, err)

	require.Equal(t, "2022-000001-11-DE", rec.ProtocolID)
	require.Equal(t, "2022-000001-11", rec.EudraCTNumber)
	require.Equal(t, "DE", rec.MemberState)
	require.Equal(t, "Germany - BfArM", rec.MemberStateConcerned)
	require.Equal(t, "ACME-AST-301", rec.SponsorProtocolCode)
	require.Equal(t, "Acme Pharma GmbH", rec.SponsorName)
	require.Equal(t, "2022-11-28", rec.StartDate)
	require.Equal(t, "ACM-101; Placebo", rec.IMPNames)
	require.Equal(t, "Severe eosinophilic asthma", rec.MedicalCondition)
	require.Equal(t, "Adults (18-64 years); Elderly (>=65 years)", rec.Population)
	require.Equal(t, "Current smokers; pregnancy.", rec.ExclusionCriteria)
	require.Contains(t, rec.InclusionCriteria, "two or more exacerbations")
	require.Equal(t, "Completed", rec.TrialStatus)
	require.Contains(t, rec.FullTitle, "frequent exacerbations")

	require.Equal(t, []string{"ACM-101", "Placebo"}, rec.Sections["D. IMP Identification"]["Product name"])
	require.Equal(t, []string{"2022-11-28"}, rec.Sections["section-summary"]["Date on which this record was first entered in the EudraCT database"])
}

func TestProtocolParser_Absent(t *testing.T) {
	p := page(t, resultNonePage, base+"trial/2022-000001-11/FR", "2022-000001-11")
	p.MemberState = "FR"

	_, err := ProtocolParser{}.Parse(p)
	require.True(t, errors.Is(err, ErrAbsent))
}

func TestResultParser(t *testing.T) {
	p := page(t, resultPage, base+"trial/2022-000001-11/results", "2022-000001-11")

	rec, err := ResultParser{}.Parse(p)
	require.NoError(t, err)
	require.Equal(t, models.ResultRecord{
		EudraCTNumber:          "2022-000001-11",
		URL:                    base + "trial/2022-000001-11/results",
		Version:                "v1(current)",
		PublicationDate:        "2025-01-15",
		CompletionDate:         "2024-05-31",
		GlobalEndOfTrialDate:   "2024-06-30",
		GlobalEndOfTrialStatus: "Yes",
		PrimaryEndpoint:        "Annualised rate of severe exacerbations; Time to first exacerbation",
	}, rec)
}

func TestResultParser_Absent(t *testing.T) {
	p := page(t, resultNonePage, base+"trial/2022-000002-22/results", "2022-000002-22")

	_, err := ResultParser{}.Parse(p)
	require.True(t, errors.Is(err, ErrAbsent))
}

func TestParsersShareOneInterface(t *testing.T) {
	var _ Parser[models.CardRecord] = CardParser{}
	var _ Parser[models.ProtocolRecord] = ProtocolParser{}
	var _ Parser[models.ResultRecord] = ResultParser{}
}

func TestOverallStatus(t *testing.T) {
	require.Equal(t, "", OverallStatus(nil))
	require.Equal(t, "Ongoing", OverallStatus([]models.MemberState{{Status: "Completed"}, {Status: "Ongoing"}}))
	require.Equal(t, "Completed", OverallStatus([]models.MemberState{
		{Status: "Prematurely Ended"}, {Status: "Completed"}, {Status: "Completed"},
	}))
	require.Equal(t, "Prematurely Ended", OverallStatus([]models.MemberState{
		{Status: "Prematurely Ended"}, {Status: ""}, {Status: "Completed"},
	}))
}
