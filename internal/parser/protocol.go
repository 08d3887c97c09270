package parser

import (
	"fmt"

	"github.com/PuerkitoBio/goquery"

	"github.com/williampepple1/eudract-scraper/internal/extraction"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// ProtocolContainer is the protocol information table of a member state page.
const ProtocolContainer = "table#section-a"

var protocolFields = extraction.NewExtractor(
	extraction.Code("member_state_concerned", "A.1"),
	extraction.Match{Field: extraction.Code("eudract_number", "A.2"), Pattern: models.EudraCTPattern},
	extraction.Code("full_title", "A.3"),
	extraction.Code("sponsor_protocol_code", "A.4.1"),
	extraction.Code("sponsor_name", "B.1.1"),
	extraction.Date{Field: extraction.Described("start_date", "Date on which this record was first entered in the EudraCT database")},
	extraction.CodeAll("imp_names", "D.3.1"),
	extraction.Code("medical_condition", "E.1.1"),
	extraction.Code("inclusion_criteria", "E.3"),
	extraction.Code("exclusion_criteria", "E.4"),
	extraction.Flags{Key: "population", CodePrefix: "F.1."},
	extraction.Code("trial_status", "P."),
)

// ProtocolParser extracts the protocol of the member state named by Page.MemberState
type ProtocolParser struct{}

func (ProtocolParser) Parse(page Page) (models.ProtocolRecord, error) {
	if page.Doc.Find(ProtocolContainer).Length() == 0 {
		return models.ProtocolRecord{}, fmt.Errorf("protocol for %s in %s: %w", page.EudraCTNumber, page.MemberState, ErrAbsent)
	}

	body := page.Doc.Selection
	v := protocolFields.Extract(body)
	rec := models.ProtocolRecord{
		EudraCTNumber:        v["eudract_number"],
		MemberState:          page.MemberState,
		URL:                  page.URL,
		MemberStateConcerned: v["member_state_concerned"],
		FullTitle:            v["full_title"],
		SponsorProtocolCode:  v["sponsor_protocol_code"],
		SponsorName:          v["sponsor_name"],
		StartDate:            v["start_date"],
		MedicalCondition:     v["medical_condition"],
		Population:           v["population"],
		InclusionCriteria:    v["inclusion_criteria"],
		ExclusionCriteria:    v["exclusion_criteria"],
		IMPNames:             v["imp_names"],
		TrialStatus:          v["trial_status"],
		Sections:             sections(body),
	}
	if rec.EudraCTNumber == "" {
		rec.EudraCTNumber = page.EudraCTNumber
	}
	rec.ProtocolID = rec.EudraCTNumber + "-" + page.MemberState

	return rec, nil
}

// sections collects every described row of the protocol tables, grouped by
// the heading row (td.cellBlue) that precedes it.
func sections(body *goquery.Selection) map[string]map[string][]string {
	out := map[string]map[string][]string{}
	body.Find("table.summary").Each(func(_ int, table *goquery.Selection) {
		heading := table.AttrOr("id", "")
		table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
			if h := extraction.Clean(tr.ChildrenFiltered("td.cellBlue").Text()); h != "" {
				heading = h
				return
			}
			label := extraction.Clean(tr.ChildrenFiltered("td.second").First().Text())
			value := extraction.Clean(tr.ChildrenFiltered("td.third").First().Text())
			if label == "" || value == "" {
				return
			}
			if out[heading] == nil {
				out[heading] = map[string][]string{}
			}
			out[heading][label] = append(out[heading][label], value)
		})
	})
	return out
}
