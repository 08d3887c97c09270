package models

import (
	"regexp"
	"time"
)

// EudraCTPattern matches a register identifier such as 2022-000123-45.
var EudraCTPattern = regexp.MustCompile(`\b\d{4}-\d{6}-\d{2}\b`)

// TrialReference identifies one trial found on a search listing page
type TrialReference struct {
	EudraCTNumber string `json:"eudract_number"`
	CardURL       string `json:"card_url"`
	ResultURL     string `json:"result_url"`
}

// RawDocument is a fetched page plus retrieval metadata
type RawDocument struct {
	URL        string        `json:"url"`
	Body       []byte        `json:"-"`
	StatusCode int           `json:"status_code,omitempty"`
	Attempts   int           `json:"attempts"`
	FetchedAt  time.Time     `json:"fetched_at"`
	Duration   time.Duration `json:"duration"`
	JSRendered bool          `json:"js_rendered,omitempty"`
	ProxyUsed  string        `json:"proxy_used,omitempty"`
}

// MemberState is one participating country listed on a trial card
type MemberState struct {
	Code   string `json:"code"`
	Status string `json:"status"`
	URL    string `json:"url"`
}

// Disease is the MedDRA classification shown on a trial card
type Disease struct {
	Version            string `json:"version"`
	SOCTerm            string `json:"soc_term"`
	ClassificationCode string `json:"classification_code"`
	Term               string `json:"term"`
	Level              string `json:"level"`
}

// CardRecord holds the headline metadata of a trial
type CardRecord struct {
	EudraCTNumber         string        `json:"eudract_number"`
	SponsorProtocolNumber string        `json:"sponsor_protocol_number"`
	StartDate             string        `json:"start_date"`
	SponsorName           string        `json:"sponsor_name"`
	FullTitle             string        `json:"full_title"`
	MedicalCondition      string        `json:"medical_condition"`
	TherapeuticArea       string        `json:"therapeutic_area"`
	Disease               Disease       `json:"disease"`
	PopulationAge         string        `json:"population_age"`
	Gender                string        `json:"gender"`
	OverallStatus         string        `json:"overall_status"`
	MemberStates          []MemberState `json:"member_states"`
	ResultsURL            string        `json:"results_url,omitempty"`
}

// ProtocolRecord holds the protocol of one trial in one member state
type ProtocolRecord struct {
	ProtocolID           string `json:"protocol_id"`
	EudraCTNumber        string `json:"eudract_number"`
	MemberState          string `json:"member_state"`
	URL                  string `json:"url"`
	MemberStateConcerned string `json:"member_state_concerned"`
	FullTitle            string `json:"full_title"`
	SponsorProtocolCode  string `json:"sponsor_protocol_code"`
	SponsorName          string `json:"sponsor_name"`
	StartDate            string `json:"start_date"`
	MedicalCondition     string `json:"medical_condition"`
	Population           string `json:"population"`
	InclusionCriteria    string `json:"inclusion_criteria"`
	ExclusionCriteria    string `json:"exclusion_criteria"`
	IMPNames             string `json:"imp_names"`
	TrialStatus          string `json:"trial_status"`
	// Sections maps section heading -> field label -> values. Only the value
	// slices keep page order.
	Sections map[string]map[string][]string `json:"sections,omitempty"`
}

// ResultRecord holds the published summary results of a trial
type ResultRecord struct {
	EudraCTNumber          string `json:"eudract_number"`
	URL                    string `json:"url"`
	Version                string `json:"version"`
	PublicationDate        string `json:"publication_date"`
	CompletionDate         string `json:"completion_date"`
	GlobalEndOfTrialDate   string `json:"global_end_of_trial_date"`
	GlobalEndOfTrialStatus string `json:"global_end_of_trial_status"`
	PrimaryEndpoint        string `json:"primary_endpoint"`
}

// Failure describes a trial that was skipped
type Failure struct {
	EudraCTNumber string `json:"eudract_number"`
	URL           string `json:"url"`
	Stage         string `json:"stage"`
	Err           string `json:"error"`
}

// Trial bundles every record extracted for one trial
type Trial struct {
	Card      CardRecord       `json:"card"`
	Protocols []ProtocolRecord `json:"protocols"`
	Result    *ResultRecord    `json:"result,omitempty"`
}

// RunResult accumulates the output of one run
type RunResult struct {
	StartDate  time.Time
	EndDate    time.Time
	StartedAt  time.Time
	FinishedAt time.Time
	Listed     int
	Cards      []CardRecord
	Protocols  []ProtocolRecord
	Results    []ResultRecord
	Trials     []Trial
	Failures   []Failure
	Skipped    int
}

// Commit appends every record of a successfully processed trial.
func (r *RunResult) Commit(t Trial) {
	r.Cards = append(r.Cards, t.Card)
	r.Protocols = append(r.Protocols, t.Protocols...)
	if t.Result != nil {
		r.Results = append(r.Results, *t.Result)
	}
	r.Trials = append(r.Trials, t)
}

// Skip records a trial that contributed nothing to the output.
func (r *RunResult) Skip(f Failure) {
	r.Failures = append(r.Failures, f)
	r.Skipped++
}

// Processed is the number of trials committed.
func (r *RunResult) Processed() int {
	return len(r.Cards)
}
