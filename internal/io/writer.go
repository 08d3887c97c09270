// Package io reads trial id lists and writes run results to disk.
package io

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/williampepple1/eudract-scraper/internal/config"
	"github.com/williampepple1/eudract-scraper/internal/logging"
	"github.com/williampepple1/eudract-scraper/pkg/models"
)

// RunTimeLayout formats the run timestamp in output file names.
const RunTimeLayout = "2006-01-02-15-04-05"

const dateLayout = "2006-01-02"

// Table headers, one column per record field plus the record as JSON
var (
	CardColumns = []string{
		"eudract_number", "sponsor_protocol_number", "start_date", "sponsor_name", "full_title",
		"medical_condition", "therapeutic_area", "version", "soc_term", "classification_code",
		"term", "level", "population_age", "gender", "overall_status", "member_states",
		"results_url", "json",
	}
	ProtocolColumns = []string{
		"protocol_id", "eudract_number", "member_state", "url", "member_state_concerned",
		"full_title", "sponsor_protocol_code", "sponsor_name", "start_date", "medical_condition",
		"population", "inclusion_criteria", "exclusion_criteria", "imp_names", "trial_status",
		"json",
	}
	ResultColumns = []string{
		"eudract_number", "version", "url", "publication_date", "completion_date",
		"global_end_of_trial_date", "global_end_of_trial_status", "primary_endpoint", "json",
	}
)

// Names holds the file names of one run's output
type Names struct {
	Cards     string
	Protocols string
	Results   string
	JSON      string
	Failed    string
}

// FileNames derives the output file names from the run's date range and start time.
func FileNames(result *models.RunResult) Names {
	suffix := fmt.Sprintf("%s_%s_%s",
		result.StartDate.Format(dateLayout), result.EndDate.Format(dateLayout), result.StartedAt.Format(RunTimeLayout))
	return Names{
		Cards:     "trial_info_cards_" + suffix + ".csv",
		Protocols: "trial_protocols_" + suffix + ".csv",
		Results:   "trial_results_" + suffix + ".csv",
		JSON:      suffix + ".json",
		Failed:    "failed_trials_" + suffix + ".txt",
	}
}

// ResultWriter writes run results to the configured outputs
type ResultWriter struct {
	Config *config.OutputConfig
	logger *slog.Logger
}

// NewResultWriter creates a new result writer
func NewResultWriter(config *config.OutputConfig) *ResultWriter {
	return &ResultWriter{
		Config: config,
		logger: logging.New("io"),
	}
}

// Write saves result in every configured format and returns the paths written.
func (w *ResultWriter) Write(result *models.RunResult) ([]string, error) {
	if err := os.MkdirAll(w.Config.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create output directory: %w", err)
	}
	names := FileNames(result)
	var written []string

	if w.Config.Wants(config.FormatCSV) {
		paths, err := w.SaveCSV(result, names)
		written = append(written, paths...)
		if err != nil {
			return written, err
		}
	}

	if w.Config.Wants(config.FormatJSON) {
		path := filepath.Join(w.Config.Dir, names.JSON)
		if err := w.SaveJSON(result, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if w.Config.Wants(config.FormatSQLite) {
		path := w.sqlitePath()
		store, err := OpenStore(path)
		if err != nil {
			return written, err
		}
		_, err = store.Save(result)
		if cerr := store.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return written, err
		}
		written = append(written, path)
	}

	if len(result.Failures) > 0 {
		path := filepath.Join(w.Config.Dir, names.Failed)
		if err := SaveFailedIDs(result.Failures, path); err != nil {
			return written, err
		}
		written = append(written, path)
	}

	for _, p := range written {
		w.logger.Info("wrote output", "path", p)
	}
	return written, nil
}

func (w *ResultWriter) sqlitePath() string {
	if filepath.IsAbs(w.Config.SQLitePath) {
		return w.Config.SQLitePath
	}
	return filepath.Join(w.Config.Dir, w.Config.SQLitePath)
}

// SaveCSV writes the card, protocol and result tables. Headers are written
// even when a table has no rows.
func (w *ResultWriter) SaveCSV(result *models.RunResult, names Names) ([]string, error) {
	cards, protocols, results, err := Rows(result)
	if err != nil {
		return nil, err
	}

	var written []string
	for _, t := range []struct {
		name   string
		header []string
		rows   [][]string
	}{
		{names.Cards, CardColumns, cards},
		{names.Protocols, ProtocolColumns, protocols},
		{names.Results, ResultColumns, results},
	} {
		path := filepath.Join(w.Config.Dir, t.name)
		if err := writeCSV(path, t.header, t.rows); err != nil {
			return written, err
		}
		written = append(written, path)
	}
	return written, nil
}

// Rows flattens a run into the rows of the three tables. The card json column
// holds the whole trial, the others hold their own record.
func Rows(result *models.RunResult) (cards, protocols, results [][]string, err error) {
	cards, protocols, results = [][]string{}, [][]string{}, [][]string{}
	for _, trial := range result.Trials {
		card := trial.Card
		raw, err := json.Marshal(trial)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to encode trial %s: %w", card.EudraCTNumber, err)
		}
		cards = append(cards, []string{
			card.EudraCTNumber,
			card.SponsorProtocolNumber,
			card.StartDate,
			card.SponsorName,
			card.FullTitle,
			card.MedicalCondition,
			card.TherapeuticArea,
			card.Disease.Version,
			card.Disease.SOCTerm,
			card.Disease.ClassificationCode,
			card.Disease.Term,
			card.Disease.Level,
			card.PopulationAge,
			card.Gender,
			card.OverallStatus,
			memberStates(card.MemberStates),
			card.ResultsURL,
			string(raw),
		})

		for _, p := range trial.Protocols {
			raw, err := json.Marshal(p)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("failed to encode protocol %s: %w", p.ProtocolID, err)
			}
			protocols = append(protocols, []string{
				p.ProtocolID,
				p.EudraCTNumber,
				p.MemberState,
				p.URL,
				p.MemberStateConcerned,
				p.FullTitle,
				p.SponsorProtocolCode,
				p.SponsorName,
				p.StartDate,
				p.MedicalCondition,
				p.Population,
				p.InclusionCriteria,
				p.ExclusionCriteria,
				p.IMPNames,
				p.TrialStatus,
				string(raw),
			})
		}

		if r := trial.Result; r != nil {
			raw, err := json.Marshal(r)
			if err != nil {
				return nil, nil, nil, fmt.Errorf("failed to encode results of %s: %w", r.EudraCTNumber, err)
			}
			results = append(results, []string{
				r.EudraCTNumber,
				r.Version,
				r.URL,
				r.PublicationDate,
				r.CompletionDate,
				r.GlobalEndOfTrialDate,
				r.GlobalEndOfTrialStatus,
				r.PrimaryEndpoint,
				string(raw),
			})
		}
	}
	return cards, protocols, results, nil
}

// memberStates renders states as "DE (Completed); FR (Ongoing)".
func memberStates(states []models.MemberState) string {
	parts := make([]string, len(states))
	for i, ms := range states {
		parts[i] = ms.Code
		if ms.Status != "" {
			parts[i] += " (" + ms.Status + ")"
		}
	}
	return strings.Join(parts, "; ")
}

func writeCSV(path string, header []string, rows [][]string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	cw := csv.NewWriter(file)
	if err := cw.Write(header); err != nil {
		return err
	}
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return file.Close()
}

// Output is the JSON document written for a run
type Output struct {
	Metadata  Metadata         `json:"metadata"`
	Errors    []models.Failure `json:"errors"`
	Successes []models.Trial   `json:"successes"`
}

// Metadata describes the query behind a run
type Metadata struct {
	QueryStartDate   string `json:"query_start_date"`
	QueryEndDate     string `json:"query_end_date"`
	RunStartDatetime string `json:"run_start_datetime"`
	Listed           int    `json:"listed"`
	Skipped          int    `json:"skipped"`
}

// NewOutput builds the JSON document of a run.
func NewOutput(result *models.RunResult) Output {
	out := Output{
		Metadata: Metadata{
			QueryStartDate:   result.StartDate.Format(dateLayout),
			QueryEndDate:     result.EndDate.Format(dateLayout),
			RunStartDatetime: result.StartedAt.Format(RunTimeLayout),
			Listed:           result.Listed,
			Skipped:          result.Skipped,
		},
		Errors:    result.Failures,
		Successes: result.Trials,
	}
	if out.Errors == nil {
		out.Errors = []models.Failure{}
	}
	if out.Successes == nil {
		out.Successes = []models.Trial{}
	}
	return out
}

// SaveJSON writes the JSON document of a run to path.
func (w *ResultWriter) SaveJSON(result *models.RunResult, path string) error {
	data, err := json.MarshalIndent(NewOutput(result), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// SaveFailedIDs writes the EudraCT numbers of skipped trials, one per line,
// in a form ReadIDs accepts.
func SaveFailedIDs(failures []models.Failure, path string) error {
	var b strings.Builder
	seen := map[string]bool{}
	for _, f := range failures {
		if seen[f.EudraCTNumber] {
			continue
		}
		seen[f.EudraCTNumber] = true
		fmt.Fprintf(&b, "# %s %s: %s\n", f.Stage, f.URL, strings.ReplaceAll(f.Err, "\n", " "))
		b.WriteString(f.EudraCTNumber + "\n")
	}
	return os.WriteFile(path, []byte(b.String()), 0644)
}
