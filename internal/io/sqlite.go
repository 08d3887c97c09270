package io

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/williampepple1/eudract-scraper/pkg/models"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id               TEXT PRIMARY KEY,
	query_start_date TEXT NOT NULL,
	query_end_date   TEXT NOT NULL,
	started_at       TEXT NOT NULL,
	finished_at      TEXT NOT NULL,
	listed           INTEGER NOT NULL,
	skipped          INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cards (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	eudract_number TEXT NOT NULL,
	start_date     TEXT,
	sponsor_name   TEXT,
	full_title     TEXT,
	overall_status TEXT,
	json           TEXT NOT NULL,
	PRIMARY KEY (run_id, eudract_number)
);
CREATE TABLE IF NOT EXISTS protocols (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	protocol_id    TEXT NOT NULL,
	eudract_number TEXT NOT NULL,
	member_state   TEXT NOT NULL,
	url            TEXT,
	json           TEXT NOT NULL,
	PRIMARY KEY (run_id, protocol_id)
);
CREATE TABLE IF NOT EXISTS results (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	eudract_number TEXT NOT NULL,
	version        TEXT,
	url            TEXT,
	json           TEXT NOT NULL,
	PRIMARY KEY (run_id, eudract_number)
);
CREATE TABLE IF NOT EXISTS failures (
	run_id         TEXT NOT NULL REFERENCES runs(id),
	eudract_number TEXT NOT NULL,
	stage          TEXT NOT NULL,
	url            TEXT,
	error          TEXT
);
`

// Store keeps the tables of every run in one SQLite database
type Store struct {
	db *sql.DB
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create store dir: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts the run and its records in one transaction and returns the run id.
func (s *Store) Save(result *models.RunResult) (string, error) {
	runID := uuid.NewString()

	tx, err := s.db.Begin()
	if err != nil {
		return "", err
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.Exec(`INSERT INTO runs (id, query_start_date, query_end_date, started_at, finished_at, listed, skipped) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID,
		result.StartDate.Format(dateLayout),
		result.EndDate.Format(dateLayout),
		result.StartedAt.UTC().Format(time.RFC3339),
		result.FinishedAt.UTC().Format(time.RFC3339),
		result.Listed,
		result.Skipped,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}

	for _, trial := range result.Trials {
		c := trial.Card
		if _, err := tx.Exec(`INSERT INTO cards (run_id, eudract_number, start_date, sponsor_name, full_title, overall_status, json) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			runID, c.EudraCTNumber, c.StartDate, c.SponsorName, c.FullTitle, c.OverallStatus, mustJSON(trial)); err != nil {
			return "", fmt.Errorf("insert card %s: %w", c.EudraCTNumber, err)
		}
		for _, p := range trial.Protocols {
			if _, err := tx.Exec(`INSERT INTO protocols (run_id, protocol_id, eudract_number, member_state, url, json) VALUES (?, ?, ?, ?, ?, ?)`,
				runID, p.ProtocolID, p.EudraCTNumber, p.MemberState, p.URL, mustJSON(p)); err != nil {
				return "", fmt.Errorf("insert protocol %s: %w", p.ProtocolID, err)
			}
		}
		if r := trial.Result; r != nil {
			if _, err := tx.Exec(`INSERT INTO results (run_id, eudract_number, version, url, json) VALUES (?, ?, ?, ?, ?)`,
				runID, r.EudraCTNumber, r.Version, r.URL, mustJSON(r)); err != nil {
				return "", fmt.Errorf("insert results %s: %w", r.EudraCTNumber, err)
			}
		}
	}

	for _, f := range result.Failures {
		if _, err := tx.Exec(`INSERT INTO failures (run_id, eudract_number, stage, url, error) VALUES (?, ?, ?, ?, ?)`,
			runID, f.EudraCTNumber, f.Stage, f.URL, f.Err); err != nil {
			return "", fmt.Errorf("insert failure %s: %w", f.EudraCTNumber, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit run: %w", err)
	}
	return runID, nil
}

// Counts returns the number of card, protocol and result rows stored for a run.
func (s *Store) Counts(runID string) (cards, protocols, results int, err error) {
	for _, q := range []struct {
		table string
		dst   *int
	}{
		{"cards", &cards},
		{"protocols", &protocols},
		{"results", &results},
	} {
		if err := s.db.QueryRow("SELECT COUNT(*) FROM "+q.table+" WHERE run_id = ?", runID).Scan(q.dst); err != nil {
			return 0, 0, 0, fmt.Errorf("count %s: %w", q.table, err)
		}
	}
	return cards, protocols, results, nil
}

// mustJSON encodes records built from plain strings, which cannot fail.
func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
