// Package history records every edition build in a SQLite database so past
// runs can be listed and compared.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Custom errors for history operations
var (
	ErrRunNotFound    = errors.New("run not found")
	ErrInvalidOutcome = errors.New("outcome must be complete, partial, empty, or failed")
)

// Outcomes stored with each run.
const (
	OutcomeComplete = "complete"
	OutcomePartial  = "partial"
	OutcomeEmpty    = "empty"
	OutcomeFailed   = "failed"
)

const dateLayout = "2006-01-02"

// timeLayout has a fixed width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var runColumns = []string{
	"run_id", "edition_date", "layout", "outcome", "fell_back",
	"sections", "articles", "skipped", "duplicates",
	"output_path", "error", "duration_ms", "created_at",
}

// Store keeps the run log.
type Store struct {
	db *sql.DB
}

// Run is one recorded build.
type Run struct {
	RunID       uuid.UUID     `json:"run_id"`
	EditionDate time.Time     `json:"edition_date"`
	Layout      string        `json:"layout"`
	Outcome     string        `json:"outcome"`
	FellBack    bool          `json:"fell_back"`
	Sections    int           `json:"sections"`
	Articles    int           `json:"articles"`
	Skipped     int           `json:"skipped"`
	Duplicates  int           `json:"duplicates"`
	OutputPath  string        `json:"output_path,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Outcome *string
	Since   *time.Time
	Limit   int
}

// Open opens or creates the database at dsn.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases intact and serializes writes
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// initSchema creates the runs table if it doesn't exist.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL UNIQUE,
		edition_date TEXT NOT NULL,
		layout TEXT NOT NULL,
		outcome TEXT NOT NULL,
		fell_back INTEGER NOT NULL DEFAULT 0,
		sections INTEGER NOT NULL DEFAULT 0,
		articles INTEGER NOT NULL DEFAULT 0,
		skipped INTEGER NOT NULL DEFAULT 0,
		duplicates INTEGER NOT NULL DEFAULT 0,
		output_path TEXT,
		error TEXT,
		duration_ms INTEGER NOT NULL DEFAULT 0,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS runs_edition_date ON runs (edition_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record stores run. A missing RunID or CreatedAt is filled in on run.
func (s *Store) Record(run *Run) error {
	if !validOutcome(run.Outcome) {
		return ErrInvalidOutcome
	}
	if run.RunID == uuid.Nil {
		run.RunID = uuid.New()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}

	_, err := sq.Insert("runs").
		Columns(runColumns...).
		Values(
			run.RunID.String(),
			run.EditionDate.Format(dateLayout),
			run.Layout,
			run.Outcome,
			run.FellBack,
			run.Sections,
			run.Articles,
			run.Skipped,
			run.Duplicates,
			nullable(run.OutputPath),
			nullable(run.Error),
			run.Duration.Milliseconds(),
			formatTime(run.CreatedAt),
		).
		RunWith(s.db).
		Exec()
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	return nil
}

// Get retrieves a run by ID.
func (s *Store) Get(runID uuid.UUID) (*Run, error) {
	row := sq.Select(runColumns...).
		From("runs").
		Where(sq.Eq{"run_id": runID.String()}).
		RunWith(s.db).
		QueryRow()

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRunNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	return run, nil
}

// Latest returns the most recent run for an edition date, or nil if the date
// was never built.
func (s *Store) Latest(editionDate time.Time) (*Run, error) {
	row := sq.Select(runColumns...).
		From("runs").
		Where(sq.Eq{"edition_date": editionDate.Format(dateLayout)}).
		OrderBy("created_at DESC", "seq DESC").
		Limit(1).
		RunWith(s.db).
		QueryRow()

	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query latest run: %w", err)
	}

	return run, nil
}

// List returns runs matching filter, newest first.
func (s *Store) List(filter Filter) ([]Run, error) {
	query := sq.Select(runColumns...).From("runs")

	if filter.Outcome != nil {
		query = query.Where(sq.Eq{"outcome": *filter.Outcome})
	}
	if filter.Since != nil {
		query = query.Where(sq.GtOrEq{"created_at": formatTime(*filter.Since)})
	}

	query = query.OrderBy("created_at DESC", "seq DESC")

	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}

	rows, err := query.RunWith(s.db).Query()
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}

	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

// scanRun reads one row selected with runColumns.
func scanRun(row scanner) (*Run, error) {
	var (
		runIDStr, editionDateStr, createdAtStr string
		outputPath, errMsg                     sql.NullString
		durationMS                             int64
		run                                    Run
	)

	err := row.Scan(
		&runIDStr, &editionDateStr, &run.Layout, &run.Outcome, &run.FellBack,
		&run.Sections, &run.Articles, &run.Skipped, &run.Duplicates,
		&outputPath, &errMsg, &durationMS, &createdAtStr,
	)
	if err != nil {
		return nil, err
	}

	run.RunID, err = uuid.Parse(runIDStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse run ID: %w", err)
	}
	run.EditionDate, err = time.ParseInLocation(dateLayout, editionDateStr, time.Local)
	if err != nil {
		return nil, fmt.Errorf("failed to parse edition date: %w", err)
	}
	run.CreatedAt, err = time.Parse(timeLayout, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse created_at: %w", err)
	}
	run.OutputPath = outputPath.String
	run.Error = errMsg.String
	run.Duration = time.Duration(durationMS) * time.Millisecond

	return &run, nil
}

func validOutcome(outcome string) bool {
	switch outcome {
	case OutcomeComplete, OutcomePartial, OutcomeEmpty, OutcomeFailed:
		return true
	}
	return false
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}
