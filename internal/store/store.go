// Package store persists batch reports so that runs can be listed and
// compared later. SQLite is the default backend; PostgreSQL is selected by
// a postgres:// DSN.
package store

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	"github.com/dshills/logcheck/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("store: run not found")

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

type dialect int

const (
	sqlite dialect = iota
	postgres
)

// Store is a handle on the run history database.
type Store struct {
	db      *sql.DB
	dialect dialect
	now     func() time.Time
}

// Run is the summary row of one stored report.
type Run struct {
	ID          string        `json:"run_id"`
	CreatedAt   time.Time     `json:"created_at"`
	Root        string        `json:"root"`
	Status      schema.Status `json:"status"`
	Score       int           `json:"score"`
	Documents   int           `json:"documents"`
	Evaluations int           `json:"evaluations"`
	Hash        string        `json:"hash"`
	schema.Tally
}

// OutcomeRecord is one stored rule outcome with its location in the report.
type OutcomeRecord struct {
	FileSet    string `json:"file_set"`
	Path       string `json:"path"`
	StandardID string `json:"standard_id"`
	schema.Outcome
}

// Open connects to dsn and applies the schema. Accepted forms:
//
//	postgres://... or postgresql://...   PostgreSQL via lib/pq
//	sqlite://path                         SQLite file
//	path                                  SQLite file
func Open(dsn string) (*Store, error) {
	driver, source, d := parseDSN(dsn)
	if source == "" {
		return nil, errors.New("store: empty database path")
	}

	db, err := sql.Open(driver, source)
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: connect: %w", err)
	}

	if d == sqlite {
		// SQLite allows a single writer.
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		if err := applyPragmas(db); err != nil {
			db.Close()
			return nil, err
		}
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &Store{db: db, dialect: d, now: time.Now}, nil
}

func parseDSN(dsn string) (driver, source string, d dialect) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return "postgres", dsn, postgres
	case strings.HasPrefix(dsn, "sqlite://"):
		return "sqlite3", strings.TrimPrefix(dsn, "sqlite://"), sqlite
	}
	return "sqlite3", dsn, sqlite
}

func applyPragmas(db *sql.DB) error {
	for _, p := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("store: %s: %w", p, err)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// rebind rewrites ? placeholders as $1, $2, ... for PostgreSQL.
func (s *Store) rebind(q string) string {
	if s.dialect != postgres {
		return q
	}
	var sb strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			sb.WriteByte('$')
			sb.WriteString(strconv.Itoa(n))
			continue
		}
		sb.WriteRune(c)
	}
	return sb.String()
}

// SaveReport stores the report summary, every rule outcome, and the full
// report JSON in one transaction. The report must carry a run id.
func (s *Store) SaveReport(ctx context.Context, r *schema.Report) error {
	if r == nil || r.RunID == "" {
		return errors.New("store: report has no run id")
	}
	body, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("store: encode report: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	sum := r.Summary
	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO runs (run_id, created_at, root, status, score, documents, evaluations,
			compliant, warning, non_compliant, hash, report)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		r.RunID, s.now().UTC().Format(timeLayout), r.Input.Root, string(sum.Status), sum.Score,
		sum.Documents, sum.Evaluations, sum.Compliant, sum.Warning, sum.NonCompliant, r.Hash, string(body))
	if err != nil {
		return fmt.Errorf("store: insert run %s: %w", r.RunID, err)
	}

	stmt, err := tx.PrepareContext(ctx, s.rebind(`
		INSERT INTO outcomes (run_id, file_set, path, standard_id, std_pos, rule_pos,
			rule_id, kind, status, payload)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`))
	if err != nil {
		return fmt.Errorf("store: prepare: %w", err)
	}
	defer stmt.Close()

	for _, fs := range r.FileSets {
		for _, doc := range fs.Documents {
			for si, sr := range doc.Standards {
				for oi, o := range sr.Outcomes {
					payload, err := json.Marshal(o)
					if err != nil {
						return fmt.Errorf("store: encode outcome: %w", err)
					}
					if _, err := stmt.ExecContext(ctx, r.RunID, fs.ID, doc.Path, sr.StandardID,
						si, oi, o.RuleID, o.Kind, string(o.Status), string(payload)); err != nil {
						return fmt.Errorf("store: insert outcome %s/%s: %w", sr.StandardID, o.RuleID, err)
					}
				}
			}
		}
	}
	return tx.Commit()
}

// ListRuns returns up to limit runs, newest first. limit <= 0 returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT run_id, created_at, root, status, score, documents, evaluations,
		compliant, warning, non_compliant, hash
		FROM runs ORDER BY created_at DESC, run_id`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(q), args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r       Run
			created string
			status  string
		)
		if err := rows.Scan(&r.ID, &created, &r.Root, &status, &r.Score, &r.Documents, &r.Evaluations,
			&r.Compliant, &r.Warning, &r.NonCompliant, &r.Hash); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.Status = schema.Status(status)
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("store: run %s: created_at: %w", r.ID, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Outcomes returns every stored outcome of a run in report order.
func (s *Store) Outcomes(ctx context.Context, runID string) ([]OutcomeRecord, error) {
	if err := s.exists(ctx, runID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT file_set, path, standard_id, payload FROM outcomes
		WHERE run_id = ?
		ORDER BY file_set, path, std_pos, rule_pos`), runID)
	if err != nil {
		return nil, fmt.Errorf("store: outcomes: %w", err)
	}
	defer rows.Close()

	var out []OutcomeRecord
	for rows.Next() {
		var (
			rec     OutcomeRecord
			payload string
		)
		if err := rows.Scan(&rec.FileSet, &rec.Path, &rec.StandardID, &payload); err != nil {
			return nil, fmt.Errorf("store: scan outcome: %w", err)
		}
		if err := json.Unmarshal([]byte(payload), &rec.Outcome); err != nil {
			return nil, fmt.Errorf("store: decode outcome: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Report returns the full stored report of a run.
func (s *Store) Report(ctx context.Context, runID string) (*schema.Report, error) {
	var body string
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT report FROM runs WHERE run_id = ?`), runID).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, fmt.Errorf("store: report: %w", err)
	}
	var r schema.Report
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return nil, fmt.Errorf("store: decode report: %w", err)
	}
	return &r, nil
}

func (s *Store) exists(ctx context.Context, runID string) error {
	var one int
	err := s.db.QueryRowContext(ctx, s.rebind(`SELECT 1 FROM runs WHERE run_id = ?`), runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, runID)
	}
	if err != nil {
		return fmt.Errorf("store: lookup run: %w", err)
	}
	return nil
}
