// Package store indexes journaled simulation runs in SQLite so traces from
// many runs can be listed and filtered without decompressing every journal.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/inference-sim/cpsim/sim/trace"

	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by Run for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Store is a SQLite-backed index of runs and their dispatch records.
type Store struct {
	db    *sql.DB
	sleep func(time.Duration) // between contended attempts
}

// Run describes one imported journal.
type Run struct {
	ID         string
	Scenario   string
	Seed       int64
	StartNs    int64
	Version    string
	CreatedAt  string
	ImportedAt time.Time
	Records    int
}

// New opens (or creates) the database at path and initializes the schema.
func New(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(10000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(1)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db, sleep: time.Sleep}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		scenario    TEXT NOT NULL DEFAULT '',
		seed        INTEGER NOT NULL,
		start_ns    INTEGER NOT NULL,
		version     TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		imported_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS records (
		run_id  TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		seq     INTEGER NOT NULL,
		time_ns INTEGER NOT NULL,
		kind    TEXT NOT NULL,
		source  TEXT NOT NULL DEFAULT '',
		target  TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (run_id, seq)
	);

	CREATE INDEX IF NOT EXISTS idx_records_kind ON records(run_id, kind, seq);
	CREATE INDEX IF NOT EXISTS idx_records_target ON records(run_id, target);
	`
	_, err := s.db.Exec(schema)
	return err
}

// ImportJournal stores a run and its records in one transaction. Importing a
// run id that is already present replaces it.
func (s *Store) ImportJournal(header trace.JournalHeader, records []trace.Record) error {
	if header.RunID == "" {
		return errors.New("import: journal header has no run id")
	}
	now := time.Now().UTC().Format(time.RFC3339Nano)
	return s.withRetry(importPolicy, func() error {
		tx, err := s.db.Begin()
		if err != nil {
			return err
		}
		defer tx.Rollback()

		if _, err := tx.Exec(`DELETE FROM runs WHERE id = ?`, header.RunID); err != nil {
			return fmt.Errorf("replace run: %w", err)
		}
		if _, err := tx.Exec(
			`INSERT INTO runs (id, scenario, seed, start_ns, version, created_at, imported_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			header.RunID, header.Scenario, header.Seed, header.StartNs, header.Version, header.CreatedAt, now,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		stmt, err := tx.Prepare(
			`INSERT INTO records (run_id, seq, time_ns, kind, source, target, payload)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, r := range records {
			if _, err := stmt.Exec(header.RunID, r.Seq, r.Time, string(r.Kind), r.Source, r.Target, r.Payload); err != nil {
				return fmt.Errorf("insert record %d: %w", r.Seq, err)
			}
		}
		return tx.Commit()
	})
}

// Runs lists every imported run, most recently imported first.
func (s *Store) Runs() ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT r.id, r.scenario, r.seed, r.start_ns, r.version, r.created_at, r.imported_at,
		        (SELECT COUNT(*) FROM records WHERE run_id = r.id)
		 FROM runs r ORDER BY r.imported_at DESC, r.id`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// Run returns the run with the given id.
func (s *Store) Run(id string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT r.id, r.scenario, r.seed, r.start_ns, r.version, r.created_at, r.imported_at,
		        (SELECT COUNT(*) FROM records WHERE run_id = r.id)
		 FROM runs r WHERE r.id = ?`, id,
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// Records returns the records of a run in dispatch order. An empty kind
// returns every record.
func (s *Store) Records(runID string, kind trace.Kind) ([]trace.Record, error) {
	query := `SELECT seq, time_ns, kind, source, target, payload FROM records WHERE run_id = ?`
	args := []any{runID}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, string(kind))
	}
	query += ` ORDER BY seq`

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]trace.Record, 0)
	for rows.Next() {
		var r trace.Record
		var k string
		if err := rows.Scan(&r.Seq, &r.Time, &k, &r.Source, &r.Target, &r.Payload); err != nil {
			return nil, err
		}
		r.Kind = trace.Kind(k)
		records = append(records, r)
	}
	return records, rows.Err()
}

// DeleteRun removes a run and its records.
func (s *Store) DeleteRun(id string) error {
	return s.withRetry(deletePolicy, func() error {
		res, err := s.db.Exec(`DELETE FROM runs WHERE id = ?`, id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return nil
	})
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*Run, error) {
	var r Run
	var importedStr string
	if err := row.Scan(&r.ID, &r.Scenario, &r.Seed, &r.StartNs, &r.Version, &r.CreatedAt, &importedStr, &r.Records); err != nil {
		return nil, err
	}
	r.ImportedAt, _ = time.Parse(time.RFC3339Nano, importedStr)
	return &r, nil
}
