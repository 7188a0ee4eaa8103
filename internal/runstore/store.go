// Package runstore persists run history in SQLite so past batches can be
// inspected after their terminal output is gone.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/sirocco-rt/sirocco-orch/internal/domain"
)

// Store provides SQLite-backed run persistence
type Store struct {
	db *sql.DB
}

// Run is one persisted subprocess invocation
type Run struct {
	ID          string
	Root        string
	Workdir     string
	Kind        domain.RunKind
	ExitCode    int
	Convergence sql.NullFloat64
	StartedAt   time.Time
	FinishedAt  time.Time
}

// New creates a Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// SaveRun inserts one run record
func (s *Store) SaveRun(run Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, root, workdir, kind, exit_code, convergence, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.Root,
		run.Workdir,
		string(run.Kind),
		run.ExitCode,
		run.Convergence,
		run.StartedAt,
		run.FinishedAt,
	)
	return err
}

// SaveBatch records the outcome of one whole batch
func (s *Store) SaveBatch(startedAt, finishedAt time.Time, total, failed int) error {
	_, err := s.db.Exec(`
		INSERT INTO batches (started_at, finished_at, models_total, models_failed)
		VALUES (?, ?, ?, ?)
	`, startedAt, finishedAt, total, failed)
	return err
}

// ListOptions filters run listings
type ListOptions struct {
	Root  string
	Limit int
}

// ListRuns returns runs matching the options, most recent first
func (s *Store) ListRuns(opts ListOptions) ([]Run, error) {
	query := `SELECT id, root, workdir, kind, exit_code, convergence, started_at, finished_at FROM runs WHERE 1=1`
	var args []interface{}

	if opts.Root != "" {
		query += " AND root = ?"
		args = append(args, opts.Root)
	}

	query += " ORDER BY started_at DESC"

	if opts.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var kind string
		if err := rows.Scan(&run.ID, &run.Root, &run.Workdir, &kind, &run.ExitCode,
			&run.Convergence, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		run.Kind = domain.RunKind(kind)
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
