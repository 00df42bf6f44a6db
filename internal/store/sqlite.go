package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/empirical-se/expertise-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id             TEXT PRIMARY KEY,
	status         TEXT NOT NULL,
	dump_dir       TEXT NOT NULL,
	top_tags       INTEGER NOT NULL,
	min_reputation INTEGER NOT NULL,
	users          INTEGER NOT NULL DEFAULT 0,
	answers        INTEGER NOT NULL DEFAULT 0,
	malformed      INTEGER NOT NULL DEFAULT 0,
	error          TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	finished_at    TEXT
);

CREATE TABLE IF NOT EXISTS shape_counts (
	run_id TEXT NOT NULL REFERENCES runs(id),
	shape  TEXT NOT NULL,
	users  INTEGER NOT NULL,
	PRIMARY KEY (run_id, shape)
);

CREATE TABLE IF NOT EXISTS coefficients (
	run_id    TEXT NOT NULL REFERENCES runs(id),
	shape     TEXT NOT NULL,
	feature   TEXT NOT NULL,
	value     REAL NOT NULL,
	std_err   REAL NOT NULL,
	p         REAL NOT NULL,
	stars     TEXT NOT NULL,
	converged INTEGER NOT NULL,
	PRIMARY KEY (run_id, shape, feature)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_coefficients_run_id ON coefficients(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, run *model.Run) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, dump_dir, top_tags, min_reputation, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		run.ID, run.Status, run.DumpDir, run.TopTags, run.MinReputation,
		run.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	return eris.Wrap(err, "sqlite: create run")
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *model.Run) error {
	now := time.Now().UTC()
	run.FinishedAt = &now

	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, users = ?, answers = ?, malformed = ?, error = ?, finished_at = ?
		 WHERE id = ?`,
		run.Status, run.Users, run.Answers, run.Malformed, run.Error,
		now.Format(time.RFC3339Nano), run.ID,
	)
	return eris.Wrap(err, "sqlite: finish run")
}

func (s *SQLiteStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, status, dump_dir, top_tags, min_reputation, users, answers, malformed, error, created_at, finished_at
		 FROM runs WHERE id = ?`, id)

	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(err, "sqlite: run %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get run")
	}
	return run, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, dump_dir, top_tags, min_reputation, users, answers, malformed, error, created_at, finished_at
		 FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = ?`
		args = append(args, filter.Status)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []model.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs")
}

func (s *SQLiteStore) SaveShapeCounts(ctx context.Context, runID string, counts map[model.Shape]int) error {
	for _, shape := range model.Shapes {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO shape_counts (run_id, shape, users) VALUES (?, ?, ?)`,
			runID, shape, counts[shape],
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save shape count %s", shape)
		}
	}
	return nil
}

func (s *SQLiteStore) GetShapeCounts(ctx context.Context, runID string) (map[model.Shape]int, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT shape, users FROM shape_counts WHERE run_id = ?`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get shape counts")
	}
	defer rows.Close() //nolint:errcheck

	counts := make(map[model.Shape]int)
	for rows.Next() {
		var shape string
		var users int
		if err := rows.Scan(&shape, &users); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan shape count")
		}
		counts[model.Shape(shape)] = users
	}
	return counts, eris.Wrap(rows.Err(), "sqlite: get shape counts")
}

func (s *SQLiteStore) SaveCoefficients(ctx context.Context, runID string, coefRows []model.CoefficientRow) error {
	for _, r := range coefRows {
		_, err := s.db.ExecContext(ctx,
			`INSERT OR REPLACE INTO coefficients (run_id, shape, feature, value, std_err, p, stars, converged)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			runID, r.Shape, r.Feature, r.Value, r.StdErr, r.P, r.Stars, r.Converged,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: save coefficient %s/%s", r.Shape, r.Feature)
		}
	}
	return nil
}

func (s *SQLiteStore) GetCoefficients(ctx context.Context, runID string) ([]model.CoefficientRow, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT shape, feature, value, std_err, p, stars, converged
		 FROM coefficients WHERE run_id = ? ORDER BY shape, feature`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get coefficients")
	}
	defer rows.Close() //nolint:errcheck

	var out []model.CoefficientRow
	for rows.Next() {
		var r model.CoefficientRow
		var shape string
		if err := rows.Scan(&shape, &r.Feature, &r.Value, &r.StdErr, &r.P, &r.Stars, &r.Converged); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan coefficient")
		}
		r.Shape = model.Shape(shape)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: get coefficients")
}

// scanner covers both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*model.Run, error) {
	var run model.Run
	var status, createdAt string
	var finishedAt sql.NullString

	if err := sc.Scan(&run.ID, &status, &run.DumpDir, &run.TopTags, &run.MinReputation,
		&run.Users, &run.Answers, &run.Malformed, &run.Error, &createdAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)

	created, err := time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: parse created_at")
	}
	run.CreatedAt = created

	if finishedAt.Valid {
		finished, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: parse finished_at")
		}
		run.FinishedAt = &finished
	}

	return &run, nil
}
