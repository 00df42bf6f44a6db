package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/empirical-se/expertise-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool; tests inject pgxmock here.
func NewPostgresFromPool(pool Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
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
	created_at     TIMESTAMPTZ NOT NULL,
	finished_at    TIMESTAMPTZ
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
	value     DOUBLE PRECISION NOT NULL,
	std_err   DOUBLE PRECISION NOT NULL,
	p         DOUBLE PRECISION NOT NULL,
	stars     TEXT NOT NULL,
	converged BOOLEAN NOT NULL,
	PRIMARY KEY (run_id, shape, feature)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_coefficients_run_id ON coefficients(run_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, run *model.Run) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, status, dump_dir, top_tags, min_reputation, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		run.ID, string(run.Status), run.DumpDir, run.TopTags, run.MinReputation, run.CreatedAt,
	)
	return eris.Wrap(err, "postgres: create run")
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *model.Run) error {
	now := time.Now().UTC()
	run.FinishedAt = &now

	_, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, users = $2, answers = $3, malformed = $4, error = $5, finished_at = $6
		 WHERE id = $7`,
		string(run.Status), run.Users, run.Answers, run.Malformed, run.Error, now, run.ID,
	)
	return eris.Wrap(err, "postgres: finish run")
}

func (s *PostgresStore) GetRun(ctx context.Context, id string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, status, dump_dir, top_tags, min_reputation, users, answers, malformed, error, created_at, finished_at
		 FROM runs WHERE id = $1`, id)

	run, err := scanPostgresRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(err, "postgres: run %s not found", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return run, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, status, dump_dir, top_tags, min_reputation, users, answers, malformed, error, created_at, finished_at
		 FROM runs`
	var args []any
	if filter.Status != "" {
		query += ` WHERE status = $1`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		if len(args) == 0 {
			query += ` LIMIT $1`
		} else {
			query += ` LIMIT $2`
		}
		args = append(args, filter.Limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *run)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs")
}

func (s *PostgresStore) SaveShapeCounts(ctx context.Context, runID string, counts map[model.Shape]int) error {
	for _, shape := range model.Shapes {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO shape_counts (run_id, shape, users) VALUES ($1, $2, $3)
			 ON CONFLICT (run_id, shape) DO UPDATE SET users = EXCLUDED.users`,
			runID, string(shape), counts[shape],
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: save shape count %s", shape)
		}
	}
	return nil
}

func (s *PostgresStore) GetShapeCounts(ctx context.Context, runID string) (map[model.Shape]int, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT shape, users FROM shape_counts WHERE run_id = $1`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get shape counts")
	}
	defer rows.Close()

	counts := make(map[model.Shape]int)
	for rows.Next() {
		var shape string
		var users int
		if err := rows.Scan(&shape, &users); err != nil {
			return nil, eris.Wrap(err, "postgres: scan shape count")
		}
		counts[model.Shape(shape)] = users
	}
	return counts, eris.Wrap(rows.Err(), "postgres: get shape counts")
}

func (s *PostgresStore) SaveCoefficients(ctx context.Context, runID string, coefRows []model.CoefficientRow) error {
	for _, r := range coefRows {
		_, err := s.pool.Exec(ctx,
			`INSERT INTO coefficients (run_id, shape, feature, value, std_err, p, stars, converged)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (run_id, shape, feature) DO UPDATE SET
			   value = EXCLUDED.value, std_err = EXCLUDED.std_err, p = EXCLUDED.p,
			   stars = EXCLUDED.stars, converged = EXCLUDED.converged`,
			runID, string(r.Shape), r.Feature, r.Value, r.StdErr, r.P, r.Stars, r.Converged,
		)
		if err != nil {
			return eris.Wrapf(err, "postgres: save coefficient %s/%s", r.Shape, r.Feature)
		}
	}
	return nil
}

func (s *PostgresStore) GetCoefficients(ctx context.Context, runID string) ([]model.CoefficientRow, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT shape, feature, value, std_err, p, stars, converged
		 FROM coefficients WHERE run_id = $1 ORDER BY shape, feature`, runID)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get coefficients")
	}
	defer rows.Close()

	var out []model.CoefficientRow
	for rows.Next() {
		var r model.CoefficientRow
		var shape string
		if err := rows.Scan(&shape, &r.Feature, &r.Value, &r.StdErr, &r.P, &r.Stars, &r.Converged); err != nil {
			return nil, eris.Wrap(err, "postgres: scan coefficient")
		}
		r.Shape = model.Shape(shape)
		out = append(out, r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: get coefficients")
}

func scanPostgresRun(sc scanner) (*model.Run, error) {
	var run model.Run
	var status string
	var finishedAt *time.Time

	if err := sc.Scan(&run.ID, &status, &run.DumpDir, &run.TopTags, &run.MinReputation,
		&run.Users, &run.Answers, &run.Malformed, &run.Error, &run.CreatedAt, &finishedAt); err != nil {
		return nil, err
	}

	run.Status = model.RunStatus(status)
	run.FinishedAt = finishedAt
	return &run, nil
}
