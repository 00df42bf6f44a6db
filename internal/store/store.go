// Package store persists analysis run history and fitted coefficients.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/empirical-se/expertise-cli/internal/model"
)

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status model.RunStatus `json:"status,omitempty"`
	Limit  int             `json:"limit,omitempty"`
}

// Store defines the persistence interface for analysis runs.
type Store interface {
	Migrate(ctx context.Context) error

	CreateRun(ctx context.Context, run *model.Run) error
	FinishRun(ctx context.Context, run *model.Run) error
	GetRun(ctx context.Context, id string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	SaveShapeCounts(ctx context.Context, runID string, counts map[model.Shape]int) error
	GetShapeCounts(ctx context.Context, runID string) (map[model.Shape]int, error)

	SaveCoefficients(ctx context.Context, runID string, rows []model.CoefficientRow) error
	GetCoefficients(ctx context.Context, runID string) ([]model.CoefficientRow, error)

	Close() error
}

// Pool is the subset of pgxpool.Pool the postgres store uses; pgxmock
// implements it for tests.
type Pool interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// NewRun builds a Run in the running state with a fresh id.
func NewRun(dumpDir string, topTags, minReputation int) *model.Run {
	return &model.Run{
		ID:            uuid.New().String(),
		Status:        model.RunStatusRunning,
		DumpDir:       dumpDir,
		TopTags:       topTags,
		MinReputation: minReputation,
		CreatedAt:     time.Now().UTC(),
	}
}
