package store

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirical-se/expertise-cli/internal/model"
)

func newMockStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewPostgresFromPool(mock), mock
}

func TestPostgres_CreateRun(t *testing.T) {
	st, mock := newMockStore(t)
	run := NewRun("/data/dump", 100, 100)

	mock.ExpectExec("INSERT INTO runs").
		WithArgs(run.ID, string(model.RunStatusRunning), "/data/dump", 100, 100, run.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, st.CreateRun(context.Background(), run))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_FinishRun(t *testing.T) {
	st, mock := newMockStore(t)
	run := NewRun("/data/dump", 100, 100)
	run.Status = model.RunStatusComplete
	run.Users = 7
	run.Answers = 9

	mock.ExpectExec("UPDATE runs SET").
		WithArgs(string(model.RunStatusComplete), 7, 9, 0, "", pgxmock.AnyArg(), run.ID).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	require.NoError(t, st.FinishRun(context.Background(), run))
	assert.NotNil(t, run.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetRun(t *testing.T) {
	st, mock := newMockStore(t)
	created := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "status", "dump_dir", "top_tags", "min_reputation",
		"users", "answers", "malformed", "error", "created_at", "finished_at",
	}).AddRow("run-1", "complete", "/data", 100, 100, 5, 10, 0, "", created, (*time.Time)(nil))

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE id").
		WithArgs("run-1").
		WillReturnRows(rows)

	run, err := st.GetRun(context.Background(), "run-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, run.Status)
	assert.Equal(t, 5, run.Users)
	assert.Nil(t, run.FinishedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_ListRuns_StatusFilter(t *testing.T) {
	st, mock := newMockStore(t)
	created := time.Now().UTC()

	rows := pgxmock.NewRows([]string{
		"id", "status", "dump_dir", "top_tags", "min_reputation",
		"users", "answers", "malformed", "error", "created_at", "finished_at",
	}).AddRow("run-1", "failed", "/data", 100, 100, 0, 0, 0, "boom", created, (*time.Time)(nil))

	mock.ExpectQuery("SELECT (.+) FROM runs WHERE status").
		WithArgs("failed").
		WillReturnRows(rows)

	runs, err := st.ListRuns(context.Background(), RunFilter{Status: model.RunStatusFailed})
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "boom", runs[0].Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveShapeCounts(t *testing.T) {
	st, mock := newMockStore(t)

	for _, shape := range model.Shapes {
		mock.ExpectExec("INSERT INTO shape_counts").
			WithArgs("run-1", string(shape), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	counts := map[model.Shape]int{model.ShapeI: 3}
	require.NoError(t, st.SaveShapeCounts(context.Background(), "run-1", counts))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_SaveCoefficients(t *testing.T) {
	st, mock := newMockStore(t)

	rows := []model.CoefficientRow{
		{Shape: model.ShapeI, Feature: "has_code", Value: 0.8, StdErr: 0.1, P: 0.001, Stars: "**", Converged: true},
		{Shape: model.ShapeT, Feature: "has_ref", Value: 0.2, StdErr: 0.2, P: 0.3, Stars: "", Converged: true},
	}
	for _, r := range rows {
		mock.ExpectExec("INSERT INTO coefficients").
			WithArgs("run-1", string(r.Shape), r.Feature, r.Value, r.StdErr, r.P, r.Stars, r.Converged).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}

	require.NoError(t, st.SaveCoefficients(context.Background(), "run-1", rows))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgres_GetCoefficients(t *testing.T) {
	st, mock := newMockStore(t)

	rows := pgxmock.NewRows([]string{"shape", "feature", "value", "std_err", "p", "stars", "converged"}).
		AddRow("I", "has_code", 0.8, 0.1, 0.001, "**", true).
		AddRow("I", "has_ref", 0.3, 0.1, 0.04, "*", true)

	mock.ExpectQuery("SELECT (.+) FROM coefficients").
		WithArgs("run-1").
		WillReturnRows(rows)

	got, err := st.GetCoefficients(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, model.ShapeI, got[0].Shape)
	assert.Equal(t, "has_code", got[0].Feature)
	assert.NoError(t, mock.ExpectationsWereMet())
}
