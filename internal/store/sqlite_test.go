package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/empirical-se/expertise-cli/internal/model"
)

func newTestSQLite(t *testing.T) *SQLiteStore {
	t.Helper()
	st, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func TestSQLite_RunLifecycle(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	run := NewRun("/data/dump", 100, 100)
	require.NoError(t, st.CreateRun(ctx, run))

	got, err := st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusRunning, got.Status)
	assert.Equal(t, "/data/dump", got.DumpDir)
	assert.Nil(t, got.FinishedAt)

	run.Status = model.RunStatusComplete
	run.Users = 1234
	run.Answers = 56789
	run.Malformed = 3
	require.NoError(t, st.FinishRun(ctx, run))

	got, err = st.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunStatusComplete, got.Status)
	assert.Equal(t, 1234, got.Users)
	assert.Equal(t, 56789, got.Answers)
	assert.Equal(t, 3, got.Malformed)
	require.NotNil(t, got.FinishedAt)
	assert.False(t, got.FinishedAt.Before(got.CreatedAt))
}

func TestSQLite_GetRun_NotFound(t *testing.T) {
	st := newTestSQLite(t)
	_, err := st.GetRun(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSQLite_ListRuns(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	first := NewRun("/a", 100, 100)
	second := NewRun("/b", 50, 200)
	require.NoError(t, st.CreateRun(ctx, first))
	require.NoError(t, st.CreateRun(ctx, second))

	second.Status = model.RunStatusComplete
	require.NoError(t, st.FinishRun(ctx, second))

	all, err := st.ListRuns(ctx, RunFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	complete, err := st.ListRuns(ctx, RunFilter{Status: model.RunStatusComplete})
	require.NoError(t, err)
	require.Len(t, complete, 1)
	assert.Equal(t, second.ID, complete[0].ID)

	limited, err := st.ListRuns(ctx, RunFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestSQLite_ShapeCounts(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	run := NewRun("/data", 100, 100)
	require.NoError(t, st.CreateRun(ctx, run))

	counts := map[model.Shape]int{
		model.ShapeI:    40,
		model.ShapeT:    10,
		model.ShapeComb: 5,
	}
	require.NoError(t, st.SaveShapeCounts(ctx, run.ID, counts))

	got, err := st.GetShapeCounts(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 40, got[model.ShapeI])
	assert.Equal(t, 10, got[model.ShapeT])
	// Absent shapes persist as zero rows.
	assert.Equal(t, 0, got[model.ShapePi])
}

func TestSQLite_Coefficients(t *testing.T) {
	ctx := context.Background()
	st := newTestSQLite(t)

	run := NewRun("/data", 100, 100)
	require.NoError(t, st.CreateRun(ctx, run))

	rows := []model.CoefficientRow{
		{Shape: model.ShapeI, Feature: "has_code", Value: 0.87, StdErr: 0.05, P: 0.0001, Stars: "***", Converged: true},
		{Shape: model.ShapeI, Feature: "has_ref", Value: 0.31, StdErr: 0.09, P: 0.02, Stars: "*", Converged: true},
		{Shape: model.ShapePi, Feature: "has_code", Value: 0, StdErr: 0, P: 1, Stars: "", Converged: false},
	}
	require.NoError(t, st.SaveCoefficients(ctx, run.ID, rows))

	got, err := st.GetCoefficients(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)

	byKey := make(map[string]model.CoefficientRow)
	for _, r := range got {
		byKey[string(r.Shape)+"/"+r.Feature] = r
	}
	assert.InDelta(t, 0.87, byKey["I/has_code"].Value, 1e-9)
	assert.Equal(t, "***", byKey["I/has_code"].Stars)
	assert.False(t, byKey["Pi/has_code"].Converged)

	// Re-saving overwrites rather than duplicating.
	rows[0].Value = 0.90
	require.NoError(t, st.SaveCoefficients(ctx, run.ID, rows))
	got, err = st.GetCoefficients(ctx, run.ID)
	require.NoError(t, err)
	assert.Len(t, got, 3)
}
