package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.Filter.TopNTags)
	assert.Equal(t, 100, cfg.Filter.MinReputation)
	assert.Equal(t, 3, cfg.Shape.ActivityFloor)
	assert.InDelta(t, 0.90, cfg.Shape.SpecialistShare, 1e-9)
	assert.InDelta(t, 0.70, cfg.Shape.DominantShare, 1e-9)
	assert.Equal(t, 5, cfg.Feature.MinCodeLines)
	assert.Equal(t, 150, cfg.Feature.ShortMaxWords)
	assert.Equal(t, 400, cfg.Feature.LongMinWords)
	assert.Equal(t, 100, cfg.Fit.MinObservations)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "Posts.xml", cfg.Dump.PostsFile)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	yaml := `
filter:
  top_n_tags: 50
  min_reputation: 500
shape:
  activity_floor: 1
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0o644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 50, cfg.Filter.TopNTags)
	assert.Equal(t, 500, cfg.Filter.MinReputation)
	assert.Equal(t, 1, cfg.Shape.ActivityFloor)
	assert.Equal(t, "debug", cfg.Log.Level)
	// untouched defaults survive
	assert.InDelta(t, 0.30, cfg.Shape.StrongShare, 1e-9)
}

func TestLoad_Env(t *testing.T) {
	dir := t.TempDir()
	cwd, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(cwd) })

	t.Setenv("EXPERTISE_FILTER_MIN_REPUTATION", "250")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Filter.MinReputation)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{
			Filter:  FilterConfig{TopNTags: 100, MinReputation: 100},
			Shape:   ShapeConfig{SpecialistShare: 0.9, DominantShare: 0.7},
			Feature: FeatureConfig{ShortMaxWords: 150, LongMinWords: 400},
			Store:   StoreConfig{Driver: "sqlite"},
		}
	}

	assert.NoError(t, base().Validate())

	c := base()
	c.Filter.TopNTags = 0
	assert.Error(t, c.Validate())

	c = base()
	c.Shape.SpecialistShare = 0.5
	assert.Error(t, c.Validate())

	c = base()
	c.Feature.LongMinWords = 100
	assert.Error(t, c.Validate())

	c = base()
	c.Store.Driver = "mysql"
	assert.Error(t, c.Validate())
}
