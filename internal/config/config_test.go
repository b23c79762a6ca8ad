package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	// Point at a nonexistent directory so only defaults apply.
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "berlin-optimizer", cfg.App.Name)
	assert.Equal(t, "info", cfg.App.LogLevel)
	assert.Equal(t, 50, cfg.Optimizer.PopulationSize)
	assert.Equal(t, 100, cfg.Optimizer.Generations)
	assert.Equal(t, 8, cfg.Optimizer.ElitistSize)
	assert.Equal(t, 20, cfg.Optimizer.EliteCap)
	assert.True(t, cfg.Evaluation.Parallel)
	assert.Equal(t, 3, cfg.Evaluation.SplitGenerations)
	assert.Equal(t, []string{"profit", "loss", "win_rate"}, cfg.Evaluation.Objectives)
	assert.True(t, cfg.Tracker.Enabled)
	assert.Equal(t, 10000, cfg.Tracker.HistoryLimit)
	assert.InDelta(t, 0.05, cfg.Tracker.ConvergenceFraction, 1e-9)
	assert.InDelta(t, 0.15, cfg.Tracker.JumpFraction, 1e-9)
	assert.False(t, cfg.Progress.Enabled)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
optimizer:
  population_size: 24
  generations: 12
  elitist_size: 5
evaluation:
  objectives: ["profit", "trade_balance"]
progress:
  enabled: true
  port: 9999
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 24, cfg.Optimizer.PopulationSize)
	assert.Equal(t, 12, cfg.Optimizer.Generations)
	assert.Equal(t, 5, cfg.Optimizer.ElitistSize)
	assert.Equal(t, []string{"profit", "trade_balance"}, cfg.Evaluation.Objectives)
	assert.True(t, cfg.Progress.Enabled)
	assert.Equal(t, "0.0.0.0:9999", cfg.Progress.GetProgressAddr())
}

func TestLoadRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
optimizer:
  population_size: 1
  swap_probability: 2.0
evaluation:
  objectives: ["sharpe"]
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err := Load(path)
	require.Error(t, err)

	var verrs ValidationErrors
	require.ErrorAs(t, err, &verrs)
	assert.GreaterOrEqual(t, len(verrs), 3)
}

func TestValidateBounds(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	cfg.Tracker.JumpFraction = 1.5
	assert.Error(t, cfg.Validate())

	cfg.Tracker.JumpFraction = 0.15
	cfg.Progress.Enabled = true
	cfg.Progress.Port = 0
	assert.Error(t, cfg.Validate())
}
