package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "results", cfg.ResultsDir)
	assert.Equal(t, 0, cfg.Concurrency)
	assert.Equal(t, 300, cfg.TrialTimeoutSec)
	assert.Equal(t, 100000, cfg.MaxCombinations)
	assert.Equal(t, "1d", cfg.CandlePeriod)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadConfig_EnvOverride(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("RESULTS_DIR", "/tmp/opt-results")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, "/tmp/opt-results", cfg.ResultsDir)
	assert.Equal(t, "debug", cfg.LogLevel)
}
