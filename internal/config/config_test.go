package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func env(kv map[string]string) func(string) string {
	return func(k string) string { return kv[k] }
}

func TestDefaults(t *testing.T) {
	cfg, err := FromEnv(env(nil))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "history.db", cfg.DBPath)
	assert.Equal(t, time.Hour, cfg.MatchMaxAge)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "immediate", cfg.EncounterMode)
	assert.False(t, cfg.AutoEndTurn)
	assert.Empty(t, cfg.AllowedOrigins)
}

func TestOverrides(t *testing.T) {
	cfg, err := FromEnv(env(map[string]string{
		"PORT":            "9090",
		"DB_PATH":         "/tmp/h.db",
		"MATCH_MAX_AGE":   "30m",
		"SWEEP_INTERVAL":  "10s",
		"LOG_LEVEL":       "DEBUG",
		"LOG_FORMAT":      "console",
		"ENCOUNTER_MODE":  "deferred",
		"AUTO_END_TURN":   "true",
		"ALLOWED_ORIGINS": " example.com , *.example.org,,",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Addr)
	assert.Equal(t, "/tmp/h.db", cfg.DBPath)
	assert.Equal(t, 30*time.Minute, cfg.MatchMaxAge)
	assert.Equal(t, 10*time.Second, cfg.SweepInterval)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, "deferred", cfg.EncounterMode)
	assert.True(t, cfg.AutoEndTurn)
	assert.Equal(t, []string{"example.com", "*.example.org"}, cfg.AllowedOrigins)
}

func TestInvalidValuesAreReportedTogether(t *testing.T) {
	_, err := FromEnv(env(map[string]string{
		"PORT":           "http",
		"MATCH_MAX_AGE":  "-1m",
		"SWEEP_INTERVAL": "soon",
		"LOG_LEVEL":      "loud",
		"LOG_FORMAT":     "xml",
		"ENCOUNTER_MODE": "dice",
		"AUTO_END_TURN":  "maybe",
	}))
	require.Error(t, err)
	for _, key := range []string{"PORT", "MATCH_MAX_AGE", "SWEEP_INTERVAL", "LOG_LEVEL", "LOG_FORMAT", "ENCOUNTER_MODE", "AUTO_END_TURN"} {
		assert.Contains(t, err.Error(), key)
	}
}

func TestLoadReadsEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.env")
	require.NoError(t, os.WriteFile(path, []byte("DB_PATH=from-file.db\nENCOUNTER_MODE=deferred\n"), 0o600))
	t.Setenv("DB_PATH", "")
	os.Unsetenv("DB_PATH")
	t.Setenv("ENCOUNTER_MODE", "immediate")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-file.db", cfg.DBPath)
	assert.Equal(t, "immediate", cfg.EncounterMode, "existing environment wins over the file")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.env"))
	assert.Error(t, err)
}
