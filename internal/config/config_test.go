package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeSettings(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cfg.ini")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadFromSettingsFile(t *testing.T) {
	path := writeSettings(t, `[Settings]
port = 9000
models = gpt-4, custom-model
retry_timeout = 2.5
retry_max_attempts = 3
retrieval_top_k = 5
endpoint_healthcheck = false
log_level = debug
`)

	cfg := LoadFrom(path)

	assert.Equal(t, "9000", cfg.App.Port)
	assert.Equal(t, []string{"gpt-4", "custom-model"}, cfg.Agent.Models)
	assert.Equal(t, 2500*time.Millisecond, cfg.Agent.RetryTimeout)
	assert.Equal(t, 3, cfg.Agent.RetryMaxAttempts)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.False(t, cfg.Agent.HealthcheckOn)
	assert.Equal(t, "debug", cfg.App.LogLevel)
}

func TestLoadFromMissingFileUsesDefaults(t *testing.T) {
	cfg := LoadFrom(filepath.Join(t.TempDir(), "missing.ini"))

	assert.Equal(t, "8010", cfg.App.Port)
	assert.Equal(t, 5*time.Second, cfg.Agent.RetryTimeout)
	assert.Equal(t, 1, cfg.Agent.RetryMaxAttempts)
	assert.Equal(t, 120*time.Second, cfg.Agent.RequestTimeout)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, 1500, cfg.Retrieval.ChunkSize)
	assert.Equal(t, 200, cfg.Retrieval.ChunkLap)
	assert.True(t, cfg.Agent.HealthcheckOn)
	assert.Equal(t, "memory", cfg.Session.Store)
}

func TestExplicitZeroBeatsDefault(t *testing.T) {
	path := writeSettings(t, `[Settings]
history_limit = 0
retry_max_attempts = 0
`)

	cfg := LoadFrom(path)

	// 0 in the file is a real value, not "unset": it disables the history
	// cap and turns retries off.
	assert.Equal(t, 0, cfg.Session.HistoryLimit)
	assert.Equal(t, 0, cfg.Agent.RetryMaxAttempts)
}

func TestRetryTimeoutFractionalSeconds(t *testing.T) {
	path := writeSettings(t, `[Settings]
retry_timeout = 0.25
`)

	cfg := LoadFrom(path)
	assert.Equal(t, 250*time.Millisecond, cfg.Agent.RetryTimeout)
}
