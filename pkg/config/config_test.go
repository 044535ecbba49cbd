package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aegisai/aegis-oss/pkg/logging"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aegis.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":19090", cfg.Server.AdminAddress)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, 10, cfg.Limits.MaxRequests)
	assert.Equal(t, time.Minute, cfg.Limits.Window.Std())
	assert.EqualValues(t, 50_000, cfg.Limits.DailyTokenCap)
	assert.Equal(t, 5, cfg.Limits.BreakerThreshold)
	assert.Equal(t, 30*time.Second, cfg.Limits.BreakerCooldown.Std())
	assert.Equal(t, 4096, cfg.Audit.RingCapacity)
	assert.True(t, cfg.Scope.Enabled)
	assert.Contains(t, cfg.Scope.AllowedTopics, "database")
	assert.Contains(t, cfg.Scope.OffTopicMarkers, "weather")
}

func TestLoadFromFile(t *testing.T) {
	path := writeConfig(t, `
logging:
  level: debug
input:
  min_length: 3
  max_length: 2000
limits:
  window: 30s
  max_requests: 5
  providers: [openai, anthropic]
scope:
  enabled: true
  allowed_topics: [database, sql]
  min_words: 3
vector:
  models:
    - id: custom-embed
      provider: local
      dimensions: 128
      min_value: -1
      max_value: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Input.MinLength)
	assert.Equal(t, 30*time.Second, cfg.Limits.Window.Std())
	assert.Equal(t, 5, cfg.Limits.MaxRequests)
	assert.Equal(t, []string{"openai", "anthropic"}, cfg.Limits.Providers)
	assert.True(t, cfg.Scope.Enabled)
	require.Len(t, cfg.Vector.Models, 1)
	assert.Equal(t, 128, cfg.Vector.Models[0].Dimensions)

	// Unset fields keep their defaults.
	assert.EqualValues(t, 50_000, cfg.Limits.DailyTokenCap)
	assert.Equal(t, 8000, cfg.Output.MaxLength)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("AEGIS_LOG_LEVEL", "warn")
	t.Setenv("AEGIS_RATE_LIMIT", "3")
	t.Setenv("AEGIS_DAILY_TOKEN_CAP", "9000")
	t.Setenv("AEGIS_PROVIDERS", "openai, anthropic")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, 3, cfg.Limits.MaxRequests)
	assert.EqualValues(t, 9000, cfg.Limits.DailyTokenCap)
	assert.Equal(t, []string{"openai", "anthropic"}, cfg.Limits.Providers)
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad log level", "logging:\n  level: verbose\n"},
		{"inverted lengths", "input:\n  min_length: 100\n  max_length: 10\n"},
		{"scope without topics", "scope:\n  enabled: true\n  allowed_topics: []\n  off_topic_markers: []\n"},
		{"per-request above cap", "limits:\n  daily_token_cap: 100\n  max_tokens_per_request: 200\n"},
		{"model without dims", "vector:\n  models:\n    - id: m\n      min_value: -1\n      max_value: 1\n"},
		{"duplicate model", "vector:\n  models:\n    - {id: m, dimensions: 8, min_value: -1, max_value: 1}\n    - {id: m, dimensions: 8, min_value: -1, max_value: 1}\n"},
		{"builtin disabled without extras", "rules:\n  disable_builtin: true\n"},
		{"unregistered rule reference", "rules:\n  use: [no-such-rule]\n"},
		{"extra rule bad category", "rules:\n  extra:\n    - {name: r, pattern: x, category: nonsense}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.content))
			assert.Error(t, err)
		})
	}
}

func TestFileProviderReload(t *testing.T) {
	path := writeConfig(t, "limits:\n  max_requests: 5\n")
	logger := logging.NewLogger(logging.Config{Level: "error"})

	provider, err := NewFileProvider(path, logger)
	require.NoError(t, err)
	defer provider.Close()

	updates := provider.Subscribe()
	first := <-updates
	assert.Equal(t, 5, first.Limits.MaxRequests)

	require.NoError(t, os.WriteFile(path, []byte("limits:\n  max_requests: 7\n"), 0o600))

	select {
	case next := <-updates:
		assert.Equal(t, 7, next.Limits.MaxRequests)
		assert.Equal(t, 7, provider.Current().Limits.MaxRequests)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for config reload")
	}
}

func TestFileProviderKeepsLastGoodOnBadEdit(t *testing.T) {
	path := writeConfig(t, "limits:\n  max_requests: 5\n")
	logger := logging.NewLogger(logging.Config{Level: "error"})

	provider, err := NewFileProvider(path, logger)
	require.NoError(t, err)
	defer provider.Close()

	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: nonsense\n"), 0o600))

	// Give the watcher time to process; the snapshot must not change.
	time.Sleep(500 * time.Millisecond)
	assert.Equal(t, 5, provider.Current().Limits.MaxRequests)
}
