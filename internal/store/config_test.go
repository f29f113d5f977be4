package store

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigMissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, DefaultBaseURL, cfg.BaseURL)
	assert.Equal(t, 5*time.Second, cfg.PollInterval())
	assert.Equal(t, 5.0, cfg.MinHoldingValue())
	assert.Equal(t, "./cookie", cfg.CookiePath)
	assert.Equal(t, DefaultUserAgent, cfg.UserAgent)
	assert.Equal(t, 100, cfg.TradePageSize)
	assert.Equal(t, time.Duration(0), cfg.CostCacheTTL())
	assert.NoError(t, cfg.Validate())
}

func TestParseConfigExpandsCredentials(t *testing.T) {
	t.Setenv("JUBI_PASSWORD", "s3cret")

	cfg, err := ParseConfig([]byte(`
poll_seconds: 10
credentials:
  mobile: "13800000000"
  password: ${JUBI_PASSWORD}
display:
  color: true
retry:
  max_attempts: 2
  initial_wait_ms: 10
  max_wait_ms: 20
`))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.PollInterval())
	assert.Equal(t, "s3cret", cfg.Credentials["password"])
	assert.Equal(t, "13800000000", cfg.Credentials["mobile"])
	assert.True(t, cfg.Display.Color)
	assert.False(t, cfg.Display.HideFooter)
	assert.Equal(t, 2, cfg.Retry.MaxAttempts)
	assert.Equal(t, 10*time.Millisecond, cfg.RetryInitialWait())
	assert.Equal(t, 20*time.Millisecond, cfg.RetryMaxWait())
}

func TestParseConfigValidation(t *testing.T) {
	tests := map[string]string{
		"negative-poll":       "poll_seconds: -1",
		"page-size-too-large": "trade_page_size: 500",
		"backoff-inverted":    "retry: {initial_wait_ms: 100, max_wait_ms: 50}",
		"cache-without-ttl":   "cost_cache: {dir: /tmp/cost}",
		"negative-min-value":  "min_value: -3",
		"negative-retention":  "history: {dir: logs/history, retention_days: -1}",
	}

	for name, doc := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := ParseConfig([]byte(doc))
			assert.Error(t, err)
		})
	}
}

func TestLoadConfigFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("min_value: 20\ncost_cache: {dir: cache, ttl_minutes: 30}\nhistory: {dir: logs/history, retention_days: 14}\n"), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 20.0, cfg.MinHoldingValue())
	assert.Equal(t, 30*time.Minute, cfg.CostCacheTTL())
	assert.Equal(t, "logs/history", cfg.History.Dir)
	assert.Equal(t, 14, cfg.History.RetentionDays)
}

func TestExplicitZeroMinValueIsKept(t *testing.T) {
	cfg, err := ParseConfig([]byte("min_value: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0.0, cfg.MinHoldingValue())

	cfg, err = ParseConfig([]byte("poll_seconds: 3\n"))
	require.NoError(t, err)
	assert.Equal(t, DefaultMinValue, cfg.MinHoldingValue())
}
