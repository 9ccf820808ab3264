package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "./data/friend.db", cfg.DBPath)
	assert.Equal(t, "ar", cfg.Locale)
	assert.Equal(t, 5*time.Minute, cfg.DailyCheckInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.FollowUpDelay)
	assert.Equal(t, 60*time.Second, cfg.AIRequestTimeout)
	assert.Equal(t, 20, cfg.RateLimitRequests)
	assert.Equal(t, int64(10<<20), cfg.MaxRequestBodyBytes)
	assert.False(t, cfg.MemoryExtractionEnabled)
	assert.True(t, cfg.WebSearchEnabled)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadAPIKeyFallback(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "legacy")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "legacy", cfg.GeminiAPIKey)
}

func TestLoadRequiresAPIKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("API_KEY", "")

	_, err := Load()
	assert.ErrorContains(t, err, "GEMINI_API_KEY")
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("FOLLOWUP_DELAY", "2s")
	t.Setenv("DAILY_CHECK_INTERVAL", "bogus")
	t.Setenv("MEMORY_EXTRACTION_ENABLED", "yes")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("FRONTEND_URL", "https://friend.example.com")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 2*time.Second, cfg.FollowUpDelay)
	assert.Equal(t, 5*time.Minute, cfg.DailyCheckInterval, "unparseable durations fall back")
	assert.True(t, cfg.MemoryExtractionEnabled)
	assert.False(t, cfg.IsDevelopment())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestValidateRejectsUnknownTimezone(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "key")
	t.Setenv("TIMEZONE", "Mars/Olympus")

	_, err := Load()
	assert.ErrorContains(t, err, "TIMEZONE")
}
