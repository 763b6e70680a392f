package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyDefaults(t *testing.T) {
	var c AppConfig
	applyDefaults(&c)
	assert.Equal(t, "8080", c.AppPort)
	assert.Equal(t, 72, c.JWTTTLHours)
	assert.Equal(t, "mysql", c.DBDriver)
	assert.Equal(t, 60, c.RateLimitPerMinute)
	assert.Equal(t, []string{"*"}, c.AllowedOrigins)
	assert.Equal(t, int64(100), c.StarterDanzGrant)
	assert.Equal(t, 15, c.LinkTokenTTLMinutes)
	assert.Equal(t, "https://api.neynar.com", c.NeynarBaseURL)

	c = AppConfig{AppPort: "9000", StarterDanzGrant: 5}
	applyDefaults(&c)
	assert.Equal(t, "9000", c.AppPort)
	assert.Equal(t, int64(5), c.StarterDanzGrant)
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("DB_DRIVER", "SQLite")
	t.Setenv("REDIS_HOST", "")
	t.Setenv("NEYNAR_BASE_URL", "http://neynar.local/")
	t.Setenv("ALLOWED_ORIGINS", "https://a.app, ,https://b.app")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "-4")
	t.Setenv("LOG_COMPRESS", "TRUE")

	var c AppConfig
	applyDefaults(&c)
	applyEnvOverrides(&c)
	assert.Equal(t, "sqlite", c.DBDriver)
	assert.Empty(t, c.RedisHost)
	assert.Equal(t, "http://neynar.local", c.NeynarBaseURL)
	assert.Equal(t, []string{"https://a.app", "https://b.app"}, c.AllowedOrigins)
	assert.Equal(t, 60, c.RateLimitPerMinute)
	assert.True(t, c.LogCompress)
}

func TestLoadJSONConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"app": {"AppPort": "7000", "JWTSecret": "s", "AllowedOrigins": ["https://danz.app"]},
		"economy": {"Timezone": "UTC", "StarterDanzGrant": 250},
		"neynar": {"APIKey": "k"}
	}`), 0o600))

	var c AppConfig
	require.NoError(t, loadJSONConfig(path, &c))
	assert.Equal(t, "7000", c.AppPort)
	assert.Equal(t, []string{"https://danz.app"}, c.AllowedOrigins)
	assert.Equal(t, int64(250), c.StarterDanzGrant)
	assert.Equal(t, "k", c.NeynarAPIKey)

	assert.NoError(t, loadJSONConfig(filepath.Join(dir, "missing.json"), &c))
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))
	assert.Error(t, loadJSONConfig(path, &c))
}

func TestLocation(t *testing.T) {
	assert.Equal(t, time.Local, AppConfig{}.Location())
	assert.Equal(t, time.Local, AppConfig{Timezone: "local"}.Location())
	assert.Equal(t, time.Local, AppConfig{Timezone: "Mars/Olympus"}.Location())
	assert.Equal(t, "UTC", AppConfig{Timezone: "UTC"}.Location().String())
}
