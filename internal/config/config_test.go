package config

import (
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad(t *testing.T) {
	t.Setenv("DB_HOST", "test-host")
	t.Setenv("DB_MAX_OPEN_CONNS", "20")
	t.Setenv("MINIO_USE_SSL", "true")
	t.Setenv("DOCS_ROOT", "/srv/docs")
	t.Setenv("OFFLOAD_WORKERS", "3")
	t.Setenv("OFFLOAD_JOB_TIMEOUT_SEC", "30")
	t.Setenv("CACHE_KEY_MODE", "fingerprint")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("APP_HOST", "docs.internal:9000")

	cfg := Load()

	assert.Equal(t, "test-host", cfg.Database.Host)
	assert.Equal(t, 20, cfg.Database.MaxOpenConns)
	assert.True(t, cfg.MinIO.UseSSL)
	assert.False(t, cfg.MinIO.Enabled())
	assert.Equal(t, "/srv/docs", cfg.DocsRoot)
	assert.Equal(t, 3, cfg.Offload.Workers)
	assert.Equal(t, 30*time.Second, cfg.Offload.JobTimeout)
	assert.Equal(t, "fingerprint", cfg.Cache.KeyMode)
	assert.Equal(t, 128, cfg.Cache.RenderCapacity)
	assert.Equal(t, 128, cfg.Cache.ExcerptCapacity)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "docs.internal:9000", cfg.AppHost)
}

func TestGetEnv(t *testing.T) {
	key := "TEST_ENV_VAR"
	os.Setenv(key, "value")
	defer os.Unsetenv(key)

	assert.Equal(t, "value", getEnv(key, "default"))
	assert.Equal(t, "default", getEnv("NON_EXISTENT", "default"))
}

func TestGetEnvBool(t *testing.T) {
	key := "TEST_BOOL_VAR"

	os.Setenv(key, "true")
	assert.True(t, getEnvBool(key, false))

	os.Setenv(key, "false")
	assert.False(t, getEnvBool(key, true))

	os.Setenv(key, "invalid")
	assert.True(t, getEnvBool(key, true))

	os.Unsetenv(key)
	assert.True(t, getEnvBool(key, true))
}

func TestGetEnvInt(t *testing.T) {
	key := "TEST_INT_VAR"

	os.Setenv(key, "123")
	assert.Equal(t, 123, getEnvInt(key, 0))

	os.Setenv(key, "invalid")
	assert.Equal(t, 10, getEnvInt(key, 10))

	os.Unsetenv(key)
	assert.Equal(t, 10, getEnvInt(key, 10))
}

func TestGetEnvLevel(t *testing.T) {
	key := "TEST_LEVEL_VAR"

	t.Setenv(key, "warn")
	assert.Equal(t, slog.LevelWarn, getEnvLevel(key, slog.LevelInfo))

	t.Setenv(key, "loud")
	assert.Equal(t, slog.LevelInfo, getEnvLevel(key, slog.LevelInfo))
}
