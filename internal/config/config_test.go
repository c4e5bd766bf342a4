package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TELEGRAM_TOKEN", "DATABASE_URL", "REPORT_INTERVAL_HOURS", "DIGEST_TIME",
		"STORE_BACKEND", "MONGO_URI", "MONGO_DATABASE", "FILE_STORE_DIR",
		"DEFAULT_TIMEZONE", "MAX_TASKS", "EPHEMERAL_TTL_SECONDS", "HTTP_ADDR",
		"LOG_LEVEL", "LOG_FORMAT", "PLANNER_CONFIG",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Empty(t, cfg.TelegramToken)
	assert.Equal(t, "task_planner.db", cfg.DatabaseURL)
	assert.Equal(t, 5*time.Hour, cfg.ReportInterval)
	assert.Equal(t, BackendSQLite, cfg.StoreBackend)
	assert.Equal(t, "America/New_York", cfg.DefaultTimezone)
	assert.Equal(t, 50, cfg.MaxTasks)
	assert.Equal(t, time.Minute, cfg.EphemeralTTL)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
}

func TestLoad_Env(t *testing.T) {
	clearEnv(t)
	t.Setenv("TELEGRAM_TOKEN", " abc ")
	t.Setenv("REPORT_INTERVAL_HOURS", "2")
	t.Setenv("STORE_BACKEND", "FILE")
	t.Setenv("MAX_TASKS", "10")
	t.Setenv("DEFAULT_TIMEZONE", "Europe/Berlin")
	t.Setenv("DIGEST_TIME", "08:30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "abc", cfg.TelegramToken)
	assert.Equal(t, 2*time.Hour, cfg.ReportInterval)
	assert.Equal(t, BackendFile, cfg.StoreBackend)
	assert.Equal(t, 10, cfg.MaxTasks)
	assert.Equal(t, "Europe/Berlin", cfg.DefaultTimezone)
	assert.Equal(t, "08:30", cfg.DigestTime)
}

func TestLoad_FileUnderEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "planner.yaml")
	require.NoError(t, os.WriteFile(path, []byte("store_backend: mongo\nmongo_database: planner_test\nmax_tasks: 20\n"), 0o644))
	t.Setenv("PLANNER_CONFIG", path)
	t.Setenv("MAX_TASKS", "30")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendMongo, cfg.StoreBackend)
	assert.Equal(t, "planner_test", cfg.MongoDatabase)
	assert.Equal(t, 30, cfg.MaxTasks)
}

func TestLoad_Invalid(t *testing.T) {
	cases := map[string]string{
		"STORE_BACKEND":         "redis",
		"MAX_TASKS":             "0",
		"DEFAULT_TIMEZONE":      "Mars/Base",
		"DIGEST_TIME":           "8 am",
		"EPHEMERAL_TTL_SECONDS": "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, value)
			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestParseInterval(t *testing.T) {
	assert.Equal(t, time.Duration(0), parseInterval(""))
	assert.Equal(t, time.Duration(0), parseInterval("-3"))
	assert.Equal(t, time.Duration(0), parseInterval("x"))
	assert.Equal(t, 90*time.Minute, parseInterval("1.5"))
}
