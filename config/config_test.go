package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"LISTEN_ADDR", "APP_ENV", "DEBUG",
	"DB_DRIVER", "DB_DSN", "STORAGE_CONNECTION_STRING", "TASKS_TABLE",
	"REDIS_URL", "CACHE_TTL", "DEDUPER_TTL",
	"SESSION_SECRET", "SESSION_TTL", "AUTH_JWKS_URL",
	"EVENTS_CHANNEL", "EVENTS_QUEUE", "EVENT_WORKERS", "EVENT_BUFFER", "EVENT_HANDOFF_TIMEOUT",
	"TASKBOARD_URL", "TASKBOARD_SESSION", "TASKBOARD_LAYOUT",
}

// clearEnv blanks every key for the duration of the test.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_DefaultValues(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "development", cfg.AppEnv)
	assert.False(t, cfg.Debug)
	assert.False(t, cfg.IsProduction())
	assert.Equal(t, DriverSQLite, cfg.DBDriver)
	assert.Equal(t, "taskboard.db", cfg.DBDSN)
	assert.Equal(t, time.Minute, cfg.CacheTTL)
	assert.Equal(t, 24*time.Hour, cfg.DeduperTTL)
	assert.Equal(t, 7*24*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "task-events", cfg.EventsChannel)
	assert.Equal(t, 4, cfg.EventWorkers)
	assert.Equal(t, 256, cfg.EventBuffer)
	assert.Equal(t, 15*time.Millisecond, cfg.EventHandoffTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("APP_ENV", "production")
	t.Setenv("DEBUG", "true")
	t.Setenv("DB_DRIVER", "postgres")
	t.Setenv("DB_DSN", "postgres://u:p@localhost/tasks")
	t.Setenv("CACHE_TTL", "30s")
	t.Setenv("EVENT_WORKERS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.True(t, cfg.Debug)
	assert.Equal(t, DriverPostgres, cfg.DBDriver)
	assert.Equal(t, 30*time.Second, cfg.CacheTTL)
	assert.Equal(t, 8, cfg.EventWorkers)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"CACHE_TTL", "soon"},
		{"DEDUPER_TTL", "-1s"},
		{"EVENT_BUFFER", "many"},
		{"DEBUG", "perhaps"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.key)
		})
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{DBDriver: DriverSQLite, DBDSN: ":memory:", SessionSecret: "s", EventWorkers: 1}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.SessionSecret = ""
	assert.ErrorContains(t, c.Validate(), "SESSION_SECRET")

	c = base()
	c.DBDriver = "mysql"
	assert.ErrorContains(t, c.Validate(), "DB_DRIVER")

	c = base()
	c.DBDriver = DriverTables
	assert.ErrorContains(t, c.Validate(), "missing storage config")
	c.StorageConnString = "UseDevelopmentStorage=true"
	c.TasksTable = "Tasks"
	assert.NoError(t, c.Validate())

	c = base()
	c.EventsQueue = "task-events"
	assert.Error(t, c.Validate())
}

func TestLoadClient(t *testing.T) {
	clearEnv(t)
	c := LoadClient()
	assert.Equal(t, "http://localhost:8080", c.BaseURL)
	assert.Empty(t, c.Session)

	t.Setenv("TASKBOARD_URL", "http://board.test")
	t.Setenv("TASKBOARD_SESSION", "tok")
	t.Setenv("TASKBOARD_LAYOUT", "table")
	c = LoadClient()
	assert.Equal(t, "http://board.test", c.BaseURL)
	assert.Equal(t, "tok", c.Session)
	assert.Equal(t, "table", c.Layout)
}
