package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/hupe1980/concierge/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(o *LoadOptions) {
	o.DotEnv = nil
	o.Environment = map[string]string{}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("", noEnv)
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, "main", cfg.Session.EntryAgent)
	assert.Equal(t, 5, cfg.Session.HandoffCap)
	assert.Equal(t, 6, cfg.Session.Window)
	assert.Equal(t, 10*time.Second, cfg.Session.ToolTimeout)
}

func TestLoadMissingFileKeepsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), noEnv)
	require.NoError(t, err)
	assert.Equal(t, "mock", cfg.Model.Provider)
}

func TestLoadYAMLThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "concierge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
model:
  provider: openai
  name: gpt-4o-mini
session:
  handoff_cap: 3
  tool_timeout: 2s
store:
  driver: sqlite
  sqlite_path: /tmp/building.db
`), 0o600))

	cfg, err := Load(path, func(o *LoadOptions) {
		o.DotEnv = nil
		o.Environment = map[string]string{
			"CONCIERGE_MODEL_PROVIDER":       "anthropic",
			"CONCIERGE_SESSION_WINDOW":       "8",
			"CONCIERGE_BUILDING_NAME":        "Maple Court",
			"CONCIERGE_STORE_REDIS_DB":       "2",
			"CONCIERGE_SESSION_TOOL_TIMEOUT": "3s",
		}
	})
	require.NoError(t, err)
	assert.Equal(t, "anthropic", cfg.Model.Provider)
	assert.Equal(t, "gpt-4o-mini", cfg.Model.Name)
	assert.Equal(t, 3, cfg.Session.HandoffCap)
	assert.Equal(t, 8, cfg.Session.Window)
	assert.Equal(t, 3*time.Second, cfg.Session.ToolTimeout)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "/tmp/building.db", cfg.Store.SQLitePath)
	assert.Equal(t, 2, cfg.Store.RedisDB)
	assert.Equal(t, "Maple Court", cfg.Building.Name)
}

func TestLoadDotEnv(t *testing.T) {
	dotenv := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(dotenv, []byte("CONCIERGE_TEST_DOTENV_KEY=from-dotenv\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("CONCIERGE_TEST_DOTENV_KEY") })

	_, err := Load("", func(o *LoadOptions) {
		o.DotEnv = []string{dotenv, filepath.Join(t.TempDir(), "absent.env")}
		o.Environment = map[string]string{}
	})
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv", os.Getenv("CONCIERGE_TEST_DOTENV_KEY"))
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("model: [unclosed"), 0o600))
	_, err := Load(path, noEnv)
	assert.Error(t, err)

	_, err = Load("", func(o *LoadOptions) {
		o.DotEnv = nil
		o.Environment = map[string]string{"CONCIERGE_STORE_DRIVER": "postgres", "CONCIERGE_SESSION_HANDOFF_CAP": "0"}
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.driver")
	assert.Contains(t, err.Error(), "session.handoff_cap")
}

func TestLoggerConfig(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "debug"
	cfg.Log.Format = "json"
	lc := cfg.LoggerConfig()
	assert.Equal(t, logging.LogLevelDebug, lc.Level)
	assert.Equal(t, "json", lc.Format)
}
