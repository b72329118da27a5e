package main

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/concierge/config"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/metrics"
	"github.com/hupe1980/concierge/model"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(&bytes.Buffer{})
	cmd.SetArgs(append(args, "--env-file", filepath.Join(t.TempDir(), "missing.env")))
	err := cmd.Execute()
	return out.String(), err
}

func TestNewRootCommand(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "concierge", cmd.Use)
	assert.NotNil(t, cmd.PersistentFlags().Lookup("config"))

	chat, _, err := cmd.Find([]string{"chat"})
	require.NoError(t, err)
	assert.Equal(t, "chat", chat.Use)
	assert.NotNil(t, chat.RunE)
	for _, name := range []string{"message", "session", "debug"} {
		assert.NotNil(t, chat.Flags().Lookup(name), name)
	}

	agents, _, err := cmd.Find([]string{"agents"})
	require.NoError(t, err)
	assert.Equal(t, "agents", agents.Use)
}

func TestAgentsCommand(t *testing.T) {
	out, err := execute(t, "agents")
	require.NoError(t, err)
	assert.Contains(t, out, "ID")
	assert.Contains(t, out, "Front Desk")
	assert.Contains(t, out, "transfer_visitor")
	assert.Contains(t, out, "log_maintenance_request")
}

func TestChatSingleMessage(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("CONCIERGE_STORE_DRIVER", "sqlite")
	t.Setenv("CONCIERGE_STORE_SQLITE_PATH", filepath.Join(dir, "building.db"))
	t.Setenv("CONCIERGE_SESSION_TRANSCRIPT_DIR", dir)

	out, err := execute(t, "chat", "-s", "cli-1", "-m", "I have a package to deliver")
	require.NoError(t, err)
	assert.Contains(t, out, "Front Desk (ash): Transferring to delivery services")
	assert.Contains(t, out, "Deliveries (sage):")
	assert.FileExists(t, filepath.Join(dir, "cli-1.jsonl"))
}

func TestOpenStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	drivers := map[string]func(c *config.Config){
		"memory": func(c *config.Config) { c.Store.Driver = "memory" },
		"sqlite": func(c *config.Config) {
			c.Store.Driver = "sqlite"
			c.Store.SQLitePath = filepath.Join(t.TempDir(), "store.db")
		},
		"redis": func(c *config.Config) {
			c.Store.Driver = "redis"
			c.Store.RedisAddr = mr.Addr()
		},
	}
	for name, fn := range drivers {
		t.Run(name, func(t *testing.T) {
			cfg := config.Default()
			fn(cfg)
			repo, err := openStore(ctx, cfg)
			require.NoError(t, err)
			defer repo.Close()

			r, err := repo.LookupResident(ctx, "John Doe", "A101")
			require.NoError(t, err)
			assert.Equal(t, "+1234567890", r.Phone)
		})
	}

	cfg := config.Default()
	cfg.Store.Driver = "etcd"
	_, err := openStore(ctx, cfg)
	assert.ErrorContains(t, err, "unknown store driver")
}

func TestNewModel(t *testing.T) {
	cases := map[string]struct {
		provider string
		name     string
	}{
		"mock":      {"mock", "mock"},
		"openai":    {"openai", "gpt-4o"},
		"anthropic": {"anthropic", "claude-sonnet-4-0"},
	}
	for label, tc := range cases {
		t.Run(label, func(t *testing.T) {
			cfg := config.Default()
			cfg.Model.Provider = tc.provider
			cfg.Model.Name = tc.name
			cfg.Model.APIKey = "test"
			m, err := newModel(cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.provider, m.Info().Provider)
			assert.Equal(t, tc.name, m.Info().Name)
		})
	}

	cfg := config.Default()
	cfg.Model.Provider = "llama"
	_, err := newModel(cfg)
	assert.Error(t, err)
}

func TestKeywordRouter(t *testing.T) {
	frontDesk := []model.ToolDefinition{
		{Type: "function", Function: model.FunctionDefinition{Name: "transfer_delivery"}},
		{Type: "function", Function: model.FunctionDefinition{Name: "transfer_visitor"}},
		{Type: "function", Function: model.FunctionDefinition{Name: "end_call"}},
	}
	req := func(text string, tools []model.ToolDefinition) model.Request {
		return model.Request{Messages: []core.Message{core.NewUserMessage(text)}, Tools: tools}
	}

	step, ok := keywordRouter(req("I'm here to visit Jane", frontDesk))
	require.True(t, ok)
	assert.Equal(t, "transfer_visitor", step.ToolCalls[0].Name)

	step, ok = keywordRouter(req("Package for B202", frontDesk))
	require.True(t, ok)
	assert.Equal(t, "transfer_delivery", step.ToolCalls[0].Name)

	step, ok = keywordRouter(req("ok bye", frontDesk))
	require.True(t, ok)
	assert.Equal(t, "end_call", step.ToolCalls[0].Name)

	_, ok = keywordRouter(req("I'm here to visit Jane", nil))
	assert.False(t, ok)

	_, ok = keywordRouter(model.Request{Messages: []core.Message{core.NewSystemMessage("visit")}, Tools: frontDesk})
	assert.False(t, ok)
}

func TestServeMetrics(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := config.Default()
	reg, hook := newMetrics(cfg)
	hook.ObserveExchange(metrics.Exchange{Agent: "main", Duration: time.Millisecond})

	addr, err := serveMetrics(ctx, "127.0.0.1:0", reg, logging.NoOpLogger{})
	require.NoError(t, err)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `concierge_turns_total{agent="main"} 1`)
}
