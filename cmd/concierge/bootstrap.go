package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hupe1980/concierge/config"
	"github.com/hupe1980/concierge/core"
	"github.com/hupe1980/concierge/doorman"
	"github.com/hupe1980/concierge/logging"
	"github.com/hupe1980/concierge/metrics"
	"github.com/hupe1980/concierge/model"
	"github.com/hupe1980/concierge/model/anthropic"
	"github.com/hupe1980/concierge/model/openai"
	"github.com/hupe1980/concierge/store"
	"github.com/hupe1980/concierge/store/memory"
	"github.com/hupe1980/concierge/store/redis"
	"github.com/hupe1980/concierge/store/sqlite"
)

func loadConfig(flags *rootFlags) (*config.Config, error) {
	return config.Load(flags.configPath, func(o *config.LoadOptions) {
		o.DotEnv = flags.envFiles
	})
}

func openStore(ctx context.Context, cfg *config.Config) (store.Repository, error) {
	var (
		repo store.Repository
		err  error
	)
	switch cfg.Store.Driver {
	case "memory", "":
		repo = memory.New()
	case "sqlite":
		repo, err = sqlite.Open(cfg.Store.SQLitePath)
	case "redis":
		repo, err = redis.New(func(o *redis.Options) {
			o.Addr = cfg.Store.RedisAddr
			o.Password = cfg.Store.RedisPassword
			o.DB = cfg.Store.RedisDB
			o.KeyPrefix = cfg.Store.RedisPrefix
		})
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Driver, err)
	}

	if cfg.Store.Seed {
		if err := store.SeedDefaults(ctx, repo); err != nil {
			_ = repo.Close()
			return nil, fmt.Errorf("seed store: %w", err)
		}
	}
	return repo, nil
}

func newModel(cfg *config.Config) (model.Model, error) {
	mc := cfg.Model
	switch mc.Provider {
	case "mock", "":
		m := model.NewMockModel("mock")
		m.Handler = keywordRouter
		return m, nil
	case "openai":
		return openai.NewModel(func(o *openai.Options) {
			if mc.Name != "" {
				o.Model = mc.Name
			}
			if mc.Temperature > 0 {
				o.Temperature = mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxCompletionTokens = int64(mc.MaxTokens)
			}
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
		}), nil
	case "anthropic":
		return anthropic.NewModel(func(o *anthropic.Options) {
			if mc.Name != "" {
				o.Model = anthropicsdk.Model(mc.Name)
			}
			if mc.Temperature > 0 {
				o.Temperature = mc.Temperature
			}
			if mc.MaxTokens > 0 {
				o.MaxTokens = int64(mc.MaxTokens)
			}
			o.APIKey = mc.APIKey
			o.BaseURL = mc.BaseURL
		}), nil
	default:
		return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}
}

var routes = []struct {
	keywords []string
	target   string
}{
	{[]string{"deliver", "package", "parcel"}, doorman.Delivery},
	{[]string{"repair", "broken", "leak", "maintenance"}, doorman.Maintenance},
	{[]string{"rent", "vacan", "apartment"}, doorman.Rental},
	{[]string{"visit", "see "}, doorman.Visitor},
}

// keywordRouter lets the offline mock model route the front desk by keyword.
func keywordRouter(req model.Request) (model.MockStep, bool) {
	if len(req.Messages) == 0 || req.Messages[len(req.Messages)-1].Role != core.RoleUser {
		return model.MockStep{}, false
	}
	tools := make(map[string]bool, len(req.Tools))
	for _, t := range req.Tools {
		tools[t.Function.Name] = true
	}

	input := strings.ToLower(model.LastUserText(req.Messages))
	for _, r := range routes {
		name := "transfer_" + r.target
		if !tools[name] {
			continue
		}
		for _, kw := range r.keywords {
			if strings.Contains(input, kw) {
				return model.MockStep{ToolCalls: []core.ToolCall{model.Call(name, "{}")}}, true
			}
		}
	}
	if tools["end_call"] && (strings.Contains(input, "bye") || strings.Contains(input, "thanks")) {
		return model.MockStep{ToolCalls: []core.ToolCall{model.Call("end_call", "{}")}}, true
	}
	return model.MockStep{}, false
}

// serveMetrics exposes /metrics until ctx ends.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry, logger logging.Logger) (string, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return "", fmt.Errorf("listen metrics: %w", err)
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics.server.failed", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info("metrics.server.started", "addr", ln.Addr().String())
	return ln.Addr().String(), nil
}

func newMetrics(cfg *config.Config) (*prometheus.Registry, metrics.Hook) {
	reg := prometheus.NewRegistry()
	return reg, metrics.NewPrometheusHook(cfg.Metrics.Namespace, reg)
}
