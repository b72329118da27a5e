// Package config loads the concierge configuration: built-in defaults, then
// an optional YAML file, then CONCIERGE_* environment variables. Dotenv files
// are read into the environment first.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/hupe1980/concierge/logging"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "CONCIERGE_"

// Config is the complete runtime configuration.
type Config struct {
	Model    ModelConfig    `yaml:"model" envPrefix:"MODEL_"`
	Session  SessionConfig  `yaml:"session" envPrefix:"SESSION_"`
	Store    StoreConfig    `yaml:"store" envPrefix:"STORE_"`
	Log      LogConfig      `yaml:"log" envPrefix:"LOG_"`
	Metrics  MetricsConfig  `yaml:"metrics" envPrefix:"METRICS_"`
	Building BuildingConfig `yaml:"building" envPrefix:"BUILDING_"`
}

// ModelConfig selects the reasoning engine.
type ModelConfig struct {
	// Provider is one of "mock", "openai" or "anthropic".
	Provider    string  `yaml:"provider" env:"PROVIDER"`
	Name        string  `yaml:"name" env:"NAME"`
	APIKey      string  `yaml:"api_key" env:"API_KEY"`
	BaseURL     string  `yaml:"base_url" env:"BASE_URL"`
	Temperature float64 `yaml:"temperature" env:"TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"MAX_TOKENS"`
}

// SessionConfig tunes the session core.
type SessionConfig struct {
	EntryAgent    string        `yaml:"entry_agent" env:"ENTRY_AGENT"`
	HandoffCap    int           `yaml:"handoff_cap" env:"HANDOFF_CAP"`
	Window        int           `yaml:"window" env:"WINDOW"`
	MaxToolHops   int           `yaml:"max_tool_hops" env:"MAX_TOOL_HOPS"`
	ToolTimeout   time.Duration `yaml:"tool_timeout" env:"TOOL_TIMEOUT"`
	InputBuffer   int           `yaml:"input_buffer" env:"INPUT_BUFFER"`
	TranscriptDir string        `yaml:"transcript_dir" env:"TRANSCRIPT_DIR"`
	Greeting      string        `yaml:"greeting" env:"GREETING"`
}

// StoreConfig selects the building repository.
type StoreConfig struct {
	// Driver is one of "memory", "sqlite" or "redis".
	Driver        string `yaml:"driver" env:"DRIVER"`
	SQLitePath    string `yaml:"sqlite_path" env:"SQLITE_PATH"`
	RedisAddr     string `yaml:"redis_addr" env:"REDIS_ADDR"`
	RedisPassword string `yaml:"redis_password" env:"REDIS_PASSWORD"`
	RedisDB       int    `yaml:"redis_db" env:"REDIS_DB"`
	RedisPrefix   string `yaml:"redis_prefix" env:"REDIS_PREFIX"`
	Seed          bool   `yaml:"seed" env:"SEED"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level     string `yaml:"level" env:"LEVEL"`
	Format    string `yaml:"format" env:"FORMAT"`
	AddSource bool   `yaml:"add_source" env:"ADD_SOURCE"`
}

// MetricsConfig configures the Prometheus exporter.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled" env:"ENABLED"`
	Addr      string `yaml:"addr" env:"ADDR"`
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// BuildingConfig describes the building served by the doorman agents.
type BuildingConfig struct {
	Name         string `yaml:"name" env:"NAME"`
	OwnerContact string `yaml:"owner_contact" env:"OWNER_CONTACT"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Provider:  "mock",
			MaxTokens: 1024,
		},
		Session: SessionConfig{
			EntryAgent:  "main",
			HandoffCap:  5,
			Window:      6,
			MaxToolHops: 5,
			ToolTimeout: 10 * time.Second,
			InputBuffer: 8,
			Greeting:    "Hello, welcome! How can I help you today?",
		},
		Store: StoreConfig{
			Driver:      "memory",
			SQLitePath:  "concierge.db",
			RedisAddr:   "localhost:6379",
			RedisPrefix: "concierge:",
			Seed:        true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Addr:      ":9090",
			Namespace: "concierge",
		},
		Building: BuildingConfig{
			Name:         "the building",
			OwnerContact: "+1000000000",
		},
	}
}

// LoadOptions configures Load.
type LoadOptions struct {
	// DotEnv lists dotenv files read into the environment. Missing files are skipped.
	DotEnv []string
	// Environment replaces the process environment for overrides.
	Environment map[string]string
}

// Load builds the configuration. An empty path or a missing file keeps the
// defaults before environment overrides apply.
func Load(path string, optFns ...func(o *LoadOptions)) (*Config, error) {
	opts := LoadOptions{DotEnv: []string{".env"}}
	for _, fn := range optFns {
		fn(&opts)
	}

	for _, f := range opts.DotEnv {
		if _, err := os.Stat(f); err != nil {
			continue
		}
		if err := godotenv.Load(f); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", f, err)
		}
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("config: decode %s: %w", path, err)
			}
		}
	}

	envOpts := env.Options{Prefix: EnvPrefix}
	if opts.Environment != nil {
		envOpts.Environment = opts.Environment
	}
	if err := env.ParseWithOptions(cfg, envOpts); err != nil {
		return nil, fmt.Errorf("config: environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for unsupported values.
func (c *Config) Validate() error {
	var errs []error
	switch c.Model.Provider {
	case "mock", "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("model.provider: unsupported %q", c.Model.Provider))
	}
	switch c.Store.Driver {
	case "memory", "sqlite", "redis":
	default:
		errs = append(errs, fmt.Errorf("store.driver: unsupported %q", c.Store.Driver))
	}
	if c.Session.EntryAgent == "" {
		errs = append(errs, errors.New("session.entry_agent: must not be empty"))
	}
	if c.Session.HandoffCap <= 0 {
		errs = append(errs, errors.New("session.handoff_cap: must be positive"))
	}
	if c.Session.Window <= 0 {
		errs = append(errs, errors.New("session.window: must be positive"))
	}
	if c.Session.MaxToolHops <= 0 {
		errs = append(errs, errors.New("session.max_tool_hops: must be positive"))
	}
	if c.Session.ToolTimeout <= 0 {
		errs = append(errs, errors.New("session.tool_timeout: must be positive"))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, fmt.Errorf("log.level: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// LoggerConfig converts the log section into a logging configuration.
func (c *Config) LoggerConfig() *logging.LoggerConfig {
	cfg := logging.DefaultLoggerConfig()
	if lvl, err := logging.ParseLevel(c.Log.Level); err == nil {
		cfg.Level = lvl
	}
	cfg.Format = c.Log.Format
	cfg.AddSource = c.Log.AddSource
	return cfg
}
