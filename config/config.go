// Package config loads the service configuration from a YAML file with
// environment variable overrides for secrets. The file holds topology
// (addresses, database names, model identifiers); credentials come from the
// environment only so config files stay safe to commit.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type (
	// Config is the root service configuration.
	Config struct {
		HTTP     HTTP     `yaml:"http"`
		Session  Session  `yaml:"session"`
		Reason   Reason   `yaml:"reason"`
		Catalog  Catalog  `yaml:"catalog"`
		Dispatch Dispatch `yaml:"dispatch"`
		Redis    Redis    `yaml:"redis"`
		WhatsApp WhatsApp `yaml:"whatsapp"`
	}

	// HTTP configures the inbound HTTP listener.
	HTTP struct {
		Addr string `yaml:"addr"`
	}

	// Session selects and configures the session store backend.
	Session struct {
		// Backend is one of "memory", "redis", "mongo".
		Backend string        `yaml:"backend"`
		TTL     time.Duration `yaml:"ttl"`
		Mongo   Mongo         `yaml:"mongo"`
	}

	// Mongo configures the MongoDB session store.
	Mongo struct {
		URI        string `yaml:"uri"`
		Database   string `yaml:"database"`
		Collection string `yaml:"collection"`
	}

	// Reason selects and configures the model provider.
	Reason struct {
		// Provider is one of "openai", "anthropic", "bedrock".
		Provider string        `yaml:"provider"`
		Model    string        `yaml:"model"`
		Timeout  time.Duration `yaml:"timeout"`
		// TokensPerMinute caps the adaptive rate limiter. Zero disables it.
		TokensPerMinute float64 `yaml:"tokens_per_minute"`
		// APIKey is filled from OPENAI_API_KEY or ANTHROPIC_API_KEY, never
		// from the file.
		APIKey string `yaml:"-"`
	}

	// Catalog configures the business catalog database.
	Catalog struct {
		// Driver is "sqlite" or "postgres".
		Driver string `yaml:"driver"`
		DSN    string `yaml:"dsn"`
	}

	// Dispatch configures the background queue.
	Dispatch struct {
		// Mode is "inprocess" or "temporal".
		Mode     string   `yaml:"mode"`
		Workers  int      `yaml:"workers"`
		Buffer   int      `yaml:"buffer"`
		Temporal Temporal `yaml:"temporal"`
	}

	// Temporal configures the durable dispatch backend.
	Temporal struct {
		HostPort  string `yaml:"host_port"`
		Namespace string `yaml:"namespace"`
		TaskQueue string `yaml:"task_queue"`
	}

	// Redis configures the shared Redis connection used by the session cache,
	// the distributed lease, and the transcript archive. Enabled opens the
	// connection even when the session backend does not need it, so the lease
	// and archive are available with memory or mongo sessions.
	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Addr     string `yaml:"addr"`
		DB       int    `yaml:"db"`
		Password string `yaml:"-"`
	}

	// WhatsApp configures the messaging gateway.
	WhatsApp struct {
		PhoneNumberID string `yaml:"phone_number_id"`
		VerifyToken   string `yaml:"verify_token"`
		AccessToken   string `yaml:"-"`
		AppSecret     string `yaml:"-"`
	}
)

// Load reads the YAML file at path, applies defaults and environment
// overrides, and validates the result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		HTTP:    HTTP{Addr: ":8080"},
		Session: Session{Backend: "memory", TTL: 24 * time.Hour},
		Reason:  Reason{Provider: "openai", Timeout: 30 * time.Second},
		Catalog: Catalog{Driver: "sqlite", DSN: "catalog.db"},
		Dispatch: Dispatch{
			Mode:    "inprocess",
			Workers: 4,
			Buffer:  256,
		},
		Redis: Redis{Addr: "localhost:6379"},
	}
}

// applyEnv fills secrets and operator overrides from the environment.
func (c *Config) applyEnv() {
	if v := os.Getenv("SOKOFLOW_HTTP_ADDR"); v != "" {
		c.HTTP.Addr = v
	}
	if v := os.Getenv("SOKOFLOW_REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	c.Redis.Password = os.Getenv("SOKOFLOW_REDIS_PASSWORD")
	if v := os.Getenv("SOKOFLOW_MONGO_URI"); v != "" {
		c.Session.Mongo.URI = v
	}
	switch c.Reason.Provider {
	case "openai":
		c.Reason.APIKey = os.Getenv("OPENAI_API_KEY")
	case "anthropic":
		c.Reason.APIKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	c.WhatsApp.AccessToken = os.Getenv("WHATSAPP_ACCESS_TOKEN")
	c.WhatsApp.AppSecret = os.Getenv("WHATSAPP_APP_SECRET")
}

func (c *Config) validate() error {
	switch c.Session.Backend {
	case "memory", "redis", "mongo":
	default:
		return fmt.Errorf("unknown session backend %q", c.Session.Backend)
	}
	switch c.Reason.Provider {
	case "openai", "anthropic", "bedrock":
	default:
		return fmt.Errorf("unknown reason provider %q", c.Reason.Provider)
	}
	switch c.Dispatch.Mode {
	case "inprocess", "temporal":
	default:
		return fmt.Errorf("unknown dispatch mode %q", c.Dispatch.Mode)
	}
	if c.Session.Backend == "mongo" && c.Session.Mongo.Database == "" {
		return fmt.Errorf("mongo session backend requires a database name")
	}
	if c.Reason.Model == "" {
		return fmt.Errorf("reason model identifier is required")
	}
	return nil
}
