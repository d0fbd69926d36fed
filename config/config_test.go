package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "reason:\n  model: gpt-4o\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Session.TTL)
	assert.Equal(t, "openai", cfg.Reason.Provider)
	assert.Equal(t, 30*time.Second, cfg.Reason.Timeout)
	assert.Equal(t, "sqlite", cfg.Catalog.Driver)
	assert.Equal(t, "inprocess", cfg.Dispatch.Mode)
	assert.Equal(t, 4, cfg.Dispatch.Workers)
	assert.False(t, cfg.Redis.Enabled)
}

func TestRedisEnabledIndependentOfSessionBackend(t *testing.T) {
	path := writeConfig(t, `
session:
  backend: memory
redis:
  enabled: true
  addr: redis:6379
reason:
  model: gpt-4o
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Session.Backend)
	assert.True(t, cfg.Redis.Enabled, "the lease and archive must be available without redis sessions")
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
}

func TestLoadFileOverrides(t *testing.T) {
	path := writeConfig(t, `
http:
  addr: ":9090"
session:
  backend: mongo
  mongo:
    uri: mongodb://localhost:27017
    database: sokoflow
reason:
  provider: anthropic
  model: claude-sonnet-4-20250514
  timeout: 45s
  tokens_per_minute: 120000
dispatch:
  mode: temporal
  temporal:
    host_port: temporal:7233
    namespace: commerce
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.HTTP.Addr)
	assert.Equal(t, "mongo", cfg.Session.Backend)
	assert.Equal(t, "sokoflow", cfg.Session.Mongo.Database)
	assert.Equal(t, "anthropic", cfg.Reason.Provider)
	assert.Equal(t, 45*time.Second, cfg.Reason.Timeout)
	assert.Equal(t, float64(120000), cfg.Reason.TokensPerMinute)
	assert.Equal(t, "temporal", cfg.Dispatch.Mode)
	assert.Equal(t, "temporal:7233", cfg.Dispatch.Temporal.HostPort)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("SOKOFLOW_HTTP_ADDR", ":7000")
	t.Setenv("SOKOFLOW_REDIS_ADDR", "redis:6379")
	t.Setenv("SOKOFLOW_REDIS_PASSWORD", "hunter2")
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("WHATSAPP_ACCESS_TOKEN", "wa-token")
	t.Setenv("WHATSAPP_APP_SECRET", "wa-secret")

	path := writeConfig(t, "reason:\n  model: gpt-4o\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, ":7000", cfg.HTTP.Addr)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "hunter2", cfg.Redis.Password)
	assert.Equal(t, "sk-test", cfg.Reason.APIKey)
	assert.Equal(t, "wa-token", cfg.WhatsApp.AccessToken)
	assert.Equal(t, "wa-secret", cfg.WhatsApp.AppSecret)
}

func TestAPIKeyFollowsProvider(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")
	t.Setenv("ANTHROPIC_API_KEY", "sk-anthropic")

	path := writeConfig(t, "reason:\n  provider: anthropic\n  model: claude-sonnet-4-20250514\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "sk-anthropic", cfg.Reason.APIKey)
}

func TestSecretsNeverFromFile(t *testing.T) {
	path := writeConfig(t, `
reason:
  model: gpt-4o
whatsapp:
  access_token: leaked
redis:
  password: leaked
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Empty(t, cfg.WhatsApp.AccessToken)
	assert.Empty(t, cfg.Redis.Password)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"unknown session backend", "session:\n  backend: dynamo\nreason:\n  model: m\n"},
		{"unknown provider", "reason:\n  provider: cohere\n  model: m\n"},
		{"unknown dispatch mode", "dispatch:\n  mode: kafka\nreason:\n  model: m\n"},
		{"mongo without database", "session:\n  backend: mongo\nreason:\n  model: m\n"},
		{"missing model", "reason:\n  provider: openai\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
}
