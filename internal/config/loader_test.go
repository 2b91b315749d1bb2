package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/argproxy/pkg/constants"
	"github.com/turtacn/argproxy/pkg/errors"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("ARGPROXY_DISCORD_TOKEN", "bot-token-from-env")
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "bot-token-from-env", cfg.Discord.Token)
	assert.Equal(t, constants.DefaultRefreshURL, cfg.Discord.RefreshURL)
	assert.Equal(t, constants.DefaultUserAgent, cfg.Discord.UserAgent)
	assert.Equal(t, "Bot", cfg.Discord.AuthScheme)
	assert.Equal(t, 10*time.Second, cfg.Discord.Timeout)
	assert.Equal(t, constants.CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, "argproxy:link:", cfg.Cache.KeyPrefix)
	assert.Equal(t, time.Duration(0), cfg.Cache.RecordTTL)
	assert.Equal(t, 30*time.Minute, cfg.Resolver.ExpiryMargin)
	assert.True(t, cfg.Resolver.CoalesceRefreshes)
	assert.Equal(t, []string{"localhost:6379"}, cfg.Redis.Addresses)
	assert.False(t, cfg.Kafka.Enabled)
}

func TestLoadConfig_FileAndEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
discord:
  token: file-token
  user_agent: "DiscordBot (example; v1)"
cache:
  backend: postgres
  record_ttl: 72h
postgres:
  dsn: postgres://argproxy@localhost/argproxy
resolver:
  expiry_margin: 10m
  coalesce_refreshes: false
`)
	t.Setenv("ARGPROXY_RESOLVER_EXPIRY_MARGIN", "45m")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "file-token", cfg.Discord.Token)
	assert.Equal(t, "DiscordBot (example; v1)", cfg.Discord.UserAgent)
	assert.Equal(t, constants.CacheBackendPostgres, cfg.Cache.Backend)
	assert.Equal(t, 72*time.Hour, cfg.Cache.RecordTTL)
	assert.Equal(t, 45*time.Minute, cfg.Resolver.ExpiryMargin)
	assert.False(t, cfg.Resolver.CoalesceRefreshes)
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	tests := map[string]string{
		"missing token":       "discord:\n  token: \"\"\n",
		"unknown backend":     "discord:\n  token: t\ncache:\n  backend: memcached\n",
		"postgres without dsn": "discord:\n  token: t\ncache:\n  backend: postgres\n",
		"bad refresh url":     "discord:\n  token: t\n  refresh_url: \"::nope\"\n",
		"negative margin":     "discord:\n  token: t\nresolver:\n  expiry_margin: -1m\n",
		"kafka without topic": "discord:\n  token: t\nkafka:\n  enabled: true\n  brokers: [\"k:9092\"]\n  topic: \"\"\n",
		"vault without path":  "vault:\n  enabled: true\n  address: \"\"\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, body))
			require.Error(t, err)
			_, ok := errors.AsAppError(err)
			assert.True(t, ok)
		})
	}
}

func TestLoadConfig_VaultReplacesInlineToken(t *testing.T) {
	path := writeConfig(t, "vault:\n  enabled: true\n  address: http://vault:8200\n")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "argproxy/discord", cfg.Vault.SecretPath)
	assert.Equal(t, "bot_token", cfg.Vault.SecretKey)
	assert.Equal(t, 5*time.Minute, cfg.Vault.CacheTTL)
}

func TestServerConfig_Helpers(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8080, GRPCPort: 50051, Environment: "production"}
	assert.Equal(t, "127.0.0.1:8080", s.Addr())
	assert.Equal(t, "127.0.0.1:50051", s.GRPCAddr())
	assert.True(t, s.IsProduction())
}
