package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coreconfig "github.com/m3rciful/vkinder/core/config"
)

const sample = `
telegram:
  token: "123:abc"
  run_mode: polling
logging:
  level: debug
storage: memory
vk:
  service_token: service
auth:
  client_id: "51234567"
  redirect_url: https://bot.example/vkid/callback
search:
  cache: Redis
redis:
  addr: localhost:6379
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad(t *testing.T) {
	t.Setenv("VK_RPS", "2.5")
	t.Setenv("SEARCH_MAX_CHECKS", "10")

	cfg, err := Load(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "123:abc", cfg.Telegram.Token)
	assert.Equal(t, coreconfig.RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, StorageMemory, cfg.Storage)
	assert.Equal(t, CacheRedis, cfg.Search.Cache)
	assert.Equal(t, 5*time.Minute, cfg.Search.TTL())
	assert.Equal(t, 10, cfg.Search.MaxChecks)
	assert.InDelta(t, 2.5, cfg.VK.RPS, 1e-9)
	assert.Equal(t, ":8080", cfg.Auth.Listen)
	assert.Equal(t, "ru", cfg.Locale.Default)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}

func TestNormalizeRejects(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load(writeConfig(t, sample))
		require.NoError(t, err)
		return cfg
	}

	cases := map[string]func(*Config){
		"unknown storage":     func(c *Config) { c.Storage = "sqlite" },
		"postgres without db": func(c *Config) { c.Storage = StoragePostgres },
		"no service token":    func(c *Config) { c.VK.ServiceToken = " " },
		"no client id":        func(c *Config) { c.Auth.ClientID = "" },
		"no redirect":         func(c *Config) { c.Auth.RedirectURL = "" },
		"redis without addr":  func(c *Config) { c.Redis.Addr = "" },
		"unknown cache":       func(c *Config) { c.Search.Cache = "memcached" },
		"negative ttl":        func(c *Config) { c.Search.TTLSeconds = -1 },
		"no telegram token":   func(c *Config) { c.Telegram.Token = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := valid()
			mutate(cfg)
			assert.Error(t, Normalize(cfg))
		})
	}
	assert.Error(t, Normalize(nil))
}

func TestNormalizeDefaultsToPostgres(t *testing.T) {
	cfg := &Config{Storage: ""}
	cfg.Telegram.Token = "1:a"
	cfg.Database.Host, cfg.Database.Name = "db", "vkinder"
	cfg.VK.ServiceToken = "s"
	cfg.Auth.ClientID, cfg.Auth.RedirectURL = "1", "https://bot.example/cb"

	require.NoError(t, Normalize(cfg))
	assert.Equal(t, StoragePostgres, cfg.Storage)
	assert.Equal(t, CacheMemory, cfg.Search.Cache)
}
