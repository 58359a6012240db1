package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadOverlaysEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("telegram:\n  token: from-file\nrate_limit:\n  interval_ms: 500\n  exclude_updates: [Callback]\n"), 0o600))
	t.Setenv("BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Telegram.Token)
	assert.Equal(t, RunModeLongpoll, cfg.Telegram.RunMode)
	assert.Equal(t, []string{UpdateCallback}, cfg.RateLimit.ExcludeUpdates)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestNormalize(t *testing.T) {
	base := func() *Config {
		return &Config{Telegram: TelegramConfig{Token: "t"}}
	}

	cfg := base()
	cfg.Telegram.RunMode = "WEBHOOK"
	assert.Error(t, Normalize(cfg), "webhook needs url, listen and port")

	cfg.Webhook = WebhookConfig{URL: "https://bot.example/hook", Listen: "0.0.0.0", Port: 8443}
	require.NoError(t, Normalize(cfg))
	assert.Equal(t, RunModeWebhook, cfg.Telegram.RunMode)

	cfg = base()
	cfg.Telegram.RunMode = "carrier-pigeon"
	assert.Error(t, Normalize(cfg))

	cfg = base()
	cfg.RateLimit.ExcludeUpdates = []string{"inline_query"}
	assert.Error(t, Normalize(cfg))

	cfg = base()
	cfg.Telegram.SenderWorkers = -1
	assert.Error(t, Normalize(cfg))

	assert.Error(t, Normalize(&Config{}))
	assert.Error(t, Normalize(nil))
}
