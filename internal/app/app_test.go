package app

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vkinder/core/bootstrap"
	"github.com/m3rciful/vkinder/core/telegram/teletest"
	"github.com/m3rciful/vkinder/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{Storage: config.StorageMemory}
	cfg.Telegram.Token = "1:abc"
	cfg.VK.ServiceToken = "service"
	cfg.Auth.ClientID = "51234567"
	cfg.Auth.RedirectURL = "https://bot.example/vkid/callback"
	return cfg
}

func newApp(t *testing.T, cfg *config.Config) (*App, *bootstrap.Options) {
	t.Helper()
	require.NoError(t, config.Normalize(cfg))
	var got bootstrap.Options
	a, err := New(context.Background(), cfg, Options{
		Bootstrap: func(_ context.Context, opts bootstrap.Options) (*bootstrap.Result, error) {
			got = opts
			return &bootstrap.Result{}, nil
		},
	})
	require.NoError(t, err)
	return a, &got
}

func TestNewSkipsInfraForMemoryStorage(t *testing.T) {
	a, opts := newApp(t, testConfig())
	assert.Nil(t, opts.Database)
	assert.Nil(t, opts.Redis)
	assert.NotNil(t, opts.Config)
	assert.NoError(t, a.Close())
}

func TestNewRequestsRedisForSharedCache(t *testing.T) {
	cfg := testConfig()
	cfg.Search.Cache = config.CacheRedis
	cfg.Redis.Addr = "redis:6379"
	cfg.Redis.DB = 3

	_, opts := newApp(t, cfg)
	require.NotNil(t, opts.Redis)
	assert.Equal(t, "redis:6379", opts.Redis.Addr)
	assert.Equal(t, 3, opts.Redis.DB)
}

func TestNewPropagatesBootstrapError(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, config.Normalize(cfg))
	_, err := New(context.Background(), cfg, Options{
		Bootstrap: func(context.Context, bootstrap.Options) (*bootstrap.Result, error) {
			return nil, errors.New("db down")
		},
	})
	assert.EqualError(t, err, "db down")

	_, err = New(context.Background(), nil, Options{})
	assert.Error(t, err)
}

func TestTelegramRunOptions(t *testing.T) {
	a, _ := newApp(t, testConfig())
	ro, err := a.TelegramRunOptions()
	require.NoError(t, err)

	assert.Same(t, a.registry, ro.Registry)
	assert.Same(t, a.dispatcher, ro.Dispatcher)
	assert.NotEmpty(t, ro.Middlewares)

	endpoints := make([]any, 0, len(ro.Routes))
	for _, r := range ro.Routes {
		endpoints = append(endpoints, r.Endpoint)
	}
	assert.Contains(t, endpoints, "/start")
	assert.Contains(t, endpoints, "/help")
	assert.Contains(t, endpoints, "/stats")
	assert.Contains(t, endpoints, tele.OnCallback)
	assert.Contains(t, endpoints, tele.OnText)
	assert.Contains(t, endpoints, tele.OnPhoto)

	assert.Len(t, a.Services(), 1)
}

func TestOnLimited(t *testing.T) {
	a, _ := newApp(t, testConfig())

	msg := teletest.Message(1, "Search")
	require.NoError(t, a.onLimited(msg))
	require.Len(t, msg.Sent(), 1)
	assert.Equal(t, "Too fast, wait a second and try again.", msg.Sent()[0].What)

	cb := teletest.Callback(1, "menu", "next")
	require.NoError(t, a.onLimited(cb))
	assert.Equal(t, 1, cb.Responded())
	assert.Empty(t, cb.Sent())
}
