// Package app wires configuration, storage, the social network clients and the
// dialog engine into a runnable bot.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/vkinder/core/bootstrap"
	corecmd "github.com/m3rciful/vkinder/core/cmd"
	"github.com/m3rciful/vkinder/core/logger"
	"github.com/m3rciful/vkinder/core/netutil"
	tg "github.com/m3rciful/vkinder/core/telegram"
	tghelpers "github.com/m3rciful/vkinder/core/telegram/helpers"
	"github.com/m3rciful/vkinder/core/telegram/router"
	tgsender "github.com/m3rciful/vkinder/core/telegram/sender"
	"github.com/m3rciful/vkinder/internal/bot"
	"github.com/m3rciful/vkinder/internal/config"
	"github.com/m3rciful/vkinder/internal/engine"
	"github.com/m3rciful/vkinder/internal/i18n"
	"github.com/m3rciful/vkinder/internal/search"
	"github.com/m3rciful/vkinder/internal/store"
	"github.com/m3rciful/vkinder/internal/store/memory"
	"github.com/m3rciful/vkinder/internal/store/postgres"
	"github.com/m3rciful/vkinder/internal/vk"
	"github.com/m3rciful/vkinder/internal/vkid"
)

const apiTimeout = 15 * time.Second

// App holds the wired components of a running bot.
type App struct {
	cfg        *config.Config
	infra      *bootstrap.Result
	bundle     *i18n.Bundle
	engine     *engine.Engine
	auth       *vkid.Service
	bot        *bot.Bot
	registry   *tg.Registry
	dispatcher *tgsender.Dispatcher
}

var (
	_ corecmd.TelegramApp = (*App)(nil)
	_ corecmd.ServiceApp  = (*App)(nil)
	_ corecmd.Closer      = (*App)(nil)
)

// Options override infrastructure hooks, mainly for tests.
type Options struct {
	Bootstrap func(context.Context, bootstrap.Options) (*bootstrap.Result, error)
}

// New connects the configured storage and cache and builds the engine.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("app: nil config")
	}
	boot := opts.Bootstrap
	if boot == nil {
		boot = bootstrap.Run
	}

	bopts := bootstrap.Options{Config: cfg.CoreConfig()}
	if cfg.Storage == config.StoragePostgres {
		bopts.Database = &cfg.Database
	}
	if cfg.Search.Cache == config.CacheRedis {
		bopts.Redis = &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}
	}
	infra, err := boot(ctx, bopts)
	if err != nil {
		return nil, err
	}

	a, err := build(cfg, infra)
	if err != nil {
		_ = infra.Close()
		return nil, err
	}
	logger.Info(ctx, logger.CompApp, "wired",
		slog.String("storage", cfg.Storage),
		slog.String("cache", cfg.Search.Cache),
		slog.String("locale", cfg.Locale.Default),
	)
	return a, nil
}

func build(cfg *config.Config, infra *bootstrap.Result) (*App, error) {
	bundle, err := loadBundle(cfg.Locale)
	if err != nil {
		return nil, err
	}

	var st store.Store = memory.New()
	if infra.DB != nil {
		st = postgres.New(infra.DB)
	}
	var cache search.Cache = search.NewMemoryCache(cfg.Search.TTL(), nil)
	if infra.Redis != nil {
		cache = search.NewRedisCache(infra.Redis, cfg.Redis.Prefix, cfg.Search.TTL())
	}

	httpClient := netutil.NewClient(netutil.ClientOptions{Timeout: apiTimeout})
	vkClient, err := vk.New(cfg.VK, httpClient)
	if err != nil {
		return nil, err
	}
	authService, err := vkid.New(cfg.Auth, httpClient)
	if err != nil {
		return nil, err
	}

	eng, err := engine.New(engine.Deps{
		Store:    st,
		Profiles: vkClient,
		Auth:     authService,
		Finder:   search.NewPipeline(vkClient, cache, search.Options{MaxChecks: cfg.Search.MaxChecks}),
		Bundle:   bundle,
	})
	if err != nil {
		return nil, err
	}

	dispatcher := tgsender.NewDispatcher(tgsender.Options{Workers: cfg.Telegram.SenderWorkers})
	b, err := bot.New(eng, bot.Options{Stats: func() bot.Stats {
		return bot.Stats{
			ActiveTurns:  eng.ActiveTurns(),
			PendingSends: dispatcher.Pending(),
			FailedSends:  dispatcher.ErrorCount(),
		}
	}})
	if err != nil {
		return nil, err
	}
	reg := tg.NewRegistry()
	if err := b.Register(reg); err != nil {
		return nil, err
	}

	return &App{
		cfg:        cfg,
		infra:      infra,
		bundle:     bundle,
		engine:     eng,
		auth:       authService,
		bot:        b,
		registry:   reg,
		dispatcher: dispatcher,
	}, nil
}

func loadBundle(lc config.LocaleConfig) (*i18n.Bundle, error) {
	if lc.Dir == "" {
		return i18n.Embedded(lc.Default)
	}
	return i18n.Load(os.DirFS(lc.Dir), lc.Default)
}

// TelegramRunOptions returns the bot routes and middlewares.
func (a *App) TelegramRunOptions() (tg.RunOptions, error) {
	core := a.cfg.CoreConfig()
	routes := router.CommandRoutes(a.registry, router.CommandRouteOptions{AdminID: core.Telegram.AdminID})
	routes = append(routes, router.CallbackRoute(a.registry))
	routes = append(routes, router.TextRoutes(a.registry, router.TextOptions{NonText: a.bot.HandleNonText})...)

	return tg.RunOptions{
		Config:      core,
		Registry:    a.registry,
		Dispatcher:  a.dispatcher,
		Middlewares: tg.DefaultMiddlewares(core, a.onLimited),
		Routes:      routes,
	}, nil
}

// onLimited tells a throttled user to slow down. Callbacks only get an acknowledgement.
func (a *App) onLimited(c tele.Context) error {
	if c.Callback() != nil {
		return c.Respond()
	}
	var lang string
	if u := c.Sender(); u != nil {
		lang = u.LanguageCode
	}
	p := a.bundle.Printer(a.bundle.Match(lang))
	return tghelpers.SendText(c, p.Sprintf("rate_limited"), nil)
}

// Services returns the VK ID callback server.
func (a *App) Services() []func(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	handler := a.auth.Router(a.engine, a.bundle)
	return []func(ctx context.Context) error{
		func(ctx context.Context) error { return vkid.Serve(ctx, a.cfg.Auth.Listen, handler) },
	}
}

// Close releases storage and cache connections.
func (a *App) Close() error {
	return a.infra.Close()
}
