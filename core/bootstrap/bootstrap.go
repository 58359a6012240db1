package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"

	coreconfig "github.com/m3rciful/vkinder/core/config"
	coredatabase "github.com/m3rciful/vkinder/core/database"
	"github.com/m3rciful/vkinder/core/logger"
)

const redisPingTimeout = 5 * time.Second

// Options control the generic bootstrap pipeline shared between bots.
// Database and Redis are optional; nil skips them.
type Options struct {
	Config   *coreconfig.Config
	Database *coredatabase.Config
	Redis    *redis.Options

	LoggerInit func(*coreconfig.Config) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(context.Context, coredatabase.Config) error
	PingRedis  func(context.Context, *redis.Client) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	DB    *sqlx.DB
	Redis *redis.Client
}

// Close releases the connections opened by Run.
func (r *Result) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.Redis != nil {
		errs = append(errs, r.Redis.Close())
	}
	if r.DB != nil {
		errs = append(errs, r.DB.Close())
	}
	return errors.Join(errs...)
}

// Run initializes the logger, connects to the database and applies migrations,
// then connects to redis.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	res := &Result{}
	if opts.Database != nil {
		db, err := connectDatabase(ctx, opts)
		if err != nil {
			return nil, err
		}
		res.DB = db
	}

	if opts.Redis != nil {
		client := redis.NewClient(opts.Redis)
		ping := opts.PingRedis
		if ping == nil {
			ping = pingRedis
		}
		if err := ping(ctx, client); err != nil {
			_ = client.Close()
			_ = res.Close()
			logger.Error(ctx, logger.CompApp, "redis.connect",
				slog.String("addr", opts.Redis.Addr),
				slog.String("err", err.Error()),
			)
			return nil, fmt.Errorf("bootstrap: redis unavailable: %w", err)
		}
		logger.Info(ctx, logger.CompApp, "redis.connect",
			slog.String("addr", opts.Redis.Addr),
			slog.Int("db", opts.Redis.DB),
		)
		res.Redis = client
	}
	return res, nil
}

func connectDatabase(ctx context.Context, opts Options) (*sqlx.DB, error) {
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	db, err := connect(ctx, *opts.Database)
	if err != nil {
		return nil, fmt.Errorf("bootstrap: database initialization failed: %w", err)
	}

	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}
	if err := migrate(ctx, *opts.Database); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: migrations failed: %w", err)
	}
	return db, nil
}

func pingRedis(ctx context.Context, client *redis.Client) error {
	ctx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	return client.Ping(ctx).Err()
}
