// Package config assembles the bot configuration: the reusable core sections plus
// storage, social network, authorization and search settings.
package config

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/vkinder/core/config"
	"github.com/m3rciful/vkinder/core/database"
	"github.com/m3rciful/vkinder/internal/i18n"
	"github.com/m3rciful/vkinder/internal/search"
	"github.com/m3rciful/vkinder/internal/vk"
	"github.com/m3rciful/vkinder/internal/vkid"
)

// Storage backends.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Search cache backends.
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

const defaultAuthListen = ":8080"

// SearchConfig tunes the candidate pipeline.
type SearchConfig struct {
	// Cache selects where merged search results live: memory or redis.
	Cache      string `yaml:"cache" envconfig:"SEARCH_CACHE"`
	TTLSeconds int    `yaml:"ttl_seconds" envconfig:"SEARCH_TTL_SECONDS"`
	// MaxChecks bounds the profile lookups spent re-validating one pick.
	MaxChecks int `yaml:"max_checks" envconfig:"SEARCH_MAX_CHECKS"`
}

// TTL returns the cache entry lifetime.
func (s SearchConfig) TTL() time.Duration {
	return time.Duration(s.TTLSeconds) * time.Second
}

// RedisConfig addresses the shared search cache.
type RedisConfig struct {
	Addr     string `yaml:"addr" envconfig:"REDIS_ADDR"`
	Password string `yaml:"password" envconfig:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" envconfig:"REDIS_DB"`
	Prefix   string `yaml:"prefix" envconfig:"REDIS_PREFIX"`
}

// LocaleConfig selects the reply catalogs.
type LocaleConfig struct {
	// Default is used when the client language has no catalog.
	Default string `yaml:"default" envconfig:"LOCALE_DEFAULT"`
	// Dir optionally points at a directory with a locales/ folder overriding the built-in catalogs.
	Dir string `yaml:"dir" envconfig:"LOCALE_DIR"`
}

// Config is the whole bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Storage  string          `yaml:"storage" envconfig:"STORAGE"`
	Database database.Config `yaml:"database"`
	VK       vk.Config       `yaml:"vk"`
	Auth     vkid.Config     `yaml:"auth"`
	Search   SearchConfig    `yaml:"search"`
	Redis    RedisConfig     `yaml:"redis"`
	Locale   LocaleConfig    `yaml:"locale"`
}

// CoreConfig exposes the embedded core sections.
func (c *Config) CoreConfig() *coreconfig.Config {
	return &c.Config
}

// Load reads the YAML file at path, overlays environment variables and validates the result.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadFile(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize validates cfg and fills defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	if err := coreconfig.Normalize(&cfg.Config); err != nil {
		return err
	}

	cfg.Storage = strings.ToLower(strings.TrimSpace(cfg.Storage))
	switch cfg.Storage {
	case "":
		cfg.Storage = StoragePostgres
		fallthrough
	case StoragePostgres:
		if cfg.Database.Host == "" || cfg.Database.Name == "" {
			return fmt.Errorf("database.host and database.name are required for postgres storage")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("invalid storage %q; allowed: postgres, memory", cfg.Storage)
	}

	if strings.TrimSpace(cfg.VK.ServiceToken) == "" {
		return fmt.Errorf("vk.service_token is required")
	}
	if cfg.VK.RPS < 0 {
		return fmt.Errorf("vk.rps must be >= 0")
	}
	if strings.TrimSpace(cfg.Auth.ClientID) == "" {
		return fmt.Errorf("auth.client_id is required")
	}
	if strings.TrimSpace(cfg.Auth.RedirectURL) == "" {
		return fmt.Errorf("auth.redirect_url is required")
	}
	if cfg.Auth.Listen == "" {
		cfg.Auth.Listen = defaultAuthListen
	}

	cfg.Search.Cache = strings.ToLower(strings.TrimSpace(cfg.Search.Cache))
	switch cfg.Search.Cache {
	case "":
		cfg.Search.Cache = CacheMemory
	case CacheMemory:
	case CacheRedis:
		if strings.TrimSpace(cfg.Redis.Addr) == "" {
			return fmt.Errorf("redis.addr is required when search.cache is 'redis'")
		}
	default:
		return fmt.Errorf("invalid search.cache %q; allowed: memory, redis", cfg.Search.Cache)
	}
	if cfg.Search.TTLSeconds < 0 || cfg.Search.MaxChecks < 0 {
		return fmt.Errorf("search.ttl_seconds and search.max_checks must be >= 0")
	}
	if cfg.Search.TTLSeconds == 0 {
		cfg.Search.TTLSeconds = int(search.DefaultTTL / time.Second)
	}

	if cfg.Locale.Default == "" {
		cfg.Locale.Default = i18n.DefaultLocale
	}
	return nil
}
