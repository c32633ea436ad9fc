// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/briangreenhill/thumbcache/cache"
)

// Config holds all application configuration
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	APIKey    string `env:"THUMBNAIL_API_KEY"`
	Size      int    `env:"THUMBNAIL_SIZE" envDefault:"180"`

	Cache CacheConfig `envPrefix:"THUMBNAIL_CACHE_"`
	Fetch FetchConfig `envPrefix:"THUMBNAIL_FETCH_"`
}

// CacheConfig holds storage configuration
type CacheConfig struct {
	Name       string        `env:"NAME" envDefault:"ThumbnailCache"`
	Expiry     time.Duration `env:"EXPIRY" envDefault:"1008h"` // 6 weeks
	MaxSize    int64         `env:"MAX_SIZE" envDefault:"0"`
	Directory  string        `env:"DIR"`
	Protection string        `env:"PROTECTION" envDefault:"none"`
	Backend    string        `env:"BACKEND" envDefault:"file"`
	DSN        string        `env:"DSN"`
}

// FetchConfig holds metadata fetching configuration
type FetchConfig struct {
	Timeout         time.Duration `env:"TIMEOUT" envDefault:"15s"`
	UserAgent       string        `env:"USER_AGENT"`
	MaxBodyBytes    int64         `env:"MAX_BODY_BYTES" envDefault:"2097152"`
	FaviconFallback bool          `env:"FAVICON_FALLBACK" envDefault:"true"`
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values the environment parser cannot
func (c *Config) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("THUMBNAIL_SIZE must be positive, got %d", c.Size)
	}
	if c.Cache.MaxSize < 0 {
		return fmt.Errorf("THUMBNAIL_CACHE_MAX_SIZE must not be negative, got %d", c.Cache.MaxSize)
	}

	switch cache.Protection(c.Cache.Protection) {
	case cache.ProtectionNone, cache.ProtectionOwner:
	default:
		return fmt.Errorf("THUMBNAIL_CACHE_PROTECTION must be none or owner, got %q", c.Cache.Protection)
	}

	switch cache.Backend(c.Cache.Backend) {
	case cache.FileBackend, cache.SQLiteBackend:
	case cache.PostgresBackend, cache.MySQLBackend:
		if c.Cache.DSN == "" {
			return fmt.Errorf("THUMBNAIL_CACHE_DSN is required for the %s backend", c.Cache.Backend)
		}
	default:
		return fmt.Errorf("unknown THUMBNAIL_CACHE_BACKEND %q", c.Cache.Backend)
	}
	return nil
}

// StorageConfig converts the cache settings for the cache package
func (c *Config) StorageConfig() cache.Config {
	return cache.Config{
		Name:       c.Cache.Name,
		Expiry:     c.Cache.Expiry,
		MaxSize:    c.Cache.MaxSize,
		Directory:  c.Cache.Directory,
		Protection: cache.Protection(c.Cache.Protection),
		Backend:    cache.Backend(c.Cache.Backend),
		DSN:        c.Cache.DSN,
	}
}
