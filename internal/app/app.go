// Package app wires configuration into the long-lived objects shared by the
// binaries.
package app

import (
	"io"
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/thumbcache/internal/config"
	"github.com/briangreenhill/thumbcache/metadata"
	"github.com/briangreenhill/thumbcache/thumbnail"
)

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// StdoutLogger is NewLogger on os.Stdout
func StdoutLogger(level string) zerolog.Logger {
	return NewLogger(os.Stdout, level)
}

// NewProvider builds the HTTP metadata client from cfg
func NewProvider(cfg *config.Config, log zerolog.Logger) *metadata.Client {
	opts := []metadata.Option{
		metadata.WithHTTPClient(&http.Client{Timeout: cfg.Fetch.Timeout}),
		metadata.WithMaxBodyBytes(cfg.Fetch.MaxBodyBytes),
		metadata.WithFaviconFallback(cfg.Fetch.FaviconFallback),
		metadata.WithLogger(log.With().Str("component", "metadata").Logger()),
	}
	if cfg.Fetch.UserAgent != "" {
		opts = append(opts, metadata.WithUserAgent(cfg.Fetch.UserAgent))
	}
	return metadata.New(opts...)
}

// NewService opens the configured store and returns a thumbnail service.
// A store that cannot be opened yields a service whose lookups fail with
// thumbnail.ErrNotFound.
func NewService(cfg *config.Config, log zerolog.Logger, opts ...thumbnail.Option) *thumbnail.Service {
	base := []thumbnail.Option{
		thumbnail.WithSize(cfg.Size),
		thumbnail.WithLogger(log.With().Str("component", "thumbnail").Logger()),
	}
	return thumbnail.NewWithConfig(cfg.StorageConfig(), NewProvider(cfg, log), append(base, opts...)...)
}
