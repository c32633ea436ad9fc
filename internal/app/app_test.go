package app

import (
	"bytes"
	"context"
	"net/url"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/thumbcache/internal/config"
	"github.com/briangreenhill/thumbcache/thumbnail"
)

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log := NewLogger(&buf, "warn")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
	assert.Equal(t, zerolog.WarnLevel, log.GetLevel())

	assert.Equal(t, zerolog.InfoLevel, NewLogger(&buf, "loud").GetLevel())
	assert.Equal(t, zerolog.InfoLevel, NewLogger(&buf, "").GetLevel())
}

func TestNewService(t *testing.T) {
	t.Setenv("THUMBNAIL_CACHE_DIR", t.TempDir())
	cfg, err := config.Load()
	require.NoError(t, err)

	svc := NewService(cfg, zerolog.Nop())
	t.Cleanup(func() { _ = svc.Close() })
	assert.True(t, svc.Available())
}

func TestNewServiceUnavailableStore(t *testing.T) {
	cfg := &config.Config{Size: 180}
	cfg.Cache.Name = "bad name; drop"
	cfg.Cache.Backend = "sqlite"
	cfg.Cache.Directory = t.TempDir()

	svc := NewService(cfg, zerolog.Nop())
	assert.False(t, svc.Available())

	_, err := svc.Get(context.Background(), &url.URL{Scheme: "https", Host: "example.com"})
	assert.ErrorIs(t, err, thumbnail.ErrNotFound)
}
