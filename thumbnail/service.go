// Package thumbnail maps URLs to small preview images. Lookups consult a
// persistent cache first and fall back to fetching the page's icon through a
// metadata provider, writing a resized copy back to the cache.
package thumbnail

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"net/url"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/rs/zerolog"

	"github.com/briangreenhill/thumbcache/cache"
	"github.com/briangreenhill/thumbcache/metadata"
)

// ErrNotFound is the fallback error when no more specific one is available:
// no store, no metadata, no icon (including one that answers 404), or icon
// data that does not decode.
var ErrNotFound = cache.ErrNotFound

// Storage is the key -> image store the service reads through.
// It must be safe for concurrent use.
type Storage interface {
	Get(key string) (image.Image, error)
	Set(key string, img image.Image) error
	Remove(key string) error
	RemoveExpired() (int, error)
	RemoveAll() error
}

var _ Storage = (*cache.Storage[image.Image])(nil)

// Result is the outcome of a lookup
type Result struct {
	Image image.Image
	Err   error
}

// Service resolves URLs to thumbnails
type Service struct {
	storage    Storage // nil when the store could not be opened
	provider   metadata.Provider
	dispatcher Dispatcher
	size       int
	log        zerolog.Logger
}

type Option func(*Service)

// WithDispatcher sets where results of network fetches are delivered.
// The dispatcher must run every function it is given exactly once.
func WithDispatcher(d Dispatcher) Option {
	return func(s *Service) {
		if d != nil {
			s.dispatcher = d
		}
	}
}

// WithSize sets the edge length of stored thumbnails
func WithSize(px int) Option {
	return func(s *Service) {
		if px > 0 {
			s.size = px
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// New creates a service over storage. A nil storage is allowed and makes
// every lookup fail with ErrNotFound.
func New(storage Storage, provider metadata.Provider, opts ...Option) *Service {
	s := &Service{
		storage:    storage,
		provider:   provider,
		dispatcher: Inline,
		size:       DefaultSize,
		log:        zerolog.Nop(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// NewWithConfig opens the store described by cfg. If the store cannot be
// opened the service is still returned, without a store.
func NewWithConfig(cfg cache.Config, provider metadata.Provider, opts ...Option) *Service {
	s := New(nil, provider, opts...)

	storage, err := cache.OpenStorage(cfg, cache.ImageTransformer(), cache.WithStorageLogger(s.log))
	if err != nil {
		s.log.Warn().Err(err).Str("backend", string(cfg.Backend)).Msg("thumbnail cache unavailable")
		return s
	}
	s.storage = storage
	return s
}

// Available reports whether the service has a store
func (s *Service) Available() bool {
	return s.storage != nil
}

// Thumbnail resolves u and calls completion exactly once. Cache hits complete
// on a background goroutine; results of network fetches are delivered
// through the service's Dispatcher. Cancelling ctx does not stop a fetch
// that has started.
func (s *Service) Thumbnail(ctx context.Context, u *url.URL, completion func(image.Image, error)) {
	if s.storage == nil || u == nil {
		completion(nil, ErrNotFound)
		return
	}

	key := u.String()
	fetchCtx := context.WithoutCancel(ctx)

	go func() {
		img, err := s.storage.Get(key)
		if err == nil {
			completion(img, nil)
			return
		}
		if !errors.Is(err, ErrNotFound) {
			s.log.Debug().Err(err).Str("url", key).Msg("cache read failed, fetching")
		}

		img, err = s.fetchAndCache(fetchCtx, u, key)
		s.dispatcher.Dispatch(func() { completion(img, err) })
	}()
}

// Lookup is Thumbnail delivering its result on a channel. The channel is
// buffered so an abandoned lookup never blocks.
func (s *Service) Lookup(ctx context.Context, u *url.URL) <-chan Result {
	ch := make(chan Result, 1)
	s.Thumbnail(ctx, u, func(img image.Image, err error) {
		ch <- Result{Image: img, Err: err}
	})
	return ch
}

// Get blocks until the lookup resolves or ctx is done. It must not be called
// from the goroutine that drains the service's Dispatcher.
func (s *Service) Get(ctx context.Context, u *url.URL) (image.Image, error) {
	select {
	case r := <-s.Lookup(ctx, u):
		return r.Image, r.Err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// fetchAndCache loads the page icon, stores a resized copy under key and
// returns the original, unresized image.
func (s *Service) fetchAndCache(ctx context.Context, u *url.URL, key string) (image.Image, error) {
	md, err := s.provider.FetchMetadata(ctx, u)
	if err != nil {
		return nil, err
	}
	if md == nil || md.IconProvider == nil {
		return nil, ErrNotFound
	}

	data, err := md.IconProvider.LoadData(ctx, metadata.TypePNG)
	if errors.Is(err, metadata.ErrResourceNotFound) {
		// a missing icon, typically the /favicon.ico guess, means no thumbnail
		return nil, fmt.Errorf("%w: %w", err, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, ErrNotFound
	}

	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		s.log.Debug().Err(err).Str("url", key).Msg("icon data does not decode")
		return nil, fmt.Errorf("decode icon for %s: %w", key, ErrNotFound)
	}

	small := Resize(img, s.size, s.size)
	if err := s.storage.Set(key, small); err != nil {
		s.log.Warn().Err(err).Str("url", key).Msg("store thumbnail")
	}

	s.log.Debug().Str("url", key).Int("width", img.Bounds().Dx()).Int("height", img.Bounds().Dy()).Msg("fetched thumbnail")
	return img, nil
}

// Remove evicts the thumbnail for u
func (s *Service) Remove(u *url.URL) error {
	if s.storage == nil {
		return ErrNotFound
	}
	return s.storage.Remove(u.String())
}

// RemoveExpired sweeps expired thumbnails
func (s *Service) RemoveExpired() (int, error) {
	if s.storage == nil {
		return 0, ErrNotFound
	}
	return s.storage.RemoveExpired()
}

// RemoveAll empties the cache
func (s *Service) RemoveAll() error {
	if s.storage == nil {
		return ErrNotFound
	}
	return s.storage.RemoveAll()
}

// Close releases the store
func (s *Service) Close() error {
	if c, ok := s.storage.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
