package cache

import (
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
)

const defaultCleanupInterval = 10 * time.Minute

// Storage layers an in-memory tier of decoded values over a persistent Store.
// A Storage without a persistent tier keeps values in memory only.
type Storage[T any] struct {
	disk        Store
	memory      *gocache.Cache
	transformer Transformer[T]
	expiry      time.Duration
	log         zerolog.Logger
}

// StorageOption configures a Storage
type StorageOption func(*storageSettings)

type storageSettings struct {
	log             zerolog.Logger
	cleanupInterval time.Duration
}

// WithStorageLogger sets the logger used for tier diagnostics
func WithStorageLogger(l zerolog.Logger) StorageOption {
	return func(s *storageSettings) { s.log = l }
}

// WithCleanupInterval sets how often expired memory entries are swept
func WithCleanupInterval(d time.Duration) StorageOption {
	return func(s *storageSettings) { s.cleanupInterval = d }
}

// NewStorage creates a two-tier storage. disk may be nil.
// An expiry <= 0 keeps entries forever.
func NewStorage[T any](disk Store, expiry time.Duration, transformer Transformer[T], opts ...StorageOption) *Storage[T] {
	settings := storageSettings{
		log:             zerolog.Nop(),
		cleanupInterval: defaultCleanupInterval,
	}
	for _, o := range opts {
		o(&settings)
	}

	memExpiry := gocache.NoExpiration
	if expiry > 0 {
		memExpiry = expiry
	}

	return &Storage[T]{
		disk:        disk,
		memory:      gocache.New(memExpiry, settings.cleanupInterval),
		transformer: transformer,
		expiry:      expiry,
		log:         settings.log,
	}
}

// OpenStorage opens the persistent tier described by cfg and wraps it
func OpenStorage[T any](cfg Config, transformer Transformer[T], opts ...StorageOption) (*Storage[T], error) {
	disk, err := Open(cfg)
	if err != nil {
		return nil, err
	}
	return NewStorage(disk, cfg.Expiry, transformer, opts...), nil
}

// Get returns the value stored under key, consulting memory first.
// A miss in both tiers yields ErrNotFound.
func (s *Storage[T]) Get(key string) (T, error) {
	var zero T

	if v, ok := s.memory.Get(key); ok {
		if typed, ok := v.(T); ok {
			return typed, nil
		}
	}

	if s.disk == nil {
		return zero, ErrNotFound
	}

	entry, ok := s.disk.Read(key, s.expiry)
	if !ok {
		if entry != nil {
			// expired on disk; drop it now rather than waiting for a sweep
			if err := s.disk.Remove(key); err != nil {
				s.log.Debug().Err(err).Str("key", key).Msg("remove expired entry")
			}
		}
		return zero, ErrNotFound
	}

	v, err := s.transformer.FromData(entry.Body)
	if err != nil {
		return zero, fmt.Errorf("read %s: %w", key, err)
	}

	if ttl, ok := s.remaining(entry.FetchedAt); ok {
		s.memory.Set(key, v, ttl)
	}
	return v, nil
}

// Set stores value under key in both tiers
func (s *Storage[T]) Set(key string, value T) error {
	s.memory.Set(key, value, gocache.DefaultExpiration)

	if s.disk == nil {
		return nil
	}

	data, err := s.transformer.ToData(value)
	if err != nil {
		return fmt.Errorf("write %s: %w", key, err)
	}
	return s.disk.Write(key, &Entry{Body: data})
}

// Remove deletes key from both tiers
func (s *Storage[T]) Remove(key string) error {
	s.memory.Delete(key)
	if s.disk == nil {
		return nil
	}
	return s.disk.Remove(key)
}

// RemoveExpired sweeps expired entries from both tiers and reports how many
// persisted entries were dropped.
func (s *Storage[T]) RemoveExpired() (int, error) {
	s.memory.DeleteExpired()
	if s.disk == nil || s.expiry <= 0 {
		return 0, nil
	}
	return s.disk.RemoveExpired(s.expiry)
}

// RemoveAll empties both tiers
func (s *Storage[T]) RemoveAll() error {
	s.memory.Flush()
	if s.disk == nil {
		return nil
	}
	return s.disk.RemoveAll()
}

// Close releases the persistent tier
func (s *Storage[T]) Close() error {
	if s.disk == nil {
		return nil
	}
	return s.disk.Close()
}

// remaining computes the memory TTL for an entry written at fetchedAt
func (s *Storage[T]) remaining(fetchedAt time.Time) (time.Duration, bool) {
	if s.expiry <= 0 {
		return gocache.NoExpiration, true
	}
	ttl := s.expiry - time.Since(fetchedAt)
	return ttl, ttl > 0
}
