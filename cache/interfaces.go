// Package cache provides a two-tier key/value storage for thumbnails: an
// in-memory tier over a persistent tier (files or a SQL table), with
// time-based expiry and an optional size limit.
package cache

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a cache entry is not found or expired
	ErrNotFound = errors.New("cache entry not found or expired")
)

// Entry represents a persisted cache entry with metadata
type Entry struct {
	FetchedAt time.Time `json:"fetched_at"`
	Body      []byte    `json:"body"`
}

// Reader defines the interface for reading cache entries
type Reader interface {
	// Read retrieves a cache entry by key with TTL validation
	// Returns the entry and true if found and not expired, false otherwise
	Read(key string, maxAge time.Duration) (*Entry, bool)
}

// Writer defines the interface for writing cache entries
type Writer interface {
	// Write stores a cache entry with the given key
	Write(key string, entry *Entry) error
}

// ReadWriter combines both cache operations
type ReadWriter interface {
	Reader
	Writer
}

// Remover deletes entries from a store
type Remover interface {
	// Remove deletes a single key. Removing a missing key is not an error.
	Remove(key string) error
	// RemoveExpired deletes every entry older than maxAge and reports how many went.
	RemoveExpired(maxAge time.Duration) (int, error)
	// RemoveAll empties the store.
	RemoveAll() error
}

// Store is the persistent tier interface that combines all operations
type Store interface {
	ReadWriter
	Remover
	Close() error
}
