package cache

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultExpiry is how long a thumbnail stays valid after it was written.
const DefaultExpiry = 6 * 7 * 24 * time.Hour

// Protection controls who may read the persisted entries.
type Protection string

const (
	// ProtectionNone leaves entries readable by anyone on the machine.
	ProtectionNone Protection = "none"
	// ProtectionOwner restricts entries to the current user.
	ProtectionOwner Protection = "owner"
)

// Backend selects the persistent tier implementation.
type Backend string

const (
	FileBackend     Backend = "file"
	SQLiteBackend   Backend = "sqlite"
	PostgresBackend Backend = "postgres"
	MySQLBackend    Backend = "mysql"
)

// Config describes a storage instance
type Config struct {
	Name       string        // subdirectory or table name
	Expiry     time.Duration // lifetime of an entry from write time
	MaxSize    int64         // bytes; 0 means unbounded
	Directory  string        // empty means the user cache directory
	Protection Protection
	Backend    Backend
	DSN        string // SQL backends only
}

// DefaultConfig returns the thumbnail cache configuration
func DefaultConfig() Config {
	return Config{
		Name:       "ThumbnailCache",
		Expiry:     DefaultExpiry,
		MaxSize:    0,
		Protection: ProtectionNone,
		Backend:    FileBackend,
	}
}

// modes returns directory and file permissions for the protection level
func (p Protection) modes() (dir, file os.FileMode) {
	if p == ProtectionOwner {
		return 0o700, 0o600
	}
	return 0o755, 0o644
}

// path resolves the on-disk location for file-based backends
func (c Config) path() (string, error) {
	base := c.Directory
	if base == "" {
		dir, err := os.UserCacheDir()
		if err != nil {
			return "", fmt.Errorf("resolve user cache dir: %w", err)
		}
		base = dir
	}
	return filepath.Join(base, c.Name), nil
}

// Open creates the persistent tier selected by cfg.Backend
func Open(cfg Config) (Store, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("cache name required")
	}
	switch cfg.Backend {
	case FileBackend, "":
		return NewFileCache(cfg)
	case SQLiteBackend, PostgresBackend, MySQLBackend:
		return NewSQLStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported cache backend: %s. Must be file, sqlite, postgres, or mysql", cfg.Backend)
	}
}
