package cache

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// SQLStore keeps entries in a single table of a SQL database.
type SQLStore struct {
	db        *sql.DB
	tableName string
	backend   Backend
}

var _ Store = (*SQLStore)(nil)

// NewSQLStore opens the database named by cfg.DSN and creates the entry table.
// For SQLite an empty DSN places the database next to where the file backend would live.
func NewSQLStore(cfg Config) (*SQLStore, error) {
	if !tableNamePattern.MatchString(cfg.Name) {
		return nil, fmt.Errorf("invalid table name %q", cfg.Name)
	}

	var driverName string
	dsn := cfg.DSN

	switch cfg.Backend {
	case SQLiteBackend:
		driverName = "sqlite"
		if dsn == "" {
			dir, err := cfg.path()
			if err != nil {
				return nil, err
			}
			dirMode, _ := cfg.Protection.modes()
			if err := os.MkdirAll(dir, dirMode); err != nil {
				return nil, err
			}
			dsn = filepath.Join(dir, "cache.db")
		}
	case PostgresBackend:
		// host=localhost port=5432 user=postgres password=secret dbname=thumbs
		driverName = "pgx"
	case MySQLBackend:
		// user:password@tcp(host:port)/dbname
		driverName = "mysql"
	default:
		return nil, fmt.Errorf("unsupported SQL backend: %s", cfg.Backend)
	}
	if dsn == "" {
		return nil, fmt.Errorf("%s backend requires a DSN", cfg.Backend)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s cache: %w", cfg.Backend, err)
	}
	if cfg.Backend == SQLiteBackend {
		// Limit SQLite to a single open connection to avoid "database is locked" errors
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect to %s cache: %w", cfg.Backend, err)
	}

	s := &SQLStore{db: db, tableName: cfg.Name, backend: cfg.Backend}
	if _, err := db.Exec(s.createTableQuery()); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create table %s: %w", cfg.Name, err)
	}
	return s, nil
}

func (s *SQLStore) createTableQuery() string {
	switch s.backend {
	case MySQLBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				cache_key VARCHAR(768) PRIMARY KEY,
				cache_value LONGBLOB NOT NULL,
				fetched_at BIGINT NOT NULL
			);
		`, s.quotedTable())
	case PostgresBackend:
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				cache_key TEXT PRIMARY KEY,
				cache_value BYTEA NOT NULL,
				fetched_at BIGINT NOT NULL
			);
		`, s.quotedTable())
	default: // SQLite
		return fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				cache_key TEXT PRIMARY KEY,
				cache_value BLOB NOT NULL,
				fetched_at INTEGER NOT NULL
			);
		`, s.quotedTable())
	}
}

// Read implements Reader interface
func (s *SQLStore) Read(key string, maxAge time.Duration) (*Entry, bool) {
	query := fmt.Sprintf(`SELECT cache_value, fetched_at FROM %s WHERE cache_key = %s`, s.quotedTable(), s.placeholder(1))

	var body []byte
	var ts int64
	if err := s.db.QueryRow(query, key).Scan(&body, &ts); err != nil {
		return nil, false
	}

	entry := &Entry{FetchedAt: time.Unix(0, ts), Body: body}
	if maxAge > 0 && time.Since(entry.FetchedAt) > maxAge {
		return entry, false
	}
	return entry, true
}

// Write implements Writer interface
func (s *SQLStore) Write(key string, entry *Entry) error {
	entry.FetchedAt = time.Now()
	_, err := s.db.Exec(s.upsertQuery(), key, entry.Body, entry.FetchedAt.UnixNano())
	return err
}

// Remove implements Remover interface
func (s *SQLStore) Remove(key string) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE cache_key = %s`, s.quotedTable(), s.placeholder(1))
	_, err := s.db.Exec(query, key)
	return err
}

// RemoveExpired implements Remover interface
func (s *SQLStore) RemoveExpired(maxAge time.Duration) (int, error) {
	cutoff := time.Now().Add(-maxAge).UnixNano()
	query := fmt.Sprintf(`DELETE FROM %s WHERE fetched_at < %s`, s.quotedTable(), s.placeholder(1))
	res, err := s.db.Exec(query, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// RemoveAll implements Remover interface
func (s *SQLStore) RemoveAll() error {
	_, err := s.db.Exec(fmt.Sprintf(`DELETE FROM %s`, s.quotedTable()))
	return err
}

// Close closes the underlying DB connection.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// placeholder returns the n-th parameter placeholder for the backend.
func (s *SQLStore) placeholder(n int) string {
	if s.backend == PostgresBackend {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStore) upsertQuery() string {
	switch s.backend {
	case MySQLBackend:
		return fmt.Sprintf(`INSERT INTO %s (cache_key, cache_value, fetched_at) VALUES (?, ?, ?) AS new
			ON DUPLICATE KEY UPDATE cache_value = new.cache_value, fetched_at = new.fetched_at`, s.quotedTable())
	case PostgresBackend:
		return fmt.Sprintf(`INSERT INTO %s (cache_key, cache_value, fetched_at) VALUES ($1, $2, $3)
			ON CONFLICT (cache_key) DO UPDATE SET cache_value = EXCLUDED.cache_value, fetched_at = EXCLUDED.fetched_at`, s.quotedTable())
	default: // SQLite
		return fmt.Sprintf(`INSERT OR REPLACE INTO %s (cache_key, cache_value, fetched_at) VALUES (?, ?, ?)`, s.quotedTable())
	}
}

func (s *SQLStore) quotedTable() string {
	if s.backend == MySQLBackend {
		return "`" + s.tableName + "`"
	}
	return `"` + s.tableName + `"`
}
