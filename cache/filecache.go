package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// FileCache implements the Store interface using filesystem storage
type FileCache struct {
	dir      string
	dirMode  os.FileMode
	fileMode os.FileMode
	maxSize  int64

	mu sync.Mutex // serializes size-limit sweeps
}

var _ Store = (*FileCache)(nil)

// NewFileCache creates a new file-based cache at the configured location
func NewFileCache(cfg Config) (*FileCache, error) {
	dir, err := cfg.path()
	if err != nil {
		return nil, err
	}

	dirMode, fileMode := cfg.Protection.modes()
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return nil, err
	}

	return &FileCache{
		dir:      dir,
		dirMode:  dirMode,
		fileMode: fileMode,
		maxSize:  cfg.MaxSize,
	}, nil
}

// Dir returns the directory holding the entries
func (fc *FileCache) Dir() string {
	return fc.dir
}

// Read implements Reader interface
func (fc *FileCache) Read(key string, maxAge time.Duration) (*Entry, bool) {
	entry, err := fc.load(fc.path(key))
	if err != nil {
		return nil, false
	}

	// Check if expired
	if maxAge > 0 && time.Since(entry.FetchedAt) > maxAge {
		return entry, false // Return entry but mark as expired
	}

	return entry, true
}

// Write implements Writer interface
func (fc *FileCache) Write(key string, entry *Entry) error {
	path := fc.path(key)
	entry.FetchedAt = time.Now()

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	// Write to temporary file first, then rename (atomic operation)
	tmpPath := path + ".tmp." + uuid.NewString()
	if err := os.WriteFile(tmpPath, data, fc.fileMode); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}

	if fc.maxSize > 0 {
		return fc.enforceMaxSize()
	}
	return nil
}

// Remove implements Remover interface
func (fc *FileCache) Remove(key string) error {
	err := os.Remove(fc.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// RemoveExpired implements Remover interface
func (fc *FileCache) RemoveExpired(maxAge time.Duration) (int, error) {
	files, err := fc.entries()
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, f := range files {
		entry, err := fc.load(f.path)
		if err != nil || time.Since(entry.FetchedAt) > maxAge {
			if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
				return removed, err
			}
			removed++
		}
	}
	return removed, nil
}

// RemoveAll implements Remover interface
func (fc *FileCache) RemoveAll() error {
	if err := os.RemoveAll(fc.dir); err != nil {
		return err
	}
	return os.MkdirAll(fc.dir, fc.dirMode)
}

// Close implements Store; files need no teardown
func (fc *FileCache) Close() error {
	return nil
}

type fileInfo struct {
	path    string
	size    int64
	modTime time.Time
}

// entries lists the committed entry files, skipping in-flight temp files
func (fc *FileCache) entries() ([]fileInfo, error) {
	dirEntries, err := os.ReadDir(fc.dir)
	if err != nil {
		return nil, err
	}

	files := make([]fileInfo, 0, len(dirEntries))
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".json") {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		files = append(files, fileInfo{
			path:    filepath.Join(fc.dir, de.Name()),
			size:    info.Size(),
			modTime: info.ModTime(),
		})
	}
	return files, nil
}

// enforceMaxSize drops the oldest entries once the directory outgrows
// maxSize, stopping when the total is at or below half of it.
func (fc *FileCache) enforceMaxSize() error {
	fc.mu.Lock()
	defer fc.mu.Unlock()

	files, err := fc.entries()
	if err != nil {
		return err
	}

	var total int64
	for _, f := range files {
		total += f.size
	}
	if total <= fc.maxSize {
		return nil
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime.Before(files[j].modTime)
	})

	target := fc.maxSize / 2
	for _, f := range files {
		if total <= target {
			break
		}
		if err := os.Remove(f.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("evict %s: %w", f.path, err)
		}
		total -= f.size
	}
	return nil
}

func (fc *FileCache) load(path string) (*Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// path generates the full filesystem path for a cache key
func (fc *FileCache) path(key string) string {
	return filepath.Join(fc.dir, DefaultKeyGenerator.FileName(key))
}
