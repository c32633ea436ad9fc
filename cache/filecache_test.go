package cache

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestFileCache(t *testing.T, maxSize int64) *FileCache {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	cfg.MaxSize = maxSize
	fc, err := NewFileCache(cfg)
	require.NoError(t, err)
	return fc
}

func TestFileCacheReadWrite(t *testing.T) {
	fc := newTestFileCache(t, 0)
	key := "https://example.com/page?a=1&b=2"

	require.NoError(t, fc.Write(key, &Entry{Body: []byte("png bytes")}))

	entry, ok := fc.Read(key, time.Hour)
	require.True(t, ok)
	assert.Equal(t, []byte("png bytes"), entry.Body)
	assert.WithinDuration(t, time.Now(), entry.FetchedAt, time.Minute)

	_, ok = fc.Read("https://example.com/other", time.Hour)
	assert.False(t, ok)
}

func TestFileCacheExpiredEntry(t *testing.T) {
	fc := newTestFileCache(t, 0)
	key := "https://example.com"

	require.NoError(t, fc.Write(key, &Entry{Body: []byte("x")}))

	entry, ok := fc.Read(key, time.Nanosecond)
	assert.False(t, ok, "entry should be reported as expired")
	assert.NotNil(t, entry, "expired entry is still returned")

	// maxAge of zero disables the TTL check
	_, ok = fc.Read(key, 0)
	assert.True(t, ok)
}

func TestFileCacheRemove(t *testing.T) {
	fc := newTestFileCache(t, 0)
	key := "https://example.com"

	require.NoError(t, fc.Write(key, &Entry{Body: []byte("x")}))
	require.NoError(t, fc.Remove(key))
	_, ok := fc.Read(key, 0)
	assert.False(t, ok)

	// removing again is fine
	assert.NoError(t, fc.Remove(key))
}

func TestFileCacheRemoveExpired(t *testing.T) {
	fc := newTestFileCache(t, 0)

	require.NoError(t, fc.Write("old", &Entry{Body: []byte("a")}))
	require.NoError(t, fc.Write("new", &Entry{Body: []byte("b")}))

	// rewrite the old entry with a fetch time far in the past
	old, ok := fc.Read("old", 0)
	require.True(t, ok)
	old.FetchedAt = time.Now().Add(-48 * time.Hour)
	data := []byte(`{"fetched_at":"` + old.FetchedAt.Format(time.RFC3339Nano) + `","body":"YQ=="}`)
	require.NoError(t, os.WriteFile(fc.path("old"), data, 0o644))

	removed, err := fc.RemoveExpired(24 * time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, ok = fc.Read("old", 0)
	assert.False(t, ok)
	_, ok = fc.Read("new", 0)
	assert.True(t, ok)
}

func TestFileCacheRemoveAll(t *testing.T) {
	fc := newTestFileCache(t, 0)
	require.NoError(t, fc.Write("a", &Entry{Body: []byte("a")}))
	require.NoError(t, fc.Write("b", &Entry{Body: []byte("b")}))

	require.NoError(t, fc.RemoveAll())

	files, err := fc.entries()
	require.NoError(t, err)
	assert.Empty(t, files)

	// directory is usable afterwards
	require.NoError(t, fc.Write("c", &Entry{Body: []byte("c")}))
}

func TestFileCacheMaxSizeEvictsOldest(t *testing.T) {
	body := bytes.Repeat([]byte{0xAB}, 1000)
	fc := newTestFileCache(t, 3000)

	require.NoError(t, fc.Write("a", &Entry{Body: body}))
	past := time.Now().Add(-2 * time.Hour)
	require.NoError(t, os.Chtimes(fc.path("a"), past, past))

	require.NoError(t, fc.Write("b", &Entry{Body: body}))
	past = time.Now().Add(-time.Hour)
	require.NoError(t, os.Chtimes(fc.path("b"), past, past))

	// each entry is roughly 1.4KB once base64 encoded; the third write crosses the limit
	require.NoError(t, fc.Write("c", &Entry{Body: body}))

	_, ok := fc.Read("a", 0)
	assert.False(t, ok, "oldest entry should be evicted")
	_, ok = fc.Read("b", 0)
	assert.False(t, ok, "eviction continues until half the limit")
	_, ok = fc.Read("c", 0)
	assert.True(t, ok, "newest entry survives")
}

func TestFileCacheProtectionModes(t *testing.T) {
	tests := []struct {
		protection Protection
		wantFile   os.FileMode
	}{
		{ProtectionNone, 0o644},
		{ProtectionOwner, 0o600},
	}

	for _, tt := range tests {
		t.Run(string(tt.protection), func(t *testing.T) {
			cfg := DefaultConfig()
			cfg.Directory = t.TempDir()
			cfg.Protection = tt.protection
			fc, err := NewFileCache(cfg)
			require.NoError(t, err)

			require.NoError(t, fc.Write("k", &Entry{Body: []byte("x")}))
			info, err := os.Stat(fc.path("k"))
			require.NoError(t, err)
			// umask may only remove bits
			assert.Zero(t, info.Mode().Perm()&^tt.wantFile)
		})
	}
}

func TestFileCacheDefaultLocation(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Directory = t.TempDir()
	fc, err := NewFileCache(cfg)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(cfg.Directory, "ThumbnailCache"), fc.Dir())
}

func TestKeyGeneratorFileName(t *testing.T) {
	a := DefaultKeyGenerator.FileName("https://example.com/a?x=1")
	b := DefaultKeyGenerator.FileName("https://example.com/a?x=2")

	assert.NotEqual(t, a, b)
	assert.Equal(t, a, DefaultKeyGenerator.FileName("https://example.com/a?x=1"))
	assert.NotContains(t, a, "/")
	assert.Len(t, a, 32+len(".json"))
}
