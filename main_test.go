package main

import (
	"bytes"
	"image"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func isolatedCache(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("THUMBNAIL_CACHE_DIR", dir)
	t.Setenv("LOG_LEVEL", "error")
	return dir
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "thumbcache "+version+"\n", out)
}

func TestHelpListsCommands(t *testing.T) {
	out, err := execute(t, "--help")
	require.NoError(t, err)
	for _, name := range []string{"fetch", "prune", "clear", "version"} {
		assert.Contains(t, out, name)
	}
}

func TestUnknownCommand(t *testing.T) {
	_, err := execute(t, "frobnicate")
	assert.Error(t, err)
	assert.Error(t, runCLI([]string{"frobnicate"}))
}

func TestFetchRejectsBadURL(t *testing.T) {
	isolatedCache(t)
	_, err := execute(t, "fetch", "example.com")
	assert.Error(t, err)

	_, err = execute(t, "fetch")
	assert.Error(t, err, "fetch requires a URL")
}

func TestFetchWritesPNG(t *testing.T) {
	isolatedCache(t)

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><link rel="apple-touch-icon" href="/touch.png"></head></html>`))
	})
	mux.HandleFunc("/touch.png", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_ = png.Encode(w, image.NewRGBA(image.Rect(0, 0, 32, 32)))
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	out := filepath.Join(t.TempDir(), "thumb.png")
	_, err := execute(t, "fetch", srv.URL+"/", "-o", out)
	require.NoError(t, err)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	img, err := png.Decode(f)
	require.NoError(t, err)
	assert.Equal(t, 32, img.Bounds().Dx())

	// second run is served from disk, resized
	stdout, err := execute(t, "fetch", srv.URL+"/")
	require.NoError(t, err)
	img, err = png.Decode(bytes.NewReader([]byte(stdout)))
	require.NoError(t, err)
	assert.Equal(t, 180, img.Bounds().Dx())
}

func TestFetchNotFound(t *testing.T) {
	isolatedCache(t)
	t.Setenv("THUMBNAIL_FETCH_FAVICON_FALLBACK", "false")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte(`<html><head><title>No icon</title></head></html>`))
	}))
	t.Cleanup(srv.Close)

	_, err := execute(t, "fetch", srv.URL+"/")
	assert.Error(t, err)
}

func TestPruneAndClear(t *testing.T) {
	dir := isolatedCache(t)
	entryDir := filepath.Join(dir, "ThumbnailCache")
	require.NoError(t, os.MkdirAll(entryDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(entryDir, "stale.json"), []byte(`{"fetched_at":"2000-01-01T00:00:00Z","body":""}`), 0o644))

	out, err := execute(t, "prune")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 expired thumbnails\n", out)

	require.NoError(t, os.WriteFile(filepath.Join(entryDir, "other.json"), []byte(`{}`), 0o644))
	out, err = execute(t, "clear")
	require.NoError(t, err)
	assert.Equal(t, "thumbnail cache cleared\n", out)

	entries, err := os.ReadDir(entryDir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
