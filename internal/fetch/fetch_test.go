package fetch

import (
	"archive/zip"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSafeFilename(t *testing.T) {
	assert.Equal(t, "my-dataset____.zip", SafeFilename("my-dataset#123"))
	assert.Equal(t, "abc.zip", SafeFilename("abc"))
}

func TestNewCacheCreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "cache")
	c, err := NewCache(dir)
	require.NoError(t, err)
	require.NotNil(t, c.Filesystem())

	_, err = os.Stat(dir)
	require.NoError(t, err)
}

func writeTestZip(t *testing.T, path string, members map[string]string) {
	t.Helper()
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	names := make([]string, 0, len(members))
	for name := range members {
		names = append(names, name)
	}
	sort.Strings(names)

	w := zip.NewWriter(f)
	for _, name := range names {
		mw, err := w.Create(name)
		require.NoError(t, err)
		_, err = mw.Write([]byte(members[name]))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
}

func TestArchiveIteratesMembersInOrder(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.zip")
	writeTestZip(t, path, map[string]string{"a.xml": "alpha", "b.xml": "beta"})

	a, err := OpenArchive(path)
	require.NoError(t, err)
	defer a.Close()

	require.Equal(t, 2, a.Len())

	first, err := a.Next()
	require.NoError(t, err)
	assert.Equal(t, "alpha", string(first))

	second, err := a.Next()
	require.NoError(t, err)
	assert.Equal(t, "beta", string(second))

	_, err = a.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestHTTPDownloaderWritesBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("archive-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache, err := NewCache(dir)
	require.NoError(t, err)

	dest, err := cache.Filesystem().Create("out.zip")
	require.NoError(t, err)

	downloader := NewHTTPDownloader(nil)
	require.NoError(t, downloader.Download(context.Background(), srv.URL, dest))
	require.NoError(t, dest.Close())

	data, err := os.ReadFile(filepath.Join(dir, "out.zip"))
	require.NoError(t, err)
	assert.Equal(t, "archive-bytes", string(data))
}

func TestHTTPDownloaderFailsOnErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	cache, err := NewCache(dir)
	require.NoError(t, err)
	dest, err := cache.Filesystem().Create("out.zip")
	require.NoError(t, err)
	defer dest.Close()

	downloader := NewHTTPDownloader(nil)
	err = downloader.Download(context.Background(), srv.URL, dest)
	require.Error(t, err)
}

func TestScrollSearchIndexPagesUntilEmpty(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			json.NewEncoder(w).Encode(map[string]any{
				"_scroll_id": "SCROLL1",
				"hits": map[string]any{
					"hits": []map[string]any{
						{"_id": "d1", "_source": map[string]any{"citation_publisher": "Pub 1", "datalink": "https://example.org/d1.zip"}},
					},
				},
			})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{
			"_scroll_id": "SCROLL1",
			"hits":       map[string]any{"hits": []map[string]any{}},
		})
	}))
	defer srv.Close()

	idx := NewScrollSearchIndex(nil, srv.URL, srv.URL)
	datasets, err := idx.Datasets(context.Background())
	require.NoError(t, err)
	require.Len(t, datasets, 1)
	assert.Equal(t, "d1", datasets[0].ID)
	assert.Equal(t, "Pub 1", datasets[0].Publisher)
	assert.Equal(t, "https://example.org/d1.zip", datasets[0].URL)
	assert.Equal(t, 2, calls)
}
