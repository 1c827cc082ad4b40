package datasource

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeContent(size int) []byte {
	content := make([]byte, size)
	for i := range content {
		content[i] = byte(i % 251)
	}
	return content
}

// newRangeServer serves content with range support and counts requests starting at offset 0
func newRangeServer(content []byte, firstBlockRequests *int32) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Range"), "bytes=0-") && firstBlockRequests != nil {
			atomic.AddInt32(firstBlockRequests, 1)
		}
		http.ServeContent(w, r, "media.mp4", time.Time{}, bytes.NewReader(content))
	}))
}

func acquireStore(t *testing.T, budget cache.Budget) *cache.Store {
	store, err := cache.Acquire(t.TempDir(), budget)
	require.NoError(t, err)
	t.Cleanup(store.Release)
	return store
}

func TestCacheReaderReadsThrough(t *testing.T) {
	content := makeContent(BlockSize + 4096)
	var requests int32
	server := newRangeServer(content, &requests)
	defer server.Close()

	store := acquireStore(t, cache.Budget{MaxTotalBytes: 10 * int64(BlockSize)})
	source := NewCacheDataSource(store, NewHTTPUpstream(server.Client(), ""))

	spec := DataSpec{URL: server.URL + "/media.mp4", Length: -1}

	reader, err := source.Open(context.Background(), spec)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, content, data)

	cached, err := store.CachedBytes(spec.GetKey(), 0, int64(len(content)))
	require.NoError(t, err)
	assert.Equal(t, int64(len(content)), cached)

	// a second read is served from the cache
	reader, err = source.Open(context.Background(), DataSpec{URL: spec.URL, Position: 100, Length: 1000})
	require.NoError(t, err)
	data, err = io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, content[100:1100], data)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestCacheReaderSharesConcurrentFills(t *testing.T) {
	content := makeContent(4096)
	var requests int32
	server := newRangeServer(content, &requests)
	defer server.Close()

	store := acquireStore(t, cache.Budget{MaxTotalBytes: 1024 * 1024})
	source := NewCacheDataSource(store, NewHTTPUpstream(server.Client(), ""))

	wg := sync.WaitGroup{}
	results := make([][]byte, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()

			reader, err := source.Open(context.Background(), DataSpec{URL: server.URL, Length: -1})
			if err != nil {
				return
			}
			defer reader.Close()

			data, _ := io.ReadAll(reader)
			results[idx] = data
		}(i)
	}
	wg.Wait()

	for _, result := range results {
		assert.Equal(t, content, result)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestCacheReaderSharesFillsAcrossSources(t *testing.T) {
	content := makeContent(64 * 1024)
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Range"), "bytes=0-") {
			atomic.AddInt32(&requests, 1)
			time.Sleep(300 * time.Millisecond)
		}
		http.ServeContent(w, r, "media.mp4", time.Time{}, bytes.NewReader(content))
	}))
	defer server.Close()

	store := acquireStore(t, cache.Budget{MaxTotalBytes: 1024 * 1024})

	// a playback session and a prefetch job each build their own source on the store
	sources := []*CacheDataSource{
		NewCacheDataSource(store, NewHTTPUpstream(server.Client(), "")),
		NewCacheDataSource(store, NewHTTPUpstream(server.Client(), "")),
	}

	wg := sync.WaitGroup{}
	results := make([][]byte, len(sources))
	for i, source := range sources {
		wg.Add(1)
		go func(idx int, source *CacheDataSource) {
			defer wg.Done()

			reader, err := source.Open(context.Background(), DataSpec{URL: server.URL + "/media.mp4", Length: -1})
			if err != nil {
				return
			}
			defer reader.Close()

			data, _ := io.ReadAll(reader)
			results[idx] = data
		}(i, source)
	}
	wg.Wait()

	for _, result := range results {
		assert.Equal(t, content, result)
	}
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestCacheReaderCustomKey(t *testing.T) {
	content := makeContent(1000)
	server := newRangeServer(content, nil)
	defer server.Close()

	store := acquireStore(t, cache.Budget{MaxTotalBytes: 1024 * 1024})
	source := NewCacheDataSource(store, NewHTTPUpstream(server.Client(), ""))

	reader, err := source.Open(context.Background(), DataSpec{URL: server.URL + "?token=1", Key: "episode-1", Length: -1})
	require.NoError(t, err)
	_, err = io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	cached, err := store.CachedBytes("episode-1", 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), cached)
}

func TestCacheReaderPerFileCap(t *testing.T) {
	content := makeContent(200)
	server := newRangeServer(content, nil)
	defer server.Close()

	store := acquireStore(t, cache.Budget{MaxTotalBytes: 1024, MaxPerFileBytes: 50})
	source := NewCacheDataSource(store, NewHTTPUpstream(server.Client(), ""))

	reader, err := source.Open(context.Background(), DataSpec{URL: server.URL, Length: -1})
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())

	assert.Equal(t, content, data)

	cached, err := store.CachedBytes(server.URL, 0, 200)
	require.NoError(t, err)
	assert.Equal(t, int64(50), cached)
}

func TestCacheReaderIgnoresCacheFailure(t *testing.T) {
	content := makeContent(300)
	server := newRangeServer(content, nil)
	defer server.Close()

	store := acquireStore(t, cache.Budget{MaxTotalBytes: 100})

	// pinned entry that cannot be evicted
	pinned, err := store.Open("pinned")
	require.NoError(t, err)
	_, err = pinned.WriteAt(makeContent(80), 0)
	require.NoError(t, err)
	defer pinned.Close()

	source := NewCacheDataSource(store, NewHTTPUpstream(server.Client(), ""))
	reader, err := source.Open(context.Background(), DataSpec{URL: server.URL, Length: -1})
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.True(t, reader.IsBypassingCache())
	require.NoError(t, reader.Close())
	assert.Equal(t, content, data)

	// a released store is bypassed as well
	store.Release()
	reader, err = source.Open(context.Background(), DataSpec{URL: server.URL, Position: 10, Length: 20})
	require.NoError(t, err)
	data, err = io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, content[10:30], data)
}

func TestCacheReaderTransportError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	store := acquireStore(t, cache.Budget{MaxTotalBytes: 1024})
	source := NewCacheDataSource(store, NewHTTPUpstream(server.Client(), ""))

	reader, err := source.Open(context.Background(), DataSpec{URL: server.URL, Length: -1})
	require.NoError(t, err)
	defer reader.Close()

	_, err = reader.Read(make([]byte, 10))
	assert.True(t, commons.IsTransportError(err))
}

func TestHTTPUpstreamIgnoredRange(t *testing.T) {
	content := makeContent(500)
	var userAgent atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent.Store(r.Header.Get("User-Agent"))
		w.Write(content)
	}))
	defer server.Close()

	upstream := NewHTTPUpstream(server.Client(), "")
	spec := &DataSpec{URL: server.URL, Headers: map[string]string{"User-Agent": "custom"}}

	data, err := upstream.ReadAt(context.Background(), spec, 100, 50)
	require.NoError(t, err)
	assert.Equal(t, content[100:150], data)
	assert.Equal(t, "custom", userAgent.Load())

	data, err = upstream.ReadAt(context.Background(), spec, 480, 50)
	require.NoError(t, err)
	assert.Equal(t, content[480:], data)
}

func TestHTTPUpstreamRemembersLength(t *testing.T) {
	content := makeContent(500)
	server := newRangeServer(content, nil)
	defer server.Close()

	upstream := NewHTTPUpstream(server.Client(), "")
	spec := &DataSpec{URL: server.URL}

	_, ok := upstream.GetContentLength(server.URL)
	assert.False(t, ok)

	data, err := upstream.ReadAt(context.Background(), spec, 0, 10)
	require.NoError(t, err)
	assert.Len(t, data, 10)

	length, ok := upstream.GetContentLength(server.URL)
	assert.True(t, ok)
	assert.Equal(t, int64(500), length)

	data, err = upstream.ReadAt(context.Background(), spec, 600, 10)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestUpstreamFactoryReadsFile(t *testing.T) {
	content := makeContent(3000)
	path := filepath.Join(t.TempDir(), "media.mp4")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	factory := NewUpstreamFactory(NewFileUpstream(), DataSpec{URL: "file://" + path})

	reader, err := factory.Open(context.Background(), 1000, 500)
	require.NoError(t, err)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	require.NoError(t, reader.Close())
	assert.Equal(t, content[1000:1500], data)

	reader, err = factory.Open(context.Background(), 2900, -1)
	require.NoError(t, err)
	data, err = io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content[2900:], data)
}

func TestIsNetworkURL(t *testing.T) {
	assert.True(t, IsNetworkURL("https://example.com/a.m3u8"))
	assert.True(t, IsNetworkURL("HTTP://example.com/a.mp4"))
	assert.False(t, IsNetworkURL("file:///tmp/a.mp4"))
	assert.False(t, IsNetworkURL("/tmp/a.mp4"))
}
