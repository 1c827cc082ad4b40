package prefetch

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/datasource"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

// fakeUpstream serves size bytes, failing or blocking past failAt
type fakeUpstream struct {
	size    int64
	failAt  int64 // -1 disables
	block   bool
	blocked chan struct{}
	once    sync.Once
}

func (upstream *fakeUpstream) ReadAt(ctx context.Context, spec *datasource.DataSpec, offset int64, length int64) ([]byte, error) {
	if upstream.failAt >= 0 && offset >= upstream.failAt {
		if upstream.block {
			upstream.once.Do(func() {
				close(upstream.blocked)
			})
			<-ctx.Done()
			return nil, commons.NewTransportError(spec.URL, 0, ctx.Err())
		}
		return nil, commons.NewTransportError(spec.URL, http.StatusBadGateway, xerrors.Errorf("bad gateway"))
	}

	end := offset + length
	if end > upstream.size {
		end = upstream.size
	}
	if upstream.failAt >= 0 && end > upstream.failAt {
		end = upstream.failAt
	}
	if end <= offset {
		return []byte{}, nil
	}

	return bytes.Repeat([]byte{'m'}, int(end-offset)), nil
}

func acquireStore(t *testing.T) *cache.Store {
	store, err := cache.Acquire(t.TempDir(), cache.Budget{MaxTotalBytes: 16 * 1024 * 1024})
	require.NoError(t, err)
	t.Cleanup(store.Release)
	return store
}

func TestJobCachesTargetLength(t *testing.T) {
	content := bytes.Repeat([]byte{'x'}, 300*1024)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.ServeContent(w, r, "media.mp4", time.Time{}, bytes.NewReader(content))
	}))
	defer server.Close()

	store := acquireStore(t)

	percents := []int{}
	job := NewJob(store, datasource.NewHTTPUpstream(server.Client(), ""), Request{
		URL:          server.URL + "/media.mp4",
		TargetLength: 200 * 1024,
	}, func(key string, percent int) {
		percents = append(percents, percent)
	})

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, int64(200*1024), result.BytesCached)
	assert.Equal(t, []int{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}, percents)

	cached, err := store.CachedBytes(server.URL+"/media.mp4", 0, 300*1024)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, cached, int64(200*1024))
}

func TestJobShortSource(t *testing.T) {
	store := acquireStore(t)

	job := NewJob(store, &fakeUpstream{size: 1000, failAt: -1}, Request{
		URL:          "https://example.com/short.mp4",
		ContentKey:   "short",
		TargetLength: 5000,
	}, nil)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomeSourceExhausted, result.Outcome)
	assert.Equal(t, int64(1000), result.BytesCached)
}

func TestJobPartialSoftSuccess(t *testing.T) {
	store := acquireStore(t)

	job := NewJob(store, &fakeUpstream{size: 1024 * 1024, failAt: 100 * 1024}, Request{
		URL:          "https://example.com/partial.mp4",
		TargetLength: 200 * 1024,
	}, nil)

	result, err := job.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, OutcomePartialSoftSuccess, result.Outcome)
	assert.Equal(t, int64(100*1024), result.BytesCached)
}

func TestJobFailureWithoutCachedBytes(t *testing.T) {
	// the budget cannot hold the first chunk, so the reader falls back to upstream-only reads
	store, err := cache.Acquire(t.TempDir(), cache.Budget{MaxTotalBytes: 1024})
	require.NoError(t, err)
	t.Cleanup(store.Release)

	job := NewJob(store, &fakeUpstream{size: 1024 * 1024, failAt: 100 * 1024}, Request{
		URL:          "https://example.com/uncached.mp4",
		TargetLength: 200 * 1024,
	}, nil)

	result, err := job.Run(context.Background())
	assert.True(t, commons.IsPrefetchHardFailureError(err))
	assert.Equal(t, int64(100*1024), result.BytesRead)
}

func TestJobHardFailure(t *testing.T) {
	store := acquireStore(t)

	job := NewJob(store, &fakeUpstream{size: 1024, failAt: 0}, Request{
		URL:          "https://example.com/broken.mp4",
		TargetLength: 1024,
	}, nil)

	_, err := job.Run(context.Background())
	assert.True(t, commons.IsPrefetchHardFailureError(err))
}

func TestJobRejectsLocalSource(t *testing.T) {
	store := acquireStore(t)

	job := NewJob(store, datasource.NewFileUpstream(), Request{
		URL: "/tmp/media.mp4",
	}, nil)

	_, err := job.Run(context.Background())
	assert.True(t, commons.IsPrefetchRejectedError(err))
}

func TestJobCancel(t *testing.T) {
	store := acquireStore(t)

	upstream := &fakeUpstream{
		size:    4 * 1024 * 1024,
		failAt:  128 * 1024,
		block:   true,
		blocked: make(chan struct{}),
	}

	job := NewJob(store, upstream, Request{
		URL:          "https://example.com/long.mp4",
		TargetLength: 4 * 1024 * 1024,
	}, nil)

	type runResult struct {
		result Result
		err    error
	}
	done := make(chan runResult, 1)
	go func() {
		result, err := job.Run(context.Background())
		done <- runResult{result, err}
	}()

	select {
	case <-upstream.blocked:
	case <-time.After(5 * time.Second):
		require.FailNow(t, "upstream was not reached")
	}

	job.Cancel()
	job.Cancel()

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, OutcomeCancelled, r.result.Outcome)
		assert.Equal(t, int64(128*1024), r.result.BytesCached)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "job did not stop")
	}

	// the store is still usable
	_, err := store.Stat()
	assert.NoError(t, err)
}

func TestManagerPreCache(t *testing.T) {
	dir := t.TempDir()
	defer cache.Release(dir)

	type completion struct {
		key    string
		result Result
		err    error
	}
	completions := make(chan completion, 4)

	manager := NewManager(dir, cache.Budget{MaxTotalBytes: 16 * 1024 * 1024}, &fakeUpstream{size: 2048, failAt: -1}, NewWorkerPool(2), nil, func(key string, result Result, err error) {
		completions <- completion{key, result, err}
	})
	defer manager.Release()

	err := manager.PreCache(Request{URL: "file:///tmp/a.mp4"})
	assert.True(t, commons.IsPrefetchRejectedError(err))

	err = manager.PreCache(Request{URL: "https://example.com/a.mp4", TargetLength: 1024})
	require.NoError(t, err)

	select {
	case c := <-completions:
		require.NoError(t, c.err)
		assert.Equal(t, "https://example.com/a.mp4", c.key)
		assert.Equal(t, OutcomeCompleted, c.result.Outcome)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "job did not finish")
	}

	assert.Empty(t, manager.Running())
}

func TestManagerStopPreCache(t *testing.T) {
	dir := t.TempDir()
	defer cache.Release(dir)

	upstream := &fakeUpstream{
		size:    4 * 1024 * 1024,
		failAt:  64 * 1024,
		block:   true,
		blocked: make(chan struct{}),
	}

	completions := make(chan Result, 1)
	manager := NewManager(dir, cache.Budget{MaxTotalBytes: 16 * 1024 * 1024}, upstream, NewWorkerPool(1), nil, func(key string, result Result, err error) {
		completions <- result
	})
	defer manager.Release()

	assert.False(t, manager.StopPreCache("missing"))

	request := Request{URL: "https://example.com/b.mp4", ContentKey: "b", TargetLength: 4 * 1024 * 1024}
	require.NoError(t, manager.PreCache(request))
	require.NoError(t, manager.PreCache(request))
	assert.Equal(t, []string{"b"}, manager.Running())

	<-upstream.blocked

	assert.True(t, manager.StopPreCache("b"))
	manager.StopPreCache("b")

	select {
	case result := <-completions:
		assert.Equal(t, OutcomeCancelled, result.Outcome)
	case <-time.After(5 * time.Second):
		require.FailNow(t, "job did not stop")
	}

	assert.False(t, manager.StopPreCache("b"))
}

func TestWorkerPoolStop(t *testing.T) {
	pool := NewWorkerPool(2)

	wg := sync.WaitGroup{}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		require.NoError(t, pool.Submit(wg.Done))
	}
	wg.Wait()

	pool.Stop()
	pool.Stop()

	assert.Error(t, pool.Submit(func() {}))
}
