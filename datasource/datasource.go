package datasource

import (
	"context"
	"io"

	"github.com/BeamlakAschalew/flixquest-betterplayer/cache"
	"github.com/BeamlakAschalew/flixquest-betterplayer/metrics"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const (
	BlockSize int = 1024 * 1024 // 1MB
)

// CacheDataSource reads media through the disk cache
type CacheDataSource struct {
	store       *cache.Store
	upstream    Upstream
	blockHelper *utils.FileBlockHelper
}

// NewCacheDataSource creates a new CacheDataSource
func NewCacheDataSource(store *cache.Store, upstream Upstream) *CacheDataSource {
	return &CacheDataSource{
		store:       store,
		upstream:    upstream,
		blockHelper: utils.NewFileBlockHelper(BlockSize),
	}
}

// GetStore returns the cache store
func (source *CacheDataSource) GetStore() *cache.Store {
	return source.store
}

// Open opens a read-through reader for the spec.
// If the cache cannot be opened, the reader reads upstream only.
func (source *CacheDataSource) Open(ctx context.Context, spec DataSpec) (*CacheReader, error) {
	logger := log.WithFields(log.Fields{
		"package":  "datasource",
		"struct":   "CacheDataSource",
		"function": "Open",
	})

	if spec.Position < 0 {
		return nil, xerrors.Errorf("negative position %d", spec.Position)
	}

	reader := &CacheReader{
		ctx:    ctx,
		source: source,
		spec:   spec,
		offset: spec.Position,
		end:    -1,
	}

	if spec.Length >= 0 {
		reader.end = spec.Position + spec.Length
	}

	handle, err := source.store.Open(spec.GetKey())
	if err != nil {
		logger.WithError(err).Warnf("failed to open cache entry for %q, reading upstream only", spec.GetKey())
		metrics.CounterForCacheWriteFailures.Inc()
		reader.bypass = true
	} else {
		reader.handle = handle
	}

	return reader, nil
}

// fillResult is the outcome of one upstream fetch shared by all waiting readers
type fillResult struct {
	start     int64
	data      []byte
	fromCache bool
}

// fill fetches [start, end) of the source and caches it.
// Concurrent fills of the same range on the store share one upstream request,
// whichever data source or prefetch job they come from.
func (source *CacheDataSource) fill(ctx context.Context, spec *DataSpec, handle *cache.EntryHandle, start int64, end int64) (*fillResult, bool, error) {
	logger := log.WithFields(log.Fields{
		"package":  "datasource",
		"struct":   "CacheDataSource",
		"function": "fill",
	})

	cacheFailed := false

	result, shared, err := handle.Fill(start, end, func() (interface{}, error) {
		// a fill of the same range may have finished after the caller missed the cache
		if span, ok, findErr := handle.FindSpan(start); findErr == nil && ok {
			cachedEnd := span.End
			if cachedEnd > end {
				cachedEnd = end
			}

			cached := make([]byte, cachedEnd-start)
			if _, cacheReadErr := handle.ReadAt(cached, start); cacheReadErr == nil {
				metrics.CounterForCacheHitBytes.Add(float64(len(cached)))
				return &fillResult{
					start:     start,
					data:      cached,
					fromCache: true,
				}, nil
			}
		}

		data, readErr := source.upstream.ReadAt(ctx, spec, start, end-start)
		if readErr != nil {
			return nil, readErr
		}

		metrics.CounterForCacheMissBytes.Add(float64(len(data)))

		if len(data) > 0 {
			_, writeErr := handle.WriteAt(data, start)
			if writeErr != nil {
				logger.WithError(writeErr).Warnf("failed to cache %q [%d, %d), reading upstream only", spec.GetKey(), start, start+int64(len(data)))
				metrics.CounterForCacheWriteFailures.Inc()
				cacheFailed = true
			}
		}

		return &fillResult{
			start: start,
			data:  data,
		}, nil
	})
	if err != nil {
		return nil, false, err
	}

	if shared {
		logger.Debugf("shared upstream fill of %q [%d, %d)", spec.GetKey(), start, end)
	}

	return result.(*fillResult), cacheFailed, nil
}

// CacheReader is a read-through reader of a media source
type CacheReader struct {
	ctx    context.Context
	source *CacheDataSource
	spec   DataSpec
	handle *cache.EntryHandle

	offset int64
	end    int64 // -1 means unbounded
	bypass bool

	// last upstream data, kept for data that was not cached
	lastFill *fillResult
}

// GetOffset returns the current read offset
func (reader *CacheReader) GetOffset() int64 {
	return reader.offset
}

// IsBypassingCache checks if the reader has fallen back to upstream-only reads
func (reader *CacheReader) IsBypassingCache() bool {
	return reader.bypass
}

// Read reads the next bytes of the source
func (reader *CacheReader) Read(buffer []byte) (int, error) {
	logger := log.WithFields(log.Fields{
		"package":  "datasource",
		"struct":   "CacheReader",
		"function": "Read",
	})

	if len(buffer) == 0 {
		return 0, nil
	}

	length := int64(len(buffer))
	if reader.end >= 0 {
		if reader.offset >= reader.end {
			return 0, io.EOF
		}
		if reader.offset+length > reader.end {
			length = reader.end - reader.offset
		}
	}

	if !reader.bypass {
		readLen, err := reader.readCached(buffer[:length])
		if err != nil {
			logger.WithError(err).Warnf("failed to read cache of %q, reading upstream only", reader.spec.GetKey())
			metrics.CounterForCacheWriteFailures.Inc()
			reader.switchToBypass()
		} else if readLen > 0 {
			reader.offset += int64(readLen)
			return readLen, nil
		}
	}

	if readLen := reader.readLastFill(buffer[:length]); readLen > 0 {
		reader.offset += int64(readLen)
		return readLen, nil
	}

	if reader.bypass {
		return reader.readUpstream(buffer[:length])
	}

	return reader.readFill(buffer[:length])
}

// readCached serves bytes from a cached span containing the offset. Returns 0 on a miss.
func (reader *CacheReader) readCached(buffer []byte) (int, error) {
	span, ok, err := reader.handle.FindSpan(reader.offset)
	if err != nil {
		return 0, err
	}

	if !ok {
		return 0, nil
	}

	length := int64(len(buffer))
	if span.End-reader.offset < length {
		length = span.End - reader.offset
	}

	readLen, err := reader.handle.ReadAt(buffer[:length], reader.offset)
	if err != nil {
		return 0, err
	}

	metrics.CounterForCacheHitBytes.Add(float64(readLen))
	return readLen, nil
}

// readLastFill serves bytes from the last upstream fetch
func (reader *CacheReader) readLastFill(buffer []byte) int {
	fill := reader.lastFill
	if fill == nil {
		return 0
	}

	if reader.offset < fill.start || reader.offset >= fill.start+int64(len(fill.data)) {
		return 0
	}

	return copy(buffer, fill.data[reader.offset-fill.start:])
}

// readFill fetches the uncached chunk around the offset
func (reader *CacheReader) readFill(buffer []byte) (int, error) {
	prevEnd, nextStart, err := reader.handle.Gap(reader.offset)
	if err != nil {
		reader.switchToBypass()
		return reader.readUpstream(buffer)
	}

	start, end := reader.source.blockHelper.GetFillRange(reader.offset, prevEnd, nextStart, reader.end)
	if end <= start {
		return 0, io.EOF
	}

	fill, cacheFailed, err := reader.source.fill(reader.ctx, &reader.spec, reader.handle, start, end)
	if err != nil {
		return 0, xerrors.Errorf("failed to read %q [%d, %d): %w", reader.spec.URL, start, end, err)
	}

	if cacheFailed {
		reader.switchToBypass()
	}

	reader.lastFill = fill

	readLen := reader.readLastFill(buffer)
	if readLen == 0 {
		if fill.fromCache {
			// the cached span ends before the offset
			return reader.readFill(buffer)
		}
		return 0, io.EOF
	}

	reader.offset += int64(readLen)
	return readLen, nil
}

// readUpstream reads directly from the upstream without caching
func (reader *CacheReader) readUpstream(buffer []byte) (int, error) {
	length := int64(BlockSize)
	if reader.end >= 0 && reader.end-reader.offset < length {
		length = reader.end - reader.offset
	}

	data, err := reader.source.upstream.ReadAt(reader.ctx, &reader.spec, reader.offset, length)
	if err != nil {
		return 0, xerrors.Errorf("failed to read %q at %d: %w", reader.spec.URL, reader.offset, err)
	}

	if len(data) == 0 {
		return 0, io.EOF
	}

	reader.lastFill = &fillResult{
		start: reader.offset,
		data:  data,
	}

	readLen := copy(buffer, data)
	reader.offset += int64(readLen)
	return readLen, nil
}

func (reader *CacheReader) switchToBypass() {
	reader.bypass = true
	if reader.handle != nil {
		reader.handle.Close()
		reader.handle = nil
	}
}

// Close releases the cache entry
func (reader *CacheReader) Close() error {
	if reader.handle != nil {
		err := reader.handle.Close()
		reader.handle = nil
		return err
	}
	return nil
}

// UpstreamReader reads a media source without caching
type UpstreamReader struct {
	ctx      context.Context
	upstream Upstream
	spec     DataSpec
	offset   int64
	end      int64
	lastFill *fillResult
}

// NewUpstreamReader creates a new UpstreamReader
func NewUpstreamReader(ctx context.Context, upstream Upstream, spec DataSpec) *UpstreamReader {
	end := int64(-1)
	if spec.Length >= 0 {
		end = spec.Position + spec.Length
	}

	return &UpstreamReader{
		ctx:      ctx,
		upstream: upstream,
		spec:     spec,
		offset:   spec.Position,
		end:      end,
	}
}

// Read reads the next bytes of the source
func (reader *UpstreamReader) Read(buffer []byte) (int, error) {
	if len(buffer) == 0 {
		return 0, nil
	}

	if reader.end >= 0 && reader.offset >= reader.end {
		return 0, io.EOF
	}

	fill := reader.lastFill
	if fill == nil || reader.offset < fill.start || reader.offset >= fill.start+int64(len(fill.data)) {
		length := int64(BlockSize)
		if reader.end >= 0 && reader.end-reader.offset < length {
			length = reader.end - reader.offset
		}

		data, err := reader.upstream.ReadAt(reader.ctx, &reader.spec, reader.offset, length)
		if err != nil {
			return 0, xerrors.Errorf("failed to read %q at %d: %w", reader.spec.URL, reader.offset, err)
		}

		if len(data) == 0 {
			return 0, io.EOF
		}

		fill = &fillResult{
			start: reader.offset,
			data:  data,
		}
		reader.lastFill = fill
	}

	readLen := copy(buffer, fill.data[reader.offset-fill.start:])
	if reader.end >= 0 && reader.offset+int64(readLen) > reader.end {
		readLen = int(reader.end - reader.offset)
	}

	reader.offset += int64(readLen)
	return readLen, nil
}

// Close does nothing
func (reader *UpstreamReader) Close() error {
	return nil
}
