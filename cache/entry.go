package cache

import (
	"fmt"
	"os"
	"time"
)

// entry is a cached content, guarded by Store.mutex
type entry struct {
	key            string
	fileName       string
	spans          spanSet
	size           int64
	reserved       int64
	lastAccessTime time.Time
	pins           int
	file           *os.File
	persisted      bool
}

// EntryHandle is an open (pinned) cache entry. A pinned entry is never evicted.
type EntryHandle struct {
	store  *Store
	key    string
	closed bool
}

// GetKey returns the content key
func (handle *EntryHandle) GetKey() string {
	return handle.key
}

// Spans returns the cached spans of the entry
func (handle *EntryHandle) Spans() ([]Span, error) {
	return handle.store.spans(handle.key)
}

// FindSpan returns the cached span containing offset
func (handle *EntryHandle) FindSpan(offset int64) (Span, bool, error) {
	return handle.store.findSpan(handle.key, offset)
}

// Gap returns the uncached range around offset as [previous span end, next span start).
// next is -1 if no cached span follows.
func (handle *EntryHandle) Gap(offset int64) (int64, int64, error) {
	return handle.store.gap(handle.key, offset)
}

// ReadAt reads cached bytes. The range must be inside a cached span.
func (handle *EntryHandle) ReadAt(buffer []byte, offset int64) (int, error) {
	return handle.store.readAt(handle.key, buffer, offset)
}

// WriteAt caches data at offset and returns the number of leading bytes of data that
// were cached; the per-file cap may truncate it.
func (handle *EntryHandle) WriteAt(data []byte, offset int64) (int, error) {
	return handle.store.writeAt(handle.key, data, offset)
}

// Fill runs fetch for [start, end) of the entry. Concurrent fills of the same range
// through any handle of the store wait for one fetch and share its result.
func (handle *EntryHandle) Fill(start int64, end int64, fetch func() (interface{}, error)) (interface{}, bool, error) {
	fillKey := fmt.Sprintf("%s:%d-%d", handle.key, start, end)
	result, err, shared := handle.store.fills.Do(fillKey, fetch)
	return result, shared, err
}

// Close unpins the entry
func (handle *EntryHandle) Close() error {
	if handle.closed {
		return nil
	}
	handle.closed = true
	return handle.store.unpin(handle.key)
}
