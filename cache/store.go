package cache

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/commons"
	"github.com/BeamlakAschalew/flixquest-betterplayer/metrics"
	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	"github.com/dustin/go-humanize"
	"github.com/gofrs/flock"
	"github.com/hashicorp/golang-lru/simplelru"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
	"golang.org/x/xerrors"
)

const (
	indexFileName string = "index.db"
	lockFileName  string = ".lock"
	dataDirName   string = "data"
)

// Budget limits the size of the cache
type Budget struct {
	MaxTotalBytes   int64
	MaxPerFileBytes int64 // <= 0 means no per-file cap
}

// Stat is a snapshot of the cache usage
type Stat struct {
	Directory       string
	Entries         int
	TotalBytes      int64
	MaxTotalBytes   int64
	MaxPerFileBytes int64
}

var (
	storeRegistry      = map[string]*Store{} // key: cache directory
	storeRegistryMutex sync.RWMutex
)

// Acquire returns the cache store for the directory, creating it on the first call.
// A second call while the store is live returns the same store.
func Acquire(directory string, budget Budget) (*Store, error) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"function": "Acquire",
	})

	dir, err := filepath.Abs(directory)
	if err != nil {
		return nil, commons.NewCacheInitError(directory, err)
	}

	storeRegistryMutex.RLock()
	if store, ok := storeRegistry[dir]; ok {
		storeRegistryMutex.RUnlock()
		store.checkBudget(budget)
		return store, nil
	}
	storeRegistryMutex.RUnlock()

	storeRegistryMutex.Lock()
	defer storeRegistryMutex.Unlock()

	if store, ok := storeRegistry[dir]; ok {
		store.checkBudget(budget)
		return store, nil
	}

	store, err := newStore(dir, budget)
	if err != nil {
		logger.Errorf("%+v", err)
		return nil, err
	}

	storeRegistry[dir] = store
	logger.Infof("Acquired cache store at %s (max %s, per file %s)", dir, humanize.IBytes(uint64(budget.MaxTotalBytes)), humanize.IBytes(uint64(max64(budget.MaxPerFileBytes, 0))))
	return store, nil
}

// Release releases the cache store for the directory. No-op if there is none.
func Release(directory string) {
	dir, err := filepath.Abs(directory)
	if err != nil {
		return
	}

	storeRegistryMutex.RLock()
	store, ok := storeRegistry[dir]
	storeRegistryMutex.RUnlock()

	if ok {
		store.Release()
	}
}

// Store is a byte-budgeted disk cache keyed by content key
type Store struct {
	directory string
	dataDir   string
	budget    Budget

	index    *Index
	fileLock *flock.Flock

	entries   map[string]*entry // key: content key
	recency   *simplelru.LRU    // least recently used first
	totalSize int64
	reserved  int64
	closed    bool

	// upstream fills in flight, shared by all readers of the store
	fills singleflight.Group

	mutex sync.Mutex
}

func newStore(directory string, budget Budget) (*Store, error) {
	if budget.MaxTotalBytes <= 0 {
		return nil, commons.NewCacheInitError(directory, xerrors.Errorf("max total bytes must be positive"))
	}

	dataDir := filepath.Join(directory, dataDirName)
	err := os.MkdirAll(dataDir, 0o755)
	if err != nil {
		return nil, commons.NewCacheInitError(directory, err)
	}

	fileLock := flock.New(filepath.Join(directory, lockFileName))
	locked, err := fileLock.TryLock()
	if err != nil {
		return nil, commons.NewCacheInitError(directory, err)
	}
	if !locked {
		return nil, commons.NewCacheInitError(directory, xerrors.Errorf("cache directory is locked by another process"))
	}

	index, err := OpenIndex(filepath.Join(directory, indexFileName))
	if err != nil {
		fileLock.Unlock()
		return nil, commons.NewCacheInitError(directory, err)
	}

	recency, err := simplelru.NewLRU(math.MaxInt32, nil)
	if err != nil {
		index.Close()
		fileLock.Unlock()
		return nil, commons.NewCacheInitError(directory, err)
	}

	store := &Store{
		directory: directory,
		dataDir:   dataDir,
		budget:    budget,
		index:     index,
		fileLock:  fileLock,
		entries:   map[string]*entry{},
		recency:   recency,
	}

	err = store.load()
	if err != nil {
		index.Close()
		fileLock.Unlock()
		return nil, commons.NewCacheInitError(directory, err)
	}

	return store, nil
}

// load restores entries from the index in least recently used order and enforces the budget
func (store *Store) load() error {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "load",
	})

	entries, err := store.index.LoadAll()
	if err != nil {
		return err
	}

	sort.SliceStable(entries, func(i int, j int) bool {
		return entries[i].lastAccessTime.Before(entries[j].lastAccessTime)
	})

	for _, e := range entries {
		if _, statErr := os.Stat(filepath.Join(store.dataDir, e.fileName)); statErr != nil {
			logger.Warnf("dropping index record %q without data file", e.key)
			store.index.Delete(e.key)
			continue
		}

		store.entries[e.key] = e
		store.recency.Add(e.key, e)
		store.totalSize += e.size
	}

	// the budget may have shrunk since the last run
	if store.totalSize > store.budget.MaxTotalBytes {
		store.evict(store.totalSize-store.budget.MaxTotalBytes, "")
	}

	metrics.GaugeForCacheBytes.Set(float64(store.totalSize))
	logger.Infof("Loaded %d cache entries (%s) from %s", len(store.entries), humanize.IBytes(uint64(store.totalSize)), store.directory)
	return nil
}

// Release tears down the store. Calling it twice is a no-op.
func (store *Store) Release() {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "Release",
	})

	defer utils.StackTraceFromPanic(logger)

	storeRegistryMutex.Lock()
	if registered, ok := storeRegistry[store.directory]; ok && registered == store {
		delete(storeRegistry, store.directory)
	}
	storeRegistryMutex.Unlock()

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return
	}
	store.closed = true

	logger.Infof("Releasing cache store at %s", store.directory)

	for _, e := range store.entries {
		if e.file != nil {
			e.file.Close()
			e.file = nil
		}

		if e.size > 0 {
			err := store.index.Put(e)
			if err != nil {
				logger.WithError(err).Warnf("failed to persist cache entry %q", e.key)
			}
		}
	}

	err := store.index.Close()
	if err != nil {
		logger.WithError(err).Warn("failed to close cache index")
	}

	err = store.fileLock.Unlock()
	if err != nil {
		logger.WithError(err).Warn("failed to unlock cache directory")
	}

	store.entries = map[string]*entry{}
	store.recency.Purge()
}

// checkBudget reports a budget that differs from the live store's. The live budget is kept.
func (store *Store) checkBudget(budget Budget) {
	if budget == store.budget {
		return
	}

	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "checkBudget",
	})

	logger.Debugf("cache store at %s is live with max %s (per file %s), ignoring requested max %s (per file %s)",
		store.directory,
		humanize.IBytes(uint64(store.budget.MaxTotalBytes)), humanize.IBytes(uint64(max64(store.budget.MaxPerFileBytes, 0))),
		humanize.IBytes(uint64(max64(budget.MaxTotalBytes, 0))), humanize.IBytes(uint64(max64(budget.MaxPerFileBytes, 0))))
}

// GetDirectory returns the cache directory
func (store *Store) GetDirectory() string {
	return store.directory
}

// GetBudget returns the cache budget
func (store *Store) GetBudget() Budget {
	return store.budget
}

// Stat returns cache usage
func (store *Store) Stat() (Stat, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return Stat{}, commons.NewCacheClosedError(store.directory)
	}

	entries := 0
	for _, e := range store.entries {
		if e.size > 0 {
			entries++
		}
	}

	return Stat{
		Directory:       store.directory,
		Entries:         entries,
		TotalBytes:      store.totalSize,
		MaxTotalBytes:   store.budget.MaxTotalBytes,
		MaxPerFileBytes: store.budget.MaxPerFileBytes,
	}, nil
}

// GetEntryKeys returns the keys of all entries holding data
func (store *Store) GetEntryKeys() ([]string, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return nil, commons.NewCacheClosedError(store.directory)
	}

	keys := []string{}
	for _, key := range store.recency.Keys() {
		if strkey, ok := key.(string); ok {
			if e, ok := store.entries[strkey]; ok && e.size > 0 {
				keys = append(keys, strkey)
			}
		}
	}
	return keys, nil
}

// CachedBytes returns the number of cached bytes of key in [start, end)
func (store *Store) CachedBytes(key string, start int64, end int64) (int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return 0, commons.NewCacheClosedError(store.directory)
	}

	if e, ok := store.entries[key]; ok {
		return e.spans.covered(start, end), nil
	}
	return 0, nil
}

// Open pins the entry for key, creating an empty one if needed
func (store *Store) Open(key string) (*EntryHandle, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return nil, commons.NewCacheClosedError(store.directory)
	}

	e, ok := store.entries[key]
	if !ok {
		e = &entry{
			key:            key,
			fileName:       makeFileName(key),
			spans:          spanSet{},
			lastAccessTime: time.Now(),
		}
		store.entries[key] = e
	}

	e.pins++
	store.touch(e)

	return &EntryHandle{
		store: store,
		key:   key,
	}, nil
}

// Remove deletes the entry for key. Pinned entries are kept.
func (store *Store) Remove(key string) (bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return false, commons.NewCacheClosedError(store.directory)
	}

	e, ok := store.entries[key]
	if !ok || e.pins > 0 {
		return false, nil
	}

	store.removeEntry(e)
	metrics.GaugeForCacheBytes.Set(float64(store.totalSize))
	return true, nil
}

// Clear deletes all unpinned entries and returns the number of deleted entries
func (store *Store) Clear() (int, error) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "Clear",
	})

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return 0, commons.NewCacheClosedError(store.directory)
	}

	removed := 0
	skipped := 0
	for _, e := range store.entries {
		if e.pins > 0 {
			skipped++
			continue
		}

		store.removeEntry(e)
		removed++
	}

	metrics.GaugeForCacheBytes.Set(float64(store.totalSize))
	logger.Infof("Cleared %d cache entries, %d in use", removed, skipped)
	return removed, nil
}

func (store *Store) unpin(key string) error {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "unpin",
	})

	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return nil
	}

	e, ok := store.entries[key]
	if !ok {
		return nil
	}

	e.pins--
	if e.pins > 0 {
		return nil
	}
	e.pins = 0

	if e.file != nil {
		e.file.Close()
		e.file = nil
	}

	if e.size == 0 && e.reserved == 0 {
		// opened but nothing was written
		store.removeEntry(e)
		return nil
	}

	err := store.index.Put(e)
	if err != nil {
		logger.WithError(err).Warnf("failed to persist access time of %q", key)
	}
	e.persisted = true
	return nil
}

func (store *Store) spans(key string) ([]Span, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return nil, commons.NewCacheClosedError(store.directory)
	}

	if e, ok := store.entries[key]; ok {
		return e.spans.clone(), nil
	}
	return []Span{}, nil
}

func (store *Store) findSpan(key string, offset int64) (Span, bool, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return Span{}, false, commons.NewCacheClosedError(store.directory)
	}

	if e, ok := store.entries[key]; ok {
		span, found := e.spans.find(offset)
		return span, found, nil
	}
	return Span{}, false, nil
}

func (store *Store) gap(key string, offset int64) (int64, int64, error) {
	store.mutex.Lock()
	defer store.mutex.Unlock()

	if store.closed {
		return 0, -1, commons.NewCacheClosedError(store.directory)
	}

	if e, ok := store.entries[key]; ok {
		prev, next := e.spans.gap(offset)
		return prev, next, nil
	}
	return 0, -1, nil
}

func (store *Store) readAt(key string, buffer []byte, offset int64) (int, error) {
	store.mutex.Lock()

	if store.closed {
		store.mutex.Unlock()
		return 0, commons.NewCacheClosedError(store.directory)
	}

	e, ok := store.entries[key]
	if !ok {
		store.mutex.Unlock()
		return 0, xerrors.Errorf("cache entry %q not found", key)
	}

	end := offset + int64(len(buffer))
	if e.spans.covered(offset, end) != end-offset {
		store.mutex.Unlock()
		return 0, xerrors.Errorf("range [%d, %d) of %q is not cached", offset, end, key)
	}

	file, err := store.openFile(e)
	if err != nil {
		store.mutex.Unlock()
		return 0, err
	}

	store.touch(e)
	store.mutex.Unlock()

	// file I/O happens outside of the store lock
	return file.ReadAt(buffer, offset)
}

func (store *Store) writeAt(key string, data []byte, offset int64) (int, error) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "writeAt",
	})

	if len(data) == 0 {
		return 0, nil
	}

	store.mutex.Lock()

	if store.closed {
		store.mutex.Unlock()
		return 0, commons.NewCacheClosedError(store.directory)
	}

	e, ok := store.entries[key]
	if !ok {
		store.mutex.Unlock()
		return 0, xerrors.Errorf("cache entry %q is not open", key)
	}

	length := int64(len(data))
	if store.budget.MaxPerFileBytes > 0 {
		allowed := store.budget.MaxPerFileBytes - e.size - e.reserved
		length = e.spans.truncate(offset, length, allowed)
		if length <= 0 {
			store.mutex.Unlock()
			logger.Debugf("per-file cap reached for %q, not caching", key)
			return 0, nil
		}
	}

	newBytes := length - e.spans.covered(offset, offset+length)
	if newBytes > 0 {
		needed := store.totalSize + store.reserved + newBytes - store.budget.MaxTotalBytes
		if needed > 0 {
			store.evict(needed, key)
		}

		available := store.budget.MaxTotalBytes - store.totalSize - store.reserved
		if newBytes > available {
			store.mutex.Unlock()
			return 0, commons.NewCacheFullError(key, newBytes, available)
		}
	}

	e.reserved += newBytes
	store.reserved += newBytes

	file, err := store.openFile(e)
	if err != nil {
		e.reserved -= newBytes
		store.reserved -= newBytes
		store.mutex.Unlock()
		return 0, err
	}
	store.mutex.Unlock()

	// file I/O happens outside of the store lock
	_, writeErr := file.WriteAt(data[:length], offset)

	store.mutex.Lock()
	defer store.mutex.Unlock()

	e.reserved -= newBytes
	store.reserved -= newBytes

	if writeErr != nil {
		return 0, xerrors.Errorf("failed to write cache data for %q: %w", key, writeErr)
	}

	if store.closed {
		return 0, commons.NewCacheClosedError(store.directory)
	}

	var added int64
	e.spans, added = e.spans.add(offset, offset+length)
	e.size += added
	store.totalSize += added
	store.touch(e)

	err = store.index.Put(e)
	if err != nil {
		logger.WithError(err).Warnf("failed to persist cache entry %q", key)
	}
	e.persisted = true

	metrics.GaugeForCacheBytes.Set(float64(store.totalSize))
	return int(length), nil
}

// evict removes least recently used unpinned entries until at least needed bytes are freed.
// exceptKey is never evicted. Must be called with the mutex held.
func (store *Store) evict(needed int64, exceptKey string) int64 {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "evict",
	})

	var freed int64
	for _, key := range store.recency.Keys() {
		if freed >= needed {
			break
		}

		strkey, ok := key.(string)
		if !ok || strkey == exceptKey {
			continue
		}

		e, ok := store.entries[strkey]
		if !ok || e.pins > 0 || e.reserved > 0 || e.size == 0 {
			continue
		}

		logger.Debugf("evicting cache entry %q (%s)", e.key, humanize.IBytes(uint64(e.size)))
		freed += e.size
		store.removeEntry(e)
		metrics.CounterForCacheEvictions.Inc()
	}

	return freed
}

// removeEntry deletes the entry's data and index record. Must be called with the mutex held.
func (store *Store) removeEntry(e *entry) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Store",
		"function": "removeEntry",
	})

	if e.file != nil {
		e.file.Close()
		e.file = nil
	}

	err := os.Remove(filepath.Join(store.dataDir, e.fileName))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).Warnf("failed to remove cache data of %q", e.key)
	}

	if e.persisted {
		err = store.index.Delete(e.key)
		if err != nil {
			logger.WithError(err).Warnf("failed to remove index record of %q", e.key)
		}
	}

	store.totalSize -= e.size
	delete(store.entries, e.key)
	store.recency.Remove(e.key)
}

// touch marks the entry as most recently used. Must be called with the mutex held.
func (store *Store) touch(e *entry) {
	e.lastAccessTime = time.Now()
	store.recency.Add(e.key, e)
}

// openFile opens the data file of an entry. Must be called with the mutex held.
func (store *Store) openFile(e *entry) (*os.File, error) {
	if e.file != nil {
		return e.file, nil
	}

	file, err := os.OpenFile(filepath.Join(store.dataDir, e.fileName), os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, xerrors.Errorf("failed to open cache data file for %q: %w", e.key, err)
	}

	e.file = file
	return file, nil
}

func makeFileName(key string) string {
	hash := sha1.Sum([]byte(key))
	return hex.EncodeToString(hash[:]) + ".data"
}

func max64(a int64, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
