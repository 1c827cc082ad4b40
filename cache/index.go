package cache

import (
	"encoding/json"
	"time"

	"github.com/BeamlakAschalew/flixquest-betterplayer/utils"
	log "github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
	"golang.org/x/xerrors"
)

var (
	bucketEntries = []byte("entries")
)

// indexRecord is the persisted form of a cache entry
type indexRecord struct {
	Key        string `json:"key"`
	File       string `json:"file"`
	Spans      []Span `json:"spans"`
	Size       int64  `json:"size"`
	LastAccess string `json:"last_access"`
}

// Index persists cache entries keyed by content key
type Index struct {
	path string
	db   *bolt.DB
}

// OpenIndex opens or creates the index database
func OpenIndex(path string) (*Index, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, xerrors.Errorf("failed to open cache index %q: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, bucketErr := tx.CreateBucketIfNotExists(bucketEntries)
		return bucketErr
	})
	if err != nil {
		db.Close()
		return nil, xerrors.Errorf("failed to create cache index bucket: %w", err)
	}

	return &Index{
		path: path,
		db:   db,
	}, nil
}

// Close closes the index database
func (index *Index) Close() error {
	if index.db != nil {
		err := index.db.Close()
		index.db = nil
		return err
	}
	return nil
}

// Put stores the entry
func (index *Index) Put(e *entry) error {
	record := indexRecord{
		Key:        e.key,
		File:       e.fileName,
		Spans:      e.spans.clone(),
		Size:       e.size,
		LastAccess: utils.MakeTimeToString(e.lastAccessTime),
	}

	data, err := json.Marshal(record)
	if err != nil {
		return xerrors.Errorf("failed to marshal index record for %q: %w", e.key, err)
	}

	return index.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(e.key), data)
	})
}

// Delete removes the entry
func (index *Index) Delete(key string) error {
	return index.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(key))
	})
}

// LoadAll reads all persisted entries. Unreadable records are skipped.
func (index *Index) LoadAll() ([]*entry, error) {
	logger := log.WithFields(log.Fields{
		"package":  "cache",
		"struct":   "Index",
		"function": "LoadAll",
	})

	entries := []*entry{}
	err := index.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).ForEach(func(k []byte, v []byte) error {
			record := indexRecord{}
			jsonErr := json.Unmarshal(v, &record)
			if jsonErr != nil {
				logger.WithError(jsonErr).Warnf("skipping unreadable index record %q", string(k))
				return nil
			}

			lastAccess, timeErr := utils.ParseTime(record.LastAccess)
			if timeErr != nil {
				lastAccess = time.Time{}
			}

			spans := spanSet{}
			var size int64
			for _, span := range record.Spans {
				var added int64
				spans, added = spans.add(span.Start, span.End)
				size += added
			}

			entries = append(entries, &entry{
				key:            record.Key,
				fileName:       record.File,
				spans:          spans,
				size:           size,
				lastAccessTime: lastAccess,
				persisted:      true,
			})
			return nil
		})
	})
	if err != nil {
		return nil, xerrors.Errorf("failed to load cache index %q: %w", index.path, err)
	}

	return entries, nil
}
