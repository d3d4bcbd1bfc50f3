package historycache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/dgraph-io/badger/v4"

	"fpsync/internal/device"
	"fpsync/internal/logging"
)

const (
	blobPrefix = "blob/"
	treePrefix = "tree/"
)

// BlobEntry is the parsed content of one record blob.
type BlobEntry struct {
	RecordID string                  `json:"record_id,omitempty"`
	Pairs    []device.IdentifierPair `json:"pairs,omitempty"`
	// Unparseable marks blobs that failed to decode so they are not retried.
	Unparseable bool `json:"unparseable,omitempty"`
}

// TreeEntry is one record file in a revision.
type TreeEntry struct {
	Path string `json:"path"`
	Blob string `json:"blob"`
}

// Stats summarizes cache contents and effectiveness for the current process.
type Stats struct {
	Dir        string `json:"dir,omitempty"`
	Persistent bool   `json:"persistent"`
	Blobs      int    `json:"blobs"`
	Trees      int    `json:"trees"`
	Hits       int64  `json:"hits"`
	Misses     int64  `json:"misses"`
}

// Cache is a badger-backed content-addressed store. It is safe for
// concurrent use.
type Cache struct {
	db     *badger.DB
	dir    string
	logger *slog.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// Open opens the cache in dir, or an in-memory cache when dir is empty.
func Open(dir string, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "historycache")

	var opts badger.Options
	if dir == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", dir, err)
		}
		opts = badger.DefaultOptions(dir).WithSyncWrites(false)
	}
	opts = opts.WithNumVersionsToKeep(1).WithLogger(&badgerLogger{logger: logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open history cache: %w", err)
	}
	return &Cache{db: db, dir: dir, logger: logger}, nil
}

// Close flushes and releases the database. Persistent caches get one value
// log GC pass first.
func (c *Cache) Close() error {
	if c == nil || c.db == nil {
		return nil
	}
	if c.dir != "" {
		if err := c.db.RunValueLogGC(0.5); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
			c.logger.Debug("history cache gc skipped", logging.Error(err))
		}
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// LookupBlob returns the parsed entry for a blob hash.
func (c *Cache) LookupBlob(hash string) (BlobEntry, bool) {
	var entry BlobEntry
	ok := c.get(blobPrefix+hash, &entry)
	return entry, ok
}

// StoreBlob records the parsed entry for a blob hash.
func (c *Cache) StoreBlob(hash string, entry BlobEntry) error {
	if hash == "" {
		return errors.New("blob hash cannot be empty")
	}
	return c.put(blobPrefix+hash, entry)
}

// LookupTree returns the record files of a corpus path at a revision.
func (c *Cache) LookupTree(revision, path string) ([]TreeEntry, bool) {
	var entries []TreeEntry
	ok := c.get(treeKey(revision, path), &entries)
	return entries, ok
}

// StoreTree records the record files of a corpus path at a revision.
func (c *Cache) StoreTree(revision, path string, entries []TreeEntry) error {
	if revision == "" {
		return errors.New("revision cannot be empty")
	}
	if entries == nil {
		entries = []TreeEntry{}
	}
	return c.put(treeKey(revision, path), entries)
}

// Stats counts entries by kind.
func (c *Cache) Stats() (Stats, error) {
	stats := Stats{
		Dir:        c.dir,
		Persistent: c.dir != "",
		Hits:       c.hits.Load(),
		Misses:     c.misses.Load(),
	}
	var err error
	if stats.Blobs, err = c.countPrefix(blobPrefix); err != nil {
		return stats, err
	}
	if stats.Trees, err = c.countPrefix(treePrefix); err != nil {
		return stats, err
	}
	return stats, nil
}

// Clear removes every entry.
func (c *Cache) Clear() error {
	if err := c.db.DropAll(); err != nil {
		return fmt.Errorf("clear history cache: %w", err)
	}
	c.logger.Debug("cleared history cache")
	return nil
}

func (c *Cache) get(key string, out any) bool {
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, out)
		})
	})
	if err != nil {
		c.misses.Add(1)
		if !errors.Is(err, badger.ErrKeyNotFound) {
			c.logger.Warn("history cache read failed",
				logging.String(logging.FieldEventType, "historycache_read_failed"),
				logging.String("key", key),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "run fpsync cache clear if this repeats"),
				logging.String(logging.FieldImpact, "object will be re-read from git"))
		}
		return false
	}
	c.hits.Add(1)
	return true
}

func (c *Cache) put(key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}
	if err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	}); err != nil {
		return fmt.Errorf("write cache entry: %w", err)
	}
	return nil
}

func (c *Cache) countPrefix(prefix string) (int, error) {
	count := 0
	err := c.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return count, nil
}

func treeKey(revision, path string) string {
	return treePrefix + revision + "/" + path
}

// badgerLogger routes badger's internal logging through slog at debug level
// except for errors and warnings.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...any) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...any) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...any) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
