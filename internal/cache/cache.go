// Package cache provides the local snapshot cache for shopping lists.
//
// Entries are addressed by string keys but always belong to a list id. Two key
// shapes exist for every list: the local snapshot key (LOCAL_LIST_DATA_<id>)
// and the remote document path (/shopping-list-<id>.json). Callers evict a list
// once with InvalidateList and the cache fans out to every key registered for
// that id.
//
// Reads are served from memory first and promoted from BoltDB on a miss. With
// an empty Options.Path the cache runs memory-only.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"

	"github.com/vyrodovalexey/shoplist/internal/model"
)

// LocalKeyPrefix prefixes local list snapshot keys.
const LocalKeyPrefix = "LOCAL_LIST_DATA_"

var bucketEntries = []byte("entries")

// ErrEmptyListID is returned when an entry is stored without an owning list.
var ErrEmptyListID = errors.New("cache: list ID cannot be empty")

// Kind selects one of the canonical key shapes for a list.
type Kind int

// Key kinds.
const (
	KindLocal Kind = iota
	KindRemote
)

// LocalListKey returns the local snapshot key for a list.
func LocalListKey(listID string) string {
	return LocalKeyPrefix + listID
}

// RemoteListKey returns the remote document key for a list.
func RemoteListKey(listID string) string {
	return model.DocumentPath(listID)
}

// Key returns the canonical key of the given kind.
func Key(kind Kind, listID string) string {
	if kind == KindRemote {
		return RemoteListKey(listID)
	}
	return LocalListKey(listID)
}

// Options configures a Cache.
type Options struct {
	// Path of the BoltDB file. Empty means memory-only.
	Path string
	// TTL after which an entry is considered stale. Zero disables expiry.
	TTL time.Duration
	// Now overrides the clock, for tests.
	Now func() time.Time
}

// record is the persisted envelope of one entry.
type record struct {
	ListID   string          `json:"listId"`
	StoredAt time.Time       `json:"storedAt"`
	Data     json.RawMessage `json:"data"`
}

// Cache is a keyed, invalidatable snapshot store.
type Cache struct {
	db     *bolt.DB
	ttl    time.Duration
	now    func() time.Time
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]record
	// index maps list id to the set of keys holding data for it.
	index map[string]map[string]struct{}
}

// New opens a cache. Existing BoltDB entries are indexed so that list
// invalidation also reaches data written by a previous process.
func New(opts Options, logger *zap.Logger) (*Cache, error) {
	c := &Cache{
		ttl:     opts.TTL,
		now:     opts.Now,
		logger:  logger,
		entries: make(map[string]record),
		index:   make(map[string]map[string]struct{}),
	}
	if c.now == nil {
		c.now = time.Now
	}
	if opts.Path == "" {
		return c, nil
	}

	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory: %w", err)
	}

	db, err := bolt.Open(opts.Path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketEntries)
		if err != nil {
			return err
		}
		var unreadable [][]byte
		err = b.ForEach(func(k, v []byte) error {
			var rec record
			if err := json.Unmarshal(v, &rec); err != nil {
				unreadable = append(unreadable, append([]byte(nil), k...))
				return nil
			}
			c.addToIndex(rec.ListID, string(k))
			return nil
		})
		if err != nil {
			return err
		}
		// Unreadable entries are dropped rather than failing startup.
		for _, k := range unreadable {
			if err := b.Delete(k); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing cache db: %w", err)
	}

	c.db = db
	return c, nil
}

// Close releases the underlying database.
func (c *Cache) Close() error {
	if c.db != nil {
		return c.db.Close()
	}
	return nil
}

// Put stores value under key on behalf of listID.
func (c *Cache) Put(listID, key string, value any) error {
	if listID == "" {
		return ErrEmptyListID
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("encoding cache entry %s: %w", key, err)
	}
	rec := record{ListID: listID, StoredAt: c.now().UTC(), Data: data}

	c.mu.Lock()
	c.entries[key] = rec
	c.addToIndex(listID, key)
	c.mu.Unlock()

	if c.db == nil {
		return nil
	}

	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encoding cache record %s: %w", key, err)
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Put([]byte(key), raw)
	}); err != nil {
		return fmt.Errorf("writing cache entry %s: %w", key, err)
	}
	return nil
}

// PutList stores value under the canonical key of the given kind.
func (c *Cache) PutList(kind Kind, listID string, value any) error {
	return c.Put(listID, Key(kind, listID), value)
}

// Get decodes the entry under key into dest. It reports false on a miss, on a
// stale entry (which is evicted) or when the entry cannot be decoded.
func (c *Cache) Get(key string, dest any) bool {
	c.mu.RLock()
	rec, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		rec, ok = c.load(key)
		if !ok {
			return false
		}
	}

	if c.ttl > 0 && c.now().Sub(rec.StoredAt) > c.ttl {
		c.logger.Debug("cache entry expired", zap.String("key", key))
		c.ClearCache(key)
		return false
	}

	return json.Unmarshal(rec.Data, dest) == nil
}

// GetList reads the canonical entry of the given kind.
func (c *Cache) GetList(kind Kind, listID string, dest any) bool {
	return c.Get(Key(kind, listID), dest)
}

// ClearCache evicts a single entry. Evicting an absent key is a no-op.
func (c *Cache) ClearCache(key string) {
	c.mu.Lock()
	if rec, ok := c.entries[key]; ok {
		c.removeFromIndex(rec.ListID, key)
		delete(c.entries, key)
	} else {
		for listID, keys := range c.index {
			if _, ok := keys[key]; ok {
				c.removeFromIndex(listID, key)
				break
			}
		}
	}
	c.mu.Unlock()

	c.deletePersisted(key)
}

// InvalidateList evicts every entry held for listID, including both canonical
// keys even when they were never registered.
func (c *Cache) InvalidateList(listID string) {
	keys := map[string]struct{}{
		LocalListKey(listID):  {},
		RemoteListKey(listID): {},
	}

	c.mu.Lock()
	for key := range c.index[listID] {
		keys[key] = struct{}{}
	}
	for key := range keys {
		delete(c.entries, key)
	}
	delete(c.index, listID)
	c.mu.Unlock()

	for key := range keys {
		c.deletePersisted(key)
	}

	c.logger.Debug("cache invalidated for list",
		zap.String("list_id", listID),
		zap.Int("keys", len(keys)),
	)
}

// InvalidateAll wipes the whole cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[string]record)
	c.index = make(map[string]map[string]struct{})
	c.mu.Unlock()

	if c.db == nil {
		return
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket(bucketEntries); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		_, err := tx.CreateBucket(bucketEntries)
		return err
	}); err != nil {
		c.logger.Warn("failed to wipe cache db", zap.Error(err))
	}
}

// ListIDs returns the sorted ids of every list with at least one entry,
// including entries persisted by a previous process.
func (c *Cache) ListIDs() []string {
	c.mu.RLock()
	ids := make([]string, 0, len(c.index))
	for id := range c.index {
		ids = append(ids, id)
	}
	c.mu.RUnlock()

	sort.Strings(ids)
	return ids
}

// load promotes a persisted entry into memory.
func (c *Cache) load(key string) (record, bool) {
	if c.db == nil {
		return record{}, false
	}

	var raw []byte
	_ = c.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(bucketEntries).Get([]byte(key)); v != nil {
			raw = make([]byte, len(v))
			copy(raw, v)
		}
		return nil
	})
	if raw == nil {
		return record{}, false
	}

	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return record{}, false
	}

	c.mu.Lock()
	c.entries[key] = rec
	c.addToIndex(rec.ListID, key)
	c.mu.Unlock()

	return rec, true
}

func (c *Cache) deletePersisted(key string) {
	if c.db == nil {
		return
	}
	if err := c.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketEntries).Delete([]byte(key))
	}); err != nil {
		c.logger.Warn("failed to delete cache entry", zap.String("key", key), zap.Error(err))
	}
}

// addToIndex must be called with mu held (or before the cache is shared).
func (c *Cache) addToIndex(listID, key string) {
	keys, ok := c.index[listID]
	if !ok {
		keys = make(map[string]struct{})
		c.index[listID] = keys
	}
	keys[key] = struct{}{}
}

// removeFromIndex must be called with mu held.
func (c *Cache) removeFromIndex(listID, key string) {
	keys, ok := c.index[listID]
	if !ok {
		return
	}
	delete(keys, key)
	if len(keys) == 0 {
		delete(c.index, listID)
	}
}
