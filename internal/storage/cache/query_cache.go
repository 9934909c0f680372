package cache

import (
	"encoding/json"
	"fmt"
	"time"

	badgerv4 "github.com/dgraph-io/badger/v4"

	"github.com/docuflow/docuflow/internal/models"
)

const queryCachePrefix = "qc:"

// QueryCache stores QueryCacheEntry values keyed by Plan.CacheKey, dropping
// to the raw *badger.DB so entries expire via Badger's native TTL rather
// than an application-level sweep. QueryCacheMaxItems bounds staleness
// (a short TTL keeps the working set small) rather than being enforced as
// a hard item count, since Badger has no count-based LRU eviction to hook
// into.
type QueryCache struct {
	db  *DB
	ttl time.Duration
}

func NewQueryCache(db *DB) *QueryCache {
	return &QueryCache{db: db, ttl: time.Duration(db.config.QueryCacheTTLS) * time.Second}
}

func (c *QueryCache) Get(cacheKey string) (*models.QueryCacheEntry, bool) {
	var entry models.QueryCacheEntry
	err := c.db.Store().Badger().View(func(txn *badgerv4.Txn) error {
		item, err := txn.Get([]byte(queryCachePrefix + cacheKey))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, false
	}
	return &entry, true
}

func (c *QueryCache) Put(cacheKey string, entry models.QueryCacheEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal query cache entry: %w", err)
	}
	return c.db.Store().Badger().Update(func(txn *badgerv4.Txn) error {
		e := badgerv4.NewEntry([]byte(queryCachePrefix+cacheKey), payload).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
}
