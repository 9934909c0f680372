package cache

import (
	"time"

	"github.com/timshannon/badgerhold/v4"
)

// settingRecord is the badgerhold record backing SettingsCache. Settings
// are read far more often than written (every Validator/Matching
// threshold lookup), so this cache exists purely to avoid round-tripping
// to SQLite on the hot path.
type settingRecord struct {
	Key      string `badgerhold:"key"`
	Value    string
	CachedAt time.Time
}

// SettingsCache is a process-local mirror of the Store's settings
// relation. It is not authoritative: on a cache miss the caller is
// expected to fall back to Store.GetSetting and call Put to populate it.
type SettingsCache struct {
	db *DB
}

func NewSettingsCache(db *DB) *SettingsCache {
	return &SettingsCache{db: db}
}

// Get returns the cached value, or ok=false on a miss.
func (c *SettingsCache) Get(key string) (string, bool) {
	var rec settingRecord
	if err := c.db.Store().Get(key, &rec); err != nil {
		return "", false
	}
	return rec.Value, true
}

// Put populates or refreshes a cached setting.
func (c *SettingsCache) Put(key, value string) error {
	return c.db.Store().Upsert(key, &settingRecord{Key: key, Value: value, CachedAt: time.Now()})
}

// Invalidate drops a cached setting, e.g. after Store.SetSetting writes a
// new value.
func (c *SettingsCache) Invalidate(key string) error {
	err := c.db.Store().Delete(key, &settingRecord{})
	if err == badgerhold.ErrNotFound {
		return nil
	}
	return err
}
