package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	badgerv4 "github.com/dgraph-io/badger/v4"
)

const llmCachePrefix = "llm:"

// LLMCacheEntry is the cached completion for a given prompt, mirroring the
// cacheable-system-prefix contract described in SPEC_FULL.md §4.3: a hit
// here means the call never reaches the LLMClient at all.
type LLMCacheEntry struct {
	Text string `json:"text"`
}

// LLMCache is a short-TTL process-local cache of LLM completions, keyed by
// a hash of the full prompt (including the cacheable system prefix). This
// is separate from Anthropic's own prompt-cache (billing-level, server
// side); this cache avoids the network round-trip entirely for identical
// prompts issued within the TTL window (e.g. repeated TemplateMatcher
// candidate checks against the same document).
type LLMCache struct {
	db  *DB
	ttl time.Duration
}

func NewLLMCache(db *DB) *LLMCache {
	return &LLMCache{db: db, ttl: time.Duration(db.config.LLMCacheTTLS) * time.Second}
}

// Key derives a stable cache key from a prompt string.
func (c *LLMCache) Key(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

func (c *LLMCache) Get(key string) (LLMCacheEntry, bool) {
	var entry LLMCacheEntry
	err := c.db.Store().Badger().View(func(txn *badgerv4.Txn) error {
		item, err := txn.Get([]byte(llmCachePrefix + key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return LLMCacheEntry{}, false
	}
	return entry, true
}

func (c *LLMCache) Put(key string, entry LLMCacheEntry) error {
	payload, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal LLM cache entry: %w", err)
	}
	return c.db.Store().Badger().Update(func(txn *badgerv4.Txn) error {
		e := badgerv4.NewEntry([]byte(llmCachePrefix+key), payload).WithTTL(c.ttl)
		return txn.SetEntry(e)
	})
}
