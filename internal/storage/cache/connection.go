// Package cache holds the process-local Badger-backed caches described in
// §5/§9: derived data that is safe to lose on a directory wipe (settings
// snapshot, per-template signature vectors, query-plan answers, LLM
// completions), as opposed to the authoritative relations in
// internal/storage/sqlite.
package cache

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"github.com/docuflow/docuflow/internal/common"
)

// DB wraps a badgerhold.Store. Most caches here use badgerhold's typed
// Find/Get API directly; the TTL-bearing caches (QueryCache, LLMCache)
// drop to the underlying *badger.DB for Entry.WithTTL.
type DB struct {
	store  *badgerhold.Store
	logger arbor.ILogger
	config *common.CacheConfig
}

// NewDB opens (or resets, in development) the Badger cache directory.
func NewDB(logger arbor.ILogger, config *common.CacheConfig) (*DB, error) {
	if config.ResetOnStartup {
		if _, err := os.Stat(config.Path); err == nil {
			logger.Debug().Str("path", config.Path).Msg("resetting cache directory")
			if err := os.RemoveAll(config.Path); err != nil {
				logger.Warn().Err(err).Str("path", config.Path).Msg("failed to delete cache directory")
			}
		}
	}

	if err := os.MkdirAll(filepath.Dir(config.Path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	options := badgerhold.DefaultOptions
	options.Dir = config.Path
	options.ValueDir = config.Path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache store: %w", err)
	}

	logger.Info().Str("path", config.Path).Msg("cache store initialized")
	return &DB{store: store, logger: logger, config: config}, nil
}

// Store exposes the badgerhold.Store for typed queries.
func (d *DB) Store() *badgerhold.Store { return d.store }

func (d *DB) Close() error {
	if d.store != nil {
		return d.store.Close()
	}
	return nil
}
