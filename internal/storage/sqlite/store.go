package sqlite

import (
	"database/sql"

	"github.com/ternarybob/arbor"

	"github.com/docuflow/docuflow/internal/common"
	"github.com/docuflow/docuflow/internal/interfaces"
)

// Store implements interfaces.Store over a single SQLite connection. It is
// deliberately one struct rather than the teacher's per-entity manager
// split: every method here already maps 1:1 onto one of the eleven
// persisted relations, so there is no separate sub-interface to compose.
type Store struct {
	db     *SQLiteDB
	logger arbor.ILogger
}

var _ interfaces.Store = (*Store)(nil)

// NewStore opens the database and returns the Store implementation.
func NewStore(logger arbor.ILogger, config *common.SQLiteConfig) (*Store, error) {
	db, err := NewSQLiteDB(logger, config)
	if err != nil {
		return nil, err
	}
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying connection so sibling packages that need raw
// SQL access to tables Store doesn't own (internal/search's FTS5 tables)
// can share the same single-writer connection instead of opening a second
// one against the same file.
func (s *Store) DB() *sql.DB { return s.db.DB() }
