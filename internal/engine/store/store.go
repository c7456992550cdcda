package store

import (
	"database/sql"

	"go.uber.org/zap"
)

// Store provides persistence for the entity-facet-relation graph.
type Store struct {
	db     *sql.DB
	logger *zap.Logger
}

// New creates a store over the given database connection.
func New(db *sql.DB, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{db: db, logger: logger}
}

// DB exposes the underlying connection for components that build their
// own queries (resolver, executor).
func (s *Store) DB() *sql.DB {
	return s.db
}
