// Package store provides the SQLite persistence layer for acquisition jobs
// and their attempt log.
package store

import (
	"database/sql"
	"fmt"

	"github.com/hazyhaar/bellscout/dbopen"
)

// Store is the job database handle.
type Store struct {
	DB *sql.DB
}

// New applies the schema to an already opened database.
func New(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(Schema); err != nil {
		return nil, fmt.Errorf("acquire store: apply schema: %w", err)
	}
	return &Store{DB: db}, nil
}

// Open opens (or creates) a dedicated job database at path.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	db, err := dbopen.Open(path, append([]dbopen.Option{dbopen.WithMkdirAll(), dbopen.WithSchema(Schema)}, opts...)...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}
