// Package store owns all database access for users and sessions. The Store
// is constructed once in main with an open *sql.DB and passed to the
// components that need it; there is no package-level connection.
package store

import (
	"database/sql"
	"errors"
	"time"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"
)

var (
	// ErrNotFound is returned when a lookup matches no row.
	ErrNotFound = errors.New("record not found")
	// ErrConflict is returned when an insert or update violates a unique
	// constraint. The constraint itself is the correctness backstop for
	// races the pre-checks can lose.
	ErrConflict = errors.New("record already exists")
)

// Store handles all database operations.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// New creates a new store instance backed by db.
func New(db *sql.DB) *Store {
	return &Store{db: db, now: time.Now}
}

// isUniqueViolation reports whether err is a unique-constraint violation
// from either supported driver.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) {
		return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique ||
			sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}
