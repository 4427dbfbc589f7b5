package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/tradepost-io/tradepost/internal/config"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Open establishes the database connection for the configured backend and
// verifies it with a ping. The returned handle is owned by the caller; close
// it on shutdown. A failed ping here is fatal by policy — the process must
// not serve traffic against a broken store.
func Open(cfg *config.Config) (*sql.DB, error) {
	var (
		db  *sql.DB
		err error
	)

	switch cfg.Database.Type {
	case "postgres":
		db, err = openPostgres(cfg)
	case "sqlite", "":
		db, err = openSQLite(cfg)
	default:
		return nil, fmt.Errorf("unsupported database type: %s", cfg.Database.Type)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Printf("[DB] connected (%s)", cfg.Database.Type)
	return db, nil
}

func openPostgres(cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.PostgresDSN())
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres connection: %w", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	if cfg.Database.ConnMaxLifetime != "" {
		if d, err := time.ParseDuration(cfg.Database.ConnMaxLifetime); err == nil {
			db.SetConnMaxLifetime(d)
		}
	}

	return db, nil
}

func openSQLite(cfg *config.Config) (*sql.DB, error) {
	// Foreign keys must be enabled per connection for the user->session
	// cascade to work.
	dsn := fmt.Sprintf("%s?_foreign_keys=on", cfg.Database.Path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite connection: %w", err)
	}

	// SQLite allows a single writer; keeping one connection avoids
	// SQLITE_BUSY under concurrent handlers.
	db.SetMaxOpenConns(1)

	return db, nil
}
