package database

import (
	"database/sql"
	"fmt"
	"log"
)

// Migration represents a single schema change.
type Migration struct {
	Version     int
	Description string
	SQL         string
}

// GetMigrations returns the ordered migrations for the given backend.
func GetMigrations(dbType string) []Migration {
	if dbType == "postgres" {
		return postgresMigrations()
	}
	return sqliteMigrations()
}

func postgresMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `CREATE TABLE IF NOT EXISTS users (
				id UUID PRIMARY KEY,
				email VARCHAR(255) UNIQUE NOT NULL,
				password_hash VARCHAR(255),
				first_name VARCHAR(100) NOT NULL DEFAULT '',
				last_name VARCHAR(100) NOT NULL DEFAULT '',
				role VARCHAR(20),
				social_provider VARCHAR(50),
				social_id VARCHAR(255),
				avatar TEXT,
				email_verified BOOLEAN NOT NULL DEFAULT FALSE,
				profile_setup BOOLEAN NOT NULL DEFAULT FALSE,
				active BOOLEAN NOT NULL DEFAULT TRUE,
				last_login TIMESTAMP WITH TIME ZONE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				UNIQUE (social_provider, social_id)
			)`,
		},
		{
			Version:     2,
			Description: "Create sessions table",
			SQL: `CREATE TABLE IF NOT EXISTS sessions (
				id UUID PRIMARY KEY,
				user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				token VARCHAR(512) UNIQUE NOT NULL,
				device_info VARCHAR(255) NOT NULL DEFAULT '',
				ip_address VARCHAR(64) NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT TRUE,
				created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
				expires_at TIMESTAMP WITH TIME ZONE NOT NULL,
				last_used_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
			)`,
		},
		{
			Version:     3,
			Description: "Index sessions by user",
			SQL:         `CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		},
	}
}

func sqliteMigrations() []Migration {
	return []Migration{
		{
			Version:     1,
			Description: "Create users table",
			SQL: `CREATE TABLE IF NOT EXISTS users (
				id TEXT PRIMARY KEY,
				email TEXT UNIQUE NOT NULL,
				password_hash TEXT,
				first_name TEXT NOT NULL DEFAULT '',
				last_name TEXT NOT NULL DEFAULT '',
				role TEXT,
				social_provider TEXT,
				social_id TEXT,
				avatar TEXT,
				email_verified BOOLEAN NOT NULL DEFAULT 0,
				profile_setup BOOLEAN NOT NULL DEFAULT 0,
				active BOOLEAN NOT NULL DEFAULT 1,
				last_login DATETIME,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				UNIQUE (social_provider, social_id)
			)`,
		},
		{
			Version:     2,
			Description: "Create sessions table",
			SQL: `CREATE TABLE IF NOT EXISTS sessions (
				id TEXT PRIMARY KEY,
				user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
				token TEXT UNIQUE NOT NULL,
				device_info TEXT NOT NULL DEFAULT '',
				ip_address TEXT NOT NULL DEFAULT '',
				user_agent TEXT NOT NULL DEFAULT '',
				active BOOLEAN NOT NULL DEFAULT 1,
				created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
				expires_at DATETIME NOT NULL,
				last_used_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
			)`,
		},
		{
			Version:     3,
			Description: "Index sessions by user",
			SQL:         `CREATE INDEX IF NOT EXISTS idx_sessions_user_id ON sessions(user_id)`,
		},
	}
}

// RunMigrations applies all pending migrations in order, tracking the
// applied versions in schema_migrations.
func RunMigrations(db *sql.DB, dbType string) error {
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations table: %w", err)
	}

	var current int
	if err := db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}

	for _, m := range GetMigrations(dbType) {
		if m.Version <= current {
			continue
		}

		log.Printf("[DB] applying migration %d: %s", m.Version, m.Description)
		if _, err := db.Exec(m.SQL); err != nil {
			return fmt.Errorf("migration %d (%s) failed: %w", m.Version, m.Description, err)
		}
		if _, err := db.Exec(`INSERT INTO schema_migrations (version) VALUES ($1)`, m.Version); err != nil {
			return fmt.Errorf("failed to record migration %d: %w", m.Version, err)
		}
	}

	return nil
}
