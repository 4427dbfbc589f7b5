package database

import (
	"path/filepath"
	"testing"

	"github.com/tradepost-io/tradepost/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := &config.Config{}
	cfg.Database.Type = "sqlite"
	cfg.Database.Path = filepath.Join(t.TempDir(), "test.db")
	return cfg
}

func TestOpenSQLite(t *testing.T) {
	db, err := Open(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	assert.NoError(t, db.Ping())
}

func TestOpenUnsupportedType(t *testing.T) {
	cfg := &config.Config{}
	cfg.Database.Type = "oracle"

	_, err := Open(cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported database type")
}

func TestRunMigrations(t *testing.T) {
	db, err := Open(testConfig(t))
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, RunMigrations(db, "sqlite"))

	// Running again must be a no-op.
	require.NoError(t, RunMigrations(db, "sqlite"))

	var version int
	require.NoError(t, db.QueryRow(`SELECT MAX(version) FROM schema_migrations`).Scan(&version))
	assert.Equal(t, 3, version)

	// Both tables exist and are queryable.
	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&count))
	assert.Equal(t, 0, count)
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count))
	assert.Equal(t, 0, count)
}

func TestUniqueEmailConstraint(t *testing.T) {
	db, err := Open(testConfig(t))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, RunMigrations(db, "sqlite"))

	insert := `INSERT INTO users (id, email, first_name, last_name) VALUES ($1, $2, $3, $4)`
	_, err = db.Exec(insert, "u1", "a@x.com", "A", "B")
	require.NoError(t, err)

	_, err = db.Exec(insert, "u2", "a@x.com", "C", "D")
	assert.Error(t, err, "second insert with the same email must violate the unique constraint")
}

func TestSessionCascadeDelete(t *testing.T) {
	db, err := Open(testConfig(t))
	require.NoError(t, err)
	defer db.Close()
	require.NoError(t, RunMigrations(db, "sqlite"))

	_, err = db.Exec(`INSERT INTO users (id, email) VALUES ('u1', 'a@x.com')`)
	require.NoError(t, err)
	_, err = db.Exec(`INSERT INTO sessions (id, user_id, token, expires_at) VALUES ('s1', 'u1', 't1', CURRENT_TIMESTAMP)`)
	require.NoError(t, err)

	_, err = db.Exec(`DELETE FROM users WHERE id = 'u1'`)
	require.NoError(t, err)

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&count))
	assert.Equal(t, 0, count, "deleting a user must cascade to its sessions")
}
