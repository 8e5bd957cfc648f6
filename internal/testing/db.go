// Package testing provides testing utilities and helpers for the shopkeeper project.
package testing

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3" // In-memory databases for repository tests
	"github.com/stretchr/testify/require"

	"github.com/aristath/shopkeeper/internal/database"
)

// NewTestDB creates a file-backed SQLite database (modernc driver, production pragmas)
// in a temporary directory and applies the shop schema. The database is closed when
// the test finishes.
func NewTestDB(t *testing.T) *database.DB {
	t.Helper()

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), "shop.db"),
		Profile: database.ProfileStandard,
		Name:    "shop",
	})
	require.NoError(t, err, "create test database")

	if err := db.Migrate(); err != nil {
		_ = db.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	t.Cleanup(func() {
		_ = db.Close()
		_ = os.Remove(db.Path())
	})
	return db
}

// NewMemoryDB opens an in-memory SQLite database through the mattn driver with the
// shop schema applied. The pool is pinned to one connection because every new
// :memory: connection would otherwise see an empty database.
func NewMemoryDB(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)

	require.NoError(t, database.ApplySchema(conn), "apply schema")

	t.Cleanup(func() { _ = conn.Close() })
	return conn
}
