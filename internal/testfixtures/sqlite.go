package testfixtures

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/example/library-system/internal/persistence/sqldb"
)

// NewSQLiteStore opens a migrated SQLite store in a temporary directory and
// closes it when the test ends.
func NewSQLiteStore(tb testing.TB) *sqldb.Store {
	tb.Helper()

	path := filepath.Join(tb.TempDir(), "library.db")
	store, err := sqldb.Open(context.Background(), sqldb.DriverSQLite, path)
	if err != nil {
		tb.Fatalf("failed to open storage: %v", err)
	}
	tb.Cleanup(func() { _ = store.Close() })

	if err := store.Migrate(context.Background()); err != nil {
		tb.Fatalf("failed to migrate storage: %v", err)
	}
	return store
}
