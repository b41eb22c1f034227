// Package testing provides shared fixtures, mocks and database helpers
// for quantd's test suites.
package testing

import (
	"path/filepath"
	"testing"

	"github.com/quantleap/quantd/internal/database"
)

// NewTestDB opens a migrated throwaway database under t.TempDir and closes
// it when the test finishes. The name picks both the embedded schema and
// the production profile, so tests run under the same PRAGMA set as the
// server: "jobs" gets the ledger profile, "cache" the cache profile,
// everything else standard.
func NewTestDB(t *testing.T, name string) *database.DB {
	t.Helper()

	profile := database.ProfileStandard
	switch name {
	case "jobs":
		profile = database.ProfileLedger
	case "cache":
		profile = database.ProfileCache
	}

	db, err := database.New(database.Config{
		Path:    filepath.Join(t.TempDir(), name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		t.Fatalf("open test database %s: %v", name, err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := db.Migrate(); err != nil {
		t.Fatalf("migrate test database %s: %v", name, err)
	}
	return db
}
