// Package testing provides test database helpers shared across packages.
package testing

import (
	"database/sql"
	"fmt"
	"os"
	"testing"

	"github.com/kessanview/kessanview/internal/database"
	_ "modernc.org/sqlite"
)

// NewTestDB creates a file-backed SQLite database with the given schema
// applied, isolated per test. Returns the database and an idempotent cleanup
// function.
func NewTestDB(t *testing.T, name string, schema string) (*database.DB, func()) {
	t.Helper()

	tmpFile, err := os.CreateTemp("", fmt.Sprintf("test_%s_*.db", name))
	if err != nil {
		t.Fatalf("Failed to create temporary database file: %v", err)
	}
	tmpPath := tmpFile.Name()
	_ = tmpFile.Close()

	db, err := database.New(database.Config{
		Path:    tmpPath,
		Profile: database.ProfileStandard,
		Name:    name,
		Schema:  schema,
	})
	if err != nil {
		_ = os.Remove(tmpPath)
		t.Fatalf("Failed to create test database %s: %v", name, err)
	}

	return db, func() {
		if err := db.Close(); err != nil {
			t.Logf("Warning: Failed to close test database %s: %v", name, err)
		}
		if err := os.Remove(tmpPath); err != nil {
			t.Logf("Warning: Failed to remove temporary database file %s: %v", tmpPath, err)
		}
	}
}

// GetRawConnection returns the raw *sql.DB from a database.DB instance.
func GetRawConnection(db *database.DB) *sql.DB {
	return db.Conn()
}
