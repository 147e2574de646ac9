package testutils

import (
	"testing"

	"github.com/NikitaDmitryuk/telegram-leecher/internal/config"
	"github.com/NikitaDmitryuk/telegram-leecher/internal/database"
)

// TestDatabase returns an in-memory task history closed with the test.
func TestDatabase(t *testing.T) database.Database {
	t.Helper()
	db, err := database.NewDatabase(&config.Config{DBPath: ":memory:"})
	if err != nil {
		t.Fatalf("Failed to create test database: %v", err)
	}
	t.Cleanup(func() {
		if err := db.Close(); err != nil {
			t.Logf("Failed to close test database: %v", err)
		}
	})
	return db
}
