// Package storagetest provides an in-memory SQLite Datastore for tests.
package storagetest

import (
	"testing"

	"instagram-webhook/internal/storage"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// NewDatastore returns a migrated SQLStore backed by a private in-memory
// database that is closed when the test ends.
func NewDatastore(t testing.TB) *storage.SQLStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// every new connection would get its own empty :memory: database
	sqlDB.SetMaxOpenConns(1)

	if err := storage.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	store := storage.NewSQLStore(db, zap.NewNop())
	t.Cleanup(func() { _ = store.Close() })
	return store
}
