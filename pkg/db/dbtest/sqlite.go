// Package dbtest opens throwaway SQLite record stores with the production
// schema applied.
package dbtest

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/angelmondragon/library-backend/pkg/config"
	"github.com/angelmondragon/library-backend/pkg/db"
	"github.com/angelmondragon/library-backend/pkg/migrate"
)

// NewSQLite returns a migrated in-memory database unique to the test. The pool
// is pinned to one connection so concurrent transactions queue instead of
// failing with SQLITE_LOCKED.
func NewSQLite(t testing.TB) *db.Client {
	t.Helper()

	dsn := "file:library_" + uuid.NewString() + "?mode=memory&cache=shared&_fk=1"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if _, err := migrate.Up(context.Background(), sqlDB, config.DBDriverSQLite); err != nil {
		t.Fatalf("apply migrations: %v", err)
	}
	return db.FromGorm(conn)
}
