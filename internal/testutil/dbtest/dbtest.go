// Package dbtest opens in-memory SQLite databases for repository and usecase
// tests. The gorm repositories are dialect-agnostic, so the same code paths
// run against MySQL in production and SQLite here.
package dbtest

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"coopfund-backend/internal/adapter/repository/mysql"
	"coopfund-backend/internal/domain/uow"
	"coopfund-backend/internal/infrastructure/db"
)

// Open creates an in-memory database with the full schema migrated.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// one connection, or every pooled conn sees its own empty :memory: db
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("auto-migrate: %v", err)
	}
	return gdb
}

// NewUoW returns a real unit of work over a fresh in-memory database.
func NewUoW(t *testing.T) (uow.UnitOfWork, *gorm.DB) {
	t.Helper()
	gdb := Open(t)
	return mysql.NewGormUoW(gdb), gdb
}
