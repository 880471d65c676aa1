// Package testkit holds helpers shared by package tests.
package testkit

import (
	"fmt"
	"testing"

	"campaign-orchestrator/database"
	"campaign-orchestrator/internal/domain/users"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenDB returns a migrated in-memory database private to the test.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// catalog tests insert images for campaigns they never create
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	// one connection keeps the shared-cache database single-writer
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// SeedUser inserts a directory user and returns it.
func SeedUser(t testing.TB, db *gorm.DB, email string, verified bool, role string) users.User {
	t.Helper()

	u := users.User{
		Name:       "Test",
		Lastname:   "User",
		Username:   email,
		Email:      email,
		Role:       role,
		IsVerified: verified,
	}
	if err := db.Create(&u).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return u
}
