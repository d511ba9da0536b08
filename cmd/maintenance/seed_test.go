package main

import (
	"fmt"
	"testing"

	"github.com/apaddicto/internal/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupSeedTestDB(t *testing.T) {
	t.Helper()

	gdb, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	db.DB = gdb
	t.Cleanup(func() {
		sqlDB.Close()
		db.DB = nil
	})
}

func TestSeedDemoDataIsIdempotent(t *testing.T) {
	setupSeedTestDB(t)

	first, err := seedDemoData()
	if err != nil {
		t.Fatalf("first seed failed: %v", err)
	}
	if first.Exercises != len(demoExercises) || first.Content != len(demoContents) || first.Routines != len(demoRoutines) {
		t.Fatalf("unexpected first report: %+v", first)
	}

	second, err := seedDemoData()
	if err != nil {
		t.Fatalf("second seed failed: %v", err)
	}
	if second.Exercises != 0 || second.Skipped.Exercises != len(demoExercises) {
		t.Fatalf("expected exercises to be skipped, got %+v", second)
	}

	var defaults int64
	if err := db.DB.Model(&db.EmergencyRoutine{}).Where("is_default = ?", true).Count(&defaults).Error; err != nil {
		t.Fatalf("count defaults: %v", err)
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default routine, got %d", defaults)
	}

	var content db.PsychoEducationContent
	if err := db.DB.Where("title = ?", "Comprendre le craving").First(&content).Error; err != nil {
		t.Fatalf("load seeded content: %v", err)
	}
	if content.EstimatedReadTime < 1 || !content.IsPublished {
		t.Fatalf("unexpected seeded content: %+v", content)
	}
}

func TestCreateAdminRequiresFlags(t *testing.T) {
	setupSeedTestDB(t)

	adminEmail, adminPassword = "", ""
	if err := createAdminCmd.RunE(createAdminCmd, nil); err == nil {
		t.Fatalf("expected error without flags")
	}

	adminEmail, adminPassword = "Ops@Example.com", "ops-pass-123"
	t.Cleanup(func() { adminEmail, adminPassword = "", "" })
	if err := createAdminCmd.RunE(createAdminCmd, nil); err != nil {
		t.Fatalf("create admin: %v", err)
	}

	var user db.User
	if err := db.DB.Where("email = ?", "ops@example.com").First(&user).Error; err != nil {
		t.Fatalf("load admin: %v", err)
	}
	if user.Role != db.RoleAdmin {
		t.Fatalf("expected admin role, got %q", user.Role)
	}
}
