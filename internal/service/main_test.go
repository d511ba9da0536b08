package service

import (
	"fmt"
	"testing"
	"time"

	"github.com/apaddicto/internal/db"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Open(fmt.Sprintf("file:service-%d?mode=memory&cache=shared", time.Now().UnixNano()), true)
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	// 共享缓存的内存库在多连接事务下会出现表锁
	sqlDB.SetMaxOpenConns(1)
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() {
		sqlDB.Close()
	})
	return gdb
}

func seedUser(t *testing.T, gdb *gorm.DB, email, role string) db.User {
	t.Helper()
	hashed, err := hashPassword("password123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := db.User{Email: email, Password: hashed, Role: role, Level: 1, IsActive: true, InactivityThreshold: 30}
	if err := gdb.Create(&user).Error; err != nil {
		t.Fatalf("failed to seed user: %v", err)
	}
	return user
}

func seedExercise(t *testing.T, gdb *gorm.DB, title string, minutes int) db.Exercise {
	t.Helper()
	exercise := db.Exercise{
		Title:      title,
		Category:   "breathing",
		Difficulty: db.DifficultyBeginner,
		Duration:   minutes,
		IsActive:   true,
		MediaURLs:  db.ToJSON(nil),
		Tags:       db.ToJSON(nil),
	}
	if err := gdb.Create(&exercise).Error; err != nil {
		t.Fatalf("failed to seed exercise: %v", err)
	}
	return exercise
}

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func boolPtr(v bool) *bool { return &v }

func uintPtr(v uint) *uint { return &v }
