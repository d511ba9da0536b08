package db

import (
	"errors"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const (
	RolePatient = "patient"
	RoleAdmin   = "admin"
)

// User 定义了用户模型
type User struct {
	ID                  uint       `gorm:"primaryKey" json:"id"`
	Email               string     `gorm:"size:255;uniqueIndex;not null" json:"email"`
	Password            string     `gorm:"not null" json:"-"`
	FirstName           string     `gorm:"size:100" json:"firstName"`
	LastName            string     `gorm:"size:100" json:"lastName"`
	ProfileImageURL     string     `json:"profileImageUrl"`
	Role                string     `gorm:"size:20;not null;default:patient;index" json:"role"`
	Level               int        `gorm:"default:1" json:"level"`
	Points              int        `gorm:"default:0" json:"points"`
	IsActive            bool       `gorm:"not null" json:"isActive"`
	LastLoginAt         *time.Time `json:"lastLoginAt"`
	InactivityThreshold int        `gorm:"default:30" json:"inactivityThreshold"`
	CreatedAt           time.Time  `json:"createdAt"`
	UpdatedAt           time.Time  `json:"updatedAt"`
}

// IsAdmin reports whether the user carries the admin role.
func (u User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// LevelForPoints derives the gamification level from accumulated points.
func LevelForPoints(points int) int {
	if points < 0 {
		points = 0
	}
	return points/100 + 1
}

// NormalizeEmail lower-cases and trims an address so that uniqueness holds
// regardless of how the client typed it.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// EnsureAdmin 存在性检查：若提供的邮箱与密码均非空，则确保存在一个 admin 账号。
// 已存在的同邮箱账号会被提升为 admin，但不会修改其密码。
func EnsureAdmin(gdb *gorm.DB, email, password string) error {
	email = NormalizeEmail(email)
	password = strings.TrimSpace(password)
	if email == "" || password == "" {
		return nil
	}

	if gdb == nil {
		return errors.New("database not initialized")
	}

	var existing User
	if err := gdb.Where("email = ?", email).First(&existing).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}

		hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			return err
		}

		return gdb.Create(&User{
			Email:    email,
			Password: string(hashed),
			Role:     RoleAdmin,
			Level:    1,
			IsActive: true,
		}).Error
	}

	if existing.Role == RoleAdmin && existing.IsActive {
		return nil
	}
	return gdb.Model(&existing).Updates(map[string]interface{}{"role": RoleAdmin, "is_active": true}).Error
}
