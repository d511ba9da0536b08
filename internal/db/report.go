package db

import "time"

// ProfessionalReport 是治疗师为患者撰写的报告，IsPrivate 时仅后台可见。
// 作者账号被删除后报告保留，TherapistID 置空。
type ProfessionalReport struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	TherapistID *uint     `gorm:"index" json:"therapistId"`
	Therapist   *User     `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	PatientID   uint      `gorm:"not null;index" json:"patientId"`
	Patient     *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ReportType  string    `gorm:"size:30;default:progress" json:"reportType"`
	Title       string    `gorm:"size:200;not null" json:"title"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	IsPrivate   bool      `gorm:"not null" json:"isPrivate"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PasswordResetToken 仅保存令牌的 sha256 摘要。
type PasswordResetToken struct {
	ID        uint       `gorm:"primaryKey"`
	UserID    uint       `gorm:"not null;index"`
	User      *User      `gorm:"constraint:OnDelete:CASCADE"`
	TokenHash string     `gorm:"size:64;uniqueIndex;not null"`
	ExpiresAt time.Time  `gorm:"not null"`
	UsedAt    *time.Time
	CreatedAt time.Time
}
