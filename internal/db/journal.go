package db

import (
	"time"

	"gorm.io/datatypes"
)

// CravingEntry 记录患者的渴求强度与触发因素。
type CravingEntry struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"not null;index" json:"userId"`
	User      *User          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Intensity int            `gorm:"not null" json:"intensity"`
	Triggers  datatypes.JSON `json:"triggers"`
	Emotions  datatypes.JSON `json:"emotions"`
	Notes     string         `gorm:"type:text" json:"notes"`
	CreatedAt time.Time      `gorm:"index" json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// BeckAnalysis 是 Beck 认知分析栏。
type BeckAnalysis struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	UserID            uint      `gorm:"not null;index" json:"userId"`
	User              *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Situation         string    `gorm:"type:text" json:"situation"`
	AutomaticThoughts string    `gorm:"type:text" json:"automaticThoughts"`
	Emotions          string    `gorm:"type:text" json:"emotions"`
	EmotionIntensity  *int      `json:"emotionIntensity"`
	RationalResponse  string    `gorm:"type:text" json:"rationalResponse"`
	NewFeeling        string    `gorm:"type:text" json:"newFeeling"`
	NewIntensity      *int      `json:"newIntensity"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// AntiCravingStrategy 记录患者尝试过的应对策略及其效果。
type AntiCravingStrategy struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"userId"`
	User          *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Context       string    `gorm:"size:20;not null" json:"context"`
	Exercise      string    `gorm:"type:text;not null" json:"exercise"`
	Effort        string    `gorm:"size:20;not null" json:"effort"`
	Duration      int       `gorm:"not null" json:"duration"`
	CravingBefore int       `gorm:"not null" json:"cravingBefore"`
	CravingAfter  int       `gorm:"not null" json:"cravingAfter"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// TimerSession 记录一次计时练习。Duration 以秒计。
type TimerSession struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"not null;index" json:"userId"`
	User        *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	ExerciseID  *uint     `gorm:"index" json:"exerciseId"`
	Exercise    *Exercise `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	Type        string    `gorm:"size:30;default:exercise" json:"type"`
	Duration    int       `gorm:"not null" json:"duration"`
	CompletedAt time.Time `json:"completedAt"`
	CreatedAt   time.Time `json:"createdAt"`
}
