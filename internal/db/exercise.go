package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"

	VariationSimplification   = "simplification"
	VariationComplexification = "complexification"
)

// Exercise 定义了练习模板。Duration 以分钟计。
type Exercise struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Title        string         `gorm:"size:200;not null" json:"title"`
	Description  string         `gorm:"type:text" json:"description"`
	Category     string         `gorm:"size:50;not null;index" json:"category"`
	Difficulty   string         `gorm:"size:20;not null;default:beginner;index" json:"difficulty"`
	Duration     int            `gorm:"not null;default:10" json:"duration"`
	Instructions string         `gorm:"type:text" json:"instructions"`
	Benefits     string         `gorm:"type:text" json:"benefits"`
	ImageURL     string         `json:"imageUrl"`
	VideoURL     string         `json:"videoUrl"`
	AudioURL     string         `json:"audioUrl"`
	MediaURLs    datatypes.JSON `json:"mediaUrls"`
	Tags         datatypes.JSON `json:"tags"`
	IsActive     bool           `gorm:"index" json:"isActive"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}

// ExerciseVariation 是基础练习的简化或进阶版本。
type ExerciseVariation struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	ExerciseID       uint      `gorm:"not null;index" json:"exerciseId"`
	Exercise         *Exercise `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Type             string    `gorm:"size:20;not null" json:"type"`
	Title            string    `gorm:"size:200;not null" json:"title"`
	Description      string    `gorm:"type:text" json:"description"`
	Instructions     string    `gorm:"type:text" json:"instructions"`
	Difficulty       string    `gorm:"size:20" json:"difficulty"`
	DurationOverride *int      `json:"durationOverride"`
	IsActive         bool      `gorm:"not null" json:"isActive"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// ExerciseLibrary 保存与练习一一对应的扩展资料与评分汇总。
type ExerciseLibrary struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	ExerciseID    uint           `gorm:"not null;uniqueIndex" json:"exerciseId"`
	Exercise      *Exercise      `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	GalleryURLs   datatypes.JSON `json:"galleryUrls"`
	VideoURLs     datatypes.JSON `json:"videoUrls"`
	Notes         string         `gorm:"type:text" json:"notes"`
	RatingAverage float64        `gorm:"default:0" json:"ratingAverage"`
	RatingCount   int            `gorm:"default:0" json:"ratingCount"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     time.Time      `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (ExerciseLibrary) TableName() string {
	return "exercise_library"
}

// ExerciseRating 记录患者对练习的评分，(exercise_id, user_id) 唯一。
type ExerciseRating struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ExerciseID uint      `gorm:"not null;uniqueIndex:idx_exercise_rating_user" json:"exerciseId"`
	Exercise   *Exercise `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_exercise_rating_user;index" json:"userId"`
	User       *User     `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	Score      int       `gorm:"not null" json:"score"`
	Comment    string    `gorm:"type:text" json:"comment"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}
