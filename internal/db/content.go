package db

import (
	"time"

	"gorm.io/datatypes"
)

// PsychoEducationContent 是心理教育内容，Content 为 Markdown。
type PsychoEducationContent struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Title             string    `gorm:"size:200;not null" json:"title"`
	Category          string    `gorm:"size:50;not null;index" json:"category"`
	Type              string    `gorm:"size:20;not null;default:article" json:"type"`
	Difficulty        string    `gorm:"size:20;default:beginner" json:"difficulty"`
	Content           string    `gorm:"type:text;not null" json:"content"`
	MediaURL          string    `json:"mediaUrl"`
	EstimatedReadTime int       `gorm:"default:0" json:"estimatedReadTime"`
	IsPublished       bool      `gorm:"index" json:"isPublished"`
	CreatedAt         time.Time `json:"createdAt"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// TableName 指定自定义表名。
func (PsychoEducationContent) TableName() string {
	return "psycho_education_content"
}

// EmergencyRoutine 是渴求发作时的应急流程，Steps 为有序字符串列表。
type EmergencyRoutine struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	Title       string         `gorm:"size:200;not null" json:"title"`
	Description string         `gorm:"type:text" json:"description"`
	Category    string         `gorm:"size:50" json:"category"`
	Steps       datatypes.JSON `json:"steps"`
	Duration    int            `gorm:"default:5" json:"duration"`
	IsActive    bool           `gorm:"not null" json:"isActive"`
	IsDefault   bool           `gorm:"default:false;index" json:"isDefault"`
	CreatedAt   time.Time      `json:"createdAt"`
	UpdatedAt   time.Time      `json:"updatedAt"`
}

// MediaFile 记录后台上传的媒体文件。
type MediaFile struct {
	ID           uint           `gorm:"primaryKey" json:"id"`
	Filename     string         `gorm:"size:255;uniqueIndex;not null" json:"filename"`
	OriginalName string         `gorm:"size:255" json:"originalName"`
	MimeType     string         `gorm:"size:100" json:"mimeType"`
	Size         int64          `json:"size"`
	URL          string         `json:"url"`
	Width        int            `json:"width"`
	Height       int            `json:"height"`
	Title        string         `gorm:"size:200" json:"title"`
	Tags         datatypes.JSON `json:"tags"`
	UploadedBy   *uint          `json:"uploadedBy"`
	CreatedAt    time.Time      `json:"createdAt"`
	UpdatedAt    time.Time      `json:"updatedAt"`
}
