package db

import (
	"time"

	"gorm.io/datatypes"
)

const (
	SessionStatusDraft     = "draft"
	SessionStatusPublished = "published"
	SessionStatusArchived  = "archived"

	InstanceAssigned  = "assigned"
	InstanceStarted   = "started"
	InstanceDone      = "done"
	InstanceSkipped   = "skipped"
	InstanceAbandoned = "abandoned"
)

// CustomSession 是由管理员编排的练习序列。TotalDuration 以秒计，
// 在每次元素写入时于同一事务内重新计算。
type CustomSession struct {
	ID            uint             `gorm:"primaryKey" json:"id"`
	Title         string           `gorm:"size:200;not null" json:"title"`
	Description   string           `gorm:"type:text" json:"description"`
	Category      string           `gorm:"size:50;index" json:"category"`
	Difficulty    string           `gorm:"size:20;default:beginner" json:"difficulty"`
	CreatorID     *uint            `gorm:"index" json:"creatorId"`
	Creator       *User            `gorm:"constraint:OnDelete:SET NULL" json:"-"`
	IsPublic      bool             `gorm:"default:false" json:"isPublic"`
	IsTemplate    bool             `gorm:"default:false" json:"isTemplate"`
	Status        string           `gorm:"size:20;default:draft;index" json:"status"`
	TotalDuration int              `gorm:"default:0" json:"totalDuration"`
	Tags          datatypes.JSON   `json:"tags"`
	Elements      []SessionElement `gorm:"foreignKey:SessionID;constraint:OnDelete:CASCADE" json:"elements,omitempty"`
	CreatedAt     time.Time        `json:"createdAt"`
	UpdatedAt     time.Time        `json:"updatedAt"`
}

// SessionElement 是会话中的单个条目。Duration/RestTime 以秒计，
// Duration 为空时使用练习本身的时长。
type SessionElement struct {
	ID          uint               `gorm:"primaryKey" json:"id"`
	SessionID   uint               `gorm:"not null;index" json:"sessionId"`
	ExerciseID  uint               `gorm:"not null;index" json:"exerciseId"`
	Exercise    *Exercise          `gorm:"constraint:OnDelete:CASCADE" json:"exercise,omitempty"`
	VariationID *uint              `gorm:"index" json:"variationId"`
	Variation   *ExerciseVariation `gorm:"constraint:OnDelete:SET NULL" json:"variation,omitempty"`
	Order       int                `gorm:"column:element_order;not null" json:"order"`
	Duration    *int               `json:"duration"`
	Repetitions int                `gorm:"default:1" json:"repetitions"`
	RestTime    int                `gorm:"default:0" json:"restTime"`
	Notes       string             `gorm:"type:text" json:"notes"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// SessionInstance 表示某位患者对一个会话的一次执行（即 PatientSession）。
type SessionInstance struct {
	ID                uint           `gorm:"primaryKey" json:"id"`
	SessionID         uint           `gorm:"not null;index" json:"sessionId"`
	Session           *CustomSession `gorm:"constraint:OnDelete:CASCADE" json:"session,omitempty"`
	UserID            uint           `gorm:"not null;index" json:"userId"`
	User              *User          `gorm:"constraint:OnDelete:CASCADE" json:"-"`
	AssignedBy        *uint          `json:"assignedBy"`
	Status            string         `gorm:"size:20;not null;default:assigned;index" json:"status"`
	CompletedElements datatypes.JSON `json:"completedElements"`
	CravingBefore     *int           `json:"cravingBefore"`
	CravingAfter      *int           `json:"cravingAfter"`
	MoodBefore        *int           `json:"moodBefore"`
	MoodAfter         *int           `json:"moodAfter"`
	Feedback          string         `gorm:"type:text" json:"feedback"`
	DueDate           *time.Time     `json:"dueDate"`
	StartedAt         *time.Time     `json:"startedAt"`
	CompletedAt       *time.Time     `json:"completedAt"`
	CreatedAt         time.Time      `json:"createdAt"`
	UpdatedAt         time.Time      `json:"updatedAt"`
}

// IsTerminal reports whether no further transition is allowed.
func (s SessionInstance) IsTerminal() bool {
	switch s.Status {
	case InstanceDone, InstanceSkipped, InstanceAbandoned:
		return true
	}
	return false
}
