package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apaddicto/internal/db"
	"gorm.io/gorm"
)

// ErrRoutineNotFound 在应急流程不存在时返回
var ErrRoutineNotFound = errors.New("emergency routine not found")

// RoutineService 管理应急流程，至多一个流程为默认。
type RoutineService struct {
	db *gorm.DB
}

// RoutineInput 用于创建与部分更新
type RoutineInput struct {
	Title       *string
	Description *string
	Category    *string
	Steps       []string
	Duration    *int
	IsActive    *bool
	IsDefault   *bool
}

func NewRoutineService(gdb *gorm.DB) *RoutineService {
	return &RoutineService{db: gdb}
}

// List 返回流程，默认流程排在最前
func (s *RoutineService) List(includeInactive bool) ([]db.EmergencyRoutine, error) {
	var routines []db.EmergencyRoutine
	query := s.db.Model(&db.EmergencyRoutine{})
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("is_default DESC").Order("created_at DESC").Order("id DESC").Find(&routines).Error; err != nil {
		return nil, fmt.Errorf("list routines: %w", err)
	}
	return routines, nil
}

// Get 根据 ID 获取流程
func (s *RoutineService) Get(id uint) (*db.EmergencyRoutine, error) {
	var routine db.EmergencyRoutine
	if err := s.db.First(&routine, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoutineNotFound
		}
		return nil, fmt.Errorf("get routine: %w", err)
	}
	return &routine, nil
}

// Default 返回默认流程；没有默认时退回最早创建的启用流程。
func (s *RoutineService) Default() (*db.EmergencyRoutine, error) {
	var routine db.EmergencyRoutine
	err := s.db.Where("is_active = ?", true).
		Order("is_default DESC").Order("id ASC").
		First(&routine).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRoutineNotFound
		}
		return nil, fmt.Errorf("get default routine: %w", err)
	}
	return &routine, nil
}

// Create 新建流程
func (s *RoutineService) Create(input RoutineInput) (*db.EmergencyRoutine, error) {
	errs := fieldErrors{}
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "is required")
	}
	if len(trimNonEmpty(input.Steps)) == 0 {
		errs.add("steps", "at least one step is required")
	}
	validateRoutineInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	routine := db.EmergencyRoutine{Duration: 5, IsActive: true}
	applyRoutineInput(&routine, input)

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if routine.IsDefault {
			if err := clearDefaultRoutine(tx, 0); err != nil {
				return err
			}
		}
		if err := tx.Create(&routine).Error; err != nil {
			return fmt.Errorf("create routine: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &routine, nil
}

// Update 合并提交字段；设为默认时在同一事务中清除其他默认。
func (s *RoutineService) Update(id uint, input RoutineInput) (*db.EmergencyRoutine, error) {
	errs := fieldErrors{}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "must not be empty")
	}
	if input.Steps != nil && len(trimNonEmpty(input.Steps)) == 0 {
		errs.add("steps", "at least one step is required")
	}
	validateRoutineInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var routine db.EmergencyRoutine
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&routine, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrRoutineNotFound
			}
			return fmt.Errorf("find routine: %w", err)
		}
		applyRoutineInput(&routine, input)
		if routine.IsDefault {
			if err := clearDefaultRoutine(tx, routine.ID); err != nil {
				return err
			}
		}
		if err := tx.Save(&routine).Error; err != nil {
			return fmt.Errorf("update routine: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &routine, nil
}

// Delete 删除流程
func (s *RoutineService) Delete(id uint) error {
	result := s.db.Delete(&db.EmergencyRoutine{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete routine: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrRoutineNotFound
	}
	return nil
}

func clearDefaultRoutine(tx *gorm.DB, keepID uint) error {
	if err := tx.Model(&db.EmergencyRoutine{}).
		Where("is_default = ? AND id <> ?", true, keepID).
		Update("is_default", false).Error; err != nil {
		return fmt.Errorf("clear default routine: %w", err)
	}
	return nil
}

func validateRoutineInput(input RoutineInput, errs fieldErrors) {
	if input.Duration != nil && (*input.Duration < 1 || *input.Duration > 120) {
		errs.add("duration", "must be between 1 and 120 minutes")
	}
}

func applyRoutineInput(routine *db.EmergencyRoutine, input RoutineInput) {
	if input.Title != nil {
		routine.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		routine.Description = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		routine.Category = normalizeKey(*input.Category)
	}
	if input.Steps != nil {
		routine.Steps = db.ToJSON(trimNonEmpty(input.Steps))
	}
	if input.Duration != nil {
		routine.Duration = *input.Duration
	}
	if input.IsActive != nil {
		routine.IsActive = *input.IsActive
	}
	if input.IsDefault != nil {
		routine.IsDefault = *input.IsDefault
	}
}
