package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/apaddicto/internal/db"
	"gorm.io/gorm"
)

var (
	ErrBeckAnalysisNotFound = errors.New("beck analysis not found")
	ErrStrategyNotFound     = errors.New("strategy not found")
)

var (
	strategyContexts = []string{"leisure", "home", "work"}
	strategyEfforts  = []string{"low", "moderate", "high"}
)

// BeckService 管理 Beck 认知分析栏
type BeckService struct {
	db *gorm.DB
}

// BeckInput 定义分析栏字段
type BeckInput struct {
	Situation         string
	AutomaticThoughts string
	Emotions          string
	EmotionIntensity  *int
	RationalResponse  string
	NewFeeling        string
	NewIntensity      *int
}

func NewBeckService(gdb *gorm.DB) *BeckService {
	return &BeckService{db: gdb}
}

func (s *BeckService) List(userID uint) ([]db.BeckAnalysis, error) {
	var items []db.BeckAnalysis
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list beck analyses: %w", err)
	}
	return items, nil
}

// Create 新建分析，情境与自动思维至少填写一项
func (s *BeckService) Create(userID uint, input BeckInput) (*db.BeckAnalysis, error) {
	errs := fieldErrors{}
	if strings.TrimSpace(input.Situation) == "" && strings.TrimSpace(input.AutomaticThoughts) == "" {
		errs.add("situation", "situation or automaticThoughts is required")
	}
	if !inScale(input.EmotionIntensity, 0, 10) {
		errs.add("emotionIntensity", "must be between 0 and 10")
	}
	if !inScale(input.NewIntensity, 0, 10) {
		errs.add("newIntensity", "must be between 0 and 10")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	item := db.BeckAnalysis{
		UserID:            userID,
		Situation:         strings.TrimSpace(input.Situation),
		AutomaticThoughts: strings.TrimSpace(input.AutomaticThoughts),
		Emotions:          strings.TrimSpace(input.Emotions),
		EmotionIntensity:  input.EmotionIntensity,
		RationalResponse:  strings.TrimSpace(input.RationalResponse),
		NewFeeling:        strings.TrimSpace(input.NewFeeling),
		NewIntensity:      input.NewIntensity,
	}
	if err := s.db.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("create beck analysis: %w", err)
	}
	return &item, nil
}

func (s *BeckService) Delete(userID, id uint) error {
	result := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&db.BeckAnalysis{})
	if result.Error != nil {
		return fmt.Errorf("delete beck analysis: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrBeckAnalysisNotFound
	}
	return nil
}

// StrategyService 管理患者的应对策略
type StrategyService struct {
	db *gorm.DB
}

// StrategyInput 用于创建与部分更新
type StrategyInput struct {
	Context       *string
	Exercise      *string
	Effort        *string
	Duration      *int
	CravingBefore *int
	CravingAfter  *int
}

func NewStrategyService(gdb *gorm.DB) *StrategyService {
	return &StrategyService{db: gdb}
}

func (s *StrategyService) List(userID uint) ([]db.AntiCravingStrategy, error) {
	var items []db.AntiCravingStrategy
	if err := s.db.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	return items, nil
}

// Create 新建策略，所有字段必填
func (s *StrategyService) Create(userID uint, input StrategyInput) (*db.AntiCravingStrategy, error) {
	errs := fieldErrors{}
	if input.Context == nil {
		errs.add("context", "is required")
	}
	if input.Exercise == nil || strings.TrimSpace(*input.Exercise) == "" {
		errs.add("exercise", "is required")
	}
	if input.Effort == nil {
		errs.add("effort", "is required")
	}
	if input.Duration == nil {
		errs.add("duration", "is required")
	}
	if input.CravingBefore == nil {
		errs.add("cravingBefore", "is required")
	}
	if input.CravingAfter == nil {
		errs.add("cravingAfter", "is required")
	}
	validateStrategyInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	item := db.AntiCravingStrategy{UserID: userID}
	applyStrategyInput(&item, input)
	if err := s.db.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("create strategy: %w", err)
	}
	return &item, nil
}

func (s *StrategyService) Update(userID, id uint, input StrategyInput) (*db.AntiCravingStrategy, error) {
	errs := fieldErrors{}
	if input.Exercise != nil && strings.TrimSpace(*input.Exercise) == "" {
		errs.add("exercise", "must not be empty")
	}
	validateStrategyInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var item db.AntiCravingStrategy
	if err := s.db.Where("id = ? AND user_id = ?", id, userID).First(&item).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStrategyNotFound
		}
		return nil, fmt.Errorf("find strategy: %w", err)
	}
	applyStrategyInput(&item, input)
	if err := s.db.Save(&item).Error; err != nil {
		return nil, fmt.Errorf("update strategy: %w", err)
	}
	return &item, nil
}

func (s *StrategyService) Delete(userID, id uint) error {
	result := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&db.AntiCravingStrategy{})
	if result.Error != nil {
		return fmt.Errorf("delete strategy: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrStrategyNotFound
	}
	return nil
}

func validateStrategyInput(input StrategyInput, errs fieldErrors) {
	if input.Context != nil && !oneOf(normalizeKey(*input.Context), strategyContexts...) {
		errs.add("context", "must be one of leisure, home, work")
	}
	if input.Effort != nil && !oneOf(normalizeKey(*input.Effort), strategyEfforts...) {
		errs.add("effort", "must be one of low, moderate, high")
	}
	if input.Duration != nil && (*input.Duration < 0 || *input.Duration > 600) {
		errs.add("duration", "must be between 0 and 600 minutes")
	}
	if !inScale(input.CravingBefore, 0, 10) {
		errs.add("cravingBefore", "must be between 0 and 10")
	}
	if !inScale(input.CravingAfter, 0, 10) {
		errs.add("cravingAfter", "must be between 0 and 10")
	}
}

func applyStrategyInput(item *db.AntiCravingStrategy, input StrategyInput) {
	if input.Context != nil {
		item.Context = normalizeKey(*input.Context)
	}
	if input.Exercise != nil {
		item.Exercise = strings.TrimSpace(*input.Exercise)
	}
	if input.Effort != nil {
		item.Effort = normalizeKey(*input.Effort)
	}
	if input.Duration != nil {
		item.Duration = *input.Duration
	}
	if input.CravingBefore != nil {
		item.CravingBefore = *input.CravingBefore
	}
	if input.CravingAfter != nil {
		item.CravingAfter = *input.CravingAfter
	}
}

// TimerService 记录计时练习
type TimerService struct {
	db  *gorm.DB
	now func() time.Time
}

// TimerInput 定义计时记录字段，Duration 以秒计
type TimerInput struct {
	ExerciseID  *uint
	Type        string
	Duration    *int
	CompletedAt *time.Time
}

func NewTimerService(gdb *gorm.DB) *TimerService {
	return &TimerService{db: gdb, now: time.Now}
}

func (s *TimerService) List(userID uint, limit int) ([]db.TimerSession, error) {
	var items []db.TimerSession
	query := s.db.Where("user_id = ?", userID).Order("completed_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list timer sessions: %w", err)
	}
	return items, nil
}

func (s *TimerService) Create(userID uint, input TimerInput) (*db.TimerSession, error) {
	if input.Duration == nil || *input.Duration <= 0 {
		return nil, invalidField("duration", "must be a positive number of seconds")
	}
	if input.ExerciseID != nil {
		if _, err := findExercise(s.db, *input.ExerciseID); err != nil {
			if errors.Is(err, ErrExerciseNotFound) {
				return nil, invalidField("exerciseId", "exercise does not exist")
			}
			return nil, err
		}
	}

	item := db.TimerSession{
		UserID:      userID,
		ExerciseID:  input.ExerciseID,
		Type:        normalizeKey(input.Type),
		Duration:    *input.Duration,
		CompletedAt: s.now().UTC(),
	}
	if item.Type == "" {
		item.Type = "exercise"
	}
	if input.CompletedAt != nil {
		item.CompletedAt = input.CompletedAt.UTC()
	}
	if err := s.db.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("create timer session: %w", err)
	}
	return &item, nil
}
