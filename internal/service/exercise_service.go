package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apaddicto/internal/db"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	// ErrExerciseNotFound 在练习不存在时返回
	ErrExerciseNotFound = errors.New("exercise not found")
	// ErrVariationNotFound 在变体不存在或不属于该练习时返回
	ErrVariationNotFound = errors.New("exercise variation not found")
)

// ExerciseCategories 列出允许的练习分类。
var ExerciseCategories = []string{
	"craving_reduction",
	"relaxation",
	"energy",
	"emotion_management",
	"strength",
	"cardio",
	"flexibility",
	"mindfulness",
	"breathing",
	"other",
}

var difficulties = []string{db.DifficultyBeginner, db.DifficultyIntermediate, db.DifficultyAdvanced}

// ExerciseService 负责练习、变体、资料库与评分。
type ExerciseService struct {
	db *gorm.DB
}

// ExerciseFilter 描述列表过滤条件
type ExerciseFilter struct {
	Category        string
	Difficulty      string
	Search          string
	IncludeInactive bool
}

// ExerciseInput 用于创建与部分更新，nil 字段表示未提交。
type ExerciseInput struct {
	Title        *string
	Description  *string
	Category     *string
	Difficulty   *string
	Duration     *int
	Instructions *string
	Benefits     *string
	ImageURL     *string
	VideoURL     *string
	AudioURL     *string
	MediaURLs    []string
	Tags         []string
	IsActive     *bool
}

// VariationInput 用于创建与部分更新变体。
type VariationInput struct {
	Type             *string
	Title            *string
	Description      *string
	Instructions     *string
	Difficulty       *string
	DurationOverride *int
	IsActive         *bool
}

// LibraryInput 描述资料库的可写字段。
type LibraryInput struct {
	GalleryURLs []string
	VideoURLs   []string
	Notes       *string
}

// NewExerciseService 构造 ExerciseService
func NewExerciseService(gdb *gorm.DB) *ExerciseService {
	return &ExerciseService{db: gdb}
}

// List 返回练习集合，默认只包含启用的练习
func (s *ExerciseService) List(filter ExerciseFilter) ([]db.Exercise, error) {
	var exercises []db.Exercise
	query := s.db.Model(&db.Exercise{})
	if !filter.IncludeInactive {
		query = query.Where("is_active = ?", true)
	}
	if category := normalizeKey(filter.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if difficulty := normalizeKey(filter.Difficulty); difficulty != "" {
		query = query.Where("difficulty = ?", difficulty)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&exercises).Error; err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	return exercises, nil
}

// Get 根据 ID 获取练习
func (s *ExerciseService) Get(id uint) (*db.Exercise, error) {
	return findExercise(s.db, id)
}

// GetVisible returns the exercise only when it is active, unless includeInactive.
func (s *ExerciseService) GetVisible(id uint, includeInactive bool) (*db.Exercise, error) {
	exercise, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !exercise.IsActive && !includeInactive {
		return nil, ErrExerciseNotFound
	}
	return exercise, nil
}

// Create 新建练习，title 与 category 必填。
func (s *ExerciseService) Create(input ExerciseInput) (*db.Exercise, error) {
	errs := fieldErrors{}
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "is required")
	}
	if input.Category == nil || strings.TrimSpace(*input.Category) == "" {
		errs.add("category", "is required")
	}
	validateExerciseInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	exercise := db.Exercise{
		Difficulty: db.DifficultyBeginner,
		Duration:   10,
		IsActive:   true,
		MediaURLs:  db.ToJSON([]string{}),
		Tags:       db.ToJSON([]string{}),
	}
	applyExerciseInput(&exercise, input)

	if err := s.db.Create(&exercise).Error; err != nil {
		return nil, fmt.Errorf("create exercise: %w", err)
	}
	return &exercise, nil
}

// Update 合并提交的字段；时长变化会刷新所有引用它的会话总时长。
func (s *ExerciseService) Update(id uint, input ExerciseInput) (*db.Exercise, error) {
	errs := fieldErrors{}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "must not be empty")
	}
	if input.Category != nil && strings.TrimSpace(*input.Category) == "" {
		errs.add("category", "must not be empty")
	}
	validateExerciseInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var exercise *db.Exercise
	err := s.db.Transaction(func(tx *gorm.DB) error {
		existing, err := findExercise(tx, id)
		if err != nil {
			return err
		}
		durationChanged := input.Duration != nil && *input.Duration != existing.Duration
		applyExerciseInput(existing, input)
		if err := tx.Save(existing).Error; err != nil {
			return fmt.Errorf("update exercise: %w", err)
		}
		if durationChanged {
			if err := recomputeSessionsUsingExercise(tx, id); err != nil {
				return err
			}
		}
		exercise = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return exercise, nil
}

// Delete 删除练习；变体、资料库、评分与会话元素随外键级联删除。
func (s *ExerciseService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if _, err := findExercise(tx, id); err != nil {
			return err
		}
		var sessionIDs []uint
		if err := tx.Model(&db.SessionElement{}).
			Where("exercise_id = ?", id).
			Distinct().Pluck("session_id", &sessionIDs).Error; err != nil {
			return fmt.Errorf("find affected sessions: %w", err)
		}
		for _, model := range []interface{}{&db.SessionElement{}, &db.ExerciseVariation{}, &db.ExerciseLibrary{}, &db.ExerciseRating{}} {
			if err := tx.Where("exercise_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("delete exercise dependents: %w", err)
			}
		}
		if err := tx.Model(&db.TimerSession{}).Where("exercise_id = ?", id).Update("exercise_id", nil).Error; err != nil {
			return fmt.Errorf("detach timer sessions: %w", err)
		}
		if err := tx.Delete(&db.Exercise{}, id).Error; err != nil {
			return fmt.Errorf("delete exercise: %w", err)
		}
		for _, sessionID := range sessionIDs {
			if err := renumberElements(tx, sessionID); err != nil {
				return err
			}
			if _, err := recomputeTotalDuration(tx, sessionID); err != nil {
				return err
			}
		}
		return nil
	})
}

// ListVariations 返回某练习的变体
func (s *ExerciseService) ListVariations(exerciseID uint, includeInactive bool) ([]db.ExerciseVariation, error) {
	if _, err := s.Get(exerciseID); err != nil {
		return nil, err
	}
	var variations []db.ExerciseVariation
	query := s.db.Where("exercise_id = ?", exerciseID)
	if !includeInactive {
		query = query.Where("is_active = ?", true)
	}
	if err := query.Order("id ASC").Find(&variations).Error; err != nil {
		return nil, fmt.Errorf("list variations: %w", err)
	}
	return variations, nil
}

// CreateVariation 为已存在的练习新建变体。
func (s *ExerciseService) CreateVariation(exerciseID uint, input VariationInput) (*db.ExerciseVariation, error) {
	errs := fieldErrors{}
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "is required")
	}
	if input.Type == nil {
		errs.add("type", "is required")
	}
	validateVariationInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}
	if _, err := s.Get(exerciseID); err != nil {
		return nil, err
	}

	variation := db.ExerciseVariation{ExerciseID: exerciseID, IsActive: true}
	applyVariationInput(&variation, input)
	if err := s.db.Create(&variation).Error; err != nil {
		return nil, fmt.Errorf("create variation: %w", err)
	}
	return &variation, nil
}

// GetVariation 根据 ID 获取变体
func (s *ExerciseService) GetVariation(id uint) (*db.ExerciseVariation, error) {
	var variation db.ExerciseVariation
	if err := s.db.First(&variation, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrVariationNotFound
		}
		return nil, fmt.Errorf("get variation: %w", err)
	}
	return &variation, nil
}

// UpdateVariation 合并变体字段；时长覆盖变化时刷新相关会话。
func (s *ExerciseService) UpdateVariation(id uint, input VariationInput) (*db.ExerciseVariation, error) {
	errs := fieldErrors{}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "must not be empty")
	}
	validateVariationInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var variation db.ExerciseVariation
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&variation, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVariationNotFound
			}
			return fmt.Errorf("find variation: %w", err)
		}
		applyVariationInput(&variation, input)
		if err := tx.Save(&variation).Error; err != nil {
			return fmt.Errorf("update variation: %w", err)
		}
		if input.DurationOverride != nil {
			return recomputeSessionsUsingVariation(tx, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &variation, nil
}

// DeleteVariation 删除变体，引用它的会话元素回退到练习本身。
func (s *ExerciseService) DeleteVariation(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var variation db.ExerciseVariation
		if err := tx.First(&variation, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrVariationNotFound
			}
			return fmt.Errorf("find variation: %w", err)
		}
		var sessionIDs []uint
		if err := tx.Model(&db.SessionElement{}).Where("variation_id = ?", id).
			Distinct().Pluck("session_id", &sessionIDs).Error; err != nil {
			return fmt.Errorf("find affected sessions: %w", err)
		}
		if err := tx.Model(&db.SessionElement{}).Where("variation_id = ?", id).
			Update("variation_id", nil).Error; err != nil {
			return fmt.Errorf("detach variation: %w", err)
		}
		if err := tx.Delete(&variation).Error; err != nil {
			return fmt.Errorf("delete variation: %w", err)
		}
		for _, sessionID := range sessionIDs {
			if _, err := recomputeTotalDuration(tx, sessionID); err != nil {
				return err
			}
		}
		return nil
	})
}

// GetLibrary 返回练习资料库，不存在时返回空白资料。
func (s *ExerciseService) GetLibrary(exerciseID uint) (*db.ExerciseLibrary, error) {
	if _, err := s.Get(exerciseID); err != nil {
		return nil, err
	}
	var library db.ExerciseLibrary
	if err := s.db.Where("exercise_id = ?", exerciseID).First(&library).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return &db.ExerciseLibrary{
				ExerciseID:  exerciseID,
				GalleryURLs: db.ToJSON([]string{}),
				VideoURLs:   db.ToJSON([]string{}),
			}, nil
		}
		return nil, fmt.Errorf("get library: %w", err)
	}
	return &library, nil
}

// UpsertLibrary 写入资料库，视频链接统一转换为可嵌入地址。
func (s *ExerciseService) UpsertLibrary(exerciseID uint, input LibraryInput) (*db.ExerciseLibrary, error) {
	if _, err := s.Get(exerciseID); err != nil {
		return nil, err
	}

	library, err := s.GetLibrary(exerciseID)
	if err != nil {
		return nil, err
	}
	if input.GalleryURLs != nil {
		library.GalleryURLs = db.ToJSON(cleanStrings(input.GalleryURLs))
	}
	if input.VideoURLs != nil {
		videos := cleanStrings(input.VideoURLs)
		for i, v := range videos {
			videos[i] = NormalizeVideoURL(v)
		}
		library.VideoURLs = db.ToJSON(videos)
	}
	if input.Notes != nil {
		library.Notes = strings.TrimSpace(*input.Notes)
	}
	if err := s.db.Save(library).Error; err != nil {
		return nil, fmt.Errorf("save library: %w", err)
	}
	return library, nil
}

// Rate 记录或更新患者评分，并在同一事务中刷新资料库的汇总。
func (s *ExerciseService) Rate(exerciseID, userID uint, score int, comment string) (*db.ExerciseRating, error) {
	if score < 1 || score > 5 {
		return nil, invalidField("score", "must be between 1 and 5")
	}
	if _, err := s.GetVisible(exerciseID, false); err != nil {
		return nil, err
	}

	rating := db.ExerciseRating{
		ExerciseID: exerciseID,
		UserID:     userID,
		Score:      score,
		Comment:    strings.TrimSpace(comment),
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "exercise_id"}, {Name: "user_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"score", "comment", "updated_at"}),
		}).Create(&rating).Error; err != nil {
			return fmt.Errorf("save rating: %w", err)
		}

		var agg struct {
			Average float64
			Count   int
		}
		if err := tx.Model(&db.ExerciseRating{}).
			Select("COALESCE(AVG(score), 0) AS average, COUNT(*) AS count").
			Where("exercise_id = ?", exerciseID).
			Scan(&agg).Error; err != nil {
			return fmt.Errorf("aggregate ratings: %w", err)
		}

		library := db.ExerciseLibrary{
			ExerciseID:    exerciseID,
			GalleryURLs:   db.ToJSON([]string{}),
			VideoURLs:     db.ToJSON([]string{}),
			RatingAverage: agg.Average,
			RatingCount:   agg.Count,
		}
		return tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "exercise_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"rating_average", "rating_count", "updated_at"}),
		}).Create(&library).Error
	})
	if err != nil {
		return nil, err
	}
	return &rating, nil
}

func findExercise(tx *gorm.DB, id uint) (*db.Exercise, error) {
	var exercise db.Exercise
	if err := tx.First(&exercise, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrExerciseNotFound
		}
		return nil, fmt.Errorf("get exercise: %w", err)
	}
	return &exercise, nil
}

func validateExerciseInput(input ExerciseInput, errs fieldErrors) {
	if input.Category != nil {
		if c := normalizeKey(*input.Category); c != "" && !oneOf(c, ExerciseCategories...) {
			errs.add("category", "must be one of "+strings.Join(ExerciseCategories, ", "))
		}
	}
	if input.Difficulty != nil && !oneOf(normalizeKey(*input.Difficulty), difficulties...) {
		errs.add("difficulty", "must be one of beginner, intermediate, advanced")
	}
	if input.Duration != nil && (*input.Duration < 1 || *input.Duration > 240) {
		errs.add("duration", "must be between 1 and 240 minutes")
	}
}

func applyExerciseInput(exercise *db.Exercise, input ExerciseInput) {
	if input.Title != nil {
		exercise.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		exercise.Description = strings.TrimSpace(*input.Description)
	}
	if input.Category != nil {
		exercise.Category = normalizeKey(*input.Category)
	}
	if input.Difficulty != nil {
		exercise.Difficulty = normalizeKey(*input.Difficulty)
	}
	if input.Duration != nil {
		exercise.Duration = *input.Duration
	}
	if input.Instructions != nil {
		exercise.Instructions = strings.TrimSpace(*input.Instructions)
	}
	if input.Benefits != nil {
		exercise.Benefits = strings.TrimSpace(*input.Benefits)
	}
	if input.ImageURL != nil {
		exercise.ImageURL = strings.TrimSpace(*input.ImageURL)
	}
	if input.VideoURL != nil {
		exercise.VideoURL = strings.TrimSpace(*input.VideoURL)
	}
	if input.AudioURL != nil {
		exercise.AudioURL = strings.TrimSpace(*input.AudioURL)
	}
	if input.MediaURLs != nil {
		exercise.MediaURLs = db.ToJSON(cleanStrings(input.MediaURLs))
	}
	if input.Tags != nil {
		exercise.Tags = db.ToJSON(cleanStrings(input.Tags))
	}
	if input.IsActive != nil {
		exercise.IsActive = *input.IsActive
	}
}

func validateVariationInput(input VariationInput, errs fieldErrors) {
	if input.Type != nil && !oneOf(normalizeKey(*input.Type), db.VariationSimplification, db.VariationComplexification) {
		errs.add("type", "must be one of simplification, complexification")
	}
	if input.Difficulty != nil && *input.Difficulty != "" && !oneOf(normalizeKey(*input.Difficulty), difficulties...) {
		errs.add("difficulty", "must be one of beginner, intermediate, advanced")
	}
	if input.DurationOverride != nil && *input.DurationOverride < 0 {
		errs.add("durationOverride", "must not be negative")
	}
}

func applyVariationInput(variation *db.ExerciseVariation, input VariationInput) {
	if input.Type != nil {
		variation.Type = normalizeKey(*input.Type)
	}
	if input.Title != nil {
		variation.Title = strings.TrimSpace(*input.Title)
	}
	if input.Description != nil {
		variation.Description = strings.TrimSpace(*input.Description)
	}
	if input.Instructions != nil {
		variation.Instructions = strings.TrimSpace(*input.Instructions)
	}
	if input.Difficulty != nil {
		variation.Difficulty = normalizeKey(*input.Difficulty)
	}
	if input.DurationOverride != nil {
		override := *input.DurationOverride
		if override == 0 {
			variation.DurationOverride = nil
		} else {
			variation.DurationOverride = &override
		}
	}
	if input.IsActive != nil {
		variation.IsActive = *input.IsActive
	}
}
