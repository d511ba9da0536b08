package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apaddicto/internal/db"
	"gorm.io/gorm"
)

// ErrContentNotFound 在心理教育内容不存在时返回
var ErrContentNotFound = errors.New("psycho-education content not found")

var contentTypes = []string{"article", "video", "audio", "exercise"}

// ContentService 管理心理教育内容。
type ContentService struct {
	db *gorm.DB
}

// ContentFilter 描述列表过滤条件
type ContentFilter struct {
	Category      string
	Type          string
	Difficulty    string
	Search        string
	IncludeDrafts bool
}

// ContentInput 用于创建与部分更新
type ContentInput struct {
	Title             *string
	Category          *string
	Type              *string
	Difficulty        *string
	Content           *string
	MediaURL          *string
	EstimatedReadTime *int
	IsPublished       *bool
}

// RenderedContent 附带渲染后的 HTML。
type RenderedContent struct {
	db.PsychoEducationContent
	ContentHTML string `json:"contentHtml"`
}

func NewContentService(gdb *gorm.DB) *ContentService {
	return &ContentService{db: gdb}
}

// List 返回内容集合，默认只含已发布内容
func (s *ContentService) List(filter ContentFilter) ([]db.PsychoEducationContent, error) {
	var items []db.PsychoEducationContent
	query := s.db.Model(&db.PsychoEducationContent{})
	if !filter.IncludeDrafts {
		query = query.Where("is_published = ?", true)
	}
	if category := normalizeKey(filter.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if kind := normalizeKey(filter.Type); kind != "" {
		query = query.Where("type = ?", kind)
	}
	if difficulty := normalizeKey(filter.Difficulty); difficulty != "" {
		query = query.Where("difficulty = ?", difficulty)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(content) LIKE ?", like, like)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list content: %w", err)
	}
	return items, nil
}

// Get 根据 ID 获取内容
func (s *ContentService) Get(id uint) (*db.PsychoEducationContent, error) {
	var item db.PsychoEducationContent
	if err := s.db.First(&item, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrContentNotFound
		}
		return nil, fmt.Errorf("get content: %w", err)
	}
	return &item, nil
}

// GetRendered 返回内容及渲染后的 HTML；未发布内容仅在 includeDrafts 时可见。
func (s *ContentService) GetRendered(id uint, includeDrafts bool) (*RenderedContent, error) {
	item, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !item.IsPublished && !includeDrafts {
		return nil, ErrContentNotFound
	}
	html, err := RenderMarkdown(item.Content)
	if err != nil {
		return nil, err
	}
	return &RenderedContent{PsychoEducationContent: *item, ContentHTML: html}, nil
}

// Create 新建内容，title、category 与 content 必填
func (s *ContentService) Create(input ContentInput) (*db.PsychoEducationContent, error) {
	errs := fieldErrors{}
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "is required")
	}
	if input.Category == nil || strings.TrimSpace(*input.Category) == "" {
		errs.add("category", "is required")
	}
	if input.Content == nil || strings.TrimSpace(*input.Content) == "" {
		errs.add("content", "is required")
	}
	validateContentInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	item := db.PsychoEducationContent{
		Type:        "article",
		Difficulty:  db.DifficultyBeginner,
		IsPublished: true,
	}
	applyContentInput(&item, input)
	if item.EstimatedReadTime == 0 {
		item.EstimatedReadTime = estimateReadTime(item.Content)
	}
	if err := s.db.Create(&item).Error; err != nil {
		return nil, fmt.Errorf("create content: %w", err)
	}
	return &item, nil
}

// Update 合并提交字段
func (s *ContentService) Update(id uint, input ContentInput) (*db.PsychoEducationContent, error) {
	errs := fieldErrors{}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "must not be empty")
	}
	if input.Content != nil && strings.TrimSpace(*input.Content) == "" {
		errs.add("content", "must not be empty")
	}
	validateContentInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	item, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	applyContentInput(item, input)
	if input.Content != nil && input.EstimatedReadTime == nil {
		item.EstimatedReadTime = estimateReadTime(item.Content)
	}
	if err := s.db.Save(item).Error; err != nil {
		return nil, fmt.Errorf("update content: %w", err)
	}
	return item, nil
}

// Delete 删除内容
func (s *ContentService) Delete(id uint) error {
	result := s.db.Delete(&db.PsychoEducationContent{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete content: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrContentNotFound
	}
	return nil
}

func validateContentInput(input ContentInput, errs fieldErrors) {
	if input.Type != nil && !oneOf(normalizeKey(*input.Type), contentTypes...) {
		errs.add("type", "must be one of "+strings.Join(contentTypes, ", "))
	}
	if input.Difficulty != nil && !oneOf(normalizeKey(*input.Difficulty), difficulties...) {
		errs.add("difficulty", "must be one of beginner, intermediate, advanced")
	}
	if input.EstimatedReadTime != nil && *input.EstimatedReadTime < 0 {
		errs.add("estimatedReadTime", "must not be negative")
	}
}

func applyContentInput(item *db.PsychoEducationContent, input ContentInput) {
	if input.Title != nil {
		item.Title = strings.TrimSpace(*input.Title)
	}
	if input.Category != nil {
		item.Category = normalizeKey(*input.Category)
	}
	if input.Type != nil {
		item.Type = normalizeKey(*input.Type)
	}
	if input.Difficulty != nil {
		item.Difficulty = normalizeKey(*input.Difficulty)
	}
	if input.Content != nil {
		item.Content = *input.Content
	}
	if input.MediaURL != nil {
		item.MediaURL = NormalizeVideoURL(*input.MediaURL)
	}
	if input.EstimatedReadTime != nil {
		item.EstimatedReadTime = *input.EstimatedReadTime
	}
	if input.IsPublished != nil {
		item.IsPublished = *input.IsPublished
	}
}

// estimateReadTime 按每分钟 200 词估算阅读时长，至少 1 分钟。
func estimateReadTime(content string) int {
	words := len(strings.Fields(content))
	minutes := (words + 199) / 200
	if minutes < 1 {
		return 1
	}
	return minutes
}
