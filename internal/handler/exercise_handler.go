package handler

import (
	"errors"
	"net/http"

	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
)

type exerciseRequest struct {
	Title        *string  `json:"title" binding:"omitempty,max=200"`
	Description  *string  `json:"description"`
	Category     *string  `json:"category" binding:"omitempty,max=50"`
	Difficulty   *string  `json:"difficulty" binding:"omitempty,oneof=beginner intermediate advanced"`
	Duration     *int     `json:"duration" binding:"omitempty,gt=0,lte=600"`
	Instructions *string  `json:"instructions"`
	Benefits     *string  `json:"benefits"`
	ImageURL     *string  `json:"imageUrl"`
	VideoURL     *string  `json:"videoUrl"`
	AudioURL     *string  `json:"audioUrl"`
	MediaURLs    []string `json:"mediaUrls"`
	Tags         []string `json:"tags"`
	IsActive     *bool    `json:"isActive"`
}

func (r exerciseRequest) toInput() service.ExerciseInput {
	return service.ExerciseInput{
		Title:        r.Title,
		Description:  r.Description,
		Category:     r.Category,
		Difficulty:   r.Difficulty,
		Duration:     r.Duration,
		Instructions: r.Instructions,
		Benefits:     r.Benefits,
		ImageURL:     r.ImageURL,
		VideoURL:     r.VideoURL,
		AudioURL:     r.AudioURL,
		MediaURLs:    r.MediaURLs,
		Tags:         r.Tags,
		IsActive:     r.IsActive,
	}
}

type variationRequest struct {
	Type             *string `json:"type" binding:"omitempty,oneof=simplification complexification"`
	Title            *string `json:"title" binding:"omitempty,max=200"`
	Description      *string `json:"description"`
	Instructions     *string `json:"instructions"`
	Difficulty       *string `json:"difficulty" binding:"omitempty,oneof=beginner intermediate advanced"`
	DurationOverride *int    `json:"durationOverride" binding:"omitempty,gt=0"`
	IsActive         *bool   `json:"isActive"`
}

func (r variationRequest) toInput() service.VariationInput {
	return service.VariationInput{
		Type:             r.Type,
		Title:            r.Title,
		Description:      r.Description,
		Instructions:     r.Instructions,
		Difficulty:       r.Difficulty,
		DurationOverride: r.DurationOverride,
		IsActive:         r.IsActive,
	}
}

type libraryRequest struct {
	GalleryURLs []string `json:"galleryUrls"`
	VideoURLs   []string `json:"videoUrls"`
	Notes       *string  `json:"notes"`
}

type ratingRequest struct {
	Score   int    `json:"score" binding:"required,gte=1,lte=5"`
	Comment string `json:"comment" binding:"max=2000"`
}

// includeInactive 仅管理员可通过 ?all=1 查看停用数据
func includeInactive(c *gin.Context) bool {
	principal, ok := CurrentPrincipal(c)
	return ok && principal.IsAdmin() && queryFlag(c, "all")
}

// ListExercises 返回练习列表，支持 category/difficulty/search 过滤
func (a *API) ListExercises(c *gin.Context) {
	a.listExercises(c, includeInactive(c))
}

// AdminListExercises 后台列表包含停用练习
func (a *API) AdminListExercises(c *gin.Context) {
	a.listExercises(c, true)
}

func (a *API) listExercises(c *gin.Context, withInactive bool) {
	exercises, err := a.exercises.List(service.ExerciseFilter{
		Category:        c.Query("category"),
		Difficulty:      c.Query("difficulty"),
		Search:          c.Query("search"),
		IncludeInactive: withInactive,
	})
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exercises": exercises})
}

// GetExercise 获取单个练习
func (a *API) GetExercise(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	exercise, err := a.exercises.GetVisible(id, includeInactive(c))
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exercise": exercise})
}

// AdminGetExercise 后台获取单个练习，包括停用的
func (a *API) AdminGetExercise(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	exercise, err := a.exercises.Get(id)
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"exercise": exercise})
}

// CreateExercise 创建练习
func (a *API) CreateExercise(c *gin.Context) {
	var req exerciseRequest
	if !bindJSON(c, &req) {
		return
	}
	exercise, err := a.exercises.Create(req.toInput())
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "exercise created", "exercise": exercise})
}

// UpdateExercise 部分更新练习
func (a *API) UpdateExercise(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req exerciseRequest
	if !bindJSON(c, &req) {
		return
	}
	exercise, err := a.exercises.Update(id, req.toInput())
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "exercise updated", "exercise": exercise})
}

// DeleteExercise 删除练习及其变体、资料与评分
func (a *API) DeleteExercise(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.exercises.Delete(id); err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "exercise deleted"})
}

// ListVariations 返回练习的变体
func (a *API) ListVariations(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	withInactive := includeInactive(c)
	if _, err := a.exercises.GetVisible(id, withInactive); err != nil {
		a.handleExerciseError(c, err)
		return
	}
	variations, err := a.exercises.ListVariations(id, withInactive)
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"variations": variations})
}

// CreateVariation 为练习新增变体
func (a *API) CreateVariation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req variationRequest
	if !bindJSON(c, &req) {
		return
	}
	variation, err := a.exercises.CreateVariation(id, req.toInput())
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "variation created", "variation": variation})
}

// UpdateVariation 部分更新变体
func (a *API) UpdateVariation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req variationRequest
	if !bindJSON(c, &req) {
		return
	}
	variation, err := a.exercises.UpdateVariation(id, req.toInput())
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "variation updated", "variation": variation})
}

// DeleteVariation 删除变体
func (a *API) DeleteVariation(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.exercises.DeleteVariation(id); err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "variation deleted"})
}

// GetExerciseLibrary 返回练习资料库
func (a *API) GetExerciseLibrary(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	library, err := a.exercises.GetLibrary(id)
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"library": library})
}

// UpdateExerciseLibrary 写入练习资料库
func (a *API) UpdateExerciseLibrary(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req libraryRequest
	if !bindJSON(c, &req) {
		return
	}
	library, err := a.exercises.UpsertLibrary(id, service.LibraryInput{
		GalleryURLs: req.GalleryURLs,
		VideoURLs:   req.VideoURLs,
		Notes:       req.Notes,
	})
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "library updated", "library": library})
}

// RateExercise 记录当前用户的评分
func (a *API) RateExercise(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req ratingRequest
	if !bindJSON(c, &req) {
		return
	}
	rating, err := a.exercises.Rate(id, mustPrincipal(c).UserID, req.Score, req.Comment)
	if err != nil {
		a.handleExerciseError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "rating saved", "rating": rating})
}

func (a *API) handleExerciseError(c *gin.Context, err error) {
	if a.respondServiceError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrExerciseNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrVariationNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	default:
		a.respondInternal(c, err)
	}
}
