package handler

import (
	"errors"
	"net/http"

	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
)

type contentRequest struct {
	Title             *string `json:"title" binding:"omitempty,max=200"`
	Category          *string `json:"category" binding:"omitempty,max=50"`
	Type              *string `json:"type" binding:"omitempty,oneof=article video audio exercise"`
	Difficulty        *string `json:"difficulty" binding:"omitempty,oneof=beginner intermediate advanced"`
	Content           *string `json:"content"`
	MediaURL          *string `json:"mediaUrl"`
	EstimatedReadTime *int    `json:"estimatedReadTime" binding:"omitempty,gte=0"`
	IsPublished       *bool   `json:"isPublished"`
}

func (r contentRequest) toInput() service.ContentInput {
	return service.ContentInput{
		Title:             r.Title,
		Category:          r.Category,
		Type:              r.Type,
		Difficulty:        r.Difficulty,
		Content:           r.Content,
		MediaURL:          r.MediaURL,
		EstimatedReadTime: r.EstimatedReadTime,
		IsPublished:       r.IsPublished,
	}
}

// ListContent 返回已发布的心理教育内容，管理员可用 ?all=1 查看草稿
func (a *API) ListContent(c *gin.Context) {
	a.listContent(c, includeInactive(c))
}

// AdminListContent 后台列表包含草稿
func (a *API) AdminListContent(c *gin.Context) {
	a.listContent(c, true)
}

func (a *API) listContent(c *gin.Context, withDrafts bool) {
	items, err := a.content.List(service.ContentFilter{
		Category:      c.Query("category"),
		Type:          c.Query("type"),
		Difficulty:    c.Query("difficulty"),
		Search:        c.Query("search"),
		IncludeDrafts: withDrafts,
	})
	if err != nil {
		a.handleContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": items})
}

// GetContent 返回内容及渲染后的 contentHtml
func (a *API) GetContent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	principal, _ := CurrentPrincipal(c)
	item, err := a.content.GetRendered(id, principal.IsAdmin())
	if err != nil {
		a.handleContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": item})
}

// AdminGetContent 后台获取内容，包括草稿
func (a *API) AdminGetContent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := a.content.GetRendered(id, true)
	if err != nil {
		a.handleContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"content": item})
}

// CreateContent 新建内容
func (a *API) CreateContent(c *gin.Context) {
	var req contentRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := a.content.Create(req.toInput())
	if err != nil {
		a.handleContentError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "content created", "content": item})
}

// UpdateContent 部分更新内容
func (a *API) UpdateContent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req contentRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := a.content.Update(id, req.toInput())
	if err != nil {
		a.handleContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "content updated", "content": item})
}

// DeleteContent 删除内容
func (a *API) DeleteContent(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.content.Delete(id); err != nil {
		a.handleContentError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "content deleted"})
}

func (a *API) handleContentError(c *gin.Context, err error) {
	if a.respondServiceError(c, err) {
		return
	}
	if errors.Is(err, service.ErrContentNotFound) {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	a.respondInternal(c, err)
}
