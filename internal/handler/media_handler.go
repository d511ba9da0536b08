package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
)

// multipart 表单头部的额外余量
const multipartOverhead = 1 << 20

type mediaRequest struct {
	Title *string  `json:"title" binding:"omitempty,max=200"`
	Tags  []string `json:"tags"`
}

// UploadMedia 处理后台媒体上传，表单字段为 file
func (a *API) UploadMedia(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, a.media.MaxBytes()+multipartOverhead)

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			respondError(c, http.StatusRequestEntityTooLarge, service.ErrMediaTooLarge.Error())
			return
		}
		respondValidation(c, map[string]string{"file": "is required"})
		return
	}
	if fileHeader.Size > a.media.MaxBytes() {
		respondError(c, http.StatusRequestEntityTooLarge, service.ErrMediaTooLarge.Error())
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		a.respondInternal(c, fmt.Errorf("open upload: %w", err))
		return
	}
	defer file.Close()

	media, err := a.media.Upload(file, service.UploadInput{
		OriginalName: fileHeader.Filename,
		Title:        c.PostForm("title"),
		Tags:         splitTags(c.PostForm("tags")),
		UploadedBy:   mustPrincipal(c).UserID,
	})
	if err != nil {
		a.handleMediaError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message": "upload succeeded",
		"media":   media,
		"url":     media.URL,
	})
}

func (a *API) ListMedia(c *gin.Context) {
	items, err := a.media.List(service.MediaFilter{
		Kind:   c.Query("type"),
		Search: c.Query("search"),
	})
	if err != nil {
		a.handleMediaError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": items})
}

func (a *API) GetMedia(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	item, err := a.media.Get(id)
	if err != nil {
		a.handleMediaError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": item})
}

func (a *API) UpdateMedia(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req mediaRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := a.media.Update(id, service.MediaInput{Title: req.Title, Tags: req.Tags})
	if err != nil {
		a.handleMediaError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "media updated", "media": item})
}

// DeleteMedia 删除记录及磁盘文件
func (a *API) DeleteMedia(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.media.Delete(id); err != nil {
		a.handleMediaError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "media deleted"})
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

func (a *API) handleMediaError(c *gin.Context, err error) {
	if a.respondServiceError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrMediaNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrMediaTooLarge):
		respondError(c, http.StatusRequestEntityTooLarge, err.Error())
	case errors.Is(err, service.ErrMediaUnsupported):
		respondError(c, http.StatusUnsupportedMediaType, err.Error())
	default:
		a.respondInternal(c, err)
	}
}
