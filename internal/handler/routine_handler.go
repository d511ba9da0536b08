package handler

import (
	"errors"
	"net/http"

	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
)

type routineRequest struct {
	Title       *string  `json:"title" binding:"omitempty,max=200"`
	Description *string  `json:"description"`
	Category    *string  `json:"category" binding:"omitempty,max=50"`
	Steps       []string `json:"steps"`
	Duration    *int     `json:"duration"`
	IsActive    *bool    `json:"isActive"`
	IsDefault   *bool    `json:"isDefault"`
}

func (r routineRequest) toInput() service.RoutineInput {
	return service.RoutineInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Steps:       r.Steps,
		Duration:    r.Duration,
		IsActive:    r.IsActive,
		IsDefault:   r.IsDefault,
	}
}

// ListRoutines 返回启用的应急流程，默认流程在前
func (a *API) ListRoutines(c *gin.Context) {
	routines, err := a.routines.List(includeInactive(c))
	if err != nil {
		a.handleRoutineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routines": routines})
}

func (a *API) AdminListRoutines(c *gin.Context) {
	routines, err := a.routines.List(true)
	if err != nil {
		a.handleRoutineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routines": routines})
}

// GetDefaultRoutine 返回默认应急流程
func (a *API) GetDefaultRoutine(c *gin.Context) {
	routine, err := a.routines.Default()
	if err != nil {
		a.handleRoutineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routine": routine})
}

func (a *API) GetRoutine(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	routine, err := a.routines.Get(id)
	if err != nil {
		a.handleRoutineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"routine": routine})
}

func (a *API) CreateRoutine(c *gin.Context) {
	var req routineRequest
	if !bindJSON(c, &req) {
		return
	}
	routine, err := a.routines.Create(req.toInput())
	if err != nil {
		a.handleRoutineError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "routine created", "routine": routine})
}

func (a *API) UpdateRoutine(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req routineRequest
	if !bindJSON(c, &req) {
		return
	}
	routine, err := a.routines.Update(id, req.toInput())
	if err != nil {
		a.handleRoutineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "routine updated", "routine": routine})
}

func (a *API) DeleteRoutine(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.routines.Delete(id); err != nil {
		a.handleRoutineError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "routine deleted"})
}

func (a *API) handleRoutineError(c *gin.Context, err error) {
	if a.respondServiceError(c, err) {
		return
	}
	if errors.Is(err, service.ErrRoutineNotFound) {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	a.respondInternal(c, err)
}
