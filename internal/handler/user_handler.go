package handler

import (
	"errors"
	"net/http"

	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
)

type adminUserRequest struct {
	Role                *string `json:"role" binding:"omitempty,oneof=patient admin"`
	IsActive            *bool   `json:"isActive"`
	Level               *int    `json:"level" binding:"omitempty,gte=1"`
	Points              *int    `json:"points" binding:"omitempty,gte=0"`
	InactivityThreshold *int    `json:"inactivityThreshold" binding:"omitempty,gte=1,lte=365"`
	FirstName           *string `json:"firstName" binding:"omitempty,max=100"`
	LastName            *string `json:"lastName" binding:"omitempty,max=100"`
}

// AdminListUsers 用户列表，可按 role 与 search 过滤
func (a *API) AdminListUsers(c *gin.Context) {
	users, err := a.users.List(service.UserFilter{
		Role:   c.Query("role"),
		Search: c.Query("search"),
	})
	if err != nil {
		a.handleUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": users})
}

func (a *API) AdminGetUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	user, err := a.users.Get(id)
	if err != nil {
		a.handleUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

func (a *API) AdminUpdateUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req adminUserRequest
	if !bindJSON(c, &req) {
		return
	}
	user, err := a.users.AdminUpdate(id, service.AdminUserInput{
		Role:                req.Role,
		IsActive:            req.IsActive,
		Level:               req.Level,
		Points:              req.Points,
		InactivityThreshold: req.InactivityThreshold,
		FirstName:           req.FirstName,
		LastName:            req.LastName,
	})
	if err != nil {
		a.handleUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user updated", "user": user})
}

// AdminDeleteUser 删除用户及其全部数据，管理员不能删除自己
func (a *API) AdminDeleteUser(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.users.Delete(mustPrincipal(c).UserID, id); err != nil {
		a.handleUserError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "user deleted"})
}

func (a *API) handleUserError(c *gin.Context, err error) {
	if a.respondServiceError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrSelfDelete):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		a.respondInternal(c, err)
	}
}
