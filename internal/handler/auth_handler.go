package handler

import (
	"errors"
	"net/http"

	"github.com/apaddicto/internal/db"
	"github.com/apaddicto/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const forgotPasswordMessage = "if the account exists, a reset link has been sent"

type registerRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"firstName" binding:"max=100"`
	LastName  string `json:"lastName" binding:"max=100"`
}

type loginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type forgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type resetPasswordRequest struct {
	Token    string `json:"token" binding:"required"`
	Password string `json:"password" binding:"required,min=8"`
}

type profileRequest struct {
	FirstName           *string `json:"firstName" binding:"omitempty,max=100"`
	LastName            *string `json:"lastName" binding:"omitempty,max=100"`
	ProfileImageURL     *string `json:"profileImageUrl"`
	InactivityThreshold *int    `json:"inactivityThreshold" binding:"omitempty,gte=1,lte=365"`
}

type changePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required,min=8"`
}

// Register 注册患者账号并直接登录
func (a *API) Register(c *gin.Context) {
	var req registerRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := a.users.Register(service.RegisterInput{
		Email:     req.Email,
		Password:  req.Password,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		a.handleAuthError(c, err)
		return
	}
	if !a.startSession(c, user) {
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "account created", "user": user})
}

// Login 校验邮箱与密码并写入会话
func (a *API) Login(c *gin.Context) {
	var req loginRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := a.users.Authenticate(req.Email, req.Password)
	if err != nil {
		a.handleAuthError(c, err)
		return
	}
	if !a.startSession(c, user) {
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "logged in", "user": user})
}

// Logout 清空会话
func (a *API) Logout(c *gin.Context) {
	session := sessions.Default(c)
	session.Clear()
	session.Options(sessions.Options{Path: "/", MaxAge: -1})
	if err := session.Save(); err != nil {
		a.respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

// Me 返回当前登录用户
func (a *API) Me(c *gin.Context) {
	principal := mustPrincipal(c)
	user, err := a.users.Get(principal.UserID)
	if err != nil {
		a.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": user})
}

// ForgotPassword 无论邮箱是否存在都返回相同响应
func (a *API) ForgotPassword(c *gin.Context) {
	var req forgotPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := a.resets.RequestReset(c.Request.Context(), req.Email); err != nil {
		a.log.Error("password reset request failed", "request_id", requestID(c), "error", err)
	}
	c.JSON(http.StatusOK, gin.H{"message": forgotPasswordMessage})
}

// ResetPassword 使用一次性令牌设置新密码
func (a *API) ResetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := a.resets.Reset(c.Request.Context(), req.Token, req.Password); err != nil {
		a.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

// UpdateMe 修改个人资料
func (a *API) UpdateMe(c *gin.Context) {
	var req profileRequest
	if !bindJSON(c, &req) {
		return
	}

	user, err := a.users.UpdateProfile(mustPrincipal(c).UserID, service.ProfileInput{
		FirstName:           req.FirstName,
		LastName:            req.LastName,
		ProfileImageURL:     req.ProfileImageURL,
		InactivityThreshold: req.InactivityThreshold,
	})
	if err != nil {
		a.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "profile updated", "user": user})
}

// ChangeMyPassword 需要提供当前密码
func (a *API) ChangeMyPassword(c *gin.Context) {
	var req changePasswordRequest
	if !bindJSON(c, &req) {
		return
	}

	if err := a.users.ChangePassword(mustPrincipal(c).UserID, req.CurrentPassword, req.NewPassword); err != nil {
		a.handleAuthError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password updated"})
}

func (a *API) startSession(c *gin.Context, user *db.User) bool {
	session := sessions.Default(c)
	session.Clear()
	session.Set(sessionUserKey, user.ID)
	if err := session.Save(); err != nil {
		a.respondInternal(c, err)
		return false
	}
	return true
}

func (a *API) handleAuthError(c *gin.Context, err error) {
	if a.respondServiceError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		respondError(c, http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, service.ErrEmailTaken):
		respondError(c, http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrInvalidResetToken):
		respondError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUserNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	default:
		a.respondInternal(c, err)
	}
}
