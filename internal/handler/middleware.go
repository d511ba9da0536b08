package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/apaddicto/internal/db"
	"github.com/apaddicto/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	sessionUserKey      = "user_id"
	principalContextKey = "__principal"
	requestIDContextKey = "__request_id"
	requestIDHeader     = "X-Request-ID"
)

// Principal 是每个请求解析一次的当前用户。
type Principal struct {
	UserID uint
	Email  string
	Role   string
}

// IsAdmin reports whether the principal carries the admin role.
func (p Principal) IsAdmin() bool {
	return p.Role == db.RoleAdmin
}

// CurrentPrincipal returns the principal resolved by LoadPrincipal.
func CurrentPrincipal(c *gin.Context) (Principal, bool) {
	value, exists := c.Get(principalContextKey)
	if !exists {
		return Principal{}, false
	}
	principal, ok := value.(Principal)
	return principal, ok
}

func mustPrincipal(c *gin.Context) Principal {
	principal, _ := CurrentPrincipal(c)
	return principal
}

// LoadPrincipal 从会话读取 user_id 并加载启用中的用户；用户不存在或被停用时清空会话。
func (a *API) LoadPrincipal() gin.HandlerFunc {
	return func(c *gin.Context) {
		session := sessions.Default(c)
		userID, ok := sessionUserID(session.Get(sessionUserKey))
		if !ok {
			c.Next()
			return
		}

		user, err := a.users.GetActive(userID)
		if err != nil {
			if !errors.Is(err, service.ErrUserNotFound) {
				a.log.Warn("load principal failed", "user_id", userID, "error", err)
			}
			session.Clear()
			_ = session.Save()
			c.Next()
			return
		}

		c.Set(principalContextKey, Principal{UserID: user.ID, Email: user.Email, Role: user.Role})
		c.Next()
	}
}

func sessionUserID(value interface{}) (uint, bool) {
	switch v := value.(type) {
	case uint:
		return v, v > 0
	case int:
		return uint(v), v > 0
	case int64:
		return uint(v), v > 0
	case uint64:
		return uint(v), v > 0
	case float64:
		return uint(v), v > 0
	default:
		return 0, false
	}
}

// RequireAuth 要求已登录
func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := CurrentPrincipal(c); !ok {
			respondError(c, http.StatusUnauthorized, "unauthenticated")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequireAdmin 未登录返回 401，非管理员返回 403
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			respondError(c, http.StatusUnauthorized, "unauthenticated")
			c.Abort()
			return
		}
		if !principal.IsAdmin() {
			respondError(c, http.StatusForbidden, "forbidden")
			c.Abort()
			return
		}
		c.Next()
	}
}

// RequestID propagates or assigns an X-Request-ID.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(requestIDHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set(requestIDContextKey, id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}

// RequestLogger 记录每个请求的方法、路由、状态码与耗时。
func (a *API) RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = c.Request.URL.Path
		}
		kv := []interface{}{
			"method", c.Request.Method,
			"route", route,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", requestID(c),
		}
		if principal, ok := CurrentPrincipal(c); ok {
			kv = append(kv, "user_id", principal.UserID)
		}
		if len(c.Errors) > 0 {
			kv = append(kv, "errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= http.StatusInternalServerError:
			a.log.Error("request", kv...)
		case status >= http.StatusBadRequest:
			a.log.Warn("request", kv...)
		default:
			a.log.Info("request", kv...)
		}
	}
}

// Recovery 将 panic 转为 500；生产环境只返回通用信息。
func (a *API) Recovery() gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered interface{}) {
		a.log.Error("panic recovered", "request_id", requestID(c), "path", c.Request.URL.Path, "panic", fmt.Sprint(recovered))
		message := "internal server error"
		if !a.production {
			message = fmt.Sprint(recovered)
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": message})
	})
}

// ErrorFallback 处理记录了错误但没有写出响应的请求。
func (a *API) ErrorFallback() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		err := c.Errors.Last().Err
		a.log.Error("unhandled request error", "request_id", requestID(c), "error", err)
		message := "internal server error"
		if !a.production {
			message = err.Error()
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}
