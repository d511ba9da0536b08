package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

const healthPingTimeout = 2 * time.Second

// Health 存活探针：数据库可用时返回 200，否则 503
func (a *API) Health(c *gin.Context) {
	status := http.StatusOK
	payload := gin.H{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"env":       a.env,
		"database":  "ok",
	}

	if err := a.pingDatabase(c.Request.Context()); err != nil {
		a.log.Warn("health check database ping failed", "error", err)
		status = http.StatusServiceUnavailable
		payload["status"] = "degraded"
		payload["database"] = "unavailable"
	}

	c.JSON(status, payload)
}

func (a *API) pingDatabase(ctx context.Context) error {
	sqlDB, err := a.db.DB()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, healthPingTimeout)
	defer cancel()
	return sqlDB.PingContext(ctx)
}

// Dashboard 返回后台首页统计
func (a *API) Dashboard(c *gin.Context) {
	stats, err := a.dashboard.Stats()
	if err != nil {
		a.respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"stats": stats})
}

// InactivePatients 返回超过阈值未登录的患者
func (a *API) InactivePatients(c *gin.Context) {
	patients, err := a.dashboard.InactivePatients()
	if err != nil {
		a.respondInternal(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"users": patients})
}
