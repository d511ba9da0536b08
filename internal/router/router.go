package router

import (
	"net/http"
	"strings"
	"time"

	"github.com/apaddicto/internal/handler"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	sessionCookieName = "connect.sid"
	sessionMaxAge     = 7 * 24 * time.Hour
)

// Deps 汇总构建路由所需的依赖
type Deps struct {
	API           *handler.API
	SessionSecret string
	Production    bool
	CORSOrigins   []string
	UploadDir     string
	UploadURLPath string
	ServiceName   string
}

// SetupRouter 配置 Gin 引擎、全局中间件和全部路由
func SetupRouter(deps Deps) *gin.Engine {
	api := deps.API

	r := gin.New()
	r.Use(handler.RequestID())
	r.Use(api.Recovery())
	if deps.ServiceName != "" {
		r.Use(otelgin.Middleware(deps.ServiceName))
	}
	r.Use(api.RequestLogger())
	if len(deps.CORSOrigins) > 0 {
		r.Use(cors.New(cors.Config{
			AllowOrigins:     deps.CORSOrigins,
			AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowHeaders:     []string{"Content-Type", "X-Requested-With", "X-Request-ID"},
			ExposeHeaders:    []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           12 * time.Hour,
		}))
	}

	// 配置会话中间件
	store := cookie.NewStore([]byte(deps.SessionSecret))
	store.Options(sessions.Options{
		Path:     "/",
		MaxAge:   int(sessionMaxAge / time.Second),
		HttpOnly: true,
		Secure:   deps.Production,
		SameSite: http.SameSiteLaxMode,
	})
	r.Use(sessions.Sessions(sessionCookieName, store))
	r.Use(api.ErrorFallback())
	r.Use(api.LoadPrincipal())

	// 上传文件
	if deps.UploadDir != "" {
		urlPath := "/" + strings.Trim(deps.UploadURLPath, "/")
		if urlPath == "/" {
			urlPath = "/uploads"
		}
		r.Static(urlPath, deps.UploadDir)
	}

	r.GET("/health", api.Health)

	apiGroup := r.Group("/api")
	registerAuthRoutes(apiGroup, api)
	registerPublicRoutes(apiGroup, api)
	registerPatientRoutes(apiGroup, api)
	registerAdminRoutes(apiGroup, api)

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r
}

func registerAuthRoutes(rg *gin.RouterGroup, api *handler.API) {
	auth := rg.Group("/auth")
	{
		auth.POST("/register", api.Register)
		auth.POST("/login", api.Login)
		auth.POST("/logout", api.Logout)
		auth.GET("/me", handler.RequireAuth(), api.Me)
		auth.POST("/forgot-password", api.ForgotPassword)
		auth.POST("/reset-password", api.ResetPassword)
	}

	me := rg.Group("/users/me", handler.RequireAuth())
	{
		me.PUT("", api.UpdateMe)
		me.PUT("/password", api.ChangeMyPassword)
	}
}

// 无需登录即可访问的目录类接口
func registerPublicRoutes(rg *gin.RouterGroup, api *handler.API) {
	rg.GET("/exercises", api.ListExercises)
	rg.GET("/exercises/:id", api.GetExercise)
	rg.GET("/exercises/:id/variations", api.ListVariations)
	rg.GET("/exercises/:id/library", api.GetExerciseLibrary)

	rg.GET("/psycho-education", api.ListContent)
	rg.GET("/psycho-education/:id", api.GetContent)

	rg.GET("/emergency-routines", api.ListRoutines)
	rg.GET("/emergency-routines/default", api.GetDefaultRoutine)
	rg.GET("/emergency-routines/:id", api.GetRoutine)

	rg.GET("/sessions", api.ListPublicSessions)
}

func registerPatientRoutes(rg *gin.RouterGroup, api *handler.API) {
	authed := rg.Group("", handler.RequireAuth())
	{
		authed.POST("/exercises/:id/ratings", api.RateExercise)

		authed.GET("/sessions/:id", api.GetSession)
		authed.POST("/sessions/:id/start", api.SelfStartSession)

		authed.GET("/patient-sessions", api.ListMyInstances)
		authed.GET("/patient-sessions/:id", api.GetMyInstance)
		authed.PUT("/patient-sessions/:id", api.UpdateInstanceStatus)
		authed.POST("/patient-sessions/:id/start", api.StartInstance)
		authed.POST("/patient-sessions/:id/complete", api.CompleteInstance)
		authed.POST("/patient-sessions/:id/abandon", api.AbandonInstance)
		authed.POST("/patient-sessions/:id/skip", api.SkipInstance)
		authed.POST("/patient-sessions/:id/elements/:elementId/complete", api.CompleteInstanceElement)

		authed.GET("/cravings", api.ListCravings)
		authed.POST("/cravings", api.CreateCraving)
		authed.GET("/cravings/stats", api.CravingStats)
		authed.DELETE("/cravings/:id", api.DeleteCraving)

		authed.GET("/beck-analyses", api.ListBeckAnalyses)
		authed.POST("/beck-analyses", api.CreateBeckAnalysis)
		authed.DELETE("/beck-analyses/:id", api.DeleteBeckAnalysis)

		authed.GET("/strategies", api.ListStrategies)
		authed.POST("/strategies", api.CreateStrategy)
		authed.PUT("/strategies/:id", api.UpdateStrategy)
		authed.DELETE("/strategies/:id", api.DeleteStrategy)

		authed.GET("/timer-sessions", api.ListTimerSessions)
		authed.POST("/timer-sessions", api.CreateTimerSession)

		authed.GET("/reports", api.ListMyReports)
	}

	// 管理员在公共前缀下的创建入口
	adminOnly := rg.Group("", handler.RequireAdmin())
	{
		adminOnly.POST("/exercises", api.CreateExercise)
		adminOnly.POST("/psycho-education", api.CreateContent)
		adminOnly.POST("/sessions", api.CreateSession)
		adminOnly.POST("/sessions/:id/publish", api.PublishSession)
	}
}

func registerAdminRoutes(rg *gin.RouterGroup, api *handler.API) {
	admin := rg.Group("/admin", handler.RequireAdmin())

	admin.GET("/dashboard", api.Dashboard)
	admin.GET("/inactive-patients", api.InactivePatients)

	admin.GET("/exercises", api.AdminListExercises)
	admin.POST("/exercises", api.CreateExercise)
	admin.GET("/exercises/:id", api.AdminGetExercise)
	admin.PUT("/exercises/:id", api.UpdateExercise)
	admin.DELETE("/exercises/:id", api.DeleteExercise)
	admin.POST("/exercises/:id/variations", api.CreateVariation)
	admin.PUT("/exercises/:id/library", api.UpdateExerciseLibrary)
	admin.PUT("/variations/:id", api.UpdateVariation)
	admin.DELETE("/variations/:id", api.DeleteVariation)

	admin.GET("/psycho-education", api.AdminListContent)
	admin.POST("/psycho-education", api.CreateContent)
	admin.GET("/psycho-education/:id", api.AdminGetContent)
	admin.PUT("/psycho-education/:id", api.UpdateContent)
	admin.DELETE("/psycho-education/:id", api.DeleteContent)

	admin.GET("/emergency-routines", api.AdminListRoutines)
	admin.POST("/emergency-routines", api.CreateRoutine)
	admin.GET("/emergency-routines/:id", api.GetRoutine)
	admin.PUT("/emergency-routines/:id", api.UpdateRoutine)
	admin.DELETE("/emergency-routines/:id", api.DeleteRoutine)

	admin.POST("/media/upload", api.UploadMedia)
	admin.GET("/media", api.ListMedia)
	admin.GET("/media/:id", api.GetMedia)
	admin.PUT("/media/:id", api.UpdateMedia)
	admin.DELETE("/media/:id", api.DeleteMedia)

	admin.GET("/users", api.AdminListUsers)
	admin.GET("/users/:id", api.AdminGetUser)
	admin.PUT("/users/:id", api.AdminUpdateUser)
	admin.DELETE("/users/:id", api.AdminDeleteUser)

	admin.GET("/reports", api.AdminListReports)
	admin.POST("/reports", api.AdminCreateReport)
	admin.GET("/reports/:id", api.AdminGetReport)
	admin.PUT("/reports/:id", api.AdminUpdateReport)
	admin.DELETE("/reports/:id", api.AdminDeleteReport)

	admin.GET("/sessions", api.AdminListSessions)
	admin.POST("/sessions", api.CreateSession)
	admin.GET("/sessions/:id", api.AdminGetSession)
	admin.PUT("/sessions/:id", api.UpdateSession)
	admin.DELETE("/sessions/:id", api.DeleteSession)
	admin.PUT("/sessions/:id/elements", api.ReplaceSessionElements)
	admin.POST("/sessions/:id/duplicate", api.DuplicateSession)
	admin.POST("/sessions/:id/publish", api.PublishSession)
	admin.GET("/sessions/:id/instances", api.AdminListSessionInstances)
}
