package handler

import (
	"github.com/apaddicto/internal/config"
	"github.com/apaddicto/internal/logging"
	"github.com/apaddicto/internal/service"
	"gorm.io/gorm"
)

// API bundles shared dependencies for HTTP handlers.
type API struct {
	db         *gorm.DB
	users      *service.UserService
	resets     *service.PasswordResetService
	exercises  *service.ExerciseService
	sessions   *service.SessionService
	content    *service.ContentService
	routines   *service.RoutineService
	reports    *service.ReportService
	media      *service.MediaService
	cravings   *service.CravingService
	beck       *service.BeckService
	strategies *service.StrategyService
	timers     *service.TimerService
	dashboard  *service.DashboardService
	log        *logging.Logger
	env        string
	production bool
}

// Options 描述构造 API 时的可选依赖，零值会退回到开发环境下可用的默认实现。
type Options struct {
	Env            string
	Production     bool
	Logger         *logging.Logger
	UploadDir      string
	UploadURL      string
	MaxUploadBytes int64
	AppBaseURL     string
	ResetStore     service.ResetTokenStore
	Mailer         service.Mailer
}

// NewAPI constructs a handler set with shared services.
func NewAPI(gdb *gorm.DB, opts Options) *API {
	registerJSONFieldNames()

	log := opts.Logger
	if log == nil {
		log = logging.Nop()
	}
	uploadDir := opts.UploadDir
	if uploadDir == "" {
		uploadDir = "./uploads"
	}
	uploadURL := opts.UploadURL
	if uploadURL == "" {
		uploadURL = "/uploads"
	}
	maxBytes := opts.MaxUploadBytes
	if maxBytes <= 0 {
		maxBytes = 20 << 20
	}
	store := opts.ResetStore
	if store == nil {
		store = service.NewGormResetTokenStore(gdb)
	}
	mailer := opts.Mailer
	if mailer == nil {
		mailer = service.NewMailer(config.SMTPConfig{}, log)
	}

	users := service.NewUserService(gdb)
	return &API{
		db:         gdb,
		users:      users,
		resets:     service.NewPasswordResetService(users, store, mailer, opts.AppBaseURL, log),
		exercises:  service.NewExerciseService(gdb),
		sessions:   service.NewSessionService(gdb),
		content:    service.NewContentService(gdb),
		routines:   service.NewRoutineService(gdb),
		reports:    service.NewReportService(gdb),
		media:      service.NewMediaService(gdb, uploadDir, uploadURL, maxBytes),
		cravings:   service.NewCravingService(gdb),
		beck:       service.NewBeckService(gdb),
		strategies: service.NewStrategyService(gdb),
		timers:     service.NewTimerService(gdb),
		dashboard:  service.NewDashboardService(gdb),
		log:        log,
		env:        opts.Env,
		production: opts.Production,
	}
}

// DB exposes the underlying gorm instance for the health probe and tests.
func (a *API) DB() *gorm.DB {
	return a.db
}
