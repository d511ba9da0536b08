package config

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
	EnvTest        = "test"

	devSessionSecret = "apaddicto-dev-secret"
)

// AppConfig 汇总运行服务所需的基础配置。
type AppConfig struct {
	ListenAddr         string
	Port               string
	DatabaseURL        string
	SessionSecret      string
	SessionSecretUnset bool
	Env                string
	LogLevel           string
	CORSOrigins        []string
	UploadDir          string
	UploadURLPath      string
	MaxUploadMB        int
	AppBaseURL         string
	RedisURL           string
	OTLPEndpoint       string
	TracesExporter     string
	SuperAdminEmail    string
	SuperAdminPassword string
	SMTP               SMTPConfig
}

// SMTPConfig describes the outgoing mail relay. An empty Host disables sending.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

// Enabled reports whether mail can actually be sent.
func (c SMTPConfig) Enabled() bool {
	return c.Host != ""
}

// IsProduction reports whether the service runs with production semantics.
func (c AppConfig) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load 从环境变量读取应用配置，并为缺失项提供安全的默认值。
// 若当前目录存在 .env 文件，会先加载它，已设置的环境变量不会被覆盖。
func Load() AppConfig {
	_ = godotenv.Load()

	port := env("PORT", "5000")

	appEnv := strings.ToLower(env("NODE_ENV", EnvDevelopment))

	// 生产环境缺少 SESSION_SECRET 时使用进程级随机密钥，重启后旧会话失效。
	sessionSecret := env("SESSION_SECRET", "")
	secretUnset := sessionSecret == ""
	if secretUnset {
		if appEnv == EnvProduction {
			sessionSecret = randomSecret()
		} else {
			sessionSecret = devSessionSecret
		}
	}

	return AppConfig{
		ListenAddr:         env("LISTEN_ADDR", fmt.Sprintf(":%s", port)),
		Port:               port,
		DatabaseURL:        env("DATABASE_URL", ""),
		SessionSecret:      sessionSecret,
		SessionSecretUnset: secretUnset,
		Env:                appEnv,
		LogLevel:           strings.ToLower(env("LOG_LEVEL", "info")),
		CORSOrigins:        splitCSV(env("CORS_ORIGIN", "http://localhost:5173,http://localhost:5000")),
		UploadDir:          env("UPLOAD_DIR", "uploads"),
		UploadURLPath:      env("UPLOAD_URL_PATH", "/uploads"),
		MaxUploadMB:        envInt("MAX_UPLOAD_MB", 50),
		AppBaseURL:         strings.TrimRight(env("APP_BASE_URL", "http://localhost:5000"), "/"),
		RedisURL:           env("REDIS_URL", ""),
		OTLPEndpoint:       env("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		TracesExporter:     strings.ToLower(env("OTEL_TRACES_EXPORTER", "")),
		SuperAdminEmail:    env("SUPER_ADMIN_EMAIL", ""),
		SuperAdminPassword: env("SUPER_ADMIN_PASSWORD", ""),
		SMTP: SMTPConfig{
			Host:     env("SMTP_HOST", ""),
			Port:     envInt("SMTP_PORT", 587),
			Username: env("SMTP_USERNAME", ""),
			Password: env("SMTP_PASSWORD", ""),
			From:     env("SMTP_FROM", "Apaddicto <no-reply@apaddicto.local>"),
		},
	}
}

// Validate 检查必填项。
func (c AppConfig) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("DATABASE_URL is required")
	}
	switch c.Env {
	case EnvDevelopment, EnvProduction, EnvTest:
	default:
		return fmt.Errorf("NODE_ENV must be one of development, production, test (got %q)", c.Env)
	}
	if c.MaxUploadMB <= 0 {
		return errors.New("MAX_UPLOAD_MB must be positive")
	}
	if c.IsProduction() && (c.SessionSecret == "" || c.SessionSecret == devSessionSecret) {
		return errors.New("SESSION_SECRET must not use the development value in production")
	}
	return nil
}

func randomSecret() string {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		panic(fmt.Sprintf("generate session secret: %v", err))
	}
	return hex.EncodeToString(buf)
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return v
}

func splitCSV(value string) []string {
	raw := strings.Split(value, ",")
	out := make([]string, 0, len(raw))
	for _, item := range raw {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}
	return out
}
