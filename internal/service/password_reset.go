package service

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/apaddicto/internal/db"
	"github.com/apaddicto/internal/logging"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// ResetTokenTTL 是重置链接的有效期。
const ResetTokenTTL = time.Hour

// ErrInvalidResetToken 在令牌不存在、过期或已使用时返回。
var ErrInvalidResetToken = errors.New("invalid or expired reset token")

// ResetTokenStore persists hashed reset tokens. Consume must be single use.
type ResetTokenStore interface {
	Save(ctx context.Context, userID uint, tokenHash string, ttl time.Duration) error
	Consume(ctx context.Context, tokenHash string) (uint, error)
}

// GormResetTokenStore keeps tokens in the password_reset_tokens table.
type GormResetTokenStore struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormResetTokenStore(gdb *gorm.DB) *GormResetTokenStore {
	return &GormResetTokenStore{db: gdb, now: time.Now}
}

func (s *GormResetTokenStore) Save(ctx context.Context, userID uint, tokenHash string, ttl time.Duration) error {
	token := db.PasswordResetToken{
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: s.now().UTC().Add(ttl),
	}
	if err := s.db.WithContext(ctx).Create(&token).Error; err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return nil
}

func (s *GormResetTokenStore) Consume(ctx context.Context, tokenHash string) (uint, error) {
	var userID uint
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var token db.PasswordResetToken
		if err := tx.Where("token_hash = ?", tokenHash).First(&token).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrInvalidResetToken
			}
			return fmt.Errorf("find reset token: %w", err)
		}
		now := s.now().UTC()
		if token.UsedAt != nil || now.After(token.ExpiresAt) {
			return ErrInvalidResetToken
		}
		// 条件更新保证并发下只有一次消费成功
		result := tx.Model(&db.PasswordResetToken{}).
			Where("id = ? AND used_at IS NULL", token.ID).
			Update("used_at", now)
		if result.Error != nil {
			return fmt.Errorf("consume reset token: %w", result.Error)
		}
		if result.RowsAffected == 0 {
			return ErrInvalidResetToken
		}
		userID = token.UserID
		return nil
	})
	if err != nil {
		return 0, err
	}
	return userID, nil
}

// RedisResetTokenStore keeps tokens as expiring keys.
type RedisResetTokenStore struct {
	client *redis.Client
	prefix string
}

func NewRedisResetTokenStore(client *redis.Client) *RedisResetTokenStore {
	return &RedisResetTokenStore{client: client, prefix: "apaddicto:pwreset:"}
}

func (s *RedisResetTokenStore) Save(ctx context.Context, userID uint, tokenHash string, ttl time.Duration) error {
	if err := s.client.Set(ctx, s.prefix+tokenHash, strconv.FormatUint(uint64(userID), 10), ttl).Err(); err != nil {
		return fmt.Errorf("save reset token: %w", err)
	}
	return nil
}

func (s *RedisResetTokenStore) Consume(ctx context.Context, tokenHash string) (uint, error) {
	raw, err := s.client.GetDel(ctx, s.prefix+tokenHash).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, ErrInvalidResetToken
		}
		return 0, fmt.Errorf("consume reset token: %w", err)
	}
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, ErrInvalidResetToken
	}
	return uint(id), nil
}

// NewRedisClient parses REDIS_URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// PasswordResetService 负责忘记密码与重置流程。
type PasswordResetService struct {
	users   *UserService
	store   ResetTokenStore
	mailer  Mailer
	baseURL string
	log     *logging.Logger
}

func NewPasswordResetService(users *UserService, store ResetTokenStore, mailer Mailer, baseURL string, log *logging.Logger) *PasswordResetService {
	if log == nil {
		log = logging.Nop()
	}
	return &PasswordResetService{
		users:   users,
		store:   store,
		mailer:  mailer,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log,
	}
}

// RequestReset issues a token for an existing active account and mails it.
// Unknown emails are silently ignored so callers cannot probe for accounts.
func (s *PasswordResetService) RequestReset(ctx context.Context, email string) error {
	user, err := s.users.FindByEmail(email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil
		}
		return err
	}
	if !user.IsActive {
		return nil
	}

	token, err := newResetToken()
	if err != nil {
		return err
	}
	if err := s.store.Save(ctx, user.ID, hashResetToken(token), ResetTokenTTL); err != nil {
		return err
	}

	link := fmt.Sprintf("%s/reset-password?token=%s", s.baseURL, token)
	msg := Message{
		To:      user.Email,
		Subject: "Apaddicto - réinitialisation du mot de passe",
		TextBody: "Bonjour,\n\nPour choisir un nouveau mot de passe, ouvrez ce lien (valable une heure) :\n" +
			link + "\n\nSi vous n'êtes pas à l'origine de cette demande, ignorez ce message.\n",
	}
	if err := s.mailer.Send(ctx, msg); err != nil {
		// 邮件失败不向调用方暴露，避免泄露账号是否存在
		s.log.Error("send reset mail failed", "user_id", user.ID, "error", err)
	}
	return nil
}

// Reset consumes the token and sets the new password.
func (s *PasswordResetService) Reset(ctx context.Context, token, password string) error {
	token = strings.TrimSpace(token)
	if token == "" {
		return ErrInvalidResetToken
	}
	if len(password) < minPasswordLength {
		return invalidField("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	userID, err := s.store.Consume(ctx, hashResetToken(token))
	if err != nil {
		return err
	}
	if err := s.users.SetPassword(userID, password); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	return nil
}

func newResetToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

func hashResetToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
