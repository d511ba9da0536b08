package service

import (
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/apaddicto/internal/db"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var (
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSelfDelete         = errors.New("cannot delete own account")
)

const minPasswordLength = 8

// UserService 负责账号、认证与后台用户管理。
type UserService struct {
	db *gorm.DB
}

// RegisterInput 定义注册时可提交的字段
type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// ProfileInput 描述患者可自行修改的资料，nil 字段保持不变。
type ProfileInput struct {
	FirstName           *string
	LastName            *string
	ProfileImageURL     *string
	InactivityThreshold *int
}

// AdminUserInput 描述后台可修改的用户字段。
type AdminUserInput struct {
	Role                *string
	IsActive            *bool
	Level               *int
	Points              *int
	InactivityThreshold *int
	FirstName           *string
	LastName            *string
}

// UserFilter 描述后台列表过滤条件
type UserFilter struct {
	Role   string
	Search string
}

// NewUserService 构造 UserService
func NewUserService(gdb *gorm.DB) *UserService {
	return &UserService{db: gdb}
}

// Register 创建患者账号。
func (s *UserService) Register(input RegisterInput) (*db.User, error) {
	email := db.NormalizeEmail(input.Email)
	errs := fieldErrors{}
	if _, err := mail.ParseAddress(email); err != nil || email == "" {
		errs.add("email", "must be a valid email address")
	}
	if len(input.Password) < minPasswordLength {
		errs.add("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var count int64
	if err := s.db.Model(&db.User{}).Where("email = ?", email).Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check email: %w", err)
	}
	if count > 0 {
		return nil, ErrEmailTaken
	}

	hashed, err := hashPassword(input.Password)
	if err != nil {
		return nil, err
	}

	user := db.User{
		Email:               email,
		Password:            hashed,
		FirstName:           strings.TrimSpace(input.FirstName),
		LastName:            strings.TrimSpace(input.LastName),
		Role:                db.RolePatient,
		Level:               1,
		IsActive:            true,
		InactivityThreshold: 30,
	}
	if err := s.db.Create(&user).Error; err != nil {
		return nil, fmt.Errorf("create user: %w", err)
	}
	return &user, nil
}

// Authenticate 校验邮箱和密码，成功时刷新 LastLoginAt。
// 用户不存在、被停用或密码错误均返回 ErrInvalidCredentials。
func (s *UserService) Authenticate(email, password string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("email = ?", db.NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("find user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.db.Model(&user).Update("last_login_at", now).Error; err != nil {
		return nil, fmt.Errorf("update last login: %w", err)
	}
	user.LastLoginAt = &now
	return &user, nil
}

// Get 根据 ID 获取用户
func (s *UserService) Get(id uint) (*db.User, error) {
	var user db.User
	if err := s.db.First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	return &user, nil
}

// GetActive 仅返回仍处于启用状态的用户，供会话解析使用。
func (s *UserService) GetActive(id uint) (*db.User, error) {
	user, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserNotFound
	}
	return user, nil
}

// FindByEmail looks a user up by normalized email.
func (s *UserService) FindByEmail(email string) (*db.User, error) {
	var user db.User
	if err := s.db.Where("email = ?", db.NormalizeEmail(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("find user: %w", err)
	}
	return &user, nil
}

// List 返回用户集合，支持基本筛选
func (s *UserService) List(filter UserFilter) ([]db.User, error) {
	var users []db.User
	query := s.db.Model(&db.User{})
	if role := normalizeKey(filter.Role); role != "" {
		query = query.Where("role = ?", role)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(email) LIKE ? OR LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ?", like, like, like)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&users).Error; err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return users, nil
}

// UpdateProfile 修改当前用户的资料
func (s *UserService) UpdateProfile(id uint, input ProfileInput) (*db.User, error) {
	if input.InactivityThreshold != nil && (*input.InactivityThreshold < 1 || *input.InactivityThreshold > 365) {
		return nil, invalidField("inactivityThreshold", "must be between 1 and 365 days")
	}

	user, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if input.FirstName != nil {
		user.FirstName = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		user.LastName = strings.TrimSpace(*input.LastName)
	}
	if input.ProfileImageURL != nil {
		user.ProfileImageURL = strings.TrimSpace(*input.ProfileImageURL)
	}
	if input.InactivityThreshold != nil {
		user.InactivityThreshold = *input.InactivityThreshold
	}
	if err := s.db.Save(user).Error; err != nil {
		return nil, fmt.Errorf("update profile: %w", err)
	}
	return user, nil
}

// ChangePassword 在校验旧密码后设置新密码。
func (s *UserService) ChangePassword(id uint, current, next string) error {
	user, err := s.Get(id)
	if err != nil {
		return err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(current)); err != nil {
		return invalidField("currentPassword", "is incorrect")
	}
	return s.SetPassword(id, next)
}

// SetPassword 直接覆盖密码哈希，供重置流程使用。
func (s *UserService) SetPassword(id uint, password string) error {
	if len(password) < minPasswordLength {
		return invalidField("password", fmt.Sprintf("must be at least %d characters", minPasswordLength))
	}
	hashed, err := hashPassword(password)
	if err != nil {
		return err
	}
	result := s.db.Model(&db.User{}).Where("id = ?", id).Update("password", hashed)
	if result.Error != nil {
		return fmt.Errorf("set password: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrUserNotFound
	}
	return nil
}

// AdminUpdate 允许管理员修改角色、启用状态与积分等级。
func (s *UserService) AdminUpdate(id uint, input AdminUserInput) (*db.User, error) {
	errs := fieldErrors{}
	if input.Role != nil && !oneOf(normalizeKey(*input.Role), db.RolePatient, db.RoleAdmin) {
		errs.add("role", "must be one of patient, admin")
	}
	if input.Level != nil && *input.Level < 1 {
		errs.add("level", "must be at least 1")
	}
	if input.Points != nil && *input.Points < 0 {
		errs.add("points", "must not be negative")
	}
	if input.InactivityThreshold != nil && (*input.InactivityThreshold < 1 || *input.InactivityThreshold > 365) {
		errs.add("inactivityThreshold", "must be between 1 and 365 days")
	}
	if err := errs.Err(); err != nil {
		return nil, err
	}

	user, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	updates := map[string]interface{}{}
	if input.Role != nil {
		updates["role"] = normalizeKey(*input.Role)
	}
	if input.IsActive != nil {
		updates["is_active"] = *input.IsActive
	}
	if input.Points != nil {
		updates["points"] = *input.Points
		if input.Level == nil {
			updates["level"] = db.LevelForPoints(*input.Points)
		}
	}
	if input.Level != nil {
		updates["level"] = *input.Level
	}
	if input.InactivityThreshold != nil {
		updates["inactivity_threshold"] = *input.InactivityThreshold
	}
	if input.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*input.FirstName)
	}
	if input.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*input.LastName)
	}
	if len(updates) > 0 {
		if err := s.db.Model(user).Updates(updates).Error; err != nil {
			return nil, fmt.Errorf("update user: %w", err)
		}
	}
	return s.Get(id)
}

// Delete 删除用户及其名下的全部数据（同一事务内级联）。
func (s *UserService) Delete(actorID, id uint) error {
	if actorID == id {
		return ErrSelfDelete
	}
	if _, err := s.Get(id); err != nil {
		return err
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		owned := []interface{}{
			&db.CravingEntry{},
			&db.BeckAnalysis{},
			&db.AntiCravingStrategy{},
			&db.TimerSession{},
			&db.SessionInstance{},
			&db.ExerciseRating{},
			&db.PasswordResetToken{},
		}
		for _, model := range owned {
			if err := tx.Where("user_id = ?", id).Delete(model).Error; err != nil {
				return fmt.Errorf("delete owned rows: %w", err)
			}
		}
		if err := tx.Where("patient_id = ?", id).Delete(&db.ProfessionalReport{}).Error; err != nil {
			return fmt.Errorf("delete reports: %w", err)
		}
		if err := tx.Model(&db.ProfessionalReport{}).Where("therapist_id = ?", id).Update("therapist_id", nil).Error; err != nil {
			return fmt.Errorf("detach authored reports: %w", err)
		}
		if err := tx.Model(&db.CustomSession{}).Where("creator_id = ?", id).Update("creator_id", nil).Error; err != nil {
			return fmt.Errorf("detach sessions: %w", err)
		}
		if err := tx.Model(&db.SessionInstance{}).Where("assigned_by = ?", id).Update("assigned_by", nil).Error; err != nil {
			return fmt.Errorf("detach assignments: %w", err)
		}
		if err := tx.Model(&db.MediaFile{}).Where("uploaded_by = ?", id).Update("uploaded_by", nil).Error; err != nil {
			return fmt.Errorf("detach media: %w", err)
		}
		if err := tx.Delete(&db.User{}, id).Error; err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		return nil
	})
}

// awardPoints 在事务内为用户加分并同步等级。
func awardPoints(tx *gorm.DB, userID uint, points int) error {
	if points == 0 {
		return nil
	}
	if err := tx.Model(&db.User{}).Where("id = ?", userID).
		Update("points", gorm.Expr("points + ?", points)).Error; err != nil {
		return fmt.Errorf("award points: %w", err)
	}
	if err := tx.Model(&db.User{}).Where("id = ?", userID).
		Update("level", gorm.Expr("(points / 100) + 1")).Error; err != nil {
		return fmt.Errorf("refresh level: %w", err)
	}
	return nil
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hashed), nil
}
