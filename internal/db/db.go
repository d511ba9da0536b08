package db

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DB 是一个全局的数据库连接实例，供维护脚本使用。
var DB *gorm.DB

// Models lists every table managed by AutoMigrate, parents before children.
func Models() []interface{} {
	return []interface{}{
		&User{},
		&Exercise{},
		&ExerciseVariation{},
		&ExerciseLibrary{},
		&ExerciseRating{},
		&CustomSession{},
		&SessionElement{},
		&SessionInstance{},
		&PsychoEducationContent{},
		&EmergencyRoutine{},
		&MediaFile{},
		&CravingEntry{},
		&BeckAnalysis{},
		&AntiCravingStrategy{},
		&TimerSession{},
		&ProfessionalReport{},
		&PasswordResetToken{},
	}
}

// IsPostgresURL reports whether the connection string targets Postgres.
func IsPostgresURL(databaseURL string) bool {
	lower := strings.ToLower(strings.TrimSpace(databaseURL))
	return strings.HasPrefix(lower, "postgres://") || strings.HasPrefix(lower, "postgresql://")
}

// Open 根据 DATABASE_URL 选择驱动：postgres URL 使用 pgx，其余视为 SQLite 文件路径。
func Open(databaseURL string, silent bool) (*gorm.DB, error) {
	url := strings.TrimSpace(databaseURL)
	if url == "" {
		return nil, errors.New("database url is empty")
	}

	cfg := &gorm.Config{}
	if silent {
		cfg.Logger = logger.Default.LogMode(logger.Silent)
	}

	if IsPostgresURL(url) {
		return gorm.Open(postgres.Open(url), cfg)
	}

	if err := ensureParentDir(sqlitePath(url)); err != nil {
		return nil, err
	}
	gdb, err := gorm.Open(sqlite.Open(url), cfg)
	if err != nil {
		return nil, err
	}
	// SQLite 默认不启用外键约束，级联删除依赖它。
	if err := gdb.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, err
	}
	return gdb, nil
}

// Init 打开数据库连接、执行自动迁移，并设置全局 DB。
func Init(databaseURL string) error {
	gdb, err := Open(databaseURL, false)
	if err != nil {
		return err
	}
	if err := Migrate(gdb); err != nil {
		return err
	}
	DB = gdb
	return nil
}

// Migrate 自动迁移模式，为核心模型创建表
func Migrate(gdb *gorm.DB) error {
	if err := gdb.AutoMigrate(Models()...); err != nil {
		return err
	}

	// 旧数据中的 NULL 角色统一视为患者
	return gdb.Model(&User{}).
		Where("role = '' OR role IS NULL").
		Update("role", RolePatient).Error
}

// ToJSON encodes v into a JSON column value. Nil slices become "[]".
func ToJSON(v interface{}) datatypes.JSON {
	if v == nil {
		return datatypes.JSON("[]")
	}
	raw, err := json.Marshal(v)
	if err != nil || string(raw) == "null" {
		return datatypes.JSON("[]")
	}
	return datatypes.JSON(raw)
}

// StringList decodes a JSON column holding a string array.
func StringList(raw datatypes.JSON) []string {
	out := []string{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return []string{}
	}
	return out
}

// IDList decodes a JSON column holding an id array.
func IDList(raw datatypes.JSON) []uint {
	out := []uint{}
	if len(raw) == 0 {
		return out
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return []uint{}
	}
	return out
}

func sqlitePath(url string) string {
	path := strings.TrimPrefix(url, "file:")
	if idx := strings.Index(path, "?"); idx >= 0 {
		path = path[:idx]
	}
	return path
}

func ensureParentDir(path string) error {
	if path == "" || strings.HasPrefix(path, ":memory:") {
		return nil
	}
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}

	info, err := os.Stat(dir)
	if err == nil {
		if !info.IsDir() {
			return errors.New("database path parent is not a directory")
		}
		return nil
	}

	if os.IsNotExist(err) {
		return os.MkdirAll(dir, 0o755)
	}

	return err
}
