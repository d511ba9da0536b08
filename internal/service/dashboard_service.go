package service

import (
	"fmt"
	"time"

	"github.com/apaddicto/internal/db"
	"gorm.io/gorm"
)

// DashboardService 汇总后台首页的计数。
type DashboardService struct {
	db  *gorm.DB
	now func() time.Time
}

// DashboardStats 是后台首页展示的数据
type DashboardStats struct {
	Patients          int64 `json:"patients"`
	ActivePatients    int64 `json:"activePatients"`
	InactivePatients  int64 `json:"inactivePatients"`
	Exercises         int64 `json:"exercises"`
	Sessions          int64 `json:"sessions"`
	PublishedSessions int64 `json:"publishedSessions"`
	ActiveInstances   int64 `json:"activeInstances"`
	CompletedLastWeek int64 `json:"completedLastWeek"`
	CravingsLastWeek  int64 `json:"cravingsLastWeek"`
	Content           int64 `json:"content"`
	Media             int64 `json:"media"`
}

func NewDashboardService(gdb *gorm.DB) *DashboardService {
	return &DashboardService{db: gdb, now: time.Now}
}

// Stats 统计各项数量。InactivePatients 指超过各自 inactivityThreshold 天未登录的启用患者。
func (s *DashboardService) Stats() (*DashboardStats, error) {
	stats := &DashboardStats{}
	weekAgo := s.now().UTC().AddDate(0, 0, -7)

	counts := []struct {
		target *int64
		query  *gorm.DB
	}{
		{&stats.Patients, s.db.Model(&db.User{}).Where("role = ?", db.RolePatient)},
		{&stats.ActivePatients, s.db.Model(&db.User{}).Where("role = ? AND is_active = ?", db.RolePatient, true)},
		{&stats.Exercises, s.db.Model(&db.Exercise{})},
		{&stats.Sessions, s.db.Model(&db.CustomSession{})},
		{&stats.PublishedSessions, s.db.Model(&db.CustomSession{}).Where("status = ?", db.SessionStatusPublished)},
		{&stats.ActiveInstances, s.db.Model(&db.SessionInstance{}).Where("status IN ?", []string{db.InstanceAssigned, db.InstanceStarted})},
		{&stats.CompletedLastWeek, s.db.Model(&db.SessionInstance{}).Where("status = ? AND completed_at >= ?", db.InstanceDone, weekAgo)},
		{&stats.CravingsLastWeek, s.db.Model(&db.CravingEntry{}).Where("created_at >= ?", weekAgo)},
		{&stats.Content, s.db.Model(&db.PsychoEducationContent{})},
		{&stats.Media, s.db.Model(&db.MediaFile{})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.target).Error; err != nil {
			return nil, fmt.Errorf("dashboard count: %w", err)
		}
	}

	inactive, err := s.InactivePatients()
	if err != nil {
		return nil, err
	}
	stats.InactivePatients = int64(len(inactive))
	return stats, nil
}

// InactivePatients 返回超过阈值未登录的启用患者；从未登录的按注册时间计算。
func (s *DashboardService) InactivePatients() ([]db.User, error) {
	var patients []db.User
	if err := s.db.Where("role = ? AND is_active = ?", db.RolePatient, true).
		Order("id ASC").Find(&patients).Error; err != nil {
		return nil, fmt.Errorf("load patients: %w", err)
	}

	now := s.now().UTC()
	out := make([]db.User, 0)
	for _, p := range patients {
		threshold := p.InactivityThreshold
		if threshold <= 0 {
			threshold = 30
		}
		last := p.CreatedAt
		if p.LastLoginAt != nil {
			last = *p.LastLoginAt
		}
		if now.Sub(last) > time.Duration(threshold)*24*time.Hour {
			out = append(out, p)
		}
	}
	return out, nil
}
