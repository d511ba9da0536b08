package service

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/apaddicto/internal/db"
	"gorm.io/gorm"
)

var (
	// ErrCravingNotFound 在记录不存在或不属于调用者时返回
	ErrCravingNotFound = errors.New("craving entry not found")
)

// CravingLogPoints 是每次记录渴求奖励的积分。
const CravingLogPoints = 1

const maxStatsDays = 365

// CravingService 负责渴求记录与统计。
// 所有查询都以用户 ID 限定范围。
type CravingService struct {
	db  *gorm.DB
	now func() time.Time
}

// CravingInput 定义新建记录时可提交字段
type CravingInput struct {
	Intensity *int
	Triggers  []string
	Emotions  []string
	Notes     string
}

// CravingDay 是统计序列中的单日数据
type CravingDay struct {
	Date             string  `json:"date"`
	Count            int     `json:"count"`
	AverageIntensity float64 `json:"averageIntensity"`
}

// TriggerCount 统计触发因素出现次数
type TriggerCount struct {
	Trigger string `json:"trigger"`
	Count   int    `json:"count"`
}

// CravingStats 汇总区间内的记录
type CravingStats struct {
	Days             int            `json:"days"`
	RangeStart       string         `json:"rangeStart"`
	RangeEnd         string         `json:"rangeEnd"`
	Count            int            `json:"count"`
	AverageIntensity float64        `json:"averageIntensity"`
	CurrentStreak    int            `json:"currentStreak"`
	LongestStreak    int            `json:"longestStreak"`
	TopTriggers      []TriggerCount `json:"topTriggers"`
	Series           []CravingDay   `json:"series"`
}

// NewCravingService 构造 CravingService
func NewCravingService(gdb *gorm.DB) *CravingService {
	return &CravingService{db: gdb, now: time.Now}
}

// Create 新建记录并为用户加分
func (s *CravingService) Create(userID uint, input CravingInput) (*db.CravingEntry, error) {
	if input.Intensity == nil {
		return nil, invalidField("intensity", "is required")
	}
	if !inScale(input.Intensity, 0, 10) {
		return nil, invalidField("intensity", "must be between 0 and 10")
	}

	entry := db.CravingEntry{
		UserID:    userID,
		Intensity: *input.Intensity,
		Triggers:  db.ToJSON(cleanStrings(input.Triggers)),
		Emotions:  db.ToJSON(cleanStrings(input.Emotions)),
		Notes:     strings.TrimSpace(input.Notes),
	}
	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&entry).Error; err != nil {
			return fmt.Errorf("create craving entry: %w", err)
		}
		return awardPoints(tx, userID, CravingLogPoints)
	})
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// List 返回用户最近的记录，limit<=0 时返回全部
func (s *CravingService) List(userID uint, limit int) ([]db.CravingEntry, error) {
	var entries []db.CravingEntry
	query := s.db.Where("user_id = ?", userID).Order("created_at DESC").Order("id DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	if err := query.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("list craving entries: %w", err)
	}
	return entries, nil
}

// Delete 删除用户自己的记录
func (s *CravingService) Delete(userID, id uint) error {
	result := s.db.Where("id = ? AND user_id = ?", id, userID).Delete(&db.CravingEntry{})
	if result.Error != nil {
		return fmt.Errorf("delete craving entry: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCravingNotFound
	}
	return nil
}

// Stats 计算最近 days 天（含今天）的统计，序列中没有记录的日子计数为 0。
func (s *CravingService) Stats(userID uint, days int) (*CravingStats, error) {
	if days <= 0 {
		days = 30
	}
	if days > maxStatsDays {
		days = maxStatsDays
	}

	now := s.now().UTC()
	end := normalizeToDate(now)
	start := end.AddDate(0, 0, -(days - 1))

	var entries []db.CravingEntry
	if err := s.db.Where("user_id = ? AND created_at >= ?", userID, start).
		Order("created_at ASC").
		Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("load craving stats: %w", err)
	}

	stats := &CravingStats{
		Days:        days,
		RangeStart:  start.Format("2006-01-02"),
		RangeEnd:    end.Format("2006-01-02"),
		Count:       len(entries),
		TopTriggers: []TriggerCount{},
		Series:      make([]CravingDay, 0, days),
	}

	type bucket struct {
		count int
		sum   int
	}
	buckets := make(map[string]*bucket, days)
	triggers := map[string]int{}
	total := 0
	for _, entry := range entries {
		key := entry.CreatedAt.UTC().Format("2006-01-02")
		b, ok := buckets[key]
		if !ok {
			b = &bucket{}
			buckets[key] = b
		}
		b.count++
		b.sum += entry.Intensity
		total += entry.Intensity
		for _, trigger := range db.StringList(entry.Triggers) {
			triggers[strings.ToLower(trigger)]++
		}
	}
	if len(entries) > 0 {
		stats.AverageIntensity = roundTo(float64(total)/float64(len(entries)), 2)
	}

	var logged []time.Time
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		key := day.Format("2006-01-02")
		point := CravingDay{Date: key}
		if b, ok := buckets[key]; ok {
			point.Count = b.count
			point.AverageIntensity = roundTo(float64(b.sum)/float64(b.count), 2)
			logged = append(logged, day)
		}
		stats.Series = append(stats.Series, point)
	}
	stats.CurrentStreak, stats.LongestStreak = calculateStreaks(logged, end)

	for trigger, count := range triggers {
		stats.TopTriggers = append(stats.TopTriggers, TriggerCount{Trigger: trigger, Count: count})
	}
	sort.Slice(stats.TopTriggers, func(i, j int) bool {
		if stats.TopTriggers[i].Count != stats.TopTriggers[j].Count {
			return stats.TopTriggers[i].Count > stats.TopTriggers[j].Count
		}
		return stats.TopTriggers[i].Trigger < stats.TopTriggers[j].Trigger
	})
	if len(stats.TopTriggers) > 5 {
		stats.TopTriggers = stats.TopTriggers[:5]
	}

	return stats, nil
}

func normalizeToDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// calculateStreaks 计算连续记录天数；当前连续仅在最后一次记录为今天或昨天时有效。
func calculateStreaks(days []time.Time, today time.Time) (current, longest int) {
	if len(days) == 0 {
		return 0, 0
	}

	longest = 1
	run := 1
	for i := 1; i < len(days); i++ {
		delta := int(days[i].Sub(days[i-1]).Hours() / 24)
		if delta == 1 {
			run++
			if run > longest {
				longest = run
			}
		} else {
			run = 1
		}
	}

	last := days[len(days)-1]
	if gap := int(today.Sub(last).Hours() / 24); gap <= 1 {
		current = run
	}
	return current, longest
}

func roundTo(value float64, places int) float64 {
	factor := 1.0
	for i := 0; i < places; i++ {
		factor *= 10
	}
	return float64(int64(value*factor+0.5)) / factor
}
