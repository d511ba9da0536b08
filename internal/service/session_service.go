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
	// ErrSessionNotFound 在会话不存在或对调用者不可见时返回
	ErrSessionNotFound = errors.New("session not found")
	// ErrInstanceNotFound 在会话实例不存在或不属于调用者时返回
	ErrInstanceNotFound = errors.New("session instance not found")
	// ErrElementNotInSession 在元素不属于实例对应的会话时返回
	ErrElementNotInSession = errors.New("element does not belong to session")
)

// SessionCompletionPoints 是完成一次会话奖励的积分。
const SessionCompletionPoints = 10

// instanceTransitions 定义实例状态机，只允许向前迁移。
var instanceTransitions = map[string][]string{
	db.InstanceAssigned: {db.InstanceStarted, db.InstanceSkipped},
	db.InstanceStarted:  {db.InstanceDone, db.InstanceAbandoned},
}

// SessionService 负责会话编排、发布与患者执行。
type SessionService struct {
	db  *gorm.DB
	now func() time.Time
}

// SessionFilter 描述后台会话列表过滤条件
type SessionFilter struct {
	Category   string
	Difficulty string
	Status     string
	Search     string
	Templates  *bool
	PublicOnly bool
}

// SessionInput 是会话元数据，nil 字段表示未提交。
type SessionInput struct {
	Title       *string
	Description *string
	Category    *string
	Difficulty  *string
	IsPublic    *bool
	IsTemplate  *bool
	Status      *string
	Tags        []string
}

// ElementInput 描述会话中的一个元素，Duration 与 RestTime 以秒计。
type ElementInput struct {
	ExerciseID  uint
	VariationID *uint
	Duration    *int
	Repetitions *int
	RestTime    *int
	Notes       string
}

// PublishResult 汇总一次发布的结果。
type PublishResult struct {
	Session *db.CustomSession
	Created []db.SessionInstance
	Skipped []uint
}

// InstanceOutcome 是开始或结束实例时可提交的自评数据。
type InstanceOutcome struct {
	CravingBefore *int
	CravingAfter  *int
	MoodBefore    *int
	MoodAfter     *int
	Feedback      *string
}

// RepairReport 汇总 repair-sessions 的结果。
type RepairReport struct {
	Sessions        int
	Renumbered      int
	TotalsRefreshed int
}

// NewSessionService 构造 SessionService
func NewSessionService(gdb *gorm.DB) *SessionService {
	return &SessionService{db: gdb, now: time.Now}
}

// List 返回会话集合
func (s *SessionService) List(filter SessionFilter) ([]db.CustomSession, error) {
	var sessions []db.CustomSession
	query := s.db.Model(&db.CustomSession{})
	if filter.PublicOnly {
		query = query.Where("is_public = ? AND status = ?", true, db.SessionStatusPublished)
	}
	if category := normalizeKey(filter.Category); category != "" {
		query = query.Where("category = ?", category)
	}
	if difficulty := normalizeKey(filter.Difficulty); difficulty != "" {
		query = query.Where("difficulty = ?", difficulty)
	}
	if status := normalizeKey(filter.Status); status != "" {
		query = query.Where("status = ?", status)
	}
	if filter.Templates != nil {
		query = query.Where("is_template = ?", *filter.Templates)
	}
	if search := strings.TrimSpace(filter.Search); search != "" {
		like := "%" + strings.ToLower(search) + "%"
		query = query.Where("LOWER(title) LIKE ? OR LOWER(description) LIKE ?", like, like)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&sessions).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// Get 返回会话及其按顺序排列的元素
func (s *SessionService) Get(id uint) (*db.CustomSession, error) {
	return loadSession(s.db, id)
}

// GetForUser 仅在会话公开发布或已分配给该用户时返回。
func (s *SessionService) GetForUser(id, userID uint) (*db.CustomSession, error) {
	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	if session.IsPublic && session.Status == db.SessionStatusPublished {
		return session, nil
	}
	var count int64
	if err := s.db.Model(&db.SessionInstance{}).
		Where("session_id = ? AND user_id = ?", id, userID).
		Count(&count).Error; err != nil {
		return nil, fmt.Errorf("check assignment: %w", err)
	}
	if count == 0 {
		return nil, ErrSessionNotFound
	}
	return session, nil
}

// Create 在同一事务中写入会话与全部元素。
// 元素顺序即数组下标，总时长在提交前计算，任一元素无效则整体回滚。
func (s *SessionService) Create(creatorID uint, meta SessionInput, elements []ElementInput) (*db.CustomSession, error) {
	errs := fieldErrors{}
	if meta.Title == nil || strings.TrimSpace(*meta.Title) == "" {
		errs.add("title", "is required")
	}
	validateSessionInput(meta, errs)
	validateElementShapes(elements, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var sessionID uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		session := db.CustomSession{
			Difficulty: db.DifficultyBeginner,
			Status:     db.SessionStatusDraft,
			Tags:       db.ToJSON([]string{}),
		}
		if creatorID != 0 {
			creator := creatorID
			session.CreatorID = &creator
		}
		applySessionInput(&session, meta)
		if err := tx.Create(&session).Error; err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := insertElements(tx, session.ID, elements); err != nil {
			return err
		}
		if _, err := recomputeTotalDuration(tx, session.ID); err != nil {
			return err
		}
		sessionID = session.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.Get(sessionID)
}

// Update 合并会话元数据
func (s *SessionService) Update(id uint, meta SessionInput) (*db.CustomSession, error) {
	errs := fieldErrors{}
	if meta.Title != nil && strings.TrimSpace(*meta.Title) == "" {
		errs.add("title", "must not be empty")
	}
	validateSessionInput(meta, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var session db.CustomSession
	if err := s.db.First(&session, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find session: %w", err)
	}
	applySessionInput(&session, meta)
	if err := s.db.Omit("Elements").Save(&session).Error; err != nil {
		return nil, fmt.Errorf("update session: %w", err)
	}
	return s.Get(id)
}

// ReplaceElements 替换全部元素并重新计算总时长。
func (s *SessionService) ReplaceElements(id uint, elements []ElementInput) (*db.CustomSession, error) {
	errs := fieldErrors{}
	validateElementShapes(elements, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session db.CustomSession
		if err := tx.First(&session, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("find session: %w", err)
		}
		if err := tx.Where("session_id = ?", id).Delete(&db.SessionElement{}).Error; err != nil {
			return fmt.Errorf("clear elements: %w", err)
		}
		if err := insertElements(tx, id, elements); err != nil {
			return err
		}
		_, err := recomputeTotalDuration(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return s.Get(id)
}

// Delete 删除会话，元素与实例一并删除
func (s *SessionService) Delete(id uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var session db.CustomSession
		if err := tx.First(&session, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("find session: %w", err)
		}
		if err := tx.Where("session_id = ?", id).Delete(&db.SessionInstance{}).Error; err != nil {
			return fmt.Errorf("delete instances: %w", err)
		}
		if err := tx.Where("session_id = ?", id).Delete(&db.SessionElement{}).Error; err != nil {
			return fmt.Errorf("delete elements: %w", err)
		}
		if err := tx.Delete(&session).Error; err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// Duplicate 复制会话（含元素）为新的草稿。
func (s *SessionService) Duplicate(id, creatorID uint) (*db.CustomSession, error) {
	source, err := s.Get(id)
	if err != nil {
		return nil, err
	}

	title := source.Title + " (copie)"
	description := source.Description
	category := source.Category
	difficulty := source.Difficulty
	isPublic := false
	isTemplate := false
	meta := SessionInput{
		Title:       &title,
		Description: &description,
		Category:    &category,
		Difficulty:  &difficulty,
		IsPublic:    &isPublic,
		IsTemplate:  &isTemplate,
		Tags:        db.StringList(source.Tags),
	}

	elements := make([]ElementInput, 0, len(source.Elements))
	for _, el := range source.Elements {
		repetitions := el.Repetitions
		restTime := el.RestTime
		elements = append(elements, ElementInput{
			ExerciseID:  el.ExerciseID,
			VariationID: el.VariationID,
			Duration:    el.Duration,
			Repetitions: &repetitions,
			RestTime:    &restTime,
			Notes:       el.Notes,
		})
	}
	return s.Create(creatorID, meta, elements)
}

// Publish 为每位患者创建一个 assigned 实例，并将会话标记为 published。
// 已持有该会话 assigned/started 实例的患者会被跳过并记入 Skipped，
// 因此重复发布不会产生重复的进行中分配；done/abandoned/skipped 实例不阻止再次分配。
func (s *SessionService) Publish(id, assignedBy uint, patientIDs []uint) (*PublishResult, error) {
	ids := uniqueIDs(patientIDs)
	result := &PublishResult{Created: []db.SessionInstance{}, Skipped: []uint{}}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session db.CustomSession
		if err := tx.First(&session, id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("find session: %w", err)
		}
		if session.Status == db.SessionStatusArchived {
			return fmt.Errorf("%w: archived session cannot be published", ErrInvalidTransition)
		}

		var elementCount int64
		if err := tx.Model(&db.SessionElement{}).Where("session_id = ?", id).Count(&elementCount).Error; err != nil {
			return fmt.Errorf("count elements: %w", err)
		}
		if elementCount == 0 {
			return invalidField("elements", "session has no elements")
		}

		if len(ids) > 0 {
			var patients []db.User
			if err := tx.Where("id IN ? AND role = ?", ids, db.RolePatient).Find(&patients).Error; err != nil {
				return fmt.Errorf("load patients: %w", err)
			}
			if len(patients) != len(ids) {
				found := make(map[uint]bool, len(patients))
				for _, p := range patients {
					found[p.ID] = true
				}
				for _, pid := range ids {
					if !found[pid] {
						return invalidField("patientIds", fmt.Sprintf("user %d is not a patient", pid))
					}
				}
			}

			var busy []uint
			if err := tx.Model(&db.SessionInstance{}).
				Where("session_id = ? AND user_id IN ? AND status IN ?", id, ids, []string{db.InstanceAssigned, db.InstanceStarted}).
				Distinct().Pluck("user_id", &busy).Error; err != nil {
				return fmt.Errorf("check existing assignments: %w", err)
			}
			busySet := make(map[uint]bool, len(busy))
			for _, uid := range busy {
				busySet[uid] = true
			}

			var assigner *uint
			if assignedBy != 0 {
				a := assignedBy
				assigner = &a
			}
			for _, pid := range ids {
				if busySet[pid] {
					result.Skipped = append(result.Skipped, pid)
					continue
				}
				instance := db.SessionInstance{
					SessionID:         id,
					UserID:            pid,
					AssignedBy:        assigner,
					Status:            db.InstanceAssigned,
					CompletedElements: db.ToJSON([]uint{}),
				}
				if err := tx.Create(&instance).Error; err != nil {
					return fmt.Errorf("create instance: %w", err)
				}
				result.Created = append(result.Created, instance)
			}
		}

		if err := tx.Model(&session).Update("status", db.SessionStatusPublished).Error; err != nil {
			return fmt.Errorf("publish session: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	session, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	result.Session = session
	return result, nil
}

// ListInstances 返回某会话的全部实例（后台）
func (s *SessionService) ListInstances(sessionID uint) ([]db.SessionInstance, error) {
	if _, err := s.Get(sessionID); err != nil {
		return nil, err
	}
	var instances []db.SessionInstance
	if err := s.db.Where("session_id = ?", sessionID).
		Order("created_at DESC").Order("id DESC").
		Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("list instances: %w", err)
	}
	return instances, nil
}

// ListUserInstances 返回某患者的实例，附带会话信息
func (s *SessionService) ListUserInstances(userID uint, status string) ([]db.SessionInstance, error) {
	var instances []db.SessionInstance
	query := s.db.Preload("Session").Where("user_id = ?", userID)
	if status = normalizeInstanceStatus(status); status != "" {
		query = query.Where("status = ?", status)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&instances).Error; err != nil {
		return nil, fmt.Errorf("list user instances: %w", err)
	}
	return instances, nil
}

// GetInstance 返回属于该用户的实例
func (s *SessionService) GetInstance(id, userID uint) (*db.SessionInstance, error) {
	instance, err := findInstance(s.db, id, userID)
	if err != nil {
		return nil, err
	}
	session, err := s.Get(instance.SessionID)
	if err != nil {
		return nil, err
	}
	instance.Session = session
	return instance, nil
}

// SelfStart 让患者直接开始一个公开会话；已有进行中的实例时复用它。
func (s *SessionService) SelfStart(sessionID, userID uint, outcome InstanceOutcome) (*db.SessionInstance, error) {
	if err := validateOutcome(outcome); err != nil {
		return nil, err
	}

	var instanceID uint
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var session db.CustomSession
		if err := tx.First(&session, sessionID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrSessionNotFound
			}
			return fmt.Errorf("find session: %w", err)
		}

		var existing db.SessionInstance
		err := tx.Where("session_id = ? AND user_id = ? AND status IN ?", sessionID, userID,
			[]string{db.InstanceAssigned, db.InstanceStarted}).
			Order("id DESC").First(&existing).Error
		switch {
		case err == nil:
			instanceID = existing.ID
			if existing.Status == db.InstanceAssigned {
				return s.transition(tx, &existing, db.InstanceStarted, outcome)
			}
			return nil
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("find instance: %w", err)
		}

		if !session.IsPublic || session.Status != db.SessionStatusPublished {
			return ErrSessionNotFound
		}
		now := s.now().UTC()
		instance := db.SessionInstance{
			SessionID:         sessionID,
			UserID:            userID,
			Status:            db.InstanceStarted,
			CompletedElements: db.ToJSON([]uint{}),
			CravingBefore:     outcome.CravingBefore,
			MoodBefore:        outcome.MoodBefore,
			StartedAt:         &now,
		}
		if err := tx.Create(&instance).Error; err != nil {
			return fmt.Errorf("create instance: %w", err)
		}
		instanceID = instance.ID
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.GetInstance(instanceID, userID)
}

// Start 将 assigned 实例迁移为 started。
func (s *SessionService) Start(id, userID uint, outcome InstanceOutcome) (*db.SessionInstance, error) {
	return s.Transition(id, userID, db.InstanceStarted, outcome)
}

// Complete 将 started 实例迁移为 done 并奖励积分。
func (s *SessionService) Complete(id, userID uint, outcome InstanceOutcome) (*db.SessionInstance, error) {
	return s.Transition(id, userID, db.InstanceDone, outcome)
}

// Abandon 将 started 实例迁移为 abandoned。
func (s *SessionService) Abandon(id, userID uint) (*db.SessionInstance, error) {
	return s.Transition(id, userID, db.InstanceAbandoned, InstanceOutcome{})
}

// Skip 将 assigned 实例迁移为 skipped。
func (s *SessionService) Skip(id, userID uint) (*db.SessionInstance, error) {
	return s.Transition(id, userID, db.InstanceSkipped, InstanceOutcome{})
}

// Transition 执行一次状态迁移，非法迁移返回 ErrInvalidTransition。
// 接受旧客户端使用的 in_progress/completed 作为 started/done 的别名。
func (s *SessionService) Transition(id, userID uint, target string, outcome InstanceOutcome) (*db.SessionInstance, error) {
	target = normalizeInstanceStatus(target)
	if target == "" {
		return nil, invalidField("status", "is required")
	}
	if err := validateOutcome(outcome); err != nil {
		return nil, err
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		instance, err := findInstance(tx, id, userID)
		if err != nil {
			return err
		}
		return s.transition(tx, instance, target, outcome)
	})
	if err != nil {
		return nil, err
	}
	return s.GetInstance(id, userID)
}

// Advance 记录一个已完成元素：重复提交不产生变化，assigned 自动变为 started，
// 全部元素完成时实例变为 done。
func (s *SessionService) Advance(id, userID, elementID uint) (*db.SessionInstance, error) {
	err := s.db.Transaction(func(tx *gorm.DB) error {
		instance, err := findInstance(tx, id, userID)
		if err != nil {
			return err
		}

		var elementIDs []uint
		if err := tx.Model(&db.SessionElement{}).
			Where("session_id = ?", instance.SessionID).
			Order("element_order ASC").
			Pluck("id", &elementIDs).Error; err != nil {
			return fmt.Errorf("load elements: %w", err)
		}
		if !containsID(elementIDs, elementID) {
			return ErrElementNotInSession
		}

		completed := db.IDList(instance.CompletedElements)
		if containsID(completed, elementID) {
			return nil
		}
		if instance.IsTerminal() {
			return fmt.Errorf("%w: instance is %s", ErrInvalidTransition, instance.Status)
		}

		if instance.Status == db.InstanceAssigned {
			if err := s.transition(tx, instance, db.InstanceStarted, InstanceOutcome{}); err != nil {
				return err
			}
		}

		completed = append(completed, elementID)
		instance.CompletedElements = db.ToJSON(completed)
		if err := tx.Model(instance).Update("completed_elements", instance.CompletedElements).Error; err != nil {
			return fmt.Errorf("save progress: %w", err)
		}

		for _, eid := range elementIDs {
			if !containsID(completed, eid) {
				return nil
			}
		}
		return s.transition(tx, instance, db.InstanceDone, InstanceOutcome{})
	})
	if err != nil {
		return nil, err
	}
	return s.GetInstance(id, userID)
}

// Repair 重新编号所有会话的元素并刷新总时长。
func (s *SessionService) Repair() (*RepairReport, error) {
	var ids []uint
	if err := s.db.Model(&db.CustomSession{}).Order("id ASC").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}

	report := &RepairReport{Sessions: len(ids)}
	for _, id := range ids {
		err := s.db.Transaction(func(tx *gorm.DB) error {
			var before int
			if err := tx.Model(&db.CustomSession{}).Where("id = ?", id).Select("total_duration").Scan(&before).Error; err != nil {
				return fmt.Errorf("read total: %w", err)
			}
			changed, err := renumberElementsCount(tx, id)
			if err != nil {
				return err
			}
			if changed > 0 {
				report.Renumbered++
			}
			total, err := recomputeTotalDuration(tx, id)
			if err != nil {
				return err
			}
			if total != before {
				report.TotalsRefreshed++
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("repair session %d: %w", id, err)
		}
	}
	return report, nil
}

func (s *SessionService) transition(tx *gorm.DB, instance *db.SessionInstance, target string, outcome InstanceOutcome) error {
	if !canTransition(instance.Status, target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, instance.Status, target)
	}

	now := s.now().UTC()
	updates := map[string]interface{}{"status": target}
	switch target {
	case db.InstanceStarted:
		updates["started_at"] = now
		if outcome.CravingBefore != nil {
			updates["craving_before"] = *outcome.CravingBefore
		}
		if outcome.MoodBefore != nil {
			updates["mood_before"] = *outcome.MoodBefore
		}
	case db.InstanceDone, db.InstanceAbandoned, db.InstanceSkipped:
		updates["completed_at"] = now
		if outcome.CravingAfter != nil {
			updates["craving_after"] = *outcome.CravingAfter
		}
		if outcome.MoodAfter != nil {
			updates["mood_after"] = *outcome.MoodAfter
		}
		if outcome.Feedback != nil {
			updates["feedback"] = strings.TrimSpace(*outcome.Feedback)
		}
	}

	if err := tx.Model(&db.SessionInstance{}).Where("id = ?", instance.ID).Updates(updates).Error; err != nil {
		return fmt.Errorf("update instance: %w", err)
	}
	instance.Status = target

	if target == db.InstanceDone {
		return awardPoints(tx, instance.UserID, SessionCompletionPoints)
	}
	return nil
}

func canTransition(from, to string) bool {
	for _, allowed := range instanceTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

func normalizeInstanceStatus(status string) string {
	switch normalizeKey(status) {
	case "in_progress", db.InstanceStarted:
		return db.InstanceStarted
	case "completed", db.InstanceDone:
		return db.InstanceDone
	case db.InstanceAssigned:
		return db.InstanceAssigned
	case db.InstanceSkipped:
		return db.InstanceSkipped
	case db.InstanceAbandoned:
		return db.InstanceAbandoned
	default:
		return ""
	}
}

func findInstance(tx *gorm.DB, id, userID uint) (*db.SessionInstance, error) {
	var instance db.SessionInstance
	if err := tx.Where("id = ? AND user_id = ?", id, userID).First(&instance).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrInstanceNotFound
		}
		return nil, fmt.Errorf("get instance: %w", err)
	}
	return &instance, nil
}

func loadSession(tx *gorm.DB, id uint) (*db.CustomSession, error) {
	var session db.CustomSession
	err := tx.Preload("Elements", func(q *gorm.DB) *gorm.DB {
		return q.Order("element_order ASC").Order("id ASC")
	}).Preload("Elements.Exercise").Preload("Elements.Variation").First(&session, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return &session, nil
}

func validateSessionInput(meta SessionInput, errs fieldErrors) {
	if meta.Difficulty != nil && !oneOf(normalizeKey(*meta.Difficulty), difficulties...) {
		errs.add("difficulty", "must be one of beginner, intermediate, advanced")
	}
	if meta.Status != nil && !oneOf(normalizeKey(*meta.Status), db.SessionStatusDraft, db.SessionStatusPublished, db.SessionStatusArchived) {
		errs.add("status", "must be one of draft, published, archived")
	}
}

func applySessionInput(session *db.CustomSession, meta SessionInput) {
	if meta.Title != nil {
		session.Title = strings.TrimSpace(*meta.Title)
	}
	if meta.Description != nil {
		session.Description = strings.TrimSpace(*meta.Description)
	}
	if meta.Category != nil {
		session.Category = normalizeKey(*meta.Category)
	}
	if meta.Difficulty != nil {
		session.Difficulty = normalizeKey(*meta.Difficulty)
	}
	if meta.IsPublic != nil {
		session.IsPublic = *meta.IsPublic
	}
	if meta.IsTemplate != nil {
		session.IsTemplate = *meta.IsTemplate
	}
	if meta.Status != nil {
		session.Status = normalizeKey(*meta.Status)
	}
	if meta.Tags != nil {
		session.Tags = db.ToJSON(cleanStrings(meta.Tags))
	}
}

// validateElementShapes 检查与数据库无关的元素字段。
func validateElementShapes(elements []ElementInput, errs fieldErrors) {
	for i, el := range elements {
		prefix := fmt.Sprintf("elements[%d]", i)
		if el.ExerciseID == 0 {
			errs.add(prefix+".exerciseId", "is required")
		}
		if el.Duration != nil && *el.Duration < 0 {
			errs.add(prefix+".duration", "must not be negative")
		}
		if el.Repetitions != nil && *el.Repetitions < 1 {
			errs.add(prefix+".repetitions", "must be at least 1")
		}
		if el.RestTime != nil && *el.RestTime < 0 {
			errs.add(prefix+".restTime", "must not be negative")
		}
	}
}

// insertElements 写入元素；引用不存在的练习或不匹配的变体时返回字段错误，由调用方回滚。
func insertElements(tx *gorm.DB, sessionID uint, elements []ElementInput) error {
	errs := fieldErrors{}
	rows := make([]db.SessionElement, 0, len(elements))
	for i, el := range elements {
		prefix := fmt.Sprintf("elements[%d]", i)
		if _, err := findExercise(tx, el.ExerciseID); err != nil {
			if errors.Is(err, ErrExerciseNotFound) {
				errs.add(prefix+".exerciseId", "exercise does not exist")
				continue
			}
			return err
		}
		if el.VariationID != nil {
			var count int64
			if err := tx.Model(&db.ExerciseVariation{}).
				Where("id = ? AND exercise_id = ?", *el.VariationID, el.ExerciseID).
				Count(&count).Error; err != nil {
				return fmt.Errorf("check variation: %w", err)
			}
			if count == 0 {
				errs.add(prefix+".variationId", "variation does not belong to exercise")
				continue
			}
		}

		row := db.SessionElement{
			SessionID:   sessionID,
			ExerciseID:  el.ExerciseID,
			VariationID: el.VariationID,
			Order:       i,
			Duration:    el.Duration,
			Repetitions: 1,
			Notes:       strings.TrimSpace(el.Notes),
		}
		if el.Repetitions != nil {
			row.Repetitions = *el.Repetitions
		}
		if el.RestTime != nil {
			row.RestTime = *el.RestTime
		}
		rows = append(rows, row)
	}
	if err := errs.Err(); err != nil {
		return err
	}
	if len(rows) == 0 {
		return nil
	}
	if err := tx.Create(&rows).Error; err != nil {
		return fmt.Errorf("create elements: %w", err)
	}
	return nil
}

// effectiveDuration 返回元素的秒数：元素覆盖 > 变体覆盖 > 练习分钟数×60。
func effectiveDuration(el db.SessionElement) int {
	if el.Duration != nil {
		return *el.Duration
	}
	if el.Variation != nil && el.Variation.DurationOverride != nil {
		return *el.Variation.DurationOverride
	}
	if el.Exercise != nil {
		return el.Exercise.Duration * 60
	}
	return 0
}

// recomputeTotalDuration 根据当前元素重算并保存会话总时长（秒）。
func recomputeTotalDuration(tx *gorm.DB, sessionID uint) (int, error) {
	var elements []db.SessionElement
	if err := tx.Preload("Exercise").Preload("Variation").
		Where("session_id = ?", sessionID).
		Find(&elements).Error; err != nil {
		return 0, fmt.Errorf("load elements: %w", err)
	}
	total := 0
	for _, el := range elements {
		total += effectiveDuration(el) + el.RestTime
	}
	if err := tx.Model(&db.CustomSession{}).Where("id = ?", sessionID).
		Update("total_duration", total).Error; err != nil {
		return 0, fmt.Errorf("save total duration: %w", err)
	}
	return total, nil
}

func recomputeSessionsUsingExercise(tx *gorm.DB, exerciseID uint) error {
	var sessionIDs []uint
	if err := tx.Model(&db.SessionElement{}).Where("exercise_id = ?", exerciseID).
		Distinct().Pluck("session_id", &sessionIDs).Error; err != nil {
		return fmt.Errorf("find affected sessions: %w", err)
	}
	for _, id := range sessionIDs {
		if _, err := recomputeTotalDuration(tx, id); err != nil {
			return err
		}
	}
	return nil
}

func recomputeSessionsUsingVariation(tx *gorm.DB, variationID uint) error {
	var sessionIDs []uint
	if err := tx.Model(&db.SessionElement{}).Where("variation_id = ?", variationID).
		Distinct().Pluck("session_id", &sessionIDs).Error; err != nil {
		return fmt.Errorf("find affected sessions: %w", err)
	}
	for _, id := range sessionIDs {
		if _, err := recomputeTotalDuration(tx, id); err != nil {
			return err
		}
	}
	return nil
}

func renumberElements(tx *gorm.DB, sessionID uint) error {
	_, err := renumberElementsCount(tx, sessionID)
	return err
}

// renumberElementsCount 将元素顺序压缩为从 0 开始的连续序号，返回改动条数。
func renumberElementsCount(tx *gorm.DB, sessionID uint) (int, error) {
	var elements []db.SessionElement
	if err := tx.Where("session_id = ?", sessionID).Find(&elements).Error; err != nil {
		return 0, fmt.Errorf("load elements: %w", err)
	}
	sort.SliceStable(elements, func(i, j int) bool {
		if elements[i].Order != elements[j].Order {
			return elements[i].Order < elements[j].Order
		}
		return elements[i].ID < elements[j].ID
	})
	changed := 0
	for i, el := range elements {
		if el.Order == i {
			continue
		}
		if err := tx.Model(&db.SessionElement{}).Where("id = ?", el.ID).Update("element_order", i).Error; err != nil {
			return 0, fmt.Errorf("renumber element: %w", err)
		}
		changed++
	}
	return changed, nil
}

func validateOutcome(outcome InstanceOutcome) error {
	errs := fieldErrors{}
	if !inScale(outcome.CravingBefore, 0, 10) {
		errs.add("cravingBefore", "must be between 0 and 10")
	}
	if !inScale(outcome.CravingAfter, 0, 10) {
		errs.add("cravingAfter", "must be between 0 and 10")
	}
	if !inScale(outcome.MoodBefore, 0, 10) {
		errs.add("moodBefore", "must be between 0 and 10")
	}
	if !inScale(outcome.MoodAfter, 0, 10) {
		errs.add("moodAfter", "must be between 0 and 10")
	}
	return errs.Err()
}

func containsID(ids []uint, id uint) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

func uniqueIDs(ids []uint) []uint {
	out := make([]uint, 0, len(ids))
	seen := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		if id == 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
