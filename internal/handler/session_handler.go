package handler

import (
	"errors"
	"io"
	"net/http"

	"github.com/apaddicto/internal/db"
	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
)

type sessionMetaRequest struct {
	Title       *string  `json:"title" binding:"omitempty,max=200"`
	Description *string  `json:"description"`
	Category    *string  `json:"category" binding:"omitempty,max=50"`
	Difficulty  *string  `json:"difficulty" binding:"omitempty,oneof=beginner intermediate advanced"`
	IsPublic    *bool    `json:"isPublic"`
	IsTemplate  *bool    `json:"isTemplate"`
	Status      *string  `json:"status" binding:"omitempty,oneof=draft published archived"`
	Tags        []string `json:"tags"`
}

func (r sessionMetaRequest) toInput() service.SessionInput {
	return service.SessionInput{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Difficulty:  r.Difficulty,
		IsPublic:    r.IsPublic,
		IsTemplate:  r.IsTemplate,
		Status:      r.Status,
		Tags:        r.Tags,
	}
}

type sessionElementRequest struct {
	ExerciseID  uint   `json:"exerciseId" binding:"required"`
	VariationID *uint  `json:"variationId"`
	Duration    *int   `json:"duration" binding:"omitempty,gt=0"`
	Repetitions *int   `json:"repetitions" binding:"omitempty,gte=1"`
	RestTime    *int   `json:"restTime" binding:"omitempty,gte=0"`
	Notes       string `json:"notes"`
}

type createSessionRequest struct {
	Title       *string                 `json:"title" binding:"omitempty,max=200"`
	Description *string                 `json:"description"`
	Category    *string                 `json:"category" binding:"omitempty,max=50"`
	Difficulty  *string                 `json:"difficulty" binding:"omitempty,oneof=beginner intermediate advanced"`
	IsPublic    *bool                   `json:"isPublic"`
	IsTemplate  *bool                   `json:"isTemplate"`
	Status      *string                 `json:"status" binding:"omitempty,oneof=draft published archived"`
	Tags        []string                `json:"tags"`
	Elements    []sessionElementRequest `json:"elements" binding:"dive"`
}

func (r createSessionRequest) meta() sessionMetaRequest {
	return sessionMetaRequest{
		Title:       r.Title,
		Description: r.Description,
		Category:    r.Category,
		Difficulty:  r.Difficulty,
		IsPublic:    r.IsPublic,
		IsTemplate:  r.IsTemplate,
		Status:      r.Status,
		Tags:        r.Tags,
	}
}

type replaceElementsRequest struct {
	Elements []sessionElementRequest `json:"elements" binding:"required,dive"`
}

type publishRequest struct {
	PatientIDs []uint `json:"patientIds" binding:"required,min=1"`
}

type outcomeRequest struct {
	CravingBefore *int    `json:"cravingBefore" binding:"omitempty,gte=0,lte=10"`
	CravingAfter  *int    `json:"cravingAfter" binding:"omitempty,gte=0,lte=10"`
	MoodBefore    *int    `json:"moodBefore" binding:"omitempty,gte=0,lte=10"`
	MoodAfter     *int    `json:"moodAfter" binding:"omitempty,gte=0,lte=10"`
	Feedback      *string `json:"feedback" binding:"omitempty,max=5000"`
}

func (r outcomeRequest) toOutcome() service.InstanceOutcome {
	return service.InstanceOutcome{
		CravingBefore: r.CravingBefore,
		CravingAfter:  r.CravingAfter,
		MoodBefore:    r.MoodBefore,
		MoodAfter:     r.MoodAfter,
		Feedback:      r.Feedback,
	}
}

type transitionRequest struct {
	Status        string  `json:"status" binding:"required"`
	CravingBefore *int    `json:"cravingBefore" binding:"omitempty,gte=0,lte=10"`
	CravingAfter  *int    `json:"cravingAfter" binding:"omitempty,gte=0,lte=10"`
	MoodBefore    *int    `json:"moodBefore" binding:"omitempty,gte=0,lte=10"`
	MoodAfter     *int    `json:"moodAfter" binding:"omitempty,gte=0,lte=10"`
	Feedback      *string `json:"feedback" binding:"omitempty,max=5000"`
}

func toElementInputs(elements []sessionElementRequest) []service.ElementInput {
	out := make([]service.ElementInput, 0, len(elements))
	for _, el := range elements {
		out = append(out, service.ElementInput{
			ExerciseID:  el.ExerciseID,
			VariationID: el.VariationID,
			Duration:    el.Duration,
			Repetitions: el.Repetitions,
			RestTime:    el.RestTime,
			Notes:       el.Notes,
		})
	}
	return out
}

// bindOptionalOutcome 允许空请求体（包括 chunked 编码的空体）
func bindOptionalOutcome(c *gin.Context) (service.InstanceOutcome, bool) {
	var req outcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if errors.Is(err, io.EOF) {
			return outcomeRequest{}.toOutcome(), true
		}
		respondBindError(c, err)
		return service.InstanceOutcome{}, false
	}
	return req.toOutcome(), true
}

// ListPublicSessions 患者可见的公开会话
func (a *API) ListPublicSessions(c *gin.Context) {
	sessions, err := a.sessions.List(service.SessionFilter{
		Category:   c.Query("category"),
		Difficulty: c.Query("difficulty"),
		Search:     c.Query("search"),
		PublicOnly: true,
	})
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// AdminListSessions 后台会话列表
func (a *API) AdminListSessions(c *gin.Context) {
	sessions, err := a.sessions.List(service.SessionFilter{
		Category:   c.Query("category"),
		Difficulty: c.Query("difficulty"),
		Status:     c.Query("status"),
		Search:     c.Query("search"),
		Templates:  parseBoolQuery(c, "template"),
	})
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession 公开或已分配给当前用户的会话；管理员可查看全部
func (a *API) GetSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	principal := mustPrincipal(c)
	var (
		session *db.CustomSession
		err     error
	)
	if principal.IsAdmin() {
		session, err = a.sessions.Get(id)
	} else {
		session, err = a.sessions.GetForUser(id, principal.UserID)
	}
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

func (a *API) AdminGetSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	session, err := a.sessions.Get(id)
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": session})
}

// CreateSession 在一个事务中创建会话与元素
func (a *API) CreateSession(c *gin.Context) {
	var req createSessionRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := a.sessions.Create(mustPrincipal(c).UserID, req.meta().toInput(), toElementInputs(req.Elements))
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "session created", "session": session})
}

func (a *API) UpdateSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req sessionMetaRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := a.sessions.Update(id, req.toInput())
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session updated", "session": session})
}

// ReplaceSessionElements 替换全部元素并重新计算总时长
func (a *API) ReplaceSessionElements(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req replaceElementsRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := a.sessions.ReplaceElements(id, toElementInputs(req.Elements))
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "elements replaced", "session": session})
}

func (a *API) DeleteSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.sessions.Delete(id); err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session deleted"})
}

func (a *API) DuplicateSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	session, err := a.sessions.Duplicate(id, mustPrincipal(c).UserID)
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "session duplicated", "session": session})
}

// PublishSession 为每位患者创建 assigned 实例
func (a *API) PublishSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req publishRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := a.sessions.Publish(id, mustPrincipal(c).UserID, req.PatientIDs)
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":   "session published",
		"session":   result.Session,
		"instances": result.Created,
		"skipped":   result.Skipped,
	})
}

func (a *API) AdminListSessionInstances(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	instances, err := a.sessions.ListInstances(id)
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": instances})
}

// SelfStartSession 患者直接开始公开会话
func (a *API) SelfStartSession(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	outcome, ok := bindOptionalOutcome(c)
	if !ok {
		return
	}
	instance, err := a.sessions.SelfStart(id, mustPrincipal(c).UserID, outcome)
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "session started", "instance": instance})
}

// ListMyInstances 当前患者的会话实例
func (a *API) ListMyInstances(c *gin.Context) {
	instances, err := a.sessions.ListUserInstances(mustPrincipal(c).UserID, c.Query("status"))
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instances": instances})
}

func (a *API) GetMyInstance(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	instance, err := a.sessions.GetInstance(id, mustPrincipal(c).UserID)
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"instance": instance})
}

func (a *API) StartInstance(c *gin.Context) {
	a.transitionInstance(c, "started")
}

func (a *API) CompleteInstance(c *gin.Context) {
	a.transitionInstance(c, "done")
}

func (a *API) AbandonInstance(c *gin.Context) {
	a.transitionInstance(c, "abandoned")
}

func (a *API) SkipInstance(c *gin.Context) {
	a.transitionInstance(c, "skipped")
}

// UpdateInstanceStatus 兼容旧客户端提交 {status}
func (a *API) UpdateInstanceStatus(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req transitionRequest
	if !bindJSON(c, &req) {
		return
	}
	instance, err := a.sessions.Transition(id, mustPrincipal(c).UserID, req.Status, service.InstanceOutcome{
		CravingBefore: req.CravingBefore,
		CravingAfter:  req.CravingAfter,
		MoodBefore:    req.MoodBefore,
		MoodAfter:     req.MoodAfter,
		Feedback:      req.Feedback,
	})
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "instance updated", "instance": instance})
}

func (a *API) transitionInstance(c *gin.Context, target string) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	outcome, ok := bindOptionalOutcome(c)
	if !ok {
		return
	}
	instance, err := a.sessions.Transition(id, mustPrincipal(c).UserID, target, outcome)
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "instance updated", "instance": instance})
}

// CompleteInstanceElement 记录一个完成的元素
func (a *API) CompleteInstanceElement(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	elementID, ok := idParam(c, "elementId")
	if !ok {
		return
	}
	instance, err := a.sessions.Advance(id, mustPrincipal(c).UserID, elementID)
	if err != nil {
		a.handleSessionError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "element completed", "instance": instance})
}

func (a *API) handleSessionError(c *gin.Context, err error) {
	if a.respondServiceError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrSessionNotFound),
		errors.Is(err, service.ErrInstanceNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrElementNotInSession):
		respondError(c, http.StatusBadRequest, err.Error())
	default:
		a.respondInternal(c, err)
	}
}
