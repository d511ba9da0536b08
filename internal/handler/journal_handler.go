package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
)

type cravingRequest struct {
	Intensity *int     `json:"intensity" binding:"required,gte=0,lte=10"`
	Triggers  []string `json:"triggers"`
	Emotions  []string `json:"emotions"`
	Notes     string   `json:"notes" binding:"max=5000"`
}

type beckRequest struct {
	Situation         string `json:"situation"`
	AutomaticThoughts string `json:"automaticThoughts"`
	Emotions          string `json:"emotions"`
	EmotionIntensity  *int   `json:"emotionIntensity" binding:"omitempty,gte=0,lte=10"`
	RationalResponse  string `json:"rationalResponse"`
	NewFeeling        string `json:"newFeeling"`
	NewIntensity      *int   `json:"newIntensity" binding:"omitempty,gte=0,lte=10"`
}

type strategyRequest struct {
	Context       *string `json:"context" binding:"omitempty,oneof=leisure home work"`
	Exercise      *string `json:"exercise"`
	Effort        *string `json:"effort" binding:"omitempty,oneof=low moderate high"`
	Duration      *int    `json:"duration" binding:"omitempty,gte=0,lte=600"`
	CravingBefore *int    `json:"cravingBefore" binding:"omitempty,gte=0,lte=10"`
	CravingAfter  *int    `json:"cravingAfter" binding:"omitempty,gte=0,lte=10"`
}

func (r strategyRequest) toInput() service.StrategyInput {
	return service.StrategyInput{
		Context:       r.Context,
		Exercise:      r.Exercise,
		Effort:        r.Effort,
		Duration:      r.Duration,
		CravingBefore: r.CravingBefore,
		CravingAfter:  r.CravingAfter,
	}
}

type timerRequest struct {
	ExerciseID  *uint      `json:"exerciseId"`
	Type        string     `json:"type" binding:"max=30"`
	Duration    *int       `json:"duration" binding:"required,gt=0"`
	CompletedAt *time.Time `json:"completedAt"`
}

// ListCravings 当前用户的渴求记录
func (a *API) ListCravings(c *gin.Context) {
	entries, err := a.cravings.List(mustPrincipal(c).UserID, parseIntQuery(c, "limit", 0))
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"cravings": entries})
}

func (a *API) CreateCraving(c *gin.Context) {
	var req cravingRequest
	if !bindJSON(c, &req) {
		return
	}
	entry, err := a.cravings.Create(mustPrincipal(c).UserID, service.CravingInput{
		Intensity: req.Intensity,
		Triggers:  req.Triggers,
		Emotions:  req.Emotions,
		Notes:     req.Notes,
	})
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "craving logged", "craving": entry})
}

func (a *API) DeleteCraving(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.cravings.Delete(mustPrincipal(c).UserID, id); err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "craving deleted"})
}

// CravingStats 返回最近 days 天的统计
func (a *API) CravingStats(c *gin.Context) {
	stats, err := a.cravings.Stats(mustPrincipal(c).UserID, parseIntQuery(c, "days", 30))
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (a *API) ListBeckAnalyses(c *gin.Context) {
	items, err := a.beck.List(mustPrincipal(c).UserID)
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"analyses": items})
}

func (a *API) CreateBeckAnalysis(c *gin.Context) {
	var req beckRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := a.beck.Create(mustPrincipal(c).UserID, service.BeckInput{
		Situation:         req.Situation,
		AutomaticThoughts: req.AutomaticThoughts,
		Emotions:          req.Emotions,
		EmotionIntensity:  req.EmotionIntensity,
		RationalResponse:  req.RationalResponse,
		NewFeeling:        req.NewFeeling,
		NewIntensity:      req.NewIntensity,
	})
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "analysis saved", "analysis": item})
}

func (a *API) DeleteBeckAnalysis(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.beck.Delete(mustPrincipal(c).UserID, id); err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "analysis deleted"})
}

func (a *API) ListStrategies(c *gin.Context) {
	items, err := a.strategies.List(mustPrincipal(c).UserID)
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"strategies": items})
}

func (a *API) CreateStrategy(c *gin.Context) {
	var req strategyRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := a.strategies.Create(mustPrincipal(c).UserID, req.toInput())
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "strategy saved", "strategy": item})
}

func (a *API) UpdateStrategy(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req strategyRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := a.strategies.Update(mustPrincipal(c).UserID, id, req.toInput())
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "strategy updated", "strategy": item})
}

func (a *API) DeleteStrategy(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.strategies.Delete(mustPrincipal(c).UserID, id); err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "strategy deleted"})
}

func (a *API) ListTimerSessions(c *gin.Context) {
	items, err := a.timers.List(mustPrincipal(c).UserID, parseIntQuery(c, "limit", 0))
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"timerSessions": items})
}

func (a *API) CreateTimerSession(c *gin.Context) {
	var req timerRequest
	if !bindJSON(c, &req) {
		return
	}
	item, err := a.timers.Create(mustPrincipal(c).UserID, service.TimerInput{
		ExerciseID:  req.ExerciseID,
		Type:        req.Type,
		Duration:    req.Duration,
		CompletedAt: req.CompletedAt,
	})
	if err != nil {
		a.handleJournalError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "timer session saved", "timerSession": item})
}

func (a *API) handleJournalError(c *gin.Context, err error) {
	if a.respondServiceError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrCravingNotFound),
		errors.Is(err, service.ErrBeckAnalysisNotFound),
		errors.Is(err, service.ErrStrategyNotFound):
		respondError(c, http.StatusNotFound, err.Error())
	default:
		a.respondInternal(c, err)
	}
}
