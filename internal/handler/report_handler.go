package handler

import (
	"errors"
	"net/http"

	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
)

type reportRequest struct {
	PatientID  uint    `json:"patientId"`
	ReportType *string `json:"reportType" binding:"omitempty,oneof=progress assessment session discharge other"`
	Title      *string `json:"title" binding:"omitempty,max=200"`
	Content    *string `json:"content"`
	IsPrivate  *bool   `json:"isPrivate"`
}

func (r reportRequest) toInput() service.ReportInput {
	return service.ReportInput{
		PatientID:  r.PatientID,
		ReportType: r.ReportType,
		Title:      r.Title,
		Content:    r.Content,
		IsPrivate:  r.IsPrivate,
	}
}

// AdminListReports 后台报告列表，可按 patientId 与 reportType 过滤
func (a *API) AdminListReports(c *gin.Context) {
	reports, err := a.reports.List(service.ReportFilter{
		PatientID:  parseUintQuery(c, "patientId"),
		ReportType: c.Query("reportType"),
	})
	if err != nil {
		a.handleReportError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

// ListMyReports 患者只能看到自己的非私密报告
func (a *API) ListMyReports(c *gin.Context) {
	reports, err := a.reports.ListForPatient(mustPrincipal(c).UserID)
	if err != nil {
		a.handleReportError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"reports": reports})
}

func (a *API) AdminGetReport(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	report, err := a.reports.Get(id)
	if err != nil {
		a.handleReportError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}

func (a *API) AdminCreateReport(c *gin.Context) {
	var req reportRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := a.reports.Create(mustPrincipal(c).UserID, req.toInput())
	if err != nil {
		a.handleReportError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "report created", "report": report})
}

func (a *API) AdminUpdateReport(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req reportRequest
	if !bindJSON(c, &req) {
		return
	}
	report, err := a.reports.Update(id, req.toInput())
	if err != nil {
		a.handleReportError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "report updated", "report": report})
}

func (a *API) AdminDeleteReport(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := a.reports.Delete(id); err != nil {
		a.handleReportError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "report deleted"})
}

func (a *API) handleReportError(c *gin.Context, err error) {
	if a.respondServiceError(c, err) {
		return
	}
	if errors.Is(err, service.ErrReportNotFound) {
		respondError(c, http.StatusNotFound, err.Error())
		return
	}
	a.respondInternal(c, err)
}
