package service

import (
	"errors"
	"fmt"
	"strings"

	"github.com/apaddicto/internal/db"
	"gorm.io/gorm"
)

// ErrReportNotFound 在报告不存在或对调用者不可见时返回
var ErrReportNotFound = errors.New("report not found")

var reportTypes = []string{"progress", "assessment", "session", "discharge", "other"}

// ReportService 管理治疗师撰写的专业报告。
type ReportService struct {
	db *gorm.DB
}

// ReportFilter 描述后台报告列表过滤条件
type ReportFilter struct {
	PatientID  uint
	ReportType string
}

// ReportInput 用于创建与部分更新
type ReportInput struct {
	PatientID  uint
	ReportType *string
	Title      *string
	Content    *string
	IsPrivate  *bool
}

func NewReportService(gdb *gorm.DB) *ReportService {
	return &ReportService{db: gdb}
}

// List 返回报告集合
func (s *ReportService) List(filter ReportFilter) ([]db.ProfessionalReport, error) {
	var reports []db.ProfessionalReport
	query := s.db.Model(&db.ProfessionalReport{})
	if filter.PatientID != 0 {
		query = query.Where("patient_id = ?", filter.PatientID)
	}
	if kind := normalizeKey(filter.ReportType); kind != "" {
		query = query.Where("report_type = ?", kind)
	}
	if err := query.Order("created_at DESC").Order("id DESC").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

// ListForPatient 仅返回患者本人可见（非私密）的报告
func (s *ReportService) ListForPatient(patientID uint) ([]db.ProfessionalReport, error) {
	var reports []db.ProfessionalReport
	if err := s.db.Where("patient_id = ? AND is_private = ?", patientID, false).
		Order("created_at DESC").Order("id DESC").
		Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("list patient reports: %w", err)
	}
	return reports, nil
}

// Get 根据 ID 获取报告
func (s *ReportService) Get(id uint) (*db.ProfessionalReport, error) {
	var report db.ProfessionalReport
	if err := s.db.First(&report, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrReportNotFound
		}
		return nil, fmt.Errorf("get report: %w", err)
	}
	return &report, nil
}

// Create 新建报告；报告默认私密，需显式公开给患者。
func (s *ReportService) Create(therapistID uint, input ReportInput) (*db.ProfessionalReport, error) {
	errs := fieldErrors{}
	if input.PatientID == 0 {
		errs.add("patientId", "is required")
	}
	if input.Title == nil || strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "is required")
	}
	if input.Content == nil || strings.TrimSpace(*input.Content) == "" {
		errs.add("content", "is required")
	}
	validateReportInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	var patient db.User
	if err := s.db.Where("id = ? AND role = ?", input.PatientID, db.RolePatient).First(&patient).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, invalidField("patientId", "patient does not exist")
		}
		return nil, fmt.Errorf("find patient: %w", err)
	}

	report := db.ProfessionalReport{
		TherapistID: &therapistID,
		PatientID:   patient.ID,
		ReportType:  "progress",
		IsPrivate:   true,
	}
	applyReportInput(&report, input)
	if err := s.db.Create(&report).Error; err != nil {
		return nil, fmt.Errorf("create report: %w", err)
	}
	return &report, nil
}

// Update 合并提交字段，报告所属患者不可变更
func (s *ReportService) Update(id uint, input ReportInput) (*db.ProfessionalReport, error) {
	errs := fieldErrors{}
	if input.Title != nil && strings.TrimSpace(*input.Title) == "" {
		errs.add("title", "must not be empty")
	}
	if input.Content != nil && strings.TrimSpace(*input.Content) == "" {
		errs.add("content", "must not be empty")
	}
	validateReportInput(input, errs)
	if err := errs.Err(); err != nil {
		return nil, err
	}

	report, err := s.Get(id)
	if err != nil {
		return nil, err
	}
	applyReportInput(report, input)
	if err := s.db.Save(report).Error; err != nil {
		return nil, fmt.Errorf("update report: %w", err)
	}
	return report, nil
}

// Delete 删除报告
func (s *ReportService) Delete(id uint) error {
	result := s.db.Delete(&db.ProfessionalReport{}, id)
	if result.Error != nil {
		return fmt.Errorf("delete report: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrReportNotFound
	}
	return nil
}

func validateReportInput(input ReportInput, errs fieldErrors) {
	if input.ReportType != nil && !oneOf(normalizeKey(*input.ReportType), reportTypes...) {
		errs.add("reportType", "must be one of "+strings.Join(reportTypes, ", "))
	}
}

func applyReportInput(report *db.ProfessionalReport, input ReportInput) {
	if input.ReportType != nil {
		report.ReportType = normalizeKey(*input.ReportType)
	}
	if input.Title != nil {
		report.Title = strings.TrimSpace(*input.Title)
	}
	if input.Content != nil {
		report.Content = strings.TrimSpace(*input.Content)
	}
	if input.IsPrivate != nil {
		report.IsPrivate = *input.IsPrivate
	}
}
