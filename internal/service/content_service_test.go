package service

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/apaddicto/internal/db"
)

func TestContentServiceRenderAndDrafts(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewContentService(gdb)

	if _, err := svc.Create(ContentInput{Title: strPtr("Sans contenu")}); err == nil {
		t.Fatal("expected validation error")
	} else if v, ok := AsValidationError(err); !ok || v.Fields["category"] == "" || v.Fields["content"] == "" {
		t.Fatalf("expected category and content field errors, got %v", err)
	}

	body := "## Comprendre le craving\n\nUn **pic** passe en quelques minutes.\n\n<script>alert(1)</script>"
	published, err := svc.Create(ContentInput{
		Title:    strPtr("Le craving"),
		Category: strPtr("Addiction"),
		Content:  strPtr(body),
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !published.IsPublished || published.Category != "addiction" || published.EstimatedReadTime != 1 {
		t.Fatalf("unexpected defaults: %+v", published)
	}

	draft, err := svc.Create(ContentInput{
		Title:       strPtr("Brouillon"),
		Category:    strPtr("addiction"),
		Content:     strPtr("à relire"),
		IsPublished: boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Create draft returned error: %v", err)
	}

	rendered, err := svc.GetRendered(published.ID, false)
	if err != nil {
		t.Fatalf("GetRendered returned error: %v", err)
	}
	if !strings.Contains(rendered.ContentHTML, "<strong>pic</strong>") {
		t.Fatalf("expected markdown rendering, got %s", rendered.ContentHTML)
	}
	if strings.Contains(rendered.ContentHTML, "<script") {
		t.Fatalf("expected script to be stripped, got %s", rendered.ContentHTML)
	}

	if _, err := svc.GetRendered(draft.ID, false); !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("expected draft hidden from patients, got %v", err)
	}
	if _, err := svc.GetRendered(draft.ID, true); err != nil {
		t.Fatalf("expected admin to see draft, got %v", err)
	}

	public, _ := svc.List(ContentFilter{})
	if len(public) != 1 {
		t.Fatalf("expected 1 published item, got %d", len(public))
	}
	all, _ := svc.List(ContentFilter{IncludeDrafts: true, Search: "BROUILLON"})
	if len(all) != 1 || all[0].ID != draft.ID {
		t.Fatalf("expected search to find the draft, got %+v", all)
	}

	updated, err := svc.Update(draft.ID, ContentInput{IsPublished: boolPtr(true)})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if !updated.IsPublished || updated.Title != "Brouillon" {
		t.Fatalf("unexpected update result: %+v", updated)
	}

	if err := svc.Delete(draft.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if err := svc.Delete(draft.ID); !errors.Is(err, ErrContentNotFound) {
		t.Fatalf("expected ErrContentNotFound on second delete, got %v", err)
	}
}

func TestRoutineServiceKeepsSingleDefault(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewRoutineService(gdb)

	if _, err := svc.Default(); !errors.Is(err, ErrRoutineNotFound) {
		t.Fatalf("expected ErrRoutineNotFound without routines, got %v", err)
	}

	first, err := svc.Create(RoutineInput{
		Title:     strPtr("Respiration"),
		Steps:     []string{"Inspirer", " ", "Expirer", "Inspirer"},
		IsDefault: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if steps := db.StringList(first.Steps); len(steps) != 3 || steps[2] != "Inspirer" {
		t.Fatalf("expected ordered steps with repeats kept, got %v", steps)
	}

	second, err := svc.Create(RoutineInput{
		Title:     strPtr("Marche"),
		Steps:     []string{"Sortir"},
		IsDefault: boolPtr(true),
	})
	if err != nil {
		t.Fatalf("Create second returned error: %v", err)
	}

	def, err := svc.Default()
	if err != nil || def.ID != second.ID {
		t.Fatalf("expected second routine as default, got %+v (%v)", def, err)
	}
	var defaults int64
	gdb.Model(&db.EmergencyRoutine{}).Where("is_default = ?", true).Count(&defaults)
	if defaults != 1 {
		t.Fatalf("expected exactly one default, got %d", defaults)
	}

	if _, err := svc.Update(first.ID, RoutineInput{IsDefault: boolPtr(true)}); err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	list, _ := svc.List(false)
	if len(list) != 2 || list[0].ID != first.ID || list[1].IsDefault {
		t.Fatalf("expected first routine listed as the only default, got %+v", list)
	}

	if _, err := svc.Create(RoutineInput{Title: strPtr("Vide"), Steps: []string{""}}); err == nil {
		t.Fatal("expected validation error for empty steps")
	}
}

func TestReportServicePrivacy(t *testing.T) {
	gdb := setupTestDB(t)
	admin := seedUser(t, gdb, "admin@example.com", db.RoleAdmin)
	patient := seedUser(t, gdb, "p@example.com", db.RolePatient)
	svc := NewReportService(gdb)

	if _, err := svc.Create(admin.ID, ReportInput{PatientID: admin.ID, Title: strPtr("x"), Content: strPtr("y")}); err == nil {
		t.Fatal("expected error when target is not a patient")
	}

	private, err := svc.Create(admin.ID, ReportInput{PatientID: patient.ID, Title: strPtr("Notes"), Content: strPtr("interne")})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if !private.IsPrivate || private.ReportType != "progress" {
		t.Fatalf("unexpected defaults: %+v", private)
	}
	shared, err := svc.Create(admin.ID, ReportInput{
		PatientID:  patient.ID,
		ReportType: strPtr("assessment"),
		Title:      strPtr("Bilan"),
		Content:    strPtr("partagé"),
		IsPrivate:  boolPtr(false),
	})
	if err != nil {
		t.Fatalf("Create shared returned error: %v", err)
	}

	visible, err := svc.ListForPatient(patient.ID)
	if err != nil {
		t.Fatalf("ListForPatient returned error: %v", err)
	}
	if len(visible) != 1 || visible[0].ID != shared.ID {
		t.Fatalf("expected only the shared report, got %+v", visible)
	}
	all, _ := svc.List(ReportFilter{PatientID: patient.ID})
	if len(all) != 2 {
		t.Fatalf("expected admin to see 2 reports, got %d", len(all))
	}

	if _, err := svc.Update(private.ID, ReportInput{ReportType: strPtr("unknown")}); err == nil {
		t.Fatal("expected validation error for unknown report type")
	}
	if err := svc.Delete(private.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := svc.Get(private.ID); !errors.Is(err, ErrReportNotFound) {
		t.Fatalf("expected ErrReportNotFound, got %v", err)
	}
}

func TestDashboardServiceStats(t *testing.T) {
	gdb := setupTestDB(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	seedUser(t, gdb, "admin@example.com", db.RoleAdmin)
	active := seedUser(t, gdb, "active@example.com", db.RolePatient)
	idle := seedUser(t, gdb, "idle@example.com", db.RolePatient)

	recent := now.AddDate(0, 0, -2)
	old := now.AddDate(0, 0, -45)
	gdb.Model(&db.User{}).Where("id = ?", active.ID).Update("last_login_at", recent)
	gdb.Model(&db.User{}).Where("id = ?", idle.ID).Updates(map[string]interface{}{"last_login_at": old, "inactivity_threshold": 30})

	seedExercise(t, gdb, "Respiration", 5)
	gdb.Create(&db.CravingEntry{UserID: active.ID, Intensity: 5, Triggers: db.ToJSON(nil), Emotions: db.ToJSON(nil), CreatedAt: now.AddDate(0, 0, -1)})
	gdb.Create(&db.CravingEntry{UserID: active.ID, Intensity: 5, Triggers: db.ToJSON(nil), Emotions: db.ToJSON(nil), CreatedAt: now.AddDate(0, 0, -20)})

	svc := NewDashboardService(gdb)
	svc.now = func() time.Time { return now }

	stats, err := svc.Stats()
	if err != nil {
		t.Fatalf("Stats returned error: %v", err)
	}
	if stats.Patients != 2 || stats.ActivePatients != 2 || stats.Exercises != 1 {
		t.Fatalf("unexpected counts: %+v", stats)
	}
	if stats.InactivePatients != 1 {
		t.Fatalf("expected 1 inactive patient, got %d", stats.InactivePatients)
	}
	if stats.CravingsLastWeek != 1 {
		t.Fatalf("expected 1 craving last week, got %d", stats.CravingsLastWeek)
	}

	inactive, _ := svc.InactivePatients()
	if len(inactive) != 1 || inactive[0].ID != idle.ID {
		t.Fatalf("expected idle patient, got %+v", inactive)
	}
}
