package service

import (
	"errors"
	"testing"

	"github.com/apaddicto/internal/db"
)

func TestUserServiceRegisterAndAuthenticate(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewUserService(gdb)

	user, err := svc.Register(RegisterInput{Email: " Patient@Example.com ", Password: "longenough", FirstName: "Léa"})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.Email != "patient@example.com" || user.Role != db.RolePatient || !user.IsActive {
		t.Fatalf("unexpected user: %+v", user)
	}
	if user.Password == "longenough" {
		t.Fatal("password must be hashed")
	}

	if _, err := svc.Register(RegisterInput{Email: "patient@example.com", Password: "longenough"}); !errors.Is(err, ErrEmailTaken) {
		t.Fatalf("expected ErrEmailTaken, got %v", err)
	}
	if _, err := svc.Register(RegisterInput{Email: "not-an-email", Password: "short"}); err == nil {
		t.Fatal("expected validation error")
	} else if verr, ok := AsValidationError(err); !ok || len(verr.Fields) != 2 {
		t.Fatalf("expected two field errors, got %v", err)
	}

	authed, err := svc.Authenticate("PATIENT@example.com", "longenough")
	if err != nil {
		t.Fatalf("Authenticate returned error: %v", err)
	}
	if authed.LastLoginAt == nil {
		t.Fatal("expected lastLoginAt to be set")
	}

	if _, err := svc.Authenticate("patient@example.com", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Authenticate("ghost@example.com", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}

	if _, err := svc.AdminUpdate(user.ID, AdminUserInput{IsActive: boolPtr(false)}); err != nil {
		t.Fatalf("AdminUpdate returned error: %v", err)
	}
	if _, err := svc.Authenticate("patient@example.com", "longenough"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("inactive user must not log in, got %v", err)
	}
	if _, err := svc.GetActive(user.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected inactive user to be hidden, got %v", err)
	}
}

func TestUserServiceProfileAndPassword(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewUserService(gdb)
	user := seedUser(t, gdb, "p@example.com", db.RolePatient)

	updated, err := svc.UpdateProfile(user.ID, ProfileInput{FirstName: strPtr(" Marc "), InactivityThreshold: intPtr(14)})
	if err != nil {
		t.Fatalf("UpdateProfile returned error: %v", err)
	}
	if updated.FirstName != "Marc" || updated.InactivityThreshold != 14 {
		t.Fatalf("unexpected profile: %+v", updated)
	}
	if _, err := svc.UpdateProfile(user.ID, ProfileInput{InactivityThreshold: intPtr(0)}); err == nil {
		t.Fatal("expected validation error for threshold 0")
	}

	if err := svc.ChangePassword(user.ID, "bad-current", "newpassword1"); err == nil {
		t.Fatal("expected error for wrong current password")
	}
	if err := svc.ChangePassword(user.ID, "password123", "newpassword1"); err != nil {
		t.Fatalf("ChangePassword returned error: %v", err)
	}
	if _, err := svc.Authenticate("p@example.com", "newpassword1"); err != nil {
		t.Fatalf("expected new password to work, got %v", err)
	}
}

func TestUserServiceAdminUpdateAndList(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewUserService(gdb)
	user := seedUser(t, gdb, "p@example.com", db.RolePatient)
	seedUser(t, gdb, "admin@example.com", db.RoleAdmin)

	updated, err := svc.AdminUpdate(user.ID, AdminUserInput{Points: intPtr(250)})
	if err != nil {
		t.Fatalf("AdminUpdate returned error: %v", err)
	}
	if updated.Points != 250 || updated.Level != 3 {
		t.Fatalf("expected level derived from points, got %+v", updated)
	}
	if _, err := svc.AdminUpdate(user.ID, AdminUserInput{Role: strPtr("therapist")}); err == nil {
		t.Fatal("expected validation error for unknown role")
	}

	patients, err := svc.List(UserFilter{Role: "patient"})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(patients) != 1 {
		t.Fatalf("expected 1 patient, got %d", len(patients))
	}
	found, _ := svc.List(UserFilter{Search: "ADMIN"})
	if len(found) != 1 {
		t.Fatalf("expected search to match admin, got %d", len(found))
	}
}

func TestUserServiceDeleteCascades(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewUserService(gdb)
	admin := seedUser(t, gdb, "admin@example.com", db.RoleAdmin)
	patient := seedUser(t, gdb, "p@example.com", db.RolePatient)
	exercise := seedExercise(t, gdb, "Respiration", 3)

	cravings := NewCravingService(gdb)
	if _, err := cravings.Create(patient.ID, CravingInput{Intensity: intPtr(6)}); err != nil {
		t.Fatalf("seed craving: %v", err)
	}
	sessions := NewSessionService(gdb)
	session, _ := sessions.Create(admin.ID, SessionInput{Title: strPtr("S")}, []ElementInput{{ExerciseID: exercise.ID}})
	if _, err := sessions.Publish(session.ID, admin.ID, []uint{patient.ID}); err != nil {
		t.Fatalf("Publish returned error: %v", err)
	}
	reports := NewReportService(gdb)
	if _, err := reports.Create(admin.ID, ReportInput{PatientID: patient.ID, Title: strPtr("Bilan"), Content: strPtr("ok")}); err != nil {
		t.Fatalf("seed report: %v", err)
	}

	if err := svc.Delete(admin.ID, admin.ID); !errors.Is(err, ErrSelfDelete) {
		t.Fatalf("expected ErrSelfDelete, got %v", err)
	}
	if err := svc.Delete(admin.ID, patient.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	for name, model := range map[string]interface{}{
		"cravings":  &db.CravingEntry{},
		"instances": &db.SessionInstance{},
		"reports":   &db.ProfessionalReport{},
	} {
		var count int64
		gdb.Model(model).Count(&count)
		if count != 0 {
			t.Fatalf("expected %s to be removed, got %d", name, count)
		}
	}
	if _, err := svc.Get(patient.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := svc.Delete(admin.ID, patient.ID); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound on second delete, got %v", err)
	}
}

func TestUserServiceDeleteTherapistKeepsReports(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewUserService(gdb)
	owner := seedUser(t, gdb, "owner@example.com", db.RoleAdmin)
	therapist := seedUser(t, gdb, "therapist@example.com", db.RoleAdmin)
	patient := seedUser(t, gdb, "p@example.com", db.RolePatient)

	reports := NewReportService(gdb)
	report, err := reports.Create(therapist.ID, ReportInput{PatientID: patient.ID, Title: strPtr("Bilan"), Content: strPtr("Progrès réguliers")})
	if err != nil {
		t.Fatalf("seed report: %v", err)
	}

	if err := svc.Delete(owner.ID, therapist.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}

	var kept db.ProfessionalReport
	if err := gdb.First(&kept, report.ID).Error; err != nil {
		t.Fatalf("expected report to survive therapist deletion: %v", err)
	}
	if kept.TherapistID != nil {
		t.Fatalf("expected therapist to be detached, got %d", *kept.TherapistID)
	}
	if kept.PatientID != patient.ID || kept.Title != "Bilan" {
		t.Fatalf("unexpected report after deletion: %+v", kept)
	}
}
