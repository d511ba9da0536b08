package service

import (
	"errors"
	"strings"
	"testing"

	"github.com/apaddicto/internal/db"
)

func TestExerciseServiceCreateAndList(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewExerciseService(gdb)

	exercise, err := svc.Create(ExerciseInput{
		Title:      strPtr("Squats"),
		Category:   strPtr("Strength"),
		Difficulty: strPtr("intermediate"),
		Duration:   intPtr(8),
		Tags:       []string{"jambes", " jambes ", ""},
	})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if exercise.ID == 0 || !exercise.IsActive {
		t.Fatalf("expected active exercise with id, got %+v", exercise)
	}
	if exercise.Category != "strength" {
		t.Fatalf("expected normalized category, got %s", exercise.Category)
	}
	if tags := db.StringList(exercise.Tags); len(tags) != 1 {
		t.Fatalf("expected deduplicated tags, got %v", tags)
	}

	hidden, err := svc.Create(ExerciseInput{Title: strPtr("Brouillon"), Category: strPtr("other"), IsActive: boolPtr(false)})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if hidden.IsActive {
		t.Fatal("explicit isActive=false must be stored")
	}

	active, err := svc.List(ExerciseFilter{})
	if err != nil {
		t.Fatalf("List returned error: %v", err)
	}
	if len(active) != 1 || active[0].Title != "Squats" {
		t.Fatalf("expected only the active exercise, got %d", len(active))
	}

	all, _ := svc.List(ExerciseFilter{IncludeInactive: true})
	if len(all) != 2 {
		t.Fatalf("expected 2 exercises, got %d", len(all))
	}

	filtered, _ := svc.List(ExerciseFilter{Category: "strength", Difficulty: "intermediate", Search: "squ"})
	if len(filtered) != 1 {
		t.Fatalf("expected filter match, got %d", len(filtered))
	}

	if _, err := svc.GetVisible(hidden.ID, false); !errors.Is(err, ErrExerciseNotFound) {
		t.Fatalf("inactive exercise must be hidden, got %v", err)
	}
}

func TestExerciseServiceValidation(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewExerciseService(gdb)

	_, err := svc.Create(ExerciseInput{Category: strPtr("yoga"), Duration: intPtr(0)})
	verr, ok := AsValidationError(err)
	if !ok {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, field := range []string{"title", "category", "duration"} {
		if verr.Fields[field] == "" {
			t.Fatalf("expected error on %s, got %v", field, verr.Fields)
		}
	}

	var count int64
	gdb.Model(&db.Exercise{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no row to be created, got %d", count)
	}
}

func TestExerciseServiceUpdateIsPartial(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewExerciseService(gdb)
	exercise, _ := svc.Create(ExerciseInput{Title: strPtr("Marche"), Category: strPtr("cardio"), Description: strPtr("dehors")})

	updated, err := svc.Update(exercise.ID, ExerciseInput{Title: strPtr("Marche rapide")})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Title != "Marche rapide" || updated.Description != "dehors" || updated.Category != "cardio" {
		t.Fatalf("unexpected merged exercise: %+v", updated)
	}

	got, err := svc.Get(exercise.ID)
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if got.Title != "Marche rapide" {
		t.Fatalf("expected persisted title, got %s", got.Title)
	}

	if _, err := svc.Update(9999, ExerciseInput{Title: strPtr("x")}); !errors.Is(err, ErrExerciseNotFound) {
		t.Fatalf("expected ErrExerciseNotFound, got %v", err)
	}
}

func TestExerciseServiceDeleteCascades(t *testing.T) {
	gdb := setupTestDB(t)
	patient := seedUser(t, gdb, "p@example.com", db.RolePatient)
	svc := NewExerciseService(gdb)
	keep := seedExercise(t, gdb, "Garde", 1)
	drop := seedExercise(t, gdb, "Supprime", 2)

	if _, err := svc.CreateVariation(drop.ID, VariationInput{Type: strPtr("simplification"), Title: strPtr("Facile")}); err != nil {
		t.Fatalf("CreateVariation returned error: %v", err)
	}
	if _, err := svc.Rate(drop.ID, patient.ID, 4, ""); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}

	sessions := NewSessionService(gdb)
	session, err := sessions.Create(0, SessionInput{Title: strPtr("Mixte")}, []ElementInput{{ExerciseID: drop.ID}, {ExerciseID: keep.ID}})
	if err != nil {
		t.Fatalf("Create session returned error: %v", err)
	}

	if err := svc.Delete(drop.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := svc.Get(drop.ID); !errors.Is(err, ErrExerciseNotFound) {
		t.Fatalf("expected ErrExerciseNotFound after delete, got %v", err)
	}

	reloaded, _ := sessions.Get(session.ID)
	if len(reloaded.Elements) != 1 || reloaded.Elements[0].Order != 0 || reloaded.TotalDuration != 60 {
		t.Fatalf("expected session to be compacted, got %+v", reloaded)
	}

	var variations, ratings int64
	gdb.Model(&db.ExerciseVariation{}).Count(&variations)
	gdb.Model(&db.ExerciseRating{}).Count(&ratings)
	if variations != 0 || ratings != 0 {
		t.Fatalf("expected dependents removed, got %d variations %d ratings", variations, ratings)
	}

	if err := svc.Delete(drop.ID); !errors.Is(err, ErrExerciseNotFound) {
		t.Fatalf("expected ErrExerciseNotFound on second delete, got %v", err)
	}
}

func TestExerciseServiceVariations(t *testing.T) {
	gdb := setupTestDB(t)
	svc := NewExerciseService(gdb)
	exercise := seedExercise(t, gdb, "Pompes", 5)

	if _, err := svc.CreateVariation(9999, VariationInput{Type: strPtr("simplification"), Title: strPtr("x")}); !errors.Is(err, ErrExerciseNotFound) {
		t.Fatalf("expected ErrExerciseNotFound, got %v", err)
	}
	if _, err := svc.CreateVariation(exercise.ID, VariationInput{Type: strPtr("harder"), Title: strPtr("x")}); err == nil {
		t.Fatal("expected validation error for unknown type")
	}

	variation, err := svc.CreateVariation(exercise.ID, VariationInput{Type: strPtr("complexification"), Title: strPtr("Claquées"), DurationOverride: intPtr(45)})
	if err != nil {
		t.Fatalf("CreateVariation returned error: %v", err)
	}

	updated, err := svc.UpdateVariation(variation.ID, VariationInput{IsActive: boolPtr(false)})
	if err != nil {
		t.Fatalf("UpdateVariation returned error: %v", err)
	}
	if updated.IsActive || updated.Title != "Claquées" {
		t.Fatalf("unexpected variation: %+v", updated)
	}

	visible, _ := svc.ListVariations(exercise.ID, false)
	if len(visible) != 0 {
		t.Fatalf("expected inactive variation hidden, got %d", len(visible))
	}
	all, _ := svc.ListVariations(exercise.ID, true)
	if len(all) != 1 {
		t.Fatalf("expected 1 variation, got %d", len(all))
	}
}

func TestExerciseServiceLibraryAndRatings(t *testing.T) {
	gdb := setupTestDB(t)
	alice := seedUser(t, gdb, "alice@example.com", db.RolePatient)
	bob := seedUser(t, gdb, "bob@example.com", db.RolePatient)
	svc := NewExerciseService(gdb)
	exercise := seedExercise(t, gdb, "Méditation", 10)

	empty, err := svc.GetLibrary(exercise.ID)
	if err != nil {
		t.Fatalf("GetLibrary returned error: %v", err)
	}
	if empty.RatingCount != 0 || len(db.StringList(empty.VideoURLs)) != 0 {
		t.Fatalf("expected empty library, got %+v", empty)
	}

	library, err := svc.UpsertLibrary(exercise.ID, LibraryInput{
		VideoURLs: []string{"https://www.youtube.com/watch?v=abc123"},
		Notes:     strPtr("à faire assis"),
	})
	if err != nil {
		t.Fatalf("UpsertLibrary returned error: %v", err)
	}
	videos := db.StringList(library.VideoURLs)
	if len(videos) != 1 || !strings.HasPrefix(videos[0], "https://www.youtube.com/embed/abc123") {
		t.Fatalf("expected normalized embed url, got %v", videos)
	}

	if _, err := svc.Rate(exercise.ID, alice.ID, 6, ""); err == nil {
		t.Fatal("expected validation error for score 6")
	}
	if _, err := svc.Rate(exercise.ID, alice.ID, 2, ""); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}
	if _, err := svc.Rate(exercise.ID, alice.ID, 4, "mieux"); err != nil {
		t.Fatalf("Rate update returned error: %v", err)
	}
	if _, err := svc.Rate(exercise.ID, bob.ID, 5, ""); err != nil {
		t.Fatalf("Rate returned error: %v", err)
	}

	library, _ = svc.GetLibrary(exercise.ID)
	if library.RatingCount != 2 || library.RatingAverage != 4.5 {
		t.Fatalf("expected 2 ratings averaging 4.5, got %d / %.2f", library.RatingCount, library.RatingAverage)
	}
	if notes := library.Notes; notes != "à faire assis" {
		t.Fatalf("rating must not clobber notes, got %q", notes)
	}
}
