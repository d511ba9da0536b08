package service

import (
	"bytes"
	"errors"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/apaddicto/internal/db"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 200, A: 255})
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestMediaServiceUploadAndDelete(t *testing.T) {
	gdb := setupTestDB(t)
	admin := seedUser(t, gdb, "admin@example.com", db.RoleAdmin)
	dir := t.TempDir()
	svc := NewMediaService(gdb, dir, "/uploads/", 1<<20)

	media, err := svc.Upload(bytes.NewReader(pngBytes(t, 32, 16)), UploadInput{
		OriginalName: "../../plage.png",
		Tags:         []string{"détente"},
		UploadedBy:   admin.ID,
	})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if media.MimeType != "image/png" || media.Width != 32 || media.Height != 16 {
		t.Fatalf("unexpected media metadata: %+v", media)
	}
	if media.OriginalName != "plage.png" || media.Title != "plage" {
		t.Fatalf("expected sanitized original name, got %q / %q", media.OriginalName, media.Title)
	}
	if !strings.HasPrefix(media.URL, "/uploads/") || !strings.HasSuffix(media.Filename, ".png") {
		t.Fatalf("unexpected url or filename: %s %s", media.URL, media.Filename)
	}
	stored := filepath.Join(dir, media.Filename)
	if _, err := os.Stat(stored); err != nil {
		t.Fatalf("expected file on disk: %v", err)
	}

	updated, err := svc.Update(media.ID, MediaInput{Title: strPtr("Plage calme")})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if updated.Title != "Plage calme" {
		t.Fatalf("unexpected title: %s", updated.Title)
	}

	images, _ := svc.List(MediaFilter{Kind: "image"})
	if len(images) != 1 {
		t.Fatalf("expected 1 image, got %d", len(images))
	}
	videos, _ := svc.List(MediaFilter{Kind: "video"})
	if len(videos) != 0 {
		t.Fatalf("expected no videos, got %d", len(videos))
	}

	if err := svc.Delete(media.ID); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if _, err := os.Stat(stored); !os.IsNotExist(err) {
		t.Fatalf("expected file removed, stat err=%v", err)
	}
	if _, err := svc.Get(media.ID); !errors.Is(err, ErrMediaNotFound) {
		t.Fatalf("expected ErrMediaNotFound, got %v", err)
	}
}

func TestMediaServiceRejectsUnsupportedAndOversized(t *testing.T) {
	gdb := setupTestDB(t)
	dir := t.TempDir()
	svc := NewMediaService(gdb, dir, "/uploads", 40)

	if _, err := svc.Upload(strings.NewReader("#!/bin/sh\necho hi\n"), UploadInput{OriginalName: "x.sh"}); !errors.Is(err, ErrMediaUnsupported) {
		t.Fatalf("expected ErrMediaUnsupported, got %v", err)
	}
	if _, err := svc.Upload(bytes.NewReader(pngBytes(t, 64, 64)), UploadInput{OriginalName: "big.png"}); !errors.Is(err, ErrMediaTooLarge) {
		t.Fatalf("expected ErrMediaTooLarge, got %v", err)
	}

	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no leftover files, got %d", len(entries))
	}
	var count int64
	gdb.Model(&db.MediaFile{}).Count(&count)
	if count != 0 {
		t.Fatalf("expected no media rows, got %d", count)
	}
}

func TestMediaServiceIgnoresClientExtension(t *testing.T) {
	gdb := setupTestDB(t)
	dir := t.TempDir()
	svc := NewMediaService(gdb, dir, "/uploads", 1<<20)

	payload := append([]byte("BM"), make([]byte, 32)...)
	payload = append(payload, []byte("<script>alert(1)</script>")...)
	media, err := svc.Upload(bytes.NewReader(payload), UploadInput{OriginalName: "evil.html"})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if media.MimeType != "image/bmp" {
		t.Fatalf("expected image/bmp, got %q", media.MimeType)
	}
	if filepath.Ext(media.Filename) != ".bmp" || strings.HasSuffix(media.URL, ".html") {
		t.Fatalf("expected .bmp storage name, got %s (%s)", media.Filename, media.URL)
	}
	if media.OriginalName != "evil.html" {
		t.Fatalf("original name should be kept as metadata, got %q", media.OriginalName)
	}

	for mimeType, ext := range mediaExtensions {
		if !strings.HasPrefix(ext, ".") || strings.Contains(ext, "htm") || strings.Contains(ext, "svg") {
			t.Fatalf("unsafe extension %q for %s", ext, mimeType)
		}
	}
}
