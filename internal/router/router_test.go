package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/apaddicto/internal/db"
	"github.com/apaddicto/internal/handler"
	"github.com/apaddicto/internal/service"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func newTestRouter(t *testing.T, uploadDir string) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(fmt.Sprintf("file:router-%d?mode=memory&cache=shared", time.Now().UnixNano()), true)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		t.Fatalf("failed to get sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := db.Migrate(gdb); err != nil {
		t.Fatalf("failed to migrate: %v", err)
	}

	api := handler.NewAPI(gdb, handler.Options{Env: "test", UploadDir: uploadDir, UploadURL: "/uploads"})
	r := SetupRouter(Deps{
		API:           api,
		SessionSecret: "test-secret",
		UploadDir:     uploadDir,
		UploadURLPath: "/uploads",
	})
	return r, gdb
}

func loginCookies(t *testing.T, r http.Handler, email, password string) []*http.Cookie {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d: %s", email, rr.Code, rr.Body.String())
	}
	cookies := rr.Result().Cookies()
	if len(cookies) == 0 {
		t.Fatalf("login %s: no session cookie set", email)
	}
	if cookies[0].Name != "connect.sid" {
		t.Fatalf("expected connect.sid cookie, got %q", cookies[0].Name)
	}
	return cookies
}

func get(r http.Handler, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestSetupRouterServesUploads(t *testing.T) {
	uploadDir := t.TempDir()
	fileName := "example.txt"
	fileContent := []byte("hello uploads")
	if err := os.WriteFile(filepath.Join(uploadDir, fileName), fileContent, 0o644); err != nil {
		t.Fatalf("failed to write test file: %v", err)
	}

	r, _ := newTestRouter(t, uploadDir)

	rr := get(r, "/uploads/"+fileName, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rr.Code)
	}
	if rr.Body.String() != string(fileContent) {
		t.Fatalf("unexpected body, got %q", rr.Body.String())
	}
}

func TestAdminRoutesRequireAdminRole(t *testing.T) {
	r, gdb := newTestRouter(t, t.TempDir())

	if err := db.EnsureAdmin(gdb, "admin@example.com", "admin-pass-1"); err != nil {
		t.Fatalf("ensure admin: %v", err)
	}
	if _, err := service.NewUserService(gdb).Register(service.RegisterInput{
		Email:    "patient@example.com",
		Password: "patient-pass-1",
	}); err != nil {
		t.Fatalf("register patient: %v", err)
	}

	paths := []string{"/api/admin/dashboard", "/api/admin/users", "/api/admin/sessions", "/api/admin/media"}

	for _, path := range paths {
		if rr := get(r, path, nil); rr.Code != http.StatusUnauthorized {
			t.Fatalf("%s anonymous: expected 401, got %d", path, rr.Code)
		}
	}

	patient := loginCookies(t, r, "patient@example.com", "patient-pass-1")
	for _, path := range paths {
		if rr := get(r, path, patient); rr.Code != http.StatusForbidden {
			t.Fatalf("%s patient: expected 403, got %d", path, rr.Code)
		}
	}

	admin := loginCookies(t, r, "admin@example.com", "admin-pass-1")
	for _, path := range paths {
		if rr := get(r, path, admin); rr.Code != http.StatusOK {
			t.Fatalf("%s admin: expected 200, got %d: %s", path, rr.Code, rr.Body.String())
		}
	}
}

var routeParam = regexp.MustCompile(`:[A-Za-z]+`)

// adminOnlyWrites 是挂在 /api 下但仅管理员可调用的写接口。
var adminOnlyWrites = map[string]bool{
	"POST /api/exercises":            true,
	"POST /api/psycho-education":     true,
	"POST /api/sessions":             true,
	"POST /api/sessions/:id/publish": true,
}

func send(r http.Handler, method, path string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader("{}"))
	req.Header.Set("Content-Type", "application/json")
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func TestEveryAdminRouteIsGuarded(t *testing.T) {
	r, gdb := newTestRouter(t, t.TempDir())
	if _, err := service.NewUserService(gdb).Register(service.RegisterInput{
		Email:    "patient@example.com",
		Password: "patient-pass-1",
	}); err != nil {
		t.Fatalf("register patient: %v", err)
	}
	patient := loginCookies(t, r, "patient@example.com", "patient-pass-1")

	checked, writes := 0, 0
	for _, route := range r.Routes() {
		key := route.Method + " " + route.Path
		if !strings.HasPrefix(route.Path, "/api/admin/") && !adminOnlyWrites[key] {
			continue
		}
		if adminOnlyWrites[key] {
			writes++
		}
		checked++
		path := routeParam.ReplaceAllString(route.Path, "1")

		if rr := send(r, route.Method, path, nil); rr.Code != http.StatusUnauthorized {
			t.Errorf("%s anonymous: expected 401, got %d", key, rr.Code)
		}
		if rr := send(r, route.Method, path, patient); rr.Code != http.StatusForbidden {
			t.Errorf("%s patient: expected 403, got %d", key, rr.Code)
		}
	}
	if writes != len(adminOnlyWrites) {
		t.Fatalf("expected %d admin-only writes under /api, found %d", len(adminOnlyWrites), writes)
	}
	if checked < 30 {
		t.Fatalf("expected the admin surface to be registered, only %d routes checked", checked)
	}
}

func TestPublicCatalogIsAnonymous(t *testing.T) {
	r, _ := newTestRouter(t, t.TempDir())

	for _, path := range []string{"/api/exercises", "/api/psycho-education", "/api/emergency-routines", "/api/sessions"} {
		if rr := get(r, path, nil); rr.Code != http.StatusOK {
			t.Fatalf("%s: expected 200, got %d", path, rr.Code)
		}
	}
	if rr := get(r, "/api/cravings", nil); rr.Code != http.StatusUnauthorized {
		t.Fatalf("cravings anonymous: expected 401, got %d", rr.Code)
	}
}

func TestHealthAndNotFound(t *testing.T) {
	r, _ := newTestRouter(t, t.TempDir())

	rr := get(r, "/health", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("health: expected 200, got %d", rr.Code)
	}
	var payload map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	if payload["status"] != "ok" || payload["database"] != "ok" {
		t.Fatalf("unexpected health payload: %v", payload)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}

	if rr := get(r, "/api/nope", nil); rr.Code != http.StatusNotFound {
		t.Fatalf("unknown route: expected 404, got %d", rr.Code)
	}
}
