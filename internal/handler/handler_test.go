package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apaddicto/internal/db"
	"github.com/apaddicto/internal/service"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

func setupTestAPI(t *testing.T, production bool) (*API, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	gdb, err := db.Open(fmt.Sprintf("file:handler-%d?mode=memory&cache=shared", time.Now().UnixNano()), true)
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

	env := "development"
	if production {
		env = "production"
	}
	return NewAPI(gdb, Options{Env: env, Production: production, UploadDir: t.TempDir()}), gdb
}

// newEngine 构造带会话与 principal 解析的最小路由
func newEngine(api *API) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), api.Recovery())
	r.Use(sessions.Sessions("connect.sid", cookie.NewStore([]byte("handler-test"))))
	r.Use(api.ErrorFallback(), api.LoadPrincipal())
	return r
}

// asPrincipal 直接注入当前用户，跳过登录流程
func asPrincipal(p Principal) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(principalContextKey, p)
		c.Next()
	}
}

func doJSON(r http.Handler, method, path string, body interface{}, cookies []*http.Cookie) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, cookie := range cookies {
		req.AddCookie(cookie)
	}
	rr := httptest.NewRecorder()
	r.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	payload := map[string]interface{}{}
	if err := json.Unmarshal(rr.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response %q: %v", rr.Body.String(), err)
	}
	return payload
}

func TestAuthFlow(t *testing.T) {
	api, _ := setupTestAPI(t, false)
	r := newEngine(api)
	r.POST("/register", api.Register)
	r.POST("/login", api.Login)
	r.POST("/logout", api.Logout)
	r.GET("/me", RequireAuth(), api.Me)

	rr := doJSON(r, http.MethodPost, "/register", map[string]string{"email": "Jane@Example.com", "password": "long-enough-1"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d: %s", rr.Code, rr.Body.String())
	}
	cookies := rr.Result().Cookies()

	rr = doJSON(r, http.MethodGet, "/me", nil, cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("me after register: expected 200, got %d", rr.Code)
	}
	user := decode(t, rr)["user"].(map[string]interface{})
	if user["email"] != "jane@example.com" {
		t.Fatalf("expected normalized email, got %v", user["email"])
	}

	rr = doJSON(r, http.MethodPost, "/register", map[string]string{"email": "jane@example.com", "password": "long-enough-1"}, nil)
	if rr.Code != http.StatusConflict {
		t.Fatalf("duplicate register: expected 409, got %d", rr.Code)
	}

	rr = doJSON(r, http.MethodPost, "/login", map[string]string{"email": "jane@example.com", "password": "wrong-password"}, nil)
	if rr.Code != http.StatusUnauthorized || decode(t, rr)["error"] != "invalid credentials" {
		t.Fatalf("bad login: expected 401 invalid credentials, got %d %s", rr.Code, rr.Body.String())
	}

	rr = doJSON(r, http.MethodPost, "/logout", nil, cookies)
	if rr.Code != http.StatusOK {
		t.Fatalf("logout: expected 200, got %d", rr.Code)
	}
	rr = doJSON(r, http.MethodGet, "/me", nil, rr.Result().Cookies())
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: expected 401, got %d", rr.Code)
	}
}

func TestDeactivatedUserLosesSession(t *testing.T) {
	api, gdb := setupTestAPI(t, false)
	r := newEngine(api)
	r.POST("/register", api.Register)
	r.GET("/me", RequireAuth(), api.Me)

	rr := doJSON(r, http.MethodPost, "/register", map[string]string{"email": "gone@example.com", "password": "long-enough-1"}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d", rr.Code)
	}
	cookies := rr.Result().Cookies()

	if err := gdb.Model(&db.User{}).Where("email = ?", "gone@example.com").Update("is_active", false).Error; err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if rr := doJSON(r, http.MethodGet, "/me", nil, cookies); rr.Code != http.StatusUnauthorized {
		t.Fatalf("deactivated user: expected 401, got %d", rr.Code)
	}
}

func TestRequireAdmin(t *testing.T) {
	api, _ := setupTestAPI(t, false)
	ok := func(c *gin.Context) { c.Status(http.StatusNoContent) }

	tests := []struct {
		name      string
		principal *Principal
		want      int
	}{
		{name: "anonymous", principal: nil, want: http.StatusUnauthorized},
		{name: "patient", principal: &Principal{UserID: 2, Role: db.RolePatient}, want: http.StatusForbidden},
		{name: "admin", principal: &Principal{UserID: 1, Role: db.RoleAdmin}, want: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newEngine(api)
			if tt.principal != nil {
				r.Use(asPrincipal(*tt.principal))
			}
			r.GET("/admin", RequireAdmin(), ok)
			if rr := doJSON(r, http.MethodGet, "/admin", nil, nil); rr.Code != tt.want {
				t.Fatalf("expected %d, got %d", tt.want, rr.Code)
			}
		})
	}
}

func TestBindingErrorsUseJSONFieldPaths(t *testing.T) {
	api, gdb := setupTestAPI(t, false)
	r := newEngine(api)
	r.Use(asPrincipal(Principal{UserID: 1, Role: db.RoleAdmin}))
	r.POST("/sessions", api.CreateSession)
	r.POST("/cravings", api.CreateCraving)

	rr := doJSON(r, http.MethodPost, "/sessions", map[string]interface{}{
		"title":      "Séance",
		"difficulty": "extreme",
		"elements":   []map[string]interface{}{{"exerciseId": 0}},
	}, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rr.Code, rr.Body.String())
	}
	payload := decode(t, rr)
	if payload["error"] != "validation failed" {
		t.Fatalf("unexpected error: %v", payload)
	}
	fields := payload["fields"].(map[string]interface{})
	if fields["elements[0].exerciseId"] != "is required" {
		t.Fatalf("expected elements[0].exerciseId to be required, got %v", fields)
	}
	if !strings.HasPrefix(fields["difficulty"].(string), "must be one of") {
		t.Fatalf("expected difficulty oneof message, got %v", fields)
	}

	var count int64
	gdb.Model(&db.CustomSession{}).Count(&count)
	if count != 0 {
		t.Fatalf("invalid request must not create a session, got %d", count)
	}

	rr = doJSON(r, http.MethodPost, "/cravings", nil, nil)
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty body: expected 400, got %d", rr.Code)
	}
}

func TestRecoveryRedactsPanicsInProduction(t *testing.T) {
	for _, production := range []bool{true, false} {
		t.Run(fmt.Sprintf("production=%v", production), func(t *testing.T) {
			api, _ := setupTestAPI(t, production)
			r := newEngine(api)
			r.GET("/panic", func(c *gin.Context) { panic("secret detail") })
			r.GET("/error", func(c *gin.Context) { _ = c.Error(errors.New("hidden failure")) })

			rr := doJSON(r, http.MethodGet, "/panic", nil, nil)
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("panic: expected 500, got %d", rr.Code)
			}
			leaked := strings.Contains(rr.Body.String(), "secret detail")
			if production == leaked {
				t.Fatalf("panic body %q (production=%v)", rr.Body.String(), production)
			}

			rr = doJSON(r, http.MethodGet, "/error", nil, nil)
			if rr.Code != http.StatusInternalServerError {
				t.Fatalf("error fallback: expected 500, got %d", rr.Code)
			}
			if production && decode(t, rr)["error"] != "internal server error" {
				t.Fatalf("expected redacted error, got %s", rr.Body.String())
			}
		})
	}
}

func TestHealthReportsDatabaseState(t *testing.T) {
	api, gdb := setupTestAPI(t, false)
	r := newEngine(api)
	r.GET("/health", api.Health)

	rr := doJSON(r, http.MethodGet, "/health", nil, nil)
	if rr.Code != http.StatusOK || decode(t, rr)["database"] != "ok" {
		t.Fatalf("healthy: expected 200 ok, got %d %s", rr.Code, rr.Body.String())
	}

	sqlDB, _ := gdb.DB()
	sqlDB.Close()

	rr = doJSON(r, http.MethodGet, "/health", nil, nil)
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("closed db: expected 503, got %d", rr.Code)
	}
	payload := decode(t, rr)
	if payload["status"] != "degraded" || payload["database"] != "unavailable" {
		t.Fatalf("unexpected degraded payload: %v", payload)
	}
}

func TestForeignRecordsAreNotFound(t *testing.T) {
	api, gdb := setupTestAPI(t, false)
	owner := db.User{Email: "owner@example.com", Password: "x", Role: db.RolePatient, Level: 1, IsActive: true}
	other := db.User{Email: "other@example.com", Password: "x", Role: db.RolePatient, Level: 1, IsActive: true}
	if err := gdb.Create(&owner).Error; err != nil {
		t.Fatalf("seed owner: %v", err)
	}
	if err := gdb.Create(&other).Error; err != nil {
		t.Fatalf("seed other: %v", err)
	}

	ownerEngine := newEngine(api)
	ownerEngine.Use(asPrincipal(Principal{UserID: owner.ID, Role: db.RolePatient}))
	ownerEngine.POST("/strategies", api.CreateStrategy)

	rr := doJSON(ownerEngine, http.MethodPost, "/strategies", map[string]interface{}{"context": "home", "exercise": "Marche rapide", "effort": "moderate", "duration": 15, "cravingBefore": 8, "cravingAfter": 3}, nil)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create strategy: expected 201, got %d %s", rr.Code, rr.Body.String())
	}
	id := uint(decode(t, rr)["strategy"].(map[string]interface{})["id"].(float64))

	otherEngine := newEngine(api)
	otherEngine.Use(asPrincipal(Principal{UserID: other.ID, Role: db.RolePatient}))
	otherEngine.PUT("/strategies/:id", api.UpdateStrategy)
	otherEngine.DELETE("/strategies/:id", api.DeleteStrategy)

	path := fmt.Sprintf("/strategies/%d", id)
	if rr := doJSON(otherEngine, http.MethodPut, path, map[string]interface{}{"effort": "low"}, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign update: expected 404, got %d", rr.Code)
	}
	if rr := doJSON(otherEngine, http.MethodDelete, path, nil, nil); rr.Code != http.StatusNotFound {
		t.Fatalf("foreign delete: expected 404, got %d", rr.Code)
	}
	if rr := doJSON(otherEngine, http.MethodDelete, "/strategies/abc", nil, nil); rr.Code != http.StatusBadRequest {
		t.Fatalf("bad id: expected 400, got %d", rr.Code)
	}
}

func TestInstanceTransitionsAcceptChunkedEmptyBody(t *testing.T) {
	api, gdb := setupTestAPI(t, false)
	admin := db.User{Email: "admin@example.com", Password: "x", Role: db.RoleAdmin, Level: 1, IsActive: true}
	patient := db.User{Email: "patient@example.com", Password: "x", Role: db.RolePatient, Level: 1, IsActive: true}
	if err := gdb.Create(&admin).Error; err != nil {
		t.Fatalf("seed admin: %v", err)
	}
	if err := gdb.Create(&patient).Error; err != nil {
		t.Fatalf("seed patient: %v", err)
	}

	title, category := "Squats", "strength"
	exercise, err := api.exercises.Create(service.ExerciseInput{Title: &title, Category: &category})
	if err != nil {
		t.Fatalf("create exercise: %v", err)
	}
	sessionTitle := "Routine du matin"
	session, err := api.sessions.Create(admin.ID, service.SessionInput{Title: &sessionTitle}, []service.ElementInput{{ExerciseID: exercise.ID}})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	published, err := api.sessions.Publish(session.ID, admin.ID, []uint{patient.ID})
	if err != nil || len(published.Created) != 1 {
		t.Fatalf("publish: %v %+v", err, published)
	}
	instanceID := published.Created[0].ID

	r := newEngine(api)
	r.Use(asPrincipal(Principal{UserID: patient.ID, Role: db.RolePatient}))
	r.POST("/patient-sessions/:id/start", api.StartInstance)
	r.POST("/patient-sessions/:id/complete", api.CompleteInstance)

	chunked := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		req.Body = io.NopCloser(strings.NewReader(body))
		req.ContentLength = -1
		req.Header.Set("Content-Type", "application/json")
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, req)
		return rr
	}

	if rr := chunked(fmt.Sprintf("/patient-sessions/%d/start", instanceID), ""); rr.Code != http.StatusOK {
		t.Fatalf("chunked empty start: expected 200, got %d %s", rr.Code, rr.Body.String())
	}
	if rr := chunked(fmt.Sprintf("/patient-sessions/%d/complete", instanceID), "{not json"); rr.Code != http.StatusBadRequest {
		t.Fatalf("malformed body: expected 400, got %d", rr.Code)
	}
	if rr := chunked(fmt.Sprintf("/patient-sessions/%d/complete", instanceID), `{"cravingAfter": 2}`); rr.Code != http.StatusOK {
		t.Fatalf("complete: expected 200, got %d %s", rr.Code, rr.Body.String())
	}

	var instance db.SessionInstance
	if err := gdb.First(&instance, instanceID).Error; err != nil {
		t.Fatalf("load instance: %v", err)
	}
	if instance.Status != db.InstanceDone || instance.CravingAfter == nil || *instance.CravingAfter != 2 {
		t.Fatalf("unexpected instance after completion: %+v", instance)
	}
}
