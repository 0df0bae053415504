package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/medicore-backend/internal/platform/ctxutil"
	"github.com/yungbote/medicore-backend/internal/platform/logger"
	"github.com/yungbote/medicore-backend/internal/services"
)

func newAuthRouter(t *testing.T) (*gin.Engine, services.AuthService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	auth := services.NewAuthService(logger.Nop(), "test-secret")
	am := NewAuthMiddleware(logger.Nop(), auth)

	r := gin.New()
	r.Use(AttachRequestContext())
	r.POST("/upload", am.RequireAuth(), am.RequirePermission(services.PermCreateDiagnostics), func(c *gin.Context) {
		rd := ctxutil.GetRequestData(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": rd.UserID.String(), "role": rd.Role, "ip": rd.ClientIP})
	})
	return r, auth
}

func doAuth(r *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func detail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return body.Detail
}

func TestRequireAuthAndPermission(t *testing.T) {
	r, auth := newAuthRouter(t)
	userID := uuid.New()

	tok, err := auth.IssueToken(userID, services.RoleTechnician, time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	rec := doAuth(r, tok)
	if rec.Code != http.StatusOK {
		t.Fatalf("technician upload: status %d body %s", rec.Code, rec.Body.String())
	}
	var body map[string]string
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	if body["user_id"] != userID.String() || body["role"] != "technician" || body["ip"] == "" {
		t.Fatalf("body = %v", body)
	}

	viewerTok, _ := auth.IssueToken(uuid.New(), services.RoleViewer, time.Minute)
	rec = doAuth(r, viewerTok)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("viewer upload: status %d", rec.Code)
	}
}

func TestRequireAuthRejections(t *testing.T) {
	r, _ := newAuthRouter(t)

	rec := doAuth(r, "")
	if rec.Code != http.StatusUnauthorized || detail(t, rec) != "Authentication token required." {
		t.Fatalf("missing token: %d %s", rec.Code, rec.Body.String())
	}

	rec = doAuth(r, "garbage")
	if rec.Code != http.StatusUnauthorized || detail(t, rec) != "Invalid or expired token." {
		t.Fatalf("garbage token: %d %s", rec.Code, rec.Body.String())
	}

	inactive := false
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, services.JWTClaims{
		Role:             "admin",
		Active:           &inactive,
		RegisteredClaims: jwt.RegisteredClaims{Subject: uuid.NewString()},
	}).SignedString([]byte("test-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	rec = doAuth(r, tok)
	if rec.Code != http.StatusUnauthorized || detail(t, rec) != "Inactive user" {
		t.Fatalf("inactive: %d %s", rec.Code, rec.Body.String())
	}
}

func TestAttachTraceContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(AttachTraceContext())
	r.GET("/x", func(c *gin.Context) {
		td := ctxutil.GetTraceData(c.Request.Context())
		c.String(http.StatusOK, td.RequestID)
	})

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("X-Request-Id", "req-123")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	if rec.Body.String() != "req-123" || rec.Header().Get("X-Request-Id") != "req-123" {
		t.Fatalf("request id not propagated: body=%q header=%q", rec.Body.String(), rec.Header().Get("X-Request-Id"))
	}
	if rec.Header().Get("X-Trace-Id") == "" {
		t.Fatalf("expected generated trace id")
	}
}
