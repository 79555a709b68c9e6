package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fablecast/entitlement/pkg/config"
	"github.com/fablecast/entitlement/pkg/logctx"
)

func testConfig() *config.Config {
	cfg := config.Default()
	cfg.Auth.JWTSecret = "test-secret"
	return cfg
}

func newRouter(cfg *config.Config, admin bool) *gin.Engine {
	gin.SetMode(gin.TestMode)
	log := zap.NewNop().Sugar()
	r := gin.New()
	r.Use(TraceMiddleware(), RequestLoggerMiddleware(log), AccessLogMiddleware(log))
	g := r.Group("/", AuthMiddleware(cfg, log))
	if admin {
		g.Use(RequireAdmin())
	}
	g.GET("/me", func(c *gin.Context) {
		uid, _ := logctx.UserID(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user_id": UserID(c), "ctx_user_id": uid, "trace_id": logctx.TraceID(c.Request.Context())})
	})
	return r
}

func do(r http.Handler, token string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_AcceptsValidToken(t *testing.T) {
	cfg := testConfig()
	token, err := SignToken(cfg, 42, false, time.Hour)
	require.NoError(t, err)

	w := do(newRouter(cfg, false), token, map[string]string{"X-Request-ID": "req-1"})
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"user_id":42,"ctx_user_id":42,"trace_id":"req-1"}`, w.Body.String())
	require.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	cfg := testConfig()
	r := newRouter(cfg, false)

	require.Equal(t, http.StatusUnauthorized, do(r, "", nil).Code)
	require.Equal(t, http.StatusUnauthorized, do(r, "garbage", nil).Code)

	expired, err := SignToken(cfg, 42, false, -time.Minute)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, do(r, expired, nil).Code)

	other := testConfig()
	other.Auth.JWTSecret = "other-secret"
	forged, err := SignToken(other, 42, true, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, do(r, forged, nil).Code)

	wrongIssuer := testConfig()
	wrongIssuer.Auth.Issuer = "elsewhere"
	foreign, err := SignToken(wrongIssuer, 42, false, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, do(r, foreign, nil).Code)

	claims := Claims{StandardClaims: jwt.StandardClaims{Subject: "alice", Issuer: cfg.Auth.Issuer, ExpiresAt: time.Now().Add(time.Hour).Unix()}}
	named, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.Auth.JWTSecret))
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, do(r, named, nil).Code)

	unconfigured := config.Default()
	token, err := SignToken(cfg, 42, false, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusUnauthorized, do(newRouter(unconfigured, false), token, nil).Code)
}

func TestRequireAdmin(t *testing.T) {
	cfg := testConfig()
	r := newRouter(cfg, true)

	user, err := SignToken(cfg, 7, false, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusForbidden, do(r, user, nil).Code)

	admin, err := SignToken(cfg, 7, true, time.Hour)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, do(r, admin, nil).Code)
}

func TestTraceMiddleware_GeneratesID(t *testing.T) {
	cfg := testConfig()
	token, err := SignToken(cfg, 1, false, time.Hour)
	require.NoError(t, err)

	w := do(newRouter(cfg, false), token, nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, w.Header().Get("X-Request-ID"), 36)
}

func TestTraceMiddleware_RejectsUnsafeID(t *testing.T) {
	cfg := testConfig()
	token, err := SignToken(cfg, 1, false, time.Hour)
	require.NoError(t, err)

	for _, id := range []string{"bad id", "line\nbreak", strings.Repeat("a", maxTraceIDLen+1)} {
		w := do(newRouter(cfg, false), token, map[string]string{"X-Request-ID": id})
		require.Equal(t, http.StatusOK, w.Code)
		require.NotEqual(t, id, w.Header().Get("X-Request-ID"))
		require.Len(t, w.Header().Get("X-Request-ID"), 36)
	}
}
