package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/princeprakhar/reviewnext-backend/internal/policy"
	"github.com/princeprakhar/reviewnext-backend/internal/services"
	"github.com/princeprakhar/reviewnext-backend/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "test-secret"

func newRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/", handlers...)
	return r
}

func serve(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	var seen services.Actor
	r := newRouter(AuthMiddleware(secret), func(c *gin.Context) {
		seen = CurrentActor(c)
		c.Status(http.StatusNoContent)
	})

	pair, err := utils.GenerateTokenPair("user-1", "alice@example.com", "alice", secret)
	require.NoError(t, err)

	w := serve(r, "Bearer "+pair.AccessToken)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, services.Actor{UserID: "user-1", Email: "alice@example.com", Username: "alice"}, seen)

	cases := map[string]string{
		"missing header": "",
		"no bearer":      pair.AccessToken,
		"refresh token":  "Bearer " + pair.RefreshToken,
		"garbage":        "Bearer abc.def.ghi",
	}
	for name, header := range cases {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, http.StatusUnauthorized, serve(r, header).Code)
		})
	}

	other, err := utils.GenerateTokenPair("user-1", "alice@example.com", "alice", "other-secret")
	require.NoError(t, err)
	assert.Equal(t, http.StatusUnauthorized, serve(r, "Bearer "+other.AccessToken).Code)
}

func TestAdminOnly(t *testing.T) {
	r := newRouter(AuthMiddleware(secret), AdminOnly(policy.New([]string{"Admin@Example.com"})), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	adminPair, err := utils.GenerateTokenPair("u-admin", "admin@example.com", "admin", secret)
	require.NoError(t, err)
	userPair, err := utils.GenerateTokenPair("u-alice", "alice@example.com", "alice", secret)
	require.NoError(t, err)

	assert.Equal(t, http.StatusNoContent, serve(r, "Bearer "+adminPair.AccessToken).Code)

	w := serve(r, "Bearer "+userPair.AccessToken)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), `"code":"forbidden"`)
}

func TestRateLimitMiddleware_MemoryStore(t *testing.T) {
	r := newRouter(RateLimitMiddleware(1, nil), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	first := serve(r, "")
	assert.Equal(t, http.StatusNoContent, first.Code)
	assert.Equal(t, "1", first.Header().Get("X-RateLimit-Limit"))

	assert.Equal(t, http.StatusTooManyRequests, serve(r, "").Code)
}

func TestCORSMiddleware(t *testing.T) {
	r := newRouter(CORSMiddleware([]string{"http://localhost:3000"}), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "http://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
