package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiawesome/wes-market/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newAuthRouter(t *testing.T) (*gin.Engine, *jwt.Manager) {
	t.Helper()
	mgr, err := jwt.NewManager(jwt.Config{AccessDuration: time.Minute, RefreshDuration: time.Hour, Issuer: "test"})
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", NewAuthMiddleware(mgr).RequireAuth(), func(c *gin.Context) {
		c.String(http.StatusOK, GetUserID(c))
	})
	return r, mgr
}

func TestRequireAuth(t *testing.T) {
	r, mgr := newAuthRouter(t)
	pair, err := mgr.GenerateTokenPair("u-42", "x@example.com", "x", nil)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		status int
		body   string
	}{
		{"missing header", "", http.StatusUnauthorized, ""},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized, ""},
		{"refresh token", BearerPrefix + pair.RefreshToken, http.StatusUnauthorized, ""},
		{"valid", BearerPrefix + pair.AccessToken, http.StatusOK, "u-42"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set(AuthHeaderKey, tt.header)
			}
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, rec.Body.String())
			}
		})
	}
}

func TestRateLimiter(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(RateLimitConfig{RPS: 1, Burst: 2}).Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, rec.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, codes)
}

func TestRateLimiter_Disabled(t *testing.T) {
	r := gin.New()
	r.Use(NewRateLimiter(RateLimitConfig{}).Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for i := 0; i < 5; i++ {
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
		assert.Equal(t, http.StatusNoContent, rec.Code)
	}
}

func TestRateLimiter_EvictsIdleCallers(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	l := NewRateLimiter(RateLimitConfig{RPS: 1, Burst: 1, IdleTTL: time.Minute})
	l.now = func() time.Time { return now }
	l.lastSweep = now

	r := gin.New()
	r.Use(l.Handler())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	call := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := 1; i <= 50; i++ {
		call(fmt.Sprintf("10.0.0.%d", i))
	}
	assert.Equal(t, 50, l.Len())

	now = now.Add(45 * time.Second)
	assert.Equal(t, http.StatusNoContent, call("10.0.1.1"))
	assert.Equal(t, 51, l.Len())

	now = now.Add(45 * time.Second)
	assert.Equal(t, http.StatusNoContent, call("10.0.1.2"))
	assert.Equal(t, 2, l.Len(), "callers idle past the ttl are dropped")
}

func TestMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := NewMetrics(reg)
	require.NoError(t, err)

	r := gin.New()
	r.Use(m.Handler())
	r.GET("/listings/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/listings/7", nil))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("/listings/:id", http.MethodGet, "200")))
}
