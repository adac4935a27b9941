package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/pricescout/config"
	"github.com/use-agent/pricescout/models"
)

func init() { gin.SetMode(gin.TestMode) }

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/x", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"key":        c.GetString(APIKeyContextKey),
			"request_id": c.GetString("request_id"),
		})
	})
	return r
}

func do(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth(t *testing.T) {
	r := newEngine(Auth([]string{"alpha", " ", "beta"}))

	tests := []struct {
		name   string
		header map[string]string
		status int
	}{
		{"missing", nil, http.StatusUnauthorized},
		{"invalid", map[string]string{"X-API-Key": "gamma"}, http.StatusUnauthorized},
		{"x-api-key", map[string]string{"X-API-Key": "alpha"}, http.StatusOK},
		{"bearer", map[string]string{"Authorization": "Bearer beta"}, http.StatusOK},
		{"basic is ignored", map[string]string{"Authorization": "Basic beta"}, http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := do(r, tt.header)
			require.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusUnauthorized {
				var res models.ActionResult
				require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
				assert.False(t, res.Success)
				assert.Equal(t, models.ErrCodeUnauthorized, res.Error.Code)
			}
		})
	}
}

func TestAuthStoresFingerprintNotKey(t *testing.T) {
	r := newEngine(Auth([]string{"alpha"}))

	w := do(r, map[string]string{"X-API-Key": "alpha"})
	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body["key"], 12)
	assert.NotContains(t, body["key"], "alpha")
}

func TestAuthWithoutKeysIsOpen(t *testing.T) {
	r := newEngine(Auth(nil))
	assert.Equal(t, http.StatusOK, do(r, nil).Code)
}

func TestRateLimitPerIdentity(t *testing.T) {
	set := newLimiterSet(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 2})
	r := newEngine(Auth([]string{"alpha", "beta"}), rateLimitHandler(set))

	alpha := map[string]string{"X-API-Key": "alpha"}
	assert.Equal(t, http.StatusOK, do(r, alpha).Code)
	assert.Equal(t, http.StatusOK, do(r, alpha).Code)

	w := do(r, alpha)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	var res models.ActionResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, models.ErrCodeRateLimited, res.Error.Code)

	assert.Equal(t, http.StatusOK, do(r, map[string]string{"X-API-Key": "beta"}).Code, "separate bucket")
	assert.Equal(t, 2, set.size())
}

func TestRateLimitFallsBackToIP(t *testing.T) {
	set := newLimiterSet(config.RateLimitConfig{RequestsPerSecond: 0.001, Burst: 1})
	r := newEngine(rateLimitHandler(set))

	assert.Equal(t, http.StatusOK, do(r, nil).Code)
	assert.Equal(t, http.StatusTooManyRequests, do(r, nil).Code)
}

func TestLimiterSetSweep(t *testing.T) {
	set := newLimiterSet(config.RateLimitConfig{RequestsPerSecond: 1, Burst: 1})
	base := time.Date(2026, 10, 18, 12, 0, 0, 0, time.UTC)

	set.now = func() time.Time { return base }
	set.allow("old")
	set.now = func() time.Time { return base.Add(2 * time.Hour) }
	set.allow("new")

	set.sweep(base.Add(time.Hour))
	assert.Equal(t, 1, set.size())

	ok, _ := set.allow("old")
	assert.True(t, ok, "evicted identity starts with a full bucket")
}

func TestRequestID(t *testing.T) {
	r := newEngine(RequestID())

	w := do(r, map[string]string{RequestIDHeader: "abc-123"})
	assert.Equal(t, "abc-123", w.Header().Get(RequestIDHeader))

	w = do(r, nil)
	id := w.Header().Get(RequestIDHeader)
	assert.Len(t, id, 36)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, id, body["request_id"])
}
