package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/internal/api/middleware"
	"github.com/bbagrid/bbagrid/internal/api/models"
	"github.com/bbagrid/bbagrid/internal/auth"
)

// hit sends one request from addr, optionally authenticated as subject.
func hit(h http.Handler, addr, subject string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/v1/devices/dev_1/fixes", http.NoBody)
	req.RemoteAddr = addr
	if subject != "" {
		req = req.WithContext(middleware.WithPrincipal(req.Context(), &auth.Principal{Subject: subject, Role: auth.RoleDevice}))
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRateLimitByIP(t *testing.T) {
	h := middleware.RateLimitByIP(middleware.PerMinute(3))(okHandler())

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, hit(h, "10.0.0.1:1000", "").Code, "request %d", i+1)
	}
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "10.0.0.1:1001", "").Code)

	// Budgets are per address.
	assert.Equal(t, http.StatusOK, hit(h, "10.0.0.2:1000", "").Code)
}

func TestRateLimitByPrincipal_KeysOnSubject(t *testing.T) {
	h := middleware.RateLimitByPrincipal(middleware.PerMinute(2))(okHandler())

	// One device roaming across addresses shares its budget.
	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:1", "dev_1").Code)
	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.2:1", "dev_1").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "192.168.1.3:1", "dev_1").Code)

	assert.Equal(t, http.StatusOK, hit(h, "192.168.1.1:1", "dev_2").Code)
}

func TestRateLimitByPrincipal_FallsBackToIP(t *testing.T) {
	h := middleware.RateLimitByPrincipal(middleware.PerMinute(1))(okHandler())

	assert.Equal(t, http.StatusOK, hit(h, "198.51.100.7:4000", "").Code)
	assert.Equal(t, http.StatusTooManyRequests, hit(h, "198.51.100.7:4000", "").Code)
}

func TestRateLimit_ProblemResponse(t *testing.T) {
	cfg := middleware.RateLimitConfig{Limit: 1, Window: 90 * time.Second}
	h := middleware.RequestID(middleware.RateLimitByIP(cfg)(okHandler()))

	require.Equal(t, http.StatusOK, hit(h, "203.0.113.1:1", "").Code)
	rec := hit(h, "203.0.113.1:1", "")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "90", rec.Header().Get("Retry-After"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	body := rec.Body.String()
	assert.Contains(t, body, models.KindTooManyRequests.TypeURI())
	assert.Contains(t, body, "retry after 90s")
	assert.Contains(t, body, "/v1/devices/dev_1/fixes")
}

func TestDefaultRateLimits(t *testing.T) {
	assert.Equal(t, middleware.RateLimitConfig{Limit: 10, Window: time.Minute}, middleware.AuthRateLimit)
	// Two second minimum poll interval, doubled.
	assert.Equal(t, middleware.RateLimitConfig{Limit: 60, Window: time.Minute}, middleware.FixRateLimit)
}
