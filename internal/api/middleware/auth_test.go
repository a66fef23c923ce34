package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bbagrid/bbagrid/internal/api/middleware"
	"github.com/bbagrid/bbagrid/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_Rejects(t *testing.T) {
	svc := createTestAuthService(t)
	handler := middleware.Auth(svc)(okHandler())

	expired := auth.NewService(auth.ServiceConfig{
		Signer: auth.NewSigner(auth.SignerConfig{
			SigningKey: "test-secret-key-for-testing-only",
			Issuer:     "https://api.bbagrid.dev",
			Audience:   "bbagrid-api",
			Now:        func() time.Time { return time.Now().Add(-60 * 24 * time.Hour) },
		}),
	})
	old, err := expired.IssueDeviceToken("dev_test123")
	require.NoError(t, err)

	tests := []struct {
		name      string
		header    string
		detail    string
		challenge string
	}{
		{"no header", "", "missing authorization header", `Bearer realm="bbagrid"`},
		{"no bearer prefix", "token123", "invalid authorization header format", `Bearer realm="bbagrid"`},
		{"basic auth", "Basic dXNlcjpwYXNz", "invalid authorization header format", `Bearer realm="bbagrid"`},
		{"just bearer", "Bearer", "invalid authorization header format", `Bearer realm="bbagrid"`},
		{"empty bearer", "Bearer    ", "missing bearer token", `Bearer realm="bbagrid"`},
		{"garbage token", "Bearer invalid.jwt.token", "invalid access token",
			`Bearer realm="bbagrid", error="invalid_token", error_description="invalid access token"`},
		{"expired token", "Bearer " + old.AccessToken, "access token has expired",
			`Bearer realm="bbagrid", error="invalid_token", error_description="access token has expired"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/devices/dev_test123", http.NoBody)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Equal(t, tt.challenge, rec.Header().Get("WWW-Authenticate"))
			assert.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
			assert.Contains(t, rec.Body.String(), tt.detail)
		})
	}
}

func TestAuth_ValidToken(t *testing.T) {
	authService := createTestAuthService(t)
	token, err := authService.IssueDeviceToken("dev_test123")
	require.NoError(t, err)

	var captured *auth.Principal
	handler := middleware.Auth(authService)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = middleware.GetPrincipal(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, captured)
	assert.Equal(t, "dev_test123", captured.Subject)
	assert.Equal(t, auth.RoleDevice, captured.Role)
}

func TestAuth_CaseInsensitiveBearer(t *testing.T) {
	authService := createTestAuthService(t)
	token, err := authService.IssueDeviceToken("dev_test123")
	require.NoError(t, err)

	handler := middleware.Auth(authService)(okHandler())

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		t.Run(prefix, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set("Authorization", prefix+token.AccessToken)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	handler := middleware.RequireAdmin(okHandler())

	tests := []struct {
		name      string
		principal *auth.Principal
		want      int
	}{
		{"anonymous", nil, http.StatusUnauthorized},
		{"device", &auth.Principal{Subject: "dev_1", Role: auth.RoleDevice}, http.StatusForbidden},
		{"admin", &auth.Principal{Subject: "admin", Role: auth.RoleAdmin}, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/v1/admin/feature-flags", http.NoBody)
			if tt.principal != nil {
				req = req.WithContext(middleware.WithPrincipal(req.Context(), tt.principal))
			}
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestRequireDevice(t *testing.T) {
	authService := createTestAuthService(t)

	r := chi.NewRouter()
	r.Use(middleware.Auth(authService))
	r.With(middleware.RequireDevice("deviceId")).Get("/v1/devices/{deviceId}", okHandler().ServeHTTP)

	own, err := authService.IssueDeviceToken("dev_1")
	require.NoError(t, err)
	admin := createAdminToken(t, authService)

	tests := []struct {
		name  string
		path  string
		token string
		want  int
	}{
		{"own device", "/v1/devices/dev_1", own.AccessToken, http.StatusOK},
		{"other device", "/v1/devices/dev_2", own.AccessToken, http.StatusForbidden},
		{"admin", "/v1/devices/dev_2", admin, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, http.NoBody)
			req.Header.Set("Authorization", "Bearer "+tt.token)
			rec := httptest.NewRecorder()

			r.ServeHTTP(rec, req)

			assert.Equal(t, tt.want, rec.Code)
			if tt.want == http.StatusForbidden {
				assert.Contains(t, rec.Body.String(), "forbidden")
			}
		})
	}
}

func TestGetSubject_NoAuth(t *testing.T) {
	assert.Empty(t, middleware.GetSubject(context.Background()))
	assert.Nil(t, middleware.GetPrincipal(context.Background()))
}

const testAdminKey = "test-admin-key"

// createTestAuthService creates an auth service for testing.
func createTestAuthService(t *testing.T) *auth.Service {
	t.Helper()

	signer := auth.NewSigner(auth.SignerConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "https://api.bbagrid.dev",
		Audience:   "bbagrid-api",
	})

	return auth.NewService(auth.ServiceConfig{
		Signer:   signer,
		AdminKey: testAdminKey,
	})
}

func createAdminToken(t *testing.T, s *auth.Service) string {
	t.Helper()
	token, err := s.IssueAdminToken(testAdminKey)
	require.NoError(t, err)
	return token.AccessToken
}
