package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supportdesk/supportdesk/internal/api/middleware"
	"github.com/supportdesk/supportdesk/internal/auth"
)

func createTestAdminAuth(t *testing.T) (func(http.Handler) http.Handler, *auth.JWTService) {
	t.Helper()

	tokens := auth.NewJWTService(auth.JWTConfig{
		SigningKey: "test-secret-key-for-testing-only",
		Issuer:     "supportdesk",
		Audience:   "supportdesk-admin",
	})
	return middleware.AdminAuth(middleware.AdminAuthConfig{
		Credentials: auth.Credentials{Username: "admin", Password: "correct-horse"},
		Tokens:      tokens,
	}), tokens
}

func okHandler(captured *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if captured != nil {
			*captured = middleware.GetAdmin(r.Context())
		}
		w.WriteHeader(http.StatusOK)
	})
}

func TestAdminAuth_MissingAuthorizationHeader(t *testing.T) {
	adminAuth, _ := createTestAdminAuth(t)
	handler := adminAuth(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "missing authorization header")
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), "Basic")
}

func TestAdminAuth_InvalidAuthorizationFormat(t *testing.T) {
	adminAuth, _ := createTestAdminAuth(t)
	handler := adminAuth(okHandler(nil))

	tests := []struct {
		name   string
		header string
	}{
		{"no scheme", "token123"},
		{"unknown scheme", "Digest abc"},
		{"empty bearer", "Bearer "},
		{"just bearer", "Bearer"},
		{"basic not base64", "Basic !!!"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set("Authorization", tt.header)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestAdminAuth_Basic(t *testing.T) {
	adminAuth, _ := createTestAdminAuth(t)

	tests := []struct {
		name           string
		username       string
		password       string
		expectedStatus int
	}{
		{"valid", "admin", "correct-horse", http.StatusOK},
		{"wrong password", "admin", "battery-staple", http.StatusUnauthorized},
		{"wrong user", "root", "correct-horse", http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured string
			handler := adminAuth(okHandler(&captured))

			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.SetBasicAuth(tt.username, tt.password)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, "admin", captured)
			}
		})
	}
}

func TestAdminAuth_InvalidToken(t *testing.T) {
	adminAuth, _ := createTestAdminAuth(t)
	handler := adminAuth(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer invalid.jwt.token")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "invalid admin token")
}

func TestAdminAuth_CaseInsensitiveBearer(t *testing.T) {
	adminAuth, tokens := createTestAdminAuth(t)

	token, _, err := tokens.GenerateAdminToken("admin")
	require.NoError(t, err)

	for _, prefix := range []string{"Bearer ", "bearer ", "BEARER "} {
		t.Run(prefix, func(t *testing.T) {
			var captured string
			handler := adminAuth(okHandler(&captured))

			req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
			req.Header.Set("Authorization", prefix+token)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, "admin", captured)
		})
	}
}

func TestAdminAuth_BearerWithoutTokenService(t *testing.T) {
	_, tokens := createTestAdminAuth(t)
	token, _, err := tokens.GenerateAdminToken("admin")
	require.NoError(t, err)

	handler := middleware.AdminAuth(middleware.AdminAuthConfig{
		Credentials: auth.Credentials{Username: "admin", Password: "correct-horse"},
	})(okHandler(nil))

	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestGetAdmin_NoAuth(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", http.NoBody)
	assert.Empty(t, middleware.GetAdmin(req.Context()))
}
