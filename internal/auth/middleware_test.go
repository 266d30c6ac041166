package auth_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/BradenHooton/warden/internal/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

type MockRevocationChecker struct {
	IsRevokedFunc func(ctx context.Context, token string) bool
}

func (m *MockRevocationChecker) IsRevoked(ctx context.Context, token string) bool {
	if m.IsRevokedFunc != nil {
		return m.IsRevokedFunc(ctx, token)
	}
	return false
}

func protectedHandler(t *testing.T, role string, revocation auth.TokenRevocationChecker) http.Handler {
	t.Helper()
	tm := auth.NewTokenManager(testSecret, time.Hour)
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := auth.GetClaimsFromContext(r)
		require.NotNil(t, claims)
		w.Header().Set("X-Subject", claims.Subject)
		w.WriteHeader(http.StatusNoContent)
	})
	return auth.AuthMiddleware(tm, revocation)(auth.RequireRole(role)(final))
}

func TestAuthMiddleware(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, time.Hour)
	adminToken, err := tm.GenerateToken("ops-1", auth.RoleAdmin)
	require.NoError(t, err)
	viewerToken, err := tm.GenerateToken("ops-2", "viewer")
	require.NoError(t, err)
	foreign, err := auth.NewTokenManager("another-secret-entirely-000000", time.Hour).GenerateToken("x", auth.RoleAdmin)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		revoked    bool
		wantStatus int
	}{
		{"valid admin", "Bearer " + adminToken, false, http.StatusNoContent},
		{"lowercase scheme", "bearer " + adminToken, false, http.StatusNoContent},
		{"missing header", "", false, http.StatusUnauthorized},
		{"wrong scheme", "Basic " + adminToken, false, http.StatusUnauthorized},
		{"wrong signature", "Bearer " + foreign, false, http.StatusUnauthorized},
		{"garbage", "Bearer not.a.jwt", false, http.StatusUnauthorized},
		{"revoked", "Bearer " + adminToken, true, http.StatusUnauthorized},
		{"insufficient role", "Bearer " + viewerToken, false, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			revocation := &MockRevocationChecker{
				IsRevokedFunc: func(ctx context.Context, token string) bool { return tt.revoked },
			}
			h := protectedHandler(t, auth.RoleAdmin, revocation)

			req := httptest.NewRequest(http.MethodGet, "/admin/stats", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			h.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusNoContent {
				assert.Equal(t, "ops-1", w.Header().Get("X-Subject"))
			}
		})
	}
}

func TestAuthMiddleware_NilRevocationChecker(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, time.Hour)
	token, err := tm.GenerateToken("ops-1", auth.RoleAdmin)
	require.NoError(t, err)

	h := protectedHandler(t, auth.RoleAdmin, nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestRequireRole_WithoutClaims(t *testing.T) {
	h := auth.RequireRole(auth.RoleAdmin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run")
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRole_AcceptsAnyListedRole(t *testing.T) {
	tm := auth.NewTokenManager(testSecret, time.Hour)
	token, err := tm.GenerateToken("login-svc", auth.RoleService)
	require.NoError(t, err)

	h := auth.AuthMiddleware(tm, nil)(auth.RequireRole(auth.RoleAdmin, auth.RoleService)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })))

	req := httptest.NewRequest(http.MethodPost, "/v1/login/check", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}
