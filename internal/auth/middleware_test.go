package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func protectedRouter(t *testing.T, key, issuer, role string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", RequireRole(key, issuer, role), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"subject": Subject(c)})
	})
	return r
}

func TestRequireRole(t *testing.T) {
	const key = "secret"
	const issuer = "liveclass"

	studentToken, err := Issue("student-123", RoleStudent, issuer, key, time.Hour)
	require.NoError(t, err)
	adminToken, err := Issue("escola", RoleAdmin, issuer, key, time.Hour)
	require.NoError(t, err)
	foreignToken, err := Issue("student-123", RoleStudent, issuer, "other-key", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		authz      string
		wantStatus int
	}{
		{name: "missing header", authz: "", wantStatus: http.StatusUnauthorized},
		{name: "not a bearer", authz: "Basic abc123", wantStatus: http.StatusUnauthorized},
		{name: "malformed token", authz: "Bearer not-a-jwt", wantStatus: http.StatusUnauthorized},
		{name: "wrong signing key", authz: "Bearer " + foreignToken.Value, wantStatus: http.StatusUnauthorized},
		{name: "wrong role", authz: "Bearer " + adminToken.Value, wantStatus: http.StatusForbidden},
		{name: "valid student token", authz: "Bearer " + studentToken.Value, wantStatus: http.StatusOK},
		{name: "case-insensitive scheme", authz: "bearer " + studentToken.Value, wantStatus: http.StatusOK},
	}

	r := protectedRouter(t, key, issuer, RoleStudent)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authz != "" {
				req.Header.Set("Authorization", tt.authz)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Contains(t, w.Body.String(), "student-123")
			}
		})
	}
}

func TestRequireRoleIssuerMismatch(t *testing.T) {
	token, err := Issue("student-123", RoleStudent, "someone-else", "secret", time.Hour)
	require.NoError(t, err)

	r := protectedRouter(t, "secret", "liveclass", RoleStudent)
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token.Value)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
