// internal/middleware/auth_middleware_test.go
package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signToken(t *testing.T, secret, subject string) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": subject,
	}).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newAuthRouter(secret string) (*gin.Engine, *string) {
	gin.SetMode(gin.TestMode)

	var operatorID string
	r := gin.New()
	m := NewAuthMiddleware(secret)
	r.GET("/protected", m.Auth(), func(c *gin.Context) {
		if id, ok := GetOperatorID(c); ok {
			operatorID = id
		}
		c.Status(http.StatusOK)
	})
	return r, &operatorID
}

func TestAuth_ValidTokenSetsOperatorID(t *testing.T) {
	r, operatorID := newAuthRouter("test-secret")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "test-secret", "ops-7"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops-7", *operatorID)
}

func TestAuth_MissingTokenRejected(t *testing.T) {
	r, operatorID := newAuthRouter("test-secret")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, *operatorID)
}

func TestAuth_WrongSecretRejected(t *testing.T) {
	r, operatorID := newAuthRouter("test-secret")

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signToken(t, "other-secret", "ops-7"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Empty(t, *operatorID)
}

func TestAuth_QueryParamTokenAccepted(t *testing.T) {
	r, operatorID := newAuthRouter("test-secret")

	req := httptest.NewRequest(http.MethodGet, "/protected?token="+signToken(t, "test-secret", "ops-2"), nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "ops-2", *operatorID)
}
