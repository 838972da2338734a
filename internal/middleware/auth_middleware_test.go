package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	iauth "github.com/credvault/credvault/internal/auth"
)

func newAuthRouter(t *testing.T) (*gin.Engine, *iauth.JWTService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "test-secret", Issuer: "credvault"})
	require.NoError(t, err)

	router := gin.New()
	router.GET("/protected", Auth(jwt), func(c *gin.Context) {
		identityID := c.GetString(CtxIdentityKey)
		c.JSON(http.StatusOK, gin.H{"identity_id": identityID})
	})
	return router, jwt
}

func TestAuthAcceptsValidToken(t *testing.T) {
	router, jwt := newAuthRouter(t)

	token, err := jwt.GenerateAccessToken(iauth.AccessTokenInput{IdentityID: "identity-1"})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "identity-1")
}

func TestAuthRejectsMissingAndMalformedTokens(t *testing.T) {
	router, _ := newAuthRouter(t)

	for _, header := range []string{"", "Bearer", "Bearer  ", "Basic abc", "Bearer not-a-jwt"} {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}
}
