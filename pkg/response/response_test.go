package response

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	appErrors "github.com/credvault/credvault/pkg/errors"
)

func newTestContext(t *testing.T) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	return c, rec
}

func TestSuccessEnvelope(t *testing.T) {
	c, rec := newTestContext(t)

	Success(c, http.StatusCreated, map[string]any{"credential_id": 7})

	require.Equal(t, http.StatusCreated, rec.Code)

	var payload Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.True(t, payload.Success)
	require.Nil(t, payload.Error)
}

func TestErrorEnvelopeFromAppError(t *testing.T) {
	c, rec := newTestContext(t)

	Error(c, appErrors.ErrAuthorizationExpired)

	require.Equal(t, http.StatusForbidden, rec.Code)

	var payload Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.False(t, payload.Success)
	require.Equal(t, "AUTHORIZATION_EXPIRED", payload.Error.Code)
}

func TestErrorEnvelopeFromGenericError(t *testing.T) {
	c, rec := newTestContext(t)

	Error(c, errors.New("database exploded"))

	require.Equal(t, http.StatusInternalServerError, rec.Code)

	var payload Response
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Equal(t, appErrors.ErrInternalServer.Code, payload.Error.Code)
	// Internal details must never leak to clients.
	require.NotContains(t, rec.Body.String(), "database exploded")
}
