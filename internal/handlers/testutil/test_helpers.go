package testutil

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/api"
	"github.com/credvault/credvault/internal/app"
	iauth "github.com/credvault/credvault/internal/auth"
	sharedtestutil "github.com/credvault/credvault/internal/database/testutil"
	"github.com/credvault/credvault/internal/gateway"
	"github.com/credvault/credvault/internal/middleware"
	"github.com/credvault/credvault/internal/models"
	"github.com/credvault/credvault/internal/permissions"
	"github.com/credvault/credvault/internal/services"
	"github.com/credvault/credvault/pkg/response"
)

// Env encapsulates a fully-wired API instance backed by an in-memory database for handler tests.
type Env struct {
	T       *testing.T
	DB      *gorm.DB
	Router  *gin.Engine
	JWT     *iauth.JWTService
	Gateway *gateway.Gateway
}

// NewEnv provisions a fresh handler test environment with migrations applied.
func NewEnv(t *testing.T) *Env {
	t.Helper()

	gin.SetMode(gin.TestMode)

	db := sharedtestutil.MustOpenTestDB(t)

	jwtSvc, err := iauth.NewJWTService(iauth.JWTConfig{
		Secret:         "test-suite-super-secret-key-32-bytes!!",
		Issuer:         "test-suite",
		AccessTokenTTL: time.Hour,
	})
	require.NoError(t, err)

	challengeSvc, err := iauth.NewChallengeService(iauth.ChallengeConfig{
		Secret: "test-suite-challenge-secret",
		TTL:    5 * time.Minute,
	})
	require.NoError(t, err)

	store, err := permissions.NewGormStore(db)
	require.NoError(t, err)
	checker, err := permissions.NewChecker(store)
	require.NoError(t, err)
	entitlements, err := services.NewEntitlementService(db, checker)
	require.NoError(t, err)

	gw, err := gateway.New(db, store, entitlements, gateway.Config{
		Registry:  "test-registry",
		MasterKey: []byte("test-suite-gateway-master-key-32"),
	})
	require.NoError(t, err)

	cfg := &app.Config{
		Server: app.ServerConfig{
			RateLimit: app.RateLimitConfig{Enabled: false},
		},
		Monitoring: app.MonitoringConfig{
			Health: app.HealthConfig{Enabled: true},
		},
	}

	router, err := api.NewRouter(db, jwtSvc, challengeSvc, gw, cfg, middleware.NewMemoryRateStore())
	require.NoError(t, err)

	return &Env{T: t, DB: db, Router: router, JWT: jwtSvc, Gateway: gw}
}

// IdentityOpts controls role flags on a created identity.
type IdentityOpts struct {
	Name            string
	Admin           bool
	UniversityAdmin bool
	Inactive        bool
	DecryptKey      string
}

// TestIdentity bundles a created identity with its Ed25519 private key.
type TestIdentity struct {
	Identity   *models.Identity
	PrivateKey ed25519.PrivateKey
}

// CreateIdentity inserts an identity with a freshly generated signing key pair.
func (e *Env) CreateIdentity(opts IdentityOpts) *TestIdentity {
	e.T.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(e.T, err)

	name := opts.Name
	if name == "" {
		name = "identity"
	}

	identity := &models.Identity{
		Name:              name,
		SigningKey:        base64.StdEncoding.EncodeToString(pub),
		DecryptKey:        opts.DecryptKey,
		IsAdmin:           opts.Admin,
		IsUniversityAdmin: opts.UniversityAdmin,
		IsActive:          !opts.Inactive,
	}
	require.NoError(e.T, e.DB.Create(identity).Error)

	return &TestIdentity{Identity: identity, PrivateKey: priv}
}

// Token issues a JWT for the identity without going through the login flow.
func (e *Env) Token(identity *models.Identity) string {
	e.T.Helper()
	token, err := e.JWT.GenerateAccessToken(iauth.AccessTokenInput{IdentityID: identity.ID})
	require.NoError(e.T, err)
	return token
}

// LoginResult bundles the JSON response from POST /api/auth/login.
type LoginResult struct {
	AccessToken string          `json:"access_token"`
	ExpiresIn   int             `json:"expires_in"`
	Identity    IdentityPayload `json:"identity"`
}

// IdentityPayload captures the identity fields returned from auth endpoints.
type IdentityPayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	SigningKey        string `json:"signing_key"`
	DecryptKey        string `json:"decrypt_key"`
	IsAdmin           bool   `json:"is_admin"`
	IsUniversityAdmin bool   `json:"is_university_admin"`
	IsActive          bool   `json:"is_active"`
}

// Login performs the full challenge plus signature exchange for the identity.
func (e *Env) Login(ti *TestIdentity) LoginResult {
	e.T.Helper()

	w := e.Request(http.MethodPost, "/api/auth/challenge", map[string]string{
		"signing_key": ti.Identity.SigningKey,
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	var challenge struct {
		Token string `json:"token"`
	}
	resp := DecodeResponse(e.T, w)
	DecodeInto(e.T, resp.Data, &challenge)
	require.NotEmpty(e.T, challenge.Token)

	signature := ed25519.Sign(ti.PrivateKey, []byte(challenge.Token))

	w = e.Request(http.MethodPost, "/api/auth/login", map[string]string{
		"signing_key": ti.Identity.SigningKey,
		"challenge":   challenge.Token,
		"signature":   base64.StdEncoding.EncodeToString(signature),
	}, "")
	require.Equal(e.T, http.StatusOK, w.Code, w.Body.String())

	resp = DecodeResponse(e.T, w)
	require.True(e.T, resp.Success, w.Body.String())

	var result LoginResult
	DecodeInto(e.T, resp.Data, &result)
	require.NotEmpty(e.T, result.AccessToken)
	return result
}

// APIResponse represents the canonical API envelope returned by handlers.
type APIResponse struct {
	Success bool                `json:"success"`
	Data    json.RawMessage     `json:"data"`
	Error   *response.ErrorInfo `json:"error"`
	Meta    *response.Meta      `json:"meta"`
}

// DecodeResponse parses the standard API response object from a recorder.
func DecodeResponse(t *testing.T, w *httptest.ResponseRecorder) APIResponse {
	t.Helper()
	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	return resp
}

// DecodeInto unmarshals the data payload into the provided destination.
func DecodeInto[T any](t *testing.T, raw json.RawMessage, dest *T) {
	t.Helper()
	if dest == nil {
		t.Fatal("destination must not be nil")
	}
	require.NoError(t, json.Unmarshal(raw, dest))
}

// Request executes an HTTP request against the test router, applying JSON
// encoding and the bearer token automatically.
func (e *Env) Request(method, path string, body any, token string) *httptest.ResponseRecorder {
	e.T.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(e.T, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.Router.ServeHTTP(w, req)
	return w
}
