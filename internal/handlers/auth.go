package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/credvault/credvault/internal/auth"
	"github.com/credvault/credvault/internal/services"
	appErrors "github.com/credvault/credvault/pkg/errors"
	"github.com/credvault/credvault/pkg/metrics"
	"github.com/credvault/credvault/pkg/response"
)

// AuthHandler implements the key-based login flow: the client requests a
// challenge for its signing key, signs the raw challenge token with the
// matching Ed25519 private key, and exchanges the signature for a JWT.
type AuthHandler struct {
	identities *services.IdentityService
	challenges *iauth.ChallengeService
	jwt        *iauth.JWTService
	audit      *services.AuditService
}

func NewAuthHandler(db *gorm.DB, challenges *iauth.ChallengeService, jwt *iauth.JWTService) (*AuthHandler, error) {
	if challenges == nil {
		return nil, errors.New("auth handler: challenge service is required")
	}
	if jwt == nil {
		return nil, errors.New("auth handler: jwt service is required")
	}
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	identities, err := services.NewIdentityService(db, audit)
	if err != nil {
		return nil, err
	}
	return &AuthHandler{identities: identities, challenges: challenges, jwt: jwt, audit: audit}, nil
}

type challengeRequest struct {
	SigningKey string `json:"signing_key" validate:"required,base64key"`
}

// POST /api/auth/challenge
func (h *AuthHandler) Challenge(c *gin.Context) {
	var req challengeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	challenge, err := h.challenges.Issue(req.SigningKey)
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	response.Success(c, http.StatusOK, challenge)
}

type loginRequest struct {
	SigningKey string `json:"signing_key" validate:"required,base64key"`
	Challenge  string `json:"challenge" validate:"required"`
	Signature  string `json:"signature" validate:"required"`
}

type loginResponse struct {
	AccessToken string           `json:"access_token"`
	ExpiresIn   int              `json:"expires_in"`
	Identity    *identityPayload `json:"identity"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	if err := h.challenges.Verify(req.Challenge, req.Signature, req.SigningKey); err != nil {
		h.auditLogin(c, nil, "denied")
		response.Error(c, appErrors.ErrUnauthorized.WithMessage("challenge verification failed"))
		return
	}

	identity, err := h.identities.GetBySigningKey(requestContext(c), req.SigningKey)
	if err != nil {
		h.auditLogin(c, nil, "denied")
		response.Error(c, appErrors.ErrUnauthorized.WithMessage("signing key is not registered"))
		return
	}
	if !identity.IsActive {
		h.auditLogin(c, &identity.ID, "denied")
		response.Error(c, appErrors.ErrUnauthorized.WithMessage("identity is deactivated"))
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{IdentityID: identity.ID})
	if err != nil {
		response.Error(c, appErrors.ErrInternalServer.WithInternal(err))
		return
	}

	h.auditLogin(c, &identity.ID, "success")
	response.Success(c, http.StatusOK, loginResponse{
		AccessToken: token,
		ExpiresIn:   int(h.jwt.AccessTokenTTL().Seconds()),
		Identity:    newIdentityPayload(identity),
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	identity, err := h.identities.Get(requestContext(c), identityID(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newIdentityPayload(identity))
}

func (h *AuthHandler) auditLogin(c *gin.Context, identityID *string, result string) {
	if result == "success" {
		metrics.AuthAttempts.WithLabelValues("success").Inc()
	} else {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
	}
	if h.audit == nil {
		return
	}
	_ = h.audit.Log(requestContext(c), services.AuditEntry{
		IdentityID: identityID,
		Action:     "auth.login",
		Result:     result,
		IPAddress:  c.ClientIP(),
	})
}
