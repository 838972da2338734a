package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/credvault/credvault/internal/gateway"
	appErrors "github.com/credvault/credvault/pkg/errors"
	"github.com/credvault/credvault/pkg/metrics"
	"github.com/credvault/credvault/pkg/response"
)

// GatewayHandler fronts the encryption gateway: encrypt for authenticated
// issuers, decrypt for self-authenticating signed authorizations.
type GatewayHandler struct {
	gw *gateway.Gateway
}

func NewGatewayHandler(gw *gateway.Gateway) (*GatewayHandler, error) {
	if gw == nil {
		return nil, errors.New("gateway handler: gateway is required")
	}
	return &GatewayHandler{gw: gw}, nil
}

type encryptRequest struct {
	Values []uint64 `json:"values" validate:"required,min=1,max=16"`
}

// POST /api/gateway/encrypt
func (h *GatewayHandler) Encrypt(c *gin.Context) {
	var req encryptRequest
	if !bindAndValidate(c, &req) {
		return
	}

	encrypted, err := h.gw.Encrypt(requestContext(c), identityID(c), req.Values)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, encrypted)
}

// POST /gateway/decrypt
//
// Unauthenticated on purpose: the authorization payload carries its own
// Ed25519 signature, so possession of a session token proves nothing extra.
func (h *GatewayHandler) Decrypt(c *gin.Context) {
	var auth gateway.Authorization
	if !bindAndValidate(c, &auth) {
		return
	}

	result, err := h.gw.Decrypt(requestContext(c), &auth)
	if err != nil {
		metrics.DecryptRequests.WithLabelValues(decryptOutcome(err)).Inc()
		response.Error(c, err)
		return
	}
	metrics.DecryptRequests.WithLabelValues("granted").Inc()
	response.Success(c, http.StatusOK, result)
}

func decryptOutcome(err error) string {
	switch {
	case errors.Is(err, appErrors.ErrAuthorizationExpired):
		return "expired"
	case errors.Is(err, appErrors.ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, appErrors.ErrDecryptionDenied):
		return "denied"
	default:
		return "error"
	}
}

// GET /gateway/key
func (h *GatewayHandler) Key(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"registry":    h.gw.Registry(),
		"gateway_key": h.gw.PublicKey(),
	})
}
