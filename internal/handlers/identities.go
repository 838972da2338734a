package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/models"
	"github.com/credvault/credvault/internal/services"
	"github.com/credvault/credvault/pkg/response"
)

// IdentityHandler exposes identity registration, role administration, and the
// public role queries.
type IdentityHandler struct {
	svc *services.IdentityService
}

func NewIdentityHandler(db *gorm.DB) (*IdentityHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewIdentityService(db, audit)
	if err != nil {
		return nil, err
	}
	return &IdentityHandler{svc: svc}, nil
}

// identityPayload is the identity view returned by the API. Key material is
// public key only; no secrets ever reach the server.
type identityPayload struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	SigningKey        string `json:"signing_key"`
	DecryptKey        string `json:"decrypt_key,omitempty"`
	IsAdmin           bool   `json:"is_admin"`
	IsUniversityAdmin bool   `json:"is_university_admin"`
	IsActive          bool   `json:"is_active"`
}

func newIdentityPayload(identity *models.Identity) *identityPayload {
	if identity == nil {
		return nil
	}
	return &identityPayload{
		ID:                identity.ID,
		Name:              identity.Name,
		SigningKey:        identity.SigningKey,
		DecryptKey:        identity.DecryptKey,
		IsAdmin:           identity.IsAdmin,
		IsUniversityAdmin: identity.IsUniversityAdmin,
		IsActive:          identity.IsActive,
	}
}

type registerIdentityRequest struct {
	Name       string `json:"name" validate:"required,min=1,max=255"`
	SigningKey string `json:"signing_key" validate:"required,base64key"`
	DecryptKey string `json:"decrypt_key" validate:"omitempty,base64key"`
}

// POST /api/identities
func (h *IdentityHandler) Register(c *gin.Context) {
	var req registerIdentityRequest
	if !bindAndValidate(c, &req) {
		return
	}

	identity, err := h.svc.Register(requestContext(c), identityID(c), services.RegisterIdentityInput{
		Name:       req.Name,
		SigningKey: req.SigningKey,
		DecryptKey: req.DecryptKey,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, newIdentityPayload(identity))
}

// GET /api/identities
func (h *IdentityHandler) List(c *gin.Context) {
	identities, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}

	payload := make([]*identityPayload, 0, len(identities))
	for i := range identities {
		payload = append(payload, newIdentityPayload(&identities[i]))
	}
	response.Success(c, http.StatusOK, payload)
}

// GET /api/identities/:id
func (h *IdentityHandler) Get(c *gin.Context) {
	identity, err := h.svc.Get(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newIdentityPayload(identity))
}

type roleRequest struct {
	Grant bool `json:"grant"`
}

// PUT /api/identities/:id/admin
func (h *IdentityHandler) SetAdmin(c *gin.Context) {
	var req roleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	identity, err := h.svc.SetAdmin(requestContext(c), identityID(c), c.Param("id"), req.Grant)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newIdentityPayload(identity))
}

// PUT /api/identities/:id/university-admin
func (h *IdentityHandler) SetUniversityAdmin(c *gin.Context) {
	var req roleRequest
	if !bindAndValidate(c, &req) {
		return
	}

	identity, err := h.svc.SetUniversityAdmin(requestContext(c), identityID(c), c.Param("id"), req.Grant)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newIdentityPayload(identity))
}

type activeRequest struct {
	Active bool `json:"active"`
}

// PUT /api/identities/:id/active
func (h *IdentityHandler) SetActive(c *gin.Context) {
	var req activeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	identity, err := h.svc.SetActive(requestContext(c), identityID(c), c.Param("id"), req.Active)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newIdentityPayload(identity))
}

type decryptKeyRequest struct {
	DecryptKey string `json:"decrypt_key" validate:"required,base64key"`
}

// PUT /api/identities/me/decrypt-key registers the caller's device-bound
// decryption capability key.
func (h *IdentityHandler) SetDecryptKey(c *gin.Context) {
	var req decryptKeyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	identity, err := h.svc.SetDecryptKey(requestContext(c), identityID(c), req.DecryptKey)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, newIdentityPayload(identity))
}

// GET /identities/:id/is-admin
func (h *IdentityHandler) IsAdmin(c *gin.Context) {
	admin, err := h.svc.IsAdmin(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"is_admin": admin})
}

// GET /identities/:id/is-university-admin
func (h *IdentityHandler) IsUniversityAdmin(c *gin.Context) {
	admin, err := h.svc.IsUniversityAdmin(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, gin.H{"is_university_admin": admin})
}
