package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/services"
	"github.com/credvault/credvault/pkg/response"
)

// InstitutionHandler exposes institution registration, status management, and
// the public directory.
type InstitutionHandler struct {
	svc *services.InstitutionService
}

func NewInstitutionHandler(db *gorm.DB) (*InstitutionHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewInstitutionService(db, audit)
	if err != nil {
		return nil, err
	}
	return &InstitutionHandler{svc: svc}, nil
}

type registerInstitutionRequest struct {
	Name          string `json:"name" validate:"required,min=1,max=255"`
	Country       string `json:"country" validate:"max=100"`
	Accreditation string `json:"accreditation" validate:"max=255"`
	AdminID       string `json:"admin_id" validate:"required"`
}

// POST /api/institutions
func (h *InstitutionHandler) Register(c *gin.Context) {
	var req registerInstitutionRequest
	if !bindAndValidate(c, &req) {
		return
	}

	institution, err := h.svc.Register(requestContext(c), identityID(c), services.RegisterInstitutionInput{
		Name:          req.Name,
		Country:       req.Country,
		Accreditation: req.Accreditation,
		AdminID:       req.AdminID,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, institution.Public())
}

type institutionStatusRequest struct {
	Verified *bool `json:"verified"`
	Active   *bool `json:"active"`
}

// PATCH /api/institutions/:seq
func (h *InstitutionHandler) SetStatus(c *gin.Context) {
	seq, ok := parseSeqParam(c, "seq")
	if !ok {
		return
	}

	var req institutionStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}

	institution, err := h.svc.SetStatus(requestContext(c), identityID(c), seq, services.InstitutionStatusInput{
		Verified: req.Verified,
		Active:   req.Active,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, institution.Public())
}

// GET /institutions
func (h *InstitutionHandler) List(c *gin.Context) {
	institutions, err := h.svc.List(requestContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, institutions)
}

// GET /institutions/:seq
func (h *InstitutionHandler) Get(c *gin.Context) {
	seq, ok := parseSeqParam(c, "seq")
	if !ok {
		return
	}

	institution, err := h.svc.Get(requestContext(c), seq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, institution)
}
