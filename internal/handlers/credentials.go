package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/services"
	"github.com/credvault/credvault/pkg/metrics"
	"github.com/credvault/credvault/pkg/response"
)

// CredentialHandler exposes diploma issuance, verification, the public
// projections, and the role-gated ciphertext handle view.
type CredentialHandler struct {
	svc *services.CredentialService
}

func NewCredentialHandler(db *gorm.DB, checker services.AccessChecker, gateway services.HandleGateway) (*CredentialHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewCredentialService(db, checker, gateway, audit)
	if err != nil {
		return nil, err
	}
	return &CredentialHandler{svc: svc}, nil
}

type credentialHandlesRequest struct {
	GPA        string `json:"gpa" validate:"required"`
	Year       string `json:"year" validate:"required"`
	DegreeType string `json:"degree_type" validate:"required"`
}

type createCredentialRequest struct {
	StudentID      string                   `json:"student_id" validate:"required,max=255"`
	InstitutionSeq int64                    `json:"institution_seq" validate:"min=0"`
	DegreeName     string                   `json:"degree_name" validate:"required,max=255"`
	Major          string                   `json:"major" validate:"max=255"`
	DocPointer     string                   `json:"doc_pointer" validate:"max=512"`
	HolderID       string                   `json:"holder_id" validate:"required"`
	IssuedAt       time.Time                `json:"issued_at"`
	ExpiresAt      *time.Time               `json:"expires_at"`
	Handles        credentialHandlesRequest `json:"handles"`
	Proof          string                   `json:"proof" validate:"required"`
}

// POST /api/credentials
func (h *CredentialHandler) Create(c *gin.Context) {
	var req createCredentialRequest
	if !bindAndValidate(c, &req) {
		return
	}

	credential, err := h.svc.Create(requestContext(c), identityID(c), services.CreateCredentialInput{
		StudentID:      req.StudentID,
		InstitutionSeq: req.InstitutionSeq,
		DegreeName:     req.DegreeName,
		Major:          req.Major,
		DocPointer:     req.DocPointer,
		HolderID:       req.HolderID,
		IssuedAt:       req.IssuedAt,
		ExpiresAt:      req.ExpiresAt,
		Handles: services.CredentialHandlesInput{
			GPA:        req.Handles.GPA,
			Year:       req.Handles.Year,
			DegreeType: req.Handles.DegreeType,
		},
		Proof: req.Proof,
	})
	if err != nil {
		metrics.CredentialOperations.WithLabelValues("credential.create", "error").Inc()
		response.Error(c, err)
		return
	}

	metrics.CredentialOperations.WithLabelValues("credential.create", "success").Inc()
	response.Success(c, http.StatusCreated, credential.Public(time.Now()))
}

// GET /credentials/:seq
func (h *CredentialHandler) GetPublic(c *gin.Context) {
	seq, ok := parseSeqParam(c, "seq")
	if !ok {
		return
	}

	credential, err := h.svc.GetPublic(requestContext(c), seq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, credential)
}

// GET /holders/:id/credentials
func (h *CredentialHandler) ListByHolder(c *gin.Context) {
	credentials, err := h.svc.ListByHolder(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, credentials)
}

// GET /api/credentials/:seq/handles
func (h *CredentialHandler) GetHandles(c *gin.Context) {
	seq, ok := parseSeqParam(c, "seq")
	if !ok {
		return
	}

	handles, err := h.svc.GetHandles(requestContext(c), identityID(c), seq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, handles)
}

type verifyRequest struct {
	Approve bool   `json:"approve"`
	Note    string `json:"note" validate:"max=512"`
}

// POST /api/credentials/:seq/verify
func (h *CredentialHandler) Verify(c *gin.Context) {
	seq, ok := parseSeqParam(c, "seq")
	if !ok {
		return
	}

	var req verifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	credential, err := h.svc.Verify(requestContext(c), identityID(c), seq, req.Approve, req.Note)
	if err != nil {
		metrics.CredentialOperations.WithLabelValues("credential.verify", "error").Inc()
		response.Error(c, err)
		return
	}
	metrics.CredentialOperations.WithLabelValues("credential.verify", "success").Inc()
	response.Success(c, http.StatusOK, credential.Public(time.Now()))
}
