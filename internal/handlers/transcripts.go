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

// TranscriptHandler mirrors CredentialHandler for transcript records.
type TranscriptHandler struct {
	svc *services.TranscriptService
}

func NewTranscriptHandler(db *gorm.DB, checker services.AccessChecker, gateway services.HandleGateway) (*TranscriptHandler, error) {
	audit, err := services.NewAuditService(db)
	if err != nil {
		return nil, err
	}
	svc, err := services.NewTranscriptService(db, checker, gateway, audit)
	if err != nil {
		return nil, err
	}
	return &TranscriptHandler{svc: svc}, nil
}

type transcriptHandlesRequest struct {
	StudentNo        string `json:"student_no" validate:"required"`
	TotalCredits     string `json:"total_credits" validate:"required"`
	CompletedCredits string `json:"completed_credits" validate:"required"`
	GPA              string `json:"gpa" validate:"required"`
}

type createTranscriptRequest struct {
	InstitutionSeq int64                    `json:"institution_seq" validate:"min=0"`
	DocPointer     string                   `json:"doc_pointer" validate:"max=512"`
	HolderID       string                   `json:"holder_id" validate:"required"`
	IssuedAt       time.Time                `json:"issued_at"`
	Handles        transcriptHandlesRequest `json:"handles"`
	Proof          string                   `json:"proof" validate:"required"`
}

// POST /api/transcripts
func (h *TranscriptHandler) Create(c *gin.Context) {
	var req createTranscriptRequest
	if !bindAndValidate(c, &req) {
		return
	}

	transcript, err := h.svc.Create(requestContext(c), identityID(c), services.CreateTranscriptInput{
		InstitutionSeq: req.InstitutionSeq,
		DocPointer:     req.DocPointer,
		HolderID:       req.HolderID,
		IssuedAt:       req.IssuedAt,
		Handles: services.TranscriptHandlesInput{
			StudentNo:        req.Handles.StudentNo,
			TotalCredits:     req.Handles.TotalCredits,
			CompletedCredits: req.Handles.CompletedCredits,
			GPA:              req.Handles.GPA,
		},
		Proof: req.Proof,
	})
	if err != nil {
		metrics.CredentialOperations.WithLabelValues("transcript.create", "error").Inc()
		response.Error(c, err)
		return
	}

	metrics.CredentialOperations.WithLabelValues("transcript.create", "success").Inc()
	response.Success(c, http.StatusCreated, transcript.Public())
}

// GET /transcripts/:seq
func (h *TranscriptHandler) GetPublic(c *gin.Context) {
	seq, ok := parseSeqParam(c, "seq")
	if !ok {
		return
	}

	transcript, err := h.svc.GetPublic(requestContext(c), seq)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, transcript)
}

// GET /holders/:id/transcripts
func (h *TranscriptHandler) ListByHolder(c *gin.Context) {
	transcripts, err := h.svc.ListByHolder(requestContext(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, http.StatusOK, transcripts)
}

// GET /api/transcripts/:seq/handles
func (h *TranscriptHandler) GetHandles(c *gin.Context) {
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

// POST /api/transcripts/:seq/verify
func (h *TranscriptHandler) Verify(c *gin.Context) {
	seq, ok := parseSeqParam(c, "seq")
	if !ok {
		return
	}

	var req verifyRequest
	if !bindAndValidate(c, &req) {
		return
	}

	transcript, err := h.svc.Verify(requestContext(c), identityID(c), seq, req.Approve, req.Note)
	if err != nil {
		metrics.CredentialOperations.WithLabelValues("transcript.verify", "error").Inc()
		response.Error(c, err)
		return
	}
	metrics.CredentialOperations.WithLabelValues("transcript.verify", "success").Inc()
	response.Success(c, http.StatusOK, transcript.Public())
}
