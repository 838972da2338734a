package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/models"
	appErrors "github.com/credvault/credvault/pkg/errors"
)

// TranscriptHandlesInput names the four ciphertext handles of a transcript.
type TranscriptHandlesInput struct {
	StudentNo        string
	TotalCredits     string
	CompletedCredits string
	GPA              string
}

func (h TranscriptHandlesInput) list() []string {
	return []string{h.StudentNo, h.TotalCredits, h.CompletedCredits, h.GPA}
}

// CreateTranscriptInput carries the fields needed to issue a transcript.
type CreateTranscriptInput struct {
	InstitutionSeq int64
	DocPointer     string
	HolderID       string
	IssuedAt       time.Time
	Handles        TranscriptHandlesInput
	Proof          string
}

// TranscriptService issues and reviews transcript records. The lifecycle and
// gates mirror CredentialService.
type TranscriptService struct {
	db      *gorm.DB
	checker AccessChecker
	gateway HandleGateway
	audit   *AuditService
	now     func() time.Time
}

// NewTranscriptService constructs a TranscriptService.
func NewTranscriptService(db *gorm.DB, checker AccessChecker, gateway HandleGateway, audit *AuditService) (*TranscriptService, error) {
	if db == nil {
		return nil, errors.New("transcript service: db is required")
	}
	if checker == nil {
		return nil, errors.New("transcript service: access checker is required")
	}
	if gateway == nil {
		return nil, errors.New("transcript service: gateway is required")
	}
	return &TranscriptService{db: db, checker: checker, gateway: gateway, audit: audit, now: time.Now}, nil
}

// Create issues a transcript under an institution.
func (s *TranscriptService) Create(ctx context.Context, issuerID string, input CreateTranscriptInput) (*models.Transcript, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.HolderID) == "" {
		return nil, appErrors.NewInvalidArgument("holder identity is required")
	}
	for _, handle := range input.Handles.list() {
		if strings.TrimSpace(handle) == "" {
			return nil, appErrors.NewInvalidArgument("all four ciphertext handles are required")
		}
	}

	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}

	var institution models.Institution
	err := s.db.WithContext(ctx).First(&institution, "seq = ?", input.InstitutionSeq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.NewInvalidArgument("institution not found")
	}
	if err != nil {
		return nil, fmt.Errorf("transcript service: load institution: %w", err)
	}
	if !institution.Active {
		return nil, appErrors.ErrForbidden.WithMessage("institution is inactive")
	}

	allowed, err := s.checker.ForInstitution(ctx, issuerID, institution.Seq)
	if err != nil {
		return nil, fmt.Errorf("transcript service: check issuer: %w", err)
	}
	if !allowed {
		return nil, appErrors.ErrForbidden
	}

	var holder models.Identity
	err = s.db.WithContext(ctx).First(&holder, "id = ?", strings.TrimSpace(input.HolderID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.NewInvalidArgument("holder identity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("transcript service: load holder: %w", err)
	}

	if !s.gateway.VerifyProof(issuerID, input.Handles.list(), input.Proof) {
		return nil, appErrors.ErrInvalidProof
	}

	// Binding first pins the ciphertext entries against pruning; a handle
	// that is no longer staged aborts issuance before anything is stored.
	if err := s.gateway.Bind(ctx, input.Handles.list()); err != nil {
		if errors.Is(err, appErrors.ErrInvalidProof) {
			return nil, err
		}
		return nil, fmt.Errorf("transcript service: bind handles: %w", err)
	}

	var transcript models.Transcript
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSeq(tx, &models.Transcript{})
		if err != nil {
			return err
		}

		transcript = models.Transcript{
			Seq:                    seq,
			InstitutionSeq:         institution.Seq,
			InstitutionName:        institution.Name,
			DocPointer:             strings.TrimSpace(input.DocPointer),
			HolderID:               holder.ID,
			IssuedAt:               issuedAt,
			Status:                 models.StatusPendingVerification,
			StudentNoHandle:        input.Handles.StudentNo,
			TotalCreditsHandle:     input.Handles.TotalCredits,
			CompletedCreditsHandle: input.Handles.CompletedCredits,
			GPAHandle:              input.Handles.GPA,
		}
		return tx.Create(&transcript).Error
	})
	if err != nil {
		if conflict := seqConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("transcript service: create transcript: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		IdentityID: &issuerID,
		Action:     "transcript.create",
		Resource:   fmt.Sprintf("transcript/%d", transcript.Seq),
		Result:     "success",
		Metadata:   map[string]any{"institution_seq": institution.Seq, "holder_id": holder.ID},
	})

	return &transcript, nil
}

// GetPublic returns the unauthenticated view of a transcript.
func (s *TranscriptService) GetPublic(ctx context.Context, seq int64) (models.TranscriptPublic, error) {
	transcript, err := s.bySeq(ensureContext(ctx), seq)
	if err != nil {
		return models.TranscriptPublic{}, err
	}
	return transcript.Public(), nil
}

// ListByHolder returns the public views of all transcripts held by an identity.
func (s *TranscriptService) ListByHolder(ctx context.Context, holderID string) ([]models.TranscriptPublic, error) {
	ctx = ensureContext(ctx)

	var transcripts []models.Transcript
	if err := s.db.WithContext(ctx).
		Where("holder_id = ?", strings.TrimSpace(holderID)).
		Order("seq ASC").
		Find(&transcripts).Error; err != nil {
		return nil, fmt.Errorf("transcript service: list by holder: %w", err)
	}

	out := make([]models.TranscriptPublic, 0, len(transcripts))
	for i := range transcripts {
		out = append(out, transcripts[i].Public())
	}
	return out, nil
}

// GetHandles returns the ciphertext handles of a transcript to entitled
// viewers only.
func (s *TranscriptService) GetHandles(ctx context.Context, viewerID string, seq int64) (models.TranscriptHandles, error) {
	ctx = ensureContext(ctx)

	transcript, err := s.bySeq(ctx, seq)
	if err != nil {
		return models.TranscriptHandles{}, err
	}

	allowed, err := s.checker.ForHandles(ctx, viewerID, transcript.HolderID, transcript.InstitutionSeq)
	if err != nil {
		return models.TranscriptHandles{}, fmt.Errorf("transcript service: check viewer: %w", err)
	}
	if !allowed {
		return models.TranscriptHandles{}, appErrors.ErrForbidden
	}

	return transcript.Handles(), nil
}

// Verify applies an explicit review decision with the same no-op and
// history semantics as credentials.
func (s *TranscriptService) Verify(ctx context.Context, reviewerID string, seq int64, approve bool, note string) (*models.Transcript, error) {
	ctx = ensureContext(ctx)

	transcript, err := s.bySeq(ctx, seq)
	if err != nil {
		return nil, err
	}

	allowed, err := s.checker.ForInstitution(ctx, reviewerID, transcript.InstitutionSeq)
	if err != nil {
		return nil, fmt.Errorf("transcript service: check reviewer: %w", err)
	}
	if !allowed {
		return nil, appErrors.ErrForbidden
	}

	target := models.StatusRejected
	if approve {
		target = models.StatusVerified
	}
	if transcript.Status == target {
		return transcript, nil
	}

	history, err := appendVerification(transcript.History, models.VerificationEvent{
		ReviewerID: reviewerID,
		Approved:   approve,
		Note:       strings.TrimSpace(note),
		ReviewedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("transcript service: append history: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Transcript{}).
		Where("id = ?", transcript.ID).
		Updates(map[string]any{"status": target, "history": history}).Error; err != nil {
		return nil, fmt.Errorf("transcript service: update status: %w", err)
	}
	transcript.Status = target
	transcript.History = history

	recordAudit(s.audit, ctx, AuditEntry{
		IdentityID: &reviewerID,
		Action:     "transcript.verify",
		Resource:   fmt.Sprintf("transcript/%d", transcript.Seq),
		Result:     "success",
		Metadata:   map[string]any{"status": target},
	})

	return transcript, nil
}

func (s *TranscriptService) bySeq(ctx context.Context, seq int64) (*models.Transcript, error) {
	var transcript models.Transcript
	err := s.db.WithContext(ctx).First(&transcript, "seq = ?", seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound.WithMessage("transcript not found")
	}
	if err != nil {
		return nil, fmt.Errorf("transcript service: load transcript: %w", err)
	}
	return &transcript, nil
}
