package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/models"
	appErrors "github.com/credvault/credvault/pkg/errors"
)

// HandleGateway is the slice of the encryption gateway the credential
// services need: proof verification at creation and pinning handles to the
// records that reference them. Bind must fail when any handle is not staged
// anymore, so issuance never commits against missing ciphertext.
type HandleGateway interface {
	VerifyProof(submitterID string, handles []string, proof string) bool
	Bind(ctx context.Context, handles []string) error
}

// CredentialHandlesInput names the three ciphertext handles of a diploma.
type CredentialHandlesInput struct {
	GPA        string
	Year       string
	DegreeType string
}

func (h CredentialHandlesInput) list() []string {
	return []string{h.GPA, h.Year, h.DegreeType}
}

// CreateCredentialInput carries the fields needed to issue a diploma record.
type CreateCredentialInput struct {
	StudentID      string
	InstitutionSeq int64
	DegreeName     string
	Major          string
	DocPointer     string
	HolderID       string
	IssuedAt       time.Time
	ExpiresAt      *time.Time
	Handles        CredentialHandlesInput
	Proof          string
}

// CredentialService issues and reviews diploma records.
type CredentialService struct {
	db      *gorm.DB
	checker AccessChecker
	gateway HandleGateway
	audit   *AuditService
	now     func() time.Time
}

// NewCredentialService constructs a CredentialService.
func NewCredentialService(db *gorm.DB, checker AccessChecker, gateway HandleGateway, audit *AuditService) (*CredentialService, error) {
	if db == nil {
		return nil, errors.New("credential service: db is required")
	}
	if checker == nil {
		return nil, errors.New("credential service: access checker is required")
	}
	if gateway == nil {
		return nil, errors.New("credential service: gateway is required")
	}
	return &CredentialService{db: db, checker: checker, gateway: gateway, audit: audit, now: time.Now}, nil
}

// WithClock overrides the service clock, primarily for expiry tests.
func (s *CredentialService) WithClock(now func() time.Time) *CredentialService {
	if now != nil {
		s.now = now
	}
	return s
}

// Create issues a credential under an institution. The issuer must be a
// global admin or that institution's university admin, and the gateway proof
// must cover exactly the submitted handles.
func (s *CredentialService) Create(ctx context.Context, issuerID string, input CreateCredentialInput) (*models.Credential, error) {
	ctx = ensureContext(ctx)

	if strings.TrimSpace(input.StudentID) == "" {
		return nil, appErrors.NewInvalidArgument("student identifier is required")
	}
	if strings.TrimSpace(input.DegreeName) == "" {
		return nil, appErrors.NewInvalidArgument("degree name is required")
	}
	if strings.TrimSpace(input.HolderID) == "" {
		return nil, appErrors.NewInvalidArgument("holder identity is required")
	}
	for _, handle := range input.Handles.list() {
		if strings.TrimSpace(handle) == "" {
			return nil, appErrors.NewInvalidArgument("all three ciphertext handles are required")
		}
	}

	issuedAt := input.IssuedAt
	if issuedAt.IsZero() {
		issuedAt = s.now()
	}
	if input.ExpiresAt != nil && input.ExpiresAt.Before(issuedAt) {
		return nil, appErrors.NewInvalidArgument("expiry must not precede issue time")
	}

	institution, err := s.institutionBySeq(ctx, input.InstitutionSeq)
	if err != nil {
		return nil, err
	}
	if !institution.Active {
		return nil, appErrors.ErrForbidden.WithMessage("institution is inactive")
	}

	allowed, err := s.checker.ForInstitution(ctx, issuerID, institution.Seq)
	if err != nil {
		return nil, fmt.Errorf("credential service: check issuer: %w", err)
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
		return nil, fmt.Errorf("credential service: load holder: %w", err)
	}

	if !s.gateway.VerifyProof(issuerID, input.Handles.list(), input.Proof) {
		recordAudit(s.audit, ctx, AuditEntry{
			IdentityID: &issuerID,
			Action:     "credential.create",
			Result:     "denied",
			Metadata:   map[string]any{"reason": "invalid proof"},
		})
		return nil, appErrors.ErrInvalidProof
	}

	// Binding before the insert pins the ciphertext entries so maintenance
	// cannot prune them underneath a committed credential. A handle that was
	// already pruned fails here and nothing is stored.
	if err := s.gateway.Bind(ctx, input.Handles.list()); err != nil {
		if errors.Is(err, appErrors.ErrInvalidProof) {
			recordAudit(s.audit, ctx, AuditEntry{
				IdentityID: &issuerID,
				Action:     "credential.create",
				Result:     "denied",
				Metadata:   map[string]any{"reason": "handles no longer staged"},
			})
			return nil, err
		}
		return nil, fmt.Errorf("credential service: bind handles: %w", err)
	}

	var credential models.Credential
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		seq, err := nextSeq(tx, &models.Credential{})
		if err != nil {
			return err
		}

		credential = models.Credential{
			Seq:              seq,
			StudentID:        strings.TrimSpace(input.StudentID),
			InstitutionSeq:   institution.Seq,
			InstitutionName:  institution.Name,
			DegreeName:       strings.TrimSpace(input.DegreeName),
			Major:            strings.TrimSpace(input.Major),
			DocPointer:       strings.TrimSpace(input.DocPointer),
			HolderID:         holder.ID,
			IssuedAt:         issuedAt,
			ExpiresAt:        input.ExpiresAt,
			Status:           models.StatusPendingVerification,
			GPAHandle:        input.Handles.GPA,
			YearHandle:       input.Handles.Year,
			DegreeTypeHandle: input.Handles.DegreeType,
		}
		return tx.Create(&credential).Error
	})
	if err != nil {
		if conflict := seqConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("credential service: create credential: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		IdentityID: &issuerID,
		Action:     "credential.create",
		Resource:   fmt.Sprintf("credential/%d", credential.Seq),
		Result:     "success",
		Metadata:   map[string]any{"institution_seq": institution.Seq, "holder_id": holder.ID},
	})

	return &credential, nil
}

// GetPublic returns the unauthenticated view of a credential. Expiry is
// derived at read time.
func (s *CredentialService) GetPublic(ctx context.Context, seq int64) (models.CredentialPublic, error) {
	credential, err := s.bySeq(ensureContext(ctx), seq)
	if err != nil {
		return models.CredentialPublic{}, err
	}
	return credential.Public(s.now()), nil
}

// ListByHolder returns the public views of all credentials held by an
// identity, ordered by sequence.
func (s *CredentialService) ListByHolder(ctx context.Context, holderID string) ([]models.CredentialPublic, error) {
	ctx = ensureContext(ctx)

	var credentials []models.Credential
	if err := s.db.WithContext(ctx).
		Where("holder_id = ?", strings.TrimSpace(holderID)).
		Order("seq ASC").
		Find(&credentials).Error; err != nil {
		return nil, fmt.Errorf("credential service: list by holder: %w", err)
	}

	now := s.now()
	out := make([]models.CredentialPublic, 0, len(credentials))
	for i := range credentials {
		out = append(out, credentials[i].Public(now))
	}
	return out, nil
}

// GetHandles returns the ciphertext handles of a credential to entitled
// viewers only.
func (s *CredentialService) GetHandles(ctx context.Context, viewerID string, seq int64) (models.EncryptedHandles, error) {
	ctx = ensureContext(ctx)

	credential, err := s.bySeq(ctx, seq)
	if err != nil {
		return models.EncryptedHandles{}, err
	}

	allowed, err := s.checker.ForHandles(ctx, viewerID, credential.HolderID, credential.InstitutionSeq)
	if err != nil {
		return models.EncryptedHandles{}, fmt.Errorf("credential service: check viewer: %w", err)
	}
	if !allowed {
		recordAudit(s.audit, ctx, AuditEntry{
			IdentityID: &viewerID,
			Action:     "credential.read_encrypted",
			Resource:   fmt.Sprintf("credential/%d", credential.Seq),
			Result:     "denied",
		})
		return models.EncryptedHandles{}, appErrors.ErrForbidden
	}

	return credential.Handles(), nil
}

// Verify applies an explicit review decision. Approvals move the credential
// to verified, including from rejected; denials move it to rejected.
// Re-applying the current status is a no-op that appends no history.
func (s *CredentialService) Verify(ctx context.Context, reviewerID string, seq int64, approve bool, note string) (*models.Credential, error) {
	ctx = ensureContext(ctx)

	credential, err := s.bySeq(ctx, seq)
	if err != nil {
		return nil, err
	}

	allowed, err := s.checker.ForInstitution(ctx, reviewerID, credential.InstitutionSeq)
	if err != nil {
		return nil, fmt.Errorf("credential service: check reviewer: %w", err)
	}
	if !allowed {
		recordAudit(s.audit, ctx, AuditEntry{
			IdentityID: &reviewerID,
			Action:     "credential.verify",
			Resource:   fmt.Sprintf("credential/%d", credential.Seq),
			Result:     "denied",
		})
		return nil, appErrors.ErrForbidden
	}

	target := models.StatusRejected
	if approve {
		target = models.StatusVerified
	}
	if credential.Status == target {
		return credential, nil
	}

	history, err := appendVerification(credential.History, models.VerificationEvent{
		ReviewerID: reviewerID,
		Approved:   approve,
		Note:       strings.TrimSpace(note),
		ReviewedAt: s.now(),
	})
	if err != nil {
		return nil, fmt.Errorf("credential service: append history: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Credential{}).
		Where("id = ?", credential.ID).
		Updates(map[string]any{"status": target, "history": history}).Error; err != nil {
		return nil, fmt.Errorf("credential service: update status: %w", err)
	}
	credential.Status = target
	credential.History = history

	recordAudit(s.audit, ctx, AuditEntry{
		IdentityID: &reviewerID,
		Action:     "credential.verify",
		Resource:   fmt.Sprintf("credential/%d", credential.Seq),
		Result:     "success",
		Metadata:   map[string]any{"status": target},
	})

	return credential, nil
}

func (s *CredentialService) bySeq(ctx context.Context, seq int64) (*models.Credential, error) {
	var credential models.Credential
	err := s.db.WithContext(ctx).First(&credential, "seq = ?", seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound.WithMessage("credential not found")
	}
	if err != nil {
		return nil, fmt.Errorf("credential service: load credential: %w", err)
	}
	return &credential, nil
}

func (s *CredentialService) institutionBySeq(ctx context.Context, seq int64) (*models.Institution, error) {
	var institution models.Institution
	err := s.db.WithContext(ctx).First(&institution, "seq = ?", seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.NewInvalidArgument("institution not found")
	}
	if err != nil {
		return nil, fmt.Errorf("credential service: load institution: %w", err)
	}
	return &institution, nil
}

// appendVerification decodes the stored history, appends the event, and
// re-encodes it.
func appendVerification(stored datatypes.JSON, event models.VerificationEvent) (datatypes.JSON, error) {
	var events []models.VerificationEvent
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &events); err != nil {
			return nil, fmt.Errorf("decode history: %w", err)
		}
	}
	events = append(events, event)

	encoded, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("encode history: %w", err)
	}
	return datatypes.JSON(encoded), nil
}
