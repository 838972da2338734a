package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/models"
	appErrors "github.com/credvault/credvault/pkg/errors"
)

// RegisterInstitutionInput carries the fields needed to register an
// institution. The admin identity becomes that institution's university
// admin.
type RegisterInstitutionInput struct {
	Name          string
	Country       string
	Accreditation string
	AdminID       string
}

// InstitutionStatusInput toggles the two mutable institution flags. Nil
// fields are left unchanged.
type InstitutionStatusInput struct {
	Verified *bool
	Active   *bool
}

// InstitutionService manages institution registration and status.
type InstitutionService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewInstitutionService constructs an InstitutionService.
func NewInstitutionService(db *gorm.DB, audit *AuditService) (*InstitutionService, error) {
	if db == nil {
		return nil, errors.New("institution service: db is required")
	}
	return &InstitutionService{db: db, audit: audit}, nil
}

// Register creates an institution, assigns its public sequence number, and
// grants the admin identity the university admin role.
func (s *InstitutionService) Register(ctx context.Context, actorID string, input RegisterInstitutionInput) (*models.Institution, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErrors.NewInvalidArgument("institution name is required")
	}
	adminID := strings.TrimSpace(input.AdminID)
	if adminID == "" {
		return nil, appErrors.NewInvalidArgument("admin identity is required")
	}

	var institution models.Institution
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var admin models.Identity
		err := tx.First(&admin, "id = ?", adminID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return appErrors.NewInvalidArgument("admin identity not found")
		}
		if err != nil {
			return fmt.Errorf("load admin identity: %w", err)
		}
		if !admin.IsActive {
			return appErrors.NewInvalidArgument("admin identity is inactive")
		}

		seq, err := nextSeq(tx, &models.Institution{})
		if err != nil {
			return err
		}

		institution = models.Institution{
			Seq:           seq,
			Name:          name,
			Country:       strings.TrimSpace(input.Country),
			Accreditation: strings.TrimSpace(input.Accreditation),
			AdminID:       admin.ID,
			Active:        true,
		}
		if err := tx.Create(&institution).Error; err != nil {
			return fmt.Errorf("create institution: %w", err)
		}

		if !admin.IsUniversityAdmin {
			if err := tx.Model(&models.Identity{}).
				Where("id = ?", admin.ID).
				Update("is_university_admin", true).Error; err != nil {
				return fmt.Errorf("grant university admin: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		var appErr *appErrors.AppError
		if errors.As(err, &appErr) {
			return nil, appErr
		}
		if conflict := seqConflict(err); conflict != nil {
			return nil, conflict
		}
		return nil, fmt.Errorf("institution service: register: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		IdentityID: &actorID,
		Action:     "institution.register",
		Resource:   fmt.Sprintf("institution/%d", institution.Seq),
		Result:     "success",
		Metadata:   map[string]any{"name": institution.Name, "admin_id": institution.AdminID},
	})

	return &institution, nil
}

// SetStatus applies verified/active toggles. Institutions are never deleted;
// deactivation is the only way to retire one.
func (s *InstitutionService) SetStatus(ctx context.Context, actorID string, seq int64, input InstitutionStatusInput) (*models.Institution, error) {
	ctx = ensureContext(ctx)

	institution, err := s.bySeq(ctx, seq)
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if input.Verified != nil && *input.Verified != institution.Verified {
		updates["verified"] = *input.Verified
		institution.Verified = *input.Verified
	}
	if input.Active != nil && *input.Active != institution.Active {
		updates["active"] = *input.Active
		institution.Active = *input.Active
	}
	if len(updates) == 0 {
		return institution, nil
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Institution{}).
		Where("id = ?", institution.ID).
		Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("institution service: update status: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		IdentityID: &actorID,
		Action:     "institution.status_change",
		Resource:   fmt.Sprintf("institution/%d", institution.Seq),
		Result:     "success",
		Metadata:   map[string]any{"updates": updates},
	})

	return institution, nil
}

// Get returns the public view of an institution by sequence number.
func (s *InstitutionService) Get(ctx context.Context, seq int64) (models.InstitutionPublic, error) {
	institution, err := s.bySeq(ensureContext(ctx), seq)
	if err != nil {
		return models.InstitutionPublic{}, err
	}
	return institution.Public(), nil
}

// List returns the public view of all institutions ordered by sequence.
func (s *InstitutionService) List(ctx context.Context) ([]models.InstitutionPublic, error) {
	ctx = ensureContext(ctx)

	var institutions []models.Institution
	if err := s.db.WithContext(ctx).Order("seq ASC").Find(&institutions).Error; err != nil {
		return nil, fmt.Errorf("institution service: list: %w", err)
	}

	out := make([]models.InstitutionPublic, 0, len(institutions))
	for i := range institutions {
		out = append(out, institutions[i].Public())
	}
	return out, nil
}

func (s *InstitutionService) bySeq(ctx context.Context, seq int64) (*models.Institution, error) {
	var institution models.Institution
	err := s.db.WithContext(ctx).First(&institution, "seq = ?", seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound.WithMessage("institution not found")
	}
	if err != nil {
		return nil, fmt.Errorf("institution service: load institution: %w", err)
	}
	return &institution, nil
}
