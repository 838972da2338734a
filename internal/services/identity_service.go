package services

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/models"
	appErrors "github.com/credvault/credvault/pkg/errors"
)

// RegisterIdentityInput carries the fields needed to register an identity.
type RegisterIdentityInput struct {
	Name       string
	SigningKey string
	// DecryptKey is the optional device-bound X25519 capability key. Holders
	// without one cannot read their own ciphertext handles.
	DecryptKey string
}

// IdentityService manages registry identities and their role flags.
type IdentityService struct {
	db    *gorm.DB
	audit *AuditService
}

// NewIdentityService constructs an IdentityService.
func NewIdentityService(db *gorm.DB, audit *AuditService) (*IdentityService, error) {
	if db == nil {
		return nil, errors.New("identity service: db is required")
	}
	return &IdentityService{db: db, audit: audit}, nil
}

// Register creates a new identity. Signing keys are unique across the
// registry; re-registering one fails.
func (s *IdentityService) Register(ctx context.Context, actorID string, input RegisterIdentityInput) (*models.Identity, error) {
	ctx = ensureContext(ctx)

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, appErrors.NewInvalidArgument("name is required")
	}
	signingKey, err := normaliseKey(input.SigningKey, ed25519.PublicKeySize)
	if err != nil {
		return nil, appErrors.NewInvalidArgument("signing key must be a base64 Ed25519 public key")
	}

	identity := models.Identity{
		Name:       name,
		SigningKey: signingKey,
		IsActive:   true,
	}

	if strings.TrimSpace(input.DecryptKey) != "" {
		decryptKey, err := normaliseKey(input.DecryptKey, 32)
		if err != nil {
			return nil, appErrors.NewInvalidArgument("decrypt key must be a base64 X25519 public key")
		}
		identity.DecryptKey = decryptKey
	}

	if err := s.db.WithContext(ctx).Create(&identity).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, appErrors.NewInvalidArgument("signing key already registered")
		}
		return nil, fmt.Errorf("identity service: create identity: %w", err)
	}

	recordAudit(s.audit, ctx, AuditEntry{
		IdentityID: &actorID,
		Action:     "identity.register",
		Resource:   identity.ID,
		Result:     "success",
		Metadata:   map[string]any{"name": identity.Name},
	})

	return &identity, nil
}

// Get loads an identity by ID.
func (s *IdentityService) Get(ctx context.Context, identityID string) (*models.Identity, error) {
	ctx = ensureContext(ctx)

	var identity models.Identity
	err := s.db.WithContext(ctx).First(&identity, "id = ?", strings.TrimSpace(identityID)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound.WithMessage("identity not found")
	}
	if err != nil {
		return nil, fmt.Errorf("identity service: load identity: %w", err)
	}
	return &identity, nil
}

// GetBySigningKey loads an identity by its registered signing key. Used by
// the challenge login flow.
func (s *IdentityService) GetBySigningKey(ctx context.Context, signingKey string) (*models.Identity, error) {
	ctx = ensureContext(ctx)

	key, err := normaliseKey(signingKey, ed25519.PublicKeySize)
	if err != nil {
		return nil, appErrors.NewInvalidArgument("signing key must be a base64 Ed25519 public key")
	}

	var identity models.Identity
	dbErr := s.db.WithContext(ctx).First(&identity, "signing_key = ?", key).Error
	if errors.Is(dbErr, gorm.ErrRecordNotFound) {
		return nil, appErrors.ErrNotFound.WithMessage("identity not found")
	}
	if dbErr != nil {
		return nil, fmt.Errorf("identity service: load identity: %w", dbErr)
	}
	return &identity, nil
}

// List returns all identities ordered by creation time.
func (s *IdentityService) List(ctx context.Context) ([]models.Identity, error) {
	ctx = ensureContext(ctx)

	var identities []models.Identity
	if err := s.db.WithContext(ctx).Order("created_at ASC").Find(&identities).Error; err != nil {
		return nil, fmt.Errorf("identity service: list identities: %w", err)
	}
	return identities, nil
}

// SetAdmin grants or revokes the global admin role. Re-applying the current
// value is a no-op.
func (s *IdentityService) SetAdmin(ctx context.Context, actorID, identityID string, grant bool) (*models.Identity, error) {
	return s.setRole(ctx, actorID, identityID, "is_admin", grant, func(i *models.Identity) *bool { return &i.IsAdmin })
}

// SetUniversityAdmin grants or revokes the university admin role. Revoking it
// does not detach the identity from institutions it administers; the
// institution gate also requires the role flag, so revocation is effective
// immediately.
func (s *IdentityService) SetUniversityAdmin(ctx context.Context, actorID, identityID string, grant bool) (*models.Identity, error) {
	return s.setRole(ctx, actorID, identityID, "is_university_admin", grant, func(i *models.Identity) *bool { return &i.IsUniversityAdmin })
}

// SetActive enables or disables an identity. Inactive identities fail every
// permission check.
func (s *IdentityService) SetActive(ctx context.Context, actorID, identityID string, active bool) (*models.Identity, error) {
	return s.setRole(ctx, actorID, identityID, "is_active", active, func(i *models.Identity) *bool { return &i.IsActive })
}

func (s *IdentityService) setRole(ctx context.Context, actorID, identityID, column string, value bool, field func(*models.Identity) *bool) (*models.Identity, error) {
	ctx = ensureContext(ctx)

	identity, err := s.Get(ctx, identityID)
	if err != nil {
		return nil, err
	}

	flag := field(identity)
	if *flag == value {
		return identity, nil
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Identity{}).
		Where("id = ?", identity.ID).
		Update(column, value).Error; err != nil {
		return nil, fmt.Errorf("identity service: update %s: %w", column, err)
	}
	*flag = value

	recordAudit(s.audit, ctx, AuditEntry{
		IdentityID: &actorID,
		Action:     "identity.role_change",
		Resource:   identity.ID,
		Result:     "success",
		Metadata:   map[string]any{"field": column, "value": value},
	})

	return identity, nil
}

// SetDecryptKey registers or replaces the identity's device-bound decrypt
// capability key. Only the identity itself may bind a capability.
func (s *IdentityService) SetDecryptKey(ctx context.Context, identityID, decryptKey string) (*models.Identity, error) {
	ctx = ensureContext(ctx)

	key, err := normaliseKey(decryptKey, 32)
	if err != nil {
		return nil, appErrors.NewInvalidArgument("decrypt key must be a base64 X25519 public key")
	}

	identity, err := s.Get(ctx, identityID)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).
		Model(&models.Identity{}).
		Where("id = ?", identity.ID).
		Update("decrypt_key", key).Error; err != nil {
		return nil, fmt.Errorf("identity service: update decrypt key: %w", err)
	}
	identity.DecryptKey = key

	recordAudit(s.audit, ctx, AuditEntry{
		IdentityID: &identity.ID,
		Action:     "identity.bind_decrypt_key",
		Resource:   identity.ID,
		Result:     "success",
	})

	return identity, nil
}

// IsAdmin reports whether the identity holds the global admin role.
func (s *IdentityService) IsAdmin(ctx context.Context, identityID string) (bool, error) {
	identity, err := s.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return identity.IsActive && identity.IsAdmin, nil
}

// IsUniversityAdmin reports whether the identity holds the university admin role.
func (s *IdentityService) IsUniversityAdmin(ctx context.Context, identityID string) (bool, error) {
	identity, err := s.Get(ctx, identityID)
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return identity.IsActive && identity.IsUniversityAdmin, nil
}

// normaliseKey validates a base64 key of the expected byte length and returns
// its canonical base64 form.
func normaliseKey(value string, length int) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(value))
	if err != nil {
		return "", fmt.Errorf("decode key: %w", err)
	}
	if len(raw) != length {
		return "", fmt.Errorf("key must be %d bytes, got %d", length, len(raw))
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}
