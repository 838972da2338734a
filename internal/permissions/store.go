package permissions

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/models"
)

// GormStore is the database-backed Store implementation.
type GormStore struct {
	db *gorm.DB
}

// NewGormStore constructs a Store reading identities and institutions from gorm.
func NewGormStore(db *gorm.DB) (*GormStore, error) {
	if db == nil {
		return nil, errors.New("permission store: db is required")
	}
	return &GormStore{db: db}, nil
}

// Identity loads a registered identity by ID.
func (s *GormStore) Identity(ctx context.Context, identityID string) (*models.Identity, error) {
	var identity models.Identity
	err := s.db.WithContext(ctx).First(&identity, "id = ?", identityID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrIdentityNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("permission store: load identity: %w", err)
	}
	return &identity, nil
}

// InstitutionAdmin returns the administrator identity ID for the institution.
func (s *GormStore) InstitutionAdmin(ctx context.Context, institutionSeq int64) (string, error) {
	var institution models.Institution
	err := s.db.WithContext(ctx).First(&institution, "seq = ?", institutionSeq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("permission store: institution %d not found", institutionSeq)
	}
	if err != nil {
		return "", fmt.Errorf("permission store: load institution: %w", err)
	}
	return institution.AdminID, nil
}
