package services

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/models"
)

// EntitlementService resolves a ciphertext handle back to the record that
// references it and evaluates whether an identity may read that record. The
// gateway consults it on every decrypt, so revocations between handle read
// and decrypt are honoured.
type EntitlementService struct {
	db      *gorm.DB
	checker AccessChecker
}

// NewEntitlementService constructs an EntitlementService.
func NewEntitlementService(db *gorm.DB, checker AccessChecker) (*EntitlementService, error) {
	if db == nil {
		return nil, errors.New("entitlement service: db is required")
	}
	if checker == nil {
		return nil, errors.New("entitlement service: access checker is required")
	}
	return &EntitlementService{db: db, checker: checker}, nil
}

// ForHandle reports whether the identity may decrypt the record owning the
// handle. Handles not referenced by any stored record grant nothing.
func (s *EntitlementService) ForHandle(ctx context.Context, identityID, handle string) (bool, error) {
	ctx = ensureContext(ctx)

	var credential models.Credential
	err := s.db.WithContext(ctx).
		Where("gpa_handle = ? OR year_handle = ? OR degree_type_handle = ?", handle, handle, handle).
		First(&credential).Error
	if err == nil {
		return s.checker.ForHandles(ctx, identityID, credential.HolderID, credential.InstitutionSeq)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("entitlement service: resolve credential handle: %w", err)
	}

	var transcript models.Transcript
	err = s.db.WithContext(ctx).
		Where("student_no_handle = ? OR total_credits_handle = ? OR completed_credits_handle = ? OR gpa_handle = ?",
			handle, handle, handle, handle).
		First(&transcript).Error
	if err == nil {
		return s.checker.ForHandles(ctx, identityID, transcript.HolderID, transcript.InstitutionSeq)
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("entitlement service: resolve transcript handle: %w", err)
	}

	return false, nil
}
