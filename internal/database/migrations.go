package database

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.Identity{},
		&models.Institution{},
		&models.Credential{},
		&models.Transcript{},
		&models.CiphertextEntry{},
		&models.AuditLog{},
	)
}

// BootstrapIdentity describes the deploying identity granted admin at start-up.
type BootstrapIdentity struct {
	Name       string
	SigningKey string
}

// EnsureBootstrapAdmin seeds the bootstrap admin identity. The operation is
// idempotent: an identity already registered under the signing key keeps its
// record and is promoted to admin if it lost the role.
func EnsureBootstrapAdmin(db *gorm.DB, bootstrap BootstrapIdentity) (*models.Identity, error) {
	if db == nil {
		return nil, errors.New("nil database handle")
	}

	key := strings.TrimSpace(bootstrap.SigningKey)
	if key == "" {
		return nil, errors.New("bootstrap identity requires a signing key")
	}

	name := strings.TrimSpace(bootstrap.Name)
	if name == "" {
		name = "Registry Administrator"
	}

	var identity models.Identity
	err := db.Where(&models.Identity{SigningKey: key}).
		Attrs(models.Identity{Name: name, IsAdmin: true, IsActive: true}).
		FirstOrCreate(&identity).Error
	if err != nil {
		return nil, fmt.Errorf("seed bootstrap admin: %w", err)
	}

	if !identity.IsAdmin {
		if err := db.Model(&identity).Update("is_admin", true).Error; err != nil {
			return nil, fmt.Errorf("restore bootstrap admin role: %w", err)
		}
		identity.IsAdmin = true
	}

	return &identity, nil
}
