package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// AuditLog records every mutating registry operation and its outcome.
type AuditLog struct {
	ID         string    `gorm:"primaryKey;type:uuid" json:"id"`
	IdentityID *string   `gorm:"type:uuid;index" json:"identity_id"`
	Identity   *Identity `gorm:"foreignKey:IdentityID" json:"identity,omitempty"`
	Action     string    `gorm:"not null;index" json:"action"`
	Resource   string    `gorm:"index" json:"resource"`
	Result     string    `gorm:"not null" json:"result"`
	IPAddress  string    `json:"ip_address"`
	Metadata   string    `gorm:"type:json" json:"metadata"`
	CreatedAt  time.Time `gorm:"index" json:"created_at"`
}

func (a *AuditLog) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
