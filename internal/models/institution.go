package models

import "time"

// Institution is an accredited issuing organisation. Institutions are never
// deleted; verified/active are the only mutable fields after registration.
type Institution struct {
	BaseModel

	// Seq is the public sequential identifier, assigned once at registration.
	Seq int64 `gorm:"uniqueIndex;not null" json:"seq"`

	Name          string `gorm:"not null;index" json:"name"`
	Country       string `json:"country"`
	Accreditation string `json:"accreditation"`

	// AdminID is the identity permitted to manage credentials issued under
	// this institution (besides global admins). Set at registration.
	AdminID string    `gorm:"type:uuid;not null;index" json:"admin_id"`
	Admin   *Identity `gorm:"foreignKey:AdminID" json:"admin,omitempty"`

	Verified bool `gorm:"default:false" json:"verified"`
	Active   bool `gorm:"default:true" json:"active"`
}

// InstitutionPublic is the unauthenticated view of an institution.
type InstitutionPublic struct {
	Seq           int64     `json:"seq"`
	Name          string    `json:"name"`
	Country       string    `json:"country"`
	Accreditation string    `json:"accreditation"`
	Verified      bool      `json:"verified"`
	Active        bool      `json:"active"`
	RegisteredAt  time.Time `json:"registered_at"`
}

// Public projects the institution into its unauthenticated view.
func (i *Institution) Public() InstitutionPublic {
	return InstitutionPublic{
		Seq:           i.Seq,
		Name:          i.Name,
		Country:       i.Country,
		Accreditation: i.Accreditation,
		Verified:      i.Verified,
		Active:        i.Active,
		RegisteredAt:  i.CreatedAt,
	}
}
