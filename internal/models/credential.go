package models

import (
	"time"

	"gorm.io/datatypes"
)

// CredentialStatus tracks the verification lifecycle of a credential.
type CredentialStatus string

const (
	// StatusPendingVerification is the initial state of every credential.
	StatusPendingVerification CredentialStatus = "pending_verification"
	// StatusVerified means the institution's reviewer approved the record.
	StatusVerified CredentialStatus = "verified"
	// StatusRejected is not terminal; a subsequent approval moves the
	// credential to verified.
	StatusRejected CredentialStatus = "rejected"
	// StatusExpired is computed at read time when the expiry timestamp has
	// passed. It is never stored.
	StatusExpired CredentialStatus = "expired"
)

// VerificationEvent records a single explicit review action. Events are
// appended, never overwritten, so the audit history of re-verifications and
// rejections is preserved.
type VerificationEvent struct {
	ReviewerID string    `json:"reviewer_id"`
	Approved   bool      `json:"approved"`
	Note       string    `json:"note,omitempty"`
	ReviewedAt time.Time `json:"reviewed_at"`
}

// Credential is a diploma record. Public fields are stored in cleartext;
// GPA, graduation year, and degree-type code exist only as ciphertext handles
// owned by the encryption gateway. Encrypted fields are immutable after
// creation and credentials are never deleted.
type Credential struct {
	BaseModel

	// Seq is the public sequential credential identifier.
	Seq int64 `gorm:"uniqueIndex;not null" json:"seq"`

	// StudentID is the caller-supplied student identifier string.
	StudentID string `gorm:"not null" json:"student_id"`

	// InstitutionSeq and InstitutionName are captured at creation time and
	// are not live foreign keys; later institution edits do not retroactively
	// alter issued credentials.
	InstitutionSeq  int64  `gorm:"index;not null" json:"institution_seq"`
	InstitutionName string `gorm:"not null" json:"institution_name"`

	DegreeName string `gorm:"not null" json:"degree_name"`
	Major      string `json:"major"`

	// DocPointer is an external document reference such as a content hash.
	DocPointer string `json:"doc_pointer"`

	HolderID string    `gorm:"type:uuid;not null;index" json:"holder_id"`
	Holder   *Identity `gorm:"foreignKey:HolderID" json:"holder,omitempty"`

	IssuedAt  time.Time  `gorm:"not null" json:"issued_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`

	Status CredentialStatus `gorm:"not null;default:pending_verification;index" json:"status"`

	// History accumulates VerificationEvent entries in order.
	History datatypes.JSON `json:"history,omitempty"`

	// Ciphertext handles issued by the encryption gateway.
	GPAHandle        string `gorm:"not null" json:"-"`
	YearHandle       string `gorm:"not null" json:"-"`
	DegreeTypeHandle string `gorm:"not null" json:"-"`
}

// EffectiveStatus returns the status as observed at the given time, deriving
// expiry without mutating stored state.
func (c *Credential) EffectiveStatus(now time.Time) CredentialStatus {
	if c.ExpiresAt != nil && now.After(*c.ExpiresAt) {
		return StatusExpired
	}
	return c.Status
}

// CredentialPublic is the unauthenticated projection of a credential. It
// never carries GPA, graduation year, or degree-type fields: those exist only
// behind the gateway's ciphertext handles.
type CredentialPublic struct {
	Seq             int64            `json:"seq"`
	StudentID       string           `json:"student_id"`
	InstitutionSeq  int64            `json:"institution_seq"`
	InstitutionName string           `json:"institution_name"`
	DegreeName      string           `json:"degree_name"`
	Major           string           `json:"major"`
	DocPointer      string           `json:"doc_pointer"`
	HolderID        string           `json:"holder_id"`
	IssuedAt        time.Time        `json:"issued_at"`
	ExpiresAt       *time.Time       `json:"expires_at,omitempty"`
	Status          CredentialStatus `json:"status"`
	Verified        bool             `json:"is_verified"`
}

// Public projects the credential into its unauthenticated view as of now.
func (c *Credential) Public(now time.Time) CredentialPublic {
	status := c.EffectiveStatus(now)
	return CredentialPublic{
		Seq:             c.Seq,
		StudentID:       c.StudentID,
		InstitutionSeq:  c.InstitutionSeq,
		InstitutionName: c.InstitutionName,
		DegreeName:      c.DegreeName,
		Major:           c.Major,
		DocPointer:      c.DocPointer,
		HolderID:        c.HolderID,
		IssuedAt:        c.IssuedAt,
		ExpiresAt:       c.ExpiresAt,
		Status:          status,
		Verified:        status == StatusVerified,
	}
}

// EncryptedHandles is the role-gated projection exposing ciphertext handles.
type EncryptedHandles struct {
	CredentialSeq int64  `json:"credential_seq"`
	GPA           string `json:"gpa_handle"`
	Year          string `json:"year_handle"`
	DegreeType    string `json:"degree_type_handle"`
}

// Handles returns the gateway handles for this credential.
func (c *Credential) Handles() EncryptedHandles {
	return EncryptedHandles{
		CredentialSeq: c.Seq,
		GPA:           c.GPAHandle,
		Year:          c.YearHandle,
		DegreeType:    c.DegreeTypeHandle,
	}
}
