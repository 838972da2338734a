package models

import (
	"time"

	"gorm.io/datatypes"
)

// Transcript is an academic transcript record issued alongside diplomas.
// Student number, credit totals, and GPA are stored only as ciphertext
// handles; the lifecycle mirrors Credential.
type Transcript struct {
	BaseModel

	Seq int64 `gorm:"uniqueIndex;not null" json:"seq"`

	InstitutionSeq  int64  `gorm:"index;not null" json:"institution_seq"`
	InstitutionName string `gorm:"not null" json:"institution_name"`

	DocPointer string `json:"doc_pointer"`

	HolderID string    `gorm:"type:uuid;not null;index" json:"holder_id"`
	Holder   *Identity `gorm:"foreignKey:HolderID" json:"holder,omitempty"`

	IssuedAt time.Time `gorm:"not null" json:"issued_at"`

	Status  CredentialStatus `gorm:"not null;default:pending_verification;index" json:"status"`
	History datatypes.JSON   `json:"history,omitempty"`

	StudentNoHandle        string `gorm:"not null" json:"-"`
	TotalCreditsHandle     string `gorm:"not null" json:"-"`
	CompletedCreditsHandle string `gorm:"not null" json:"-"`
	GPAHandle              string `gorm:"not null" json:"-"`
}

// TranscriptPublic is the unauthenticated projection of a transcript.
type TranscriptPublic struct {
	Seq             int64            `json:"seq"`
	InstitutionSeq  int64            `json:"institution_seq"`
	InstitutionName string           `json:"institution_name"`
	DocPointer      string           `json:"doc_pointer"`
	HolderID        string           `json:"holder_id"`
	IssuedAt        time.Time        `json:"issued_at"`
	Status          CredentialStatus `json:"status"`
	Verified        bool             `json:"is_verified"`
}

// Public projects the transcript into its unauthenticated view.
func (tr *Transcript) Public() TranscriptPublic {
	return TranscriptPublic{
		Seq:             tr.Seq,
		InstitutionSeq:  tr.InstitutionSeq,
		InstitutionName: tr.InstitutionName,
		DocPointer:      tr.DocPointer,
		HolderID:        tr.HolderID,
		IssuedAt:        tr.IssuedAt,
		Status:          tr.Status,
		Verified:        tr.Status == StatusVerified,
	}
}

// TranscriptHandles is the role-gated projection exposing ciphertext handles.
type TranscriptHandles struct {
	TranscriptSeq    int64  `json:"transcript_seq"`
	StudentNo        string `json:"student_no_handle"`
	TotalCredits     string `json:"total_credits_handle"`
	CompletedCredits string `json:"completed_credits_handle"`
	GPA              string `json:"gpa_handle"`
}

// Handles returns the gateway handles for this transcript.
func (tr *Transcript) Handles() TranscriptHandles {
	return TranscriptHandles{
		TranscriptSeq:    tr.Seq,
		StudentNo:        tr.StudentNoHandle,
		TotalCredits:     tr.TotalCreditsHandle,
		CompletedCredits: tr.CompletedCreditsHandle,
		GPA:              tr.GPAHandle,
	}
}
