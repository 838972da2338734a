package models

import "time"

// CiphertextEntry is the gateway-owned record backing an opaque handle.
// The payload is sealed with the gateway master key; the registry never sees
// plaintext. Entries are bound to the registry address and submitter captured
// at encryption time so proofs cannot be replayed across registries.
type CiphertextEntry struct {
	// Handle is the opaque token handed back to callers.
	Handle string `gorm:"primaryKey" json:"handle"`

	Registry  string `gorm:"not null;index" json:"registry"`
	Submitter string `gorm:"type:uuid;not null;index" json:"submitter"`

	// Payload is the AES-GCM sealed plaintext, base64 encoded.
	Payload string `gorm:"not null" json:"-"`

	// Bound reports whether a credential or transcript references the handle.
	// Unbound entries older than the staging window are pruned by maintenance.
	Bound bool `gorm:"default:false;index" json:"bound"`

	CreatedAt time.Time `gorm:"index" json:"created_at"`
}
