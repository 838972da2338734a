package models

// Identity is a registry participant: an administrator, a university admin,
// a credential holder, or any combination. Authentication is key-based; the
// signing key authenticates API calls and decrypt authorizations, while the
// optional decrypt key is the device-bound capability that lets a holder
// request decryption of their own records.
type Identity struct {
	BaseModel

	Name string `gorm:"not null" json:"name"`

	// SigningKey is the base64 Ed25519 public key this identity signs with.
	SigningKey string `gorm:"uniqueIndex;not null" json:"signing_key"`

	// DecryptKey is the base64 X25519 public key registered as a decryption
	// capability. Empty means the identity holds no holder-decrypt capability.
	DecryptKey string `json:"decrypt_key,omitempty"`

	IsAdmin           bool `gorm:"default:false;index" json:"is_admin"`
	IsUniversityAdmin bool `gorm:"default:false;index" json:"is_university_admin"`
	IsActive          bool `gorm:"default:true" json:"is_active"`
}

// HasDecryptCapability reports whether a device-bound decrypt key is registered.
func (i *Identity) HasDecryptCapability() bool {
	return i != nil && i.DecryptKey != ""
}
