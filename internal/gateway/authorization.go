package gateway

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"
)

// HandleRef names one ciphertext handle within a registry.
type HandleRef struct {
	Handle   string `json:"handle" validate:"required"`
	Registry string `json:"registry" validate:"required"`
}

// Authorization is a time-boxed, signed decrypt request. The reader generates
// an ephemeral X25519 key pair locally, names the handles it wants, and signs
// the canonical payload with its registry signing key. Authorizations are
// stateless: nothing is stored between requests beyond the validity window.
type Authorization struct {
	// IdentityID names the registry identity claiming entitlement.
	IdentityID string `json:"identity_id" validate:"required"`

	// PublicKey is the reader's base64 ephemeral X25519 public key; decrypt
	// results are sealed to it so the private key never leaves the client.
	PublicKey string `json:"public_key" validate:"required,base64key"`

	Handles []HandleRef `json:"handles" validate:"required,min=1,dive"`

	IssuedAt time.Time `json:"issued_at" validate:"required"`

	// TTL bounds the validity window. On the wire it is either a duration
	// string such as "10m" or an integer nanosecond count.
	TTL time.Duration `json:"ttl" validate:"required"`

	// Signature is the base64 Ed25519 signature over SigningPayload.
	Signature string `json:"signature" validate:"required"`
}

const signingDomain = "credvault-decrypt-v1"

// UnmarshalJSON accepts the validity window either as a duration string
// ("10m", "1h30m") or as raw nanoseconds, so non-Go clients are not tied to
// Go's integer encoding of time.Duration.
func (a *Authorization) UnmarshalJSON(data []byte) error {
	type plain Authorization
	aux := struct {
		TTL json.RawMessage `json:"ttl"`
		*plain
	}{plain: (*plain)(a)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if len(aux.TTL) == 0 {
		return nil
	}

	var text string
	if err := json.Unmarshal(aux.TTL, &text); err == nil {
		ttl, err := time.ParseDuration(text)
		if err != nil {
			return fmt.Errorf("authorization: invalid ttl %q: %w", text, err)
		}
		a.TTL = ttl
		return nil
	}

	var nanos int64
	if err := json.Unmarshal(aux.TTL, &nanos); err != nil {
		return fmt.Errorf("authorization: ttl must be a duration string or nanoseconds")
	}
	a.TTL = time.Duration(nanos)
	return nil
}

// SigningPayload returns the canonical byte string covered by the signature.
// Handles are sorted so independently constructed requests agree on the
// payload regardless of ordering.
func (a *Authorization) SigningPayload() []byte {
	refs := make([]string, 0, len(a.Handles))
	for _, ref := range a.Handles {
		refs = append(refs, ref.Handle+"@"+ref.Registry)
	}
	sort.Strings(refs)

	parts := []string{
		signingDomain,
		a.IdentityID,
		a.PublicKey,
		a.IssuedAt.UTC().Format(time.RFC3339),
		a.TTL.String(),
		strings.Join(refs, ","),
	}
	return []byte(strings.Join(parts, "|"))
}

// Sign computes and attaches the Ed25519 signature.
func (a *Authorization) Sign(priv ed25519.PrivateKey) {
	a.Signature = base64.StdEncoding.EncodeToString(ed25519.Sign(priv, a.SigningPayload()))
}

// VerifySignature checks the attached signature against the identity's
// registered signing key.
func (a *Authorization) VerifySignature(signingKey string) error {
	pub, err := base64.StdEncoding.DecodeString(signingKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("authorization: malformed signing key")
	}

	sig, err := base64.StdEncoding.DecodeString(a.Signature)
	if err != nil {
		return fmt.Errorf("authorization: malformed signature")
	}

	if !ed25519.Verify(ed25519.PublicKey(pub), a.SigningPayload(), sig) {
		return fmt.Errorf("authorization: signature mismatch")
	}
	return nil
}

// ExpiresAt returns the end of the validity window.
func (a *Authorization) ExpiresAt() time.Time {
	return a.IssuedAt.Add(a.TTL)
}

// Expired reports whether the validity window has passed at the given time.
func (a *Authorization) Expired(now time.Time) bool {
	return now.After(a.ExpiresAt())
}
