package auth

import (
	"crypto/ed25519"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/credvault/credvault/pkg/crypto"
)

// DefaultChallengeTTL bounds how long an issued login challenge stays valid.
const DefaultChallengeTTL = 5 * time.Minute

const challengeNonceLength = 24

// Challenge is a server-issued login nonce the client must sign with its
// registry signing key. Challenges are self-authenticating (HMAC over the
// encoded payload), so no server-side state is kept between issue and login.
type Challenge struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type challengePayload struct {
	SigningKey string    `json:"signing_key"`
	Nonce      string    `json:"nonce"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// ChallengeService issues and verifies signed login challenges.
type ChallengeService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// ChallengeConfig bundles ChallengeService settings.
type ChallengeConfig struct {
	Secret string
	TTL    time.Duration
	Clock  func() time.Time
}

// NewChallengeService constructs a ChallengeService.
func NewChallengeService(cfg ChallengeConfig) (*ChallengeService, error) {
	if cfg.Secret == "" {
		return nil, errors.New("challenge: secret must be provided")
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	now := time.Now
	if cfg.Clock != nil {
		now = cfg.Clock
	}

	return &ChallengeService{secret: []byte(cfg.Secret), ttl: ttl, now: now}, nil
}

// Issue creates a challenge bound to the given signing key.
func (s *ChallengeService) Issue(signingKey string) (Challenge, error) {
	signingKey = strings.TrimSpace(signingKey)
	if signingKey == "" {
		return Challenge{}, errors.New("challenge: signing key is required")
	}

	nonce, err := crypto.GenerateToken(challengeNonceLength)
	if err != nil {
		return Challenge{}, fmt.Errorf("challenge: generate nonce: %w", err)
	}

	payload := challengePayload{
		SigningKey: signingKey,
		Nonce:      nonce,
		ExpiresAt:  s.now().Add(s.ttl).UTC(),
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return Challenge{}, fmt.Errorf("challenge: encode payload: %w", err)
	}

	body := base64.RawURLEncoding.EncodeToString(encoded)
	mac := crypto.ComputeHMAC([]byte(body), s.secret)

	return Challenge{
		Token:     body + "." + mac,
		ExpiresAt: payload.ExpiresAt,
	}, nil
}

// Verify checks that the token was issued by this service for the signing
// key, has not expired, and that signature is a valid Ed25519 signature over
// the raw token bytes by that key.
func (s *ChallengeService) Verify(token, signature, signingKey string) error {
	body, mac, ok := strings.Cut(token, ".")
	if !ok {
		return errors.New("challenge: malformed token")
	}
	if !crypto.VerifyHMAC([]byte(body), mac, s.secret) {
		return errors.New("challenge: token authentication failed")
	}

	encoded, err := base64.RawURLEncoding.DecodeString(body)
	if err != nil {
		return fmt.Errorf("challenge: decode payload: %w", err)
	}
	var payload challengePayload
	if err := json.Unmarshal(encoded, &payload); err != nil {
		return fmt.Errorf("challenge: decode payload: %w", err)
	}

	if payload.SigningKey != strings.TrimSpace(signingKey) {
		return errors.New("challenge: issued for a different signing key")
	}
	if s.now().After(payload.ExpiresAt) {
		return errors.New("challenge: expired")
	}

	pub, err := base64.StdEncoding.DecodeString(signingKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return errors.New("challenge: malformed signing key")
	}
	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return errors.New("challenge: malformed signature")
	}
	if !ed25519.Verify(ed25519.PublicKey(pub), []byte(token), sig) {
		return errors.New("challenge: signature mismatch")
	}

	return nil
}
