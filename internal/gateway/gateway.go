package gateway

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/nacl/box"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/models"
	"github.com/credvault/credvault/internal/permissions"
	"github.com/credvault/credvault/pkg/crypto"
	appErrors "github.com/credvault/credvault/pkg/errors"
)

const (
	// DefaultMaxTTL bounds the validity window of decrypt authorizations.
	DefaultMaxTTL = time.Hour
	// DefaultClockSkew tolerates minor clock drift on issued_at timestamps.
	DefaultClockSkew = 2 * time.Minute

	handleByteLength = 32
)

// EntitlementChecker re-evaluates, at decrypt time, whether an identity may
// read the record a handle belongs to. Entitlement is never cached from
// creation time: roles revoked in between deny the decrypt.
type EntitlementChecker interface {
	ForHandle(ctx context.Context, identityID, handle string) (bool, error)
}

// Config carries the gateway settings.
type Config struct {
	// Registry is the registry address ciphertext handles are bound to.
	Registry string
	// MasterKey seeds the Argon2id derivation of the sealing and proof keys.
	MasterKey []byte
	// MaxTTL caps authorization validity windows; zero means DefaultMaxTTL.
	MaxTTL time.Duration
	// ClockSkew tolerates drift on issued_at; zero means DefaultClockSkew.
	ClockSkew time.Duration
}

// EncryptedInput is the result of an encrypt call: one opaque handle per
// value plus a single aggregate proof binding them to the submitter and
// registry.
type EncryptedInput struct {
	Handles []string `json:"handles"`
	Proof   string   `json:"proof"`
}

// SealedValue is a plaintext sealed to the reader's ephemeral key with NaCl box.
type SealedValue struct {
	Nonce  string `json:"nonce"`
	Sealed string `json:"sealed"`
}

// DecryptResult carries plaintexts keyed by handle, each sealed to the
// requester's ephemeral public key.
type DecryptResult struct {
	GatewayKey string                 `json:"gateway_key"`
	Values     map[string]SealedValue `json:"values"`
}

// Gateway is the local stand-in for the external encryption capability:
// encrypt turns values into opaque handles plus a proof, decrypt releases
// plaintext only under a valid, entitled, unexpired authorization.
type Gateway struct {
	db           *gorm.DB
	crypto       *Crypto
	registry     string
	maxTTL       time.Duration
	skew         time.Duration
	identities   permissions.Store
	entitlements EntitlementChecker
	boxPub       *[32]byte
	boxPriv      *[32]byte
	now          func() time.Time
}

// Option customises the Gateway.
type Option func(*Gateway)

// WithClock overrides the gateway clock, primarily for tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) {
		if now != nil {
			g.now = now
		}
	}
}

// New constructs a Gateway bound to the given registry address.
func New(db *gorm.DB, identities permissions.Store, entitlements EntitlementChecker, cfg Config, opts ...Option) (*Gateway, error) {
	if db == nil {
		return nil, errors.New("gateway: db is required")
	}
	if identities == nil {
		return nil, errors.New("gateway: identity store is required")
	}
	if entitlements == nil {
		return nil, errors.New("gateway: entitlement checker is required")
	}
	if strings.TrimSpace(cfg.Registry) == "" {
		return nil, errors.New("gateway: registry address is required")
	}

	gwCrypto, err := NewCrypto(cfg.MasterKey)
	if err != nil {
		return nil, err
	}

	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("gateway: generate box key pair: %w", err)
	}

	maxTTL := cfg.MaxTTL
	if maxTTL <= 0 {
		maxTTL = DefaultMaxTTL
	}
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = DefaultClockSkew
	}

	g := &Gateway{
		db:           db,
		crypto:       gwCrypto,
		registry:     strings.TrimSpace(cfg.Registry),
		maxTTL:       maxTTL,
		skew:         skew,
		identities:   identities,
		entitlements: entitlements,
		boxPub:       pub,
		boxPriv:      priv,
		now:          time.Now,
	}

	for _, opt := range opts {
		opt(g)
	}

	return g, nil
}

// Registry returns the registry address this gateway is bound to.
func (g *Gateway) Registry() string {
	return g.registry
}

// PublicKey returns the gateway's base64 X25519 public key used to seal
// decrypt results.
func (g *Gateway) PublicKey() string {
	return base64.StdEncoding.EncodeToString(g.boxPub[:])
}

// Encrypt seals each value under the gateway key, stores the ciphertext
// entries, and returns opaque handles plus one aggregate proof bound to the
// submitter and registry.
func (g *Gateway) Encrypt(ctx context.Context, submitterID string, values []uint64) (*EncryptedInput, error) {
	submitterID = strings.TrimSpace(submitterID)
	if submitterID == "" {
		return nil, appErrors.NewInvalidArgument("submitter identity is required")
	}
	if len(values) == 0 {
		return nil, appErrors.NewInvalidArgument("at least one value is required")
	}

	handles := make([]string, 0, len(values))
	entries := make([]models.CiphertextEntry, 0, len(values))
	for _, value := range values {
		handle, err := crypto.GenerateToken(handleByteLength)
		if err != nil {
			return nil, fmt.Errorf("gateway: generate handle: %w", err)
		}

		payload, err := g.crypto.Seal([]byte(strconv.FormatUint(value, 10)))
		if err != nil {
			return nil, fmt.Errorf("gateway: seal value: %w", err)
		}

		handles = append(handles, handle)
		entries = append(entries, models.CiphertextEntry{
			Handle:    handle,
			Registry:  g.registry,
			Submitter: submitterID,
			Payload:   payload,
		})
	}

	if err := g.db.WithContext(ctx).Create(&entries).Error; err != nil {
		return nil, fmt.Errorf("gateway: store ciphertext entries: %w", err)
	}

	return &EncryptedInput{
		Handles: handles,
		Proof:   g.crypto.ProveBinding(bindingMessage(g.registry, submitterID, handles)),
	}, nil
}

// VerifyProof checks that the proof covers exactly these handles, bound to
// the submitter and this registry.
func (g *Gateway) VerifyProof(submitterID string, handles []string, proof string) bool {
	if len(handles) == 0 || proof == "" {
		return false
	}
	return g.crypto.VerifyBinding(bindingMessage(g.registry, submitterID, handles), proof)
}

// Bind marks handles as referenced by a stored credential so maintenance
// never prunes them. Every handle must still be staged: a handle that was
// already pruned (or never issued by this registry) fails the whole call so
// issuance cannot commit against dead ciphertext.
func (g *Gateway) Bind(ctx context.Context, handles []string) error {
	if len(handles) == 0 {
		return nil
	}
	result := g.db.WithContext(ctx).
		Model(&models.CiphertextEntry{}).
		Where("handle IN ?", handles).
		Update("bound", true)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected != int64(len(handles)) {
		return appErrors.ErrInvalidProof.WithMessage("one or more ciphertext handles are no longer staged")
	}
	return nil
}

// Decrypt validates the authorization and, on success, returns every
// requested plaintext sealed to the requester's ephemeral key. Any failure
// yields no partial results.
func (g *Gateway) Decrypt(ctx context.Context, auth *Authorization) (*DecryptResult, error) {
	if auth == nil || len(auth.Handles) == 0 {
		return nil, appErrors.NewInvalidArgument("authorization with at least one handle is required")
	}

	if auth.TTL <= 0 || auth.TTL > g.maxTTL {
		return nil, appErrors.NewInvalidArgument(fmt.Sprintf("validity window must be within (0, %s]", g.maxTTL))
	}

	clientKey, err := base64.StdEncoding.DecodeString(auth.PublicKey)
	if err != nil || len(clientKey) != 32 {
		return nil, appErrors.NewInvalidArgument("public key must be a base64 X25519 key")
	}

	identity, err := g.identities.Identity(ctx, auth.IdentityID)
	if err != nil {
		if errors.Is(err, permissions.ErrIdentityNotFound) {
			// No registry identity to match the signature against.
			return nil, appErrors.ErrInvalidSignature
		}
		return nil, fmt.Errorf("gateway: resolve identity: %w", err)
	}

	if err := auth.VerifySignature(identity.SigningKey); err != nil {
		return nil, appErrors.ErrInvalidSignature.WithInternal(err)
	}

	now := g.now()
	if auth.IssuedAt.After(now.Add(g.skew)) {
		return nil, appErrors.NewInvalidArgument("issued_at lies in the future")
	}
	if auth.Expired(now) {
		return nil, appErrors.ErrAuthorizationExpired
	}

	// Entitlement is re-checked per handle at decrypt time; a single denial
	// fails the whole request.
	entries := make([]models.CiphertextEntry, 0, len(auth.Handles))
	for _, ref := range auth.Handles {
		if ref.Registry != g.registry {
			return nil, appErrors.ErrDecryptionDenied
		}

		var entry models.CiphertextEntry
		err := g.db.WithContext(ctx).First(&entry, "handle = ?", ref.Handle).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, appErrors.ErrDecryptionDenied
		}
		if err != nil {
			return nil, fmt.Errorf("gateway: load ciphertext entry: %w", err)
		}

		entitled, err := g.entitlements.ForHandle(ctx, identity.ID, ref.Handle)
		if err != nil {
			return nil, fmt.Errorf("gateway: check entitlement: %w", err)
		}
		if !entitled {
			return nil, appErrors.ErrDecryptionDenied
		}

		entries = append(entries, entry)
	}

	var peerKey [32]byte
	copy(peerKey[:], clientKey)

	values := make(map[string]SealedValue, len(entries))
	for _, entry := range entries {
		plaintext, err := g.crypto.Open(entry.Payload)
		if err != nil {
			return nil, fmt.Errorf("gateway: open ciphertext %s: %w", entry.Handle, err)
		}

		var nonce [24]byte
		if _, err := rand.Read(nonce[:]); err != nil {
			return nil, fmt.Errorf("gateway: generate nonce: %w", err)
		}

		sealed := box.Seal(nil, plaintext, &nonce, &peerKey, g.boxPriv)
		values[entry.Handle] = SealedValue{
			Nonce:  base64.StdEncoding.EncodeToString(nonce[:]),
			Sealed: base64.StdEncoding.EncodeToString(sealed),
		}
	}

	return &DecryptResult{
		GatewayKey: g.PublicKey(),
		Values:     values,
	}, nil
}

// PruneUnbound removes staged ciphertext entries never referenced by a
// credential and older than the cutoff. Bound entries are kept forever.
func (g *Gateway) PruneUnbound(ctx context.Context, cutoff time.Time) (int64, error) {
	result := g.db.WithContext(ctx).
		Where("bound = ? AND created_at < ?", false, cutoff).
		Delete(&models.CiphertextEntry{})
	return result.RowsAffected, result.Error
}

func bindingMessage(registry, submitter string, handles []string) []byte {
	parts := append([]string{registry, submitter}, handles...)
	return []byte(strings.Join(parts, "|"))
}
