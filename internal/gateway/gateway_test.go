package gateway

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/nacl/box"

	"github.com/credvault/credvault/internal/database/testutil"
	"github.com/credvault/credvault/internal/models"
	"github.com/credvault/credvault/internal/permissions"
	appErrors "github.com/credvault/credvault/pkg/errors"
)

const testRegistry = "0x5fbdb2315678afecb367f032d93f642f64180aa3"

type fakeIdentityStore struct {
	identities map[string]*models.Identity
}

func (f *fakeIdentityStore) Identity(_ context.Context, id string) (*models.Identity, error) {
	identity, ok := f.identities[id]
	if !ok {
		return nil, permissions.ErrIdentityNotFound
	}
	return identity, nil
}

func (f *fakeIdentityStore) InstitutionAdmin(context.Context, int64) (string, error) {
	return "", permissions.ErrIdentityNotFound
}

type fakeEntitlements struct {
	allowed map[string]map[string]bool
}

func (f *fakeEntitlements) ForHandle(_ context.Context, identityID, handle string) (bool, error) {
	return f.allowed[identityID][handle], nil
}

type gatewayEnv struct {
	gateway      *Gateway
	store        *fakeIdentityStore
	entitlements *fakeEntitlements
	now          time.Time
	readerPriv   ed25519.PrivateKey
}

func newGatewayEnv(t *testing.T) *gatewayEnv {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	reader := &models.Identity{
		Name:       "Holder",
		SigningKey: base64.StdEncoding.EncodeToString(pub),
		IsActive:   true,
	}
	reader.ID = "reader-1"

	env := &gatewayEnv{
		store:        &fakeIdentityStore{identities: map[string]*models.Identity{"reader-1": reader}},
		entitlements: &fakeEntitlements{allowed: map[string]map[string]bool{}},
		now:          time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC),
		readerPriv:   priv,
	}

	gw, err := New(testutil.MustOpenTestDB(t), env.store, env.entitlements, Config{
		Registry:  testRegistry,
		MasterKey: []byte("correct horse battery staple"),
	}, WithClock(func() time.Time { return env.now }))
	require.NoError(t, err)
	env.gateway = gw

	return env
}

// authorize builds a signed decrypt authorization for the reader identity
// along with the ephemeral key pair needed to open the sealed result.
func (e *gatewayEnv) authorize(t *testing.T, handles []string, ttl time.Duration) (*Authorization, *[32]byte) {
	t.Helper()

	clientPub, clientPriv, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)

	refs := make([]HandleRef, 0, len(handles))
	for _, handle := range handles {
		refs = append(refs, HandleRef{Handle: handle, Registry: testRegistry})
	}

	auth := &Authorization{
		IdentityID: "reader-1",
		PublicKey:  base64.StdEncoding.EncodeToString(clientPub[:]),
		Handles:    refs,
		IssuedAt:   e.now,
		TTL:        ttl,
	}
	auth.Sign(e.readerPriv)
	return auth, clientPriv
}

func openSealed(t *testing.T, value SealedValue, gatewayKey string, clientPriv *[32]byte) string {
	t.Helper()

	gwPub, err := base64.StdEncoding.DecodeString(gatewayKey)
	require.NoError(t, err)
	nonceBytes, err := base64.StdEncoding.DecodeString(value.Nonce)
	require.NoError(t, err)
	sealed, err := base64.StdEncoding.DecodeString(value.Sealed)
	require.NoError(t, err)

	var peer [32]byte
	var nonce [24]byte
	copy(peer[:], gwPub)
	copy(nonce[:], nonceBytes)

	plaintext, ok := box.Open(nil, sealed, &nonce, &peer, clientPriv)
	require.True(t, ok, "sealed value must open with the client key")
	return string(plaintext)
}

func TestGatewayEncryptDecryptRoundTrip(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	input, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{385, 2026})
	require.NoError(t, err)
	require.Len(t, input.Handles, 2)
	assert.NotEqual(t, input.Handles[0], input.Handles[1])
	assert.NotEmpty(t, input.Proof)

	env.entitlements.allowed["reader-1"] = map[string]bool{
		input.Handles[0]: true,
		input.Handles[1]: true,
	}

	auth, clientPriv := env.authorize(t, input.Handles, 10*time.Minute)
	result, err := env.gateway.Decrypt(ctx, auth)
	require.NoError(t, err)
	require.Len(t, result.Values, 2)

	assert.Equal(t, "385", openSealed(t, result.Values[input.Handles[0]], result.GatewayKey, clientPriv))
	assert.Equal(t, "2026", openSealed(t, result.Values[input.Handles[1]], result.GatewayKey, clientPriv))
}

func TestGatewayProofBinding(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	input, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{42})
	require.NoError(t, err)

	assert.True(t, env.gateway.VerifyProof("issuer-1", input.Handles, input.Proof))

	// A different submitter cannot replay the proof.
	assert.False(t, env.gateway.VerifyProof("issuer-2", input.Handles, input.Proof))

	// The proof covers exactly the returned handle set.
	assert.False(t, env.gateway.VerifyProof("issuer-1", append(input.Handles, "extra"), input.Proof))
	assert.False(t, env.gateway.VerifyProof("issuer-1", input.Handles, "bogus"))
	assert.False(t, env.gateway.VerifyProof("issuer-1", nil, input.Proof))
}

func TestGatewayDecryptExpiredAuthorization(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	input, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{7})
	require.NoError(t, err)
	env.entitlements.allowed["reader-1"] = map[string]bool{input.Handles[0]: true}

	auth, _ := env.authorize(t, input.Handles, 10*time.Minute)

	env.now = env.now.Add(11 * time.Minute)
	result, err := env.gateway.Decrypt(ctx, auth)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, appErrors.ErrAuthorizationExpired)
}

func TestGatewayDecryptInvalidSignature(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	input, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{7})
	require.NoError(t, err)
	env.entitlements.allowed["reader-1"] = map[string]bool{input.Handles[0]: true}

	auth, _ := env.authorize(t, input.Handles, 10*time.Minute)
	auth.TTL = 20 * time.Minute // changes the signed payload

	result, err := env.gateway.Decrypt(ctx, auth)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, appErrors.ErrInvalidSignature)

	auth, _ = env.authorize(t, input.Handles, 10*time.Minute)
	auth.IdentityID = "nobody"
	result, err = env.gateway.Decrypt(ctx, auth)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, appErrors.ErrInvalidSignature)
}

func TestGatewayDecryptDeniedAllOrNothing(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	input, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{1, 2})
	require.NoError(t, err)

	// Entitled to the first handle only.
	env.entitlements.allowed["reader-1"] = map[string]bool{input.Handles[0]: true}

	auth, _ := env.authorize(t, input.Handles, 10*time.Minute)
	result, err := env.gateway.Decrypt(ctx, auth)
	assert.Nil(t, result, "a partial grant must release nothing")
	assert.ErrorIs(t, err, appErrors.ErrDecryptionDenied)
}

func TestGatewayDecryptUnknownHandle(t *testing.T) {
	env := newGatewayEnv(t)
	env.entitlements.allowed["reader-1"] = map[string]bool{"missing": true}

	auth, _ := env.authorize(t, []string{"missing"}, 10*time.Minute)
	_, err := env.gateway.Decrypt(context.Background(), auth)
	assert.ErrorIs(t, err, appErrors.ErrDecryptionDenied)
}

func TestGatewayDecryptForeignRegistry(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	input, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{9})
	require.NoError(t, err)
	env.entitlements.allowed["reader-1"] = map[string]bool{input.Handles[0]: true}

	clientPub, _, err := box.GenerateKey(rand.Reader)
	require.NoError(t, err)
	auth := &Authorization{
		IdentityID: "reader-1",
		PublicKey:  base64.StdEncoding.EncodeToString(clientPub[:]),
		Handles:    []HandleRef{{Handle: input.Handles[0], Registry: "0xother"}},
		IssuedAt:   env.now,
		TTL:        10 * time.Minute,
	}
	auth.Sign(env.readerPriv)

	_, err = env.gateway.Decrypt(ctx, auth)
	assert.ErrorIs(t, err, appErrors.ErrDecryptionDenied)
}

func TestGatewayDecryptWindowBounds(t *testing.T) {
	env := newGatewayEnv(t)
	auth, _ := env.authorize(t, []string{"h"}, 2*time.Hour)

	_, err := env.gateway.Decrypt(context.Background(), auth)
	require.Error(t, err)
	appErr := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrInvalidArgument.Code, appErr.Code)
}

func TestGatewayBindAndPrune(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	kept, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{1})
	require.NoError(t, err)
	staged, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{2})
	require.NoError(t, err)

	require.NoError(t, env.gateway.Bind(ctx, kept.Handles))

	pruned, err := env.gateway.PruneUnbound(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), pruned)

	// The bound entry survives and still decrypts.
	env.entitlements.allowed["reader-1"] = map[string]bool{kept.Handles[0]: true}
	auth, clientPriv := env.authorize(t, kept.Handles, 10*time.Minute)
	result, err := env.gateway.Decrypt(ctx, auth)
	require.NoError(t, err)
	assert.Equal(t, "1", openSealed(t, result.Values[kept.Handles[0]], result.GatewayKey, clientPriv))

	// The staged entry is gone.
	env.entitlements.allowed["reader-1"][staged.Handles[0]] = true
	auth, _ = env.authorize(t, staged.Handles, 10*time.Minute)
	_, err = env.gateway.Decrypt(ctx, auth)
	assert.ErrorIs(t, err, appErrors.ErrDecryptionDenied)
}

func TestGatewayBindRejectsPrunedHandles(t *testing.T) {
	env := newGatewayEnv(t)
	ctx := context.Background()

	staged, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{385, 2024, 1})
	require.NoError(t, err)

	pruned, err := env.gateway.PruneUnbound(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(3), pruned)

	// The proof is a MAC over the handle strings alone, so it still verifies
	// after the ciphertext is gone. Bind is the check that must refuse.
	assert.True(t, env.gateway.VerifyProof("issuer-1", staged.Handles, staged.Proof))
	assert.ErrorIs(t, env.gateway.Bind(ctx, staged.Handles), appErrors.ErrInvalidProof)

	// A mix of live and pruned handles fails the same way.
	fresh, err := env.gateway.Encrypt(ctx, "issuer-1", []uint64{7})
	require.NoError(t, err)
	err = env.gateway.Bind(ctx, append(fresh.Handles, staged.Handles[0]))
	assert.ErrorIs(t, err, appErrors.ErrInvalidProof)
}
