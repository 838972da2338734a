package services

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/credvault/credvault/internal/database/testutil"
	"github.com/credvault/credvault/internal/models"
	"github.com/credvault/credvault/internal/permissions"
)

type testEnv struct {
	db      *gorm.DB
	checker *permissions.Checker
	audit   *AuditService
	gateway *fakeGateway
}

// fakeGateway accepts the proof "valid-proof" for any handle set and records
// which handles were bound. Setting bindErr makes Bind fail the way the real
// gateway does when a handle is no longer staged.
type fakeGateway struct {
	bound   []string
	bindErr error
}

func (f *fakeGateway) VerifyProof(_ string, handles []string, proof string) bool {
	return len(handles) > 0 && proof == "valid-proof"
}

func (f *fakeGateway) Bind(_ context.Context, handles []string) error {
	if f.bindErr != nil {
		return f.bindErr
	}
	f.bound = append(f.bound, handles...)
	return nil
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.MustOpenTestDB(t)

	store, err := permissions.NewGormStore(db)
	require.NoError(t, err)
	checker, err := permissions.NewChecker(store)
	require.NoError(t, err)
	audit, err := NewAuditService(db)
	require.NoError(t, err)

	return &testEnv{db: db, checker: checker, audit: audit, gateway: &fakeGateway{}}
}

func randomKeyB64(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(pub)
}

type identityOpts struct {
	admin      bool
	uniAdmin   bool
	inactive   bool
	decryptKey bool
}

func (e *testEnv) createIdentity(t *testing.T, name string, opts identityOpts) *models.Identity {
	t.Helper()

	identity := &models.Identity{
		Name:              name,
		SigningKey:        randomKeyB64(t),
		IsAdmin:           opts.admin,
		IsUniversityAdmin: opts.uniAdmin,
		IsActive:          !opts.inactive,
	}
	if opts.decryptKey {
		identity.DecryptKey = randomKeyB64(t)
	}
	require.NoError(t, e.db.Create(identity).Error)
	return identity
}

func (e *testEnv) createInstitution(t *testing.T, name string, adminID string) *models.Institution {
	t.Helper()

	svc, err := NewInstitutionService(e.db, e.audit)
	require.NoError(t, err)
	institution, err := svc.Register(context.Background(), adminID, RegisterInstitutionInput{
		Name:    name,
		Country: "US",
		AdminID: adminID,
	})
	require.NoError(t, err)
	return institution
}

func (e *testEnv) credentialService(t *testing.T) *CredentialService {
	t.Helper()
	svc, err := NewCredentialService(e.db, e.checker, e.gateway, e.audit)
	require.NoError(t, err)
	return svc
}

func (e *testEnv) transcriptService(t *testing.T) *TranscriptService {
	t.Helper()
	svc, err := NewTranscriptService(e.db, e.checker, e.gateway, e.audit)
	require.NoError(t, err)
	return svc
}
