package permissions

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/credvault/credvault/internal/models"
)

// fakeStore substitutes the database-backed store in checker tests.
type fakeStore struct {
	identities map[string]*models.Identity
	admins     map[int64]string
}

func (f *fakeStore) Identity(_ context.Context, id string) (*models.Identity, error) {
	identity, ok := f.identities[id]
	if !ok {
		return nil, ErrIdentityNotFound
	}
	return identity, nil
}

func (f *fakeStore) InstitutionAdmin(_ context.Context, seq int64) (string, error) {
	return f.admins[seq], nil
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities: map[string]*models.Identity{
			"admin": {BaseModel: models.BaseModel{ID: "admin"}, IsAdmin: true, IsActive: true},
			"ua-0":  {BaseModel: models.BaseModel{ID: "ua-0"}, IsUniversityAdmin: true, IsActive: true},
			"ua-1":  {BaseModel: models.BaseModel{ID: "ua-1"}, IsUniversityAdmin: true, IsActive: true},
			"holder": {
				BaseModel: models.BaseModel{ID: "holder"},
				IsActive:  true,
			},
			"holder-dev": {
				BaseModel:  models.BaseModel{ID: "holder-dev"},
				IsActive:   true,
				DecryptKey: "a2V5",
			},
			"inactive": {BaseModel: models.BaseModel{ID: "inactive"}, IsAdmin: true},
		},
		admins: map[int64]string{0: "ua-0", 1: "ua-1"},
	}
}

func newTestChecker(t *testing.T) *Checker {
	t.Helper()
	checker, err := NewChecker(newFakeStore())
	require.NoError(t, err)
	return checker
}

func TestCheckAdminHasEverything(t *testing.T) {
	checker := newTestChecker(t)
	ctx := context.Background()

	for _, perm := range []string{"institution.register", "role.grant", "credential.read_encrypted", "audit.view"} {
		ok, err := checker.Check(ctx, "admin", perm)
		require.NoError(t, err)
		require.True(t, ok, perm)
	}
}

func TestCheckUniversityAdminScope(t *testing.T) {
	checker := newTestChecker(t)
	ctx := context.Background()

	ok, err := checker.Check(ctx, "ua-0", "credential.create")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.Check(ctx, "ua-0", "institution.register")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = checker.Check(ctx, "ua-0", "role.grant")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckPlainHolder(t *testing.T) {
	checker := newTestChecker(t)
	ctx := context.Background()

	ok, err := checker.Check(ctx, "holder", "credential.view")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.Check(ctx, "holder", "credential.verify")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckInactiveIdentityDeniedEverything(t *testing.T) {
	checker := newTestChecker(t)

	ok, err := checker.Check(context.Background(), "inactive", "credential.view")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestCheckUnknownIdentity(t *testing.T) {
	checker := newTestChecker(t)

	_, err := checker.Check(context.Background(), "ghost", "credential.view")
	require.ErrorIs(t, err, ErrIdentityNotFound)
}

func TestForInstitutionScoping(t *testing.T) {
	checker := newTestChecker(t)
	ctx := context.Background()

	// University admin B for institution 0 cannot act on institution 1.
	ok, err := checker.ForInstitution(ctx, "ua-0", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.ForInstitution(ctx, "ua-0", 1)
	require.NoError(t, err)
	require.False(t, ok)

	// Global admin supersedes the institution scope.
	ok, err = checker.ForInstitution(ctx, "admin", 1)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.ForInstitution(ctx, "holder", 0)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestForHandlesHolderCapability(t *testing.T) {
	checker := newTestChecker(t)
	ctx := context.Background()

	// Holder without a registered decrypt key may not read own handles.
	ok, err := checker.ForHandles(ctx, "holder", "holder", 0)
	require.NoError(t, err)
	require.False(t, ok)

	// A device-bound decrypt capability unlocks the holder's own record only.
	ok, err = checker.ForHandles(ctx, "holder-dev", "holder-dev", 0)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = checker.ForHandles(ctx, "holder-dev", "someone-else", 0)
	require.NoError(t, err)
	require.False(t, ok)

	// Institution scoping applies to university admins.
	ok, err = checker.ForHandles(ctx, "ua-1", "holder", 0)
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = checker.ForHandles(ctx, "ua-0", "holder", 0)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestPermissionsListing(t *testing.T) {
	checker := newTestChecker(t)

	perms, err := checker.Permissions(context.Background(), "holder")
	require.NoError(t, err)
	require.Equal(t, []string{"credential.view", "institution.view"}, perms)

	adminPerms, err := checker.Permissions(context.Background(), "admin")
	require.NoError(t, err)
	require.Contains(t, adminPerms, "role.grant")
	require.Contains(t, adminPerms, "audit.view")
}
