package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntitlementForHandle(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{decryptKey: true})
	bareHolder := env.createIdentity(t, "No Capability", identityOpts{})
	otherAdmin := env.createIdentity(t, "Other Admin", identityOpts{})
	institution := env.createInstitution(t, "Harvard", issuer.ID)
	env.createInstitution(t, "University B", otherAdmin.ID)

	credSvc := env.credentialService(t)
	input := validCredentialInput(institution.Seq, holder.ID)
	_, err := credSvc.Create(ctx, issuer.ID, input)
	require.NoError(t, err)

	svc, err := NewEntitlementService(env.db, env.checker)
	require.NoError(t, err)

	// The issuing institution's admin may decrypt any of the record's handles.
	for _, handle := range []string{"h-gpa", "h-year", "h-degree"} {
		ok, err := svc.ForHandle(ctx, issuer.ID, handle)
		require.NoError(t, err)
		assert.True(t, ok, handle)
	}

	// The holder may, through the device-bound capability.
	ok, err := svc.ForHandle(ctx, holder.ID, "h-gpa")
	require.NoError(t, err)
	assert.True(t, ok)

	// Entitlement does not leak across institutions.
	ok, err = svc.ForHandle(ctx, otherAdmin.ID, "h-gpa")
	require.NoError(t, err)
	assert.False(t, ok)

	// Unreferenced handles grant nothing, even to the record holder.
	ok, err = svc.ForHandle(ctx, holder.ID, "unknown-handle")
	require.NoError(t, err)
	assert.False(t, ok)

	// Transcript handles resolve through their own table.
	trSvc := env.transcriptService(t)
	_, err = trSvc.Create(ctx, issuer.ID, validTranscriptInput(institution.Seq, bareHolder.ID))
	require.NoError(t, err)

	ok, err = svc.ForHandle(ctx, issuer.ID, "t-total")
	require.NoError(t, err)
	assert.True(t, ok)

	// A holder without a decrypt capability is denied its own handles.
	ok, err = svc.ForHandle(ctx, bareHolder.ID, "t-total")
	require.NoError(t, err)
	assert.False(t, ok)
}
