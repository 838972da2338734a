package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/credvault/credvault/internal/models"
	appErrors "github.com/credvault/credvault/pkg/errors"
)

func validCredentialInput(institutionSeq int64, holderID string) CreateCredentialInput {
	return CreateCredentialInput{
		StudentID:      "STU-1001",
		InstitutionSeq: institutionSeq,
		DegreeName:     "BSc Computer Science",
		Major:          "Computer Science",
		DocPointer:     "QmYwAPJzv5CZsnAzt8auVZRn",
		HolderID:       holderID,
		Handles:        CredentialHandlesInput{GPA: "h-gpa", Year: "h-year", DegreeType: "h-degree"},
		Proof:          "valid-proof",
	}
}

func TestCredentialCreate(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	institution := env.createInstitution(t, "Harvard", issuer.ID)

	credential, err := svc.Create(ctx, issuer.ID, validCredentialInput(institution.Seq, holder.ID))
	require.NoError(t, err)
	assert.Equal(t, int64(0), credential.Seq)
	assert.Equal(t, models.StatusPendingVerification, credential.Status)
	assert.Equal(t, "Harvard", credential.InstitutionName)
	assert.ElementsMatch(t, []string{"h-gpa", "h-year", "h-degree"}, env.gateway.bound)

	second, err := svc.Create(ctx, issuer.ID, CreateCredentialInput{
		StudentID:      "STU-1002",
		InstitutionSeq: institution.Seq,
		DegreeName:     "MSc Physics",
		HolderID:       holder.ID,
		Handles:        CredentialHandlesInput{GPA: "h2-gpa", Year: "h2-year", DegreeType: "h2-degree"},
		Proof:          "valid-proof",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), second.Seq)
}

func TestCredentialCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	institution := env.createInstitution(t, "Harvard", issuer.ID)

	input := validCredentialInput(institution.Seq, holder.ID)
	input.StudentID = " "
	_, err := svc.Create(ctx, issuer.ID, input)
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)

	input = validCredentialInput(institution.Seq, holder.ID)
	input.Handles.Year = ""
	_, err = svc.Create(ctx, issuer.ID, input)
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)

	input = validCredentialInput(institution.Seq, holder.ID)
	input.IssuedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := input.IssuedAt.Add(-time.Hour)
	input.ExpiresAt = &expiry
	_, err = svc.Create(ctx, issuer.ID, input)
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)

	input = validCredentialInput(99, holder.ID)
	_, err = svc.Create(ctx, issuer.ID, input)
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)

	input = validCredentialInput(institution.Seq, "missing-holder")
	_, err = svc.Create(ctx, issuer.ID, input)
	assert.ErrorIs(t, err, appErrors.ErrInvalidArgument)
}

func TestCredentialCreateInvalidProof(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	institution := env.createInstitution(t, "Harvard", issuer.ID)

	input := validCredentialInput(institution.Seq, holder.ID)
	input.Proof = "forged"
	_, err := svc.Create(ctx, issuer.ID, input)
	assert.ErrorIs(t, err, appErrors.ErrInvalidProof)
	assert.Empty(t, env.gateway.bound)
}

func TestCredentialCreateCrossInstitutionDenied(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	harvardAdmin := env.createIdentity(t, "Harvard Admin", identityOpts{})
	otherAdmin := env.createIdentity(t, "Other Admin", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	harvard := env.createInstitution(t, "Harvard", harvardAdmin.ID)
	env.createInstitution(t, "University B", otherAdmin.ID)

	// University B's admin cannot issue under Harvard.
	_, err := svc.Create(ctx, otherAdmin.ID, validCredentialInput(harvard.Seq, holder.ID))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	// A global admin may issue under any institution.
	root := env.createIdentity(t, "Root", identityOpts{admin: true})
	_, err = svc.Create(ctx, root.ID, validCredentialInput(harvard.Seq, holder.ID))
	assert.NoError(t, err)
}

func TestCredentialCreateInactiveInstitution(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	institution := env.createInstitution(t, "Harvard", issuer.ID)

	instSvc, err := NewInstitutionService(env.db, env.audit)
	require.NoError(t, err)
	inactive := false
	_, err = instSvc.SetStatus(ctx, issuer.ID, institution.Seq, InstitutionStatusInput{Active: &inactive})
	require.NoError(t, err)

	_, err = svc.Create(ctx, issuer.ID, validCredentialInput(institution.Seq, holder.ID))
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
}

func TestCredentialPublicViewAndExpiry(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	institution := env.createInstitution(t, "Harvard", issuer.ID)

	input := validCredentialInput(institution.Seq, holder.ID)
	input.IssuedAt = time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	expiry := input.IssuedAt.AddDate(1, 0, 0)
	input.ExpiresAt = &expiry

	credential, err := svc.Create(ctx, issuer.ID, input)
	require.NoError(t, err)

	now := input.IssuedAt.Add(time.Hour)
	svc.WithClock(func() time.Time { return now })

	public, err := svc.GetPublic(ctx, credential.Seq)
	require.NoError(t, err)
	assert.Equal(t, models.StatusPendingVerification, public.Status)
	assert.False(t, public.Verified)

	// The public projection never carries ciphertext handles.
	encoded, err := json.Marshal(public)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "h-gpa")
	assert.NotContains(t, string(encoded), "handle")

	// Expiry is computed at read time, not stored.
	now = expiry.Add(time.Second)
	public, err = svc.GetPublic(ctx, credential.Seq)
	require.NoError(t, err)
	assert.Equal(t, models.StatusExpired, public.Status)

	var stored models.Credential
	require.NoError(t, env.db.First(&stored, "seq = ?", credential.Seq).Error)
	assert.Equal(t, models.StatusPendingVerification, stored.Status)

	_, err = svc.GetPublic(ctx, 42)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)
}

func TestCredentialListByHolder(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	other := env.createIdentity(t, "Other", identityOpts{})
	institution := env.createInstitution(t, "Harvard", issuer.ID)

	_, err := svc.Create(ctx, issuer.ID, validCredentialInput(institution.Seq, holder.ID))
	require.NoError(t, err)

	mine, err := svc.ListByHolder(ctx, holder.ID)
	require.NoError(t, err)
	assert.Len(t, mine, 1)

	none, err := svc.ListByHolder(ctx, other.ID)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestCredentialGetHandlesEntitlement(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	otherAdmin := env.createIdentity(t, "Other Admin", identityOpts{})
	root := env.createIdentity(t, "Root", identityOpts{admin: true})
	institution := env.createInstitution(t, "Harvard", issuer.ID)
	env.createInstitution(t, "University B", otherAdmin.ID)

	credential, err := svc.Create(ctx, issuer.ID, validCredentialInput(institution.Seq, holder.ID))
	require.NoError(t, err)

	// The issuing institution's admin and global admins are entitled.
	handles, err := svc.GetHandles(ctx, issuer.ID, credential.Seq)
	require.NoError(t, err)
	assert.Equal(t, "h-gpa", handles.GPA)

	_, err = svc.GetHandles(ctx, root.ID, credential.Seq)
	assert.NoError(t, err)

	// Another institution's admin is not.
	_, err = svc.GetHandles(ctx, otherAdmin.ID, credential.Seq)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	// The holder needs a registered decrypt capability.
	_, err = svc.GetHandles(ctx, holder.ID, credential.Seq)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	require.NoError(t, env.db.Model(&models.Identity{}).
		Where("id = ?", holder.ID).
		Update("decrypt_key", randomKeyB64(t)).Error)

	handles, err = svc.GetHandles(ctx, holder.ID, credential.Seq)
	require.NoError(t, err)
	assert.Equal(t, "h-year", handles.Year)
}

func TestCredentialVerifyLifecycle(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	otherAdmin := env.createIdentity(t, "Other Admin", identityOpts{})
	institution := env.createInstitution(t, "Harvard", issuer.ID)
	env.createInstitution(t, "University B", otherAdmin.ID)

	credential, err := svc.Create(ctx, issuer.ID, validCredentialInput(institution.Seq, holder.ID))
	require.NoError(t, err)

	// Another institution's admin cannot review Harvard credentials.
	_, err = svc.Verify(ctx, otherAdmin.ID, credential.Seq, true, "")
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	verified, err := svc.Verify(ctx, issuer.ID, credential.Seq, true, "checked transcripts")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, verified.Status)

	var events []models.VerificationEvent
	require.NoError(t, json.Unmarshal(verified.History, &events))
	require.Len(t, events, 1)
	assert.Equal(t, issuer.ID, events[0].ReviewerID)
	assert.True(t, events[0].Approved)
	assert.Equal(t, "checked transcripts", events[0].Note)

	// Re-approving is a no-op: no history growth.
	again, err := svc.Verify(ctx, issuer.ID, credential.Seq, true, "dup")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(again.History, &events))
	assert.Len(t, events, 1)

	// Rejection after verification, then re-approval from rejected.
	rejected, err := svc.Verify(ctx, issuer.ID, credential.Seq, false, "revoked accreditation")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRejected, rejected.Status)

	reinstated, err := svc.Verify(ctx, issuer.ID, credential.Seq, true, "appeal upheld")
	require.NoError(t, err)
	assert.Equal(t, models.StatusVerified, reinstated.Status)

	require.NoError(t, json.Unmarshal(reinstated.History, &events))
	assert.Len(t, events, 3)
}

func TestCredentialCreateHandlesNoLongerStaged(t *testing.T) {
	env := newTestEnv(t)
	svc := env.credentialService(t)
	ctx := context.Background()

	issuer := env.createIdentity(t, "Registrar", identityOpts{})
	holder := env.createIdentity(t, "Student", identityOpts{})
	institution := env.createInstitution(t, "Harvard", issuer.ID)

	env.gateway.bindErr = appErrors.ErrInvalidProof.WithMessage("one or more ciphertext handles are no longer staged")

	_, err := svc.Create(ctx, issuer.ID, validCredentialInput(institution.Seq, holder.ID))
	assert.ErrorIs(t, err, appErrors.ErrInvalidProof)

	// Nothing may commit when the ciphertext disappeared before issuance.
	var count int64
	require.NoError(t, env.db.Model(&models.Credential{}).Count(&count).Error)
	assert.Zero(t, count)
}
