package permissions

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCorePermissionsRegistered(t *testing.T) {
	require.NoError(t, ValidateDependencies())

	for _, id := range []string{
		"institution.register",
		"institution.manage",
		"identity.register",
		"role.grant",
		"credential.create",
		"credential.verify",
		"credential.read_encrypted",
		"audit.view",
	} {
		_, ok := Get(id)
		require.True(t, ok, id)
	}
}

func TestRegisterValidation(t *testing.T) {
	require.Error(t, Register(nil))
	require.Error(t, Register(&Permission{ID: "  "}))
	require.Error(t, Register(&Permission{ID: "loop", DependsOn: []string{"loop"}}))
	require.Error(t, Register(&Permission{ID: "credential.view"})) // duplicate
}

func TestResolveDependencies(t *testing.T) {
	deps, err := ResolveDependencies("credential.create")
	require.NoError(t, err)
	require.Equal(t, []string{"credential.view"}, deps)

	_, err = ResolveDependencies("credential.teleport")
	require.ErrorIs(t, err, ErrUnknownPermission)
}
