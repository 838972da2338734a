package validator

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"
)

type registerIdentityPayload struct {
	Name       string `json:"name" validate:"required,min=2"`
	SigningKey string `json:"signing_key" validate:"required,base64key"`
}

func TestValidateStructReportsJSONFieldNames(t *testing.T) {
	err := ValidateStruct(&registerIdentityPayload{SigningKey: "!!not-base64!!"})
	require.Error(t, err)

	failures, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, failures, 2)
	require.Equal(t, "name", failures[0].Field)
	require.Equal(t, "signing_key", failures[1].Field)
	require.Equal(t, "base64key", failures[1].Tag)
}

func TestValidateStructAcceptsValidPayload(t *testing.T) {
	key := base64.StdEncoding.EncodeToString(make([]byte, 32))
	err := ValidateStruct(&registerIdentityPayload{Name: "Registrar", SigningKey: key})
	require.NoError(t, err)
}
