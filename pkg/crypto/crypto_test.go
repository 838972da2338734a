package crypto

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")

	ciphertext, err := Encrypt([]byte("gpa=38"), key)
	require.NoError(t, err)
	require.NotContains(t, ciphertext, "gpa")

	plaintext, err := Decrypt(ciphertext, key)
	require.NoError(t, err)
	require.Equal(t, []byte("gpa=38"), plaintext)
}

func TestDecryptRejectsTamperedPayload(t *testing.T) {
	key := make([]byte, 32)
	copy(key, "0123456789abcdef0123456789abcdef")

	ciphertext, err := Encrypt([]byte("2023"), key)
	require.NoError(t, err)

	tampered := "A" + ciphertext[1:]
	_, err = Decrypt(tampered, key)
	require.Error(t, err)
}

func TestGenerateTokenUnique(t *testing.T) {
	first, err := GenerateToken(32)
	require.NoError(t, err)
	second, err := GenerateToken(32)
	require.NoError(t, err)
	require.NotEqual(t, first, second)
}

func TestHMACRoundTrip(t *testing.T) {
	key := []byte("proof-binding-key")
	message := []byte("registry|issuer|handle-a|handle-b")

	tag := ComputeHMAC(message, key)
	require.True(t, VerifyHMAC(message, tag, key))
	require.False(t, VerifyHMAC([]byte("registry|attacker|handle-a"), tag, key))
	require.False(t, VerifyHMAC(message, "not-base64!!", key))
}

func TestDeriveKeyArgon2id(t *testing.T) {
	salt := []byte("16-byte-salt-abc")

	key, err := DeriveKeyArgon2id([]byte("master"), salt, DefaultArgon2Params())
	require.NoError(t, err)
	require.Len(t, key, 32)

	again, err := DeriveKeyArgon2id([]byte("master"), salt, DefaultArgon2Params())
	require.NoError(t, err)
	require.Equal(t, key, again)

	_, err = DeriveKeyArgon2id([]byte("master"), []byte("short"), DefaultArgon2Params())
	require.Error(t, err)
}
