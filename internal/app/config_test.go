package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Server.LogLevel)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, time.Hour, cfg.Gateway.MaxAuthorizationTTL)
	assert.Equal(t, 15*time.Minute, cfg.Auth.JWT.TTL)
	assert.Equal(t, 90, cfg.Maintenance.AuditRetentionDays)
	assert.Equal(t, 24*time.Hour, cfg.Maintenance.UnboundHandleTTL)
}

func TestLoadConfigEnvOverrides(t *testing.T) {
	t.Setenv("CREDVAULT_SERVER_PORT", "9100")
	t.Setenv("CREDVAULT_GATEWAY_REGISTRY", "0xregistry")
	t.Setenv("CREDVAULT_AUTH_JWT_SECRET", "env-secret")

	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "0xregistry", cfg.Gateway.Registry)
	assert.Equal(t, "env-secret", cfg.Auth.JWT.Secret)
}

func TestConfigValidate(t *testing.T) {
	cfg, err := LoadConfig(t.TempDir())
	require.NoError(t, err)

	assert.Error(t, cfg.Validate())

	cfg.Auth.JWT.Secret = "secret"
	cfg.Gateway.MasterKey = "master"
	assert.Error(t, cfg.Validate())

	cfg.Auth.Bootstrap.AdminSigningKey = "a2V5"
	assert.NoError(t, cfg.Validate())
}

func TestDecodeKey(t *testing.T) {
	raw, err := DecodeKey("deadbeef")
	require.NoError(t, err)
	assert.Equal(t, []byte{0xde, 0xad, 0xbe, 0xef}, raw)

	raw, err = DecodeKey("aGVsbG8=")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), raw)

	raw, err = DecodeKey("plain text key!")
	require.NoError(t, err)
	assert.Equal(t, []byte("plain text key!"), raw)

	_, err = DecodeKey(" ")
	assert.Error(t, err)
}
