package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func setRequired(t *testing.T) {
	t.Helper()
	setEnv(t, "BACKEND_API_URL", "https://api.peerswap.test")
	setEnv(t, "ARBITRATOR_ADDRESS", "0x1234567890123456789012345678901234567890")
}

func TestLoad_WithValidConfig(t *testing.T) {
	setRequired(t)
	setEnv(t, "PORT", "9090")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DefaultRPCURL, cfg.RPCURL)
	assert.Equal(t, int64(DefaultChainID), cfg.ChainID)
	assert.Equal(t, DefaultDisputeFeeRate, cfg.DisputeFeeRate)
	assert.False(t, cfg.SigningEnabled())
}

func TestLoad_MissingBackendURL(t *testing.T) {
	setEnv(t, "BACKEND_API_URL", "")
	setEnv(t, "ARBITRATOR_ADDRESS", "0x1234567890123456789012345678901234567890")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_API_URL is required")
}

func TestLoad_MissingArbitrator(t *testing.T) {
	setEnv(t, "BACKEND_API_URL", "https://api.peerswap.test")
	setEnv(t, "ARBITRATOR_ADDRESS", "")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "ARBITRATOR_ADDRESS is required")
}

func TestLoad_InvalidPrivateKeyLength(t *testing.T) {
	setRequired(t)
	setEnv(t, "PRIVATE_KEY", "tooshort")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "64 hex characters")
}

func TestLoad_PrivateKeyWithPrefix(t *testing.T) {
	setRequired(t)
	setEnv(t, "PRIVATE_KEY", "0x0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.SigningEnabled())
}

func TestLoad_InvalidDisputeFeeRate(t *testing.T) {
	setRequired(t)
	setEnv(t, "DISPUTE_FEE_RATE", "half a percent")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "DISPUTE_FEE_RATE")
}

func TestConfig_EnvHelpers(t *testing.T) {
	setRequired(t)
	setEnv(t, "ENV", "production")

	cfg, err := Load()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.False(t, cfg.IsDevelopment())
}
