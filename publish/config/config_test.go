package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var envKeys = []string{
	"WHITELIST_CONTRACT_ADDRESS", "METADATA_URL", "RPC_URL", "PRIVATE_KEY",
	"PUBLIC_ADDRESS", "CHAIN_ID", "GAS_LIMIT", "GAS_FEE_CAP", "GAS_TIP_CAP",
	"CONFIRMATIONS", "POLL_INTERVAL", "TIMEOUT_SECONDS", "ARTIFACTS_DIR", "LOG_LEVEL",
}

// clearEnv blanks every key; empty variables count as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func writeEnvFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)

	assert.Equal(t, "", cfg.WhitelistContractAddress)
	assert.Equal(t, "", cfg.MetadataURL)
	assert.Equal(t, uint64(5_000_000), cfg.GasLimit)
	assert.Equal(t, int64(2_000_000_000), cfg.GasFeeCap)
	assert.Equal(t, int64(1_000_000_000), cfg.GasTipCap)
	assert.Equal(t, uint64(1), cfg.Confirmations)
	assert.Equal(t, 2*time.Second, cfg.PollInterval)
	assert.Equal(t, 10*time.Minute, cfg.Timeout())
	assert.Equal(t, "artifacts", cfg.ArtifactsDir)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadEnvFile(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, `WHITELIST_CONTRACT_ADDRESS=0x9A676e781A523b5d0C0e43731313A708CB607508
METADATA_URL="https://example.test/meta/"
RPC_URL=http://127.0.0.1:8545
PRIVATE_KEY=0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80
CHAIN_ID=31337
CONFIRMATIONS=3
POLL_INTERVAL=250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "0x9A676e781A523b5d0C0e43731313A708CB607508", cfg.WhitelistContractAddress)
	assert.Equal(t, "https://example.test/meta/", cfg.MetadataURL)
	assert.Equal(t, "http://127.0.0.1:8545", cfg.RPCURL)
	assert.Equal(t, uint64(31337), cfg.ChainID)
	assert.Equal(t, uint64(3), cfg.Confirmations)
	assert.Equal(t, 250*time.Millisecond, cfg.PollInterval)
	assert.NoError(t, cfg.Validate())
}

func TestLoadEnvironmentOverridesFile(t *testing.T) {
	clearEnv(t)
	path := writeEnvFile(t, "METADATA_URL=https://file.test/\nRPC_URL=http://file:8545\n")
	t.Setenv("METADATA_URL", "https://env.test/")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://env.test/", cfg.MetadataURL)
	assert.Equal(t, "http://file:8545", cfg.RPCURL)
}

func TestValidate(t *testing.T) {
	clearEnv(t)
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.RPCURL = "http://127.0.0.1:8545"
		cfg.PrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
		return cfg
	}

	t.Run("contract inputs are not validated", func(t *testing.T) {
		cfg := valid()
		cfg.MetadataURL = ""
		cfg.WhitelistContractAddress = "whatever"
		assert.NoError(t, cfg.Validate())
	})

	t.Run("missing rpc url", func(t *testing.T) {
		cfg := valid()
		cfg.RPCURL = ""
		assert.Error(t, cfg.Validate())
		assert.Error(t, cfg.ValidateRead())
	})

	t.Run("missing private key", func(t *testing.T) {
		cfg := valid()
		cfg.PrivateKey = ""
		assert.Error(t, cfg.Validate())
		assert.NoError(t, cfg.ValidateRead())
	})

	t.Run("malformed public address", func(t *testing.T) {
		cfg := valid()
		cfg.PublicAddress = "0x1234"
		assert.Error(t, cfg.Validate())
	})

	t.Run("zero confirmations", func(t *testing.T) {
		cfg := valid()
		cfg.Confirmations = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("unknown log level", func(t *testing.T) {
		cfg := valid()
		cfg.LogLevel = "loud"
		assert.Error(t, cfg.Validate())
	})
}
