package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"agrocert/certification-backend/internal/ledger"
)

var envKeys = []string{
	"SERVER_HOST", "SERVER_PORT",
	"HEDERA_NETWORK", "HEDERA_ACCOUNT_ID", "HEDERA_PRIVATE_KEY", "HEDERA_TOPIC_ID",
	"HEDERA_MAX_TRANSACTION_FEE_HBAR", "HEDERA_MIRROR_NODE_URL", "HEDERA_EXPLORER_URL",
	"CERT_TOKEN_SYMBOL", "JWT_SECRET", "LOG_LEVEL", "LOG_FORMAT",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range envKeys {
		t.Setenv(key, "")
	}
}

func TestLoadConfigDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadConfig(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "testnet", cfg.Ledger.Network)
	assert.Equal(t, float64(DefaultMaxFeeHbar), cfg.Ledger.MaxFeeHbar)
	assert.Equal(t, int64(30*ledger.TinybarsPerHbar), cfg.Ledger.MaxFeeTinybars())
	assert.Equal(t, "https://testnet.mirrornode.hedera.com", cfg.Ledger.MirrorURL())
	assert.Equal(t, "CERT", cfg.Issuance.Symbol)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFileThenEnv(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"server": {"port": 9090},
		"ledger": {"network": "mainnet", "topic_id": "0.0.1111", "mirror_node_url": "https://mirror.example.org/"},
		"issuance": {"symbol": "BEAN"}
	}`), 0o600))

	t.Setenv("HEDERA_TOPIC_ID", "0.0.2222")
	t.Setenv("HEDERA_MAX_TRANSACTION_FEE_HBAR", "12.5")
	t.Setenv("JWT_SECRET", "s3cret")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "0.0.0.0", cfg.Server.Host, "unset file fields keep their defaults")
	assert.Equal(t, "mainnet", cfg.Ledger.Network)
	assert.Equal(t, "0.0.2222", cfg.Ledger.TopicID, "environment wins over the file")
	assert.Equal(t, 12.5, cfg.Ledger.MaxFeeHbar)
	assert.Equal(t, int64(1_250_000_000), cfg.Ledger.MaxFeeTinybars())
	assert.Equal(t, "https://mirror.example.org", cfg.Ledger.MirrorURL())
	assert.Equal(t, "BEAN", cfg.Issuance.Symbol)
	assert.Equal(t, "s3cret", cfg.Security.JWTSecret)
}

func TestLoadConfigRejectsBadInput(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"server":`), 0o600))

	_, err := LoadConfig(path)
	assert.Error(t, err)

	t.Setenv("SERVER_PORT", "eighty")
	_, err = LoadConfig("")
	assert.Error(t, err)

	t.Setenv("SERVER_PORT", "")
	t.Setenv("HEDERA_MAX_TRANSACTION_FEE_HBAR", "lots")
	_, err = LoadConfig("")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	cfg := Default()
	cfg.Ledger.Network = "moonnet"
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Ledger.MaxFeeHbar = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Issuance.Symbol = " "
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Server.Port = 70000
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.Issuance.StepTimeout = 0
	assert.ErrorContains(t, cfg.Validate(), "step timeout")

	cfg = Default()
	cfg.Issuance.VerifyCacheTTL = 0
	assert.NoError(t, cfg.Validate(), "a zero ttl disables the cache")
	cfg.Issuance.VerifyCacheTTL = -time.Second
	assert.Error(t, cfg.Validate())
}

func TestValidateIssuer(t *testing.T) {
	cfg := Default()
	err := cfg.ValidateIssuer()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HEDERA_ACCOUNT_ID")
	assert.Contains(t, err.Error(), "HEDERA_PRIVATE_KEY")
	assert.Contains(t, err.Error(), "HEDERA_TOPIC_ID")

	cfg.Ledger.AccountID = "0.0.1001"
	cfg.Ledger.PrivateKey = "302e020100300506032b657004220420"
	cfg.Ledger.TopicID = "0.0.1002"
	assert.NoError(t, cfg.ValidateIssuer())

	local := Default()
	local.Ledger.Network = "local"
	assert.NoError(t, local.ValidateIssuer())
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("AGROCERT_TEST_TOPIC=0.0.3333\nAGROCERT_TEST_LEVEL=debug\n"), 0o600))

	// t.Setenv restores the original state; Unsetenv leaves the key truly absent for the file to fill
	t.Setenv("AGROCERT_TEST_TOPIC", "")
	require.NoError(t, os.Unsetenv("AGROCERT_TEST_TOPIC"))
	t.Setenv("AGROCERT_TEST_LEVEL", "warn")

	require.NoError(t, LoadEnvFiles(filepath.Join(dir, ".env.local"), path))
	assert.Equal(t, "0.0.3333", os.Getenv("AGROCERT_TEST_TOPIC"))
	assert.Equal(t, "warn", os.Getenv("AGROCERT_TEST_LEVEL"), "variables already set are not overwritten")
}
