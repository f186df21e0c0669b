package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLoadCreatesDefaultWithGeneratedRoles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Load(path)
	require.NoError(t, err)
	require.FileExists(t, path)
	require.Equal(t, ":8644", cfg.ListenAddress)
	require.Equal(t, "leveldb", cfg.Backend)
	require.NotEmpty(t, cfg.Seller)
	require.NotEmpty(t, cfg.Custodian)

	ledgerCfg, err := cfg.LedgerConfig()
	require.NoError(t, err)
	require.NotEqual(t, [20]byte{}, ledgerCfg.Seller)
	require.NotEqual(t, ledgerCfg.Seller, ledgerCfg.Inspector)

	// A second load round-trips the generated file.
	reloaded, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, cfg.Seller, reloaded.Seller)
	require.Equal(t, cfg.LegalReviewer, reloaded.LegalReviewer)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("BogusKey = true\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "unknown keys")
}

func TestLoadRejectsInvalidBackend(t *testing.T) {
	base := filepath.Join(t.TempDir(), "config.toml")
	cfg, err := Load(base)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "config.toml")
	content := "Backend = \"postgres\"\n" +
		"Seller = \"" + cfg.Seller + "\"\n" +
		"Inspector = \"" + cfg.Inspector + "\"\n" +
		"Lender = \"" + cfg.Lender + "\"\n" +
		"LegalReviewer = \"" + cfg.LegalReviewer + "\"\n" +
		"Custodian = \"" + cfg.Custodian + "\"\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	_, err = Load(path)
	require.ErrorContains(t, err, "unsupported storage backend")
}

func TestRPCTokenEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	_, err := Load(path)
	require.NoError(t, err)

	t.Setenv("DEEDVAULT_RPC_TOKEN", "super-secret")
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "super-secret", cfg.RPCToken)
}

func TestLoadRequiresRoleAddresses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte("ListenAddress = \":9000\"\n"), 0o600))

	_, err := Load(path)
	require.ErrorContains(t, err, "is required")
}
