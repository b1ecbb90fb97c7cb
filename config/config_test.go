package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `
[general]
rpc_url = "https://goerli.example.org"
chain_id = 5
private_key_env = "TEST_VAULT_KEY"
receipt_timeout = "90s"

[database]
cache_path = "/tmp/vault-cache"

[server]
listen_addr = ":9090"

[[deployments]]
chain_id = 5
name = "art-enjoyer"
modules = ["LPDA", "OptimisticBid"]
  [deployments.contracts]
  lpda = "0x0000000000000000000000000000000000000b01"
  optimistic_bid = "0x0000000000000000000000000000000000000b02"
  vault_registry = "0x0000000000000000000000000000000000000b03"

[[proofs]]
chain_id = 5
modules = ["OptimisticBid", "LPDA"]
mint = ["0x0101010101010101010101010101010101010101010101010101010101010101"]
redeem = [
  "0x0202020202020202020202020202020202020202020202020202020202020202",
  "0x0303030303030303030303030303030303030303030303030303030303030303"
]
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestLoadConfig(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sample))
	require.NoError(t, err)

	assert.Equal(t, "https://goerli.example.org", cfg.General.RPCURL)
	assert.Equal(t, uint64(5), cfg.General.ChainID)
	assert.Equal(t, ":9090", cfg.Server.ListenAddr)

	timeout, err := cfg.ReceiptTimeout()
	require.NoError(t, err)
	assert.Equal(t, 90*time.Second, timeout)

	ttl, err := cfg.PermitTTL()
	require.NoError(t, err)
	assert.Equal(t, 20*time.Minute, ttl)
}

func TestRegistryOverridesDefaultDeployment(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sample))
	require.NoError(t, err)
	reg, err := cfg.Registry()
	require.NoError(t, err)

	addr, err := reg.Address(registry.ChainGoerli, registry.LPDA, "LPDA", "OptimisticBid")
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0x0000000000000000000000000000000000000b01"), addr)

	// untouched chains keep the built-in table
	_, err = reg.Address(registry.ChainRinkeby, registry.Buyout)
	assert.NoError(t, err)
}

func TestProofStore(t *testing.T) {
	cfg, err := LoadConfig(writeConfig(t, sample))
	require.NoError(t, err)
	store, err := cfg.ProofStore()
	require.NoError(t, err)

	redeem, err := store.Proof(5, []string{"lpda", "optimisticbid"}, proofs.Redeem)
	require.NoError(t, err)
	require.Len(t, redeem, 2)
	assert.Equal(t, byte(0x03), redeem[1][31])

	_, err = store.Proof(4, []string{"LPDA", "OptimisticBid"}, proofs.Mint)
	assert.ErrorIs(t, err, sdkerr.ErrConfiguration)
}

func TestLoadConfigRejects(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"missing file", ""},
		{"malformed toml", "[general\nrpc_url ="},
		{"no rpc url", "[general]\nchain_id = 4\n"},
		{"bad timeout", "[general]\nrpc_url = \"http://x\"\nreceipt_timeout = \"soon\"\n"},
		{"bad contract kind", "[general]\nrpc_url = \"http://x\"\n[[deployments]]\nchain_id = 9\n[deployments.contracts]\nvault = \"0x0000000000000000000000000000000000000001\"\n"},
		{"bad address", "[general]\nrpc_url = \"http://x\"\n[[deployments]]\nchain_id = 9\n[deployments.contracts]\nbuyout = \"0x12\"\n"},
		{"bad proof hash", "[general]\nrpc_url = \"http://x\"\n[[proofs]]\nchain_id = 4\nmodules = [\"Buyout\"]\nburn = [\"0xabc\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "missing.toml")
			if tt.body != "" {
				path = writeConfig(t, tt.body)
			}
			_, err := LoadConfig(path)
			assert.ErrorIs(t, err, sdkerr.ErrConfiguration)
		})
	}
}

func TestSaveThenLoad(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Proofs = []ProofConfig{NewProofConfig(4, []string{"BaseVault", "Buyout", "Migration"}, proofs.Bundle{
		Burn: proofs.Proof{{0xaa}},
	})}
	path := filepath.Join(t.TempDir(), HomeDir, "config.toml")
	require.NoError(t, cfg.Save(path))

	loaded, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.General, loaded.General)
	assert.Equal(t, cfg.Server, loaded.Server)

	store, err := loaded.ProofStore()
	require.NoError(t, err)
	burn, err := store.Proof(4, []string{"BaseVault", "Buyout", "Migration"}, proofs.Burn)
	require.NoError(t, err)
	require.Len(t, burn, 1)
	assert.Equal(t, byte(0xaa), burn[0][0])
}

func TestPrivateKey(t *testing.T) {
	cfg := DefaultConfig()
	cfg.General.PrivateKeyEnv = "TEST_VAULT_KEY"

	t.Setenv("TEST_VAULT_KEY", "")
	key, err := cfg.PrivateKey()
	require.NoError(t, err)
	assert.Nil(t, key)

	t.Setenv("TEST_VAULT_KEY", "0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	key, err = cfg.PrivateKey()
	require.NoError(t, err)
	assert.Equal(t, common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"), crypto.PubkeyToAddress(key.PublicKey))

	t.Setenv("TEST_VAULT_KEY", "not-a-key")
	_, err = cfg.PrivateKey()
	assert.ErrorIs(t, err, sdkerr.ErrConfiguration)
}
