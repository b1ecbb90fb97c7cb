package config

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/pelletier/go-toml"
)

// HomeDir is the directory under the user's home holding config and data.
const HomeDir = ".vaultctl"

// Config holds the application configuration
type Config struct {
	General     GeneralConfig      `toml:"general"`
	Database    DatabaseConfig     `toml:"database"`
	Server      ServerConfig       `toml:"server"`
	Deployments []DeploymentConfig `toml:"deployments,omitempty"`
	Proofs      []ProofConfig      `toml:"proofs,omitempty"`
}

// GeneralConfig holds chain connection settings
type GeneralConfig struct {
	RPCURL  string `toml:"rpc_url"`
	ChainID uint64 `toml:"chain_id"`
	// PrivateKeyEnv names the environment variable holding the signing key.
	// The key itself is never written to the config file.
	PrivateKeyEnv  string `toml:"private_key_env"`
	ReceiptTimeout string `toml:"receipt_timeout"`
	PermitTTL      string `toml:"permit_ttl"`
	LogLevel       string `toml:"log_level"`
}

// DatabaseConfig holds database paths
type DatabaseConfig struct {
	CachePath string `toml:"cache_path"`
}

type ServerConfig struct {
	ListenAddr string `toml:"listen_addr"`
}

// DeploymentConfig adds or replaces a contract deployment. Contracts maps a
// contract kind (BUYOUT, LPDA, ...) to its address.
type DeploymentConfig struct {
	ChainID   uint64            `toml:"chain_id"`
	Name      string            `toml:"name"`
	Modules   []string          `toml:"modules"`
	Contracts map[string]string `toml:"contracts"`
}

// ProofConfig is the proof bundle of one module set, as hex hashes.
type ProofConfig struct {
	ChainID              uint64   `toml:"chain_id"`
	Modules              []string `toml:"modules"`
	Mint                 []string `toml:"mint,omitempty"`
	Redeem               []string `toml:"redeem,omitempty"`
	Burn                 []string `toml:"burn,omitempty"`
	WithdrawERC20        []string `toml:"withdraw_erc20,omitempty"`
	WithdrawERC721       []string `toml:"withdraw_erc721,omitempty"`
	WithdrawERC1155      []string `toml:"withdraw_erc1155,omitempty"`
	BatchWithdrawERC1155 []string `toml:"batch_withdraw_erc1155,omitempty"`
}

func (p ProofConfig) slots() map[proofs.Operation][]string {
	return map[proofs.Operation][]string{
		proofs.Mint:                 p.Mint,
		proofs.Redeem:               p.Redeem,
		proofs.Burn:                 p.Burn,
		proofs.WithdrawERC20:        p.WithdrawERC20,
		proofs.WithdrawERC721:       p.WithdrawERC721,
		proofs.WithdrawERC1155:      p.WithdrawERC1155,
		proofs.BatchWithdrawERC1155: p.BatchWithdrawERC1155,
	}
}

// NewProofConfig renders a bundle back into its config form.
func NewProofConfig(chainID uint64, modules []string, b proofs.Bundle) ProofConfig {
	hexes := func(p proofs.Proof) []string {
		out := make([]string, len(p))
		for i, h := range p {
			out[i] = common.Hash(h).Hex()
		}
		return out
	}
	return ProofConfig{
		ChainID:              chainID,
		Modules:              append([]string(nil), modules...),
		Mint:                 hexes(b.Mint),
		Redeem:               hexes(b.Redeem),
		Burn:                 hexes(b.Burn),
		WithdrawERC20:        hexes(b.WithdrawERC20),
		WithdrawERC721:       hexes(b.WithdrawERC721),
		WithdrawERC1155:      hexes(b.WithdrawERC1155),
		BatchWithdrawERC1155: hexes(b.BatchWithdrawERC1155),
	}
}

// DefaultConfig returns the configuration written by init.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			RPCURL:         "http://127.0.0.1:8545",
			ChainID:        registry.ChainRinkeby,
			PrivateKeyEnv:  "VAULT_PRIVATE_KEY",
			ReceiptTimeout: "5m",
			PermitTTL:      "20m",
			LogLevel:       "info",
		},
		Database: DatabaseConfig{
			CachePath: "./data/cache",
		},
		Server: ServerConfig{
			ListenAddr: ":8080",
		},
	}
}

// DefaultPath is ~/.vaultctl/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, HomeDir, "config.toml"), nil
}

// LoadConfig reads from config.toml and returns Config struct
func LoadConfig(path string) (Config, error) {
	var cfg Config
	file, err := os.ReadFile(path)
	if err != nil {
		return cfg, &sdkerr.Error{Kind: sdkerr.KindConfiguration, Op: "config.load", Msg: "failed to read config file", Err: err}
	}

	err = toml.Unmarshal(file, &cfg)
	if err != nil {
		return cfg, &sdkerr.Error{Kind: sdkerr.KindConfiguration, Op: "config.load", Msg: "failed to parse config file", Err: err}
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Save writes the config to path, creating its directory.
func (c Config) Save(path string) error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks the fields that are parsed lazily elsewhere.
func (c Config) Validate() error {
	const op = "config.validate"
	if strings.TrimSpace(c.General.RPCURL) == "" {
		return sdkerr.Configuration(op, "general.rpc_url is required")
	}
	if _, err := c.ReceiptTimeout(); err != nil {
		return err
	}
	if _, err := c.PermitTTL(); err != nil {
		return err
	}
	if _, err := c.Registry(); err != nil {
		return err
	}
	if _, err := c.ProofStore(); err != nil {
		return err
	}
	return nil
}

func duration(op, field, s string, def time.Duration) (time.Duration, error) {
	if strings.TrimSpace(s) == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return 0, sdkerr.Configuration(op, "invalid %s %q", field, s)
	}
	return d, nil
}

// ReceiptTimeout bounds how long a submitted transaction is awaited.
func (c Config) ReceiptTimeout() (time.Duration, error) {
	return duration("config.receiptTimeout", "general.receipt_timeout", c.General.ReceiptTimeout, 5*time.Minute)
}

func (c Config) PermitTTL() (time.Duration, error) {
	return duration("config.permitTTL", "general.permit_ttl", c.General.PermitTTL, 20*time.Minute)
}

// Registry merges the configured deployments over the built-in ones. A
// configured deployment replaces a built-in one of the same chain and name.
func (c Config) Registry() (*registry.Registry, error) {
	const op = "config.deployments"
	all := registry.DefaultDeployments()
	for i, d := range c.Deployments {
		if d.ChainID == 0 {
			return nil, sdkerr.Configuration(op, "deployment %d: chain_id is required", i)
		}
		dep := registry.Deployment{
			Name:      d.Name,
			Modules:   d.Modules,
			Contracts: make(map[registry.Kind]common.Address, len(d.Contracts)),
		}
		for k, addr := range d.Contracts {
			kind, err := registry.ParseKind(strings.ToUpper(strings.TrimSpace(k)))
			if err != nil {
				return nil, err
			}
			if !common.IsHexAddress(addr) {
				return nil, sdkerr.Configuration(op, "deployment %s: invalid %s address %q", d.Name, kind, addr)
			}
			dep.Contracts[kind] = common.HexToAddress(addr)
		}

		replaced := false
		for j, existing := range all[d.ChainID] {
			if d.Name != "" && existing.Name == d.Name {
				all[d.ChainID][j] = dep
				replaced = true
				break
			}
		}
		if !replaced {
			all[d.ChainID] = append(all[d.ChainID], dep)
		}
	}
	return registry.New(all)
}

// ProofStore builds the proof table from the [[proofs]] entries.
func (c Config) ProofStore() (*proofs.Store, error) {
	const op = "config.proofs"
	entries := make([]proofs.Entry, 0, len(c.Proofs))
	for i, p := range c.Proofs {
		var b proofs.Bundle
		for opName, hexes := range p.slots() {
			proof := make(proofs.Proof, 0, len(hexes))
			for _, h := range hexes {
				raw, err := hexutil.Decode(strings.TrimSpace(h))
				if err != nil || len(raw) != common.HashLength {
					return nil, sdkerr.Configuration(op, "proofs %d: invalid %s hash %q", i, opName, h)
				}
				proof = append(proof, common.BytesToHash(raw))
			}
			if err := b.Set(opName, proof); err != nil {
				return nil, err
			}
		}
		entries = append(entries, proofs.Entry{ChainID: p.ChainID, Modules: p.Modules, Bundle: b})
	}
	return proofs.NewStore(entries...)
}

// PrivateKey reads the signing key from the configured environment variable.
// It returns nil without error when the variable is unset, meaning read-only.
func (c Config) PrivateKey() (*ecdsa.PrivateKey, error) {
	if c.General.PrivateKeyEnv == "" {
		return nil, nil
	}
	raw := strings.TrimSpace(os.Getenv(c.General.PrivateKeyEnv))
	if raw == "" {
		return nil, nil
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, sdkerr.Configuration("config.privateKey", "invalid private key in $%s", c.General.PrivateKeyEnv)
	}
	return key, nil
}
