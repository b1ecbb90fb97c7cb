package commands

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fractional-company/vault-sdk-go/config"
	"github.com/spf13/cobra"
)

// InitCmd represents the init command
var InitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the vaultctl configuration",
	Long: `Create ~/.vaultctl/config.toml (or --config) with the default settings and
the data directory for the local cache. An existing file is kept unless
--force is given.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return initCommand(cmd)
	},
}

func init() {
	InitCmd.Flags().String("rpc-url", "http://127.0.0.1:8545", "JSON-RPC endpoint of the node")
	InitCmd.Flags().Uint64("chain-id", 0, "Expected chain id, default the built-in Rinkeby deployment")
	InitCmd.Flags().String("key-env", "VAULT_PRIVATE_KEY", "Environment variable holding the signing key")
	InitCmd.Flags().String("listen-addr", ":8080", "Listen address of vaultctl serve")
	InitCmd.Flags().Bool("force", false, "Overwrite an existing config file")
}

func initCommand(cmd *cobra.Command) error {
	rpcURL, _ := cmd.Flags().GetString("rpc-url")
	chainID, _ := cmd.Flags().GetUint64("chain-id")
	keyEnv, _ := cmd.Flags().GetString("key-env")
	listenAddr, _ := cmd.Flags().GetString("listen-addr")
	force, _ := cmd.Flags().GetBool("force")

	log := newLogger("info")

	path, err := configPath(cmd)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err == nil && !force {
		return fmt.Errorf("config file %s already exists, use --force to overwrite", path)
	}

	cfg := config.DefaultConfig()
	cfg.General.RPCURL = rpcURL
	if chainID != 0 {
		cfg.General.ChainID = chainID
	}
	cfg.General.PrivateKeyEnv = keyEnv
	cfg.Server.ListenAddr = listenAddr
	if err := cfg.Validate(); err != nil {
		return err
	}

	dataDir := filepath.Join(filepath.Dir(path), filepath.Dir(cfg.Database.CachePath))
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %v", dataDir, err)
	}
	if err := cfg.Save(path); err != nil {
		return fmt.Errorf("failed to create config file: %v", err)
	}
	log.Infof("Created config file at: %s", path)

	fmt.Println("\n=== Configuration Summary ===")
	fmt.Printf("RPC URL: %s\n", cfg.General.RPCURL)
	fmt.Printf("Chain ID: %d\n", cfg.General.ChainID)
	fmt.Printf("Key variable: $%s\n", cfg.General.PrivateKeyEnv)
	fmt.Printf("Cache: %s\n", cfg.Database.CachePath)
	fmt.Printf("Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("Config File: %s\n", path)

	log.Info("Initialization completed successfully!")
	log.Infof("Export $%s to sign transactions; without it every command is read-only.", cfg.General.PrivateKeyEnv)
	log.Info("Fetch proofs for a module set with: vaultctl proofs fetch --modules BaseVault,Buyout,Migration --write")
	return nil
}
