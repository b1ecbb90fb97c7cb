package commands

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/server"
	"github.com/fractional-company/vault-sdk-go/vault"
	"github.com/spf13/cobra"
)

// ServeCmd represents the serve command
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve vault state over HTTP",
	Long: `Serve the read API and the LPDA bid stream on the listen address from
~/.vaultctl/config.toml. The server never signs, so no key is needed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand(cmd)
	},
}

func init() {
	ServeCmd.Flags().String("listen", "", "Override server.listen_addr")
}

func serveCommand(cmd *cobra.Command) error {
	rt, err := setup(cmd)
	if err != nil {
		return err
	}
	defer rt.close()

	addr := rt.cfg.Server.ListenAddr
	if override, _ := cmd.Flags().GetString("listen"); override != "" {
		addr = override
	}

	open := func(ctx context.Context, address common.Address) (*vault.Vault, error) {
		return vault.Open(ctx, rt.deps, address)
	}
	srv := server.New(open, rt.store, rt.chainID, rt.log)
	if err := srv.Run(addr); err != nil {
		rt.log.Errorf("Server failed: %v", err)
		return err
	}
	return nil
}
