package commands

import (
	"fmt"

	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/spf13/cobra"
)

// AccountCmd shows the account behind the configured key.
var AccountCmd = &cobra.Command{
	Use:   "account",
	Short: "Show the signing account and its balance",
	Long: `Show the address derived from the key in the configured environment
variable and its native balance. Keys are never created or stored here.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup(cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		conn := rt.deps.Exec.Connection()
		addr, err := conn.Address()
		if err != nil {
			return fmt.Errorf("no signing key in $%s: %w", rt.cfg.General.PrivateKeyEnv, err)
		}
		balance, err := conn.Balance(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Chain: %d\n", rt.chainID)
		fmt.Fprintf(out, "Address: %s\n", addr.Hex())
		fmt.Fprintf(out, "Balance: %s ETH\n", types.FormatEther(balance))
		return nil
	},
}
