package commands

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/cobra"
)

// JournalCmd lists the operations this machine submitted.
var JournalCmd = &cobra.Command{
	Use:   "journal",
	Short: "List journaled transactions on the configured chain",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup(cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		var filter common.Address
		if raw, _ := cmd.Flags().GetString("vault"); raw != "" {
			if filter, err = parseAddress("vault", raw); err != nil {
				return err
			}
		}
		entries, err := rt.store.Journal(rt.chainID, filter)
		if err != nil {
			return err
		}
		return printJSON(cmd, entries)
	},
}

func init() {
	JournalCmd.Flags().String("vault", "", "Only show operations on this vault")
}
