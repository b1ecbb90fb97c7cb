package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fractional-company/vault-sdk-go/cmd/vaultctl/commands"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "vaultctl",
		Short: "Command line client for fractional vaults",
		Long: `vaultctl reads and drives fractional vaults on EVM chains: buyout and LPDA
auctions, vault deployment, token deposits and permission proofs.
Settings come from ~/.vaultctl/config.toml; run "vaultctl init" first.`,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file, default ~/.vaultctl/config.toml")

	rootCmd.AddCommand(commands.InitCmd)
	rootCmd.AddCommand(commands.AccountCmd)
	rootCmd.AddCommand(commands.BuyoutCmd)
	rootCmd.AddCommand(commands.LPDACmd)
	rootCmd.AddCommand(commands.DeployCmd)
	rootCmd.AddCommand(commands.DepositCmd)
	rootCmd.AddCommand(commands.ProofsCmd)
	rootCmd.AddCommand(commands.JournalCmd)
	rootCmd.AddCommand(commands.ServeCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
