package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/fractional-company/vault-sdk-go/vault"
	"github.com/spf13/cobra"
)

// BuyoutCmd groups the buyout auction commands.
var BuyoutCmd = &cobra.Command{
	Use:   "buyout",
	Short: "Read and drive the buyout auction of a vault",
}

var buyoutInfoCmd = &cobra.Command{
	Use:   "info [vault]",
	Short: "Show the derived buyout auction state",
	Args:  cobra.ExactArgs(1),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		info, err := v.Buyout.Reader().Info(cmd.Context(), v.Address)
		if err != nil {
			return err
		}
		return printJSON(cmd, info)
	}),
}

var buyoutHoldingCmd = &cobra.Command{
	Use:   "holding [vault] [owner]",
	Short: "Show the fraction balance and approval of an owner",
	Args:  cobra.ExactArgs(2),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		owner, err := parseAddress("owner", args[1])
		if err != nil {
			return err
		}
		h, err := v.Buyout.Reader().Holding(cmd.Context(), v.Address, owner)
		if err != nil {
			return err
		}
		return printJSON(cmd, h)
	}),
}

var buyoutApproveCmd = &cobra.Command{
	Use:   "approve [vault]",
	Short: "Approve the buyout module to move your fractions",
	Long: `Grant the Buyout module operator approval over the caller's fractions of
the vault, which "buyout start" requires. --revoke withdraws it.`,
	Args: cobra.ExactArgs(1),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		revoke, _ := cmd.Flags().GetBool("revoke")
		return rt.write(cmd, "buyout.approve", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.ApproveBuyout(ctx, !revoke) },
			func(ctx context.Context) (types.GasEstimate, error) { return v.EstimateApproveBuyout(ctx, !revoke) },
		)
	}),
}

var buyoutStartCmd = &cobra.Command{
	Use:   "start [vault] [bid-eth]",
	Short: "Start a buyout with an ETH bid such as 0.5",
	Args:  cobra.ExactArgs(2),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		bid := args[1]
		return rt.write(cmd, "buyout.start", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.Buyout.Start(ctx, v.Address, bid) },
			func(ctx context.Context) (types.GasEstimate, error) { return v.Buyout.EstimateStart(ctx, v.Address, bid) },
		)
	}),
}

var buyoutSellCmd = &cobra.Command{
	Use:   "sell [vault] [amount]",
	Short: "Sell fractions into a live auction",
	Args:  cobra.ExactArgs(2),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		n, err := parseBig("amount", args[1])
		if err != nil {
			return err
		}
		return rt.write(cmd, "buyout.sell", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.Buyout.SellFractions(ctx, v.Address, n) },
			func(ctx context.Context) (types.GasEstimate, error) { return v.Buyout.EstimateSellFractions(ctx, v.Address, n) },
		)
	}),
}

var buyoutBuyCmd = &cobra.Command{
	Use:   "buy [vault] [amount]",
	Short: "Buy fractions from the auction pool",
	Args:  cobra.ExactArgs(2),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		n, err := parseBig("amount", args[1])
		if err != nil {
			return err
		}
		return rt.write(cmd, "buyout.buy", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.Buyout.BuyFractions(ctx, v.Address, n) },
			func(ctx context.Context) (types.GasEstimate, error) { return v.Buyout.EstimateBuyFractions(ctx, v.Address, n) },
		)
	}),
}

var buyoutEndCmd = &cobra.Command{
	Use:   "end [vault]",
	Short: "End an auction after its rejection period",
	Args:  cobra.ExactArgs(1),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		return rt.write(cmd, "buyout.end", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.Buyout.End(ctx, v.Address) },
			func(ctx context.Context) (types.GasEstimate, error) { return v.Buyout.EstimateEnd(ctx, v.Address) },
		)
	}),
}

var buyoutRedeemCmd = &cobra.Command{
	Use:   "redeem [vault]",
	Short: "Redeem the vault by burning the entire supply",
	Args:  cobra.ExactArgs(1),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		return rt.write(cmd, "buyout.redeem", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.Buyout.Redeem(ctx, v.Address) },
			func(ctx context.Context) (types.GasEstimate, error) { return v.Buyout.EstimateRedeem(ctx, v.Address) },
		)
	}),
}

var buyoutCashCmd = &cobra.Command{
	Use:   "cash [vault]",
	Short: "Burn fractions for a share of a successful buyout",
	Args:  cobra.ExactArgs(1),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		return rt.write(cmd, "buyout.cash", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.Buyout.CashProceeds(ctx, v.Address) },
			func(ctx context.Context) (types.GasEstimate, error) { return v.Buyout.EstimateCashProceeds(ctx, v.Address) },
		)
	}),
}

var buyoutWithdrawCmd = &cobra.Command{
	Use:   "withdraw [vault]",
	Short: "Withdraw vault assets after a successful buyout",
	Args:  cobra.ExactArgs(1),
	RunE: withBuyout(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		tokens, err := tokensFlag(cmd)
		if err != nil {
			return err
		}
		return rt.write(cmd, "buyout.withdraw", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.Buyout.WithdrawTokens(ctx, v.Address, tokens) },
			func(ctx context.Context) (types.GasEstimate, error) {
				return v.Buyout.EstimateWithdrawTokens(ctx, v.Address, tokens)
			},
		)
	}),
}

func init() {
	buyoutWithdrawCmd.Flags().String("tokens", "", "JSON file with the token list")
	buyoutWithdrawCmd.MarkFlagRequired("tokens")

	buyoutApproveCmd.Flags().Bool("revoke", false, "Revoke the approval instead of granting it")

	addEstimateFlag(buyoutApproveCmd, buyoutStartCmd, buyoutSellCmd, buyoutBuyCmd, buyoutEndCmd, buyoutRedeemCmd, buyoutCashCmd, buyoutWithdrawCmd)
	BuyoutCmd.AddCommand(buyoutInfoCmd, buyoutHoldingCmd, buyoutApproveCmd, buyoutStartCmd, buyoutSellCmd, buyoutBuyCmd,
		buyoutEndCmd, buyoutRedeemCmd, buyoutCashCmd, buyoutWithdrawCmd)
}

type vaultRunFunc func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error

// withVault opens the vault named by the first argument around fn.
func withVault(fn vaultRunFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := setup(cmd)
		if err != nil {
			return err
		}
		defer rt.close()
		v, err := rt.open(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		return fn(cmd, rt, v, args)
	}
}

func withBuyout(fn vaultRunFunc) func(*cobra.Command, []string) error {
	return withVault(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		if v.Buyout == nil {
			return sdkerr.Configuration("vaultctl.buyout", "vault %s has no buyout module (modules: %v)", v.Address.Hex(), v.Modules)
		}
		return fn(cmd, rt, v, args)
	})
}

// tokensFlag reads the --tokens JSON file: an array of
// {"standard","address","id","amount","receiver"} objects.
func tokensFlag(cmd *cobra.Command) ([]types.Token, error) {
	path, _ := cmd.Flags().GetString("tokens")
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read token list: %w", err)
	}
	var tokens []types.Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, sdkerr.Validation("vaultctl.tokens", "invalid token list %s: %v", path, err)
	}
	return tokens, nil
}
