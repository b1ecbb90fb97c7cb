package commands

import (
	"context"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/fractional-company/vault-sdk-go/vault"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// LPDACmd groups the drop-price auction commands.
var LPDACmd = &cobra.Command{
	Use:   "lpda",
	Short: "Read and drive the LPDA auction of a vault",
}

var lpdaInfoCmd = &cobra.Command{
	Use:   "info [vault]",
	Short: "Show auction parameters, state and price",
	Args:  cobra.ExactArgs(1),
	RunE: withLPDA(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		a := v.LPDA
		var out struct {
			Info         *types.LPDAInfo  `json:"info"`
			State        types.LPDAState  `json:"state"`
			CurrentPrice string           `json:"currentPriceEth"`
			FeeReceiver  common.Address   `json:"feeReceiver"`
			Minters      []common.Address `json:"minters"`
		}
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() (err error) { out.Info, err = a.Info(ctx); return })
		g.Go(func() (err error) { out.State, err = a.State(ctx); return })
		g.Go(func() error {
			price, err := a.CurrentPrice(ctx)
			out.CurrentPrice = types.FormatEther(price)
			return err
		})
		g.Go(func() (err error) { out.FeeReceiver, err = a.FeeReceiver(ctx); return })
		g.Go(func() (err error) { out.Minters, err = a.Minters(ctx); return })
		if err := g.Wait(); err != nil {
			return err
		}
		return printJSON(cmd, out)
	}),
}

var lpdaBidsCmd = &cobra.Command{
	Use:   "bids [vault]",
	Short: "List the bids entered so far",
	Args:  cobra.ExactArgs(1),
	RunE: withLPDA(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		bids, err := v.LPDA.Bids(cmd.Context())
		if err != nil {
			return err
		}
		return printJSON(cmd, bids)
	}),
}

var lpdaRefundCmd = &cobra.Command{
	Use:   "refund [vault] [user]",
	Short: "Show what a bidder contributed and is owed",
	Args:  cobra.ExactArgs(2),
	RunE: withLPDA(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		user, err := parseAddress("user", args[1])
		if err != nil {
			return err
		}
		a := v.LPDA
		var out struct {
			Contributed string `json:"contributedEth"`
			Refunded    string `json:"refundedEth"`
			Owed        string `json:"owedEth"`
			Minted      string `json:"minted"`
		}
		g, ctx := errgroup.WithContext(cmd.Context())
		g.Go(func() error {
			n, err := a.BalanceContributed(ctx, user)
			out.Contributed = types.FormatEther(n)
			return err
		})
		g.Go(func() error {
			n, err := a.BalanceRefunded(ctx, user)
			out.Refunded = types.FormatEther(n)
			return err
		})
		g.Go(func() error {
			n, err := a.RefundOwed(ctx, user)
			out.Owed = types.FormatEther(n)
			return err
		})
		g.Go(func() error {
			n, err := a.NumMinted(ctx, user)
			if n != nil {
				out.Minted = n.String()
			}
			return err
		})
		if err := g.Wait(); err != nil {
			return err
		}
		return printJSON(cmd, out)
	}),
}

var lpdaBidCmd = &cobra.Command{
	Use:   "bid [vault] [amount]",
	Short: "Bid for fractions at the current price",
	Args:  cobra.ExactArgs(2),
	RunE: withLPDA(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		n, err := strconv.ParseUint(args[1], 10, 16)
		if err != nil {
			return sdkerr.Validation("vaultctl.lpda", "invalid amount %q", args[1])
		}
		amount := uint16(n)
		return rt.write(cmd, "lpda.enterBid", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.LPDA.EnterBid(ctx, amount) },
			func(ctx context.Context) (types.GasEstimate, error) { return v.LPDA.EstimateEnterBid(ctx, amount) },
		)
	}),
}

var lpdaRedeemCmd = &cobra.Command{
	Use:   "redeem [vault] [token] [id]",
	Short: "Return the NFT to the curator of an ended auction",
	Args:  cobra.ExactArgs(3),
	RunE: withLPDA(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		token, err := parseAddress("token", args[1])
		if err != nil {
			return err
		}
		id, err := parseBig("token id", args[2])
		if err != nil {
			return err
		}
		return rt.write(cmd, "lpda.redeemNFTCurator", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.LPDA.RedeemNFTCurator(ctx, token, id) },
			func(ctx context.Context) (types.GasEstimate, error) {
				return v.LPDA.EstimateRedeemNFTCurator(ctx, token, id)
			},
		)
	}),
}

var lpdaSettleCmd = &cobra.Command{
	Use:   "settle [vault]",
	Short: "Settle one minter (--minter, default the caller) or all of them (--all)",
	Args:  cobra.ExactArgs(1),
	RunE: withLPDA(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		if all, _ := cmd.Flags().GetBool("all"); all {
			return rt.write(cmd, "lpda.settleAll", v.Address, v.LPDA.SettleAllAddresses, v.LPDA.EstimateSettleAllAddresses)
		}
		var minter *common.Address
		if raw, _ := cmd.Flags().GetString("minter"); raw != "" {
			addr, err := parseAddress("minter", raw)
			if err != nil {
				return err
			}
			minter = &addr
		}
		return rt.write(cmd, "lpda.settleAddress", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.LPDA.SettleAddress(ctx, minter) },
			func(ctx context.Context) (types.GasEstimate, error) { return v.LPDA.EstimateSettleAddress(ctx, minter) },
		)
	}),
}

var lpdaSettleCuratorCmd = &cobra.Command{
	Use:   "settle-curator [vault]",
	Short: "Pay the curator the proceeds of a successful auction",
	Args:  cobra.ExactArgs(1),
	RunE: withLPDA(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		return rt.write(cmd, "lpda.settleCurator", v.Address, v.LPDA.SettleCurator, v.LPDA.EstimateSettleCurator)
	}),
}

var lpdaFeeReceiverCmd = &cobra.Command{
	Use:   "fee-receiver [vault] [receiver]",
	Short: "Change the protocol fee receiver",
	Args:  cobra.ExactArgs(2),
	RunE: withLPDA(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		receiver, err := parseAddress("receiver", args[1])
		if err != nil {
			return err
		}
		return rt.write(cmd, "lpda.updateFeeReceiver", v.Address,
			func(ctx context.Context) (*types.Receipt, error) { return v.LPDA.UpdateFeeReceiver(ctx, receiver) },
			func(ctx context.Context) (types.GasEstimate, error) {
				return v.LPDA.EstimateUpdateFeeReceiver(ctx, receiver)
			},
		)
	}),
}

func init() {
	lpdaSettleCmd.Flags().String("minter", "", "Minter to settle, default the caller")
	lpdaSettleCmd.Flags().Bool("all", false, "Settle every minter in one Multicall3 batch")

	addEstimateFlag(lpdaBidCmd, lpdaRedeemCmd, lpdaSettleCmd, lpdaSettleCuratorCmd, lpdaFeeReceiverCmd)
	LPDACmd.AddCommand(lpdaInfoCmd, lpdaBidsCmd, lpdaRefundCmd, lpdaBidCmd, lpdaRedeemCmd,
		lpdaSettleCmd, lpdaSettleCuratorCmd, lpdaFeeReceiverCmd)
}

func withLPDA(fn vaultRunFunc) func(*cobra.Command, []string) error {
	return withVault(func(cmd *cobra.Command, rt *runtime, v *vault.Vault, args []string) error {
		if v.LPDA == nil {
			return sdkerr.Configuration("vaultctl.lpda", "vault %s has no LPDA module (modules: %v)", v.Address.Hex(), v.Modules)
		}
		return fn(cmd, rt, v, args)
	})
}
