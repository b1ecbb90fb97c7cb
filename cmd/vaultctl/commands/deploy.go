package commands

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/fractional-company/vault-sdk-go/vault"
	"github.com/spf13/cobra"
)

// DeployCmd groups the vault factory commands.
var DeployCmd = &cobra.Command{
	Use:   "deploy",
	Short: "Deploy new vaults",
}

var deployVaultCmd = &cobra.Command{
	Use:   "vault",
	Short: "Deploy a vault through BaseVault",
	Args:  cobra.NoArgs,
	RunE: withFactory(func(cmd *cobra.Command, rt *runtime, f *vault.Factory, args []string) error {
		supply, _ := cmd.Flags().GetString("supply")
		modules, _ := cmd.Flags().GetString("modules")
		targets, _ := cmd.Flags().GetStringSlice("target")
		selectors, _ := cmd.Flags().GetStringSlice("selector")

		n, err := parseBig("supply", supply)
		if err != nil {
			return err
		}
		p := vault.DeployParams{
			FractionSupply: n,
			Modules:        splitList(modules),
			Targets:        targets,
			Selectors:      selectors,
		}
		return deployed(cmd, rt, "vault.deploy",
			func(ctx context.Context) (*vault.Deployed, error) { return f.Deploy(ctx, p) },
			func(ctx context.Context) (types.GasEstimate, error) { return f.EstimateDeploy(ctx, p) },
		)
	}),
}

var deployArtEnjoyerCmd = &cobra.Command{
	Use:   "art-enjoyer",
	Short: "Deploy a vault whose fractions are sold by an LPDA",
	Args:  cobra.NoArgs,
	RunE: withFactory(func(cmd *cobra.Command, rt *runtime, f *vault.Factory, args []string) error {
		p, err := artEnjoyerParams(cmd)
		if err != nil {
			return err
		}
		if p.Curator == (common.Address{}) {
			if p.Curator, err = rt.deps.Exec.Connection().Address(); err != nil {
				return err
			}
		}
		return deployed(cmd, rt, "vault.deployArtEnjoyer",
			func(ctx context.Context) (*vault.Deployed, error) { return f.DeployArtEnjoyer(ctx, p) },
			func(ctx context.Context) (types.GasEstimate, error) { return f.EstimateDeployArtEnjoyer(ctx, p) },
		)
	}),
}

// DepositCmd moves tokens from a holder into a vault.
var DepositCmd = &cobra.Command{
	Use:   "deposit [vault]",
	Short: "Deposit ERC20/721/1155 tokens into a vault",
	Args:  cobra.ExactArgs(1),
	RunE: withFactory(func(cmd *cobra.Command, rt *runtime, f *vault.Factory, args []string) error {
		v, err := parseAddress("vault", args[0])
		if err != nil {
			return err
		}
		var from common.Address
		if raw, _ := cmd.Flags().GetString("from"); raw != "" {
			if from, err = parseAddress("from", raw); err != nil {
				return err
			}
		}
		tokens, err := tokensFlag(cmd)
		if err != nil {
			return err
		}
		return rt.write(cmd, "vault.deposit", v,
			func(ctx context.Context) (*types.Receipt, error) { return f.DepositTokens(ctx, v, from, tokens) },
			func(ctx context.Context) (types.GasEstimate, error) { return f.EstimateDepositTokens(ctx, v, from, tokens) },
		)
	}),
}

var depositApproveCmd = &cobra.Command{
	Use:   "approve",
	Short: "Approve BaseVault to pull the tokens of a deposit",
	Long: `Send the approvals "vaultctl deposit" needs: an ERC20 allowance for the
summed amount of each token and an operator approval for each ERC721 or
ERC1155 contract. Approvals already in place are skipped. --plan only prints
what is missing.`,
	Args: cobra.NoArgs,
	RunE: withFactory(func(cmd *cobra.Command, rt *runtime, f *vault.Factory, args []string) error {
		ctx := cmd.Context()
		tokens, err := tokensFlag(cmd)
		if err != nil {
			return err
		}
		approver, err := f.DepositApprover()
		if err != nil {
			return err
		}
		if plan, _ := cmd.Flags().GetBool("plan"); plan {
			owner, err := rt.deps.Exec.Connection().Address()
			if err != nil {
				return err
			}
			p, err := approver.Plan(ctx, owner, tokens)
			if err != nil {
				return err
			}
			return printJSON(cmd, p)
		}
		if only, _ := cmd.Flags().GetBool("estimate"); only {
			ests, err := approver.EstimateGrant(ctx, tokens)
			if err != nil {
				return err
			}
			return printJSON(cmd, ests)
		}
		receipts, err := approver.Grant(ctx, tokens)
		for _, r := range receipts {
			rt.record("tokens.approve", common.Address{}, r)
		}
		if err != nil {
			return err
		}
		rt.log.Infof("Sent %d approvals for %s", len(receipts), approver.Operator().Hex())
		return printJSON(cmd, receipts)
	}),
}

func init() {
	deployVaultCmd.Flags().String("supply", "", "Fraction supply to mint")
	deployVaultCmd.Flags().String("modules", "BaseVault,Buyout,Migration", "Comma separated module names")
	deployVaultCmd.Flags().StringSlice("target", nil, "Plugin target module (repeatable)")
	deployVaultCmd.Flags().StringSlice("selector", nil, "Plugin selector, signature or 0x-prefixed 4 bytes (repeatable)")
	deployVaultCmd.MarkFlagRequired("supply")

	fl := deployArtEnjoyerCmd.Flags()
	fl.String("curator", "", "Curator address, default the caller")
	fl.String("token", "", "NFT contract to fractionalize")
	fl.String("token-id", "", "NFT token id")
	fl.String("start", "", "Auction start, RFC 3339 or unix seconds")
	fl.String("end", "", "Auction end, RFC 3339 or unix seconds")
	fl.Uint64("drop-per-second", 0, "Price drop per second in wei")
	fl.String("start-price", "", "Start price in ETH")
	fl.String("end-price", "", "End price in ETH")
	fl.String("min-bid", "", "Minimum bid in ETH")
	fl.Uint16("supply", 0, "Fractions for sale")
	for _, name := range []string{"token", "token-id", "start", "end", "start-price", "end-price", "min-bid", "supply"} {
		deployArtEnjoyerCmd.MarkFlagRequired(name)
	}

	DepositCmd.Flags().String("tokens", "", "JSON file with the token list")
	DepositCmd.Flags().String("from", "", "Token holder, default the caller")
	DepositCmd.MarkFlagRequired("tokens")

	depositApproveCmd.Flags().String("tokens", "", "JSON file with the token list")
	depositApproveCmd.Flags().Bool("plan", false, "Print the approvals and whether each is granted")
	depositApproveCmd.MarkFlagRequired("tokens")

	addEstimateFlag(deployVaultCmd, deployArtEnjoyerCmd, DepositCmd, depositApproveCmd)
	DeployCmd.AddCommand(deployVaultCmd, deployArtEnjoyerCmd)
	DepositCmd.AddCommand(depositApproveCmd)
}

type factoryRunFunc func(cmd *cobra.Command, rt *runtime, f *vault.Factory, args []string) error

func withFactory(fn factoryRunFunc) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		rt, err := setup(cmd)
		if err != nil {
			return err
		}
		defer rt.close()
		f, err := vault.NewFactory(cmd.Context(), rt.deps)
		if err != nil {
			return err
		}
		return fn(cmd, rt, f, args)
	}
}

func deployed(cmd *cobra.Command, rt *runtime, op string,
	send func(context.Context) (*vault.Deployed, error),
	estimate func(context.Context) (types.GasEstimate, error),
) error {
	ctx := cmd.Context()
	if only, _ := cmd.Flags().GetBool("estimate"); only {
		est, err := estimate(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd, est)
	}
	d, err := send(ctx)
	if err != nil {
		return err
	}
	rt.log.Infof("Deployed vault %s tx=%s", d.Vault.Hex(), d.Receipt.TxHash.Hex())
	rt.record(op, d.Vault, d.Receipt)
	if d.Token != nil {
		if err := rt.store.PutToken(rt.chainID, d.Vault, *d.Token); err != nil {
			rt.log.Warnf("Failed to cache token of vault %s: %v", d.Vault.Hex(), err)
		}
	}
	return printJSON(cmd, d)
}

func artEnjoyerParams(cmd *cobra.Command) (vault.ArtEnjoyerParams, error) {
	fl := cmd.Flags()
	get := func(name string) string {
		s, _ := fl.GetString(name)
		return s
	}
	var (
		p   vault.ArtEnjoyerParams
		err error
	)
	if raw := get("curator"); raw != "" {
		if p.Curator, err = parseAddress("curator", raw); err != nil {
			return p, err
		}
	}
	if p.Token, err = parseAddress("token", get("token")); err != nil {
		return p, err
	}
	if p.TokenID, err = parseBig("token id", get("token-id")); err != nil {
		return p, err
	}
	if p.StartTime, err = parseTime("start", get("start")); err != nil {
		return p, err
	}
	if p.EndTime, err = parseTime("end", get("end")); err != nil {
		return p, err
	}
	for _, f := range []struct {
		name string
		dst  **big.Int
	}{
		{"start-price", &p.StartPrice},
		{"end-price", &p.EndPrice},
		{"min-bid", &p.MinBid},
	} {
		wei, err := types.ParseEther(get(f.name))
		if err != nil {
			return p, sdkerr.Validation("vaultctl.deploy", "invalid %s: %v", f.name, err)
		}
		*f.dst = wei
	}
	p.DropPerSecond, _ = fl.GetUint64("drop-per-second")
	p.Supply, _ = fl.GetUint16("supply")
	return p, nil
}

// parseTime accepts unix seconds or an RFC 3339 timestamp.
func parseTime(name, raw string) (uint32, error) {
	if n, err := parseBig(name, raw); err == nil {
		if !n.IsUint64() || n.Uint64() > uint64(^uint32(0)) {
			return 0, sdkerr.Validation("vaultctl.deploy", "%s out of range: %s", name, raw)
		}
		return uint32(n.Uint64()), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return 0, sdkerr.Validation("vaultctl.deploy", "invalid %s %q", name, raw)
	}
	if t.Unix() < 0 || t.Unix() > int64(^uint32(0)) {
		return 0, sdkerr.Validation("vaultctl.deploy", "%s out of range: %s", name, raw)
	}
	return uint32(t.Unix()), nil
}
