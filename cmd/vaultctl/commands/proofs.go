package commands

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/config"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/spf13/cobra"
)

// ProofsCmd groups the permission proof commands.
var ProofsCmd = &cobra.Command{
	Use:   "proofs",
	Short: "Manage the permission proofs of module sets",
}

var proofsFetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Read the proofs of a module set from its factory contract",
	Long: `Ask the BaseVault (or, for sets without it, the LPDA) contract of the
configured chain to build the permission tree of a module set, and print the
proof of every operation. With --write the bundle is stored in the config file,
replacing any bundle of the same module set.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := setup(cmd)
		if err != nil {
			return err
		}
		defer rt.close()

		raw, _ := cmd.Flags().GetString("modules")
		modules := splitList(raw)
		key, err := proofs.Key(modules)
		if err != nil {
			return err
		}

		reg := rt.deps.Registry
		addrs := make([]common.Address, 0, len(modules))
		factoryKind := registry.LPDA
		for _, name := range modules {
			kind, ok := registry.ModuleKind(name)
			if !ok {
				return sdkerr.Validation("vaultctl.proofs", "unknown module %q", name)
			}
			if kind == registry.BaseVault {
				factoryKind = registry.BaseVault
			}
			addr, err := reg.Address(rt.chainID, kind, modules...)
			if err != nil {
				return err
			}
			addrs = append(addrs, addr)
		}
		factory, err := reg.Lookup(rt.chainID, factoryKind, modules...)
		if err != nil {
			return err
		}

		rt.log.Infof("Fetching proofs of %s from %s %s", key, factory.Kind, factory.Address.Hex())
		bundle, err := proofs.Fetch(cmd.Context(), rt.deps.Exec, factory.Address, factory.ABI, addrs)
		if err != nil {
			return err
		}
		entry := config.NewProofConfig(rt.chainID, modules, bundle)

		if write, _ := cmd.Flags().GetBool("write"); !write {
			return printJSON(cmd, entry)
		}
		replaced := false
		for i, p := range rt.cfg.Proofs {
			if p.ChainID != rt.chainID {
				continue
			}
			if k, err := proofs.Key(p.Modules); err == nil && k == key {
				rt.cfg.Proofs[i] = entry
				replaced = true
				break
			}
		}
		if !replaced {
			rt.cfg.Proofs = append(rt.cfg.Proofs, entry)
		}
		if err := rt.cfg.Save(rt.path); err != nil {
			return err
		}
		rt.log.Infof("Stored proofs of %s in %s", key, rt.path)
		return nil
	},
}

func init() {
	proofsFetchCmd.Flags().String("modules", "", "Comma separated module names")
	proofsFetchCmd.Flags().Bool("write", false, "Store the bundle in the config file")
	proofsFetchCmd.MarkFlagRequired("modules")
	ProofsCmd.AddCommand(proofsFetchCmd)
}
