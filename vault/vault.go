// Package vault binds the modules installed on a deployed vault and deploys
// new vaults through the protocol factories.
package vault

import (
	"context"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/buyout"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/lpda"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/tokens"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/sirupsen/logrus"
)

// Deps are the shared collaborators of every vault handle.
type Deps struct {
	Exec     *executor.Executor
	Registry *registry.Registry
	Proofs   *proofs.Store
	// Cache keeps vault token ids across runs. Optional.
	Cache buyout.TokenCache
	// Queue serializes buyout operations per vault. Optional.
	Queue *buyout.Queue
	// BuyoutOptions are applied to the buyout validator.
	BuyoutOptions []buyout.Option
}

func (d Deps) check(op string) error {
	if d.Exec == nil {
		return sdkerr.Configuration(op, "executor is required")
	}
	if d.Registry == nil {
		return sdkerr.Configuration(op, "registry is required")
	}
	return nil
}

// Vault is one deployed vault. Module handles are nil when the module is not
// installed.
type Vault struct {
	ChainID uint64
	Address common.Address
	Modules []string

	Buyout *buyout.Validator
	LPDA   *lpda.Auction

	exec   *executor.Executor
	tokens *buyout.Reader
	log    *logrus.Logger
}

// Open discovers the modules of the vault at address and binds a handle for
// each one the SDK drives.
func Open(ctx context.Context, deps Deps, address common.Address) (*Vault, error) {
	const op = "vault.open"
	if err := deps.check(op); err != nil {
		return nil, err
	}
	if address == (common.Address{}) {
		return nil, sdkerr.Validation(op, "vault address must not be zero")
	}
	conn := deps.Exec.Connection()
	chainID, err := conn.ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if !deps.Registry.Supports(chainID) {
		return nil, sdkerr.Configuration(op, "unsupported chain %d", chainID)
	}

	modules, err := NewDiscovery(conn, deps.Registry, chainID).Modules(ctx, address)
	if err != nil {
		return nil, err
	}
	v := &Vault{
		ChainID: chainID,
		Address: address,
		Modules: modules,
		exec:    deps.Exec,
		log:     deps.Exec.Logger(),
	}

	vr, err := deps.Registry.Lookup(chainID, registry.VaultRegistry, modules...)
	if err != nil {
		return nil, err
	}
	v.tokens = buyout.NewReader(deps.Exec, chainID, buyout.Contracts{VaultRegistry: vr}, deps.Cache)

	if v.HasModule(registry.ModuleName(registry.Buyout)) {
		c, err := buyout.ResolveContracts(deps.Registry, chainID, modules...)
		if err != nil {
			return nil, err
		}
		opts := append([]buyout.Option(nil), deps.BuyoutOptions...)
		if deps.Queue != nil {
			opts = append(opts, buyout.WithQueue(deps.Queue))
		}
		reader := buyout.NewReader(deps.Exec, chainID, c, deps.Cache)
		v.Buyout = buyout.NewValidator(deps.Exec, reader, deps.Proofs, buyout.StaticModules(modules), opts...)
	}

	if v.HasModule(registry.ModuleName(registry.LPDA)) {
		c, err := lpda.ResolveContracts(deps.Registry, chainID, modules...)
		if err != nil {
			return nil, err
		}
		var bundle proofs.Bundle
		if deps.Proofs != nil {
			if bundle, err = deps.Proofs.Get(chainID, modules); err != nil {
				v.log.Warnf("No proofs for vault %s modules %v: %v", address.Hex(), modules, err)
			}
		}
		v.LPDA = lpda.NewAuction(deps.Exec, c, address, bundle)
	}

	v.log.Debugf("Opened vault %s on chain %d with modules %v", address.Hex(), chainID, modules)
	return v, nil
}

// HasModule reports whether the named module is installed, ignoring case.
func (v *Vault) HasModule(name string) bool {
	for _, m := range v.Modules {
		if strings.EqualFold(m, name) {
			return true
		}
	}
	return false
}

// TokenInfo returns the FERC1155 token and id minted for the vault.
func (v *Vault) TokenInfo(ctx context.Context) (types.TokenInfo, error) {
	return v.tokens.TokenID(ctx, v.Address)
}

// Fractions binds the vault's FERC1155 token.
func (v *Vault) Fractions(ctx context.Context) (*tokens.FERC1155, types.TokenInfo, error) {
	info, err := v.TokenInfo(ctx)
	if err != nil {
		return nil, types.TokenInfo{}, err
	}
	return tokens.NewFERC1155(v.exec, info.Token), info, nil
}

// ApproveBuyout grants or revokes the Buyout module's operator approval over
// the caller's fractions. Start needs it granted.
func (v *Vault) ApproveBuyout(ctx context.Context, approved bool) (*types.Receipt, error) {
	token, operator, err := v.buyoutApproval(ctx)
	if err != nil {
		return nil, err
	}
	r, err := token.SetApprovalForAll(ctx, operator, approved)
	if err != nil {
		return nil, err
	}
	v.log.Infof("Set buyout approval of vault %s to %t", v.Address.Hex(), approved)
	return r, nil
}

func (v *Vault) EstimateApproveBuyout(ctx context.Context, approved bool) (types.GasEstimate, error) {
	token, operator, err := v.buyoutApproval(ctx)
	if err != nil {
		return types.GasEstimate{}, err
	}
	return token.EstimateSetApprovalForAll(ctx, operator, approved)
}

func (v *Vault) buyoutApproval(ctx context.Context) (*tokens.FERC1155, common.Address, error) {
	if v.Buyout == nil {
		return nil, common.Address{}, sdkerr.Configuration("vault.approveBuyout", "vault %s has no buyout module", v.Address.Hex())
	}
	token, _, err := v.Fractions(ctx)
	if err != nil {
		return nil, common.Address{}, err
	}
	return token, v.Buyout.Reader().Contracts().Buyout.Address, nil
}
