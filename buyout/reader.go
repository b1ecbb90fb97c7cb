// Package buyout reads and drives the buyout auction of a vault. Reader
// returns fresh snapshots; Validator checks every guard against a snapshot
// before it submits anything.
package buyout

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"golang.org/x/sync/errgroup"
)

// Contracts are the protocol contracts a buyout touches. The fraction token
// is resolved per vault through the VaultRegistry.
type Contracts struct {
	Buyout        registry.Contract
	VaultRegistry registry.Contract
}

// ResolveContracts looks up the buyout contracts of the deployment matching modules.
func ResolveContracts(reg *registry.Registry, chainID uint64, modules ...string) (Contracts, error) {
	var (
		c   Contracts
		err error
	)
	if c.Buyout, err = reg.Lookup(chainID, registry.Buyout, modules...); err != nil {
		return Contracts{}, err
	}
	if c.VaultRegistry, err = reg.Lookup(chainID, registry.VaultRegistry, modules...); err != nil {
		return Contracts{}, err
	}
	return c, nil
}

// TokenCache remembers the fraction token of a vault. The mapping never
// changes once a vault is deployed.
type TokenCache interface {
	Token(chainID uint64, vault common.Address) (types.TokenInfo, bool)
	PutToken(chainID uint64, vault common.Address, info types.TokenInfo) error
}

// Holding is an owner's position in a vault's fraction token.
type Holding struct {
	Token    types.TokenInfo `json:"token"`
	Balance  *big.Int        `json:"balance"`
	Supply   *big.Int        `json:"supply"`
	Approved bool            `json:"approved"`
}

// Reader reads buyout state. It keeps no chain state between calls.
type Reader struct {
	exec      *executor.Executor
	chainID   uint64
	contracts Contracts
	cache     TokenCache
}

// NewReader returns a reader. cache may be nil.
func NewReader(exec *executor.Executor, chainID uint64, c Contracts, cache TokenCache) *Reader {
	return &Reader{exec: exec, chainID: chainID, contracts: c, cache: cache}
}

func (r *Reader) Contracts() Contracts { return r.contracts }

func (r *Reader) ChainID() uint64 { return r.chainID }

// Raw returns the buyoutInfo struct as stored on chain.
func (r *Reader) Raw(ctx context.Context, vault common.Address) (types.BuyoutInfo, error) {
	var info types.BuyoutInfo
	b := r.contracts.Buyout
	if err := r.exec.CallInto(ctx, &info, b.Address, b.ABI, "buyoutInfo", vault); err != nil {
		return types.BuyoutInfo{}, sdkerr.ChainRead("buyout.info", err)
	}
	return info, nil
}

func (r *Reader) period(ctx context.Context, method string) (time.Duration, error) {
	b := r.contracts.Buyout
	out, err := r.exec.Call(ctx, b.Address, b.ABI, method)
	if err != nil {
		return 0, err
	}
	secs, ok := out[0].(*big.Int)
	if !ok || !secs.IsInt64() {
		return 0, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: "buyout." + method, Msg: "chain read failed", Reason: "unexpected period value"}
	}
	return time.Duration(secs.Int64()) * time.Second, nil
}

// ProposalPeriod is the protocol-wide window for selling fractions into a buyout.
func (r *Reader) ProposalPeriod(ctx context.Context) (time.Duration, error) {
	return r.period(ctx, "PROPOSAL_PERIOD")
}

// RejectionPeriod is the protocol-wide window after which a buyout can be ended.
func (r *Reader) RejectionPeriod(ctx context.Context) (time.Duration, error) {
	return r.period(ctx, "REJECTION_PERIOD")
}

// Info reads the raw buyout and both periods concurrently and derives the
// snapshot from them.
func (r *Reader) Info(ctx context.Context, vault common.Address) (*types.AuctionInfo, error) {
	var (
		raw                 types.BuyoutInfo
		proposal, rejection time.Duration
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		raw, err = r.Raw(gctx, vault)
		return err
	})
	g.Go(func() (err error) {
		proposal, err = r.ProposalPeriod(gctx)
		return err
	})
	g.Go(func() (err error) {
		rejection, err = r.RejectionPeriod(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return Derive(raw, proposal, rejection), nil
}

// State reads only the state enum.
func (r *Reader) State(ctx context.Context, vault common.Address) (types.AuctionState, error) {
	raw, err := r.Raw(ctx, vault)
	if err != nil {
		return 0, err
	}
	return types.AuctionState(raw.State), nil
}

// TokenID resolves the fraction token backing vault, consulting the cache first.
func (r *Reader) TokenID(ctx context.Context, vault common.Address) (types.TokenInfo, error) {
	if r.cache != nil {
		if info, ok := r.cache.Token(r.chainID, vault); ok {
			return info, nil
		}
	}
	reg := r.contracts.VaultRegistry
	out, err := r.exec.Call(ctx, reg.Address, reg.ABI, "vaultToToken", vault)
	if err != nil {
		return types.TokenInfo{}, err
	}
	token, ok1 := out[0].(common.Address)
	id, ok2 := out[1].(*big.Int)
	if !ok1 || !ok2 {
		return types.TokenInfo{}, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: "buyout.token", Msg: "chain read failed", Reason: "unexpected vaultToToken result"}
	}
	if token == (common.Address{}) {
		return types.TokenInfo{}, sdkerr.Configuration("buyout.token", "vault %s is not registered", vault.Hex())
	}
	info := types.TokenInfo{Token: token, ID: id}
	if r.cache != nil {
		if err := r.cache.PutToken(r.chainID, vault, info); err != nil {
			r.exec.Logger().Warnf("Failed to cache token of vault %s: %v", vault.Hex(), err)
		}
	}
	return info, nil
}

func (r *Reader) tokenCall(ctx context.Context, token common.Address, method string, args ...any) (any, error) {
	out, err := r.exec.Call(ctx, token, registry.ABI(registry.FERC1155), method, args...)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

func (r *Reader) bigCall(ctx context.Context, token common.Address, method string, args ...any) (*big.Int, error) {
	v, err := r.tokenCall(ctx, token, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: "buyout." + method, Msg: "chain read failed", Reason: "unexpected result"}
	}
	return n, nil
}

// FractionBalance is owner's balance of the vault's fraction token.
func (r *Reader) FractionBalance(ctx context.Context, vault, owner common.Address) (*big.Int, error) {
	t, err := r.TokenID(ctx, vault)
	if err != nil {
		return nil, err
	}
	return r.bigCall(ctx, t.Token, "balanceOf", owner, t.ID)
}

// TotalSupply is the current supply of the vault's fraction token.
func (r *Reader) TotalSupply(ctx context.Context, vault common.Address) (*big.Int, error) {
	t, err := r.TokenID(ctx, vault)
	if err != nil {
		return nil, err
	}
	return r.bigCall(ctx, t.Token, "totalSupply", t.ID)
}

// IsApprovedForAll reports whether owner lets the buyout module move its fractions.
func (r *Reader) IsApprovedForAll(ctx context.Context, vault, owner common.Address) (bool, error) {
	t, err := r.TokenID(ctx, vault)
	if err != nil {
		return false, err
	}
	return r.approved(ctx, t.Token, owner)
}

func (r *Reader) approved(ctx context.Context, token, owner common.Address) (bool, error) {
	v, err := r.tokenCall(ctx, token, "isApprovedForAll", owner, r.contracts.Buyout.Address)
	if err != nil {
		return false, err
	}
	ok, isBool := v.(bool)
	if !isBool {
		return false, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: "buyout.isApprovedForAll", Msg: "chain read failed", Reason: "unexpected result"}
	}
	return ok, nil
}

// Holding reads owner's balance, the supply and the buyout approval in one go.
func (r *Reader) Holding(ctx context.Context, vault, owner common.Address) (Holding, error) {
	t, err := r.TokenID(ctx, vault)
	if err != nil {
		return Holding{}, err
	}
	h := Holding{Token: t}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		h.Balance, err = r.bigCall(gctx, t.Token, "balanceOf", owner, t.ID)
		return err
	})
	g.Go(func() (err error) {
		h.Supply, err = r.bigCall(gctx, t.Token, "totalSupply", t.ID)
		return err
	})
	g.Go(func() (err error) {
		h.Approved, err = r.approved(gctx, t.Token, owner)
		return err
	})
	if err := g.Wait(); err != nil {
		return Holding{}, err
	}
	return h, nil
}
