// Package lpda drives the linear price drop auction that distributes the
// fractions of an art-enjoyer vault.
package lpda

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/sirupsen/logrus"
)

var (
	ErrNoAuction     = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "vault has no auction"}
	ErrNotLive       = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "auction not live"}
	ErrNotFinished   = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "auction not finished"}
	ErrSoldOut       = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "amount exceeds remaining supply"}
	ErrNoMinters     = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "no addresses to settle"}
	ErrNotCurator    = &sdkerr.Error{Kind: sdkerr.KindAuthorization, Msg: "caller is not the curator"}
	ErrBalanceTooLow = &sdkerr.Error{Kind: sdkerr.KindInsufficientBalance, Msg: "insufficient ETH balance"}
)

const errUnexpectedRead = "unexpected result"

func fail(op string, sentinel *sdkerr.Error) error {
	return &sdkerr.Error{Kind: sentinel.Kind, Op: op, Msg: sentinel.Msg}
}

// Contracts are the LPDA module and the Multicall3 used to settle in bulk.
type Contracts struct {
	LPDA      registry.Contract
	Multicall registry.Contract
}

func ResolveContracts(reg *registry.Registry, chainID uint64, modules ...string) (Contracts, error) {
	var (
		c   Contracts
		err error
	)
	if c.LPDA, err = reg.Lookup(chainID, registry.LPDA, modules...); err != nil {
		return Contracts{}, err
	}
	if c.Multicall, err = reg.Lookup(chainID, registry.Multicall, modules...); err != nil {
		return Contracts{}, err
	}
	return c, nil
}

// Auction is the LPDA of one vault.
type Auction struct {
	exec      *executor.Executor
	contracts Contracts
	vault     common.Address
	bundle    proofs.Bundle
	log       *logrus.Logger
}

// NewAuction binds the LPDA module to vault. bundle holds the proofs of the
// vault's module set.
func NewAuction(exec *executor.Executor, c Contracts, vault common.Address, bundle proofs.Bundle) *Auction {
	return &Auction{exec: exec, contracts: c, vault: vault, bundle: bundle, log: exec.Logger()}
}

func (a *Auction) Vault() common.Address { return a.vault }

func (a *Auction) call(ctx context.Context, method string, args ...any) (any, error) {
	l := a.contracts.LPDA
	out, err := a.exec.Call(ctx, l.Address, l.ABI, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: "lpda." + method, Msg: "chain read failed", Reason: errUnexpectedRead}
	}
	return out[0], nil
}

func (a *Auction) bigCall(ctx context.Context, method string, args ...any) (*big.Int, error) {
	v, err := a.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: "lpda." + method, Msg: "chain read failed", Reason: errUnexpectedRead}
	}
	return n, nil
}

// Info returns the auction parameters. A vault without a curator has no auction.
func (a *Auction) Info(ctx context.Context) (*types.LPDAInfo, error) {
	var info types.LPDAInfo
	l := a.contracts.LPDA
	if err := a.exec.CallInto(ctx, &info, l.Address, l.ABI, "vaultLPDAInfo", a.vault); err != nil {
		return nil, err
	}
	if info.Curator == (common.Address{}) {
		return nil, fail("lpda.info", ErrNoAuction)
	}
	return &info, nil
}

func (a *Auction) State(ctx context.Context) (types.LPDAState, error) {
	v, err := a.call(ctx, "getAuctionState", a.vault)
	if err != nil {
		return 0, err
	}
	s, ok := v.(uint8)
	if !ok || s > uint8(types.LPDANotSuccessful) {
		return 0, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: "lpda.getAuctionState", Msg: "chain read failed", Reason: "unknown auction state"}
	}
	return types.LPDAState(s), nil
}

// CurrentPrice is the price of one fraction right now, in wei.
func (a *Auction) CurrentPrice(ctx context.Context) (*big.Int, error) {
	return a.bigCall(ctx, "currentPrice", a.vault)
}

// Minters returns every address that bid, once each, in first-bid order.
func (a *Auction) Minters(ctx context.Context) ([]common.Address, error) {
	v, err := a.call(ctx, "getMinters", a.vault)
	if err != nil {
		return nil, err
	}
	all, ok := v.([]common.Address)
	if !ok {
		return nil, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: "lpda.getMinters", Msg: "chain read failed", Reason: errUnexpectedRead}
	}
	seen := make(map[common.Address]struct{}, len(all))
	out := make([]common.Address, 0, len(all))
	for _, m := range all {
		if _, dup := seen[m]; dup {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

func (a *Auction) BalanceContributed(ctx context.Context, user common.Address) (*big.Int, error) {
	return a.bigCall(ctx, "balanceContributed", a.vault, user)
}

func (a *Auction) BalanceRefunded(ctx context.Context, user common.Address) (*big.Int, error) {
	return a.bigCall(ctx, "balanceRefunded", a.vault, user)
}

func (a *Auction) RefundOwed(ctx context.Context, user common.Address) (*big.Int, error) {
	return a.bigCall(ctx, "refundOwed", a.vault, user)
}

func (a *Auction) NumMinted(ctx context.Context, user common.Address) (*big.Int, error) {
	return a.bigCall(ctx, "numMinted", a.vault, user)
}

// FeeReceiver is the protocol-wide receiver of LPDA fees.
func (a *Auction) FeeReceiver(ctx context.Context) (common.Address, error) {
	v, err := a.call(ctx, "feeReceiver")
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := v.(common.Address)
	if !ok {
		return common.Address{}, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: "lpda.feeReceiver", Msg: "chain read failed", Reason: errUnexpectedRead}
	}
	return addr, nil
}

func (a *Auction) lpdaCall(op, method string, args ...any) executor.CallSpec {
	l := a.contracts.LPDA
	return executor.CallSpec{Op: op, To: l.Address, ABI: l.ABI, Method: method, Args: args}
}

func (a *Auction) caller(op string) (common.Address, error) {
	addr, err := a.exec.Connection().Address()
	if err != nil {
		return common.Address{}, &sdkerr.Error{Kind: sdkerr.KindAuthorization, Op: op, Msg: "caller address unknown", Err: err}
	}
	return addr, nil
}

type prepareFunc func(ctx context.Context) (executor.CallSpec, error)

func (a *Auction) send(ctx context.Context, prepare prepareFunc) (*types.Receipt, error) {
	spec, err := prepare(ctx)
	if err != nil {
		return nil, err
	}
	return a.exec.Send(ctx, spec)
}

func (a *Auction) estimate(ctx context.Context, prepare prepareFunc) (types.GasEstimate, error) {
	spec, err := prepare(ctx)
	if err != nil {
		return types.GasEstimate{}, err
	}
	return a.exec.Estimate(ctx, spec)
}

// EnterBid bids for amount fractions at the current price.
func (a *Auction) EnterBid(ctx context.Context, amount uint16) (*types.Receipt, error) {
	return a.send(ctx, func(ctx context.Context) (executor.CallSpec, error) { return a.prepareBid(ctx, amount) })
}

func (a *Auction) EstimateEnterBid(ctx context.Context, amount uint16) (types.GasEstimate, error) {
	return a.estimate(ctx, func(ctx context.Context) (executor.CallSpec, error) { return a.prepareBid(ctx, amount) })
}

func (a *Auction) prepareBid(ctx context.Context, amount uint16) (executor.CallSpec, error) {
	const op = "lpda.enterBid"
	if amount == 0 {
		return executor.CallSpec{}, sdkerr.Validation(op, "amount must be greater than zero")
	}
	state, err := a.State(ctx)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if state != types.LPDALive {
		return executor.CallSpec{}, fail(op, ErrNotLive)
	}
	info, err := a.Info(ctx)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if info.NumSold+amount > info.Supply || info.NumSold+amount < info.NumSold {
		return executor.CallSpec{}, fail(op, ErrSoldOut)
	}

	from, err := a.caller(op)
	if err != nil {
		return executor.CallSpec{}, err
	}
	price, err := a.CurrentPrice(ctx)
	if err != nil {
		return executor.CallSpec{}, err
	}
	value := new(big.Int).Mul(price, big.NewInt(int64(amount)))
	balance, err := a.exec.Connection().BalanceOf(ctx, from)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if balance.Cmp(value) < 0 {
		return executor.CallSpec{}, fail(op, ErrBalanceTooLow)
	}
	spec := a.lpdaCall(op, "enterBid", a.vault, amount)
	spec.Value = value
	return spec, nil
}

// RedeemNFTCurator lets the curator take the underlying NFT back once the
// auction is over.
func (a *Auction) RedeemNFTCurator(ctx context.Context, token common.Address, id *big.Int) (*types.Receipt, error) {
	return a.send(ctx, func(ctx context.Context) (executor.CallSpec, error) { return a.prepareRedeem(ctx, token, id) })
}

func (a *Auction) EstimateRedeemNFTCurator(ctx context.Context, token common.Address, id *big.Int) (types.GasEstimate, error) {
	return a.estimate(ctx, func(ctx context.Context) (executor.CallSpec, error) { return a.prepareRedeem(ctx, token, id) })
}

func (a *Auction) prepareRedeem(ctx context.Context, token common.Address, id *big.Int) (executor.CallSpec, error) {
	const op = "lpda.redeemNFTCurator"
	if token == (common.Address{}) {
		return executor.CallSpec{}, sdkerr.Validation(op, "token address must not be zero")
	}
	if id == nil || id.Sign() < 0 {
		return executor.CallSpec{}, sdkerr.Validation(op, "invalid token id")
	}
	state, err := a.State(ctx)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if state != types.LPDASuccessful && state != types.LPDANotSuccessful {
		return executor.CallSpec{}, fail(op, ErrNotFinished)
	}
	info, err := a.Info(ctx)
	if err != nil {
		return executor.CallSpec{}, err
	}
	from, err := a.caller(op)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if from != info.Curator {
		return executor.CallSpec{}, fail(op, ErrNotCurator)
	}
	proof, err := a.bundle.For(proofs.Redeem)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if len(proof) == 0 {
		return executor.CallSpec{}, sdkerr.Configuration(op, "no redeem proof for the vault's modules")
	}
	return a.lpdaCall(op, "redeemNFTCurator", a.vault, token, id, [][32]byte(proof)), nil
}

// SettleAddress settles minter's bids. A nil minter settles the caller.
func (a *Auction) SettleAddress(ctx context.Context, minter *common.Address) (*types.Receipt, error) {
	return a.send(ctx, func(context.Context) (executor.CallSpec, error) { return a.prepareSettle(minter) })
}

func (a *Auction) EstimateSettleAddress(ctx context.Context, minter *common.Address) (types.GasEstimate, error) {
	return a.estimate(ctx, func(context.Context) (executor.CallSpec, error) { return a.prepareSettle(minter) })
}

func (a *Auction) prepareSettle(minter *common.Address) (executor.CallSpec, error) {
	const op = "lpda.settleAddress"
	var target common.Address
	if minter != nil {
		target = *minter
	} else {
		from, err := a.caller(op)
		if err != nil {
			return executor.CallSpec{}, err
		}
		target = from
	}
	if target == (common.Address{}) {
		return executor.CallSpec{}, sdkerr.Validation(op, "minter address must not be zero")
	}
	return a.lpdaCall(op, "settleAddress", a.vault, target), nil
}

// call3 is one Multicall3 aggregate3 entry.
type call3 struct {
	Target       common.Address
	AllowFailure bool
	CallData     []byte
}

// SettleAllAddresses settles every minter in one Multicall3 transaction.
// A minter whose settlement reverts does not fail the others.
func (a *Auction) SettleAllAddresses(ctx context.Context) (*types.Receipt, error) {
	return a.send(ctx, a.prepareSettleAll)
}

func (a *Auction) EstimateSettleAllAddresses(ctx context.Context) (types.GasEstimate, error) {
	return a.estimate(ctx, a.prepareSettleAll)
}

func (a *Auction) prepareSettleAll(ctx context.Context) (executor.CallSpec, error) {
	const op = "lpda.settleAllAddresses"
	minters, err := a.Minters(ctx)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if len(minters) == 0 {
		return executor.CallSpec{}, fail(op, ErrNoMinters)
	}
	calls := make([]call3, 0, len(minters))
	for _, m := range minters {
		data, err := a.lpdaCall(op, "settleAddress", a.vault, m).Calldata()
		if err != nil {
			return executor.CallSpec{}, err
		}
		calls = append(calls, call3{Target: a.contracts.LPDA.Address, AllowFailure: true, CallData: data})
	}
	a.log.Debugf("Settling %d minters of vault %s", len(calls), a.vault.Hex())
	mc := a.contracts.Multicall
	return executor.CallSpec{Op: op, To: mc.Address, ABI: mc.ABI, Method: "aggregate3", Args: []any{calls}}, nil
}

// SettleCurator pays the curator's share of the auction proceeds.
func (a *Auction) SettleCurator(ctx context.Context) (*types.Receipt, error) {
	return a.exec.Send(ctx, a.lpdaCall("lpda.settleCurator", "settleCurator", a.vault))
}

func (a *Auction) EstimateSettleCurator(ctx context.Context) (types.GasEstimate, error) {
	return a.exec.Estimate(ctx, a.lpdaCall("lpda.settleCurator", "settleCurator", a.vault))
}

// UpdateFeeReceiver changes the protocol-wide fee receiver.
func (a *Auction) UpdateFeeReceiver(ctx context.Context, receiver common.Address) (*types.Receipt, error) {
	return a.send(ctx, func(context.Context) (executor.CallSpec, error) { return a.prepareFeeReceiver(receiver) })
}

func (a *Auction) EstimateUpdateFeeReceiver(ctx context.Context, receiver common.Address) (types.GasEstimate, error) {
	return a.estimate(ctx, func(context.Context) (executor.CallSpec, error) { return a.prepareFeeReceiver(receiver) })
}

func (a *Auction) prepareFeeReceiver(receiver common.Address) (executor.CallSpec, error) {
	const op = "lpda.updateFeeReceiver"
	if receiver == (common.Address{}) {
		return executor.CallSpec{}, sdkerr.Validation(op, "invalid receiver address")
	}
	return a.lpdaCall(op, "updateFeeReceiver", receiver), nil
}
