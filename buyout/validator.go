package buyout

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/batch"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/sirupsen/logrus"
)

// State conflict messages. Callers may match them with errors.Is.
var (
	ErrNotLive            = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "auction not live"}
	ErrProposalEnded      = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "proposal period ended"}
	ErrRejectionEnded     = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "rejection period ended"}
	ErrRejectionNotEnded  = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "rejection period not ended"}
	ErrBuyoutExists       = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "buyout already exists"}
	ErrNotSuccessful      = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "auction not successful"}
	ErrApprovalRequired   = &sdkerr.Error{Kind: sdkerr.KindAuthorization, Msg: "approval required"}
	ErrEntireSupply       = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "caller owns the entire supply"}
	ErrExceedsPoolSupply  = &sdkerr.Error{Kind: sdkerr.KindStateConflict, Msg: "amount exceeds supply in pool"}
	ErrNotProposer        = &sdkerr.Error{Kind: sdkerr.KindAuthorization, Msg: "caller is not the proposer"}
	ErrInsufficientNative = &sdkerr.Error{Kind: sdkerr.KindInsufficientBalance, Msg: "insufficient ETH balance"}
)

func conflict(op string, sentinel *sdkerr.Error) error {
	return &sdkerr.Error{Kind: sentinel.Kind, Op: op, Msg: sentinel.Msg}
}

// ModuleSource discovers the module set active on a vault.
type ModuleSource interface {
	Modules(ctx context.Context, vault common.Address) ([]string, error)
}

// StaticModules is a ModuleSource that answers the same set for every vault.
type StaticModules []string

func (s StaticModules) Modules(context.Context, common.Address) ([]string, error) {
	return append([]string(nil), s...), nil
}

const defaultPermitTTL = 20 * time.Minute

// Option configures a Validator.
type Option func(*Validator)

// WithClock replaces time.Now for timing guards and permit deadlines.
func WithClock(now func() time.Time) Option {
	return func(v *Validator) { v.now = now }
}

// WithQueue serializes operations per vault through q.
func WithQueue(q *Queue) Option {
	return func(v *Validator) { v.queue = q }
}

// WithPermitTTL sets how long a signed permit stays valid.
func WithPermitTTL(ttl time.Duration) Option {
	return func(v *Validator) { v.permitTTL = ttl }
}

func WithLogger(log *logrus.Logger) Option {
	return func(v *Validator) { v.log = log }
}

// Validator guards and submits buyout operations. Guards run in a fixed
// order: input, state, timing, authorization, balances, approval, proof.
// Nothing is written when a guard fails.
type Validator struct {
	exec      *executor.Executor
	reader    *Reader
	proofs    *proofs.Store
	modules   ModuleSource
	now       func() time.Time
	queue     *Queue
	permitTTL time.Duration
	log       *logrus.Logger
}

func NewValidator(exec *executor.Executor, reader *Reader, store *proofs.Store, modules ModuleSource, opts ...Option) *Validator {
	v := &Validator{
		exec:      exec,
		reader:    reader,
		proofs:    store,
		modules:   modules,
		now:       time.Now,
		permitTTL: defaultPermitTTL,
		log:       exec.Logger(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

func (v *Validator) Reader() *Reader { return v.reader }

type prepareFunc func(ctx context.Context) (executor.CallSpec, error)

func (v *Validator) submit(ctx context.Context, vault common.Address, prepare prepareFunc) (*types.Receipt, error) {
	if v.queue != nil {
		release, err := v.queue.Acquire(ctx, vault)
		if err != nil {
			return nil, err
		}
		defer release()
	}
	spec, err := prepare(ctx)
	if err != nil {
		return nil, err
	}
	return v.exec.Send(ctx, spec)
}

func (v *Validator) estimate(ctx context.Context, prepare prepareFunc) (types.GasEstimate, error) {
	spec, err := prepare(ctx)
	if err != nil {
		return types.GasEstimate{}, err
	}
	return v.exec.Estimate(ctx, spec)
}

func checkVault(op string, vault common.Address) error {
	if vault == (common.Address{}) {
		return sdkerr.Validation(op, "vault address must not be zero")
	}
	return nil
}

func checkAmount(op string, n *big.Int) error {
	if n == nil || n.Sign() <= 0 {
		return sdkerr.Validation(op, "amount must be greater than zero")
	}
	return nil
}

func (v *Validator) caller(op string) (common.Address, error) {
	addr, err := v.exec.Connection().Address()
	if err != nil {
		return common.Address{}, &sdkerr.Error{Kind: sdkerr.KindAuthorization, Op: op, Msg: "caller address unknown", Err: err}
	}
	return addr, nil
}

func (v *Validator) nowMs() int64 {
	return v.now().UnixMilli()
}

func (v *Validator) proof(ctx context.Context, vault common.Address, op proofs.Operation) (proofs.Proof, error) {
	bundle, err := v.bundle(ctx, vault)
	if err != nil {
		return nil, err
	}
	return bundle.For(op)
}

func (v *Validator) bundle(ctx context.Context, vault common.Address) (proofs.Bundle, error) {
	if v.proofs == nil || v.modules == nil {
		return proofs.Bundle{}, sdkerr.Configuration("buyout.proofs", "no proof store configured")
	}
	modules, err := v.modules.Modules(ctx, vault)
	if err != nil {
		return proofs.Bundle{}, err
	}
	return v.proofs.Get(v.reader.chainID, modules)
}

func (v *Validator) buyoutCall(op, method string, args ...any) executor.CallSpec {
	b := v.reader.contracts.Buyout
	return executor.CallSpec{Op: op, To: b.Address, ABI: b.ABI, Method: method, Args: args}
}

// withPermit returns call unchanged when the caller already approved the
// buyout module, otherwise a multicall prefixed by a signed selfPermitAll.
func (v *Validator) withPermit(ctx context.Context, call executor.CallSpec, h Holding) (executor.CallSpec, error) {
	if h.Approved {
		return call, nil
	}
	signer, err := v.exec.Connection().AsSigner()
	if err != nil {
		return executor.CallSpec{}, err
	}
	permit, err := v.signPermit(ctx, signer, h.Token.Token, v.now())
	if err != nil {
		return executor.CallSpec{}, err
	}
	permitData, err := permit.callData()
	if err != nil {
		return executor.CallSpec{}, err
	}
	opData, err := call.Calldata()
	if err != nil {
		return executor.CallSpec{}, err
	}
	v.log.Debugf("Bundling permit with %s", call.Method)
	multi := v.buyoutCall(call.Op, "multicall", [][]byte{permitData, opData})
	multi.Value = call.Value
	return multi, nil
}

// Start proposes a buyout of vault, bidding bidEth (a decimal ETH amount)
// for the fractions the caller does not own.
func (v *Validator) Start(ctx context.Context, vault common.Address, bidEth string) (*types.Receipt, error) {
	return v.submit(ctx, vault, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareStart(ctx, vault, bidEth)
	})
}

func (v *Validator) EstimateStart(ctx context.Context, vault common.Address, bidEth string) (types.GasEstimate, error) {
	return v.estimate(ctx, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareStart(ctx, vault, bidEth)
	})
}

func (v *Validator) prepareStart(ctx context.Context, vault common.Address, bidEth string) (executor.CallSpec, error) {
	const op = "buyout.start"
	if err := checkVault(op, vault); err != nil {
		return executor.CallSpec{}, err
	}
	bid, err := types.ParseEther(bidEth)
	if err != nil {
		return executor.CallSpec{}, sdkerr.Validation(op, "invalid bid amount %q: %v", bidEth, err)
	}
	if bid.Sign() == 0 {
		return executor.CallSpec{}, sdkerr.Validation(op, "bid amount must be greater than zero")
	}

	info, err := v.reader.Info(ctx, vault)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if info.State != types.StateInactive {
		return executor.CallSpec{}, conflict(op, ErrBuyoutExists)
	}

	from, err := v.caller(op)
	if err != nil {
		return executor.CallSpec{}, err
	}
	native, err := v.exec.Connection().BalanceOf(ctx, from)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if native.Cmp(bid) <= 0 {
		return executor.CallSpec{}, conflict(op, ErrInsufficientNative)
	}
	h, err := v.reader.Holding(ctx, vault, from)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if h.Balance.Sign() == 0 {
		return executor.CallSpec{}, sdkerr.InsufficientBalance(op, "caller owns no fractions")
	}
	if h.Balance.Cmp(h.Supply) >= 0 {
		return executor.CallSpec{}, conflict(op, ErrEntireSupply)
	}
	if !h.Approved {
		return executor.CallSpec{}, conflict(op, ErrApprovalRequired)
	}

	spec := v.buyoutCall(op, "start", vault)
	spec.Value = bid
	return spec, nil
}

// SellFractions sells amount fractions into a live buyout before its
// proposal period ends.
func (v *Validator) SellFractions(ctx context.Context, vault common.Address, amount *big.Int) (*types.Receipt, error) {
	return v.submit(ctx, vault, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareSell(ctx, vault, amount)
	})
}

func (v *Validator) EstimateSellFractions(ctx context.Context, vault common.Address, amount *big.Int) (types.GasEstimate, error) {
	return v.estimate(ctx, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareSell(ctx, vault, amount)
	})
}

func (v *Validator) prepareSell(ctx context.Context, vault common.Address, amount *big.Int) (executor.CallSpec, error) {
	const op = "buyout.sellFractions"
	if err := checkVault(op, vault); err != nil {
		return executor.CallSpec{}, err
	}
	if err := checkAmount(op, amount); err != nil {
		return executor.CallSpec{}, err
	}

	info, err := v.reader.Info(ctx, vault)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if info.State != types.StateLive {
		return executor.CallSpec{}, conflict(op, ErrNotLive)
	}
	if v.nowMs() >= info.ProposalPeriodEnd {
		return executor.CallSpec{}, conflict(op, ErrProposalEnded)
	}

	from, err := v.caller(op)
	if err != nil {
		return executor.CallSpec{}, err
	}
	h, err := v.reader.Holding(ctx, vault, from)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if amount.Cmp(h.Balance) > 0 {
		return executor.CallSpec{}, sdkerr.InsufficientBalance(op, "caller owns %s fractions, cannot sell %s", h.Balance, amount)
	}
	return v.withPermit(ctx, v.buyoutCall(op, "sellFractions", vault, amount), h)
}

// BuyFractions buys amount fractions back out of the pool before the
// rejection period ends, paying amount times the fraction price.
func (v *Validator) BuyFractions(ctx context.Context, vault common.Address, amount *big.Int) (*types.Receipt, error) {
	return v.submit(ctx, vault, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareBuy(ctx, vault, amount)
	})
}

func (v *Validator) EstimateBuyFractions(ctx context.Context, vault common.Address, amount *big.Int) (types.GasEstimate, error) {
	return v.estimate(ctx, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareBuy(ctx, vault, amount)
	})
}

func (v *Validator) prepareBuy(ctx context.Context, vault common.Address, amount *big.Int) (executor.CallSpec, error) {
	const op = "buyout.buyFractions"
	if err := checkVault(op, vault); err != nil {
		return executor.CallSpec{}, err
	}
	if err := checkAmount(op, amount); err != nil {
		return executor.CallSpec{}, err
	}

	info, err := v.reader.Info(ctx, vault)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if info.State != types.StateLive {
		return executor.CallSpec{}, conflict(op, ErrNotLive)
	}
	if v.nowMs() >= info.RejectionPeriodEnd {
		return executor.CallSpec{}, conflict(op, ErrRejectionEnded)
	}
	if amount.Cmp(info.SupplyInPool) > 0 {
		return executor.CallSpec{}, conflict(op, ErrExceedsPoolSupply)
	}

	from, err := v.caller(op)
	if err != nil {
		return executor.CallSpec{}, err
	}
	cost := new(big.Int).Mul(amount, info.FractionPrice)
	native, err := v.exec.Connection().BalanceOf(ctx, from)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if native.Cmp(cost) < 0 {
		return executor.CallSpec{}, conflict(op, ErrInsufficientNative)
	}

	spec := v.buyoutCall(op, "buyFractions", vault, amount)
	spec.Value = cost
	return spec, nil
}

// End settles a live buyout once its rejection period is over.
func (v *Validator) End(ctx context.Context, vault common.Address) (*types.Receipt, error) {
	return v.submit(ctx, vault, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareEnd(ctx, vault)
	})
}

func (v *Validator) EstimateEnd(ctx context.Context, vault common.Address) (types.GasEstimate, error) {
	return v.estimate(ctx, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareEnd(ctx, vault)
	})
}

func (v *Validator) prepareEnd(ctx context.Context, vault common.Address) (executor.CallSpec, error) {
	const op = "buyout.end"
	if err := checkVault(op, vault); err != nil {
		return executor.CallSpec{}, err
	}

	info, err := v.reader.Info(ctx, vault)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if info.State != types.StateLive {
		return executor.CallSpec{}, conflict(op, ErrNotLive)
	}
	if v.nowMs() < info.RejectionPeriodEnd {
		return executor.CallSpec{}, conflict(op, ErrRejectionNotEnded)
	}

	from, err := v.caller(op)
	if err != nil {
		return executor.CallSpec{}, err
	}
	h, err := v.reader.Holding(ctx, vault, from)
	if err != nil {
		return executor.CallSpec{}, err
	}
	burn, err := v.proof(ctx, vault, proofs.Burn)
	if err != nil {
		return executor.CallSpec{}, err
	}
	return v.withPermit(ctx, v.buyoutCall(op, "end", vault, [][32]byte(burn)), h)
}

// Redeem burns the entire fraction supply for the underlying assets. Only a
// caller holding every fraction may redeem, and only while no buyout exists.
func (v *Validator) Redeem(ctx context.Context, vault common.Address) (*types.Receipt, error) {
	return v.submit(ctx, vault, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareRedeem(ctx, vault)
	})
}

func (v *Validator) EstimateRedeem(ctx context.Context, vault common.Address) (types.GasEstimate, error) {
	return v.estimate(ctx, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareRedeem(ctx, vault)
	})
}

func (v *Validator) prepareRedeem(ctx context.Context, vault common.Address) (executor.CallSpec, error) {
	const op = "buyout.redeem"
	if err := checkVault(op, vault); err != nil {
		return executor.CallSpec{}, err
	}

	state, err := v.reader.State(ctx, vault)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if state != types.StateInactive {
		return executor.CallSpec{}, conflict(op, ErrBuyoutExists)
	}

	from, err := v.caller(op)
	if err != nil {
		return executor.CallSpec{}, err
	}
	h, err := v.reader.Holding(ctx, vault, from)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if h.Balance.Cmp(h.Supply) != 0 {
		return executor.CallSpec{}, sdkerr.InsufficientBalance(op, "caller owns %s of %s fractions, redeem requires all of them", h.Balance, h.Supply)
	}
	burn, err := v.proof(ctx, vault, proofs.Burn)
	if err != nil {
		return executor.CallSpec{}, err
	}
	return v.withPermit(ctx, v.buyoutCall(op, "redeem", vault, [][32]byte(burn)), h)
}

// CashProceeds claims the caller's share of a successful buyout's ETH.
func (v *Validator) CashProceeds(ctx context.Context, vault common.Address) (*types.Receipt, error) {
	return v.submit(ctx, vault, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareCash(ctx, vault)
	})
}

func (v *Validator) EstimateCashProceeds(ctx context.Context, vault common.Address) (types.GasEstimate, error) {
	return v.estimate(ctx, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareCash(ctx, vault)
	})
}

func (v *Validator) prepareCash(ctx context.Context, vault common.Address) (executor.CallSpec, error) {
	const op = "buyout.cash"
	if err := checkVault(op, vault); err != nil {
		return executor.CallSpec{}, err
	}

	state, err := v.reader.State(ctx, vault)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if state != types.StateSuccessful {
		return executor.CallSpec{}, conflict(op, ErrNotSuccessful)
	}

	from, err := v.caller(op)
	if err != nil {
		return executor.CallSpec{}, err
	}
	balance, err := v.reader.FractionBalance(ctx, vault, from)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if balance.Sign() == 0 {
		return executor.CallSpec{}, sdkerr.InsufficientBalance(op, "caller owns no fractions")
	}
	burn, err := v.proof(ctx, vault, proofs.Burn)
	if err != nil {
		return executor.CallSpec{}, err
	}
	return v.buyoutCall(op, "cash", vault, [][32]byte(burn)), nil
}

// WithdrawTokens sweeps tokens out of a vault after a successful buyout.
// Only the proposer of that buyout may withdraw; tokens go to the proposer
// unless an entry names a receiver.
func (v *Validator) WithdrawTokens(ctx context.Context, vault common.Address, tokens []types.Token) (*types.Receipt, error) {
	return v.submit(ctx, vault, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareWithdraw(ctx, vault, tokens)
	})
}

func (v *Validator) EstimateWithdrawTokens(ctx context.Context, vault common.Address, tokens []types.Token) (types.GasEstimate, error) {
	return v.estimate(ctx, func(ctx context.Context) (executor.CallSpec, error) {
		return v.prepareWithdraw(ctx, vault, tokens)
	})
}

func (v *Validator) prepareWithdraw(ctx context.Context, vault common.Address, tokens []types.Token) (executor.CallSpec, error) {
	const op = "buyout.withdraw"
	if err := checkVault(op, vault); err != nil {
		return executor.CallSpec{}, err
	}
	if _, err := batch.Validate(op, tokens); err != nil {
		return executor.CallSpec{}, err
	}

	raw, err := v.reader.Raw(ctx, vault)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if types.AuctionState(raw.State) != types.StateSuccessful {
		return executor.CallSpec{}, conflict(op, ErrNotSuccessful)
	}

	from, err := v.caller(op)
	if err != nil {
		return executor.CallSpec{}, err
	}
	if from != raw.Proposer {
		return executor.CallSpec{}, conflict(op, ErrNotProposer)
	}

	bundle, err := v.bundle(ctx, vault)
	if err != nil {
		return executor.CallSpec{}, err
	}
	calls, err := batch.BuildWithdrawals(vault, from, tokens, bundle)
	if err != nil {
		return executor.CallSpec{}, err
	}
	return v.buyoutCall(op, "multicall", batch.Payloads(calls)), nil
}
