package buyout

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/fractional-company/vault-sdk-go/eth"
	"github.com/fractional-company/vault-sdk-go/internal/ethtest"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var erc20Token = types.Token{Standard: "ERC20", Address: "0x00000000000000000000000000000000000000e2", Amount: big.NewInt(7)}

func decodeBuyout(t *testing.T, data []byte) (string, []any) {
	t.Helper()
	m, args, err := ethtest.Decode(registry.ABI(registry.Buyout), data)
	require.NoError(t, err)
	return m.Name, args
}

func (c *chain) setState(s types.AuctionState) {
	switch s {
	case types.StateLive:
		c.live()
	case types.StateSuccessful:
		c.successful()
	default:
		c.mu.Lock()
		c.state = 0
		c.mu.Unlock()
	}
}

func TestStateGating(t *testing.T) {
	ops := []struct {
		name  string
		legal types.AuctionState
		setup func(c *chain)
		run   func(ctx context.Context, v *Validator) error
	}{
		{
			name:  "start",
			legal: types.StateInactive,
			run: func(ctx context.Context, v *Validator) error {
				_, err := v.Start(ctx, vaultAddr, "0.5")
				return err
			},
		},
		{
			name:  "sell",
			legal: types.StateLive,
			run: func(ctx context.Context, v *Validator) error {
				_, err := v.SellFractions(ctx, vaultAddr, big.NewInt(10))
				return err
			},
		},
		{
			name:  "buy",
			legal: types.StateLive,
			run: func(ctx context.Context, v *Validator) error {
				_, err := v.BuyFractions(ctx, vaultAddr, big.NewInt(5))
				return err
			},
		},
		{
			name:  "end",
			legal: types.StateLive,
			setup: func(c *chain) { c.advance(rejectionPeriod) },
			run: func(ctx context.Context, v *Validator) error {
				_, err := v.End(ctx, vaultAddr)
				return err
			},
		},
		{
			name:  "redeem",
			legal: types.StateInactive,
			setup: func(c *chain) { c.setBalance(100) },
			run: func(ctx context.Context, v *Validator) error {
				_, err := v.Redeem(ctx, vaultAddr)
				return err
			},
		},
		{
			name:  "cash",
			legal: types.StateSuccessful,
			run: func(ctx context.Context, v *Validator) error {
				_, err := v.CashProceeds(ctx, vaultAddr)
				return err
			},
		},
		{
			name:  "withdraw",
			legal: types.StateSuccessful,
			run: func(ctx context.Context, v *Validator) error {
				_, err := v.WithdrawTokens(ctx, vaultAddr, []types.Token{erc20Token})
				return err
			},
		},
	}
	states := []types.AuctionState{types.StateInactive, types.StateLive, types.StateSuccessful}

	for _, op := range ops {
		for _, state := range states {
			t.Run(op.name+"/"+state.String(), func(t *testing.T) {
				c := newChain(t)
				c.setState(state)
				if op.setup != nil {
					op.setup(c)
				}
				err := op.run(context.Background(), c.validator())
				if state == op.legal {
					require.NoError(t, err)
					assert.Len(t, c.b.Sent(), 1)
					return
				}
				require.Error(t, err)
				assert.ErrorIs(t, err, sdkerr.ErrStateConflict)
				assert.Empty(t, c.b.Sent())
			})
		}
	}
}

func TestEndRejectionBoundary(t *testing.T) {
	c := newChain(t)
	c.live()
	v := c.validator()

	c.advance(rejectionPeriod - time.Second)
	_, err := v.End(context.Background(), vaultAddr)
	assert.ErrorIs(t, err, ErrRejectionNotEnded)
	assert.Empty(t, c.b.Sent())

	c.advance(time.Second)
	rcpt, err := v.End(context.Background(), vaultAddr)
	require.NoError(t, err)
	require.Len(t, c.b.Sent(), 1)
	assert.Equal(t, c.b.Sent()[0].Hash(), rcpt.TxHash)

	method, args := decodeBuyout(t, c.b.Sent()[0].Data())
	assert.Equal(t, "end", method)
	assert.Equal(t, vaultAddr, args[0])
	assert.Equal(t, [][32]byte(testBundle.Burn), args[1])
}

func TestStartThenSell(t *testing.T) {
	c := newChain(t)
	c.b.OnSend = func(tx *gethtypes.Transaction) {
		method, _, err := ethtest.Decode(registry.ABI(registry.Buyout), tx.Data())
		if err != nil || method.Name != "start" {
			return
		}
		c.mu.Lock()
		defer c.mu.Unlock()
		c.state = uint8(types.StateLive)
		c.startTime = c.now.Unix()
		c.proposer = callerAddr
		c.ethInPool = tx.Value()
		c.price = new(big.Int).Quo(tx.Value(), big.NewInt(60))
		c.lastTotal = big.NewInt(100)
	}
	v := c.validator()
	ctx := context.Background()

	_, err := v.Start(ctx, vaultAddr, "0.5")
	require.NoError(t, err)
	require.Len(t, c.b.Sent(), 1)
	startTx := c.b.Sent()[0]
	assert.Equal(t, ethAmount(0, 50), startTx.Value())
	method, args := decodeBuyout(t, startTx.Data())
	assert.Equal(t, "start", method)
	assert.Equal(t, vaultAddr, args[0])

	state, err := v.Reader().State(ctx, vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, types.StateLive, state)

	c.advance(time.Hour)
	_, err = v.SellFractions(ctx, vaultAddr, big.NewInt(10))
	require.NoError(t, err)
	require.Len(t, c.b.Sent(), 2)
	method, args = decodeBuyout(t, c.b.Sent()[1].Data())
	assert.Equal(t, "sellFractions", method)
	assert.Equal(t, big.NewInt(10), args[1])

	c.advance(proposalPeriod)
	_, err = v.SellFractions(ctx, vaultAddr, big.NewInt(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerr.ErrStateConflict)
	assert.ErrorIs(t, err, ErrProposalEnded)
	assert.Len(t, c.b.Sent(), 2)
}

func TestRedeemRequiresFullOwnership(t *testing.T) {
	c := newChain(t)
	v := c.validator()
	ctx := context.Background()

	c.setBalance(99)
	_, err := v.Redeem(ctx, vaultAddr)
	assert.ErrorIs(t, err, sdkerr.ErrInsufficientBalance)
	assert.Empty(t, c.b.Sent())

	c.setBalance(100)
	_, err = v.Redeem(ctx, vaultAddr)
	require.NoError(t, err)
	require.Len(t, c.b.Sent(), 1)
	method, args := decodeBuyout(t, c.b.Sent()[0].Data())
	assert.Equal(t, "redeem", method)
	assert.Equal(t, [][32]byte(testBundle.Burn), args[1])
}

func TestSellBundlesPermitWhenNotApproved(t *testing.T) {
	c := newChain(t)
	c.live()
	c.setApproved(false)
	v := c.validator()

	_, err := v.SellFractions(context.Background(), vaultAddr, big.NewInt(10))
	require.NoError(t, err)
	require.Len(t, c.b.Sent(), 1)

	tx := c.b.Sent()[0]
	assert.Equal(t, buyoutAddr, *tx.To())
	method, args := decodeBuyout(t, tx.Data())
	require.Equal(t, "multicall", method)
	inner := args[0].([][]byte)
	require.Len(t, inner, 2)

	method, permitArgs := decodeBuyout(t, inner[0])
	require.Equal(t, "selfPermitAll", method)
	method, sellArgs := decodeBuyout(t, inner[1])
	assert.Equal(t, "sellFractions", method)
	assert.Equal(t, big.NewInt(10), sellArgs[1])

	assert.Equal(t, tokenAddr, permitArgs[0])
	assert.Equal(t, true, permitArgs[1])
	deadline := permitArgs[2].(*big.Int)
	assert.Equal(t, c.clock().Add(defaultPermitTTL).Unix(), deadline.Int64())

	td := PermitTypedData("FERC1155", "1", big.NewInt(4), tokenAddr, callerAddr, buyoutAddr, true, big.NewInt(3), deadline)
	digest, _, err := apitypes.TypedDataAndHash(td)
	require.NoError(t, err)
	r, s, vByte := permitArgs[4].([32]byte), permitArgs[5].([32]byte), permitArgs[3].(uint8)
	sig := append(append(r[:], s[:]...), vByte-27)
	pub, err := crypto.SigToPub(digest, sig)
	require.NoError(t, err)
	assert.Equal(t, callerAddr, crypto.PubkeyToAddress(*pub))
}

func TestPermitFieldRejectsMalformedReads(t *testing.T) {
	name, err := permitField[string]("buyout.permit", "NAME", []any{"FERC1155"})
	require.NoError(t, err)
	assert.Equal(t, "FERC1155", name)

	for _, out := range [][]any{nil, {big.NewInt(1)}, {"a", "b"}} {
		_, err := permitField[string]("buyout.permit", "NAME", out)
		assert.ErrorIs(t, err, sdkerr.ErrChainRead)
		assert.Contains(t, err.Error(), "unexpected NAME")
	}
	_, err = permitField[*big.Int]("buyout.permit", "nonce", []any{"3"})
	assert.ErrorIs(t, err, sdkerr.ErrChainRead)
}

func TestSellWithUnreadableDomainSendsNothing(t *testing.T) {
	c := newChain(t)
	c.live()
	c.setApproved(false)
	tokenABI := registry.ABI(registry.FERC1155)
	c.b.Handle(tokenAddr, tokenABI, "VERSION", ethtest.Returns(big.NewInt(1)))
	v := c.validator()

	_, err := v.SellFractions(context.Background(), vaultAddr, big.NewInt(10))
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerr.ErrChainRead)
	assert.Empty(t, c.b.Sent())
}

func TestStartGuards(t *testing.T) {
	tests := []struct {
		name  string
		setup func(c *chain)
		bid   string
		want  error
	}{
		{"not approved", func(c *chain) { c.setApproved(false) }, "0.5", ErrApprovalRequired},
		{"owns entire supply", func(c *chain) { c.setBalance(100) }, "0.5", ErrEntireSupply},
		{"owns nothing", func(c *chain) { c.setBalance(0) }, "0.5", sdkerr.ErrInsufficientBalance},
		{"bid equals balance", nil, "1", ErrInsufficientNative},
		{"bid above balance", nil, "1.5", ErrInsufficientNative},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newChain(t)
			if tt.setup != nil {
				tt.setup(c)
			}
			_, err := c.validator().Start(context.Background(), vaultAddr, tt.bid)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, c.b.Sent())
		})
	}
}

func TestInputValidatedBeforeReads(t *testing.T) {
	c := newChain(t)
	c.b.ReadErr = errors.New("unreachable")
	v := c.validator()
	ctx := context.Background()

	_, err := v.Start(ctx, vaultAddr, "half")
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	_, err = v.Start(ctx, vaultAddr, "0")
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	_, err = v.Start(ctx, common.Address{}, "0.5")
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	_, err = v.SellFractions(ctx, vaultAddr, big.NewInt(0))
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	_, err = v.BuyFractions(ctx, vaultAddr, nil)
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	_, err = v.WithdrawTokens(ctx, vaultAddr, nil)
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
}

func TestBuyGuards(t *testing.T) {
	ctx := context.Background()

	t.Run("exceeds pool", func(t *testing.T) {
		c := newChain(t)
		c.live()
		_, err := c.validator().BuyFractions(ctx, vaultAddr, big.NewInt(41))
		assert.ErrorIs(t, err, ErrExceedsPoolSupply)
		assert.Empty(t, c.b.Sent())
	})

	t.Run("insufficient native balance", func(t *testing.T) {
		c := newChain(t)
		c.live()
		c.b.SetBalance(callerAddr, ethAmount(0, 30))
		_, err := c.validator().BuyFractions(ctx, vaultAddr, big.NewInt(40))
		assert.ErrorIs(t, err, sdkerr.ErrInsufficientBalance)
		assert.Empty(t, c.b.Sent())
	})

	t.Run("after rejection period", func(t *testing.T) {
		c := newChain(t)
		c.live()
		c.advance(rejectionPeriod)
		_, err := c.validator().BuyFractions(ctx, vaultAddr, big.NewInt(5))
		assert.ErrorIs(t, err, ErrRejectionEnded)
		assert.Empty(t, c.b.Sent())
	})

	t.Run("pays amount times price", func(t *testing.T) {
		c := newChain(t)
		c.live()
		_, err := c.validator().BuyFractions(ctx, vaultAddr, big.NewInt(5))
		require.NoError(t, err)
		require.Len(t, c.b.Sent(), 1)
		assert.Equal(t, ethAmount(0, 5), c.b.Sent()[0].Value())
	})
}

func TestWithdrawTokens(t *testing.T) {
	ctx := context.Background()

	t.Run("proposer only", func(t *testing.T) {
		c := newChain(t)
		c.successful()
		c.mu.Lock()
		c.proposer = otherAddr
		c.mu.Unlock()
		_, err := c.validator().WithdrawTokens(ctx, vaultAddr, []types.Token{erc20Token})
		assert.ErrorIs(t, err, sdkerr.ErrAuthorization)
		assert.ErrorIs(t, err, ErrNotProposer)
		assert.Empty(t, c.b.Sent())
	})

	t.Run("encodes withdrawals with proofs", func(t *testing.T) {
		c := newChain(t)
		c.successful()
		_, err := c.validator().WithdrawTokens(ctx, vaultAddr, []types.Token{erc20Token})
		require.NoError(t, err)
		require.Len(t, c.b.Sent(), 1)

		method, args := decodeBuyout(t, c.b.Sent()[0].Data())
		require.Equal(t, "multicall", method)
		inner := args[0].([][]byte)
		require.Len(t, inner, 1)
		method, wargs := decodeBuyout(t, inner[0])
		assert.Equal(t, "withdrawERC20", method)
		assert.Equal(t, callerAddr, wargs[2])
		assert.Equal(t, [][32]byte(testBundle.WithdrawERC20), wargs[4])
	})
}

func TestCashRequiresFractions(t *testing.T) {
	c := newChain(t)
	c.successful()
	c.setBalance(0)
	_, err := c.validator().CashProceeds(context.Background(), vaultAddr)
	assert.ErrorIs(t, err, sdkerr.ErrInsufficientBalance)
	assert.Empty(t, c.b.Sent())
}

func TestUnsupportedModuleCombination(t *testing.T) {
	c := newChain(t)
	c.live()
	c.advance(rejectionPeriod)
	v := c.validatorWith(c.signing(), StaticModules{"LPDA"})
	_, err := v.End(context.Background(), vaultAddr)
	assert.ErrorIs(t, err, sdkerr.ErrConfiguration)
	assert.Empty(t, c.b.Sent())
}

func TestReadOnlyConnectionCannotWrite(t *testing.T) {
	c := newChain(t)
	v := c.validatorWith(eth.NewReadOnly(c.b), StaticModules{"Buyout"})
	_, err := v.Start(context.Background(), vaultAddr, "0.5")
	assert.ErrorIs(t, err, sdkerr.ErrAuthorization)

	watch := c.validatorWith(eth.NewReadOnly(c.b, callerAddr), StaticModules{"Buyout"})
	_, err = watch.Start(context.Background(), vaultAddr, "0.5")
	assert.ErrorIs(t, err, sdkerr.ErrAuthorization)
	assert.Empty(t, c.b.Sent())
}

func TestChainReadFailure(t *testing.T) {
	c := newChain(t)
	c.b.ReadErr = errors.New("connection refused")
	_, err := c.validator().Start(context.Background(), vaultAddr, "0.5")
	require.Error(t, err)
	assert.ErrorIs(t, err, sdkerr.ErrChainRead)
	assert.Contains(t, err.Error(), "chain read failed: connection refused")
	assert.Empty(t, c.b.Sent())
}

func TestEstimateDoesNotSend(t *testing.T) {
	c := newChain(t)
	c.live()
	est, err := c.validator().EstimateBuyFractions(context.Background(), vaultAddr, big.NewInt(5))
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), est.GasLimit)
	assert.NotNil(t, est.TotalGasFee)
	assert.Empty(t, c.b.Sent())
}

func TestQueueSerializesPerVault(t *testing.T) {
	c := newChain(t)
	q := NewQueue()
	v := c.validator(WithQueue(q))

	release, err := q.Acquire(context.Background(), vaultAddr)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = v.Start(ctx, vaultAddr, "0.5")
	assert.ErrorIs(t, err, sdkerr.ErrTimeout)
	assert.Empty(t, c.b.Sent())

	other, err := q.Acquire(context.Background(), common.HexToAddress("0x0b"))
	require.NoError(t, err)
	other()

	release()
	_, err = v.Start(context.Background(), vaultAddr, "0.5")
	require.NoError(t, err)
	assert.Len(t, c.b.Sent(), 1)
}
