package tokens

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fractional-company/vault-sdk-go/eth"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/internal/ethtest"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	callerAddr   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	operatorAddr = common.HexToAddress("0x0000000000000000000000000000000000000b01")
	receiverAddr = common.HexToAddress("0x0000000000000000000000000000000000000b02")

	fercAddr  = common.HexToAddress("0x0000000000000000000000000000000000000e01")
	erc20Addr = common.HexToAddress("0x0000000000000000000000000000000000000e02")
	nftAddr   = common.HexToAddress("0x0000000000000000000000000000000000000e03")
)

func signingExec(t *testing.T, b *ethtest.Backend) *executor.Executor {
	t.Helper()
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(t, err)
	return executor.New(eth.NewSigning(b, key, big.NewInt(4)), executor.Options{})
}

// sent decodes the calldata of the i-th sent transaction.
func sent(t *testing.T, b *ethtest.Backend, i int, kind registry.Kind) (common.Address, string, []any) {
	t.Helper()
	require.Greater(t, len(b.Sent()), i)
	tx := b.Sent()[i]
	m, args, err := ethtest.Decode(registry.ABI(kind), tx.Data())
	require.NoError(t, err)
	return *tx.To(), m.Name, args
}

func TestFERC1155SetApprovalForAll(t *testing.T) {
	b := ethtest.New(4)
	token := NewFERC1155(signingExec(t, b), fercAddr)

	_, err := token.SetApprovalForAll(context.Background(), operatorAddr, true)
	require.NoError(t, err)
	to, method, args := sent(t, b, 0, registry.FERC1155)
	assert.Equal(t, fercAddr, to)
	assert.Equal(t, "setApprovalForAll", method)
	assert.Equal(t, operatorAddr, args[0])
	assert.Equal(t, true, args[1])

	_, err = token.SetApprovalForAll(context.Background(), common.Address{}, true)
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	assert.Len(t, b.Sent(), 1)
}

func TestFERC1155SetApprovalFor(t *testing.T) {
	b := ethtest.New(4)
	token := NewFERC1155(signingExec(t, b), fercAddr)

	_, err := token.SetApprovalFor(context.Background(), operatorAddr, big.NewInt(3), false)
	require.NoError(t, err)
	_, method, args := sent(t, b, 0, registry.FERC1155)
	assert.Equal(t, "setApprovalFor", method)
	assert.Equal(t, big.NewInt(3), args[1])
	assert.Equal(t, false, args[2])

	_, err = token.SetApprovalFor(context.Background(), operatorAddr, big.NewInt(-1), true)
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
}

func TestFERC1155SafeTransferFrom(t *testing.T) {
	b := ethtest.New(4)
	token := NewFERC1155(signingExec(t, b), fercAddr)

	_, err := token.SafeTransferFrom(context.Background(), callerAddr, receiverAddr, big.NewInt(1), big.NewInt(25), nil)
	require.NoError(t, err)
	_, method, args := sent(t, b, 0, registry.FERC1155)
	assert.Equal(t, "safeTransferFrom", method)
	assert.Equal(t, callerAddr, args[0])
	assert.Equal(t, receiverAddr, args[1])
	assert.Equal(t, big.NewInt(1), args[2])
	assert.Equal(t, big.NewInt(25), args[3])
	assert.Equal(t, []byte{}, args[4])

	_, err = token.SafeTransferFrom(context.Background(), callerAddr, common.Address{}, big.NewInt(1), big.NewInt(1), nil)
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	_, err = token.SafeTransferFrom(context.Background(), callerAddr, receiverAddr, big.NewInt(1), nil, nil)
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	assert.Len(t, b.Sent(), 1)
}

func TestFERC1155SafeBatchTransferFrom(t *testing.T) {
	b := ethtest.New(4)
	token := NewFERC1155(signingExec(t, b), fercAddr)
	ctx := context.Background()

	ids := []*big.Int{big.NewInt(1), big.NewInt(2)}
	_, err := token.SafeBatchTransferFrom(ctx, callerAddr, receiverAddr, ids, []*big.Int{big.NewInt(5), big.NewInt(6)}, []byte{0x01})
	require.NoError(t, err)
	_, method, args := sent(t, b, 0, registry.FERC1155)
	assert.Equal(t, "safeBatchTransferFrom", method)
	assert.Equal(t, ids, args[2])
	assert.Equal(t, []*big.Int{big.NewInt(5), big.NewInt(6)}, args[3])
	assert.Equal(t, []byte{0x01}, args[4])

	tests := []struct {
		name    string
		ids     []*big.Int
		amounts []*big.Int
	}{
		{"empty", nil, nil},
		{"length mismatch", ids, []*big.Int{big.NewInt(1)}},
		{"negative amount", ids, []*big.Int{big.NewInt(1), big.NewInt(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := token.SafeBatchTransferFrom(ctx, callerAddr, receiverAddr, tt.ids, tt.amounts, nil)
			assert.ErrorIs(t, err, sdkerr.ErrValidation)
		})
	}
	assert.Len(t, b.Sent(), 1)
}

func TestFERC1155Reads(t *testing.T) {
	b := ethtest.New(4)
	tokenABI := registry.ABI(registry.FERC1155)
	b.Handle(fercAddr, tokenABI, "isApproved", func(args []any) ([]any, error) {
		return []any{args[2].(*big.Int).Int64() == 7}, nil
	})
	b.Handle(fercAddr, tokenABI, "isApprovedForAll", ethtest.Returns(true))
	b.Handle(fercAddr, tokenABI, "balanceOf", ethtest.Returns(big.NewInt(40)))
	b.Handle(fercAddr, tokenABI, "totalSupply", ethtest.Returns(big.NewInt(100)))
	token := NewFERC1155(executor.New(eth.NewReadOnly(b), executor.Options{}), fercAddr)
	ctx := context.Background()

	ok, err := token.IsApproved(ctx, callerAddr, operatorAddr, big.NewInt(7))
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = token.IsApproved(ctx, callerAddr, operatorAddr, big.NewInt(8))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = token.IsApprovedForAll(ctx, callerAddr, operatorAddr)
	require.NoError(t, err)
	assert.True(t, ok)

	bal, err := token.BalanceOf(ctx, callerAddr, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, "40", bal.String())
	supply, err := token.TotalSupply(ctx, big.NewInt(7))
	require.NoError(t, err)
	assert.Equal(t, "100", supply.String())
}

func TestReadOnlyCannotApprove(t *testing.T) {
	b := ethtest.New(4)
	token := NewFERC1155(executor.New(eth.NewReadOnly(b, callerAddr), executor.Options{}), fercAddr)

	_, err := token.SetApprovalForAll(context.Background(), operatorAddr, true)
	assert.ErrorIs(t, err, sdkerr.ErrAuthorization)
	assert.Empty(t, b.Sent())
}

func TestERC20Approve(t *testing.T) {
	b := ethtest.New(4)
	token := NewERC20(signingExec(t, b), erc20Addr)
	ctx := context.Background()

	est, err := token.EstimateApprove(ctx, operatorAddr, big.NewInt(1000))
	require.NoError(t, err)
	assert.NotZero(t, est.GasLimit)
	assert.Empty(t, b.Sent())

	_, err = token.Approve(ctx, operatorAddr, big.NewInt(1000))
	require.NoError(t, err)
	to, method, args := sent(t, b, 0, registry.ERC20)
	assert.Equal(t, erc20Addr, to)
	assert.Equal(t, "approve", method)
	assert.Equal(t, operatorAddr, args[0])
	assert.Equal(t, big.NewInt(1000), args[1])

	_, err = token.Approve(ctx, operatorAddr, big.NewInt(-5))
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	_, err = token.Approve(ctx, common.Address{}, big.NewInt(5))
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	assert.Len(t, b.Sent(), 1)
}

func TestERC721(t *testing.T) {
	b := ethtest.New(4)
	token := NewERC721(signingExec(t, b), nftAddr)
	ctx := context.Background()

	_, err := token.SetApprovalForAll(ctx, operatorAddr, true)
	require.NoError(t, err)
	_, method, args := sent(t, b, 0, registry.ERC721)
	assert.Equal(t, "setApprovalForAll", method)
	assert.Equal(t, operatorAddr, args[0])

	_, err = token.SafeTransferFrom(ctx, callerAddr, receiverAddr, big.NewInt(9), nil)
	require.NoError(t, err)
	_, method, args = sent(t, b, 1, registry.ERC721)
	assert.Equal(t, "safeTransferFrom", method)
	require.Len(t, args, 3)
	assert.Equal(t, big.NewInt(9), args[2])

	_, err = token.SafeTransferFrom(ctx, callerAddr, receiverAddr, big.NewInt(9), []byte{0xbe, 0xef})
	require.NoError(t, err)
	_, method, args = sent(t, b, 2, registry.ERC721)
	assert.Equal(t, "safeTransferFrom0", method)
	require.Len(t, args, 4)
	assert.Equal(t, []byte{0xbe, 0xef}, args[3])

	_, err = token.SafeTransferFrom(ctx, common.Address{}, receiverAddr, big.NewInt(9), nil)
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	assert.Len(t, b.Sent(), 3)
}

func TestApproverPlanAndGrant(t *testing.T) {
	b := ethtest.New(4)
	b.Handle(erc20Addr, registry.ABI(registry.ERC20), "allowance", ethtest.Returns(big.NewInt(100)))
	b.Handle(nftAddr, registry.ABI(registry.ERC721), "isApprovedForAll", ethtest.Returns(true))
	b.Handle(fercAddr, registry.ABI(registry.FERC1155), "isApprovedForAll", ethtest.Returns(false))
	a := NewApprover(signingExec(t, b), operatorAddr)
	ctx := context.Background()

	deposit := []types.Token{
		{Standard: "ERC20", Address: erc20Addr.Hex(), Amount: big.NewInt(60)},
		{Standard: "ERC721", Address: nftAddr.Hex(), ID: big.NewInt(1)},
		{Standard: "ERC1155", Address: fercAddr.Hex(), ID: big.NewInt(1), Amount: big.NewInt(2)},
		{Standard: "erc20", Address: erc20Addr.Hex(), Amount: big.NewInt(60)},
		{Standard: "ERC1155", Address: fercAddr.Hex(), ID: big.NewInt(2), Amount: big.NewInt(2)},
	}
	plan, err := a.Plan(ctx, callerAddr, deposit)
	require.NoError(t, err)
	require.Len(t, plan, 3)
	assert.Equal(t, types.ERC20, plan[0].Standard)
	assert.Equal(t, "120", plan[0].Amount.String())
	assert.False(t, plan[0].Granted)
	assert.True(t, plan[1].Granted)
	assert.Nil(t, plan[1].Amount)
	assert.False(t, plan[2].Granted)

	ests, err := a.EstimateGrant(ctx, deposit)
	require.NoError(t, err)
	assert.Len(t, ests, 2)
	assert.Empty(t, b.Sent())

	receipts, err := a.Grant(ctx, deposit)
	require.NoError(t, err)
	assert.Len(t, receipts, 2)
	require.Len(t, b.Sent(), 2)

	to, method, args := sent(t, b, 0, registry.ERC20)
	assert.Equal(t, erc20Addr, to)
	assert.Equal(t, "approve", method)
	assert.Equal(t, operatorAddr, args[0])
	assert.Equal(t, big.NewInt(120), args[1])

	to, method, args = sent(t, b, 1, registry.FERC1155)
	assert.Equal(t, fercAddr, to)
	assert.Equal(t, "setApprovalForAll", method)
	assert.Equal(t, operatorAddr, args[0])
	assert.Equal(t, true, args[1])
}

func TestApproverRejectsInvalidBatch(t *testing.T) {
	b := ethtest.New(4)
	a := NewApprover(signingExec(t, b), operatorAddr)

	_, err := a.Grant(context.Background(), []types.Token{{Standard: "ERC777", Address: erc20Addr.Hex()}})
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	_, err = NewApprover(signingExec(t, b), common.Address{}).Plan(context.Background(), callerAddr, []types.Token{
		{Standard: "ERC20", Address: erc20Addr.Hex(), Amount: big.NewInt(1)},
	})
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	assert.Empty(t, b.Sent())
}
