package eth

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// stubBackend answers only ChainID and BalanceAt.
type stubBackend struct {
	chainID  *big.Int
	balances map[common.Address]*big.Int
	fail     error
}

func (b *stubBackend) ChainID(context.Context) (*big.Int, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	return b.chainID, nil
}

func (b *stubBackend) BalanceAt(_ context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	if b.fail != nil {
		return nil, b.fail
	}
	if bal, ok := b.balances[a]; ok {
		return bal, nil
	}
	return big.NewInt(0), nil
}

var errUnused = errors.New("unused")

func (b *stubBackend) CodeAt(context.Context, common.Address, *big.Int) ([]byte, error) {
	return nil, errUnused
}
func (b *stubBackend) CallContract(context.Context, ethereum.CallMsg, *big.Int) ([]byte, error) {
	return nil, errUnused
}
func (b *stubBackend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return nil, errUnused
}
func (b *stubBackend) PendingCodeAt(context.Context, common.Address) ([]byte, error) {
	return nil, errUnused
}
func (b *stubBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return 0, errUnused
}
func (b *stubBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return nil, errUnused }
func (b *stubBackend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return nil, errUnused
}
func (b *stubBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 0, errUnused
}
func (b *stubBackend) SendTransaction(context.Context, *types.Transaction) error { return errUnused }
func (b *stubBackend) FilterLogs(context.Context, ethereum.FilterQuery) ([]types.Log, error) {
	return nil, errUnused
}
func (b *stubBackend) SubscribeFilterLogs(context.Context, ethereum.FilterQuery, chan<- types.Log) (ethereum.Subscription, error) {
	return nil, errUnused
}
func (b *stubBackend) TransactionReceipt(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, errUnused
}
