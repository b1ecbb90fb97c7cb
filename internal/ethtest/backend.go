// Package ethtest provides an in-memory chain backend for tests. Contract
// calls are dispatched to handlers by address and method name; sent
// transactions are recorded and receive a successful receipt unless told
// otherwise.
package ethtest

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
)

// Handler answers one contract method. args are the decoded inputs.
type Handler func(args []any) ([]any, error)

type contract struct {
	abi      *abi.ABI
	handlers map[string]Handler
}

// Backend is a fake chain. The zero value is not usable; call New.
type Backend struct {
	mu sync.Mutex

	chainID   *big.Int
	balances  map[common.Address]*big.Int
	contracts map[common.Address]*contract
	nonces    map[common.Address]uint64
	logs      []types.Log
	sent      []*types.Transaction
	receipts  map[common.Hash]*types.Receipt
	feed      event.Feed

	// BaseFee is reported in the latest header; nil means a pre-London chain.
	BaseFee   *big.Int
	GasPrice  *big.Int
	GasTipCap *big.Int
	GasLimit  uint64
	// EstimateErr fails every gas estimation.
	EstimateErr error
	// ReadErr fails every contract call.
	ReadErr error
	// ReceiptStatus is the status given to mined transactions.
	ReceiptStatus uint64
	// Pending leaves sent transactions without a receipt.
	Pending bool
	// ReceiptLogs are attached to every receipt.
	ReceiptLogs []*types.Log
	// OnSend runs after a transaction is recorded and before its receipt exists.
	OnSend func(tx *types.Transaction)
}

// New returns an empty London chain with the given id.
func New(chainID int64) *Backend {
	return &Backend{
		chainID:       big.NewInt(chainID),
		balances:      make(map[common.Address]*big.Int),
		contracts:     make(map[common.Address]*contract),
		nonces:        make(map[common.Address]uint64),
		receipts:      make(map[common.Hash]*types.Receipt),
		BaseFee:       big.NewInt(10_000_000_000),
		GasPrice:      big.NewInt(12_000_000_000),
		GasTipCap:     big.NewInt(1_500_000_000),
		GasLimit:      100_000,
		ReceiptStatus: types.ReceiptStatusSuccessful,
	}
}

// SetBalance sets an account's native balance.
func (b *Backend) SetBalance(addr common.Address, wei *big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[addr] = new(big.Int).Set(wei)
}

// Handle installs h for method on the contract at addr.
func (b *Backend) Handle(addr common.Address, contractABI *abi.ABI, method string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	c, ok := b.contracts[addr]
	if !ok {
		c = &contract{abi: contractABI, handlers: make(map[string]Handler)}
		b.contracts[addr] = c
	}
	c.handlers[method] = h
}

// Returns is a Handler that always answers with out.
func Returns(out ...any) Handler {
	return func([]any) ([]any, error) { return out, nil }
}

// AddLog appends a historical log visible to FilterLogs.
func (b *Backend) AddLog(l types.Log) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.logs = append(b.logs, l)
}

// Emit delivers l to live subscribers.
func (b *Backend) Emit(l types.Log) int {
	return b.feed.Send(l)
}

// Sent returns the transactions submitted so far.
func (b *Backend) Sent() []*types.Transaction {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*types.Transaction(nil), b.sent...)
}

// Decode splits calldata into its method and inputs.
func Decode(contractABI *abi.ABI, data []byte) (*abi.Method, []any, error) {
	if len(data) < 4 {
		return nil, nil, errors.New("calldata too short")
	}
	m, err := contractABI.MethodById(data[:4])
	if err != nil {
		return nil, nil, err
	}
	args, err := m.Inputs.Unpack(data[4:])
	if err != nil {
		return nil, nil, err
	}
	return m, args, nil
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) BalanceAt(_ context.Context, account common.Address, _ *big.Int) (*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if bal, ok := b.balances[account]; ok {
		return new(big.Int).Set(bal), nil
	}
	return new(big.Int), nil
}

func (b *Backend) CodeAt(_ context.Context, addr common.Address, _ *big.Int) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.contracts[addr]; ok {
		return []byte{0x60}, nil
	}
	return nil, nil
}

func (b *Backend) PendingCodeAt(ctx context.Context, addr common.Address) ([]byte, error) {
	return b.CodeAt(ctx, addr, nil)
}

func (b *Backend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if b.ReadErr != nil {
		return nil, b.ReadErr
	}
	if msg.To == nil {
		return nil, errors.New("call without target")
	}
	b.mu.Lock()
	c, ok := b.contracts[*msg.To]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no contract at %s", msg.To.Hex())
	}
	m, args, err := Decode(c.abi, msg.Data)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	h, ok := c.handlers[m.Name]
	b.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no handler for %s on %s", m.Name, msg.To.Hex())
	}
	out, err := h(args)
	if err != nil {
		return nil, err
	}
	return m.Outputs.Pack(out...)
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	h := &types.Header{Number: big.NewInt(1)}
	if b.BaseFee != nil {
		h.BaseFee = new(big.Int).Set(b.BaseFee)
	}
	return h, nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.GasPrice), nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.GasTipCap), nil
}

func (b *Backend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	if b.EstimateErr != nil {
		return 0, b.EstimateErr
	}
	return b.GasLimit, nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	from, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.sent = append(b.sent, tx)
	b.nonces[from] = tx.Nonce() + 1
	b.mu.Unlock()

	if b.OnSend != nil {
		b.OnSend(tx)
	}
	if b.Pending {
		return nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	logs := make([]*types.Log, len(b.ReceiptLogs))
	for i, l := range b.ReceiptLogs {
		cp := *l
		cp.TxHash = tx.Hash()
		logs[i] = &cp
	}
	b.receipts[tx.Hash()] = &types.Receipt{
		Status:      b.ReceiptStatus,
		TxHash:      tx.Hash(),
		BlockNumber: big.NewInt(int64(len(b.sent))),
		GasUsed:     tx.Gas() / 2,
		Logs:        logs,
	}
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	r, ok := b.receipts[hash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return r, nil
}

func (b *Backend) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]types.Log, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []types.Log
	for _, l := range b.logs {
		if matches(q, l) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (b *Backend) SubscribeFilterLogs(ctx context.Context, q ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	in := make(chan types.Log, 16)
	sub := b.feed.Subscribe(in)
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-in:
				if !matches(q, l) {
					continue
				}
				select {
				case ch <- l:
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}), nil
}

func matches(q ethereum.FilterQuery, l types.Log) bool {
	if len(q.Addresses) > 0 {
		found := false
		for _, a := range q.Addresses {
			if a == l.Address {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	for i, alts := range q.Topics {
		if len(alts) == 0 {
			continue
		}
		if i >= len(l.Topics) {
			return false
		}
		found := false
		for _, t := range alts {
			if t == l.Topics[i] {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
