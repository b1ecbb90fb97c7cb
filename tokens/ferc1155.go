package tokens

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
)

// FERC1155 is the fraction token of a vault. Any standard ERC1155 contract
// can be driven through it for approvals and transfers.
type FERC1155 struct {
	contract
}

func NewFERC1155(exec *executor.Executor, address common.Address) *FERC1155 {
	return &FERC1155{contract{exec: exec, address: address, abi: registry.ABI(registry.FERC1155), name: "ferc1155"}}
}

func (t *FERC1155) BalanceOf(ctx context.Context, owner common.Address, id *big.Int) (*big.Int, error) {
	if err := requireNonNegative(t.op("balanceOf"), "token id", id); err != nil {
		return nil, err
	}
	return t.bigCall(ctx, "balanceOf", owner, id)
}

func (t *FERC1155) TotalSupply(ctx context.Context, id *big.Int) (*big.Int, error) {
	if err := requireNonNegative(t.op("totalSupply"), "token id", id); err != nil {
		return nil, err
	}
	return t.bigCall(ctx, "totalSupply", id)
}

func (t *FERC1155) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return t.boolCall(ctx, "isApprovedForAll", owner, operator)
}

// IsApproved reports the per-id approval of operator over owner's fractions.
func (t *FERC1155) IsApproved(ctx context.Context, owner, operator common.Address, id *big.Int) (bool, error) {
	if err := requireNonNegative(t.op("isApproved"), "token id", id); err != nil {
		return false, err
	}
	return t.boolCall(ctx, "isApproved", owner, operator, id)
}

// SetApprovalForAll grants or revokes operator control of every id the caller holds.
func (t *FERC1155) SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (*types.Receipt, error) {
	return t.send(ctx, func() (executor.CallSpec, error) { return t.prepareApprovalForAll(operator, approved) })
}

func (t *FERC1155) EstimateSetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (types.GasEstimate, error) {
	return t.estimate(ctx, func() (executor.CallSpec, error) { return t.prepareApprovalForAll(operator, approved) })
}

func (t *FERC1155) prepareApprovalForAll(operator common.Address, approved bool) (executor.CallSpec, error) {
	const method = "setApprovalForAll"
	if err := requireAddress(t.op(method), "operator", operator); err != nil {
		return executor.CallSpec{}, err
	}
	return t.spec(method, operator, approved), nil
}

// SetApprovalFor grants or revokes operator control of one id.
func (t *FERC1155) SetApprovalFor(ctx context.Context, operator common.Address, id *big.Int, approved bool) (*types.Receipt, error) {
	return t.send(ctx, func() (executor.CallSpec, error) { return t.prepareApprovalFor(operator, id, approved) })
}

func (t *FERC1155) EstimateSetApprovalFor(ctx context.Context, operator common.Address, id *big.Int, approved bool) (types.GasEstimate, error) {
	return t.estimate(ctx, func() (executor.CallSpec, error) { return t.prepareApprovalFor(operator, id, approved) })
}

func (t *FERC1155) prepareApprovalFor(operator common.Address, id *big.Int, approved bool) (executor.CallSpec, error) {
	const method = "setApprovalFor"
	op := t.op(method)
	if err := requireAddress(op, "operator", operator); err != nil {
		return executor.CallSpec{}, err
	}
	if err := requireNonNegative(op, "token id", id); err != nil {
		return executor.CallSpec{}, err
	}
	return t.spec(method, operator, id, approved), nil
}

// SafeTransferFrom moves amount of id from `from` to `to`. Nil data is sent
// as empty bytes.
func (t *FERC1155) SafeTransferFrom(ctx context.Context, from, to common.Address, id, amount *big.Int, data []byte) (*types.Receipt, error) {
	return t.send(ctx, func() (executor.CallSpec, error) { return t.prepareTransfer(from, to, id, amount, data) })
}

func (t *FERC1155) EstimateSafeTransferFrom(ctx context.Context, from, to common.Address, id, amount *big.Int, data []byte) (types.GasEstimate, error) {
	return t.estimate(ctx, func() (executor.CallSpec, error) { return t.prepareTransfer(from, to, id, amount, data) })
}

func (t *FERC1155) prepareTransfer(from, to common.Address, id, amount *big.Int, data []byte) (executor.CallSpec, error) {
	const method = "safeTransferFrom"
	op := t.op(method)
	if err := requireAddress(op, "from", from); err != nil {
		return executor.CallSpec{}, err
	}
	if err := requireAddress(op, "to", to); err != nil {
		return executor.CallSpec{}, err
	}
	if err := requireNonNegative(op, "token id", id); err != nil {
		return executor.CallSpec{}, err
	}
	if err := requireNonNegative(op, "amount", amount); err != nil {
		return executor.CallSpec{}, err
	}
	return t.spec(method, from, to, id, amount, orEmpty(data)), nil
}

// SafeBatchTransferFrom moves amounts[i] of ids[i] from `from` to `to` in one call.
func (t *FERC1155) SafeBatchTransferFrom(ctx context.Context, from, to common.Address, ids, amounts []*big.Int, data []byte) (*types.Receipt, error) {
	return t.send(ctx, func() (executor.CallSpec, error) { return t.prepareBatchTransfer(from, to, ids, amounts, data) })
}

func (t *FERC1155) EstimateSafeBatchTransferFrom(ctx context.Context, from, to common.Address, ids, amounts []*big.Int, data []byte) (types.GasEstimate, error) {
	return t.estimate(ctx, func() (executor.CallSpec, error) { return t.prepareBatchTransfer(from, to, ids, amounts, data) })
}

func (t *FERC1155) prepareBatchTransfer(from, to common.Address, ids, amounts []*big.Int, data []byte) (executor.CallSpec, error) {
	const method = "safeBatchTransferFrom"
	op := t.op(method)
	if err := requireAddress(op, "from", from); err != nil {
		return executor.CallSpec{}, err
	}
	if err := requireAddress(op, "to", to); err != nil {
		return executor.CallSpec{}, err
	}
	if len(ids) == 0 {
		return executor.CallSpec{}, sdkerr.Validation(op, "token ids must not be empty")
	}
	if len(ids) != len(amounts) {
		return executor.CallSpec{}, sdkerr.Validation(op, "got %d token ids and %d amounts", len(ids), len(amounts))
	}
	for i := range ids {
		if err := requireNonNegative(op, "token id", ids[i]); err != nil {
			return executor.CallSpec{}, err
		}
		if err := requireNonNegative(op, "amount", amounts[i]); err != nil {
			return executor.CallSpec{}, err
		}
	}
	return t.spec(method, from, to, ids, amounts, orEmpty(data)), nil
}
