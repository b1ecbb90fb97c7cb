package tokens

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/types"
)

type ERC20 struct {
	contract
}

func NewERC20(exec *executor.Executor, address common.Address) *ERC20 {
	return &ERC20{contract{exec: exec, address: address, abi: registry.ABI(registry.ERC20), name: "erc20"}}
}

func (t *ERC20) BalanceOf(ctx context.Context, owner common.Address) (*big.Int, error) {
	return t.bigCall(ctx, "balanceOf", owner)
}

func (t *ERC20) Allowance(ctx context.Context, owner, spender common.Address) (*big.Int, error) {
	return t.bigCall(ctx, "allowance", owner, spender)
}

// Approve sets spender's allowance over the caller's balance to value.
func (t *ERC20) Approve(ctx context.Context, spender common.Address, value *big.Int) (*types.Receipt, error) {
	return t.send(ctx, func() (executor.CallSpec, error) { return t.prepareApprove(spender, value) })
}

func (t *ERC20) EstimateApprove(ctx context.Context, spender common.Address, value *big.Int) (types.GasEstimate, error) {
	return t.estimate(ctx, func() (executor.CallSpec, error) { return t.prepareApprove(spender, value) })
}

func (t *ERC20) prepareApprove(spender common.Address, value *big.Int) (executor.CallSpec, error) {
	const method = "approve"
	op := t.op(method)
	if err := requireAddress(op, "spender", spender); err != nil {
		return executor.CallSpec{}, err
	}
	if err := requireNonNegative(op, "amount", value); err != nil {
		return executor.CallSpec{}, err
	}
	return t.spec(method, spender, value), nil
}
