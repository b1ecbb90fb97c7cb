// Package tokens approves and transfers the tokens around a vault: the
// FERC1155 fraction token and the ERC20, ERC721 and ERC1155 assets deposited
// into vaults. Every write has an Estimate twin that sends nothing.
package tokens

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
)

const errUnexpectedRead = "unexpected result"

// contract is one token contract bound to an executor.
type contract struct {
	exec    *executor.Executor
	address common.Address
	abi     *abi.ABI
	name    string
}

func (c contract) Address() common.Address { return c.address }

func (c contract) op(method string) string { return c.name + "." + method }

func (c contract) spec(method string, args ...any) executor.CallSpec {
	return executor.CallSpec{Op: c.op(method), To: c.address, ABI: c.abi, Method: method, Args: args}
}

type prepareFunc func() (executor.CallSpec, error)

func (c contract) send(ctx context.Context, prepare prepareFunc) (*types.Receipt, error) {
	spec, err := prepare()
	if err != nil {
		return nil, err
	}
	return c.exec.Send(ctx, spec)
}

func (c contract) estimate(ctx context.Context, prepare prepareFunc) (types.GasEstimate, error) {
	spec, err := prepare()
	if err != nil {
		return types.GasEstimate{}, err
	}
	return c.exec.Estimate(ctx, spec)
}

func (c contract) call(ctx context.Context, method string, args ...any) (any, error) {
	out, err := c.exec.Call(ctx, c.address, c.abi, method, args...)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: c.op(method), Msg: "chain read failed", Reason: errUnexpectedRead}
	}
	return out[0], nil
}

func (c contract) boolCall(ctx context.Context, method string, args ...any) (bool, error) {
	v, err := c.call(ctx, method, args...)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: c.op(method), Msg: "chain read failed", Reason: errUnexpectedRead}
	}
	return b, nil
}

func (c contract) bigCall(ctx context.Context, method string, args ...any) (*big.Int, error) {
	v, err := c.call(ctx, method, args...)
	if err != nil {
		return nil, err
	}
	n, ok := v.(*big.Int)
	if !ok {
		return nil, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: c.op(method), Msg: "chain read failed", Reason: errUnexpectedRead}
	}
	return n, nil
}

func requireAddress(op, name string, addr common.Address) error {
	if addr == (common.Address{}) {
		return sdkerr.Validation(op, "%s address must not be zero", name)
	}
	return nil
}

func requireNonNegative(op, name string, v *big.Int) error {
	if v == nil || v.Sign() < 0 {
		return sdkerr.Validation(op, "invalid %s", name)
	}
	return nil
}

func orEmpty(data []byte) []byte {
	if data == nil {
		return []byte{}
	}
	return data
}
