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

type ERC721 struct {
	contract
}

func NewERC721(exec *executor.Executor, address common.Address) *ERC721 {
	return &ERC721{contract{exec: exec, address: address, abi: registry.ABI(registry.ERC721), name: "erc721"}}
}

func (t *ERC721) OwnerOf(ctx context.Context, id *big.Int) (common.Address, error) {
	if err := requireNonNegative(t.op("ownerOf"), "token id", id); err != nil {
		return common.Address{}, err
	}
	v, err := t.call(ctx, "ownerOf", id)
	if err != nil {
		return common.Address{}, err
	}
	owner, ok := v.(common.Address)
	if !ok {
		return common.Address{}, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: t.op("ownerOf"), Msg: "chain read failed", Reason: errUnexpectedRead}
	}
	return owner, nil
}

func (t *ERC721) IsApprovedForAll(ctx context.Context, owner, operator common.Address) (bool, error) {
	return t.boolCall(ctx, "isApprovedForAll", owner, operator)
}

func (t *ERC721) SetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (*types.Receipt, error) {
	return t.send(ctx, func() (executor.CallSpec, error) { return t.prepareApprovalForAll(operator, approved) })
}

func (t *ERC721) EstimateSetApprovalForAll(ctx context.Context, operator common.Address, approved bool) (types.GasEstimate, error) {
	return t.estimate(ctx, func() (executor.CallSpec, error) { return t.prepareApprovalForAll(operator, approved) })
}

func (t *ERC721) prepareApprovalForAll(operator common.Address, approved bool) (executor.CallSpec, error) {
	const method = "setApprovalForAll"
	if err := requireAddress(t.op(method), "operator", operator); err != nil {
		return executor.CallSpec{}, err
	}
	return t.spec(method, operator, approved), nil
}

// SafeTransferFrom moves token id from `from` to `to`. With data it calls the
// four-argument overload, which hands data to a receiving contract.
func (t *ERC721) SafeTransferFrom(ctx context.Context, from, to common.Address, id *big.Int, data []byte) (*types.Receipt, error) {
	return t.send(ctx, func() (executor.CallSpec, error) { return t.prepareTransfer(from, to, id, data) })
}

func (t *ERC721) EstimateSafeTransferFrom(ctx context.Context, from, to common.Address, id *big.Int, data []byte) (types.GasEstimate, error) {
	return t.estimate(ctx, func() (executor.CallSpec, error) { return t.prepareTransfer(from, to, id, data) })
}

func (t *ERC721) prepareTransfer(from, to common.Address, id *big.Int, data []byte) (executor.CallSpec, error) {
	op := t.op("safeTransferFrom")
	if err := requireAddress(op, "from", from); err != nil {
		return executor.CallSpec{}, err
	}
	if err := requireAddress(op, "to", to); err != nil {
		return executor.CallSpec{}, err
	}
	if err := requireNonNegative(op, "token id", id); err != nil {
		return executor.CallSpec{}, err
	}
	if len(data) == 0 {
		spec := t.spec("safeTransferFrom", from, to, id)
		spec.Op = op
		return spec, nil
	}
	spec := t.spec("safeTransferFrom0", from, to, id, data)
	spec.Op = op
	return spec, nil
}
