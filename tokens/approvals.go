package tokens

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/batch"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/types"
	"golang.org/x/sync/errgroup"
)

// Approval is one token contract an operator must be allowed to pull from.
type Approval struct {
	Standard types.TokenStandard `json:"standard"`
	Token    common.Address      `json:"token"`
	// Amount is the ERC20 allowance needed. It is nil for operator approvals.
	Amount  *big.Int `json:"amount,omitempty"`
	Granted bool     `json:"granted"`
}

// Approver grants an operator, usually BaseVault, the approvals a batch
// deposit pulls tokens with.
type Approver struct {
	exec     *executor.Executor
	operator common.Address
}

func NewApprover(exec *executor.Executor, operator common.Address) *Approver {
	return &Approver{exec: exec, operator: operator}
}

func (a *Approver) Operator() common.Address { return a.operator }

// Plan lists one approval per token contract in order of first appearance,
// with ERC20 amounts of the same token summed, and reads which of them owner
// has already granted.
func (a *Approver) Plan(ctx context.Context, owner common.Address, tokens []types.Token) ([]Approval, error) {
	const op = "tokens.approve"
	if err := requireAddress(op, "operator", a.operator); err != nil {
		return nil, err
	}
	entries, err := batch.Validate(op, tokens)
	if err != nil {
		return nil, err
	}

	var plan []Approval
	index := make(map[common.Address]int)
	for _, e := range entries {
		i, ok := index[e.Address]
		if !ok {
			i = len(plan)
			index[e.Address] = i
			plan = append(plan, Approval{Standard: e.Standard, Token: e.Address})
		}
		if e.Standard == types.ERC20 {
			if plan[i].Amount == nil {
				plan[i].Amount = new(big.Int)
			}
			plan[i].Amount.Add(plan[i].Amount, e.Amount)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	for i := range plan {
		p := &plan[i]
		g.Go(func() error {
			granted, err := a.granted(gctx, owner, *p)
			if err != nil {
				return err
			}
			p.Granted = granted
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (a *Approver) granted(ctx context.Context, owner common.Address, p Approval) (bool, error) {
	switch p.Standard {
	case types.ERC20:
		allowance, err := NewERC20(a.exec, p.Token).Allowance(ctx, owner, a.operator)
		if err != nil {
			return false, err
		}
		return allowance.Cmp(p.Amount) >= 0, nil
	case types.ERC721:
		return NewERC721(a.exec, p.Token).IsApprovedForAll(ctx, owner, a.operator)
	default:
		return NewFERC1155(a.exec, p.Token).IsApprovedForAll(ctx, owner, a.operator)
	}
}

// Grant sends every approval of the caller's plan that is not yet granted, one
// transaction each, and stops at the first failure.
func (a *Approver) Grant(ctx context.Context, tokens []types.Token) ([]*types.Receipt, error) {
	plan, err := a.callerPlan(ctx, tokens)
	if err != nil {
		return nil, err
	}
	var receipts []*types.Receipt
	for _, p := range plan {
		if p.Granted {
			continue
		}
		r, err := a.approve(ctx, p)
		if err != nil {
			return receipts, err
		}
		a.exec.Logger().Infof("Approved %s %s for %s", p.Standard, p.Token.Hex(), a.operator.Hex())
		receipts = append(receipts, r)
	}
	return receipts, nil
}

// EstimateGrant estimates each transaction Grant would send.
func (a *Approver) EstimateGrant(ctx context.Context, tokens []types.Token) ([]types.GasEstimate, error) {
	plan, err := a.callerPlan(ctx, tokens)
	if err != nil {
		return nil, err
	}
	var out []types.GasEstimate
	for _, p := range plan {
		if p.Granted {
			continue
		}
		est, err := a.estimateApprove(ctx, p)
		if err != nil {
			return nil, err
		}
		out = append(out, est)
	}
	return out, nil
}

func (a *Approver) callerPlan(ctx context.Context, tokens []types.Token) ([]Approval, error) {
	owner, err := a.exec.Connection().Address()
	if err != nil {
		return nil, err
	}
	return a.Plan(ctx, owner, tokens)
}

func (a *Approver) approve(ctx context.Context, p Approval) (*types.Receipt, error) {
	switch p.Standard {
	case types.ERC20:
		return NewERC20(a.exec, p.Token).Approve(ctx, a.operator, p.Amount)
	case types.ERC721:
		return NewERC721(a.exec, p.Token).SetApprovalForAll(ctx, a.operator, true)
	default:
		return NewFERC1155(a.exec, p.Token).SetApprovalForAll(ctx, a.operator, true)
	}
}

func (a *Approver) estimateApprove(ctx context.Context, p Approval) (types.GasEstimate, error) {
	switch p.Standard {
	case types.ERC20:
		return NewERC20(a.exec, p.Token).EstimateApprove(ctx, a.operator, p.Amount)
	case types.ERC721:
		return NewERC721(a.exec, p.Token).EstimateSetApprovalForAll(ctx, a.operator, true)
	default:
		return NewFERC1155(a.exec, p.Token).EstimateSetApprovalForAll(ctx, a.operator, true)
	}
}
