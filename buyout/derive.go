package buyout

import (
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/types"
)

var basisPoints = big.NewInt(10_000)

// Derive builds a snapshot from the raw on-chain struct and the two periods.
// A zero start time stays zero and so do every time derived from it.
func Derive(raw types.BuyoutInfo, proposal, rejection time.Duration) *types.AuctionInfo {
	info := &types.AuctionInfo{
		EthBalance:      orZero(raw.EthBalance),
		FractionPrice:   orZero(raw.FractionPrice),
		Supply:          orZero(raw.LastTotalSupply),
		ProposalPeriod:  proposal,
		RejectionPeriod: rejection,
		State:           types.AuctionState(raw.State),
	}
	if raw.Proposer != (common.Address{}) {
		p := raw.Proposer
		info.Proposer = &p
	}
	if raw.StartTime != nil && raw.StartTime.Sign() > 0 {
		info.StartTime = raw.StartTime.Int64() * 1000
		info.ProposalPeriodEnd = info.StartTime + proposal.Milliseconds()
		info.RejectionPeriodEnd = info.StartTime + rejection.Milliseconds()
		info.EndTime = info.RejectionPeriodEnd
	}
	in, out, pctIn, pctOut := PoolSplit(info.EthBalance, info.FractionPrice, info.Supply)
	info.SupplyInPool, info.SupplyOutsidePool = in, out
	info.SupplyPercentageInPool, info.SupplyPercentageOutsidePool = pctIn, pctOut
	return info
}

// PoolSplit divides total into the fractions still in the buyout pool and
// the ones bought out of it. With a zero price nothing has sold and every
// result is zero. The outside share is capped at total so that a pool holding
// more ETH than the supply accounts for never reports a negative inside share.
func PoolSplit(ethBalance, fractionPrice, total *big.Int) (in, out *big.Int, pctIn, pctOut string) {
	if fractionPrice == nil || fractionPrice.Sign() == 0 || total == nil || total.Sign() == 0 {
		return new(big.Int), new(big.Int), "0.00", "0.00"
	}
	out = new(big.Int).Quo(orZero(ethBalance), fractionPrice)
	if out.Cmp(total) > 0 {
		out.Set(total)
	}
	in = new(big.Int).Sub(total, out)
	return in, out, percent(in, total), percent(out, total)
}

func percent(part, total *big.Int) string {
	bp := new(big.Int).Mul(part, basisPoints)
	bp.Quo(bp, total)
	whole, frac := new(big.Int).QuoRem(bp, big.NewInt(100), new(big.Int))
	return fmt.Sprintf("%s.%02d", whole.String(), frac.Int64())
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
