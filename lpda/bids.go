package lpda

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
)

const bidEvent = "BidEntered"

func (a *Auction) bidQuery() ethereum.FilterQuery {
	l := a.contracts.LPDA
	return ethereum.FilterQuery{
		Addresses: []common.Address{l.Address},
		Topics:    [][]common.Hash{{l.ABI.Events[bidEvent].ID}, {common.BytesToHash(a.vault.Bytes())}},
	}
}

func (a *Auction) decodeBid(l gethtypes.Log) (types.Bid, error) {
	out, err := a.contracts.LPDA.ABI.Unpack(bidEvent, l.Data)
	if err != nil {
		return types.Bid{}, err
	}
	user, ok1 := out[0].(common.Address)
	quantity, ok2 := out[1].(*big.Int)
	price, ok3 := out[2].(*big.Int)
	if !ok1 || !ok2 || !ok3 {
		return types.Bid{}, sdkerr.ChainRead("lpda.bids", errMalformedBid)
	}
	return types.Bid{
		Bidder:      user,
		PriceWei:    price,
		Quantity:    quantity.Uint64(),
		TxHash:      l.TxHash,
		BlockNumber: l.BlockNumber,
	}, nil
}

var errMalformedBid = errors.New("malformed BidEntered log")

// Bids returns every bid entered on the vault's auction, oldest first.
func (a *Auction) Bids(ctx context.Context) ([]types.Bid, error) {
	logs, err := a.exec.Connection().Backend().FilterLogs(ctx, a.bidQuery())
	if err != nil {
		return nil, sdkerr.ChainRead("lpda.bids", err)
	}
	bids := make([]types.Bid, 0, len(logs))
	for _, l := range logs {
		if l.Removed {
			continue
		}
		bid, err := a.decodeBid(l)
		if err != nil {
			return nil, sdkerr.ChainRead("lpda.bids", err)
		}
		bids = append(bids, bid)
	}
	return bids, nil
}

// SubscribeBids delivers new bids on ch until the subscription is closed or
// ctx is done. Logs that cannot be decoded are skipped.
func (a *Auction) SubscribeBids(ctx context.Context, ch chan<- types.Bid) (event.Subscription, error) {
	logs := make(chan gethtypes.Log, 16)
	sub, err := a.exec.Connection().Backend().SubscribeFilterLogs(ctx, a.bidQuery(), logs)
	if err != nil {
		return nil, sdkerr.ChainRead("lpda.subscribeBids", err)
	}
	return event.NewSubscription(func(quit <-chan struct{}) error {
		defer sub.Unsubscribe()
		for {
			select {
			case l := <-logs:
				if l.Removed {
					continue
				}
				bid, err := a.decodeBid(l)
				if err != nil {
					a.log.Warnf("Skipping bid log %s: %v", l.TxHash.Hex(), err)
					continue
				}
				select {
				case ch <- bid:
				case <-quit:
					return nil
				}
			case err := <-sub.Err():
				return err
			case <-quit:
				return nil
			}
		}
	}), nil
}
