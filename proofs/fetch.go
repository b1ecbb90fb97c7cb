package proofs

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"golang.org/x/sync/errgroup"
)

// Caller performs read-only contract calls.
type Caller interface {
	Call(ctx context.Context, to common.Address, contractABI *abi.ABI, method string, args ...any) ([]any, error)
}

// Fetch asks a factory contract (BaseVault or LPDA) to build the permission
// tree of modules and returns the proof of every leaf.
func Fetch(ctx context.Context, c Caller, factory common.Address, factoryABI *abi.ABI, modules []common.Address) (Bundle, error) {
	if len(modules) == 0 {
		return Bundle{}, sdkerr.Validation("proofs.fetch", "empty module set")
	}
	out, err := c.Call(ctx, factory, factoryABI, "generateMerkleTree", modules)
	if err != nil {
		return Bundle{}, sdkerr.ChainRead("proofs.fetch", err)
	}
	tree, ok := firstHashes(out)
	if !ok {
		return Bundle{}, sdkerr.ChainRead("proofs.fetch", fmt.Errorf("unexpected generateMerkleTree result"))
	}

	leaves := make([]Proof, len(Operations))
	g, gctx := errgroup.WithContext(ctx)
	for i := range Operations {
		i := i
		g.Go(func() error {
			res, err := c.Call(gctx, factory, factoryABI, "getProof", tree, big.NewInt(int64(i)))
			if err != nil {
				return err
			}
			p, ok := firstHashes(res)
			if !ok {
				return fmt.Errorf("unexpected getProof result for leaf %d", i)
			}
			leaves[i] = p
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Bundle{}, sdkerr.ChainRead("proofs.fetch", err)
	}

	var b Bundle
	for i, op := range Operations {
		_ = b.Set(op, leaves[i])
	}
	return b, nil
}

func firstHashes(out []any) ([][32]byte, bool) {
	if len(out) != 1 {
		return nil, false
	}
	h, ok := out[0].([][32]byte)
	return h, ok
}
