// Package proofs looks up the Merkle proof bundles that protected vault
// operations carry. Proof contents are opaque; only the lookup key matters,
// and it must match the key the on-chain permission tree was built with.
package proofs

import (
	"sort"
	"strings"

	"github.com/fractional-company/vault-sdk-go/sdkerr"
)

// Operation names one protected vault operation.
type Operation string

const (
	Mint                 Operation = "mint"
	Redeem               Operation = "redeem"
	Burn                 Operation = "burn"
	WithdrawERC20        Operation = "withdrawERC20"
	WithdrawERC721       Operation = "withdrawERC721"
	WithdrawERC1155      Operation = "withdrawERC1155"
	BatchWithdrawERC1155 Operation = "batchWithdrawERC1155"
)

// Operations is the leaf order of the permission tree.
var Operations = []Operation{Mint, Redeem, Burn, WithdrawERC20, WithdrawERC721, WithdrawERC1155, BatchWithdrawERC1155}

// Proof is one Merkle proof.
type Proof [][32]byte

// Bundle holds one proof per protected operation.
type Bundle struct {
	Mint                 Proof
	Redeem               Proof
	Burn                 Proof
	WithdrawERC20        Proof
	WithdrawERC721       Proof
	WithdrawERC1155      Proof
	BatchWithdrawERC1155 Proof
}

// For selects a proof by operation name.
func (b *Bundle) For(op Operation) (Proof, error) {
	switch op {
	case Mint:
		return b.Mint, nil
	case Redeem:
		return b.Redeem, nil
	case Burn:
		return b.Burn, nil
	case WithdrawERC20:
		return b.WithdrawERC20, nil
	case WithdrawERC721:
		return b.WithdrawERC721, nil
	case WithdrawERC1155:
		return b.WithdrawERC1155, nil
	case BatchWithdrawERC1155:
		return b.BatchWithdrawERC1155, nil
	}
	return nil, sdkerr.Validation("proofs.select", "unknown operation %q", op)
}

// Set stores p in the slot for op.
func (b *Bundle) Set(op Operation, p Proof) error {
	switch op {
	case Mint:
		b.Mint = p
	case Redeem:
		b.Redeem = p
	case Burn:
		b.Burn = p
	case WithdrawERC20:
		b.WithdrawERC20 = p
	case WithdrawERC721:
		b.WithdrawERC721 = p
	case WithdrawERC1155:
		b.WithdrawERC1155 = p
	case BatchWithdrawERC1155:
		b.BatchWithdrawERC1155 = p
	default:
		return sdkerr.Validation("proofs.set", "unknown operation %q", op)
	}
	return nil
}

// Key derives the lookup key of a module set: names are trimmed, uppercased,
// deduplicated, sorted and joined with "_".
func Key(modules []string) (string, error) {
	if len(modules) == 0 {
		return "", sdkerr.Validation("proofs.key", "empty module set")
	}
	seen := make(map[string]struct{}, len(modules))
	names := make([]string, 0, len(modules))
	for _, m := range modules {
		n := strings.ToUpper(strings.TrimSpace(m))
		if n == "" {
			return "", sdkerr.Validation("proofs.key", "blank module name")
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		names = append(names, n)
	}
	sort.Strings(names)
	return strings.Join(names, "_"), nil
}

type storeKey struct {
	chainID uint64
	key     string
}

// Store is the {chain, module key} -> Bundle table. It is immutable after
// NewStore and safe for concurrent use.
type Store struct {
	bundles map[storeKey]Bundle
}

// Entry is one row of a proof table.
type Entry struct {
	ChainID uint64
	Modules []string
	Bundle  Bundle
}

// NewStore builds a store from entries. Later entries for the same key win.
func NewStore(entries ...Entry) (*Store, error) {
	s := &Store{bundles: make(map[storeKey]Bundle, len(entries))}
	for _, e := range entries {
		key, err := Key(e.Modules)
		if err != nil {
			return nil, err
		}
		s.bundles[storeKey{chainID: e.ChainID, key: key}] = e.Bundle.clone()
	}
	return s, nil
}

// Get returns the bundle for the module set active on a vault.
func (s *Store) Get(chainID uint64, modules []string) (Bundle, error) {
	key, err := Key(modules)
	if err != nil {
		return Bundle{}, err
	}
	b, ok := s.bundles[storeKey{chainID: chainID, key: key}]
	if !ok {
		return Bundle{}, sdkerr.Configuration("proofs.get", "unsupported module combination")
	}
	return b.clone(), nil
}

// Proof is Get followed by Bundle.For.
func (s *Store) Proof(chainID uint64, modules []string, op Operation) (Proof, error) {
	b, err := s.Get(chainID, modules)
	if err != nil {
		return nil, err
	}
	return b.For(op)
}

// Len returns the number of bundles held.
func (s *Store) Len() int { return len(s.bundles) }

func (b Bundle) clone() Bundle {
	cp := func(p Proof) Proof {
		if p == nil {
			return nil
		}
		return append(Proof(nil), p...)
	}
	return Bundle{
		Mint:                 cp(b.Mint),
		Redeem:               cp(b.Redeem),
		Burn:                 cp(b.Burn),
		WithdrawERC20:        cp(b.WithdrawERC20),
		WithdrawERC721:       cp(b.WithdrawERC721),
		WithdrawERC1155:      cp(b.WithdrawERC1155),
		BatchWithdrawERC1155: cp(b.BatchWithdrawERC1155),
	}
}
