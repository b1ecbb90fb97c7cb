// Package batch turns a heterogeneous token list into the fewest encoded
// vault calls: one call per ERC20 and ERC721 group and one call per
// (token, receiver) ERC1155 group. A batch is validated as a whole before
// anything is encoded.
package batch

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
)

// EncodedCall is one packed contract call of a batch.
type EncodedCall struct {
	Standard types.TokenStandard
	Method   string
	Data     []byte
}

// Entry is a validated token.
type Entry struct {
	Standard types.TokenStandard
	Address  common.Address
	ID       *big.Int
	Amount   *big.Int
	Receiver *common.Address
	Data     []byte
}

// Validate checks every token and returns them in input order. The first
// invalid token fails the whole batch.
func Validate(op string, tokens []types.Token) ([]Entry, error) {
	if len(tokens) == 0 {
		return nil, sdkerr.Validation(op, "token list must not be empty")
	}
	entries := make([]Entry, 0, len(tokens))
	for i, t := range tokens {
		e, err := validateToken(t)
		if err != nil {
			return nil, sdkerr.Validation(op, "token %d: %v", i, err)
		}
		entries = append(entries, e)
	}
	return entries, nil
}

func validateToken(t types.Token) (Entry, error) {
	std, ok := types.ParseTokenStandard(t.Standard)
	if !ok {
		return Entry{}, fmt.Errorf("invalid token standard %q", t.Standard)
	}
	if !common.IsHexAddress(t.Address) {
		return Entry{}, fmt.Errorf("invalid token address %q", t.Address)
	}
	e := Entry{Standard: std, Address: common.HexToAddress(t.Address), Data: t.Data}
	if strings.TrimSpace(t.Receiver) != "" {
		if !common.IsHexAddress(t.Receiver) {
			return Entry{}, fmt.Errorf("invalid receiver %q", t.Receiver)
		}
		r := common.HexToAddress(t.Receiver)
		e.Receiver = &r
	}

	switch std {
	case types.ERC20:
		if !nonNegative(t.Amount) {
			return Entry{}, fmt.Errorf("ERC20 token %s must have a valid amount", t.Address)
		}
		e.Amount = new(big.Int).Set(t.Amount)
	case types.ERC721:
		if !nonNegative(t.ID) {
			return Entry{}, fmt.Errorf("ERC721 token %s must have a valid token id", t.Address)
		}
		e.ID = new(big.Int).Set(t.ID)
	case types.ERC1155:
		if !nonNegative(t.ID) {
			return Entry{}, fmt.Errorf("ERC1155 token %s must have a valid token id", t.Address)
		}
		if !nonNegative(t.Amount) {
			return Entry{}, fmt.Errorf("ERC1155 token %s must have a valid amount", t.Address)
		}
		e.ID = new(big.Int).Set(t.ID)
		e.Amount = new(big.Int).Set(t.Amount)
		if e.Data == nil {
			e.Data = []byte{}
		}
	}
	return e, nil
}

func nonNegative(v *big.Int) bool {
	return v != nil && v.Sign() >= 0
}

type group1155 struct {
	token    common.Address
	receiver common.Address
	ids      []*big.Int
	amounts  []*big.Int
	datas    [][]byte
}

type groupKey struct {
	token    common.Address
	receiver common.Address
}

// groupERC1155 coalesces ERC1155 entries by (token, receiver) in order of first
// appearance.
func groupERC1155(entries []Entry, defaultReceiver common.Address) []*group1155 {
	var groups []*group1155
	index := make(map[groupKey]*group1155)
	for _, e := range entries {
		if e.Standard != types.ERC1155 {
			continue
		}
		recv := defaultReceiver
		if e.Receiver != nil {
			recv = *e.Receiver
		}
		k := groupKey{token: e.Address, receiver: recv}
		g, ok := index[k]
		if !ok {
			g = &group1155{token: e.Address, receiver: recv}
			index[k] = g
			groups = append(groups, g)
		}
		g.ids = append(g.ids, e.ID)
		g.amounts = append(g.amounts, e.Amount)
		g.datas = append(g.datas, e.Data)
	}
	return groups
}

func pack(op string, contractABI *abi.ABI, std types.TokenStandard, method string, args ...any) (EncodedCall, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return EncodedCall{}, sdkerr.Validation(op, "cannot encode %s: %v", method, err)
	}
	return EncodedCall{Standard: std, Method: method, Data: data}, nil
}

// Build encodes BaseVault deposits of tokens from `from` into the vault `to`.
// Only ERC1155 entries may name a receiver.
func Build(from, to common.Address, tokens []types.Token) ([]EncodedCall, error) {
	const op = "batch.deposit"
	entries, err := Validate(op, tokens)
	if err != nil {
		return nil, err
	}
	baseVault := registry.ABI(registry.BaseVault)

	var (
		erc20Tokens, erc721Tokens []common.Address
		erc20Amounts, erc721IDs   []*big.Int
	)
	for i, e := range entries {
		if e.Receiver != nil && e.Standard != types.ERC1155 {
			// batchDepositERC20/ERC721 always credit the vault itself.
			return nil, sdkerr.Validation(op, "token %d: %s deposits do not take a receiver", i, e.Standard)
		}
		switch e.Standard {
		case types.ERC20:
			erc20Tokens = append(erc20Tokens, e.Address)
			erc20Amounts = append(erc20Amounts, e.Amount)
		case types.ERC721:
			erc721Tokens = append(erc721Tokens, e.Address)
			erc721IDs = append(erc721IDs, e.ID)
		}
	}

	var calls []EncodedCall
	if len(erc20Tokens) > 0 {
		c, err := pack(op, baseVault, types.ERC20, "batchDepositERC20", from, to, erc20Tokens, erc20Amounts)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	if len(erc721Tokens) > 0 {
		c, err := pack(op, baseVault, types.ERC721, "batchDepositERC721", from, to, erc721Tokens, erc721IDs)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	for _, g := range groupERC1155(entries, to) {
		addrs := make([]common.Address, len(g.ids))
		for i := range addrs {
			addrs[i] = g.token
		}
		c, err := pack(op, baseVault, types.ERC1155, "batchDepositERC1155", from, g.receiver, addrs, g.ids, g.amounts, g.datas)
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, nil
}

// BuildWithdrawals encodes Buyout withdrawals of tokens out of vault to `to`,
// each carrying the proof of its withdraw operation. ERC1155 groups with more
// than one id use the batch withdraw.
func BuildWithdrawals(vault, to common.Address, tokens []types.Token, bundle proofs.Bundle) ([]EncodedCall, error) {
	const op = "batch.withdraw"
	entries, err := Validate(op, tokens)
	if err != nil {
		return nil, err
	}
	buyout := registry.ABI(registry.Buyout)

	receiver := func(e Entry) common.Address {
		if e.Receiver != nil {
			return *e.Receiver
		}
		return to
	}

	var calls []EncodedCall
	for _, e := range entries {
		var (
			c   EncodedCall
			err error
		)
		switch e.Standard {
		case types.ERC20:
			c, err = pack(op, buyout, types.ERC20, "withdrawERC20", vault, e.Address, receiver(e), e.Amount, [][32]byte(bundle.WithdrawERC20))
		case types.ERC721:
			c, err = pack(op, buyout, types.ERC721, "withdrawERC721", vault, e.Address, receiver(e), e.ID, [][32]byte(bundle.WithdrawERC721))
		default:
			continue
		}
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	for _, g := range groupERC1155(entries, to) {
		var (
			c   EncodedCall
			err error
		)
		if len(g.ids) == 1 {
			c, err = pack(op, buyout, types.ERC1155, "withdrawERC1155", vault, g.token, g.receiver, g.ids[0], g.amounts[0], [][32]byte(bundle.WithdrawERC1155))
		} else {
			c, err = pack(op, buyout, types.ERC1155, "batchWithdrawERC1155", vault, g.token, g.receiver, g.ids, g.amounts, [][32]byte(bundle.BatchWithdrawERC1155))
		}
		if err != nil {
			return nil, err
		}
		calls = append(calls, c)
	}
	return calls, nil
}

// Payloads returns the raw calldata of calls, ready for multicall(bytes[]).
func Payloads(calls []EncodedCall) [][]byte {
	out := make([][]byte, len(calls))
	for i, c := range calls {
		out[i] = c.Data
	}
	return out
}
