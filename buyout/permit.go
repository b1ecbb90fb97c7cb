package buyout

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/fractional-company/vault-sdk-go/eth"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"golang.org/x/sync/errgroup"
)

// Permit is a signed FERC1155 PermitAll granting operator control of all of
// owner's fractions until Deadline (unix seconds).
type Permit struct {
	Token    common.Address
	Owner    common.Address
	Operator common.Address
	Approved bool
	Nonce    *big.Int
	Deadline *big.Int
	V        uint8
	R, S     [32]byte
}

// PermitTypedData is the EIP-712 payload the fraction token verifies in selfPermitAll.
func PermitTypedData(name, version string, chainID *big.Int, token, owner, operator common.Address, approved bool, nonce, deadline *big.Int) apitypes.TypedData {
	return apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"PermitAll": {
				{Name: "owner", Type: "address"},
				{Name: "operator", Type: "address"},
				{Name: "approved", Type: "bool"},
				{Name: "nonce", Type: "uint256"},
				{Name: "deadline", Type: "uint256"},
			},
		},
		PrimaryType: "PermitAll",
		Domain: apitypes.TypedDataDomain{
			Name:              name,
			Version:           version,
			ChainId:           (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
			VerifyingContract: token.Hex(),
		},
		Message: apitypes.TypedDataMessage{
			"owner":    owner.Hex(),
			"operator": operator.Hex(),
			"approved": approved,
			"nonce":    nonce.String(),
			"deadline": deadline.String(),
		},
	}
}

// signPermit reads the token's nonce and domain and signs a PermitAll for the
// buyout module valid for ttl.
func (v *Validator) signPermit(ctx context.Context, signer *eth.Signer, token common.Address, now time.Time) (Permit, error) {
	const op = "buyout.permit"
	tokenABI := registry.ABI(registry.FERC1155)
	var (
		nonce         *big.Int
		name, version string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		out, err := v.exec.Call(gctx, token, tokenABI, "nonces", signer.Address())
		if err != nil {
			return err
		}
		nonce, err = permitField[*big.Int](op, "nonce", out)
		return err
	})
	g.Go(func() error {
		out, err := v.exec.Call(gctx, token, tokenABI, "NAME")
		if err != nil {
			return err
		}
		name, err = permitField[string](op, "NAME", out)
		return err
	})
	g.Go(func() error {
		out, err := v.exec.Call(gctx, token, tokenABI, "VERSION")
		if err != nil {
			return err
		}
		version, err = permitField[string](op, "VERSION", out)
		return err
	})
	if err := g.Wait(); err != nil {
		return Permit{}, err
	}

	p := Permit{
		Token:    token,
		Owner:    signer.Address(),
		Operator: v.reader.contracts.Buyout.Address,
		Approved: true,
		Nonce:    nonce,
		Deadline: big.NewInt(now.Add(v.permitTTL).Unix()),
	}
	td := PermitTypedData(name, version, signer.ChainID(), token, p.Owner, p.Operator, p.Approved, p.Nonce, p.Deadline)
	digest, _, err := apitypes.TypedDataAndHash(td)
	if err != nil {
		return Permit{}, sdkerr.Validation(op, "cannot hash permit: %v", err)
	}
	p.R, p.S, p.V, err = signer.SignDigest(digest)
	if err != nil {
		return Permit{}, sdkerr.Transaction(op, err, "")
	}
	return p, nil
}

// permitField takes the single return value of a token read used in the
// permit domain or message.
func permitField[T any](op, name string, out []any) (T, error) {
	var zero T
	if len(out) != 1 {
		return zero, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: op, Msg: "chain read failed", Reason: "unexpected " + name}
	}
	v, ok := out[0].(T)
	if !ok {
		return zero, &sdkerr.Error{Kind: sdkerr.KindChainRead, Op: op, Msg: "chain read failed", Reason: "unexpected " + name}
	}
	return v, nil
}

// callData packs selfPermitAll for the buyout module.
func (p Permit) callData() ([]byte, error) {
	data, err := registry.ABI(registry.Buyout).Pack("selfPermitAll", p.Token, p.Approved, p.Deadline, p.V, p.R, p.S)
	if err != nil {
		return nil, sdkerr.Validation("buyout.permit", "cannot encode selfPermitAll: %v", err)
	}
	return data, nil
}
