package eth

import (
	"context"
	"crypto/ecdsa"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
)

// Mode tags which capability set a Connection carries.
type Mode uint8

const (
	ReadOnly Mode = iota
	Signing
)

func (m Mode) String() string {
	if m == Signing {
		return "signing"
	}
	return "read-only"
}

// Connection is either a read-only accessor or a signing identity on one chain.
// It holds no cached chain state.
type Connection struct {
	backend Backend
	mode    Mode
	watch   *common.Address
	signer  *Signer
}

// NewReadOnly returns a connection that can read but never sign. An optional
// watch address lets balance and ownership checks run without a key.
func NewReadOnly(backend Backend, watch ...common.Address) *Connection {
	c := &Connection{backend: backend, mode: ReadOnly}
	if len(watch) > 0 {
		addr := watch[0]
		c.watch = &addr
	}
	return c
}

// NewSigning returns a connection that signs with key for chainID.
func NewSigning(backend Backend, key *ecdsa.PrivateKey, chainID *big.Int) *Connection {
	return &Connection{
		backend: backend,
		mode:    Signing,
		signer: &Signer{
			address: crypto.PubkeyToAddress(key.PublicKey),
			key:     key,
			chainID: new(big.Int).Set(chainID),
		},
	}
}

// NewSigningFromHex parses a hex private key and reads the chain id from the backend.
func NewSigningFromHex(ctx context.Context, backend Backend, hexKey string) (*Connection, error) {
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return nil, sdkerr.Validation("eth.connect", "invalid private key")
	}
	chainID, err := backend.ChainID(ctx)
	if err != nil {
		return nil, sdkerr.ChainRead("eth.connect", err)
	}
	return NewSigning(backend, key, chainID), nil
}

func (c *Connection) Backend() Backend { return c.backend }

func (c *Connection) Mode() Mode { return c.mode }

func (c *Connection) IsReadOnly() bool { return c.mode == ReadOnly }

// AsSigner narrows the connection to its signing capability.
func (c *Connection) AsSigner() (*Signer, error) {
	if c.mode != Signing || c.signer == nil {
		return nil, sdkerr.Authorization("eth.signer", "method requires a signer")
	}
	return c.signer, nil
}

// ChainID asks the backend every time; a connection may be re-pointed by the
// node operator between calls.
func (c *Connection) ChainID(ctx context.Context) (uint64, error) {
	id, err := c.backend.ChainID(ctx)
	if err != nil {
		return 0, sdkerr.ChainRead("eth.chainID", err)
	}
	return id.Uint64(), nil
}

// Address is the caller identity: the signer address, or the watch address of
// a read-only connection.
func (c *Connection) Address() (common.Address, error) {
	if c.signer != nil {
		return c.signer.address, nil
	}
	if c.watch != nil {
		return *c.watch, nil
	}
	return common.Address{}, sdkerr.Authorization("eth.address", "read-only connection has no caller address")
}

// Balance returns the caller's current native-token balance in wei.
func (c *Connection) Balance(ctx context.Context) (*big.Int, error) {
	addr, err := c.Address()
	if err != nil {
		return nil, err
	}
	return c.BalanceOf(ctx, addr)
}

// BalanceOf returns any account's native-token balance in wei.
func (c *Connection) BalanceOf(ctx context.Context, account common.Address) (*big.Int, error) {
	bal, err := c.backend.BalanceAt(ctx, account, nil)
	if err != nil {
		return nil, sdkerr.ChainRead("eth.balance", err)
	}
	return bal, nil
}

// Signer signs transactions and typed-data digests for one chain.
type Signer struct {
	address common.Address
	key     *ecdsa.PrivateKey
	chainID *big.Int
}

func (s *Signer) Address() common.Address { return s.address }

func (s *Signer) ChainID() *big.Int { return new(big.Int).Set(s.chainID) }

// SignTx signs tx with the latest signer for the chain.
func (s *Signer) SignTx(tx *types.Transaction) (*types.Transaction, error) {
	return types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
}

// SignDigest signs a 32-byte digest and returns r, s and v with v in {27, 28}.
func (s *Signer) SignDigest(digest []byte) (r, sig [32]byte, v uint8, err error) {
	raw, err := crypto.Sign(digest, s.key)
	if err != nil {
		return r, sig, 0, err
	}
	copy(r[:], raw[:32])
	copy(sig[:], raw[32:64])
	return r, sig, raw[64] + 27, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}
