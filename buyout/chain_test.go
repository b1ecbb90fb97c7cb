package buyout

import (
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fractional-company/vault-sdk-go/eth"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/internal/ethtest"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/stretchr/testify/require"
)

const testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"

var (
	callerAddr   = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")
	otherAddr    = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	buyoutAddr   = common.HexToAddress("0x7003c79786f5Af5079699BA77DE9CB04cc569fD4")
	registryAddr = common.HexToAddress("0x0000000000000000000000000000000000000a01")
	tokenAddr    = common.HexToAddress("0x0000000000000000000000000000000000000a02")
	vaultAddr    = common.HexToAddress("0x0000000000000000000000000000000000000a03")

	ether = big.NewInt(1_000_000_000_000_000_000)

	proposalPeriod  = 2 * 24 * time.Hour
	rejectionPeriod = 4 * 24 * time.Hour

	testBundle = proofs.Bundle{
		Mint:                 proofs.Proof{{0x01}},
		Redeem:               proofs.Proof{{0x02}},
		Burn:                 proofs.Proof{{0x03}, {0x33}},
		WithdrawERC20:        proofs.Proof{{0x04}},
		WithdrawERC721:       proofs.Proof{{0x05}},
		WithdrawERC1155:      proofs.Proof{{0x06}},
		BatchWithdrawERC1155: proofs.Proof{{0x07}},
	}
)

// ethAmount is n + frac/100 ether.
func ethAmount(n int64, frac int64) *big.Int {
	v := new(big.Int).Mul(big.NewInt(n*100+frac), ether)
	return v.Quo(v, big.NewInt(100))
}

// chain is a buyout module, vault registry and fraction token backed by a
// mutable in-memory state.
type chain struct {
	t *testing.T
	b *ethtest.Backend

	mu        sync.Mutex
	state     uint8
	startTime int64
	proposer  common.Address
	price     *big.Int
	ethInPool *big.Int
	lastTotal *big.Int
	supply    *big.Int
	balances  map[common.Address]*big.Int
	approved  bool
	now       time.Time
}

func newChain(t *testing.T) *chain {
	t.Helper()
	c := &chain{
		t:         t,
		b:         ethtest.New(4),
		price:     new(big.Int),
		ethInPool: new(big.Int),
		lastTotal: new(big.Int),
		supply:    big.NewInt(100),
		balances:  map[common.Address]*big.Int{callerAddr: big.NewInt(40)},
		approved:  true,
		now:       time.Unix(1_700_000_000, 0),
	}
	c.b.SetBalance(callerAddr, ether)

	buyoutABI := registry.ABI(registry.Buyout)
	c.b.Handle(buyoutAddr, buyoutABI, "buyoutInfo", func([]any) ([]any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return []any{big.NewInt(c.startTime), c.proposer, c.state, new(big.Int).Set(c.price), new(big.Int).Set(c.ethInPool), new(big.Int).Set(c.lastTotal)}, nil
	})
	c.b.Handle(buyoutAddr, buyoutABI, "PROPOSAL_PERIOD", ethtest.Returns(big.NewInt(int64(proposalPeriod/time.Second))))
	c.b.Handle(buyoutAddr, buyoutABI, "REJECTION_PERIOD", ethtest.Returns(big.NewInt(int64(rejectionPeriod/time.Second))))

	c.b.Handle(registryAddr, registry.ABI(registry.VaultRegistry), "vaultToToken", ethtest.Returns(tokenAddr, big.NewInt(1)))

	tokenABI := registry.ABI(registry.FERC1155)
	c.b.Handle(tokenAddr, tokenABI, "balanceOf", func(args []any) ([]any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		bal, ok := c.balances[args[0].(common.Address)]
		if !ok {
			bal = new(big.Int)
		}
		return []any{new(big.Int).Set(bal)}, nil
	})
	c.b.Handle(tokenAddr, tokenABI, "totalSupply", func([]any) ([]any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return []any{new(big.Int).Set(c.supply)}, nil
	})
	c.b.Handle(tokenAddr, tokenABI, "isApprovedForAll", func([]any) ([]any, error) {
		c.mu.Lock()
		defer c.mu.Unlock()
		return []any{c.approved}, nil
	})
	c.b.Handle(tokenAddr, tokenABI, "nonces", ethtest.Returns(big.NewInt(3)))
	c.b.Handle(tokenAddr, tokenABI, "NAME", ethtest.Returns("FERC1155"))
	c.b.Handle(tokenAddr, tokenABI, "VERSION", ethtest.Returns("1"))
	return c
}

// live puts the vault in a live buyout started at the chain clock, with 60 of
// 100 fractions bought out of the pool at 0.01 ETH each.
func (c *chain) live() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = 1
	c.startTime = c.now.Unix()
	c.proposer = callerAddr
	c.price = ethAmount(0, 1)
	c.ethInPool = ethAmount(0, 60)
	c.lastTotal = big.NewInt(100)
}

func (c *chain) successful() {
	c.live()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = 2
}

func (c *chain) setBalance(n int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[callerAddr] = big.NewInt(n)
}

func (c *chain) setApproved(ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approved = ok
}

func (c *chain) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *chain) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *chain) contracts() Contracts {
	return Contracts{
		Buyout:        registry.Contract{Kind: registry.Buyout, Address: buyoutAddr, ABI: registry.ABI(registry.Buyout)},
		VaultRegistry: registry.Contract{Kind: registry.VaultRegistry, Address: registryAddr, ABI: registry.ABI(registry.VaultRegistry)},
	}
}

func (c *chain) newExecutor(conn *eth.Connection) *executor.Executor {
	return executor.New(conn, executor.Options{})
}

func (c *chain) signing() *eth.Connection {
	key, err := crypto.HexToECDSA(testKey)
	require.NoError(c.t, err)
	return eth.NewSigning(c.b, key, big.NewInt(4))
}

func (c *chain) validator(opts ...Option) *Validator {
	c.t.Helper()
	return c.validatorWith(c.signing(), StaticModules{"migration", "buyout", "basevault"}, opts...)
}

func (c *chain) validatorWith(conn *eth.Connection, modules ModuleSource, opts ...Option) *Validator {
	c.t.Helper()
	store, err := proofs.NewStore(proofs.Entry{
		ChainID: 4,
		Modules: []string{"BaseVault", "Buyout", "Migration"},
		Bundle:  testBundle,
	})
	require.NoError(c.t, err)
	exec := c.newExecutor(conn)
	reader := NewReader(exec, 4, c.contracts(), nil)
	opts = append([]Option{WithClock(c.clock)}, opts...)
	return NewValidator(exec, reader, store, modules, opts...)
}
