package vault

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fractional-company/vault-sdk-go/eth"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/internal/ethtest"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
	chainID = 5
)

var (
	callerAddr = common.HexToAddress("0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266")

	baseVaultAddr = common.HexToAddress("0x0000000000000000000000000000000000000c01")
	buyoutAddr    = common.HexToAddress("0x0000000000000000000000000000000000000c02")
	migrationAddr = common.HexToAddress("0x0000000000000000000000000000000000000c03")
	lpdaAddr      = common.HexToAddress("0x0000000000000000000000000000000000000c04")
	optBidAddr    = common.HexToAddress("0x0000000000000000000000000000000000000c05")
	registryAddr  = common.HexToAddress("0x0000000000000000000000000000000000000c06")
	fercAddr      = common.HexToAddress("0x0000000000000000000000000000000000000c07")

	vaultAddr = common.HexToAddress("0x0000000000000000000000000000000000000d01")
	nftAddr   = common.HexToAddress("0x0000000000000000000000000000000000000d02")
	erc20Addr = common.HexToAddress("0x0000000000000000000000000000000000000d03")

	buyoutModules = []string{"BaseVault", "Buyout", "Migration"}
	artModules    = []string{"LPDA", "OptimisticBid"}

	buyoutMint = proofs.Proof{{0x11}, {0x12}}
	artMint    = proofs.Proof{{0x21}}
	artRedeem  = proofs.Proof{{0x22}}
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New(map[uint64][]registry.Deployment{
		chainID: {
			{
				Name:    "buyout",
				Modules: buyoutModules,
				Contracts: map[registry.Kind]common.Address{
					registry.BaseVault:     baseVaultAddr,
					registry.Buyout:        buyoutAddr,
					registry.Migration:     migrationAddr,
					registry.VaultRegistry: registryAddr,
				},
			},
			{
				Name:    "art-enjoyer",
				Modules: artModules,
				Contracts: map[registry.Kind]common.Address{
					registry.LPDA:          lpdaAddr,
					registry.OptimisticBid: optBidAddr,
					registry.VaultRegistry: registryAddr,
				},
			},
		},
	})
	require.NoError(t, err)
	return reg
}

func testStore(t *testing.T) *proofs.Store {
	t.Helper()
	s, err := proofs.NewStore(
		proofs.Entry{ChainID: chainID, Modules: buyoutModules, Bundle: proofs.Bundle{Mint: buyoutMint}},
		proofs.Entry{ChainID: chainID, Modules: artModules, Bundle: proofs.Bundle{Mint: artMint, Redeem: artRedeem}},
	)
	require.NoError(t, err)
	return s
}

type fixture struct {
	b   *ethtest.Backend
	reg *registry.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{b: ethtest.New(chainID), reg: testRegistry(t)}
	f.b.SetBalance(callerAddr, big.NewInt(1_000_000_000_000_000_000))
	f.b.Handle(registryAddr, registry.ABI(registry.VaultRegistry), "vaultToToken", ethtest.Returns(fercAddr, big.NewInt(7)))
	return f
}

func (f *fixture) deps(t *testing.T, signing bool) Deps {
	t.Helper()
	conn := eth.NewReadOnly(f.b)
	if signing {
		key, err := crypto.HexToECDSA(testKey)
		require.NoError(t, err)
		conn = eth.NewSigning(f.b, key, big.NewInt(chainID))
	}
	return Deps{Exec: executor.New(conn, executor.Options{}), Registry: f.reg, Proofs: testStore(t)}
}

func (f *fixture) activeModules(t *testing.T, factory, vault common.Address, modules ...common.Address) {
	t.Helper()
	ev := registry.ABI(registry.BaseVault).Events[activeModulesEvent]
	data, err := ev.Inputs.NonIndexed().Pack(modules)
	require.NoError(t, err)
	f.b.AddLog(gethtypes.Log{
		Address: factory,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(vault.Bytes())},
		Data:    data,
	})
}

func vaultDeployedLog(vault, token common.Address, id int64) *gethtypes.Log {
	ev := registry.ABI(registry.VaultRegistry).Events["VaultDeployed"]
	return &gethtypes.Log{
		Address: registryAddr,
		Topics: []common.Hash{
			ev.ID,
			common.BytesToHash(vault.Bytes()),
			common.BytesToHash(token.Bytes()),
			common.BigToHash(big.NewInt(id)),
		},
	}
}

func TestOpenBuyoutVault(t *testing.T) {
	f := newFixture(t)
	f.activeModules(t, baseVaultAddr, vaultAddr, migrationAddr, buyoutAddr, baseVaultAddr)

	v, err := Open(context.Background(), f.deps(t, false), vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, uint64(chainID), v.ChainID)
	assert.Equal(t, []string{"BaseVault", "Buyout", "Migration"}, v.Modules)
	assert.True(t, v.HasModule("buyout"))
	require.NotNil(t, v.Buyout)
	assert.Equal(t, buyoutAddr, v.Buyout.Reader().Contracts().Buyout.Address)
	assert.Nil(t, v.LPDA)
}

func TestOpenArtEnjoyerVault(t *testing.T) {
	f := newFixture(t)
	f.activeModules(t, lpdaAddr, vaultAddr, lpdaAddr, optBidAddr)
	// another vault's event must not leak in
	f.activeModules(t, baseVaultAddr, nftAddr, buyoutAddr)

	v, err := Open(context.Background(), f.deps(t, false), vaultAddr)
	require.NoError(t, err)
	assert.Equal(t, artModules, v.Modules)
	assert.Nil(t, v.Buyout)
	require.NotNil(t, v.LPDA)
	assert.Equal(t, vaultAddr, v.LPDA.Vault())
}

func TestOpenFailures(t *testing.T) {
	ctx := context.Background()

	t.Run("zero address", func(t *testing.T) {
		f := newFixture(t)
		_, err := Open(ctx, f.deps(t, false), common.Address{})
		assert.ErrorIs(t, err, sdkerr.ErrValidation)
	})

	t.Run("no module event", func(t *testing.T) {
		f := newFixture(t)
		_, err := Open(ctx, f.deps(t, false), vaultAddr)
		assert.ErrorIs(t, err, sdkerr.ErrStateConflict)
	})

	t.Run("unknown module", func(t *testing.T) {
		f := newFixture(t)
		f.activeModules(t, baseVaultAddr, vaultAddr, nftAddr)
		_, err := Open(ctx, f.deps(t, false), vaultAddr)
		assert.ErrorIs(t, err, sdkerr.ErrConfiguration)
	})

	t.Run("unsupported chain", func(t *testing.T) {
		f := newFixture(t)
		deps := f.deps(t, false)
		deps.Exec = executor.New(eth.NewReadOnly(ethtest.New(1)), executor.Options{})
		_, err := Open(ctx, deps, vaultAddr)
		assert.ErrorIs(t, err, sdkerr.ErrConfiguration)
	})

	t.Run("missing registry", func(t *testing.T) {
		f := newFixture(t)
		deps := f.deps(t, false)
		deps.Registry = nil
		_, err := Open(ctx, deps, vaultAddr)
		assert.ErrorIs(t, err, sdkerr.ErrConfiguration)
	})
}

type memCache map[common.Address]types.TokenInfo

func (m memCache) Token(_ uint64, vault common.Address) (types.TokenInfo, bool) {
	info, ok := m[vault]
	return info, ok
}

func (m memCache) PutToken(_ uint64, vault common.Address, info types.TokenInfo) error {
	m[vault] = info
	return nil
}

func TestTokenInfo(t *testing.T) {
	f := newFixture(t)
	f.activeModules(t, lpdaAddr, vaultAddr, lpdaAddr, optBidAddr)
	cache := memCache{}
	deps := f.deps(t, false)
	deps.Cache = cache

	v, err := Open(context.Background(), deps, vaultAddr)
	require.NoError(t, err)
	info, err := v.TokenInfo(context.Background())
	require.NoError(t, err)
	assert.Equal(t, fercAddr, info.Token)
	assert.Equal(t, "7", info.ID.String())
	assert.Contains(t, cache, vaultAddr)
}

func decode(t *testing.T, kind registry.Kind, data []byte) (string, []any) {
	t.Helper()
	m, args, err := ethtest.Decode(registry.ABI(kind), data)
	require.NoError(t, err)
	return m.Name, args
}

func TestDeploy(t *testing.T) {
	f := newFixture(t)
	f.b.ReceiptLogs = []*gethtypes.Log{
		{Address: vaultAddr},
		vaultDeployedLog(vaultAddr, fercAddr, 3),
	}
	factory, err := NewFactory(context.Background(), f.deps(t, true))
	require.NoError(t, err)

	d, err := factory.Deploy(context.Background(), DeployParams{
		FractionSupply: big.NewInt(1000),
		Modules:        []string{"basevault", "buyout", "migration"},
		Selectors:      []string{"transfer(address,uint256)", "0x12345678"},
	})
	require.NoError(t, err)
	assert.Equal(t, vaultAddr, d.Vault)
	require.NotNil(t, d.Token)
	assert.Equal(t, "3", d.Token.ID.String())

	sent := f.b.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, baseVaultAddr, *sent[0].To())
	method, args := decode(t, registry.BaseVault, sent[0].Data())
	assert.Equal(t, "deployVault", method)
	assert.Equal(t, "1000", args[0].(*big.Int).String())
	assert.Equal(t, []common.Address{baseVaultAddr, buyoutAddr, migrationAddr}, args[1])
	assert.Empty(t, args[2])
	sels := args[3].([][4]byte)
	require.Len(t, sels, 2)
	assert.Equal(t, [4]byte{0xa9, 0x05, 0x9c, 0xbb}, sels[0])
	assert.Equal(t, [4]byte{0x12, 0x34, 0x56, 0x78}, sels[1])
	assert.Equal(t, [][32]byte(buyoutMint), args[4])
}

func TestDeployValidation(t *testing.T) {
	tests := []struct {
		name string
		p    DeployParams
		want error
	}{
		{"zero supply", DeployParams{FractionSupply: new(big.Int), Modules: buyoutModules}, sdkerr.ErrValidation},
		{"no modules", DeployParams{FractionSupply: big.NewInt(1)}, sdkerr.ErrValidation},
		{"unknown module", DeployParams{FractionSupply: big.NewInt(1), Modules: []string{"Nope"}}, sdkerr.ErrValidation},
		{"bad selector", DeployParams{FractionSupply: big.NewInt(1), Modules: buyoutModules, Selectors: []string{"transfer"}}, sdkerr.ErrValidation},
		{"unsupported combination", DeployParams{FractionSupply: big.NewInt(1), Modules: []string{"Buyout"}}, sdkerr.ErrConfiguration},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			factory, err := NewFactory(context.Background(), f.deps(t, true))
			require.NoError(t, err)
			_, err = factory.Deploy(context.Background(), tt.p)
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, f.b.Sent())
		})
	}
}

func artParams() ArtEnjoyerParams {
	return ArtEnjoyerParams{
		Curator:       callerAddr,
		Token:         nftAddr,
		TokenID:       big.NewInt(42),
		StartTime:     1_700_000_000,
		EndTime:       1_700_086_400,
		DropPerSecond: 1000,
		StartPrice:    big.NewInt(1_000_000_000),
		EndPrice:      big.NewInt(1_000),
		MinBid:        big.NewInt(1_000),
		Supply:        50,
	}
}

func TestDeployArtEnjoyer(t *testing.T) {
	f := newFixture(t)
	f.b.ReceiptLogs = []*gethtypes.Log{{Address: nftAddr}, {Address: fercAddr}, vaultDeployedLog(vaultAddr, fercAddr, 9)}
	factory, err := NewFactory(context.Background(), f.deps(t, true))
	require.NoError(t, err)

	d, err := factory.DeployArtEnjoyer(context.Background(), artParams())
	require.NoError(t, err)
	assert.Equal(t, vaultAddr, d.Vault)
	assert.Equal(t, fercAddr, d.Token.Token)
	assert.Equal(t, "9", d.Token.ID.String())

	sent := f.b.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, lpdaAddr, *sent[0].To())
	method, args := decode(t, registry.LPDA, sent[0].Data())
	assert.Equal(t, "deployVault", method)
	assert.Equal(t, []common.Address{lpdaAddr, optBidAddr}, args[0])
	info := *abi.ConvertType(args[3], new(types.LPDAInfo)).(*types.LPDAInfo)
	assert.Equal(t, callerAddr, info.Curator)
	assert.Equal(t, uint16(50), info.Supply)
	assert.Equal(t, uint16(0), info.NumSold)
	assert.Equal(t, uint64(1000), info.DropPerSecond)
	assert.Equal(t, nftAddr, args[4])
	assert.Equal(t, [][32]byte(artMint), args[6])
}

func TestDeployArtEnjoyerGuards(t *testing.T) {
	f := newFixture(t)
	factory, err := NewFactory(context.Background(), f.deps(t, true))
	require.NoError(t, err)

	mutate := []func(p *ArtEnjoyerParams){
		func(p *ArtEnjoyerParams) { p.Curator = common.Address{} },
		func(p *ArtEnjoyerParams) { p.EndTime = p.StartTime },
		func(p *ArtEnjoyerParams) { p.EndPrice = big.NewInt(2_000_000_000) },
		func(p *ArtEnjoyerParams) { p.Supply = 0 },
		func(p *ArtEnjoyerParams) { p.TokenID = nil },
	}
	for _, m := range mutate {
		p := artParams()
		m(&p)
		_, err := factory.DeployArtEnjoyer(context.Background(), p)
		assert.ErrorIs(t, err, sdkerr.ErrValidation)
	}
	assert.Empty(t, f.b.Sent())

	// mined without the registry event
	_, err = factory.DeployArtEnjoyer(context.Background(), artParams())
	assert.ErrorIs(t, err, sdkerr.ErrTransaction)
}

func TestDepositTokens(t *testing.T) {
	f := newFixture(t)
	factory, err := NewFactory(context.Background(), f.deps(t, true))
	require.NoError(t, err)

	_, err = factory.DepositTokens(context.Background(), vaultAddr, common.Address{}, []types.Token{
		{Standard: "erc20", Address: erc20Addr.Hex(), Amount: big.NewInt(500)},
		{Standard: "ERC721", Address: nftAddr.Hex(), ID: big.NewInt(1)},
	})
	require.NoError(t, err)

	sent := f.b.Sent()
	require.Len(t, sent, 1)
	assert.Equal(t, baseVaultAddr, *sent[0].To())
	method, args := decode(t, registry.BaseVault, sent[0].Data())
	assert.Equal(t, "multicall", method)
	payloads := args[0].([][]byte)
	require.Len(t, payloads, 2)

	inner, innerArgs := decode(t, registry.BaseVault, payloads[0])
	assert.Equal(t, "batchDepositERC20", inner)
	assert.Equal(t, callerAddr, innerArgs[0])
	assert.Equal(t, vaultAddr, innerArgs[1])
	assert.Equal(t, []common.Address{erc20Addr}, innerArgs[2])

	_, err = factory.DepositTokens(context.Background(), vaultAddr, callerAddr, nil)
	assert.ErrorIs(t, err, sdkerr.ErrValidation)
	assert.Len(t, f.b.Sent(), 1)
}

func TestApproveBuyout(t *testing.T) {
	f := newFixture(t)
	f.activeModules(t, baseVaultAddr, vaultAddr, migrationAddr, buyoutAddr, baseVaultAddr)
	v, err := Open(context.Background(), f.deps(t, true), vaultAddr)
	require.NoError(t, err)

	est, err := v.EstimateApproveBuyout(context.Background(), true)
	require.NoError(t, err)
	assert.NotZero(t, est.GasLimit)
	assert.Empty(t, f.b.Sent())

	_, err = v.ApproveBuyout(context.Background(), true)
	require.NoError(t, err)
	require.Len(t, f.b.Sent(), 1)
	tx := f.b.Sent()[0]
	assert.Equal(t, fercAddr, *tx.To())
	method, args := decode(t, registry.FERC1155, tx.Data())
	assert.Equal(t, "setApprovalForAll", method)
	assert.Equal(t, buyoutAddr, args[0])
	assert.Equal(t, true, args[1])
}

func TestApproveBuyoutWithoutModule(t *testing.T) {
	f := newFixture(t)
	f.activeModules(t, lpdaAddr, vaultAddr, lpdaAddr, optBidAddr)
	v, err := Open(context.Background(), f.deps(t, true), vaultAddr)
	require.NoError(t, err)

	_, err = v.ApproveBuyout(context.Background(), true)
	assert.ErrorIs(t, err, sdkerr.ErrConfiguration)
	assert.Empty(t, f.b.Sent())
}

func TestDepositApprover(t *testing.T) {
	f := newFixture(t)
	f.b.Handle(nftAddr, registry.ABI(registry.ERC721), "isApprovedForAll", ethtest.Returns(false))
	factory, err := NewFactory(context.Background(), f.deps(t, true))
	require.NoError(t, err)

	a, err := factory.DepositApprover()
	require.NoError(t, err)
	assert.Equal(t, baseVaultAddr, a.Operator())

	receipts, err := a.Grant(context.Background(), []types.Token{
		{Standard: "ERC721", Address: nftAddr.Hex(), ID: big.NewInt(1)},
	})
	require.NoError(t, err)
	require.Len(t, receipts, 1)
	tx := f.b.Sent()[0]
	assert.Equal(t, nftAddr, *tx.To())
	method, args := decode(t, registry.ERC721, tx.Data())
	assert.Equal(t, "setApprovalForAll", method)
	assert.Equal(t, baseVaultAddr, args[0])
}
