package vault

import (
	"context"
	"errors"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/fractional-company/vault-sdk-go/batch"
	"github.com/fractional-company/vault-sdk-go/executor"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
	"github.com/fractional-company/vault-sdk-go/tokens"
	"github.com/fractional-company/vault-sdk-go/types"
	"github.com/sirupsen/logrus"
)

// artEnjoyerModules is the module set every art-enjoyer vault is deployed with.
var artEnjoyerModules = []string{"LPDA", "OptimisticBid"}

var errNoVaultLog = errors.New("receipt carries no vault deployment log")

// Factory deploys vaults and deposits tokens into them.
type Factory struct {
	exec    *executor.Executor
	reg     *registry.Registry
	proofs  *proofs.Store
	chainID uint64
	log     *logrus.Logger
}

// NewFactory binds a factory to the chain of deps' connection.
func NewFactory(ctx context.Context, deps Deps) (*Factory, error) {
	const op = "vault.factory"
	if err := deps.check(op); err != nil {
		return nil, err
	}
	chainID, err := deps.Exec.Connection().ChainID(ctx)
	if err != nil {
		return nil, err
	}
	if !deps.Registry.Supports(chainID) {
		return nil, sdkerr.Configuration(op, "unsupported chain %d", chainID)
	}
	return &Factory{exec: deps.Exec, reg: deps.Registry, proofs: deps.Proofs, chainID: chainID, log: deps.Exec.Logger()}, nil
}

func (f *Factory) ChainID() uint64 { return f.chainID }

// Deployed describes a vault created by a factory call. Token is nil when the
// receipt carried no VaultDeployed event.
type Deployed struct {
	Vault   common.Address   `json:"vaultAddress"`
	Token   *types.TokenInfo `json:"token,omitempty"`
	Receipt *types.Receipt   `json:"receipt"`
}

// DeployParams configure a BaseVault deployment. Modules and Targets are
// module names; Selectors are function signatures or 4-byte hex selectors.
type DeployParams struct {
	FractionSupply *big.Int
	Modules        []string
	Targets        []string
	Selectors      []string
}

// Deploy creates a vault through BaseVault with the given modules. The vault
// address is the emitter of the first receipt log.
func (f *Factory) Deploy(ctx context.Context, p DeployParams) (*Deployed, error) {
	const op = "vault.deploy"
	spec, err := f.prepareDeploy(p)
	if err != nil {
		return nil, err
	}
	r, err := f.exec.Send(ctx, spec)
	if err != nil {
		return nil, err
	}
	addr, ok := r.DeployedAddress()
	if !ok {
		return nil, sdkerr.Transaction(op, errNoVaultLog, "")
	}
	d := &Deployed{Vault: addr, Receipt: r}
	if vault, token, ok := f.vaultDeployed(r); ok && vault == addr {
		d.Token = &token
	}
	f.log.Infof("Deployed vault %s with modules %v", addr.Hex(), p.Modules)
	return d, nil
}

func (f *Factory) EstimateDeploy(ctx context.Context, p DeployParams) (types.GasEstimate, error) {
	spec, err := f.prepareDeploy(p)
	if err != nil {
		return types.GasEstimate{}, err
	}
	return f.exec.Estimate(ctx, spec)
}

func (f *Factory) prepareDeploy(p DeployParams) (executor.CallSpec, error) {
	const op = "vault.deploy"
	if p.FractionSupply == nil || p.FractionSupply.Sign() <= 0 {
		return executor.CallSpec{}, sdkerr.Validation(op, "invalid fraction supply")
	}
	if len(p.Modules) == 0 {
		return executor.CallSpec{}, sdkerr.Validation(op, "vault must have at least one module")
	}
	modules, err := f.moduleAddresses(op, p.Modules, p.Modules)
	if err != nil {
		return executor.CallSpec{}, err
	}
	targets, err := f.moduleAddresses(op, p.Targets, p.Modules)
	if err != nil {
		return executor.CallSpec{}, err
	}
	selectors, err := parseSelectors(op, p.Selectors)
	if err != nil {
		return executor.CallSpec{}, err
	}
	mint, err := f.mintProof(p.Modules)
	if err != nil {
		return executor.CallSpec{}, err
	}
	base, err := f.reg.Lookup(f.chainID, registry.BaseVault, p.Modules...)
	if err != nil {
		return executor.CallSpec{}, err
	}
	return executor.CallSpec{
		Op:     op,
		To:     base.Address,
		ABI:    base.ABI,
		Method: "deployVault",
		Args:   []any{p.FractionSupply, modules, targets, selectors, [][32]byte(mint)},
	}, nil
}

// ArtEnjoyerParams configure a vault whose fractions are sold by LPDA.
type ArtEnjoyerParams struct {
	Curator       common.Address
	Token         common.Address
	TokenID       *big.Int
	StartTime     uint32
	EndTime       uint32
	DropPerSecond uint64
	StartPrice    *big.Int
	EndPrice      *big.Int
	MinBid        *big.Int
	Supply        uint16
}

func (p ArtEnjoyerParams) validate(op string) error {
	switch {
	case p.Curator == (common.Address{}):
		return sdkerr.Validation(op, "invalid curator address")
	case p.Token == (common.Address{}):
		return sdkerr.Validation(op, "invalid token address")
	case p.TokenID == nil || p.TokenID.Sign() < 0:
		return sdkerr.Validation(op, "invalid token id")
	case p.StartTime == 0:
		return sdkerr.Validation(op, "invalid start time")
	case p.EndTime <= p.StartTime:
		return sdkerr.Validation(op, "end time must be after start time")
	case p.DropPerSecond == 0:
		return sdkerr.Validation(op, "invalid drop per second")
	case p.StartPrice == nil || p.StartPrice.Sign() <= 0:
		return sdkerr.Validation(op, "invalid start price")
	case p.EndPrice == nil || p.EndPrice.Sign() < 0 || p.EndPrice.Cmp(p.StartPrice) > 0:
		return sdkerr.Validation(op, "invalid end price")
	case p.MinBid == nil || p.MinBid.Sign() < 0:
		return sdkerr.Validation(op, "invalid min bid")
	case p.Supply == 0:
		return sdkerr.Validation(op, "invalid supply")
	}
	return nil
}

// DeployArtEnjoyer creates a vault holding the curator's NFT and starts its
// LPDA. The result comes from the VaultDeployed event.
func (f *Factory) DeployArtEnjoyer(ctx context.Context, p ArtEnjoyerParams) (*Deployed, error) {
	const op = "vault.deployArtEnjoyer"
	spec, err := f.prepareArtEnjoyer(p)
	if err != nil {
		return nil, err
	}
	r, err := f.exec.Send(ctx, spec)
	if err != nil {
		return nil, err
	}
	vault, token, ok := f.vaultDeployed(r)
	if !ok {
		return nil, sdkerr.Transaction(op, errNoVaultLog, "")
	}
	f.log.Infof("Deployed art enjoyer vault %s for %s #%s", vault.Hex(), p.Token.Hex(), p.TokenID)
	return &Deployed{Vault: vault, Token: &token, Receipt: r}, nil
}

func (f *Factory) EstimateDeployArtEnjoyer(ctx context.Context, p ArtEnjoyerParams) (types.GasEstimate, error) {
	spec, err := f.prepareArtEnjoyer(p)
	if err != nil {
		return types.GasEstimate{}, err
	}
	return f.exec.Estimate(ctx, spec)
}

func (f *Factory) prepareArtEnjoyer(p ArtEnjoyerParams) (executor.CallSpec, error) {
	const op = "vault.deployArtEnjoyer"
	if err := p.validate(op); err != nil {
		return executor.CallSpec{}, err
	}
	modules, err := f.moduleAddresses(op, artEnjoyerModules, artEnjoyerModules)
	if err != nil {
		return executor.CallSpec{}, err
	}
	mint, err := f.mintProof(artEnjoyerModules)
	if err != nil {
		return executor.CallSpec{}, err
	}
	factory, err := f.reg.Lookup(f.chainID, registry.LPDA, artEnjoyerModules...)
	if err != nil {
		return executor.CallSpec{}, err
	}
	info := types.LPDAInfo{
		StartTime:      p.StartTime,
		EndTime:        p.EndTime,
		DropPerSecond:  p.DropPerSecond,
		StartPrice:     p.StartPrice,
		EndPrice:       p.EndPrice,
		MinBid:         p.MinBid,
		Supply:         p.Supply,
		CuratorClaimed: new(big.Int),
		Curator:        p.Curator,
	}
	return executor.CallSpec{
		Op:     op,
		To:     factory.Address,
		ABI:    factory.ABI,
		Method: "deployVault",
		Args:   []any{modules, []common.Address{}, [][4]byte{}, info, p.Token, p.TokenID, [][32]byte(mint)},
	}, nil
}

// DepositTokens moves tokens from the caller-approved from account into
// vault in one BaseVault multicall. A zero from deposits the caller's tokens.
func (f *Factory) DepositTokens(ctx context.Context, vault, from common.Address, tokens []types.Token) (*types.Receipt, error) {
	spec, err := f.prepareDeposit(vault, from, tokens)
	if err != nil {
		return nil, err
	}
	r, err := f.exec.Send(ctx, spec)
	if err != nil {
		return nil, err
	}
	f.log.Infof("Deposited %d tokens into vault %s", len(tokens), vault.Hex())
	return r, nil
}

func (f *Factory) EstimateDepositTokens(ctx context.Context, vault, from common.Address, tokens []types.Token) (types.GasEstimate, error) {
	spec, err := f.prepareDeposit(vault, from, tokens)
	if err != nil {
		return types.GasEstimate{}, err
	}
	return f.exec.Estimate(ctx, spec)
}

func (f *Factory) prepareDeposit(vault, from common.Address, tokens []types.Token) (executor.CallSpec, error) {
	const op = "vault.depositTokens"
	if vault == (common.Address{}) {
		return executor.CallSpec{}, sdkerr.Validation(op, "vault address must not be zero")
	}
	if from == (common.Address{}) {
		caller, err := f.exec.Connection().Address()
		if err != nil {
			return executor.CallSpec{}, &sdkerr.Error{Kind: sdkerr.KindAuthorization, Op: op, Msg: "caller address unknown", Err: err}
		}
		from = caller
	}
	calls, err := batch.Build(from, vault, tokens)
	if err != nil {
		return executor.CallSpec{}, err
	}
	base, err := f.reg.Lookup(f.chainID, registry.BaseVault)
	if err != nil {
		return executor.CallSpec{}, err
	}
	return executor.CallSpec{Op: op, To: base.Address, ABI: base.ABI, Method: "multicall", Args: []any{batch.Payloads(calls)}}, nil
}

// DepositApprover grants BaseVault the approvals DepositTokens pulls with.
func (f *Factory) DepositApprover() (*tokens.Approver, error) {
	base, err := f.reg.Lookup(f.chainID, registry.BaseVault)
	if err != nil {
		return nil, err
	}
	return tokens.NewApprover(f.exec, base.Address), nil
}

// moduleAddresses resolves module names within the deployment of set.
func (f *Factory) moduleAddresses(op string, names, set []string) ([]common.Address, error) {
	addrs := make([]common.Address, 0, len(names))
	for _, name := range names {
		kind, ok := registry.ModuleKind(name)
		if !ok {
			return nil, sdkerr.Validation(op, "module %s does not exist", name)
		}
		addr, err := f.reg.Address(f.chainID, kind, set...)
		if err != nil {
			return nil, err
		}
		addrs = append(addrs, addr)
	}
	return addrs, nil
}

func (f *Factory) mintProof(modules []string) (proofs.Proof, error) {
	if f.proofs == nil {
		return nil, sdkerr.Configuration("vault.deploy", "no proof store configured")
	}
	return f.proofs.Proof(f.chainID, modules, proofs.Mint)
}

// vaultDeployed finds the VaultRegistry VaultDeployed event in r.
func (f *Factory) vaultDeployed(r *types.Receipt) (common.Address, types.TokenInfo, bool) {
	id := registry.ABI(registry.VaultRegistry).Events["VaultDeployed"].ID
	for _, l := range r.Logs {
		if len(l.Topics) != 4 || l.Topics[0] != id {
			continue
		}
		return common.BytesToAddress(l.Topics[1].Bytes()), types.TokenInfo{
			Token: common.BytesToAddress(l.Topics[2].Bytes()),
			ID:    new(big.Int).SetBytes(l.Topics[3].Bytes()),
		}, true
	}
	return common.Address{}, types.TokenInfo{}, false
}

// parseSelectors accepts "transfer(address,uint256)" or "0xa9059cbb".
func parseSelectors(op string, in []string) ([][4]byte, error) {
	out := make([][4]byte, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		var sel [4]byte
		switch {
		case strings.HasPrefix(s, "0x") && len(s) == 10:
			b, err := hexutil.Decode(s)
			if err != nil {
				return nil, sdkerr.Validation(op, "invalid selector %q", s)
			}
			copy(sel[:], b)
		case strings.Contains(s, "(") && strings.HasSuffix(s, ")"):
			copy(sel[:], crypto.Keccak256([]byte(s))[:4])
		default:
			return nil, sdkerr.Validation(op, "selector must be a function signature: %q", s)
		}
		out = append(out, sel)
	}
	return out, nil
}
