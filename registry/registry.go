// Package registry resolves contract addresses and interfaces per chain and
// module deployment. A Registry is immutable once built and safe for
// concurrent use.
package registry

import (
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/proofs"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
)

// Kind names one of the protocol contracts.
type Kind string

const (
	VaultRegistry Kind = "VAULT_REGISTRY"
	BaseVault     Kind = "BASE_VAULT"
	Buyout        Kind = "BUYOUT"
	Migration     Kind = "MIGRATION"
	FERC1155      Kind = "FERC1155"
	LPDA          Kind = "LPDA"
	OptimisticBid Kind = "OPTIMISTIC_BID"
	Multicall     Kind = "MULTICALL"

	// ERC20 and ERC721 are interfaces only. They are never part of a
	// deployment and are not in Kinds.
	ERC20  Kind = "ERC20"
	ERC721 Kind = "ERC721"
)

// Kinds lists every contract kind the registry knows.
var Kinds = []Kind{VaultRegistry, BaseVault, Buyout, Migration, FERC1155, LPDA, OptimisticBid, Multicall}

// ParseKind accepts a kind name as written in configuration files.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if string(k) == s {
			return k, nil
		}
	}
	return "", sdkerr.Configuration("registry.kind", "unknown contract kind %q", s)
}

// moduleNames maps the contracts that can be installed on a vault to the
// names the proof tables were built with.
var moduleNames = map[Kind]string{
	BaseVault:     "BaseVault",
	Buyout:        "Buyout",
	Migration:     "Migration",
	LPDA:          "LPDA",
	OptimisticBid: "OptimisticBid",
}

// ModuleName returns the module name of a kind, or "" when the kind is not a module.
func ModuleName(kind Kind) string {
	return moduleNames[kind]
}

// ModuleKind resolves a module name, in any letter case, to its contract kind.
func ModuleKind(name string) (Kind, bool) {
	name = strings.TrimSpace(name)
	for k, n := range moduleNames {
		if strings.EqualFold(n, name) {
			return k, true
		}
	}
	return "", false
}

// Multicall3Address is the canonical Multicall3 deployment, identical on every chain.
var Multicall3Address = common.HexToAddress("0xcA11bde05977b3631167028862bE2a173976CA11")

// Deployment is one set of contracts deployed together on a chain.
type Deployment struct {
	Name      string
	Modules   []string
	Contracts map[Kind]common.Address
}

// Contract is a resolved address with its interface.
type Contract struct {
	Kind    Kind
	Address common.Address
	ABI     *abi.ABI
}

type chainEntry struct {
	deployments []Deployment
	byKey       map[string]int
}

// Registry is the chain -> deployment table.
type Registry struct {
	chains map[uint64]*chainEntry
}

// New builds a registry. Deployments are copied; the first deployment of a
// chain is its default. Multicall3 is filled in when a deployment omits it.
func New(deployments map[uint64][]Deployment) (*Registry, error) {
	r := &Registry{chains: make(map[uint64]*chainEntry, len(deployments))}
	for chainID, deps := range deployments {
		entry := &chainEntry{byKey: make(map[string]int, len(deps))}
		for _, d := range deps {
			cp := Deployment{
				Name:      d.Name,
				Modules:   append([]string(nil), d.Modules...),
				Contracts: make(map[Kind]common.Address, len(d.Contracts)+1),
			}
			for k, addr := range d.Contracts {
				if ABI(k) == nil {
					return nil, sdkerr.Configuration("registry.new", "unknown contract kind %q in deployment %s", k, d.Name)
				}
				cp.Contracts[k] = addr
			}
			if _, ok := cp.Contracts[Multicall]; !ok {
				cp.Contracts[Multicall] = Multicall3Address
			}
			if len(cp.Modules) > 0 {
				key, err := proofs.Key(cp.Modules)
				if err != nil {
					return nil, err
				}
				if _, dup := entry.byKey[key]; dup {
					return nil, sdkerr.Configuration("registry.new", "duplicate deployment %s for chain %d", key, chainID)
				}
				entry.byKey[key] = len(entry.deployments)
			}
			entry.deployments = append(entry.deployments, cp)
		}
		if len(entry.deployments) > 0 {
			r.chains[chainID] = entry
		}
	}
	return r, nil
}

// Chains returns the supported chain ids in ascending order.
func (r *Registry) Chains() []uint64 {
	ids := make([]uint64, 0, len(r.chains))
	for id := range r.chains {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Supports reports whether chainID has at least one deployment.
func (r *Registry) Supports(chainID uint64) bool {
	_, ok := r.chains[chainID]
	return ok
}

// Deployment selects the deployment whose module key matches modules, or the
// chain's default deployment when no modules are given.
func (r *Registry) Deployment(chainID uint64, modules ...string) (Deployment, error) {
	entry, ok := r.chains[chainID]
	if !ok {
		return Deployment{}, sdkerr.Configuration("registry.lookup", "unsupported chain %d", chainID)
	}
	if len(modules) == 0 {
		return entry.deployments[0], nil
	}
	key, err := proofs.Key(modules)
	if err != nil {
		return Deployment{}, err
	}
	idx, ok := entry.byKey[key]
	if !ok {
		return Deployment{}, sdkerr.Configuration("registry.lookup", "no deployment for modules %s on chain %d", key, chainID)
	}
	return entry.deployments[idx], nil
}

// Lookup resolves the address and interface of kind on chainID.
func (r *Registry) Lookup(chainID uint64, kind Kind, modules ...string) (Contract, error) {
	d, err := r.Deployment(chainID, modules...)
	if err != nil {
		return Contract{}, err
	}
	addr, ok := d.Contracts[kind]
	if !ok {
		return Contract{}, sdkerr.Configuration("registry.lookup", "%s not deployed on chain %d", kind, chainID)
	}
	return Contract{Kind: kind, Address: addr, ABI: ABI(kind)}, nil
}

// Address is Lookup without the interface.
func (r *Registry) Address(chainID uint64, kind Kind, modules ...string) (common.Address, error) {
	c, err := r.Lookup(chainID, kind, modules...)
	return c.Address, err
}

// ModuleNames maps module contract addresses, as emitted by the ActiveModules
// event, back to module names. Every address must be a known module.
func (r *Registry) ModuleNames(chainID uint64, addrs []common.Address) ([]string, error) {
	entry, ok := r.chains[chainID]
	if !ok {
		return nil, sdkerr.Configuration("registry.modules", "unsupported chain %d", chainID)
	}
	names := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		name := ""
	search:
		for _, d := range entry.deployments {
			for k, a := range d.Contracts {
				if a == addr && moduleNames[k] != "" {
					name = moduleNames[k]
					break search
				}
			}
		}
		if name == "" {
			return nil, sdkerr.Configuration("registry.modules", "unknown module %s on chain %d", addr.Hex(), chainID)
		}
		names = append(names, name)
	}
	return names, nil
}

// Factories returns every vault factory (BaseVault or LPDA) deployed on
// chainID, in deployment order.
func (r *Registry) Factories(chainID uint64) ([]Contract, error) {
	entry, ok := r.chains[chainID]
	if !ok {
		return nil, sdkerr.Configuration("registry.factories", "unsupported chain %d", chainID)
	}
	seen := make(map[common.Address]struct{})
	var out []Contract
	for _, d := range entry.deployments {
		for _, k := range []Kind{BaseVault, LPDA} {
			addr, ok := d.Contracts[k]
			if !ok {
				continue
			}
			if _, dup := seen[addr]; dup {
				continue
			}
			seen[addr] = struct{}{}
			out = append(out, Contract{Kind: k, Address: addr, ABI: ABI(k)})
		}
	}
	return out, nil
}
