package vault

import (
	"context"
	"sort"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/fractional-company/vault-sdk-go/eth"
	"github.com/fractional-company/vault-sdk-go/registry"
	"github.com/fractional-company/vault-sdk-go/sdkerr"
)

const activeModulesEvent = "ActiveModules"

// Discovery reads the module set of a vault from the ActiveModules event its
// factory emitted at deployment.
type Discovery struct {
	conn    *eth.Connection
	reg     *registry.Registry
	chainID uint64
}

func NewDiscovery(conn *eth.Connection, reg *registry.Registry, chainID uint64) *Discovery {
	return &Discovery{conn: conn, reg: reg, chainID: chainID}
}

// ModuleAddresses returns the module contracts installed on vault.
func (d *Discovery) ModuleAddresses(ctx context.Context, vault common.Address) ([]common.Address, error) {
	const op = "vault.modules"
	factories, err := d.reg.Factories(d.chainID)
	if err != nil {
		return nil, err
	}
	if len(factories) == 0 {
		return nil, sdkerr.Configuration(op, "no vault factory on chain %d", d.chainID)
	}

	q := ethereum.FilterQuery{
		Topics: [][]common.Hash{
			{factories[0].ABI.Events[activeModulesEvent].ID},
			{common.BytesToHash(vault.Bytes())},
		},
	}
	byAddr := make(map[common.Address]registry.Contract, len(factories))
	for _, f := range factories {
		q.Addresses = append(q.Addresses, f.Address)
		byAddr[f.Address] = f
	}

	logs, err := d.conn.Backend().FilterLogs(ctx, q)
	if err != nil {
		return nil, sdkerr.ChainRead(op, err)
	}
	for _, l := range logs {
		if l.Removed {
			continue
		}
		f := byAddr[l.Address]
		out, err := f.ABI.Unpack(activeModulesEvent, l.Data)
		if err != nil {
			return nil, sdkerr.ChainRead(op, err)
		}
		if len(out) != 1 {
			continue
		}
		if addrs, ok := out[0].([]common.Address); ok && len(addrs) > 0 {
			return addrs, nil
		}
	}
	return nil, sdkerr.StateConflict(op, "vault %s has no active modules", vault.Hex())
}

// Modules returns the names of the modules installed on vault, sorted.
func (d *Discovery) Modules(ctx context.Context, vault common.Address) ([]string, error) {
	addrs, err := d.ModuleAddresses(ctx, vault)
	if err != nil {
		return nil, err
	}
	names, err := d.reg.ModuleNames(d.chainID, addrs)
	if err != nil {
		return nil, err
	}
	sort.Strings(names)
	return names, nil
}
